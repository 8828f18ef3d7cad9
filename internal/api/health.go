package api

import (
	"net/http"

	"github.com/yonasatinafu/portfolio-bot/internal/bot"
	"github.com/yonasatinafu/portfolio-bot/internal/knowledge"
)

// health is a simple health check endpoint for Docker/Kubernetes probes.
// Returns 200 OK with {"status":"ok"}.
func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readiness reports the loaded corpus size and current model state.
// Always 200: the service answers refusals and warm-up errors itself,
// so readiness only surfaces state for operators.
func readiness(store *knowledge.Store, runtime bot.Runtime) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":           "ok",
			"model_status":     string(runtime.Status()),
			"knowledge_chunks": store.Len(),
		})
	})
}
