package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/yonasatinafu/portfolio-bot/internal/bot"
)

// errorBody is the JSON shape of every failure response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code.
// Uses buffer-first strategy to ensure headers are only sent after successful encoding.
// This allows returning a proper 500 error if JSON encoding fails.
func writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		slog.Debug("failed to write response body", "error", err)
	}
}

// writeError writes a failure body with the given status and error code.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

// statusForKind maps pipeline failure kinds to HTTP statuses.
func statusForKind(kind bot.Kind) int {
	switch kind {
	case bot.KindInvalidMessage, bot.KindInvalidEmail:
		return http.StatusBadRequest
	case bot.KindRateLimited:
		return http.StatusTooManyRequests
	case bot.KindWarmingUp, bot.KindOverloaded:
		return http.StatusServiceUnavailable
	case bot.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writePipelineError translates an orchestrator failure into the wire
// response. Unknown errors become a generic 500; their detail stays in
// the server log only.
func writePipelineError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var be *bot.Error
	if !errors.As(err, &be) {
		logger.Error("unexpected pipeline failure", "error", err)
		writeError(w, http.StatusInternalServerError, string(bot.KindInternal),
			"Unexpected server error. Please retry.")
		return
	}

	if be.Kind == bot.KindRateLimited && be.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(be.RetryAfter))
	}
	writeError(w, statusForKind(be.Kind), string(be.Kind), be.Message)
}
