// Package api exposes the chatbot over HTTP: a JSON API with a small
// middleware stack and health probes kept outside it.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/yonasatinafu/portfolio-bot/internal/bot"
	"github.com/yonasatinafu/portfolio-bot/internal/knowledge"
)

// serviceName appears in the root banner.
const serviceName = "yonas-portfolio-chatbot"

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger      *slog.Logger
	Bot         *bot.Bot         // Required
	Runtime     bot.Runtime      // Required: surfaced in banner and readiness
	Store       *knowledge.Store // Required: chunk count in readiness
	ModelID     string           // Reported in the root banner
	CORSOrigins []string         // Allowed origins; "*" permits any
	TrustProxy  bool             // Trust X-Real-IP/X-Forwarded-For headers (behind reverse proxy)
	RateBurst   int              // Per-IP rate limiter burst size (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Bot == nil {
		return nil, errors.New("bot is required")
	}
	if cfg.Runtime == nil {
		return nil, errors.New("model runtime is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("knowledge store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ch := &chatHandler{
		logger:     logger,
		bot:        cfg.Bot,
		trustProxy: cfg.TrustProxy,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", ch.chat)
	mux.HandleFunc("POST /api/lead", ch.lead)
	mux.HandleFunc("GET /{$}", banner(cfg.ModelID, cfg.Runtime))

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID must be before Logging so request_id is available in log attributes.
	// CORS must be before RateLimit so preflight OPTIONS gets proper CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Use a top-level mux to separate health probes from middleware stack
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Store, cfg.Runtime))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// banner reports service identity and model state at the root path.
func banner(modelID string, runtime bot.Runtime) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"ok":           "true",
			"service":      serviceName,
			"model":        modelID,
			"model_status": string(runtime.Status()),
		})
	}
}
