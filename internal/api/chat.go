package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/yonasatinafu/portfolio-bot/internal/bot"
)

// maxRequestBody bounds chat and lead payloads. History arrives raw
// and is only trimmed after decoding, so the cap is sized well above
// any client a browser widget would send, not above the per-message
// limits.
const maxRequestBody = 1 << 20

// chatHandler serves the chat and lead endpoints.
type chatHandler struct {
	logger     *slog.Logger
	bot        *bot.Bot
	trustProxy bool
}

func (h *chatHandler) chat(w http.ResponseWriter, r *http.Request) {
	var req bot.ChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeDecodeError(w, err, string(bot.KindInvalidMessage))
		return
	}

	sessionKey := bot.SessionKey(r.Header.Get("X-Session-ID"), clientIP(r, h.trustProxy))

	resp, err := h.bot.Chat(r.Context(), req, sessionKey)
	if err != nil {
		writePipelineError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *chatHandler) lead(w http.ResponseWriter, r *http.Request) {
	var req bot.LeadRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeDecodeError(w, err, string(bot.KindInvalidEmail))
		return
	}

	if err := h.bot.Lead(req); err != nil {
		writePipelineError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	return json.NewDecoder(r.Body).Decode(dst)
}

// writeDecodeError reports a failed body decode. An over-limit body
// gets its own status so clients do not mistake it for malformed JSON.
func writeDecodeError(w http.ResponseWriter, err error, kind string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, kind, "Request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, kind, "Invalid request body")
}
