// Package bot orchestrates the chat pipeline: input validation, session
// rate limiting, retrieval, the sufficiency gate, prompt assembly,
// generation, and the refusal override. It also handles lead capture.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/yonasatinafu/portfolio-bot/internal/knowledge"
	"github.com/yonasatinafu/portfolio-bot/internal/model"
	"github.com/yonasatinafu/portfolio-bot/internal/ratelimit"
	"github.com/yonasatinafu/portfolio-bot/internal/textutil"
)

const (
	maxPageURLChars = 300
	maxSourceItems  = 4

	// combinedQueryTurns is how many trailing history messages are
	// scanned for user content to widen the retrieval query.
	combinedQueryTurns = 4
)

var sessionKeyRe = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Runtime is the slice of the model runtime the orchestrator needs.
// *model.Runtime satisfies it; tests substitute stubs.
type Runtime interface {
	Status() model.Status
	Err() string
	EnsureLoadedAsync() model.Status
	Generate(ctx context.Context, messages []model.Message) (string, error)
}

// Message is one prior conversation turn supplied by the client.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the chat endpoint payload.
type ChatRequest struct {
	Message string    `json:"message"`
	History []Message `json:"history"`
	PageURL string    `json:"page_url"`
}

// Source is one cited page.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ChatResponse is the successful chat result.
type ChatResponse struct {
	Reply   string   `json:"reply"`
	Sources []Source `json:"sources"`
}

// Options are the request-shaping knobs.
type Options struct {
	MaxInputChars          int
	MaxHistoryTurns        int
	MaxHistoryMessageChars int
	MaxOutputChars         int
	TopK                   int
}

// Bot runs the chat pipeline over the shared store, runtime, and
// per-session limiter.
type Bot struct {
	store   *knowledge.Store
	runtime Runtime
	limiter *ratelimit.SessionLimiter
	opts    Options
	logger  *slog.Logger
}

// New creates the orchestrator.
func New(store *knowledge.Store, runtime Runtime, limiter *ratelimit.SessionLimiter, opts Options, logger *slog.Logger) *Bot {
	return &Bot{
		store:   store,
		runtime: runtime,
		limiter: limiter,
		opts:    opts,
		logger:  logger,
	}
}

// SessionKey derives the rate-limit key for a request: the sanitized
// X-Session-ID header value when present, else the client host, else
// "anonymous".
func SessionKey(headerValue, clientHost string) string {
	supplied := sessionKeyRe.ReplaceAllString(strings.TrimSpace(headerValue), "")
	if len(supplied) > 64 {
		supplied = supplied[:64]
	}
	if supplied != "" {
		return supplied
	}
	if host := textutil.Normalize(clientHost, 64); host != "" {
		return host
	}
	return "anonymous"
}

// Chat runs one request through the pipeline. Failures are returned as
// *Error; anything else is an internal fault already logged.
func (b *Bot) Chat(ctx context.Context, req ChatRequest, sessionKey string) (*ChatResponse, error) {
	message := textutil.Normalize(req.Message, b.opts.MaxInputChars)
	if message == "" {
		return nil, newError(KindInvalidMessage, "Message is empty")
	}

	history := b.trimHistory(req.History)

	pageURL := ""
	if req.PageURL != "" {
		pageURL = textutil.Normalize(req.PageURL, maxPageURLChars)
	}

	allowed, retryAfter := b.limiter.Allow(sessionKey)
	if !allowed {
		return nil, &Error{
			Kind:       KindRateLimited,
			Message:    fmt.Sprintf("Too many requests for this session. Retry in %ds.", retryAfter),
			RetryAfter: retryAfter,
		}
	}

	retrieved := b.store.Retrieve(b.combinedQuery(message, history), pageURL, b.opts.TopK)
	sources := buildSources(retrieved)

	switch b.runtime.Status() {
	case model.StatusIdle, model.StatusLoading:
		b.runtime.EnsureLoadedAsync()
		return nil, newError(KindWarmingUp, "Model is warming up. Please retry in a few seconds.")
	case model.StatusError:
		detail := b.runtime.Err()
		if detail == "" {
			detail = "unknown"
		}
		return nil, newError(KindOverloaded,
			"Model failed to load or is currently unavailable. Details: "+detail)
	}

	if !b.store.Sufficient(retrieved) {
		return &ChatResponse{Reply: RefusalMessage, Sources: sources}, nil
	}

	raw, err := b.runtime.Generate(ctx, buildPromptMessages(message, history, pageURL, retrieved))
	if err != nil {
		switch {
		case errors.Is(err, model.ErrWarmingUp):
			return nil, newError(KindWarmingUp, "Model is warming up. Please retry in a few seconds.")
		case errors.Is(err, model.ErrOverloaded):
			return nil, newError(KindOverloaded, "Server is busy with another request. Please retry shortly.")
		case errors.Is(err, model.ErrTimeout):
			return nil, newError(KindTimeout, "Generation timed out. Please retry.")
		default:
			b.logger.Error("generation failed", "error", err)
			return nil, newError(KindInternal, "Unexpected server error. Please retry.")
		}
	}

	reply := textutil.Normalize(raw, b.opts.MaxOutputChars)
	if isRefusal(reply) {
		reply = RefusalMessage
	}

	return &ChatResponse{Reply: reply, Sources: sources}, nil
}

// trimHistory keeps well-formed turns only: recognized roles, non-empty
// normalized content, capped to the most recent MaxHistoryTurns
// exchanges.
func (b *Bot) trimHistory(history []Message) []Message {
	valid := make([]Message, 0, len(history))
	for _, item := range history {
		role := strings.ToLower(strings.TrimSpace(item.Role))
		if role != "user" && role != "assistant" {
			continue
		}
		content := textutil.Normalize(item.Content, b.opts.MaxHistoryMessageChars)
		if content == "" {
			continue
		}
		valid = append(valid, Message{Role: role, Content: content})
	}

	limit := b.opts.MaxHistoryTurns * 2
	if len(valid) > limit {
		valid = valid[len(valid)-limit:]
	}
	return valid
}

// combinedQuery widens the retrieval query with the user's recent
// follow-up context so short messages like "tell me more" still match.
func (b *Bot) combinedQuery(message string, history []Message) string {
	parts := []string{message}
	start := 0
	if len(history) > combinedQueryTurns {
		start = len(history) - combinedQueryTurns
	}
	for _, item := range history[start:] {
		if item.Role == "user" {
			parts = append(parts, item.Content)
		}
	}
	return strings.Join(parts, " ")
}

// buildSources deduplicates retrieved chunks by (title, url) preserving
// rank order, capped at maxSourceItems.
func buildSources(retrieved []knowledge.ScoredChunk) []Source {
	type key struct{ title, url string }
	seen := make(map[key]struct{}, len(retrieved))
	sources := make([]Source, 0, maxSourceItems)
	for _, sc := range retrieved {
		k := key{sc.Title, sc.URL}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		sources = append(sources, Source{Title: sc.Title, URL: sc.URL})
		if len(sources) >= maxSourceItems {
			break
		}
	}
	return sources
}

// isRefusal reports whether the model effectively declined: an empty
// reply or one containing a known refusal phrase.
func isRefusal(reply string) bool {
	if reply == "" {
		return true
	}
	lower := strings.ToLower(reply)
	return strings.Contains(lower, "i don't know") || strings.Contains(lower, "i do not know")
}
