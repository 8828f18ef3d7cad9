package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yonasatinafu/portfolio-bot/internal/bot"
	"github.com/yonasatinafu/portfolio-bot/internal/knowledge"
	"github.com/yonasatinafu/portfolio-bot/internal/log"
	"github.com/yonasatinafu/portfolio-bot/internal/model"
	"github.com/yonasatinafu/portfolio-bot/internal/ratelimit"
)

// stubRuntime scripts the model runtime for handler tests.
type stubRuntime struct {
	status     model.Status
	errMsg     string
	generateFn func(ctx context.Context, messages []model.Message) (string, error)
}

func (s *stubRuntime) Status() model.Status            { return s.status }
func (s *stubRuntime) Err() string                     { return s.errMsg }
func (s *stubRuntime) EnsureLoadedAsync() model.Status { return model.StatusLoading }

func (s *stubRuntime) Generate(ctx context.Context, messages []model.Message) (string, error) {
	if s.generateFn == nil {
		return "stub reply", nil
	}
	return s.generateFn(ctx, messages)
}

func testHandler(t *testing.T, rt bot.Runtime, rateCapacity int) http.Handler {
	t.Helper()

	store, err := knowledge.Build([]knowledge.Document{
		{Title: "Projects", URL: "/projects", Text: "golang backend services distributed systems"},
		{Title: "About", URL: "/about", Text: "photography travel writing"},
		{Title: "Blog", URL: "/blog", Text: "hiking maps trail notes"},
	}, knowledge.Params{ChunkWords: 20, OverlapWords: 5, MinTopScore: 0.01}, log.NewNop())
	if err != nil {
		t.Fatalf("building store: %v", err)
	}

	limiter := ratelimit.NewSessionLimiter(rateCapacity, time.Minute)
	b := bot.New(store, rt, limiter, bot.Options{
		MaxInputChars:          1800,
		MaxHistoryTurns:        14,
		MaxHistoryMessageChars: 800,
		MaxOutputChars:         1400,
		TopK:                   5,
	}, log.NewNop())

	srv, err := NewServer(ServerConfig{
		Logger:      log.NewNop(),
		Bot:         b,
		Runtime:     rt,
		Store:       store,
		ModelID:     "qwen2.5:1.5b-instruct",
		CORSOrigins: []string{"*"},
	})
	if err != nil {
		t.Fatalf("creating server: %v", err)
	}
	return srv.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBodyMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestChatEndpoint_Success(t *testing.T) {
	rt := &stubRuntime{
		status: model.StatusReady,
		generateFn: func(context.Context, []model.Message) (string, error) {
			return "He builds Go services.", nil
		},
	}
	h := testHandler(t, rt, 10)

	w := doJSON(t, h, http.MethodPost, "/api/chat", `{"message": "golang backend services"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}

	got := decodeBodyMap(t, w)
	if got["reply"] != "He builds Go services." {
		t.Errorf("reply = %q, want %q", got["reply"], "He builds Go services.")
	}
	sources, ok := got["sources"].([]any)
	if !ok || len(sources) == 0 {
		t.Errorf("sources = %v, want non-empty list", got["sources"])
	}
}

func TestChatEndpoint_InvalidBody(t *testing.T) {
	h := testHandler(t, &stubRuntime{status: model.StatusReady}, 10)

	w := doJSON(t, h, http.MethodPost, "/api/chat", "not json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if got := decodeBodyMap(t, w)["error"]; got != "invalid_message" {
		t.Errorf("error = %q, want invalid_message", got)
	}
}

func TestChatEndpoint_LargeHistoryAccepted(t *testing.T) {
	rt := &stubRuntime{
		status: model.StatusReady,
		generateFn: func(context.Context, []model.Message) (string, error) {
			return "He builds Go services.", nil
		},
	}
	h := testHandler(t, rt, 10)

	// Many raw history entries well past the old per-request cap;
	// the pipeline trims them after decoding.
	filler := strings.Repeat("x", 3000)
	history := make([]map[string]string, 28)
	for i := range history {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		history[i] = map[string]string{"role": role, "content": filler}
	}
	payload, err := json.Marshal(map[string]any{
		"message": "golang backend services",
		"history": history,
	})
	if err != nil {
		t.Fatalf("marshaling payload: %v", err)
	}
	if len(payload) <= 64<<10 {
		t.Fatalf("payload = %d bytes, want more than 64 KiB", len(payload))
	}

	w := doJSON(t, h, http.MethodPost, "/api/chat", string(payload))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
}

func TestChatEndpoint_BodyTooLarge(t *testing.T) {
	h := testHandler(t, &stubRuntime{status: model.StatusReady}, 10)

	big := `{"message":"` + strings.Repeat("a", (1<<20)+1024) + `"}`
	w := doJSON(t, h, http.MethodPost, "/api/chat", big)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", w.Code)
	}

	got := decodeBodyMap(t, w)
	if got["error"] != "invalid_message" {
		t.Errorf("error = %q, want invalid_message", got["error"])
	}
	if got["message"] != "Request body too large" {
		t.Errorf("message = %q, want %q", got["message"], "Request body too large")
	}
}

func TestChatEndpoint_EmptyMessage(t *testing.T) {
	h := testHandler(t, &stubRuntime{status: model.StatusReady}, 10)

	w := doJSON(t, h, http.MethodPost, "/api/chat", `{"message": "   "}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestChatEndpoint_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		runtime    *stubRuntime
		wantStatus int
		wantError  string
	}{
		{
			name:       "warming up",
			runtime:    &stubRuntime{status: model.StatusIdle},
			wantStatus: http.StatusServiceUnavailable,
			wantError:  "warming_up",
		},
		{
			name:       "load error",
			runtime:    &stubRuntime{status: model.StatusError, errMsg: "pull failed"},
			wantStatus: http.StatusServiceUnavailable,
			wantError:  "overloaded",
		},
		{
			name: "generation timeout",
			runtime: &stubRuntime{
				status: model.StatusReady,
				generateFn: func(context.Context, []model.Message) (string, error) {
					return "", model.ErrTimeout
				},
			},
			wantStatus: http.StatusGatewayTimeout,
			wantError:  "timeout",
		},
		{
			name: "busy",
			runtime: &stubRuntime{
				status: model.StatusReady,
				generateFn: func(context.Context, []model.Message) (string, error) {
					return "", model.ErrOverloaded
				},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantError:  "overloaded",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testHandler(t, tt.runtime, 10)

			w := doJSON(t, h, http.MethodPost, "/api/chat", `{"message": "golang backend services"}`)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if got := decodeBodyMap(t, w)["error"]; got != tt.wantError {
				t.Errorf("error = %q, want %q", got, tt.wantError)
			}
		})
	}
}

func TestChatEndpoint_RateLimited(t *testing.T) {
	h := testHandler(t, &stubRuntime{status: model.StatusReady}, 1)

	first := doJSON(t, h, http.MethodPost, "/api/chat", `{"message": "golang services"}`)
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", first.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message": "golang services"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got == "" {
		t.Error("Retry-After header missing")
	}
	if got := decodeBodyMap(t, w)["error"]; got != "rate_limited" {
		t.Errorf("error = %q, want rate_limited", got)
	}
}

func TestChatEndpoint_SessionHeaderSeparatesBudgets(t *testing.T) {
	h := testHandler(t, &stubRuntime{status: model.StatusReady}, 1)

	for i, session := range []string{"session-a", "session-b"} {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message": "golang services"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Session-ID", session)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, w.Code)
		}
	}
}

func TestLeadEndpoint(t *testing.T) {
	h := testHandler(t, &stubRuntime{status: model.StatusReady}, 10)

	w := doJSON(t, h, http.MethodPost, "/api/lead", `{"email": "visitor@example.com", "name": "V"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	if got := decodeBodyMap(t, w)["ok"]; got != true {
		t.Errorf("ok = %v, want true", got)
	}

	w = doJSON(t, h, http.MethodPost, "/api/lead", `{"email": "not-an-email"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if got := decodeBodyMap(t, w)["error"]; got != "invalid_email" {
		t.Errorf("error = %q, want invalid_email", got)
	}
}

func TestRootBanner(t *testing.T) {
	h := testHandler(t, &stubRuntime{status: model.StatusReady}, 10)

	w := doJSON(t, h, http.MethodGet, "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	got := decodeBodyMap(t, w)
	if got["service"] != "yonas-portfolio-chatbot" {
		t.Errorf("service = %q", got["service"])
	}
	if got["model"] != "qwen2.5:1.5b-instruct" {
		t.Errorf("model = %q", got["model"])
	}
	if got["model_status"] != "ready" {
		t.Errorf("model_status = %q, want ready", got["model_status"])
	}
}

func TestHealthAndReady(t *testing.T) {
	h := testHandler(t, &stubRuntime{status: model.StatusLoading}, 10)

	w := doJSON(t, h, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", w.Code)
	}
	if got := decodeBodyMap(t, w)["status"]; got != "ok" {
		t.Errorf("health status field = %q, want ok", got)
	}

	w = doJSON(t, h, http.MethodGet, "/ready", "")
	if w.Code != http.StatusOK {
		t.Fatalf("ready status = %d, want 200", w.Code)
	}
	got := decodeBodyMap(t, w)
	if got["model_status"] != "loading" {
		t.Errorf("model_status = %q, want loading", got["model_status"])
	}
	if got["knowledge_chunks"] != float64(3) {
		t.Errorf("knowledge_chunks = %v, want 3", got["knowledge_chunks"])
	}
}

func TestCORSPreflight(t *testing.T) {
	h := testHandler(t, &stubRuntime{status: model.StatusReady}, 10)

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := testHandler(t, &stubRuntime{status: model.StatusReady}, 10)

	w := doJSON(t, h, http.MethodGet, "/api/chat", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", w.Code)
	}
}
