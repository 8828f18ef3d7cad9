// Package model owns the shared language-model runtime: a state
// machine around asynchronous model loading plus single-flight,
// timeout-bounded text generation.
//
// One Runtime instance is shared by all requests. Loading happens on a
// background goroutine guarded by a state lock; inference is restricted
// to one execution at a time with a non-blocking lock, so a concurrent
// caller fails fast with ErrOverloaded instead of queueing behind a
// CPU-bound generation.
package model

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Status describes the runtime state machine. Transitions are
// idle|error -> loading -> ready|error; error only clears through a new
// load attempt.
type Status string

// Runtime states.
const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

var (
	// ErrWarmingUp indicates no model is published yet. Callers should
	// re-trigger EnsureLoadedAsync and retry later.
	ErrWarmingUp = errors.New("model is warming up")

	// ErrOverloaded indicates another generation is already in flight.
	ErrOverloaded = errors.New("runtime is busy with another request")

	// ErrTimeout indicates generation exceeded the configured deadline.
	ErrTimeout = errors.New("generation timed out")
)

// Message is one turn handed to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generator produces a completion for a conversation. The production
// implementation talks to a local Ollama daemon; tests substitute stubs.
type Generator interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// Backend constructs a ready Generator. Load is called at most once per
// load attempt, on a background goroutine.
type Backend interface {
	Load(ctx context.Context) (Generator, error)
}

// Runtime is the shared model runtime. Create with NewRuntime and
// release with Close once no more calls will be made.
type Runtime struct {
	backend Backend
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex // guards gen, loading, loadErr
	gen     Generator
	loading bool
	loadErr string

	inferMu sync.Mutex // single-flight gate, acquired with TryLock only

	jobs chan job
	done chan struct{}
}

type job struct {
	ctx      context.Context
	gen      Generator
	messages []Message
	result   chan jobResult
}

type jobResult struct {
	text string
	err  error
}

// NewRuntime creates the runtime and starts its single generation
// worker. timeout bounds each Generate call.
func NewRuntime(backend Backend, timeout time.Duration, logger *slog.Logger) *Runtime {
	r := &Runtime{
		backend: backend,
		timeout: timeout,
		logger:  logger,
		jobs:    make(chan job, 1),
		done:    make(chan struct{}),
	}
	go r.worker()
	return r
}

// Close stops the generation worker. Callers must not invoke Generate
// after Close.
func (r *Runtime) Close() {
	close(r.done)
}

// EnsureLoadedAsync triggers a background load unless the model is
// already published or a load is in flight. It returns immediately with
// the resulting status; idempotent under concurrent calls.
func (r *Runtime) EnsureLoadedAsync() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gen != nil {
		return StatusReady
	}
	if r.loading {
		return StatusLoading
	}
	r.loading = true
	go r.loadWorker()
	return StatusLoading
}

// loadWorker runs the backend load and publishes the generator on
// success. The loading flag clears on every exit path.
func (r *Runtime) loadWorker() {
	defer func() {
		r.mu.Lock()
		r.loading = false
		r.mu.Unlock()
	}()

	r.logger.Info("loading model")
	gen, err := r.backend.Load(context.Background())
	if err != nil {
		r.logger.Error("model load failed", "error", err)
		r.mu.Lock()
		r.loadErr = err.Error()
		r.mu.Unlock()
		return
	}

	r.mu.Lock()
	r.gen = gen
	r.loadErr = ""
	r.mu.Unlock()
	r.logger.Info("model loaded")
}

// Status returns the current runtime state.
func (r *Runtime) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.gen != nil:
		return StatusReady
	case r.loading:
		return StatusLoading
	case r.loadErr != "":
		return StatusError
	default:
		return StatusIdle
	}
}

// Err returns the last load error message, if any.
func (r *Runtime) Err() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadErr
}

// Generate runs one generation. It fails fast with ErrWarmingUp when no
// model is published, ErrOverloaded when another generation holds the
// inference gate, and ErrTimeout when the deadline passes. On timeout
// the in-flight work is cancelled best-effort; it may run to completion
// in the background and its result is discarded.
func (r *Runtime) Generate(ctx context.Context, messages []Message) (string, error) {
	r.mu.Lock()
	gen := r.gen
	r.mu.Unlock()
	if gen == nil {
		return "", ErrWarmingUp
	}

	if !r.inferMu.TryLock() {
		return "", ErrOverloaded
	}
	defer r.inferMu.Unlock()

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	j := job{
		ctx:      workCtx,
		gen:      gen,
		messages: messages,
		result:   make(chan jobResult, 1),
	}

	select {
	case r.jobs <- j:
	default:
		// Worker still draining abandoned work from a previous timeout.
		return "", ErrOverloaded
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case res := <-j.result:
		return res.text, res.err
	case <-timer.C:
		cancel()
		return "", ErrTimeout
	}
}

// worker executes generation jobs one at a time. The result channel is
// buffered so delivering the result of abandoned work never blocks.
func (r *Runtime) worker() {
	for {
		select {
		case <-r.done:
			return
		case j := <-r.jobs:
			if err := j.ctx.Err(); err != nil {
				j.result <- jobResult{err: err}
				continue
			}
			text, err := j.gen.Generate(j.ctx, j.messages)
			j.result <- jobResult{text: text, err: err}
		}
	}
}
