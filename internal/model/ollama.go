package model

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// OllamaConfig configures the Ollama backend.
type OllamaConfig struct {
	// Host is the daemon base URL, e.g. http://localhost:11434.
	Host string

	// Model is the tag to serve, e.g. qwen2.5:1.5b-instruct.
	Model string

	// MaxNewTokens caps generated tokens per request.
	MaxNewTokens int
}

// OllamaBackend loads a model on a local Ollama daemon and hands out a
// Generator backed by its chat endpoint.
type OllamaBackend struct {
	host         string
	model        string
	maxNewTokens int
	client       *http.Client
	logger       *slog.Logger
}

// NewOllamaBackend creates the backend. The HTTP client carries no
// global timeout; callers bound requests through context deadlines.
func NewOllamaBackend(cfg OllamaConfig, logger *slog.Logger) *OllamaBackend {
	return &OllamaBackend{
		host:         strings.TrimRight(cfg.Host, "/"),
		model:        cfg.Model,
		maxNewTokens: cfg.MaxNewTokens,
		client:       &http.Client{},
		logger:       logger,
	}
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

type ollamaChatChunk struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

type ollamaPullRequest struct {
	Name   string `json:"name"`
	Stream bool   `json:"stream"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Load ensures the model tag is present on the daemon, pulling it if
// missing, then runs a one-token warm-up generation so the first real
// request does not pay the model load cost.
func (b *OllamaBackend) Load(ctx context.Context) (Generator, error) {
	have, err := b.hasModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("check local models: %w", err)
	}
	if !have {
		b.logger.Info("pulling model", "model", b.model)
		if err := b.pull(ctx); err != nil {
			return nil, fmt.Errorf("pull model %s: %w", b.model, err)
		}
	}

	gen := &ollamaGenerator{
		host:   b.host,
		model:  b.model,
		client: b.client,
		options: ollamaOptions{
			Temperature: 0,
			TopP:        1,
			NumPredict:  b.maxNewTokens,
		},
	}

	warm := *gen
	warm.options.NumPredict = 1
	if _, err := warm.Generate(ctx, []Message{{Role: "user", Content: "Hi"}}); err != nil {
		return nil, fmt.Errorf("warm up model %s: %w", b.model, err)
	}

	return gen, nil
}

func (b *OllamaBackend) hasModel(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.host+"/api/tags", nil)
	if err != nil {
		return false, err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("ollama tags (status %d): %s", resp.StatusCode, body)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false, err
	}
	for _, m := range tags.Models {
		if m.Name == b.model {
			return true, nil
		}
	}
	return false, nil
}

func (b *OllamaBackend) pull(ctx context.Context) error {
	body, err := json.Marshal(ollamaPullRequest{Name: b.model})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.host+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama pull (status %d): %s", resp.StatusCode, msg)
	}

	// Pull streams progress objects one per line; drain until EOF so the
	// daemon finishes the download before we report success.
	_, err = io.Copy(io.Discard, resp.Body)
	return err
}

// ollamaGenerator talks to the daemon's chat endpoint with deterministic
// sampling options.
type ollamaGenerator struct {
	host    string
	model   string
	client  *http.Client
	options ollamaOptions
}

func (g *ollamaGenerator) Generate(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(ollamaChatRequest{
		Model:    g.model,
		Messages: messages,
		Stream:   true,
		Options:  g.options,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama chat (status %d): %s", resp.StatusCode, msg)
	}

	// The chat endpoint streams JSON objects one per line; the reply is
	// the concatenation of the per-chunk message contents.
	var out strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var chunk ollamaChatChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return "", fmt.Errorf("parse chat chunk: %w", err)
		}
		out.WriteString(chunk.Message.Content)
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read chat stream: %w", err)
	}

	return out.String(), nil
}
