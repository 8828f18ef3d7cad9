package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yonasatinafu/portfolio-bot/internal/api"
	"github.com/yonasatinafu/portfolio-bot/internal/bot"
	"github.com/yonasatinafu/portfolio-bot/internal/config"
	"github.com/yonasatinafu/portfolio-bot/internal/knowledge"
	"github.com/yonasatinafu/portfolio-bot/internal/log"
	"github.com/yonasatinafu/portfolio-bot/internal/model"
	"github.com/yonasatinafu/portfolio-bot/internal/observability"
	"github.com/yonasatinafu/portfolio-bot/internal/ratelimit"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute // generation can approach its own 60s deadline
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chatbot HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe initializes and starts the HTTP API server.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), JSON: cfg.LogJSON})
	logger.Info("starting HTTP API server", "version", AppVersion)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Tracing.Enabled {
		shutdown, err := observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.Tracing.Endpoint,
			Environment: cfg.Tracing.Environment,
			ServiceName: cfg.Tracing.ServiceName,
		}, logger)
		if err != nil {
			return fmt.Errorf("setting up tracing: %w", err)
		}
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer flushCancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Warn("trace flush failed", "error", err)
			}
		}()
	}

	store, err := knowledge.Load(knowledge.Params{
		SummaryPath:   cfg.SummaryPath,
		KnowledgePath: cfg.KnowledgePath,
		ChunkWords:    cfg.ChunkWords,
		OverlapWords:  cfg.ChunkOverlapWords,
		MinTopScore:   cfg.MinTopScore,
	}, logger)
	if err != nil {
		return fmt.Errorf("loading knowledge base: %w", err)
	}
	logger.Info("knowledge base loaded", "chunks", store.Len())

	backend := model.NewOllamaBackend(model.OllamaConfig{
		Host:         cfg.OllamaHost,
		Model:        cfg.ModelID,
		MaxNewTokens: cfg.MaxNewTokens,
	}, logger)
	runtime := model.NewRuntime(backend, cfg.GenerationTimeout(), logger)
	defer runtime.Close()

	// Warm the model in the background so the first chat after startup
	// can return quickly.
	runtime.EnsureLoadedAsync()

	limiter := ratelimit.NewSessionLimiter(cfg.RateLimitPerMinute, time.Minute)
	orchestrator := bot.New(store, runtime, limiter, bot.Options{
		MaxInputChars:          cfg.MaxInputChars,
		MaxHistoryTurns:        cfg.MaxHistoryTurns,
		MaxHistoryMessageChars: cfg.MaxHistoryMessageChars,
		MaxOutputChars:         cfg.MaxOutputChars,
		TopK:                   cfg.TopK,
	}, logger)

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:      logger,
		Bot:         orchestrator,
		Runtime:     runtime,
		Store:       store,
		ModelID:     cfg.ModelID,
		CORSOrigins: cfg.CORSOrigins,
		TrustProxy:  cfg.TrustProxy,
		RateBurst:   cfg.RateBurst,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", cfg.Addr(),
		"api", "/api/*",
		"health", "/health, /ready",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}
