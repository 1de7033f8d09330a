// Command demo serves a browser page that streams microphone audio over a
// websocket and prints the recognised utterances.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/config"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/engine"
	"github.com/nupi-ai/plugin-stt-local-pocketsphinx/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Loader{}.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	recorder := telemetry.NewRecorder(logger)

	resolver, err := cfg.Resolver(logger)
	if err != nil {
		logger.Error("failed to initialise model resolver", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.DemoAddr,
		Handler:           newRelay(cfg, logger, resolver, recorder).routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("demo shutdown", "error", err)
		}
	}()

	logger.Info("demo listening", "addr", cfg.DemoAddr, "engine", cfg.Engine, "available_engines", engine.Available())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("demo server failed", "error", err)
		os.Exit(1)
	}
	recorder.LogSummary()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
