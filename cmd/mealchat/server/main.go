package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"mealchat"
	"mealchat/api"
	"mealchat/app"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("SETUP: No .env file loaded", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var serverConfig mealchat.ServerConfig
	if err := envdecode.Decode(&serverConfig); err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}

	var opts app.Options
	if serverConfig.OtelEnabled {
		tracerProvider, meterProvider, otelShutdown, err := mealchat.InitOtel(ctx)
		if err != nil {
			slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
			return
		}
		defer func() {
			if err := otelShutdown(context.Background()); err != nil {
				slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
			}
		}()
		opts.TracerProvider = tracerProvider
		opts.MeterProvider = meterProvider
	}

	if serverConfig.TurnLogDir != "" {
		logger, cleanup, err := newTurnLogger(serverConfig.TurnLogDir, cfg.Model)
		if err != nil {
			slog.Error("SETUP: Failed to create turn logger", "error", err)
			return
		}
		defer func() {
			if err := cleanup(); err != nil {
				slog.Error("Failed to flush turn log", "error", err)
			}
		}()
		opts.TurnLogger = logger
	}

	a, err := app.New(ctx, cfg, opts)
	if err != nil {
		slog.Error("SETUP: Failed to build sessions", "error", err)
		return
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("Failed to close", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              serverConfig.Addr,
		Handler:           api.NewServer(a.Sessions).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shut down server", "error", err)
		}
	}()

	slog.Info("SETUP: Listening", "addr", serverConfig.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server stopped", "error", err)
	}
}

func newTurnLogger(dir string, model mealchat.ModelConfig) (mealchat.TurnLogger, func() error, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	logFile, err := os.OpenFile(mealchat.NewTurnLogFilePath(dir, model.Provider, model.ModelID), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logger := mealchat.NewFileTurnLogger(logFile)
	cleanup := func() error {
		return errors.Join(logger.Flush(), logFile.Close())
	}
	return logger, cleanup, nil
}
