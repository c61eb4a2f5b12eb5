package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codepilot/collab-relay/config"
	"github.com/codepilot/collab-relay/internal/metrics"
	"github.com/codepilot/collab-relay/internal/registry"
	httpx "github.com/codepilot/collab-relay/internal/transport/http"
	"github.com/codepilot/collab-relay/internal/transport/ws"
	"github.com/codepilot/collab-relay/pkg/logger"
	"github.com/codepilot/collab-relay/pkg/suggest"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting collab-relay",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	// --- registries ---
	reg := registry.New()
	metrics.ObserveRegistry(reg)

	// --- WS Hub & Server ---
	hub := ws.NewHub()
	router := ws.NewRouter(reg, hub)
	wsServer := ws.NewServer(hub, router)

	// --- upstream collaborators ---
	// An empty key is allowed: every failed upstream call degrades to the
	// fixed fallback suggestion list.
	suggester := suggest.New(suggest.Config{
		APIKey:    os.Getenv("OPENAI_API_KEY"),
		Model:     cfg.Suggest.Model,
		MaxTokens: cfg.Suggest.MaxTokens,
	})

	// --- HTTP ---
	handler := httpx.NewHandler(reg, suggester)
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      httpx.NewRouter(handler, wsServer, cfg.HTTP.AllowedOrigins),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	_ = httpSrv.Shutdown(ctxShutdown)
	slog.Info("stopped")
}
