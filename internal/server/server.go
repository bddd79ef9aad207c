// Package server wires the gateway into an HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"filegate/internal/config"
	"filegate/internal/failover"
	"filegate/internal/gateway"
	"filegate/internal/metrics"
	"filegate/internal/registry"
	"filegate/internal/server/auth"
	"filegate/internal/server/files"
	"filegate/internal/server/storagesync"

	"github.com/charmbracelet/log"
)

const shutdownTimeout = 30 * time.Second

// New builds the HTTP handler for an already opened registry.
func New(cfg config.Config, reg *registry.Registry, tokens *auth.TokenStore, logger *log.Logger) http.Handler {
	m := metrics.New()
	exec := failover.New(reg,
		failover.WithLogger(logger.WithPrefix("failover")),
		failover.WithMetrics(m),
		failover.WithOrphanCleanup(cfg.CleanupOrphans),
	)
	gw := gateway.New(reg, exec,
		gateway.WithWorkers(cfg.UploadWorkers),
		gateway.WithLogger(logger.WithPrefix("gateway")),
		gateway.WithMetrics(m),
	)
	logger.Info("gateway ready", "backends", gw.Describe())

	// Mux definition start
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})
	mux.Handle("GET /metrics", m.Handler())
	handle(mux, "GET /api/auth/me", http.HandlerFunc(auth.Me), auth.Middleware(tokens))
	handle(mux, "/api/files/", http.StripPrefix("/api/files", files.Handler(gw, files.Options{
		MaxFormMemory: cfg.MaxFormMemory,
		Development:   cfg.IsDevelopment(),
		Logger:        logger.WithPrefix("files"),
	})), auth.Optional(tokens))
	mux.Handle("POST /runtime/webhooks/storagesync", storagesync.Handler(logger.WithPrefix("storagesync")))
	// Mux definition end

	return accessLog(logger.WithPrefix("http"), m)(mux)
}

// Serve opens the backends and serves until ctx is cancelled.
func Serve(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	tokens, err := auth.LoadPrincipals(cfg.PrincipalsFile)
	if err != nil {
		return err
	}
	logger.Info("principals loaded", "count", tokens.Len(), "file", cfg.PrincipalsFile)

	reg, err := registry.Open(ctx, cfg.Backends, logger.WithPrefix("registry"))
	if err != nil {
		return err
	}
	defer func() {
		if err := reg.Close(context.Background()); err != nil {
			logger.Error("closing backends", "err", err)
		}
	}()

	srv := &http.Server{
		Handler:           New(cfg, reg, tokens, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	logger.Info("starting server", "addr", lis.Addr().String(), "environment", cfg.Environment)

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(lis) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
