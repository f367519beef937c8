package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alexjbarnes/fittrack/internal/auth"
	"github.com/alexjbarnes/fittrack/internal/config"
	"github.com/alexjbarnes/fittrack/internal/logging"
	"github.com/alexjbarnes/fittrack/internal/metrics"
	"github.com/alexjbarnes/fittrack/internal/server"
	"github.com/alexjbarnes/fittrack/internal/store"
)

var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadServer()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Info("fittrack-server starting",
		slog.String("version", Version),
		slog.String("listen", cfg.ListenAddr),
		slog.String("db", cfg.DBPath),
		slog.Bool("metrics", cfg.EnableMetrics),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	authManager := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL)
	m := metrics.New()
	srv := server.New(st, authManager, logger, m, cfg.EnableMetrics)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return serveHTTP(gctx, cfg.ListenAddr, srv, logger)
	})

	if cfg.TemplateDir != "" {
		watcher := server.NewTemplateWatcher(cfg.TemplateDir, st, logger)
		g.Go(func() error {
			return watcher.Watch(gctx)
		})
	}

	return g.Wait()
}

func serveHTTP(ctx context.Context, addr string, srv *server.Server, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     srv,
		ReadTimeout: 30 * time.Second,
		// Write timeout would cut off the change-notification
		// websockets, so only the idle timeout bounds them.
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")

		srv.Hub().CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}

	return nil
}
