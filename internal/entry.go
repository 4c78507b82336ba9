// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/eihwaz/internal/api"
	"github.com/starford/eihwaz/internal/importer"
	"github.com/starford/eihwaz/internal/kb"
	"github.com/starford/eihwaz/internal/models"
	"github.com/starford/eihwaz/internal/sse"
	"github.com/starford/eihwaz/internal/store"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("seed_path", cfg.Seed.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Open the knowledge base store.
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)

	// Build the knowledge base engine; committed mutations feed the broker.
	svc := kb.NewService(db, broker.PublishEntryEvent)

	// Grant administrative principals full capabilities.
	for _, principal := range cfg.Admins {
		caps := models.Capabilities{CanEdit: true, CanReceiveFeedback: true}
		if err := svc.SetPermissions(ctx, principal, caps); err != nil {
			return fmt.Errorf("grant admin %q: %w", principal, err)
		}
	}

	// The importer principal needs edit capability to mirror the seed
	// directory. Merge rather than overwrite so an admin entry survives.
	if cfg.Seed.Path != "" {
		caps, err := svc.Permissions(ctx, cfg.Seed.Principal)
		if err != nil {
			return fmt.Errorf("read %q capabilities: %w", cfg.Seed.Principal, err)
		}
		if !caps.CanEdit {
			caps.CanEdit = true
			if err := svc.SetPermissions(ctx, cfg.Seed.Principal, caps); err != nil {
				return fmt.Errorf("grant importer %q: %w", cfg.Seed.Principal, err)
			}
		}
	}

	// Run the initial seed sync before serving.
	var im *importer.Importer
	if cfg.Seed.Path != "" {
		if err := os.MkdirAll(cfg.Seed.Path, 0o755); err != nil {
			return fmt.Errorf("create seed dir: %w", err)
		}
		im = importer.New(svc, cfg.Seed.Path, cfg.Seed.Principal, logger)
		if err := im.Sync(ctx); err != nil {
			logger.Warn("initial seed sync failed", slog.String("error", err.Error()))
		}
	}

	// Build API router.
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Keep the seed mirror live.
	if im != nil && cfg.Seed.Watch {
		g.Go(func() error {
			if err := im.Watch(gCtx); err != nil {
				return fmt.Errorf("seed watcher error: %w", err)
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		broker.Close()

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
