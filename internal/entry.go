// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/notesync"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", out: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

func openLibrary(cfg *Config, logger *slog.Logger) (*storage.Library, error) {
	lib, err := storage.OpenLibrary(storage.LibraryOptions{
		Backend:      cfg.Storage.Backend,
		Location:     cfg.Storage.Location,
		SettingsFile: cfg.Storage.SettingsFile,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	return lib, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := newLogger(cfg, os.Stdout)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("backend", cfg.Storage.Backend),
		slog.String("default_location", cfg.Storage.Location),
		slog.String("settings_file", cfg.Storage.SettingsFile),
		slog.Duration("quiescence", cfg.Sync.Quiescence),
		slog.String("log_level", cfg.App.LogLevel.String()))

	lib, err := openLibrary(cfg, logger)
	if err != nil {
		return err
	}
	defer lib.Close()
	logger.Info("Storage opened", slog.String("location", lib.Location()))

	// SSE broker.
	broker := sse.NewBroker(cfg.Sync.TreeThrottle, logger)
	defer broker.Close()

	ctrl := notesync.New(lib, notesync.Options{
		Quiescence:  cfg.Sync.Quiescence,
		StatusReset: cfg.Sync.StatusReset,
		Logger:      logger,
		Events:      broker,
	})
	snap, err := ctrl.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load notes: %w", err)
	}
	logger.Info("Notes loaded", slog.Int("count", len(snap.Notes)))

	apiRouter := api.NewRouter(api.RouterOptions{
		Store:       lib,
		Session:     ctrl,
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
		Events:      broker,
		Logger:      logger,
	})

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if _, err := lib.Count(r.Context()); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Open event streams would hold Shutdown until its deadline.
	httpServer.RegisterOnShutdown(broker.Close)

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gCtx := errgroup.WithContext(runCtx)

	// Follow edits made to the content files by other programs.
	g.Go(func() error {
		return lib.Watch(gCtx, cfg.Sync.ReconcileDelay, func(ids []models.NoteID) {
			if _, err := ctrl.Refresh(gCtx); err != nil {
				logger.Warn("refresh after external edit failed", slog.String("error", err.Error()))
				return
			}
			for _, id := range ids {
				broker.Publish(notesync.Event{Type: notesync.EventNoteUpdated, NoteID: id})
			}
		})
	})

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
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}
		stop()

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		if err := ctrl.Close(shutdownCtx); err != nil {
			logger.Error("Saving pending edits failed", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
