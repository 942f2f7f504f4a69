// Package server exposes the query and manual-trigger HTTP surface.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scienceon/tutor-batch/internal/store"
)

// Config holds the HTTP settings.
type Config struct {
	// Addr is the listen address, e.g. ":8000".
	Addr string `yaml:"addr" mapstructure:"addr"`
	// ResultIndex is the index the report query reads from.
	ResultIndex string `yaml:"result_index" mapstructure:"result_index"`
}

// Trigger queues a manual batch cycle. Implemented by scheduler.CronRunner.
type Trigger interface {
	Trigger(ids []string) (jobID string, scheduledFor time.Time)
}

// Server serves report lookups and manual batch triggers.
type Server struct {
	store   store.Store
	trigger Trigger
	cfg     Config
}

// New creates a Server.
func New(st store.Store, trigger Trigger, cfg Config) *Server {
	return &Server{store: st, trigger: trigger, cfg: cfg}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/ai/tutor/home", s.handleHome)
	r.Post("/ai/tutor/report", s.handleReport)
	r.Post("/ai/preprocess/batch", s.handleManualBatch)
	return r
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("server: listening", zap.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "server: shutdown")
		}
		zap.L().Info("server: stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return eris.Wrap(err, "server: listen")
	}
}
