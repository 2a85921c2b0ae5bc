// Package server exposes the HTTP API for inspecting and editing the
// schedule, jobs, tariffs, and elapsed counters.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/ergbridge/ergbridge/pkg/coordinator"
	"github.com/ergbridge/ergbridge/pkg/log"
	"github.com/ergbridge/ergbridge/pkg/storage"
	"github.com/ergbridge/ergbridge/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// Coordinator is the subset of the reconciler the API consumes.
type Coordinator interface {
	Refresh(ctx context.Context) error
	Data() *types.ScheduleResponse
	Status() (coordinator.State, error, time.Time)
	SlotDuration() time.Duration
	Elapsed() map[string]float64
	SetElapsed(ctx context.Context, entityID string, seconds float64) error
}

// Executor is the subset of the schedule executor the API controls.
type Executor interface {
	Pause()
	Resume()
	Paused() bool
}

// Server handles the HTTP API.
type Server struct {
	storage     storage.Database
	coordinator Coordinator
	executor    Executor

	listenAddr string
	httpServer *http.Server
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(db storage.Database, c Coordinator, e Executor) *Server {
	srv := &Server{
		storage:     db,
		coordinator: c,
		executor:    e,
	}

	listenAddr := lflag.String("http-listen", ":8080", "HTTP server listen address")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/schedule", s.handleGetSchedule)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/calendar", s.handleCalendar)
	mux.HandleFunc("GET /api/calendar/next", s.handleNextEvent)
	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/jobs/{entity}", s.handleGetJob)
	mux.HandleFunc("POST /api/jobs", s.handleUpsertJob)
	mux.HandleFunc("DELETE /api/jobs/{entity}", s.handleRemoveJob)
	mux.HandleFunc("GET /api/tariffs", s.handleListTariffs)
	mux.HandleFunc("POST /api/tariffs", s.handleUpsertTariff)
	mux.HandleFunc("DELETE /api/tariffs/{name}", s.handleRemoveTariff)
	mux.HandleFunc("GET /api/elapsed", s.handleGetElapsed)
	mux.HandleFunc("PUT /api/elapsed/{entity}", s.handleSetElapsed)
	mux.HandleFunc("GET /api/executor", s.handleExecutorStatus)
	mux.HandleFunc("POST /api/executor/pause", s.handleExecutorPause)
	mux.HandleFunc("POST /api/executor/resume", s.handleExecutorResume)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return gziphandler.GzipHandler(mux)
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}
