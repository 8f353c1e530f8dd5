// Package api exposes the operational HTTP surface: a health check and a
// stats endpoint reporting queue depth, mood, and uptime.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/astronow/astronow/internal/models"
	"github.com/astronow/astronow/internal/mood"
)

// QueueStats reports outbound queue state.
type QueueStats interface {
	Len() int
}

// Server serves the operational endpoints.
type Server struct {
	httpServer *http.Server
	queue      QueueStats
	moods      *mood.Engine
	startedAt  time.Time
}

// NewServer builds the server on addr.
func NewServer(addr string, q QueueStats, moods *mood.Engine) *Server {
	s := &Server{
		queue:     q,
		moods:     moods,
		startedAt: time.Now(),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/stats", s.statsHandler)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until Stop is called. Intended to run in its own goroutine.
func (s *Server) Start() {
	slog.Info("API server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("API server failed", "error", err)
	}
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	writeJSON(w, http.StatusOK, models.Success(map[string]string{"state": "healthy"}))
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	stats := map[string]any{
		"queue_depth":   s.queue.Len(),
		"mood":          s.moods.Current(),
		"energy":        s.moods.EnergyLevel(),
		"uptime_sec":    int(time.Since(s.startedAt).Seconds()),
		"mood_shifts":   len(s.moods.History()),
	}
	writeJSON(w, http.StatusOK, models.Success(stats))
}

func writeJSON(w http.ResponseWriter, status int, resp models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("API response encoding failed", "error", err)
	}
}
