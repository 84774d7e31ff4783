// Package server exposes the companion to the GUI over HTTP and websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/OskarRg/neurohackathon/internal/avatar"
	"github.com/OskarRg/neurohackathon/internal/logging"
	"github.com/OskarRg/neurohackathon/internal/mentor"
	"github.com/OskarRg/neurohackathon/internal/metrics"
	"github.com/OskarRg/neurohackathon/internal/store"
	"github.com/OskarRg/neurohackathon/internal/trigger"
)

// Config holds the listen address.
type Config struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" yaml:"host"`
	Port    int    `mapstructure:"port" yaml:"port"`
}

// DefaultConfig listens on loopback only.
func DefaultConfig() Config {
	return Config{Enabled: true, Host: "127.0.0.1", Port: 8765}
}

// Addr returns host:port.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Controller is the trigger side the GUI talks to.
type Controller interface {
	Snapshot() trigger.View
	SubmitUserMessage(ctx context.Context, text string) error
	RequestNudge(ctx context.Context) error
}

// Cooldown reports how long until an unforced intervention is accepted.
type Cooldown interface {
	CooldownRemaining() time.Duration
}

// Journal lists past interventions.
type Journal interface {
	RecentInterventions(ctx context.Context, limit int) ([]store.Intervention, error)
}

// HealthChecker is anything that can report its health.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// LogHistory keeps the recent log lines of the session.
type LogHistory interface {
	GetHistory(limit int) []logging.LogEntry
}

// Deps are the collaborators behind the HTTP surface. Only Controller is
// required.
type Deps struct {
	Controller Controller
	Cooldown   Cooldown
	Journal    Journal
	Logs       LogHistory
	Avatar     *avatar.Controller
	Hub        *Hub
	Checks     map[string]HealthChecker
	Version    string
}

// Server represents the HTTP server
type Server struct {
	cfg        Config
	deps       Deps
	upgrader   websocket.Upgrader
	httpServer *http.Server
	startTime  time.Time
	logger     zerolog.Logger
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                   `json:"status"`
	Version   string                   `json:"version"`
	Uptime    string                   `json:"uptime"`
	Services  map[string]ServiceHealth `json:"services"`
	Timestamp string                   `json:"timestamp"`
}

// ServiceHealth represents a service health status
type ServiceHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// SnapshotResponse is what GET /api/snapshot returns.
type SnapshotResponse struct {
	trigger.View
	Avatar *avatar.State `json:"avatar,omitempty"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error      string  `json:"error"`
	RetryAfter float64 `json:"retry_after,omitempty"`
}

const maxBodySize = 64 * 1024

// New creates a new HTTP server
func New(cfg Config, deps Deps, logger zerolog.Logger) *Server {
	if deps.Hub == nil {
		deps.Hub = NewHub(logger)
	}
	s := &Server{
		cfg:  cfg,
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		startTime: time.Now(),
		logger:    logger.With().Str("component", "server").Logger(),
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub { return s.deps.Hub }

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /api/snapshot", s.snapshotHandler)
	mux.HandleFunc("POST /api/chat", s.chatHandler)
	mux.HandleFunc("POST /api/nudge", s.nudgeHandler)
	mux.HandleFunc("GET /api/interventions", s.interventionsHandler)
	mux.HandleFunc("GET /api/logs", s.logsHandler)
	mux.HandleFunc("GET /ws", s.wsHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info().Str("addr", s.cfg.Addr()).Msg("HTTP server starting")

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown closes websocket clients and the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.deps.Hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Version:   s.deps.Version,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Services:  make(map[string]ServiceHealth, len(s.deps.Checks)),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for name, check := range s.deps.Checks {
		if err := check.Health(ctx); err != nil {
			resp.Status = "degraded"
			resp.Services[name] = ServiceHealth{Healthy: false, Message: err.Error()}
			continue
		}
		resp.Services[name] = ServiceHealth{Healthy: true}
	}

	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *Server) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) snapshot() SnapshotResponse {
	resp := SnapshotResponse{View: s.deps.Controller.Snapshot()}
	if s.deps.Avatar != nil {
		st := s.deps.Avatar.GetState()
		resp.Avatar = &st
	}
	return resp
}

func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", 0)
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required", 0)
		return
	}

	if err := s.deps.Controller.SubmitUserMessage(r.Context(), req.Text); err != nil {
		s.writeDispatchError(w, err)
		return
	}
	s.logger.Debug().Int("chars", len(req.Text)).Msg("Chat message accepted")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) nudgeHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Controller.RequestNudge(r.Context()); err != nil {
		s.writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) writeDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mentor.ErrBusy):
		writeError(w, http.StatusConflict, err.Error(), 0)
	case errors.Is(err, mentor.ErrCooldown):
		var wait time.Duration
		if s.deps.Cooldown != nil {
			wait = s.deps.Cooldown.CooldownRemaining()
		}
		if wait > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		}
		writeError(w, http.StatusTooManyRequests, err.Error(), wait.Seconds())
	case errors.Is(err, trigger.ErrNotRunning), errors.Is(err, mentor.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error(), 0)
	default:
		s.logger.Error().Err(err).Msg("Dispatch failed")
		writeError(w, http.StatusInternalServerError, err.Error(), 0)
	}
}

// queryLimit reads ?limit=, falling back to def when absent.
func queryLimit(r *http.Request, def int) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (s *Server) interventionsHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal disabled", 0)
		return
	}
	limit, ok := queryLimit(r, 20)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer", 0)
		return
	}

	items, err := s.deps.Journal.RecentInterventions(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Listing interventions failed")
		writeError(w, http.StatusInternalServerError, "journal unavailable", 0)
		return
	}
	if items == nil {
		items = []store.Intervention{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"interventions": items})
}

func (s *Server) logsHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Logs == nil {
		writeError(w, http.StatusServiceUnavailable, "log history disabled", 0)
		return
	}
	limit, ok := queryLimit(r, 100)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer", 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": s.deps.Logs.GetHistory(limit)})
}

func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	snap := s.snapshot()
	hello := Message{Type: "hello", Timestamp: time.Now(), Data: map[string]any{"snapshot": snap}}
	s.deps.Hub.serve(conn, hello)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string, retryAfter float64) {
	writeJSON(w, code, errorResponse{Error: msg, RetryAfter: retryAfter})
}
