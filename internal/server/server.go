// Package server exposes the orchestration core over HTTP: a streaming
// session endpoint plus health and metrics.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/toolbelt/internal/metrics"
	"github.com/harun/toolbelt/pkg/toolbelt"
)

// SessionFactory builds a fresh session per incoming request
type SessionFactory func() *toolbelt.Session

// Options configures the server
type Options struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

// SessionRequest is the body of POST /start-session
type SessionRequest struct {
	UserQuery string `json:"user_query"`
	SessionID string `json:"session_id,omitempty"`
}

// Server is the HTTP session API server
type Server struct {
	options      Options
	server       *http.Server
	sessions     SessionFactory
	metrics      *metrics.Metrics
	logger       zerolog.Logger
	inFlightReqs sync.WaitGroup
}

// NewServer creates a new server
func NewServer(options Options, sessions SessionFactory, m *metrics.Metrics, logger zerolog.Logger) (*Server, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session factory is required")
	}
	if options.Host == "" {
		options.Host = "127.0.0.1"
	}
	if options.Port == 0 {
		options.Port = 8000
	}
	if options.ShutdownTimeout == 0 {
		options.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		options:  options,
		sessions: sessions,
		metrics:  m,
		logger:   logger.With().Str("component", "server").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/start-session", s.handleStartSession)
	mux.HandleFunc("/healthz", s.handleHealth)
	if m != nil {
		mux.Handle("/metrics", m.Handler())
	}

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", options.Host, options.Port),
		Handler: mux,
	}
	return s, nil
}

// Start runs the server until the listener fails or Shutdown is called
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Session API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.options.ShutdownTimeout)
	defer cancel()
	err := s.server.Shutdown(shutdownCtx)
	s.inFlightReqs.Wait()
	return err
}

// handleStartSession streams session progress as server-sent events
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserQuery == "" {
		http.Error(w, "user_query is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	s.inFlightReqs.Add(1)
	defer s.inFlightReqs.Done()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	session := s.sessions()
	s.logger.Info().Str("session", session.ID()).Msg("Session started")

	events := make(chan toolbelt.Event, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		// Run closes the events channel; errors surface as failed events
		_, _ = session.Run(r.Context(), req.UserQuery, events)
	}()

	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			s.logger.Warn().Str("session", session.ID()).Err(err).Msg("Client went away")
			// keep draining so the session can finish unwinding
			go func() {
				for range events {
				}
			}()
			break
		}
		flusher.Flush()
	}
	<-done
	s.logger.Info().Str("session", session.ID()).Msg("Session stream closed")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
