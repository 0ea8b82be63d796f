// Package server exposes the turn pipeline over WebSocket. Each connection is
// a sequential request/response stream: the client sends one JSON turn
// request, the server answers with the resolved decision for that turn.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/nmoralez/rudder/internal/session"
)

const (
	// TurnEndpoint is the path for WebSocket turn connections.
	TurnEndpoint = "/turns"

	// HealthEndpoint is the path for health checks.
	HealthEndpoint = "/health"

	// WriteWait is the timeout for writing to a WebSocket.
	WriteWait = 10 * time.Second

	// MaxMessageSize is the maximum request frame size allowed.
	MaxMessageSize = 16 * 1024
)

// TurnRequest is one inbound frame. An empty session_id starts a new session;
// the assigned id comes back in the response and in every later frame.
type TurnRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// TurnError is the error frame sent when a turn cannot be processed.
type TurnError struct {
	Error string `json:"error"`
}

// Server serves the turn endpoint for one session manager.
type Server struct {
	manager  *session.Manager
	addr     string
	upgrader websocket.Upgrader
	server   *http.Server
	log      zerolog.Logger

	mu      sync.Mutex
	running bool
}

// New builds a server listening on addr.
func New(manager *session.Manager, addr string, log zerolog.Logger) *Server {
	return &Server{
		manager: manager,
		addr:    addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from any origin for development
				// In production, restrict this to specific origins
				return true
			},
		},
		log: log.With().Str("component", "server").Logger(),
	}
}

// Start begins serving. It returns once the listener is handed off; errors
// after startup are logged, not returned.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc(TurnEndpoint, s.handleTurns)
	mux.HandleFunc(HealthEndpoint, s.handleHealth)

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	go func() {
		s.log.Info().Str("addr", s.addr).Msg("listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("server error")
		}
	}()

	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	return nil
}

// handleTurns upgrades the connection and processes turn frames until the
// client disconnects.
func (s *Server) handleTurns(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(MaxMessageSize)
	ctx := r.Context()

	for {
		var req TurnRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		if req.Message == "" {
			if err := s.writeJSON(conn, TurnError{Error: "message must not be empty"}); err != nil {
				return
			}
			continue
		}

		result, err := s.manager.ProcessTurn(ctx, req.SessionID, req.Message)
		if err != nil {
			s.log.Error().Err(err).Str("session_id", req.SessionID).Msg("turn failed")
			if err := s.writeJSON(conn, TurnError{Error: err.Error()}); err != nil {
				return
			}
			continue
		}

		if err := s.writeJSON(conn, result); err != nil {
			s.log.Warn().Err(err).Msg("websocket write error")
			return
		}
	}
}

func (s *Server) writeJSON(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(WriteWait))
	return conn.WriteJSON(v)
}

// handleHealth responds to health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := struct {
		Status   string `json:"status"`
		Service  string `json:"service"`
		Sessions int    `json:"sessions"`
	}{
		Status:   "healthy",
		Service:  "rudder",
		Sessions: s.manager.Count(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}
