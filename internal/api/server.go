package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"voiceassistant/internal/dispatch"
	"voiceassistant/internal/relay"

	"go.uber.org/zap"
)

// StatusResponse is the JSON body of /api/status.
type StatusResponse struct {
	Robot     string         `json:"robot"`
	State     string         `json:"state"`
	Turns     int64          `json:"turns"`
	Busy      bool           `json:"busy"`
	Plugins   []string       `json:"plugins"`
	Dispatch  dispatch.Stats `json:"dispatch"`
	Speech    SpeechStatus   `json:"speech"`
	Relay     *relay.Stats   `json:"relay,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	Uptime    string         `json:"uptime"`
}

// SpeechStatus describes the speech-output sink.
type SpeechStatus struct {
	Speaking bool  `json:"speaking"`
	Queued   int   `json:"queued"`
	Spoken   int64 `json:"spoken"`
}

// StatusProvider reports the live state of the assistant.
type StatusProvider interface {
	Status() StatusResponse
}

// StatusFunc adapts a function to the StatusProvider interface.
type StatusFunc func() StatusResponse

// Status calls f.
func (f StatusFunc) Status() StatusResponse { return f() }

// Server provides HTTP API endpoints for the assistant
type Server struct {
	status StatusProvider
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a new API server
func NewServer(status StatusProvider, logger *zap.Logger, port int) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		status: status,
		logger: logger.Named("api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/status", s.handleGetStatus)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// handleGetStatus returns the loop state, plugins and counters as JSON
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := s.status.Status()
	if response.Plugins == nil {
		response.Plugins = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.logger.Debug("Status request served",
		zap.String("remote_addr", r.RemoteAddr))
}

// handleHealth returns a simple health check response
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// Endpoint describes one route of the status server.
type Endpoint struct {
	Path        string `json:"path"`
	Description string `json:"description"`
}

// IndexResponse is the JSON body of /.
type IndexResponse struct {
	Robot     string     `json:"robot"`
	Endpoints []Endpoint `json:"endpoints"`
}

var endpoints = []Endpoint{
	{Path: "/api/status", Description: "conversation state, plugins, dispatch and relay counters"},
	{Path: "/health", Description: "liveness check"},
}

// handleIndex names the robot and lists the read-only routes.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(IndexResponse{
		Robot:     s.status.Status().Robot,
		Endpoints: endpoints,
	}); err != nil {
		s.logger.Error("Failed to encode index", zap.Error(err))
	}
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
