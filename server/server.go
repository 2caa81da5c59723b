// Package server exposes the conversation agent over HTTP: one process
// endpoint mirroring the agent's response envelope, plus a liveness probe.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/hestia-agent/hestia/agent"
)

// Config holds HTTP server settings.
type Config struct {
	Addr         string
	Language     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns the default server settings. WriteTimeout leaves
// headroom for a full tool-calling loop of backend round trips.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:         addr,
		Language:     "en",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
}

// Server wraps the HTTP front end around an agent.
type Server struct {
	agent    *agent.Agent
	http     *http.Server
	language string
	log      zerolog.Logger
}

// New creates the server and its routes.
func New(a *agent.Agent, cfg Config, log zerolog.Logger) *Server {
	s := &Server{
		agent:    a,
		language: cfg.Language,
		log:      log.With().Str("component", "server").Logger(),
	}
	if s.language == "" {
		s.language = "en"
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/api/conversation/process", s.handleProcess)
	r.Get("/health", s.handleHealth)

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Start blocks serving requests until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("starting HTTP server")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.http.Shutdown(ctx)
}

type processRequest struct {
	Text           string `json:"text"`
	ConversationID string `json:"conversation_id"`
}

// Response envelope in the host platform's conversation-result shape.

type speechPlain struct {
	Speech    string      `json:"speech"`
	ExtraData interface{} `json:"extra_data"`
}

type speech struct {
	Plain speechPlain `json:"plain"`
}

type responseBody struct {
	Speech       speech                 `json:"speech"`
	Card         map[string]interface{} `json:"card"`
	Language     string                 `json:"language"`
	ResponseType string                 `json:"response_type"`
	Data         map[string]interface{} `json:"data"`
}

type processResponse struct {
	Response       responseBody `json:"response"`
	ConversationID string       `json:"conversation_id"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no text provided"})
		return
	}

	result := s.agent.Process(r.Context(), req.Text, req.ConversationID)

	responseType := "action_done"
	data := map[string]interface{}{
		"targets": []interface{}{},
		"success": []interface{}{},
		"failed":  []interface{}{},
	}
	if result.IsError {
		responseType = "error"
		data = map[string]interface{}{"code": "agent_error"}
	}

	writeJSON(w, http.StatusOK, processResponse{
		Response: responseBody{
			Speech:       speech{Plain: speechPlain{Speech: result.Text}},
			Card:         map[string]interface{}{},
			Language:     s.language,
			ResponseType: responseType,
			Data:         data,
		},
		ConversationID: result.ConversationID,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
