// Package server exposes the chat adapter over a small JSON API for
// front ends that collect the form values themselves.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"soonpsy/internal/adapter"
	"soonpsy/internal/companion"
)

// Sender is the part of *adapter.Adapter the server needs.
type Sender interface {
	Send(ctx context.Context, chatCtx *companion.Context, userMessage string, cfg adapter.ProviderConfig) adapter.Result
}

type Config struct {
	Adapter     Sender
	Provider    adapter.ProviderConfig
	Logger      zerolog.Logger
	HealthPath  string
	MetricsPath string
	// MetricsHandler defaults to promhttp.Handler().
	MetricsHandler http.Handler
}

type Server struct {
	adapter  Sender
	provider adapter.ProviderConfig
	logger   zerolog.Logger
	router   chi.Router
}

func New(cfg Config) *Server {
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/healthz"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.MetricsHandler == nil {
		cfg.MetricsHandler = promhttp.Handler()
	}
	s := &Server{
		adapter:  cfg.Adapter,
		provider: cfg.Provider,
		logger:   cfg.Logger,
	}
	s.router = s.buildRouter(cfg)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter(cfg Config) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/v1/chat", s.handleChat)
	r.Get(cfg.HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, cfg.MetricsPath, cfg.MetricsHandler)
	return r
}

type chatRequest struct {
	Message   string  `json:"message"`
	Mood      string  `json:"mood"`
	RestHours float64 `json:"rest_hours"`
	Gratitude string  `json:"gratitude"`
}

type chatReply struct {
	Reply string `json:"reply"`
}

type errorReply struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorReply{Error: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorReply{Error: "message is required"})
		return
	}

	res := s.adapter.Send(r.Context(), &companion.Context{
		Mood:      req.Mood,
		RestHours: req.RestHours,
		Gratitude: req.Gratitude,
	}, req.Message, s.provider)
	if res.OK() {
		writeJSON(w, http.StatusOK, chatReply{Reply: res.Text})
		return
	}

	s.logger.Warn().
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("kind", string(res.Failure.Kind)).
		Msg("chat request failed")

	status := http.StatusBadGateway
	if res.Failure.Kind == adapter.KindConfigError {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorReply{Error: res.Failure.Message, Kind: string(res.Failure.Kind)})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
