package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/scarmonit-creator/LLM-sub005/internal/bridge"
	"github.com/scarmonit-creator/LLM-sub005/internal/metrics"
	"github.com/scarmonit-creator/LLM-sub005/pkg/wire"
)

// DefaultHistoryLimit applies to /history when no limit is given
const DefaultHistoryLimit = 50

// ServerOptions configures the control plane
type ServerOptions struct {
	Logger          zerolog.Logger
	AllowedOrigins  []string
	MaxMessageBytes int64
	// Listening addresses reported by / and /health
	WebSocketAddr string
	HTTPAddr      string
	// Checks are external dependencies probed by /health, keyed by name
	Checks map[string]Pinger
}

// Pinger is a dependency /health can probe
type Pinger interface {
	Ping(ctx context.Context) error
}

const healthCheckTimeout = 3 * time.Second

// Server is the request/response control plane over the bridge
type Server struct {
	bridge *bridge.Bridge
	router *chi.Mux
	logger zerolog.Logger
	opts   ServerOptions
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status    string           `json:"status"` // "ok" or "degraded"
	WebSocket string           `json:"websocket"`
	HTTP      string           `json:"http"`
	Checks    map[string]Check `json:"checks,omitempty"`
	Metrics   wire.Metrics     `json:"metrics"`
}

// Check is the outcome of probing one dependency
type Check struct {
	Status  string `json:"status"` // "pass" or "fail"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// AcceptedResponse is returned by POST /broadcast and /send
type AcceptedResponse struct {
	Status   string        `json:"status"`
	Envelope wire.Envelope `json:"envelope"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// NewServer creates the control plane router
func NewServer(b *bridge.Bridge, opts ServerOptions) *Server {
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = defaultMaxMessageBytes
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		bridge: b,
		router: chi.NewRouter(),
		logger: opts.Logger.With().Str("component", "http").Logger(),
		opts:   opts,
	}

	s.router.Use(metrics.Middleware)
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(chimw.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleRoot)
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/metrics", s.handleMetrics)
	s.router.Handle("/metrics/prometheus", promhttp.Handler())

	s.router.Get("/agents", s.handleAgents)
	s.router.Get("/agents/{id}", s.handleAgent)
	s.router.Delete("/agents/{id}", s.handleRemoveAgent)

	s.router.Get("/history", s.handleHistory)
	s.router.Get("/tasks", s.handleTasks)
	s.router.Post("/broadcast", s.handleBroadcast)
	s.router.Post("/send", s.handleSend)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":      "agent-bridge",
		"websocket": s.opts.WebSocketAddr,
		"endpoints": []string{
			"GET /health",
			"GET /metrics",
			"GET /metrics/prometheus",
			"GET /agents",
			"GET /agents/{id}",
			"DELETE /agents/{id}",
			"GET /history",
			"GET /tasks",
			"POST /broadcast",
			"POST /send",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	m, err := s.bridge.Metrics(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := HealthResponse{
		Status:    "ok",
		WebSocket: s.opts.WebSocketAddr,
		HTTP:      s.opts.HTTPAddr,
		Metrics:   m,
	}
	status := http.StatusOK

	if len(s.opts.Checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		resp.Checks = make(map[string]Check, len(s.opts.Checks))
		for name, p := range s.opts.Checks {
			start := time.Now()
			if err := p.Ping(ctx); err != nil {
				s.logger.Warn().Err(err).Str("check", name).Msg("health check failed")
				resp.Checks[name] = Check{Status: "fail", Message: "connection failed"}
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = Check{Status: "pass", Latency: time.Since(start).String()}
		}
	}

	writeJSON(w, status, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.bridge.Metrics(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.bridge.ListClients(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": agents})
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.bridge.Client(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"agent": agent})
}

func (s *Server) handleRemoveAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	removed, err := s.bridge.Unregister(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !removed {
		s.writeError(w, bridge.ErrNotFound("client "+id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed", "id": id})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := wire.HistoryQuery{
		Limit:   DefaultHistoryLimit,
		AgentID: r.URL.Query().Get("agentId"),
		TaskID:  r.URL.Query().Get("taskId"),
		Intent:  r.URL.Query().Get("intent"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			s.writeError(w, bridge.ErrMalformedMessage(fmt.Errorf("limit must be a positive integer, got %q", raw)))
			return
		}
		q.Limit = limit
	}

	history, err := s.bridge.History(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": history})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.bridge.Tasks(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	env, err := s.decodeEnvelope(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	env.To = ""
	s.accept(r.Context(), w, env)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	env, err := s.decodeEnvelope(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if env.To == "" {
		s.writeError(w, bridge.ErrRecipientRequired())
		return
	}
	s.accept(r.Context(), w, env)
}

func (s *Server) accept(ctx context.Context, w http.ResponseWriter, env wire.Envelope) {
	accepted, err := s.bridge.Accept(ctx, env, bridge.DefaultAcceptOptions())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Status: "queued", Envelope: accepted})
}

func (s *Server) decodeEnvelope(w http.ResponseWriter, r *http.Request) (wire.Envelope, error) {
	var env wire.Envelope
	body := http.MaxBytesReader(w, r.Body, s.opts.MaxMessageBytes)
	if err := json.NewDecoder(body).Decode(&env); err != nil {
		return wire.Envelope{}, bridge.ErrMalformedMessage(fmt.Errorf("invalid envelope body: %w", err))
	}
	return env, nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var be *bridge.Error
	if errors.As(err, &be) {
		writeJSON(w, be.Status, ErrorResponse{Error: be.Message, Code: be.Code})
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		return
	}
	s.logger.Error().Err(err).Msg("request failed")
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// requestLogger logs one line per request with zerolog
func requestLogger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Dur("latency", time.Since(start)).
					Str("request_id", chimw.GetReqID(r.Context())).
					Str("remote_addr", r.RemoteAddr).
					Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
