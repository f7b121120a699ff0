package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/smishguard/explaind/internal/auth"
	"github.com/smishguard/explaind/internal/explain"
	"github.com/smishguard/explaind/internal/model"
	"github.com/smishguard/explaind/internal/prompt"
	"github.com/smishguard/explaind/internal/store"
)

// Server exposes the explanation service over HTTP with streamed responses
type Server struct {
	svc      *explain.Service
	gateway  store.Gateway
	verifier auth.Verifier
	limiters *limiterRegistry
	log      *slog.Logger
}

// New creates a server over the given collaborators
func New(svc *explain.Service, gateway store.Gateway, verifier auth.Verifier, cfg model.ServerConfig, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		svc:      svc,
		gateway:  gateway,
		verifier: verifier,
		limiters: newLimiterRegistry(cfg.RateRPS, cfg.RateBurst),
		log:      log,
	}
}

// Handler returns the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /debug/db", s.withRequest(s.handleDebugDB))
	mux.HandleFunc("GET /debug/result/{id}", s.withRequest(s.handleDebugResult))

	mux.HandleFunc("POST /v1/explain/{id}/stream", s.withRequest(s.handleExplainResult))
	mux.HandleFunc("POST /v1/explain/stream", s.withRequest(s.handleExplainResults))
	mux.HandleFunc("POST /v1/message/explain/stream", s.withRequest(s.handleExplainMessage))
	mux.HandleFunc("POST /v1/message/links/explain/stream", s.withRequest(s.handleExplainMessageLinks))

	return mux
}

type explainStreamRequest struct {
	Message string `json:"message"`
}

type explainBatchRequest struct {
	ResultIDs []string `json:"result_ids"`
	Message   string   `json:"message"`
}

type messageSafetyRequest struct {
	Message            string `json:"message"`
	SafeBrowsingResult string `json:"safe_browsing_result"`
}

type messageLinksRequest struct {
	Message string               `json:"message"`
	Links   []prompt.LinkVerdict `json:"links"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleDebugDB(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r.Context(), s.log)
	if err := s.gateway.Ping(r.Context()); err != nil {
		log.Error("db ping failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": "DB connection failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleDebugResult(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r.Context(), s.log)

	rec, err := s.gateway.GetRecord(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"detail": "result_id not found"})
			return
		}
		log.Error("record fetch failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"detail": "store unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"result_id": rec.ResultID,
		"status":    rec.Status,
		"details":   rec.Details,
	})
}

func (s *Server) handleExplainResult(w http.ResponseWriter, r *http.Request) {
	var body explainStreamRequest
	if !decodeBody(w, r, &body) {
		return
	}

	id := r.PathValue("id")
	s.stream(w, r, func(emit explain.EmitFunc) error {
		return s.svc.ExplainResult(r.Context(), id, body.Message, emit)
	})
}

func (s *Server) handleExplainResults(w http.ResponseWriter, r *http.Request) {
	var body explainBatchRequest
	if !decodeBody(w, r, &body) {
		return
	}

	s.stream(w, r, func(emit explain.EmitFunc) error {
		return s.svc.ExplainResults(r.Context(), body.ResultIDs, body.Message, emit)
	})
}

func (s *Server) handleExplainMessage(w http.ResponseWriter, r *http.Request) {
	var body messageSafetyRequest
	if !decodeBody(w, r, &body) {
		return
	}

	s.stream(w, r, func(emit explain.EmitFunc) error {
		return s.svc.ExplainMessage(r.Context(), body.Message, body.SafeBrowsingResult, emit)
	})
}

func (s *Server) handleExplainMessageLinks(w http.ResponseWriter, r *http.Request) {
	var body messageLinksRequest
	if !decodeBody(w, r, &body) {
		return
	}

	s.stream(w, r, func(emit explain.EmitFunc) error {
		return s.svc.ExplainMessageLinks(r.Context(), body.Message, body.Links, emit)
	})
}

// stream runs one explanation flow over a lazily opened SSE stream. Errors
// before the first event become plain HTTP errors; errors after it end the
// stream abnormally, without a done event.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, run func(explain.EmitFunc) error) {
	log := requestLogger(r.Context(), s.log)
	stream := newSSEStream(w)

	err := run(func(ev explain.Event) error {
		return stream.send(ev.Name, ev.Data)
	})
	if err == nil {
		return
	}

	if !stream.Started() {
		writeError(w, log, err)
		return
	}
	log.Warn("stream ended abnormally", "error", err)
}

// decodeBody decodes a JSON request body, tolerating an empty body.
// Returns false after writing the error response.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		return true
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "invalid request body"})
	return false
}

// writeError maps the request error taxonomy to HTTP status codes
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	var status int
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, explain.ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, explain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, explain.ErrUnavailable):
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}

	if status >= 500 {
		log.Error("request failed", "status", status, "error", err)
	} else {
		log.Info("request rejected", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]any{"detail": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
