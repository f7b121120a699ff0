package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/smishguard/explaind/internal/auth"
)

type contextKey string

const loggerKey contextKey = "logger"

// requestLogger returns the request-scoped logger, or the fallback. The
// logger carries the request id and verified caller subject as attributes.
func requestLogger(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if log, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return log
	}
	return fallback
}

// limiterRegistry hands out one rate limiter per authenticated caller
type limiterRegistry struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newLimiterRegistry(rps float64, burst int) *limiterRegistry {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &limiterRegistry{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (r *limiterRegistry) allow(subject string) bool {
	r.mu.Lock()
	limiter, ok := r.limiters[subject]
	if !ok {
		limiter = rate.NewLimiter(r.rps, r.burst)
		r.limiters[subject] = limiter
	}
	r.mu.Unlock()

	return limiter.Allow()
}

// withRequest wraps a handler with request id assignment, caller
// verification, and per-caller rate limiting. Every route except /health
// goes through it.
func (s *Server) withRequest(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		log := s.log.With("request_id", requestID, "path", r.URL.Path)

		token, err := auth.BearerToken(r)
		if err != nil {
			writeError(w, log, err)
			return
		}

		identity, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			writeError(w, log, err)
			return
		}
		log = log.With("subject", identity.Subject)

		if !s.limiters.allow(identity.Subject) {
			log.Warn("rate limit exceeded")
			writeJSON(w, http.StatusTooManyRequests, map[string]any{"detail": "rate limit exceeded"})
			return
		}

		ctx := context.WithValue(r.Context(), loggerKey, log)
		next(w, r.WithContext(ctx))
	}
}
