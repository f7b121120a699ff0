package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Caller identity is established upstream; this package only verifies that a
// presented bearer token is one the upstream issued. The identity itself is
// opaque to the rest of the service.

// ErrUnauthorized is returned for any token the verifier rejects
var ErrUnauthorized = errors.New("unauthorized")

// Identity is the verified caller
type Identity struct {
	// Subject is an opaque stable caller identifier
	Subject string
}

// Verifier checks bearer tokens
type Verifier interface {
	// Verify validates a token and returns the caller identity.
	// Returns ErrUnauthorized (possibly wrapped) for rejected tokens.
	Verify(ctx context.Context, token string) (*Identity, error)
}

// BearerToken extracts the bearer token from a request's Authorization
// header. Each failure mode gets its own message so callers can tell a
// missing header from a malformed one.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("%w: missing authorization header", ErrUnauthorized)
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", fmt.Errorf("%w: invalid authorization scheme", ErrUnauthorized)
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}

	return token, nil
}
