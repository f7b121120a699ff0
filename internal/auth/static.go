package auth

import (
	"context"
	"fmt"
)

// StaticVerifier accepts a fixed token-to-subject map. Intended for local
// development and tests; production deployments verify against the upstream
// identity service instead.
type StaticVerifier struct {
	tokens map[string]string
}

// NewStaticVerifier creates a verifier over a token -> subject map
func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	if tokens == nil {
		tokens = map[string]string{}
	}
	return &StaticVerifier{tokens: tokens}
}

// Verify checks the token against the static map
func (v *StaticVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	subject, ok := v.tokens[token]
	if !ok {
		return nil, fmt.Errorf("%w: unknown token", ErrUnauthorized)
	}
	return &Identity{Subject: subject}, nil
}
