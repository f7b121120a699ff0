package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// RemoteVerifier verifies tokens against the upstream identity service.
// Verified tokens are memoized for a bounded TTL so every streamed request
// does not cost a verification round trip; rejections are never cached.
type RemoteVerifier struct {
	endpoint   string
	httpClient *http.Client
	cache      *gocache.Cache
	ttl        time.Duration
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	Subject string `json:"subject"`
}

// NewRemoteVerifier creates a verifier calling the given endpoint
func NewRemoteVerifier(endpoint string, ttl time.Duration) (*RemoteVerifier, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("verification endpoint is required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &RemoteVerifier{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache: gocache.New(ttl, 2*ttl),
		ttl:   ttl,
	}, nil
}

// Verify validates a token, consulting the cache first
func (v *RemoteVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if cached, found := v.cache.Get(token); found {
		identity := cached.(Identity)
		return &identity, nil
	}

	body, err := json.Marshal(verifyRequest{Token: token})
	if err != nil {
		return nil, fmt.Errorf("marshal verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: token rejected (status %d)", ErrUnauthorized, resp.StatusCode)
	}

	var decoded verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	if decoded.Subject == "" {
		return nil, fmt.Errorf("%w: verifier returned no subject", ErrUnauthorized)
	}

	identity := Identity{Subject: decoded.Subject}
	v.cache.Set(token, identity, v.ttl)

	return &identity, nil
}
