package gitlabapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// TokenAuthConfig configures private-token authentication.
type TokenAuthConfig struct {
	Token         string
	Timeout       time.Duration
	BaseTransport http.RoundTripper
}

// TokenTransport adds the PRIVATE-TOKEN header to every request.
type TokenTransport struct {
	Token string
	Base  http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *TokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	cloned := req.Clone(req.Context())
	cloned.Header.Set("PRIVATE-TOKEN", t.Token)
	if cloned.Header.Get("Accept") == "" {
		cloned.Header.Set("Accept", "application/json")
	}
	return base.RoundTrip(cloned)
}

// NewTokenHTTPClient creates an authenticated HTTP client for the GitLab API.
func NewTokenHTTPClient(cfg TokenAuthConfig) (*http.Client, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("gitlab token is required")
	}

	return &http.Client{
		Transport: &TokenTransport{
			Token: token,
			Base:  cfg.BaseTransport,
		},
		Timeout: cfg.Timeout,
	}, nil
}
