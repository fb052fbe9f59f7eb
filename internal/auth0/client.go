// Package auth0 reads rider profiles from the tenant's /userinfo endpoint.
package auth0

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrProfileUnavailable = errors.New("auth0 profile unavailable")
	ErrTokenRejected      = fmt.Errorf("%w: access token rejected", ErrProfileUnavailable)
)

var tracer = otel.Tracer("github.com/semanticallynull/rental-backend/internal/auth0")

type Profile struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Nickname      string `json:"nickname"`
	PhoneNumber   string `json:"phone_number"`
}

// DisplayName prefers the full name and falls back to the nickname.
func (p *Profile) DisplayName() string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return strings.TrimSpace(p.Nickname)
}

type Client interface {
	Profile(ctx context.Context, accessToken string) (*Profile, error)
}

type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPClient(domain string) *HTTPClient {
	return &HTTPClient{
		baseURL:    "https://" + strings.TrimSuffix(domain, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// WithBaseURL points the client somewhere other than the tenant domain.
func (c *HTTPClient) WithBaseURL(u string) *HTTPClient {
	c.baseURL = strings.TrimSuffix(u, "/")
	return c
}

func (c *HTTPClient) Profile(ctx context.Context, accessToken string) (*Profile, error) {
	ctx, span := tracer.Start(ctx, "auth0.Profile")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/userinfo", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProfileUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProfileUnavailable, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrTokenRejected
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrProfileUnavailable, resp.StatusCode)
	}

	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrProfileUnavailable, err)
	}
	if p.Subject == "" {
		return nil, fmt.Errorf("%w: response has no subject", ErrProfileUnavailable)
	}
	return &p, nil
}
