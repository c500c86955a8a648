// Package provider is a client for the hosted backend that owns
// authentication, record storage and object storage. It speaks the
// Supabase-compatible REST surface: GoTrue under /auth/v1, PostgREST under
// /rest/v1, storage under /storage/v1 and edge functions under /functions/v1.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const maxErrorBodyBytes = 64 << 10

// Client holds the connection settings shared by every per-browser auth client
// and table/storage handle.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	now     func() time.Time
}

// Option configures the Client during construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for provider calls. Its
// transport is wrapped, not replaced.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithClock overrides the time source used for session expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New constructs a Client for the project at baseURL authenticated with the
// public (anon) API key.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the project URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// anonTokens authenticates requests made without a user session.
func (c *Client) anonTokens() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.apiKey, TokenType: "Bearer"})
}

// httpClient returns a client that adds the apikey header and the bearer
// token from tokens to every request.
func (c *Client) httpClient(tokens oauth2.TokenSource) *http.Client {
	base := c.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	if tokens == nil {
		tokens = c.anonTokens()
	}
	return &http.Client{
		Timeout:   c.http.Timeout,
		Transport: &oauth2.Transport{Source: tokens, Base: apiKeyTransport{key: c.apiKey, base: base}},
	}
}

type apiKeyTransport struct {
	key  string
	base http.RoundTripper
}

func (t apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("apikey", t.key)
	if clone.Header.Get("X-Client-Info") == "" {
		clone.Header.Set("X-Client-Info", "eventhub-go")
	}
	return t.base.RoundTrip(clone)
}

type request struct {
	method  string
	path    string
	query   url.Values
	header  http.Header
	body    any
	raw     io.Reader
	tokens  oauth2.TokenSource
	expects []int
}

// do performs req and decodes a JSON response into out when out is non-nil.
// Non-2xx responses become *Error.
func (c *Client) do(ctx context.Context, req request, out any) error {
	endpoint := c.baseURL + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}

	var body io.Reader
	switch {
	case req.raw != nil:
		body = req.raw
	case req.body != nil:
		payload, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("provider: encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, body)
	if err != nil {
		return fmt.Errorf("provider: build request: %w", err)
	}
	for key, values := range req.header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if req.body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient(req.tokens).Do(httpReq)
	if err != nil {
		return fmt.Errorf("provider: %s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("provider: decode %s response: %w", req.path, err)
	}
	return nil
}
