// Package fetch wraps an HTTP client with bearer-credential attachment
// and a one-shot refresh-and-retry on 401. Every bearer-authenticated
// authority call goes through it; it is tenant-agnostic.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rundeklar/go-auth-client/token/store"
)

// Refresher is the slice of the refresh coordinator the client needs.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Client issues authenticated requests. On a 401 it refreshes through
// the coordinator's single-flight and re-issues the request exactly once
// with the new credential; a second 401 is returned to the caller as-is.
type Client struct {
	store      store.Store
	refresher  Refresher
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets the client logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// New creates an authenticated client over the given store and refresher,
// resolving request paths against baseURL.
func New(tokenStore store.Store, refresher Refresher, baseURL string, options ...Option) *Client {
	c := &Client{
		store:      tokenStore,
		refresher:  refresher,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		log:        zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// BaseURL returns the authority root the client resolves paths against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do issues req with the current access credential attached. Retried at
// most once per call, and only after a successful refresh. req must have
// GetBody set when it carries a body (requests built from byte readers
// do).
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if access := c.store.GetAccess(); access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	if err := c.refresher.Refresh(req.Context()); err != nil {
		c.log.Debug().Err(err).Str("path", req.URL.Path).Msg("refresh after 401 failed")
		return resp, nil
	}

	// The caller may have abandoned the call while the refresh was in
	// flight; the credential mutation stands but the re-issue does not.
	if req.Context().Err() != nil {
		return resp, nil
	}

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return resp, nil
		}
		retry.Body = body
	}
	if access := c.store.GetAccess(); access != "" {
		retry.Header.Set("Authorization", "Bearer "+access)
	}

	resp.Body.Close()
	c.log.Debug().Str("path", req.URL.Path).Msg("re-issuing request after refresh")
	return c.httpClient.Do(retry)
}

// DoJSON builds and issues an authenticated JSON request against a path
// relative to the authority base URL. A nil body sends no payload.
func (c *Client) DoJSON(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.Do(req)
}
