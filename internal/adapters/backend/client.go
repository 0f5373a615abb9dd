// Package backend talks to the attendance backend: recognition, rosters,
// login and check-ins.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/kiosk/pkg/logger"
)

// Backend endpoints.
const (
	PathRecognize = "/api/v1/face-recognition/recognize-crop"
	PathEvents    = "/api/v1/events/"
	PathUsers     = "/api/v1/users/"
	PathLogin     = "/api/v1/auth/login"
	PathCheckIn   = "/api/v1/attendance/check-in"
)

const (
	defaultCallTimeout = 10 * time.Second
	maxErrorBodyLen    = 512
)

// Sentinel errors for backend calls.
var (
	ErrNoToken   = errors.New("backend: no access token")
	ErrStatus    = errors.New("backend: non-success status")
	ErrDecode    = errors.New("backend: malformed response")
	ErrTransport = errors.New("backend: request failed")
	ErrForbidden = errors.New("backend: role may not operate the kiosk camera")
)

// StatusError carries the HTTP status of a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: %d", ErrStatus, e.Code)
	}
	return fmt.Sprintf("%s: %d: %s", ErrStatus, e.Code, e.Body)
}

// Unwrap lets errors.Is match ErrStatus.
func (e *StatusError) Unwrap() error { return ErrStatus }

// TokenSource supplies the bearer token for authenticated requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed token.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrNoToken
	}
	return string(t), nil
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithCallTimeout bounds roster, login and check-in calls. Recognition calls
// are bounded only by the caller's context.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithThreshold sends a similarity threshold with each recognition request.
func WithThreshold(t float64) Option {
	return func(c *Client) {
		if t > 0 && t <= 1 {
			c.threshold = t
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// Client is an authenticated HTTP client for the attendance backend.
type Client struct {
	baseURL     string
	http        *http.Client
	tokens      TokenSource
	threshold   float64
	callTimeout time.Duration
	log         logger.Logger
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        &http.Client{},
		callTimeout: defaultCallTimeout,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string { return c.baseURL }

// do sends one request. When auth is true a bearer token is attached and a
// missing token fails the call before anything is sent. A 2xx body is decoded
// into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, auth bool, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	if auth {
		if c.tokens == nil {
			return ErrNoToken
		}
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}
		if tok == "" {
			return ErrNoToken
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrDecode, method, path, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return c.do(ctx, http.MethodGet, path, true, "", nil, out)
}

func (c *Client) postJSON(ctx context.Context, path string, auth bool, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return c.do(ctx, http.MethodPost, path, auth, "application/json", bytes.NewReader(payload), out)
}

// envelope is the backend's standard response wrapper.
type envelope[T any] struct {
	StatusCode int    `json:"statusCode,omitempty"`
	Message    string `json:"message,omitempty"`
	Data       T      `json:"data"`
}

// SetTokenSource replaces the token source. Call it during wiring, before the
// client is shared.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}
