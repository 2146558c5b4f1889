// ABOUTME: HTTP client for the widget backend: config, chat, sessions, forms, auth, events
// ABOUTME: JSON over HTTP with typed status errors and a streamed chat response

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389/glance-widget/internal/widgetcfg"
)

// Endpoint paths, relative to the client base URL.
const (
	PathConfig       = "/api/widget/%s/config"
	PathChat         = "/api/widget-chat"
	PathChatSessions = "/api/widget-chat-sessions"
	PathUploadURL    = "/api/forms/upload-url"
	PathSubmitForm   = "/api/forms/submit"
	PathSendCode     = "/api/widget-auth/send-code"
	PathVerifyCode   = "/api/widget-auth/verify-code"
	PathVerifySess   = "/api/widget-auth/verify-session"
	PathGoogle       = "/api/widget-auth/google"
	PathEvents       = "/api/widget-events"
)

// maxErrorBody bounds how much of a failed response is kept for diagnostics.
const maxErrorBody = 4 << 10

// Errors
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Is maps well-known status codes onto sentinel errors.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	}
	return false
}

// IsAbort reports whether err came from a deliberate cancellation.
func IsAbort(err error) bool {
	return errors.Is(err, context.Canceled)
}

// Client talks to the widget backend.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds non-streaming requests. Streams are bounded only by
// their context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{},
		timeout: 30 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "api")
	return c, nil
}

// URL resolves path (which may carry a query) against the base URL.
func (c *Client) URL(path string) string {
	return c.baseURL.String() + path
}

// FetchConfig loads, normalizes, and validates a widget configuration.
func (c *Client) FetchConfig(ctx context.Context, widgetID string) (*widgetcfg.WidgetConfig, error) {
	if widgetID == "" {
		return nil, widgetcfg.ErrMissingID
	}
	var cfg widgetcfg.WidgetConfig
	path := fmt.Sprintf(PathConfig, url.PathEscape(widgetID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &cfg); err != nil {
		return nil, fmt.Errorf("fetching widget config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("fetching widget config: %w", err)
	}
	return &cfg, nil
}

// GoogleAuthURL is the popup entry point for provider sign-in.
func (c *Client) GoogleAuthURL(workspaceID string) string {
	return c.URL(PathGoogle + "?" + url.Values{"workspace_id": {workspaceID}}.Encode())
}

// EventsURL is the analytics beacon target.
func (c *Client) EventsURL() string {
	return c.URL(PathEvents)
}

// ProxyURL returns the same-origin proxy URL for a third-party embed.
// kind is "tally" or "spotify".
func (c *Client) ProxyURL(kind, target string) string {
	return c.URL("/" + kind + "-proxy?" + url.Values{"url": {target}}.Encode())
}

// doJSON sends in as JSON (when non-nil) and decodes the response into out
// (when non-nil). headers may be nil.
func (c *Client) doJSON(ctx context.Context, method, path string, headers http.Header, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
}

func bearer(token string) http.Header {
	if token == "" {
		return nil
	}
	return http.Header{"Authorization": {"Bearer " + token}}
}
