// Package resolver drives a third-party resolver service that turns a
// short-form video page reference into download candidates.
//
// One resolution attempt runs inside a Session: AcquireToken fetches the
// landing page for the primary token, Dispatch submits the reference,
// Classify turns the returned fragment into a domain.ResolutionResult and,
// when an HD asset is on offer, Escalate performs the second exchange.
// Every resolver-specific detail lives in a Flavor.
package resolver

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultTimeout = 30 * time.Second

	// maxPayloadBytes caps how much of a resolver response is buffered.
	maxPayloadBytes = 8 << 20
)

// Config configures a resolver Client.
type Config struct {
	Flavor    Flavor
	Timeout   time.Duration
	UserAgent string
	// Transport is shared by all sessions. Nil uses a tuned clone of http.DefaultTransport.
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// Client issues requests against one resolver flavor.
type Client struct {
	flavor    Flavor
	timeout   time.Duration
	userAgent string
	transport http.RoundTripper
	logger    *slog.Logger
}

// NewClient creates a resolver client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Transport == nil {
		cfg.Transport = newTransport(cfg.Timeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		flavor:    cfg.Flavor,
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		transport: cfg.Transport,
		logger:    cfg.Logger.With("flavor", cfg.Flavor.Name),
	}
}

func newTransport(headerTimeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConnsPerHost = 10
	t.IdleConnTimeout = 30 * time.Second
	t.ResponseHeaderTimeout = headerTimeout
	return t
}

// Flavor returns the flavor this client speaks.
func (c *Client) Flavor() Flavor {
	return c.flavor
}

// NewSession creates a fresh session for one media reference.
func (c *Client) NewSession() (*Session, error) {
	headers := make(http.Header)
	if c.userAgent != "" {
		headers.Set("User-Agent", c.userAgent)
	}
	headers.Set("Accept", "*/*")
	headers.Set("Accept-Language", "en-US,en;q=0.9")
	return newSession(c.transport, headers)
}

// applyFlavorHeaders replays the flavor's fixed header set verbatim.
// Keys are assigned directly so their casing reaches the wire unchanged.
func (c *Client) applyFlavorHeaders(req *http.Request) {
	for k, v := range c.flavor.expandHeaders() {
		req.Header.Del(k)
		req.Header[k] = []string{v}
	}
}

// withTimeout bounds one resolver exchange.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

func readPayload(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxPayloadBytes))
}
