// ABOUTME: Shared HTTP client with DNS caching, size limits, and host breakers
// ABOUTME: Used by both the version resolver and the artifact fetcher

package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/dnscache"

	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/resilience"
)

// ClientConfig holds configuration for the HTTP client.
type ClientConfig struct {
	// Timeout for a whole request including the body.
	Timeout time.Duration

	// UserAgent for HTTP requests.
	UserAgent string

	// MaxSize limits the response body in bytes (0 = unlimited).
	MaxSize int64
}

// DefaultClientConfig returns sensible default configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:   5 * time.Minute,
		UserAgent: "pkgaudit/1.0",
		MaxSize:   500 * 1024 * 1024,
	}
}

// Response is a completed 2xx GET.
type Response struct {
	Body       []byte
	StatusCode int

	// FinalURL is the URL after redirects.
	FinalURL string
}

// Getter performs GET requests.
type Getter interface {
	Get(ctx context.Context, rawURL string) (*Response, error)
}

// Client performs GET requests through per-host circuit breakers.
type Client struct {
	http     *http.Client
	config   ClientConfig
	breakers *resilience.HostBreakers

	stopOnce sync.Once
	stop     chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the DNS-caching client, e.g. for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithBreakers sets the circuit breaker registry.
func WithBreakers(b *resilience.HostBreakers) Option {
	return func(cl *Client) {
		cl.breakers = b
	}
}

// NewClient creates a Client. Call Close to stop the DNS refresh loop.
func NewClient(cfg ClientConfig, opts ...Option) *Client {
	c := &Client{
		config: cfg,
		stop:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breakers == nil {
		c.breakers = resilience.NewHostBreakers(resilience.Config{})
	}
	if c.http == nil {
		c.http = c.newCachingHTTPClient()
	}
	return c
}

// newCachingHTTPClient builds a client whose dialer resolves through a
// dnscache.Resolver refreshed every five minutes.
func (c *Client) newCachingHTTPClient() *http.Client {
	resolver := &dnscache.Resolver{}
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				resolver.Refresh(true)
			case <-c.stop:
				return
			}
		}
	}()

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	return &http.Client{
		Timeout: c.config.Timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				host, port, err := net.SplitHostPort(addr)
				if err != nil {
					return nil, err
				}
				ips, err := resolver.LookupHost(ctx, host)
				if err != nil {
					return nil, err
				}
				for _, ip := range ips {
					conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
					if err == nil {
						return conn, nil
					}
				}
				return nil, fmt.Errorf("failed to dial any resolved IP for %s", host)
			},
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// Breakers returns the circuit breaker registry.
func (c *Client) Breakers() *resilience.HostBreakers {
	return c.breakers
}

// Close stops background DNS refresh.
func (c *Client) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Get fetches rawURL. Non-2xx answers return a *StatusError; only
// transport errors and 5xx answers count against the host breaker.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	var resp *Response
	err := c.breakers.Execute(ctx, rawURL, func(ctx context.Context) error {
		r, err := c.do(ctx, rawURL)
		if err != nil {
			return err
		}
		resp = r
		if r.StatusCode >= http.StatusInternalServerError {
			return &StatusError{URL: rawURL, StatusCode: r.StatusCode}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	out := &Response{
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return out, nil
	}

	var reader io.Reader = resp.Body
	if c.config.MaxSize > 0 {
		reader = io.LimitReader(resp.Body, c.config.MaxSize+1)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if c.config.MaxSize > 0 && int64(len(body)) > c.config.MaxSize {
		return nil, fmt.Errorf("%s: %w (%d bytes)", rawURL, ErrResponseTooLarge, c.config.MaxSize)
	}

	out.Body = body
	return out, nil
}
