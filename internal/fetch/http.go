package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vk/gridcrawl/internal/ctxlog"
	"github.com/vk/gridcrawl/internal/task"
	"golang.org/x/time/rate"
)

// DefaultMaxBodyBytes caps how much of a response body is read.
const DefaultMaxBodyBytes int64 = 10 << 20

var (
	// ErrStatus is wrapped by failures caused by a 4xx or 5xx response.
	ErrStatus = errors.New("fetch: unexpected HTTP status")
	// ErrBodyTooLarge is returned when a response exceeds MaxBodyBytes.
	ErrBodyTooLarge = errors.New("fetch: response body too large")
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	// Timeout bounds each request, including reading the body. Zero means no timeout.
	Timeout time.Duration
	// RateLimit is the sustained number of requests per second across all
	// workers. Zero disables throttling.
	RateLimit float64
	// Burst is the number of requests allowed to exceed RateLimit at once.
	Burst int
	// MaxBodyBytes caps the response body. Zero selects DefaultMaxBodyBytes.
	MaxBodyBytes int64
	// UserAgent is sent with every request when non-empty.
	UserAgent string
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool
}

// HTTP fetches each key as a URL with a GET request and returns the body.
type HTTP struct {
	client    *http.Client
	limiter   *rate.Limiter
	maxBody   int64
	userAgent string
}

// NewHTTP builds an HTTP fetcher with its own client and connection pool.
func NewHTTP(opts HTTPOptions) (*HTTP, error) {
	if opts.Timeout < 0 {
		return nil, errors.New("fetch: timeout must not be negative")
	}
	if opts.RateLimit < 0 {
		return nil, errors.New("fetch: rate limit must not be negative")
	}
	if opts.MaxBodyBytes < 0 {
		return nil, errors.New("fetch: max body size must not be negative")
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	h := &HTTP{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		maxBody:   opts.MaxBodyBytes,
		userAgent: opts.UserAgent,
	}
	if h.maxBody == 0 {
		h.maxBody = DefaultMaxBodyBytes
	}
	if opts.RateLimit > 0 {
		h.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(opts.Burst, 1))
	}
	return h, nil
}

// Execute implements task.Executor.
func (h *HTTP) Execute(ctx context.Context, key task.Key) (string, error) {
	logger := ctxlog.FromContext(ctx)

	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, string(key), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}

	logger.Debug("Making HTTP request", "method", req.Method, "url", req.URL.String())
	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	logger.Debug("Received HTTP response", "status", resp.Status)

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBody+1))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > h.maxBody {
		return "", fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, h.maxBody)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("%w: %s", ErrStatus, resp.Status)
	}
	return string(body), nil
}

// Close releases idle connections held by the fetcher's client.
func (h *HTTP) Close() error {
	h.client.CloseIdleConnections()
	return nil
}
