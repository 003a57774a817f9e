package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/algolog/stats-service/internal/models"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 8 << 20

// Client performs single HTTP exchanges and classifies the result. It never
// retries on its own; RetryPolicy owns that.
type Client struct {
	http      *http.Client
	timeout   time.Duration
	userAgent string
	logger    zerolog.Logger
}

func NewClient(timeout time.Duration, userAgent string, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http: &http.Client{
			Timeout: timeout,
		},
		timeout:   timeout,
		userAgent: userAgent,
		logger:    logger,
	}
}

type request struct {
	platform models.Platform
	method   string
	url      string
	body     []byte
	headers  map[string]string
}

type response struct {
	status int
	header http.Header
	body   []byte
	ctype  string
}

func (c *Client) do(ctx context.Context, r request) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return nil, newError(r.platform, KindHTTP, 0, fmt.Errorf("failed to create request: %w", err))
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransport(ctx, r.platform, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classifyTransport(ctx, r.platform, err)
	}

	c.logger.Debug().
		Str("platform", r.platform.String()).
		Str("method", r.method).
		Int("status", resp.StatusCode).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("Upstream response")

	return &response{
		status: resp.StatusCode,
		header: resp.Header,
		body:   data,
		ctype:  resp.Header.Get("Content-Type"),
	}, nil
}

func classifyTransport(ctx context.Context, platform models.Platform, err error) error {
	if errors.Is(err, context.Canceled) {
		return newError(platform, KindCancelled, 0, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return newError(platform, KindTimeout, 0, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(platform, KindTimeout, 0, err)
	}
	return newError(platform, KindConnection, 0, err)
}

// classifyStatus maps a completed exchange onto the error taxonomy. A GitHub
// style 403 with an exhausted quota counts as rate limiting.
func classifyStatus(platform models.Platform, resp *response) error {
	switch {
	case resp.status >= 200 && resp.status < 300:
		return nil
	case resp.status == http.StatusTooManyRequests:
		return newError(platform, KindRateLimited, resp.status, nil)
	case resp.status == http.StatusForbidden && resp.header.Get("X-RateLimit-Remaining") == "0":
		return newError(platform, KindRateLimited, resp.status, nil)
	case resp.status == http.StatusNotFound:
		return newError(platform, KindNotFound, resp.status, nil)
	default:
		return newError(platform, KindHTTP, resp.status, fmt.Errorf("upstream returned %s", snippet(resp.body)))
	}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
