// Package httpclient is the shared rate-limited, retrying HTTP transport every
// concrete provider's Execute/ExecuteStreaming calls through. Providers depend on the
// Doer seam rather than a concrete client, so tests and alternative transports slot in
// without touching provider code.
package httpclient

import (
	"context"
	"math/rand"
	"net/http"
	"time"

	"github.com/jbelanger/exitbook/internal/ingestion/provider"
	"github.com/rs/zerolog"
)

// Doer is the minimal interface providers depend on, so tests can substitute a fake
// transport without a live network call.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client wraps a Doer with a fixed inter-request delay (derived from the provider's
// declared RateLimit) and jittered exponential backoff on 429/5xx responses.
type Client struct {
	inner      Doer
	minGap     time.Duration
	maxRetries int
	baseDelay  time.Duration
	log        zerolog.Logger

	lastCall time.Time
}

// New builds a Client from a provider's resolved Config. A zero RequestsPerSecond means
// no throttling beyond the retry/backoff behavior.
func New(cfg provider.Config, log zerolog.Logger) *Client {
	var minGap time.Duration
	if cfg.RateLimit.RequestsPerSecond > 0 {
		minGap = time.Duration(float64(time.Second) / cfg.RateLimit.RequestsPerSecond)
	}
	return &Client{
		inner:      &http.Client{Timeout: cfg.Timeout},
		minGap:     minGap,
		maxRetries: cfg.Retries,
		baseDelay:  250 * time.Millisecond,
		log:        log,
	}
}

// WithDoer overrides the inner transport, for tests.
func (c *Client) WithDoer(d Doer) *Client {
	c.inner = d
	return c
}

// Do sends req, throttling to the configured rate and retrying with jittered
// exponential backoff on 429 or 5xx responses up to maxRetries times. A non-retryable
// error or a successful response returns immediately.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		c.throttle()

		resp, err := c.inner.Do(req.WithContext(ctx))
		if err != nil {
			lastErr = err
		} else if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = &statusError{code: resp.StatusCode}
			resp.Body.Close()
		} else {
			return resp, nil
		}

		if attempt == c.maxRetries {
			break
		}

		delay := c.baseDelay * time.Duration(1<<uint(attempt))
		jitter := time.Duration(rand.Int63n(int64(delay) + 1))
		select {
		case <-time.After(delay/2 + jitter/2):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (c *Client) throttle() {
	if c.minGap <= 0 {
		return
	}
	if elapsed := time.Since(c.lastCall); elapsed < c.minGap {
		time.Sleep(c.minGap - elapsed)
	}
	c.lastCall = time.Now()
}

type statusError struct{ code int }

func (e *statusError) Error() string {
	return http.StatusText(e.code)
}
