package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/shahidirfan100/Google-Trends-Scraper/internal/bypass"
	"github.com/shahidirfan100/Google-Trends-Scraper/internal/metrics"
	"github.com/shahidirfan100/Google-Trends-Scraper/internal/trends"
)

// Doer executes one HTTP request through the session provider. The session
// owns cookies, fingerprint, and proxy identity; the transport never
// inspects that state beyond block detection on the response.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*bypass.Response, error)
}

// FailureKind drives the backoff policy. A detected block backs off much
// harder than ordinary packet loss.
type FailureKind string

const (
	KindNetwork   FailureKind = "network"
	KindBlocked   FailureKind = "blocked"
	KindMalformed FailureKind = "malformed"
)

// KindOf classifies an attempt failure for backoff purposes.
func KindOf(err error) FailureKind {
	switch {
	case errors.Is(err, trends.ErrBlocked):
		return KindBlocked
	case errors.Is(err, trends.ErrMalformedResponse):
		return KindMalformed
	default:
		return KindNetwork
	}
}

// BackoffPolicy is a pure function (attempt, failureKind) -> delay. It is
// independent of the transport mechanics so it can be unit-tested without
// network calls.
type BackoffPolicy struct {
	// BaseDelay is the unit delay for network and malformed failures.
	BaseDelay time.Duration
	// BlockDelay is the unit delay after a detected block.
	BlockDelay time.Duration
	// Jitter is the random fraction (0.0 to 1.0) applied around the delay.
	Jitter float64
}

// DefaultBackoff returns the production policy.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		BaseDelay:  2 * time.Second,
		BlockDelay: 15 * time.Second,
		Jitter:     0.3,
	}
}

// Delay computes the wait before the next attempt. Growth is linear with
// the attempt number; jitter is applied symmetrically around the result.
func (p BackoffPolicy) Delay(attempt int, kind FailureKind) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	unit := p.BaseDelay
	if kind == KindBlocked {
		unit = p.BlockDelay
	}
	d := time.Duration(attempt) * unit
	if p.Jitter > 0 {
		spread := (rand.Float64()*2 - 1) * p.Jitter // -jitter..+jitter
		d += time.Duration(float64(d) * spread)
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Client executes logical requests with retry, block detection, and
// decode-aware failure classification. Each call is independent and
// mutates no shared state, so one Client is safe for concurrent use across
// widgets of the same query.
type Client struct {
	session    Doer
	maxRetries int
	policy     BackoffPolicy
	detectors  []bypass.Detector
	logger     *slog.Logger
}

// ensure Client satisfies the protocol client's requester contract
var _ trends.Requester = (*Client)(nil)

// NewClient creates a retrying transport. maxRetries is the total attempt
// cap and must be at least 1.
func NewClient(session Doer, maxRetries int, policy BackoffPolicy, logger *slog.Logger) *Client {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		session:    session,
		maxRetries: maxRetries,
		policy:     policy,
		detectors:  bypass.DefaultDetectors(),
		logger:     logger,
	}
}

// GetJSON issues a GET to rawURL, strips the security prefix, and decodes
// the JSON body into out. Network errors, 429/403, blocked bodies, and
// malformed bodies all consume attempts from the same cap; after
// exhaustion the last failure is propagated.
func (c *Client) GetJSON(ctx context.Context, rawURL string, out any) error {
	endpoint := endpointLabel(rawURL)

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if attempt > 1 {
			kind := KindOf(lastErr)
			metrics.RecordRetry(string(kind))
			delay := c.policy.Delay(attempt-1, kind)
			c.logger.Debug("backing off", "endpoint", endpoint, "attempt", attempt, "kind", string(kind), "delay", delay)
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}

		lastErr = c.attempt(ctx, rawURL, endpoint, out)
		if lastErr == nil {
			return nil
		}
		c.logger.Warn("request attempt failed", "endpoint", endpoint, "attempt", attempt, "err", lastErr)
	}
	return fmt.Errorf("giving up after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) attempt(ctx context.Context, rawURL, endpoint string, out any) error {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	res, err := c.session.Do(ctx, req)
	if err != nil {
		metrics.RecordRequest(endpoint, 0, false, "", time.Since(start))
		return fmt.Errorf("request failed: %w", err)
	}

	blocked, source := bypass.Analyze(res, c.detectors)
	metrics.RecordRequest(endpoint, res.StatusCode, blocked, source, time.Since(start))
	if blocked {
		if title := bypass.PageTitle(res.Body); title != "" {
			return fmt.Errorf("%s (status %d, page %q): %w", source, res.StatusCode, title, trends.ErrBlocked)
		}
		return fmt.Errorf("%s (status %d): %w", source, res.StatusCode, trends.ErrBlocked)
	}

	return trends.Decode(res.Body, out)
}

// endpointLabel reduces a request URL to its path for metric labels, so
// tokens and payloads never leak into label values.
func endpointLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "unknown"
	}
	return u.Path
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
