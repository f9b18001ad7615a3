// Package shopify provides the throttled client for the shop admin API.
// All outbound calls for an account are funneled through a single ordered
// lane so the account-level rate ceiling holds no matter how many producers
// submit work concurrently.
package shopify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jonesrussell/catalog-classifier/internal/logger"
	"github.com/jonesrussell/catalog-classifier/internal/telemetry"
	"golang.org/x/time/rate"
)

const (
	// DefaultMinInterval is the minimum spacing between dispatched calls.
	DefaultMinInterval = 400 * time.Millisecond
	// DefaultRetryAfter applies when a 429/5xx response carries no Retry-After.
	DefaultRetryAfter = 2 * time.Second
)

// Operation is a zero-argument unit of work producing an HTTP response.
type Operation func() (*http.Response, error)

// Throttle serializes operations through one lane: at most one in-flight
// call, minimum spacing between dispatches, and a single retry on 429/5xx
// honoring the Retry-After header.
type Throttle struct {
	mu                sync.Mutex
	limiter           *rate.Limiter
	defaultRetryAfter time.Duration
	telemetry         *telemetry.Provider
	logger            logger.Logger
}

// NewThrottle creates a throttle lane with the given minimum spacing.
func NewThrottle(minInterval time.Duration, log logger.Logger, tp *telemetry.Provider) *Throttle {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Throttle{
		limiter:           rate.NewLimiter(rate.Every(minInterval), 1),
		defaultRetryAfter: DefaultRetryAfter,
		telemetry:         tp,
		logger:            log,
	}
}

// Do runs op through the lane. On a 429 or 5xx response it sleeps for the
// server-provided Retry-After duration and re-attempts exactly once; a second
// failure is fatal for this call. Other non-2xx statuses are returned to the
// caller untouched.
func (t *Throttle) Do(ctx context.Context, op Operation) (*http.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("throttle wait: %w", err)
	}
	t.telemetry.IncAPICalls()

	resp, err := op()
	if !t.shouldRetry(resp, err) {
		return resp, err
	}

	wait := t.retryDelay(resp, err)
	drainAndClose(resp)
	t.telemetry.IncAPIRetries()
	t.logger.Warn("transient failure from admin API, retrying once",
		logger.Duration("retry_after", wait),
	)

	select {
	case <-time.After(wait):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("throttle wait: %w", err)
	}

	resp, err = op()
	if err != nil {
		return nil, fmt.Errorf("retry failed: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		status := resp.StatusCode
		drainAndClose(resp)
		return nil, fmt.Errorf("retry failed: admin API returned %d", status)
	}
	return resp, nil
}

// shouldRetry covers transport errors plus 429 and 5xx responses.
func (t *Throttle) shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
}

// retryDelay reads the Retry-After header (seconds, fractional allowed) from
// the response, falling back to the configured default.
func (t *Throttle) retryDelay(resp *http.Response, err error) time.Duration {
	if err != nil || resp == nil {
		return t.defaultRetryAfter
	}
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return t.defaultRetryAfter
	}
	seconds, parseErr := strconv.ParseFloat(header, 64)
	if parseErr != nil || seconds <= 0 {
		return t.defaultRetryAfter
	}
	return time.Duration(seconds * float64(time.Second))
}

func drainAndClose(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}
