package wb

import (
	"context"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// retryPolicy decides how long to wait between marketplace calls. The public
// card and feedbacks endpoints throttle with 429 and flap with 5xx; both are
// retried, anything else is final.
type retryPolicy struct {
	attempts int
	base     time.Duration
	// upper bound for any single wait, including server-provided Retry-After
	max time.Duration
}

var defaultRetry = retryPolicy{attempts: 4, base: 200 * time.Millisecond, max: 10 * time.Second}

func (p retryPolicy) retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// delay is the wait before attempt+1. The server's Retry-After wins over the
// exponential schedule; both are capped at max.
func (p retryPolicy) delay(attempt int, h http.Header) time.Duration {
	d := serverDelay(h)
	if d == 0 {
		d = p.base << attempt
		d += time.Duration(rand.Int64N(int64(d)/2 + 1))
	}
	return min(d, p.max)
}

// pause blocks for d. It returns ctx.Err() when the context ends first.
func (p retryPolicy) pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// serverDelay reads Retry-After in either delta-seconds or HTTP-date form.
func serverDelay(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(max(n, 0)) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		return max(time.Until(at), 0)
	}
	return 0
}
