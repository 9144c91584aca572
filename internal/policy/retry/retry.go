// Package retry decides whether a failed fetch is worth another attempt and
// how long to wait before it.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net/http"
	"time"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
)

// Config controls the exponential policy.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// ExponentialPolicy retries transport failures, 429 and 5xx responses with
// jittered exponential backoff.
type ExponentialPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewExponentialPolicy builds a policy. Zero delays fall back to defaults;
// MaxRetries of zero disables retries entirely.
func NewExponentialPolicy(cfg Config) *ExponentialPolicy {
	base := cfg.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}
	if maxDelay < base {
		maxDelay = base
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &ExponentialPolicy{
		maxRetries: maxRetries,
		baseDelay:  base,
		maxDelay:   maxDelay,
	}
}

// MaxAttempts returns the total number of attempts, the first one included.
func (p *ExponentialPolicy) MaxAttempts() int {
	return p.maxRetries + 1
}

// ShouldRetry reports whether attempt (1-based) may be followed by another.
func (p *ExponentialPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt > p.maxRetries {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var te *catalog.TransportError
	if !errors.As(err, &te) {
		return false
	}
	switch {
	case te.StatusCode == 0:
		return true
	case te.StatusCode == http.StatusTooManyRequests:
		return true
	case te.StatusCode >= http.StatusInternalServerError:
		return true
	default:
		return false
	}
}

// Backoff returns the wait duration before the attempt following attempt.
func (p *ExponentialPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
