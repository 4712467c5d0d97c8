package remote

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryConfig holds the backoff settings applied to idempotent calls.
type RetryConfig struct {
	MaxAttempts   uint64
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	JitterPercent uint64
}

// DefaultRetryConfig keeps retries short: the caller is usually either a
// foreground read that should fall back to cache quickly, or the
// connectivity probe.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   2,
		BaseDelay:     200 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		JitterPercent: 10,
	}
}

func (c *RetryConfig) backoff() retry.Backoff {
	b := retry.NewExponential(c.BaseDelay)
	b = retry.WithMaxRetries(c.MaxAttempts, b)
	b = retry.WithCappedDuration(c.MaxDelay, b)
	if c.JitterPercent > 0 {
		b = retry.WithJitterPercent(c.JitterPercent, b)
	}
	return b
}

// withRetry runs op, retrying transient (unreachable) failures with
// exponential backoff. Definitive rejections are returned immediately.
func withRetry(ctx context.Context, cfg *RetryConfig, op func() error) error {
	return retry.Do(ctx, cfg.backoff(), func(ctx context.Context) error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrUnreachable) {
			return retry.RetryableError(err)
		}
		return err
	})
}
