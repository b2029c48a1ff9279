package worker

import (
	"context"
	"log/slog"
	"time"
)

// Policy bounds the retry behavior applied around outbound calls.
// Backoff is exponential: min(BaseDelay * 2^(attempt-1), MaxDelay).
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy returns the standard policy: 3 attempts, 1s base, 10s cap.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
	}
}

// Do runs fn up to MaxAttempts times, sleeping between attempts. Only
// errors for which IsRetryable returns true are retried; anything else
// propagates immediately. After exhaustion the last error is returned
// unchanged so callers classify the real failure, not a retry wrapper.
func (p Policy) Do(ctx context.Context, logger *slog.Logger, op string, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		delay := p.delay(attempt)
		if logger != nil {
			logger.Warn("retrying outbound call",
				"op", op,
				"attempt", attempt,
				"delay", delay,
				"error", lastErr,
			)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}

	return lastErr
}

func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}
