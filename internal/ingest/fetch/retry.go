package fetch

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	defaultMaxAttempts   = 4
	retryInitialInterval = 500 * time.Millisecond
	retryMaxInterval     = 30 * time.Second
	retryReasonRateLimit = "rate_limited"
	retryReasonTransient = "transient"
)

// withRetry runs op with exponential backoff up to maxAttempts. Every
// attempt carries the configured fetch timeout; exceeding it is transient.
// Not-found and cancellation stop immediately; a rate-limit response rotates
// the source identity before the next attempt.
func (o *Orchestrator) withRetry(ctx context.Context, src Source, sourceCode string, log *zap.Logger, op func(ctx context.Context) error) error {
	maxAttempts := o.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInitialInterval
	policy.MaxInterval = retryMaxInterval

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		attemptCtx := ctx
		cancel := func() {}
		if o.cfg.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		}
		err := op(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if IsNotFound(err) || !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		if attempt >= maxAttempts {
			return backoff.Permanent(err)
		}

		reason := retryReasonTransient
		if IsRateLimited(err) {
			reason = retryReasonRateLimit
			if rotator, ok := src.(IdentityRotator); ok {
				rotator.Rotate()
			}
		}
		o.metrics.IncHTTPRetry(sourceCode, reason)
		log.Warn("retrying fetch",
			zap.Int("attempt", attempt),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return err
	}, backoff.WithContext(policy, ctx))
}
