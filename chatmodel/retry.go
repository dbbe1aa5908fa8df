package chatmodel

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RetryBudget wraps a Model with the retry policy from spec.md §5:
// network/5xx ProviderErrors are retried up to MaxRetries times with
// exponential backoff; every other error kind surfaces immediately.
type RetryBudget struct {
	inner      Model
	maxRetries uint64
	logger     *zap.Logger
}

const DefaultMaxRetries = 2

// WithRetry wraps inner in the configured retry budget. maxRetries <= 0
// uses DefaultMaxRetries. A nil logger is replaced with a no-op logger.
func WithRetry(inner Model, maxRetries int, logger *zap.Logger) Model {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryBudget{inner: inner, maxRetries: uint64(maxRetries), logger: logger}
}

func (r *RetryBudget) Complete(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	var resp ChatResponse
	attempt := 0

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), r.maxRetries), ctx)

	operation := func() error {
		attempt++
		var err error
		resp, err = r.inner.Complete(ctx, req)
		if err == nil {
			return nil
		}

		var pe *ProviderError
		if errors.As(err, &pe) && pe.Retriable() {
			r.logger.Warn("provider call failed, retrying",
				zap.String("provider", pe.Provider),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}

		// Terminal errors (non-5xx status, parse, refusal, config, or
		// not a ProviderError at all) are not retried; wrap in
		// backoff.Permanent so the policy stops.
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(operation, policy); err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return ChatResponse{}, permanent.Unwrap()
		}
		return ChatResponse{}, err
	}

	return resp, nil
}
