package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pairdex/internal/ledger"
	"pairdex/internal/model"
)

// RetryingSink retries failed transfers with exponential backoff before giving up.
type RetryingSink struct {
	sink       ledger.TransferSink
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
}

func NewRetryingSink(sink ledger.TransferSink, maxRetries int, baseDelay time.Duration, logger *zap.Logger) *RetryingSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingSink{sink: sink, maxRetries: maxRetries, baseDelay: baseDelay, logger: logger}
}

func (s *RetryingSink) Transfer(ctx context.Context, transfer model.Transfer) error {
	attempt := 0
	return withRetry(ctx, s.maxRetries, s.baseDelay, func(ctx context.Context) error {
		err := s.sink.Transfer(ctx, transfer)
		if err != nil {
			attempt++
			s.logger.Warn("transfer attempt failed",
				zap.Int("attempt", attempt),
				zap.String("recipient", transfer.Recipient),
				zap.String("asset", transfer.Asset),
				zap.Error(err),
			)
		}
		return err
	})
}

func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
