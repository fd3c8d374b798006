package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/edgeflare/valuelog/pkg/metrics"
	"go.uber.org/zap"
)

// HandlerFunc processes one consumed message. It owns all per-message error
// handling; Consume commits the offset whatever the outcome.
type HandlerFunc func(ctx context.Context, msg Message)

// Consume runs the receive, handle, async commit cycle on sub until ctx is
// done. Receive errors are retried with exponential backoff. It returns nil
// on cancellation and an error only if the subscription was closed under it.
func Consume(ctx context.Context, sub Subscription, logger *zap.Logger, handle HandlerFunc) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0 // never give up

	for {
		msg, err := sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrClosed) {
				return fmt.Errorf("receive: %w", err)
			}

			wait := b.NextBackOff()
			logger.Error("Failed to receive message", zap.Error(err), zap.Duration("retry_in", wait))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		b.Reset()

		start := time.Now()
		handle(ctx, msg)
		metrics.MessageProcessingDuration.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())

		if err := sub.Commit(ctx, msg, CommitAsync); err != nil {
			logger.Warn("Failed to commit offset",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			continue
		}
		logger.Debug("Committed offset",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset))
	}
}
