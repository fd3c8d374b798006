package valuelog

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/edgeflare/valuelog/pkg/config"
	"github.com/edgeflare/valuelog/pkg/transport"
	"github.com/edgeflare/valuelog/pkg/transport/kafka"
	"github.com/edgeflare/valuelog/pkg/transport/memlog"
	"github.com/edgeflare/valuelog/pkg/transport/nats"
	"go.uber.org/zap"
)

const connectRetries = 5

// openTransport connects to the configured log, retrying while the broker
// is unreachable.
func openTransport(ctx context.Context, tc config.TransportConfig, logger *zap.Logger) (transport.Transport, error) {
	var t transport.Transport
	connect := func() error {
		switch tc.Driver {
		case config.DriverKafka:
			c, err := kafka.NewClient(&tc.Kafka, logger.Named("kafka"))
			if err != nil {
				return err
			}
			t = c
		case config.DriverNATS:
			c, err := nats.NewClient(&tc.NATS, logger.Named("nats"))
			if err != nil {
				return err
			}
			t = c
		case config.DriverMemory:
			logger.Warn("Using the in-memory log; nothing survives a restart")
			t = memlog.New(memlog.WithAutoCreateTopics())
		default:
			return backoff.Permanent(fmt.Errorf("unknown transport driver %q", tc.Driver))
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), connectRetries), ctx)
	err := backoff.RetryNotify(connect, b, func(err error, next time.Duration) {
		logger.Warn("Transport unavailable, retrying",
			zap.String("driver", tc.Driver),
			zap.Duration("retry_in", next),
			zap.Error(err))
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s transport: %w", tc.Driver, err)
	}
	return t, nil
}
