package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"github.com/edgeflare/valuelog/pkg/transport"
	"go.uber.org/zap"
)

// Client handles produce, consume and topic operations against one cluster.
type Client struct {
	config   *Config
	logger   *zap.Logger
	client   sarama.Client
	producer sarama.SyncProducer
	consumer sarama.Consumer
	// offsets returns the offset manager for a consumer group
	offsets func(group string) (sarama.OffsetManager, error)

	mu     sync.Mutex // serializes Publish
	closed bool
}

var _ transport.Transport = (*Client)(nil)

// NewClient connects to the cluster and creates the shared producer and
// consumer.
func NewClient(config *Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conf, err := config.ToSaramaConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create sarama config: %w", err)
	}

	client, err := sarama.NewClient(config.GetBrokers(), conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create sync producer: %w", err)
	}

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		producer.Close()
		client.Close()
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	logger.Info("Connected to Kafka",
		zap.Strings("brokers", config.GetBrokers()),
		zap.String("version", conf.Version.String()))

	return &Client{
		config:   config,
		logger:   logger,
		client:   client,
		producer: producer,
		consumer: consumer,
		offsets: func(group string) (sarama.OffsetManager, error) {
			return sarama.NewOffsetManagerFromClient(group, client)
		},
	}, nil
}

// Publish produces payload to topic keyed by key and waits for the broker ack.
func (c *Client) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return transport.ErrClosed
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	}
	partition, offset, err := c.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	c.logger.Debug("Message produced",
		zap.String("topic", topic),
		zap.String("key", key),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// Subscribe starts consuming a.Topic/a.Partition from the position selected
// by a.Start, with offsets committed under a.Group.
func (c *Client) Subscribe(ctx context.Context, a transport.Assignment) (transport.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	om, err := c.offsets(a.Group)
	if err != nil {
		return nil, fmt.Errorf("failed to create offset manager for group %s: %w", a.Group, err)
	}

	pom, err := om.ManagePartition(a.Topic, a.Partition)
	if err != nil {
		om.Close()
		return nil, fmt.Errorf("failed to manage offsets of %s/%d: %w", a.Topic, a.Partition, err)
	}

	start := sarama.OffsetOldest
	if a.Start == transport.Stored {
		// NextOffset falls back to Consumer.Offsets.Initial (oldest)
		// when the group has never committed.
		start, _ = pom.NextOffset()
	}

	pc, err := c.consumer.ConsumePartition(a.Topic, a.Partition, start)
	if err != nil {
		pom.Close()
		om.Close()
		return nil, fmt.Errorf("failed to start consumer for %s/%d: %w", a.Topic, a.Partition, err)
	}

	c.logger.Info("Subscribed",
		zap.String("topic", a.Topic),
		zap.Int32("partition", a.Partition),
		zap.String("group", a.Group),
		zap.Stringer("start", a.Start),
		zap.Int64("offset", start))

	return newSubscription(a, pc, om, pom, c.logger), nil
}

// Close releases the producer, the consumer and the underlying client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if c.producer != nil {
		if err := c.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close producer: %w", err))
		}
	}
	if c.consumer != nil {
		if err := c.consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close consumer: %w", err))
		}
	}
	if c.client != nil && !c.client.Closed() {
		if err := c.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close client: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close kafka client: %v", errs)
	}
	return nil
}
