package nats

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/edgeflare/valuelog/pkg/transport"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

var (
	errConnNotInitialized = errors.New("NATS connection not initialized")
)

// Config represents NATS configuration
type Config struct {
	Servers   []string      `json:"servers" mapstructure:"servers"`
	Prefix    string        `json:"prefix" mapstructure:"prefix"`
	Username  string        `json:"username,omitempty" mapstructure:"username"`
	Password  string        `json:"password,omitempty" mapstructure:"password"`
	AckWait   time.Duration `json:"ackWait,omitempty" mapstructure:"ackWait"`
	FetchWait time.Duration `json:"fetchWait,omitempty" mapstructure:"fetchWait"`
	Replicas  int           `json:"replicas,omitempty" mapstructure:"replicas"`
	TLS       struct {
		Enabled  bool   `json:"enabled" mapstructure:"enabled"`
		CertFile string `json:"certFile,omitempty" mapstructure:"certFile"`
		KeyFile  string `json:"keyFile,omitempty" mapstructure:"keyFile"`
		CAFile   string `json:"caFile,omitempty" mapstructure:"caFile"`
	} `json:"tls,omitempty" mapstructure:"tls"`
}

func (c *Config) setDefaults() {
	if len(c.Servers) == 0 {
		c.Servers = []string{nats.DefaultURL}
	}
	c.Prefix = cmp.Or(c.Prefix, "valuelog")
	c.AckWait = cmp.Or(c.AckWait, time.Minute)
	c.FetchWait = cmp.Or(c.FetchWait, time.Second)
	c.Replicas = cmp.Or(c.Replicas, 1)
}

// StreamName returns the stream backing topic.
func (c *Config) StreamName(topic string) string {
	return fmt.Sprintf("%s-%s", c.Prefix, sanitize(topic))
}

// Subject returns the subject records of topic are published on.
func (c *Config) Subject(topic string) string {
	return fmt.Sprintf("%s.%s", c.Prefix, sanitize(topic))
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, s)
}

// Client is a JetStream backed log transport.
type Client struct {
	config Config
	logger *zap.Logger
	nc     *nats.Conn
	js     nats.JetStreamContext
	mu     sync.Mutex // serializes Publish
}

var _ transport.Transport = (*Client)(nil)

// NewClient connects to the first reachable server and opens a JetStream
// context.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var config Config
	if cfg != nil {
		config = *cfg
	}
	config.setDefaults()
	opts := defaultOptions(config)

	// Connect to first available server
	var (
		nc  *nats.Conn
		err error
	)
	for _, server := range config.Servers {
		nc, err = nats.Connect(server, opts...)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to NATS server: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	logger.Info("Connected to NATS", zap.String("url", nc.ConnectedUrl()))
	return &Client{config: config, logger: logger, nc: nc, js: js}, nil
}

// EnsureTopics creates or updates the stream backing each topic.
func (c *Client) EnsureTopics(_ context.Context, topics ...string) error {
	if c.js == nil {
		return errConnNotInitialized
	}
	for _, topic := range topics {
		if err := c.ensureStream(topic); err != nil {
			return fmt.Errorf("ensure stream for %s: %w", topic, err)
		}
	}
	return nil
}

// ensureStream creates or updates the stream
func (c *Client) ensureStream(topic string) error {
	config := &nats.StreamConfig{
		Name:     c.config.StreamName(topic),
		Subjects: []string{c.config.Subject(topic)},
		Storage:  nats.FileStorage,
		Replicas: c.config.Replicas,
	}

	stream, err := c.js.StreamInfo(config.Name)
	if err == nil {
		if !streamConfigEqual(stream.Config, *config) {
			if _, err = c.js.UpdateStream(config); err != nil {
				return fmt.Errorf("update stream: %w", err)
			}
			c.logger.Info("Updated stream", zap.String("stream", config.Name))
		}
		return nil
	}

	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("get stream info: %w", err)
	}

	if _, err := c.js.AddStream(config); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	c.logger.Info("Created stream", zap.String("stream", config.Name))
	return nil
}

// Publish appends payload to topic's stream, using key as the message id.
func (c *Client) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if c.js == nil {
		return errConnNotInitialized
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc.IsClosed() {
		return transport.ErrClosed
	}

	ack, err := c.js.Publish(c.config.Subject(topic), payload, nats.MsgId(key), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	c.logger.Debug("Message published",
		zap.String("topic", topic),
		zap.String("stream", ack.Stream),
		zap.Uint64("sequence", ack.Sequence),
		zap.Bool("duplicate", ack.Duplicate))
	return nil
}

// Subscribe binds a durable pull consumer named after a.Group. Earliest
// recreates the consumer so delivery restarts at the first message.
func (c *Client) Subscribe(_ context.Context, a transport.Assignment) (transport.Subscription, error) {
	if c.js == nil {
		return nil, errConnNotInitialized
	}
	if a.Partition != 0 {
		return nil, fmt.Errorf("JetStream streams have a single partition, got %d", a.Partition)
	}

	stream := c.config.StreamName(a.Topic)
	if _, err := c.js.StreamInfo(stream); err != nil {
		if errors.Is(err, nats.ErrStreamNotFound) {
			return nil, fmt.Errorf("subscribe to %s: %w", a.Topic, transport.ErrUnknownTopic)
		}
		return nil, fmt.Errorf("get stream info: %w", err)
	}

	durable := sanitize(a.Group)
	if a.Start == transport.Earliest {
		if err := c.js.DeleteConsumer(stream, durable); err != nil && !errors.Is(err, nats.ErrConsumerNotFound) {
			return nil, fmt.Errorf("reset consumer %s: %w", durable, err)
		}
	}

	if _, err := c.js.ConsumerInfo(stream, durable); err != nil {
		if !errors.Is(err, nats.ErrConsumerNotFound) {
			return nil, fmt.Errorf("get consumer info: %w", err)
		}
		_, err = c.js.AddConsumer(stream, &nats.ConsumerConfig{
			Durable:       durable,
			DeliverPolicy: nats.DeliverAllPolicy,
			AckPolicy:     nats.AckAllPolicy,
			AckWait:       c.config.AckWait,
			FilterSubject: c.config.Subject(a.Topic),
		})
		if err != nil {
			return nil, fmt.Errorf("create consumer: %w", err)
		}
	}

	sub, err := c.js.PullSubscribe(c.config.Subject(a.Topic), durable, nats.Bind(stream, durable))
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	c.logger.Info("Subscribed",
		zap.String("stream", stream),
		zap.String("consumer", durable),
		zap.Stringer("start", a.Start))

	return &subscription{
		assignment: a,
		nc:         c.nc,
		sub:        sub,
		fetchWait:  c.config.FetchWait,
		logger:     c.logger,
		pending:    map[int64]*nats.Msg{},
	}, nil
}

// Close drains the connection, flushing outstanding acks.
func (c *Client) Close() error {
	if c.nc == nil || c.nc.IsClosed() {
		return nil
	}
	return c.nc.Drain()
}

type subscription struct {
	assignment transport.Assignment
	nc         *nats.Conn
	sub        *nats.Subscription
	fetchWait  time.Duration
	logger     *zap.Logger

	mu       sync.Mutex
	buffered []*nats.Msg
	pending  map[int64]*nats.Msg
	closed   bool
}

func (s *subscription) Receive(ctx context.Context) (transport.Message, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return transport.Message{}, transport.ErrClosed
		}
		if len(s.buffered) > 0 {
			msg := s.buffered[0]
			s.buffered = s.buffered[1:]
			s.mu.Unlock()
			m, err := s.toMessage(msg)
			if err != nil {
				s.logger.Error("Dropping message without JetStream metadata",
					zap.String("subject", msg.Subject), zap.Error(err))
				_ = msg.Term()
				continue
			}
			return m, nil
		}
		s.mu.Unlock()

		if err := ctx.Err(); err != nil {
			return transport.Message{}, err
		}

		msgs, err := s.sub.Fetch(10, nats.MaxWait(s.fetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			if errors.Is(err, nats.ErrBadSubscription) || errors.Is(err, nats.ErrConnectionClosed) {
				return transport.Message{}, transport.ErrClosed
			}
			return transport.Message{}, fmt.Errorf("fetch messages: %w", err)
		}

		s.mu.Lock()
		s.buffered = append(s.buffered, msgs...)
		s.mu.Unlock()
	}
}

func (s *subscription) toMessage(msg *nats.Msg) (transport.Message, error) {
	meta, err := msg.Metadata()
	if err != nil {
		return transport.Message{}, fmt.Errorf("read message metadata: %w", err)
	}

	offset := int64(meta.Sequence.Stream) - 1
	s.mu.Lock()
	s.pending[offset] = msg
	s.mu.Unlock()

	return transport.Message{
		Topic:     s.assignment.Topic,
		Partition: 0,
		Offset:    offset,
		Timestamp: meta.Timestamp,
		Key:       []byte(msg.Header.Get(nats.MsgIdHdr)),
		Payload:   msg.Data,
	}, nil
}

// Commit acks the message, which under AckAll also acks everything before it.
func (s *subscription) Commit(_ context.Context, msg transport.Message, mode transport.CommitMode) error {
	s.mu.Lock()
	m, ok := s.pending[msg.Offset]
	for off := range s.pending {
		if off <= msg.Offset {
			delete(s.pending, off)
		}
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("offset %d of %s was not received by this subscription", msg.Offset, msg.Topic)
	}
	if mode == transport.CommitSync {
		return m.AckSync()
	}
	return m.Ack()
}

// Close flushes pending acks and unbinds from the durable consumer, which
// keeps its ack floor for the next Stored subscription.
func (s *subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.nc.Flush(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("flush acks: %w", err)
	}
	if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	return nil
}

// streamConfigEqual checks if two nats.StreamConfig are equivalent
func streamConfigEqual(a, b nats.StreamConfig) bool {
	if a.Name != b.Name || a.Storage != b.Storage || a.Replicas != b.Replicas {
		return false
	}

	if len(a.Subjects) != len(b.Subjects) {
		return false
	}

	for i := range a.Subjects {
		if a.Subjects[i] != b.Subjects[i] {
			return false
		}
	}
	return true
}

func defaultOptions(c Config) []nats.Option {
	opts := []nats.Option{
		nats.Name(c.Prefix),
		nats.Timeout(5 * time.Second),
		nats.PingInterval(10 * time.Second),
		nats.MaxPingsOutstanding(3),
		nats.MaxReconnects(-1),
	}

	if c.Username != "" && c.Password != "" {
		opts = append(opts, nats.UserInfo(c.Username, c.Password))
	}

	if c.TLS.Enabled {
		if c.TLS.CAFile != "" {
			opts = append(opts, nats.RootCAs(c.TLS.CAFile))
		}
		if c.TLS.CertFile != "" && c.TLS.KeyFile != "" {
			opts = append(opts, nats.ClientCert(c.TLS.CertFile, c.TLS.KeyFile))
		}
	}

	return opts
}
