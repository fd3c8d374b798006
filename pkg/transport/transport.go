// Package transport defines the append-only log contract the validator, the
// view builder and the gateway are written against.
//
// Implementations live in sub-packages: kafka (sarama), nats (JetStream) and
// memlog (in-process). Only partition 0 of each topic is used.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrClosed is returned by Receive and Publish after Close.
	ErrClosed = errors.New("transport closed")
	// ErrUnknownTopic is returned when subscribing to a topic that does not exist.
	ErrUnknownTopic = errors.New("unknown topic")
)

// StartOffset selects where a subscription starts reading.
type StartOffset int

const (
	// Earliest replays the partition from its first retained offset.
	Earliest StartOffset = iota
	// Stored resumes from the group's last committed offset, or from
	// Earliest if nothing was committed.
	Stored
)

func (s StartOffset) String() string {
	switch s {
	case Earliest:
		return "earliest"
	case Stored:
		return "stored"
	default:
		return fmt.Sprintf("StartOffset(%d)", int(s))
	}
}

// CommitMode selects whether Commit waits for the broker.
type CommitMode int

const (
	CommitAsync CommitMode = iota
	CommitSync
)

// Assignment names the topic partition a subscription consumes and the
// consumer group its offsets are committed under.
type Assignment struct {
	Topic     string
	Group     string
	Partition int32
	Start     StartOffset
}

// Message is a record read from a log.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Timestamp time.Time
	Key       []byte
	Payload   []byte
}

// Publisher appends records to a log. Implementations serialize concurrent
// calls.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// Subscriber opens subscriptions.
type Subscriber interface {
	Subscribe(ctx context.Context, a Assignment) (Subscription, error)
}

// Subscription is a single-partition reader with offset commit.
type Subscription interface {
	// Receive blocks until a message is available, ctx is done or the
	// subscription is closed.
	Receive(ctx context.Context) (Message, error)
	// Commit records msg.Offset+1 as the group's next offset.
	Commit(ctx context.Context, msg Message, mode CommitMode) error
	// Close drains in-flight commits and releases the partition.
	Close() error
}

// Transport is a full log client.
type Transport interface {
	Publisher
	Subscriber
	// EnsureTopics creates the given topics if they do not exist.
	EnsureTopics(ctx context.Context, topics ...string) error
	Close() error
}
