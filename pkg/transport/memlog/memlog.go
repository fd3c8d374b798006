// Package memlog is an in-process implementation of transport.Transport.
//
// Each topic is a single append-only partition held in memory. Committed
// offsets are tracked per consumer group, so Stored subscriptions resume
// across Subscribe calls for as long as the Log lives.
package memlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/edgeflare/valuelog/pkg/transport"
)

type offsetKey struct {
	group string
	topic string
}

// Log is an in-memory multi-topic log.
type Log struct {
	mu            sync.Mutex
	topics        map[string][]transport.Message
	committed     map[offsetKey]int64
	publishErrors map[string]error
	notify        chan struct{}
	autoCreate    bool
	closed        bool
}

// Option configures a Log.
type Option func(*Log)

// WithAutoCreateTopics creates topics on first publish or subscribe.
func WithAutoCreateTopics() Option {
	return func(l *Log) { l.autoCreate = true }
}

// New returns an empty Log.
func New(opts ...Option) *Log {
	l := &Log{
		topics:        map[string][]transport.Message{},
		committed:     map[offsetKey]int64{},
		publishErrors: map[string]error{},
		notify:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// EnsureTopics creates any missing topics.
func (l *Log) EnsureTopics(_ context.Context, topics ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range topics {
		if _, ok := l.topics[t]; !ok {
			l.topics[t] = nil
		}
	}
	return nil
}

// Publish appends payload to topic.
func (l *Log) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return transport.ErrClosed
	}
	if err := l.publishErrors[topic]; err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	records, ok := l.topics[topic]
	if !ok && !l.autoCreate {
		return fmt.Errorf("publish to %s: %w", topic, transport.ErrUnknownTopic)
	}

	l.topics[topic] = append(records, transport.Message{
		Topic:     topic,
		Partition: 0,
		Offset:    int64(len(records)),
		Timestamp: time.Now(),
		Key:       []byte(key),
		Payload:   append([]byte(nil), payload...),
	})

	// wake up blocked receivers
	close(l.notify)
	l.notify = make(chan struct{})
	return nil
}

// FailPublish makes every publish to topic fail with err until cleared with a
// nil err.
func (l *Log) FailPublish(topic string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.publishErrors, topic)
		return
	}
	l.publishErrors[topic] = err
}

// Records returns a copy of everything appended to topic.
func (l *Log) Records(topic string) []transport.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]transport.Message(nil), l.topics[topic]...)
}

// Committed returns the next offset committed by group on topic.
func (l *Log) Committed(group, topic string) (int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	off, ok := l.committed[offsetKey{group: group, topic: topic}]
	return off, ok
}

// Subscribe opens a reader positioned according to a.Start.
func (l *Log) Subscribe(_ context.Context, a transport.Assignment) (transport.Subscription, error) {
	if a.Partition != 0 {
		return nil, fmt.Errorf("memlog has a single partition, got %d", a.Partition)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, transport.ErrClosed
	}
	if _, ok := l.topics[a.Topic]; !ok {
		if !l.autoCreate {
			return nil, fmt.Errorf("subscribe to %s: %w", a.Topic, transport.ErrUnknownTopic)
		}
		l.topics[a.Topic] = nil
	}

	var next int64
	if a.Start == transport.Stored {
		next = l.committed[offsetKey{group: a.Group, topic: a.Topic}]
	}

	return &subscription{
		log:        l,
		assignment: a,
		next:       next,
		done:       make(chan struct{}),
	}, nil
}

// Close wakes every blocked receiver and rejects further calls.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.notify)
	}
	return nil
}

func (l *Log) commit(group, topic string, next int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := offsetKey{group: group, topic: topic}
	if cur, ok := l.committed[key]; !ok || next > cur {
		l.committed[key] = next
	}
}

type subscription struct {
	log        *Log
	assignment transport.Assignment
	next       int64
	inflight   sync.WaitGroup
	closeOnce  sync.Once
	done       chan struct{}
}

func (s *subscription) Receive(ctx context.Context) (transport.Message, error) {
	for {
		select {
		case <-s.done:
			return transport.Message{}, transport.ErrClosed
		default:
		}

		s.log.mu.Lock()
		if s.log.closed {
			s.log.mu.Unlock()
			return transport.Message{}, transport.ErrClosed
		}
		records := s.log.topics[s.assignment.Topic]
		if s.next < int64(len(records)) {
			msg := records[s.next]
			s.next++
			s.log.mu.Unlock()
			return msg, nil
		}
		notify := s.log.notify
		s.log.mu.Unlock()

		select {
		case <-notify:
		case <-s.done:
			return transport.Message{}, transport.ErrClosed
		case <-ctx.Done():
			return transport.Message{}, ctx.Err()
		}
	}
}

func (s *subscription) Commit(_ context.Context, msg transport.Message, mode transport.CommitMode) error {
	select {
	case <-s.done:
		return transport.ErrClosed
	default:
	}

	next := msg.Offset + 1
	if mode == transport.CommitSync {
		s.log.commit(s.assignment.Group, s.assignment.Topic, next)
		return nil
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.log.commit(s.assignment.Group, s.assignment.Topic, next)
	}()
	return nil
}

func (s *subscription) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	s.inflight.Wait()
	return nil
}
