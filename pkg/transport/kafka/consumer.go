package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"github.com/edgeflare/valuelog/pkg/transport"
	"go.uber.org/zap"
)

type subscription struct {
	assignment transport.Assignment
	pc         sarama.PartitionConsumer
	om         sarama.OffsetManager
	pom        sarama.PartitionOffsetManager
	logger     *zap.Logger

	closeOnce sync.Once
	errsDone  chan struct{}
}

func newSubscription(
	a transport.Assignment,
	pc sarama.PartitionConsumer,
	om sarama.OffsetManager,
	pom sarama.PartitionOffsetManager,
	logger *zap.Logger,
) *subscription {
	s := &subscription{
		assignment: a,
		pc:         pc,
		om:         om,
		pom:        pom,
		logger:     logger,
		errsDone:   make(chan struct{}),
	}
	go s.logCommitErrors()
	return s
}

// logCommitErrors drains commit failures reported asynchronously by the
// offset manager until it is closed.
func (s *subscription) logCommitErrors() {
	defer close(s.errsDone)
	for err := range s.pom.Errors() {
		s.logger.Error("Failed to commit offset",
			zap.String("topic", err.Topic),
			zap.Int32("partition", err.Partition),
			zap.String("group", s.assignment.Group),
			zap.Error(err.Err))
	}
}

func (s *subscription) Receive(ctx context.Context) (transport.Message, error) {
	select {
	case msg, ok := <-s.pc.Messages():
		if !ok {
			return transport.Message{}, transport.ErrClosed
		}
		return transport.Message{
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Timestamp: msg.Timestamp,
			Key:       msg.Key,
			Payload:   msg.Value,
		}, nil
	case cerr, ok := <-s.pc.Errors():
		if !ok {
			return transport.Message{}, transport.ErrClosed
		}
		return transport.Message{}, fmt.Errorf("consume %s/%d: %w", cerr.Topic, cerr.Partition, cerr.Err)
	case <-ctx.Done():
		return transport.Message{}, ctx.Err()
	}
}

func (s *subscription) Commit(_ context.Context, msg transport.Message, mode transport.CommitMode) error {
	s.pom.MarkOffset(msg.Offset+1, "")
	if mode == transport.CommitSync {
		s.om.Commit()
	}
	return nil
}

// Close stops the partition consumer and flushes marked offsets.
func (s *subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if cerr := s.pc.Close(); cerr != nil {
			err = fmt.Errorf("close partition consumer: %w", cerr)
		}
		if cerr := s.pom.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close partition offset manager: %w", cerr)
		}
		<-s.errsDone
		if cerr := s.om.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close offset manager: %w", cerr)
		}
	})
	return err
}
