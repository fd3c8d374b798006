// Package view folds the events log into the in-memory read model.
//
// The builder resumes from the group's committed offset instead of replaying
// the log, so the read model only holds what was folded since the process
// started. Folding ValueCreated is idempotent; folding ValueUpdated is not,
// and an update redelivered after a crash is applied twice.
package view

import (
	"cmp"
	"context"
	"errors"
	"fmt"

	"github.com/edgeflare/valuelog/pkg/domain"
	"github.com/edgeflare/valuelog/pkg/metrics"
	"github.com/edgeflare/valuelog/pkg/transport"
	"go.uber.org/zap"
)

// ErrUnknownValue is returned when an update refers to a value the read
// model has never seen.
var ErrUnknownValue = errors.New("update of unknown value")

type Options struct {
	EventsTopic string // defaults to "events"
	Group       string // defaults to "events-processors"
}

func (o *Options) setDefaults() {
	o.EventsTopic = cmp.Or(o.EventsTopic, "events")
	o.Group = cmp.Or(o.Group, "events-processors")
}

type Builder struct {
	sub    transport.Subscriber
	opts   Options
	logger *zap.Logger
	store  *Store
}

func NewBuilder(sub transport.Subscriber, opts Options, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.setDefaults()
	return &Builder{
		sub:    sub,
		opts:   opts,
		logger: logger.Named("view"),
		store:  newStore(),
	}
}

// Store returns the read model for querying.
func (b *Builder) Store() *Store { return b.store }

// Run consumes the events log from the stored offset until ctx is done.
func (b *Builder) Run(ctx context.Context) error {
	sub, err := b.sub.Subscribe(ctx, transport.Assignment{
		Topic: b.opts.EventsTopic,
		Group: b.opts.Group,
		Start: transport.Stored,
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", b.opts.EventsTopic, err)
	}
	defer func() {
		if err := sub.Close(); err != nil {
			b.logger.Warn("Failed to close subscription", zap.Error(err))
		}
	}()

	b.logger.Info("Folding events",
		zap.String("topic", b.opts.EventsTopic),
		zap.String("group", b.opts.Group))

	return transport.Consume(ctx, sub, b.logger, func(_ context.Context, msg transport.Message) {
		_ = b.Handle(msg.Payload)
	})
}

// Handle decodes and folds one encoded event, logging any failure.
func (b *Builder) Handle(payload []byte) error {
	evt, err := domain.DecodeEvent(payload)
	if err != nil {
		metrics.DecodeErrors.WithLabelValues(b.opts.EventsTopic).Inc()
		b.logger.Error("Failed to decode event", zap.Error(err))
		return err
	}

	logger := b.logger.With(zap.String("action", evt.Action()), zap.Stringer("event_id", evt.EventID()))
	if err := b.Apply(evt); err != nil {
		metrics.EventsFolded.WithLabelValues(evt.Action(), metrics.OutcomeDropped).Inc()
		logger.Error("Dropped event", zap.Error(err))
		return err
	}
	metrics.EventsFolded.WithLabelValues(evt.Action(), metrics.OutcomeFolded).Inc()
	logger.Debug("Folded event")
	return nil
}

// Apply folds evt into the read model.
func (b *Builder) Apply(evt domain.Event) error {
	switch evt := evt.(type) {
	case domain.ValueCreated:
		b.store.set(evt.Data)
		return nil
	case domain.ValueUpdated:
		if _, err := b.store.update(evt.Data); err != nil {
			return fmt.Errorf("%w: %s", err, evt.Data.ValueID)
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported event %T", domain.ErrDecode, evt)
	}
}
