// Package validator turns commands into events.
//
// The validator replays the whole commands log on every start to rebuild
// which values exist, then accepts or rejects each command in log order.
// Accepted commands are published to the events log with Parent set to the
// command id. Only existence is tracked: updates are checked against the
// table but never change it, so the validator cannot see the current value
// of anything it accepted.
package validator

import (
	"cmp"
	"context"
	"errors"
	"fmt"

	"github.com/edgeflare/valuelog/pkg/domain"
	"github.com/edgeflare/valuelog/pkg/metrics"
	"github.com/edgeflare/valuelog/pkg/transport"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrDuplicateValue = errors.New("value already exists")
	ErrUnknownValue   = errors.New("value does not exist")
	ErrPublish        = errors.New("publish event")
)

type Options struct {
	CommandsTopic string // defaults to "commands"
	EventsTopic   string // defaults to "events"
	Group         string // defaults to "commands-processors"
}

func (o *Options) setDefaults() {
	o.CommandsTopic = cmp.Or(o.CommandsTopic, "commands")
	o.EventsTopic = cmp.Or(o.EventsTopic, "events")
	o.Group = cmp.Or(o.Group, "commands-processors")
}

// Validator is the single owner of the validation state. Run and Handle must
// be called from one goroutine.
type Validator struct {
	sub    transport.Subscriber
	pub    transport.Publisher
	opts   Options
	logger *zap.Logger
	state  map[uuid.UUID]float64
}

func New(sub transport.Subscriber, pub transport.Publisher, opts Options, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.setDefaults()
	return &Validator{
		sub:    sub,
		pub:    pub,
		opts:   opts,
		logger: logger.Named("validator"),
		state:  map[uuid.UUID]float64{},
	}
}

// Run replays the commands log from the earliest offset and keeps validating
// new commands until ctx is done. A failed subscribe is returned; per-message
// failures are logged and never stop the loop.
func (v *Validator) Run(ctx context.Context) error {
	sub, err := v.sub.Subscribe(ctx, transport.Assignment{
		Topic: v.opts.CommandsTopic,
		Group: v.opts.Group,
		Start: transport.Earliest,
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", v.opts.CommandsTopic, err)
	}
	defer func() {
		if err := sub.Close(); err != nil {
			v.logger.Warn("Failed to close subscription", zap.Error(err))
		}
	}()

	v.state = map[uuid.UUID]float64{}
	v.logger.Info("Replaying commands",
		zap.String("topic", v.opts.CommandsTopic),
		zap.String("group", v.opts.Group))

	return transport.Consume(ctx, sub, v.logger, func(ctx context.Context, msg transport.Message) {
		_ = v.Handle(ctx, msg.Payload)
	})
}

// Handle validates one encoded command and publishes the resulting event.
// The returned error classifies the outcome for callers; it has already been
// logged.
func (v *Validator) Handle(ctx context.Context, payload []byte) error {
	cmd, err := domain.DecodeCommand(payload)
	if err != nil {
		metrics.DecodeErrors.WithLabelValues(v.opts.CommandsTopic).Inc()
		v.logger.Error("Failed to decode command", zap.Error(err))
		return err
	}

	switch cmd := cmd.(type) {
	case domain.CreateValue:
		err = v.create(ctx, cmd)
	case domain.UpdateValue:
		err = v.update(ctx, cmd)
	default:
		err = fmt.Errorf("%w: unsupported command %T", domain.ErrDecode, cmd)
	}

	logger := v.logger.With(zap.String("action", cmd.Action()), zap.Stringer("command_id", cmd.CommandID()))
	switch {
	case err == nil:
		metrics.CommandsTotal.WithLabelValues(cmd.Action(), metrics.OutcomeAccepted).Inc()
		logger.Debug("Command accepted")
	case errors.Is(err, ErrPublish):
		metrics.CommandsTotal.WithLabelValues(cmd.Action(), metrics.OutcomeFailed).Inc()
		metrics.PublishErrors.WithLabelValues(v.opts.EventsTopic).Inc()
		logger.Warn("Command accepted but event was not published", zap.Error(err))
	default:
		metrics.CommandsTotal.WithLabelValues(cmd.Action(), metrics.OutcomeRejected).Inc()
		logger.Error("Command rejected", zap.Error(err))
	}
	return err
}

func (v *Validator) create(ctx context.Context, cmd domain.CreateValue) error {
	id := cmd.Data.ValueID
	if _, ok := v.state[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateValue, id)
	}
	if err := v.publish(ctx, domain.NewValueCreated(cmd)); err != nil {
		return err
	}
	v.state[id] = cmd.Data.Value
	return nil
}

func (v *Validator) update(ctx context.Context, cmd domain.UpdateValue) error {
	id := cmd.Data.ValueID
	if _, ok := v.state[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownValue, id)
	}
	return v.publish(ctx, domain.NewValueUpdated(cmd))
}

func (v *Validator) publish(ctx context.Context, evt domain.Event) error {
	payload, err := domain.EncodeEvent(evt)
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrPublish, evt.EventID(), err)
	}
	if err := v.pub.Publish(ctx, v.opts.EventsTopic, evt.EventID().String(), payload); err != nil {
		return fmt.Errorf("%w %s: %w", ErrPublish, evt.EventID(), err)
	}
	v.logger.Debug("Event published",
		zap.String("topic", v.opts.EventsTopic),
		zap.String("action", evt.Action()),
		zap.Stringer("event_id", evt.EventID()),
		zap.Stringer("parent", evt.ParentID()))
	return nil
}
