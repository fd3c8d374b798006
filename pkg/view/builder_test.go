package view

import (
	"context"
	"testing"
	"time"

	"github.com/edgeflare/valuelog/pkg/domain"
	"github.com/edgeflare/valuelog/pkg/transport"
	"github.com/edgeflare/valuelog/pkg/transport/memlog"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func created(value float64) domain.ValueCreated {
	return domain.NewValueCreated(domain.NewCreateValue(value))
}

func updated(id uuid.UUID, op domain.Operation, operand float64) domain.ValueUpdated {
	return domain.NewValueUpdated(domain.NewUpdateValue(id, op, operand))
}

func TestCreatedFoldIsIdempotent(t *testing.T) {
	evt := created(42)

	once := NewBuilder(nil, Options{}, nil)
	require.NoError(t, once.Apply(evt))

	twice := NewBuilder(nil, Options{}, nil)
	require.NoError(t, twice.Apply(evt))
	require.NoError(t, twice.Apply(evt))

	a, ok := once.Store().Lookup(evt.Data.ValueID)
	require.True(t, ok)
	b, ok := twice.Store().Lookup(evt.Data.ValueID)
	require.True(t, ok)
	assert.Equal(t, a, b)
	assert.Equal(t, 1, twice.Store().Len())
}

func TestUpdateFoldIsNotIdempotent(t *testing.T) {
	const x = 5.0
	c := created(10)
	u := updated(c.Data.ValueID, domain.Add, x)

	once := NewBuilder(nil, Options{}, nil)
	require.NoError(t, once.Apply(c))
	require.NoError(t, once.Apply(u))

	twice := NewBuilder(nil, Options{}, nil)
	require.NoError(t, twice.Apply(c))
	require.NoError(t, twice.Apply(u))
	require.NoError(t, twice.Apply(u))

	a, _ := once.Store().Lookup(c.Data.ValueID)
	b, _ := twice.Store().Lookup(c.Data.ValueID)
	assert.Equal(t, 15.0, a.Value)
	assert.Equal(t, x, b.Value-a.Value)
}

func TestApplyOperations(t *testing.T) {
	tests := []struct {
		name    string
		initial float64
		op      domain.Operation
		operand float64
		want    float64
	}{
		{"add", 10, domain.Add, 5, 15},
		{"multiply", 4, domain.Multiply, 2.5, 10},
		{"add negative", 1, domain.Add, -3, -2},
		{"multiply by zero", 8, domain.Multiply, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder(nil, Options{}, nil)
			c := created(tt.initial)
			require.NoError(t, b.Apply(c))
			require.NoError(t, b.Apply(updated(c.Data.ValueID, tt.op, tt.operand)))

			got, ok := b.Store().Lookup(c.Data.ValueID)
			require.True(t, ok)
			assert.Equal(t, tt.want, got.Value)
		})
	}
}

func TestUnknownValueIsDropped(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	b := NewBuilder(nil, Options{}, zap.New(core))

	c := created(1)
	require.NoError(t, b.Apply(c))

	payload, err := domain.EncodeEvent(updated(uuid.New(), domain.Add, 1))
	require.NoError(t, err)
	assert.ErrorIs(t, b.Handle(payload), ErrUnknownValue)

	assert.Equal(t, 1, b.Store().Len())
	got, _ := b.Store().Lookup(c.Data.ValueID)
	assert.Equal(t, 1.0, got.Value)
	assert.Equal(t, 1, logs.FilterMessage("Dropped event").Len())
}

func TestHandleDecodeFailure(t *testing.T) {
	b := NewBuilder(nil, Options{}, nil)
	assert.ErrorIs(t, b.Handle([]byte(`{"action":"ValueCreated"}`)), domain.ErrDecode)
	assert.Zero(t, b.Store().Len())
}

func TestLookupMissing(t *testing.T) {
	_, ok := NewBuilder(nil, Options{}, nil).Store().Lookup(uuid.New())
	assert.False(t, ok)
}

func publish(t *testing.T, l *memlog.Log, evts ...domain.Event) {
	t.Helper()
	for _, evt := range evts {
		payload, err := domain.EncodeEvent(evt)
		require.NoError(t, err)
		require.NoError(t, l.Publish(context.Background(), "events", evt.EventID().String(), payload))
	}
}

func runUntilCommitted(t *testing.T, b *Builder, l *memlog.Log, next int64) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool {
		off, ok := l.Committed("events-processors", "events")
		return ok && off == next
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRunResumesFromStoredOffset(t *testing.T) {
	l := memlog.New(memlog.WithAutoCreateTopics())
	a := created(10)
	publish(t, l, a, updated(a.Data.ValueID, domain.Add, 5))

	first := NewBuilder(l, Options{}, zaptest.NewLogger(t))
	runUntilCommitted(t, first, l, 2)
	got, ok := first.Store().Lookup(a.Data.ValueID)
	require.True(t, ok)
	assert.Equal(t, 15.0, got.Value)

	b := created(3)
	publish(t, l, b, updated(a.Data.ValueID, domain.Add, 1))

	// a restarted builder starts empty and only sees events after the commit
	second := NewBuilder(l, Options{}, zaptest.NewLogger(t))
	runUntilCommitted(t, second, l, 4)

	_, ok = second.Store().Lookup(a.Data.ValueID)
	assert.False(t, ok, "update of a value created before the restart is dropped")
	got, ok = second.Store().Lookup(b.Data.ValueID)
	require.True(t, ok)
	assert.Equal(t, 3.0, got.Value)
}

func TestRunFailsWhenSubscribeFails(t *testing.T) {
	l := memlog.New()
	err := NewBuilder(l, Options{}, nil).Run(context.Background())
	assert.ErrorIs(t, err, transport.ErrUnknownTopic)
}
