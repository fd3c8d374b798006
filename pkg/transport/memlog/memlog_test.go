package memlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/edgeflare/valuelog/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishN(t *testing.T, l *Log, topic string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, l.Publish(context.Background(), topic, "k", []byte{byte(i)}))
	}
}

func TestEarliestReplaysEverything(t *testing.T) {
	ctx := context.Background()
	l := New()
	require.NoError(t, l.EnsureTopics(ctx, "commands"))
	publishN(t, l, "commands", 3)

	sub, err := l.Subscribe(ctx, transport.Assignment{Topic: "commands", Group: "g", Start: transport.Earliest})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		msg, err := sub.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(i), msg.Offset)
		require.NoError(t, sub.Commit(ctx, msg, transport.CommitSync))
	}
	require.NoError(t, sub.Close())

	// a second earliest subscription ignores the committed offset
	sub, err = l.Subscribe(ctx, transport.Assignment{Topic: "commands", Group: "g", Start: transport.Earliest})
	require.NoError(t, err)
	msg, err := sub.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), msg.Offset)
}

func TestStoredResumesFromCommit(t *testing.T) {
	ctx := context.Background()
	l := New(WithAutoCreateTopics())
	publishN(t, l, "events", 4)

	sub, err := l.Subscribe(ctx, transport.Assignment{Topic: "events", Group: "g", Start: transport.Stored})
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		msg, err := sub.Receive(ctx)
		require.NoError(t, err)
		require.NoError(t, sub.Commit(ctx, msg, transport.CommitAsync))
	}
	require.NoError(t, sub.Close())

	next, ok := l.Committed("g", "events")
	require.True(t, ok)
	assert.Equal(t, int64(2), next)

	sub, err = l.Subscribe(ctx, transport.Assignment{Topic: "events", Group: "g", Start: transport.Stored})
	require.NoError(t, err)
	msg, err := sub.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), msg.Offset)

	// other groups start from the beginning
	other, err := l.Subscribe(ctx, transport.Assignment{Topic: "events", Group: "other", Start: transport.Stored})
	require.NoError(t, err)
	msg, err = other.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), msg.Offset)
}

func TestReceiveBlocksUntilPublish(t *testing.T) {
	ctx := context.Background()
	l := New(WithAutoCreateTopics())
	sub, err := l.Subscribe(ctx, transport.Assignment{Topic: "t", Group: "g"})
	require.NoError(t, err)

	got := make(chan transport.Message, 1)
	go func() {
		msg, err := sub.Receive(ctx)
		if err == nil {
			got <- msg
		}
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, l.Publish(ctx, "t", "k", []byte("hello")))

	select {
	case msg := <-got:
		assert.Equal(t, "hello", string(msg.Payload))
		assert.Equal(t, "k", string(msg.Key))
	case <-time.After(time.Second):
		t.Fatal("receive did not wake up")
	}
}

func TestReceiveHonoursContextAndClose(t *testing.T) {
	l := New(WithAutoCreateTopics())
	sub, err := l.Subscribe(context.Background(), transport.Assignment{Topic: "t", Group: "g"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = sub.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, sub.Close())
	_, err = sub.Receive(context.Background())
	assert.ErrorIs(t, err, transport.ErrClosed)
}

func TestUnknownTopicAndPublishFailure(t *testing.T) {
	ctx := context.Background()
	l := New()

	_, err := l.Subscribe(ctx, transport.Assignment{Topic: "missing"})
	assert.ErrorIs(t, err, transport.ErrUnknownTopic)

	require.NoError(t, l.EnsureTopics(ctx, "events"))
	boom := errors.New("broker down")
	l.FailPublish("events", boom)
	assert.ErrorIs(t, l.Publish(ctx, "events", "k", nil), boom)
	assert.Empty(t, l.Records("events"))

	l.FailPublish("events", nil)
	assert.NoError(t, l.Publish(ctx, "events", "k", nil))
	assert.Len(t, l.Records("events"), 1)
}
