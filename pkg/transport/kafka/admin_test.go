package kafka

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeAdmin overrides the calls ensureTopics makes; everything else panics
// through the nil embedded interface.
type fakeAdmin struct {
	sarama.ClusterAdmin
	topics  map[string]sarama.TopicDetail
	created map[string]*sarama.TopicDetail
}

func (f *fakeAdmin) ListTopics() (map[string]sarama.TopicDetail, error) {
	return f.topics, nil
}

func (f *fakeAdmin) CreateTopic(topic string, detail *sarama.TopicDetail, _ bool) error {
	f.created[topic] = detail
	return nil
}

func TestEnsureTopicsCreatesMissing(t *testing.T) {
	admin := &fakeAdmin{
		topics:  map[string]sarama.TopicDetail{"commands": {NumPartitions: 1}},
		created: map[string]*sarama.TopicDetail{},
	}
	cfg := DefaultConfig()
	cfg.Replicas = 3

	require.NoError(t, ensureTopics(admin, &cfg, zap.NewNop(), "commands", "events"))

	require.Len(t, admin.created, 1)
	detail := admin.created["events"]
	require.NotNil(t, detail)
	assert.Equal(t, int32(1), detail.NumPartitions)
	assert.Equal(t, int16(3), detail.ReplicationFactor)
	assert.Equal(t, "604800000", *detail.ConfigEntries["retention.ms"])
}
