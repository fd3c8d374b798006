package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// newClusterAdmin creates a new sarama.ClusterAdmin
func (c *Client) newClusterAdmin() (sarama.ClusterAdmin, error) {
	saramaConfig, err := c.config.ToSaramaConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create sarama config: %w", err)
	}

	admin, err := sarama.NewClusterAdmin(c.config.GetBrokers(), saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create cluster admin: %w", err)
	}

	return admin, nil
}

// EnsureTopics creates each topic that does not exist yet.
func (c *Client) EnsureTopics(_ context.Context, topics ...string) error {
	admin, err := c.newClusterAdmin()
	if err != nil {
		return err
	}
	defer admin.Close()

	return ensureTopics(admin, c.config, c.logger, topics...)
}

func ensureTopics(admin sarama.ClusterAdmin, config *Config, logger *zap.Logger, topics ...string) error {
	existing, err := admin.ListTopics()
	if err != nil {
		return fmt.Errorf("failed to list topics: %w", err)
	}

	for _, topic := range topics {
		if _, exists := existing[topic]; exists {
			logger.Debug("Topic exists", zap.String("topic", topic))
			continue
		}

		detail := &sarama.TopicDetail{
			NumPartitions:     config.Partitions,
			ReplicationFactor: config.Replicas,
			ConfigEntries: map[string]*string{
				"retention.ms": stringPtr(fmt.Sprintf("%d", config.RetentionMS)),
			},
		}
		if err := admin.CreateTopic(topic, detail, false); err != nil {
			return fmt.Errorf("failed to create topic %s: %w", topic, err)
		}
		logger.Info("Topic created",
			zap.String("topic", topic),
			zap.Int32("partitions", config.Partitions),
			zap.Int16("replicas", config.Replicas))
	}
	return nil
}

func stringPtr(s string) *string {
	return &s
}
