// Package kafka implements transport.Transport on Apache Kafka using
// github.com/IBM/sarama.
//
// Topics:
//   - Case-sensitive, no spaces
//   - Valid chars: alphanumeric, `.`, `-`, `_`
//   - Created with the configured partition count (1) and replication factor
//
// Message format:
//   - Key: the command or event id
//   - Value: the JSON encoded command or event
//
// Offsets:
//   - Subscriptions read partition 0 with a sarama.PartitionConsumer
//   - Earliest starts at sarama.OffsetOldest; Stored asks the group's
//     sarama.PartitionOffsetManager for the next offset
//   - Commit marks offset+1; marked offsets are flushed by sarama's
//     auto-commit ticker (async) or by OffsetManager.Commit (sync)
//
// Consumer groups:
//   - commands-processors for the validator
//   - events-processors for the view builder
package kafka
