// Package nats implements transport.Transport on NATS JetStream.
//
// Each log topic maps to one stream:
//
//	stream:  <prefix>-<topic>    e.g. valuelog-commands
//	subject: <prefix>.<topic>    e.g. valuelog.commands
//
// Subject rules:
//   - Case-sensitive, dot-separated, no spaces
//   - Valid chars: alphanumeric, `-` or `_`
//   - Max length: 255 bytes
//
// A consumer group is a durable pull consumer with AckAll policy, so acking
// a message commits every earlier one, the same way a Kafka offset commit does.
// The stream sequence minus one is reported as the message offset.
//
// Publish sets the Nats-Msg-Id header to the record key, which lets the
// server drop duplicates published within the stream's duplicate window.
package nats
