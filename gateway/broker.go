package gateway

import (
	"context"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/natsgate/natsclient"
)

// Broker is the JetStream surface the gateway calls. *natsclient.Client
// implements it; handler tests substitute a stub.
type Broker interface {
	// PublishMessage publishes data to the subject's owning stream and
	// returns the server-assigned sequence.
	PublishMessage(ctx context.Context, subj string, data []byte) (*jetstream.PubAck, error)

	// FetchMessages reads up to limit stored messages matching the filter
	// via an ephemeral ordered consumer, returning the owning stream name.
	FetchMessages(ctx context.Context, filter string, limit int, timeout time.Duration) ([]natsclient.FetchedMessage, string, error)

	// FetchDurable reads through a named durable consumer, acking each
	// message so the cursor advances.
	FetchDurable(ctx context.Context, streamName, consumerName string, limit int, timeout time.Duration) ([]natsclient.FetchedMessage, error)

	// PeekMessages reads from a durable consumer's position without
	// acking; the cursor does not advance.
	PeekMessages(ctx context.Context, streamName, consumerName string, limit int, timeout time.Duration) ([]natsclient.FetchedMessage, error)

	// CreateConsumer creates a durable consumer on the stream
	CreateConsumer(ctx context.Context, streamName string, cfg jetstream.ConsumerConfig) (*jetstream.ConsumerInfo, error)

	// ConsumerInfo returns current state for a durable consumer
	ConsumerInfo(ctx context.Context, streamName, consumerName string) (*jetstream.ConsumerInfo, error)

	// ListConsumers returns all consumers on a stream
	ListConsumers(ctx context.Context, streamName string) ([]*jetstream.ConsumerInfo, error)

	// DeleteConsumer removes a durable consumer
	DeleteConsumer(ctx context.Context, streamName, consumerName string) error

	// ResetConsumer recreates a durable consumer at deliver-all so fetches
	// replay from the start of the stream
	ResetConsumer(ctx context.Context, streamName, consumerName string) (*jetstream.ConsumerInfo, error)

	// StreamInfo returns state for a stream
	StreamInfo(ctx context.Context, streamName string) (*jetstream.StreamInfo, error)

	// ListStreams returns state for all streams
	ListStreams(ctx context.Context) ([]*jetstream.StreamInfo, error)

	// ConsumeFilter starts live delivery of messages matching the filter.
	// The returned stop function tears the ephemeral consumer down.
	ConsumeFilter(ctx context.Context, filter string, handler func(natsclient.FetchedMessage)) (string, func(), error)

	// ConsumeDurable binds to an existing durable consumer, acking as it
	// delivers. The returned stop function detaches without deleting it.
	ConsumeDurable(ctx context.Context, streamName, consumerName string, handler func(natsclient.FetchedMessage)) (func(), error)

	// IsHealthy reports whether the NATS connection is up
	IsHealthy() bool

	// JetStreamAvailable reports whether the JetStream context is usable
	JetStreamAvailable() bool
}

var _ Broker = (*natsclient.Client)(nil)
