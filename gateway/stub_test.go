package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/natsgate/component"
	"github.com/c360/natsgate/errors"
	"github.com/c360/natsgate/natsclient"
)

// stubBroker implements Broker with overridable functions. Unset
// functions answer like an empty but reachable JetStream.
type stubBroker struct {
	mu sync.Mutex

	publishFn        func(ctx context.Context, subj string, data []byte) (*jetstream.PubAck, error)
	fetchFn          func(ctx context.Context, filter string, limit int, timeout time.Duration) ([]natsclient.FetchedMessage, string, error)
	fetchDurableFn   func(ctx context.Context, stream, consumer string, limit int, timeout time.Duration) ([]natsclient.FetchedMessage, error)
	peekFn           func(ctx context.Context, stream, consumer string, limit int, timeout time.Duration) ([]natsclient.FetchedMessage, error)
	createConsumerFn func(ctx context.Context, stream string, cfg jetstream.ConsumerConfig) (*jetstream.ConsumerInfo, error)
	consumerInfoFn   func(ctx context.Context, stream, consumer string) (*jetstream.ConsumerInfo, error)
	listConsumersFn  func(ctx context.Context, stream string) ([]*jetstream.ConsumerInfo, error)
	deleteConsumerFn func(ctx context.Context, stream, consumer string) error
	resetConsumerFn  func(ctx context.Context, stream, consumer string) (*jetstream.ConsumerInfo, error)
	streamInfoFn     func(ctx context.Context, stream string) (*jetstream.StreamInfo, error)
	listStreamsFn    func(ctx context.Context) ([]*jetstream.StreamInfo, error)
	consumeFilterFn  func(ctx context.Context, filter string, handler func(natsclient.FetchedMessage)) (string, func(), error)
	consumeDurableFn func(ctx context.Context, stream, consumer string, handler func(natsclient.FetchedMessage)) (func(), error)

	healthy        bool
	jsAvailable    bool
	published      [][]byte
	publishedSubjs []string
}

func newStubBroker() *stubBroker {
	return &stubBroker{healthy: true, jsAvailable: true}
}

func (s *stubBroker) PublishMessage(ctx context.Context, subj string, data []byte) (*jetstream.PubAck, error) {
	s.mu.Lock()
	s.published = append(s.published, append([]byte(nil), data...))
	s.publishedSubjs = append(s.publishedSubjs, subj)
	seq := uint64(len(s.published))
	s.mu.Unlock()

	if s.publishFn != nil {
		return s.publishFn(ctx, subj, data)
	}
	return &jetstream.PubAck{Stream: "events", Sequence: seq}, nil
}

func (s *stubBroker) FetchMessages(ctx context.Context, filter string, limit int, timeout time.Duration) ([]natsclient.FetchedMessage, string, error) {
	if s.fetchFn != nil {
		return s.fetchFn(ctx, filter, limit, timeout)
	}
	return nil, "events", nil
}

func (s *stubBroker) FetchDurable(ctx context.Context, stream, consumer string, limit int, timeout time.Duration) ([]natsclient.FetchedMessage, error) {
	if s.fetchDurableFn != nil {
		return s.fetchDurableFn(ctx, stream, consumer, limit, timeout)
	}
	return nil, nil
}

func (s *stubBroker) PeekMessages(ctx context.Context, stream, consumer string, limit int, timeout time.Duration) ([]natsclient.FetchedMessage, error) {
	if s.peekFn != nil {
		return s.peekFn(ctx, stream, consumer, limit, timeout)
	}
	return nil, nil
}

func (s *stubBroker) CreateConsumer(ctx context.Context, stream string, cfg jetstream.ConsumerConfig) (*jetstream.ConsumerInfo, error) {
	if s.createConsumerFn != nil {
		return s.createConsumerFn(ctx, stream, cfg)
	}
	return &jetstream.ConsumerInfo{Stream: stream, Name: cfg.Durable, Config: cfg}, nil
}

func (s *stubBroker) ConsumerInfo(ctx context.Context, stream, consumer string) (*jetstream.ConsumerInfo, error) {
	if s.consumerInfoFn != nil {
		return s.consumerInfoFn(ctx, stream, consumer)
	}
	return nil, errors.WrapInvalid(errors.ErrConsumerNotFound, "stubBroker", "ConsumerInfo", "lookup")
}

func (s *stubBroker) ListConsumers(ctx context.Context, stream string) ([]*jetstream.ConsumerInfo, error) {
	if s.listConsumersFn != nil {
		return s.listConsumersFn(ctx, stream)
	}
	return nil, nil
}

func (s *stubBroker) DeleteConsumer(ctx context.Context, stream, consumer string) error {
	if s.deleteConsumerFn != nil {
		return s.deleteConsumerFn(ctx, stream, consumer)
	}
	return nil
}

func (s *stubBroker) ResetConsumer(ctx context.Context, stream, consumer string) (*jetstream.ConsumerInfo, error) {
	if s.resetConsumerFn != nil {
		return s.resetConsumerFn(ctx, stream, consumer)
	}
	return &jetstream.ConsumerInfo{Stream: stream, Name: consumer}, nil
}

func (s *stubBroker) StreamInfo(ctx context.Context, stream string) (*jetstream.StreamInfo, error) {
	if s.streamInfoFn != nil {
		return s.streamInfoFn(ctx, stream)
	}
	return nil, errors.WrapInvalid(errors.ErrStreamNotFound, "stubBroker", "StreamInfo", "lookup")
}

func (s *stubBroker) ListStreams(ctx context.Context) ([]*jetstream.StreamInfo, error) {
	if s.listStreamsFn != nil {
		return s.listStreamsFn(ctx)
	}
	return nil, nil
}

func (s *stubBroker) ConsumeFilter(ctx context.Context, filter string, handler func(natsclient.FetchedMessage)) (string, func(), error) {
	if s.consumeFilterFn != nil {
		return s.consumeFilterFn(ctx, filter, handler)
	}
	return "events", func() {}, nil
}

func (s *stubBroker) ConsumeDurable(ctx context.Context, stream, consumer string, handler func(natsclient.FetchedMessage)) (func(), error) {
	if s.consumeDurableFn != nil {
		return s.consumeDurableFn(ctx, stream, consumer, handler)
	}
	return func() {}, nil
}

func (s *stubBroker) IsHealthy() bool          { return s.healthy }
func (s *stubBroker) JetStreamAvailable() bool { return s.jsAvailable }

// publishedPayloads returns a copy of everything published so far
func (s *stubBroker) publishedPayloads() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.published...)
}

// testGateway builds a gateway around the stub broker, ready to serve
// through buildHandler without Start.
func testGateway(broker Broker, mutate ...func(*Config)) *Gateway {
	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	deps := component.Dependencies{
		Logger: slog.Default(),
	}
	return newGateway(cfg, broker, deps)
}
