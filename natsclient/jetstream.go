package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/natsgate/errors"
	"github.com/c360/natsgate/subject"
)

// FetchedMessage is one stored message read from a stream. Sequence and
// Timestamp come from JetStream metadata, never from the payload.
type FetchedMessage struct {
	Stream    string
	Subject   string
	Sequence  uint64
	Timestamp time.Time
	Data      []byte
}

// JetStream returns the JetStream handle
func (m *Client) JetStream() (jetstream.JetStream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.js == nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("JetStream not initialized"),
			"Client", "JetStream", "get JetStream handle")
	}

	return m.js, nil
}

// streamConfig builds the stream configuration used when provisioning the
// named stream. Subjects cover the bare stream name plus everything below it.
func (m *Client) streamConfig(name string) jetstream.StreamConfig {
	storage := jetstream.FileStorage
	if m.streamDefaults.Storage == "memory" {
		storage = jetstream.MemoryStorage
	}

	replicas := m.streamDefaults.Replicas
	if replicas < 1 {
		replicas = 1
	}

	return jetstream.StreamConfig{
		Name:     name,
		Subjects: []string{name, name + ".>"},
		Storage:  storage,
		Replicas: replicas,
		MaxAge:   m.streamDefaults.MaxAge,
		MaxBytes: m.streamDefaults.MaxBytes,
		MaxMsgs:  m.streamDefaults.MaxMsgs,
	}
}

// EnsureStream creates the named stream if it does not exist yet. An
// existing stream is returned untouched, so operator tuning survives
// gateway restarts.
func (m *Client) EnsureStream(ctx context.Context, name string) (jetstream.Stream, error) {
	if err := m.checkAvailable(); err != nil {
		return nil, err
	}

	js, err := m.JetStream()
	if err != nil {
		m.recordFailure()
		return nil, err
	}

	stream, err := js.CreateStream(ctx, m.streamConfig(name))
	if err != nil {
		if stderrors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
			existing, getErr := js.Stream(ctx, name)
			if getErr != nil {
				m.recordFailure()
				return nil, errors.Wrap(getErr, "Client", "EnsureStream",
					fmt.Sprintf("access existing stream %s", name))
			}
			m.resetCircuit()
			return existing, nil
		}
		m.recordFailure()
		return nil, errors.WrapTransient(err, "Client", "EnsureStream",
			fmt.Sprintf("create stream %s", name))
	}

	m.resetCircuit()
	m.logger.Printf("Provisioned stream %s", name)

	if m.metrics != nil {
		m.metrics.RecordStreamProvisioned()
	}

	return stream, nil
}

// ResolveStream maps a subject (or subject filter) to its owning stream.
// The first token names the stream; the mapping is cached with a TTL, and
// missing streams are provisioned when auto-provisioning is enabled.
func (m *Client) ResolveStream(ctx context.Context, subj string) (string, error) {
	name, err := subject.StreamName(subj)
	if err != nil {
		return "", err
	}

	if cached, ok := m.streamCache.Get(name); ok {
		return cached, nil
	}

	// Concurrent misses for the same stream collapse into one lookup;
	// CreateStream tolerates the cross-process race.
	resolved, err, _ := m.resolveGroup.Do(name, func() (any, error) {
		if cached, ok := m.streamCache.Get(name); ok {
			return cached, nil
		}

		if err := m.checkAvailable(); err != nil {
			return "", err
		}

		js, err := m.JetStream()
		if err != nil {
			m.recordFailure()
			return "", err
		}

		_, err = js.Stream(ctx, name)
		switch {
		case err == nil:
			// Stream exists
		case stderrors.Is(err, jetstream.ErrStreamNotFound):
			if !m.streamDefaults.AutoProvision {
				return "", fmt.Errorf("%w: %s", errors.ErrStreamNotFound, name)
			}
			if _, err := m.EnsureStream(ctx, name); err != nil {
				return "", err
			}
		default:
			m.recordFailure()
			return "", errors.WrapTransient(err, "Client", "ResolveStream",
				fmt.Sprintf("look up stream %s", name))
		}

		m.resetCircuit()
		_ = m.streamCache.Set(name, name)

		return name, nil
	})
	if err != nil {
		return "", err
	}

	return resolved.(string), nil
}

// PublishMessage publishes data to a subject on its owning stream and
// returns the server's ack. The sequence in the ack is JetStream's
// per-stream counter; it is never assigned here.
func (m *Client) PublishMessage(ctx context.Context, subj string, data []byte) (*jetstream.PubAck, error) {
	if err := subject.Validate(subj); err != nil {
		return nil, err
	}

	if _, err := m.ResolveStream(ctx, subj); err != nil {
		return nil, err
	}

	js, err := m.JetStream()
	if err != nil {
		m.recordFailure()
		return nil, err
	}

	ack, err := js.Publish(ctx, subj, data)
	if err != nil {
		m.recordFailure()
		return nil, errors.WrapTransient(err, "Client", "PublishMessage",
			fmt.Sprintf("publish to %s", subj))
	}

	m.resetCircuit()
	return ack, nil
}

// FetchMessages reads up to limit stored messages matching the filter via
// an ephemeral ordered consumer. The timeout bounds the wait; a stream
// with fewer matching messages returns what it has. Messages are returned
// in stream (sequence) order and are never acked.
func (m *Client) FetchMessages(
	ctx context.Context, filter string, limit int, timeout time.Duration,
) ([]FetchedMessage, string, error) {
	if err := subject.ValidateFilter(filter); err != nil {
		return nil, "", err
	}
	if limit < 1 {
		limit = 1
	}

	streamName, err := m.ResolveStream(ctx, filter)
	if err != nil {
		return nil, "", err
	}

	js, err := m.JetStream()
	if err != nil {
		m.recordFailure()
		return nil, "", err
	}

	// The stream also carries the bare stream-name subject, so a filter
	// equal to the stream name still selects that literal subject only.
	cfg := jetstream.OrderedConsumerConfig{
		DeliverPolicy: jetstream.DeliverAllPolicy,
	}
	if filter != "" {
		cfg.FilterSubjects = []string{filter}
	}

	cons, err := js.OrderedConsumer(ctx, streamName, cfg)
	if err != nil {
		m.recordFailure()
		return nil, "", translateJetStreamError(err, streamName, "")
	}

	msgs, err := m.fetchBatch(cons, limit, timeout)
	if err != nil {
		return nil, "", err
	}

	m.resetCircuit()
	return msgs, streamName, nil
}

// FetchDurable reads up to limit messages through a named durable
// consumer, acking each one so the consumer's cursor advances.
func (m *Client) FetchDurable(
	ctx context.Context, streamName, consumerName string, limit int, timeout time.Duration,
) ([]FetchedMessage, error) {
	if limit < 1 {
		limit = 1
	}

	cons, err := m.lookupConsumer(ctx, streamName, consumerName)
	if err != nil {
		return nil, err
	}

	batch, err := cons.Fetch(limit, jetstream.FetchMaxWait(timeout))
	if err != nil {
		m.recordFailure()
		return nil, errors.WrapTransient(err, "Client", "FetchDurable",
			fmt.Sprintf("fetch from %s/%s", streamName, consumerName))
	}

	var msgs []FetchedMessage
	for msg := range batch.Messages() {
		fm, err := toFetchedMessage(msg, streamName)
		if err != nil {
			continue
		}
		msgs = append(msgs, fm)
		if err := msg.Ack(); err != nil {
			m.logger.Errorf("Ack failed for %s/%s seq %d: %v",
				streamName, consumerName, fm.Sequence, err)
		}
	}
	if err := batch.Error(); err != nil {
		m.recordFailure()
		return nil, errors.WrapTransient(err, "Client", "FetchDurable", "drain batch")
	}

	m.resetCircuit()
	return msgs, nil
}

// PeekMessages reads up to limit messages from a durable consumer's
// current position without acking, so the cursor does not advance. The
// read happens through a throwaway ordered consumer starting at the
// durable's ack floor.
func (m *Client) PeekMessages(
	ctx context.Context, streamName, consumerName string, limit int, timeout time.Duration,
) ([]FetchedMessage, error) {
	if limit < 1 {
		limit = 1
	}

	info, err := m.ConsumerInfo(ctx, streamName, consumerName)
	if err != nil {
		return nil, err
	}

	js, err := m.JetStream()
	if err != nil {
		m.recordFailure()
		return nil, err
	}

	cfg := jetstream.OrderedConsumerConfig{
		DeliverPolicy: jetstream.DeliverByStartSequencePolicy,
		OptStartSeq:   info.AckFloor.Stream + 1,
	}
	if fs := info.Config.FilterSubject; fs != "" {
		cfg.FilterSubjects = []string{fs}
	}

	cons, err := js.OrderedConsumer(ctx, streamName, cfg)
	if err != nil {
		m.recordFailure()
		return nil, translateJetStreamError(err, streamName, consumerName)
	}

	msgs, err := m.fetchBatch(cons, limit, timeout)
	if err != nil {
		return nil, err
	}

	m.resetCircuit()
	return msgs, nil
}

// fetchBatch drains one Fetch call into FetchedMessages without acking
func (m *Client) fetchBatch(cons jetstream.Consumer, limit int, timeout time.Duration) ([]FetchedMessage, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	batch, err := cons.Fetch(limit, jetstream.FetchMaxWait(timeout))
	if err != nil {
		m.recordFailure()
		return nil, errors.WrapTransient(err, "Client", "fetchBatch", "fetch messages")
	}

	var msgs []FetchedMessage
	for msg := range batch.Messages() {
		fm, err := toFetchedMessage(msg, "")
		if err != nil {
			continue
		}
		msgs = append(msgs, fm)
	}
	if err := batch.Error(); err != nil {
		m.recordFailure()
		return nil, errors.WrapTransient(err, "Client", "fetchBatch", "drain batch")
	}

	return msgs, nil
}

// CreateConsumer creates a durable consumer on the stream. A consumer that
// already exists with a different configuration is reported via
// errors.ErrConsumerExists.
func (m *Client) CreateConsumer(
	ctx context.Context, streamName string, cfg jetstream.ConsumerConfig,
) (*jetstream.ConsumerInfo, error) {
	if err := m.checkAvailable(); err != nil {
		return nil, err
	}

	js, err := m.JetStream()
	if err != nil {
		m.recordFailure()
		return nil, err
	}

	cons, err := js.CreateConsumer(ctx, streamName, cfg)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrConsumerExists) {
			return nil, fmt.Errorf("%w: %s", errors.ErrConsumerExists, cfg.Durable)
		}
		m.recordFailure()
		return nil, translateJetStreamError(err, streamName, cfg.Durable)
	}

	m.resetCircuit()

	if m.metrics != nil {
		m.metrics.RecordConsumerCreated()
	}

	return cons.CachedInfo(), nil
}

// ConsumerInfo returns current state for a durable consumer
func (m *Client) ConsumerInfo(ctx context.Context, streamName, consumerName string) (*jetstream.ConsumerInfo, error) {
	cons, err := m.lookupConsumer(ctx, streamName, consumerName)
	if err != nil {
		return nil, err
	}

	info, err := cons.Info(ctx)
	if err != nil {
		m.recordFailure()
		return nil, translateJetStreamError(err, streamName, consumerName)
	}

	m.resetCircuit()
	return info, nil
}

// ListConsumers returns info for every consumer on the stream
func (m *Client) ListConsumers(ctx context.Context, streamName string) ([]*jetstream.ConsumerInfo, error) {
	if err := m.checkAvailable(); err != nil {
		return nil, err
	}

	js, err := m.JetStream()
	if err != nil {
		m.recordFailure()
		return nil, err
	}

	stream, err := js.Stream(ctx, streamName)
	if err != nil {
		m.recordFailure()
		return nil, translateJetStreamError(err, streamName, "")
	}

	infos := []*jetstream.ConsumerInfo{}
	lister := stream.ListConsumers(ctx)
	for info := range lister.Info() {
		if info != nil {
			infos = append(infos, info)
		}
	}
	if err := lister.Err(); err != nil {
		m.recordFailure()
		return nil, errors.WrapTransient(err, "Client", "ListConsumers", "list consumers")
	}

	m.resetCircuit()
	return infos, nil
}

// DeleteConsumer removes a durable consumer
func (m *Client) DeleteConsumer(ctx context.Context, streamName, consumerName string) error {
	if err := m.checkAvailable(); err != nil {
		return err
	}

	js, err := m.JetStream()
	if err != nil {
		m.recordFailure()
		return err
	}

	if err := js.DeleteConsumer(ctx, streamName, consumerName); err != nil {
		if !isJetStreamNotFound(err) {
			m.recordFailure()
		}
		return translateJetStreamError(err, streamName, consumerName)
	}

	m.resetCircuit()

	if m.metrics != nil {
		m.metrics.RecordConsumerDeleted()
	}

	return nil
}

// ResetConsumer recreates a durable consumer at deliver-all so subsequent
// fetches replay the stream from the start
func (m *Client) ResetConsumer(ctx context.Context, streamName, consumerName string) (*jetstream.ConsumerInfo, error) {
	info, err := m.ConsumerInfo(ctx, streamName, consumerName)
	if err != nil {
		return nil, err
	}

	cfg := info.Config
	cfg.DeliverPolicy = jetstream.DeliverAllPolicy
	cfg.OptStartSeq = 0
	cfg.OptStartTime = nil

	if err := m.DeleteConsumer(ctx, streamName, consumerName); err != nil {
		return nil, err
	}

	return m.CreateConsumer(ctx, streamName, cfg)
}

// StreamInfo returns configuration and state for a stream
func (m *Client) StreamInfo(ctx context.Context, streamName string) (*jetstream.StreamInfo, error) {
	if err := m.checkAvailable(); err != nil {
		return nil, err
	}

	js, err := m.JetStream()
	if err != nil {
		m.recordFailure()
		return nil, err
	}

	stream, err := js.Stream(ctx, streamName)
	if err != nil {
		if !isJetStreamNotFound(err) {
			m.recordFailure()
		}
		return nil, translateJetStreamError(err, streamName, "")
	}

	info, err := stream.Info(ctx)
	if err != nil {
		m.recordFailure()
		return nil, translateJetStreamError(err, streamName, "")
	}

	m.resetCircuit()
	return info, nil
}

// ListStreams returns info for every stream on the server
func (m *Client) ListStreams(ctx context.Context) ([]*jetstream.StreamInfo, error) {
	if err := m.checkAvailable(); err != nil {
		return nil, err
	}

	js, err := m.JetStream()
	if err != nil {
		m.recordFailure()
		return nil, err
	}

	infos := []*jetstream.StreamInfo{}
	lister := js.ListStreams(ctx)
	for info := range lister.Info() {
		if info != nil {
			infos = append(infos, info)
		}
	}
	if err := lister.Err(); err != nil {
		m.recordFailure()
		return nil, errors.WrapTransient(err, "Client", "ListStreams", "list streams")
	}

	m.resetCircuit()
	return infos, nil
}

// ConsumeFilter starts live delivery of messages matching the filter
// through an ephemeral ordered consumer. Only messages published after the
// subscription starts are delivered; nothing is acked. The returned stop
// function tears the consumer down.
func (m *Client) ConsumeFilter(
	ctx context.Context, filter string, handler func(FetchedMessage),
) (string, func(), error) {
	if err := subject.ValidateFilter(filter); err != nil {
		return "", nil, err
	}

	streamName, err := m.ResolveStream(ctx, filter)
	if err != nil {
		return "", nil, err
	}

	js, err := m.JetStream()
	if err != nil {
		m.recordFailure()
		return "", nil, err
	}

	// As in FetchMessages, a filter equal to the stream name selects the
	// literal subject, not the whole stream.
	cfg := jetstream.OrderedConsumerConfig{
		DeliverPolicy: jetstream.DeliverNewPolicy,
	}
	if filter != "" {
		cfg.FilterSubjects = []string{filter}
	}

	cons, err := js.OrderedConsumer(ctx, streamName, cfg)
	if err != nil {
		m.recordFailure()
		return "", nil, translateJetStreamError(err, streamName, "")
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		fm, convErr := toFetchedMessage(msg, streamName)
		if convErr != nil {
			m.logger.Errorf("Dropping message without metadata on %s: %v", streamName, convErr)
			return
		}
		handler(fm)
	})
	if err != nil {
		m.recordFailure()
		return "", nil, errors.WrapTransient(err, "Client", "ConsumeFilter", "start consume")
	}

	stop, err := m.trackConsumeContext(fmt.Sprintf("filter:%s", filter), cc)
	if err != nil {
		return "", nil, err
	}

	m.resetCircuit()
	return streamName, stop, nil
}

// ConsumeDurable binds to an existing durable consumer and delivers its
// messages, acking each one after the handler returns so the cursor
// advances. The returned stop function detaches without deleting the
// durable.
func (m *Client) ConsumeDurable(
	ctx context.Context, streamName, consumerName string, handler func(FetchedMessage),
) (func(), error) {
	cons, err := m.lookupConsumer(ctx, streamName, consumerName)
	if err != nil {
		return nil, err
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		fm, convErr := toFetchedMessage(msg, streamName)
		if convErr != nil {
			m.logger.Errorf("Dropping message without metadata on %s/%s: %v", streamName, consumerName, convErr)
		} else {
			handler(fm)
		}
		if err := msg.Ack(); err != nil {
			m.logger.Errorf("Ack failed on %s/%s: %v", streamName, consumerName, err)
		}
	})
	if err != nil {
		m.recordFailure()
		return nil, errors.WrapTransient(err, "Client", "ConsumeDurable", "start consume")
	}

	stop, err := m.trackConsumeContext(fmt.Sprintf("durable:%s/%s", streamName, consumerName), cc)
	if err != nil {
		return nil, err
	}

	m.resetCircuit()
	return stop, nil
}

// lookupConsumer resolves a durable consumer, translating lookup failures
func (m *Client) lookupConsumer(ctx context.Context, streamName, consumerName string) (jetstream.Consumer, error) {
	if err := m.checkAvailable(); err != nil {
		return nil, err
	}

	js, err := m.JetStream()
	if err != nil {
		m.recordFailure()
		return nil, err
	}

	cons, err := js.Consumer(ctx, streamName, consumerName)
	if err != nil {
		if !isJetStreamNotFound(err) {
			m.recordFailure()
		}
		return nil, translateJetStreamError(err, streamName, consumerName)
	}

	return cons, nil
}

// trackConsumeContext registers a live consume context so Close can stop
// it, returning the idempotent stop function
func (m *Client) trackConsumeContext(prefix string, cc jetstream.ConsumeContext) (func(), error) {
	m.consumersMu.Lock()
	defer m.consumersMu.Unlock()

	if m.closed.Load() {
		cc.Stop()
		return nil, errors.WrapInvalid(
			fmt.Errorf("client is closed"),
			"Client", "trackConsumeContext", "check client state")
	}

	if m.consumers == nil {
		m.consumers = make(map[string]jetstream.ConsumeContext)
	}

	key := fmt.Sprintf("%s#%d", prefix, m.consumerSeq.Add(1))
	m.consumers[key] = cc

	stop := func() {
		m.consumersMu.Lock()
		if tracked, ok := m.consumers[key]; ok {
			tracked.Stop()
			delete(m.consumers, key)
		}
		m.consumersMu.Unlock()
	}

	return stop, nil
}

// toFetchedMessage converts a JetStream message using its server metadata
func toFetchedMessage(msg jetstream.Msg, streamName string) (FetchedMessage, error) {
	meta, err := msg.Metadata()
	if err != nil {
		return FetchedMessage{}, err
	}

	if streamName == "" {
		streamName = meta.Stream
	}

	return FetchedMessage{
		Stream:    streamName,
		Subject:   msg.Subject(),
		Sequence:  meta.Sequence.Stream,
		Timestamp: meta.Timestamp,
		Data:      msg.Data(),
	}, nil
}

// translateJetStreamError maps JetStream sentinel errors onto the
// repo's classification sentinels so the HTTP layer can map status codes
func translateJetStreamError(err error, streamName, consumerName string) error {
	switch {
	case stderrors.Is(err, jetstream.ErrStreamNotFound):
		return fmt.Errorf("%w: %s", errors.ErrStreamNotFound, streamName)
	case stderrors.Is(err, jetstream.ErrConsumerNotFound):
		return fmt.Errorf("%w: %s/%s", errors.ErrConsumerNotFound, streamName, consumerName)
	case stderrors.Is(err, jetstream.ErrConsumerExists):
		return fmt.Errorf("%w: %s", errors.ErrConsumerExists, consumerName)
	default:
		return err
	}
}

// isJetStreamNotFound reports whether the error is a missing stream or consumer
func isJetStreamNotFound(err error) bool {
	return stderrors.Is(err, jetstream.ErrStreamNotFound) ||
		stderrors.Is(err, jetstream.ErrConsumerNotFound)
}
