package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/natsgate/component"
	"github.com/c360/natsgate/errors"
	"github.com/c360/natsgate/message"
	"github.com/c360/natsgate/metric"
	"github.com/c360/natsgate/natsclient"
)

func doRequest(t *testing.T, g *Gateway, method, path string, body []byte, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	rec := httptest.NewRecorder()
	g.buildHandler().ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHandleProtoPublish(t *testing.T) {
	broker := newStubBroker()
	g := testGateway(broker)

	msg := message.PublishMessage{
		MessageID: "msg-1",
		Source:    "test",
		Data:      []byte(`{"hello":"world"}`),
		Metadata:  map[string]string{"k": "v"},
	}

	rec := doRequest(t, g, http.MethodPost, "/api/proto/protobufmessages/events.user.created", msg.Marshal(), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-protobuf", rec.Header().Get("Content-Type"))

	var ack message.PublishAck
	require.NoError(t, ack.Unmarshal(rec.Body.Bytes()))
	assert.True(t, ack.Published)
	assert.Equal(t, "events.user.created", ack.Subject)
	assert.Equal(t, "events", ack.Stream)
	assert.Equal(t, uint64(1), ack.Sequence)

	// The envelope's data field is the payload, not the whole envelope
	published := broker.publishedPayloads()
	require.Len(t, published, 1)
	assert.Equal(t, []byte(`{"hello":"world"}`), published[0])
}

func TestHandleProtoPublish_LegacyAlias(t *testing.T) {
	g := testGateway(newStubBroker())

	msg := message.PublishMessage{Data: []byte("x")}
	rec := doRequest(t, g, http.MethodPost, "/api/proto/ProtobufMessages/events.test", msg.Marshal(), nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleProtoPublish_MalformedBody(t *testing.T) {
	g := testGateway(newStubBroker())

	// Valid tag with a truncated length-delimited field
	rec := doRequest(t, g, http.MethodPost, "/api/proto/protobufmessages/events.test", []byte{0x0a, 0xff}, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeJSON[map[string]any](t, rec)
	assert.Equal(t, float64(http.StatusBadRequest), body["status"])
}

func TestHandleProtoPublish_BrokerDown(t *testing.T) {
	broker := newStubBroker()
	broker.publishFn = func(context.Context, string, []byte) (*jetstream.PubAck, error) {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "Client", "PublishMessage", "publish")
	}
	g := testGateway(broker)

	msg := message.PublishMessage{Data: []byte("x")}
	rec := doRequest(t, g, http.MethodPost, "/api/proto/protobufmessages/events.test", msg.Marshal(), nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleProtoPublish_BodyTooLarge(t *testing.T) {
	g := testGateway(newStubBroker(), func(c *Config) {
		c.MaxRequestSize = 64
	})

	big := message.PublishMessage{Data: bytes.Repeat([]byte("x"), 128)}
	rec := doRequest(t, g, http.MethodPost, "/api/proto/protobufmessages/events.test", big.Marshal(), nil)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandleProtoFetch(t *testing.T) {
	now := time.Now()
	broker := newStubBroker()
	broker.fetchFn = func(_ context.Context, filter string, limit int, timeout time.Duration) ([]natsclient.FetchedMessage, string, error) {
		assert.Equal(t, "events.user.created", filter)
		assert.Equal(t, 5, limit)
		assert.Equal(t, 5*time.Second, timeout)
		return []natsclient.FetchedMessage{
			{Stream: "events", Subject: "events.user.created", Sequence: 3, Timestamp: now, Data: []byte("a")},
			{Stream: "events", Subject: "events.user.created", Sequence: 7, Timestamp: now, Data: []byte("bb")},
		}, "events", nil
	}
	g := testGateway(broker)

	rec := doRequest(t, g, http.MethodGet, "/api/proto/protobufmessages/events.user.created?limit=5", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp message.FetchResponse
	require.NoError(t, resp.Unmarshal(rec.Body.Bytes()))
	assert.Equal(t, int32(2), resp.Count)
	assert.Equal(t, "events", resp.Stream)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, uint64(3), resp.Messages[0].Sequence)
	assert.Equal(t, uint64(7), resp.Messages[1].Sequence)
	assert.Equal(t, int64(2), resp.Messages[1].SizeBytes)
	assert.Less(t, resp.Messages[0].Sequence, resp.Messages[1].Sequence)
}

func TestHandleProtoFetch_EmptyStream(t *testing.T) {
	g := testGateway(newStubBroker())

	rec := doRequest(t, g, http.MethodGet, "/api/proto/protobufmessages/events.none", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp message.FetchResponse
	require.NoError(t, resp.Unmarshal(rec.Body.Bytes()))
	assert.Zero(t, resp.Count)
	assert.Empty(t, resp.Messages)
}

func TestHandleProtoFetch_LimitClamped(t *testing.T) {
	broker := newStubBroker()
	var gotLimit int
	broker.fetchFn = func(_ context.Context, _ string, limit int, _ time.Duration) ([]natsclient.FetchedMessage, string, error) {
		gotLimit = limit
		return nil, "events", nil
	}
	g := testGateway(broker)

	rec := doRequest(t, g, http.MethodGet, "/api/proto/protobufmessages/events.a?limit=99999", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, MaxFetchLimit, gotLimit)
}

func TestHandleProtoFetch_BadLimit(t *testing.T) {
	g := testGateway(newStubBroker())

	rec := doRequest(t, g, http.MethodGet, "/api/proto/protobufmessages/events.a?limit=abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleProtoUserEvent(t *testing.T) {
	broker := newStubBroker()
	g := testGateway(broker)

	ev := message.UserEvent{
		UserID:    "u-1",
		EventType: "signup",
		Email:     "u@example.com",
	}
	rec := doRequest(t, g, http.MethodPost, "/api/proto/protobufmessages/events.user/user-event", ev.Marshal(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The published payload is an envelope wrapping the raw event bytes
	published := broker.publishedPayloads()
	require.Len(t, published, 1)

	var envelope message.PublishMessage
	require.NoError(t, envelope.Unmarshal(published[0]))
	assert.Equal(t, "user-event", envelope.Metadata["message_type"])
	assert.NotEmpty(t, envelope.MessageID)

	var unwrapped message.UserEvent
	require.NoError(t, unwrapped.Unmarshal(envelope.Data))
	assert.Equal(t, "u-1", unwrapped.UserID)
}

func TestHandleProtoPaymentEvent(t *testing.T) {
	broker := newStubBroker()
	g := testGateway(broker)

	ev := message.PaymentEvent{
		TransactionID: "tx-9",
		Status:        "captured",
		Amount:        19.99,
		Currency:      "USD",
	}
	rec := doRequest(t, g, http.MethodPost, "/api/proto/protobufmessages/payments.captured/payment-event", ev.Marshal(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	published := broker.publishedPayloads()
	require.Len(t, published, 1)

	var envelope message.PublishMessage
	require.NoError(t, envelope.Unmarshal(published[0]))
	assert.Equal(t, "payment-event", envelope.Metadata["message_type"])
}

func TestHandleJSONPublish(t *testing.T) {
	broker := newStubBroker()
	g := testGateway(broker)

	body := []byte(`{"source":"test","data":{"order": 42},"metadata":{"k":"v"}}`)
	rec := doRequest(t, g, http.MethodPost, "/api/messages/events.order.placed", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	ack := decodeJSON[message.PublishAck](t, rec)
	assert.True(t, ack.Published)
	assert.Equal(t, "events.order.placed", ack.Subject)
	assert.Equal(t, uint64(1), ack.Sequence)

	published := broker.publishedPayloads()
	require.Len(t, published, 1)
	assert.JSONEq(t, `{"order":42}`, string(published[0]))
}

func TestHandleJSONPublish_MissingData(t *testing.T) {
	g := testGateway(newStubBroker())

	rec := doRequest(t, g, http.MethodPost, "/api/messages/events.a", []byte(`{"source":"x"}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleJSONPublish_MalformedBody(t *testing.T) {
	g := testGateway(newStubBroker())

	rec := doRequest(t, g, http.MethodPost, "/api/messages/events.a", []byte(`{not json`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleJSONFetch(t *testing.T) {
	broker := newStubBroker()
	broker.fetchFn = func(_ context.Context, _ string, _ int, _ time.Duration) ([]natsclient.FetchedMessage, string, error) {
		return []natsclient.FetchedMessage{
			{Subject: "events.a", Sequence: 1, Data: []byte("x")},
		}, "events", nil
	}
	g := testGateway(broker)

	rec := doRequest(t, g, http.MethodGet, "/api/messages/events.a", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	resp := decodeJSON[map[string]any](t, rec)
	assert.Equal(t, float64(1), resp["count"])
}

func TestHandleDurableFetch(t *testing.T) {
	broker := newStubBroker()
	var gotStream, gotConsumer string
	broker.fetchDurableFn = func(_ context.Context, stream, consumer string, _ int, _ time.Duration) ([]natsclient.FetchedMessage, error) {
		gotStream, gotConsumer = stream, consumer
		return []natsclient.FetchedMessage{{Subject: "events.a", Sequence: 12, Data: []byte("x")}}, nil
	}
	g := testGateway(broker)

	rec := doRequest(t, g, http.MethodGet, "/api/messages/events/consumer/worker-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "events", gotStream)
	assert.Equal(t, "worker-1", gotConsumer)
}

func TestHandleDurableFetch_UnknownConsumer(t *testing.T) {
	broker := newStubBroker()
	broker.fetchDurableFn = func(_ context.Context, _, _ string, _ int, _ time.Duration) ([]natsclient.FetchedMessage, error) {
		return nil, errors.WrapInvalid(errors.ErrConsumerNotFound, "Client", "FetchDurable", "lookup")
	}
	g := testGateway(broker)

	rec := doRequest(t, g, http.MethodGet, "/api/messages/events/consumer/ghost", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	body := decodeJSON[map[string]any](t, rec)
	assert.Equal(t, "consumer not found", body["error"])
}

func TestHandleConsumerTemplates(t *testing.T) {
	g := testGateway(newStubBroker())

	rec := doRequest(t, g, http.MethodGet, "/api/consumers/templates", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	templates := decodeJSON[[]consumerTemplate](t, rec)
	require.NotEmpty(t, templates)
	for _, tpl := range templates {
		assert.NotEmpty(t, tpl.Name)
		assert.NotEmpty(t, tpl.Description)
		assert.NotEmpty(t, tpl.Config.DeliverPolicy)
	}
}

func TestHandleConsumerCreate(t *testing.T) {
	broker := newStubBroker()
	var gotCfg jetstream.ConsumerConfig
	broker.createConsumerFn = func(_ context.Context, stream string, cfg jetstream.ConsumerConfig) (*jetstream.ConsumerInfo, error) {
		gotCfg = cfg
		return &jetstream.ConsumerInfo{Stream: stream, Name: cfg.Durable, Config: cfg}, nil
	}
	g := testGateway(broker)

	body := []byte(`{
		"name": "worker-1",
		"durable": true,
		"filterSubject": "events.user.>",
		"deliverPolicy": "all",
		"ackPolicy": "explicit",
		"maxDeliver": 3,
		"ackWait": "30s"
	}`)
	rec := doRequest(t, g, http.MethodPost, "/api/consumers/events", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, "worker-1", gotCfg.Durable)
	assert.Equal(t, "events.user.>", gotCfg.FilterSubject)
	assert.Equal(t, jetstream.DeliverAllPolicy, gotCfg.DeliverPolicy)
	assert.Equal(t, jetstream.AckExplicitPolicy, gotCfg.AckPolicy)
	assert.Equal(t, 30*time.Second, gotCfg.AckWait)

	resp := decodeJSON[consumerCreateResponse](t, rec)
	assert.Equal(t, "worker-1", resp.Name)
	assert.Equal(t, "events", resp.Stream)
}

// Consumer lifecycle counters are recorded in the broker layer so
// SDK-path operations count too; the handlers must not add to them or
// every create/delete through HTTP is double-counted.
func TestConsumerHandlers_LifecycleCountersStayWithBroker(t *testing.T) {
	broker := newStubBroker()
	broker.createConsumerFn = func(_ context.Context, stream string, cfg jetstream.ConsumerConfig) (*jetstream.ConsumerInfo, error) {
		return &jetstream.ConsumerInfo{Stream: stream, Name: cfg.Durable, Config: cfg}, nil
	}

	registry := metric.NewMetricsRegistry()
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	g := newGateway(cfg, broker, component.Dependencies{
		Logger:          slog.Default(),
		MetricsRegistry: registry,
	})

	rec := doRequest(t, g, http.MethodPost, "/api/consumers/events",
		[]byte(`{"name": "worker-1", "durable": true, "ackPolicy": "explicit"}`), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, g, http.MethodDelete, "/api/consumers/events/worker-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		switch mf.GetName() {
		case "natsgate_consumers_created_total", "natsgate_consumers_deleted_total":
			require.Len(t, mf.Metric, 1)
			assert.Zero(t, mf.Metric[0].Counter.GetValue(),
				"%s must only be recorded by the broker layer", mf.GetName())
		}
	}
}

func TestHandleConsumerCreate_HHMMSSAckWait(t *testing.T) {
	broker := newStubBroker()
	var gotCfg jetstream.ConsumerConfig
	broker.createConsumerFn = func(_ context.Context, stream string, cfg jetstream.ConsumerConfig) (*jetstream.ConsumerInfo, error) {
		gotCfg = cfg
		return &jetstream.ConsumerInfo{Stream: stream, Name: cfg.Durable, Config: cfg}, nil
	}
	g := testGateway(broker)

	body := []byte(`{"name": "w", "durable": true, "deliverPolicy": "all", "ackPolicy": "explicit", "ackWait": "00:01:30"}`)
	rec := doRequest(t, g, http.MethodPost, "/api/consumers/events", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 90*time.Second, gotCfg.AckWait)
}

func TestHandleConsumerCreate_Invalid(t *testing.T) {
	g := testGateway(newStubBroker())

	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"durable": true, "deliverPolicy": "all", "ackPolicy": "explicit"}`},
		{"bad deliver policy", `{"name": "w", "deliverPolicy": "sometimes", "ackPolicy": "explicit"}`},
		{"bad ack policy", `{"name": "w", "deliverPolicy": "all", "ackPolicy": "maybe"}`},
		{"bad ackWait", `{"name": "w", "deliverPolicy": "all", "ackPolicy": "explicit", "ackWait": "soon"}`},
		{"not json", `{{{{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, g, http.MethodPost, "/api/consumers/events", []byte(tt.body), nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleConsumerCreate_Conflict(t *testing.T) {
	broker := newStubBroker()
	broker.createConsumerFn = func(context.Context, string, jetstream.ConsumerConfig) (*jetstream.ConsumerInfo, error) {
		return nil, errors.WrapInvalid(errors.ErrConsumerExists, "Client", "CreateConsumer", "create")
	}
	g := testGateway(broker)

	body := []byte(`{"name": "w", "durable": true, "deliverPolicy": "all", "ackPolicy": "explicit"}`)
	rec := doRequest(t, g, http.MethodPost, "/api/consumers/events", body, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleConsumerInfo(t *testing.T) {
	now := time.Now()
	broker := newStubBroker()
	broker.consumerInfoFn = func(_ context.Context, stream, consumer string) (*jetstream.ConsumerInfo, error) {
		return &jetstream.ConsumerInfo{
			Stream: stream,
			Name:   consumer,
			Config: jetstream.ConsumerConfig{
				Durable:       consumer,
				FilterSubject: "events.>",
				DeliverPolicy: jetstream.DeliverAllPolicy,
				AckPolicy:     jetstream.AckExplicitPolicy,
				AckWait:       30 * time.Second,
			},
			Delivered:      jetstream.SequenceInfo{Stream: 42, Last: &now},
			AckFloor:       jetstream.SequenceInfo{Stream: 40},
			NumPending:     8,
			NumAckPending:  2,
			NumRedelivered: 1,
		}, nil
	}
	g := testGateway(broker)

	rec := doRequest(t, g, http.MethodGet, "/api/consumers/events/worker-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	info := decodeJSON[consumerInfoResponse](t, rec)
	assert.Equal(t, "worker-1", info.Name)
	assert.True(t, info.Durable)
	assert.Equal(t, uint64(42), info.DeliveredSeq)
	assert.Equal(t, uint64(40), info.AckFloorSeq)
	assert.Equal(t, uint64(8), info.NumPending)
}

func TestHandleConsumerInfo_NotFound(t *testing.T) {
	g := testGateway(newStubBroker())

	rec := doRequest(t, g, http.MethodGet, "/api/consumers/events/ghost", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleConsumerList(t *testing.T) {
	broker := newStubBroker()
	broker.listConsumersFn = func(_ context.Context, stream string) ([]*jetstream.ConsumerInfo, error) {
		return []*jetstream.ConsumerInfo{
			{Stream: stream, Name: "a", Config: jetstream.ConsumerConfig{Durable: "a"}},
			{Stream: stream, Name: "b", Config: jetstream.ConsumerConfig{Durable: "b"}},
		}, nil
	}
	g := testGateway(broker)

	rec := doRequest(t, g, http.MethodGet, "/api/consumers/events", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeJSON[map[string]json.RawMessage](t, rec)
	var consumers []consumerInfoResponse
	require.NoError(t, json.Unmarshal(resp["consumers"], &consumers))
	assert.Len(t, consumers, 2)
}

func TestHandleConsumerPeek_CursorUnchanged(t *testing.T) {
	broker := newStubBroker()
	peeked := false
	broker.peekFn = func(_ context.Context, _, _ string, _ int, _ time.Duration) ([]natsclient.FetchedMessage, error) {
		peeked = true
		return []natsclient.FetchedMessage{{Subject: "events.a", Sequence: 5, Data: []byte("x")}}, nil
	}
	broker.fetchDurableFn = func(context.Context, string, string, int, time.Duration) ([]natsclient.FetchedMessage, error) {
		t.Fatal("peek must not use the acking fetch path")
		return nil, nil
	}
	g := testGateway(broker)

	rec := doRequest(t, g, http.MethodGet, "/api/consumers/events/worker-1/messages?limit=1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, peeked)
}

func TestHandleConsumerHealth(t *testing.T) {
	broker := newStubBroker()
	saturated := false
	broker.consumerInfoFn = func(_ context.Context, stream, consumer string) (*jetstream.ConsumerInfo, error) {
		info := &jetstream.ConsumerInfo{
			Stream:        stream,
			Name:          consumer,
			Config:        jetstream.ConsumerConfig{MaxAckPending: 10},
			NumPending:    3,
			NumAckPending: 2,
		}
		if saturated {
			info.NumAckPending = 10
		}
		return info, nil
	}
	g := testGateway(broker)

	rec := doRequest(t, g, http.MethodGet, "/api/consumers/events/worker-1/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decodeJSON[consumerHealthResponse](t, rec)
	assert.True(t, health.Healthy)
	assert.Equal(t, uint64(3), health.Lag)

	saturated = true
	rec = doRequest(t, g, http.MethodGet, "/api/consumers/events/worker-1/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health = decodeJSON[consumerHealthResponse](t, rec)
	assert.False(t, health.Healthy)
}

func TestHandleConsumerHistory(t *testing.T) {
	broker := newStubBroker()
	broker.consumerInfoFn = func(_ context.Context, stream, consumer string) (*jetstream.ConsumerInfo, error) {
		return &jetstream.ConsumerInfo{Stream: stream, Name: consumer}, nil
	}
	g := testGateway(broker)

	// Sampler has never run: a known consumer answers an empty sample list
	rec := doRequest(t, g, http.MethodGet, "/api/consumers/events/worker-1/metrics/history", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[map[string]json.RawMessage](t, rec)
	assert.JSONEq(t, `[]`, string(resp["samples"]))

	// Feed the sampler directly and read back the most recent samples
	for i := 1; i <= 5; i++ {
		g.history.record("events/worker-1", consumerSample{
			Timestamp: time.Now(),
			Delivered: uint64(i),
		})
	}

	rec = doRequest(t, g, http.MethodGet, "/api/consumers/events/worker-1/metrics/history?samples=3", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeJSON[map[string]json.RawMessage](t, rec)

	var samples []consumerSample
	require.NoError(t, json.Unmarshal(resp["samples"], &samples))
	require.Len(t, samples, 3)
	assert.Equal(t, uint64(3), samples[0].Delivered, "oldest of the last three first")
	assert.Equal(t, uint64(5), samples[2].Delivered)
}

func TestHandleConsumerHistory_UnknownConsumer(t *testing.T) {
	g := testGateway(newStubBroker())

	rec := doRequest(t, g, http.MethodGet, "/api/consumers/events/ghost/metrics/history", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleConsumerReset(t *testing.T) {
	broker := newStubBroker()
	resetCalled := false
	broker.resetConsumerFn = func(_ context.Context, stream, consumer string) (*jetstream.ConsumerInfo, error) {
		resetCalled = true
		return &jetstream.ConsumerInfo{Stream: stream, Name: consumer, NumPending: 100}, nil
	}
	g := testGateway(broker)

	rec := doRequest(t, g, http.MethodPost, "/api/consumers/events/worker-1/reset", []byte(`{"action":"reset"}`), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resetCalled)

	resp := decodeJSON[map[string]any](t, rec)
	assert.Equal(t, "reset", resp["action"])
	assert.Equal(t, float64(100), resp["num_pending"])
}

func TestHandleConsumerReset_WrongAction(t *testing.T) {
	g := testGateway(newStubBroker())

	rec := doRequest(t, g, http.MethodPost, "/api/consumers/events/worker-1/reset", []byte(`{"action":"replay"}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleConsumerDelete(t *testing.T) {
	broker := newStubBroker()
	deleted := false
	broker.deleteConsumerFn = func(_ context.Context, stream, consumer string) error {
		deleted = true
		assert.Equal(t, "events", stream)
		assert.Equal(t, "worker-1", consumer)
		return nil
	}
	g := testGateway(broker)

	rec := doRequest(t, g, http.MethodDelete, "/api/consumers/events/worker-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, deleted)
}

func TestHandleConsumerDelete_NotFound(t *testing.T) {
	broker := newStubBroker()
	broker.deleteConsumerFn = func(context.Context, string, string) error {
		return errors.WrapInvalid(errors.ErrConsumerNotFound, "Client", "DeleteConsumer", "delete")
	}
	g := testGateway(broker)

	rec := doRequest(t, g, http.MethodDelete, "/api/consumers/events/ghost", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleStreamList(t *testing.T) {
	broker := newStubBroker()
	broker.listStreamsFn = func(context.Context) ([]*jetstream.StreamInfo, error) {
		return []*jetstream.StreamInfo{
			{
				Config: jetstream.StreamConfig{Name: "events", Subjects: []string{"events", "events.>"}},
				State:  jetstream.StreamState{Msgs: 10, Bytes: 2048, Consumers: 2},
			},
		}, nil
	}
	g := testGateway(broker)

	rec := doRequest(t, g, http.MethodGet, "/api/streams", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeJSON[map[string]json.RawMessage](t, rec)
	var streams []streamSummary
	require.NoError(t, json.Unmarshal(resp["streams"], &streams))
	require.Len(t, streams, 1)
	assert.Equal(t, "events", streams[0].Name)
	assert.Equal(t, uint64(10), streams[0].Messages)
}

func TestHandleStreamInfo(t *testing.T) {
	broker := newStubBroker()
	broker.streamInfoFn = func(_ context.Context, name string) (*jetstream.StreamInfo, error) {
		return &jetstream.StreamInfo{
			Config: jetstream.StreamConfig{Name: name, Subjects: []string{name + ".>"}},
			State:  jetstream.StreamState{Msgs: 5, FirstSeq: 1, LastSeq: 5},
		}, nil
	}
	g := testGateway(broker)

	rec := doRequest(t, g, http.MethodGet, "/api/streams/events", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	detail := decodeJSON[streamDetail](t, rec)
	assert.Equal(t, "events", detail.Name)
	assert.Equal(t, uint64(1), detail.FirstSeq)
	assert.Equal(t, uint64(5), detail.LastSeq)
}

func TestHandleStreamInfo_NotFound(t *testing.T) {
	g := testGateway(newStubBroker())

	rec := doRequest(t, g, http.MethodGet, "/api/streams/ghost", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	body := decodeJSON[map[string]any](t, rec)
	assert.Equal(t, "stream not found", body["error"])
}

func TestHandleHealth(t *testing.T) {
	broker := newStubBroker()
	g := testGateway(broker)

	rec := doRequest(t, g, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[map[string]any](t, rec)
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, true, resp["nats_connected"])
	assert.Equal(t, true, resp["jetstream_available"])

	// Legacy alias answers identically
	rec = doRequest(t, g, http.MethodGet, "/Health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	broker.healthy = false
	rec = doRequest(t, g, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp = decodeJSON[map[string]any](t, rec)
	assert.Equal(t, "degraded", resp["status"])
}

func TestHandleInfo(t *testing.T) {
	g := testGateway(newStubBroker())

	rec := doRequest(t, g, http.MethodGet, "/api/info", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeJSON[map[string]any](t, rec)
	ws, ok := resp["websocket"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "30s", ws["keepalive_interval"])

	fetch, ok := resp["fetch"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(DefaultFetchLimit), fetch["default_limit"])
}

func TestAuth_ConsumerMutations(t *testing.T) {
	broker := newStubBroker()
	g := testGateway(broker)
	g.security.AuthToken = "sekrit"

	createBody := []byte(`{"name": "w", "durable": true, "deliverPolicy": "all", "ackPolicy": "explicit"}`)

	// No token: rejected before the handler runs
	rec := doRequest(t, g, http.MethodPost, "/api/consumers/events", createBody, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, g, http.MethodDelete, "/api/consumers/events/w", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong token
	hdr := http.Header{"Authorization": []string{"Bearer wrong"}}
	rec = doRequest(t, g, http.MethodPost, "/api/consumers/events", createBody, hdr)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Correct token
	hdr = http.Header{"Authorization": []string{"Bearer sekrit"}}
	rec = doRequest(t, g, http.MethodPost, "/api/consumers/events", createBody, hdr)
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Reads stay open
	rec = doRequest(t, g, http.MethodGet, "/api/consumers/templates", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestID(t *testing.T) {
	g := testGateway(newStubBroker())

	rec := doRequest(t, g, http.MethodGet, "/health", nil, nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	hdr := http.Header{"X-Request-ID": []string{"trace-me"}}
	rec = doRequest(t, g, http.MethodGet, "/health", nil, hdr)
	assert.Equal(t, "trace-me", rec.Header().Get("X-Request-ID"))
}

func TestRateLimit(t *testing.T) {
	g := testGateway(newStubBroker(), func(c *Config) {
		c.RateLimitRPS = 1
		c.RateLimitBurst = 2
	})

	var got429 bool
	for i := 0; i < 10; i++ {
		rec := doRequest(t, g, http.MethodGet, "/health", nil, nil)
		if rec.Code == http.StatusTooManyRequests {
			got429 = true
			break
		}
	}
	assert.True(t, got429, "burst exhaustion should answer 429")
}

func TestCORSPreflight(t *testing.T) {
	g := testGateway(newStubBroker(), func(c *Config) {
		c.EnableCORS = true
		c.CORSOrigins = []string{"https://app.example.com"}
	})

	hdr := http.Header{"Origin": []string{"https://app.example.com"}}
	rec := doRequest(t, g, http.MethodOptions, "/api/messages/events.a", nil, hdr)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	// Unlisted origins get no CORS headers
	hdr = http.Header{"Origin": []string{"https://evil.example.com"}}
	rec = doRequest(t, g, http.MethodOptions, "/api/messages/events.a", nil, hdr)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestParseFailureVsTransportFailure(t *testing.T) {
	// A malformed response body (parse failure) classifies Invalid and
	// answers 400; broker trouble classifies Transient and answers 503.
	// The two are distinguishable by status and by message.
	broker := newStubBroker()
	g := testGateway(broker)

	rec := doRequest(t, g, http.MethodPost, "/api/proto/protobufmessages/events.a", []byte{0x0a, 0xff}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	parseBody := decodeJSON[map[string]any](t, rec)

	broker.publishFn = func(context.Context, string, []byte) (*jetstream.PubAck, error) {
		return nil, errors.WrapTransient(errors.ErrConnectionLost, "Client", "PublishMessage", "publish")
	}
	valid := message.PublishMessage{Data: []byte("x")}
	rec = doRequest(t, g, http.MethodPost, "/api/proto/protobufmessages/events.a", valid.Marshal(), nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	transportBody := decodeJSON[map[string]any](t, rec)

	assert.NotEqual(t, parseBody["error"], transportBody["error"])
}

func TestErrorSanitization(t *testing.T) {
	broker := newStubBroker()
	broker.publishFn = func(context.Context, string, []byte) (*jetstream.PubAck, error) {
		return nil, errors.WrapTransient(
			fmt.Errorf("dial nats://10.1.2.3:4222: connection refused"),
			"Client", "PublishMessage", "publish")
	}
	g := testGateway(broker)

	msg := message.PublishMessage{Data: []byte("x")}
	rec := doRequest(t, g, http.MethodPost, "/api/proto/protobufmessages/events.a", msg.Marshal(), nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	body := decodeJSON[map[string]any](t, rec)
	errMsg, _ := body["error"].(string)
	assert.NotContains(t, errMsg, "10.1.2.3", "internal addresses must not leak")
	assert.NotContains(t, strings.ToLower(errMsg), "nats://")
}
