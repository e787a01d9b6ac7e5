package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/c360/natsgate/message"
	"github.com/c360/natsgate/natsclient"
)

// handleProtoPublish serves POST /api/proto/protobufmessages/{subject}.
// The body is a PublishMessage envelope; its data field becomes the NATS
// payload.
func (g *Gateway) handleProtoPublish(w http.ResponseWriter, r *http.Request) {
	subject := r.PathValue("subject")

	body, ok := g.readLimitedBody(w, r)
	if !ok {
		return
	}

	var msg message.PublishMessage
	if err := msg.Unmarshal(body); err != nil {
		if g.metrics != nil {
			g.metrics.RecordParseFailure("protobuf")
		}
		g.respondError(w, r, err)
		return
	}

	// The path owns the subject; a conflicting body value is ignored
	msg.Subject = subject
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}

	ack, err := g.publishPayload(r.Context(), subject, "protobuf", msg.Data)
	if err != nil {
		g.respondError(w, r, err)
		return
	}

	g.writeProto(w, http.StatusOK, ack)
}

// handleProtoUserEvent serves POST /api/proto/protobufmessages/{subject}/user-event
func (g *Gateway) handleProtoUserEvent(w http.ResponseWriter, r *http.Request) {
	g.handleWrappedEvent(w, r, "user-event", func(body []byte) error {
		var ev message.UserEvent
		return ev.Unmarshal(body)
	})
}

// handleProtoPaymentEvent serves POST /api/proto/protobufmessages/{subject}/payment-event
func (g *Gateway) handleProtoPaymentEvent(w http.ResponseWriter, r *http.Request) {
	g.handleWrappedEvent(w, r, "payment-event", func(body []byte) error {
		var ev message.PaymentEvent
		return ev.Unmarshal(body)
	})
}

// handleWrappedEvent validates a typed event body, wraps it in an envelope
// carrying the raw event bytes and a message_type tag, and publishes the
// marshaled envelope. Consumers unwrap by type.
func (g *Gateway) handleWrappedEvent(
	w http.ResponseWriter, r *http.Request, eventType string, validate func([]byte) error,
) {
	subject := r.PathValue("subject")

	body, ok := g.readLimitedBody(w, r)
	if !ok {
		return
	}

	if err := validate(body); err != nil {
		if g.metrics != nil {
			g.metrics.RecordParseFailure("protobuf")
		}
		g.respondError(w, r, err)
		return
	}

	envelope := message.PublishMessage{
		MessageID: uuid.NewString(),
		Subject:   subject,
		Source:    "gateway",
		Timestamp: message.NewTimestamp(time.Now()),
		Data:      body,
		Metadata:  map[string]string{"message_type": eventType},
	}

	ack, err := g.publishPayload(r.Context(), subject, "protobuf", envelope.Marshal())
	if err != nil {
		g.respondError(w, r, err)
		return
	}

	g.writeProto(w, http.StatusOK, ack)
}

// handleProtoFetch serves GET /api/proto/protobufmessages/{subject}.
// Messages come back through an ephemeral ordered consumer in stream order.
func (g *Gateway) handleProtoFetch(w http.ResponseWriter, r *http.Request) {
	filter := r.PathValue("subject")

	limit, timeout, err := g.fetchParams(r)
	if err != nil {
		g.respondError(w, r, err)
		return
	}

	msgs, streamName, err := g.broker.FetchMessages(r.Context(), filter, limit, timeout)
	if err != nil {
		g.respondError(w, r, err)
		return
	}

	if g.metrics != nil {
		g.metrics.RecordFetch(streamName, len(msgs))
	}

	g.writeProto(w, http.StatusOK, toFetchResponse(streamName, filter, msgs))
}

// publishPayload publishes raw bytes and converts the JetStream ack to the
// wire acknowledgement.
func (g *Gateway) publishPayload(
	ctx context.Context, subject, encoding string, payload []byte,
) (*message.PublishAck, error) {
	ack, err := g.broker.PublishMessage(ctx, subject, payload)
	if err != nil {
		return nil, err
	}

	if g.metrics != nil {
		g.metrics.RecordPublish(ack.Stream, encoding, len(payload))
	}

	return &message.PublishAck{
		Published: true,
		Subject:   subject,
		Stream:    ack.Stream,
		Sequence:  ack.Sequence,
		Timestamp: message.NewTimestamp(time.Now()),
	}, nil
}

// toFetchResponse converts broker messages to the wire fetch response
func toFetchResponse(stream, subject string, msgs []natsclient.FetchedMessage) *message.FetchResponse {
	out := make([]*message.StoredMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, &message.StoredMessage{
			Sequence:  m.Sequence,
			Subject:   m.Subject,
			SizeBytes: int64(len(m.Data)),
			Timestamp: message.NewTimestamp(m.Timestamp),
			Data:      m.Data,
		})
	}

	return &message.FetchResponse{
		Count:    int32(len(out)),
		Stream:   stream,
		Subject:  subject,
		Messages: out,
	}
}
