package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// jsonPublishRequest is the body accepted by the JSON publish endpoint.
// Data is arbitrary JSON and is republished verbatim as the NATS payload.
type jsonPublishRequest struct {
	MessageID string            `json:"message_id"`
	Source    string            `json:"source"`
	Data      json.RawMessage   `json:"data"`
	Metadata  map[string]string `json:"metadata"`
}

// handleJSONPublish serves POST /api/messages/{subject}
func (g *Gateway) handleJSONPublish(w http.ResponseWriter, r *http.Request) {
	subject := r.PathValue("subject")

	body, ok := g.readLimitedBody(w, r)
	if !ok {
		return
	}

	var req jsonPublishRequest
	if err := json.Unmarshal(body, &req); err != nil {
		if g.metrics != nil {
			g.metrics.RecordParseFailure("json")
		}
		g.writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	if len(req.Data) == 0 {
		g.writeError(w, http.StatusBadRequest, "data is required")
		return
	}

	// Compact re-serializes the payload without source formatting
	var payload bytes.Buffer
	if err := json.Compact(&payload, req.Data); err != nil {
		g.writeError(w, http.StatusBadRequest, "data is not valid JSON")
		return
	}

	if req.MessageID == "" {
		req.MessageID = uuid.NewString()
	}

	ack, err := g.publishPayload(r.Context(), subject, "json", payload.Bytes())
	if err != nil {
		g.respondError(w, r, err)
		return
	}

	g.writeJSON(w, http.StatusOK, ack)
}

// handleJSONFetch serves GET /api/messages/{subjectFilter}
func (g *Gateway) handleJSONFetch(w http.ResponseWriter, r *http.Request) {
	filter := r.PathValue("subjectFilter")

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

	g.writeJSON(w, http.StatusOK, toFetchResponse(streamName, filter, msgs))
}

// handleDurableFetch serves GET /api/messages/{stream}/consumer/{consumer}.
// Delivered messages are acked, so the consumer cursor advances.
func (g *Gateway) handleDurableFetch(w http.ResponseWriter, r *http.Request) {
	streamName := r.PathValue("stream")
	consumerName := r.PathValue("consumer")

	limit, timeout, err := g.fetchParams(r)
	if err != nil {
		g.respondError(w, r, err)
		return
	}

	msgs, err := g.broker.FetchDurable(r.Context(), streamName, consumerName, limit, timeout)
	if err != nil {
		g.respondError(w, r, err)
		return
	}

	if g.metrics != nil {
		g.metrics.RecordFetch(streamName, len(msgs))
	}

	g.writeJSON(w, http.StatusOK, toFetchResponse(streamName, "", msgs))
}
