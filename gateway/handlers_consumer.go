package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/natsgate/errors"
)

// defaultAckWait applies when a consumer create request omits ackWait
const defaultAckWait = 30 * time.Second

// consumerCreateRequest is the camelCase body the consumer create endpoint
// accepts. ackWait takes Go durations ("30s") and HH:MM:SS.
type consumerCreateRequest struct {
	Name          string     `json:"name"`
	Durable       bool       `json:"durable"`
	FilterSubject string     `json:"filterSubject"`
	DeliverPolicy string     `json:"deliverPolicy"`
	AckPolicy     string     `json:"ackPolicy"`
	MaxDeliver    int        `json:"maxDeliver"`
	AckWait       string     `json:"ackWait"`
	StartSequence uint64     `json:"startSequence,omitempty"`
	StartTime     *time.Time `json:"startTime,omitempty"`
}

// consumerCreateResponse echoes the effective configuration back in the
// same camelCase shape the request uses.
type consumerCreateResponse struct {
	Stream        string `json:"stream"`
	Name          string `json:"name"`
	Durable       bool   `json:"durable"`
	FilterSubject string `json:"filterSubject,omitempty"`
	DeliverPolicy string `json:"deliverPolicy"`
	AckPolicy     string `json:"ackPolicy"`
	MaxDeliver    int    `json:"maxDeliver,omitempty"`
	AckWait       string `json:"ackWait"`
}

// consumerInfoResponse is the detailed consumer state returned by the read
// endpoints.
type consumerInfoResponse struct {
	Stream         string    `json:"stream"`
	Name           string    `json:"name"`
	Durable        bool      `json:"durable"`
	FilterSubject  string    `json:"filter_subject,omitempty"`
	DeliverPolicy  string    `json:"deliver_policy"`
	AckPolicy      string    `json:"ack_policy"`
	MaxDeliver     int       `json:"max_deliver,omitempty"`
	AckWait        string    `json:"ack_wait"`
	DeliveredSeq   uint64    `json:"delivered_stream_seq"`
	AckFloorSeq    uint64    `json:"ack_floor_stream_seq"`
	NumPending     uint64    `json:"num_pending"`
	NumAckPending  int       `json:"num_ack_pending"`
	NumRedelivered int       `json:"num_redelivered"`
	NumWaiting     int       `json:"num_waiting"`
	Created        time.Time `json:"created"`
}

// consumerHealthResponse reports whether a consumer is keeping up
type consumerHealthResponse struct {
	Healthy     bool   `json:"healthy"`
	Stream      string `json:"stream"`
	Consumer    string `json:"consumer"`
	Lag         uint64 `json:"lag"`
	Pending     uint64 `json:"pending"`
	AckPending  int    `json:"ack_pending"`
	Redelivered int    `json:"redelivered"`
	InactiveFor string `json:"inactive_for,omitempty"`
	Waiting     int    `json:"waiting"`
}

// consumerTemplate pairs a predefined configuration with its description.
// Clients take config, set name, and POST it unchanged.
type consumerTemplate struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Config      consumerCreateRequest `json:"config"`
}

var consumerTemplates = []consumerTemplate{
	{
		Name:        "durable-processor",
		Description: "Durable consumer with explicit acks and bounded redelivery, for at-least-once processing",
		Config: consumerCreateRequest{
			Durable:       true,
			DeliverPolicy: "all",
			AckPolicy:     "explicit",
			MaxDeliver:    3,
			AckWait:       "30s",
		},
	},
	{
		Name:        "replay-audit",
		Description: "Replays the full stream from the first message, acks disabled",
		Config: consumerCreateRequest{
			Durable:       true,
			DeliverPolicy: "all",
			AckPolicy:     "none",
			AckWait:       "30s",
		},
	},
	{
		Name:        "live-tail",
		Description: "Delivers only messages published after the consumer is created",
		Config: consumerCreateRequest{
			Durable:       true,
			DeliverPolicy: "new",
			AckPolicy:     "explicit",
			MaxDeliver:    1,
			AckWait:       "10s",
		},
	},
	{
		Name:        "latest-snapshot",
		Description: "Starts from the last message per stream, for state bootstrap",
		Config: consumerCreateRequest{
			Durable:       true,
			DeliverPolicy: "last",
			AckPolicy:     "explicit",
			MaxDeliver:    3,
			AckWait:       "30s",
		},
	},
}

// handleConsumerTemplates serves GET /api/consumers/templates
func (g *Gateway) handleConsumerTemplates(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, consumerTemplates)
}

// handleConsumerCreate serves POST /api/consumers/{stream}. Creation is
// idempotent for an identical configuration; a different configuration
// under the same name conflicts.
func (g *Gateway) handleConsumerCreate(w http.ResponseWriter, r *http.Request) {
	streamName := r.PathValue("stream")

	body, ok := g.readLimitedBody(w, r)
	if !ok {
		return
	}

	var req consumerCreateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		g.writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if req.Name == "" {
		g.writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	cfg, err := req.toConsumerConfig()
	if err != nil {
		g.respondError(w, r, err)
		return
	}

	info, err := g.broker.CreateConsumer(r.Context(), streamName, cfg)
	if err != nil {
		g.respondError(w, r, err)
		return
	}

	g.logger.Info("Consumer created", "stream", streamName, "consumer", info.Name)

	g.writeJSON(w, http.StatusCreated, consumerCreateResponse{
		Stream:        streamName,
		Name:          info.Name,
		Durable:       info.Config.Durable != "",
		FilterSubject: info.Config.FilterSubject,
		DeliverPolicy: formatDeliverPolicy(info.Config.DeliverPolicy),
		AckPolicy:     formatAckPolicy(info.Config.AckPolicy),
		MaxDeliver:    info.Config.MaxDeliver,
		AckWait:       info.Config.AckWait.String(),
	})
}

// handleConsumerList serves GET /api/consumers/{stream}
func (g *Gateway) handleConsumerList(w http.ResponseWriter, r *http.Request) {
	streamName := r.PathValue("stream")

	infos, err := g.broker.ListConsumers(r.Context(), streamName)
	if err != nil {
		g.respondError(w, r, err)
		return
	}

	consumers := make([]consumerInfoResponse, 0, len(infos))
	for _, info := range infos {
		consumers = append(consumers, toConsumerInfo(streamName, info))
	}

	g.writeJSON(w, http.StatusOK, map[string]any{
		"stream":    streamName,
		"consumers": consumers,
	})
}

// handleConsumerInfo serves GET /api/consumers/{stream}/{consumer}
func (g *Gateway) handleConsumerInfo(w http.ResponseWriter, r *http.Request) {
	streamName := r.PathValue("stream")
	consumerName := r.PathValue("consumer")

	info, err := g.broker.ConsumerInfo(r.Context(), streamName, consumerName)
	if err != nil {
		g.respondError(w, r, err)
		return
	}

	g.writeJSON(w, http.StatusOK, toConsumerInfo(streamName, info))
}

// handleConsumerPeek serves GET /api/consumers/{stream}/{consumer}/messages.
// Messages are read from the ack floor without acknowledging, so the
// consumer cursor stays put.
func (g *Gateway) handleConsumerPeek(w http.ResponseWriter, r *http.Request) {
	streamName := r.PathValue("stream")
	consumerName := r.PathValue("consumer")

	limit, timeout, err := g.fetchParams(r)
	if err != nil {
		g.respondError(w, r, err)
		return
	}

	msgs, err := g.broker.PeekMessages(r.Context(), streamName, consumerName, limit, timeout)
	if err != nil {
		g.respondError(w, r, err)
		return
	}

	if g.metrics != nil {
		g.metrics.RecordFetch(streamName, len(msgs))
	}

	g.writeJSON(w, http.StatusOK, toFetchResponse(streamName, "", msgs))
}

// handleConsumerHealth serves GET /api/consumers/{stream}/{consumer}/health.
// A consumer saturated at its ack-pending limit cannot take new deliveries
// and reports unhealthy.
func (g *Gateway) handleConsumerHealth(w http.ResponseWriter, r *http.Request) {
	streamName := r.PathValue("stream")
	consumerName := r.PathValue("consumer")

	info, err := g.broker.ConsumerInfo(r.Context(), streamName, consumerName)
	if err != nil {
		g.respondError(w, r, err)
		return
	}

	healthy := true
	if info.Config.MaxAckPending > 0 && info.NumAckPending >= info.Config.MaxAckPending {
		healthy = false
	}

	var inactiveFor string
	if info.Delivered.Last != nil {
		inactiveFor = time.Since(*info.Delivered.Last).Round(time.Second).String()
	}

	g.writeJSON(w, http.StatusOK, consumerHealthResponse{
		Healthy:     healthy,
		Stream:      streamName,
		Consumer:    consumerName,
		Lag:         info.NumPending,
		Pending:     info.NumPending,
		AckPending:  info.NumAckPending,
		Redelivered: info.NumRedelivered,
		InactiveFor: inactiveFor,
		Waiting:     info.NumWaiting,
	})
}

// handleConsumerHistory serves GET /api/consumers/{stream}/{consumer}/metrics/history
func (g *Gateway) handleConsumerHistory(w http.ResponseWriter, r *http.Request) {
	streamName := r.PathValue("stream")
	consumerName := r.PathValue("consumer")

	n, err := intQuery(r, "samples", defaultHistorySamples)
	if err != nil {
		g.respondError(w, r, err)
		return
	}

	samples := g.history.samples(streamName, consumerName, n)
	if samples == nil {
		// Nothing sampled yet; distinguish an unknown consumer from a
		// fresh one the sampler has not visited.
		if _, err := g.broker.ConsumerInfo(r.Context(), streamName, consumerName); err != nil {
			g.respondError(w, r, err)
			return
		}
		samples = []consumerSample{}
	}

	g.writeJSON(w, http.StatusOK, map[string]any{
		"stream":   streamName,
		"consumer": consumerName,
		"samples":  samples,
	})
}

// handleConsumerReset serves POST /api/consumers/{stream}/{consumer}/reset.
// The consumer is recreated at deliver-all, so the next fetch replays the
// stream from the first message.
func (g *Gateway) handleConsumerReset(w http.ResponseWriter, r *http.Request) {
	streamName := r.PathValue("stream")
	consumerName := r.PathValue("consumer")

	body, ok := g.readLimitedBody(w, r)
	if !ok {
		return
	}

	var req struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		g.writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if req.Action != "reset" {
		g.writeError(w, http.StatusBadRequest, `action must be "reset"`)
		return
	}

	info, err := g.broker.ResetConsumer(r.Context(), streamName, consumerName)
	if err != nil {
		g.respondError(w, r, err)
		return
	}

	g.logger.Info("Consumer reset", "stream", streamName, "consumer", consumerName)

	g.writeJSON(w, http.StatusOK, map[string]any{
		"stream":      streamName,
		"consumer":    consumerName,
		"action":      "reset",
		"num_pending": info.NumPending,
		"message":     "consumer recreated at deliver-all",
	})
}

// handleConsumerDelete serves DELETE /api/consumers/{stream}/{consumer}
func (g *Gateway) handleConsumerDelete(w http.ResponseWriter, r *http.Request) {
	streamName := r.PathValue("stream")
	consumerName := r.PathValue("consumer")

	if err := g.broker.DeleteConsumer(r.Context(), streamName, consumerName); err != nil {
		g.respondError(w, r, err)
		return
	}

	g.logger.Info("Consumer deleted", "stream", streamName, "consumer", consumerName)

	g.writeJSON(w, http.StatusOK, map[string]any{
		"stream":   streamName,
		"consumer": consumerName,
		"deleted":  true,
	})
}

// toConsumerConfig maps the request onto a JetStream consumer configuration
func (req consumerCreateRequest) toConsumerConfig() (jetstream.ConsumerConfig, error) {
	deliverPolicy, err := parseDeliverPolicy(req.DeliverPolicy)
	if err != nil {
		return jetstream.ConsumerConfig{}, err
	}

	ackPolicy, err := parseAckPolicy(req.AckPolicy)
	if err != nil {
		return jetstream.ConsumerConfig{}, err
	}

	ackWait, err := parseAckWait(req.AckWait)
	if err != nil {
		return jetstream.ConsumerConfig{}, err
	}

	cfg := jetstream.ConsumerConfig{
		Name:          req.Name,
		FilterSubject: req.FilterSubject,
		DeliverPolicy: deliverPolicy,
		AckPolicy:     ackPolicy,
		MaxDeliver:    req.MaxDeliver,
		AckWait:       ackWait,
	}
	if req.Durable {
		cfg.Durable = req.Name
	}

	switch deliverPolicy {
	case jetstream.DeliverByStartSequencePolicy:
		if req.StartSequence == 0 {
			return jetstream.ConsumerConfig{}, errors.WrapInvalid(errors.ErrInvalidConfig,
				"Gateway", "toConsumerConfig", "startSequence is required for by_start_sequence")
		}
		cfg.OptStartSeq = req.StartSequence
	case jetstream.DeliverByStartTimePolicy:
		if req.StartTime == nil || req.StartTime.IsZero() {
			return jetstream.ConsumerConfig{}, errors.WrapInvalid(errors.ErrInvalidConfig,
				"Gateway", "toConsumerConfig", "startTime is required for by_start_time")
		}
		cfg.OptStartTime = req.StartTime
	}

	return cfg, nil
}

// toConsumerInfo converts JetStream consumer state to the API shape
func toConsumerInfo(streamName string, info *jetstream.ConsumerInfo) consumerInfoResponse {
	return consumerInfoResponse{
		Stream:         streamName,
		Name:           info.Name,
		Durable:        info.Config.Durable != "",
		FilterSubject:  info.Config.FilterSubject,
		DeliverPolicy:  formatDeliverPolicy(info.Config.DeliverPolicy),
		AckPolicy:      formatAckPolicy(info.Config.AckPolicy),
		MaxDeliver:     info.Config.MaxDeliver,
		AckWait:        info.Config.AckWait.String(),
		DeliveredSeq:   info.Delivered.Stream,
		AckFloorSeq:    info.AckFloor.Stream,
		NumPending:     info.NumPending,
		NumAckPending:  info.NumAckPending,
		NumRedelivered: info.NumRedelivered,
		NumWaiting:     info.NumWaiting,
		Created:        info.Created,
	}
}

// parseDeliverPolicy maps API policy names onto JetStream constants.
// An empty policy defaults to deliver-all.
func parseDeliverPolicy(s string) (jetstream.DeliverPolicy, error) {
	switch strings.ToLower(s) {
	case "", "all":
		return jetstream.DeliverAllPolicy, nil
	case "last":
		return jetstream.DeliverLastPolicy, nil
	case "new":
		return jetstream.DeliverNewPolicy, nil
	case "by_start_sequence":
		return jetstream.DeliverByStartSequencePolicy, nil
	case "by_start_time":
		return jetstream.DeliverByStartTimePolicy, nil
	case "last_per_subject":
		return jetstream.DeliverLastPerSubjectPolicy, nil
	default:
		return 0, errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "parseDeliverPolicy",
			fmt.Sprintf("unknown deliver policy %q", s))
	}
}

func formatDeliverPolicy(p jetstream.DeliverPolicy) string {
	switch p {
	case jetstream.DeliverLastPolicy:
		return "last"
	case jetstream.DeliverNewPolicy:
		return "new"
	case jetstream.DeliverByStartSequencePolicy:
		return "by_start_sequence"
	case jetstream.DeliverByStartTimePolicy:
		return "by_start_time"
	case jetstream.DeliverLastPerSubjectPolicy:
		return "last_per_subject"
	default:
		return "all"
	}
}

// parseAckPolicy maps API policy names onto JetStream constants.
// An empty policy defaults to explicit.
func parseAckPolicy(s string) (jetstream.AckPolicy, error) {
	switch strings.ToLower(s) {
	case "", "explicit":
		return jetstream.AckExplicitPolicy, nil
	case "none":
		return jetstream.AckNonePolicy, nil
	case "all":
		return jetstream.AckAllPolicy, nil
	default:
		return 0, errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "parseAckPolicy",
			fmt.Sprintf("unknown ack policy %q", s))
	}
}

func formatAckPolicy(p jetstream.AckPolicy) string {
	switch p {
	case jetstream.AckNonePolicy:
		return "none"
	case jetstream.AckAllPolicy:
		return "all"
	default:
		return "explicit"
	}
}

// parseAckWait accepts Go durations ("30s") and HH:MM:SS ("00:00:30")
func parseAckWait(s string) (time.Duration, error) {
	if s == "" {
		return defaultAckWait, nil
	}

	if parts := strings.Split(s, ":"); len(parts) == 3 {
		h, errH := strconv.Atoi(parts[0])
		m, errM := strconv.Atoi(parts[1])
		sec, errS := strconv.Atoi(parts[2])
		if errH != nil || errM != nil || errS != nil || h < 0 || m < 0 || sec < 0 {
			return 0, errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "parseAckWait",
				fmt.Sprintf("invalid ackWait %q", s))
		}
		return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
			time.Duration(sec)*time.Second, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.WrapInvalid(err, "Gateway", "parseAckWait", "parse ackWait")
	}
	if d <= 0 {
		return 0, errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "parseAckWait",
			"ackWait must be positive")
	}
	return d, nil
}
