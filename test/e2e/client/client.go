// Package client is a typed HTTP and WebSocket client for the gateway
// API, used by the end-to-end tests. It speaks the same wire shapes an
// external consumer would, so the tests double as a client reference.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/c360/natsgate/message"
)

// GatewayClient drives the gateway's REST surface
type GatewayClient struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// NewGatewayClient creates a client for the gateway at baseURL
// (e.g. "http://127.0.0.1:8080").
func NewGatewayClient(baseURL string) *GatewayClient {
	return &GatewayClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithAuthToken returns a copy of the client that sends the token as a
// bearer credential on every request.
func (c *GatewayClient) WithAuthToken(token string) *GatewayClient {
	clone := *c
	clone.authToken = token
	return &clone
}

// APIError is a non-2xx gateway response
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Message)
}

// PublishRequest is the JSON publish body
type PublishRequest struct {
	MessageID string            `json:"message_id,omitempty"`
	Source    string            `json:"source,omitempty"`
	Data      json.RawMessage   `json:"data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// FetchOptions bound a fetch request. Zero values use server defaults.
type FetchOptions struct {
	Limit          int
	TimeoutSeconds int
}

func (o FetchOptions) query() url.Values {
	q := url.Values{}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.TimeoutSeconds > 0 {
		q.Set("timeout", strconv.Itoa(o.TimeoutSeconds))
	}
	return q
}

// ConsumerConfig is the camelCase consumer create body
type ConsumerConfig struct {
	Name          string `json:"name"`
	Durable       bool   `json:"durable"`
	FilterSubject string `json:"filterSubject,omitempty"`
	DeliverPolicy string `json:"deliverPolicy,omitempty"`
	AckPolicy     string `json:"ackPolicy,omitempty"`
	MaxDeliver    int    `json:"maxDeliver,omitempty"`
	AckWait       string `json:"ackWait,omitempty"`
}

// ConsumerCreated echoes the effective configuration after creation
type ConsumerCreated struct {
	Stream        string `json:"stream"`
	Name          string `json:"name"`
	Durable       bool   `json:"durable"`
	FilterSubject string `json:"filterSubject,omitempty"`
	DeliverPolicy string `json:"deliverPolicy"`
	AckPolicy     string `json:"ackPolicy"`
	MaxDeliver    int    `json:"maxDeliver,omitempty"`
	AckWait       string `json:"ackWait"`
}

// ConsumerInfo is the detailed consumer state
type ConsumerInfo struct {
	Stream         string `json:"stream"`
	Name           string `json:"name"`
	Durable        bool   `json:"durable"`
	FilterSubject  string `json:"filter_subject,omitempty"`
	DeliverPolicy  string `json:"deliver_policy"`
	AckPolicy      string `json:"ack_policy"`
	DeliveredSeq   uint64 `json:"delivered_stream_seq"`
	AckFloorSeq    uint64 `json:"ack_floor_stream_seq"`
	NumPending     uint64 `json:"num_pending"`
	NumAckPending  int    `json:"num_ack_pending"`
	NumRedelivered int    `json:"num_redelivered"`
}

// ConsumerList is the response of the consumer list endpoint
type ConsumerList struct {
	Stream    string         `json:"stream"`
	Consumers []ConsumerInfo `json:"consumers"`
}

// ConsumerHealth reports whether a consumer keeps up with its stream
type ConsumerHealth struct {
	Healthy     bool   `json:"healthy"`
	Stream      string `json:"stream"`
	Consumer    string `json:"consumer"`
	Lag         uint64 `json:"lag"`
	Pending     uint64 `json:"pending"`
	AckPending  int    `json:"ack_pending"`
	Redelivered int    `json:"redelivered"`
}

// StreamSummary is one entry in the stream list
type StreamSummary struct {
	Name      string   `json:"name"`
	Subjects  []string `json:"subjects"`
	Messages  uint64   `json:"messages"`
	Consumers int      `json:"consumers"`
}

// StreamDetail extends the summary with the retained sequence range
type StreamDetail struct {
	Name     string   `json:"name"`
	Subjects []string `json:"subjects"`
	Messages uint64   `json:"messages"`
	FirstSeq uint64   `json:"first_seq"`
	LastSeq  uint64   `json:"last_seq"`
}

// GatewayHealth is the /health response
type GatewayHealth struct {
	Status             string `json:"status"`
	NATSConnected      bool   `json:"nats_connected"`
	JetStreamAvailable bool   `json:"jetstream_available"`
	Version            string `json:"version"`
}

// GatewayInfo is the /api/info discovery response
type GatewayInfo struct {
	Version   string `json:"version"`
	WebSocket struct {
		KeepaliveInterval string `json:"keepalive_interval"`
		ReadTimeout       string `json:"read_timeout"`
	} `json:"websocket"`
	Fetch struct {
		DefaultLimit   int    `json:"default_limit"`
		MaxLimit       int    `json:"max_limit"`
		DefaultTimeout string `json:"default_timeout"`
		MaxTimeout     string `json:"max_timeout"`
	} `json:"fetch"`
	MaxRequestSize int64 `json:"max_request_size"`
}

// PublishJSON publishes a JSON message to a subject
func (c *GatewayClient) PublishJSON(ctx context.Context, subject string, req PublishRequest) (*message.PublishAck, error) {
	var ack message.PublishAck
	err := c.do(ctx, http.MethodPost, "/api/messages/"+subject, nil, req, &ack)
	if err != nil {
		return nil, err
	}
	return &ack, nil
}

// Fetch reads stored messages matching a subject filter
func (c *GatewayClient) Fetch(ctx context.Context, filter string, opts FetchOptions) (*message.FetchResponse, error) {
	var resp message.FetchResponse
	err := c.do(ctx, http.MethodGet, "/api/messages/"+filter, opts.query(), nil, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchDurable reads and acks messages through a durable consumer
func (c *GatewayClient) FetchDurable(ctx context.Context, stream, consumer string, opts FetchOptions) (*message.FetchResponse, error) {
	var resp message.FetchResponse
	path := fmt.Sprintf("/api/messages/%s/consumer/%s", stream, consumer)
	err := c.do(ctx, http.MethodGet, path, opts.query(), nil, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// PeekMessages reads pending messages without acknowledging
func (c *GatewayClient) PeekMessages(ctx context.Context, stream, consumer string, opts FetchOptions) (*message.FetchResponse, error) {
	var resp message.FetchResponse
	path := fmt.Sprintf("/api/consumers/%s/%s/messages", stream, consumer)
	err := c.do(ctx, http.MethodGet, path, opts.query(), nil, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateConsumer creates a durable consumer on a stream
func (c *GatewayClient) CreateConsumer(ctx context.Context, stream string, cfg ConsumerConfig) (*ConsumerCreated, error) {
	var created ConsumerCreated
	err := c.do(ctx, http.MethodPost, "/api/consumers/"+stream, nil, cfg, &created)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// GetConsumer returns detailed consumer state
func (c *GatewayClient) GetConsumer(ctx context.Context, stream, consumer string) (*ConsumerInfo, error) {
	var info ConsumerInfo
	path := fmt.Sprintf("/api/consumers/%s/%s", stream, consumer)
	err := c.do(ctx, http.MethodGet, path, nil, nil, &info)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// ListConsumers returns all consumers on a stream
func (c *GatewayClient) ListConsumers(ctx context.Context, stream string) (*ConsumerList, error) {
	var list ConsumerList
	err := c.do(ctx, http.MethodGet, "/api/consumers/"+stream, nil, nil, &list)
	if err != nil {
		return nil, err
	}
	return &list, nil
}

// GetConsumerHealth reports consumer lag and redelivery health
func (c *GatewayClient) GetConsumerHealth(ctx context.Context, stream, consumer string) (*ConsumerHealth, error) {
	var health ConsumerHealth
	path := fmt.Sprintf("/api/consumers/%s/%s/health", stream, consumer)
	err := c.do(ctx, http.MethodGet, path, nil, nil, &health)
	if err != nil {
		return nil, err
	}
	return &health, nil
}

// ResetConsumer recreates the consumer at deliver-all
func (c *GatewayClient) ResetConsumer(ctx context.Context, stream, consumer string) error {
	path := fmt.Sprintf("/api/consumers/%s/%s/reset", stream, consumer)
	return c.do(ctx, http.MethodPost, path, nil, map[string]string{"action": "reset"}, nil)
}

// DeleteConsumer removes a durable consumer
func (c *GatewayClient) DeleteConsumer(ctx context.Context, stream, consumer string) error {
	path := fmt.Sprintf("/api/consumers/%s/%s", stream, consumer)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// ListStreams returns summaries for all streams
func (c *GatewayClient) ListStreams(ctx context.Context) ([]StreamSummary, error) {
	var resp struct {
		Streams []StreamSummary `json:"streams"`
	}
	err := c.do(ctx, http.MethodGet, "/api/streams", nil, nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Streams, nil
}

// GetStream returns detail for one stream
func (c *GatewayClient) GetStream(ctx context.Context, stream string) (*StreamDetail, error) {
	var detail StreamDetail
	err := c.do(ctx, http.MethodGet, "/api/streams/"+stream, nil, nil, &detail)
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

// GetHealth returns gateway and broker health
func (c *GatewayClient) GetHealth(ctx context.Context) (*GatewayHealth, error) {
	var health GatewayHealth
	err := c.do(ctx, http.MethodGet, "/health", nil, nil, &health)
	if err != nil {
		return nil, err
	}
	return &health, nil
}

// GetInfo returns the gateway's discovery document
func (c *GatewayClient) GetInfo(ctx context.Context) (*GatewayInfo, error) {
	var info GatewayInfo
	err := c.do(ctx, http.MethodGet, "/api/info", nil, nil, &info)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// do executes one request and decodes the JSON response into out
func (c *GatewayClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &apiErr)
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
