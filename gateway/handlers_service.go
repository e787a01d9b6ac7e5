package gateway

import (
	"net/http"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// streamSummary is one entry in the stream list
type streamSummary struct {
	Name      string   `json:"name"`
	Subjects  []string `json:"subjects"`
	Messages  uint64   `json:"messages"`
	Bytes     uint64   `json:"bytes"`
	Consumers int      `json:"consumers"`
}

// streamDetail extends the summary with the retained sequence range
type streamDetail struct {
	Name      string    `json:"name"`
	Subjects  []string  `json:"subjects"`
	Messages  uint64    `json:"messages"`
	Bytes     uint64    `json:"bytes"`
	FirstSeq  uint64    `json:"first_seq"`
	LastSeq   uint64    `json:"last_seq"`
	FirstTime time.Time `json:"first_time"`
	LastTime  time.Time `json:"last_time"`
	Consumers int       `json:"consumers"`
	Created   time.Time `json:"created"`
}

// handleStreamList serves GET /api/streams
func (g *Gateway) handleStreamList(w http.ResponseWriter, r *http.Request) {
	infos, err := g.broker.ListStreams(r.Context())
	if err != nil {
		g.respondError(w, r, err)
		return
	}

	streams := make([]streamSummary, 0, len(infos))
	for _, info := range infos {
		streams = append(streams, streamSummary{
			Name:      info.Config.Name,
			Subjects:  info.Config.Subjects,
			Messages:  info.State.Msgs,
			Bytes:     info.State.Bytes,
			Consumers: info.State.Consumers,
		})
	}

	g.writeJSON(w, http.StatusOK, map[string]any{"streams": streams})
}

// handleStreamInfo serves GET /api/streams/{stream}
func (g *Gateway) handleStreamInfo(w http.ResponseWriter, r *http.Request) {
	streamName := r.PathValue("stream")

	info, err := g.broker.StreamInfo(r.Context(), streamName)
	if err != nil {
		g.respondError(w, r, err)
		return
	}

	g.writeJSON(w, http.StatusOK, toStreamDetail(info))
}

func toStreamDetail(info *jetstream.StreamInfo) streamDetail {
	return streamDetail{
		Name:      info.Config.Name,
		Subjects:  info.Config.Subjects,
		Messages:  info.State.Msgs,
		Bytes:     info.State.Bytes,
		FirstSeq:  info.State.FirstSeq,
		LastSeq:   info.State.LastSeq,
		FirstTime: info.State.FirstTime,
		LastTime:  info.State.LastTime,
		Consumers: info.State.Consumers,
		Created:   info.Created,
	}
}

// handleHealth serves GET /health. Degraded states answer 503 so load
// balancers stop routing here before requests start failing.
func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	natsConnected := g.broker.IsHealthy()
	jsAvailable := g.broker.JetStreamAvailable()

	status := "healthy"
	statusCode := http.StatusOK
	if !natsConnected || !jsAvailable {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	g.writeJSON(w, statusCode, map[string]any{
		"status":              status,
		"nats_connected":      natsConnected,
		"jetstream_available": jsAvailable,
		"uptime":              g.uptime().Round(time.Second).String(),
		"version":             g.version(),
	})
}

// handleInfo serves GET /api/info. Clients discover the keepalive cadence
// and fetch bounds here instead of hardcoding them.
func (g *Gateway) handleInfo(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]any{
		"version": g.version(),
		"websocket": map[string]any{
			"keepalive_interval": g.config.WebSocket.KeepaliveInterval().String(),
			"read_timeout":       g.config.WebSocket.ReadTimeout().String(),
		},
		"fetch": map[string]any{
			"default_limit":   g.config.Fetch.DefaultLimit,
			"max_limit":       g.config.Fetch.MaxLimit,
			"default_timeout": g.config.Fetch.DefaultTimeout().String(),
			"max_timeout":     g.config.Fetch.MaxTimeout().String(),
		},
		"max_request_size": g.config.MaxRequestSize,
		"request_timeout":  g.config.requestTimeout.String(),
	})
}
