package gateway

import "net/http"

// route binds one HTTP operation to its handler and carries the
// documentation fields served at /swagger/v1/swagger.json.
type route struct {
	method  string
	pattern string
	aliases []string // Legacy mixed-case paths kept for existing clients
	handler http.HandlerFunc

	requireAuth bool // Bearer token check when security.auth_token is set
	websocket   bool // Upgrade endpoints skip the request timeout

	summary   string
	tag       string
	query     []queryParam
	responses map[string]string // Status code to description
}

// queryParam documents a query string parameter for the OpenAPI output
type queryParam struct {
	name        string
	description string
	typ         string
}

var limitParam = queryParam{
	name:        "limit",
	description: "Maximum number of messages to return (1-1000, default 10)",
	typ:         "integer",
}

var timeoutParam = queryParam{
	name:        "timeout",
	description: "Fetch timeout in seconds (1-30, default 5)",
	typ:         "integer",
}

// routes returns the full route table. The same table drives mux
// registration and the OpenAPI document, so the two cannot drift.
func (g *Gateway) routes() []route {
	return []route{
		// Protobuf message surface
		{
			method:  http.MethodPost,
			pattern: "/api/proto/protobufmessages/{subject}",
			aliases: []string{"/api/proto/ProtobufMessages/{subject}"},
			handler: g.handleProtoPublish,
			summary: "Publish a protobuf message envelope to a subject",
			tag:     "proto",
			responses: map[string]string{
				"200": "Publish acknowledgement (protobuf)",
				"400": "Malformed envelope or wildcard subject",
				"503": "Broker unavailable",
			},
		},
		{
			method:  http.MethodGet,
			pattern: "/api/proto/protobufmessages/{subject}",
			aliases: []string{"/api/proto/ProtobufMessages/{subject}"},
			handler: g.handleProtoFetch,
			summary: "Fetch stored messages for a subject filter (protobuf)",
			tag:     "proto",
			query:   []queryParam{limitParam, timeoutParam},
			responses: map[string]string{
				"200": "Fetch response (protobuf)",
				"404": "No stream owns the subject",
				"503": "Broker unavailable",
			},
		},
		{
			method:  http.MethodPost,
			pattern: "/api/proto/protobufmessages/{subject}/user-event",
			aliases: []string{"/api/proto/ProtobufMessages/{subject}/user-event"},
			handler: g.handleProtoUserEvent,
			summary: "Publish a user event wrapped in a message envelope",
			tag:     "proto",
			responses: map[string]string{
				"200": "Publish acknowledgement (protobuf)",
				"400": "Malformed event",
				"503": "Broker unavailable",
			},
		},
		{
			method:  http.MethodPost,
			pattern: "/api/proto/protobufmessages/{subject}/payment-event",
			aliases: []string{"/api/proto/ProtobufMessages/{subject}/payment-event"},
			handler: g.handleProtoPaymentEvent,
			summary: "Publish a payment event wrapped in a message envelope",
			tag:     "proto",
			responses: map[string]string{
				"200": "Publish acknowledgement (protobuf)",
				"400": "Malformed event",
				"503": "Broker unavailable",
			},
		},

		// JSON message surface
		{
			method:  http.MethodPost,
			pattern: "/api/messages/{subject}",
			handler: g.handleJSONPublish,
			summary: "Publish a JSON message to a subject",
			tag:     "messages",
			responses: map[string]string{
				"200": "Publish acknowledgement",
				"400": "Malformed body or wildcard subject",
				"503": "Broker unavailable",
			},
		},
		{
			method:  http.MethodGet,
			pattern: "/api/messages/{subjectFilter}",
			handler: g.handleJSONFetch,
			summary: "Fetch stored messages for a subject filter",
			tag:     "messages",
			query:   []queryParam{limitParam, timeoutParam},
			responses: map[string]string{
				"200": "Fetch response",
				"404": "No stream owns the subject",
				"503": "Broker unavailable",
			},
		},
		{
			method:  http.MethodGet,
			pattern: "/api/messages/{stream}/consumer/{consumer}",
			handler: g.handleDurableFetch,
			summary: "Fetch and acknowledge messages through a durable consumer",
			tag:     "messages",
			query:   []queryParam{limitParam, timeoutParam},
			responses: map[string]string{
				"200": "Fetch response, cursor advanced",
				"404": "Unknown stream or consumer",
				"503": "Broker unavailable",
			},
		},

		// Consumer management
		{
			method:  http.MethodGet,
			pattern: "/api/consumers/templates",
			handler: g.handleConsumerTemplates,
			summary: "List predefined consumer configuration templates",
			tag:     "consumers",
			responses: map[string]string{
				"200": "Template list",
			},
		},
		{
			method:      http.MethodPost,
			pattern:     "/api/consumers/{stream}",
			handler:     g.handleConsumerCreate,
			requireAuth: true,
			summary:     "Create a durable consumer on a stream",
			tag:         "consumers",
			responses: map[string]string{
				"201": "Consumer created, effective configuration echoed",
				"400": "Invalid consumer configuration",
				"401": "Missing or invalid bearer token",
				"404": "Unknown stream",
				"409": "Consumer exists with a different configuration",
			},
		},
		{
			method:  http.MethodGet,
			pattern: "/api/consumers/{stream}",
			handler: g.handleConsumerList,
			summary: "List consumers on a stream",
			tag:     "consumers",
			responses: map[string]string{
				"200": "Consumer list",
				"404": "Unknown stream",
			},
		},
		{
			method:  http.MethodGet,
			pattern: "/api/consumers/{stream}/{consumer}",
			handler: g.handleConsumerInfo,
			summary: "Get detailed consumer state",
			tag:     "consumers",
			responses: map[string]string{
				"200": "Consumer info",
				"404": "Unknown stream or consumer",
			},
		},
		{
			method:  http.MethodGet,
			pattern: "/api/consumers/{stream}/{consumer}/messages",
			handler: g.handleConsumerPeek,
			summary: "Peek pending messages without acknowledging",
			tag:     "consumers",
			query:   []queryParam{limitParam},
			responses: map[string]string{
				"200": "Fetch response, cursor unchanged",
				"404": "Unknown stream or consumer",
			},
		},
		{
			method:  http.MethodGet,
			pattern: "/api/consumers/{stream}/{consumer}/health",
			handler: g.handleConsumerHealth,
			summary: "Consumer health derived from lag and redeliveries",
			tag:     "consumers",
			responses: map[string]string{
				"200": "Health snapshot",
				"404": "Unknown stream or consumer",
			},
		},
		{
			method:  http.MethodGet,
			pattern: "/api/consumers/{stream}/{consumer}/metrics/history",
			handler: g.handleConsumerHistory,
			summary: "Recent consumer metric samples from the background sampler",
			tag:     "consumers",
			query: []queryParam{{
				name:        "samples",
				description: "Number of most recent samples to return",
				typ:         "integer",
			}},
			responses: map[string]string{
				"200": "Sample list, oldest first",
				"404": "Unknown stream or consumer",
			},
		},
		{
			method:      http.MethodPost,
			pattern:     "/api/consumers/{stream}/{consumer}/reset",
			handler:     g.handleConsumerReset,
			requireAuth: true,
			summary:     "Recreate the consumer at deliver-all to replay from the start",
			tag:         "consumers",
			responses: map[string]string{
				"200": "Reset confirmation",
				"400": "Body action is not reset",
				"401": "Missing or invalid bearer token",
				"404": "Unknown stream or consumer",
			},
		},
		{
			method:      http.MethodDelete,
			pattern:     "/api/consumers/{stream}/{consumer}",
			handler:     g.handleConsumerDelete,
			requireAuth: true,
			summary:     "Delete a durable consumer",
			tag:         "consumers",
			responses: map[string]string{
				"200": "Deletion confirmation",
				"401": "Missing or invalid bearer token",
				"404": "Unknown stream or consumer",
			},
		},

		// Streams and service surfaces
		{
			method:  http.MethodGet,
			pattern: "/api/streams",
			aliases: []string{"/api/Streams"},
			handler: g.handleStreamList,
			summary: "List stream summaries",
			tag:     "streams",
			responses: map[string]string{
				"200": "Stream list",
				"503": "Broker unavailable",
			},
		},
		{
			method:  http.MethodGet,
			pattern: "/api/streams/{stream}",
			aliases: []string{"/api/Streams/{stream}"},
			handler: g.handleStreamInfo,
			summary: "Get stream detail with subjects and sequence range",
			tag:     "streams",
			responses: map[string]string{
				"200": "Stream detail",
				"404": "Unknown stream",
			},
		},
		{
			method:  http.MethodGet,
			pattern: "/health",
			aliases: []string{"/Health"},
			handler: g.handleHealth,
			summary: "Gateway and broker health",
			tag:     "service",
			responses: map[string]string{
				"200": "Healthy",
				"503": "Degraded",
			},
		},
		{
			method:  http.MethodGet,
			pattern: "/api/info",
			handler: g.handleInfo,
			summary: "Gateway limits and keepalive cadence for client discovery",
			tag:     "service",
			responses: map[string]string{
				"200": "Gateway info",
			},
		},
		{
			method:  http.MethodGet,
			pattern: "/swagger/v1/swagger.json",
			handler: g.handleOpenAPI,
			summary: "OpenAPI document for this gateway",
			tag:     "service",
			responses: map[string]string{
				"200": "OpenAPI 3 document",
			},
		},

		// WebSocket streaming
		{
			method:    http.MethodGet,
			pattern:   "/ws/websocketmessages/{subjectFilter}",
			handler:   g.handleWSSubscribe,
			websocket: true,
			summary:   "Stream messages matching a subject filter over WebSocket",
			tag:       "websocket",
			responses: map[string]string{
				"101": "Upgraded; first frame is SUBSCRIBE_ACK",
				"400": "Invalid subject filter",
			},
		},
		{
			method:    http.MethodGet,
			pattern:   "/ws/websocketmessages/{stream}/consumer/{consumer}",
			handler:   g.handleWSDurable,
			websocket: true,
			summary:   "Stream messages through a durable consumer over WebSocket",
			tag:       "websocket",
			responses: map[string]string{
				"101": "Upgraded; messages are acknowledged as delivered",
				"400": "Unknown stream or consumer",
			},
		},
	}
}

// buildHandler registers every route, plus its legacy aliases, on a
// method-aware mux and returns the assembled handler.
func (g *Gateway) buildHandler() http.Handler {
	mux := http.NewServeMux()

	for _, rt := range g.routes() {
		h := g.wrap(rt)
		mux.HandleFunc(rt.method+" "+rt.pattern, h)
		for _, alias := range rt.aliases {
			mux.HandleFunc(rt.method+" "+alias, h)
		}
	}

	// Method-qualified patterns answer OPTIONS with 405, which breaks
	// CORS preflight. A catch-all keeps preflight working.
	if g.config.EnableCORS {
		mux.HandleFunc("OPTIONS /", g.handlePreflight)
	}

	return mux
}

// handlePreflight answers CORS preflight requests
func (g *Gateway) handlePreflight(w http.ResponseWriter, r *http.Request) {
	g.applyCORS(w, r)
	w.WriteHeader(http.StatusNoContent)
}
