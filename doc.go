// Package natsgate is an HTTP and WebSocket gateway for NATS JetStream.
//
// External clients that cannot speak the NATS protocol publish, fetch,
// and stream messages through a plain HTTP API; the gateway owns the
// JetStream details: stream resolution, consumer lifecycle, and
// acknowledgement semantics.
//
// # Architecture
//
//	┌──────────────────────────────────────┐
//	│          cmd/natsgate                │  Flags, config, signals
//	└──────────────────────────────────────┘
//	           ↓ creates via registry
//	┌──────────────────────────────────────┐
//	│   gateway          metricserver      │  HTTP/WS API, Prometheus
//	│   (component)      (component)       │  scrape + health aggregate
//	└──────────────────────────────────────┘
//	           ↓ publish / fetch / consume
//	┌──────────────────────────────────────┐
//	│          natsclient                  │  Circuit breaker, stream
//	│   (JetStream connection manager)     │  auto-provisioning
//	└──────────────────────────────────────┘
//
// Components implement the component package's Discoverable and
// LifecycleComponent interfaces and are built through a registry with
// schema-validated configuration. The binary wires them together; the
// packages stay importable on their own.
//
// # Message Surfaces
//
// The gateway exposes three ways to move messages:
//
//   - Protobuf endpoints under /api/proto accept and return the wire
//     envelopes defined in the message package.
//   - JSON endpoints under /api/messages mirror the same operations
//     for clients without protobuf tooling.
//   - WebSocket endpoints under /ws stream live messages, either by
//     subject filter (ephemeral) or through a durable consumer.
//
// Fetches run through ephemeral ordered consumers and return messages
// in stream order. Durable consumer fetches acknowledge what they
// deliver, so the consumer cursor advances; the peek endpoint reads
// without acknowledging.
//
// # Subjects and Streams
//
// The first token of a subject names its owning stream: messages on
// "orders.created" land in the "orders" stream. When auto-provisioning
// is enabled, publishing to a subject whose stream does not exist
// creates the stream with the configured defaults.
//
// # Quick Start
//
//	natsgate -config configs/example.json
//
// The API documents itself: GET /swagger/v1/swagger.json serves an
// OpenAPI 3 document generated from the live route table, and
// GET /api/info reports fetch bounds and WebSocket keepalive cadence
// so clients never hardcode them.
package natsgate
