// Package gateway implements the HTTP/WebSocket gateway component that
// bridges external clients to NATS JetStream.
//
// The gateway owns a single listener and serves four API surfaces:
//
//   - Protobuf messages: publish and fetch with application/x-protobuf
//     bodies ("/api/proto/protobufmessages/...")
//   - JSON messages: the same operations with JSON bodies, plus stateful
//     fetch through durable consumers ("/api/messages/...")
//   - Consumer management: create, inspect, peek, reset, and delete
//     durable consumers ("/api/consumers/...")
//   - Live streaming: WebSocket delivery of matching messages as framed
//     protobuf ("/ws/websocketmessages/...")
//
// # Architecture
//
//	┌──────────────┐  HTTP publish/fetch   ┌─────────────────────┐
//	│  API client  │ ────────────────────▶ │  Gateway component  │
//	└──────────────┘                       │                     │
//	┌──────────────┐  WebSocket frames     │  route table        │      ┌────────────────┐
//	│  WS client   │ ◀──────────────────── │  middleware         │ ───▶ │  natsclient    │
//	└──────────────┘                       │  wire codec         │      │  (JetStream)   │
//	                                       └─────────────────────┘      └────────────────┘
//
// All broker access goes through the Broker interface, implemented by
// *natsclient.Client. Handler tests substitute a stub so the HTTP
// surface is testable without a server.
//
// # Route table
//
// Every endpoint is declared once in routes() with its method, pattern,
// legacy path aliases, auth requirement, and documentation fields. The
// same table drives mux registration and the OpenAPI document served at
// /swagger/v1/swagger.json, so the two cannot drift.
//
// # Sequencing
//
// Sequence numbers on acknowledgements, fetch responses, and stream
// frames are JetStream's per-stream monotonic sequence. The gateway
// passes them through and never assigns its own.
//
// # Lifecycle
//
// The gateway is a component.LifecycleComponent: Initialize prepares
// state, Start binds the listener and launches the consumer metrics
// sampler, Stop sends CLOSE frames to WebSocket clients, drains in-flight
// requests, and releases the listener.
package gateway
