// Package natsclient manages the gateway's NATS connection with a circuit
// breaker and exposes the JetStream operations the HTTP and WebSocket
// surfaces are built on.
//
// The Client wraps a single nats.Conn plus its jetstream.JetStream handle.
// Connection failures are counted; after the threshold the circuit opens
// and calls fail fast with ErrCircuitOpen until a backoff timer half-opens
// it again. Backoff doubles per round and is capped.
//
// Stream ownership follows the first subject token: a message published to
// "events.user.created" lands on stream "events" (subjects "events" and
// "events.>"). ResolveStream performs that mapping, auto-provisioning the
// stream on first use when enabled and caching the result with a TTL so
// steady-state publishes skip the stream lookup.
//
// Sequence numbers always come from JetStream's per-stream counter via the
// publish ack; the client never assigns or rewrites them.
//
// # Basic Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("natsgate"),
//	    natsclient.WithMetrics(registry),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
//	ack, err := client.PublishMessage(ctx, "events.user.created", payload)
package natsclient
