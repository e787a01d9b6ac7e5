// Package retry provides simple exponential backoff retry logic for transient failures.
//
// # Overview
//
// This package offers a minimal retry mechanism with exponential backoff for
// the gateway's startup path: connecting to NATS, waiting for JetStream, and
// provisioning streams. Request handling never goes through this package;
// a failed publish is reported to the HTTP client, not retried.
//
// # Core Functions
//
//   - Do: Execute function with retry and exponential backoff
//   - DoWithResult: Execute function with retry, returns both result and error
//
// # Configuration Presets
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay (normal operations)
//   - Quick(): 10 attempts, 50ms-1s delay (gateway startup)
//   - Persistent(): 30 attempts, 200ms-10s delay (critical resources)
//
// # Usage Examples
//
// Startup connection with quick retries:
//
//	err := retry.Do(ctx, retry.Quick(), func() error {
//	    return client.Connect(ctx)
//	})
//
// Retry with result:
//
//	stream, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (jetstream.Stream, error) {
//	    return js.Stream(ctx, streamName)
//	})
//
// Marking an error as hopeless:
//
//	err := retry.Do(ctx, cfg, func() error {
//	    if err := validate(cfg); err != nil {
//	        return retry.NonRetryable(err)
//	    }
//	    return provision(ctx)
//	})
//
// # Design Philosophy
//
// This package is intentionally minimal:
//
//   - No circuit breakers (natsclient carries its own)
//   - No metrics collection (use instrumentation at call site)
//   - No complex error classification (caller decides what to retry)
//   - Just exponential backoff with jitter
//
// # Context Cancellation
//
// All retry operations respect context cancellation and stop immediately when
// the context is cancelled, either during operation execution or during the
// backoff delay.
package retry
