// Package errors provides standardized error handling patterns for natsgate
// components.
//
// # Overview
//
// The errors package implements a three-class error classification system for
// the gateway: Transient (temporary, retryable), Invalid (bad input,
// non-retryable), and Fatal (unrecoverable, stop processing).
//
// Classification lets the HTTP layer map broker failures to status codes and
// lets startup code make retry decisions without hardcoded error string
// matching. It integrates with Go's standard error handling, supporting
// errors.Is(), errors.As(), and wrapping chains.
//
// # Error Classification
//
//   - Transient: network timeouts, lost NATS connections, temporary
//     unavailability (retry recommended, HTTP 503/504)
//   - Invalid: malformed payloads, bad subjects, validation failures
//     (do not retry, HTTP 400)
//   - Fatal: resource exhaustion, broken configuration (stop processing,
//     HTTP 500)
//
// # Quick Start
//
// Use standard error variables for known conditions:
//
//	if stream == nil {
//	    return errors.ErrStreamNotFound
//	}
//
// Wrap errors with context for debugging:
//
//	if err := js.Publish(ctx, subject, data); err != nil {
//	    return errors.WrapTransient(err, "Gateway", "Publish", "jetstream publish")
//	}
//
// Check classification for retry logic:
//
//	if err := client.Connect(ctx); err != nil {
//	    if errors.IsTransient(err) {
//	        // retry with backoff
//	    }
//	}
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// This keeps log lines parseable and makes the failing call site obvious.
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Component", "Method", "action")
//	errors.WrapInvalid(err, "Component", "Method", "action")
//	errors.WrapFatal(err, "Component", "Method", "action")
//
// The generic Wrap() preserves the original error's classification.
//
// # Retry Integration
//
// RetryConfig carries classification-aware retry policy and converts to the
// pkg/retry framework's Config via ToRetryConfig(). Publish paths never use
// it; retries are reserved for startup concerns such as the initial NATS
// connection and stream provisioning.
package errors
