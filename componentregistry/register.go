// Package componentregistry registers the gateway's managed components.
package componentregistry

import (
	"errors"

	"github.com/c360/natsgate/component"
	pkgerrors "github.com/c360/natsgate/errors"
	"github.com/c360/natsgate/gateway"
	"github.com/c360/natsgate/metricserver"
)

// Register registers all natsgate components with the provided registry:
//
//   - gateway: HTTP and WebSocket API bridging external clients to JetStream
//   - metrics-server: Prometheus scrape endpoint and aggregate health report
func Register(registry *component.Registry) error {
	// CRITICAL: Nil registry is a programming error (fatal), not invalid input
	if registry == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"ComponentRegistry", "Register", "registry validation")
	}

	if err := gateway.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "gateway component registration")
	}

	if err := metricserver.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "metrics server component registration")
	}

	return nil
}
