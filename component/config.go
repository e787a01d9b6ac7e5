package component

import (
	"encoding/json"
	"fmt"

	"github.com/c360/natsgate/errors"
)

// Type represents the category of a component
type Type string

// Component type constants
const (
	TypeGateway Type = "gateway"
	TypeService Type = "service"
)

// String implements fmt.Stringer for Type
func (ct Type) String() string {
	return string(ct)
}

// Config provides configuration for creating a component instance.
// The instance name comes from the map key in the components configuration.
type Config struct {
	Type    Type            `json:"type"`    // Component type (gateway/service)
	Name    string          `json:"name"`    // Factory name (e.g., "gateway", "metrics")
	Enabled bool            `json:"enabled"` // Whether component is enabled
	Config  json.RawMessage `json:"config"`  // Component-specific configuration
}

// Validate ensures the component configuration is valid
func (c Config) Validate() error {
	if c.Type == "" {
		return errors.WrapInvalid(
			errors.ErrMissingConfig,
			"Config",
			"Validate",
			"component type cannot be empty",
		)
	}
	if c.Name == "" {
		return errors.WrapInvalid(
			errors.ErrMissingConfig,
			"Config",
			"Validate",
			"component factory name cannot be empty",
		)
	}

	switch c.Type {
	case TypeGateway, TypeService:
		return nil
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("invalid component type: %s", c.Type))
	}
}
