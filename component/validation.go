package component

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"reflect"
	"strings"

	"github.com/c360/natsgate/errors"
)

// ConfigValidator bounds raw JSON configuration before it reaches a
// component factory: total size, nesting depth, array length, and
// string content. Component config arrives over the network in some
// deployments, so the limits are enforced before any unmarshal.
type ConfigValidator struct {
	maxDepth     int
	maxArraySize int
	maxStringLen int
	maxJSONSize  int
}

// NewConfigValidator returns a validator with the package limits.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{
		maxDepth:     10,
		maxArraySize: 1000,
		maxStringLen: MaxStringLength,
		maxJSONSize:  MaxJSONSize,
	}
}

// ValidateConfig checks rawConfig against the validator's limits. An
// empty config is valid; components fall back to their defaults.
func (v *ConfigValidator) ValidateConfig(rawConfig json.RawMessage) error {
	if len(rawConfig) > v.maxJSONSize {
		return errors.WrapInvalid(
			fmt.Errorf("config size %d exceeds maximum %d", len(rawConfig), v.maxJSONSize),
			"ConfigValidator", "ValidateConfig", "size check")
	}
	if len(rawConfig) == 0 {
		return nil
	}

	// UseNumber keeps large integers exact instead of silently
	// converting through float64.
	dec := json.NewDecoder(bytes.NewReader(rawConfig))
	dec.UseNumber()

	var parsed any
	if err := dec.Decode(&parsed); err != nil {
		return errors.WrapInvalid(err, "ConfigValidator", "ValidateConfig", "JSON parsing")
	}

	if err := v.walk(parsed, 0); err != nil {
		return errors.Wrap(err, "ConfigValidator", "ValidateConfig", "deep validation")
	}
	return nil
}

func (v *ConfigValidator) walk(value any, depth int) error {
	if depth > v.maxDepth {
		return errors.WrapInvalid(
			fmt.Errorf("JSON depth %d exceeds maximum %d", depth, v.maxDepth),
			"ConfigValidator", "walk", "depth check")
	}

	switch val := value.(type) {
	case string:
		if len(val) > v.maxStringLen {
			return errors.WrapInvalid(
				fmt.Errorf("string length %d exceeds maximum %d", len(val), v.maxStringLen),
				"ConfigValidator", "walk", "string length check")
		}
		return v.checkString(val)

	case json.Number:
		if _, err := val.Int64(); err == nil {
			return nil
		}
		if _, err := val.Float64(); err != nil {
			return errors.WrapInvalid(err, "ConfigValidator", "walk", "number validation")
		}
		return nil

	case []any:
		if len(val) > v.maxArraySize {
			return errors.WrapInvalid(
				fmt.Errorf("array size %d exceeds maximum %d", len(val), v.maxArraySize),
				"ConfigValidator", "walk", "array size check")
		}
		for i, elem := range val {
			if err := v.walk(elem, depth+1); err != nil {
				return errors.Wrap(err, "ConfigValidator", "walk",
					fmt.Sprintf("array element %d", i))
			}
		}
		return nil

	case map[string]any:
		for key, field := range val {
			if len(key) > v.maxStringLen {
				return errors.WrapInvalid(
					fmt.Errorf("key %q length exceeds maximum", key),
					"ConfigValidator", "walk", "key length check")
			}
			if err := v.checkString(key); err != nil {
				return errors.Wrap(err, "ConfigValidator", "walk", "key validation")
			}
			if err := v.walk(field, depth+1); err != nil {
				return errors.Wrap(err, "ConfigValidator", "walk",
					fmt.Sprintf("object field %q", key))
			}
		}
		return nil

	case bool, nil:
		return nil

	default:
		return errors.WrapInvalid(
			fmt.Errorf("unexpected type %T in config", value),
			"ConfigValidator", "walk", "type check")
	}
}

// checkString rejects null bytes and control characters other than
// whitespace. Config strings end up in subjects, headers, and log
// lines.
func (v *ConfigValidator) checkString(s string) error {
	for _, r := range s {
		if r == 0 {
			return errors.WrapInvalid(
				fmt.Errorf("string contains null byte"),
				"ConfigValidator", "checkString", "null byte check")
		}
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return errors.WrapInvalid(
				fmt.Errorf("string contains control character: 0x%02x", r),
				"ConfigValidator", "checkString", "control character check")
		}
	}
	return nil
}

// ValidateFactoryConfig is the validation gate the registry applies to
// every CreateComponent call.
func ValidateFactoryConfig(rawConfig json.RawMessage) error {
	return NewConfigValidator().ValidateConfig(rawConfig)
}

// Validatable is implemented by config structs that carry their own
// invariants beyond what JSON structure can express.
type Validatable interface {
	Validate() error
}

// SafeUnmarshal validates rawConfig, unmarshals it into target, and
// runs target's Validate method when it implements Validatable. Both
// shipped components parse their config through this path.
func SafeUnmarshal(rawConfig json.RawMessage, target any) error {
	if err := ValidateFactoryConfig(rawConfig); err != nil {
		return errors.Wrap(err, "ConfigValidator", "SafeUnmarshal", "config validation")
	}
	if len(rawConfig) == 0 {
		return nil
	}

	if reflect.TypeOf(target).Kind() != reflect.Ptr {
		return errors.WrapInvalid(
			fmt.Errorf("target must be a pointer, got %T", target),
			"ConfigValidator", "SafeUnmarshal", "target type check")
	}

	if err := json.Unmarshal(rawConfig, target); err != nil {
		return errors.WrapInvalid(err, "ConfigValidator", "SafeUnmarshal", "JSON unmarshaling")
	}

	if validatable, ok := target.(Validatable); ok {
		if err := validatable.Validate(); err != nil {
			return errors.Wrap(err, "ConfigValidator", "SafeUnmarshal", "struct validation")
		}
	}
	return nil
}

// ValidateNetworkConfig checks a listener port and bind address. The
// address may be empty or "*" for all interfaces, a literal IP, or a
// hostname.
func ValidateNetworkConfig(port int, bindAddr string) error {
	if err := ValidatePortNumber(port); err != nil {
		return err
	}

	if bindAddr == "" || bindAddr == "*" {
		return nil
	}
	if net.ParseIP(bindAddr) != nil {
		return nil
	}
	// Hostnames resolve at bind time; reject only strings that cannot
	// be a hostname at all.
	if strings.ContainsAny(bindAddr, " /\\") {
		return errors.WrapInvalid(
			fmt.Errorf("invalid bind address: %s", bindAddr),
			"ConfigValidator", "ValidateNetworkConfig", "address format check")
	}
	return nil
}
