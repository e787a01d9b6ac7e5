package component

import (
	"fmt"
)

// ValidationError reports one configuration field that failed schema
// validation. The Code is machine-readable for API clients: required,
// type, min, max, or enum.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidateConfig checks a decoded configuration map against a
// component's ConfigSchema: required fields present, declared types
// matched, numeric bounds respected, enum membership. Unknown fields
// pass, so old gateways accept configs written for newer schemas. All
// failures are collected; an empty slice means the config is valid.
//
// JSON numbers decode as float64, so integer properties accept float64
// values alongside the Go int types.
func ValidateConfig(config map[string]any, schema ConfigSchema) []ValidationError {
	var errs []ValidationError

	for _, field := range schema.Required {
		if _, ok := config[field]; !ok {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("Field %q is required", field),
				Code:    "required",
			})
		}
	}

	for field, value := range config {
		prop, ok := schema.Properties[field]
		if !ok {
			continue
		}

		if err := checkType(field, value, prop.Type); err != nil {
			errs = append(errs, *err)
			continue
		}

		if len(prop.Enum) > 0 {
			if err := checkEnum(field, value, prop.Enum); err != nil {
				errs = append(errs, *err)
			}
		}

		if prop.Type == "int" || prop.Type == "float" {
			if err := checkBounds(field, value, prop.Minimum, prop.Maximum); err != nil {
				errs = append(errs, *err)
			}
		}
	}

	return errs
}

func checkType(field string, value any, propType string) *ValidationError {
	ok := true
	var want string

	switch propType {
	case "string":
		_, ok = value.(string)
		want = "a string"
	case "bool":
		_, ok = value.(bool)
		want = "a boolean"
	case "int":
		switch value.(type) {
		case int, int32, int64, float64:
		default:
			ok = false
		}
		want = "an integer"
	case "float":
		switch value.(type) {
		case int, int32, int64, float32, float64:
		default:
			ok = false
		}
		want = "a number"
	}

	if ok {
		return nil
	}
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("Field %q must be %s", field, want),
		Code:    "type",
	}
}

func checkEnum(field string, value any, allowed []string) *ValidationError {
	s, ok := value.(string)
	if !ok {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("Field %q must be a string for enum validation", field),
			Code:    "type",
		}
	}
	for _, v := range allowed {
		if s == v {
			return nil
		}
	}
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("Field %q must be one of: %v", field, allowed),
		Code:    "enum",
	}
}

func checkBounds(field string, value any, min, max *int) *ValidationError {
	var n float64
	switch v := value.(type) {
	case int:
		n = float64(v)
	case int32:
		n = float64(v)
	case int64:
		n = float64(v)
	case float32:
		n = float64(v)
	case float64:
		n = v
	default:
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("Field %q must be numeric for bounds validation", field),
			Code:    "type",
		}
	}

	if min != nil && n < float64(*min) {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("Field %q must be >= %d", field, *min),
			Code:    "min",
		}
	}
	if max != nil && n > float64(*max) {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("Field %q must be <= %d", field, *max),
			Code:    "max",
		}
	}
	return nil
}
