package component

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/c360/natsgate/errors"
)

// SchemaDirectives is the parsed form of one `schema:` struct tag.
type SchemaDirectives struct {
	Type        string
	Description string
	Category    string // "basic" or "advanced"
	Default     any    // string until convertDefault typifies it
	Required    bool
	Min         *int
	Max         *int
	Enum        []string
}

// validTagTypes are the property types a schema tag may declare. They
// map onto PropertySchema.Type and from there to JSON Schema types in
// the exporter.
var validTagTypes = map[string]bool{
	"string": true, "int": true, "bool": true, "float": true,
	"enum": true, "array": true, "object": true,
}

// ParseSchemaTag parses a `schema:` tag value into directives.
//
// Directives are comma-separated. Key-value directives use a colon
// ("type:int", "description:Listen port", "min:1", "enum:a|b|c");
// bare "required" is a flag. The type directive is mandatory, a
// missing description falls back to the field name at generation
// time.
func ParseSchemaTag(tag string) (SchemaDirectives, error) {
	var d SchemaDirectives

	if tag == "" {
		return d, errors.WrapInvalid(
			fmt.Errorf("empty schema tag"),
			"SchemaTag", "ParseSchemaTag", "tag validation")
	}

	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		key, value, hasValue := strings.Cut(part, ":")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if !hasValue {
			if key != "required" {
				return d, errors.WrapInvalid(
					fmt.Errorf("unknown boolean flag: %s", key),
					"SchemaTag", "ParseSchemaTag", "flag parsing")
			}
			d.Required = true
			continue
		}
		if value == "" {
			return d, errors.WrapInvalid(
				fmt.Errorf("empty value for directive: %s", key),
				"SchemaTag", "ParseSchemaTag", "value validation")
		}

		switch key {
		case "type":
			if !validTagTypes[value] {
				return d, errors.WrapInvalid(
					fmt.Errorf("invalid type: %s", value),
					"SchemaTag", "ParseSchemaTag", "type validation")
			}
			d.Type = value
		case "description":
			d.Description = value
		case "category":
			if value != "basic" && value != "advanced" {
				return d, errors.WrapInvalid(
					fmt.Errorf("invalid category: %s (must be 'basic' or 'advanced')", value),
					"SchemaTag", "ParseSchemaTag", "category validation")
			}
			d.Category = value
		case "default":
			d.Default = value
		case "min", "max":
			n, err := strconv.Atoi(value)
			if err != nil {
				return d, errors.WrapInvalid(
					fmt.Errorf("invalid %s value: %s", key, value),
					"SchemaTag", "ParseSchemaTag", key+" parsing")
			}
			if key == "min" {
				d.Min = &n
			} else {
				d.Max = &n
			}
		case "enum":
			d.Enum = strings.Split(value, "|")
			for i := range d.Enum {
				d.Enum[i] = strings.TrimSpace(d.Enum[i])
			}
		default:
			return d, errors.WrapInvalid(
				fmt.Errorf("unknown directive: %s", key),
				"SchemaTag", "ParseSchemaTag", "directive validation")
		}
	}

	if d.Type == "" {
		return d, errors.WrapInvalid(
			fmt.Errorf("type directive is required"),
			"SchemaTag", "ParseSchemaTag", "required field validation")
	}

	return d, nil
}

// GenerateConfigSchema builds a ConfigSchema from a config struct's
// field tags. Fields need both a json tag (for the property name) and
// a schema tag; anything else is skipped, as are fields whose schema
// tag fails to parse. Reflection runs once, so callers cache the
// result in a package-level var:
//
//	var gatewaySchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))
//
// Pointer types are dereferenced; non-struct types yield an empty
// schema.
func GenerateConfigSchema(configType reflect.Type) ConfigSchema {
	schema := ConfigSchema{
		Properties: make(map[string]PropertySchema),
		Required:   []string{},
	}

	if configType.Kind() == reflect.Ptr {
		configType = configType.Elem()
	}
	if configType.Kind() != reflect.Struct {
		return schema
	}

	for i := 0; i < configType.NumField(); i++ {
		field := configType.Field(i)

		jsonTag := field.Tag.Get("json")
		if jsonTag == "" || jsonTag == "-" {
			continue
		}
		name, _, _ := strings.Cut(jsonTag, ",")
		if name == "" {
			continue
		}

		tag := field.Tag.Get("schema")
		if tag == "" {
			continue
		}
		d, err := ParseSchemaTag(tag)
		if err != nil {
			continue
		}

		description := d.Description
		if description == "" {
			description = name
		}

		schema.Properties[name] = PropertySchema{
			Type:        d.Type,
			Description: description,
			Category:    d.Category,
			Default:     convertDefault(d.Default, d.Type),
			Minimum:     d.Min,
			Maximum:     d.Max,
			Enum:        d.Enum,
		}
		if d.Required {
			schema.Required = append(schema.Required, name)
		}
	}

	return schema
}

// convertDefault turns the tag's string default into the property's
// declared type. Unparseable defaults become nil rather than shipping
// a string where consumers expect a number.
func convertDefault(value any, fieldType string) any {
	valueStr, ok := value.(string)
	if !ok {
		return value
	}

	switch fieldType {
	case "string", "enum":
		return valueStr
	case "int":
		n, err := strconv.Atoi(valueStr)
		if err != nil {
			return nil
		}
		return n
	case "bool":
		b, err := strconv.ParseBool(valueStr)
		if err != nil {
			return nil
		}
		return b
	case "float":
		f, err := strconv.ParseFloat(valueStr, 64)
		if err != nil {
			return nil
		}
		return f
	case "array":
		if valueStr == "" {
			return []string{}
		}
		return []string{valueStr}
	case "object":
		return nil
	default:
		return valueStr
	}
}
