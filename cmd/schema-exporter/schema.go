package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/natsgate/component"
)

// ComponentSchema is the exported draft-07 rendering of a component's
// configuration schema, plus routing metadata for config tooling.
type ComponentSchema struct {
	Schema      string                    `json:"$schema"`
	ID          string                    `json:"$id"`
	Type        string                    `json:"type"`
	Title       string                    `json:"title"`
	Description string                    `json:"description"`
	Properties  map[string]PropertySchema `json:"properties"`
	Required    []string                  `json:"required"`
	Metadata    ComponentMetadata         `json:"x-component-metadata"`
}

// ComponentMetadata identifies the component a schema belongs to
type ComponentMetadata struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Protocol string `json:"protocol"`
	Domain   string `json:"domain"`
	Version  string `json:"version"`
}

// PropertySchema is a single draft-07 property definition
type PropertySchema struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Default     any      `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Minimum     *int     `json:"minimum,omitempty"`
	Maximum     *int     `json:"maximum,omitempty"`
}

// exportSchema converts a component registration into its exported form
func exportSchema(name string, registration *component.Registration) ComponentSchema {
	properties := make(map[string]PropertySchema, len(registration.Schema.Properties))
	for propName, prop := range registration.Schema.Properties {
		properties[propName] = PropertySchema{
			Type:        jsonSchemaType(prop.Type),
			Description: prop.Description,
			Default:     prop.Default,
			Enum:        prop.Enum,
			Minimum:     prop.Minimum,
			Maximum:     prop.Maximum,
		}
	}

	// Tooling expects an array, never null
	required := registration.Schema.Required
	if required == nil {
		required = []string{}
	}

	return ComponentSchema{
		Schema:      "http://json-schema.org/draft-07/schema#",
		ID:          name + ".v1.json",
		Type:        "object",
		Title:       name + " Configuration",
		Description: registration.Description,
		Properties:  properties,
		Required:    required,
		Metadata: ComponentMetadata{
			Name:     name,
			Type:     registration.Type,
			Protocol: registration.Protocol,
			Domain:   registration.Domain,
			Version:  registration.Version,
		},
	}
}

// jsonSchemaType maps schema tag types to JSON Schema types
func jsonSchemaType(propType string) string {
	switch propType {
	case "int", "float":
		return "number"
	case "bool":
		return "boolean"
	case "array":
		return "array"
	case "object":
		return "object"
	default:
		return "string"
	}
}

// validateSchema compiles the exported schema, catching structural
// mistakes before they reach committed artifacts.
func validateSchema(schema ComponentSchema) error {
	data, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if _, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data)); err != nil {
		return fmt.Errorf("schema does not compile: %w", err)
	}
	return nil
}

// writeSchema writes one exported schema as indented JSON
func writeSchema(filename string, schema ComponentSchema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("write schema file: %w", err)
	}
	return nil
}
