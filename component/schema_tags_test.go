package component

import (
	"reflect"
	"testing"

	"github.com/c360/natsgate/errors"
)

func TestParseSchemaTag(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		want    SchemaDirectives
		wantErr bool
	}{
		{
			name: "string with description and category",
			tag:  "type:string,description:Listen host,category:basic",
			want: SchemaDirectives{Type: "string", Description: "Listen host", Category: "basic"},
		},
		{
			name: "int with bounds and default",
			tag:  "type:int,description:Listen port,min:1,max:65535,default:8080",
			want: SchemaDirectives{
				Type: "int", Description: "Listen port",
				Min: intPtr(1), Max: intPtr(65535), Default: "8080",
			},
		},
		{
			name: "enum with pipe-separated values",
			tag:  "type:enum,description:Log level,enum:debug|info|warn|error,default:info",
			want: SchemaDirectives{
				Type: "enum", Description: "Log level",
				Enum: []string{"debug", "info", "warn", "error"}, Default: "info",
			},
		},
		{
			name: "required flag",
			tag:  "required,type:string,description:Auth token",
			want: SchemaDirectives{Type: "string", Description: "Auth token", Required: true},
		},
		{
			name: "whitespace trimmed",
			tag:  " type:bool , description:Enable CORS ",
			want: SchemaDirectives{Type: "bool", Description: "Enable CORS"},
		},
		{
			name: "enum values trimmed",
			tag:  "type:enum,enum: json | protobuf ",
			want: SchemaDirectives{Type: "enum", Enum: []string{"json", "protobuf"}},
		},
		{name: "empty tag", tag: "", wantErr: true},
		{name: "missing type", tag: "description:no type here", wantErr: true},
		{name: "invalid type", tag: "type:duration", wantErr: true},
		{name: "invalid category", tag: "type:string,category:expert", wantErr: true},
		{name: "unknown flag", tag: "type:string,optional", wantErr: true},
		{name: "unknown directive", tag: "type:string,units:ms", wantErr: true},
		{name: "empty directive value", tag: "type:string,description:", wantErr: true},
		{name: "non-numeric min", tag: "type:int,min:low", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchemaTag(tt.tag)

			if tt.wantErr {
				if err == nil {
					t.Fatal("ParseSchemaTag() expected error, got nil")
				}
				if !errors.IsInvalid(err) {
					t.Errorf("ParseSchemaTag() error should classify as invalid: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSchemaTag() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseSchemaTag() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestConvertDefault(t *testing.T) {
	tests := []struct {
		name      string
		value     any
		fieldType string
		want      any
	}{
		{"string passthrough", "0.0.0.0", "string", "0.0.0.0"},
		{"enum passthrough", "info", "enum", "info"},
		{"int converts", "8080", "int", 8080},
		{"bad int drops", "eighty", "int", nil},
		{"bool converts", "true", "bool", true},
		{"bad bool drops", "yep", "bool", nil},
		{"float converts", "0.5", "float", 0.5},
		{"float accepts integer literal", "50", "float", 50.0},
		{"array wraps single value", "https://example.com", "array", []string{"https://example.com"}},
		{"empty array default", "", "array", []string{}},
		{"object has no default", "{}", "object", nil},
		{"nil stays nil", nil, "int", nil},
		{"already typed passes through", 8080, "int", 8080},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := convertDefault(tt.value, tt.fieldType)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("convertDefault() = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

// listenerConfig exercises the tag set the shipped components use.
type listenerConfig struct {
	Host      string   `json:"host" schema:"type:string,description:Listen host,default:0.0.0.0,category:basic"`
	Port      int      `json:"port" schema:"required,type:int,description:Listen port,min:1,max:65535,default:8080,category:basic"`
	LogLevel  string   `json:"log_level" schema:"type:enum,description:Log level,enum:debug|info|warn|error,default:info"`
	Origins   []string `json:"cors_origins" schema:"type:array,description:Allowed origins"`
	RateLimit float64  `json:"rate_limit_rps" schema:"type:float,description:Requests per second,default:0"`

	// Excluded from the schema for different reasons.
	Internal string `json:"-"`
	NoSchema string `json:"no_schema"`
}

func TestGenerateConfigSchema(t *testing.T) {
	schema := GenerateConfigSchema(reflect.TypeOf(listenerConfig{}))

	wantProps := []string{"host", "port", "log_level", "cors_origins", "rate_limit_rps"}
	if len(schema.Properties) != len(wantProps) {
		t.Errorf("got %d properties, want %d: %v", len(schema.Properties), len(wantProps), schema.Properties)
	}
	for _, name := range wantProps {
		if _, ok := schema.Properties[name]; !ok {
			t.Errorf("property %q missing from schema", name)
		}
	}

	port := schema.Properties["port"]
	if port.Type != "int" || port.Default != 8080 {
		t.Errorf("port = %+v, want int type with typed default 8080", port)
	}
	if port.Minimum == nil || *port.Minimum != 1 || port.Maximum == nil || *port.Maximum != 65535 {
		t.Errorf("port bounds = %v..%v, want 1..65535", port.Minimum, port.Maximum)
	}

	if got := schema.Properties["log_level"].Enum; len(got) != 4 {
		t.Errorf("log_level enum = %v, want 4 values", got)
	}

	if len(schema.Required) != 1 || schema.Required[0] != "port" {
		t.Errorf("Required = %v, want [port]", schema.Required)
	}
}

func TestGenerateConfigSchemaDereferencesPointer(t *testing.T) {
	byValue := GenerateConfigSchema(reflect.TypeOf(listenerConfig{}))
	byPointer := GenerateConfigSchema(reflect.TypeOf(&listenerConfig{}))

	if !reflect.DeepEqual(byValue, byPointer) {
		t.Error("pointer and value types should generate identical schemas")
	}
}

func TestGenerateConfigSchemaNonStruct(t *testing.T) {
	schema := GenerateConfigSchema(reflect.TypeOf("not a struct"))
	if len(schema.Properties) != 0 || len(schema.Required) != 0 {
		t.Errorf("non-struct should yield empty schema, got %+v", schema)
	}
}

func TestGenerateConfigSchemaSkipsInvalidTags(t *testing.T) {
	type mixed struct {
		Good string `json:"good" schema:"type:string,description:Valid"`
		Bad  string `json:"bad" schema:"type:nonsense"`
	}

	schema := GenerateConfigSchema(reflect.TypeOf(mixed{}))
	if _, ok := schema.Properties["good"]; !ok {
		t.Error("valid field should survive a sibling's bad tag")
	}
	if _, ok := schema.Properties["bad"]; ok {
		t.Error("field with invalid tag should be skipped")
	}
}

func TestGenerateConfigSchemaUsesFieldNameFallback(t *testing.T) {
	type bare struct {
		Timeout string `json:"timeout" schema:"type:string"`
	}

	schema := GenerateConfigSchema(reflect.TypeOf(bare{}))
	if got := schema.Properties["timeout"].Description; got != "timeout" {
		t.Errorf("description = %q, want field name fallback", got)
	}
}

func BenchmarkGenerateConfigSchema(b *testing.B) {
	configType := reflect.TypeOf(listenerConfig{})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = GenerateConfigSchema(configType)
	}
}
