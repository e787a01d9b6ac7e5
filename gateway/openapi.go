package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// OpenAPIDocument is the OpenAPI 3.0 description of the gateway API,
// generated from the route table so it cannot drift from the mux.
type OpenAPIDocument struct {
	OpenAPI string              `json:"openapi" yaml:"openapi"`
	Info    InfoObject          `json:"info" yaml:"info"`
	Servers []ServerObject      `json:"servers" yaml:"servers"`
	Paths   map[string]PathItem `json:"paths" yaml:"paths"`
	Tags    []TagObject         `json:"tags" yaml:"tags"`
}

// InfoObject contains API metadata
type InfoObject struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Version     string `json:"version" yaml:"version"`
}

// ServerObject defines an API server
type ServerObject struct {
	URL         string `json:"url" yaml:"url"`
	Description string `json:"description" yaml:"description"`
}

// TagObject defines an API tag
type TagObject struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// PathItem describes the operations available on one path
type PathItem struct {
	Get    *Operation `json:"get,omitempty" yaml:"get,omitempty"`
	Post   *Operation `json:"post,omitempty" yaml:"post,omitempty"`
	Delete *Operation `json:"delete,omitempty" yaml:"delete,omitempty"`
}

// Operation describes a single API operation
type Operation struct {
	Summary    string              `json:"summary" yaml:"summary"`
	Tags       []string            `json:"tags,omitempty" yaml:"tags,omitempty"`
	Parameters []Parameter         `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Responses  map[string]Response `json:"responses" yaml:"responses"`
}

// Parameter describes a path or query parameter
type Parameter struct {
	Name        string    `json:"name" yaml:"name"`
	In          string    `json:"in" yaml:"in"`
	Required    bool      `json:"required,omitempty" yaml:"required,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Schema      ParamType `json:"schema" yaml:"schema"`
}

// ParamType is the schema of a parameter value
type ParamType struct {
	Type string `json:"type" yaml:"type"`
}

// Response describes one response status
type Response struct {
	Description string `json:"description" yaml:"description"`
}

var tagDescriptions = map[string]string{
	"proto":     "Protobuf message publish and fetch",
	"messages":  "JSON message publish and fetch",
	"consumers": "Durable consumer lifecycle and monitoring",
	"streams":   "Stream discovery",
	"service":   "Health and configuration discovery",
	"websocket": "Live message streaming",
}

var pathParamPattern = regexp.MustCompile(`\{([a-zA-Z]+)\}`)

// handleOpenAPI serves GET /swagger/v1/swagger.json
func (g *Gateway) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, g.openAPIDocument())
}

// openAPIDocument builds the document from the live route table
func (g *Gateway) openAPIDocument() OpenAPIDocument {
	paths := make(map[string]PathItem)
	tagsSeen := make(map[string]struct{})

	for _, rt := range g.routes() {
		op := buildOperation(rt)
		tagsSeen[rt.tag] = struct{}{}

		item := paths[rt.pattern]
		switch rt.method {
		case http.MethodGet:
			item.Get = op
		case http.MethodPost:
			item.Post = op
		case http.MethodDelete:
			item.Delete = op
		}
		paths[rt.pattern] = item
	}

	tags := make([]TagObject, 0, len(tagsSeen))
	for name := range tagsSeen {
		tags = append(tags, TagObject{Name: name, Description: tagDescriptions[name]})
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })

	return OpenAPIDocument{
		OpenAPI: "3.0.3",
		Info: InfoObject{
			Title:       "natsgate API",
			Description: "HTTP and WebSocket gateway for NATS JetStream streams",
			Version:     g.version(),
		},
		Servers: []ServerObject{
			{URL: fmt.Sprintf("http://localhost:%d", g.config.Port), Description: "Gateway server"},
		},
		Paths: paths,
		Tags:  tags,
	}
}

// buildOperation converts one route entry into an OpenAPI operation
func buildOperation(rt route) *Operation {
	op := &Operation{
		Summary:   rt.summary,
		Tags:      []string{rt.tag},
		Responses: make(map[string]Response, len(rt.responses)),
	}

	for code, desc := range rt.responses {
		op.Responses[code] = Response{Description: desc}
	}

	for _, m := range pathParamPattern.FindAllStringSubmatch(rt.pattern, -1) {
		op.Parameters = append(op.Parameters, Parameter{
			Name:     m[1],
			In:       "path",
			Required: true,
			Schema:   ParamType{Type: "string"},
		})
	}

	for _, q := range rt.query {
		op.Parameters = append(op.Parameters, Parameter{
			Name:        q.name,
			In:          "query",
			Description: q.description,
			Schema:      ParamType{Type: q.typ},
		})
	}

	return op
}

// BuildOpenAPIDocument builds the gateway's API document without a running
// gateway. The exporter path in cmd uses it.
func BuildOpenAPIDocument(version string) OpenAPIDocument {
	cfg := DefaultConfig()
	cfg.Version = version
	g := &Gateway{config: cfg}
	return g.openAPIDocument()
}

// WriteOpenAPIFile writes the API document to path, as YAML for .yaml/.yml
// and JSON otherwise.
func WriteOpenAPIFile(path, version string) error {
	doc := BuildOpenAPIDocument(version)

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(doc)
	default:
		data, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal OpenAPI document: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write OpenAPI document: %w", err)
	}
	return nil
}
