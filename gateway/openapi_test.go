package gateway

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAPIDocument_CoversEveryRoute(t *testing.T) {
	g := testGateway(newStubBroker())
	doc := g.openAPIDocument()

	assert.Equal(t, "3.0.3", doc.OpenAPI)
	assert.Equal(t, "natsgate API", doc.Info.Title)

	for _, rt := range g.routes() {
		item, ok := doc.Paths[rt.pattern]
		require.True(t, ok, "route %s %s missing from document", rt.method, rt.pattern)

		var op *Operation
		switch rt.method {
		case http.MethodGet:
			op = item.Get
		case http.MethodPost:
			op = item.Post
		case http.MethodDelete:
			op = item.Delete
		}
		require.NotNil(t, op, "operation %s %s missing from document", rt.method, rt.pattern)
		assert.Equal(t, rt.summary, op.Summary)
		assert.NotEmpty(t, op.Responses)
	}
}

func TestOpenAPIDocument_PathParameters(t *testing.T) {
	g := testGateway(newStubBroker())
	doc := g.openAPIDocument()

	item, ok := doc.Paths["/api/consumers/{stream}/{consumer}"]
	require.True(t, ok)
	require.NotNil(t, item.Get)

	var names []string
	for _, p := range item.Get.Parameters {
		if p.In == "path" {
			assert.True(t, p.Required, "path parameters are always required")
			names = append(names, p.Name)
		}
	}
	assert.ElementsMatch(t, []string{"stream", "consumer"}, names)
}

func TestOpenAPIDocument_QueryParameters(t *testing.T) {
	g := testGateway(newStubBroker())
	doc := g.openAPIDocument()

	item, ok := doc.Paths["/api/proto/protobufmessages/{subject}"]
	require.True(t, ok)
	require.NotNil(t, item.Get)

	var names []string
	for _, p := range item.Get.Parameters {
		if p.In == "query" {
			names = append(names, p.Name)
		}
	}
	assert.ElementsMatch(t, []string{"limit", "timeout"}, names)
}

func TestHandleOpenAPI(t *testing.T) {
	g := testGateway(newStubBroker())

	rec := doRequest(t, g, http.MethodGet, "/swagger/v1/swagger.json", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var doc OpenAPIDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "3.0.3", doc.OpenAPI)
	assert.NotEmpty(t, doc.Paths)
	assert.NotEmpty(t, doc.Tags)
}

func TestWriteOpenAPIFile(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"openapi.json", "openapi.yaml"} {
		path := dir + "/" + name
		require.NoError(t, WriteOpenAPIFile(path, "1.2.3"))

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		data := string(raw)
		assert.Contains(t, data, "3.0.3")
		assert.Contains(t, data, "1.2.3")
		if strings.HasSuffix(name, ".json") {
			var doc OpenAPIDocument
			require.NoError(t, json.Unmarshal([]byte(data), &doc))
		}
	}
}
