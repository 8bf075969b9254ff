package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestOpenAPISpecParses(t *testing.T) {
	var doc struct {
		OpenAPI string                    `yaml:"openapi"`
		Paths   map[string]map[string]any `yaml:"paths"`
	}
	require.NoError(t, yaml.Unmarshal(OpenAPISpec, &doc))
	assert.Equal(t, "3.1.0", doc.OpenAPI)

	want := map[string]string{
		"/api/chat":                      "post",
		"/ws":                            "get",
		"/api/weather/{region}":          "get",
		"/api/soil/{region}/{crop}":      "get",
		"/api/states":                    "get",
		"/api/crops/{region}":            "get",
		"/api/history":                   "get",
		"/api/history/yields":            "get",
		"/api/stats":                     "get",
		"/api/agents/status":             "get",
		"/api/predictions/{id}/feedback": "post",
		"/api/alerts/stream":             "get",
		"/health":                        "get",
	}
	for path, method := range want {
		ops, ok := doc.Paths[path]
		if assert.True(t, ok, "missing path %s", path) {
			assert.Contains(t, ops, method, "path %s", path)
		}
	}
}
