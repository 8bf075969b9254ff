package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisense/cropagent/internal/collector"
	"github.com/agrisense/cropagent/internal/history"
	"github.com/agrisense/cropagent/internal/model"
	"github.com/agrisense/cropagent/internal/noise"
	"github.com/agrisense/cropagent/internal/reference"
	"github.com/agrisense/cropagent/internal/service/alerts"
	"github.com/agrisense/cropagent/internal/service/fusion"
	"github.com/agrisense/cropagent/internal/service/pipeline"
	"github.com/agrisense/cropagent/internal/service/render"
	"github.com/agrisense/cropagent/internal/storage"
	"github.com/agrisense/cropagent/internal/testutil"
)

func july() time.Time { return time.Date(2026, 7, 15, 9, 0, 0, 0, time.UTC) }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	logger := testutil.TestLogger()

	store, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "mcp.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(ctx) })

	tables := reference.Default()
	cdeps := collector.Deps{Tables: tables, Noise: noise.Constant(0.5), Clock: july, Logger: logger}
	p := pipeline.New(pipeline.Deps{
		Tables:    tables,
		Weather:   collector.NewWeather(cdeps, nil),
		Soil:      collector.NewSoil(cdeps, nil),
		Satellite: collector.NewSatellite(cdeps, nil),
		Fusion:    fusion.New(tables, noise.Constant(0.5), july),
		Alerts:    alerts.New(tables, july),
		Renderer:  render.New(tables),
		Recorder:  history.NewDirect(store),
		Logger:    logger,
		Clock:     july,
	}, pipeline.Config{})
	return New(p, store, logger, "test")
}

func callRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// parseToolText extracts the first TextContent text from a CallToolResult.
func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content in result")
	return ""
}

func TestAssessCompact(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleAssess(context.Background(), callRequest("crop_assess", map[string]any{
		"query": "how will my wheat do in Punjab",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &got))
	assert.Equal(t, "Punjab", got["state"])
	assert.Equal(t, "Wheat", got["crop"])
	assert.Equal(t, true, got["success"])
	assert.Contains(t, got, "predicted_yield")
	assert.Contains(t, got, "summary")
	recs, ok := got["recommendations"].([]any)
	require.True(t, ok)
	assert.LessOrEqual(t, len(recs), maxCompactRecommendations)
	assert.NotContains(t, got, "charts")
}

func TestAssessDetail(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleAssess(context.Background(), callRequest("crop_assess", map[string]any{
		"query":  "yield",
		"state":  "Karnataka",
		"crop":   "Ragi",
		"detail": true,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var res model.RunResult
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &res))
	assert.True(t, res.Success)
	require.NotNil(t, res.Response)
	assert.NotEmpty(t, res.Response.Charts.FactorRadar.Labels)
}

func TestAssessErrors(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleAssess(ctx, callRequest("crop_assess", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "query is required")

	result, err = s.handleAssess(ctx, callRequest("crop_assess", map[string]any{"query": "yield", "state": "Atlantis"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "cropagent://states")
}

func TestWeatherAndSoilTools(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleWeather(ctx, callRequest("crop_weather", map[string]any{"state": "Gujarat"}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	var w model.WeatherSnapshot
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &w))
	assert.Len(t, w.Forecast, 5)

	result, err = s.handleWeather(ctx, callRequest("crop_weather", map[string]any{"state": "Atlantis"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleSoil(ctx, callRequest("crop_soil", map[string]any{"state": "Punjab", "crop": "Wheat"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	result, err = s.handleSoil(ctx, callRequest("crop_soil", map[string]any{"state": "Punjab"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleSoil(ctx, callRequest("crop_soil", map[string]any{"state": "Punjab", "crop": "Quinoa"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "unknown crop")
}

func TestAgentsTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, err := s.handleAssess(ctx, callRequest("crop_assess", map[string]any{"query": "yield"}))
	require.NoError(t, err)

	result, err := s.handleAgents(ctx, callRequest("crop_agents", nil))
	require.NoError(t, err)
	var got struct {
		Agents []model.AgentStatus `json:"agents"`
		Policy string              `json:"policy"`
	}
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &got))
	assert.Len(t, got.Agents, 7)
	assert.Equal(t, "fail_fast", got.Policy)
	assert.Equal(t, int64(1), got.Agents[0].ExecutionCount)
}

func TestParseCropURI(t *testing.T) {
	tests := []struct {
		uri     string
		want    string
		wantErr bool
	}{
		{"cropagent://crops/Wheat", "Wheat", false},
		{"cropagent://crops/", "", true},
		{"cropagent://crops/Wheat/extra", "", true},
		{"other://crops/Wheat", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := parseCropURI(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResources(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	contents, err := s.handleStates(ctx, mcplib.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	text := contents[0].(mcplib.TextResourceContents).Text
	var states []map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &states))
	assert.Len(t, states, 10)

	req := mcplib.ReadResourceRequest{}
	req.Params.URI = "cropagent://crops/jute"
	contents, err = s.handleCropProfile(ctx, req)
	require.NoError(t, err)
	assert.Contains(t, contents[0].(mcplib.TextResourceContents).Text, `"name": "Jute"`)

	req.Params.URI = "cropagent://crops/Quinoa"
	_, err = s.handleCropProfile(ctx, req)
	assert.Error(t, err)

	_, err = s.handleAssess(ctx, callRequest("crop_assess", map[string]any{"query": "rice"}))
	require.NoError(t, err)
	contents, err = s.handleRecentHistory(ctx, mcplib.ReadResourceRequest{})
	require.NoError(t, err)
	var preds []model.PredictionRun
	require.NoError(t, json.Unmarshal([]byte(contents[0].(mcplib.TextResourceContents).Text), &preds))
	assert.Len(t, preds, 1)
}

func TestFieldVisitPrompt(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleFieldVisitPrompt(ctx, mcplib.GetPromptRequest{
		Params: mcplib.GetPromptParams{
			Name:      "field-visit",
			Arguments: map[string]string{"state": "Punjab", "crop": "Wheat", "language": "hi"},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	text := result.Messages[0].Content.(mcplib.TextContent).Text
	assert.Contains(t, text, `crop_assess with query="Wheat yield in Punjab"`)
	assert.Contains(t, text, `language="hi"`)

	_, err = s.handleFieldVisitPrompt(ctx, mcplib.GetPromptRequest{
		Params: mcplib.GetPromptParams{Name: "field-visit", Arguments: map[string]string{"state": "Punjab"}},
	})
	assert.Error(t, err)

	_, err = s.handleFieldVisitPrompt(ctx, mcplib.GetPromptRequest{
		Params: mcplib.GetPromptParams{Name: "field-visit", Arguments: map[string]string{"state": "Atlantis", "crop": "Wheat"}},
	})
	assert.Error(t, err)
}
