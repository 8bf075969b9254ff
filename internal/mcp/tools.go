package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/agrisense/cropagent/internal/service/pipeline"
)

func (s *Server) registerTools() {
	// crop_assess: full multi-source assessment.
	s.mcpServer.AddTool(
		mcplib.NewTool("crop_assess",
			mcplib.WithDescription(`Run a full crop assessment: weather, soil and satellite data are
collected concurrently, fused into a yield and risk estimate, checked
against alert rules and summarised in the farmer's language.

WHEN TO USE: for any question about expected yield, crop risk or what a
farmer should do next. State and crop are read from the query when not
given explicitly.

WHAT YOU GET BACK: a compact summary with predicted yield (t/ha),
confidence, risk level, active alerts, irrigation advice and the top
recommendations. Set detail=true for the full result.`),
			mcplib.WithReadOnlyHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("query",
				mcplib.Description("The farmer's question, in English, Hindi or Marathi"),
				mcplib.Required(),
			),
			mcplib.WithString("language",
				mcplib.Description("Response language code"),
				mcplib.Enum("en", "hi", "mr"),
			),
			mcplib.WithString("state", mcplib.Description("Indian state, e.g. Punjab. Overrides the query text.")),
			mcplib.WithString("crop", mcplib.Description("Crop name, e.g. Wheat. Overrides the query text.")),
			mcplib.WithBoolean("detail", mcplib.Description("Return the full run result instead of the compact summary")),
		),
		s.handleAssess,
	)

	// crop_weather: weather collector only.
	s.mcpServer.AddTool(
		mcplib.NewTool("crop_weather",
			mcplib.WithDescription("Current weather and the 5-day forecast for a state"),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("state", mcplib.Description("Indian state, e.g. Gujarat"), mcplib.Required()),
		),
		s.handleWeather,
	)

	// crop_soil: soil collector only.
	s.mcpServer.AddTool(
		mcplib.NewTool("crop_soil",
			mcplib.WithDescription("Soil moisture, pH, NPK and soil recommendations for a crop in a state"),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("state", mcplib.Description("Indian state, e.g. Karnataka"), mcplib.Required()),
			mcplib.WithString("crop", mcplib.Description("Crop name, e.g. Ragi"), mcplib.Required()),
		),
		s.handleSoil,
	)

	// crop_agents: status facade.
	s.mcpServer.AddTool(
		mcplib.NewTool("crop_agents",
			mcplib.WithDescription("Execution counts and last execution time of every pipeline component"),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
		),
		s.handleAgents,
	)
}

func (s *Server) handleAssess(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query := strings.TrimSpace(request.GetString("query", ""))
	if query == "" {
		return errorResult("query is required"), nil
	}

	res, err := s.pipeline.Execute(ctx, pipeline.Request{
		Query:    query,
		Language: request.GetString("language", ""),
		Region:   request.GetString("state", ""),
		Crop:     request.GetString("crop", ""),
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrUnknownRegion) || errors.Is(err, pipeline.ErrUnknownCrop) {
			return errorResult(err.Error() + "; read cropagent://states for supported values"), nil
		}
		s.logger.Warn("mcp: assessment failed", "error", err)
		return errorResult(fmt.Sprintf("assessment failed: %v", err)), nil
	}

	if request.GetBool("detail", false) {
		return jsonResult(res)
	}
	return jsonResult(compactRun(res))
}

func (s *Server) handleWeather(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	state := request.GetString("state", "")
	if state == "" {
		return errorResult("state is required"), nil
	}
	snap, err := s.pipeline.QuickWeather(ctx, state)
	if err != nil {
		return lookupError(err), nil
	}
	return jsonResult(snap)
}

func (s *Server) handleSoil(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	state := request.GetString("state", "")
	crop := request.GetString("crop", "")
	if state == "" || crop == "" {
		return errorResult("state and crop are required"), nil
	}
	snap, err := s.pipeline.QuickSoil(ctx, state, crop)
	if err != nil {
		return lookupError(err), nil
	}
	return jsonResult(snap)
}

func (s *Server) handleAgents(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	return jsonResult(map[string]any{
		"agents": s.pipeline.Status(),
		"policy": s.pipeline.Policy(),
	})
}

func lookupError(err error) *mcplib.CallToolResult {
	switch {
	case errors.Is(err, pipeline.ErrUnknownRegion):
		return errorResult("unknown state; read cropagent://states for supported values")
	case errors.Is(err, pipeline.ErrUnknownCrop):
		return errorResult("unknown crop; read cropagent://states for the crops of each state")
	}
	return errorResult(fmt.Sprintf("lookup failed: %v", err))
}

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal result: %w", err)
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
