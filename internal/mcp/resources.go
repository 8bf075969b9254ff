package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/agrisense/cropagent/internal/storage"
)

const (
	uriStates        = "cropagent://states"
	uriRecentHistory = "cropagent://history/recent"
	uriCropTemplate  = "cropagent://crops/{name}"
	uriCropPrefix    = "cropagent://crops/"
)

func (s *Server) registerResources() {
	// cropagent://states: supported states with their crops.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			uriStates,
			"Supported States",
			mcplib.WithResourceDescription("Supported Indian states with coordinates, crops and soil types"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleStates,
	)

	// cropagent://crops/{name}: agronomic constants of one crop.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			uriCropTemplate,
			"Crop Profile",
			mcplib.WithTemplateDescription("Yield range, optimal conditions, growing months and diseases of a crop"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleCropProfile,
	)

	if s.store == nil {
		return
	}

	// cropagent://history/recent: latest stored predictions.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			uriRecentHistory,
			"Recent Predictions",
			mcplib.WithResourceDescription("The 20 most recent stored yield predictions"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleRecentHistory,
	)
}

func (s *Server) handleStates(_ context.Context, _ mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	type state struct {
		Name      string   `json:"name"`
		Latitude  float64  `json:"lat"`
		Longitude float64  `json:"lon"`
		Crops     []string `json:"crops"`
		SoilTypes []string `json:"soil_types"`
		Climate   string   `json:"climate"`
	}
	regions := s.pipeline.Tables().Regions
	out := make([]state, 0, len(regions))
	for _, r := range regions {
		out = append(out, state{
			Name:      r.Name,
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
			Crops:     r.Crops,
			SoilTypes: r.SoilTypes,
			Climate:   r.Climate,
		})
	}
	return jsonResource(uriStates, out)
}

// parseCropURI extracts the crop name from cropagent://crops/{name}.
func parseCropURI(uri string) (string, error) {
	name, ok := strings.CutPrefix(uri, uriCropPrefix)
	if !ok {
		return "", fmt.Errorf("mcp: invalid crop URI: %s", uri)
	}
	if name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("mcp: invalid crop URI: empty or nested name in %s", uri)
	}
	return name, nil
}

func (s *Server) handleCropProfile(_ context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	name, err := parseCropURI(uri)
	if err != nil {
		return nil, err
	}
	crop, ok := s.pipeline.Tables().Crop(name)
	if !ok {
		return nil, fmt.Errorf("mcp: unknown crop %q", name)
	}
	diseases := s.pipeline.Tables().Diseases(crop.Name)
	return jsonResource(uri, map[string]any{
		"name":  crop.Name,
		"names": crop.Names,
		"yield_t_ha": map[string]float64{
			"min": crop.Yield.Min,
			"avg": crop.Yield.Avg,
			"max": crop.Yield.Max,
		},
		"optimal_temperature": crop.OptimalTemperature,
		"optimal_moisture":    crop.OptimalMoisture,
		"optimal_ph":          crop.OptimalPH,
		"growing_months":      crop.GrowingMonths,
		"water_loving":        crop.WaterLoving,
		"diseases":            diseases.Names,
		"prevention":          diseases.Prevention,
	})
}

func (s *Server) handleRecentHistory(ctx context.Context, _ mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	preds, err := s.store.RecentPredictions(ctx, storage.PredictionFilter{Limit: 20})
	if err != nil {
		return nil, fmt.Errorf("mcp: recent history: %w", err)
	}
	return jsonResource(uriRecentHistory, preds)
}

func jsonResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal %s: %w", uri, err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
