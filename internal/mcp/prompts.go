package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// field-visit: guides the assistant through a full assessment for one field.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("field-visit",
			mcplib.WithPromptDescription("Walk through a crop assessment for a farmer's field and explain it in plain words"),
			mcplib.WithArgument("state",
				mcplib.ArgumentDescription("Indian state of the field, e.g. Punjab"),
				mcplib.RequiredArgument(),
			),
			mcplib.WithArgument("crop",
				mcplib.ArgumentDescription("Crop grown in the field, e.g. Wheat"),
				mcplib.RequiredArgument(),
			),
			mcplib.WithArgument("language",
				mcplib.ArgumentDescription("Language to answer in: en, hi or mr"),
			),
		),
		s.handleFieldVisitPrompt,
	)
}

func (s *Server) handleFieldVisitPrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	state := request.Params.Arguments["state"]
	crop := request.Params.Arguments["crop"]
	if state == "" || crop == "" {
		return nil, fmt.Errorf("state and crop arguments are required")
	}
	tables := s.pipeline.Tables()
	if _, ok := tables.Region(state); !ok {
		return nil, fmt.Errorf("unknown state %q", state)
	}
	if _, ok := tables.Crop(crop); !ok {
		return nil, fmt.Errorf("unknown crop %q", crop)
	}
	lang := request.Params.Arguments["language"]
	if lang == "" || !tables.HasLanguage(lang) {
		lang = tables.DefaultLanguage
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Field visit for %s in %s", crop, state),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`A farmer growing %[1]s in %[2]s wants to know how the season looks.

1. CALL crop_assess with query="%[1]s yield in %[2]s", state="%[2]s", crop="%[1]s", language="%[3]s".

2. EXPLAIN the result to the farmer in language "%[3]s":
   - the expected yield and how it compares with the regional average
   - every critical or high alert, with its recommended action
   - the irrigation advice

3. If the result lists degraded sources, say which data was missing
   and that the estimate is less certain.

Keep the answer short and practical. Do not invent numbers that are not
in the tool result.`, crop, state, lang),
				},
			},
		},
	}, nil
}
