// Package mcp implements the Model Context Protocol server for CropAgent.
//
// The MCP server exposes the assessment pipeline, the single-collector
// lookups and the reference tables as MCP tools, resources and prompts,
// so MCP-compatible assistants can answer farmers' questions with the same
// engine as the HTTP API.
package mcp

import (
	"log/slog"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/agrisense/cropagent/internal/service/pipeline"
	"github.com/agrisense/cropagent/internal/storage"
)

// Server wraps the MCP server with CropAgent's service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	pipeline  *pipeline.Pipeline
	store     storage.Store
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources, tools
// and prompts. store may be nil, in which case history resources are not
// registered.
func New(p *pipeline.Pipeline, store storage.Store, logger *slog.Logger, version string) *Server {
	s := &Server{
		pipeline: p,
		store:    store,
		logger:   logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"cropagent",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
	)

	s.registerResources()
	s.registerTools()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}
