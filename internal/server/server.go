package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/agrisense/cropagent/internal/history"
	"github.com/agrisense/cropagent/internal/service/pipeline"
	"github.com/agrisense/cropagent/internal/storage"
)

// Server is the CropAgent HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	broker     *Broker
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Buffer, Broker, MCPServer, OpenAPISpec.
type ServerConfig struct {
	// Required dependencies.
	Pipeline *pipeline.Pipeline
	Store    storage.Store
	Logger   *slog.Logger

	// Optional dependencies (nil = disabled).
	Buffer    *history.Buffer
	Broker    *Broker
	MCPServer *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
	CORSOrigins         []string

	OpenAPISpec []byte // Embedded OpenAPI YAML.
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Pipeline:            cfg.Pipeline,
		Store:               cfg.Store,
		Buffer:              cfg.Buffer,
		Broker:              cfg.Broker,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
		CORSOrigins:         cfg.CORSOrigins,
	})

	mux := http.NewServeMux()

	// Assessment.
	mux.HandleFunc("POST /api/chat", h.HandleChat)
	mux.Handle("GET /ws", h.HandleWebSocket())

	// Single-collector lookups.
	mux.HandleFunc("GET /api/weather/{region}", h.HandleWeather)
	mux.HandleFunc("GET /api/soil/{region}/{crop}", h.HandleSoil)

	// Reference data.
	mux.HandleFunc("GET /api/states", h.HandleStates)
	mux.HandleFunc("GET /api/crops/{region}", h.HandleCrops)

	// History and statistics.
	mux.HandleFunc("GET /api/history", h.HandleHistory)
	mux.HandleFunc("GET /api/history/yields", h.HandleYields)
	mux.HandleFunc("GET /api/stats", h.HandleStats)
	mux.HandleFunc("GET /api/agents/status", h.HandleAgentsStatus)
	mux.HandleFunc("POST /api/predictions/{id}/feedback", h.HandleFeedback)

	// Alert stream (long-lived connection).
	mux.HandleFunc("GET /api/alerts/stream", h.HandleAlertStream)

	// MCP StreamableHTTP transport.
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → tracing → logging → recovery → CORS → handler.
	var handler http.Handler = mux
	handler = corsMiddleware(cfg.CORSOrigins, handler)
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		broker:   cfg.Broker,
		logger:   cfg.Logger,
	}
}

// Handlers returns the underlying Handlers.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server. Streaming clients are
// disconnected first so Shutdown does not wait on them.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	if s.broker != nil {
		s.broker.Close()
	}
	return s.httpServer.Shutdown(ctx)
}
