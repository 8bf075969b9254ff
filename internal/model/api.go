package model

import "time"

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodePipelineError = "PIPELINE_ERROR"
)

// ChatRequest is the request body for POST /api/chat and for each
// message on the WebSocket channel. State is accepted as the region name
// to stay compatible with existing clients.
type ChatRequest struct {
	Query    string `json:"query"`
	Language string `json:"language,omitempty"`
	State    string `json:"state,omitempty"`
	Crop     string `json:"crop,omitempty"`
}

// FeedbackRequest is the request body for POST /api/predictions/{id}/feedback.
type FeedbackRequest struct {
	ActualYield float64 `json:"actual_yield"`
	Notes       string  `json:"notes,omitempty"`
}

// RegionInfo is the public view of a reference region.
type RegionInfo struct {
	Name      string   `json:"name"`
	Latitude  float64  `json:"lat"`
	Longitude float64  `json:"lon"`
	Crops     []string `json:"crops"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Store        string `json:"store"`
	BufferDepth  int    `json:"buffer_depth"`
	BufferStatus string `json:"buffer_status"`
	SSEClients   int    `json:"sse_clients"`
	Uptime       int64  `json:"uptime_seconds"`
}

// StatsResponse is the response body for GET /api/stats.
type StatsResponse struct {
	Queries     QueryStats         `json:"query_stats"`
	Performance []AgentPerformance `json:"agent_performance"`
	Agents      []AgentStatus      `json:"agents"`
}
