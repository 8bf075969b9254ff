package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agrisense/cropagent/internal/model"
)

// Client talks to a running CropAgent server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d %s: %s", e.Status, e.Code, e.Message)
}

// envelope mirrors model.APIResponse with a typed payload.
type envelope[T any] struct {
	Data T                  `json:"data"`
	Meta model.ResponseMeta `json:"meta"`
}

func do[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	var zero T

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return zero, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return zero, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return zero, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var e model.APIError
		if json.Unmarshal(raw, &e) == nil && e.Error.Code != "" {
			apiErr.Code = e.Error.Code
			apiErr.Message = e.Error.Message
		}
		return zero, apiErr
	}

	var env envelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return zero, fmt.Errorf("decode response: %w", err)
	}
	return env.Data, nil
}

// Ask runs a full assessment.
func (c *Client) Ask(ctx context.Context, req model.ChatRequest) (model.RunResult, error) {
	return do[model.RunResult](ctx, c, http.MethodPost, "/api/chat", req)
}

// Weather fetches a weather snapshot for region.
func (c *Client) Weather(ctx context.Context, region string) (model.WeatherSnapshot, error) {
	return do[model.WeatherSnapshot](ctx, c, http.MethodGet, "/api/weather/"+url.PathEscape(region), nil)
}

// Soil fetches a soil snapshot for region and crop.
func (c *Client) Soil(ctx context.Context, region, crop string) (model.SoilSnapshot, error) {
	return do[model.SoilSnapshot](ctx, c, http.MethodGet,
		"/api/soil/"+url.PathEscape(region)+"/"+url.PathEscape(crop), nil)
}

// Agents lists component execution status.
func (c *Client) Agents(ctx context.Context) ([]model.AgentStatus, error) {
	return do[[]model.AgentStatus](ctx, c, http.MethodGet, "/api/agents/status", nil)
}

// Health fetches the server health report.
func (c *Client) Health(ctx context.Context) (model.HealthResponse, error) {
	return do[model.HealthResponse](ctx, c, http.MethodGet, "/health", nil)
}

// History lists recent predictions. Empty filters match all.
func (c *Client) History(ctx context.Context, region, crop string, limit int) ([]model.PredictionRun, error) {
	q := url.Values{}
	if region != "" {
		q.Set("state", region)
	}
	if crop != "" {
		q.Set("crop", crop)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	path := "/api/history"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return do[[]model.PredictionRun](ctx, c, http.MethodGet, path, nil)
}

// Stats fetches aggregate query and agent statistics.
func (c *Client) Stats(ctx context.Context) (model.StatsResponse, error) {
	return do[model.StatsResponse](ctx, c, http.MethodGet, "/api/stats", nil)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
