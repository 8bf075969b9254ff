package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agrisense/cropagent/internal/history"
	"github.com/agrisense/cropagent/internal/model"
	"github.com/agrisense/cropagent/internal/service/pipeline"
	"github.com/agrisense/cropagent/internal/storage"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	pipeline            *pipeline.Pipeline
	store               storage.Store
	buffer              *history.Buffer
	broker              *Broker
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	openapiSpec         []byte
	corsOrigins         []string
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Buffer, Broker, OpenAPISpec.
type HandlersDeps struct {
	Pipeline            *pipeline.Pipeline
	Store               storage.Store
	Buffer              *history.Buffer
	Broker              *Broker
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
	CORSOrigins         []string
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	if d.MaxRequestBodyBytes <= 0 {
		d.MaxRequestBodyBytes = 1 << 20
	}
	return &Handlers{
		pipeline:            d.Pipeline,
		store:               d.Store,
		buffer:              d.Buffer,
		broker:              d.Broker,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		openapiSpec:         d.OpenAPISpec,
		corsOrigins:         d.CORSOrigins,
	}
}

// maxQueryLength bounds the free-text query accepted by the chat endpoints.
const maxQueryLength = 2000

// validateChat checks a chat request before it reaches the pipeline.
func validateChat(req model.ChatRequest) error {
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return errors.New("query is required")
	}
	if len(q) > maxQueryLength {
		return errors.New("query is too long")
	}
	return nil
}

func chatToRequest(req model.ChatRequest) pipeline.Request {
	return pipeline.Request{
		Query:    strings.TrimSpace(req.Query),
		Language: req.Language,
		Region:   req.State,
		Crop:     req.Crop,
	}
}

// HandleChat handles POST /api/chat.
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req model.ChatRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := validateChat(req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	res, err := h.pipeline.Execute(r.Context(), chatToRequest(req))
	if err != nil {
		h.writePipelineError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// writePipelineError maps a pipeline error to a response.
func (h *Handlers) writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, pipeline.ErrUnknownRegion), errors.Is(err, pipeline.ErrUnknownCrop):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to send.
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeInternalError, "request cancelled")
	default:
		writeError(w, r, http.StatusInternalServerError, model.ErrCodePipelineError, err.Error())
	}
}

// HandleWeather handles GET /api/weather/{region}.
func (h *Handlers) HandleWeather(w http.ResponseWriter, r *http.Request) {
	snap, err := h.pipeline.QuickWeather(r.Context(), r.PathValue("region"))
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

// HandleSoil handles GET /api/soil/{region}/{crop}.
func (h *Handlers) HandleSoil(w http.ResponseWriter, r *http.Request) {
	snap, err := h.pipeline.QuickSoil(r.Context(), r.PathValue("region"), r.PathValue("crop"))
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

// writeLookupError answers path lookups: unknown names are 404s.
func (h *Handlers) writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, pipeline.ErrUnknownRegion):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "unknown region")
	case errors.Is(err, pipeline.ErrUnknownCrop):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "unknown crop")
	default:
		h.writeInternalError(w, r, "collector failed", err)
	}
}

// HandleStates handles GET /api/states.
func (h *Handlers) HandleStates(w http.ResponseWriter, r *http.Request) {
	regions := h.pipeline.Tables().Regions
	out := make([]model.RegionInfo, 0, len(regions))
	for _, reg := range regions {
		loc := reg.Location()
		out = append(out, model.RegionInfo{
			Name:      reg.Name,
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
			Crops:     reg.Crops,
		})
	}
	writeJSON(w, r, http.StatusOK, out)
}

// HandleCrops handles GET /api/crops/{region}.
func (h *Handlers) HandleCrops(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.pipeline.Tables().Region(r.PathValue("region"))
	if !ok {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "unknown region")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"state": reg.Name,
		"crops": reg.Crops,
	})
}

// HandleHistory handles GET /api/history.
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	preds, err := h.store.RecentPredictions(r.Context(), storage.PredictionFilter{
		Region: q.Get("state"),
		Crop:   q.Get("crop"),
		Limit:  queryLimit(r, 10),
	})
	if err != nil {
		h.writeInternalError(w, r, "failed to load history", err)
		return
	}
	if preds == nil {
		preds = []model.PredictionRun{}
	}
	writeJSON(w, r, http.StatusOK, preds)
}

// maxYieldDays bounds the look-back window of the yield series.
const maxYieldDays = 3650

// HandleYields handles GET /api/history/yields.
func (h *Handlers) HandleYields(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)
	if days < 1 || days > maxYieldDays {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			"days must be between 1 and "+strconv.Itoa(maxYieldDays))
		return
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := h.store.HistoricalYields(r.Context(), since)
	if err != nil {
		h.writeInternalError(w, r, "failed to load yields", err)
		return
	}
	if rows == nil {
		rows = []model.HistoricalYield{}
	}
	writeJSON(w, r, http.StatusOK, rows)
}

// HandleStats handles GET /api/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.QueryStats(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "failed to load query stats", err)
		return
	}
	perf, err := h.store.AgentPerformance(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "failed to load agent performance", err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.StatsResponse{
		Queries:     stats,
		Performance: perf,
		Agents:      h.pipeline.Status(),
	})
}

// HandleAgentsStatus handles GET /api/agents/status.
func (h *Handlers) HandleAgentsStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.pipeline.Status())
}

// HandleFeedback handles POST /api/predictions/{id}/feedback.
func (h *Handlers) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid prediction id")
		return
	}
	var req model.FeedbackRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	fb, err := h.store.RecordFeedback(r.Context(), id, req.ActualYield, req.Notes)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "prediction not found")
	case errors.Is(err, storage.ErrInvalidFeedback):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
	case err != nil:
		h.writeInternalError(w, r, "failed to record feedback", err)
	default:
		writeJSON(w, r, http.StatusCreated, fb)
	}
}

// HandleAlertStream handles GET /api/alerts/stream (SSE).
func (h *Handlers) HandleAlertStream(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeInternalError, "alert stream not available")
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	// Disable the server's WriteTimeout for this long-lived connection.
	_ = rc.SetWriteDeadline(time.Time{})

	ch := h.broker.Subscribe()
	defer h.broker.Unsubscribe(ch)

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			if _, err := w.Write([]byte(":keepalive\n\n")); err != nil {
				return
			}
			_ = rc.Flush()
		case event, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(event); err != nil {
				return
			}
			_ = rc.Flush()
		}
	}
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	storeStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.store.Ping(r.Context()); err != nil {
		storeStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	// Buffer health: >50% capacity = high, >75% capacity = critical.
	bufDepth := 0
	bufStatus := "ok"
	if h.buffer != nil {
		bufDepth = h.buffer.Len()
		capacity := h.buffer.Capacity()
		if bufDepth > capacity*3/4 {
			bufStatus = "critical"
			if status == "healthy" {
				status = "degraded"
			}
		} else if bufDepth > capacity/2 {
			bufStatus = "high"
		}
	}

	resp := model.HealthResponse{
		Status:       status,
		Version:      h.version,
		Store:        storeStatus,
		BufferDepth:  bufDepth,
		BufferStatus: bufStatus,
		Uptime:       int64(time.Since(h.startedAt).Seconds()),
	}
	if h.broker != nil {
		resp.SSEClients = h.broker.Subscribers()
	}
	writeJSON(w, r, httpStatus, resp)
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

// writeInternalError logs err and answers with a generic 500.
func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "error", err, "request_id", RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, msg)
}

// --- Shared helpers ---

// maxQueryLimit is the maximum allowed value for limit query parameters.
const maxQueryLimit = 500

func queryInt(r *http.Request, key string, defaultVal int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// queryLimit returns a bounded limit value from query params.
// Values are clamped to [1, maxQueryLimit].
func queryLimit(r *http.Request, defaultVal int) int {
	limit := queryInt(r, "limit", defaultVal)
	if limit < 1 {
		return 1
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}
