package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PredictionRun is a persisted prediction.
type PredictionRun struct {
	ID             uuid.UUID       `json:"id"`
	Region         string          `json:"state"`
	Crop           string          `json:"crop"`
	PredictedYield float64         `json:"predicted_yield"`
	RiskScore      float64         `json:"risk_score"`
	Confidence     int             `json:"confidence"`
	Snapshots      json.RawMessage `json:"snapshots,omitempty"`
	CreatedAt      time.Time       `json:"timestamp"`
}

// QueryRecord is a persisted raw query.
type QueryRecord struct {
	ID        uuid.UUID `json:"id"`
	Query     string    `json:"query"`
	Language  string    `json:"language"`
	Region    string    `json:"state"`
	Crop      string    `json:"crop"`
	Intent    Intent    `json:"intent"`
	LatencyMS float64   `json:"response_time_ms"`
	CreatedAt time.Time `json:"timestamp"`
}

// AlertOccurrence is a persisted copy of an emitted alert.
type AlertOccurrence struct {
	RunID     uuid.UUID `json:"run_id"`
	Region    string    `json:"state"`
	Kind      AlertKind `json:"alert_type"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"timestamp"`
}

// HistoryEntry is everything one run contributes to the history store.
type HistoryEntry struct {
	Prediction *PredictionRun    `json:"prediction,omitempty"`
	Query      *QueryRecord      `json:"query,omitempty"`
	Metrics    []AgentMetric     `json:"metrics,omitempty"`
	Alerts     []AlertOccurrence `json:"alerts,omitempty"`
}

// HistoricalYield is one row of the yield time series.
type HistoricalYield struct {
	Region         string    `json:"state"`
	Crop           string    `json:"crop"`
	PredictedYield float64   `json:"predicted_yield"`
	CreatedAt      time.Time `json:"timestamp"`
}

// NameCount pairs a label with an occurrence count.
type NameCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// QueryStats summarises stored queries.
type QueryStats struct {
	TotalQueries int64       `json:"total_queries"`
	ByLanguage   []NameCount `json:"by_language"`
	TopRegions   []NameCount `json:"top_states"`
	TopCrops     []NameCount `json:"top_crops"`
}

// AgentPerformance summarises stored collector metrics for one agent.
type AgentPerformance struct {
	Agent       string  `json:"agent_name"`
	Executions  int64   `json:"total_executions"`
	AvgMS       float64 `json:"avg_execution_time_ms"`
	Successful  int64   `json:"successful"`
	Failed      int64   `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// Feedback records an observed yield against a stored prediction.
type Feedback struct {
	ID             uuid.UUID `json:"id"`
	PredictionID   uuid.UUID `json:"prediction_id"`
	PredictedYield float64   `json:"predicted_yield"`
	ActualYield    float64   `json:"actual_yield"`
	ErrorPct       float64   `json:"error_percent"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"timestamp"`
}
