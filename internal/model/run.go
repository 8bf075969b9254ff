package model

import (
	"time"

	"github.com/google/uuid"
)

// Timing records wall-clock durations for a run.
type Timing struct {
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	TotalMS    float64            `json:"total_ms"`
	StagesMS   map[string]float64 `json:"stages_ms"`
}

// RunResult is the orchestrator's sole externally visible artifact per
// request. On failure only ID, Success, Error, Context and Timing are set.
type RunResult struct {
	ID         uuid.UUID         `json:"id"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	Context    RunContext        `json:"context"`
	Snapshots  *Snapshots        `json:"snapshots,omitempty"`
	Prediction *PredictionRecord `json:"prediction,omitempty"`
	Alerts     *AlertReport      `json:"alerts,omitempty"`
	Response   *RenderedResponse `json:"response,omitempty"`
	Degraded   []string          `json:"degraded,omitempty"`
	Timing     Timing            `json:"timing"`
}

// AgentStatus is the process-wide execution record of one component.
type AgentStatus struct {
	Name              string     `json:"name"`
	Capabilities      []string   `json:"capabilities"`
	ExecutionCount    int64      `json:"execution_count"`
	LastExecutionTime *time.Time `json:"last_execution,omitempty"`
}

// AgentMetric is one collector execution, recorded in the history store.
type AgentMetric struct {
	Agent      string    `json:"agent_name"`
	DurationMS float64   `json:"execution_time_ms"`
	Success    bool      `json:"success"`
	Error      string    `json:"error_message,omitempty"`
	RecordedAt time.Time `json:"timestamp"`
}
