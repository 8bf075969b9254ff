package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agrisense/cropagent/internal/model"
)

// eventAlerts is the SSE event type carrying the alerts of one run.
const eventAlerts = "alerts"

// AlertEvent is the payload of an "alerts" SSE event.
type AlertEvent struct {
	RunID     uuid.UUID         `json:"run_id"`
	Region    string            `json:"state"`
	Crop      string            `json:"crop"`
	Alerts    model.AlertBatch  `json:"alerts"`
	Advance   model.AlertBatch  `json:"advance_alerts"`
	Summary   model.RiskSummary `json:"risk_summary"`
	EmittedAt time.Time         `json:"timestamp"`
}

// Broker fans out alerts from completed pipeline runs to SSE subscribers.
// Publish is wired as the pipeline's result hook.
type Broker struct {
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[chan []byte]struct{}
	closed      bool
}

// NewBroker creates a new SSE broker.
func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{
		logger:      logger,
		subscribers: make(map[chan []byte]struct{}),
	}
}

// Publish broadcasts the alerts of a successful run. Runs without active
// or advance alerts produce no event.
func (b *Broker) Publish(res model.RunResult) {
	if !res.Success || res.Alerts == nil {
		return
	}
	if len(res.Alerts.Active) == 0 && len(res.Alerts.Advance) == 0 {
		return
	}
	payload, err := json.Marshal(AlertEvent{
		RunID:     res.ID,
		Region:    res.Context.Region,
		Crop:      res.Context.Crop,
		Alerts:    res.Alerts.Active,
		Advance:   res.Alerts.Advance,
		Summary:   res.Alerts.Summary,
		EmittedAt: res.Timing.FinishedAt,
	})
	if err != nil {
		b.logger.Warn("broker: marshal alert event", "run_id", res.ID, "error", err)
		return
	}
	b.broadcast(formatSSE(eventAlerts, string(payload)))
}

// Subscribe returns a channel that receives SSE-formatted events.
// The caller must call Unsubscribe when done. After Close the returned
// channel is already closed.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64) // Buffer to avoid blocking the broadcast loop.
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Close disconnects every subscriber so streaming handlers return.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ch := range b.subscribers {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Subscribers returns the number of connected subscribers.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// broadcast sends an event to all subscribers. Slow subscribers that have
// a full buffer are skipped (their event is dropped) to prevent one slow
// client from blocking all others.
func (b *Broker) broadcast(event []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// formatSSE formats a notification as a Server-Sent Events message.
func formatSSE(eventType, data string) []byte {
	return []byte("event: " + eventType + "\ndata: " + data + "\n\n")
}
