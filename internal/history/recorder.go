// Package history hands finished runs to the history store, either
// synchronously or through a buffered background writer.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/agrisense/cropagent/internal/model"
	"github.com/agrisense/cropagent/internal/telemetry"
)

// maxBufferCapacity is the hard upper limit on buffered entries. Entries
// beyond it are dropped and counted rather than growing without bound.
const maxBufferCapacity = 50_000

// ErrBufferFull is returned by Buffer.Record when the buffer is at capacity.
var ErrBufferFull = errors.New("history: buffer at capacity")

// Appender is the write side of the history store.
type Appender interface {
	AppendHistory(ctx context.Context, entries []model.HistoryEntry) error
}

// Recorder accepts the history entry of a finished run.
type Recorder interface {
	Record(ctx context.Context, entry model.HistoryEntry) error
}

// Direct writes each entry before returning, so storage errors reach the
// caller.
type Direct struct {
	store Appender
}

// NewDirect creates a synchronous recorder.
func NewDirect(store Appender) *Direct {
	return &Direct{store: store}
}

// Record appends the entry.
func (d *Direct) Record(ctx context.Context, entry model.HistoryEntry) error {
	if err := d.store.AppendHistory(ctx, []model.HistoryEntry{entry}); err != nil {
		return fmt.Errorf("history: record: %w", err)
	}
	return nil
}

// Buffer accumulates entries in memory and flushes them to the store when
// either the batch size or the flush interval is reached. Failed flushes
// are retried on the next tick while capacity allows.
type Buffer struct {
	store         Appender
	logger        *slog.Logger
	maxSize       int
	flushInterval time.Duration

	mu      sync.Mutex
	entries []model.HistoryEntry

	dropped  atomic.Int64
	failures atomic.Int64
	flushed  atomic.Int64
	started  atomic.Bool

	flushCh    chan struct{}
	done       chan struct{}
	cancelLoop context.CancelFunc
	drainCtx   context.Context // guarded by mu
}

// NewBuffer creates a buffered recorder. Call Start before Record.
func NewBuffer(store Appender, logger *slog.Logger, maxSize int, flushInterval time.Duration) *Buffer {
	if maxSize <= 0 {
		maxSize = 500
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &Buffer{
		store:         store,
		logger:        logger,
		maxSize:       maxSize,
		flushInterval: flushInterval,
		flushCh:       make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
}

// Start begins the background flush loop and registers OTEL metrics.
// A second call is a no-op. Call Drain to stop.
func (b *Buffer) Start(ctx context.Context) {
	if !b.started.CompareAndSwap(false, true) {
		b.logger.Warn("history: buffer already started")
		return
	}
	b.registerMetrics()
	loopCtx, cancel := context.WithCancel(ctx)
	b.cancelLoop = cancel
	go b.flushLoop(loopCtx)
}

// Record queues the entry. It never blocks on the store.
func (b *Buffer) Record(_ context.Context, entry model.HistoryEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) >= maxBufferCapacity {
		b.dropped.Add(1)
		return fmt.Errorf("%w (%d entries)", ErrBufferFull, len(b.entries))
	}
	b.entries = append(b.entries, entry)

	if len(b.entries) >= b.maxSize {
		select {
		case b.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

func (b *Buffer) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// ctx is already cancelled; the final flush needs a live one.
			b.mu.Lock()
			drainCtx := b.drainCtx
			b.mu.Unlock()
			if drainCtx != nil {
				b.flush(drainCtx)
			} else {
				fallbackCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				b.flush(fallbackCtx)
				cancel()
			}
			close(b.done)
			return
		case <-ticker.C:
			b.flush(ctx)
		case <-b.flushCh:
			b.flush(ctx)
		}
	}
}

func (b *Buffer) flush(ctx context.Context) {
	b.mu.Lock()
	if len(b.entries) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.entries
	b.entries = nil
	b.mu.Unlock()

	start := time.Now()
	err := b.store.AppendHistory(ctx, batch)
	duration := time.Since(start)

	if err != nil {
		b.failures.Add(1)
		b.logger.Error("history: flush failed", "error", err, "batch_size", len(batch))
		b.mu.Lock()
		if len(b.entries)+len(batch) <= maxBufferCapacity {
			b.entries = append(batch, b.entries...)
		} else {
			b.dropped.Add(int64(len(batch)))
			b.logger.Error("history: dropping entries, buffer at capacity after flush failure", "dropped", len(batch))
		}
		b.mu.Unlock()
		return
	}

	b.flushed.Add(int64(len(batch)))
	b.logger.Debug("history: batch flushed",
		"batch_size", len(batch),
		"flush_duration_ms", duration.Milliseconds(),
	)
}

// Drain stops the flush loop after a final flush. ctx bounds both the
// wait and the final write.
func (b *Buffer) Drain(ctx context.Context) {
	if !b.started.Load() {
		return
	}
	b.mu.Lock()
	b.drainCtx = ctx
	b.mu.Unlock()
	if b.cancelLoop != nil {
		b.cancelLoop()
	}
	select {
	case <-b.done:
	case <-ctx.Done():
		b.logger.Warn("history: drain timed out waiting for flush loop")
	}
}

func (b *Buffer) registerMetrics() {
	meter := telemetry.Meter("cropagent/history")

	_, _ = meter.Int64ObservableGauge("cropagent.history.buffer_depth",
		metric.WithDescription("Current number of history entries waiting to be written"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(b.Len()))
			return nil
		}),
	)
	_, _ = meter.Int64ObservableGauge("cropagent.history.dropped_total",
		metric.WithDescription("Total history entries dropped due to buffer capacity"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(b.Dropped())
			return nil
		}),
	)
	_, _ = meter.Int64ObservableGauge("cropagent.history.flush_failures_total",
		metric.WithDescription("Total failed history flushes"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(b.FlushFailures())
			return nil
		}),
	)
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Capacity returns the hard limit on buffered entries.
func (b *Buffer) Capacity() int { return maxBufferCapacity }

// Dropped returns the number of entries lost to capacity exhaustion.
func (b *Buffer) Dropped() int64 { return b.dropped.Load() }

// FlushFailures returns the number of failed flush attempts.
func (b *Buffer) FlushFailures() int64 { return b.failures.Load() }

// Flushed returns the number of entries written to the store.
func (b *Buffer) Flushed() int64 { return b.flushed.Load() }
