// Package collector produces the weather, soil and satellite snapshots
// for one run. Each collector tries its live source under a deadline with
// bounded retry and falls back to a simulation that cannot fail.
package collector

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/agrisense/cropagent/internal/model"
	"github.com/agrisense/cropagent/internal/noise"
	"github.com/agrisense/cropagent/internal/reference"
	"github.com/agrisense/cropagent/internal/telemetry"
)

// Agent is the introspection surface shared by every pipeline component.
type Agent interface {
	Name() string
	Capabilities() []string
	Status() model.AgentStatus
}

// Tracker counts executions. Safe for concurrent use.
type Tracker struct {
	count atomic.Int64
	last  atomic.Int64 // unix nanos, 0 = never
}

// Touch records one execution at now.
func (t *Tracker) Touch(now time.Time) {
	t.count.Add(1)
	t.last.Store(now.UnixNano())
}

// Status returns the current counters as an AgentStatus.
func (t *Tracker) Status(name string, caps []string) model.AgentStatus {
	s := model.AgentStatus{
		Name:           name,
		Capabilities:   caps,
		ExecutionCount: t.count.Load(),
	}
	if ns := t.last.Load(); ns != 0 {
		ts := time.Unix(0, ns).UTC()
		s.LastExecutionTime = &ts
	}
	return s
}

// FetchRequest identifies what a live source should fetch.
type FetchRequest struct {
	Region   string
	Crop     string
	Location model.Location
}

// Source is a live data feed for one dimension.
type Source[S any] interface {
	Name() string
	Fetch(ctx context.Context, req FetchRequest) (S, error)
}

// ErrSourceRejected marks fetch failures retrying cannot fix, such as an
// invalid API key or a malformed payload.
var ErrSourceRejected = errors.New("collector: source rejected request")

// FetchPolicy bounds a live fetch. Timeout covers all attempts.
type FetchPolicy struct {
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

// DefaultFetchPolicy is used when a zero policy is supplied.
var DefaultFetchPolicy = FetchPolicy{Timeout: 5 * time.Second, Retries: 2, RetryDelay: 200 * time.Millisecond}

// Deps are the shared constructor dependencies of the collectors.
type Deps struct {
	Tables *reference.Tables
	Noise  noise.Source
	Clock  func() time.Time
	Policy FetchPolicy
	Logger *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Tables == nil {
		d.Tables = reference.Default()
	}
	if d.Noise == nil {
		d.Noise = noise.NewSeeded(0)
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Policy.Timeout <= 0 {
		d.Policy = DefaultFetchPolicy
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

// base carries the fetch-or-simulate flow shared by all collectors.
type base[S any] struct {
	name    string
	caps    []string
	source  Source[S]
	deps    Deps
	tracker Tracker

	fallbacks metric.Int64Counter
	duration  metric.Float64Histogram
}

func newBase[S any](name string, caps []string, source Source[S], deps Deps) base[S] {
	meter := telemetry.Meter("cropagent/collector")
	fallbacks, _ := meter.Int64Counter("cropagent.collector.fallbacks",
		metric.WithDescription("Live fetches that fell back to simulation"),
	)
	duration, _ := meter.Float64Histogram("cropagent.collector.duration",
		metric.WithDescription("Collector execution time"),
		metric.WithUnit("ms"),
	)
	return base[S]{
		name:      name,
		caps:      caps,
		source:    source,
		deps:      deps,
		fallbacks: fallbacks,
		duration:  duration,
	}
}

func (b *base[S]) Name() string           { return b.name }
func (b *base[S]) Capabilities() []string { return b.caps }

func (b *base[S]) Status() model.AgentStatus {
	return b.tracker.Status(b.name, b.caps)
}

// collect tries the live source and falls back to simulate. It only
// returns an error when ctx itself is done; fetch failures and fetch
// timeouts are absorbed by the fallback.
func (b *base[S]) collect(ctx context.Context, req FetchRequest, simulate func(FetchRequest) S) (S, bool, error) {
	var zero S
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	b.tracker.Touch(b.deps.Clock())
	start := time.Now()
	attrs := metric.WithAttributes(attribute.String("collector", b.name))
	defer func() { b.duration.Record(ctx, telemetry.SinceMS(start), attrs) }()

	if b.source != nil {
		snap, err := b.fetch(ctx, req)
		if err == nil {
			return snap, true, nil
		}
		if ctx.Err() != nil {
			return zero, false, ctx.Err()
		}
		b.fallbacks.Add(ctx, 1, attrs)
		b.deps.Logger.Warn("collector: live fetch failed, using simulation",
			"collector", b.name, "source", b.source.Name(), "region", req.Region, "error", err)
	}
	return simulate(req), false, nil
}

func (b *base[S]) fetch(ctx context.Context, req FetchRequest) (S, error) {
	ctx, cancel := context.WithTimeout(ctx, b.deps.Policy.Timeout)
	defer cancel()

	var snap S
	err := withRetry(ctx, b.deps.Policy.Retries, b.deps.Policy.RetryDelay, func(ctx context.Context) error {
		var ferr error
		snap, ferr = b.source.Fetch(ctx, req)
		return ferr
	})
	return snap, err
}

func fetchRequest(tables *reference.Tables, rc model.RunContext) FetchRequest {
	loc := rc.Location
	if r, ok := tables.Region(rc.Region); ok && loc == (model.Location{}) {
		loc = r.Location()
	}
	return FetchRequest{Region: rc.Region, Crop: rc.Crop, Location: loc}
}
