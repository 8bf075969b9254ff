package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/agrisense/cropagent/internal/model"
	"github.com/agrisense/cropagent/internal/telemetry"
)

// Stage names used in timings, errors and spans.
const (
	stageResolve = "resolve"
	stageCollect = "collect"
	stageFusion  = "fusion"
	stageAlerts  = "alerts"
	stageRender  = "render"
	stageHistory = "history"
)

// run accumulates the state of one Execute call.
type run struct {
	rc      model.RunContext
	started time.Time // pipeline clock, reported in results
	begin   time.Time // wall clock, for durations
	snaps   model.Snapshots
	pred    model.PredictionRecord
	report  model.AlertReport

	mu       sync.Mutex
	stages   map[string]float64
	metrics  []model.AgentMetric
	degraded []string
}

func (r *run) stage(name string, start time.Time) {
	r.mu.Lock()
	r.stages[name] = telemetry.SinceMS(start)
	r.mu.Unlock()
}

func (r *run) metric(m model.AgentMetric) {
	r.mu.Lock()
	r.metrics = append(r.metrics, m)
	r.mu.Unlock()
}

func (r *run) degrade(name string) {
	r.mu.Lock()
	r.degraded = append(r.degraded, name)
	r.mu.Unlock()
}

// Execute runs the full assessment. A client error (unknown region or
// crop) returns before any stage runs. Any stage error or panic yields a
// result with Success false and a *StageError. The returned result is
// always populated, so callers can render it either way.
func (p *Pipeline) Execute(ctx context.Context, req Request) (model.RunResult, error) {
	p.self.Touch(p.now())
	r := &run{started: p.now(), begin: time.Now(), stages: make(map[string]float64, 6)}
	id := uuid.New()

	ctx, span := p.tracer.Start(ctx, "pipeline.execute")
	defer span.End()

	t := time.Now()
	target, err := p.resolve(req)
	r.stage(stageResolve, t)
	r.rc = model.RunContext{
		ID:        id,
		Region:    target.region.Name,
		Crop:      target.crop,
		Language:  target.lang,
		Query:     req.Query,
		Intent:    target.intent,
		Location:  target.region.Location(),
		StartedAt: r.started,
	}
	if err != nil {
		r.rc.Region, r.rc.Crop = req.Region, req.Crop
		return p.fail(ctx, span, r, err), err
	}
	span.SetAttributes(
		attribute.String("run.id", id.String()),
		attribute.String("run.region", r.rc.Region),
		attribute.String("run.crop", r.rc.Crop),
		attribute.String("run.intent", string(r.rc.Intent)),
	)
	p.logger.Debug("pipeline: run started",
		"run_id", id, "region", r.rc.Region, "crop", r.rc.Crop, "language", r.rc.Language, "intent", r.rc.Intent)

	if err := p.collect(ctx, r); err != nil {
		p.record(ctx, r, model.HistoryEntry{Metrics: r.metrics})
		return p.fail(ctx, span, r, err), err
	}
	if err := p.analyze(ctx, r); err != nil {
		return p.fail(ctx, span, r, err), err
	}

	var rendered model.RenderedResponse
	t = time.Now()
	err = guard(stageRender, func() error {
		rendered = p.renderer.Render(r.rc.Language, r.rc, r.snaps, r.pred, r.report)
		p.response.Touch(p.now())
		return nil
	})
	r.stage(stageRender, t)
	if err != nil {
		return p.fail(ctx, span, r, err), err
	}

	res := model.RunResult{
		ID:         id,
		Success:    true,
		Context:    r.rc,
		Snapshots:  &r.snaps,
		Prediction: &r.pred,
		Alerts:     &r.report,
		Response:   &rendered,
		Degraded:   r.degraded,
	}

	t = time.Now()
	herr := p.record(ctx, r, p.historyEntry(r))
	r.stage(stageHistory, t)
	if herr != nil && p.cfg.StrictPersistence {
		err := fmt.Errorf("%w: %w", ErrPersistence, herr)
		return p.fail(ctx, span, r, err), err
	}

	res.Timing = p.timing(r)
	p.finish(ctx, span, r, "success")
	if p.onResult != nil {
		p.onResult(res)
	}
	return res, nil
}

// collect runs the three collectors concurrently and waits for all of
// them. Under FailFast the first failure cancels the others.
func (p *Pipeline) collect(ctx context.Context, r *run) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.collect")
	defer span.End()
	start := time.Now()
	defer r.stage(stageCollect, start)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.runCollector(gctx, r, p.weather.Name(), func(ctx context.Context) error {
			snap, err := p.weather.Execute(ctx, r.rc)
			if err == nil {
				r.snaps.Weather = &snap
			}
			return err
		})
	})
	g.Go(func() error {
		return p.runCollector(gctx, r, p.soil.Name(), func(ctx context.Context) error {
			snap, err := p.soil.Execute(ctx, r.rc)
			if err == nil {
				r.snaps.Soil = &snap
			}
			return err
		})
	})
	g.Go(func() error {
		return p.runCollector(gctx, r, p.satellite.Name(), func(ctx context.Context) error {
			snap, err := p.satellite.Execute(ctx, r.rc)
			if err == nil {
				r.snaps.Satellite = &snap
			}
			return err
		})
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if p.cfg.Policy == Partial && len(r.degraded) == 3 {
		return &StageError{Stage: stageCollect, Err: errors.New("every collector failed")}
	}
	return nil
}

// runCollector executes one collector, records its metric and applies the
// fan-out policy to a failure.
func (p *Pipeline) runCollector(ctx context.Context, r *run, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := guard(name, func() error { return fn(ctx) })
	m := model.AgentMetric{
		Agent:      name,
		DurationMS: telemetry.SinceMS(start),
		Success:    err == nil,
		RecordedAt: p.now(),
	}
	if err != nil {
		m.Error = err.Error()
	}
	r.metric(m)

	if err == nil {
		return nil
	}
	if p.cfg.Policy == Partial && ctx.Err() == nil {
		p.logger.Warn("pipeline: collector failed, continuing without it",
			"run_id", r.rc.ID, "collector", name, "error", err)
		r.degrade(name)
		return nil
	}
	return err
}

// analyze runs fusion and the alert engine concurrently over the same
// snapshots.
func (p *Pipeline) analyze(ctx context.Context, r *run) error {
	_, span := p.tracer.Start(ctx, "pipeline.analyze")
	defer span.End()

	var g errgroup.Group
	g.Go(func() error {
		start := time.Now()
		defer r.stage(stageFusion, start)
		return guard(stageFusion, func() error {
			pred, err := p.fusion.Predict(r.rc.Region, r.rc.Crop, r.snaps)
			if err != nil {
				return err
			}
			r.pred = pred
			p.prediction.Touch(p.now())
			return nil
		})
	})
	g.Go(func() error {
		start := time.Now()
		defer r.stage(stageAlerts, start)
		return guard(stageAlerts, func() error {
			r.report = p.alerts.Report(r.snaps, r.rc.Crop)
			p.alerting.Touch(p.now())
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (p *Pipeline) historyEntry(r *run) model.HistoryEntry {
	now := p.now().UTC()
	snapJSON, err := json.Marshal(r.snaps)
	if err != nil {
		p.logger.Warn("pipeline: marshal snapshots", "run_id", r.rc.ID, "error", err)
		snapJSON = nil
	}
	entry := model.HistoryEntry{
		Prediction: &model.PredictionRun{
			ID:             r.rc.ID,
			Region:         r.rc.Region,
			Crop:           r.rc.Crop,
			PredictedYield: r.pred.PredictedYield,
			RiskScore:      r.pred.RiskScore,
			Confidence:     r.pred.Confidence,
			Snapshots:      snapJSON,
			CreatedAt:      now,
		},
		Query: &model.QueryRecord{
			ID:        r.rc.ID,
			Query:     r.rc.Query,
			Language:  r.rc.Language,
			Region:    r.rc.Region,
			Crop:      r.rc.Crop,
			Intent:    r.rc.Intent,
			LatencyMS: telemetry.SinceMS(r.begin),
			CreatedAt: now,
		},
		Metrics: r.metrics,
	}
	for _, a := range r.report.Active {
		entry.Alerts = append(entry.Alerts, model.AlertOccurrence{
			RunID:     r.rc.ID,
			Region:    r.rc.Region,
			Kind:      a.Kind,
			Severity:  a.Severity,
			Message:   a.Message,
			CreatedAt: now,
		})
	}
	return entry
}

// record hands an entry to the recorder. Failures are logged and counted;
// the caller decides whether they fail the run.
func (p *Pipeline) record(ctx context.Context, r *run, entry model.HistoryEntry) error {
	if p.recorder == nil {
		return nil
	}
	if err := p.recorder.Record(ctx, entry); err != nil {
		p.historyErrors.Add(ctx, 1)
		p.logger.Error("pipeline: history hand-off failed", "run_id", r.rc.ID, "error", err)
		return err
	}
	return nil
}

func (p *Pipeline) timing(r *run) model.Timing {
	r.mu.Lock()
	defer r.mu.Unlock()
	stages := make(map[string]float64, len(r.stages))
	for k, v := range r.stages {
		stages[k] = v
	}
	return model.Timing{
		StartedAt:  r.started,
		FinishedAt: p.now(),
		TotalMS:    telemetry.SinceMS(r.begin),
		StagesMS:   stages,
	}
}

func (p *Pipeline) fail(ctx context.Context, span trace.Span, r *run, err error) model.RunResult {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	outcome := "stage_error"
	switch {
	case errors.Is(err, ErrUnknownRegion), errors.Is(err, ErrUnknownCrop):
		outcome = "client_error"
	case errors.Is(err, ErrPersistence):
		outcome = "persistence_error"
	default:
		p.logger.Error("pipeline: run failed", "run_id", r.rc.ID, "error", err)
	}
	p.finish(ctx, span, r, outcome)

	return model.RunResult{
		ID:      r.rc.ID,
		Success: false,
		Error:   err.Error(),
		Context: r.rc,
		Timing:  p.timing(r),
	}
}

func (p *Pipeline) finish(ctx context.Context, span trace.Span, r *run, outcome string) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	p.runs.Add(ctx, 1, attrs)
	p.runDuration.Record(ctx, telemetry.SinceMS(r.begin), attrs)
	span.SetAttributes(attribute.String("run.outcome", outcome))
}
