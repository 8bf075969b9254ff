// Package pipeline is the orchestrator. It resolves a request into a run
// context, fans out to the three collectors, fuses and checks the results
// concurrently, renders the response and hands the run to history.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/agrisense/cropagent/internal/collector"
	"github.com/agrisense/cropagent/internal/history"
	"github.com/agrisense/cropagent/internal/model"
	"github.com/agrisense/cropagent/internal/reference"
	"github.com/agrisense/cropagent/internal/service/alerts"
	"github.com/agrisense/cropagent/internal/service/fusion"
	"github.com/agrisense/cropagent/internal/service/render"
	"github.com/agrisense/cropagent/internal/telemetry"
)

// FanoutPolicy decides what a collector failure does to the run.
type FanoutPolicy string

const (
	// FailFast fails the whole run when any collector fails.
	FailFast FanoutPolicy = "fail_fast"
	// Partial continues without the failed dimension and lists it in
	// RunResult.Degraded.
	Partial FanoutPolicy = "partial"
)

// Valid reports whether p is a known policy.
func (p FanoutPolicy) Valid() bool { return p == FailFast || p == Partial }

// WeatherCollector produces weather snapshots.
type WeatherCollector interface {
	collector.Agent
	Execute(ctx context.Context, rc model.RunContext) (model.WeatherSnapshot, error)
}

// SoilCollector produces soil snapshots.
type SoilCollector interface {
	collector.Agent
	Execute(ctx context.Context, rc model.RunContext) (model.SoilSnapshot, error)
}

// SatelliteCollector produces crop-health snapshots.
type SatelliteCollector interface {
	collector.Agent
	Execute(ctx context.Context, rc model.RunContext) (model.SatelliteSnapshot, error)
}

// Request is one assessment request.
type Request struct {
	Query    string
	Language string
	Region   string
	Crop     string
}

// Config holds the orchestrator settings.
type Config struct {
	Policy          FanoutPolicy
	DefaultRegion   string
	DefaultCrop     string
	DefaultLanguage string
	// StrictPersistence fails the run when the history write fails.
	StrictPersistence bool
}

// Deps are the components the pipeline drives.
type Deps struct {
	Tables    *reference.Tables
	Weather   WeatherCollector
	Soil      SoilCollector
	Satellite SatelliteCollector
	Fusion    *fusion.Engine
	Alerts    *alerts.Engine
	Renderer  *render.Renderer
	Recorder  history.Recorder
	Logger    *slog.Logger
	Clock     func() time.Time
	// OnResult, when set, is called with every successful result.
	OnResult func(model.RunResult)
}

// Pipeline runs assessments. All methods are safe for concurrent use.
type Pipeline struct {
	tables    *reference.Tables
	weather   WeatherCollector
	soil      SoilCollector
	satellite SatelliteCollector
	fusion    *fusion.Engine
	alerts    *alerts.Engine
	renderer  *render.Renderer
	recorder  history.Recorder
	logger    *slog.Logger
	now       func() time.Time
	onResult  func(model.RunResult)
	cfg       Config

	self       collector.Tracker
	prediction collector.Tracker
	alerting   collector.Tracker
	response   collector.Tracker

	tracer        trace.Tracer
	runs          metric.Int64Counter
	runDuration   metric.Float64Histogram
	historyErrors metric.Int64Counter
}

// Validate checks the policy and that every non-empty default names an
// entry of tables. All problems are reported.
func (c Config) Validate(tables *reference.Tables) error {
	var errs []error
	if c.Policy != "" && !c.Policy.Valid() {
		errs = append(errs, fmt.Errorf("pipeline: fanout policy %q: want fail_fast or partial", c.Policy))
	}
	if c.DefaultRegion != "" {
		if _, ok := tables.Region(c.DefaultRegion); !ok {
			errs = append(errs, fmt.Errorf("pipeline: default region %q is not a known region", c.DefaultRegion))
		}
	}
	if c.DefaultCrop != "" {
		if _, ok := tables.Crop(c.DefaultCrop); !ok {
			errs = append(errs, fmt.Errorf("pipeline: default crop %q is not a known crop", c.DefaultCrop))
		}
	}
	if c.DefaultLanguage != "" && !tables.HasLanguage(c.DefaultLanguage) {
		errs = append(errs, fmt.Errorf("pipeline: default language %q is not one of %v", c.DefaultLanguage, tables.LanguageCodes()))
	}
	return errors.Join(errs...)
}

// New wires a Pipeline. Zero-valued config fields take the defaults
// Maharashtra, Rice, en and fail_fast.
func New(deps Deps, cfg Config) *Pipeline {
	if cfg.Policy == "" {
		cfg.Policy = FailFast
	}
	if cfg.DefaultRegion == "" {
		cfg.DefaultRegion = "Maharashtra"
	}
	if cfg.DefaultCrop == "" {
		cfg.DefaultCrop = "Rice"
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = deps.Tables.DefaultLanguage
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	meter := telemetry.Meter("cropagent/pipeline")
	runs, _ := meter.Int64Counter("cropagent.pipeline.runs",
		metric.WithDescription("Pipeline runs by outcome"),
	)
	runDuration, _ := meter.Float64Histogram("cropagent.pipeline.duration",
		metric.WithDescription("End-to-end pipeline run time"),
		metric.WithUnit("ms"),
	)
	historyErrors, _ := meter.Int64Counter("cropagent.pipeline.history_errors",
		metric.WithDescription("Runs whose history hand-off failed"),
	)

	return &Pipeline{
		tables:        deps.Tables,
		weather:       deps.Weather,
		soil:          deps.Soil,
		satellite:     deps.Satellite,
		fusion:        deps.Fusion,
		alerts:        deps.Alerts,
		renderer:      deps.Renderer,
		recorder:      deps.Recorder,
		logger:        deps.Logger,
		now:           deps.Clock,
		onResult:      deps.OnResult,
		cfg:           cfg,
		tracer:        telemetry.Tracer("cropagent/pipeline"),
		runs:          runs,
		runDuration:   runDuration,
		historyErrors: historyErrors,
	}
}

// Tables returns the reference tables the pipeline resolves against.
func (p *Pipeline) Tables() *reference.Tables { return p.tables }

// Policy returns the configured fan-out policy.
func (p *Pipeline) Policy() FanoutPolicy { return p.cfg.Policy }

var orchestratorCapabilities = []string{
	"parse_user_query",
	"orchestrate_agents",
	"parallel_execution",
	"aggregate_results",
	"error_handling",
}

// Status reports every component's execution record, orchestrator first.
func (p *Pipeline) Status() []model.AgentStatus {
	return []model.AgentStatus{
		p.self.Status("manager_agent", orchestratorCapabilities),
		p.weather.Status(),
		p.soil.Status(),
		p.satellite.Status(),
		p.prediction.Status(p.fusion.Name(), p.fusion.Capabilities()),
		p.alerting.Status(p.alerts.Name(), p.alerts.Capabilities()),
		p.response.Status(p.renderer.Name(), p.renderer.Capabilities()),
	}
}

// QuickWeather runs only the weather collector for region.
func (p *Pipeline) QuickWeather(ctx context.Context, region string) (model.WeatherSnapshot, error) {
	r, ok := p.tables.Region(region)
	if !ok {
		return model.WeatherSnapshot{}, ErrUnknownRegion
	}
	return p.weather.Execute(ctx, model.RunContext{
		Region:    r.Name,
		Location:  r.Location(),
		StartedAt: p.now(),
	})
}

// QuickSoil runs only the soil collector for region and crop.
func (p *Pipeline) QuickSoil(ctx context.Context, region, crop string) (model.SoilSnapshot, error) {
	r, ok := p.tables.Region(region)
	if !ok {
		return model.SoilSnapshot{}, ErrUnknownRegion
	}
	c, ok := p.tables.Crop(crop)
	if !ok {
		return model.SoilSnapshot{}, ErrUnknownCrop
	}
	return p.soil.Execute(ctx, model.RunContext{
		Region:    r.Name,
		Crop:      c.Name,
		Location:  r.Location(),
		StartedAt: p.now(),
	})
}
