package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/agrisense/cropagent/internal/collector"
	"github.com/agrisense/cropagent/internal/model"
	"github.com/agrisense/cropagent/internal/noise"
	"github.com/agrisense/cropagent/internal/reference"
	"github.com/agrisense/cropagent/internal/service/alerts"
	"github.com/agrisense/cropagent/internal/service/fusion"
	"github.com/agrisense/cropagent/internal/service/render"
	"github.com/agrisense/cropagent/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func july() time.Time { return time.Date(2026, 7, 15, 9, 0, 0, 0, time.UTC) }

// failingSource always errors, forcing the simulated fallback.
type failingSource[S any] struct{ calls atomic.Int32 }

func (f *failingSource[S]) Name() string { return "failing" }

func (f *failingSource[S]) Fetch(context.Context, collector.FetchRequest) (S, error) {
	f.calls.Add(1)
	var zero S
	return zero, errors.New("connection refused")
}

// stubSoil lets a test make the soil collector fail, panic or block.
type stubSoil struct {
	err     error
	panics  bool
	block   bool
	tracker collector.Tracker
}

func (s *stubSoil) Name() string           { return "soil" }
func (s *stubSoil) Capabilities() []string { return []string{"analyze_soil"} }
func (s *stubSoil) Status() model.AgentStatus {
	return s.tracker.Status(s.Name(), s.Capabilities())
}

func (s *stubSoil) Execute(ctx context.Context, _ model.RunContext) (model.SoilSnapshot, error) {
	s.tracker.Touch(july())
	switch {
	case s.panics:
		panic("nil pointer in soil model")
	case s.block:
		<-ctx.Done()
		return model.SoilSnapshot{}, ctx.Err()
	case s.err != nil:
		return model.SoilSnapshot{}, s.err
	}
	return model.SoilSnapshot{HealthScore: 70, Moisture: model.MoistureReading{Current: 50, Status: model.MoistureOptimal}}, nil
}

type memRecorder struct {
	mu      sync.Mutex
	entries []model.HistoryEntry
	err     error
}

func (m *memRecorder) Record(_ context.Context, e model.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

type fixture struct {
	deps    Deps
	weather *failingSource[model.WeatherSnapshot]
	rec     *memRecorder
}

func newFixture() *fixture {
	tables := reference.Default()
	cdeps := collector.Deps{
		Tables: tables,
		Noise:  noise.Constant(0.5),
		Clock:  july,
		Policy: collector.FetchPolicy{Timeout: 200 * time.Millisecond, Retries: 1, RetryDelay: time.Millisecond},
		Logger: testutil.TestLogger(),
	}
	ws := &failingSource[model.WeatherSnapshot]{}
	rec := &memRecorder{}
	return &fixture{
		weather: ws,
		rec:     rec,
		deps: Deps{
			Tables:    tables,
			Weather:   collector.NewWeather(cdeps, ws),
			Soil:      collector.NewSoil(cdeps, nil),
			Satellite: collector.NewSatellite(cdeps, nil),
			Fusion:    fusion.New(tables, noise.Constant(0.5), july),
			Alerts:    alerts.New(tables, july),
			Renderer:  render.New(tables),
			Recorder:  rec,
			Logger:    testutil.TestLogger(),
			Clock:     july,
		},
	}
}

func TestExecute_FetchFailureFallsBackToSimulation(t *testing.T) {
	f := newFixture()
	p := New(f.deps, Config{})

	res, err := p.Execute(context.Background(), Request{Query: "What is the wheat yield in Punjab?", Language: "en"})
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, "Punjab", res.Context.Region)
	assert.Equal(t, "Wheat", res.Context.Crop)
	assert.Equal(t, model.IntentYield, res.Context.Intent)
	require.NotNil(t, res.Snapshots.Weather)
	assert.Equal(t, model.SourceSimulated, res.Snapshots.Weather.DataSource)
	assert.Equal(t, int32(2), f.weather.calls.Load(), "one retry before falling back")
	assert.Empty(t, res.Degraded)

	require.NotNil(t, res.Prediction)
	wheat, _ := reference.Default().Crop("Wheat")
	assert.GreaterOrEqual(t, res.Prediction.PredictedYield, wheat.Yield.Min)
	assert.LessOrEqual(t, res.Prediction.PredictedYield, wheat.Yield.Max)
	require.NotNil(t, res.Response)
	assert.Equal(t, "en", res.Response.Language)

	for _, s := range []string{stageResolve, stageCollect, stageFusion, stageAlerts, stageRender, stageHistory} {
		assert.Contains(t, res.Timing.StagesMS, s)
	}
}

func TestExecute_UnknownQueryRegionUsesDefault(t *testing.T) {
	p := New(newFixture().deps, Config{})

	res, err := p.Execute(context.Background(), Request{Query: "how are crops in Atlantis"})
	require.NoError(t, err)
	assert.Equal(t, "Maharashtra", res.Context.Region)
	assert.Equal(t, "Rice", res.Context.Crop)
}

func TestExecute_ExplicitUnknownRegionIsClientError(t *testing.T) {
	f := newFixture()
	p := New(f.deps, Config{})

	res, err := p.Execute(context.Background(), Request{Query: "yield", Region: "Atlantis"})
	assert.ErrorIs(t, err, ErrUnknownRegion)
	assert.False(t, res.Success)
	assert.Zero(t, p.weather.Status().ExecutionCount, "pipeline must not run")

	_, err = p.Execute(context.Background(), Request{Query: "yield", Region: "Punjab", Crop: "Quinoa"})
	assert.ErrorIs(t, err, ErrUnknownCrop)
}

func TestExecute_CallerFieldsOverrideQuery(t *testing.T) {
	p := New(newFixture().deps, Config{})

	res, err := p.Execute(context.Background(), Request{Query: "rice in Punjab", Region: "karnataka", Crop: "ragi"})
	require.NoError(t, err)
	assert.Equal(t, "Karnataka", res.Context.Region)
	assert.Equal(t, "Ragi", res.Context.Crop)
}

func TestParseQuery(t *testing.T) {
	tables := reference.Default()
	tests := []struct {
		query, lang string
		region      string
		crop        string
		intent      model.Intent
	}{
		{"Will it rain in Gujarat?", "en", "Gujarat", "", model.IntentWeather},
		{"soil test for cotton", "en", "", "Cotton", model.IntentSoil},
		{"पंजाब में गेहूं की सिंचाई", "hi", "Punjab", "Wheat", model.IntentIrrigation},
		{"pest on my sugarcane", "mr", "", "Sugarcane", model.IntentHealth},
		{"weather and soil", "en", "", "", model.IntentWeather},
		{"expected harvest", "en", "", "", model.IntentYield},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := parseQuery(tables, tt.query, tt.lang)
			assert.Equal(t, tt.region, got.region)
			assert.Equal(t, tt.crop, got.crop)
			assert.Equal(t, tt.intent, got.intent)
		})
	}
}

func TestExecute_FailFastOnCollectorError(t *testing.T) {
	f := newFixture()
	f.deps.Soil = &stubSoil{err: errors.New("soil model unavailable")}
	p := New(f.deps, Config{Policy: FailFast})

	res, err := p.Execute(context.Background(), Request{Query: "yield"})
	require.Error(t, err)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "soil", se.Stage)
	assert.False(t, res.Success)
	assert.Nil(t, res.Prediction)
	assert.Contains(t, res.Error, "soil model unavailable")

	// Collector metrics are still recorded.
	require.Len(t, f.rec.entries, 1)
	assert.Nil(t, f.rec.entries[0].Prediction)
	assert.Len(t, f.rec.entries[0].Metrics, 3)
}

func TestExecute_PanicBecomesStageError(t *testing.T) {
	f := newFixture()
	f.deps.Soil = &stubSoil{panics: true}
	p := New(f.deps, Config{})

	res, err := p.Execute(context.Background(), Request{Query: "yield"})
	assert.ErrorIs(t, err, ErrPanic)
	assert.False(t, res.Success)
}

func TestExecute_PartialPolicyDegrades(t *testing.T) {
	f := newFixture()
	f.deps.Soil = &stubSoil{err: errors.New("sensor offline")}
	p := New(f.deps, Config{Policy: Partial})

	res, err := p.Execute(context.Background(), Request{Query: "yield in Punjab"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"soil"}, res.Degraded)
	assert.Nil(t, res.Snapshots.Soil)
	assert.Nil(t, res.Response.SoilCard)
	assert.Equal(t, 0.7, res.Prediction.Factors.Soil)
}

func TestExecute_CancelledContext(t *testing.T) {
	f := newFixture()
	f.deps.Soil = &stubSoil{block: true}
	p := New(f.deps, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res, err := p.Execute(ctx, Request{Query: "yield"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, res.Success)
}

func TestExecute_PersistenceFailure(t *testing.T) {
	f := newFixture()
	f.rec.err = errors.New("disk full")

	lenient := New(f.deps, Config{})
	res, err := lenient.Execute(context.Background(), Request{Query: "yield"})
	require.NoError(t, err)
	assert.True(t, res.Success)

	strict := New(f.deps, Config{StrictPersistence: true})
	res, err = strict.Execute(context.Background(), Request{Query: "yield"})
	assert.ErrorIs(t, err, ErrPersistence)
	assert.False(t, res.Success)
}

func TestExecute_HistoryEntry(t *testing.T) {
	f := newFixture()
	p := New(f.deps, Config{})

	res, err := p.Execute(context.Background(), Request{Query: "Punjab wheat", Language: "hi"})
	require.NoError(t, err)
	require.Len(t, f.rec.entries, 1)

	e := f.rec.entries[0]
	require.NotNil(t, e.Prediction)
	assert.Equal(t, res.ID, e.Prediction.ID)
	assert.Equal(t, res.Prediction.PredictedYield, e.Prediction.PredictedYield)
	assert.NotEmpty(t, e.Prediction.Snapshots)
	require.NotNil(t, e.Query)
	assert.Equal(t, "hi", e.Query.Language)
	assert.Len(t, e.Metrics, 3)
	assert.Len(t, e.Alerts, len(res.Alerts.Active))
}

func TestExecute_ConcurrentRunsAndStatus(t *testing.T) {
	f := newFixture()
	var seen atomic.Int32
	f.deps.OnResult = func(model.RunResult) { seen.Add(1) }
	p := New(f.deps, Config{})

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			res, err := p.Execute(context.Background(), Request{Query: "yield in Rajasthan"})
			assert.NoError(t, err)
			assert.True(t, res.Success)
		})
	}
	wg.Wait()

	assert.Equal(t, int32(20), seen.Load())
	status := p.Status()
	require.Len(t, status, 7)
	assert.Equal(t, "manager_agent", status[0].Name)
	for _, s := range status {
		assert.Equal(t, int64(20), s.ExecutionCount, s.Name)
	}
}

func TestQuickWeatherAndSoil(t *testing.T) {
	p := New(newFixture().deps, Config{})

	w, err := p.QuickWeather(context.Background(), "punjab")
	require.NoError(t, err)
	assert.Equal(t, 31.1471, w.Location.Latitude)

	_, err = p.QuickWeather(context.Background(), "Atlantis")
	assert.ErrorIs(t, err, ErrUnknownRegion)

	s, err := p.QuickSoil(context.Background(), "Maharashtra", "Rice")
	require.NoError(t, err)
	assert.NotEmpty(t, s.SoilType)

	_, err = p.QuickSoil(context.Background(), "Maharashtra", "Quinoa")
	assert.ErrorIs(t, err, ErrUnknownCrop)
}

// gate holds every collector until all of them have started.
type gate struct {
	wg       sync.WaitGroup
	released atomic.Int32
}

func newGate(n int) *gate {
	g := &gate{}
	g.wg.Add(n)
	return g
}

func (g *gate) arrive(ctx context.Context) error {
	g.wg.Done()
	all := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(all)
	}()
	select {
	case <-all:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Second):
		return errors.New("collectors did not run concurrently")
	}
	g.released.Add(1)
	return nil
}

type snapshotCollector[S any] interface {
	collector.Agent
	Execute(ctx context.Context, rc model.RunContext) (S, error)
}

// gatedCollector waits at the gate before delegating to the real collector.
type gatedCollector[S any] struct {
	snapshotCollector[S]
	gate *gate
}

func (c gatedCollector[S]) Execute(ctx context.Context, rc model.RunContext) (S, error) {
	if err := c.gate.arrive(ctx); err != nil {
		var zero S
		return zero, err
	}
	return c.snapshotCollector.Execute(ctx, rc)
}

// gateRecorder notes how many collectors had passed the gate when history ran.
type gateRecorder struct {
	gate     *gate
	observed atomic.Int32
}

func (r *gateRecorder) Record(context.Context, model.HistoryEntry) error {
	r.observed.Store(r.gate.released.Load())
	return nil
}

func TestExecute_CollectorsRunConcurrently(t *testing.T) {
	f := newFixture()
	g := newGate(3)
	f.deps.Weather = gatedCollector[model.WeatherSnapshot]{f.deps.Weather, g}
	f.deps.Soil = gatedCollector[model.SoilSnapshot]{f.deps.Soil, g}
	f.deps.Satellite = gatedCollector[model.SatelliteSnapshot]{f.deps.Satellite, g}
	rec := &gateRecorder{gate: g}
	f.deps.Recorder = rec
	var atResult atomic.Int32
	f.deps.OnResult = func(model.RunResult) { atResult.Store(g.released.Load()) }
	p := New(f.deps, Config{Policy: FailFast})

	res, err := p.Execute(context.Background(), Request{Query: "yield in Punjab"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Degraded)
	require.NotNil(t, res.Snapshots.Weather)
	require.NotNil(t, res.Snapshots.Soil)
	require.NotNil(t, res.Snapshots.Satellite)
	require.NotNil(t, res.Prediction)

	// Later stages only ran once all three collectors had returned.
	assert.Equal(t, int32(3), rec.observed.Load())
	assert.Equal(t, int32(3), atResult.Load())
	assert.Contains(t, res.Timing.StagesMS, stageFusion)
}

func TestConfigValidate(t *testing.T) {
	tables := reference.Default()
	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{"zero value", Config{}, nil},
		{"known defaults", Config{Policy: Partial, DefaultRegion: "punjab", DefaultCrop: "wheat", DefaultLanguage: "mr"}, nil},
		{"unknown region", Config{DefaultRegion: "Kerala"}, []string{`default region "Kerala"`}},
		{"unknown crop", Config{DefaultCrop: "Saffron"}, []string{`default crop "Saffron"`}},
		{"unsupported language", Config{DefaultLanguage: "fr"}, []string{`default language "fr"`}},
		{"bad policy", Config{Policy: "eventually"}, []string{`fanout policy "eventually"`}},
		{"every problem reported", Config{DefaultRegion: "Kerala", DefaultLanguage: "fr"},
			[]string{"Kerala", `"fr"`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate(tables)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}
