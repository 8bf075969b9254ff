package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisense/cropagent/internal/model"
	"github.com/agrisense/cropagent/internal/reference"
)

var genTime = time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)

func newEngine() *Engine {
	return New(reference.Default(), func() time.Time { return genTime })
}

func weather(tempC, humidity, rain float64) *model.WeatherSnapshot {
	return &model.WeatherSnapshot{
		Current:  model.CurrentWeather{TemperatureC: tempC, HumidityPct: humidity},
		Rainfall: model.Rainfall{Last24h: rain},
	}
}

func soil(moisture float64) *model.SoilSnapshot {
	return &model.SoilSnapshot{Moisture: model.MoistureReading{Current: moisture}}
}

func kinds(b model.AlertBatch) []model.AlertKind {
	out := make([]model.AlertKind, len(b))
	for i, a := range b {
		out[i] = a.Kind
	}
	return out
}

func TestDetect_HeatWaveRanksFirst(t *testing.T) {
	e := newEngine()
	batch := e.Detect(model.Snapshots{Weather: weather(45, 40, 1), Soil: soil(50)}, "Wheat")

	require.NotEmpty(t, batch)
	assert.Equal(t, model.AlertHeatWave, batch[0].Kind)
	assert.Equal(t, model.SeverityCritical, batch[0].Severity)
	assert.Equal(t, []model.AlertKind{model.AlertHeatWave, model.AlertDroughtRisk}, kinds(batch))
}

func TestDetect_FloodWithoutDrought(t *testing.T) {
	e := newEngine()
	batch := e.Detect(model.Snapshots{Weather: weather(30, 50, 120), Soil: soil(50)}, "Rice")

	assert.Contains(t, kinds(batch), model.AlertFloodRisk)
	assert.NotContains(t, kinds(batch), model.AlertDroughtRisk)
	assert.NotContains(t, kinds(batch), model.AlertWaterlogging)
	assert.Equal(t, model.SeverityCritical, batch[0].Severity)
}

func TestDetect_SeverityBands(t *testing.T) {
	tests := []struct {
		name  string
		snaps model.Snapshots
		kind  model.AlertKind
		sev   model.Severity
		valid time.Duration
	}{
		{"light drought", model.Snapshots{Weather: weather(30, 50, 3)}, model.AlertDroughtRisk, model.SeverityMedium, 48 * time.Hour},
		{"severe drought", model.Snapshots{Weather: weather(30, 50, 1)}, model.AlertDroughtRisk, model.SeverityHigh, 48 * time.Hour},
		{"low moisture", model.Snapshots{Soil: soil(25)}, model.AlertLowSoilMoisture, model.SeverityMedium, 24 * time.Hour},
		{"very low moisture", model.Snapshots{Soil: soil(15)}, model.AlertLowSoilMoisture, model.SeverityHigh, 24 * time.Hour},
		{"waterlogging", model.Snapshots{Weather: weather(30, 50, 80)}, model.AlertWaterlogging, model.SeverityMedium, 36 * time.Hour},
		{"excess moisture", model.Snapshots{Soil: soil(95)}, model.AlertExcessMoisture, model.SeverityMedium, 48 * time.Hour},
		{"heat stress", model.Snapshots{Weather: weather(40, 50, 20)}, model.AlertHeatStress, model.SeverityHigh, 24 * time.Hour},
		{"cold wave", model.Snapshots{Weather: weather(2, 50, 20)}, model.AlertColdWave, model.SeverityCritical, 24 * time.Hour},
		{"disease", model.Snapshots{Weather: weather(30, 80, 20)}, model.AlertDiseaseRisk, model.SeverityMedium, 48 * time.Hour},
		{"crop stress", model.Snapshots{Satellite: &model.SatelliteSnapshot{Stress: model.StressAnalysis{Overall: model.StressHigh}}}, model.AlertCropStress, model.SeverityHigh, 72 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch := newEngine().Detect(tt.snaps, "Rice")
			require.Len(t, batch, 1, kinds(batch))
			assert.Equal(t, tt.kind, batch[0].Kind)
			assert.Equal(t, tt.sev, batch[0].Severity)
			assert.Equal(t, genTime.Add(tt.valid), batch[0].ValidUntil)
		})
	}
}

func TestDetect_DiseaseUsesCropTable(t *testing.T) {
	e := newEngine()
	batch := e.Detect(model.Snapshots{Weather: weather(30, 80, 20)}, "Rice")
	require.Len(t, batch, 1)
	assert.Contains(t, batch[0].Diseases, "Blast")

	batch = e.Detect(model.Snapshots{Weather: weather(30, 80, 20)}, "Jute")
	require.Len(t, batch, 1)
	assert.Equal(t, reference.Default().GenericDiseases.Names, batch[0].Diseases)
}

func TestDetect_MissingSnapshotsUseDefaults(t *testing.T) {
	batch := newEngine().Detect(model.Snapshots{}, "Rice")
	assert.Empty(t, batch)
	assert.NotNil(t, batch)
}

func TestDetect_OrderingAndExpiry(t *testing.T) {
	e := newEngine()
	snaps := model.Snapshots{
		Weather:   weather(2, 80, 1),
		Soil:      soil(95),
		Satellite: &model.SatelliteSnapshot{Stress: model.StressAnalysis{Overall: model.StressHigh}},
	}
	batch := e.Detect(snaps, "Wheat")
	require.Len(t, batch, 4)
	for i := 1; i < len(batch); i++ {
		assert.LessOrEqual(t, batch[i-1].Severity.Rank(), batch[i].Severity.Rank())
	}
	// Stable on ties: drought before crop stress (both high).
	assert.Equal(t, []model.AlertKind{
		model.AlertColdWave, model.AlertDroughtRisk, model.AlertCropStress, model.AlertExcessMoisture,
	}, kinds(batch))
	for _, a := range batch {
		assert.True(t, a.ValidUntil.After(genTime))
	}
}

func TestAdvanceAlerts(t *testing.T) {
	e := newEngine()
	w := &model.WeatherSnapshot{Forecast: []model.ForecastDay{
		{RainProbability: 85, TemperatureC: 30},
		{RainProbability: 20, TemperatureC: 41},
		{RainProbability: 95, TemperatureC: 45},
	}}
	adv := e.AdvanceAlerts(w)
	require.Len(t, adv, 2)
	assert.Equal(t, model.AlertRainForecast, adv[0].Kind)
	assert.Equal(t, 24, adv[0].HoursAhead)
	assert.Equal(t, "Heavy Rain Expected in 24h", adv[0].Title)
	assert.Equal(t, model.AlertHeatForecast, adv[1].Kind)
	assert.Equal(t, 48, adv[1].HoursAhead)
	assert.Equal(t, genTime.Add(48*time.Hour), adv[1].ValidUntil)

	assert.Empty(t, e.AdvanceAlerts(nil))
	assert.Empty(t, e.AdvanceAlerts(&model.WeatherSnapshot{}))
}

func TestSummarize_Rollup(t *testing.T) {
	a := func(s model.Severity) model.Alert { return model.Alert{Severity: s} }
	tests := []struct {
		name   string
		active model.AlertBatch
		want   model.Severity
	}{
		{"none", nil, model.SeverityLow},
		{"medium only", model.AlertBatch{a(model.SeverityMedium), a(model.SeverityLow)}, model.SeverityMedium},
		{"high", model.AlertBatch{a(model.SeverityMedium), a(model.SeverityHigh)}, model.SeverityHigh},
		{"critical", model.AlertBatch{a(model.SeverityHigh), a(model.SeverityCritical)}, model.SeverityCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summarize(tt.active, nil).Overall)
		})
	}
}

func TestReport_Notifications(t *testing.T) {
	e := newEngine()
	r := e.Report(model.Snapshots{Weather: weather(45, 40, 20), Soil: soil(50)}, "Wheat")
	assert.Equal(t, model.SeverityCritical, r.Summary.Overall)
	assert.Equal(t, 1, r.Summary.CriticalCount)
	assert.Equal(t, genTime, r.GeneratedAt)

	var channels []string
	for _, n := range r.Notifications {
		channels = append(channels, n.Channel)
	}
	assert.Equal(t, []string{"SMS", "Voice", "App Notification"}, channels)

	calm := e.Report(model.Snapshots{Weather: weather(25, 50, 20), Soil: soil(50)}, "Wheat")
	assert.Empty(t, calm.Notifications)
	assert.Equal(t, model.SeverityLow, calm.Summary.Overall)
}
