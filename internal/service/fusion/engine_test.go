package fusion

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisense/cropagent/internal/model"
	"github.com/agrisense/cropagent/internal/noise"
	"github.com/agrisense/cropagent/internal/reference"
)

func july() time.Time { return time.Date(2026, 7, 15, 9, 0, 0, 0, time.UTC) }

func newEngine(src noise.Source) *Engine {
	return New(reference.Default(), src, july)
}

func TestPredict_NeutralSnapshots(t *testing.T) {
	e := newEngine(noise.Constant(0.5))
	p, err := e.Predict("Maharashtra", "Rice", model.Snapshots{})
	require.NoError(t, err)

	// season 0.875 (July is in the Rice window), historical 0.8
	assert.Equal(t, 0.7, p.Factors.Weather)
	assert.Equal(t, 0.875, p.Factors.Season)
	assert.Equal(t, 0.8, p.Factors.Historical)
	assert.InDelta(t, 0.74125, p.CombinedScore, 1e-4)
	assert.Equal(t, 3.72, p.PredictedYield)
	assert.InDelta(t, 25.9, p.RiskScore, 0.11)
	assert.Equal(t, model.RiskModerate, p.RiskLevel)
	assert.Equal(t, 70, p.Confidence)
	assert.Equal(t, "high", p.ConfidenceLevel)
	assert.Equal(t, 3.39, p.Interval.Lower)
	assert.Equal(t, 4.05, p.Interval.Upper)
	assert.Equal(t, 37.2, p.Production.Estimated)
	assert.Equal(t, 2.8, p.HistoricalAverage)
	assert.Equal(t, "Good outlook for Rice. Most factors are positive, though minor issues may slightly impact yield.", p.Outlook)
	require.Len(t, p.RiskFactors, 1)
	assert.Equal(t, "None Significant", p.RiskFactors[0].Factor)
	assert.Equal(t, "Monitoring", p.Recommendations[len(p.Recommendations)-1].Category)
}

func TestPredict_OutOfSeasonLowersSeasonScore(t *testing.T) {
	e := newEngine(noise.Constant(0.5))
	p, err := e.Predict("Punjab", "Wheat", model.Snapshots{})
	require.NoError(t, err)
	assert.Equal(t, 0.6, p.Factors.Season)
}

func TestPredict_ConfidenceBonuses(t *testing.T) {
	e := newEngine(noise.Constant(0.5))
	snaps := model.Snapshots{
		Weather:   &model.WeatherSnapshot{Current: model.CurrentWeather{TemperatureC: 30}, Rainfall: model.Rainfall{Last24h: 20}, DataSource: model.SourceLive},
		Soil:      &model.SoilSnapshot{HealthScore: 80},
		Satellite: &model.SatelliteSnapshot{HealthScore: 80},
	}
	p, err := e.Predict("Maharashtra", "Rice", snaps)
	require.NoError(t, err)
	assert.Equal(t, 95, p.Confidence)

	snaps.Weather.DataSource = model.SourceSimulated
	p, err = e.Predict("Maharashtra", "Rice", snaps)
	require.NoError(t, err)
	assert.Equal(t, 85, p.Confidence)
}

func TestWeatherScore(t *testing.T) {
	rice := reference.Default().CropOrGeneric("Rice")

	tests := []struct {
		name string
		w    model.WeatherSnapshot
		want float64
	}{
		{"in band", model.WeatherSnapshot{Current: model.CurrentWeather{TemperatureC: 30}, Rainfall: model.Rainfall{Last24h: 20}}, 1},
		{"too hot", model.WeatherSnapshot{Current: model.CurrentWeather{TemperatureC: 40}, Rainfall: model.Rainfall{Last24h: 20}}, 0.9},
		{"flooding", model.WeatherSnapshot{Current: model.CurrentWeather{TemperatureC: 30}, Rainfall: model.Rainfall{Last24h: 120}}, 0.85},
		{"dry for rice", model.WeatherSnapshot{Current: model.CurrentWeather{TemperatureC: 30}, Rainfall: model.Rainfall{Last24h: 2}}, 0.8},
		{"alerts", model.WeatherSnapshot{
			Current:  model.CurrentWeather{TemperatureC: 30},
			Rainfall: model.Rainfall{Last24h: 20},
			Alerts:   []model.WeatherAlert{{Severity: model.SeverityHigh}, {Severity: model.SeverityMedium}},
		}, 0.77},
		{"floor", model.WeatherSnapshot{Current: model.CurrentWeather{TemperatureC: 70}, Rainfall: model.Rainfall{Last24h: 200}}, 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, weatherScore(&tt.w, rice), 1e-9)
		})
	}
}

func TestSoilAndCropHealthScores(t *testing.T) {
	soil := &model.SoilSnapshot{
		HealthScore: 75,
		Moisture:    model.MoistureReading{Status: model.MoistureHigh},
		PH:          model.PHReading{Status: model.PHAlkaline},
	}
	assert.InDelta(t, 0.57, soilScore(soil), 1e-9)

	sat := &model.SatelliteSnapshot{
		HealthScore: 60,
		NDVI:        model.NDVIReading{Status: model.NDVIBelowOptimal},
		Stress:      model.StressAnalysis{Overall: model.StressHigh},
	}
	assert.InDelta(t, 0.35, cropHealthScore(sat), 1e-9)
	assert.Equal(t, neutralScore, cropHealthScore(nil))
}

func TestPredict_YieldBoundsAllCrops(t *testing.T) {
	tables := reference.Default()
	worst := model.Snapshots{
		Weather:   &model.WeatherSnapshot{Current: model.CurrentWeather{TemperatureC: 60}, Rainfall: model.Rainfall{Last24h: 300}},
		Soil:      &model.SoilSnapshot{HealthScore: 0, Moisture: model.MoistureReading{Status: model.MoistureLow}},
		Satellite: &model.SatelliteSnapshot{HealthScore: 0, Stress: model.StressAnalysis{Overall: model.StressHigh}},
	}
	best := model.Snapshots{
		Weather:   &model.WeatherSnapshot{Current: model.CurrentWeather{TemperatureC: 25}, Rainfall: model.Rainfall{Last24h: 30}, DataSource: model.SourceLive},
		Soil:      &model.SoilSnapshot{HealthScore: 100},
		Satellite: &model.SatelliteSnapshot{HealthScore: 100},
	}

	for _, c := range tables.Crops {
		for seed := range uint64(25) {
			e := New(tables, noise.NewSeeded(seed+1), july)
			for _, snaps := range []model.Snapshots{{}, worst, best} {
				p, err := e.Predict("Punjab", c.Name, snaps)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, p.PredictedYield, c.Yield.Min, c.Name)
				assert.LessOrEqual(t, p.PredictedYield, c.Yield.Max, c.Name)
				assert.GreaterOrEqual(t, p.Confidence, 50)
				assert.LessOrEqual(t, p.Confidence, 95)
				assert.LessOrEqual(t, p.Interval.Lower, p.PredictedYield)
				assert.GreaterOrEqual(t, p.Interval.Upper, p.PredictedYield)
				assert.GreaterOrEqual(t, p.RiskScore, 0.0)
				assert.LessOrEqual(t, p.RiskScore, 100.0)
				assert.Equal(t, model.RiskLevelFor(p.RiskScore), p.RiskLevel)
			}
		}
	}
}

func TestPredict_UnknownCropUsesGenericRange(t *testing.T) {
	e := newEngine(noise.Constant(0.5))
	p, err := e.Predict("Punjab", "Quinoa", model.Snapshots{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, p.PredictedYield, 1.0)
	assert.LessOrEqual(t, p.PredictedYield, 4.0)
}

func TestPredict_InvalidInput(t *testing.T) {
	e := newEngine(noise.Constant(0.5))
	_, err := e.Predict("", "Rice", model.Snapshots{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = e.Predict("Punjab", "Rice", model.Snapshots{
		Weather: &model.WeatherSnapshot{Current: model.CurrentWeather{TemperatureC: math.NaN()}},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
