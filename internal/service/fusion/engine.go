// Package fusion combines the weather, soil and crop-health snapshots of a
// run into a single yield prediction with a risk score and a confidence
// interval.
package fusion

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/agrisense/cropagent/internal/model"
	"github.com/agrisense/cropagent/internal/noise"
	"github.com/agrisense/cropagent/internal/reference"
)

// Factor weights. They sum to 1 so the combined score stays in [0,1].
const (
	weightWeather    = 0.25
	weightSoil       = 0.20
	weightCropHealth = 0.25
	weightSeason     = 0.15
	weightHistorical = 0.15

	// neutralScore stands in for a dimension with no snapshot.
	neutralScore = 0.7
	minScore     = 0.3

	baseConfidence = 70
	minConfidence  = 50
	maxConfidence  = 95

	// defaultCropAreaLakhHa is used when satellite coverage is unavailable.
	defaultCropAreaLakhHa = 10
)

// ErrInvalidInput is returned when Predict is called without a region or
// crop, or with a snapshot carrying non-finite readings.
var ErrInvalidInput = errors.New("fusion: invalid input")

// Engine computes predictions. It is safe for concurrent use when its
// noise source is.
type Engine struct {
	tables *reference.Tables
	noise  noise.Source
	now    func() time.Time
}

// New creates an Engine. A nil clock uses time.Now.
func New(tables *reference.Tables, src noise.Source, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{tables: tables, noise: src, now: now}
}

// Name identifies the engine in metrics and status output.
func (e *Engine) Name() string { return "prediction_agent" }

// Capabilities lists what the engine produces.
func (e *Engine) Capabilities() []string {
	return []string{
		"predict_yield",
		"calculate_risk_score",
		"generate_confidence_interval",
		"analyze_factors",
		"compare_historical",
		"forecast_production",
	}
}

// Predict fuses snaps into a PredictionRecord for crop in region. Nil
// snapshots score neutrally and earn no confidence bonus.
func (e *Engine) Predict(region, crop string, snaps model.Snapshots) (model.PredictionRecord, error) {
	if region == "" || crop == "" {
		return model.PredictionRecord{}, fmt.Errorf("%w: region and crop are required", ErrInvalidInput)
	}
	if err := checkFinite(snaps); err != nil {
		return model.PredictionRecord{}, err
	}

	c := e.tables.CropOrGeneric(crop)

	// Draw order is fixed: season, historical, confidence.
	scores := model.FactorScores{
		Weather:    weatherScore(snaps.Weather, c),
		Soil:       soilScore(snaps.Soil),
		CropHealth: cropHealthScore(snaps.Satellite),
		Season:     e.seasonScore(c),
		Historical: noise.Uniform(e.noise, 0.7, 0.9),
	}
	combined := scores.Weather*weightWeather +
		scores.Soil*weightSoil +
		scores.CropHealth*weightCropHealth +
		scores.Season*weightSeason +
		scores.Historical*weightHistorical

	yield := model.Round(c.Yield.Min+(c.Yield.Max-c.Yield.Min)*combined, 2)
	confidence := e.confidence(snaps)
	margin := yield * (1 - float64(confidence)/100) * 0.3
	risk := model.Round((1-combined)*100, 1)

	area := float64(defaultCropAreaLakhHa)
	if snaps.Satellite != nil && snaps.Satellite.Coverage.CropArea > 0 {
		area = snaps.Satellite.Coverage.CropArea
	}

	var comparison float64
	if c.Yield.Avg > 0 {
		comparison = model.Round((yield/c.Yield.Avg-1)*100, 1)
	}

	return model.PredictionRecord{
		Crop:           c.Name,
		Region:         region,
		PredictedYield: yield,
		Unit:           "tonnes/hectare",
		Interval: model.ConfidenceInterval{
			Lower: model.Round(yield-margin, 2),
			Upper: model.Round(yield+margin, 2),
		},
		HistoricalAverage:   c.Yield.Avg,
		MaximumPotential:    c.Yield.Max,
		ComparisonToAverage: comparison,
		Production: model.Production{
			Estimated: model.Round(yield*area, 2),
			Unit:      "lakh tonnes",
			Area:      area,
			AreaUnit:  "lakh hectares",
		},
		RiskScore:       risk,
		RiskLevel:       model.RiskLevelFor(risk),
		RiskFactors:     riskFactors(scores),
		Confidence:      confidence,
		ConfidenceLevel: confidenceLevel(confidence),
		Factors: model.FactorScores{
			Weather:    model.Round(scores.Weather, 3),
			Soil:       model.Round(scores.Soil, 3),
			CropHealth: model.Round(scores.CropHealth, 3),
			Season:     model.Round(scores.Season, 3),
			Historical: model.Round(scores.Historical, 3),
		},
		CombinedScore:   model.Round(combined, 4),
		Outlook:         outlook(combined, c.Name),
		Recommendations: recommendations(scores, c.Name),
	}, nil
}

func weatherScore(w *model.WeatherSnapshot, c reference.Crop) float64 {
	if w == nil {
		return neutralScore
	}
	score := 1.0
	t := w.Current.TemperatureC
	switch {
	case t < c.OptimalTemperature.Min:
		score -= (c.OptimalTemperature.Min - t) * 0.02
	case t > c.OptimalTemperature.Max:
		score -= (t - c.OptimalTemperature.Max) * 0.02
	}

	switch rain := w.Rainfall.Last24h; {
	case rain > 100:
		score -= 0.15
	case rain < 5 && c.WaterLoving:
		score -= 0.2
	}

	for _, a := range w.Alerts {
		switch a.Severity {
		case model.SeverityHigh:
			score -= 0.15
		case model.SeverityMedium:
			score -= 0.08
		}
	}
	return model.Clamp(score, minScore, 1)
}

func soilScore(s *model.SoilSnapshot) float64 {
	if s == nil {
		return neutralScore
	}
	score := float64(s.HealthScore) / 100
	switch s.Moisture.Status {
	case model.MoistureLow:
		score -= 0.15
	case model.MoistureHigh:
		score -= 0.08
	}
	if s.PH.Status == model.PHAcidic || s.PH.Status == model.PHAlkaline {
		score -= 0.1
	}
	return model.Clamp(score, minScore, 1)
}

func cropHealthScore(s *model.SatelliteSnapshot) float64 {
	if s == nil {
		return neutralScore
	}
	score := float64(s.HealthScore) / 100
	if s.NDVI.Status == model.NDVIBelowOptimal {
		score -= 0.1
	}
	switch s.Stress.Overall {
	case model.StressHigh:
		score -= 0.15
	case model.StressMedium:
		score -= 0.08
	}
	return model.Clamp(score, minScore, 1)
}

func (e *Engine) seasonScore(c reference.Crop) float64 {
	if c.InGrowingWindow(e.now().Month()) {
		return noise.Uniform(e.noise, 0.8, 0.95)
	}
	return noise.Uniform(e.noise, 0.5, 0.7)
}

func (e *Engine) confidence(snaps model.Snapshots) int {
	c := baseConfidence
	if snaps.Weather != nil && snaps.Weather.DataSource == model.SourceLive {
		c += 10
	}
	if snaps.Soil != nil {
		c += 5
	}
	if snaps.Satellite != nil {
		c += 10
	}
	c += noise.Between(e.noise, -5, 5)
	return model.ClampInt(c, minConfidence, maxConfidence)
}

func confidenceLevel(c int) string {
	switch {
	case c >= 85:
		return "very_high"
	case c >= 70:
		return "high"
	case c >= 55:
		return "moderate"
	default:
		return "low"
	}
}

func riskFactors(s model.FactorScores) []model.RiskFactor {
	var out []model.RiskFactor
	if s.Weather < 0.6 {
		out = append(out, model.RiskFactor{Factor: "Weather Conditions", Impact: "high",
			Description: "Unfavorable weather patterns may affect yield"})
	}
	if s.Soil < 0.6 {
		out = append(out, model.RiskFactor{Factor: "Soil Health", Impact: "medium",
			Description: "Soil conditions need improvement for optimal growth"})
	}
	if s.CropHealth < 0.6 {
		out = append(out, model.RiskFactor{Factor: "Crop Health", Impact: "high",
			Description: "Crop stress detected in satellite imagery"})
	}
	if s.Season < 0.6 {
		out = append(out, model.RiskFactor{Factor: "Seasonal Timing", Impact: "medium",
			Description: "Current season may not be optimal for this crop"})
	}
	if len(out) == 0 {
		out = append(out, model.RiskFactor{Factor: "None Significant", Impact: "low",
			Description: "All major factors are within acceptable ranges"})
	}
	return out
}

func outlook(combined float64, crop string) string {
	switch {
	case combined >= 0.8:
		return "Excellent outlook for " + crop + ". Conditions are favorable and yield is expected to exceed historical averages."
	case combined >= 0.65:
		return "Good outlook for " + crop + ". Most factors are positive, though minor issues may slightly impact yield."
	case combined >= 0.5:
		return "Moderate outlook for " + crop + ". Some challenges exist that may affect yield. Close monitoring recommended."
	case combined >= 0.35:
		return "Concerning outlook for " + crop + ". Multiple factors are unfavorable. Immediate corrective action advised."
	default:
		return "Poor outlook for " + crop + ". Significant challenges detected. Consider consulting agricultural experts."
	}
}

func recommendations(s model.FactorScores, crop string) []model.Recommendation {
	var out []model.Recommendation
	if s.Weather < 0.6 {
		out = append(out, model.Recommendation{Category: "Weather Management", Priority: model.PriorityHigh,
			Action:  "Install protective measures like shade nets or mulching",
			Details: "Reduce weather-related stress by 20-30%"})
	}
	if s.Soil < 0.6 {
		out = append(out, model.Recommendation{Category: "Soil Improvement", Priority: model.PriorityHigh,
			Action:  "Apply recommended fertilizers and soil amendments",
			Details: "Improve soil health score by 15-25%"})
	}
	if s.CropHealth < 0.6 {
		out = append(out, model.Recommendation{Category: "Crop Management", Priority: model.PriorityHigh,
			Action:  "Inspect fields for pest/disease and apply treatments if needed",
			Details: "Prevent further health decline"})
	}
	return append(out, model.Recommendation{Category: "Monitoring", Priority: model.PriorityMedium,
		Action:  "Continue regular monitoring of " + crop + " fields",
		Details: "Early detection of issues"})
}

func checkFinite(snaps model.Snapshots) error {
	var vals []float64
	if w := snaps.Weather; w != nil {
		vals = append(vals, w.Current.TemperatureC, w.Rainfall.Last24h)
	}
	if s := snaps.Satellite; s != nil {
		vals = append(vals, s.Coverage.CropArea)
	}
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite snapshot reading", ErrInvalidInput)
		}
	}
	return nil
}
