package collector

import (
	"context"
	"math"
	"time"

	"github.com/agrisense/cropagent/internal/model"
	"github.com/agrisense/cropagent/internal/noise"
	"github.com/agrisense/cropagent/internal/reference"
)

var satelliteCapabilities = []string{"ndvi", "crop_health", "coverage", "stress_detection", "growth_stage", "historical_comparison"}

const (
	defaultAgriculturalAreaHa = 10_000_000
	hectaresPerLakh           = 100_000
	historyYears              = 3
)

// Satellite derives crop health from a vegetation index estimate.
type Satellite struct {
	base[model.SatelliteSnapshot]
}

// NewSatellite creates a satellite collector. A nil source always simulates.
func NewSatellite(deps Deps, source Source[model.SatelliteSnapshot]) *Satellite {
	return &Satellite{base: newBase("satellite", satelliteCapabilities, source, deps.withDefaults())}
}

// Execute returns a crop-health snapshot for the run's region and crop.
func (s *Satellite) Execute(ctx context.Context, rc model.RunContext) (model.SatelliteSnapshot, error) {
	req := fetchRequest(s.deps.Tables, rc)
	snap, live, err := s.collect(ctx, req, s.simulate)
	if err != nil {
		return model.SatelliteSnapshot{}, err
	}
	if live {
		snap.DataSource = model.SourceLive
		snap.Location = req.Location
		if snap.ObservedAt.IsZero() {
			snap.ObservedAt = s.deps.Clock()
		}
	}
	return snap, nil
}

func (s *Satellite) simulate(req FetchRequest) model.SatelliteSnapshot {
	tables := s.deps.Tables
	src := s.deps.Noise
	now := s.deps.Clock()
	crop := tables.CropOrGeneric(req.Crop)

	ndvi := estimateNDVI(crop.NDVI, now.Month(), src)
	band := crop.NDVI.Range()
	health := ndviHealth(ndvi, band, src)

	area := float64(defaultAgriculturalAreaHa)
	if r, ok := tables.Region(req.Region); ok && r.AgriculturalAreaHa > 0 {
		area = r.AgriculturalAreaHa
	}

	snap := model.SatelliteSnapshot{
		Location: req.Location,
		NDVI: model.NDVIReading{
			Current:        ndvi,
			Interpretation: interpretNDVI(ndvi),
			Optimal:        band,
			Status:         ndviStatus(ndvi, band),
		},
		HealthScore:   health,
		HealthStatus:  healthStatus(health),
		Coverage:      coverage(area, ndvi, src),
		Stress:        stressAnalysis(health, src),
		GrowthStage:   growthStage(tables, crop.Name, now),
		Historical:    historical(ndvi, now.Year(), src),
		CloudCoverPct: float64(noise.Between(src, 0, 25)),
		Imagery:       "Sentinel-2 (simulated)",
		DataSource:    model.SourceSimulated,
		ObservedAt:    now,
	}
	return snap
}

// estimateNDVI scales the band midpoint by proximity to the peak month.
// Months wrap, so December is one month from a January peak.
func estimateNDVI(b reference.NDVIBand, m time.Month, src noise.Source) float64 {
	months := int(math.Abs(float64(int(m) - b.PeakMonth)))
	if months > 6 {
		months = 12 - months
	}
	growth := 1 - (float64(months)/6)*0.4
	v := b.Range().Mid()*growth + noise.Jitter(src, 0.1)
	return model.Round(model.Clamp(v, 0.1, 0.9), 3)
}

func ndviHealth(ndvi float64, band model.Range, src noise.Source) int {
	width := band.Max - band.Min
	deviation := 0.0
	if width > 0 {
		deviation = math.Abs(ndvi-band.Mid()) / width
	}
	score := 100 - deviation*50 + noise.Jitter(src, 5)
	return model.ClampInt(int(math.Round(score)), 0, 100)
}

func healthStatus(score int) string {
	switch {
	case score >= 80:
		return "excellent"
	case score >= 60:
		return "good"
	case score >= 40:
		return "moderate"
	case score >= 20:
		return "poor"
	default:
		return "critical"
	}
}

func ndviStatus(v float64, band model.Range) model.NDVIStatus {
	switch {
	case v < band.Min:
		return model.NDVIBelowOptimal
	case v > band.Max:
		return model.NDVIAboveOptimal
	default:
		return model.NDVIOptimal
	}
}

func interpretNDVI(v float64) string {
	switch {
	case v < 0.1:
		return "Water/Barren land"
	case v < 0.2:
		return "Sparse vegetation"
	case v < 0.4:
		return "Moderate vegetation"
	case v < 0.6:
		return "Dense vegetation"
	default:
		return "Very dense vegetation"
	}
}

func coverage(areaHa, ndvi float64, src noise.Source) model.Coverage {
	total := areaHa / hectaresPerLakh
	cropArea := total * noise.Uniform(src, 0.1, 0.25)
	healthy := model.Clamp(ndvi*100+noise.Uniform(src, 10, 20), 40, 95)
	return model.Coverage{
		TotalAgriculturalArea: model.Round(total, 2),
		CropArea:              model.Round(cropArea, 2),
		HealthyAreaPct:        model.Round(healthy, 1),
		StressedAreaPct:       model.Round(100-healthy, 1),
		FallowLandPct:         model.Round(noise.Uniform(src, 5, 15), 1),
		Unit:                  "lakh hectares",
	}
}

var stressPoints = map[model.StressLevel]float64{
	model.StressHigh:   3,
	model.StressMedium: 2,
	model.StressLow:    1,
}

func stressAnalysis(health int, src noise.Source) model.StressAnalysis {
	var areas []model.StressArea
	if noise.Chance(src, 0.4) {
		areas = append(areas, model.StressArea{
			Kind:            "water_stress",
			Severity:        noise.Pick(src, []model.StressLevel{model.StressLow, model.StressMedium, model.StressHigh}),
			AffectedAreaPct: model.Round(noise.Uniform(src, 5, 25), 1),
			Description:     "Moisture deficit detected in parts of the crop area",
		})
	}
	if noise.Chance(src, 0.3) {
		areas = append(areas, model.StressArea{
			Kind:            "nutrient_deficiency",
			Severity:        noise.Pick(src, []model.StressLevel{model.StressLow, model.StressMedium}),
			AffectedAreaPct: model.Round(noise.Uniform(src, 3, 15), 1),
			Description:     "Leaf discoloration pattern suggests nutrient deficiency",
		})
	}
	if health < 70 && noise.Chance(src, 0.2) {
		areas = append(areas, model.StressArea{
			Kind:            "pest_disease_risk",
			Severity:        model.StressMedium,
			AffectedAreaPct: model.Round(noise.Uniform(src, 2, 10), 1),
			Description:     "Canopy anomalies consistent with pest or disease pressure",
		})
	}
	return model.StressAnalysis{Detected: len(areas) > 0, Areas: areas, Overall: overallStress(areas)}
}

func overallStress(areas []model.StressArea) model.StressLevel {
	if len(areas) == 0 {
		return model.StressNone
	}
	var sum float64
	for _, a := range areas {
		sum += stressPoints[a.Severity]
	}
	switch avg := sum / float64(len(areas)); {
	case avg >= 2.5:
		return model.StressHigh
	case avg >= 1.5:
		return model.StressMedium
	default:
		return model.StressLow
	}
}

func growthStage(tables *reference.Tables, crop string, now time.Time) model.GrowthStage {
	w := tables.GrowthStage(crop, now.Month())
	inStage := w.DaysInStage
	if inStage == 0 {
		for i, m := range w.Months {
			if time.Month(m) == now.Month() {
				inStage = i*30 + now.Day()
				break
			}
		}
	}
	return model.GrowthStage{
		Current:       w.Stage,
		DaysInStage:   inStage,
		DaysRemaining: max(0, w.DurationDays-inStage),
		Next:          w.Next,
	}
}

func historical(ndvi float64, year int, src noise.Source) model.HistoricalComparison {
	h := model.HistoricalComparison{PreviousYears: make([]model.YearNDVI, historyYears)}
	var sum float64
	for i := range historyYears {
		v := model.Round(model.Clamp(ndvi+noise.Uniform(src, -0.15, 0.1), 0.1, 0.9), 3)
		h.PreviousYears[i] = model.YearNDVI{Year: year - 1 - i, NDVI: v}
		sum += v
	}
	h.Average = model.Round(sum/historyYears, 3)
	if h.Average > 0 {
		h.DeviationPct = model.Round((ndvi-h.Average)/h.Average*100, 1)
	}
	switch {
	case h.DeviationPct > 5:
		h.Trend = "improving"
	case h.DeviationPct < -5:
		h.Trend = "declining"
	default:
		h.Trend = "stable"
	}
	return h
}
