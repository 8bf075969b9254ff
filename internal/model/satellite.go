package model

import "time"

// NDVIStatus compares the vegetation index with the crop's optimal band.
type NDVIStatus string

const (
	NDVIBelowOptimal NDVIStatus = "below_optimal"
	NDVIOptimal      NDVIStatus = "optimal"
	NDVIAboveOptimal NDVIStatus = "above_optimal"
)

// StressLevel is the overall satellite stress classification.
type StressLevel string

const (
	StressNone   StressLevel = "none"
	StressLow    StressLevel = "low"
	StressMedium StressLevel = "medium"
	StressHigh   StressLevel = "high"
)

// NDVIReading is the vegetation index observation.
type NDVIReading struct {
	Current        float64    `json:"current"`
	Interpretation string     `json:"interpretation"`
	Optimal        Range      `json:"optimal_range"`
	Status         NDVIStatus `json:"status"`
}

// Coverage describes cropped area in lakh hectares.
type Coverage struct {
	TotalAgriculturalArea float64 `json:"total_agricultural_area"`
	CropArea              float64 `json:"crop_area"`
	HealthyAreaPct        float64 `json:"healthy_area_percent"`
	StressedAreaPct       float64 `json:"stressed_area_percent"`
	FallowLandPct         float64 `json:"fallow_land_percent"`
	Unit                  string  `json:"unit"`
}

// StressArea is one detected stress condition.
type StressArea struct {
	Kind            string      `json:"type"`
	Severity        StressLevel `json:"severity"`
	AffectedAreaPct float64     `json:"affected_area_percent"`
	Description     string      `json:"description"`
}

// StressAnalysis summarises detected stress.
type StressAnalysis struct {
	Detected bool         `json:"stress_detected"`
	Areas    []StressArea `json:"stress_areas"`
	Overall  StressLevel  `json:"overall_stress_level"`
}

// GrowthStage is the crop's phenological stage estimate.
type GrowthStage struct {
	Current       string `json:"current_stage"`
	DaysInStage   int    `json:"days_in_stage"`
	DaysRemaining int    `json:"expected_days_remaining"`
	Next          string `json:"next_stage"`
}

// YearNDVI is one year of the historical comparison.
type YearNDVI struct {
	Year int     `json:"year"`
	NDVI float64 `json:"ndvi"`
}

// HistoricalComparison compares current NDVI with previous years.
type HistoricalComparison struct {
	PreviousYears []YearNDVI `json:"previous_years"`
	Average       float64    `json:"average"`
	DeviationPct  float64    `json:"current_vs_average"`
	Trend         string     `json:"trend"`
}

// SatelliteSnapshot is the crop-health dimension of one run.
type SatelliteSnapshot struct {
	Location      Location             `json:"location"`
	NDVI          NDVIReading          `json:"ndvi"`
	HealthScore   int                  `json:"health_score"`
	HealthStatus  string               `json:"health_status"`
	Coverage      Coverage             `json:"coverage"`
	Stress        StressAnalysis       `json:"stress_indicators"`
	GrowthStage   GrowthStage          `json:"growth_stage"`
	Historical    HistoricalComparison `json:"historical_comparison"`
	CloudCoverPct float64              `json:"cloud_cover"`
	Imagery       string               `json:"imagery_source"`
	DataSource    DataSource           `json:"data_source"`
	ObservedAt    time.Time            `json:"observed_at"`
}
