package model

// RiskLevel is the five-band classification of a risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskElevated RiskLevel = "elevated"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevelFor maps a risk score in [0,100] onto its band.
func RiskLevelFor(score float64) RiskLevel {
	switch {
	case score < 20:
		return RiskLow
	case score < 40:
		return RiskModerate
	case score < 60:
		return RiskElevated
	case score < 80:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// FactorScores are the per-dimension favourability measures, each in [0,1].
type FactorScores struct {
	Weather    float64 `json:"weather"`
	Soil       float64 `json:"soil"`
	CropHealth float64 `json:"crop_health"`
	Season     float64 `json:"season"`
	Historical float64 `json:"historical"`
}

// ConfidenceInterval brackets the predicted yield.
type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Production is the regional production forecast.
type Production struct {
	Estimated float64 `json:"estimated_production"`
	Unit      string  `json:"unit"`
	Area      float64 `json:"area_under_crop"`
	AreaUnit  string  `json:"area_unit"`
}

// RiskFactor names a dimension that dragged the score down.
type RiskFactor struct {
	Factor      string `json:"factor"`
	Impact      string `json:"impact"`
	Description string `json:"description"`
}

// PredictionRecord is the fused yield and risk estimate.
type PredictionRecord struct {
	Crop                string             `json:"crop"`
	Region              string             `json:"state"`
	PredictedYield      float64            `json:"predicted_yield"`
	Unit                string             `json:"unit"`
	Interval            ConfidenceInterval `json:"confidence_interval"`
	HistoricalAverage   float64            `json:"historical_average"`
	MaximumPotential    float64            `json:"maximum_potential"`
	ComparisonToAverage float64            `json:"comparison_to_average"`
	Production          Production         `json:"production_forecast"`
	RiskScore           float64            `json:"risk_score"`
	RiskLevel           RiskLevel          `json:"risk_level"`
	RiskFactors         []RiskFactor       `json:"risk_factors"`
	Confidence          int                `json:"confidence"`
	ConfidenceLevel     string             `json:"confidence_level"`
	Factors             FactorScores       `json:"factor_scores"`
	CombinedScore       float64            `json:"combined_score"`
	Outlook             string             `json:"outlook"`
	Recommendations     []Recommendation   `json:"recommendations"`
}
