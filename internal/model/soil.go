package model

import "time"

// Season is the Indian agricultural season.
type Season string

const (
	SeasonKharif Season = "Kharif"
	SeasonRabi   Season = "Rabi"
	SeasonZaid   Season = "Zaid"
)

// SeasonOf returns the agricultural season for a calendar month.
func SeasonOf(m time.Month) Season {
	switch {
	case m >= time.June && m <= time.October:
		return SeasonKharif
	case m >= time.November || m <= time.March:
		return SeasonRabi
	default:
		return SeasonZaid
	}
}

// MoistureStatus labels soil moisture against the crop band.
type MoistureStatus string

const (
	MoistureLow     MoistureStatus = "low"
	MoistureOptimal MoistureStatus = "optimal"
	MoistureHigh    MoistureStatus = "high"
)

// PHStatus labels soil pH against the crop band.
type PHStatus string

const (
	PHAcidic   PHStatus = "acidic"
	PHOptimal  PHStatus = "optimal"
	PHAlkaline PHStatus = "alkaline"
)

// NutrientStatus labels a macronutrient level.
type NutrientStatus string

const (
	NutrientDeficient  NutrientStatus = "deficient"
	NutrientAdequate   NutrientStatus = "adequate"
	NutrientSufficient NutrientStatus = "sufficient"
)

// Priority orders recommendations.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns 0 for high, 1 for medium and 2 for anything else.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// MoistureReading is the soil moisture observation.
type MoistureReading struct {
	Current float64        `json:"current"`
	Optimal Range          `json:"optimal_range"`
	Status  MoistureStatus `json:"status"`
}

// PHReading is the soil pH observation.
type PHReading struct {
	Current float64  `json:"current"`
	Optimal Range    `json:"optimal_range"`
	Status  PHStatus `json:"status"`
}

// NutrientReading is one macronutrient in kg/ha.
type NutrientReading struct {
	Current float64        `json:"current"`
	Unit    string         `json:"unit"`
	Status  NutrientStatus `json:"status"`
}

// NPK groups the three macronutrients.
type NPK struct {
	Nitrogen   NutrientReading `json:"nitrogen"`
	Phosphorus NutrientReading `json:"phosphorus"`
	Potassium  NutrientReading `json:"potassium"`
}

// Recommendation is an actionable suggestion from a collector or from fusion.
type Recommendation struct {
	Category string   `json:"type"`
	Priority Priority `json:"priority"`
	Action   string   `json:"action"`
	Details  string   `json:"details"`
}

// SoilSnapshot is the soil dimension of one run.
type SoilSnapshot struct {
	Location        Location         `json:"location"`
	SoilType        string           `json:"soil_type"`
	SoilTypes       []string         `json:"all_soil_types"`
	Season          Season           `json:"season"`
	Moisture        MoistureReading  `json:"moisture"`
	PH              PHReading        `json:"ph"`
	NPK             NPK              `json:"npk"`
	OrganicCarbon   float64          `json:"organic_carbon"`
	Conductivity    float64          `json:"electrical_conductivity"`
	HealthScore     int              `json:"health_score"`
	Recommendations []Recommendation `json:"recommendations"`
	DataSource      DataSource       `json:"data_source"`
	ObservedAt      time.Time        `json:"observed_at"`
}
