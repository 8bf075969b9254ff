package model

import "time"

// Severity orders alerts: critical > high > medium > low.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank returns 0 for critical through 3 for low. Unknown values rank last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	default:
		return 3
	}
}

// Hazard groups alert kinds by rule family.
type Hazard string

const (
	HazardDrought     Hazard = "drought"
	HazardFlood       Hazard = "flood"
	HazardTemperature Hazard = "temperature"
	HazardPest        Hazard = "pest_disease"
	HazardForecast    Hazard = "forecast"
)

// AlertKind identifies the triggered rule.
type AlertKind string

const (
	AlertDroughtRisk     AlertKind = "drought_risk"
	AlertLowSoilMoisture AlertKind = "low_soil_moisture"
	AlertFloodRisk       AlertKind = "flood_risk"
	AlertWaterlogging    AlertKind = "waterlogging_risk"
	AlertExcessMoisture  AlertKind = "excess_moisture"
	AlertHeatWave        AlertKind = "heat_wave"
	AlertHeatStress      AlertKind = "heat_stress"
	AlertColdWave        AlertKind = "cold_wave"
	AlertDiseaseRisk     AlertKind = "disease_risk"
	AlertCropStress      AlertKind = "crop_stress"
	AlertRainForecast    AlertKind = "rain_forecast"
	AlertHeatForecast    AlertKind = "heat_forecast"
)

// Alert is a detected, time-bounded risk condition.
type Alert struct {
	Kind              AlertKind `json:"type"`
	Hazard            Hazard    `json:"hazard"`
	Severity          Severity  `json:"severity"`
	Title             string    `json:"title"`
	Message           string    `json:"message"`
	AffectedComponent string    `json:"affected_component"`
	RecommendedAction string    `json:"recommended_action"`
	Diseases          []string  `json:"diseases,omitempty"`
	HoursAhead        int       `json:"hours_ahead,omitempty"`
	ValidUntil        time.Time `json:"valid_until"`
}

// AlertBatch is ordered by severity rank, critical first, stable on ties.
type AlertBatch []Alert

// RiskSummary is the any-of rollup over a run's alerts.
type RiskSummary struct {
	Overall       Severity `json:"overall_risk"`
	Message       string   `json:"message"`
	ActiveCount   int      `json:"active_alerts_count"`
	AdvanceCount  int      `json:"advance_warnings_count"`
	CriticalCount int      `json:"critical_count"`
	HighCount     int      `json:"high_count"`
}

// Notification recommends a delivery channel.
type Notification struct {
	Channel  string `json:"channel"`
	Reason   string `json:"reason"`
	Priority string `json:"priority"`
}

// AlertReport is the full alert engine output for one run.
type AlertReport struct {
	Active        AlertBatch     `json:"active_alerts"`
	Advance       AlertBatch     `json:"advance_alerts"`
	Summary       RiskSummary    `json:"risk_summary"`
	Notifications []Notification `json:"notification_recommendations"`
	GeneratedAt   time.Time      `json:"generated_at"`
}
