// Package alerts applies threshold rules to a run's snapshots and produces
// a severity-ordered, time-bounded alert list plus short-range forecast
// warnings.
package alerts

import (
	"fmt"
	"slices"
	"time"

	"github.com/agrisense/cropagent/internal/model"
	"github.com/agrisense/cropagent/internal/reference"
)

// Thresholds. Readings compare strictly unless noted.
const (
	droughtRainMM       = 5
	severeDroughtRainMM = 2
	lowMoisturePct      = 30
	criticalMoisturePct = 20

	floodRainMM        = 100
	waterloggingRainMM = 70
	excessMoisturePct  = 90

	heatWaveC   = 42
	heatStressC = 38
	coldWaveC   = 4

	// Disease bands are inclusive on both ends.
	diseaseHumidityMin = 70
	diseaseHumidityMax = 90
	diseaseTempMin     = 25
	diseaseTempMax     = 35

	forecastRainProbPct = 80
	forecastHeatC       = 40
	advanceDays         = 2
)

// Readings substituted for a missing snapshot.
const (
	defaultRainMM      = 20
	defaultTempC       = 25
	defaultHumidityPct = 60
	defaultMoisturePct = 50
)

// Engine evaluates the alert rules. It holds no per-run state.
type Engine struct {
	tables *reference.Tables
	now    func() time.Time
}

// New creates an Engine. A nil clock uses time.Now.
func New(tables *reference.Tables, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{tables: tables, now: now}
}

// Name identifies the engine in metrics and status output.
func (e *Engine) Name() string { return "alert_agent" }

// Capabilities lists the rule families the engine evaluates.
func (e *Engine) Capabilities() []string {
	return []string{
		"detect_drought_risk",
		"detect_flood_risk",
		"detect_disease_risk",
		"detect_pest_risk",
		"generate_advance_alerts",
		"prioritize_alerts",
	}
}

// readings flattens the snapshot fields the rules look at.
type readings struct {
	rainMM      float64
	tempC       float64
	humidityPct float64
	moisturePct float64
	stress      model.StressLevel
}

func readingsOf(snaps model.Snapshots) readings {
	r := readings{
		rainMM:      defaultRainMM,
		tempC:       defaultTempC,
		humidityPct: defaultHumidityPct,
		moisturePct: defaultMoisturePct,
		stress:      model.StressNone,
	}
	if w := snaps.Weather; w != nil {
		r.rainMM = w.Rainfall.Last24h
		r.tempC = w.Current.TemperatureC
		r.humidityPct = w.Current.HumidityPct
	}
	if s := snaps.Soil; s != nil {
		r.moisturePct = s.Moisture.Current
	}
	if s := snaps.Satellite; s != nil {
		r.stress = s.Stress.Overall
	}
	return r
}

// Detect evaluates the drought, flood, temperature and pest/disease rules
// in that order and returns the alerts sorted by severity.
func (e *Engine) Detect(snaps model.Snapshots, crop string) model.AlertBatch {
	now := e.now()
	r := readingsOf(snaps)

	var batch model.AlertBatch
	batch = append(batch, drought(r, now)...)
	batch = append(batch, flood(r, now)...)
	batch = append(batch, temperature(r, now)...)
	batch = append(batch, e.pestDisease(r, crop, now)...)
	return prioritize(batch)
}

func drought(r readings, now time.Time) []model.Alert {
	var out []model.Alert
	if r.rainMM < droughtRainMM {
		sev := model.SeverityMedium
		if r.rainMM < severeDroughtRainMM {
			sev = model.SeverityHigh
		}
		out = append(out, model.Alert{
			Kind:              model.AlertDroughtRisk,
			Hazard:            model.HazardDrought,
			Severity:          sev,
			Title:             "Drought Conditions Developing",
			Message:           fmt.Sprintf("Very low rainfall (%vmm in 24h). Consider irrigation.", r.rainMM),
			AffectedComponent: "water_supply",
			RecommendedAction: "Initiate supplemental irrigation immediately",
			ValidUntil:        now.Add(48 * time.Hour),
		})
	}
	if r.moisturePct < lowMoisturePct {
		sev := model.SeverityMedium
		if r.moisturePct < criticalMoisturePct {
			sev = model.SeverityHigh
		}
		out = append(out, model.Alert{
			Kind:              model.AlertLowSoilMoisture,
			Hazard:            model.HazardDrought,
			Severity:          sev,
			Title:             "Critically Low Soil Moisture",
			Message:           fmt.Sprintf("Soil moisture at %v%%, crops may experience water stress.", r.moisturePct),
			AffectedComponent: "soil",
			RecommendedAction: "Apply mulching and irrigate during early morning or evening",
			ValidUntil:        now.Add(24 * time.Hour),
		})
	}
	return out
}

func flood(r readings, now time.Time) []model.Alert {
	var out []model.Alert
	switch {
	case r.rainMM > floodRainMM:
		out = append(out, model.Alert{
			Kind:              model.AlertFloodRisk,
			Hazard:            model.HazardFlood,
			Severity:          model.SeverityCritical,
			Title:             "Heavy Rainfall - Flood Risk",
			Message:           fmt.Sprintf("Extreme rainfall (%vmm). High risk of waterlogging and flooding.", r.rainMM),
			AffectedComponent: "field",
			RecommendedAction: "Clear drainage channels, move equipment to higher ground",
			ValidUntil:        now.Add(24 * time.Hour),
		})
	case r.rainMM > waterloggingRainMM:
		out = append(out, model.Alert{
			Kind:              model.AlertWaterlogging,
			Hazard:            model.HazardFlood,
			Severity:          model.SeverityMedium,
			Title:             "Waterlogging Possible",
			Message:           fmt.Sprintf("Heavy rainfall (%vmm) may cause waterlogging in low-lying areas.", r.rainMM),
			AffectedComponent: "field",
			RecommendedAction: "Ensure proper drainage in fields",
			ValidUntil:        now.Add(36 * time.Hour),
		})
	}
	if r.moisturePct > excessMoisturePct {
		out = append(out, model.Alert{
			Kind:              model.AlertExcessMoisture,
			Hazard:            model.HazardFlood,
			Severity:          model.SeverityMedium,
			Title:             "Excess Soil Moisture",
			Message:           fmt.Sprintf("Soil moisture very high (%v%%). Risk of root rot and disease.", r.moisturePct),
			AffectedComponent: "soil",
			RecommendedAction: "Avoid irrigation, improve field drainage",
			ValidUntil:        now.Add(48 * time.Hour),
		})
	}
	return out
}

func temperature(r readings, now time.Time) []model.Alert {
	var out []model.Alert
	switch {
	case r.tempC > heatWaveC:
		out = append(out, model.Alert{
			Kind:              model.AlertHeatWave,
			Hazard:            model.HazardTemperature,
			Severity:          model.SeverityCritical,
			Title:             "Extreme Heat Warning",
			Message:           fmt.Sprintf("Temperature at %v°C. Crops under severe heat stress.", r.tempC),
			AffectedComponent: "crop",
			RecommendedAction: "Provide shade, increase irrigation frequency, spray water on leaves",
			ValidUntil:        now.Add(24 * time.Hour),
		})
	case r.tempC > heatStressC:
		out = append(out, model.Alert{
			Kind:              model.AlertHeatStress,
			Hazard:            model.HazardTemperature,
			Severity:          model.SeverityHigh,
			Title:             "High Temperature Alert",
			Message:           fmt.Sprintf("Temperature at %v°C. Crops may experience heat stress.", r.tempC),
			AffectedComponent: "crop",
			RecommendedAction: "Monitor crops closely, consider mulching",
			ValidUntil:        now.Add(24 * time.Hour),
		})
	}
	if r.tempC < coldWaveC {
		out = append(out, model.Alert{
			Kind:              model.AlertColdWave,
			Hazard:            model.HazardTemperature,
			Severity:          model.SeverityCritical,
			Title:             "Frost/Cold Wave Warning",
			Message:           fmt.Sprintf("Temperature dropped to %v°C. Risk of frost damage.", r.tempC),
			AffectedComponent: "crop",
			RecommendedAction: "Cover sensitive crops, use smoke/fire for frost protection",
			ValidUntil:        now.Add(24 * time.Hour),
		})
	}
	return out
}

func (e *Engine) pestDisease(r readings, crop string, now time.Time) []model.Alert {
	var out []model.Alert
	if r.humidityPct >= diseaseHumidityMin && r.humidityPct <= diseaseHumidityMax &&
		r.tempC >= diseaseTempMin && r.tempC <= diseaseTempMax {
		info := e.tables.Diseases(crop)
		out = append(out, model.Alert{
			Kind:              model.AlertDiseaseRisk,
			Hazard:            model.HazardPest,
			Severity:          model.SeverityMedium,
			Title:             "Disease Risk Alert for " + crop,
			Message:           fmt.Sprintf("Humidity (%v%%) and temperature (%v°C) favor disease development.", r.humidityPct, r.tempC),
			AffectedComponent: "crop",
			RecommendedAction: info.Prevention,
			Diseases:          slices.Clone(info.Names),
			ValidUntil:        now.Add(48 * time.Hour),
		})
	}
	if r.stress == model.StressHigh {
		out = append(out, model.Alert{
			Kind:              model.AlertCropStress,
			Hazard:            model.HazardPest,
			Severity:          model.SeverityHigh,
			Title:             "Crop Stress Detected",
			Message:           "Satellite imagery indicates significant stress in crop canopy.",
			AffectedComponent: "crop",
			RecommendedAction: "Conduct field inspection to identify cause of stress",
			ValidUntil:        now.Add(72 * time.Hour),
		})
	}
	return out
}

// AdvanceAlerts scans the first two forecast days for heavy rain and heat.
// A nil snapshot yields no alerts.
func (e *Engine) AdvanceAlerts(w *model.WeatherSnapshot) model.AlertBatch {
	if w == nil {
		return model.AlertBatch{}
	}
	now := e.now()
	out := model.AlertBatch{}
	for i, day := range w.Forecast[:min(advanceDays, len(w.Forecast))] {
		hours := (i + 1) * 24
		if day.RainProbability > forecastRainProbPct {
			out = append(out, model.Alert{
				Kind:              model.AlertRainForecast,
				Hazard:            model.HazardForecast,
				Severity:          model.SeverityMedium,
				Title:             fmt.Sprintf("Heavy Rain Expected in %dh", hours),
				Message:           fmt.Sprintf("%v%% chance of rain. Plan field activities accordingly.", day.RainProbability),
				AffectedComponent: "field",
				RecommendedAction: "Delay pesticide/fertilizer application, ensure drainage",
				HoursAhead:        hours,
				ValidUntil:        now.Add(time.Duration(hours) * time.Hour),
			})
		}
		if day.TemperatureC > forecastHeatC {
			out = append(out, model.Alert{
				Kind:              model.AlertHeatForecast,
				Hazard:            model.HazardForecast,
				Severity:          model.SeverityHigh,
				Title:             fmt.Sprintf("Heat Wave Expected in %dh", hours),
				Message:           fmt.Sprintf("Temperature expected to reach %v°C.", day.TemperatureC),
				AffectedComponent: "crop",
				RecommendedAction: "Prepare irrigation, arrange shade protection",
				HoursAhead:        hours,
				ValidUntil:        now.Add(time.Duration(hours) * time.Hour),
			})
		}
	}
	return out
}

// Report runs Detect and AdvanceAlerts and adds the rollup and the
// notification recommendations.
func (e *Engine) Report(snaps model.Snapshots, crop string) model.AlertReport {
	active := e.Detect(snaps, crop)
	advance := e.AdvanceAlerts(snaps.Weather)
	return model.AlertReport{
		Active:        active,
		Advance:       advance,
		Summary:       Summarize(active, advance),
		Notifications: Notifications(active),
		GeneratedAt:   e.now(),
	}
}

func prioritize(batch model.AlertBatch) model.AlertBatch {
	if batch == nil {
		return model.AlertBatch{}
	}
	slices.SortStableFunc(batch, func(a, b model.Alert) int {
		return a.Severity.Rank() - b.Severity.Rank()
	})
	return batch
}

// Summarize folds the active alerts into an overall severity: critical if
// any is critical, else high if any is high, else medium if any exist.
func Summarize(active, advance model.AlertBatch) model.RiskSummary {
	s := model.RiskSummary{ActiveCount: len(active), AdvanceCount: len(advance)}
	for _, a := range active {
		switch a.Severity {
		case model.SeverityCritical:
			s.CriticalCount++
		case model.SeverityHigh:
			s.HighCount++
		}
	}
	switch {
	case s.CriticalCount > 0:
		s.Overall = model.SeverityCritical
		s.Message = "Critical conditions detected! Immediate action required."
	case s.HighCount > 0:
		s.Overall = model.SeverityHigh
		s.Message = "High-risk conditions present. Take precautionary measures."
	case len(active) > 0:
		s.Overall = model.SeverityMedium
		s.Message = "Some risk factors detected. Monitor situation closely."
	default:
		s.Overall = model.SeverityLow
		s.Message = "No significant risks detected at this time."
	}
	return s
}

// Notifications recommends delivery channels: SMS and voice for critical
// alerts, an app push for high or critical.
func Notifications(active model.AlertBatch) []model.Notification {
	var critical, high bool
	for _, a := range active {
		critical = critical || a.Severity == model.SeverityCritical
		high = high || a.Severity == model.SeverityHigh || a.Severity == model.SeverityCritical
	}
	out := []model.Notification{}
	if critical {
		out = append(out,
			model.Notification{Channel: "SMS", Priority: "immediate", Reason: "Send immediate SMS alert to farmer"},
			model.Notification{Channel: "Voice", Priority: "high", Reason: "Consider automated voice call for critical alert"},
		)
	}
	if high {
		out = append(out, model.Notification{Channel: "App Notification", Priority: "high",
			Reason: "Send push notification with detailed instructions"})
	}
	return out
}
