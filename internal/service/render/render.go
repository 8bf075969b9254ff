// Package render turns a run's snapshots, prediction and alerts into the
// localized, UI-ready response. Rendering is a pure function of its inputs
// and the embedded language tables.
package render

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agrisense/cropagent/internal/model"
	"github.com/agrisense/cropagent/internal/reference"
)

const (
	goodComparisonPct = 10
	riskLowBelow      = 30
	riskMediumBelow   = 60

	irrigationRainProbPct = 60
	skipRainMM            = 50
	dateLayout            = "2006-01-02"
)

// irrigationPlan is the timing and amount attached to each action.
var irrigationPlan = map[model.IrrigationAction]struct{ timing, amount string }{
	model.IrrigateNow:     {"Early morning (6-8 AM) or evening (5-7 PM)", "25-30mm equivalent"},
	model.IrrigateSkip:    {"N/A", "0mm"},
	model.IrrigateWait:    {"After rain assessment", "To be determined"},
	model.IrrigateMonitor: {"Check again in 2-3 days", "N/A"},
}

// Renderer renders responses from the reference tables.
type Renderer struct {
	tables *reference.Tables
}

// New creates a Renderer.
func New(tables *reference.Tables) *Renderer {
	return &Renderer{tables: tables}
}

// Name identifies the renderer in metrics and status output.
func (r *Renderer) Name() string { return "response_agent" }

// Capabilities lists what the renderer produces.
func (r *Renderer) Capabilities() []string {
	return []string{
		"format_response",
		"translate_response",
		"generate_charts_data",
		"create_recommendations",
		"format_alerts",
	}
}

// Render builds the response in language, falling back to the default
// language when it is not supported. Cards and charts for a missing
// snapshot are omitted.
func (r *Renderer) Render(language string, rc model.RunContext, snaps model.Snapshots, pred model.PredictionRecord, report model.AlertReport) model.RenderedResponse {
	lang := r.tables.Language(language)
	regionName := rc.Region
	if reg, ok := r.tables.Region(rc.Region); ok {
		regionName = reg.LocalName(lang.Code)
	}
	cropName := r.tables.CropOrGeneric(rc.Crop).LocalName(lang.Code)

	vars := strings.NewReplacer(
		"{state}", regionName,
		"{crop}", cropName,
		"{yield}", num(pred.PredictedYield),
		"{comparison}", num(math.Abs(pred.ComparisonToAverage)),
		"{risk}", num(pred.RiskScore),
	)
	yieldMsg := vars.Replace(yieldTemplate(lang.Templates, pred.ComparisonToAverage))
	riskMsg := vars.Replace(riskTemplate(lang.Templates, pred.RiskScore))
	summary := strings.NewReplacer(
		"{yield_message}", yieldMsg,
		"{risk_message}", riskMsg,
	).Replace(vars.Replace(lang.Templates.Summary))

	return model.RenderedResponse{
		Language: lang.Code,
		Greeting: vars.Replace(lang.Templates.Greeting),
		Summary: model.Summary{
			Text:         summary,
			YieldMessage: yieldMsg,
			RiskMessage:  riskMsg,
		},
		WeatherCard:     weatherCard(lang, snaps.Weather),
		SoilCard:        soilCard(lang, snaps.Soil),
		CropHealthCard:  cropHealthCard(lang, snaps.Satellite),
		Prediction:      predictionView(lang, pred),
		Alerts:          formatAlerts(report.Active),
		Charts:          charts(lang, snaps, pred),
		Recommendations: mergeRecommendations(pred.Recommendations, snaps.Soil),
		Irrigation:      irrigation(lang, snaps.Weather, snaps.Soil),
	}
}

func yieldTemplate(t reference.Templates, comparison float64) string {
	switch {
	case comparison > goodComparisonPct:
		return t.YieldGood
	case comparison < -goodComparisonPct:
		return t.YieldPoor
	default:
		return t.YieldModerate
	}
}

func riskTemplate(t reference.Templates, risk float64) string {
	switch {
	case risk < riskLowBelow:
		return t.RiskLow
	case risk < riskMediumBelow:
		return t.RiskMedium
	default:
		return t.RiskHigh
	}
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func weatherCard(lang reference.Language, w *model.WeatherSnapshot) *model.WeatherCard {
	if w == nil {
		return nil
	}
	return &model.WeatherCard{
		Title:       lang.Title("weather"),
		Icon:        weatherIcon(w.Current.Description),
		Temperature: num(w.Current.TemperatureC) + "°C",
		Humidity:    num(w.Current.HumidityPct) + "%",
		Rainfall:    num(w.Rainfall.Last24h) + " mm",
		Wind:        num(w.Current.WindSpeedMS) + " m/s",
		Description: w.Current.Description,
		DataSource:  lang.Label(string(w.DataSource)),
		RawTempC:    w.Current.TemperatureC,
	}
}

func soilCard(lang reference.Language, s *model.SoilSnapshot) *model.SoilCard {
	if s == nil {
		return nil
	}
	return &model.SoilCard{
		Title:          lang.Title("soil"),
		SoilType:       s.SoilType,
		Moisture:       num(s.Moisture.Current) + "%",
		MoistureStatus: string(s.Moisture.Status),
		PH:             num(s.PH.Current),
		PHStatus:       string(s.PH.Status),
		HealthScore:    s.HealthScore,
		NPKSummary: fmt.Sprintf("N: %s, P: %s, K: %s",
			s.NPK.Nitrogen.Status, s.NPK.Phosphorus.Status, s.NPK.Potassium.Status),
	}
}

func cropHealthCard(lang reference.Language, s *model.SatelliteSnapshot) *model.CropHealthCard {
	if s == nil {
		return nil
	}
	return &model.CropHealthCard{
		Title:        lang.Title("crop_health"),
		NDVI:         fmt.Sprintf("%s (%s)", num(s.NDVI.Current), s.NDVI.Interpretation),
		HealthScore:  s.HealthScore,
		HealthStatus: s.HealthStatus,
		GrowthStage:  s.GrowthStage.Current,
		StressLevel:  string(s.Stress.Overall),
	}
}

func predictionView(lang reference.Language, p model.PredictionRecord) model.PredictionView {
	unit := lang.Label("tonnes_per_ha")
	sign := ""
	if p.ComparisonToAverage > 0 {
		sign = "+"
	}
	return model.PredictionView{
		Title:           lang.Title("prediction"),
		Yield:           num(p.PredictedYield) + " " + unit,
		Range:           num(p.Interval.Lower) + " - " + num(p.Interval.Upper) + " " + unit,
		Comparison:      sign + num(p.ComparisonToAverage) + "%",
		Production:      num(p.Production.Estimated) + " " + p.Production.Unit,
		RiskScore:       num(p.RiskScore) + "/100",
		RiskLevel:       string(p.RiskLevel),
		Confidence:      strconv.Itoa(p.Confidence) + "%",
		ConfidenceLevel: p.ConfidenceLevel,
		Outlook:         p.Outlook,
	}
}

func formatAlerts(active model.AlertBatch) []model.FormattedAlert {
	out := make([]model.FormattedAlert, 0, len(active))
	for _, a := range active {
		out = append(out, model.FormattedAlert{
			Kind:     string(a.Kind),
			Severity: string(a.Severity),
			Icon:     alertIcon(a.Severity),
			Color:    alertColor(a.Severity),
			Title:    a.Title,
			Message:  a.Message,
			Action:   a.RecommendedAction,
		})
	}
	return out
}

func charts(lang reference.Language, snaps model.Snapshots, p model.PredictionRecord) model.Charts {
	c := model.Charts{
		YieldGauge: model.Chart{
			Kind:  "gauge",
			Title: lang.Title("yield_gauge"),
			Value: p.PredictedYield,
			Max:   p.MaximumPotential,
			Thresholds: map[string]float64{
				"poor":      model.Round(p.HistoricalAverage*0.8, 2),
				"average":   p.HistoricalAverage,
				"excellent": p.MaximumPotential,
			},
		},
		FactorRadar: model.Chart{
			Kind:  "radar",
			Title: lang.Title("factor_radar"),
			Labels: []string{
				lang.Label("weather"), lang.Label("soil"), lang.Label("crop_health"),
				lang.Label("season"), lang.Label("historical"),
			},
			Series: []model.Series{{Name: "score", Values: []float64{
				model.Round(p.Factors.Weather*100, 1),
				model.Round(p.Factors.Soil*100, 1),
				model.Round(p.Factors.CropHealth*100, 1),
				model.Round(p.Factors.Season*100, 1),
				model.Round(p.Factors.Historical*100, 1),
			}}},
		},
		RiskBreakdown: riskBreakdown(lang, p.RiskFactors),
	}

	if w := snaps.Weather; w != nil {
		chart := &model.Chart{Kind: "line", Title: lang.Title("forecast"), Labels: []string{}}
		temps := make([]float64, 0, len(w.Forecast))
		rain := make([]float64, 0, len(w.Forecast))
		for _, d := range w.Forecast {
			chart.Labels = append(chart.Labels, d.Date.Format(dateLayout))
			temps = append(temps, d.TemperatureC)
			rain = append(rain, d.RainProbability)
		}
		chart.Series = []model.Series{
			{Name: lang.Label("temperature"), Values: temps},
			{Name: lang.Label("rain_probability"), Values: rain},
		}
		c.WeatherForecast = chart
	}

	if s := snaps.Soil; s != nil {
		c.SoilNutrients = &model.Chart{
			Kind:   "bar",
			Title:  lang.Title("nutrients"),
			Labels: []string{"N", "P", "K"},
			// Phosphorus is scaled by 5 so the bars share an axis.
			Series: []model.Series{{Name: "kg/ha", Values: []float64{
				s.NPK.Nitrogen.Current,
				s.NPK.Phosphorus.Current * 5,
				s.NPK.Potassium.Current,
			}}},
		}
	}
	return c
}

func riskBreakdown(lang reference.Language, factors []model.RiskFactor) model.Chart {
	labels := make([]string, 0, len(factors))
	values := make([]float64, 0, len(factors))
	for _, f := range factors {
		labels = append(labels, f.Factor)
		values = append(values, 1)
	}
	return model.Chart{
		Kind:   "doughnut",
		Title:  lang.Title("risk_breakdown"),
		Labels: labels,
		Series: []model.Series{{Name: "factors", Values: values}},
	}
}

// mergeRecommendations concatenates fusion and soil recommendations and
// orders them high, medium, low, keeping source order within a priority.
func mergeRecommendations(fromFusion []model.Recommendation, s *model.SoilSnapshot) []model.Recommendation {
	out := slices.Clone(fromFusion)
	if s != nil {
		for _, rec := range s.Recommendations {
			rec.Category = titleCase(rec.Category)
			out = append(out, rec)
		}
	}
	if out == nil {
		out = []model.Recommendation{}
	}
	slices.SortStableFunc(out, func(a, b model.Recommendation) int {
		return a.Priority.Rank() - b.Priority.Rank()
	})
	return out
}

func titleCase(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// irrigation applies the decision table: irrigate when soil is dry and no
// rain is coming, skip when soil is wet or it just rained heavily, wait
// when rain is forecast, otherwise monitor.
func irrigation(lang reference.Language, w *model.WeatherSnapshot, s *model.SoilSnapshot) model.IrrigationAdvice {
	status := model.MoistureOptimal
	moisture := "n/a"
	if s != nil {
		status = s.Moisture.Status
		moisture = num(s.Moisture.Current) + "%"
	}
	var (
		rain         float64
		rainExpected bool
	)
	if w != nil {
		rain = w.Rainfall.Last24h
		for _, d := range w.Forecast[:min(2, len(w.Forecast))] {
			if d.RainProbability > irrigationRainProbPct {
				rainExpected = true
			}
		}
	}

	var (
		action   model.IrrigationAction
		priority model.Priority
	)
	switch {
	case status == model.MoistureLow && !rainExpected:
		action, priority = model.IrrigateNow, model.PriorityHigh
	case status == model.MoistureHigh || rain > skipRainMM:
		action, priority = model.IrrigateSkip, model.PriorityLow
	case rainExpected:
		action, priority = model.IrrigateWait, model.PriorityMedium
	default:
		action, priority = model.IrrigateMonitor, model.PriorityLow
	}
	plan := irrigationPlan[action]
	return model.IrrigationAdvice{
		Action:   action,
		Priority: priority,
		Message:  strings.ReplaceAll(lang.Irrigation[string(action)], "{moisture}", moisture),
		Timing:   plan.timing,
		Amount:   plan.amount,
	}
}

func weatherIcon(description string) string {
	d := strings.ToLower(description)
	switch {
	case strings.Contains(d, "rain"):
		return "🌧️"
	case strings.Contains(d, "thunder"):
		return "⛈️"
	case strings.Contains(d, "cloud"):
		return "☁️"
	case strings.Contains(d, "sun"), strings.Contains(d, "clear"):
		return "☀️"
	case strings.Contains(d, "hot"), strings.Contains(d, "heat"):
		return "🌡️"
	default:
		return "🌤️"
	}
}

func alertIcon(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "🚨"
	case model.SeverityHigh:
		return "⚠️"
	case model.SeverityMedium:
		return "⚡"
	default:
		return "ℹ️"
	}
}

func alertColor(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "#FF0000"
	case model.SeverityHigh:
		return "#FF6600"
	case model.SeverityMedium:
		return "#FFCC00"
	default:
		return "#00CC00"
	}
}
