package model

// RenderedResponse is the localized, UI-ready structure for one run.
type RenderedResponse struct {
	Language        string           `json:"language"`
	Greeting        string           `json:"greeting"`
	Summary         Summary          `json:"summary"`
	WeatherCard     *WeatherCard     `json:"weather_card,omitempty"`
	SoilCard        *SoilCard        `json:"soil_card,omitempty"`
	CropHealthCard  *CropHealthCard  `json:"crop_health_card,omitempty"`
	Prediction      PredictionView   `json:"prediction"`
	Alerts          []FormattedAlert `json:"alerts"`
	Charts          Charts           `json:"charts"`
	Recommendations []Recommendation `json:"recommendations"`
	Irrigation      IrrigationAdvice `json:"irrigation"`
}

// Summary is the natural-language headline.
type Summary struct {
	Text         string `json:"text"`
	YieldMessage string `json:"yield_message"`
	RiskMessage  string `json:"risk_message"`
}

// WeatherCard is the weather display card.
type WeatherCard struct {
	Title       string  `json:"title"`
	Icon        string  `json:"icon"`
	Temperature string  `json:"temperature"`
	Humidity    string  `json:"humidity"`
	Rainfall    string  `json:"rainfall"`
	Wind        string  `json:"wind"`
	Description string  `json:"description"`
	DataSource  string  `json:"data_source"`
	RawTempC    float64 `json:"raw_temperature"`
}

// SoilCard is the soil display card.
type SoilCard struct {
	Title          string `json:"title"`
	SoilType       string `json:"soil_type"`
	Moisture       string `json:"moisture"`
	MoistureStatus string `json:"moisture_status"`
	PH             string `json:"ph"`
	PHStatus       string `json:"ph_status"`
	HealthScore    int    `json:"health_score"`
	NPKSummary     string `json:"npk_summary"`
}

// CropHealthCard is the satellite display card.
type CropHealthCard struct {
	Title        string `json:"title"`
	NDVI         string `json:"ndvi"`
	HealthScore  int    `json:"health_score"`
	HealthStatus string `json:"health_status"`
	GrowthStage  string `json:"growth_stage"`
	StressLevel  string `json:"stress_level"`
}

// PredictionView is the display form of a PredictionRecord.
type PredictionView struct {
	Title           string `json:"title"`
	Yield           string `json:"yield"`
	Range           string `json:"range"`
	Comparison      string `json:"comparison"`
	Production      string `json:"production"`
	RiskScore       string `json:"risk_score"`
	RiskLevel       string `json:"risk_level"`
	Confidence      string `json:"confidence"`
	ConfidenceLevel string `json:"confidence_level"`
	Outlook         string `json:"outlook"`
}

// FormattedAlert is the display form of an Alert.
type FormattedAlert struct {
	Kind     string `json:"type"`
	Severity string `json:"severity"`
	Icon     string `json:"icon"`
	Color    string `json:"color"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Action   string `json:"action"`
}

// Series is one named data series of a chart.
type Series struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Chart is a chart-ready structure for the UI.
type Chart struct {
	Kind       string             `json:"type"`
	Title      string             `json:"title"`
	Labels     []string           `json:"labels,omitempty"`
	Series     []Series           `json:"series,omitempty"`
	Value      float64            `json:"value,omitempty"`
	Max        float64            `json:"max,omitempty"`
	Thresholds map[string]float64 `json:"thresholds,omitempty"`
}

// Charts groups the five chart series of a response.
type Charts struct {
	YieldGauge      Chart  `json:"yield_gauge"`
	FactorRadar     Chart  `json:"factor_radar"`
	WeatherForecast *Chart `json:"weather_forecast,omitempty"`
	SoilNutrients   *Chart `json:"soil_nutrients,omitempty"`
	RiskBreakdown   Chart  `json:"risk_breakdown"`
}

// IrrigationAction is the irrigation decision.
type IrrigationAction string

const (
	IrrigateNow     IrrigationAction = "irrigate"
	IrrigateSkip    IrrigationAction = "skip"
	IrrigateWait    IrrigationAction = "wait"
	IrrigateMonitor IrrigationAction = "monitor"
)

// IrrigationAdvice is the output of the irrigation rule table.
type IrrigationAdvice struct {
	Action   IrrigationAction `json:"action"`
	Priority Priority         `json:"priority"`
	Message  string           `json:"message"`
	Timing   string           `json:"timing"`
	Amount   string           `json:"amount"`
}
