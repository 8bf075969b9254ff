package model

import "time"

// CurrentWeather holds point-in-time observations.
type CurrentWeather struct {
	TemperatureC float64 `json:"temperature"`
	FeelsLikeC   float64 `json:"feels_like"`
	HumidityPct  float64 `json:"humidity"`
	PressureHPa  float64 `json:"pressure"`
	WindSpeedMS  float64 `json:"wind_speed"`
	CloudsPct    float64 `json:"clouds"`
	Description  string  `json:"description"`
}

// Rainfall holds accumulated precipitation in millimetres.
type Rainfall struct {
	Last1h  float64 `json:"last_1h"`
	Last3h  float64 `json:"last_3h"`
	Last24h float64 `json:"last_24h"`
}

// ForecastDay is one entry of the short forecast window.
type ForecastDay struct {
	Date            time.Time `json:"date"`
	TemperatureC    float64   `json:"temperature"`
	HumidityPct     float64   `json:"humidity"`
	RainProbability float64   `json:"rain_probability"`
	Description     string    `json:"description"`
}

// WeatherAlert is a collector-side observation that fusion treats as a
// penalty. It is distinct from the Alert produced by the alert engine.
type WeatherAlert struct {
	Kind     string   `json:"type"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// WeatherSnapshot is the weather dimension of one run.
type WeatherSnapshot struct {
	Location   Location       `json:"location"`
	Current    CurrentWeather `json:"current"`
	Rainfall   Rainfall       `json:"rainfall"`
	Forecast   []ForecastDay  `json:"forecast"`
	Alerts     []WeatherAlert `json:"alerts"`
	DataSource DataSource     `json:"data_source"`
	ObservedAt time.Time      `json:"observed_at"`
}
