package model

import (
	"time"

	"github.com/google/uuid"
)

// Intent classifies what the farmer asked about.
type Intent string

const (
	IntentWeather    Intent = "weather_info"
	IntentSoil       Intent = "soil_info"
	IntentHealth     Intent = "health_check"
	IntentIrrigation Intent = "irrigation_advice"
	IntentYield      Intent = "yield_prediction"
)

// Location is a geographic point in decimal degrees.
type Location struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// RunContext is the immutable input driving one pipeline execution.
// It is built once by the orchestrator and passed by value.
type RunContext struct {
	ID        uuid.UUID `json:"id"`
	Region    string    `json:"state"`
	Crop      string    `json:"crop"`
	Language  string    `json:"language"`
	Query     string    `json:"query"`
	Intent    Intent    `json:"intent"`
	Location  Location  `json:"location"`
	StartedAt time.Time `json:"started_at"`
}

// DataSource tags where a snapshot came from.
type DataSource string

const (
	SourceLive      DataSource = "live"
	SourceSimulated DataSource = "simulated"
)

// Range is an inclusive numeric band.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Contains reports whether v lies within the band.
func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// Mid returns the midpoint of the band.
func (r Range) Mid() float64 { return (r.Min + r.Max) / 2 }

// Snapshots groups the three collector outputs for one run. A nil field
// means the dimension was not collected, which only happens under the
// partial fan-out policy.
type Snapshots struct {
	Weather   *WeatherSnapshot   `json:"weather,omitempty"`
	Soil      *SoilSnapshot      `json:"soil,omitempty"`
	Satellite *SatelliteSnapshot `json:"satellite,omitempty"`
}
