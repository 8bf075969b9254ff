package collector

import (
	"context"
	"time"

	"github.com/agrisense/cropagent/internal/model"
	"github.com/agrisense/cropagent/internal/noise"
)

var weatherCapabilities = []string{"current_weather", "rainfall", "forecast", "weather_alerts"}

var (
	monsoonDescriptions = []string{"light rain", "moderate rain", "heavy rain", "thunderstorm", "overcast clouds"}
	hotDescriptions     = []string{"clear sky", "few clouds", "haze", "hot and sunny"}
	mildDescriptions    = []string{"clear sky", "few clouds", "scattered clouds", "partly cloudy"}
)

// forecastDays is the length of the simulated forecast window.
const forecastDays = 5

// Weather collects current conditions, rainfall and a short forecast.
type Weather struct {
	base[model.WeatherSnapshot]
}

// NewWeather creates a weather collector. A nil source always simulates.
func NewWeather(deps Deps, source Source[model.WeatherSnapshot]) *Weather {
	return &Weather{base: newBase("weather", weatherCapabilities, source, deps.withDefaults())}
}

// Execute returns a weather snapshot for the run's region.
func (w *Weather) Execute(ctx context.Context, rc model.RunContext) (model.WeatherSnapshot, error) {
	req := fetchRequest(w.deps.Tables, rc)
	snap, live, err := w.collect(ctx, req, w.simulate)
	if err != nil {
		return model.WeatherSnapshot{}, err
	}
	if live {
		snap.DataSource = model.SourceLive
		snap.Location = req.Location
		if snap.ObservedAt.IsZero() {
			snap.ObservedAt = w.deps.Clock()
		}
	}
	return snap, nil
}

func isMonsoon(m time.Month) bool { return m >= time.June && m <= time.September }

func (w *Weather) simulate(req FetchRequest) model.WeatherSnapshot {
	now := w.deps.Clock()
	src := w.deps.Noise
	month := now.Month()
	monsoon := isMonsoon(month)

	baseTemp := 25 + (req.Location.Latitude-20)*-0.5
	switch {
	case month >= time.March && month <= time.May:
		baseTemp += 10
	case monsoon:
		baseTemp += 5
	case month >= time.November || month <= time.February:
		baseTemp -= 5
	}

	temp := model.Round(baseTemp+noise.Jitter(src, 3), 1)
	humidity := model.Round(model.Clamp(60+noise.Uniform(src, -20, 30), 0, 100), 1)
	var rain24 float64
	if monsoon {
		rain24 = noise.Uniform(src, 10, 100)
	} else {
		rain24 = noise.Uniform(src, 0, 20)
	}
	rain24 = model.Round(rain24, 1)

	var descriptions []string
	switch {
	case monsoon:
		descriptions = monsoonDescriptions
	case temp > 35:
		descriptions = hotDescriptions
	default:
		descriptions = mildDescriptions
	}

	snap := model.WeatherSnapshot{
		Location: req.Location,
		Current: model.CurrentWeather{
			TemperatureC: temp,
			FeelsLikeC:   model.Round(temp+(humidity-50)*0.05, 1),
			HumidityPct:  humidity,
			PressureHPa:  model.Round(1013+noise.Jitter(src, 10), 0),
			WindSpeedMS:  model.Round(noise.Uniform(src, 2, 15), 1),
			CloudsPct:    float64(noise.Between(src, 10, 90)),
			Description:  noise.Pick(src, descriptions),
		},
		Rainfall: model.Rainfall{
			Last1h:  model.Round(rain24/24, 1),
			Last3h:  model.Round(rain24/8, 1),
			Last24h: rain24,
		},
		DataSource: model.SourceSimulated,
		ObservedAt: now,
	}

	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	snap.Forecast = make([]model.ForecastDay, forecastDays)
	for i := range snap.Forecast {
		var pop int
		if monsoon {
			pop = noise.Between(src, 60, 95)
		} else {
			pop = noise.Between(src, 5, 30)
		}
		snap.Forecast[i] = model.ForecastDay{
			Date:            day.AddDate(0, 0, i+1),
			TemperatureC:    model.Round(temp+noise.Jitter(src, 3), 1),
			HumidityPct:     model.Round(model.Clamp(60+noise.Uniform(src, -15, 25), 0, 100), 1),
			RainProbability: float64(pop),
			Description:     noise.Pick(src, descriptions),
		}
	}

	if temp > 40 {
		snap.Alerts = append(snap.Alerts, model.WeatherAlert{Kind: "heat_wave", Severity: model.SeverityHigh, Message: "Extreme heat conditions expected"})
	}
	switch {
	case rain24 > 80:
		snap.Alerts = append(snap.Alerts, model.WeatherAlert{Kind: "flood_risk", Severity: model.SeverityHigh, Message: "Heavy rainfall may cause flooding"})
	case monsoon && rain24 > 50:
		snap.Alerts = append(snap.Alerts, model.WeatherAlert{Kind: "heavy_rain", Severity: model.SeverityMedium, Message: "Heavy rainfall expected"})
	}
	return snap
}
