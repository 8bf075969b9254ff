package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/agrisense/cropagent/internal/model"
)

// DefaultOpenWeatherURL is the OpenWeatherMap 2.5 API root.
const DefaultOpenWeatherURL = "https://api.openweathermap.org/data/2.5"

// placeholderAPIKey is shipped in sample env files and never valid.
const placeholderAPIKey = "demo_key"

// OpenWeather fetches live weather from OpenWeatherMap.
type OpenWeather struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewOpenWeather creates an OpenWeatherMap source.
func NewOpenWeather(apiKey, baseURL string, client *http.Client) *OpenWeather {
	if baseURL == "" {
		baseURL = DefaultOpenWeatherURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &OpenWeather{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), httpClient: client}
}

// WeatherSource returns the live weather source for apiKey, or nil when the
// key is empty or the placeholder. A nil source makes the weather
// collector simulate.
func WeatherSource(apiKey, baseURL string, client *http.Client) Source[model.WeatherSnapshot] {
	if apiKey == "" || apiKey == placeholderAPIKey {
		return nil
	}
	return NewOpenWeather(apiKey, baseURL, client)
}

// Name identifies the source in logs.
func (o *OpenWeather) Name() string { return "openweathermap" }

// owmMain uses pointers so an absent reading is distinguishable from 0.
type owmMain struct {
	Temp      *float64 `json:"temp"`
	FeelsLike *float64 `json:"feels_like"`
	Humidity  *float64 `json:"humidity"`
	Pressure  *float64 `json:"pressure"`
}

func (m *owmMain) complete() bool {
	return m != nil && m.Temp != nil && m.Humidity != nil
}

func orZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

type owmCondition struct {
	Description string `json:"description"`
}

type owmRain struct {
	OneHour   float64 `json:"1h"`
	ThreeHour float64 `json:"3h"`
}

type owmCurrent struct {
	Main    *owmMain       `json:"main"`
	Weather []owmCondition `json:"weather"`
	Wind    struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Clouds struct {
		All float64 `json:"all"`
	} `json:"clouds"`
	Rain owmRain `json:"rain"`
	Dt   int64   `json:"dt"`
}

type owmForecast struct {
	List []struct {
		Dt      int64          `json:"dt"`
		Main    *owmMain       `json:"main"`
		Weather []owmCondition `json:"weather"`
		Pop     float64        `json:"pop"`
		Rain    owmRain        `json:"rain"`
	} `json:"list"`
}

// Fetch returns a live snapshot from the current and forecast endpoints.
func (o *OpenWeather) Fetch(ctx context.Context, req FetchRequest) (model.WeatherSnapshot, error) {
	var cur owmCurrent
	if err := o.get(ctx, "/weather", req.Location, &cur); err != nil {
		return model.WeatherSnapshot{}, err
	}
	if !cur.Main.complete() {
		return model.WeatherSnapshot{}, fmt.Errorf("%w: openweather: current conditions missing temperature or humidity", ErrSourceRejected)
	}
	var fc owmForecast
	if err := o.get(ctx, "/forecast", req.Location, &fc); err != nil {
		return model.WeatherSnapshot{}, err
	}
	if len(fc.List) == 0 {
		return model.WeatherSnapshot{}, fmt.Errorf("%w: openweather: empty forecast", ErrSourceRejected)
	}
	for i, item := range fc.List {
		if !item.Main.complete() {
			return model.WeatherSnapshot{}, fmt.Errorf("%w: openweather: forecast entry %d missing temperature or humidity", ErrSourceRejected, i)
		}
	}

	snap := model.WeatherSnapshot{
		Current: model.CurrentWeather{
			TemperatureC: *cur.Main.Temp,
			FeelsLikeC:   orZero(cur.Main.FeelsLike),
			HumidityPct:  *cur.Main.Humidity,
			PressureHPa:  orZero(cur.Main.Pressure),
			WindSpeedMS:  cur.Wind.Speed,
			CloudsPct:    cur.Clouds.All,
			Description:  firstDescription(cur.Weather),
		},
		Rainfall: model.Rainfall{Last1h: cur.Rain.OneHour, Last3h: cur.Rain.ThreeHour},
	}
	if cur.Dt > 0 {
		snap.ObservedAt = time.Unix(cur.Dt, 0).UTC()
	}

	// The forecast is 3-hourly: eight entries cover the next 24 hours, and
	// every eighth entry starts a new day.
	var rain24 float64
	for i, item := range fc.List {
		if i < 8 {
			rain24 += item.Rain.ThreeHour
		}
		if i%8 == 0 && len(snap.Forecast) < forecastDays {
			snap.Forecast = append(snap.Forecast, model.ForecastDay{
				Date:            time.Unix(item.Dt, 0).UTC(),
				TemperatureC:    *item.Main.Temp,
				HumidityPct:     *item.Main.Humidity,
				RainProbability: model.Round(item.Pop*100, 0),
				Description:     firstDescription(item.Weather),
			})
		}
	}
	snap.Rainfall.Last24h = model.Round(rain24, 1)

	if snap.Current.TemperatureC > 40 {
		snap.Alerts = append(snap.Alerts, model.WeatherAlert{Kind: "heat_wave", Severity: model.SeverityHigh, Message: "Extreme heat conditions"})
	}
	if snap.Current.TemperatureC < 5 {
		snap.Alerts = append(snap.Alerts, model.WeatherAlert{Kind: "cold_wave", Severity: model.SeverityHigh, Message: "Cold wave conditions"})
	}
	if snap.Current.WindSpeedMS > 20 {
		snap.Alerts = append(snap.Alerts, model.WeatherAlert{Kind: "strong_wind", Severity: model.SeverityMedium, Message: "Strong winds expected"})
	}
	if snap.Rainfall.Last1h > 50 {
		snap.Alerts = append(snap.Alerts, model.WeatherAlert{Kind: "heavy_rain", Severity: model.SeverityHigh, Message: "Heavy rainfall in progress"})
	}
	return snap, nil
}

func (o *OpenWeather) get(ctx context.Context, path string, loc model.Location, dst any) error {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	q.Set("appid", o.apiKey)
	q.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("openweather: create request: %w", err)
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("openweather: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("openweather: %s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return fmt.Errorf("%w: %w", ErrSourceRejected, err)
		}
		return err
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(dst); err != nil {
		return fmt.Errorf("%w: openweather: decode %s: %w", ErrSourceRejected, path, err)
	}
	return nil
}

func firstDescription(c []owmCondition) string {
	if len(c) == 0 {
		return ""
	}
	return c[0].Description
}
