// Package weather provides the current weather tool backed by Open-Meteo
// (no API key required).
package weather

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"opsagent/pkg/tools"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"
	DefaultForecastURL  = "https://api.open-meteo.com/v1/forecast"
	ToolName            = "weather_current"

	currentFields = "temperature_2m,relative_humidity_2m,apparent_temperature,weather_code"
)

// WMO weather interpretation codes.
var conditions = map[int]string{
	0:  "clear sky",
	1:  "mainly clear",
	2:  "partly cloudy",
	3:  "overcast",
	45: "fog",
	48: "depositing rime fog",
	51: "light drizzle",
	53: "moderate drizzle",
	55: "dense drizzle",
	61: "slight rain",
	63: "moderate rain",
	65: "heavy rain",
	71: "slight snow",
	73: "moderate snow",
	75: "heavy snow",
	80: "rain showers",
	95: "thunderstorm",
}

// Describe returns the condition text for a WMO code, or "unknown".
func Describe(code int) string {
	if c, ok := conditions[code]; ok {
		return c
	}
	return "unknown"
}

// Tool implements weather_current.
type Tool struct {
	geocodingURL string
	forecastURL  string
	http         *http.Client
}

// New creates the tool. Empty URLs use the public Open-Meteo endpoints.
func New(geocodingURL, forecastURL string) *Tool {
	if geocodingURL == "" {
		geocodingURL = DefaultGeocodingURL
	}
	if forecastURL == "" {
		forecastURL = DefaultForecastURL
	}
	return &Tool{
		geocodingURL: geocodingURL,
		forecastURL:  forecastURL,
		http:         &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *Tool) Name() string { return ToolName }

func (t *Tool) Description() string { return "Get weather." }

func (t *Tool) InputShape() string { return `{"city": "CityName"}` }

// NormalizeInput accepts "location" as an alias for "city".
func (t *Tool) NormalizeInput(input map[string]any) map[string]any {
	if _, ok := input["city"]; !ok {
		if loc, ok := input["location"]; ok {
			input["city"] = loc
		}
	}
	return input
}

type place struct {
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (t *Tool) Invoke(ctx context.Context, input map[string]any) (map[string]any, error) {
	city := tools.StringArg(input, "city")
	if city == "" {
		return nil, fmt.Errorf("city is required for %s", ToolName)
	}

	var geo struct {
		Results []place `json:"results"`
	}
	if err := t.get(ctx, t.geocodingURL, url.Values{"name": {city}, "count": {"1"}}, &geo); err != nil {
		return nil, err
	}
	if len(geo.Results) == 0 {
		return nil, fmt.Errorf("No location found for city '%s'", city)
	}
	loc := geo.Results[0]

	var forecast struct {
		Current map[string]any `json:"current"`
	}
	params := url.Values{
		"latitude":  {strconv.FormatFloat(loc.Latitude, 'f', -1, 64)},
		"longitude": {strconv.FormatFloat(loc.Longitude, 'f', -1, 64)},
		"current":   {currentFields},
	}
	if err := t.get(ctx, t.forecastURL, params, &forecast); err != nil {
		return nil, err
	}

	current := forecast.Current
	if current == nil {
		current = map[string]any{}
	}
	code := current["weather_code"]
	desc := "unknown"
	if n, ok := code.(float64); ok {
		desc = Describe(int(n))
	}

	return map[string]any{
		"city":         loc.Name,
		"country":      loc.Country,
		"temperature":  current["temperature_2m"],
		"feels_like":   current["apparent_temperature"],
		"humidity":     current["relative_humidity_2m"],
		"conditions":   desc,
		"weather_code": code,
	}, nil
}

func (t *Tool) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("open-meteo returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}
