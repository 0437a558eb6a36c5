// Package weather fetches and caches the forecast shown in the kiosk's
// weather box. The provider is Open-Meteo, which needs no API key.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	DefaultBaseURL = "https://api.open-meteo.com"
	forecastPath   = "/v1/forecast"
	forecastDays   = 3
)

// Location is what a forecast is requested for.
type Location struct {
	Lat   float64
	Lon   float64
	Units string // "metric" or "imperial"
}

func (l Location) key() string {
	return fmt.Sprintf("%.4f,%.4f,%s", l.Lat, l.Lon, l.Units)
}

// Report is the normalized forecast served to display clients. Provider
// values that are absent stay null.
type Report struct {
	Error     string   `json:"error,omitempty"`
	FetchedAt string   `json:"fetched_at"`
	Current   *Current `json:"current"`
	Daily     []Day    `json:"daily"`
}

type Current struct {
	Temp  *float64 `json:"temp"`
	Feels *float64 `json:"feels"`
	Wind  *float64 `json:"wind"`
	Code  *int     `json:"code"`
	IsDay *int     `json:"is_day"`
}

type Day struct {
	Date string   `json:"date"`
	TMax *float64 `json:"tmax"`
	TMin *float64 `json:"tmin"`
	Code *int     `json:"code"`
}

// Client queries the Open-Meteo forecast endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	now     func() time.Time
}

// NewClient creates a Client. An empty baseURL selects the public API.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

type forecastResponse struct {
	Current struct {
		Temperature *float64 `json:"temperature_2m"`
		Apparent    *float64 `json:"apparent_temperature"`
		IsDay       *int     `json:"is_day"`
		WeatherCode *int     `json:"weather_code"`
		WindSpeed   *float64 `json:"wind_speed_10m"`
	} `json:"current"`
	Daily struct {
		Time        []string   `json:"time"`
		TempMax     []*float64 `json:"temperature_2m_max"`
		TempMin     []*float64 `json:"temperature_2m_min"`
		WeatherCode []*int     `json:"weather_code"`
	} `json:"daily"`
}

// Fetch retrieves the current conditions and a three-day outlook.
func (c *Client) Fetch(ctx context.Context, loc Location) (*Report, error) {
	tempUnit, windUnit := "celsius", "kmh"
	if loc.Units == "imperial" {
		tempUnit, windUnit = "fahrenheit", "mph"
	}

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(loc.Lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(loc.Lon, 'f', -1, 64))
	q.Set("current", "temperature_2m,apparent_temperature,is_day,weather_code,wind_speed_10m")
	q.Set("daily", "temperature_2m_max,temperature_2m_min,weather_code")
	q.Set("timezone", "auto")
	q.Set("temperature_unit", tempUnit)
	q.Set("wind_speed_unit", windUnit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+forecastPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building forecast request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting forecast: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("forecast request failed: %s", resp.Status)
	}

	var body forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding forecast: %w", err)
	}

	report := &Report{
		FetchedAt: c.now().Format(time.RFC3339),
		Current: &Current{
			Temp:  body.Current.Temperature,
			Feels: body.Current.Apparent,
			Wind:  body.Current.WindSpeed,
			Code:  body.Current.WeatherCode,
			IsDay: body.Current.IsDay,
		},
		Daily: []Day{},
	}
	for i := 0; i < min(forecastDays, len(body.Daily.Time)); i++ {
		report.Daily = append(report.Daily, Day{
			Date: body.Daily.Time[i],
			TMax: at(body.Daily.TempMax, i),
			TMin: at(body.Daily.TempMin, i),
			Code: at(body.Daily.WeatherCode, i),
		})
	}
	return report, nil
}

func at[T any](s []*T, i int) *T {
	if i < len(s) {
		return s[i]
	}
	return nil
}
