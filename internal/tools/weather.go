package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/resilience"
)

// WeatherName is the tool name the model calls.
const WeatherName = "get_weather"

const (
	defaultGeocoderURL = "https://nominatim.openstreetmap.org"
	defaultWeatherURL  = "https://api.open-meteo.com"
	weatherUserAgent   = "voice-assistant/1.0"
)

// Location metadata the model has no use for
var droppedForecastKeys = []string{
	"latitude",
	"longitude",
	"generationtime_ms",
	"utc_offset_seconds",
	"timezone",
	"timezone_abbreviation",
}

// Weather returns today's hourly forecast for a place name or coordinates.
type Weather struct {
	geocoderURL string
	weatherURL  string
	httpClient  *http.Client
	retry       *resilience.RetryConfig
	logger      zerolog.Logger
}

// NewWeather creates the get_weather tool.
func NewWeather(geocoderURL, weatherURL string, httpClient *http.Client, retry *resilience.RetryConfig, logger zerolog.Logger) *Weather {
	if strings.TrimSpace(geocoderURL) == "" {
		geocoderURL = defaultGeocoderURL
	}
	if strings.TrimSpace(weatherURL) == "" {
		weatherURL = defaultWeatherURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Weather{
		geocoderURL: strings.TrimRight(geocoderURL, "/"),
		weatherURL:  strings.TrimRight(weatherURL, "/"),
		httpClient:  httpClient,
		retry:       retry,
		logger:      logger.With().Str("tool", WeatherName).Logger(),
	}
}

// Definition describes the tool to the model.
func (w *Weather) Definition() Definition {
	return Definition{
		Name:        WeatherName,
		Description: "Get the weather forecast for a location.",
		Parameters: map[string]Parameter{
			"location": {Type: "string", Description: "The location to get the weather forecast for."},
		},
	}
}

// Invoke fetches the forecast. Explicit latitude and longitude take
// precedence over location.
func (w *Weather) Invoke(ctx context.Context, args map[string]any) (any, error) {
	lat, hasLat := FloatArg(args, "latitude")
	lon, hasLon := FloatArg(args, "longitude")

	if !hasLat || !hasLon {
		location, ok := StringArg(args, "location")
		if !ok {
			return nil, fmt.Errorf("%w: location or latitude and longitude are required", ErrInvalidArguments)
		}

		var err error
		lat, lon, err = w.coordinates(ctx, location)
		if err != nil {
			return nil, err
		}
		w.logger.Info().Str("location", location).Float64("lat", lat).Float64("lon", lon).Msg("Resolved location")
	}

	return w.forecast(ctx, lat, lon)
}

func (w *Weather) coordinates(ctx context.Context, location string) (float64, float64, error) {
	query := url.Values{}
	query.Set("q", location)
	query.Set("format", "jsonv2")
	query.Set("limit", "1")

	var places []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	err := doJSON(ctx, w.httpClient, w.retry, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.geocoderURL+"/search?"+query.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", weatherUserAgent)
		return req, nil
	}, &places)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get coordinates: %w", err)
	}
	if len(places) == 0 {
		return 0, 0, fmt.Errorf("no coordinates found for %q", location)
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude %q: %w", places[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude %q: %w", places[0].Lon, err)
	}
	return lat, lon, nil
}

func (w *Weather) forecast(ctx context.Context, lat, lon float64) (map[string]any, error) {
	query := url.Values{}
	query.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	query.Set("hourly", "temperature_2m,precipitation")
	query.Set("timezone", "auto")
	query.Set("forecast_days", "1")

	var data map[string]any
	err := doJSON(ctx, w.httpClient, w.retry, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, w.weatherURL+"/v1/dwd-icon?"+query.Encode(), nil)
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("failed to get weather data: %w", err)
	}

	for _, key := range droppedForecastKeys {
		delete(data, key)
	}
	return data, nil
}
