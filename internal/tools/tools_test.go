package tools

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/resilience"
)

func fastRetry() *resilience.RetryConfig {
	return &resilience.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestRegistry(t *testing.T) {
	clearTool := &Func{
		Def: Definition{Name: "clear_conversation_history", Description: "Clear the entire conversation history."},
		Fn:  func(ctx context.Context, args map[string]any) (any, error) { return true, nil },
	}
	weather := NewWeather("", "", nil, nil, zerolog.Nop())

	registry, err := NewRegistry(clearTool, nil, weather)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	names := registry.Names()
	if len(names) != 2 || names[0] != "clear_conversation_history" || names[1] != WeatherName {
		t.Errorf("Expected registration order, got %v", names)
	}

	if _, ok := registry.Lookup("get_weather"); !ok {
		t.Error("Expected get_weather to be registered")
	}
	if _, ok := registry.Lookup("launch_rocket"); ok {
		t.Error("Expected unknown tool lookup to fail")
	}

	if err := registry.Register(weather); err == nil {
		t.Error("Expected duplicate registration to fail")
	}

	var nilRegistry *Registry
	if _, ok := nilRegistry.Lookup("get_weather"); ok {
		t.Error("Expected nil registry lookup to fail")
	}
}

func TestDefinition_Schema(t *testing.T) {
	ws := NewWebSearch("key", "", 3, nil, nil, zerolog.Nop())
	raw, err := ws.Definition().Schema()
	if err != nil {
		t.Fatalf("Schema failed: %v", err)
	}

	var decoded map[string]any
	if err := sonic.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Schema is not valid JSON: %v", err)
	}
	if decoded["type"] != "object" {
		t.Errorf("Expected object schema, got %v", decoded["type"])
	}
	props, _ := decoded["properties"].(map[string]any)
	if _, ok := props["keywords"]; !ok {
		t.Errorf("Expected keywords property, got %v", props)
	}

	empty, err := Definition{Name: "noop"}.Schema()
	if err != nil {
		t.Fatalf("Schema failed: %v", err)
	}
	if string(empty) != `{"type":"object","properties":{}}` {
		t.Errorf("Unexpected empty schema %s", empty)
	}
}

func TestDecodeArguments(t *testing.T) {
	args, err := DecodeArguments(`{"location": "Berlin", "latitude": "52.5"}`)
	if err != nil {
		t.Fatalf("DecodeArguments failed: %v", err)
	}
	if v, ok := StringArg(args, "location"); !ok || v != "Berlin" {
		t.Errorf("Expected Berlin, got %q", v)
	}
	if v, ok := FloatArg(args, "latitude"); !ok || v != 52.5 {
		t.Errorf("Expected 52.5, got %f", v)
	}

	if args, err := DecodeArguments(""); err != nil || len(args) != 0 {
		t.Errorf("Expected empty args, got %v, %v", args, err)
	}

	if _, err := DecodeArguments(`{"location": `); !errors.Is(err, ErrInvalidArguments) {
		t.Errorf("Expected ErrInvalidArguments, got %v", err)
	}
}

func TestWebSearch_Invoke(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		sonic.Unmarshal(body, &gotBody)

		w.Write([]byte(`{"results": [
			{"title": "Go", "url": "https://go.dev", "content": "snippet", "raw_content": "Full page text"},
			{"title": "Empty", "url": "https://empty.example", "content": "", "raw_content": ""},
			{"title": "Snippet", "url": "https://snippet.example", "content": "Only snippet"}
		]}`))
	}))
	defer server.Close()

	ws := NewWebSearch("tvly-key", server.URL, 3, server.Client(), fastRetry(), zerolog.Nop())
	result, err := ws.Invoke(context.Background(), map[string]any{"keywords": "golang"})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	results := result.([]SearchResult)
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Content != "Full page text" {
		t.Errorf("Expected raw content, got %q", results[0].Content)
	}
	if results[1].Content != "Only snippet" {
		t.Errorf("Expected snippet fallback, got %q", results[1].Content)
	}
	if gotAuth != "Bearer tvly-key" {
		t.Errorf("Expected bearer auth, got %q", gotAuth)
	}
	if gotBody["query"] != "golang" || gotBody["max_results"] != float64(3) {
		t.Errorf("Unexpected request body %v", gotBody)
	}
}

func TestWebSearch_MissingKeywords(t *testing.T) {
	ws := NewWebSearch("key", "", 3, nil, nil, zerolog.Nop())
	if _, err := ws.Invoke(context.Background(), map[string]any{}); !errors.Is(err, ErrInvalidArguments) {
		t.Errorf("Expected ErrInvalidArguments, got %v", err)
	}
}

func TestWeather_ByLocation(t *testing.T) {
	var forecastCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "Berlin" {
			t.Errorf("Expected q=Berlin, got %s", r.URL.RawQuery)
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("Expected a User-Agent for the geocoder")
		}
		w.Write([]byte(`[{"lat": "52.52", "lon": "13.405", "display_name": "Berlin"}]`))
	})
	mux.HandleFunc("/v1/dwd-icon", func(w http.ResponseWriter, r *http.Request) {
		// First attempt fails to exercise the retry
		if atomic.AddInt32(&forecastCalls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		q := r.URL.Query()
		if q.Get("latitude") != "52.52" || q.Get("longitude") != "13.405" {
			t.Errorf("Unexpected coordinates %s", r.URL.RawQuery)
		}
		if q.Get("hourly") != "temperature_2m,precipitation" || q.Get("forecast_days") != "1" {
			t.Errorf("Unexpected forecast query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{
			"latitude": 52.52, "longitude": 13.4, "generationtime_ms": 0.1,
			"utc_offset_seconds": 3600, "timezone": "Europe/Berlin", "timezone_abbreviation": "CET",
			"elevation": 38,
			"hourly": {"time": ["2024-01-01T00:00"], "temperature_2m": [3.2], "precipitation": [0]}
		}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	weather := NewWeather(server.URL, server.URL, server.Client(), fastRetry(), zerolog.Nop())
	result, err := weather.Invoke(context.Background(), map[string]any{"location": "Berlin"})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	data := result.(map[string]any)
	for _, key := range droppedForecastKeys {
		if _, ok := data[key]; ok {
			t.Errorf("Expected %s to be removed", key)
		}
	}
	if _, ok := data["hourly"]; !ok {
		t.Error("Expected hourly forecast to be kept")
	}
	if atomic.LoadInt32(&forecastCalls) != 2 {
		t.Errorf("Expected 2 forecast calls, got %d", forecastCalls)
	}
}

func TestWeather_CoordinatesSkipGeocoder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		t.Error("Geocoder should not be called when coordinates are given")
	})
	mux.HandleFunc("/v1/dwd-icon", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hourly": {}}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	weather := NewWeather(server.URL, server.URL, server.Client(), fastRetry(), zerolog.Nop())
	if _, err := weather.Invoke(context.Background(), map[string]any{"latitude": 48.1, "longitude": 11.6}); err != nil {
		t.Errorf("Invoke failed: %v", err)
	}
}

func TestWeather_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	weather := NewWeather(server.URL, server.URL, server.Client(), fastRetry(), zerolog.Nop())

	if _, err := weather.Invoke(context.Background(), map[string]any{}); !errors.Is(err, ErrInvalidArguments) {
		t.Errorf("Expected ErrInvalidArguments, got %v", err)
	}
	if _, err := weather.Invoke(context.Background(), map[string]any{"location": "Atlantis"}); err == nil {
		t.Error("Expected error for unknown location")
	}
}
