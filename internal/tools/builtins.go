package tools

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/resilience"
)

// Builtins returns the web search and weather tools configured from cfg.
// Web search is left out when no Tavily key is set.
func Builtins(cfg *config.Config, logger zerolog.Logger) []Tool {
	httpClient := &http.Client{Timeout: time.Duration(cfg.ToolTimeout) * time.Second}
	retry := &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}

	var builtins []Tool
	if cfg.TavilyAPIKey != "" {
		builtins = append(builtins, NewWebSearch(cfg.TavilyAPIKey, "", cfg.SearchMaxResults, httpClient, retry, logger))
	} else {
		logger.Warn().Msg("TAVILY_API_KEY not set, websearch tool disabled")
	}
	builtins = append(builtins, NewWeather(cfg.GeocoderURL, cfg.WeatherURL, httpClient, retry, logger))
	return builtins
}
