package tools

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/resilience"
)

// WebSearchName is the tool name the model calls.
const WebSearchName = "websearch"

const defaultTavilyURL = "https://api.tavily.com"

// SearchResult is one scraped page.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// WebSearch searches the web through Tavily and returns the page text of the
// top results.
type WebSearch struct {
	apiKey     string
	baseURL    string
	maxResults int
	httpClient *http.Client
	retry      *resilience.RetryConfig
	logger     zerolog.Logger
}

// NewWebSearch creates the websearch tool. An empty baseURL uses Tavily's API.
func NewWebSearch(apiKey, baseURL string, maxResults int, httpClient *http.Client, retry *resilience.RetryConfig, logger zerolog.Logger) *WebSearch {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultTavilyURL
	}
	if maxResults <= 0 {
		maxResults = 3
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &WebSearch{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxResults: maxResults,
		httpClient: httpClient,
		retry:      retry,
		logger:     logger.With().Str("tool", WebSearchName).Logger(),
	}
}

// Definition describes the tool to the model.
func (w *WebSearch) Definition() Definition {
	return Definition{
		Name:        WebSearchName,
		Description: "Search the internet for the given keywords.",
		Parameters: map[string]Parameter{
			"keywords": {Type: "string", Description: "The keywords or text to search for."},
		},
		Required: []string{"keywords"},
	}
}

// Invoke runs the search.
func (w *WebSearch) Invoke(ctx context.Context, args map[string]any) (any, error) {
	keywords, ok := StringArg(args, "keywords")
	if !ok {
		return nil, fmt.Errorf("%w: keywords is required", ErrInvalidArguments)
	}
	if w.apiKey == "" {
		return nil, fmt.Errorf("tavily api key is not configured")
	}

	body, err := sonic.Marshal(map[string]any{
		"query":               keywords,
		"search_depth":        "basic",
		"max_results":         w.maxResults,
		"include_raw_content": true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var decoded struct {
		Results []struct {
			Title      string `json:"title"`
			URL        string `json:"url"`
			Content    string `json:"content"`
			RawContent string `json:"raw_content"`
		} `json:"results"`
	}

	w.logger.Debug().Str("keywords", keywords).Int("max_results", w.maxResults).Msg("Starting web search")

	err = doJSON(ctx, w.httpClient, w.retry, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/search", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
		return req, nil
	}, &decoded)
	if err != nil {
		return nil, fmt.Errorf("web search failed: %w", err)
	}

	results := make([]SearchResult, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		// Prefer the full page text, fall back to the snippet
		content := strings.TrimSpace(r.RawContent)
		if content == "" {
			content = strings.TrimSpace(r.Content)
		}
		if content == "" {
			w.logger.Warn().Str("url", r.URL).Msg("Skipping result without content")
			continue
		}
		results = append(results, SearchResult{Title: r.Title, URL: r.URL, Content: content})
	}

	w.logger.Info().Int("results", len(results)).Msg("Web search finished")
	return results, nil
}
