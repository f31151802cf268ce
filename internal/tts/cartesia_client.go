package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/observability"
	"github.com/lexiqai/voice-assistant/internal/resilience"
)

const cartesiaVersion = "2024-06-10"

// CartesiaClient implements Provider using Cartesia's bytes endpoint
type CartesiaClient struct {
	apiKey         string
	apiURL         string
	voiceID        string
	modelID        string
	sampleRate     int
	httpClient     *http.Client
	logger         zerolog.Logger
	circuitBreaker *resilience.CircuitBreaker
}

// CartesiaRequest is the request payload for /tts/bytes
type CartesiaRequest struct {
	ModelID      string               `json:"model_id"`
	Transcript   string               `json:"transcript"`
	Voice        CartesiaVoice        `json:"voice"`
	OutputFormat CartesiaOutputFormat `json:"output_format"`
	Language     string               `json:"language,omitempty"`
}

// CartesiaVoice selects a voice by id
type CartesiaVoice struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

// CartesiaOutputFormat asks for headerless PCM
type CartesiaOutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

// NewCartesiaClient creates a new Cartesia TTS client
func NewCartesiaClient(cfg *config.Config, logger zerolog.Logger) *CartesiaClient {
	baseURL := cfg.CartesiaBaseURL
	if baseURL == "" {
		baseURL = "https://api.cartesia.ai"
	}
	rate := cfg.TTSSampleRate
	if rate <= 0 {
		rate = 24000
	}

	return &CartesiaClient{
		apiKey:     cfg.CartesiaAPIKey,
		apiURL:     strings.TrimRight(baseURL, "/") + "/tts/bytes",
		voiceID:    cfg.CartesiaVoiceID,
		modelID:    cfg.CartesiaModelID,
		sampleRate: rate,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With().Str("component", "tts").Str("provider", config.ProviderCartesia).Logger(),
		circuitBreaker: resilience.NewCircuitBreaker(
			"tts_"+config.ProviderCartesia,
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
	}
}

func (c *CartesiaClient) Name() string { return config.ProviderCartesia }

func (c *CartesiaClient) SampleRate() int { return c.sampleRate }

// SynthesizeChunk converts text to raw PCM
func (c *CartesiaClient) SynthesizeChunk(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	reqBody := CartesiaRequest{
		ModelID:    c.modelID,
		Transcript: text,
		Voice:      CartesiaVoice{Mode: "id", ID: c.voiceID},
		OutputFormat: CartesiaOutputFormat{
			Container:  "raw",
			Encoding:   "pcm_s16le",
			SampleRate: c.sampleRate,
		},
		Language: "en",
	}
	jsonData, err := sonic.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var pcm []byte
	err = c.circuitBreaker.Call(func() error {
		var callErr error
		pcm, callErr = c.post(ctx, jsonData)
		return callErr
	})

	observability.UpdateCircuitBreakerState(c.circuitBreaker.Name(), int(c.circuitBreaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures(c.circuitBreaker.Name())
		return nil, err
	}

	c.logger.Debug().Int("bytes", len(pcm)).Msg("Cartesia audio received")
	return pcm, nil
}

func (c *CartesiaClient) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Cartesia-Version", cartesiaVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Provider: c.Name(), StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	if len(data) == 0 {
		return nil, &APIError{Provider: c.Name(), StatusCode: resp.StatusCode, Message: "empty audio response"}
	}
	return data, nil
}
