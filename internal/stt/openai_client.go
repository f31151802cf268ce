package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/observability"
	"github.com/lexiqai/voice-assistant/internal/resilience"
)

// OpenAIClient transcribes through an OpenAI-compatible audio endpoint. The
// same client serves OpenAI Whisper and Groq.
type OpenAIClient struct {
	provider       string
	client         *openai.Client
	model          string
	prompt         string
	language       string
	logger         zerolog.Logger
	circuitBreaker *resilience.CircuitBreaker
}

// NewOpenAIClient creates a transcriber for provider (openai or groq).
func NewOpenAIClient(cfg *config.Config, provider string, logger zerolog.Logger) *OpenAIClient {
	var clientConfig openai.ClientConfig
	model := cfg.STTModel

	switch provider {
	case config.ProviderGroq:
		clientConfig = openai.DefaultConfig(cfg.GroqAPIKey)
		clientConfig.BaseURL = cfg.GroqBaseURL
	default:
		clientConfig = openai.DefaultConfig(cfg.OpenAIAPIKey)
		if cfg.OpenAIBaseURL != "" {
			clientConfig.BaseURL = cfg.OpenAIBaseURL
		}
		// whisper-large-v3 only exists on Groq
		if strings.HasPrefix(model, "whisper-large") {
			model = openai.Whisper1
		}
	}

	return &OpenAIClient{
		provider: provider,
		client:   openai.NewClientWithConfig(clientConfig),
		model:    model,
		prompt:   cfg.STTPrompt,
		language: cfg.STTLanguage,
		logger:   logger.With().Str("component", "stt").Str("provider", provider).Logger(),
		circuitBreaker: resilience.NewCircuitBreaker(
			"stt_"+provider,
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
	}
}

// Transcribe uploads the WAV file and returns the trimmed transcript.
func (c *OpenAIClient) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}
	if filename == "" {
		filename = "audio.wav"
	}

	var resp openai.AudioResponse
	err := c.circuitBreaker.Call(func() error {
		var callErr error
		resp, callErr = c.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    c.model,
			FilePath: filename,
			Reader:   bytes.NewReader(audio),
			Prompt:   c.prompt,
			Language: c.language,
			Format:   openai.AudioResponseFormatJSON,
		})
		return callErr
	})

	observability.UpdateCircuitBreakerState(c.circuitBreaker.Name(), int(c.circuitBreaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures(c.circuitBreaker.Name())
		return "", c.wrapError(err)
	}

	text := strings.TrimSpace(resp.Text)
	c.logger.Debug().Int("bytes", len(audio)).Str("text", text).Msg("Transcription received")
	return text, nil
}

func (c *OpenAIClient) wrapError(err error) error {
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Provider: c.provider, StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &APIError{Provider: c.provider, StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	return fmt.Errorf("%s transcription request failed: %w", c.provider, err)
}
