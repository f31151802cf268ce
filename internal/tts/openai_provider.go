package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/observability"
	"github.com/lexiqai/voice-assistant/internal/resilience"
)

// openAIPCMRate is the fixed rate of the speech endpoint's "pcm" format.
const openAIPCMRate = 24000

// OpenAIProvider synthesizes through the OpenAI speech endpoint.
type OpenAIProvider struct {
	client         *openai.Client
	model          openai.SpeechModel
	voice          openai.SpeechVoice
	logger         zerolog.Logger
	circuitBreaker *resilience.CircuitBreaker
}

// NewOpenAIProvider creates an OpenAI speech provider.
func NewOpenAIProvider(cfg *config.Config, logger zerolog.Logger) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientConfig.BaseURL = cfg.OpenAIBaseURL
	}

	model := openai.SpeechModel(cfg.OpenAITTSModel)
	if model == "" {
		model = openai.TTSModel1
	}
	voice := openai.SpeechVoice(cfg.OpenAITTSVoice)
	if voice == "" {
		voice = openai.VoiceShimmer
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		voice:  voice,
		logger: logger.With().Str("component", "tts").Str("provider", config.ProviderOpenAI).Logger(),
		circuitBreaker: resilience.NewCircuitBreaker(
			"tts_"+config.ProviderOpenAI,
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
	}
}

func (p *OpenAIProvider) Name() string { return config.ProviderOpenAI }

func (p *OpenAIProvider) SampleRate() int { return openAIPCMRate }

// SynthesizeChunk requests raw PCM for text.
func (p *OpenAIProvider) SynthesizeChunk(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	var pcm []byte
	err := p.circuitBreaker.Call(func() error {
		resp, err := p.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
			Model:          p.model,
			Input:          text,
			Voice:          p.voice,
			ResponseFormat: openai.SpeechResponseFormatPcm,
		})
		if err != nil {
			return err
		}
		defer resp.Close()

		pcm, err = io.ReadAll(resp)
		return err
	})

	observability.UpdateCircuitBreakerState(p.circuitBreaker.Name(), int(p.circuitBreaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures(p.circuitBreaker.Name())
		return nil, p.wrapError(err)
	}
	if len(pcm) == 0 {
		return nil, &APIError{Provider: p.Name(), Message: "empty audio response"}
	}
	return pcm, nil
}

func (p *OpenAIProvider) wrapError(err error) error {
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Provider: p.Name(), StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &APIError{Provider: p.Name(), StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	return fmt.Errorf("openai speech request failed: %w", err)
}
