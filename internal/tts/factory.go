package tts

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/config"
)

// NewProvider returns the provider selected by cfg.TTSProvider.
func NewProvider(cfg *config.Config, logger zerolog.Logger) (Provider, error) {
	switch cfg.TTSProvider {
	case config.ProviderOpenAI:
		return NewOpenAIProvider(cfg, logger), nil
	case config.ProviderCartesia:
		return NewCartesiaClient(cfg, logger), nil
	case config.ProviderElevenLabs:
		return NewElevenLabsClient(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown TTS provider %q", cfg.TTSProvider)
	}
}

// New builds the configured provider behind a Synthesizer.
func New(cfg *config.Config, logger zerolog.Logger) (*Synthesizer, error) {
	provider, err := NewProvider(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewSynthesizer(provider, cfg.TTSChunkChars, cfg.TTSWorkers, cfg.SpeechDir, logger), nil
}
