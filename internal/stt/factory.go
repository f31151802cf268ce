package stt

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/config"
)

// New returns the transcriber selected by cfg.STTProvider.
func New(cfg *config.Config, logger zerolog.Logger) (Transcriber, error) {
	switch cfg.STTProvider {
	case config.ProviderGroq, config.ProviderOpenAI:
		return NewOpenAIClient(cfg, cfg.STTProvider, logger), nil
	case config.ProviderDeepgram:
		return NewDeepgramClient(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown STT provider %q", cfg.STTProvider)
	}
}
