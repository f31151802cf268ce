package audioio

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Backend names
const (
	BackendPortAudio = "portaudio"
	BackendMock      = "mock"
)

// NewSource opens the microphone for backend. The mock backend produces
// paced silence, which keeps the assistant idle.
func NewSource(backend string, cfg Config, logger zerolog.Logger) (Source, error) {
	switch backend {
	case BackendPortAudio:
		src, err := NewPortAudioSource(cfg, logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	case BackendMock:
		return NewMockSource(cfg, WithFill(0), WithPacing()), nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q", backend)
	}
}

// NewSink opens the speaker for backend.
func NewSink(backend string, sampleRate int, logger zerolog.Logger) (Sink, error) {
	switch backend {
	case BackendPortAudio:
		sink, err := NewPortAudioSink(sampleRate, logger)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case BackendMock:
		return NewMockSink(sampleRate), nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q", backend)
	}
}
