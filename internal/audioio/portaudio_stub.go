//go:build !cgo

package audioio

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/audio"
)

// PortAudioAvailable reports whether this build can open real devices.
const PortAudioAvailable = false

var errNoPortAudio = errors.New("portaudio requires a cgo build")

// PortAudioSource is unavailable without cgo.
type PortAudioSource struct{}

// NewPortAudioSource always fails without cgo.
func NewPortAudioSource(cfg Config, logger zerolog.Logger) (*PortAudioSource, error) {
	return nil, errNoPortAudio
}

func (s *PortAudioSource) Start(ctx context.Context) error { return errNoPortAudio }
func (s *PortAudioSource) Stop() error                    { return errNoPortAudio }
func (s *PortAudioSource) Read(ctx context.Context) (audio.Frame, error) {
	return audio.Frame{}, errNoPortAudio
}
func (s *PortAudioSource) Config() Config { return Config{} }
func (s *PortAudioSource) Close() error   { return nil }

// PortAudioSink is unavailable without cgo.
type PortAudioSink struct{}

// NewPortAudioSink always fails without cgo.
func NewPortAudioSink(sampleRate int, logger zerolog.Logger) (*PortAudioSink, error) {
	return nil, errNoPortAudio
}

func (s *PortAudioSink) Play(ctx context.Context, samples []int16, sampleRate int) error {
	return errNoPortAudio
}
func (s *PortAudioSink) SampleRate() int { return 0 }
func (s *PortAudioSink) Close() error    { return nil }
