// Package audioio connects the assistant to audio devices: a microphone
// Source that yields fixed-size frames and a speaker Sink that plays PCM.
package audioio

import (
	"context"
	"errors"
	"time"

	"github.com/lexiqai/voice-assistant/internal/audio"
)

// ErrNotRunning is returned by Read while the source is stopped.
var ErrNotRunning = errors.New("audio source is not running")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("audio device is closed")

// Config describes the capture format.
type Config struct {
	SampleRate int
	Channels   int
	FrameSize  int // samples per channel per frame
}

// DefaultConfig is 16 kHz mono with 4096-sample frames.
func DefaultConfig() Config {
	return Config{
		SampleRate: 16000,
		Channels:   1,
		FrameSize:  4096,
	}
}

// FrameDuration is the wall-clock length of one frame.
func (c Config) FrameDuration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.FrameSize) * time.Second / time.Duration(c.SampleRate)
}

// Source produces microphone frames. Read blocks for roughly one frame
// duration. Stop and Start gate capture without releasing the device, which
// is how playback keeps the speaker out of the microphone.
type Source interface {
	Start(ctx context.Context) error
	Stop() error
	Read(ctx context.Context) (audio.Frame, error)
	Config() Config
	Close() error
}

// Sink plays mono PCM16 and blocks until playback finishes or ctx is done.
type Sink interface {
	Play(ctx context.Context, samples []int16, sampleRate int) error
	SampleRate() int
	Close() error
}
