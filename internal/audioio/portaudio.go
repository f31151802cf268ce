//go:build cgo

package audioio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/audio"
)

// PortAudioAvailable reports whether this build can open real devices.
const PortAudioAvailable = true

// PortAudioSource captures from the default input device using a blocking
// PortAudio stream.
type PortAudioSource struct {
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	stream  *portaudio.Stream
	buffer  []int16
	running bool
	closed  bool
}

// NewPortAudioSource opens (but does not start) the default input device.
func NewPortAudioSource(cfg Config, logger zerolog.Logger) (*PortAudioSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	buffer := make([]int16, cfg.FrameSize*cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), cfg.FrameSize, buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}

	return &PortAudioSource{
		cfg:    cfg,
		logger: logger.With().Str("component", "microphone").Logger(),
		stream: stream,
		buffer: buffer,
	}, nil
}

// Start begins capturing. Calling Start on a running source is a no-op.
func (s *PortAudioSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.running {
		return nil
	}
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to start input stream: %w", err)
	}
	s.running = true
	s.logger.Debug().Msg("Microphone started")
	return nil
}

// Stop halts capturing. Calling Stop on a stopped source is a no-op.
func (s *PortAudioSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.running {
		return nil
	}
	s.running = false
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop input stream: %w", err)
	}
	s.logger.Debug().Msg("Microphone stopped")
	return nil
}

// Read blocks until one frame has been captured.
func (s *PortAudioSource) Read(ctx context.Context) (audio.Frame, error) {
	if err := ctx.Err(); err != nil {
		return audio.Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return audio.Frame{}, ErrClosed
	}
	if !s.running {
		return audio.Frame{}, ErrNotRunning
	}

	if err := s.stream.Read(); err != nil {
		if !errors.Is(err, portaudio.InputOverflowed) {
			return audio.Frame{}, fmt.Errorf("failed to read input stream: %w", err)
		}
		s.logger.Debug().Msg("Input overflowed, frame may contain a gap")
	}

	samples := make([]int16, len(s.buffer))
	copy(samples, s.buffer)
	return audio.Frame{Samples: samples, SampleRate: s.cfg.SampleRate, Channels: s.cfg.Channels}, nil
}

// Config returns the capture format.
func (s *PortAudioSource) Config() Config {
	return s.cfg
}

// Close releases the device.
func (s *PortAudioSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.running {
		s.stream.Stop()
		s.running = false
	}
	err := s.stream.Close()
	portaudio.Terminate()
	return err
}

// PortAudioSink plays through the default output device. A stream is opened
// per Play call so the device is idle between turns.
type PortAudioSink struct {
	sampleRate int
	bufferSize int
	logger     zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// NewPortAudioSink prepares playback at sampleRate.
func NewPortAudioSink(sampleRate int, logger zerolog.Logger) (*PortAudioSink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	return &PortAudioSink{
		sampleRate: sampleRate,
		bufferSize: 1024,
		logger:     logger.With().Str("component", "speaker").Logger(),
	}, nil
}

// Play writes samples to the device and returns once they have been played.
// Samples at a different rate are resampled to the sink rate first.
func (s *PortAudioSink) Play(ctx context.Context, samples []int16, sampleRate int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	samples = audio.Resample(samples, sampleRate, s.sampleRate)

	buffer := make([]int16, s.bufferSize)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(s.sampleRate), len(buffer), buffer)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}

	for offset := 0; offset < len(samples); offset += len(buffer) {
		if err := ctx.Err(); err != nil {
			stream.Abort()
			return err
		}

		n := copy(buffer, samples[offset:])
		for i := n; i < len(buffer); i++ {
			buffer[i] = 0
		}
		if err := stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			stream.Abort()
			return fmt.Errorf("failed to write output stream: %w", err)
		}
	}

	// Stop drains the remaining buffered audio
	return stream.Stop()
}

// SampleRate returns the device playback rate.
func (s *PortAudioSink) SampleRate() int {
	return s.sampleRate
}

// Close releases PortAudio.
func (s *PortAudioSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return portaudio.Terminate()
}
