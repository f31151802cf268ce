package audioio

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/lexiqai/voice-assistant/internal/audio"
)

// MockSource replays a scripted sequence of frames. It is used in tests and
// by the "mock" audio backend.
type MockSource struct {
	cfg Config

	mu      sync.Mutex
	script  [][]int16
	pos     int
	fill    *int16
	pace    bool
	onRead  func(audio.Frame)
	running bool
	closed  bool
	starts  int
	stops   int
	reads   int
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithScript sets the frames returned by successive reads.
func WithScript(frames ...[]int16) MockSourceOption {
	return func(m *MockSource) {
		m.script = append(m.script, frames...)
	}
}

// WithFill makes the source return constant frames of value once the script
// is exhausted, instead of io.EOF.
func WithFill(value int16) MockSourceOption {
	return func(m *MockSource) {
		m.fill = &value
	}
}

// WithPacing makes Read block for one frame duration, like a real device.
func WithPacing() MockSourceOption {
	return func(m *MockSource) {
		m.pace = true
	}
}

// WithReadHook is called with every frame returned by Read.
func WithReadHook(fn func(audio.Frame)) MockSourceOption {
	return func(m *MockSource) {
		m.onRead = fn
	}
}

// NewMockSource creates a stopped mock source.
func NewMockSource(cfg Config, opts ...MockSourceOption) *MockSource {
	m := &MockSource{cfg: cfg}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins capture.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.starts++
	m.running = true
	return nil
}

// Stop halts capture.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stops++
	m.running = false
	return nil
}

// Read returns the next scripted frame.
func (m *MockSource) Read(ctx context.Context) (audio.Frame, error) {
	if err := ctx.Err(); err != nil {
		return audio.Frame{}, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return audio.Frame{}, ErrClosed
	}
	if !m.running {
		m.mu.Unlock()
		return audio.Frame{}, ErrNotRunning
	}

	var samples []int16
	switch {
	case m.pos < len(m.script):
		samples = append([]int16(nil), m.script[m.pos]...)
		m.pos++
	case m.fill != nil:
		samples = make([]int16, m.cfg.FrameSize*max(m.cfg.Channels, 1))
		for i := range samples {
			samples[i] = *m.fill
		}
	default:
		m.mu.Unlock()
		return audio.Frame{}, io.EOF
	}
	m.reads++
	pace := m.pace
	hook := m.onRead
	m.mu.Unlock()

	frame := audio.Frame{Samples: samples, SampleRate: m.cfg.SampleRate, Channels: max(m.cfg.Channels, 1)}

	if pace {
		select {
		case <-ctx.Done():
			return audio.Frame{}, ctx.Err()
		case <-time.After(m.cfg.FrameDuration()):
		}
	}
	if hook != nil {
		hook(frame)
	}
	return frame, nil
}

// Config returns the capture format.
func (m *MockSource) Config() Config {
	return m.cfg
}

// Close marks the source closed.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.running = false
	return nil
}

// Running reports whether the source is started.
func (m *MockSource) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Starts returns how many times Start was called.
func (m *MockSource) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// Stops returns how many times Stop was called.
func (m *MockSource) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

// Reads returns how many frames have been read.
func (m *MockSource) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// MockSink records what it is asked to play.
type MockSink struct {
	sampleRate int

	mu     sync.Mutex
	played [][]int16
	delay  time.Duration
	onPlay func(samples []int16)
	err    error
	closed bool
}

// MockSinkOption configures a MockSink.
type MockSinkOption func(*MockSink)

// WithPlayDelay makes Play block for d.
func WithPlayDelay(d time.Duration) MockSinkOption {
	return func(m *MockSink) {
		m.delay = d
	}
}

// WithPlayHook is called at the start of every Play.
func WithPlayHook(fn func(samples []int16)) MockSinkOption {
	return func(m *MockSink) {
		m.onPlay = fn
	}
}

// WithPlayError makes every Play fail with err.
func WithPlayError(err error) MockSinkOption {
	return func(m *MockSink) {
		m.err = err
	}
}

// NewMockSink creates a sink playing at sampleRate.
func NewMockSink(sampleRate int, opts ...MockSinkOption) *MockSink {
	m := &MockSink{sampleRate: sampleRate}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Play records the samples, resampled to the sink rate.
func (m *MockSink) Play(ctx context.Context, samples []int16, sampleRate int) error {
	m.mu.Lock()
	hook, delay, err := m.onPlay, m.delay, m.err
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if hook != nil {
		hook(samples)
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.played = append(m.played, audio.Resample(samples, sampleRate, m.sampleRate))
	m.mu.Unlock()
	return nil
}

// SampleRate returns the sink rate.
func (m *MockSink) SampleRate() int {
	return m.sampleRate
}

// Close marks the sink closed.
func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Played returns every clip played so far.
func (m *MockSink) Played() [][]int16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]int16(nil), m.played...)
}
