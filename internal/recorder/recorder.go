// Package recorder captures one spoken utterance after a wake word, ending
// the recording once the speaker has been quiet long enough.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/audio"
	"github.com/lexiqai/voice-assistant/internal/audioio"
	"github.com/lexiqai/voice-assistant/internal/config"
)

var (
	// ErrDeviceRead means the microphone failed mid-recording. Nothing is
	// written and the turn should be abandoned.
	ErrDeviceRead = errors.New("failed to read from microphone")

	// ErrWriteUtterance means the finished recording could not be saved.
	ErrWriteUtterance = errors.New("failed to write utterance")
)

// State is the recorder's position in a single recording.
type State int

const (
	StateArmed State = iota
	StateRecording
	StateFinalizing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// CuePlayer plays the short tones that bracket a recording.
type CuePlayer interface {
	PlayStartCue(ctx context.Context) error
	PlayStopCue(ctx context.Context) error
}

// Utterance is a finished recording, already written to disk as WAV.
type Utterance struct {
	Path       string
	Data       []byte // WAV container
	Index      int
	Frames     int
	SampleRate int
	Channels   int
	Duration   time.Duration
}

// Remove deletes the recording from disk.
func (u *Utterance) Remove() error {
	if err := os.Remove(u.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Recorder turns microphone frames into utterances. It is driven by a single
// goroutine and is not safe for concurrent Record calls.
type Recorder struct {
	source   audioio.Source
	settings config.SettingsProvider
	cues     CuePlayer
	gain     float64
	dir      string
	logger   zerolog.Logger
	now      func() time.Time

	index int
	state State
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock replaces time.Now, letting tests drive silence timing.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// WithStartIndex sets the index of the first recording file.
func WithStartIndex(index int) Option {
	return func(r *Recorder) {
		r.index = index
	}
}

// New creates a recorder writing into dir. cues may be nil.
func New(source audioio.Source, settings config.SettingsProvider, cues CuePlayer, gain float64, dir string, logger zerolog.Logger, opts ...Option) *Recorder {
	if gain < 1 {
		gain = 1
	}
	r := &Recorder{
		source:   source,
		settings: settings,
		cues:     cues,
		gain:     gain,
		dir:      dir,
		logger:   logger.With().Str("component", "recorder").Logger(),
		now:      time.Now,
		state:    StateDone,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current recording state.
func (r *Recorder) State() State {
	return r.state
}

// Record captures frames until the trailing silence exceeds the configured
// duration, then writes recordings/recorded_audio_{index}.wav. Silence is
// judged on the raw frames; the stored audio is amplified.
func (r *Recorder) Record(ctx context.Context) (*Utterance, error) {
	// Settings may change between turns, never during one
	settings := r.settings.Current()
	tracker := audio.NewSilenceTracker(settings.SilenceThreshold, settings.SilenceWindow())
	cfg := r.source.Config()

	r.state = StateArmed
	if r.cues != nil {
		if err := r.cues.PlayStartCue(ctx); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to play start cue")
		}
	}

	r.state = StateRecording
	r.logger.Debug().
		Float64("silence_threshold", settings.SilenceThreshold).
		Float64("silence_duration", settings.SilenceDuration).
		Msg("Recording started")

	var samples []int16
	var recorded time.Duration
	frames := 0
	for {
		frame, err := r.source.Read(ctx)
		if err != nil {
			r.state = StateDone
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", ErrDeviceRead, err)
		}

		samples = append(samples, frame.Amplified(r.gain).Samples...)
		recorded += frame.Duration()
		frames++

		now := r.now()
		if _, ended := tracker.Observe(frame, now); ended {
			r.logger.Debug().Dur("silence", tracker.SilentFor(now)).Msg("Trailing silence reached")
			break
		}
	}

	r.state = StateFinalizing
	if r.cues != nil {
		if err := r.cues.PlayStopCue(ctx); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to play stop cue")
		}
	}

	index := r.index
	r.index++
	path := filepath.Join(r.dir, fmt.Sprintf("recorded_audio_%d.wav", index))

	channels := max(cfg.Channels, 1)
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		r.state = StateDone
		return nil, fmt.Errorf("%w: %v", ErrWriteUtterance, err)
	}
	data, err := audio.WriteWAVFile(path, samples, cfg.SampleRate, channels)
	r.state = StateDone
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriteUtterance, err)
	}

	utterance := &Utterance{
		Path:       path,
		Data:       data,
		Index:      index,
		Frames:     frames,
		SampleRate: cfg.SampleRate,
		Channels:   channels,
		Duration:   recorded,
	}

	r.logger.Info().
		Str("path", path).
		Int("frames", frames).
		Dur("duration", utterance.Duration).
		Msg("Recording finished")

	return utterance, nil
}
