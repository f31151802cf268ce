// Package playback plays speech and cue tones through the speaker while
// keeping the microphone closed, so the assistant never hears itself.
package playback

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/audio"
	"github.com/lexiqai/voice-assistant/internal/audioio"
	"github.com/lexiqai/voice-assistant/internal/tts"
)

// Cue tones
const (
	StartCueHz   = 800
	StopCueHz    = 250
	StartupCueHz = 300
	CueDuration  = 100 * time.Millisecond

	cueAmplitude = 0.5
)

// Controller owns the speaker. Only one Play runs at a time.
type Controller struct {
	sink   audioio.Sink
	mic    audioio.Source
	logger zerolog.Logger

	mu sync.Mutex // serializes sink use
}

// NewController creates a controller that gates mic while speech plays.
func NewController(sink audioio.Sink, mic audioio.Source, logger zerolog.Logger) *Controller {
	return &Controller{
		sink:   sink,
		mic:    mic,
		logger: logger.With().Str("component", "playback").Logger(),
	}
}

// Handle tracks one playback.
type Handle struct {
	playing atomic.Bool
	done    chan struct{}
	err     error
}

// Playing reports whether audio is still coming out of the speaker or the
// microphone has not been restarted yet.
func (h *Handle) Playing() bool {
	return h.playing.Load()
}

// Done is closed when playback has finished and the microphone is back.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until playback finishes and returns its error.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Play stops the microphone, then plays artifact in the background. When
// playback ends the microphone is restarted exactly once and the artifact is
// deleted, whether or not playback succeeded. An error from stopping the
// microphone is returned before anything is played.
func (c *Controller) Play(ctx context.Context, artifact *tts.Artifact) (*Handle, error) {
	samples, err := artifact.Samples()
	if err != nil {
		c.removeArtifact(artifact)
		return nil, fmt.Errorf("failed to read speech: %w", err)
	}

	if err := c.mic.Stop(); err != nil {
		c.removeArtifact(artifact)
		return nil, fmt.Errorf("failed to stop microphone: %w", err)
	}

	h := &Handle{done: make(chan struct{})}
	h.playing.Store(true)

	go func() {
		defer close(h.done)

		start := time.Now()
		c.mu.Lock()
		playErr := c.sink.Play(ctx, samples, artifact.SampleRate)
		c.mu.Unlock()
		if playErr != nil {
			c.logger.Error().Err(playErr).Msg("Playback failed")
			h.err = fmt.Errorf("playback failed: %w", playErr)
		} else {
			c.logger.Debug().Dur("elapsed", time.Since(start)).Dur("duration", artifact.Duration).Msg("Playback finished")
		}

		// Restart even if the turn was cancelled; the loop still needs a mic
		if err := c.mic.Start(context.WithoutCancel(ctx)); err != nil {
			c.logger.Error().Err(err).Msg("Failed to restart microphone")
			if h.err == nil {
				h.err = fmt.Errorf("failed to restart microphone: %w", err)
			}
		}
		h.playing.Store(false)

		c.removeArtifact(artifact)
	}()

	return h, nil
}

func (c *Controller) removeArtifact(artifact *tts.Artifact) {
	if err := artifact.Remove(); err != nil {
		c.logger.Warn().Err(err).Str("path", artifact.Path).Msg("Failed to delete speech file")
	}
}

// PlayCue plays a short sine tone and blocks until it has finished.
func (c *Controller) PlayCue(ctx context.Context, freq float64) error {
	rate := c.sink.SampleRate()
	tone := audio.Tone(freq, CueDuration, rate, cueAmplitude)

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sink.Play(ctx, tone, rate)
}

// PlayStartCue marks the start of a recording.
func (c *Controller) PlayStartCue(ctx context.Context) error {
	return c.PlayCue(ctx, StartCueHz)
}

// PlayStopCue marks the end of a recording.
func (c *Controller) PlayStopCue(ctx context.Context) error {
	return c.PlayCue(ctx, StopCueHz)
}

// PlayStartupCue tells the user the assistant is listening.
func (c *Controller) PlayStartupCue(ctx context.Context) error {
	return c.PlayCue(ctx, StartupCueHz)
}
