// Package orchestrator runs the assistant: it listens for the wake phrase and
// drives each turn through capture, transcription, dialogue, synthesis and
// playback before going back to listening.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/audioio"
	"github.com/lexiqai/voice-assistant/internal/observability"
	"github.com/lexiqai/voice-assistant/internal/resilience"
	"github.com/lexiqai/voice-assistant/internal/stt"
	"github.com/lexiqai/voice-assistant/internal/wakeword"
)

// Components are the collaborators of one session.
type Components struct {
	Source      audioio.Source
	Gate        Gate
	Recorder    Recorder
	Transcriber stt.Transcriber
	Engine      Responder
	Synthesizer Synthesizer
	Player      Player

	// StartupCue is played once when listening starts. Optional.
	StartupCue func(ctx context.Context) error
}

// Orchestrator owns a session: the gate's score buffers and the dialogue
// history live as long as it does. Turns run one at a time on the goroutine
// that called Run.
type Orchestrator struct {
	Components

	reconnect *resilience.ReconnectConfig
	logger    zerolog.Logger

	mu    sync.RWMutex
	state State
	turns int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithReconnect sets how the microphone is reopened after a read error.
func WithReconnect(cfg *resilience.ReconnectConfig) Option {
	return func(o *Orchestrator) {
		o.reconnect = cfg
	}
}

// New creates an orchestrator in the Listening state.
func New(c Components, logger zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		Components: c,
		reconnect:  resilience.DefaultReconnectConfig(),
		logger:     logger.With().Str("component", "orchestrator").Logger(),
		state:      StateListening,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Turns returns how many turns have started.
func (o *Orchestrator) Turns() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.turns
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	observability.SetState(int(s))
	o.logger.Debug().Str("state", s.String()).Msg("State changed")
}

// Run listens until ctx is cancelled. A failed turn never ends the loop; Run
// returns an error only when the microphone cannot be opened or reopened.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.Source.Start(ctx); err != nil {
		return fmt.Errorf("failed to start microphone: %w", err)
	}
	defer o.Source.Stop()

	o.setState(StateListening)
	if o.StartupCue != nil {
		if err := o.StartupCue(ctx); err != nil {
			o.logger.Warn().Err(err).Msg("Failed to play startup cue")
		}
	}
	o.logger.Info().Msg("Listening for wake words")

	for {
		if ctx.Err() != nil {
			o.logger.Info().Int("turns", o.Turns()).Msg("Stopped listening")
			return nil
		}

		frame, err := o.Source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			if err := o.reopenSource(ctx, err); err != nil {
				return err
			}
			continue
		}

		decision, err := o.Gate.Observe(ctx, frame)
		if err != nil {
			o.logger.Warn().Err(err).Msg("Wake word scoring failed")
			observability.RecordError(ErrorClassService, "wakeword")
			continue
		}
		if !decision.Triggered {
			continue
		}

		observability.RecordWakewordTrigger(decision.Keyword)
		o.runTurn(ctx, decision)
	}
}

func (o *Orchestrator) reopenSource(ctx context.Context, cause error) error {
	o.logger.Warn().Err(cause).Msg("Microphone read failed, reopening")
	observability.RecordError(ErrorClassIO, "microphone")

	err := resilience.Reconnect(ctx, func(ctx context.Context) error {
		o.Source.Stop()
		return o.Source.Start(ctx)
	}, o.reconnect, o.logger)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("microphone unavailable: %w", err)
	}
	return nil
}

// runTurn runs one turn and always comes back to Listening.
func (o *Orchestrator) runTurn(ctx context.Context, decision wakeword.Decision) {
	metrics := observability.NewTurnMetrics(observability.NewTurnID())
	logger := observability.WithTurnID(o.logger, metrics.TurnID())

	o.mu.Lock()
	o.turns++
	o.mu.Unlock()

	logger.Info().Str("keyword", decision.Keyword).Float64("score", decision.Score).Msg("Turn started")
	start := time.Now()

	outcome := o.turn(ctx, logger, metrics)

	// Drop anything the classifier accumulated before or during the turn
	if err := o.Gate.Reset(context.WithoutCancel(ctx)); err != nil {
		logger.Warn().Err(err).Msg("Failed to reset wake word gate")
	}

	metrics.RecordTurnEnd(outcome)
	o.setState(StateListening)
	logger.Info().Str("outcome", outcome).Dur("duration", time.Since(start)).Msg("Turn finished")
}

// turn runs the stages in order. Device stages stop as soon as ctx is
// cancelled; service calls already in flight run to completion, and no
// further stage starts afterwards.
func (o *Orchestrator) turn(ctx context.Context, logger zerolog.Logger, metrics *observability.TurnMetrics) string {
	calls := context.WithoutCancel(ctx)

	abort := func(stage string, err error) string {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			logger.Info().Str("stage", stage).Msg("Turn cancelled")
			return OutcomeCancelled
		}
		class := classifyError(err)
		logger.Error().Err(err).Str("stage", stage).Str("class", class).Msg("Turn aborted")
		metrics.RecordError(class, stage)
		return OutcomeAborted
	}

	// Capture
	o.setState(StateCapturing)
	metrics.RecordStageStart(observability.StageCapture)
	utterance, err := o.Recorder.Record(ctx)
	metrics.RecordStageEnd(observability.StageCapture, err == nil)
	if err != nil {
		return abort(observability.StageCapture, err)
	}
	metrics.RecordAudioSeconds("in", utterance.Duration.Seconds())
	logger.Debug().Str("path", utterance.Path).Dur("duration", utterance.Duration).Msg("Utterance recorded")
	if ctx.Err() != nil {
		utterance.Remove()
		return OutcomeCancelled
	}

	// Transcribe
	o.setState(StateTranscribing)
	metrics.RecordStageStart(observability.StageTranscribe)
	text, err := o.Transcriber.Transcribe(calls, utterance.Data, filepath.Base(utterance.Path))
	metrics.RecordStageEnd(observability.StageTranscribe, err == nil)
	if rmErr := utterance.Remove(); rmErr != nil {
		logger.Warn().Err(rmErr).Str("path", utterance.Path).Msg("Failed to delete recording")
	}
	if err != nil {
		return abort(observability.StageTranscribe, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		logger.Info().Msg("Nothing was said")
		return OutcomeEmpty
	}
	logger.Info().Str("transcription", text).Msg("Transcription")
	if ctx.Err() != nil {
		return OutcomeCancelled
	}

	// Dialogue
	o.setState(StateDialoguing)
	metrics.RecordStageStart(observability.StageDialogue)
	reply, err := o.Engine.Respond(calls, text)
	metrics.RecordStageEnd(observability.StageDialogue, err == nil)
	if err != nil {
		return abort(observability.StageDialogue, err)
	}
	if strings.TrimSpace(reply) == "" {
		logger.Info().Msg("Empty reply, nothing to say")
		return OutcomeEmpty
	}
	if ctx.Err() != nil {
		return OutcomeCancelled
	}

	// Synthesize
	o.setState(StateSynthesizing)
	metrics.RecordStageStart(observability.StageSynthesize)
	artifact, err := o.Synthesizer.Synthesize(calls, reply)
	metrics.RecordStageEnd(observability.StageSynthesize, err == nil)
	if err != nil {
		return abort(observability.StageSynthesize, err)
	}
	if ctx.Err() != nil {
		artifact.Remove()
		return OutcomeCancelled
	}

	// Play; the handle blocks us until the microphone is back
	o.setState(StatePlaying)
	metrics.RecordStageStart(observability.StagePlayback)
	handle, err := o.Player.Play(ctx, artifact)
	if err == nil {
		err = handle.Wait()
	}
	metrics.RecordStageEnd(observability.StagePlayback, err == nil)
	if err != nil {
		return abort(observability.StagePlayback, err)
	}
	metrics.RecordAudioSeconds("out", artifact.Duration.Seconds())

	return OutcomeCompleted
}
