package orchestrator

import (
	"context"
	"errors"
	"io/fs"

	"github.com/lexiqai/voice-assistant/internal/audio"
	"github.com/lexiqai/voice-assistant/internal/audioio"
	"github.com/lexiqai/voice-assistant/internal/dialogue"
	"github.com/lexiqai/voice-assistant/internal/playback"
	"github.com/lexiqai/voice-assistant/internal/recorder"
	"github.com/lexiqai/voice-assistant/internal/tools"
	"github.com/lexiqai/voice-assistant/internal/tts"
	"github.com/lexiqai/voice-assistant/internal/wakeword"
)

// State is the orchestrator's position in the turn cycle.
type State int

const (
	StateListening State = iota
	StateCapturing
	StateTranscribing
	StateDialoguing
	StateSynthesizing
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateCapturing:
		return "capturing"
	case StateTranscribing:
		return "transcribing"
	case StateDialoguing:
		return "dialoguing"
	case StateSynthesizing:
		return "synthesizing"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// Turn outcomes, used as the "outcome" metric label
const (
	OutcomeCompleted = "completed"
	OutcomeEmpty     = "empty"
	OutcomeAborted   = "aborted"
	OutcomeCancelled = "cancelled"
)

// Error classes
const (
	ErrorClassIO       = "io"
	ErrorClassService  = "service"
	ErrorClassProtocol = "protocol"
)

// Gate decides when a wake phrase has been spoken.
type Gate interface {
	Observe(ctx context.Context, frame audio.Frame) (wakeword.Decision, error)
	Reset(ctx context.Context) error
}

// Recorder captures one utterance.
type Recorder interface {
	Record(ctx context.Context) (*recorder.Utterance, error)
}

// Responder produces the assistant's reply to a transcript.
type Responder interface {
	Respond(ctx context.Context, text string) (string, error)
}

// Synthesizer turns a reply into a speech artifact.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*tts.Artifact, error)
}

// Player plays an artifact with the microphone gated.
type Player interface {
	Play(ctx context.Context, artifact *tts.Artifact) (*playback.Handle, error)
}

// classifyError maps a stage failure onto an error class.
func classifyError(err error) string {
	switch {
	case errors.Is(err, recorder.ErrDeviceRead),
		errors.Is(err, recorder.ErrWriteUtterance),
		errors.Is(err, audioio.ErrNotRunning),
		errors.Is(err, audioio.ErrClosed):
		return ErrorClassIO
	case errors.Is(err, dialogue.ErrNoChoices),
		errors.Is(err, tools.ErrInvalidArguments):
		return ErrorClassProtocol
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return ErrorClassIO
	}
	return ErrorClassService
}
