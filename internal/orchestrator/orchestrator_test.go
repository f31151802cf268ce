package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/audio"
	"github.com/lexiqai/voice-assistant/internal/audioio"
	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/dialogue"
	"github.com/lexiqai/voice-assistant/internal/playback"
	"github.com/lexiqai/voice-assistant/internal/recorder"
	"github.com/lexiqai/voice-assistant/internal/resilience"
	"github.com/lexiqai/voice-assistant/internal/tts"
	"github.com/lexiqai/voice-assistant/internal/wakeword"
)

type staticSettings struct {
	settings config.Settings
}

func (s staticSettings) Current() config.Settings {
	return s.settings
}

// onceGate triggers on the first frame, then cancels the run on the first
// frame observed after the post-turn reset. With err set it fails every
// frame and cancels after a few.
type onceGate struct {
	cancel   context.CancelFunc
	observed int
	resets   int
	err      error
}

func (g *onceGate) Observe(ctx context.Context, frame audio.Frame) (wakeword.Decision, error) {
	g.observed++
	if g.resets > 0 {
		g.cancel()
		return wakeword.Decision{}, nil
	}
	if g.err != nil {
		if g.observed >= 5 {
			g.cancel()
		}
		return wakeword.Decision{}, g.err
	}
	if g.observed == 1 {
		return wakeword.Decision{Triggered: true, Keyword: "alexa", Score: 0.9}, nil
	}
	return wakeword.Decision{}, nil
}

func (g *onceGate) Reset(ctx context.Context) error {
	g.resets++
	return nil
}

type fakeTranscriber struct {
	text  string
	err   error
	calls int
	bytes int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, data []byte, filename string) (string, error) {
	f.calls++
	f.bytes = len(data)
	return f.text, f.err
}

type replyCompleter struct {
	reply string
	err   error
	calls int
}

func (c *replyCompleter) Complete(ctx context.Context, req dialogue.Request) (dialogue.Response, error) {
	c.calls++
	if c.err != nil {
		return dialogue.Response{}, c.err
	}
	return dialogue.Response{Content: c.reply}, nil
}

type constProvider struct {
	mu    sync.Mutex
	texts []string
}

func (p *constProvider) Name() string    { return "fake" }
func (p *constProvider) SampleRate() int { return 16000 }

func (p *constProvider) SynthesizeChunk(ctx context.Context, text string) ([]byte, error) {
	p.mu.Lock()
	p.texts = append(p.texts, text)
	p.mu.Unlock()
	return audio.SamplesToBytes([]int16{100, 200, 300}), nil
}

type harness struct {
	orch        *Orchestrator
	gate        *onceGate
	mic         *audioio.MockSource
	sink        *audioio.MockSink
	transcriber *fakeTranscriber
	completer   *replyCompleter
	provider    *constProvider
	engine      *dialogue.Engine
	recordings  string
	speech      string
	ctx         context.Context
}

func constantFrame(size int, value int16) []int16 {
	samples := make([]int16, size)
	for i := range samples {
		samples[i] = value
	}
	return samples
}

// newHarness scripts a wake frame, one loud frame, then silence. wrap may
// replace the microphone the orchestrator sees.
func newHarness(t *testing.T, wrap func(*audioio.MockSource) audioio.Source) *harness {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := &harness{
		gate:        &onceGate{cancel: cancel},
		sink:        audioio.NewMockSink(16000),
		transcriber: &fakeTranscriber{text: "What is the weather?"},
		completer:   &replyCompleter{reply: "It is sunny. Have a nice day."},
		provider:    &constProvider{},
		recordings:  t.TempDir(),
		speech:      t.TempDir(),
		ctx:         ctx,
	}

	cfg := audioio.DefaultConfig()
	now := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	var clockMu sync.Mutex
	advance := func(audio.Frame) {
		clockMu.Lock()
		now = now.Add(cfg.FrameDuration())
		clockMu.Unlock()
	}
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}

	h.mic = audioio.NewMockSource(cfg,
		audioio.WithScript(constantFrame(cfg.FrameSize, 0), constantFrame(cfg.FrameSize, 5000)),
		audioio.WithFill(10),
		audioio.WithReadHook(advance),
	)
	var source audioio.Source = h.mic
	if wrap != nil {
		source = wrap(h.mic)
	}

	settings := staticSettings{settings: config.Settings{SystemPrompt: "You are Bix.", SilenceThreshold: 1700, SilenceDuration: 0.5}}
	player := playback.NewController(h.sink, source, zerolog.Nop())
	h.engine = dialogue.NewEngine(h.completer, settings, zerolog.Nop())

	h.orch = New(Components{
		Source:      source,
		Gate:        h.gate,
		Recorder:    recorder.New(source, settings, player, 1.5, h.recordings, zerolog.Nop(), recorder.WithClock(clock)),
		Transcriber: h.transcriber,
		Engine:      h.engine,
		Synthesizer: tts.NewSynthesizer(h.provider, 500, 2, h.speech, zerolog.Nop()),
		Player:      player,
	}, zerolog.Nop(), WithReconnect(&resilience.ReconnectConfig{MaxAttempts: 3, Backoff: time.Millisecond, Multiplier: 1, MaxBackoff: time.Millisecond}))
	return h
}

func (h *harness) run(t *testing.T) {
	t.Helper()

	done := make(chan error, 1)
	go func() { done <- h.orch.Run(h.ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func dirEntries(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	return len(entries)
}

func TestOrchestrator_CompleteTurn(t *testing.T) {
	h := newHarness(t, nil)
	h.run(t)

	if h.orch.Turns() != 1 {
		t.Errorf("Expected 1 turn, got %d", h.orch.Turns())
	}
	if h.orch.State() != StateListening {
		t.Errorf("Expected to end in listening, got %s", h.orch.State())
	}

	if h.transcriber.calls != 1 || h.transcriber.bytes == 0 {
		t.Errorf("Expected one transcription of recorded audio, got %d calls with %d bytes", h.transcriber.calls, h.transcriber.bytes)
	}
	if len(h.engine.History()) != 2 {
		t.Errorf("Expected user and assistant entries, got %+v", h.engine.History())
	}
	if len(h.provider.texts) != 1 || h.provider.texts[0] != "It is sunny. Have a nice day." {
		t.Errorf("Expected reply to be synthesized, got %q", h.provider.texts)
	}

	// Start cue, stop cue, speech
	played := h.sink.Played()
	if len(played) != 3 {
		t.Fatalf("Expected 3 clips played, got %d", len(played))
	}
	if len(played[2]) != 3 {
		t.Errorf("Expected speech of 3 samples, got %d", len(played[2]))
	}

	// Started by Run and restarted once after playback
	if h.mic.Starts() != 2 || h.mic.Stops() < 1 {
		t.Errorf("Expected mic gated once, got %d starts and %d stops", h.mic.Starts(), h.mic.Stops())
	}

	if n := dirEntries(t, h.recordings); n != 0 {
		t.Errorf("Expected recording deleted, found %d files", n)
	}
	if n := dirEntries(t, h.speech); n != 0 {
		t.Errorf("Expected speech deleted, found %d files", n)
	}
	if h.gate.resets != 1 {
		t.Errorf("Expected gate reset after the turn, got %d", h.gate.resets)
	}
}

func TestOrchestrator_TranscriptionFailureReturnsToListening(t *testing.T) {
	h := newHarness(t, nil)
	h.transcriber.err = errors.New("groq unavailable")
	h.run(t)

	if h.completer.calls != 0 {
		t.Error("Expected no dialogue after failed transcription")
	}
	if len(h.sink.Played()) != 2 {
		t.Errorf("Expected only the cues to be played, got %d clips", len(h.sink.Played()))
	}
	if n := dirEntries(t, h.recordings); n != 0 {
		t.Errorf("Expected recording deleted, found %d files", n)
	}
	if h.orch.State() != StateListening {
		t.Errorf("Expected listening, got %s", h.orch.State())
	}
}

func TestOrchestrator_EmptyTranscription(t *testing.T) {
	h := newHarness(t, nil)
	h.transcriber.text = "   "
	h.run(t)

	if h.completer.calls != 0 {
		t.Error("Expected no dialogue for empty transcription")
	}
	if len(h.provider.texts) != 0 {
		t.Error("Expected nothing synthesized")
	}
}

func TestOrchestrator_DialogueFailureKeepsHistory(t *testing.T) {
	h := newHarness(t, nil)
	h.completer.err = errors.New("rate limited")
	h.run(t)

	if len(h.engine.History()) != 0 {
		t.Errorf("Expected history untouched, got %+v", h.engine.History())
	}
	if len(h.provider.texts) != 0 {
		t.Error("Expected nothing synthesized after failed dialogue")
	}
	if h.orch.Turns() != 1 {
		t.Errorf("Expected 1 turn, got %d", h.orch.Turns())
	}
}

func TestOrchestrator_GateErrorsDoNotStopLoop(t *testing.T) {
	h := newHarness(t, nil)
	h.gate.err = errors.New("scorer down")
	h.run(t)

	if h.gate.observed != 5 {
		t.Errorf("Expected to keep observing after errors, got %d frames", h.gate.observed)
	}
	if h.orch.Turns() != 0 {
		t.Errorf("Expected no turns, got %d", h.orch.Turns())
	}
}

// flakySource fails one read and then behaves.
type flakySource struct {
	*audioio.MockSource
	mu     sync.Mutex
	failed bool
}

func (s *flakySource) Read(ctx context.Context) (audio.Frame, error) {
	s.mu.Lock()
	fail := !s.failed
	s.failed = true
	s.mu.Unlock()
	if fail {
		return audio.Frame{}, fmt.Errorf("input overflowed")
	}
	return s.MockSource.Read(ctx)
}

func TestOrchestrator_ReopensMicAfterReadError(t *testing.T) {
	h := newHarness(t, func(mock *audioio.MockSource) audioio.Source {
		return &flakySource{MockSource: mock}
	})
	h.run(t)

	// Run, reconnect, playback restart
	if h.mic.Starts() != 3 {
		t.Errorf("Expected 3 starts, got %d", h.mic.Starts())
	}
	if h.orch.Turns() != 1 {
		t.Errorf("Expected the turn to run after reconnecting, got %d", h.orch.Turns())
	}
}

func TestOrchestrator_MicUnavailable(t *testing.T) {
	h := newHarness(t, func(mock *audioio.MockSource) audioio.Source {
		mock.Close()
		return mock
	})
	if err := h.orch.Run(h.ctx); err == nil {
		t.Error("Expected error when the microphone cannot start")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: boom", recorder.ErrDeviceRead), ErrorClassIO},
		{fmt.Errorf("%w: disk full", recorder.ErrWriteUtterance), ErrorClassIO},
		{dialogue.ErrNoChoices, ErrorClassProtocol},
		{&tts.APIError{Provider: "openai", StatusCode: 500}, ErrorClassService},
		{tts.ErrNothingSynthesized, ErrorClassService},
		{&os.PathError{Op: "open", Path: "x", Err: os.ErrNotExist}, ErrorClassIO},
	}

	for _, tt := range tests {
		if got := classifyError(tt.err); got != tt.want {
			t.Errorf("classifyError(%v): expected %s, got %s", tt.err, tt.want, got)
		}
	}
}

func TestState_String(t *testing.T) {
	if StatePlaying.String() != "playing" || State(42).String() != "unknown" {
		t.Error("Unexpected state names")
	}
}
