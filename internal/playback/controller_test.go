package playback

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/audio"
	"github.com/lexiqai/voice-assistant/internal/audioio"
	"github.com/lexiqai/voice-assistant/internal/tts"
)

func writeArtifact(t *testing.T, samples []int16) *tts.Artifact {
	t.Helper()
	path := filepath.Join(t.TempDir(), "speech.wav")
	if _, err := audio.WriteWAVFile(path, samples, 16000, 1); err != nil {
		t.Fatalf("Failed to write artifact: %v", err)
	}
	return &tts.Artifact{Path: path, SampleRate: 16000, Chunks: 1}
}

func startedMic(t *testing.T) *audioio.MockSource {
	t.Helper()
	mic := audioio.NewMockSource(audioio.DefaultConfig(), audioio.WithFill(0))
	if err := mic.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return mic
}

func TestController_GatesMicDuringPlayback(t *testing.T) {
	mic := startedMic(t)

	var micRunningDuringPlay atomic.Bool
	micRunningDuringPlay.Store(true)
	sink := audioio.NewMockSink(16000,
		audioio.WithPlayDelay(50*time.Millisecond),
		audioio.WithPlayHook(func([]int16) { micRunningDuringPlay.Store(mic.Running()) }),
	)
	controller := NewController(sink, mic, zerolog.Nop())
	artifact := writeArtifact(t, []int16{1, 2, 3, 4})

	handle, err := controller.Play(context.Background(), artifact)
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if !handle.Playing() {
		t.Error("Expected handle to report playing")
	}
	if err := handle.Wait(); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}

	if micRunningDuringPlay.Load() {
		t.Error("Expected microphone stopped while playing")
	}
	if handle.Playing() {
		t.Error("Expected playback to be over after Wait")
	}
	if !mic.Running() {
		t.Error("Expected microphone running after playback")
	}
	if mic.Starts() != 2 || mic.Stops() != 1 {
		t.Errorf("Expected one stop and one restart, got %d starts and %d stops", mic.Starts(), mic.Stops())
	}

	if _, err := os.Stat(artifact.Path); !os.IsNotExist(err) {
		t.Error("Expected artifact deleted after playback")
	}

	played := sink.Played()
	if len(played) != 1 || len(played[0]) != 4 {
		t.Errorf("Expected the artifact samples to be played, got %v", played)
	}
}

func TestController_PlaybackErrorStillRestartsMic(t *testing.T) {
	mic := startedMic(t)
	sink := audioio.NewMockSink(16000, audioio.WithPlayError(errors.New("device unplugged")))
	controller := NewController(sink, mic, zerolog.Nop())
	artifact := writeArtifact(t, []int16{1, 2})

	handle, err := controller.Play(context.Background(), artifact)
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if err := handle.Wait(); err == nil {
		t.Error("Expected playback error from Wait")
	}

	if !mic.Running() || mic.Starts() != 2 {
		t.Errorf("Expected microphone restarted once, got %d starts", mic.Starts())
	}
	if _, err := os.Stat(artifact.Path); !os.IsNotExist(err) {
		t.Error("Expected artifact deleted after failed playback")
	}
}

func TestController_CancelledPlaybackRestartsMic(t *testing.T) {
	mic := startedMic(t)
	sink := audioio.NewMockSink(16000, audioio.WithPlayDelay(time.Second))
	controller := NewController(sink, mic, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	handle, err := controller.Play(ctx, writeArtifact(t, []int16{1}))
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	cancel()

	select {
	case <-handle.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Expected playback to stop on cancel")
	}
	if !mic.Running() {
		t.Error("Expected microphone restarted after cancel")
	}
}

func TestController_MissingArtifact(t *testing.T) {
	mic := startedMic(t)
	controller := NewController(audioio.NewMockSink(16000), mic, zerolog.Nop())

	artifact := &tts.Artifact{Path: filepath.Join(t.TempDir(), "missing.wav"), SampleRate: 16000}
	if _, err := controller.Play(context.Background(), artifact); err == nil {
		t.Fatal("Expected error for missing artifact")
	}
	if mic.Stops() != 0 {
		t.Error("Expected microphone untouched when nothing can be played")
	}
}

func TestController_Cues(t *testing.T) {
	sink := audioio.NewMockSink(16000)
	controller := NewController(sink, startedMic(t), zerolog.Nop())

	ctx := context.Background()
	for _, play := range []func(context.Context) error{
		controller.PlayStartCue, controller.PlayStopCue, controller.PlayStartupCue,
	} {
		if err := play(ctx); err != nil {
			t.Fatalf("Cue failed: %v", err)
		}
	}

	played := sink.Played()
	if len(played) != 3 {
		t.Fatalf("Expected 3 cues, got %d", len(played))
	}
	// 100 ms at 16 kHz
	for i, cue := range played {
		if len(cue) != 1600 {
			t.Errorf("Cue %d: expected 1600 samples, got %d", i, len(cue))
		}
	}
}
