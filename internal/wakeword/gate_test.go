package wakeword

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/audio"
)

// scriptedClassifier returns one score map per call, then zeros.
type scriptedClassifier struct {
	scores []map[string]float64
	calls  int
	resets int
	err    error
}

func (c *scriptedClassifier) Score(ctx context.Context, frame audio.Frame) (map[string]float64, error) {
	if c.err != nil {
		return nil, c.err
	}
	defer func() { c.calls++ }()
	if c.calls < len(c.scores) {
		return c.scores[c.calls], nil
	}
	return map[string]float64{"hey_jarvis": 0, "alexa": 0}, nil
}

func (c *scriptedClassifier) Reset(ctx context.Context) error {
	c.resets++
	return nil
}

func silentFrame() audio.Frame {
	return audio.Frame{Samples: make([]int16, 16), SampleRate: 16000, Channels: 1}
}

func TestScoreWindow(t *testing.T) {
	w := NewScoreWindow(3)
	if w.Max() != 0 || w.Len() != 0 {
		t.Error("Expected empty window")
	}

	for _, v := range []float64{0.9, 0.1, 0.2, 0.3} {
		w.Push(v)
	}

	if w.Len() != 3 {
		t.Errorf("Expected 3 scores, got %d", w.Len())
	}
	if w.Max() != 0.3 {
		t.Errorf("Expected oldest score to be evicted, max got %f", w.Max())
	}
	w.Push(0.05)
	if w.Max() != 0.3 {
		t.Errorf("Expected 0.3 to remain buffered, got %f", w.Max())
	}

	w.Clear()
	if w.Len() != 0 {
		t.Errorf("Expected cleared window, got %d", w.Len())
	}
}

func TestGate_NeverTriggersBelowThreshold(t *testing.T) {
	classifier := &scriptedClassifier{}
	for i := 0; i < 50; i++ {
		classifier.scores = append(classifier.scores, map[string]float64{"hey_jarvis": 0.5, "alexa": 0.49})
	}
	gate := NewGate(classifier, 0.5, 30, zerolog.Nop())

	for i := 0; i < 50; i++ {
		decision, err := gate.Observe(context.Background(), silentFrame())
		if err != nil {
			t.Fatalf("Observe failed: %v", err)
		}
		if decision.Triggered {
			t.Fatalf("Expected no trigger at frame %d", i)
		}
	}
	if classifier.resets != 0 {
		t.Errorf("Expected no classifier reset, got %d", classifier.resets)
	}
}

func TestGate_TriggersOncePerQualifyingFrame(t *testing.T) {
	classifier := &scriptedClassifier{scores: []map[string]float64{
		{"hey_jarvis": 0.1, "alexa": 0.2},
		{"hey_jarvis": 0.8, "alexa": 0.3},
		{"hey_jarvis": 0.1, "alexa": 0.1},
		{"hey_jarvis": 0.1, "alexa": 0.1},
	}}
	gate := NewGate(classifier, 0.5, 30, zerolog.Nop())

	triggers := 0
	for i := 0; i < 4; i++ {
		decision, err := gate.Observe(context.Background(), silentFrame())
		if err != nil {
			t.Fatalf("Observe failed: %v", err)
		}
		if decision.Triggered {
			triggers++
			if i != 1 {
				t.Errorf("Expected trigger on frame 1, got frame %d", i)
			}
			if decision.Keyword != "hey_jarvis" || decision.Score != 0.8 {
				t.Errorf("Unexpected decision %+v", decision)
			}
		}
	}

	// Without the reset the 0.8 would stay in the window and fire again
	if triggers != 1 {
		t.Errorf("Expected exactly 1 trigger, got %d", triggers)
	}
	if classifier.resets != 1 {
		t.Errorf("Expected 1 classifier reset, got %d", classifier.resets)
	}
}

func TestGate_ResetClearsAllKeywords(t *testing.T) {
	classifier := &scriptedClassifier{scores: []map[string]float64{
		{"hey_jarvis": 0.1, "alexa": 0.2},
		{"hey_jarvis": 0.2, "alexa": 0.9},
	}}
	gate := NewGate(classifier, 0.5, 30, zerolog.Nop())

	gate.Observe(context.Background(), silentFrame())
	if gate.Buffered("hey_jarvis") != 1 {
		t.Fatalf("Expected 1 buffered score, got %d", gate.Buffered("hey_jarvis"))
	}

	decision, _ := gate.Observe(context.Background(), silentFrame())
	if !decision.Triggered || decision.Keyword != "alexa" {
		t.Fatalf("Expected alexa trigger, got %+v", decision)
	}

	if gate.Buffered("hey_jarvis") != 0 || gate.Buffered("alexa") != 0 {
		t.Errorf("Expected every keyword window cleared, got hey_jarvis=%d alexa=%d",
			gate.Buffered("hey_jarvis"), gate.Buffered("alexa"))
	}
}

func TestGate_WindowKeepsRecentMax(t *testing.T) {
	classifier := &scriptedClassifier{scores: []map[string]float64{
		{"hey_jarvis": 0.4},
		{"hey_jarvis": 0.45},
	}}
	gate := NewGate(classifier, 0.5, 2, zerolog.Nop())

	for i := 0; i < 5; i++ {
		gate.Observe(context.Background(), silentFrame())
	}
	if gate.Buffered("hey_jarvis") != 2 {
		t.Errorf("Expected window bounded at 2, got %d", gate.Buffered("hey_jarvis"))
	}
}

func TestGate_ClassifierError(t *testing.T) {
	classifier := &scriptedClassifier{err: errors.New("unavailable")}
	gate := NewGate(classifier, 0, 30, zerolog.Nop())

	if gate.Threshold() != DefaultThreshold {
		t.Errorf("Expected default threshold, got %f", gate.Threshold())
	}

	decision, err := gate.Observe(context.Background(), silentFrame())
	if err == nil {
		t.Error("Expected error from failing classifier")
	}
	if decision.Triggered {
		t.Error("Expected no trigger on error")
	}
}
