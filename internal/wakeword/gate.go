package wakeword

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/audio"
)

// DefaultThreshold is the activation probability used when none is configured.
const DefaultThreshold = 0.5

// Classifier scores audio frames against a set of wake phrases. Scores depend
// on the classifier's own frame history, which Reset discards.
type Classifier interface {
	Score(ctx context.Context, frame audio.Frame) (map[string]float64, error)
	Reset(ctx context.Context) error
}

// Decision is the result of observing one frame.
type Decision struct {
	Triggered bool
	Keyword   string
	Score     float64
}

// Gate keeps a rolling window of scores per keyword and fires when any
// keyword's windowed maximum exceeds the threshold.
type Gate struct {
	classifier Classifier
	threshold  float64
	window     int
	logger     zerolog.Logger

	scores map[string]*ScoreWindow
}

// NewGate creates a gate over classifier.
func NewGate(classifier Classifier, threshold float64, window int, logger zerolog.Logger) *Gate {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Gate{
		classifier: classifier,
		threshold:  threshold,
		window:     window,
		logger:     logger.With().Str("component", "wakeword_gate").Logger(),
		scores:     make(map[string]*ScoreWindow),
	}
}

// Observe scores frame and reports whether a wake phrase fired. After a
// trigger the gate is reset, so the same buffered audio cannot fire twice.
func (g *Gate) Observe(ctx context.Context, frame audio.Frame) (Decision, error) {
	scores, err := g.classifier.Score(ctx, frame)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to score frame: %w", err)
	}

	for keyword, score := range scores {
		w, ok := g.scores[keyword]
		if !ok {
			w = NewScoreWindow(g.window)
			g.scores[keyword] = w
		}
		w.Push(score)
	}

	// Sorted so ties between keywords resolve the same way every time
	keywords := make([]string, 0, len(g.scores))
	for keyword := range g.scores {
		keywords = append(keywords, keyword)
	}
	sort.Strings(keywords)

	for _, keyword := range keywords {
		best := g.scores[keyword].Max()
		if best <= g.threshold {
			continue
		}

		g.logger.Info().
			Str("keyword", keyword).
			Float64("score", best).
			Msg("Wake word detected")

		if err := g.Reset(ctx); err != nil {
			g.logger.Warn().Err(err).Msg("Failed to reset classifier after trigger")
		}
		return Decision{Triggered: true, Keyword: keyword, Score: best}, nil
	}

	return Decision{}, nil
}

// Reset clears every keyword's window and the classifier's internal state.
// The windows are cleared even when the classifier reset fails.
func (g *Gate) Reset(ctx context.Context) error {
	for _, w := range g.scores {
		w.Clear()
	}
	if err := g.classifier.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset classifier: %w", err)
	}
	return nil
}

// Buffered returns how many scores are held for keyword.
func (g *Gate) Buffered(keyword string) int {
	w, ok := g.scores[keyword]
	if !ok {
		return 0
	}
	return w.Len()
}

// Threshold returns the activation threshold.
func (g *Gate) Threshold() float64 {
	return g.threshold
}
