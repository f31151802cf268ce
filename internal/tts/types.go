package tts

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrEmptyText is returned when there is nothing to speak.
	ErrEmptyText = errors.New("no text to synthesize")

	// ErrNothingSynthesized is returned when every chunk failed.
	ErrNothingSynthesized = errors.New("no chunk could be synthesized")
)

// Provider is a speech synthesis service. SynthesizeChunk returns raw mono
// 16-bit little-endian PCM at SampleRate.
type Provider interface {
	Name() string
	SampleRate() int
	SynthesizeChunk(ctx context.Context, text string) ([]byte, error)
}

// APIError is a failed request to a synthesis service.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s synthesis failed: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s synthesis failed (status %d): %s", e.Provider, e.StatusCode, e.Message)
}
