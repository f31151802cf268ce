package stt

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyAudio is returned when there is nothing to transcribe.
var ErrEmptyAudio = errors.New("no audio to transcribe")

// Transcriber converts one recorded utterance into text. audio is a complete
// WAV file; filename is used where the service needs one for the upload.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// APIError is a failed request to a transcription service.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s transcription failed: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s transcription failed (status %d): %s", e.Provider, e.StatusCode, e.Message)
}
