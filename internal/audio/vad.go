package audio

import (
	"time"
)

// SilenceTracker decides when a recording has gone quiet for long enough.
// A frame is silent when its peak magnitude is below the threshold; the
// recording ends once silence has lasted longer than the configured duration.
type SilenceTracker struct {
	threshold    float64
	duration     time.Duration
	silenceStart time.Time
}

// NewSilenceTracker creates a tracker for one recording.
func NewSilenceTracker(threshold float64, duration time.Duration) *SilenceTracker {
	return &SilenceTracker{
		threshold: threshold,
		duration:  duration,
	}
}

// Observe processes a frame captured at now.
// Returns: (silent, ended)
func (s *SilenceTracker) Observe(frame Frame, now time.Time) (bool, bool) {
	if !frame.IsSilent(s.threshold) {
		s.silenceStart = time.Time{}
		return false, false
	}

	if s.silenceStart.IsZero() {
		s.silenceStart = now
		return true, false
	}

	return true, now.Sub(s.silenceStart) > s.duration
}

// SilentFor reports how long the current run of silence has lasted at now.
func (s *SilenceTracker) SilentFor(now time.Time) time.Duration {
	if s.silenceStart.IsZero() {
		return 0
	}
	return now.Sub(s.silenceStart)
}
