package audio

import (
	"time"
)

// Frame is one fixed-length block of interleaved 16-bit samples as read from
// the microphone. Frames are treated as immutable once captured; processing
// steps return new frames.
type Frame struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Bytes encodes the frame as little-endian PCM16.
func (f Frame) Bytes() []byte {
	return SamplesToBytes(f.Samples)
}

// Duration is the playback length of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	channels := f.Channels
	if channels <= 0 {
		channels = 1
	}
	perChannel := len(f.Samples) / channels
	return time.Duration(perChannel) * time.Second / time.Duration(f.SampleRate)
}

// Peak returns the largest absolute sample value in the frame.
func (f Frame) Peak() int {
	return Peak(f.Samples)
}

// IsSilent reports whether every sample's magnitude is below threshold.
func (f Frame) IsSilent(threshold float64) bool {
	return float64(f.Peak()) < threshold
}

// Amplified returns a copy of the frame with gain applied.
func (f Frame) Amplified(gain float64) Frame {
	return Frame{Samples: Amplify(f.Samples, gain), SampleRate: f.SampleRate, Channels: f.Channels}
}
