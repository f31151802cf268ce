package audio

import (
	"math"
	"time"
)

// Tone synthesizes a sine wave at freq Hz. amplitude is a fraction of full
// scale in [0, 1].
func Tone(freq float64, duration time.Duration, sampleRate int, amplitude float64) []int16 {
	if sampleRate <= 0 || duration <= 0 {
		return nil
	}
	if amplitude > 1 {
		amplitude = 1
	}

	n := int(duration.Seconds() * float64(sampleRate))
	samples := make([]int16, n)
	for i := range samples {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		samples[i] = clip(v * math.MaxInt16)
	}
	return samples
}
