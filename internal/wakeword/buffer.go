package wakeword

// ScoreWindow is a fixed-size ring of the most recent classifier scores for
// one keyword. It is owned by a single Gate and is not safe for concurrent use.
type ScoreWindow struct {
	buffer []float64
	size   int
	write  int
	count  int
}

// NewScoreWindow creates a window holding the last size scores.
func NewScoreWindow(size int) *ScoreWindow {
	if size <= 0 {
		size = 1
	}
	return &ScoreWindow{
		buffer: make([]float64, size),
		size:   size,
	}
}

// Push appends a score, overwriting the oldest once the window is full.
func (w *ScoreWindow) Push(score float64) {
	w.buffer[w.write] = score
	w.write = (w.write + 1) % w.size
	if w.count < w.size {
		w.count++
	}
}

// Max returns the highest score in the window, or 0 when empty.
func (w *ScoreWindow) Max() float64 {
	if w.count == 0 {
		return 0
	}
	start := (w.write - w.count + w.size) % w.size
	best := w.buffer[start]
	for i := 1; i < w.count; i++ {
		if v := w.buffer[(start+i)%w.size]; v > best {
			best = v
		}
	}
	return best
}

// Len returns the number of buffered scores.
func (w *ScoreWindow) Len() int {
	return w.count
}

// Clear empties the window.
func (w *ScoreWindow) Clear() {
	w.write = 0
	w.count = 0
}
