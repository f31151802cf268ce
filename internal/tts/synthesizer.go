// Package tts turns reply text into one playable speech file. The text is
// split into sentence-aligned chunks that are synthesized concurrently and
// reassembled in their original order.
package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/voice-assistant/internal/audio"
	"github.com/lexiqai/voice-assistant/internal/observability"
)

// DefaultWorkers is the number of chunks synthesized at once.
const DefaultWorkers = 4

// Artifact is an assembled speech file. It is owned by whoever plays it.
type Artifact struct {
	Path       string
	SampleRate int
	Chunks     int
	Omitted    []int // indexes of chunks that failed
	Duration   time.Duration
}

// Samples reads the artifact's audio.
func (a *Artifact) Samples() ([]int16, error) {
	samples, _, _, err := audio.ReadWAVFile(a.Path)
	return samples, err
}

// Remove deletes the artifact file.
func (a *Artifact) Remove() error {
	if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Synthesizer fans chunks out to a Provider.
type Synthesizer struct {
	provider Provider
	maxChars int
	workers  int
	dir      string
	logger   zerolog.Logger
}

// NewSynthesizer creates a synthesizer writing artifacts to dir. An empty dir
// means the OS temp directory.
func NewSynthesizer(provider Provider, maxChars, workers int, dir string, logger zerolog.Logger) *Synthesizer {
	if maxChars <= 0 {
		maxChars = DefaultMaxChunkChars
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if dir == "" {
		dir = os.TempDir()
	}
	return &Synthesizer{
		provider: provider,
		maxChars: maxChars,
		workers:  workers,
		dir:      dir,
		logger:   logger.With().Str("component", "tts").Str("provider", provider.Name()).Logger(),
	}
}

// Synthesize speaks text into a new artifact. Chunks that fail are left out
// and listed in Artifact.Omitted; ErrNothingSynthesized is returned only when
// every chunk failed.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (*Artifact, error) {
	chunks := Chunk(text, s.maxChars)
	if len(chunks) == 0 {
		return nil, ErrEmptyText
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create speech directory: %w", err)
	}
	workDir, err := os.MkdirTemp(s.dir, "tts-chunks-")
	if err != nil {
		return nil, fmt.Errorf("failed to create chunk directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			s.logger.Warn().Err(err).Str("dir", workDir).Msg("Failed to remove chunk files")
		}
	}()

	// One slot per chunk; each worker writes only its own index
	slots := make([]string, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, chunk := range chunks {
		chunk := chunk
		g.Go(func() error {
			slots[chunk.Index] = s.synthesizeChunk(gctx, workDir, chunk)
			return nil
		})
	}
	_ = g.Wait()

	var samples []int16
	var omitted []int
	for i, path := range slots {
		if path == "" {
			omitted = append(omitted, i)
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn().Err(err).Int("chunk", i).Msg("Failed to read chunk audio")
			omitted = append(omitted, i)
			continue
		}
		chunkSamples, err := audio.BytesToSamples(data)
		if err != nil {
			s.logger.Warn().Err(err).Int("chunk", i).Msg("Invalid chunk audio")
			omitted = append(omitted, i)
			continue
		}
		samples = append(samples, chunkSamples...)
	}

	if len(omitted) == len(chunks) {
		return nil, ErrNothingSynthesized
	}
	if len(omitted) > 0 {
		s.logger.Warn().Ints("omitted", omitted).Int("chunks", len(chunks)).Msg("Speech is missing chunks")
	}

	rate := s.provider.SampleRate()
	path := filepath.Join(s.dir, "speech-"+uuid.New().String()+".wav")
	if _, err := audio.WriteWAVFile(path, samples, rate, 1); err != nil {
		return nil, fmt.Errorf("failed to write speech: %w", err)
	}

	artifact := &Artifact{
		Path:       path,
		SampleRate: rate,
		Chunks:     len(chunks),
		Omitted:    omitted,
		Duration:   time.Duration(len(samples)) * time.Second / time.Duration(rate),
	}
	s.logger.Info().
		Int("chunks", artifact.Chunks).
		Dur("duration", artifact.Duration).
		Str("path", path).
		Msg("Speech synthesized")
	return artifact, nil
}

// synthesizeChunk returns the path of the chunk's PCM file, or "" on failure.
func (s *Synthesizer) synthesizeChunk(ctx context.Context, workDir string, chunk TextChunk) string {
	start := time.Now()
	pcm, err := s.provider.SynthesizeChunk(ctx, chunk.Text)
	if err != nil {
		s.logger.Warn().Err(err).Int("chunk", chunk.Index).Str("text", chunk.Text).Msg("Chunk synthesis failed")
		observability.RecordSynthesisChunk(false)
		return ""
	}
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}

	path := filepath.Join(workDir, fmt.Sprintf("chunk_%04d.pcm", chunk.Index))
	if err := os.WriteFile(path, pcm, 0o600); err != nil {
		s.logger.Warn().Err(err).Int("chunk", chunk.Index).Msg("Failed to write chunk audio")
		observability.RecordSynthesisChunk(false)
		return ""
	}

	observability.RecordSynthesisChunk(true)
	s.logger.Debug().
		Int("chunk", chunk.Index).
		Int("bytes", len(pcm)).
		Dur("latency", time.Since(start)).
		Msg("Chunk synthesized")
	return path
}
