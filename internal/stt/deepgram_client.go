package stt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/observability"
	"github.com/lexiqai/voice-assistant/internal/resilience"
)

const (
	deepgramWriteSize = 8192
	// deepgramQuietPeriod is how long the stream may stay silent after its
	// last message before the transcript is considered complete.
	deepgramQuietPeriod = 1500 * time.Millisecond
	deepgramTimeout     = 30 * time.Second
)

// messageCallbackHandler implements the LiveMessageCallback interface
// It embeds the default handler and overrides only the methods we need to customize
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	handler      func(*msginterfaces.MessageResponse)
	errorHandler func(*msginterfaces.ErrorResponse)
}

// Message forwards transcription results to the collector
func (m *messageCallbackHandler) Message(message *msginterfaces.MessageResponse) error {
	m.handler(message)
	return nil
}

// Error forwards service errors to the collector
func (m *messageCallbackHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	m.errorHandler(errorResponse)
	return nil
}

// transcriptCollector gathers final results from one streaming session.
type transcriptCollector struct {
	mu       sync.Mutex
	parts    []string
	err      error
	heard    bool
	flushed  bool
	activity chan struct{}
	logger   zerolog.Logger
}

func newTranscriptCollector(logger zerolog.Logger) *transcriptCollector {
	return &transcriptCollector{
		activity: make(chan struct{}, 1),
		logger:   logger,
	}
}

func (c *transcriptCollector) handle(msg *msginterfaces.MessageResponse) {
	if msg == nil {
		return
	}
	defer c.touch()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.heard = true
	// The result answering a Finalize request is the last one for the audio sent
	if msg.FromFinalize {
		c.flushed = true
	}

	if len(msg.Channel.Alternatives) == 0 {
		return
	}
	transcript := strings.TrimSpace(msg.Channel.Alternatives[0].Transcript)
	if transcript == "" || !msg.IsFinal {
		return
	}

	c.parts = append(c.parts, transcript)
	c.logger.Debug().Str("type", msg.Type).Str("text", transcript).Msg("Deepgram final transcript")
}

func (c *transcriptCollector) fail(errorResponse *msginterfaces.ErrorResponse) {
	message := "unknown error"
	if errorResponse != nil {
		message = strings.TrimSpace(errorResponse.ErrMsg + " " + errorResponse.Description)
		if errorResponse.ErrCode != "" {
			message = errorResponse.ErrCode + ": " + message
		}
	}

	c.mu.Lock()
	c.heard = true
	if c.err == nil {
		c.err = &APIError{Provider: config.ProviderDeepgram, Message: message}
	}
	c.mu.Unlock()
	c.touch()
}

func (c *transcriptCollector) touch() {
	select {
	case c.activity <- struct{}{}:
	default:
	}
}

func (c *transcriptCollector) result() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.parts, " "), c.err
}

// done reports whether Deepgram has answered the flush request.
func (c *transcriptCollector) done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushed
}

// wait blocks until the stream is flushed, fails, or goes quiet for
// quietPeriod after having produced at least one message. A stream that
// never answers runs into ctx's deadline and is reported as an error.
func (c *transcriptCollector) wait(ctx context.Context, quietPeriod time.Duration) (string, error) {
	var quiet <-chan time.Time
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			text, _ := c.result()
			if text != "" {
				c.logger.Warn().Msg("Deepgram stream timed out, using partial transcript")
				return text, nil
			}
			return "", fmt.Errorf("deepgram transcription timed out: %w", ctx.Err())
		case <-c.activity:
			if _, err := c.result(); err != nil {
				return "", err
			}
			if c.done() {
				return c.result()
			}
			if timer == nil {
				timer = time.NewTimer(quietPeriod)
				quiet = timer.C
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(quietPeriod)
		case <-quiet:
			return c.result()
		}
	}
}

// DeepgramClient transcribes an utterance over Deepgram's live websocket API.
// The whole recording is streamed, then the client waits for the results to
// go quiet.
type DeepgramClient struct {
	config         *config.Config
	logger         zerolog.Logger
	quietPeriod    time.Duration
	timeout        time.Duration
	circuitBreaker *resilience.CircuitBreaker
}

// NewDeepgramClient creates a new Deepgram transcriber
func NewDeepgramClient(cfg *config.Config, logger zerolog.Logger) *DeepgramClient {
	return &DeepgramClient{
		config:      cfg,
		logger:      logger.With().Str("component", "stt").Str("provider", config.ProviderDeepgram).Logger(),
		quietPeriod: deepgramQuietPeriod,
		timeout:     deepgramTimeout,
		circuitBreaker: resilience.NewCircuitBreaker(
			"stt_deepgram",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
	}
}

// Transcribe streams the WAV file and returns the joined final transcripts.
func (d *DeepgramClient) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}

	var text string
	err := d.circuitBreaker.Call(func() error {
		var callErr error
		text, callErr = d.stream(ctx, audio)
		return callErr
	})

	observability.UpdateCircuitBreakerState("stt_deepgram", int(d.circuitBreaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("stt_deepgram")
		return "", err
	}
	return text, nil
}

func (d *DeepgramClient) stream(ctx context.Context, audio []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	// The WAV header tells Deepgram the encoding and sample rate
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:     d.config.DeepgramModel,
		Language:  d.config.DeepgramLanguage,
		Punctuate: true,
	}

	collector := newTranscriptCollector(d.logger)
	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		handler:                collector.handle,
		errorHandler:           collector.fail,
	}

	client, err := listenClient.NewWSUsingCallback(ctx, d.config.DeepgramAPIKey, nil, tOptions, callback)
	if err != nil {
		return "", fmt.Errorf("failed to create Deepgram client: %w", err)
	}
	if !client.Connect() {
		return "", &APIError{Provider: config.ProviderDeepgram, Message: "failed to connect"}
	}
	defer client.Finish()

	for offset := 0; offset < len(audio); offset += deepgramWriteSize {
		end := min(offset+deepgramWriteSize, len(audio))
		if _, err := client.Write(audio[offset:end]); err != nil {
			return "", fmt.Errorf("failed to send audio to Deepgram: %w", err)
		}
	}

	// Flush whatever Deepgram still buffers instead of waiting on its endpointing
	if err := client.Finalize(); err != nil {
		return "", fmt.Errorf("failed to finalize Deepgram stream: %w", err)
	}

	return collector.wait(ctx, d.quietPeriod)
}
