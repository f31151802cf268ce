package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/observability"
	"github.com/lexiqai/voice-assistant/internal/resilience"
)

const elevenLabsReadTimeout = 30 * time.Second

// ElevenLabsClient implements Provider over the stream-input websocket. Each
// chunk gets its own connection, so concurrent chunks never share a stream.
type ElevenLabsClient struct {
	apiKey         string
	baseURL        string
	voiceID        string
	modelID        string
	sampleRate     int
	logger         zerolog.Logger
	circuitBreaker *resilience.CircuitBreaker
}

// Client messages
type (
	elBOSMessage struct {
		Text             string          `json:"text"`
		VoiceSettings    elVoiceSettings `json:"voice_settings"`
		GenerationConfig elGenConfig     `json:"generation_config"`
	}

	elVoiceSettings struct {
		Stability       float64 `json:"stability"`
		SimilarityBoost float64 `json:"similarity_boost"`
	}

	elGenConfig struct {
		ChunkLengthSchedule []int `json:"chunk_length_schedule"`
	}

	elTextMessage struct {
		Text               string `json:"text"`
		TryTriggerGenerate bool   `json:"try_trigger_generation,omitempty"`
	}
)

// Server message; audio and error responses share the stream
type elServerMessage struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewElevenLabsClient creates an ElevenLabs provider.
func NewElevenLabsClient(cfg *config.Config, logger zerolog.Logger) *ElevenLabsClient {
	baseURL := cfg.ElevenLabsURL
	if baseURL == "" {
		baseURL = "wss://api.elevenlabs.io"
	}

	return &ElevenLabsClient{
		apiKey:     cfg.ElevenLabsAPIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		voiceID:    cfg.ElevenLabsVoice,
		modelID:    cfg.ElevenLabsModel,
		sampleRate: elevenLabsRate(cfg.TTSSampleRate),
		logger:     logger.With().Str("component", "tts").Str("provider", config.ProviderElevenLabs).Logger(),
		circuitBreaker: resilience.NewCircuitBreaker(
			"tts_"+config.ProviderElevenLabs,
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
	}
}

// elevenLabsRate snaps rate to one the service can stream as PCM.
func elevenLabsRate(rate int) int {
	switch rate {
	case 16000, 22050, 24000, 44100:
		return rate
	default:
		return 24000
	}
}

func (c *ElevenLabsClient) Name() string { return config.ProviderElevenLabs }

func (c *ElevenLabsClient) SampleRate() int { return c.sampleRate }

// SynthesizeChunk streams text and collects the audio until the final message.
func (c *ElevenLabsClient) SynthesizeChunk(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	var pcm []byte
	err := c.circuitBreaker.Call(func() error {
		var callErr error
		pcm, callErr = c.stream(ctx, text)
		return callErr
	})

	observability.UpdateCircuitBreakerState(c.circuitBreaker.Name(), int(c.circuitBreaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures(c.circuitBreaker.Name())
		return nil, err
	}
	return pcm, nil
}

func (c *ElevenLabsClient) streamURL() string {
	query := url.Values{}
	query.Set("model_id", c.modelID)
	query.Set("output_format", fmt.Sprintf("pcm_%d", c.sampleRate))
	return fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?%s", c.baseURL, url.PathEscape(c.voiceID), query.Encode())
}

func (c *ElevenLabsClient) stream(ctx context.Context, text string) ([]byte, error) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	headers := http.Header{}
	headers.Set("xi-api-key", c.apiKey)

	conn, resp, err := dialer.DialContext(ctx, c.streamURL(), headers)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Provider: c.Name(), StatusCode: resp.StatusCode, Message: err.Error()}
		}
		return nil, fmt.Errorf("failed to connect to elevenlabs: %w", err)
	}
	defer conn.Close()

	// Unblock the read loop when the caller gives up
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	messages := []any{
		elBOSMessage{
			Text:             " ",
			VoiceSettings:    elVoiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
			GenerationConfig: elGenConfig{ChunkLengthSchedule: []int{120, 160, 250, 290}},
		},
		elTextMessage{Text: text + " ", TryTriggerGenerate: true},
		elTextMessage{Text: ""}, // EOS
	}
	for _, msg := range messages {
		if err := c.sendJSON(conn, msg); err != nil {
			return nil, fmt.Errorf("failed to send to elevenlabs: %w", err)
		}
	}

	var pcm bytes.Buffer
	for {
		conn.SetReadDeadline(time.Now().Add(elevenLabsReadTimeout))
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && pcm.Len() > 0 {
				break
			}
			return nil, fmt.Errorf("elevenlabs stream failed: %w", err)
		}
		if messageType == websocket.BinaryMessage {
			pcm.Write(data)
			continue
		}

		var msg elServerMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("Unreadable elevenlabs message")
			continue
		}
		if msg.Error != "" {
			return nil, &APIError{Provider: c.Name(), StatusCode: msg.Code, Message: strings.TrimSpace(msg.Error + " " + msg.Message)}
		}
		if msg.Audio != "" {
			audioData, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return nil, fmt.Errorf("invalid elevenlabs audio: %w", err)
			}
			pcm.Write(audioData)
		}
		if msg.IsFinal {
			break
		}
	}

	if pcm.Len() == 0 {
		return nil, &APIError{Provider: c.Name(), Message: "empty audio response"}
	}
	c.logger.Debug().Int("bytes", pcm.Len()).Msg("ElevenLabs audio received")
	return pcm.Bytes(), nil
}

func (c *ElevenLabsClient) sendJSON(conn *websocket.Conn, v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, data)
}
