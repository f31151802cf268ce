package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Provider names accepted by STT_PROVIDER and TTS_PROVIDER
const (
	ProviderOpenAI     = "openai"
	ProviderGroq       = "groq"
	ProviderDeepgram   = "deepgram"
	ProviderCartesia   = "cartesia"
	ProviderElevenLabs = "elevenlabs"
)

// Config holds all process configuration for the assistant.
// Values that may change while the assistant runs (system prompt, silence
// threshold and duration) are not here; see SettingsStore.
type Config struct {
	// Admin HTTP server (health, readiness, metrics)
	Port string `envconfig:"PORT" default:"8080"`

	// Runtime settings file, created with defaults when missing
	SettingsFile string `envconfig:"SETTINGS_FILE" default:"config/config.yaml"`

	// Audio device configuration
	AudioBackend       string  `envconfig:"AUDIO_BACKEND" default:"portaudio"` // portaudio, mock
	SampleRate         int     `envconfig:"SAMPLE_RATE" default:"16000"`
	FrameSize          int     `envconfig:"FRAME_SIZE" default:"4096"` // samples per frame
	GainFactor         float64 `envconfig:"GAIN_FACTOR" default:"1.5"`
	PlaybackSampleRate int     `envconfig:"PLAYBACK_SAMPLE_RATE" default:"24000"`
	RecordingsDir      string  `envconfig:"RECORDINGS_DIR" default:"recordings"`
	SpeechDir          string  `envconfig:"SPEECH_DIR" default:""` // empty uses the OS temp dir

	// Wake-word scorer gRPC endpoint
	WakewordURL       string  `envconfig:"WAKEWORD_URL" default:"localhost:50052"`
	WakewordThreshold float64 `envconfig:"WAKEWORD_THRESHOLD" default:"0.5"`
	WakewordWindow    int     `envconfig:"WAKEWORD_WINDOW" default:"30"`   // scores kept per keyword
	WakewordTimeout   int     `envconfig:"WAKEWORD_TIMEOUT" default:"1000"` // milliseconds per call
	WakewordService   string  `envconfig:"WAKEWORD_SERVICE" default:"wakeword.v1.WakewordService"`

	// Speech-to-text
	STTProvider      string `envconfig:"STT_PROVIDER" default:"groq"` // groq, openai, deepgram
	STTModel         string `envconfig:"STT_MODEL" default:"whisper-large-v3"`
	STTPrompt        string `envconfig:"STT_PROMPT" default:"Specify context or spelling"`
	STTLanguage      string `envconfig:"STT_LANGUAGE" default:""`
	GroqAPIKey       string `envconfig:"GROQ_API_KEY"`
	GroqBaseURL      string `envconfig:"GROQ_BASE_URL" default:"https://api.groq.com/openai/v1"`
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY"`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`

	// Dialogue completion
	OpenAIAPIKey   string  `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL  string  `envconfig:"OPENAI_BASE_URL" default:""`
	LLMModel       string  `envconfig:"LLM_MODEL" default:"gpt-4o-mini"`
	LLMTemperature float32 `envconfig:"LLM_TEMPERATURE" default:"0.7"`
	MaxToolRounds  int     `envconfig:"MAX_TOOL_ROUNDS" default:"1"`

	// Tools
	TavilyAPIKey     string `envconfig:"TAVILY_API_KEY"`
	SearchMaxResults int    `envconfig:"SEARCH_MAX_RESULTS" default:"3"`
	GeocoderURL      string `envconfig:"GEOCODER_URL" default:"https://nominatim.openstreetmap.org"`
	WeatherURL       string `envconfig:"WEATHER_URL" default:"https://api.open-meteo.com"`
	ToolTimeout      int    `envconfig:"TOOL_TIMEOUT" default:"15"` // seconds

	// Text-to-speech
	TTSProvider      string `envconfig:"TTS_PROVIDER" default:"openai"` // openai, cartesia, elevenlabs
	TTSChunkChars    int    `envconfig:"TTS_CHUNK_CHARS" default:"500"`
	TTSWorkers       int    `envconfig:"TTS_WORKERS" default:"4"`
	TTSSampleRate    int    `envconfig:"TTS_SAMPLE_RATE" default:"24000"`
	OpenAITTSModel   string `envconfig:"OPENAI_TTS_MODEL" default:"tts-1"`
	OpenAITTSVoice   string `envconfig:"OPENAI_TTS_VOICE" default:"shimmer"`
	CartesiaAPIKey   string `envconfig:"CARTESIA_API_KEY"`
	CartesiaBaseURL  string `envconfig:"CARTESIA_BASE_URL" default:"https://api.cartesia.ai"`
	CartesiaVoiceID  string `envconfig:"CARTESIA_VOICE_ID" default:"a0e99841-438c-4a64-b679-ae501e7d6091"`
	CartesiaModelID  string `envconfig:"CARTESIA_MODEL_ID" default:"sonic-english"`
	ElevenLabsAPIKey string `envconfig:"ELEVENLABS_API_KEY"`
	ElevenLabsURL    string `envconfig:"ELEVENLABS_URL" default:"wss://api.elevenlabs.io"`
	ElevenLabsVoice  string `envconfig:"ELEVENLABS_VOICE_ID" default:"cgSgspJ2msm6clMCkdW9"`
	ElevenLabsModel  string `envconfig:"ELEVENLABS_MODEL_ID" default:"eleven_turbo_v2_5"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Tool fetches only
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`         // Microphone restart attempts
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"`           // Reconnection backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the provider selection and the keys each provider needs.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}

	switch c.STTProvider {
	case ProviderGroq:
		if c.GroqAPIKey == "" {
			return fmt.Errorf("GROQ_API_KEY is required for STT_PROVIDER=%s", c.STTProvider)
		}
	case ProviderOpenAI:
	case ProviderDeepgram:
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required for STT_PROVIDER=%s", c.STTProvider)
		}
	default:
		return fmt.Errorf("unknown STT_PROVIDER %q", c.STTProvider)
	}

	switch c.TTSProvider {
	case ProviderOpenAI:
	case ProviderCartesia:
		if c.CartesiaAPIKey == "" {
			return fmt.Errorf("CARTESIA_API_KEY is required for TTS_PROVIDER=%s", c.TTSProvider)
		}
	case ProviderElevenLabs:
		if c.ElevenLabsAPIKey == "" {
			return fmt.Errorf("ELEVENLABS_API_KEY is required for TTS_PROVIDER=%s", c.TTSProvider)
		}
	default:
		return fmt.Errorf("unknown TTS_PROVIDER %q", c.TTSProvider)
	}

	if c.SampleRate <= 0 || c.FrameSize <= 0 {
		return fmt.Errorf("SAMPLE_RATE and FRAME_SIZE must be positive")
	}
	if c.TTSChunkChars <= 0 {
		return fmt.Errorf("TTS_CHUNK_CHARS must be positive")
	}
	if c.TTSWorkers <= 0 {
		return fmt.Errorf("TTS_WORKERS must be positive")
	}
	if c.WakewordWindow <= 0 {
		return fmt.Errorf("WAKEWORD_WINDOW must be positive")
	}

	return nil
}
