package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexiqai/voice-assistant/internal/audioio"
	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/dialogue"
	"github.com/lexiqai/voice-assistant/internal/observability"
	"github.com/lexiqai/voice-assistant/internal/orchestrator"
	"github.com/lexiqai/voice-assistant/internal/playback"
	"github.com/lexiqai/voice-assistant/internal/recorder"
	"github.com/lexiqai/voice-assistant/internal/resilience"
	"github.com/lexiqai/voice-assistant/internal/stt"
	"github.com/lexiqai/voice-assistant/internal/tools"
	"github.com/lexiqai/voice-assistant/internal/tts"
	"github.com/lexiqai/voice-assistant/internal/wakeword"
)

func main() {
	os.Exit(run())
}

// run wires the assistant and blocks until it stops, returning the exit code.
func run() int {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("wakeword_url", cfg.WakewordURL).
		Str("stt_provider", cfg.STTProvider).
		Str("tts_provider", cfg.TTSProvider).
		Str("llm_model", cfg.LLMModel).
		Str("audio_backend", cfg.AudioBackend).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice assistant starting")

	settings, err := config.NewSettingsStore(cfg.SettingsFile, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open settings")
		return 1
	}

	// Audio devices
	audioCfg := audioio.Config{SampleRate: cfg.SampleRate, Channels: 1, FrameSize: cfg.FrameSize}
	mic, err := audioio.NewSource(cfg.AudioBackend, audioCfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open microphone")
		return 1
	}
	defer mic.Close()

	speaker, err := audioio.NewSink(cfg.AudioBackend, cfg.PlaybackSampleRate, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open speaker")
		return 1
	}
	defer speaker.Close()

	// Service clients
	classifier, err := wakeword.NewGRPCClassifier(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create wake word client")
		return 1
	}
	defer classifier.Close()

	transcriber, err := stt.New(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create transcriber")
		return 1
	}

	synthesizer, err := tts.New(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create synthesizer")
		return 1
	}

	engine := dialogue.NewEngine(
		dialogue.NewOpenAICompleter(cfg, logger),
		settings,
		logger,
		dialogue.WithTools(tools.Builtins(cfg, logger)...),
		dialogue.WithMaxToolRounds(cfg.MaxToolRounds),
	)
	logger.Info().Strs("tools", engine.Tools()).Msg("Tools registered")

	player := playback.NewController(speaker, mic, logger)

	gate := wakeword.NewGate(classifier, cfg.WakewordThreshold, cfg.WakewordWindow, logger)
	logger.Info().Float64("threshold", gate.Threshold()).Int("window", cfg.WakewordWindow).Msg("Wake word gate ready")

	assistant := orchestrator.New(orchestrator.Components{
		Source:      mic,
		Gate:        gate,
		Recorder:    recorder.New(mic, settings, player, cfg.GainFactor, cfg.RecordingsDir, logger),
		Transcriber: transcriber,
		Engine:      engine,
		Synthesizer: synthesizer,
		Player:      player,
		StartupCue:  player.PlayStartupCue,
	}, logger, orchestrator.WithReconnect(&resilience.ReconnectConfig{
		MaxAttempts: cfg.ReconnectMaxAttempts,
		Backoff:     time.Duration(cfg.ReconnectBackoff) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}))

	// Admin HTTP server: health, readiness, metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/health", observability.HealthCheckHandler(func() string {
		return assistant.State().String()
	}))
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"wakeword": func(ctx context.Context) (bool, error) {
			if err := classifier.HealthCheck(ctx); err != nil {
				return false, err
			}
			return true, nil
		},
		"settings": func(ctx context.Context) (bool, error) {
			if _, err := os.Stat(settings.Path()); err != nil {
				return false, err
			}
			return true, nil
		},
	}))
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("Admin server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Admin server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := assistant.Run(ctx)
	if runErr != nil {
		logger.Error().Err(runErr).Msg("Assistant stopped")
	}

	logger.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Admin server forced to shutdown")
	}

	if runErr != nil {
		return 1
	}
	logger.Info().Msg("Voice assistant exited gracefully")
	return 0
}
