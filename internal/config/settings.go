package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// DefaultSystemPrompt is written to a fresh settings file.
const DefaultSystemPrompt = "You're a helpful AI assistant. You will NEVER include links or markdown text in your responses. All answers must be optimized for verbal delivery via a text-to-speech engine, ensuring clarity and engagement."

// Settings are the values an operator may change while the assistant runs.
type Settings struct {
	SystemPrompt     string  `yaml:"system_prompt"`
	SilenceThreshold float64 `yaml:"silence_threshold"` // peak amplitude below which a frame is silent
	SilenceDuration  float64 `yaml:"silence_duration"`  // seconds of continuous silence that end a recording
}

// DefaultSettings returns the settings used when no file exists yet.
func DefaultSettings() Settings {
	return Settings{
		SystemPrompt:     DefaultSystemPrompt,
		SilenceThreshold: 1700,
		SilenceDuration:  1,
	}
}

// SilenceWindow returns SilenceDuration as a time.Duration.
func (s Settings) SilenceWindow() time.Duration {
	return time.Duration(s.SilenceDuration * float64(time.Second))
}

func (s Settings) validate() error {
	if s.SilenceThreshold <= 0 {
		return fmt.Errorf("silence_threshold must be positive, got %v", s.SilenceThreshold)
	}
	if s.SilenceDuration <= 0 {
		return fmt.Errorf("silence_duration must be positive, got %v", s.SilenceDuration)
	}
	return nil
}

// SettingsProvider is the read side of the runtime settings.
type SettingsProvider interface {
	Current() Settings
}

// SettingsStore keeps Settings in a YAML file and reloads it whenever the
// file's modification time changes. A file that fails to parse leaves the
// last good settings in effect.
type SettingsStore struct {
	path   string
	logger zerolog.Logger

	mu      sync.Mutex
	current Settings
	modTime time.Time
}

// NewSettingsStore opens the settings file at path, creating it with
// DefaultSettings if it does not exist.
func NewSettingsStore(path string, logger zerolog.Logger) (*SettingsStore, error) {
	s := &SettingsStore{
		path:   path,
		logger: logger.With().Str("component", "settings").Logger(),
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := s.Save(DefaultSettings()); err != nil {
			return nil, err
		}
		s.logger.Info().Str("path", path).Msg("Created settings file with defaults")
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat settings file: %w", err)
	}

	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Current returns the settings, re-reading the file if it changed.
func (s *SettingsStore) Current() Settings {
	if err := s.reload(); err != nil {
		s.logger.Warn().Err(err).Msg("Keeping previous settings")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Save validates and writes settings to the file.
func (s *SettingsStore) Save(settings Settings) error {
	settings.SystemPrompt = strings.TrimSpace(settings.SystemPrompt)
	if err := settings.validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create settings directory: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	s.current = settings
	if info, err := os.Stat(s.path); err == nil {
		s.modTime = info.ModTime()
	}
	return nil
}

// Path returns the settings file location.
func (s *SettingsStore) Path() string {
	return s.path
}

func (s *SettingsStore) reload() error {
	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("failed to stat settings file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.modTime.IsZero() && info.ModTime().Equal(s.modTime) {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read settings file: %w", err)
	}

	settings := DefaultSettings()
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("failed to parse settings file: %w", err)
	}
	settings.SystemPrompt = strings.TrimSpace(settings.SystemPrompt)
	if err := settings.validate(); err != nil {
		return err
	}

	if !s.modTime.IsZero() {
		s.logger.Info().
			Float64("silence_threshold", settings.SilenceThreshold).
			Float64("silence_duration", settings.SilenceDuration).
			Msg("Settings reloaded")
	}

	s.current = settings
	s.modTime = info.ModTime()
	return nil
}
