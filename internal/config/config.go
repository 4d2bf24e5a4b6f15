// Package config provides the configuration schema, loader, and provider
// registry for the Expertline server.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that decodes from YAML strings like "500ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"500ms\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// LogLevel controls log verbosity for the Expertline server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Expertline.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Voices      VoicesConfig      `yaml:"voices"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Call        CallConfig        `yaml:"call"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on. Default ":8080".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each Name is looked up in the [Registry].
type ProvidersConfig struct {
	// LLM answers questions and routes experts.
	LLM ProviderEntry `yaml:"llm"`

	// STT transcribes caller audio.
	STT ProviderEntry `yaml:"stt"`

	// TTS synthesizes expert answers.
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider
// types.
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "openai", "deepgram", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API. LLM
	// providers other than "openai" fall back to their conventional
	// environment variable when empty; Deepgram and ElevenLabs require it.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "gpt-4o-mini", "nova-2", "eleven_flash_v2_5").
	Model string `yaml:"model"`

	// Fallbacks lists additional provider names tried, in order, when the
	// primary fails.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// VoicesConfig maps expert gender to ElevenLabs voice IDs.
type VoicesConfig struct {
	// Default is the voice used when no better match exists. Required.
	Default string `yaml:"default"`

	Male    string `yaml:"male"`
	Female  string `yaml:"female"`
	Neutral string `yaml:"neutral"`

	// Concierge speaks the call greeting. Falls back to Default.
	Concierge string `yaml:"concierge"`
}

// PersistenceConfig configures the interaction log database.
type PersistenceConfig struct {
	// PostgresDSN is the connection string for the interactions database.
	// When empty, interactions are not persisted.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// CallConfig tunes call lifecycle behaviour.
type CallConfig struct {
	// Greeting is the text spoken when a call starts. When empty, calls
	// start silently.
	Greeting string `yaml:"greeting"`

	// HistoryLimit bounds how many recent conversation messages the expert
	// persona sees per turn. Zero keeps the built-in default.
	HistoryLimit int `yaml:"history_limit"`

	// ReplyMaxTokens caps the length of a spoken answer. Zero keeps the
	// built-in default.
	ReplyMaxTokens int `yaml:"reply_max_tokens"`

	// Temperature is the sampling temperature for answers. Zero keeps the
	// built-in default.
	Temperature float64 `yaml:"temperature"`

	// Retry tunes synthesis retry behaviour.
	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig configures retries against the synthesis provider. Zero-valued
// fields keep the provider's built-in defaults.
type RetryConfig struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int `yaml:"max_attempts"`

	// BaseDelay is the wait before the first retry.
	BaseDelay Duration `yaml:"base_delay"`

	// Multiplier scales the delay after each failed attempt.
	Multiplier float64 `yaml:"multiplier"`
}
