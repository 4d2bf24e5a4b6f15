package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames maps each provider kind to its accepted Name values.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq"},
	"stt": {"deepgram"},
	"tts": {"elevenlabs", "elevenlabs-ws"},
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes and validates configuration YAML from r.
// ${VAR} references are expanded from the environment so API keys can stay
// out of the file. Unknown fields are rejected so typos surface at startup
// instead of being silently ignored.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := os.Expand(string(raw), func(name string) string {
		return os.Getenv(name)
	})

	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
}

// Validate checks the configuration for missing or inconsistent values.
// All problems are reported together rather than one at a time.
func (c *Config) Validate() error {
	var errs []error

	if !c.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level: unknown level %q", c.Server.LogLevel))
	}
	if tls := c.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls: cert_file and key_file are both required"))
		}
	}

	errs = append(errs, validateEntry("providers.llm", "llm", c.Providers.LLM)...)
	errs = append(errs, validateEntry("providers.stt", "stt", c.Providers.STT)...)
	errs = append(errs, validateEntry("providers.tts", "tts", c.Providers.TTS)...)

	if c.Voices.Default == "" {
		errs = append(errs, errors.New("voices.default: required"))
	}

	if c.Call.HistoryLimit < 0 {
		errs = append(errs, errors.New("call.history_limit: must not be negative"))
	}
	if c.Call.ReplyMaxTokens < 0 {
		errs = append(errs, errors.New("call.reply_max_tokens: must not be negative"))
	}
	if c.Call.Temperature < 0 {
		errs = append(errs, errors.New("call.temperature: must not be negative"))
	}
	if r := c.Call.Retry; r.MaxAttempts < 0 || r.BaseDelay < 0 || r.Multiplier < 0 {
		errs = append(errs, errors.New("call.retry: values must not be negative"))
	}

	return errors.Join(errs...)
}

func validateEntry(path, kind string, entry ProviderEntry) []error {
	var errs []error
	if entry.Name == "" {
		return []error{fmt.Errorf("%s.name: required", path)}
	}
	if !validName(kind, entry.Name) {
		errs = append(errs, fmt.Errorf("%s.name: unknown provider %q (valid: %v)",
			path, entry.Name, ValidProviderNames[kind]))
	}
	for i, fb := range entry.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.fallbacks[%d].name: required", path, i))
			continue
		}
		if !validName(kind, fb.Name) {
			errs = append(errs, fmt.Errorf("%s.fallbacks[%d].name: unknown provider %q (valid: %v)",
				path, i, fb.Name, ValidProviderNames[kind]))
		}
	}
	return errs
}

func validName(kind, name string) bool {
	for _, valid := range ValidProviderNames[kind] {
		if name == valid {
			return true
		}
	}
	return false
}
