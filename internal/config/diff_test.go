package config

import "testing"

func baseConfig() *Config {
	return &Config{
		Server: ServerConfig{ListenAddr: ":8080", LogLevel: LogInfo},
		Providers: ProvidersConfig{
			LLM: ProviderEntry{Name: "openai", Model: "gpt-4o-mini"},
			STT: ProviderEntry{Name: "deepgram"},
			TTS: ProviderEntry{Name: "elevenlabs"},
		},
		Voices: VoicesConfig{Default: "v-default", Male: "v-male"},
		Call:   CallConfig{Greeting: "Hello."},
	}
}

func TestCompare_NoChanges(t *testing.T) {
	t.Parallel()

	a, b := baseConfig(), baseConfig()
	if d := Compare(a, b); d.Any() {
		t.Errorf("Compare of identical configs = %+v, want zero diff", d)
	}
}

func TestCompare_DetectsChanges(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		check  func(Diff) bool
	}{
		{
			name:   "log level",
			mutate: func(c *Config) { c.Server.LogLevel = LogDebug },
			check:  func(d Diff) bool { return d.LogLevelChanged },
		},
		{
			name:   "voice",
			mutate: func(c *Config) { c.Voices.Female = "v-new" },
			check:  func(d Diff) bool { return d.VoicesChanged },
		},
		{
			name:   "provider model",
			mutate: func(c *Config) { c.Providers.LLM.Model = "gpt-4o" },
			check:  func(d Diff) bool { return d.ProvidersChanged },
		},
		{
			name: "provider fallback added",
			mutate: func(c *Config) {
				c.Providers.LLM.Fallbacks = []ProviderEntry{{Name: "anthropic"}}
			},
			check: func(d Diff) bool { return d.ProvidersChanged },
		},
		{
			name:   "greeting",
			mutate: func(c *Config) { c.Call.Greeting = "Hi there." },
			check:  func(d Diff) bool { return d.CallChanged },
		},
		{
			name:   "retry policy",
			mutate: func(c *Config) { c.Call.Retry.MaxAttempts = 5 },
			check:  func(d Diff) bool { return d.CallChanged },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a, b := baseConfig(), baseConfig()
			tt.mutate(b)
			d := Compare(a, b)
			if !tt.check(d) {
				t.Errorf("Compare did not flag change: %+v", d)
			}
			if !d.Any() {
				t.Error("Any() = false after change")
			}
		})
	}
}

func TestCompare_OptionsChange(t *testing.T) {
	t.Parallel()

	a, b := baseConfig(), baseConfig()
	a.Providers.STT.Options = map[string]any{"language": "en"}
	b.Providers.STT.Options = map[string]any{"language": "de"}
	if d := Compare(a, b); !d.ProvidersChanged {
		t.Error("options change not detected")
	}
}
