package config

import "reflect"

// Diff describes what changed between two configurations. Only the fields
// the server can apply at runtime are tracked; anything else requires a
// restart.
type Diff struct {
	LogLevelChanged  bool
	VoicesChanged    bool
	ProvidersChanged bool
	CallChanged      bool
}

// Any reports whether the diff contains at least one change.
func (d Diff) Any() bool {
	return d.LogLevelChanged || d.VoicesChanged || d.ProvidersChanged || d.CallChanged
}

// Compare computes the runtime-relevant differences between old and new.
func Compare(oldCfg, newCfg *Config) Diff {
	return Diff{
		LogLevelChanged:  oldCfg.Server.LogLevel != newCfg.Server.LogLevel,
		VoicesChanged:    oldCfg.Voices != newCfg.Voices,
		ProvidersChanged: !providersEqual(oldCfg.Providers, newCfg.Providers),
		CallChanged:      oldCfg.Call != newCfg.Call,
	}
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.LLM, b.LLM) && entryEqual(a.STT, b.STT) && entryEqual(a.TTS, b.TTS)
}

func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Fallbacks) != len(b.Fallbacks) {
		return false
	}
	for i := range a.Fallbacks {
		if !entryEqual(a.Fallbacks[i], b.Fallbacks[i]) {
			return false
		}
	}
	// Options may hold nested YAML values, so compare structurally.
	return reflect.DeepEqual(a.Options, b.Options)
}
