package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/expertline/expertline/pkg/provider/llm"
	"github.com/expertline/expertline/pkg/provider/stt"
	"github.com/expertline/expertline/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by the Create functions when no
// factory exists for the requested provider name.
var ErrProviderNotRegistered = errors.New("provider not registered")

// LLMFactory builds an LLM provider from its configuration entry.
type LLMFactory func(entry ProviderEntry) (llm.Provider, error)

// STTFactory builds a speech-to-text provider from its configuration entry.
type STTFactory func(entry ProviderEntry) (stt.Provider, error)

// TTSFactory builds a text-to-speech provider from its configuration entry.
type TTSFactory func(entry ProviderEntry) (tts.Provider, error)

// Registry maps provider names to factories. The binary registers the
// implementations it was built with; configuration then selects among them
// by name.
type Registry struct {
	mu  sync.RWMutex
	llm map[string]LLMFactory
	stt map[string]STTFactory
	tts map[string]TTSFactory
}

// NewRegistry returns an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		llm: make(map[string]LLMFactory),
		stt: make(map[string]STTFactory),
		tts: make(map[string]TTSFactory),
	}
}

// RegisterLLM registers an LLM provider factory under name, replacing any
// existing registration.
func (r *Registry) RegisterLLM(name string, f LLMFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = f
}

// RegisterSTT registers a speech-to-text provider factory under name.
func (r *Registry) RegisterSTT(name string, f STTFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = f
}

// RegisterTTS registers a text-to-speech provider factory under name.
func (r *Registry) RegisterTTS(name string, f TTSFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = f
}

// CreateLLM instantiates the LLM provider named by entry.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	f, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("llm %q: %w", entry.Name, ErrProviderNotRegistered)
	}
	return f(entry)
}

// CreateSTT instantiates the speech-to-text provider named by entry.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	f, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("stt %q: %w", entry.Name, ErrProviderNotRegistered)
	}
	return f(entry)
}

// CreateTTS instantiates the text-to-speech provider named by entry.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	f, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tts %q: %w", entry.Name, ErrProviderNotRegistered)
	}
	return f(entry)
}
