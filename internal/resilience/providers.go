package resilience

import (
	"context"

	"github.com/expertline/expertline/pkg/provider/llm"
	"github.com/expertline/expertline/pkg/provider/stt"
	"github.com/expertline/expertline/pkg/provider/tts"
)

// STTChain implements [stt.Provider] with automatic failover across multiple
// transcription backends.
type STTChain struct {
	chain *Chain[stt.Provider]
}

var _ stt.Provider = (*STTChain)(nil)

// NewSTTChain creates an [STTChain] with primary as the preferred backend.
func NewSTTChain(primaryName string, primary stt.Provider, cbCfg CircuitBreakerConfig) *STTChain {
	return &STTChain{chain: NewChain(primaryName, primary, cbCfg)}
}

// Add registers an additional transcription backend as a fallback.
func (c *STTChain) Add(name string, p stt.Provider) {
	c.chain.Add(name, p)
}

// Transcribe implements stt.Provider using the first healthy backend.
func (c *STTChain) Transcribe(ctx context.Context, audio []byte, contentType string) (stt.Transcript, error) {
	return DoResult(c.chain, func(p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, audio, contentType)
	})
}

// LLMChain implements [llm.Provider] with automatic failover across multiple
// completion backends. Only stream setup is covered by failover; once chunks
// are flowing, mid-stream errors surface to the caller.
type LLMChain struct {
	chain *Chain[llm.Provider]
}

var _ llm.Provider = (*LLMChain)(nil)

// NewLLMChain creates an [LLMChain] with primary as the preferred backend.
func NewLLMChain(primaryName string, primary llm.Provider, cbCfg CircuitBreakerConfig) *LLMChain {
	return &LLMChain{chain: NewChain(primaryName, primary, cbCfg)}
}

// Add registers an additional completion backend as a fallback.
func (c *LLMChain) Add(name string, p llm.Provider) {
	c.chain.Add(name, p)
}

// StreamCompletion implements llm.Provider using the first healthy backend.
func (c *LLMChain) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return DoResult(c.chain, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// Complete implements llm.Provider using the first healthy backend.
func (c *LLMChain) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return DoResult(c.chain, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// TTSChain implements [tts.Provider] with automatic failover across multiple
// synthesis backends. Only stream setup is covered by failover.
type TTSChain struct {
	chain *Chain[tts.Provider]
}

var _ tts.Provider = (*TTSChain)(nil)

// NewTTSChain creates a [TTSChain] with primary as the preferred backend.
func NewTTSChain(primaryName string, primary tts.Provider, cbCfg CircuitBreakerConfig) *TTSChain {
	return &TTSChain{chain: NewChain(primaryName, primary, cbCfg)}
}

// Add registers an additional synthesis backend as a fallback.
func (c *TTSChain) Add(name string, p tts.Provider) {
	c.chain.Add(name, p)
}

// Synthesize implements tts.Provider using the first healthy backend.
func (c *TTSChain) Synthesize(ctx context.Context, req tts.Request) (<-chan tts.Chunk, error) {
	return DoResult(c.chain, func(p tts.Provider) (<-chan tts.Chunk, error) {
		return p.Synthesize(ctx, req)
	})
}

// ListVoices implements tts.Provider using the first healthy backend.
func (c *TTSChain) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return DoResult(c.chain, func(p tts.Provider) ([]tts.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}
