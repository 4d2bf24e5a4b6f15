// Package mock provides a mock tts.Provider implementation for testing.
package mock

import (
	"context"
	"sync"

	"github.com/expertline/expertline/pkg/provider/tts"
)

// SynthesizeCall records a single call to Synthesize.
type SynthesizeCall struct {
	Ctx context.Context
	Req tts.Request
}

// Provider is a mock implementation of tts.Provider that records calls and
// replays configured audio chunks.
type Provider struct {
	mu    sync.Mutex
	calls []SynthesizeCall

	// Chunks are replayed, in order, on the channel returned by Synthesize.
	Chunks [][]byte

	// SynthesizeErr, if set, is returned by Synthesize instead of a channel.
	SynthesizeErr error

	// StreamErr, if set, is emitted as a terminal error chunk after Chunks
	// have been replayed, simulating a stream that dies partway.
	StreamErr error

	// Voices is returned by ListVoices.
	Voices []tts.VoiceProfile

	// ListVoicesErr, if set, is returned by ListVoices.
	ListVoicesErr error
}

var _ tts.Provider = (*Provider)(nil)

// New creates a new mock Provider.
func New() *Provider {
	return &Provider{}
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (<-chan tts.Chunk, error) {
	p.mu.Lock()
	p.calls = append(p.calls, SynthesizeCall{Ctx: ctx, Req: req})
	chunks := make([][]byte, len(p.Chunks))
	copy(chunks, p.Chunks)
	err := p.SynthesizeErr
	streamErr := p.StreamErr
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}

	ch := make(chan tts.Chunk, len(chunks)+1)
	go func() {
		defer close(ch)
		for _, c := range chunks {
			out := make([]byte, len(c))
			copy(out, c)
			select {
			case ch <- tts.Chunk{Audio: out}:
			case <-ctx.Done():
				return
			}
		}
		if streamErr != nil {
			select {
			case ch <- tts.Chunk{Err: streamErr}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

// ListVoices implements tts.Provider.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ListVoicesErr != nil {
		return nil, p.ListVoicesErr
	}
	out := make([]tts.VoiceProfile, len(p.Voices))
	copy(out, p.Voices)
	return out, nil
}

// Calls returns a snapshot of recorded Synthesize calls.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.calls))
	copy(out, p.calls)
	return out
}
