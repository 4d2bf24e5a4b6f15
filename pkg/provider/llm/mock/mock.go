// Package mock provides a mock llm.Provider implementation for testing.
package mock

import (
	"context"
	"sync"

	"github.com/expertline/expertline/pkg/provider/llm"
)

// StreamCall records a single call to StreamCompletion.
type StreamCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// CompleteCall records a single call to Complete.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider that records calls and
// replays configured responses.
type Provider struct {
	mu            sync.Mutex
	streamCalls   []StreamCall
	completeCalls []CompleteCall

	// StreamChunks are replayed, in order, on the channel returned by
	// StreamCompletion.
	StreamChunks []llm.Chunk

	// StreamErr, if set, is returned by StreamCompletion instead of a
	// channel.
	StreamErr error

	// CompleteResult is returned by Complete when CompleteErr is nil.
	CompleteResult *llm.CompletionResponse

	// CompleteErr, if set, is returned by Complete.
	CompleteErr error
}

var _ llm.Provider = (*Provider)(nil)

// New creates a new mock Provider.
func New() *Provider {
	return &Provider{}
}

// StreamCompletion implements llm.Provider.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.streamCalls = append(p.streamCalls, StreamCall{Ctx: ctx, Req: req})
	chunks := make([]llm.Chunk, len(p.StreamChunks))
	copy(chunks, p.StreamChunks)
	err := p.StreamErr
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}

	ch := make(chan llm.Chunk, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.completeCalls = append(p.completeCalls, CompleteCall{Ctx: ctx, Req: req})
	res := p.CompleteResult
	err := p.CompleteErr
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if res == nil {
		return &llm.CompletionResponse{}, nil
	}
	return res, nil
}

// StreamCalls returns a snapshot of recorded StreamCompletion calls.
func (p *Provider) StreamCalls() []StreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]StreamCall, len(p.streamCalls))
	copy(out, p.streamCalls)
	return out
}

// CompleteCalls returns a snapshot of recorded Complete calls.
func (p *Provider) CompleteCalls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompleteCall, len(p.completeCalls))
	copy(out, p.completeCalls)
	return out
}
