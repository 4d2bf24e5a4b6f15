// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to replay configured transcripts and to verify the audio and
// content type passed to the transcription backend.
package mock

import (
	"context"
	"sync"

	"github.com/expertline/expertline/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Audio is a copy of the audio bytes passed to Transcribe.
	Audio []byte
	// ContentType is the content type passed to Transcribe.
	ContentType string
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Transcript is returned by Transcribe when TranscribeErr is nil.
	Transcript stt.Transcript

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

var _ stt.Provider = (*Provider)(nil)

// New creates a new mock Provider.
func New() *Provider {
	return &Provider{}
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, contentType string) (stt.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cp := make([]byte, len(audio))
	copy(cp, audio)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{
		Ctx:         ctx,
		Audio:       cp,
		ContentType: contentType,
	})

	if p.TranscribeErr != nil {
		return stt.Transcript{}, p.TranscribeErr
	}
	return p.Transcript, nil
}

// Calls returns a snapshot of recorded Transcribe calls.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranscribeCall, len(p.TranscribeCalls))
	copy(out, p.TranscribeCalls)
	return out
}
