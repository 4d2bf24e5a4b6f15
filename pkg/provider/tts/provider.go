// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs) and
// presents a uniform streaming interface. The primary entry point is
// Synthesize, which accepts the full text of an answer and returns a channel
// of PCM audio chunks as they become available, so the caller can forward
// audio to the client while synthesis is still in flight.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// VoiceProfile identifies a synthesis voice at a provider.
type VoiceProfile struct {
	// ID is the provider-assigned voice identifier.
	ID string

	// Name is the human-readable voice name, when known.
	Name string

	// Provider names the backing service (e.g., "elevenlabs").
	Provider string

	// Metadata carries provider-specific labels (accent, age, category).
	Metadata map[string]string
}

// Settings tunes how expressive and faithful the synthesis is. The zero value
// means "use the provider defaults".
type Settings struct {
	Stability       float64
	SimilarityBoost float64
}

// Chunk is one unit of the synthesis stream. Audio carries raw PCM bytes.
// A Chunk with a non-nil Err is terminal: it reports why the stream ended
// before completion, and no further chunks follow it.
type Chunk struct {
	Audio []byte
	Err   error
}

// Request describes a single synthesis job.
type Request struct {
	// Text is the full text to synthesize. Must not be empty.
	Text string

	// Voice selects the synthesis voice. Voice.ID must not be empty.
	Voice VoiceProfile

	// Settings tunes the synthesis. Zero value uses provider defaults.
	Settings Settings
}

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use; multiple synthesis
// requests may run in parallel.
type Provider interface {
	// Synthesize starts synthesis of req.Text and returns a channel that
	// emits [Chunk] values as audio is produced. The channel is closed by
	// the implementation when synthesis completes, fails, or ctx is
	// cancelled. The caller must drain the channel to avoid blocking the
	// provider's internal goroutines.
	//
	// Returns a non-nil error only if the stream cannot be started. A
	// failure after audio has started flowing is delivered as a terminal
	// Chunk with Err set, so consumers can distinguish a completed stream
	// from one that died partway. Callers should additionally check
	// ctx.Err() for cancellation, since a dead consumer context may
	// prevent terminal delivery.
	Synthesize(ctx context.Context, req Request) (<-chan Chunk, error)

	// ListVoices returns all voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
