// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g., Deepgram) and exposes a
// uniform batch interface: the caller hands over a complete recorded utterance
// and receives its transcript. Expertline's call flow records one utterance
// per turn, so pre-recorded transcription is sufficient; there is no
// streaming session to manage.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Transcript is the result of transcribing one recorded utterance.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). May be zero if
	// the provider does not report confidence.
	Confidence float64
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe submits a complete recorded utterance for transcription.
	// audio is the encoded recording; contentType describes its container
	// format (e.g., "audio/webm"). An empty contentType is treated as
	// "application/octet-stream".
	//
	// Returns an error if audio is empty, if the upstream rejects the
	// request, or if ctx is cancelled before the response arrives. An
	// upstream response without a usable transcript is an error; callers
	// should never receive a zero-value Transcript with a nil error.
	Transcribe(ctx context.Context, audio []byte, contentType string) (Transcript, error)
}
