// Package call orchestrates a single conversational turn: transcription,
// expert routing, streamed answer generation, speech synthesis, and
// persistence, surfaced to the transport as an ordered stream of events.
package call

import "encoding/json"

// Event is one element of a turn's output stream. The set of variants is
// closed: Metadata, TextDelta, AudioChunk, Complete, ErrorEvent, and Done.
// Every variant marshals to a JSON object carrying a "type" discriminator.
type Event interface {
	isEvent()
}

// ExpertInfo is the client-facing view of the expert bound for a turn.
type ExpertInfo struct {
	Name           string   `json:"name"`
	ExpertiseAreas []string `json:"expertiseAreas,omitempty"`
	Reasoning      string   `json:"reasoning,omitempty"`
}

// Metadata is always the first event of a stream. It confirms the transcript
// the turn is answering and the expert chosen to answer it.
type Metadata struct {
	Transcript string
	Expert     ExpertInfo
}

// TextDelta carries one increment of the expert's answer text, in order.
type TextDelta struct {
	Delta string
}

// AudioChunk carries one base64-encoded PCM chunk of the synthesized answer.
// Index is 1-based and strictly increasing. Text is always empty: the answer
// text travels in TextDelta events.
type AudioChunk struct {
	Index       int
	AudioBase64 string
}

// Complete reports the full answer text and total turn processing time. It is
// absent when generation fails.
type Complete struct {
	Text             string
	ProcessingTimeMs int64
}

// ErrorEvent reports a mid-stream failure. After a synthesis failure the
// stream still completes; after a generation failure it ends with Done.
type ErrorEvent struct {
	Message string
}

// Done is always the final event of a stream, on success and on failure.
type Done struct{}

func (Metadata) isEvent()   {}
func (TextDelta) isEvent()  {}
func (AudioChunk) isEvent() {}
func (Complete) isEvent()   {}
func (ErrorEvent) isEvent() {}
func (Done) isEvent()       {}

// MarshalJSON implements json.Marshaler.
func (e Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type       string     `json:"type"`
		Transcript string     `json:"transcript"`
		Expert     ExpertInfo `json:"expert"`
	}{Type: "metadata", Transcript: e.Transcript, Expert: e.Expert})
}

// MarshalJSON implements json.Marshaler.
func (e TextDelta) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  string `json:"type"`
		Delta string `json:"delta"`
	}{Type: "text_delta", Delta: e.Delta})
}

// MarshalJSON implements json.Marshaler.
func (e AudioChunk) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type        string `json:"type"`
		Index       int    `json:"index"`
		Text        string `json:"text"`
		AudioBase64 string `json:"audioBase64"`
	}{Type: "audio_chunk", Index: e.Index, AudioBase64: e.AudioBase64})
}

// MarshalJSON implements json.Marshaler.
func (e Complete) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type             string `json:"type"`
		Text             string `json:"text"`
		ProcessingTimeMs int64  `json:"processingTimeMs"`
	}{Type: "complete", Text: e.Text, ProcessingTimeMs: e.ProcessingTimeMs})
}

// MarshalJSON implements json.Marshaler.
func (e ErrorEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}{Type: "error", Message: e.Message})
}

// MarshalJSON implements json.Marshaler.
func (e Done) MarshalJSON() ([]byte, error) {
	return []byte(`{"type":"done"}`), nil
}
