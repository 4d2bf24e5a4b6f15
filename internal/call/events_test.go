package call

import (
	"encoding/json"
	"testing"
)

func marshal(t *testing.T, e Event) string {
	t.Helper()
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal %T: %v", e, err)
	}
	return string(b)
}

func TestEventMarshalling(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{
			name: "metadata",
			event: Metadata{
				Transcript: "what is a monad",
				Expert: ExpertInfo{
					Name:           "Philip Wadler",
					ExpertiseAreas: []string{"functional programming", "type systems"},
					Reasoning:      "Co-designer of Haskell.",
				},
			},
			want: `{"type":"metadata","transcript":"what is a monad","expert":{"name":"Philip Wadler","expertiseAreas":["functional programming","type systems"],"reasoning":"Co-designer of Haskell."}}`,
		},
		{
			name:  "metadata with bare expert",
			event: Metadata{Transcript: "hi", Expert: ExpertInfo{Name: "Martin Fowler"}},
			want:  `{"type":"metadata","transcript":"hi","expert":{"name":"Martin Fowler"}}`,
		},
		{
			name:  "text delta",
			event: TextDelta{Delta: "A monad is"},
			want:  `{"type":"text_delta","delta":"A monad is"}`,
		},
		{
			name:  "audio chunk",
			event: AudioChunk{Index: 3, AudioBase64: "AQID"},
			want:  `{"type":"audio_chunk","index":3,"text":"","audioBase64":"AQID"}`,
		},
		{
			name:  "complete",
			event: Complete{Text: "full answer", ProcessingTimeMs: 1234},
			want:  `{"type":"complete","text":"full answer","processingTimeMs":1234}`,
		},
		{
			name:  "error",
			event: ErrorEvent{Message: "something broke"},
			want:  `{"type":"error","message":"something broke"}`,
		},
		{
			name:  "done",
			event: Done{},
			want:  `{"type":"done"}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := marshal(t, tc.event); got != tc.want {
				t.Errorf("marshalled\n  %s\nwant\n  %s", got, tc.want)
			}
		})
	}
}

func TestEventTypeDiscriminators(t *testing.T) {
	t.Parallel()

	events := []Event{
		Metadata{}, TextDelta{}, AudioChunk{}, Complete{}, ErrorEvent{}, Done{},
	}
	want := []string{"metadata", "text_delta", "audio_chunk", "complete", "error", "done"}

	for i, e := range events {
		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal([]byte(marshal(t, e)), &envelope); err != nil {
			t.Fatalf("unmarshal %T: %v", e, err)
		}
		if envelope.Type != want[i] {
			t.Errorf("%T type = %q, want %q", e, envelope.Type, want[i])
		}
	}
}
