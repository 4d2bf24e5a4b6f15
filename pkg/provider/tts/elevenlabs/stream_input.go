package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/coder/websocket"

	"github.com/expertline/expertline/pkg/provider/tts"
)

const defaultWSBaseURL = "wss://api.elevenlabs.io"

// WSProvider implements tts.Provider over the ElevenLabs stream-input
// WebSocket API. Compared to the HTTP provider it trades one extra round
// trip for lower time-to-first-audio on long answers, because ElevenLabs
// starts synthesizing before the full text has been transmitted.
type WSProvider struct {
	*Provider
	wsBaseURL string
}

var _ tts.Provider = (*WSProvider)(nil)

// WSOption is a functional option for configuring the WSProvider.
type WSOption func(*WSProvider)

// WithWSBaseURL overrides the WebSocket base URL. Intended for tests.
func WithWSBaseURL(baseURL string) WSOption {
	return func(p *WSProvider) {
		p.wsBaseURL = baseURL
	}
}

// NewWS creates a WebSocket-backed ElevenLabs Provider. ListVoices is served
// over HTTP like the base provider.
func NewWS(apiKey string, opts []Option, wsOpts ...WSOption) (*WSProvider, error) {
	base, err := New(apiKey, opts...)
	if err != nil {
		return nil, err
	}
	p := &WSProvider{Provider: base, wsBaseURL: defaultWSBaseURL}
	for _, o := range wsOpts {
		o(p)
	}
	return p, nil
}

// ─── WebSocket message types ───

// wsTextMessage is the JSON payload sent for each text fragment. An empty
// Text signals end of input.
type wsTextMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// wsBOIMessage is the initial "begin of input" handshake message carrying
// authentication and stream configuration.
type wsBOIMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
	OutputFormat  string         `json:"output_format,omitempty"`
}

// wsAudioResponse is a JSON message received over the WebSocket.
type wsAudioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
}

// Synthesize implements tts.Provider over the stream-input WebSocket. A
// socket failure before the final frame is delivered as a terminal chunk
// with Err set.
func (p *WSProvider) Synthesize(ctx context.Context, req tts.Request) (<-chan tts.Chunk, error) {
	if req.Text == "" {
		return nil, errors.New("elevenlabs: text must not be empty")
	}
	if req.Voice.ID == "" {
		return nil, errors.New("elevenlabs: voice ID must not be empty")
	}

	settings := req.Settings
	if settings == (tts.Settings{}) {
		settings = tts.Settings{Stability: defaultStability, SimilarityBoost: defaultSimilarityBoost}
	}
	vs := &voiceSettings{Stability: settings.Stability, SimilarityBoost: settings.SimilarityBoost}

	wsURL := fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?model_id=%s&output_format=%s",
		p.wsBaseURL, url.PathEscape(req.Voice.ID), url.QueryEscape(p.model), url.QueryEscape(p.outputFormat))

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}

	// ElevenLabs requires a non-empty first text value in the handshake.
	boi := wsBOIMessage{
		Text:          " ",
		VoiceSettings: vs,
		XiAPIKey:      p.apiKey,
		OutputFormat:  p.outputFormat,
	}
	boiBytes, _ := json.Marshal(boi)
	if err := conn.Write(ctx, websocket.MessageText, boiBytes); err != nil {
		conn.Close(websocket.StatusInternalError, "failed to send handshake")
		return nil, fmt.Errorf("elevenlabs: send handshake: %w", err)
	}

	audioCh := make(chan tts.Chunk, 64)
	go func() {
		defer close(audioCh)
		defer conn.Close(websocket.StatusNormalClosure, "done")

		emit := func(c tts.Chunk) bool {
			select {
			case audioCh <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			for _, sentence := range splitSentences(req.Text) {
				msgBytes, _ := json.Marshal(wsTextMessage{Text: sentence})
				if err := conn.Write(ctx, websocket.MessageText, msgBytes); err != nil {
					return
				}
			}
			// Empty text flushes the stream and signals end of input.
			flushBytes, _ := json.Marshal(wsTextMessage{Text: ""})
			_ = conn.Write(ctx, websocket.MessageText, flushBytes)
		}()

		for {
			_, msg, err := conn.Read(ctx)
			if err != nil {
				// The socket died before the final frame arrived.
				emit(tts.Chunk{Err: fmt.Errorf("elevenlabs: socket read: %w", err)})
				<-writeDone
				return
			}
			var resp wsAudioResponse
			if err := json.Unmarshal(msg, &resp); err != nil {
				continue
			}
			if resp.Audio != "" {
				pcm, err := base64.StdEncoding.DecodeString(resp.Audio)
				if err == nil && len(pcm) > 0 {
					if !emit(tts.Chunk{Audio: pcm}) {
						<-writeDone
						return
					}
				}
			}
			if resp.IsFinal {
				<-writeDone
				return
			}
		}
	}()

	return audioCh, nil
}

// splitSentences breaks text into fragments at sentence boundaries so
// synthesis can start before the whole answer is transmitted. The trailing
// space on each fragment keeps ElevenLabs from gluing words together across
// messages.
func splitSentences(text string) []string {
	var out []string
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			s := strings.TrimSpace(b.String())
			if s != "" {
				out = append(out, s+" ")
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s+" ")
	}
	return out
}
