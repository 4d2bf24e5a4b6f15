// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs HTTP streaming API. It implements the tts.Provider interface.
//
// For each synthesis request the provider POSTs the full text to
// /v1/text-to-speech/{voice}/stream and forwards the raw PCM response body in
// chunks as it arrives. A companion WebSocket implementation lives in
// stream_input.go for callers that want to pipe text incrementally.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/expertline/expertline/internal/resilience"
	"github.com/expertline/expertline/pkg/provider/tts"
)

const (
	defaultBaseURL   = "https://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"

	// readChunkSize is the size of reads from the streaming response body.
	readChunkSize = 4096

	defaultStability       = 0.5
	defaultSimilarityBoost = 0.75
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format (e.g., "pcm_16000", "pcm_24000").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithBaseURL overrides the API base URL. Intended for tests.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		p.baseURL = baseURL
	}
}

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithRetry overrides the retry policy applied when starting a stream.
// Zero-valued fields keep the built-in defaults.
func WithRetry(r resilience.Retry) Option {
	return func(p *Provider) {
		if r.MaxAttempts > 0 {
			p.retry.MaxAttempts = r.MaxAttempts
		}
		if r.BaseDelay > 0 {
			p.retry.BaseDelay = r.BaseDelay
		}
		if r.Multiplier > 0 {
			p.retry.Multiplier = r.Multiplier
		}
		if r.Retryable != nil {
			p.retry.Retryable = r.Retryable
		}
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	baseURL      string
	model        string
	outputFormat string
	httpClient   *http.Client
	retry        resilience.Retry
}

var _ tts.Provider = (*Provider)(nil)

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		retry: resilience.Retry{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			Multiplier:  2,
			Retryable:   retryableStatus,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ─── Synthesize ───

// synthesisRequest is the JSON payload for POST /v1/text-to-speech/{voice}/stream.
type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// apiError is the error envelope returned by the ElevenLabs API on non-2xx
// statuses.
type apiError struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}

// statusError marks an upstream HTTP failure so the retry predicate can
// distinguish transient statuses from permanent ones.
type statusError struct {
	code    int
	message string
}

func (e *statusError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("elevenlabs: status %d: %s", e.code, e.message)
	}
	return fmt.Sprintf("elevenlabs: unexpected status %d", e.code)
}

// retryableStatus reports whether an error is a 429 or 5xx upstream status.
func retryableStatus(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return false
	}
	return se.code == http.StatusTooManyRequests || se.code >= 500
}

// Synthesize starts synthesis of req.Text and returns a channel emitting raw
// PCM chunks as the response body arrives. The channel is closed when the
// stream ends or ctx is cancelled.
//
// Opening the stream is retried on 429 and 5xx statuses per the configured
// retry policy; once audio is flowing, a body read failure is delivered as a
// terminal chunk with Err set before the channel closes.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (<-chan tts.Chunk, error) {
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

	payload, err := json.Marshal(synthesisRequest{
		Text:    req.Text,
		ModelID: p.model,
		VoiceSettings: voiceSettings{
			Stability:       settings.Stability,
			SimilarityBoost: settings.SimilarityBoost,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	var body io.ReadCloser
	err = p.retry.Do(ctx, func() error {
		b, err := p.openStream(ctx, req.Voice.ID, payload)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	audioCh := make(chan tts.Chunk, 64)
	go func() {
		defer close(audioCh)
		defer body.Close()

		emit := func(c tts.Chunk) bool {
			select {
			case audioCh <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			buf := make([]byte, readChunkSize)
			n, err := body.Read(buf)
			if n > 0 {
				if !emit(tts.Chunk{Audio: buf[:n]}) {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				emit(tts.Chunk{Err: fmt.Errorf("elevenlabs: stream read: %w", err)})
				return
			}
		}
	}()

	return audioCh, nil
}

// openStream performs one POST attempt and returns the streaming body on
// success.
func (p *Provider) openStream(ctx context.Context, voiceID string, payload []byte) (io.ReadCloser, error) {
	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s/stream?output_format=%s",
		p.baseURL, url.PathEscape(voiceID), url.QueryEscape(p.outputFormat))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: build request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		se := &statusError{code: resp.StatusCode}
		var ae apiError
		if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&ae); err == nil {
			se.message = ae.Detail.Message
		}
		return nil, se
	}
	return resp.Body, nil
}

// ─── ListVoices ───

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []apiVoice `json:"voices"`
}

// apiVoice is a single voice entry from the ElevenLabs API.
type apiVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available from ElevenLabs for the configured
// API key.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode}
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return vr.profiles(), nil
}

func (vr voicesResponse) profiles() []tts.VoiceProfile {
	profiles := make([]tts.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		profiles = append(profiles, tts.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Metadata: meta,
		})
	}
	return profiles
}
