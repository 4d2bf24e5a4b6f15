// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// pre-recorded REST API. It implements the stt.Provider interface.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/expertline/expertline/pkg/provider/stt"
)

const (
	listenEndpoint  = "https://api.deepgram.com/v1/listen"
	defaultModel    = "nova-2"
	defaultLanguage = "en-US"
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-2", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en-US").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithBaseURL overrides the Deepgram API endpoint. Used by tests to point the
// provider at a local httptest server.
func WithBaseURL(base string) Option {
	return func(p *Provider) {
		p.baseURL = base
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by the Deepgram pre-recorded API.
type Provider struct {
	apiKey     string
	model      string
	language   string
	baseURL    string
	httpClient *http.Client
}

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		baseURL:    listenEndpoint,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// listenResponse is the subset of Deepgram's pre-recorded response the
// provider consumes.
type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// errorResponse is Deepgram's JSON error envelope. Both shapes appear in the
// wild depending on the failure class.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Transcribe implements stt.Provider. It POSTs the raw recording to the
// Deepgram listen endpoint and extracts the first channel's best alternative.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, contentType string) (stt.Transcript, error) {
	if len(audio) == 0 {
		return stt.Transcript{}, errors.New("deepgram: empty audio provided for transcription")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	reqURL, err := p.buildURL()
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(audio))
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stt.Transcript{}, fmt.Errorf("deepgram: transcription failed (status %d)%s",
			resp.StatusCode, errorDetail(resp))
	}

	var lr listenResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: decode response: %w", err)
	}

	t, ok := extractTranscript(lr)
	if !ok {
		return stt.Transcript{}, errors.New("deepgram: response did not include a transcript")
	}
	return t, nil
}

// buildURL constructs the listen endpoint URL with recognition parameters.
func (p *Provider) buildURL() (string, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("punctuate", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// extractTranscript pulls the first channel's best alternative out of a
// decoded listen response. Returns ok=false when the response carries no
// non-empty transcript.
func extractTranscript(lr listenResponse) (stt.Transcript, bool) {
	if len(lr.Results.Channels) == 0 {
		return stt.Transcript{}, false
	}
	alts := lr.Results.Channels[0].Alternatives
	if len(alts) == 0 || alts[0].Transcript == "" {
		return stt.Transcript{}, false
	}
	return stt.Transcript{
		Text:       alts[0].Transcript,
		Confidence: alts[0].Confidence,
	}, true
}

// errorDetail decodes an error body into a ": message" suffix for error
// wrapping. Returns the empty string when the body is not usable JSON.
func errorDetail(resp *http.Response) string {
	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return ""
	}
	switch {
	case er.Error != "":
		return ": " + er.Error
	case er.Message != "":
		return ": " + er.Message
	}
	return ""
}
