package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/expertline/expertline/internal/call"
	"github.com/expertline/expertline/internal/expert"
	"github.com/expertline/expertline/internal/observe"
	"github.com/expertline/expertline/internal/session"
	"github.com/expertline/expertline/pkg/provider/llm"
	llmmock "github.com/expertline/expertline/pkg/provider/llm/mock"
	"github.com/expertline/expertline/pkg/provider/stt"
	sttmock "github.com/expertline/expertline/pkg/provider/stt/mock"
	ttsmock "github.com/expertline/expertline/pkg/provider/tts/mock"
)

const routerJSON = `{
	"expertName": "Barbara Liskov",
	"expertiseAreas": ["distributed systems"],
	"reasoning": "Substitution principle questions.",
	"gender": "female"
}`

type testServer struct {
	stt     *sttmock.Provider
	llm     *llmmock.Provider
	tts     *ttsmock.Provider
	store   session.Store
	server  *Server
	router  http.Handler
	metrics *sdkmetric.ManualReader
}

func newTestServer(t *testing.T, greeting string) *testServer {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	ts := &testServer{
		stt:     sttmock.New(),
		llm:     llmmock.New(),
		tts:     ttsmock.New(),
		store:   session.NewMemoryStore(),
		metrics: reader,
	}
	ts.llm.CompleteResult = &llm.CompletionResponse{Content: routerJSON}
	ts.llm.StreamChunks = []llm.Chunk{
		{Text: "Abstraction "},
		{Text: "matters."},
	}
	ts.tts.Chunks = [][]byte{{0x01, 0x02, 0x03, 0x04}}
	ts.stt.Transcript = stt.Transcript{Text: "what is abstraction"}

	voices := call.Voices{Default: "voice-default", Female: "voice-female"}
	orch := call.New(call.Config{
		STT:     ts.stt,
		Router:  expert.NewRouter(ts.llm),
		Persona: expert.NewPersona(ts.llm),
		TTS:     ts.tts,
		Store:   ts.store,
		Locker:  session.NewLocker(),
		Voices:  voices,
		Metrics: metrics,
	})

	ts.server = NewServer(Options{
		Orchestrator: orch,
		Store:        ts.store,
		STT:          ts.stt,
		TTS:          ts.tts,
		Voices:       voices,
		Greeting:     greeting,
		Metrics:      metrics,
	})
	ts.router = ts.server.Router()
	return ts
}

// activeCalls reads the current value of the live call gauge.
func (ts *testServer) activeCalls(t *testing.T) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := ts.metrics.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "expertline.active_calls" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok || len(sum.DataPoints) == 0 {
				return 0
			}
			return sum.DataPoints[0].Value
		}
	}
	return 0
}

func decodeNDJSON(t *testing.T, body string) []map[string]any {
	t.Helper()
	var events []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		var ev map[string]any
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("line %q is not valid JSON: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func eventTypes(events []map[string]any) []string {
	types := make([]string, len(events))
	for i, ev := range events {
		types[i], _ = ev["type"].(string)
	}
	return types
}

func TestCallStart_ReturnsSessionAndGreeting(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, "Welcome to Expertline.")

	req := httptest.NewRequest("POST", "/api/call/start", nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp startResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.SessionID == "" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.GreetingText != "Welcome to Expertline." {
		t.Errorf("GreetingText = %q", resp.GreetingText)
	}
	wantAudio := base64.StdEncoding.EncodeToString([]byte{0x01, 0x02, 0x03, 0x04})
	if resp.AudioBase64 != wantAudio {
		t.Errorf("AudioBase64 = %q, want %q", resp.AudioBase64, wantAudio)
	}

	// The greeting voice is the configured default.
	calls := ts.tts.Calls()
	if len(calls) != 1 || calls[0].Req.Voice.ID != "voice-default" {
		t.Errorf("unexpected tts calls: %+v", calls)
	}
}

func TestCallStart_GreetingAudioIsCached(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, "Hello.")

	for range 3 {
		req := httptest.NewRequest("POST", "/api/call/start", nil)
		rec := httptest.NewRecorder()
		ts.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	}
	if n := len(ts.tts.Calls()); n != 1 {
		t.Errorf("tts called %d times, want 1", n)
	}
}

func TestCallStart_NoGreetingConfigured(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, "")

	req := httptest.NewRequest("POST", "/api/call/start", nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	var resp startResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.GreetingText != "" || resp.AudioBase64 != "" {
		t.Errorf("expected silent start, got %+v", resp)
	}
	if len(ts.tts.Calls()) != 0 {
		t.Error("tts should not be called without a greeting")
	}
}

func TestCallStart_GreetingSynthesisFailureStillSucceeds(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, "Hello.")
	ts.tts.SynthesizeErr = errors.New("voice service down")

	req := httptest.NewRequest("POST", "/api/call/start", nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp startResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.GreetingText != "Hello." {
		t.Errorf("GreetingText = %q", resp.GreetingText)
	}
	if resp.AudioBase64 != "" {
		t.Error("AudioBase64 should be empty when synthesis fails")
	}
}

func TestCallStart_GreetingStreamFailureIsNotCached(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, "Hello.")
	ts.tts.StreamErr = errors.New("socket reset")

	req := httptest.NewRequest("POST", "/api/call/start", nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp startResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AudioBase64 != "" {
		t.Error("AudioBase64 should be empty for a truncated greeting stream")
	}

	// Once the voice service recovers, the next call synthesizes again.
	ts.tts.StreamErr = nil
	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/call/start", nil))
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	wantAudio := base64.StdEncoding.EncodeToString([]byte{0x01, 0x02, 0x03, 0x04})
	if resp.AudioBase64 != wantAudio {
		t.Errorf("AudioBase64 after recovery = %q, want %q", resp.AudioBase64, wantAudio)
	}
	if n := len(ts.tts.Calls()); n != 2 {
		t.Errorf("tts called %d times, want 2 (failure must not be cached)", n)
	}
}

func TestConciergeVoice(t *testing.T) {
	t.Parallel()

	s := &Server{voices: call.Voices{Default: "voice-default", Concierge: "voice-concierge"}}
	if got := s.conciergeVoice(); got != "voice-concierge" {
		t.Errorf("conciergeVoice = %q, want voice-concierge", got)
	}
	s = &Server{voices: call.Voices{Default: "voice-default"}}
	if got := s.conciergeVoice(); got != "voice-default" {
		t.Errorf("conciergeVoice = %q, want the default fallback", got)
	}
}

func TestCallEnd_DeletesSession(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, "")

	req := httptest.NewRequest("POST", "/api/call/end", nil)
	req.Header.Set(HeaderSessionID, "sess-1")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
}

func TestCallEnd_UnknownSessionDoesNotSkewActiveCalls(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, "")

	// Start one call, then end a session that never existed.
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/call/start", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d", rec.Code)
	}
	var started startResponse
	if err := json.NewDecoder(rec.Body).Decode(&started); err != nil {
		t.Fatalf("decode: %v", err)
	}

	endReq := httptest.NewRequest("POST", "/api/call/end", nil)
	endReq.Header.Set(HeaderSessionID, "never-existed")
	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, endReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("end status = %d", rec.Code)
	}
	if got := ts.activeCalls(t); got != 1 {
		t.Errorf("active calls after bogus end = %d, want 1", got)
	}

	// Ending the real session brings the gauge back to zero, once.
	for range 2 {
		endReq = httptest.NewRequest("POST", "/api/call/end", nil)
		endReq.Header.Set(HeaderSessionID, started.SessionID)
		rec = httptest.NewRecorder()
		ts.router.ServeHTTP(rec, endReq)
		if rec.Code != http.StatusOK {
			t.Fatalf("end status = %d", rec.Code)
		}
	}
	if got := ts.activeCalls(t); got != 0 {
		t.Errorf("active calls after repeated end = %d, want 0", got)
	}
}

func TestCallEnd_RequiresSessionHeader(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, "")

	req := httptest.NewRequest("POST", "/api/call/end", nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, "")

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		ts.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

func TestTranscribe_Multipart(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("audio", "question.wav")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write([]byte("fake-wav-bytes")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest("POST", "/api/transcribe", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp transcribeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Transcript != "what is abstraction" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestTranscribe_MissingFile(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("note", "no audio here")
	mw.Close()

	req := httptest.NewRequest("POST", "/api/transcribe", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTranscribe_UpstreamFailure(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, "")
	ts.stt.TranscribeErr = errors.New("deepgram unavailable")

	req := httptest.NewRequest("POST", "/api/transcribe", strings.NewReader("raw-audio"))
	req.Header.Set("Content-Type", "audio/wav")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}
