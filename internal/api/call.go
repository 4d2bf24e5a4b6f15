package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/expertline/expertline/internal/call"
	"github.com/expertline/expertline/internal/observe"
	"github.com/expertline/expertline/pkg/audio"
	"github.com/expertline/expertline/pkg/provider/tts"
)

type startResponse struct {
	Success      bool   `json:"success"`
	SessionID    string `json:"sessionId"`
	GreetingText string `json:"greetingText,omitempty"`
	AudioBase64  string `json:"audioBase64,omitempty"`
}

// handleCallStart creates a fresh session and returns the spoken greeting.
// The greeting audio is synthesized on the first call and cached; it never
// changes for the lifetime of the process.
func (s *Server) handleCallStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID := uuid.NewString()
	if _, err := s.store.Create(ctx, sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to start call")
		return
	}
	s.metrics.ActiveCalls.Add(ctx, 1)

	resp := startResponse{
		Success:      true,
		SessionID:    sessionID,
		GreetingText: s.greeting,
	}
	if s.greeting != "" {
		if pcm := s.greetingPCM(ctx); len(pcm) > 0 {
			resp.AudioBase64 = base64.StdEncoding.EncodeToString(pcm)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// greetingPCM returns the cached greeting audio, synthesizing it on first
// use. A failed synthesis is logged and left uncached so a later call can
// retry; the greeting text still reaches the client either way.
func (s *Server) greetingPCM(ctx context.Context) []byte {
	s.greetingMu.Lock()
	defer s.greetingMu.Unlock()
	if s.greetingAudio != nil {
		return s.greetingAudio
	}

	chunks, err := s.tts.Synthesize(ctx, tts.Request{
		Text:  s.greeting,
		Voice: tts.VoiceProfile{ID: s.conciergeVoice()},
	})
	if err != nil {
		observe.Logger(ctx).Warn("greeting synthesis failed", "error", err)
		return nil
	}
	var aligner audio.Aligner
	var buf []byte
	for chunk := range chunks {
		if chunk.Err != nil {
			observe.Logger(ctx).Warn("greeting synthesis died mid-stream", "error", chunk.Err)
			return nil
		}
		buf = append(buf, aligner.Push(chunk.Audio)...)
	}
	aligner.Flush()
	if ctx.Err() != nil {
		// The caller hung up mid-synthesis; the stream may be truncated.
		return nil
	}
	s.greetingAudio = buf
	return s.greetingAudio
}

// conciergeVoice picks the voice for the greeting.
func (s *Server) conciergeVoice() string {
	if s.voices.Concierge != "" {
		return s.voices.Concierge
	}
	return s.voices.Default
}

// handleCallEnd deletes the session. Ending an unknown or already ended call
// succeeds; the client's goal state is "no session".
func (s *Server) handleCallEnd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID := r.Header.Get(HeaderSessionID)
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "X-Session-ID header is required")
		return
	}
	removed, err := s.store.Delete(ctx, sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to end call")
		return
	}
	if removed {
		s.metrics.ActiveCalls.Add(ctx, -1)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// messageBody is the JSON form of a turn request.
type messageBody struct {
	Message     string `json:"message"`
	AudioBase64 string `json:"audioBase64"`
}

// handleCallMessage runs one call turn and streams its events as NDJSON.
// Input arrives as JSON, multipart form data, or a raw audio body. All
// validation failures answer with a plain 400 before the first event; once
// streaming starts, failures travel in-band as error events.
func (s *Server) handleCallMessage(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseTurnRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	turn, err := s.orch.Begin(r.Context(), req)
	switch {
	case errors.Is(err, call.ErrNoInput), errors.Is(err, call.ErrEmptyTranscript):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		observe.Logger(r.Context()).Error("turn setup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to process message")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		turn.Abort()
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set(HeaderSessionID, req.SessionID)
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	for ev := range turn.Events(r.Context()) {
		if err := enc.Encode(ev); err != nil {
			// Client went away; the orchestrator stops via r.Context().
			return
		}
		flusher.Flush()
	}
}

// parseTurnRequest extracts the turn input from any of the accepted request
// shapes. Presence of input is the orchestrator's call, not ours: a request
// with neither text nor audio is passed through and rejected there.
func (s *Server) parseTurnRequest(r *http.Request) (call.TurnRequest, error) {
	req := call.TurnRequest{
		SessionID: r.Header.Get(HeaderSessionID),
		UserName:  r.Header.Get(HeaderUserName),
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	ct := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil && ct != "" {
		return req, errors.New("malformed Content-Type")
	}

	switch {
	case mediaType == "application/json":
		var body messageBody
		if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&body); err != nil {
			return req, errors.New("invalid JSON body")
		}
		req.Text = strings.TrimSpace(body.Message)
		if body.AudioBase64 != "" {
			audioBytes, err := base64.StdEncoding.DecodeString(body.AudioBase64)
			if err != nil {
				return req, errors.New("audioBase64 is not valid base64")
			}
			req.Audio = audioBytes
		}

	case mediaType == "multipart/form-data":
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return req, errors.New("invalid multipart body")
		}
		req.Text = strings.TrimSpace(r.FormValue("message"))
		if file, header, err := r.FormFile("audio"); err == nil {
			defer file.Close()
			audioBytes, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
			if err != nil {
				return req, errors.New("failed to read audio upload")
			}
			req.Audio = audioBytes
			req.AudioContentType = header.Header.Get("Content-Type")
		}

	case strings.HasPrefix(mediaType, "audio/") || mediaType == "application/octet-stream":
		audioBytes, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
		if err != nil {
			return req, errors.New("failed to read audio body")
		}
		req.Audio = audioBytes
		req.AudioContentType = mediaType

	default:
		return req, errors.New("unsupported content type")
	}

	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
