package call

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/expertline/expertline/internal/expert"
	"github.com/expertline/expertline/internal/interactions"
	"github.com/expertline/expertline/internal/observe"
	"github.com/expertline/expertline/internal/session"
	"github.com/expertline/expertline/pkg/audio"
	"github.com/expertline/expertline/pkg/provider/llm"
	"github.com/expertline/expertline/pkg/provider/stt"
	"github.com/expertline/expertline/pkg/provider/tts"
	"github.com/expertline/expertline/pkg/types"
)

// Input validation errors. The HTTP layer maps these to 400 responses before
// any event is streamed.
var (
	// ErrNoInput is returned by Begin when the request carries neither
	// text nor audio.
	ErrNoInput = errors.New("either message or audio is required")

	// ErrEmptyTranscript is returned by Begin when transcription yields no
	// usable text.
	ErrEmptyTranscript = errors.New("unable to process audio")
)

// Voices maps expert gender to ElevenLabs voice IDs. An expert's own VoiceID,
// when set, always wins.
type Voices struct {
	Default string
	Male    string
	Female  string
	Neutral string

	// Concierge speaks the call greeting. Falls back to Default.
	Concierge string
}

// Resolve picks the synthesis voice for an expert.
func (v Voices) Resolve(e types.Expert) string {
	if e.VoiceID != "" {
		return e.VoiceID
	}
	switch e.Gender {
	case types.GenderFemale:
		if v.Female != "" {
			return v.Female
		}
	case types.GenderMale:
		if v.Male != "" {
			return v.Male
		}
	case types.GenderNeutral:
		if v.Neutral != "" {
			return v.Neutral
		}
	}
	return v.Default
}

// TurnRequest is one user utterance. Exactly one of Text and Audio should be
// set; when both are present Text wins and Audio is ignored.
type TurnRequest struct {
	SessionID string
	UserName  string

	Text string

	Audio            []byte
	AudioContentType string
}

// Orchestrator runs the call-turn pipeline: transcription, expert routing,
// streamed answer generation, speech synthesis, and persistence.
type Orchestrator struct {
	stt     stt.Provider
	router  *expert.Router
	persona *expert.Persona
	tts     tts.Provider

	store   session.Store
	locker  *session.Locker
	log     interactions.Log
	voices  Voices
	metrics *observe.Metrics
}

// Config wires an [Orchestrator].
type Config struct {
	STT     stt.Provider
	Router  *expert.Router
	Persona *expert.Persona
	TTS     tts.Provider

	Store        session.Store
	Locker       *session.Locker
	Interactions interactions.Log
	Voices       Voices

	// Metrics defaults to [observe.DefaultMetrics] when nil.
	Metrics *observe.Metrics
}

// New creates an [Orchestrator].
func New(cfg Config) *Orchestrator {
	log := cfg.Interactions
	if log == nil {
		log = interactions.Discard{}
	}
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Orchestrator{
		stt:     cfg.STT,
		router:  cfg.Router,
		persona: cfg.Persona,
		tts:     cfg.TTS,
		store:   cfg.Store,
		locker:  cfg.Locker,
		log:     log,
		voices:  cfg.Voices,
		metrics: m,
	}
}

// Turn is a prepared turn, ready to stream. It is created by [Orchestrator.Begin]
// and consumed exactly once via [Turn.Events].
type Turn struct {
	o *Orchestrator

	sessionID  string
	userName   string
	transcript string
	expert     types.Expert
	voiceID    string
	history    []types.Message // history before the current question

	started time.Time
	release func()
}

// Transcript returns the user utterance this turn answers.
func (t *Turn) Transcript() string { return t.transcript }

// Expert returns the expert bound for this turn.
func (t *Turn) Expert() types.Expert { return t.expert }

// Begin validates the request, resolves the transcript, and binds an expert
// to the session. All failures here happen before any event is produced, so
// the transport can still answer with a plain error response.
//
// Begin acquires the session's turn lock; the caller must consume
// [Turn.Events] (or call [Turn.Abort]) to release it.
func (o *Orchestrator) Begin(ctx context.Context, req TurnRequest) (*Turn, error) {
	started := time.Now()

	if req.Text == "" && len(req.Audio) == 0 {
		return nil, ErrNoInput
	}
	if req.SessionID == "" {
		return nil, errors.New("call: session ID must not be empty")
	}

	log := observe.Logger(ctx).With("session_id", req.SessionID)

	release, err := o.locker.Acquire(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("call: acquire session lock: %w", err)
	}
	// Release on every error path below; on success the Turn owns it.
	ok := false
	defer func() {
		if !ok {
			release()
		}
	}()

	transcript := strings.TrimSpace(req.Text)
	if transcript == "" {
		sttStart := time.Now()
		result, err := o.stt.Transcribe(ctx, req.Audio, req.AudioContentType)
		o.metrics.TranscriptionDuration.Record(ctx, time.Since(sttStart).Seconds())
		if err != nil {
			o.metrics.RecordProviderError(ctx, "stt", "transcribe")
			return nil, fmt.Errorf("%w: %v", ErrEmptyTranscript, err)
		}
		transcript = strings.TrimSpace(result.Text)
		log.Info("transcription complete",
			"duration", time.Since(sttStart),
			"transcript", truncate(transcript, 100))
	}
	if transcript == "" {
		return nil, ErrEmptyTranscript
	}

	sess, err := o.store.Get(ctx, req.SessionID)
	if errors.Is(err, session.ErrNotFound) {
		sess, err = o.store.Create(ctx, req.SessionID)
		if err == nil {
			o.metrics.ActiveCalls.Add(ctx, 1)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("call: load session: %w", err)
	}

	history := sess.History

	userMsg := types.Message{
		ID:        uuid.NewString(),
		Role:      types.RoleUser,
		Content:   transcript,
		Timestamp: time.Now().UTC(),
	}
	if err := o.store.AppendMessage(ctx, req.SessionID, userMsg); err != nil {
		return nil, fmt.Errorf("call: append user message: %w", err)
	}
	sess.History = append(sess.History, userMsg)

	routeStart := time.Now()
	var previousExpert string
	if sess.Expert != nil {
		previousExpert = sess.Expert.Name
	}
	routed := o.router.Route(ctx, transcript, sess)
	o.metrics.RoutingDuration.Record(ctx, time.Since(routeStart).Seconds())

	switch {
	case previousExpert == "":
		log.Info("selected expert",
			"expert", routed.Name, "reasoning", routed.Reasoning)
	case previousExpert == routed.Name:
		log.Info("continuing with expert",
			"expert", routed.Name, "reasoning", routed.Reasoning)
	default:
		o.metrics.ExpertSwitches.Add(ctx, 1)
		log.Info("switched expert",
			"from", previousExpert, "to", routed.Name, "reasoning", routed.Reasoning)
	}

	if err := o.store.SetExpert(ctx, req.SessionID, &routed); err != nil {
		return nil, fmt.Errorf("call: bind expert: %w", err)
	}

	ok = true
	return &Turn{
		o:          o,
		sessionID:  req.SessionID,
		userName:   req.UserName,
		transcript: transcript,
		expert:     routed,
		voiceID:    o.voices.Resolve(routed),
		history:    history,
		started:    started,
		release:    release,
	}, nil
}

// Abort releases the turn without streaming. Safe to call multiple times.
func (t *Turn) Abort() {
	t.release()
}

// Events runs the streamed phase of the turn and emits its events in order:
// Metadata first, then TextDelta events, then AudioChunk events, then
// Complete, and finally Done. Done is emitted on every path, including
// generation failure and context cancellation.
//
// Synthesis failures are non-fatal: an ErrorEvent is emitted and the turn
// still completes, because the text has already streamed. Generation failures
// are fatal: an ErrorEvent is emitted and the stream ends without Complete.
//
// Events must be called exactly once. The caller must drain the channel.
func (t *Turn) Events(ctx context.Context) <-chan Event {
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer t.release()
		t.run(ctx, out)
	}()
	return out
}

func (t *Turn) run(ctx context.Context, out chan<- Event) {
	o := t.o
	log := observe.Logger(ctx).With("session_id", t.sessionID)
	status := "error"

	defer func() {
		o.metrics.TurnDuration.Record(ctx, time.Since(t.started).Seconds())
		o.metrics.RecordTurn(ctx, status)
		// Done closes out every stream; it is only skipped when the
		// consumer's context has already ended.
		t.emit(ctx, out, Done{})
	}()

	t.emit(ctx, out, Metadata{
		Transcript: t.transcript,
		Expert: ExpertInfo{
			Name:           t.expert.Name,
			ExpertiseAreas: t.expert.ExpertiseAreas,
			Reasoning:      t.expert.Reasoning,
		},
	})

	// ─── Generation ───

	genStart := time.Now()
	chunks, err := o.persona.StreamAnswer(ctx, t.transcript, t.expert, t.history)
	if err != nil {
		o.metrics.RecordProviderError(ctx, "llm", "stream")
		log.Error("answer generation failed to start", "error", err)
		t.emit(ctx, out, ErrorEvent{Message: err.Error()})
		return
	}

	var full strings.Builder
	for chunk := range chunks {
		if chunk.FinishReason == llm.FinishReasonError {
			o.metrics.RecordProviderError(ctx, "llm", "stream")
			log.Error("answer generation failed mid-stream", "error", chunk.Text)
			t.emit(ctx, out, ErrorEvent{Message: chunk.Text})
			return
		}
		if chunk.Text == "" {
			continue
		}
		full.WriteString(chunk.Text)
		if !t.emit(ctx, out, TextDelta{Delta: chunk.Text}) {
			return
		}
	}
	if ctx.Err() != nil {
		return
	}
	genDuration := time.Since(genStart)
	o.metrics.GenerationDuration.Record(ctx, genDuration.Seconds())

	answer := strings.TrimSpace(full.String())
	log.Info("answer generation complete",
		"expert", t.expert.Name, "duration", genDuration, "chars", len(answer))

	// ─── Synthesis ───

	if answer != "" {
		t.synthesize(ctx, out, answer, log)
	}

	// ─── Completion and persistence ───

	expertMsg := types.Message{
		ID:         uuid.NewString(),
		Role:       types.RoleExpert,
		Content:    answer,
		Timestamp:  time.Now().UTC(),
		ExpertName: t.expert.Name,
	}
	if err := o.store.AppendMessage(ctx, t.sessionID, expertMsg); err != nil {
		log.Error("failed to append expert message", "error", err)
	}

	processing := time.Since(t.started)
	t.emit(ctx, out, Complete{
		Text:             answer,
		ProcessingTimeMs: processing.Milliseconds(),
	})
	status = "ok"
	log.Info("turn complete", "duration", processing)

	// Fire and forget: persistence must never delay or fail the stream.
	saveCtx := context.WithoutCancel(ctx)
	go func() {
		if err := o.log.Save(saveCtx, interactions.Interaction{
			SessionID:    t.sessionID,
			UserQuestion: t.transcript,
			ExpertAnswer: answer,
			ExpertName:   t.expert.Name,
			UserName:     t.userName,
		}); err != nil {
			log.Error("failed to save interaction", "error", err)
		}
	}()
}

// synthesize converts answer to speech and emits sample-aligned audio chunks.
// All failures are reported as an ErrorEvent and otherwise swallowed: the
// text has already streamed, so audio is strictly additive.
func (t *Turn) synthesize(ctx context.Context, out chan<- Event, answer string, log *slog.Logger) {
	o := t.o
	ttsStart := time.Now()

	audioCh, err := o.tts.Synthesize(ctx, tts.Request{
		Text:  answer,
		Voice: tts.VoiceProfile{ID: t.voiceID},
	})
	if err != nil {
		o.metrics.RecordProviderError(ctx, "tts", "synthesize")
		log.Error("speech synthesis failed", "error", err)
		t.emit(ctx, out, ErrorEvent{
			Message: fmt.Sprintf("Audio generation failed: %v. Text response is still available.", err),
		})
		return
	}

	var aligner audio.Aligner
	index := 0
	for chunk := range audioCh {
		if chunk.Err != nil {
			o.metrics.RecordProviderError(ctx, "tts", "stream")
			log.Error("speech synthesis failed mid-stream", "error", chunk.Err)
			t.emit(ctx, out, ErrorEvent{
				Message: fmt.Sprintf("Audio generation failed: %v. Text response is still available.", chunk.Err),
			})
			return
		}
		aligned := aligner.Push(chunk.Audio)
		if len(aligned) == 0 {
			continue
		}
		index++
		if !t.emit(ctx, out, AudioChunk{
			Index:       index,
			AudioBase64: base64.StdEncoding.EncodeToString(aligned),
		}) {
			return
		}
	}
	aligner.Flush()

	o.metrics.SynthesisDuration.Record(ctx, time.Since(ttsStart).Seconds())
	log.Info("speech synthesis complete",
		"duration", time.Since(ttsStart), "chunks", index)
}

// emit delivers ev unless ctx is done. Reports whether delivery happened.
func (t *Turn) emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// truncate shortens s for log lines.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
