// Package api exposes the call pipeline over HTTP: call lifecycle routes,
// the NDJSON turn stream, standalone transcription, health probes, and
// Prometheus metrics.
package api

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/expertline/expertline/internal/call"
	"github.com/expertline/expertline/internal/health"
	"github.com/expertline/expertline/internal/observe"
	"github.com/expertline/expertline/internal/session"
	"github.com/expertline/expertline/pkg/provider/stt"
	"github.com/expertline/expertline/pkg/provider/tts"
)

// Request headers carrying call identity.
const (
	HeaderSessionID = "X-Session-ID"
	HeaderUserName  = "X-User-Name"
)

// maxUploadBytes caps audio uploads. A minute of 16 kHz 16-bit mono PCM is
// under 2 MiB, so 16 MiB leaves ample room for compressed containers.
const maxUploadBytes = 16 << 20

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	orch    *call.Orchestrator
	store   session.Store
	stt     stt.Provider
	tts     tts.Provider
	voices  call.Voices
	metrics *observe.Metrics
	health  *health.Handler

	greeting string

	greetingMu    sync.Mutex
	greetingAudio []byte
}

// Options wires a [Server].
type Options struct {
	Orchestrator *call.Orchestrator
	Store        session.Store
	STT          stt.Provider
	TTS          tts.Provider
	Voices       call.Voices

	// Greeting is spoken at call start. Empty disables the greeting.
	Greeting string

	// Health defaults to a checker-less handler when nil.
	Health *health.Handler

	// Metrics defaults to [observe.DefaultMetrics] when nil.
	Metrics *observe.Metrics
}

// NewServer creates a [Server] from opts.
func NewServer(opts Options) *Server {
	m := opts.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	h := opts.Health
	if h == nil {
		h = health.New()
	}
	return &Server{
		orch:     opts.Orchestrator,
		store:    opts.Store,
		stt:      opts.STT,
		tts:      opts.TTS,
		voices:   opts.Voices,
		metrics:  m,
		health:   h,
		greeting: opts.Greeting,
	}
}

// Router builds the chi router with all routes and middleware attached.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(observe.Middleware(s.metrics))

	r.Route("/api", func(r chi.Router) {
		r.Post("/call/start", s.handleCallStart)
		r.Post("/call/message", s.handleCallMessage)
		r.Post("/call/end", s.handleCallEnd)
		r.Post("/transcribe", s.handleTranscribe)
	})

	s.health.Register(r)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
