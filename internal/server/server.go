// Package server exposes the batch job over HTTP for the review UI.
//
// Endpoints:
//   - POST /api/process        start a batch ({count, model}); ?stream=1 streams its console
//   - GET  /api/process/stream follow the console (?since=N) as server-sent events
//   - GET  /api/status         job snapshot for pages that reconnect
//   - POST /api/cancel         request cancellation (idempotent)
//   - GET  /api/models         installed models
//   - POST /api/sync           sync the document folder, streaming progress
//   - GET  /healthz
//
// Streams emit one "data:" line per console line and end with "data: [DONE]".
// A client that disconnects only stops its own stream, never the job.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"invoicepipe/internal/docsource"
	"invoicepipe/internal/jobs"
	"invoicepipe/internal/logger"
)

// DoneMarker terminates every event stream.
const DoneMarker = "[DONE]"

// Syncer syncs the document folder. *docsource.Syncer implements it.
type Syncer interface {
	Sync(ctx context.Context, folder string, progress func(string)) (docsource.SyncResult, error)
}

// Config wires the server's collaborators.
type Config struct {
	Jobs *jobs.Controller
	// Models lists installed model names.
	Models       func() ([]string, error)
	DefaultModel string
	Syncer       Syncer
	SyncFolder   string
	// KeepAlive is the interval of comment frames on idle streams.
	KeepAlive time.Duration
}

// Server serves the HTTP API.
type Server struct {
	cfg     Config
	baseCtx context.Context
	mux     *http.ServeMux
	log     zerolog.Logger
}

// New creates a server. Jobs started over HTTP live as long as baseCtx.
func New(baseCtx context.Context, cfg Config) *Server {
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 15 * time.Second
	}
	s := &Server{
		cfg:     cfg,
		baseCtx: baseCtx,
		mux:     http.NewServeMux(),
		log:     logger.WithComponent("server"),
	}

	s.mux.HandleFunc("POST /api/process", s.handleProcess)
	s.mux.HandleFunc("GET /api/process/stream", s.handleStream)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/cancel", s.handleCancel)
	s.mux.HandleFunc("GET /api/models", s.handleModels)
	s.mux.HandleFunc("POST /api/sync", s.handleSync)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return s
}

// ServeHTTP implements http.Handler and logs every request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID := uuid.New().String()
	rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	rw.Header().Set("X-Request-ID", reqID)

	s.mux.ServeHTTP(rw, r)

	l := logger.WithRequestID(reqID)
	l.Debug().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", rw.status).
		Dur("duration", time.Since(start)).
		Msg("HTTP request")
}

type processRequest struct {
	Count int    `json:"count"`
	Model string `json:"model"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
	}
	if req.Count < 0 {
		writeError(w, http.StatusBadRequest, "count must not be negative")
		return
	}

	since := s.cfg.Jobs.Events().LastSeq()
	st, err := s.cfg.Jobs.Start(s.baseCtx, jobs.Request{Count: req.Count, Model: req.Model})
	switch {
	case errors.Is(err, jobs.ErrBusy):
		writeError(w, http.StatusConflict, "busy")
		return
	case err != nil:
		s.log.Warn().Err(err).Msg("Batch start rejected")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if r.URL.Query().Get("stream") != "" {
		s.streamJob(w, r, since)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": st.JobID,
		"state":  st.Status,
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "since must be a non-negative integer")
			return
		}
		since = n
	}
	s.streamJob(w, r, since)
}

// streamJob follows the console from since until the job is no longer running.
func (s *Server) streamJob(w http.ResponseWriter, r *http.Request, since int64) {
	sse, ok := newEventStream(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	bus := s.cfg.Jobs.Events()
	keepAlive := time.NewTicker(s.cfg.KeepAlive)
	defer keepAlive.Stop()

	for {
		changed := bus.Changed()
		for _, l := range bus.Since(since) {
			sse.send(l.Text)
			since = l.Seq
		}
		if !s.cfg.Jobs.Running() {
			// Lines published between Since and Running are flushed here.
			for _, l := range bus.Since(since) {
				sse.send(l.Text)
			}
			sse.send(DoneMarker)
			return
		}
		sse.flush()

		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			sse.comment("keep-alive")
		case <-changed:
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Jobs.State())
}

func (s *Server) handleCancel(w http.ResponseWriter, _ *http.Request) {
	running := s.cfg.Jobs.Cancel()
	writeJSON(w, http.StatusOK, map[string]bool{"cancel_requested": running})
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	var models []string
	if s.cfg.Models != nil {
		var err error
		models, err = s.cfg.Models()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if models == nil {
		models = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"models":  models,
		"default": s.cfg.DefaultModel,
	})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Syncer == nil {
		writeError(w, http.StatusServiceUnavailable, "no document source configured")
		return
	}
	folder := r.URL.Query().Get("folder")
	if folder == "" {
		folder = s.cfg.SyncFolder
	}

	sse, ok := newEventStream(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// The sync keeps running if the client goes away; only the stream stops.
	lines := make(chan string, 64)
	type outcome struct {
		res docsource.SyncResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.cfg.Syncer.Sync(s.baseCtx, folder, func(line string) {
			select {
			case lines <- line:
			default:
			}
		})
		done <- outcome{res, err}
	}()

	for {
		select {
		case line := <-lines:
			sse.send(line)
			sse.flush()
		case o := <-done:
			for drained := false; !drained; {
				select {
				case line := <-lines:
					sse.send(line)
				default:
					drained = true
				}
			}
			if errors.Is(o.err, docsource.ErrSyncRunning) {
				sse.send("A sync is already running.")
			} else if o.err != nil {
				sse.send("Sync failed: " + o.err.Error())
			}
			sse.send(DoneMarker)
			return
		case <-r.Context().Done():
			return
		}
	}
}

// eventStream writes server-sent events.
type eventStream struct {
	w http.ResponseWriter
	f http.Flusher
}

func newEventStream(w http.ResponseWriter) (*eventStream, bool) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &eventStream{w: w, f: f}, true
}

// send writes one event; a multi-line message becomes several data lines.
func (e *eventStream) send(msg string) {
	for _, line := range strings.Split(msg, "\n") {
		fmt.Fprintf(e.w, "data: %s\n", line)
	}
	fmt.Fprint(e.w, "\n")
	e.f.Flush()
}

func (e *eventStream) comment(text string) {
	fmt.Fprintf(e.w, ": %s\n\n", text)
	e.f.Flush()
}

func (e *eventStream) flush() {
	e.f.Flush()
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
