package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/glowlens/internal/capture"
	"github.com/ayusman/glowlens/internal/detector"
	"github.com/ayusman/glowlens/internal/logger"
	"github.com/ayusman/glowlens/internal/render"
	"github.com/ayusman/glowlens/internal/session"
)

// SessionHandler exposes session operations under /api/sessions/{kind}.
type SessionHandler struct {
	sessions Sessions
	log      logrus.FieldLogger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(s Sessions, log logrus.FieldLogger) *SessionHandler {
	return &SessionHandler{sessions: s, log: logger.OrDiscard(log)}
}

// Lookup resolves the {kind} parameter to a session, writing 404 if there is none.
func (h *SessionHandler) Lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	kind, ok := kindParam(w, r)
	if !ok {
		return nil, false
	}
	s, ok := h.sessions.Session(kind)
	if !ok {
		writeError(w, http.StatusNotFound, "No session for "+kind)
		return nil, false
	}
	return s, true
}

// Status handles GET /api/sessions/{kind}.
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	s, ok := h.Lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Status())
}

// Start handles POST /api/sessions/{kind}/start.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.do(w, r, func(s *session.Session) error { return s.StartCamera(r.Context()) })
}

// Stop handles POST /api/sessions/{kind}/stop.
func (h *SessionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.do(w, r, func(s *session.Session) error { return s.Stop() })
}

// Capture handles POST /api/sessions/{kind}/capture.
func (h *SessionHandler) Capture(w http.ResponseWriter, r *http.Request) {
	h.do(w, r, func(s *session.Session) error { return s.Capture() })
}

// Reset handles POST /api/sessions/{kind}/reset.
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.do(w, r, func(s *session.Session) error { return s.Reset(r.Context()) })
}

// Acknowledge handles POST /api/sessions/{kind}/acknowledge.
func (h *SessionHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	h.do(w, r, func(s *session.Session) error { return s.Acknowledge() })
}

// Save handles POST /api/sessions/{kind}/save.
func (h *SessionHandler) Save(w http.ResponseWriter, r *http.Request) {
	h.do(w, r, func(s *session.Session) error { return s.Save(r.Context()) })
}

// Result handles GET /api/sessions/{kind}/result.
func (h *SessionHandler) Result(w http.ResponseWriter, r *http.Request) {
	s, ok := h.Lookup(w, r)
	if !ok {
		return
	}
	res, err := s.Result()
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Export handles GET /api/sessions/{kind}/export and returns the card as a download.
func (h *SessionHandler) Export(w http.ResponseWriter, r *http.Request) {
	s, ok := h.Lookup(w, r)
	if !ok {
		return
	}

	art, err := s.Export(r.Context())
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(art.Data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Filename))
	w.WriteHeader(http.StatusOK)
	w.Write(art.Data)
}

// do runs op and answers with the resulting status.
func (h *SessionHandler) do(w http.ResponseWriter, r *http.Request, op func(*session.Session) error) {
	s, ok := h.Lookup(w, r)
	if !ok {
		return
	}
	if err := op(s); err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Status())
}

func (h *SessionHandler) writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	// The client went away; nobody is left to read an error
	if r.Context().Err() != nil && errors.Is(err, context.Canceled) {
		return
	}

	var (
		rejected  *session.CaptureRejectedError
		camErr    *capture.CameraError
		loadErr   *detector.ModelLoadError
		renderErr *render.RenderError
		status    int
	)

	switch {
	case errors.As(err, &rejected):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &camErr), errors.As(err, &loadErr):
		status = http.StatusServiceUnavailable
	case errors.As(err, &renderErr):
		status = http.StatusInternalServerError
	case errors.Is(err, session.ErrInvalidState), errors.Is(err, session.ErrStopped):
		status = http.StatusConflict
	case errors.Is(err, session.ErrNoResult):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrNoStore):
		status = http.StatusNotImplemented
	default:
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", r.URL.Path).Warn("session request failed")
	}

	a := session.AffordanceFor(err)
	writeJSON(w, status, errorResponse{Error: err.Error(), Affordance: &a})
}
