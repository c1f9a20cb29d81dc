// Package api provides HTTP API handlers for glowlens sessions, snapshots and the catalog.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/glowlens/internal/session"
)

// Sessions looks up the live session for a subject kind ("face" or "hand").
type Sessions interface {
	Session(kind string) (*session.Session, bool)
}

type errorResponse struct {
	Error      string              `json:"error"`
	Affordance *session.Affordance `json:"affordance,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// kindParam returns the {kind} URL parameter if it names a subject kind.
func kindParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	kind := chi.URLParam(r, "kind")
	if kind != "face" && kind != "hand" {
		writeError(w, http.StatusNotFound, "Unknown subject kind")
		return "", false
	}
	return kind, true
}
