package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ayusman/glowlens/internal/analysis"
	"github.com/ayusman/glowlens/internal/store"
)

// SnapshotHandler serves saved results and the export log.
type SnapshotHandler struct {
	store *store.Store
}

// NewSnapshotHandler creates a SnapshotHandler.
func NewSnapshotHandler(s *store.Store) *SnapshotHandler {
	return &SnapshotHandler{store: s}
}

type snapshotResponse struct {
	Key     string           `json:"key"`
	SavedAt string           `json:"saved_at"`
	Result  *analysis.Result `json:"result"`
}

type listExportsResponse struct {
	Exports []*store.Export `json:"exports"`
}

// Get handles GET /api/snapshots/{kind}.
func (h *SnapshotHandler) Get(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}

	snap, err := h.store.Snapshots().Get(r.Context(), kind)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "No saved result")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get snapshot")
		return
	}

	res, err := snap.Result()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to decode snapshot")
		return
	}

	writeJSON(w, http.StatusOK, snapshotResponse{
		Key:     snap.Key,
		SavedAt: snap.SavedAt.Format(time.RFC3339),
		Result:  res,
	})
}

// Delete handles DELETE /api/snapshots/{kind}.
func (h *SnapshotHandler) Delete(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}

	if err := h.store.Snapshots().Delete(r.Context(), kind); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "No saved result")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete snapshot")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Exports handles GET /api/exports?limit=N.
func (h *SnapshotHandler) Exports(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	exports, err := h.store.Exports().List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list exports")
		return
	}
	if exports == nil {
		exports = []*store.Export{}
	}

	writeJSON(w, http.StatusOK, listExportsResponse{Exports: exports})
}
