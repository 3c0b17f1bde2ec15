package handle

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"damage-assessor/api/internal/store"
)

func (h *Handle) requireStore(w http.ResponseWriter, r *http.Request) bool {
	if h.store == nil {
		writeError(w, r, http.StatusServiceUnavailable, "History store is not configured", nil)
		return false
	}
	return true
}

func (h *Handle) ListHistory(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w, r) {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	page, err := h.store.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Failed to fetch history", err)
		return
	}
	writeJSON(w, r, http.StatusOK, page)
}

func (h *Handle) GetHistory(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w, r) {
		return
	}
	rec, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "Analysis not found", nil)
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Failed to fetch analysis", err)
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

func (h *Handle) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w, r) {
		return
	}
	err := h.store.Delete(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "Analysis not found", nil)
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Failed to delete analysis", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handle) Statistics(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w, r) {
		return
	}
	st, err := h.store.Statistics(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Failed to compute statistics", err)
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}
