package handle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"damage-assessor/api/internal/assess"
	"damage-assessor/api/internal/damage"
	"damage-assessor/api/internal/llm"
)

const defaultDeadline = 180 * time.Second

// requestDeadline: X-Request-Timeout или ?timeoutSec, иначе 180 с.
func requestDeadline(r *http.Request) time.Duration {
	deadline := defaultDeadline
	if ts := r.Header.Get("X-Request-Timeout"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			deadline = time.Duration(v) * time.Second
		}
	} else if ts := r.URL.Query().Get("timeoutSec"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			deadline = time.Duration(v) * time.Second
		}
	}
	return deadline
}

// Analyze: POST /api/analyze {imageBase64, imageName, engine?}.
func (h *Handle) Analyze(w http.ResponseWriter, r *http.Request) {
	var req assess.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad json", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestDeadline(r))
	defer cancel()

	out, err := h.svc.Analyze(ctx, req)
	if err != nil {
		writeAnalyzeError(w, r, err)
		return
	}

	w.Header().Set("X-Engine", out.Engine+"/"+out.Model)
	if out.Cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	writeJSON(w, r, http.StatusOK, out.Result)
}

func writeAnalyzeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, assess.ErrNoImage):
		writeError(w, r, http.StatusBadRequest, "No image provided", nil)
	case errors.Is(err, assess.ErrBadImage), errors.Is(err, assess.ErrNotImage):
		writeError(w, r, http.StatusBadRequest, "Invalid image", err)
	case errors.Is(err, llm.ErrUnknownEngine):
		writeError(w, r, http.StatusBadRequest, "Unknown engine", err)
	case errors.Is(err, llm.ErrUpstream):
		writeError(w, r, http.StatusBadGateway, "Failed to analyze image", err)
	default:
		writeError(w, r, http.StatusInternalServerError, "Failed to analyze image", err)
	}
}

type reportRequest struct {
	Analyses []damage.ImageAnalysis `json:"analyses"`
}

// Report: POST /api/report: сводка по переданным результатам без состояния на сервере.
func (h *Handle) Report(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad json", err)
		return
	}
	writeJSON(w, r, http.StatusOK, damage.Aggregate(req.Analyses))
}
