package handle

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"damage-assessor/api/internal/assess"
	"damage-assessor/api/internal/damage"
	"damage-assessor/api/internal/session"
	"damage-assessor/api/internal/util"
)

type sessionView struct {
	ID     string                 `json:"id"`
	Images []damage.ImageAnalysis `json:"images"`
	Report damage.Report          `json:"report"`
}

func (h *Handle) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, http.StatusNotFound, "Session not found", nil)
		return nil, false
	}
	return s, true
}

func (h *Handle) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Create()
	writeJSON(w, r, http.StatusCreated, map[string]any{"id": s.ID, "createdAt": s.CreatedAt})
}

func (h *Handle) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	snap := s.Snapshot()
	writeJSON(w, r, http.StatusOK, sessionView{ID: s.ID, Images: snap, Report: damage.Aggregate(snap)})
}

func (h *Handle) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.Delete(chi.URLParam(r, "id")) {
		writeError(w, r, http.StatusNotFound, "Session not found", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handle) RemoveImage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if !s.Remove(chi.URLParam(r, "imageID")) {
		writeError(w, r, http.StatusNotFound, "Image not found", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addImagesRequest struct {
	Images []struct {
		ImageBase64 string `json:"imageBase64"`
		ImageName   string `json:"imageName"`
	} `json:"images"`
	Engine string `json:"engine,omitempty"`
}

// AddImages: POST /api/sessions/{id}/images. Принимает JSON с base64
// или multipart с полями image. Отвечает сразу заглушками, анализ идёт в фоне.
func (h *Handle) AddImages(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var (
		uploads []session.Upload
		skipped []string
		engine  string
		err     error
	)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "multipart/form-data" {
		uploads, skipped, engine, err = readMultipart(r)
	} else {
		uploads, skipped, engine, err = readJSONImages(r)
	}
	if err != nil {
		if errors.Is(err, assess.ErrNoImage) {
			writeError(w, r, http.StatusBadRequest, "No image provided", nil)
			return
		}
		writeError(w, r, http.StatusBadRequest, "Invalid request", err)
		return
	}
	if _, err := h.svc.Engines().GetEngine(engine); err != nil {
		writeError(w, r, http.StatusBadRequest, "Unknown engine", err)
		return
	}
	if len(uploads) == 0 {
		writeError(w, r, http.StatusBadRequest, "No image provided", nil)
		return
	}

	placeholders := make([]damage.ImageAnalysis, 0, len(uploads))
	for _, up := range uploads {
		up.Engine = engine
		placeholders = append(placeholders, h.orch.Submit(r.Context(), s, up))
	}
	if skipped == nil {
		skipped = []string{}
	}
	writeJSON(w, r, http.StatusAccepted, map[string]any{"images": placeholders, "skipped": skipped})
}

func readJSONImages(r *http.Request) ([]session.Upload, []string, string, error) {
	var req addImagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, nil, "", fmt.Errorf("bad json: %w", err)
	}
	var (
		out     []session.Upload
		skipped []string
	)
	for i, img := range req.Images {
		up, err := assess.Decode(img.ImageBase64, img.ImageName)
		switch {
		case errors.Is(err, assess.ErrNotImage):
			skipped = append(skipped, img.ImageName)
			continue
		case err != nil:
			return nil, nil, "", fmt.Errorf("images[%d]: %w", i, err)
		}
		out = append(out, up)
	}
	return out, skipped, req.Engine, nil
}

func readMultipart(r *http.Request) ([]session.Upload, []string, string, error) {
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		return nil, nil, "", fmt.Errorf("bad multipart: %w", err)
	}
	var files []*multipart.FileHeader
	for _, key := range []string{"image", "images"} {
		files = append(files, r.MultipartForm.File[key]...)
	}

	var (
		out     []session.Upload
		skipped []string
	)
	for _, fh := range files {
		data, err := readFile(fh)
		if err != nil {
			return nil, nil, "", err
		}
		mt := fh.Header.Get("Content-Type")
		if mt == "" || mt == "application/octet-stream" {
			mt = util.SniffMimeHTTP(data)
		}
		if len(data) == 0 || !util.IsImageMIME(mt) {
			skipped = append(skipped, fh.Filename)
			continue
		}
		out = append(out, session.Upload{Name: fh.Filename, Data: data, MIME: mt})
	}
	return out, skipped, strings.TrimSpace(r.FormValue("engine")), nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
