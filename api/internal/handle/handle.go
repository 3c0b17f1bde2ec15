package handle

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"damage-assessor/api/internal/assess"
	"damage-assessor/api/internal/session"
	"damage-assessor/api/internal/store"
)

const maxBodyBytes = 32 << 20

type Handle struct {
	svc      *assess.Service
	sessions *session.Registry
	orch     *session.Orchestrator
	store    store.Store
}

func New(svc *assess.Service, sessions *session.Registry, orch *session.Orchestrator, st store.Store) *Handle {
	return &Handle{
		svc:      svc,
		sessions: sessions,
		orch:     orch,
		store:    st,
	}
}

// Register вешает все ручки API на роутер.
func (h *Handle) Register(r chi.Router) {
	r.Get("/healthz", h.Healthz)

	r.Route("/api", func(r chi.Router) {
		r.Post("/analyze", h.Analyze)
		r.Post("/report", h.Report)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.CreateSession)
			r.Get("/{id}", h.GetSession)
			r.Delete("/{id}", h.DeleteSession)
			r.Post("/{id}/images", h.AddImages)
			r.Delete("/{id}/images/{imageID}", h.RemoveImage)
		})

		r.Route("/history", func(r chi.Router) {
			r.Get("/", h.ListHistory)
			r.Get("/{id}", h.GetHistory)
			r.Delete("/{id}", h.DeleteHistory)
		})
		r.Get("/statistics", h.Statistics)
	})
}

func (h *Handle) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	render.Status(r, code)
	render.JSON(w, r, v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string, err error) {
	body := map[string]string{"error": msg}
	if err != nil {
		body["message"] = err.Error()
	}
	if code >= http.StatusInternalServerError {
		log.Printf("[ERROR] %s %s: %s: %v", r.Method, r.URL.Path, msg, err)
	}
	writeJSON(w, r, code, body)
}
