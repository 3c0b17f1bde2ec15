package httpserver

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-chi/render"

	"damage-assessor/api/internal/handle"
)

type Options struct {
	// RatePerMinute: лимит запросов с одного IP; 0 отключает лимит.
	RatePerMinute int
}

func NewRouter(h *handle.Handle, opt Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(handle.Recoverer)
	if opt.RatePerMinute > 0 {
		r.Use(httprate.LimitByIP(opt.RatePerMinute, 1*time.Minute)) // protect upstream quota
	}
	r.Use(render.SetContentType(render.ContentTypeJSON))
	h.Register(r)
	return r
}

// Serve слушает addr до отмены ctx, затем мягко гасит сервер.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Printf("[INFO] listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	log.Printf("[INFO] shutting down %s", addr)
	return srv.Shutdown(shutdownCtx)
}
