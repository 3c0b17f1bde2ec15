package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"damage-assessor/api/internal/app"
	"damage-assessor/api/internal/config"
	"damage-assessor/api/internal/handle"
	"damage-assessor/api/internal/httpserver"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := app.Wire(ctx, cfg)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Printf("[WARN] shutdown: %v", err)
		}
	}()

	h := handle.New(d.Service, d.Sessions, d.Orch, d.Store)
	router := httpserver.NewRouter(h, httpserver.Options{RatePerMinute: cfg.RateLimitPerMinute})

	log.Printf("[INFO] damage assessor listening on %s", cfg.Addr())
	if err := httpserver.Serve(ctx, cfg.Addr(), router); err != nil {
		log.Printf("[ERROR] server: %v", err)
	}
}
