package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"damage-assessor/api/internal/app"
	"damage-assessor/api/internal/config"
	"damage-assessor/api/internal/httpserver"
	"damage-assessor/api/internal/llm"
	"damage-assessor/api/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if strings.TrimSpace(cfg.TelegramBotToken) == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN is empty")
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

	// --- Telegram bot ---
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Fatal(err)
	}
	bot.Debug = false

	def, err := d.Engines.Default()
	if err != nil {
		log.Fatal(err)
	}
	r := &telegram.Router{
		Bot:        bot,
		EngManager: llm.NewManager(def),
		Engines:    d.Engines,
		Sessions:   d.Sessions,
		Orch:       d.Orch,
	}

	// --- HTTP mux (DefaultServeMux) ---
	// ListenForWebhook регистрирует обработчик на DefaultServeMux, health живёт там же.
	http.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if d.Store != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			if err := d.Store.Ping(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("db: not ok\n" + err.Error()))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := cfg.Addr()

	// --- Choose mode: Webhook vs Polling ---
	if webhookURL := strings.TrimSpace(cfg.WebhookURL); webhookURL != "" {
		startWebhookMode(ctx, addr, bot, r, webhookURL)
	} else {
		startPollingMode(ctx, addr, bot, r)
	}
}

// ---------------- Modes -----------------

func startWebhookMode(ctx context.Context, addr string, bot *tgbotapi.BotAPI, r *telegram.Router, baseURL string) {
	// секретный путь вебхука
	path := "/webhook/" + shortHash(bot.Token)
	public := strings.TrimRight(baseURL, "/") + path

	wh, err := tgbotapi.NewWebhook(public)
	if err != nil {
		log.Fatal(err)
	}
	wh.DropPendingUpdates = true
	if _, err := bot.Request(wh); err != nil {
		log.Fatal(err)
	}

	updates := bot.ListenForWebhook(path)
	go func() {
		for upd := range updates {
			r.HandleUpdate(upd)
		}
		log.Printf("[INFO] webhook updates channel closed")
	}()

	log.Printf("[INFO] webhook listening on %s%s", addr, path)
	if err := httpserver.Serve(ctx, addr, http.DefaultServeMux); err != nil {
		log.Printf("[ERROR] server: %v", err)
	}
}

func startPollingMode(ctx context.Context, addr string, bot *tgbotapi.BotAPI, r *telegram.Router) {
	// health-сервер, для polling не обязателен
	go func() {
		log.Printf("[INFO] health server listening on %s/healthz", addr)
		if err := httpserver.Serve(ctx, addr, http.DefaultServeMux); err != nil {
			log.Printf("[ERROR] health server: %v", err)
		}
	}()

	// webhook мешает getUpdates
	if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		log.Printf("[WARN] delete webhook: %v", err)
	}
	runPolling(ctx, bot, r.HandleUpdate)
}

// ---------------- Polling loop -----------------

var reRetryAfter = regexp.MustCompile(`(?i)retry after\s+(\d+)`)

func retryDelayFromError(err error) time.Duration {
	if err == nil {
		return 0
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "too many requests") { // HTTP 429 от Telegram
		if m := reRetryAfter.FindStringSubmatch(s); len(m) == 2 {
			if n, _ := strconv.Atoi(m[1]); n > 0 {
				return time.Duration(n) * time.Second
			}
		}
		return 3 * time.Second
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 2 * time.Second
	}
	return 1 * time.Second
}

func clampDelay(d time.Duration) time.Duration {
	const (
		baseDelay = 1 * time.Second
		maxDelay  = 15 * time.Second
	)
	return min(max(d, baseDelay), maxDelay)
}

func runPolling(ctx context.Context, bot *tgbotapi.BotAPI, handle func(tgbotapi.Update)) {
	offset := 0
	for {
		select {
		case <-ctx.Done():
			log.Printf("[INFO] polling: context cancelled")
			return
		default:
		}

		u := tgbotapi.NewUpdate(offset)
		u.Timeout = 30 // long polling timeout (sec)

		updates, err := bot.GetUpdates(u)
		if err != nil {
			d := clampDelay(retryDelayFromError(err))
			log.Printf("[WARN] polling error: %v; retry in %v", err, d)
			sleep(ctx, d)
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			handle(upd)
		}

		if len(updates) == 0 {
			sleep(ctx, 200*time.Millisecond)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// ---------------- Helpers -----------------

func shortHash(s string) string {
	// лёгкий хэш для пути вебхука (не крипто, но стабильно для токена)
	h := uint64(1469598103934665603)
	const prime = 1099511628211
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	// 16-символьный hex
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		out[i] = hexdigits[h&0xF]
		h >>= 4
	}
	return string(out)
}
