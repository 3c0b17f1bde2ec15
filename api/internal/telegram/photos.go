package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/errgroup"

	"damage-assessor/api/internal/damage"
	"damage-assessor/api/internal/session"
	"damage-assessor/api/internal/util"
)

// PhotoAcceptedText: первый ответ после получения фото/первой страницы альбома.
const PhotoAcceptedText = "📷 Фото принято, анализирую. Можно прислать ещё снимки, они войдут в общий отчёт."

func (r *Router) acceptPhoto(msg *tgbotapi.Message, fileID, name, mime string) {
	cid := msg.Chat.ID
	url, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		r.SendError(cid, err)
		return
	}
	data, err := r.download(context.Background(), url)
	if err != nil {
		r.SendError(cid, err)
		return
	}
	mime = util.PickMIME(mime, "", data)
	if !util.IsImageMIME(mime) {
		r.send(cid, "Это не изображение. Пришлите фото автомобиля.")
		return
	}
	if name == "" {
		name = fmt.Sprintf("photo_%d.jpg", msg.MessageID)
	}

	key := "chat:" + fmt.Sprint(cid)
	if msg.MediaGroupID != "" {
		key = "grp:" + msg.MediaGroupID
	}

	bi, _ := r.batches.LoadOrStore(key, &photoBatch{ChatID: cid, Key: key, MediaGroupID: msg.MediaGroupID})
	b := bi.(*photoBatch)

	b.mu.Lock()
	b.photos = append(b.photos, photo{Name: name, MIME: mime, Data: data})
	first := len(b.photos) == 1
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(r.debounce(), func() { r.processBatch(key) })
	b.mu.Unlock()

	if first {
		r.send(cid, PhotoAcceptedText)
	}
}

func (r *Router) debounce() time.Duration {
	if r.Debounce > 0 {
		return r.Debounce
	}
	return debounce
}

func (r *Router) processBatch(key string) {
	bi, ok := r.batches.LoadAndDelete(key)
	if !ok {
		return
	}
	b := bi.(*photoBatch)

	b.mu.Lock()
	photos := append([]photo(nil), b.photos...)
	chatID := b.ChatID
	b.mu.Unlock()

	if len(photos) == 0 {
		return
	}
	r.analyzeBatch(context.Background(), chatID, photos)
}

// analyzeBatch прогоняет пакет через оркестратор и отвечает
// находками по каждому фото и сводным отчётом.
func (r *Router) analyzeBatch(ctx context.Context, chatID int64, photos []photo) {
	s := r.session(chatID)
	engine := ""
	if eng := r.EngManager.Get(chatID); eng != nil {
		engine = eng.Name()
	}

	// плейсхолдеры публикуются по порядку до запуска анализа,
	// чтобы номера в ответах совпадали с /remove N
	uploads := make([]session.Upload, len(photos))
	ids := make([]string, len(photos))
	for i, p := range photos {
		uploads[i] = session.Upload{Name: p.Name, Data: p.Data, MIME: p.MIME, Engine: engine}
		ids[i] = r.Orch.Publish(s, uploads[i]).ID
	}

	results := make([]damage.ImageAnalysis, len(photos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchParallel)
	for i := range uploads {
		g.Go(func() error {
			results[i] = r.Orch.Complete(gctx, s, ids[i], uploads[i])
			return nil
		})
	}
	_ = g.Wait()

	for i, a := range results {
		n := s.Index(ids[i])
		if n == 0 {
			continue // удалено, пока шёл анализ
		}
		r.send(chatID, FormatImage(n, a))
	}
	r.sendWithKeyboard(chatID, FormatReport(s.Report()))
}

func (r *Router) download(ctx context.Context, url string) ([]byte, error) {
	client := r.HTTP
	if client == nil {
		client = retryablehttp.NewClient()
		client.RetryMax = 2
		client.HTTPClient.Timeout = 60 * time.Second
		client.Logger = nil
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("download: status %d: %s", resp.StatusCode, string(b))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	if len(data) > maxFileBytes {
		return nil, fmt.Errorf("download: file exceeds %d bytes", maxFileBytes)
	}
	return data, nil
}
