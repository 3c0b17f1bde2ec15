package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"damage-assessor/api/internal/damage"
	"damage-assessor/api/internal/llm"
	"damage-assessor/api/internal/session"
)

type fakeBot struct {
	mu      sync.Mutex
	texts   []string
	fileURL string
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.mu.Lock()
		f.texts = append(f.texts, m.Text)
		f.mu.Unlock()
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBot) GetFileDirectURL(string) (string, error) { return f.fileURL, nil }

func (f *fakeBot) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func (f *fakeBot) last() string {
	s := f.sent()
	if len(s) == 0 {
		return ""
	}
	return s[len(s)-1]
}

type fakeEngine struct{ name string }

func (e fakeEngine) Name() string     { return e.name }
func (e fakeEngine) GetModel() string { return e.name + "-model" }
func (e fakeEngine) Analyze(context.Context, llm.Image) (damage.AnalysisResult, error) {
	return damage.AnalysisResult{}, nil
}

// analyzer отдаёт одно повреждение на фото, кроме файлов с "broken" в имени.
type analyzer struct{}

func (analyzer) AnalyzeUpload(_ context.Context, up session.Upload) (damage.ImageAnalysis, error) {
	if strings.Contains(up.Name, "broken") {
		return damage.ImageAnalysis{}, llm.ErrUpstream
	}
	return damage.ImageAnalysis{
		Engine: up.Engine,
		Damages: []damage.Damage{{
			Part: "Front Bumper", DamageType: "dent", Severity: damage.SeverityModerate,
			Location: "front left", EstimatedCost: 450,
		}},
		OverallCondition: damage.ConditionGood,
	}, nil
}

func newRouter(t *testing.T) (*Router, *fakeBot) {
	t.Helper()
	ds, oa := fakeEngine{"deepseek"}, fakeEngine{"openai"}
	engs := llm.NewEngines("deepseek", ds, oa)
	orch := session.NewOrchestrator(analyzer{}, session.Options{Timeout: time.Second})
	t.Cleanup(orch.Stop)
	bot := &fakeBot{}
	return &Router{
		Bot:        bot,
		EngManager: llm.NewManager(ds),
		Engines:    engs,
		Sessions:   session.NewRegistry(),
		Orch:       orch,
		Debounce:   20 * time.Millisecond,
	}, bot
}

func command(chatID int64, text string) tgbotapi.Update {
	cmd := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func TestEngineCommand(t *testing.T) {
	r, bot := newRouter(t)

	r.HandleUpdate(command(1, "/engine"))
	assert.Contains(t, bot.last(), "Текущий движок: deepseek")
	assert.Contains(t, bot.last(), "deepseek | openai")

	r.HandleUpdate(command(1, "/engine gpt"))
	assert.Contains(t, bot.last(), "openai (openai-model)")
	assert.Equal(t, "openai", r.EngManager.Get(1).Name())
	assert.Equal(t, "deepseek", r.EngManager.Get(2).Name())

	r.HandleUpdate(command(1, "/engine yandex"))
	assert.Contains(t, bot.last(), "Неизвестный движок")
	assert.Equal(t, "openai", r.EngManager.Get(1).Name())
}

func TestAnalyzeBatch_RepliesPerImageAndReport(t *testing.T) {
	r, bot := newRouter(t)

	r.analyzeBatch(context.Background(), 7, []photo{
		{Name: "front.jpg", MIME: "image/jpeg", Data: []byte{1}},
		{Name: "broken.jpg", MIME: "image/jpeg", Data: []byte{2}},
		{Name: "side.jpg", MIME: "image/jpeg", Data: []byte{3}},
	})

	texts := bot.sent()
	require.Len(t, texts, 4)
	assert.Contains(t, texts[0], "📷 1. front.jpg (Good)")
	assert.Contains(t, texts[0], "Front Bumper: dent (moderate), front left $450")
	assert.Contains(t, texts[1], "2. broken.jpg: ❌ Analysis failed")
	assert.Contains(t, texts[2], "3. side.jpg")

	// одинаковые повреждения с двух фото считаются один раз
	assert.Contains(t, texts[3], "(2 из 3 фото)")
	assert.Contains(t, texts[3], "Оценка ремонта: $450")
	assert.Contains(t, texts[3], "#Dent")

	s := r.session(7)
	assert.Equal(t, 3, s.Len())
	assert.Zero(t, s.Pending())
}

func TestRemoveAndResetCommands(t *testing.T) {
	r, bot := newRouter(t)
	r.analyzeBatch(context.Background(), 3, []photo{
		{Name: "a.jpg", Data: []byte{1}},
		{Name: "b.jpg", Data: []byte{2}},
	})

	r.HandleUpdate(command(3, "/remove 5"))
	assert.Contains(t, bot.last(), "Нет фото с номером 5 (всего: 2)")

	r.HandleUpdate(command(3, "/remove x"))
	assert.Contains(t, bot.last(), "числом")

	r.HandleUpdate(command(3, "/remove 1"))
	assert.Equal(t, 1, r.session(3).Len())
	assert.Contains(t, bot.last(), "1. b.jpg")

	r.HandleUpdate(command(3, "/reset"))
	assert.Zero(t, r.session(3).Len())

	r.HandleUpdate(command(3, "/report"))
	assert.Contains(t, bot.last(), "Фото пока нет")
}

// slowFirst отвечает тем позже, чем раньше фото в пакете.
type slowFirst struct {
	analyzer
	delay map[string]time.Duration
}

func (a slowFirst) AnalyzeUpload(ctx context.Context, up session.Upload) (damage.ImageAnalysis, error) {
	time.Sleep(a.delay[up.Name])
	return a.analyzer.AnalyzeUpload(ctx, up)
}

func TestAnalyzeBatch_NumbersFollowUploadOrder(t *testing.T) {
	r, bot := newRouter(t)
	an := slowFirst{delay: map[string]time.Duration{}}
	var photos []photo
	for i := range 8 {
		name := fmt.Sprintf("p%d.jpg", i)
		an.delay[name] = time.Duration(8-i) * 5 * time.Millisecond
		photos = append(photos, photo{Name: name, Data: []byte{byte(i)}})
	}
	r.Orch = session.NewOrchestrator(an, session.Options{Timeout: time.Second})
	t.Cleanup(r.Orch.Stop)

	r.analyzeBatch(context.Background(), 11, photos)

	texts := bot.sent()
	require.Len(t, texts, 9)
	for i := range 8 {
		assert.Contains(t, texts[i], fmt.Sprintf("%d. p%d.jpg", i+1, i))
	}
	for i, a := range r.session(11).Snapshot() {
		assert.Equal(t, fmt.Sprintf("p%d.jpg", i), a.ImageName)
	}

	r.HandleUpdate(command(11, "/remove 1"))
	first := r.session(11).Snapshot()[0]
	assert.Equal(t, "p1.jpg", first.ImageName)
}

func TestPhotoBatchIsDebounced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10})
	}))
	defer srv.Close()

	r, bot := newRouter(t)
	r.Debounce = 300 * time.Millisecond
	bot.fileURL = srv.URL + "/file.jpg"

	for i := range 2 {
		r.HandleUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
			MessageID:    100 + i,
			Chat:         &tgbotapi.Chat{ID: 9},
			MediaGroupID: "album",
			Photo:        []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "big"}},
		}})
	}

	require.Eventually(t, func() bool {
		return strings.Contains(bot.last(), "📊 Сводный отчёт (2 из 2 фото)")
	}, 3*time.Second, 10*time.Millisecond)

	texts := bot.sent()
	assert.Equal(t, PhotoAcceptedText, texts[0])
	assert.Len(t, texts, 4)
	assert.Equal(t, 2, r.session(9).Len())
}

func TestDocumentMustBeImage(t *testing.T) {
	r, bot := newRouter(t)
	r.HandleUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: 4},
		Document: &tgbotapi.Document{FileID: "f", FileName: "notes.pdf", MimeType: "application/pdf"},
	}})
	assert.Contains(t, bot.last(), "Это не изображение")
	assert.Zero(t, r.session(4).Len())
}

func TestFormatImage(t *testing.T) {
	assert.Equal(t, "📷 2. x.jpg: ⏳ анализируется", FormatImage(2, damage.ImageAnalysis{ImageName: "x.jpg", Loading: true}))
	assert.Equal(t, "📷 1. x.jpg (Excellent)\nDamage not clearly visible in this image.",
		FormatImage(1, damage.ImageAnalysis{
			ImageName: "x.jpg", Damages: []damage.Damage{}, OverallCondition: damage.ConditionExcellent,
			Message: llm.NotVisibleMessage,
		}))
	assert.Contains(t, FormatImage(1, damage.ImageAnalysis{ID: "id-1", OverallCondition: damage.ConditionGood}), "1. id-1 (Good)\nПовреждений не найдено.")
}

func TestClip(t *testing.T) {
	long := strings.Repeat("я", 5000)
	out := clip(long)
	assert.Equal(t, 3901, len([]rune(out)))
	assert.True(t, strings.HasSuffix(out, "…"))
	assert.Equal(t, "ok", clip("ok"))
}
