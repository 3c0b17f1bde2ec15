package telegram

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hashicorp/go-retryablehttp"

	"damage-assessor/api/internal/llm"
	"damage-assessor/api/internal/session"
)

// Bot: подмножество *tgbotapi.BotAPI, которым пользуется роутер.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Router struct {
	Bot        Bot
	EngManager *llm.Manager
	Engines    *llm.Engines
	Sessions   *session.Registry
	Orch       *session.Orchestrator

	// Debounce: пауза, после которой накопленные фото уходят в анализ.
	Debounce time.Duration
	// HTTP для скачивания файлов из Telegram; nil: клиент по умолчанию.
	HTTP *retryablehttp.Client

	batches sync.Map // key -> *photoBatch
}

func (r *Router) HandleUpdate(upd tgbotapi.Update) {
	// callback-кнопки
	if upd.CallbackQuery != nil {
		r.handleCallback(*upd.CallbackQuery)
		return
	}
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	cid := msg.Chat.ID

	if msg.IsCommand() {
		r.HandleCommand(msg)
		return
	}

	// фото
	if len(msg.Photo) > 0 {
		ph := msg.Photo[len(msg.Photo)-1]
		r.acceptPhoto(msg, ph.FileID, "", "")
		return
	}
	// снимок, отправленный файлом
	if d := msg.Document; d != nil {
		if !strings.HasPrefix(d.MimeType, "image/") {
			r.send(cid, "Это не изображение. Пришлите фото автомобиля.")
			return
		}
		r.acceptPhoto(msg, d.FileID, d.FileName, d.MimeType)
		return
	}
	if msg.Text != "" {
		r.send(cid, helpText)
	}
}

const helpText = "Пришлите фото повреждённого автомобиля (можно несколько или альбомом), " +
	"я найду повреждения и оценю стоимость ремонта.\n\n" +
	"Команды:\n" +
	"/report - сводный отчёт по всем фото\n" +
	"/remove N - убрать фото N из отчёта\n" +
	"/reset - начать заново\n" +
	"/engine [имя] - показать или сменить модель"

func (r *Router) HandleCommand(msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	args := strings.Fields(msg.CommandArguments())
	switch msg.Command() {
	case "start", "help":
		r.send(cid, helpText)
	case "report":
		r.sendReport(cid)
	case "reset":
		r.session(cid).Reset()
		r.send(cid, "🗑 Сессия очищена. Присылайте новые фото.")
	case "remove":
		r.handleRemove(cid, args)
	case "engine":
		r.handleEngineCommand(cid, args)
	default:
		r.send(cid, "Неизвестная команда. /help: список команд.")
	}
}

func (r *Router) handleRemove(chatID int64, args []string) {
	if len(args) != 1 {
		r.send(chatID, "Использование: /remove N (номер фото из списка)")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		r.send(chatID, "Номер фото должен быть числом.")
		return
	}
	s := r.session(chatID)
	a, ok := s.RemoveAt(n)
	if !ok {
		r.send(chatID, fmt.Sprintf("Нет фото с номером %d (всего: %d).", n, s.Len()))
		return
	}
	r.send(chatID, fmt.Sprintf("Фото %d (%s) убрано из отчёта.", n, displayName(a)))
	if s.Len() > 0 {
		r.sendReport(chatID)
	}
}

// handleEngineCommand показывает или переключает движок для чата.
// Форматы:
//
//	/engine
//	/engine {deepseek|openai|gpt|gemini}
func (r *Router) handleEngineCommand(chatID int64, args []string) {
	names := strings.Join(r.Engines.Names(), " | ")
	if len(args) == 0 {
		cur := r.EngManager.Get(chatID)
		if cur == nil {
			r.send(chatID, "Движок не выбран. Доступны: "+names)
			return
		}
		r.send(chatID, fmt.Sprintf("Текущий движок: %s (%s)\nДоступны: %s\nИспользование: /engine <имя>", cur.Name(), cur.GetModel(), names))
		return
	}
	eng, err := r.Engines.GetEngine(args[0])
	if err != nil {
		r.send(chatID, "Неизвестный движок. Доступны: "+names)
		return
	}
	r.EngManager.Set(chatID, eng)
	r.send(chatID, fmt.Sprintf("✅ Движок: %s (%s).", eng.Name(), eng.GetModel()))
}

func (r *Router) sendReport(chatID int64) {
	s := r.session(chatID)
	if s.Len() == 0 {
		r.send(chatID, "Фото пока нет. Пришлите снимки автомобиля.")
		return
	}
	text := FormatImageList(s.Snapshot()) + "\n\n" + FormatReport(s.Report())
	if p := s.Pending(); p > 0 {
		text += fmt.Sprintf("\n\n⏳ Ещё анализируются: %d", p)
	}
	r.sendWithKeyboard(chatID, text)
}

func (r *Router) session(chatID int64) *session.Session {
	return r.Sessions.GetOrCreate(sessionID(chatID))
}

func sessionID(chatID int64) string { return "tg:" + strconv.FormatInt(chatID, 10) }

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, clip(text))
	if _, err := r.Bot.Send(msg); err != nil {
		log.Printf("[WARN] telegram send to %d: %v", chatID, err)
	}
}

func (r *Router) sendWithKeyboard(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, clip(text))
	msg.ReplyMarkup = makeReportKeyboard()
	if _, err := r.Bot.Send(msg); err != nil {
		log.Printf("[WARN] telegram send to %d: %v", chatID, err)
	}
}

func (r *Router) SendError(chatID int64, err error) {
	log.Printf("[ERROR] chat %d: %v", chatID, err)
	r.send(chatID, "Не удалось обработать фото, попробуйте ещё раз.")
}

// clip обрезает текст под лимит сообщения Telegram.
func clip(text string) string {
	const limit = 3900
	rs := []rune(text)
	if len(rs) > limit {
		return string(rs[:limit]) + "…"
	}
	return text
}
