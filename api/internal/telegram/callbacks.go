package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (r *Router) handleCallback(cb tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	cid := cb.Message.Chat.ID
	_, _ = r.Bot.Request(tgbotapi.NewCallback(cb.ID, "")) // ack

	switch cb.Data {
	case cbReport:
		r.sendReport(cid)
	case cbReset:
		r.session(cid).Reset()
		// убрать клавиатуру
		edit := tgbotapi.NewEditMessageReplyMarkup(cid, cb.Message.MessageID, tgbotapi.InlineKeyboardMarkup{})
		_, _ = r.Bot.Send(edit)
		r.send(cid, "🗑 Сессия очищена. Присылайте новые фото.")
	}
}
