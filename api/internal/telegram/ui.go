package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cbReport = "report"
	cbReset  = "reset"
)

// Кнопки под отчётом
func makeReportKeyboard() tgbotapi.InlineKeyboardMarkup {
	rep := tgbotapi.NewInlineKeyboardButtonData("📊 Отчёт", cbReport)
	reset := tgbotapi.NewInlineKeyboardButtonData("🗑 Сбросить", cbReset)
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(rep, reset))
}
