package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"snap-solver/api/internal/app"
)

func (r *Router) onTab(ctx context.Context, chatID int64, _ *tgbotapi.CallbackQuery, arg string) {
	tab, ok := app.ParseTab(arg)
	if !ok {
		return
	}
	r.showTab(ctx, chatID, tab)
}

func (r *Router) onMode(ctx context.Context, chatID int64, _ *tgbotapi.CallbackQuery, arg string) {
	mode, ok := app.ParseMode(arg)
	if !ok {
		return
	}
	r.switchMode(ctx, chatID, mode)
}

// onSubject updates the chip row in place.
func (r *Router) onSubject(_ context.Context, chatID int64, cb *tgbotapi.CallbackQuery, arg string) {
	v, err := r.App.SelectSubject(chatID, arg)
	if err != nil {
		r.notify(chatID, err)
		return
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, cb.Message.MessageID, homeKeyboard(v))
	if _, err := r.Bot.Send(edit); err != nil {
		r.Log.Debugf("edit chips chat=%d: %v", chatID, err)
	}
}

func (r *Router) onSnap(ctx context.Context, chatID int64, _ *tgbotapi.CallbackQuery, _ string) {
	r.snap(ctx, chatID)
}

func (r *Router) onCrop(ctx context.Context, chatID int64, _ *tgbotapi.CallbackQuery, arg string) {
	switch arg {
	case "up", "down", "left", "right":
		r.nudge(chatID, arg)
	case "ok":
		r.confirm(ctx, chatID)
	case "cancel":
		r.cancel(chatID)
	}
}

func (r *Router) onHistory(ctx context.Context, chatID int64, _ *tgbotapi.CallbackQuery, arg string) {
	if arg == "clear" {
		r.clearHistory(ctx, chatID)
	}
}
