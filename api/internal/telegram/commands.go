package telegram

import (
	"context"
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"snap-solver/api/internal/app"
	"snap-solver/api/internal/store"
)

func (r *Router) cmdStart(ctx context.Context, chatID int64, _ *tgbotapi.Message, _ string) {
	r.send(chatID, helpText)
	r.showTab(ctx, chatID, app.TabHome)
}

func (r *Router) cmdHelp(_ context.Context, chatID int64, _ *tgbotapi.Message, _ string) {
	r.send(chatID, helpText)
}

func (r *Router) cmdTab(tab app.Tab) commandHandler {
	return func(ctx context.Context, chatID int64, _ *tgbotapi.Message, _ string) {
		r.showTab(ctx, chatID, tab)
	}
}

func (r *Router) cmdMode(mode app.Mode) commandHandler {
	return func(ctx context.Context, chatID int64, _ *tgbotapi.Message, _ string) {
		r.switchMode(ctx, chatID, mode)
	}
}

func (r *Router) cmdSnap(ctx context.Context, chatID int64, _ *tgbotapi.Message, _ string) {
	r.snap(ctx, chatID)
}

func (r *Router) cmdSubject(_ context.Context, chatID int64, _ *tgbotapi.Message, args string) {
	if args == "" {
		v := r.App.View(chatID)
		r.send(chatID, "Subject: "+v.Subject+"\nOptions: "+strings.Join(app.Subjects, ", "))
		return
	}
	r.selectSubject(chatID, args)
}

func (r *Router) cmdAPIKey(ctx context.Context, chatID int64, msg *tgbotapi.Message, args string) {
	// the key should not linger in the chat
	if _, err := r.Bot.Request(tgbotapi.NewDeleteMessage(chatID, msg.MessageID)); err != nil {
		r.Log.Debugf("delete apikey message chat=%d: %v", chatID, err)
	}
	cur, err := r.App.Settings(ctx, chatID)
	if err != nil {
		r.Log.Errorf("settings chat=%d: %v", chatID, err)
		r.notify(chatID, err)
		return
	}
	cur.APIKey = args
	r.saveSettings(ctx, chatID, cur)
}

func (r *Router) cmdModel(ctx context.Context, chatID int64, _ *tgbotapi.Message, args string) {
	cur, err := r.App.Settings(ctx, chatID)
	if err != nil {
		r.Log.Errorf("settings chat=%d: %v", chatID, err)
		r.notify(chatID, err)
		return
	}
	if args == "" {
		r.send(chatID, "Model: "+cur.Model+"\nUsage: /model gemini-2.5-flash")
		return
	}
	cur.Model = args
	r.saveSettings(ctx, chatID, cur)
}

func (r *Router) saveSettings(ctx context.Context, chatID int64, s store.Settings) {
	saved, err := r.App.SaveSettings(ctx, chatID, s)
	if err != nil {
		r.Log.Errorf("save settings chat=%d: %v", chatID, err)
		r.notify(chatID, err)
		return
	}
	r.send(chatID, app.SavedText+"\n\n"+profileText(saved))
}

func (r *Router) cmdClearHistory(ctx context.Context, chatID int64, _ *tgbotapi.Message, _ string) {
	r.clearHistory(ctx, chatID)
}

// --------------------------- shared actions ---------------------------

func (r *Router) showTab(ctx context.Context, chatID int64, tab app.Tab) {
	tv, err := r.App.SwitchTab(ctx, chatID, tab)
	if err != nil {
		if !errors.Is(err, app.ErrCameraUnavailable) {
			r.Log.Errorf("switch tab chat=%d tab=%s: %v", chatID, tab, err)
		}
		r.notify(chatID, err)
	}
	switch tab {
	case app.TabExplore:
		r.sendWithKeyboard(chatID, historyText(tv.History), tgbotapi.NewInlineKeyboardMarkup(tabRow(tv.View)))
	case app.TabProfile:
		var s store.Settings
		if tv.Settings != nil {
			s = *tv.Settings
		}
		r.sendWithKeyboard(chatID, profileText(s), profileKeyboard(tv.View))
	default:
		r.sendWithKeyboard(chatID, homeText(tv.View), homeKeyboard(tv.View))
	}
}

func (r *Router) switchMode(ctx context.Context, chatID int64, mode app.Mode) {
	v, err := r.App.SwitchMode(ctx, chatID, mode)
	r.notify(chatID, err)
	r.sendWithKeyboard(chatID, homeText(v), homeKeyboard(v))
}

func (r *Router) selectSubject(chatID int64, subject string) {
	v, err := r.App.SelectSubject(chatID, subject)
	if err != nil {
		r.notify(chatID, err)
		return
	}
	r.send(chatID, "Subject: "+v.Subject)
}

func (r *Router) clearHistory(ctx context.Context, chatID int64) {
	if _, err := r.App.ClearHistory(ctx, chatID); err != nil {
		r.Log.Errorf("clear history chat=%d: %v", chatID, err)
		r.notify(chatID, err)
		return
	}
	r.send(chatID, app.ClearedText)
}

// chat sends a follow-up question; a message typed in camera mode switches
// to chat first.
func (r *Router) chat(ctx context.Context, chatID int64, text string) {
	if r.App.View(chatID).Mode != app.ModeChat {
		if _, err := r.App.SwitchMode(ctx, chatID, app.ModeChat); err != nil {
			r.Log.Warnf("switch to chat chat=%d: %v", chatID, err)
		}
	}
	r.background(func() {
		msgs, err := r.App.Chat(ctx, chatID, text)
		if err != nil {
			r.notify(chatID, err)
			return
		}
		r.send(chatID, msgs[len(msgs)-1].Text)
	})
}
