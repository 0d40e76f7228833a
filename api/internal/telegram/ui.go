package telegram

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"snap-solver/api/internal/app"
	"snap-solver/api/internal/store"
	"snap-solver/api/internal/util"
)

// maxText stays under Telegram's 4096 character message limit.
const maxText = 3900

func mark(active bool, label string) string {
	if active {
		return "• " + label
	}
	return label
}

func tabRow(v app.View) []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(mark(v.Tab == app.TabHome, "Home"), "tab:home"),
		tgbotapi.NewInlineKeyboardButtonData(mark(v.Tab == app.TabExplore, "Explore"), "tab:explore"),
		tgbotapi.NewInlineKeyboardButtonData(mark(v.Tab == app.TabProfile, "Profile"), "tab:profile"),
	)
}

// homeKeyboard: mode switch, subject chips, capture and the tab bar.
func homeKeyboard(v app.View) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(mark(v.Mode == app.ModeCamera, "📷 Camera"), "mode:camera"),
			tgbotapi.NewInlineKeyboardButtonData(mark(v.Mode == app.ModeChat, "💬 Chat"), "mode:chat"),
		),
	}
	var row []tgbotapi.InlineKeyboardButton
	for i, s := range app.Subjects {
		label := s
		if s == v.Subject {
			label = "✓ " + s
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, "subj:"+s))
		if len(row) == 4 || i == len(app.Subjects)-1 {
			rows = append(rows, row)
			row = nil
		}
	}
	if v.Mode == app.ModeCamera {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📸 Snap", "snap"),
		))
	}
	rows = append(rows, tabRow(v))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func cropKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬆️", "crop:up"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬅️", "crop:left"),
			tgbotapi.NewInlineKeyboardButtonData("⬇️", "crop:down"),
			tgbotapi.NewInlineKeyboardButtonData("➡️", "crop:right"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✖️ Cancel", "crop:cancel"),
			tgbotapi.NewInlineKeyboardButtonData("✅ Solve", "crop:ok"),
		),
	)
}

func profileKeyboard(v app.View) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗑 Clear history", "hist:clear"),
		),
		tabRow(v),
	)
}

func homeText(v app.View) string {
	if v.Mode == app.ModeChat {
		return "Chat mode. Send a question as a message.\nSubject: " + v.Subject
	}
	return "Camera mode. Press Snap or send a photo of the problem.\nSubject: " + v.Subject
}

func profileText(s store.Settings) string {
	key := util.MaskSecret(s.APIKey)
	if key == "" {
		key = "not set"
	}
	return fmt.Sprintf("Profile\nGemini API key: %s\nModel: %s\n\n/apikey <key> sets the key.\n/model <id> sets the model.", key, s.Model)
}

func historyText(entries []store.Entry) string {
	if len(entries) == 0 {
		return "History is empty."
	}
	var b strings.Builder
	b.WriteString("Recent problems:\n")
	for i, e := range entries {
		if i == 10 {
			fmt.Fprintf(&b, "…and %d more", len(entries)-i)
			break
		}
		line, _, _ := strings.Cut(strings.TrimSpace(e.Answer), "\n")
		fmt.Fprintf(&b, "\n%d) %s · %s\n%s\n", i+1, e.Subject, e.CreatedAt.Format(time.DateTime), util.Truncate(line, 120))
	}
	return b.String()
}

const helpText = `Snap a problem, crop it, get a step-by-step answer.

/home /explore /profile switch tabs
/snap takes a camera frame
/camera /chat switch modes
/subject <name> picks a subject
/apikey <key>, /model <id> update settings
/clear_history removes saved answers

You can also just send a photo.`
