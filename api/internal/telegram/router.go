package telegram

import (
	"context"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"snap-solver/api/internal/app"
	"snap-solver/api/internal/util"
)

// BotAPI is the part of *tgbotapi.BotAPI the router uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

type (
	commandHandler  func(ctx context.Context, chatID int64, msg *tgbotapi.Message, args string)
	callbackHandler func(ctx context.Context, chatID int64, cb *tgbotapi.CallbackQuery, arg string)
)

type Router struct {
	Bot BotAPI
	App *app.Controller
	Log *zap.SugaredLogger

	// Download fetches a file by URL; nil means plain HTTP GET.
	Download func(ctx context.Context, url string) ([]byte, error)

	commands  map[string]commandHandler
	callbacks map[string]callbackHandler

	mu       sync.Mutex
	previews map[int64]int // chat -> crop preview message

	wg sync.WaitGroup
}

// NewRouter builds the command and callback tables once.
func NewRouter(bot BotAPI, ctl *app.Controller, log *zap.SugaredLogger) *Router {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	r := &Router{Bot: bot, App: ctl, Log: log, previews: make(map[int64]int)}
	r.commands = map[string]commandHandler{
		"start":         r.cmdStart,
		"help":          r.cmdHelp,
		"home":          r.cmdTab(app.TabHome),
		"explore":       r.cmdTab(app.TabExplore),
		"profile":       r.cmdTab(app.TabProfile),
		"camera":        r.cmdMode(app.ModeCamera),
		"chat":          r.cmdMode(app.ModeChat),
		"snap":          r.cmdSnap,
		"subject":       r.cmdSubject,
		"apikey":        r.cmdAPIKey,
		"model":         r.cmdModel,
		"clear_history": r.cmdClearHistory,
	}
	r.callbacks = map[string]callbackHandler{
		"tab":  r.onTab,
		"mode": r.onMode,
		"subj": r.onSubject,
		"snap": r.onSnap,
		"crop": r.onCrop,
		"hist": r.onHistory,
	}
	return r
}

// Commands lists the bot menu in display order.
func Commands() []tgbotapi.BotCommand {
	return []tgbotapi.BotCommand{
		{Command: "home", Description: "Camera and chat"},
		{Command: "snap", Description: "Take a camera frame"},
		{Command: "explore", Description: "Recent answers"},
		{Command: "profile", Description: "API key and model"},
		{Command: "subject", Description: "Pick a subject"},
		{Command: "apikey", Description: "Set your Gemini API key"},
		{Command: "model", Description: "Set the Gemini model"},
		{Command: "clear_history", Description: "Delete saved answers"},
		{Command: "help", Description: "How it works"},
	}
}

// HandleUpdate dispatches one update. Inference runs in the background; Wait
// blocks until it finishes.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		r.handleCallback(ctx, upd.CallbackQuery)
		return
	}
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	cid := msg.Chat.ID

	switch {
	case msg.IsCommand():
		h, ok := r.commands[msg.Command()]
		if !ok {
			r.send(cid, "Unknown command. /help lists what I can do.")
			return
		}
		h(ctx, cid, msg, strings.TrimSpace(msg.CommandArguments()))
	case len(msg.Photo) > 0:
		r.acceptPhoto(ctx, msg)
	case msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/"):
		r.acceptPhoto(ctx, msg)
	case strings.TrimSpace(msg.Text) != "":
		r.chat(ctx, cid, msg.Text)
	}
}

func (r *Router) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	_, _ = r.Bot.Request(tgbotapi.NewCallback(cb.ID, "")) // ack
	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	action, arg, _ := strings.Cut(cb.Data, ":")
	h, ok := r.callbacks[action]
	if !ok {
		r.Log.Warnf("unknown callback %q", cb.Data)
		return
	}
	h(ctx, cb.Message.Chat.ID, cb, arg)
}

// Wait blocks until background inference started by HandleUpdate is done.
func (r *Router) Wait() { r.wg.Wait() }

func (r *Router) background(fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
}

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, util.Truncate(text, maxText))
	if _, err := r.Bot.Send(msg); err != nil {
		r.Log.Warnf("send chat=%d: %v", chatID, err)
	}
}

func (r *Router) sendWithKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, util.Truncate(text, maxText))
	msg.ReplyMarkup = kb
	if _, err := r.Bot.Send(msg); err != nil {
		r.Log.Warnf("send chat=%d: %v", chatID, err)
	}
}

func (r *Router) notify(chatID int64, err error) {
	if err != nil {
		r.send(chatID, app.Notice(err))
	}
}

// thinking is the in-chat progress message shown while a solve runs.
type thinking struct{ r *Router }

func (t thinking) ShowThinking(_ context.Context, owner int64) func() {
	m, err := t.r.Bot.Send(tgbotapi.NewMessage(owner, app.ThinkingText))
	if err != nil {
		t.r.Log.Warnf("thinking chat=%d: %v", owner, err)
		return func() {}
	}
	return func() {
		if _, err := t.r.Bot.Request(tgbotapi.NewDeleteMessage(owner, m.MessageID)); err != nil {
			t.r.Log.Warnf("delete thinking chat=%d: %v", owner, err)
		}
	}
}
