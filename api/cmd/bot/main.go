package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"snap-solver/api/internal/app"
	"snap-solver/api/internal/assets"
	"snap-solver/api/internal/camera"
	"snap-solver/api/internal/config"
	"snap-solver/api/internal/handle"
	"snap-solver/api/internal/httpserver"
	"snap-solver/api/internal/logging"
	"snap-solver/api/internal/solver/gemini"
	"snap-solver/api/internal/store"
	"snap-solver/api/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New("snap-solver", cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Errorf("exit: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (err error) {
	// --- Database ---
	dsn := cfg.DSN()
	db, err := store.Open(ctx, dsn)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, db.Close()) }()
	log.Infof("db connected: %s", safeDSNSummary(dsn))

	history := store.NewHistoryRepo(db)
	settings := store.NewSettingsRepo(db, store.Settings{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel})

	// --- Camera ---
	device := camera.NewDevice(camera.OpenerFor(cfg.CameraURL, cfg.CameraFile))
	if cfg.CameraURL == "" && cfg.CameraFile == "" {
		log.Infof("no camera configured; photo upload only")
	}

	ctl := app.New(history, settings, device, gemini.Factory(), app.Options{
		SurfaceW: cfg.CropSurfaceW,
		SurfaceH: cfg.CropSurfaceH,
		Log:      log.Named("app"),
		// chats never see a live stream, and one idle chat must not lock out the rest
		CameraOnDemand: cfg.CameraOnDemand || cfg.TelegramBotToken != "",
	})
	defer func() { err = multierr.Append(err, ctl.Close()) }()

	// --- Web client cache ---
	cache, err := assets.NewCache(assets.Static(), cfg.PublicOrigin)
	if err != nil {
		return err
	}
	if err := cache.Install(cfg.AssetCacheVersion); err != nil {
		return err
	}
	purged, err := cache.Activate(cfg.AssetCacheVersion)
	if err != nil {
		return err
	}
	log.Infof("asset cache %s active (purged %v)", cfg.AssetCacheVersion, purged)

	mux := http.NewServeMux()
	handle.New(ctl, db, log.Named("http")).Register(mux)

	// --- Telegram bot (optional) ---
	if token := strings.TrimSpace(cfg.TelegramBotToken); token != "" {
		bot, err := tgbotapi.NewBotAPI(token)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		bot.Debug = false
		tlog := log.Named("telegram")
		router := telegram.NewRouter(bot, ctl, tlog)
		defer router.Wait()
		if _, err := bot.Request(tgbotapi.NewSetMyCommands(telegram.Commands()...)); err != nil {
			tlog.Warnf("set commands: %v", err)
		}

		if webhookURL := strings.TrimSpace(cfg.WebhookURL); webhookURL != "" {
			if err := startWebhookMode(ctx, mux, bot, router, webhookURL, tlog); err != nil {
				return err
			}
		} else {
			go runPolling(ctx, bot, func(upd tgbotapi.Update) { router.HandleUpdate(ctx, upd) }, tlog)
		}
	} else {
		log.Infof("TELEGRAM_BOT_TOKEN is empty; bot disabled")
	}

	srv := httpserver.New("0.0.0.0:"+cfg.Port, cache.Handler(mux))
	return httpserver.ListenAndRun(ctx, srv, log)
}

// ---------------- Helpers -----------------

func shortHash(s string) string {
	// FNV-1a, stable per token, used to hide the webhook path
	h := uint64(1469598103934665603)
	const prime = 1099511628211
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		out[i] = hexdigits[h&0xF]
		h >>= 4
	}
	return string(out)
}

func safeDSNSummary(dsn string) string {
	if store.Driver(dsn) == "sqlite" {
		return "sqlite " + dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "dsn: parse error"
	}
	user := u.User.Username()
	host := u.Host
	port := ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	db := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return fmt.Sprintf("host=%s db=%s user=%s", host, db, user)
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, db, user)
}
