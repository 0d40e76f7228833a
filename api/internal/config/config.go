package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Port string `toml:"port"`

	TelegramBotToken string `toml:"telegram_bot_token"`
	WebhookURL       string `toml:"webhook_url"`

	DatabaseURL string `toml:"database_url"`
	SQLitePath  string `toml:"sqlite_path"`

	// server-wide defaults; users override them in Profile
	GeminiAPIKey string `toml:"gemini_api_key"`
	GeminiModel  string `toml:"gemini_model"`

	CameraURL  string `toml:"camera_url"`
	CameraFile string `toml:"camera_file"`
	// hold the camera only while capturing; always on with Telegram
	CameraOnDemand bool `toml:"camera_on_demand"`

	CropSurfaceW int `toml:"crop_surface_w"`
	CropSurfaceH int `toml:"crop_surface_h"`

	// public origin of the web app; same-origin checks for the asset cache
	PublicOrigin      string `toml:"public_origin"`
	AssetCacheVersion string `toml:"asset_cache_version"`

	LogLevel string `toml:"log_level"`
}

func defaults() *Config {
	return &Config{
		Port:              "8080",
		GeminiModel:       "gemini-2.5-flash",
		SQLitePath:        "snap-solver.db",
		CropSurfaceW:      300,
		CropSurfaceH:      300,
		AssetCacheVersion: "solver-cache-v1",
		LogLevel:          "info",
	}
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

// Load reads CONFIG_FILE (TOML) when set, then lets environment variables
// override individual keys.
func Load() (*Config, error) {
	cfg := defaults()
	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)
	cfg.WebhookURL = getEnv("WEBHOOK_URL", cfg.WebhookURL)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.SQLitePath = getEnv("SQLITE_PATH", cfg.SQLitePath)
	cfg.GeminiAPIKey = getEnv("GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.GeminiModel = getEnv("GEMINI_MODEL", cfg.GeminiModel)
	cfg.CameraURL = getEnv("CAMERA_URL", cfg.CameraURL)
	cfg.CameraFile = getEnv("CAMERA_FILE", cfg.CameraFile)
	if s := getEnv("CAMERA_ON_DEMAND", ""); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("CAMERA_ON_DEMAND: %w", err)
		}
		cfg.CameraOnDemand = b
	}
	cfg.PublicOrigin = getEnv("PUBLIC_ORIGIN", cfg.PublicOrigin)
	cfg.AssetCacheVersion = getEnv("ASSET_CACHE_VERSION", cfg.AssetCacheVersion)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	if s := getEnv("CROP_SURFACE", ""); s != "" {
		w, h, err := parseSize(s)
		if err != nil {
			return nil, fmt.Errorf("CROP_SURFACE: %w", err)
		}
		cfg.CropSurfaceW, cfg.CropSurfaceH = w, h
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.CropSurfaceW <= 0 || c.CropSurfaceH <= 0 {
		return fmt.Errorf("crop surface must be positive, got %dx%d", c.CropSurfaceW, c.CropSurfaceH)
	}
	if strings.TrimSpace(c.GeminiModel) == "" {
		return fmt.Errorf("gemini model is empty")
	}
	if c.WebhookURL != "" && c.TelegramBotToken == "" {
		return fmt.Errorf("webhook url set without a telegram bot token")
	}
	return nil
}

// DSN prefers DATABASE_URL, then a postgres DSN built from POSTGRES_*/PG*
// when POSTGRES_PASSWORD or PGHOST is present, then the SQLite path.
func (c *Config) DSN() string {
	if v := strings.TrimSpace(c.DatabaseURL); v != "" {
		return v
	}
	if os.Getenv("POSTGRES_PASSWORD") == "" && os.Getenv("PGHOST") == "" {
		return c.SQLitePath
	}
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getEnv("POSTGRES_USER", "solver"), os.Getenv("POSTGRES_PASSWORD")),
		Host:     net.JoinHostPort(getEnv("PGHOST", "db"), getEnv("PGPORT", "5432")),
		Path:     "/" + getEnv("POSTGRES_DB", "solver"),
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func parseSize(s string) (int, int, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("want WxH, got %q", s)
	}
	wi, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil {
		return 0, 0, fmt.Errorf("width: %w", err)
	}
	hi, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return 0, 0, fmt.Errorf("height: %w", err)
	}
	return wi, hi, nil
}
