// Package config loads AstroNow configuration from the environment.
package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-driven settings. Command-line flags in cmd
// may override individual fields.
type Config struct {
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	OpenAIKey        string `env:"OPENAI_API_KEY"`
	DatabaseDSN      string `env:"DATABASE_URL"`
	StateDir         string `env:"ASTRONOW_STATE_DIR" envDefault:"/var/lib/astronow"`
	APIAddr          string `env:"API_ADDR" envDefault:":8080"`
	HoroscopeCron    string `env:"HOROSCOPE_SCHEDULE" envDefault:"0 9 * * *"`
	EngagementCron   string `env:"ENGAGEMENT_SCHEDULE" envDefault:"0 */4 * * *"`
	CleanupCron      string `env:"CLEANUP_SCHEDULE" envDefault:"30 3 * * *"`
	RetentionDays    int    `env:"RETENTION_DAYS" envDefault:"90"`
	PersonaFile      string `env:"PERSONA_PROMPT_FILE"`
}

// Load reads .env (if present) and parses the environment into a Config.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}

	slog.Debug("environment configuration loaded",
		"TELEGRAM_BOT_TOKEN_SET", cfg.TelegramBotToken != "",
		"OPENAI_API_KEY_SET", cfg.OpenAIKey != "",
		"DATABASE_URL_SET", cfg.DatabaseDSN != "",
		"ASTRONOW_STATE_DIR", cfg.StateDir,
		"API_ADDR", cfg.APIAddr)
	return cfg, nil
}
