package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server  ServerConfig  `json:"server"`
	LINE    LINEConfig    `json:"line"`
	Gemini  GeminiConfig  `json:"gemini"`
	Assets  AssetsConfig  `json:"assets"`
	Logging LoggingConfig `json:"logging"`
}

type ServerConfig struct {
	Host string `json:"host" env:"KAMIYUI_SERVER_HOST"`
	Port int    `json:"port" env:"KAMIYUI_SERVER_PORT"`
}

type LINEConfig struct {
	ChannelSecret      string `json:"channel_secret" env:"KAMIYUI_LINE_CHANNEL_SECRET"`
	ChannelAccessToken string `json:"channel_access_token" env:"KAMIYUI_LINE_CHANNEL_ACCESS_TOKEN"`
	RetryAttempts      int    `json:"retry_attempts" env:"KAMIYUI_LINE_RETRY_ATTEMPTS"`
	RetryBaseDelayMS   int    `json:"retry_base_delay_ms" env:"KAMIYUI_LINE_RETRY_BASE_DELAY_MS"`
}

type GeminiConfig struct {
	APIKey         string `json:"api_key" env:"KAMIYUI_GEMINI_API_KEY"`
	Model          string `json:"model" env:"KAMIYUI_GEMINI_MODEL"`
	TimeoutSeconds int    `json:"timeout_seconds" env:"KAMIYUI_GEMINI_TIMEOUT_SECONDS"`
}

type AssetsConfig struct {
	Dir             string `json:"dir" env:"KAMIYUI_ASSETS_DIR"`
	PublicBaseURL   string `json:"public_base_url" env:"KAMIYUI_ASSETS_PUBLIC_BASE_URL"`
	TTLMinutes      int    `json:"ttl_minutes" env:"KAMIYUI_ASSETS_TTL_MINUTES"`
	CleanupSchedule string `json:"cleanup_schedule" env:"KAMIYUI_ASSETS_CLEANUP_SCHEDULE"`
	CacheSeconds    int    `json:"cache_seconds" env:"KAMIYUI_ASSETS_CACHE_SECONDS"`
}

type LoggingConfig struct {
	Level       string `json:"level" env:"KAMIYUI_LOGGING_LEVEL"`
	FileEnabled bool   `json:"file_enabled" env:"KAMIYUI_LOGGING_FILE_ENABLED"`
	FilePath    string `json:"file_path" env:"KAMIYUI_LOGGING_FILE_PATH"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		LINE: LINEConfig{
			RetryAttempts:    3,
			RetryBaseDelayMS: 500,
		},
		Gemini: GeminiConfig{
			Model:          "gemini-2.5-flash-image",
			TimeoutSeconds: 120,
		},
		Assets: AssetsConfig{
			Dir:             "~/.kamiyui/assets",
			TTLMinutes:      60,
			CleanupSchedule: "*/10 * * * *",
			CacheSeconds:    600,
		},
		Logging: LoggingConfig{
			Level:       "info",
			FileEnabled: false,
			FilePath:    "~/.kamiyui/kamiyui.log",
		},
	}
}

// LoadConfig reads the JSON config at path (missing file falls back to
// defaults) and applies KAMIYUI_* environment overrides on top.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	cfg.Assets.Dir = expandHome(cfg.Assets.Dir)
	cfg.Logging.FilePath = expandHome(cfg.Logging.FilePath)
	cfg.Assets.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.Assets.PublicBaseURL), "/")

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.LINE.ChannelSecret) == "" {
		return errors.New("line.channel_secret is required")
	}
	if strings.TrimSpace(c.LINE.ChannelAccessToken) == "" {
		return errors.New("line.channel_access_token is required")
	}
	if strings.TrimSpace(c.Gemini.APIKey) == "" {
		return errors.New("gemini.api_key is required")
	}
	if c.Assets.PublicBaseURL == "" {
		return errors.New("assets.public_base_url is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Assets.CleanupSchedule != "" && !gronx.New().IsValid(c.Assets.CleanupSchedule) {
		return fmt.Errorf("assets.cleanup_schedule is not a valid cron expression: %q", c.Assets.CleanupSchedule)
	}
	return nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
