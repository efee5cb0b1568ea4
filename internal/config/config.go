package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	APIToken             string            `yaml:"api_token"`
	APIBaseURL           string            `yaml:"api_base_url"`
	DatabasePath         string            `yaml:"database_path"`
	LogLevel             string            `yaml:"log_level"`
	RetentionDays        int               `yaml:"retention_days"`
	Health               HealthConfig      `yaml:"health"`
	Defaults             ChatDefaults      `yaml:"chat_defaults"`
	Links                LinkConfig        `yaml:"links"`
	Duplicate            DuplicateConfig   `yaml:"duplicate"`
	AntiBot              AntiBotConfig     `yaml:"antibot"`
	Ladder               LadderConfig      `yaml:"ladder"`
	Restriction          RestrictionConfig `yaml:"restriction"`
	QuietHours           QuietHoursConfig  `yaml:"quiet_hours"`
	Cleanup              CleanupConfig     `yaml:"cleanup"`
	AdminCacheTTLMinutes int               `yaml:"admin_cache_ttl_minutes"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// ChatDefaults seeds the settings row for a chat the first time it is seen.
type ChatDefaults struct {
	Enabled           bool `yaml:"enabled"`
	DailyLimit        int  `yaml:"daily_limit"`
	PhotoLimitPerHour int  `yaml:"photo_limit_per_hour"`
	MaxTextLength     int  `yaml:"max_text_length"`
	SpamThreshold     int  `yaml:"spam_threshold"`
	SpamWindowSeconds int  `yaml:"spam_window_seconds"`
}

type LinkConfig struct {
	WindowHours int `yaml:"window_hours"`
}

type DuplicateConfig struct {
	WindowHours  int `yaml:"window_hours"`
	MinLength    int `yaml:"min_length"`
	MaxSignature int `yaml:"max_signature"`
	SweepMinutes int `yaml:"sweep_minutes"`
}

type AntiBotConfig struct {
	ActThreshold     float64 `yaml:"act_threshold"`
	MuteThreshold    float64 `yaml:"mute_threshold"`
	SoftThreshold    float64 `yaml:"soft_threshold"`
	HistoryMinutes   int     `yaml:"history_minutes"`
	BurstShortSec    int     `yaml:"burst_short_seconds"`
	BurstMediumSec   int     `yaml:"burst_medium_seconds"`
	BurstShortLimit  int     `yaml:"burst_short_limit"`
	BurstMediumLimit int     `yaml:"burst_medium_limit"`
}

type LadderConfig struct {
	DecayHours      int `yaml:"decay_hours"`
	MuteMinutes     int `yaml:"mute_minutes"`
	DoubleMuteHours int `yaml:"double_mute_hours"`
}

type RestrictionConfig struct {
	EvasionDeletes int `yaml:"evasion_deletes"`
	RejoinHours    int `yaml:"rejoin_hours"`
	SoftBanHours   int `yaml:"soft_ban_hours"`
}

// QuietHoursConfig maps chat ids to IANA timezone names. Only mapped chats
// are subject to the overnight window.
type QuietHoursConfig struct {
	StartHour int              `yaml:"start_hour"`
	EndHour   int              `yaml:"end_hour"`
	Chats     map[int64]string `yaml:"chats"`
}

type CleanupConfig struct {
	IntervalMinutes  int `yaml:"interval_minutes"`
	BatchSize        int `yaml:"batch_size"`
	RetryMinutes     int `yaml:"retry_minutes"`
	QueueCeilingDays int `yaml:"queue_ceiling_days"`
}

func DefaultConfig() Config {
	return Config{
		APIBaseURL:    "https://botapi.max.ru",
		DatabasePath:  "/data/chatguard.db",
		LogLevel:      "info",
		RetentionDays: 30,
		Health:        HealthConfig{Enabled: false, Addr: ":8080"},
		Defaults: ChatDefaults{
			Enabled:           true,
			DailyLimit:        0,
			PhotoLimitPerHour: 10,
			MaxTextLength:     4000,
			SpamThreshold:     5,
			SpamWindowSeconds: 15,
		},
		Links:     LinkConfig{WindowHours: 24},
		Duplicate: DuplicateConfig{WindowHours: 24, MinLength: 12, MaxSignature: 256, SweepMinutes: 10},
		AntiBot: AntiBotConfig{
			ActThreshold:     60,
			MuteThreshold:    90,
			SoftThreshold:    70,
			HistoryMinutes:   30,
			BurstShortSec:    10,
			BurstMediumSec:   60,
			BurstShortLimit:  4,
			BurstMediumLimit: 12,
		},
		Ladder:               LadderConfig{DecayHours: 24, MuteMinutes: 60, DoubleMuteHours: 24},
		Restriction:          RestrictionConfig{EvasionDeletes: 5, RejoinHours: 3, SoftBanHours: 24},
		QuietHours:           QuietHoursConfig{StartHour: 23, EndHour: 7, Chats: map[int64]string{}},
		Cleanup:              CleanupConfig{IntervalMinutes: 10, BatchSize: 50, RetryMinutes: 15, QueueCeilingDays: 7},
		AdminCacheTTLMinutes: 5,
	}
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if cfg.APIToken == "" {
		return Config{}, errors.New("API_TOKEN is required")
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.QuietHours.StartHour < 0 || c.QuietHours.StartHour > 23 ||
		c.QuietHours.EndHour < 0 || c.QuietHours.EndHour > 23 {
		return errors.New("quiet hours must be within 0-23")
	}
	for chatID, zone := range c.QuietHours.Chats {
		if _, err := time.LoadLocation(zone); err != nil {
			return fmt.Errorf("quiet hours chat %d: unknown timezone %q", chatID, zone)
		}
	}
	if c.Cleanup.BatchSize <= 0 {
		return errors.New("cleanup batch size must be positive")
	}
	return nil
}

// RetentionWindow is the longest rolling window any check reads, so the
// purge job never deletes rows a live query still needs.
func (c Config) RetentionWindow() time.Duration {
	days := c.RetentionDays
	if days < 7 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

func applyEnv(cfg *Config) {
	cfg.APIToken = envString("API_TOKEN", cfg.APIToken)
	cfg.APIBaseURL = envString("API_BASE_URL", cfg.APIBaseURL)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.RetentionDays = envInt("RETENTION_DAYS", cfg.RetentionDays)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Defaults.Enabled = envBool("CHAT_ENABLED", cfg.Defaults.Enabled)
	cfg.Defaults.DailyLimit = envInt("DAILY_LIMIT", cfg.Defaults.DailyLimit)
	cfg.Defaults.PhotoLimitPerHour = envInt("PHOTO_LIMIT_PER_HOUR", cfg.Defaults.PhotoLimitPerHour)
	cfg.Defaults.MaxTextLength = envInt("MAX_TEXT_LENGTH", cfg.Defaults.MaxTextLength)
	cfg.Defaults.SpamThreshold = envInt("SPAM_THRESHOLD", cfg.Defaults.SpamThreshold)
	cfg.Defaults.SpamWindowSeconds = envInt("SPAM_WINDOW_SECONDS", cfg.Defaults.SpamWindowSeconds)
	cfg.Ladder.DecayHours = envInt("STRIKE_DECAY_HOURS", cfg.Ladder.DecayHours)
	cfg.Ladder.MuteMinutes = envInt("MUTE_MINUTES", cfg.Ladder.MuteMinutes)
	cfg.Restriction.RejoinHours = envInt("REJOIN_HOURS", cfg.Restriction.RejoinHours)
	cfg.Cleanup.IntervalMinutes = envInt("CLEANUP_INTERVAL_MINUTES", cfg.Cleanup.IntervalMinutes)
	cfg.AdminCacheTTLMinutes = envInt("ADMIN_CACHE_TTL_MINUTES", cfg.AdminCacheTTLMinutes)
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl := strings.ToLower(level)
	switch lvl {
	case "debug", "info", "warn", "error":
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(lvl))
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
