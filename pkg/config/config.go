package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Storage   StorageConfig   `json:"storage"`
	Retention RetentionConfig `json:"retention"`
	Discord   DiscordConfig   `json:"discord"`
	AI        AIConfig        `json:"ai"`
	Log       LogConfig       `json:"log"`
	mu        sync.RWMutex
}

type StorageConfig struct {
	Path           string `json:"path" env:"RUMI_STORAGE_PATH"`
	MaxOpenConns   int    `json:"max_open_conns" env:"RUMI_STORAGE_MAX_OPEN_CONNS"`
	BusyTimeoutMS  int    `json:"busy_timeout_ms" env:"RUMI_STORAGE_BUSY_TIMEOUT_MS"`
	QueryTimeoutMS int    `json:"query_timeout_ms" env:"RUMI_STORAGE_QUERY_TIMEOUT_MS"`
}

type RetentionConfig struct {
	RawDays     int    `json:"raw_days" env:"RUMI_RETENTION_RAW_DAYS"`
	SummaryDays int    `json:"summary_days" env:"RUMI_RETENTION_SUMMARY_DAYS"`
	Schedule    string `json:"schedule" env:"RUMI_RETENTION_SCHEDULE"` // cron, UTC
}

type DiscordConfig struct {
	Token string `json:"token" env:"RUMI_DISCORD_TOKEN"`
	// GuildID registers slash commands in one guild only. Empty registers
	// them globally.
	GuildID string `json:"guild_id" env:"RUMI_DISCORD_GUILD_ID"`
	// AllowFrom lists the guild ids whose messages are recorded.
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"RUMI_DISCORD_ALLOW_FROM"`
}

type AIConfig struct {
	APIKey                string  `json:"api_key" env:"RUMI_AI_API_KEY"`
	BaseURL               string  `json:"base_url" env:"RUMI_AI_BASE_URL"`
	Model                 string  `json:"model" env:"RUMI_AI_MODEL"`
	SummaryTemperature    float32 `json:"summary_temperature" env:"RUMI_AI_SUMMARY_TEMPERATURE"`
	AnalysisTemperature   float32 `json:"analysis_temperature" env:"RUMI_AI_ANALYSIS_TEMPERATURE"`
	SummaryMaxTokens      int     `json:"summary_max_tokens" env:"RUMI_AI_SUMMARY_MAX_TOKENS"`
	AnalysisMaxTokens     int     `json:"analysis_max_tokens" env:"RUMI_AI_ANALYSIS_MAX_TOKENS"`
	ChatTemperature       float32 `json:"chat_temperature" env:"RUMI_AI_CHAT_TEMPERATURE"`
	RuminateTemperature   float32 `json:"ruminate_temperature" env:"RUMI_AI_RUMINATE_TEMPERATURE"`
	ChatMaxTokens         int     `json:"chat_max_tokens" env:"RUMI_AI_CHAT_MAX_TOKENS"`
	// Persona replaces the assistant's default voice in /chat and /ruminate.
	Persona               string  `json:"persona" env:"RUMI_AI_PERSONA"`
	RequestTimeoutSeconds int     `json:"request_timeout_seconds" env:"RUMI_AI_REQUEST_TIMEOUT_SECONDS"`
}

type LogConfig struct {
	Level string `json:"level" env:"RUMI_LOG_LEVEL"`
}

func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Path:           "~/.rumi/data/rumi_memory.db",
			MaxOpenConns:   4,
			BusyTimeoutMS:  5000,
			QueryTimeoutMS: 10000,
		},
		Retention: RetentionConfig{
			RawDays:     30,
			SummaryDays: 90,
			Schedule:    "0 4 * * *",
		},
		Discord: DiscordConfig{
			Token:     "",
			AllowFrom: FlexibleStringSlice{},
		},
		AI: AIConfig{
			Model:                 "llama3-70b-8192",
			SummaryTemperature:    0.3,
			AnalysisTemperature:   0.4,
			SummaryMaxTokens:      500,
			AnalysisMaxTokens:     400,
			ChatTemperature:       0.9,
			RuminateTemperature:   0.95,
			ChatMaxTokens:         600,
			RequestTimeoutSeconds: 60,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultPath is where the CLI looks for its config file.
func DefaultPath() string {
	return expandHome("~/.rumi/config.json")
}

// LoadConfig reads path over the defaults and then applies RUMI_*
// environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Validate rejects settings the store and sweeper cannot run with.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs []error
	if strings.TrimSpace(c.Storage.Path) == "" {
		errs = append(errs, errors.New("storage.path is required"))
	}
	if c.Storage.MaxOpenConns < 0 {
		errs = append(errs, errors.New("storage.max_open_conns must not be negative"))
	}
	if c.Retention.RawDays <= 0 {
		errs = append(errs, fmt.Errorf("retention.raw_days must be positive, got %d", c.Retention.RawDays))
	}
	if c.Retention.SummaryDays <= 0 {
		errs = append(errs, fmt.Errorf("retention.summary_days must be positive, got %d", c.Retention.SummaryDays))
	}
	if c.Retention.SummaryDays > 0 && c.Retention.RawDays > c.Retention.SummaryDays {
		errs = append(errs, errors.New("retention.summary_days must not be shorter than retention.raw_days"))
	}
	if !gronx.New().IsValid(c.Retention.Schedule) {
		errs = append(errs, fmt.Errorf("retention.schedule %q is not a valid cron expression", c.Retention.Schedule))
	}
	return errors.Join(errs...)
}

func (c *Config) StoragePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Storage.Path)
}

func (c *Config) BusyTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Storage.BusyTimeoutMS) * time.Millisecond
}

func (c *Config) QueryTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Storage.QueryTimeoutMS) * time.Millisecond
}

func (c *Config) GetAPIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.AI.APIKey
}

func (c *Config) GetBaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.AI.BaseURL != "" {
		return c.AI.BaseURL
	}
	return "https://api.groq.com/openai/v1"
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
