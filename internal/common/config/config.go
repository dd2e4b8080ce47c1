// internal/common/config/config.go
package config

import "time"

// Config is the main application configuration struct.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Session    SessionConfig    `mapstructure:"session"`
	Drafts     DraftsConfig     `mapstructure:"drafts"`
	Templates  TemplatesConfig  `mapstructure:"templates"`
	Validation ValidationConfig `mapstructure:"validation"`
	Generation GenerationConfig `mapstructure:"generation"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Language    string `mapstructure:"language"`
}

// StorageConfig selects and configures the persistence backend.
// Backend is one of "auto", "local", "sqlite" or "redis".
type StorageConfig struct {
	Backend string       `mapstructure:"backend"`
	Local   LocalConfig  `mapstructure:"local"`
	SQLite  SQLiteConfig `mapstructure:"sqlite"`
	Redis   RedisConfig  `mapstructure:"redis"`
}

type LocalConfig struct {
	Path       string `mapstructure:"path"` // empty keeps everything in memory
	QuotaBytes int64  `mapstructure:"quota_bytes"`
}

type SQLiteConfig struct {
	Path        string `mapstructure:"path"`
	BusyTimeout int    `mapstructure:"busy_timeout"` // milliseconds
}

type RedisConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	Namespace string `mapstructure:"namespace"`
}

// --- Assistant Configuration ---

type SessionConfig struct {
	Duration           int      `mapstructure:"duration"`       // milliseconds
	SweepInterval      int      `mapstructure:"sweep_interval"` // milliseconds
	MaxInvalidAttempts int      `mapstructure:"max_invalid_attempts"`
	LegacyKeys         []string `mapstructure:"legacy_keys"`
}

type DraftsConfig struct {
	MaxDrafts        int `mapstructure:"max_drafts"`
	AutoSaveInterval int `mapstructure:"auto_save_interval"` // milliseconds
}

// TemplatesConfig points at an alternative template registry. Empty uses the embedded one.
type TemplatesConfig struct {
	RegistryPath string `mapstructure:"registry_path"`
}

type ValidationConfig struct {
	BlacklistPath string `mapstructure:"blacklist_path"`
}

// GenerationConfig points at the text-generation service. An empty BaseURL
// disables section drafting.
type GenerationConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	Timeout     int     `mapstructure:"timeout"` // milliseconds
	MaxRetries  int     `mapstructure:"max_retries"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
