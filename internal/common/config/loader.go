// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "GRANT"

var validBackends = map[string]bool{"auto": true, "local": true, "sqlite": true, "redis": true}

// Load reads configs/config.yaml (if any), merges the config.<APP_ENVIRONMENT>
// overlay and applies GRANT_* environment overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // overlay is optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)
	return v
}

// bindEnvKeys makes env-only overrides visible to Unmarshal, which ignores
// AutomaticEnv for keys absent from the config file.
func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"app.environment", "app.language",
		"storage.backend", "storage.local.path", "storage.local.quota_bytes",
		"storage.sqlite.path", "storage.sqlite.busy_timeout",
		"storage.redis.address", "storage.redis.password", "storage.redis.db", "storage.redis.namespace",
		"session.duration", "session.sweep_interval", "session.max_invalid_attempts",
		"drafts.max_drafts", "drafts.auto_save_interval",
		"templates.registry_path", "validation.blacklist_path",
		"generation.base_url", "generation.timeout", "generation.max_retries",
		"logging.level", "logging.format", "logging.output",
		"metrics.enabled", "metrics.address",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// loadEnvFile loads the first .env found walking up to the module root.
func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "grant-assistant"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}
	if cfg.App.Language == "" {
		cfg.App.Language = "en"
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "auto"
	}
	if cfg.Storage.Local.QuotaBytes == 0 {
		cfg.Storage.Local.QuotaBytes = 5 * 1024 * 1024
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "grant-assistant.db"
	}
	if cfg.Storage.SQLite.BusyTimeout == 0 {
		cfg.Storage.SQLite.BusyTimeout = 5000
	}
	if cfg.Storage.Redis.Namespace == "" {
		cfg.Storage.Redis.Namespace = "grant"
	}

	if cfg.Session.Duration == 0 {
		cfg.Session.Duration = 24 * 60 * 60 * 1000
	}
	if cfg.Session.SweepInterval == 0 {
		cfg.Session.SweepInterval = 60 * 60 * 1000
	}
	if cfg.Session.MaxInvalidAttempts == 0 {
		cfg.Session.MaxInvalidAttempts = 10
	}
	if len(cfg.Session.LegacyKeys) == 0 {
		cfg.Session.LegacyKeys = []string{"grantApplicationContext", "grant_context", "applicationContext"}
	}

	if cfg.Drafts.MaxDrafts == 0 {
		cfg.Drafts.MaxDrafts = 10
	}
	if cfg.Drafts.AutoSaveInterval == 0 {
		cfg.Drafts.AutoSaveInterval = 30000
	}

	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = 30000
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 800
	}
	if cfg.Generation.Temperature == 0 {
		cfg.Generation.Temperature = 0.4
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}

	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":9090"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if !validBackends[cfg.Storage.Backend] {
		return fmt.Errorf("storage.backend must be one of auto, local, sqlite, redis (got %q)", cfg.Storage.Backend)
	}
	if cfg.Storage.Backend == "redis" && cfg.Storage.Redis.Address == "" {
		return fmt.Errorf("storage.redis.address is required when storage.backend is redis")
	}
	if cfg.Storage.Local.QuotaBytes < 0 {
		return fmt.Errorf("storage.local.quota_bytes must be positive")
	}
	if cfg.Session.Duration < 0 || cfg.Session.SweepInterval < 0 {
		return fmt.Errorf("session durations must be positive")
	}
	if cfg.Session.MaxInvalidAttempts < 1 {
		return fmt.Errorf("session.max_invalid_attempts must be at least 1")
	}
	if cfg.Generation.MaxRetries < 0 {
		return fmt.Errorf("generation.max_retries must not be negative")
	}
	if cfg.Drafts.MaxDrafts < 1 {
		return fmt.Errorf("drafts.max_drafts must be at least 1")
	}
	return nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}
