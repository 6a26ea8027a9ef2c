package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	BackendURL string `yaml:"backend_url"` // Application backend base URL (default: http://localhost:8090)
	ListenAddr string `yaml:"listen_addr"` // Loopback callback address (default: 127.0.0.1:0)
	Browser    string `yaml:"browser"`     // system or headless (default: system)

	Storage       string `yaml:"storage"`        // memory, sqlite or redis (default: sqlite)
	SQLitePath    string `yaml:"sqlite_path"`    // Credential database (default: <user config dir>/tabsso/credentials.db)
	SealKeyFile   string `yaml:"seal_key_file"`  // Optional: key material that encrypts stored credentials
	RedisAddr     string `yaml:"redis_addr"`     // default: localhost:6379
	RedisPassword string `yaml:"redis_password"` // Optional
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"` // default: tabsso:

	CheckInterval    time.Duration `yaml:"check_interval"`
	SilentTimeout    time.Duration `yaml:"silent_timeout"`
	RefreshCooldown  time.Duration `yaml:"refresh_cooldown"`
	WarningThreshold time.Duration `yaml:"warning_threshold"`
	PopupTimeout     time.Duration `yaml:"popup_timeout"`

	Env       string `yaml:"env"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// LoadConfig reads the environment, then overlays the YAML file named by
// SSO_CONFIG_FILE when set.
func LoadConfig() (Config, error) {
	cfg := Config{
		BackendURL: getEnvOrDefault("SSO_BACKEND_URL", "http://localhost:8090"),
		ListenAddr: getEnvOrDefault("SSO_LISTEN_ADDR", "127.0.0.1:0"),
		Browser:    getEnvOrDefault("SSO_BROWSER", "system"),

		Storage:       getEnvOrDefault("SSO_STORAGE", "sqlite"),
		SQLitePath:    getEnvOrDefault("SSO_SQLITE_PATH", defaultSQLitePath()),
		SealKeyFile:   os.Getenv("SSO_SEAL_KEY_FILE"),
		RedisAddr:     getEnvOrDefault("SSO_REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("SSO_REDIS_PASSWORD"),
		RedisDB:       getEnvIntOrDefault("SSO_REDIS_DB", 0),
		RedisPrefix:   getEnvOrDefault("SSO_REDIS_PREFIX", "tabsso:"),

		// Zero durations take the manager defaults.
		CheckInterval:    getEnvDurationOrDefault("SSO_CHECK_INTERVAL", 0),
		SilentTimeout:    getEnvDurationOrDefault("SSO_SILENT_TIMEOUT", 0),
		RefreshCooldown:  getEnvDurationOrDefault("SSO_REFRESH_COOLDOWN", 0),
		WarningThreshold: getEnvDurationOrDefault("SSO_WARNING_THRESHOLD", 0),
		PopupTimeout:     getEnvDurationOrDefault("SSO_POPUP_TIMEOUT", 0),

		Env:       getEnvOrDefault("ENV", "dev"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "warn"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}

	if path := os.Getenv("SSO_CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	switch cfg.Storage {
	case "memory", "sqlite", "redis":
	default:
		return Config{}, fmt.Errorf("unknown storage driver %q", cfg.Storage)
	}
	switch cfg.Browser {
	case "system", "headless":
	default:
		return Config{}, fmt.Errorf("unknown browser %q", cfg.Browser)
	}
	return cfg, nil
}

func defaultSQLitePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "tabsso.db"
	}
	return filepath.Join(dir, "tabsso", "credentials.db")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
