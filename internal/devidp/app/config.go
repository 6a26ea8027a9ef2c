package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Issuer    string `yaml:"issuer"`     // Issuer claim for tokens (default: tabsso-devidp)
	PublicURL string `yaml:"public_url"` // Optional: base URL browsers reach the provider on; derived from the request host when empty

	ClientID     string   `yaml:"client_id"`     // Registered client id (default: tabsso)
	RedirectURIs []string `yaml:"redirect_uris"` // Registered redirect URIs, comma separated in env
	Scope        string   `yaml:"scope"`         // Default scope (default: openid profile email)
	SilentScope  string   `yaml:"silent_scope"`  // Scope advertised to silent refresh (default: Scope)
	Realm        string   `yaml:"realm"`         // Informational realm name

	UserName  string `yaml:"user_name"`  // Dev user display name
	UserEmail string `yaml:"user_email"` // Dev user email; the subject is derived from it
	UserIDP   string `yaml:"user_idp"`   // Identity provider reported for the dev user

	SigningKeyFile string `yaml:"signing_key_file"` // Optional: Ed25519 PEM, created when missing; ephemeral when empty
	CookieSecret   string `yaml:"cookie_secret"`    // Optional: provider session cookie secret; random when empty

	CodeTTL    time.Duration `yaml:"code_ttl"`    // Authorization code lifetime (default: 5m)
	AccessTTL  time.Duration `yaml:"access_ttl"`  // Access token lifetime (default: 15m)
	SessionTTL time.Duration `yaml:"session_ttl"` // Provider session lifetime (default: 8h)

	Env                  string        `yaml:"env"`
	LogLevel             string        `yaml:"log_level"`
	LogFormat            string        `yaml:"log_format"`
	Port                 int           `yaml:"port"`
	ShutdownGracePeriod  time.Duration `yaml:"shutdown_grace_period"`
	HousekeepingInterval time.Duration `yaml:"housekeeping_interval"`
}

// LoadConfig reads the environment, then overlays the YAML file named by
// DEVIDP_CONFIG_FILE when set.
func LoadConfig() (Config, error) {
	cfg := Config{
		Issuer:    getEnvOrDefault("DEVIDP_ISSUER", "tabsso-devidp"),
		PublicURL: os.Getenv("DEVIDP_PUBLIC_URL"),
		ClientID:  getEnvOrDefault("DEVIDP_CLIENT_ID", "tabsso"),
		RedirectURIs: splitList(getEnvOrDefault(
			"DEVIDP_REDIRECT_URIS",
			"http://127.0.0.1/callback,http://127.0.0.1/silent-callback",
		)),
		Scope:       getEnvOrDefault("DEVIDP_SCOPE", "openid profile email"),
		SilentScope: os.Getenv("DEVIDP_SILENT_SCOPE"),
		Realm:       getEnvOrDefault("DEVIDP_REALM", "dev"),

		UserName:  getEnvOrDefault("DEVIDP_USER_NAME", "Dev User"),
		UserEmail: getEnvOrDefault("DEVIDP_USER_EMAIL", "dev@localhost"),
		UserIDP:   getEnvOrDefault("DEVIDP_USER_IDP", "local"),

		SigningKeyFile: os.Getenv("DEVIDP_SIGNING_KEY_FILE"),
		CookieSecret:   os.Getenv("DEVIDP_COOKIE_SECRET"),

		CodeTTL:    getEnvDurationOrDefault("DEVIDP_CODE_TTL", 5*time.Minute),
		AccessTTL:  getEnvDurationOrDefault("DEVIDP_ACCESS_TTL", 15*time.Minute),
		SessionTTL: getEnvDurationOrDefault("DEVIDP_SESSION_TTL", 8*time.Hour),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8090),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Minute),
	}

	if path := os.Getenv("DEVIDP_CONFIG_FILE"); path != "" {
		if err := overlayFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	if cfg.SilentScope == "" {
		cfg.SilentScope = cfg.Scope
	}
	return cfg, nil
}

// Subject is stable across restarts for a given email.
func (c Config) Subject() string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+c.UserEmail)).String()
}

func overlayFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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

	// Bare integers are seconds.
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}

	return defaultValue
}
