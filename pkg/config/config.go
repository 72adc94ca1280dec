// Package config loads application configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// SMTPConfig holds the SMTP connection settings. The five core
// variables must be set together; the sender display name is optional.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// CalDAVAccount holds credentials for one calendar provider. BaseURL is
// empty when the provider's well-known discovery URL should be used.
type CalDAVAccount struct {
	BaseURL  string
	Username string
	Password string
}

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv   string
	Addr     string
	DBPath   string
	Timezone string

	// Admin
	AdminPassword string

	// Parser
	GeminiAPIKey string

	// Sync
	SyncInterval time.Duration

	// SMTP; nil when not configured.
	SMTP *SMTPConfig

	// Calendar providers; nil when not configured.
	Fastmail *CalDAVAccount
	ICloud   *CalDAVAccount
}

// Load reads configuration from environment variables. It fails when a
// required variable is missing and logs a notice for each optional
// feature left disabled.
func Load(logger *slog.Logger) (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	if logger == nil {
		logger = slog.Default()
	}

	cfg := &Config{
		AppEnv:        getEnv("MICHAEL_ENV", "development"),
		Addr:          getEnv("MICHAEL_ADDR", ":8080"),
		DBPath:        getEnv("MICHAEL_DB_PATH", "michael.db"),
		Timezone:      os.Getenv("MICHAEL_HOST_TIMEZONE"),
		AdminPassword: os.Getenv("MICHAEL_ADMIN_PASSWORD"),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		SyncInterval:  getDurationEnv("MICHAEL_SYNC_INTERVAL", 10*time.Minute),
	}

	var missing []string
	if cfg.Timezone == "" {
		missing = append(missing, "MICHAEL_HOST_TIMEZONE")
	}
	if cfg.AdminPassword == "" {
		missing = append(missing, "MICHAEL_ADMIN_PASSWORD")
	}
	if cfg.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid MICHAEL_HOST_TIMEZONE %q: %w", cfg.Timezone, err)
	}

	smtp, err := loadSMTP(logger)
	if err != nil {
		return nil, err
	}
	cfg.SMTP = smtp

	cfg.Fastmail = loadAccount(logger, "fastmail",
		"MICHAEL_FASTMAIL_URL", "MICHAEL_FASTMAIL_USERNAME", "MICHAEL_FASTMAIL_PASSWORD")
	cfg.ICloud = loadAccount(logger, "icloud",
		"MICHAEL_ICLOUD_URL", "MICHAEL_ICLOUD_USERNAME", "MICHAEL_ICLOUD_PASSWORD")

	return cfg, nil
}

// HostLocation loads the configured host timezone. Load has already
// validated it.
func (c *Config) HostLocation() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// loadSMTP reads the SMTP variables as an all-or-nothing set. A partial
// set disables email with a notice; startup continues. A complete set
// with a malformed port is an error.
func loadSMTP(logger *slog.Logger) (*SMTPConfig, error) {
	vars := map[string]string{
		"MICHAEL_SMTP_HOST":     os.Getenv("MICHAEL_SMTP_HOST"),
		"MICHAEL_SMTP_PORT":     os.Getenv("MICHAEL_SMTP_PORT"),
		"MICHAEL_SMTP_USERNAME": os.Getenv("MICHAEL_SMTP_USERNAME"),
		"MICHAEL_SMTP_PASSWORD": os.Getenv("MICHAEL_SMTP_PASSWORD"),
		"MICHAEL_SMTP_FROM":     os.Getenv("MICHAEL_SMTP_FROM"),
	}

	set := 0
	for _, v := range vars {
		if v != "" {
			set++
		}
	}
	if set == 0 {
		logger.Info("smtp not configured, email notifications disabled")
		return nil, nil
	}
	if set < len(vars) {
		var unset []string
		for k, v := range vars {
			if v == "" {
				unset = append(unset, k)
			}
		}
		logger.Warn("incomplete smtp configuration, email notifications disabled", "missing", unset)
		return nil, nil
	}

	port, err := strconv.Atoi(vars["MICHAEL_SMTP_PORT"])
	if err != nil || port <= 0 || port > 65535 {
		return nil, errors.New("MICHAEL_SMTP_PORT must be a valid port number")
	}

	return &SMTPConfig{
		Host:     vars["MICHAEL_SMTP_HOST"],
		Port:     port,
		Username: vars["MICHAEL_SMTP_USERNAME"],
		Password: vars["MICHAEL_SMTP_PASSWORD"],
		From:     vars["MICHAEL_SMTP_FROM"],
		FromName: os.Getenv("MICHAEL_SMTP_FROM_NAME"),
	}, nil
}

// loadAccount reads one provider's variable set. The base URL is
// optional and defaults to the provider's well-known URL downstream; a
// partial credential pair disables the provider with a notice instead
// of failing startup.
func loadAccount(logger *slog.Logger, provider, urlKey, userKey, passKey string) *CalDAVAccount {
	baseURL := os.Getenv(urlKey)
	user := os.Getenv(userKey)
	pass := os.Getenv(passKey)
	switch {
	case user != "" && pass != "":
		return &CalDAVAccount{BaseURL: baseURL, Username: user, Password: pass}
	case user == "" && pass == "" && baseURL == "":
		return nil
	default:
		logger.Warn("incomplete calendar credentials, provider disabled", "provider", provider)
		return nil
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
