package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	BackendSQLite = "sqlite"
	BackendGCS    = "gcs"
)

type Config struct {
	LogLevel string

	// HTTP Server
	Port               string
	RateLimitPerMinute int

	// Backend selection
	DataBackend string

	// Database
	SQLiteDBPath string

	// Cloud Storage
	GCSBucket          string
	GCSPrefix          string
	GCSCredentialsFile string
	GCSEndpoint        string

	// AMQP notification queue (optional)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Telegram
	TelegramBotToken string
	TelegramChatID   string
	TelegramAPIURL   string

	// Classification and import
	ClassifierRulesFile string
	CSVDateLayout       string

	// Workers
	RecurringInterval time.Duration
	ReportOwner       string

	// Desktop client
	DesktopDBPath string
	DesktopOwner  string
	RemoteURL     string
	SyncInterval  time.Duration
	SyncTimeout   time.Duration
}

func Load() *Config {
	cfg := &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),

		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		DataBackend:  getEnv("DATA_BACKEND", BackendSQLite),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/fintrack.db"),

		GCSBucket:          getEnv("GCS_BUCKET", ""),
		GCSPrefix:          getEnv("GCS_PREFIX", "fintrack"),
		GCSCredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		GCSEndpoint:        getEnv("GCS_ENDPOINT", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "fintrack"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "notifications"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		TelegramAPIURL:   getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),

		ClassifierRulesFile: getEnv("CLASSIFIER_RULES_FILE", ""),
		CSVDateLayout:       getEnv("CSV_DATE_LAYOUT", "2006-01-02"),

		RecurringInterval: getEnvDuration("RECURRING_INTERVAL", time.Hour),
		ReportOwner:       getEnv("REPORT_OWNER", "default"),

		DesktopDBPath: getEnv("DESKTOP_DB_PATH", "./data/desktop.db"),
		DesktopOwner:  getEnv("DESKTOP_OWNER", "default"),
		RemoteURL:     getEnv("REMOTE_URL", "http://localhost:8081"),
		SyncInterval:  getEnvDuration("SYNC_INTERVAL", 5*time.Minute),
		SyncTimeout:   getEnvDuration("SYNC_TIMEOUT", 10*time.Second),
	}

	return cfg
}

// TelegramEnabled reports whether both bot token and chat are configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of [debug info warn error]", c.LogLevel))
	}

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	switch c.DataBackend {
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if msg := ensureDir(c.SQLiteDBPath); msg != "" {
			errors = append(errors, msg)
		}
	case BackendGCS:
		if c.GCSBucket == "" {
			errors = append(errors, "GCS bucket is required when using gcs backend")
		}
		if c.GCSCredentialsFile != "" {
			if _, err := os.Stat(c.GCSCredentialsFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("GCS credentials file does not exist: %s", c.GCSCredentialsFile))
			}
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of [%s %s]", c.DataBackend, BackendSQLite, BackendGCS))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		errors = append(errors, "TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	if c.TelegramEnabled() {
		if _, err := url.ParseRequestURI(c.TelegramAPIURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid Telegram API URL '%s': %v", c.TelegramAPIURL, err))
		}
	}

	if c.ClassifierRulesFile != "" {
		if _, err := os.Stat(c.ClassifierRulesFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("classifier rules file does not exist: %s", c.ClassifierRulesFile))
		}
	}

	if c.CSVDateLayout == "" {
		errors = append(errors, "CSV date layout cannot be empty")
	}

	if c.RecurringInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid recurring interval %v: must be at least 1 minute", c.RecurringInterval))
	} else if c.RecurringInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid recurring interval %v: must be at most 24 hours", c.RecurringInterval))
	}

	if errs := c.validateDesktop(); len(errs) > 0 {
		errors = append(errors, errs...)
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func (c *Config) validateDesktop() []string {
	var errors []string
	if c.RemoteURL != "" {
		if u, err := url.Parse(c.RemoteURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid remote URL '%s': must be an absolute http(s) URL", c.RemoteURL))
		}
	}
	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}
	if c.SyncTimeout < time.Second || c.SyncTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid sync timeout %v: must be between 1 second and 5 minutes", c.SyncTimeout))
	}
	return errors
}

// ensureDir creates the parent directory of a database path, returning a message on failure.
func ensureDir(dbPath string) string {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return ""
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Sprintf("cannot create database directory '%s': %v", dir, err)
		}
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
