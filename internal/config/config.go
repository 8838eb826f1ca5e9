// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"shadiflow/internal/log"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

const placeholderAPIKey = "your_gemini_api_key_here"

type Config struct {
	// HTTP Server
	Port               string   `env:"PORT" envDefault:"8001"`
	CORSOrigins        []string `env:"CORS_ORIGINS" envSeparator:","`
	RateLimitPerMinute int      `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`
	TrustedProxies     []string `env:"TRUSTED_PROXIES" envSeparator:","`

	// Ledger storage
	DataBackend  string `env:"DATA_BACKEND" envDefault:"file"`
	DataFile     string `env:"DATA_FILE" envDefault:"./data/data.json"`
	SQLiteDBPath string `env:"SQLITE_DB_PATH" envDefault:"./data/shadiflow.db"`

	// Assistant
	GeminiAPIKey         string        `env:"GEMINI_API_KEY"`
	GeminiModel          string        `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash-lite"`
	AssistantTemperature float64       `env:"ASSISTANT_TEMPERATURE" envDefault:"0.3"`
	AssistantMaxTokens   int           `env:"ASSISTANT_MAX_TOKENS" envDefault:"2048"`
	AssistantTimeout     time.Duration `env:"ASSISTANT_TIMEOUT" envDefault:"0s"`
	SummaryCacheSize     int           `env:"SUMMARY_CACHE_SIZE" envDefault:"128"`
	SummaryCacheTTL      time.Duration `env:"SUMMARY_CACHE_TTL" envDefault:"5m"`

	// AMQP, disabled when AMQPURL is empty
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"shadiflow"`
	AMQPQueue    string `env:"AMQP_QUEUE" envDefault:"ledger_events"`

	// Google Sheets mirror
	GoogleSpreadsheetID       string `env:"GOOGLE_SPREADSHEET_ID"`
	GoogleSheetName           string `env:"GOOGLE_SHEET_NAME" envDefault:"Expenses"`
	GoogleServiceAccountJSON  string `env:"GOOGLE_SERVICE_ACCOUNT_JSON"`
	GoogleServiceAccountFile  string `env:"GOOGLE_SERVICE_ACCOUNT_FILE"`
	GoogleApplicationCredFile string `env:"GOOGLE_APPLICATION_CREDENTIALS"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load parses the environment into a Config. It does not validate.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}

// Addr returns the listen address for Port.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// AMQPEnabled reports whether event publication is configured.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// Validate checks the settings shared by every binary and reports all
// problems at once.
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{BackendFile, BackendSQLite}
	if !slices.Contains(validBackends, c.DataBackend) {
		problems = append(problems, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}
	if c.DataBackend == BackendFile && strings.TrimSpace(c.DataFile) == "" {
		problems = append(problems, "data file path cannot be empty when using file backend")
	}
	if c.DataBackend == BackendSQLite && strings.TrimSpace(c.SQLiteDBPath) == "" {
		problems = append(problems, "SQLite database path cannot be empty when using sqlite backend")
	}

	if c.AMQPURL != "" {
		if parsed, err := url.Parse(c.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsed.Scheme))
		}
		if c.AMQPExchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			problems = append(problems, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RateLimitPerMinute < 1 {
		problems = append(problems, fmt.Sprintf("invalid rate limit %d: must be at least 1 per minute", c.RateLimitPerMinute))
	}
	if c.SummaryCacheSize < 1 {
		problems = append(problems, fmt.Sprintf("invalid summary cache size %d: must be at least 1", c.SummaryCacheSize))
	}
	if c.SummaryCacheTTL <= 0 {
		problems = append(problems, fmt.Sprintf("invalid summary cache TTL %v: must be positive", c.SummaryCacheTTL))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}
	validFormats := []string{log.FormatText, log.FormatJSON, log.FormatTint}
	if !slices.Contains(validFormats, strings.ToLower(c.LogFormat)) {
		problems = append(problems, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validFormats))
	}

	return joinProblems(problems)
}

// ValidateAssistant checks the settings the chat server needs on top of
// Validate.
func (c *Config) ValidateAssistant() error {
	var problems []string

	key := strings.TrimSpace(c.GeminiAPIKey)
	if key == "" || key == placeholderAPIKey {
		problems = append(problems, "GEMINI_API_KEY not set: replace the placeholder with a real Gemini API key")
	}
	if strings.TrimSpace(c.GeminiModel) == "" {
		problems = append(problems, "Gemini model cannot be empty")
	}
	if c.AssistantTemperature < 0 || c.AssistantTemperature > 2 {
		problems = append(problems, fmt.Sprintf("invalid assistant temperature %v: must be between 0 and 2", c.AssistantTemperature))
	}
	if c.AssistantMaxTokens < 1 {
		problems = append(problems, fmt.Sprintf("invalid assistant max tokens %d: must be at least 1", c.AssistantMaxTokens))
	}
	if c.AssistantTimeout < 0 {
		problems = append(problems, fmt.Sprintf("invalid assistant timeout %v: must not be negative", c.AssistantTimeout))
	}

	return joinProblems(problems)
}

// ValidateWorker checks the settings the sheet sync worker needs. Without a
// spreadsheet id the worker mirrors into memory only.
func (c *Config) ValidateWorker() error {
	var problems []string
	if !c.AMQPEnabled() {
		problems = append(problems, "AMQP URL is required for the sync worker")
	}
	if c.SheetsEnabled() {
		if c.GoogleSheetName == "" {
			problems = append(problems, "Google Sheet name cannot be empty")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" && c.GoogleApplicationCredFile == "" {
			problems = append(problems, "missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
		}
	}
	return joinProblems(problems)
}

// SheetsEnabled reports whether a spreadsheet is configured.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// CredentialsFile returns the service account file, preferring
// GOOGLE_SERVICE_ACCOUNT_FILE over GOOGLE_APPLICATION_CREDENTIALS.
func (c *Config) CredentialsFile() string {
	if c.GoogleServiceAccountFile != "" {
		return c.GoogleServiceAccountFile
	}
	return c.GoogleApplicationCredFile
}

func joinProblems(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
}
