package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the application configuration
type Config struct {
	// IMAP settings
	IMAPServer   string
	IMAPPort     int
	IMAPUsername string
	IMAPPassword string

	// Which mailbox to ingest and how far back to search
	Mailbox      string
	FetchDaysAgo int

	// Analysis service settings
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	PromptsDir    string

	// Storage settings
	DBPath string

	LogLevel string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		IMAPServer:    getEnv("IMAP_SERVER", ""),
		IMAPPort:      getEnvInt("IMAP_PORT", 993),
		IMAPUsername:  getEnv("IMAP_USERNAME", ""),
		IMAPPassword:  getEnv("IMAP_PASSWORD", ""),
		Mailbox:       getEnv("MAILBOX", "INBOX"),
		FetchDaysAgo:  getEnvInt("FETCH_DAYS_AGO", 1),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		PromptsDir:    getEnv("PROMPTS_DIR", "prompts"),
		DBPath:        getEnv("DB_PATH", "emails.db"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.IMAPServer == "" {
		return fmt.Errorf("IMAP_SERVER is required")
	}
	if c.IMAPUsername == "" || c.IMAPPassword == "" {
		return fmt.Errorf("IMAP_USERNAME and IMAP_PASSWORD are required")
	}
	if c.IMAPPort < 1 || c.IMAPPort > 65535 {
		return fmt.Errorf("invalid IMAP_PORT: %d", c.IMAPPort)
	}
	if c.FetchDaysAgo < 0 {
		return fmt.Errorf("FETCH_DAYS_AGO must not be negative")
	}
	if c.OpenAIAPIKey == "" || c.OpenAIModel == "" {
		return fmt.Errorf("OPENAI_API_KEY and OPENAI_MODEL are required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
