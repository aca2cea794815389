package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var ErrEmptyEnvironmentVariable = errors.New("empty environment variable")

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Twilio   TwilioConfig
	OpenAI   OpenAIConfig
	Agent    AgentConfig
	Server   ServerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Username string
	Password string
	Name     string
}

// TwilioConfig holds carrier credentials and the public media-stream URL that
// TwiML responses point the carrier at.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	StreamURL  string
}

// OpenAIConfig holds the realtime speech model settings
type OpenAIConfig struct {
	APIKey string
	Model  string
	Voice  string
}

// AgentConfig holds the conversational behavior of the phone agent
type AgentConfig struct {
	Instructions   string
	Greeting       string
	GoodbyePhrases []string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port          int
	AllowedOrigin string
}

const defaultInstructions = "You are a friendly phone assistant. Keep answers short " +
	"and conversational, this is a live phone call. When the caller wants to hang up, " +
	"say goodbye and end the conversation."

// Load reads and validates all required environment variables
func Load() (*Config, error) {
	// Load env.local in non-production environments
	if os.Getenv("GO_ENV") != "production" {
		if err := godotenv.Load("env.local"); err != nil {
			return nil, fmt.Errorf("failed to load env.local: %w", err)
		}
	}

	cfg := &Config{}

	// Database configuration
	var err error
	if cfg.Database.Host, err = requireEnv("DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.Database.Username, err = requireEnv("DB_USERNAME"); err != nil {
		return nil, err
	}
	if cfg.Database.Password, err = requireEnv("DB_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.Database.Name, err = requireEnv("DB_NAME"); err != nil {
		return nil, err
	}

	// Twilio configuration
	if cfg.Twilio.AccountSID, err = requireEnv("TWILIO_ACCOUNT_SID"); err != nil {
		return nil, err
	}
	if cfg.Twilio.AuthToken, err = requireEnv("TWILIO_AUTH_TOKEN"); err != nil {
		return nil, err
	}
	if cfg.Twilio.FromNumber, err = requireEnv("TWILIO_FROM_NUMBER"); err != nil {
		return nil, err
	}
	if cfg.Twilio.StreamURL, err = requireEnv("TWILIO_STREAM_URL"); err != nil {
		return nil, err
	}

	// OpenAI configuration
	if cfg.OpenAI.APIKey, err = requireEnv("OPENAI_API_KEY"); err != nil {
		return nil, err
	}
	cfg.OpenAI.Model = getEnvWithDefault("OPENAI_REALTIME_MODEL", "gpt-4o-realtime-preview-2024-10-01")
	cfg.OpenAI.Voice = getEnvWithDefault("OPENAI_REALTIME_VOICE", "alloy")

	// Agent configuration
	cfg.Agent.Instructions = getEnvWithDefault("AGENT_INSTRUCTIONS", defaultInstructions)
	cfg.Agent.Greeting = getEnvWithDefault("AGENT_GREETING", "Hello! Connecting you to our assistant. One moment please.")
	cfg.Agent.GoodbyePhrases = splitList(getEnvWithDefault("AGENT_GOODBYE_PHRASES", ""))

	// Server configuration
	serverPort, err := requireEnv("SERVER_PORT")
	if err != nil {
		return nil, err
	}
	cfg.Server.Port, err = strconv.Atoi(serverPort)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SERVER_PORT: %w", err)
	}
	cfg.Server.AllowedOrigin = getEnvWithDefault("ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s",
		c.Username, c.Password, c.Host, c.Name)
}

// requireEnv retrieves an environment variable or returns an error if empty
func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set: %w", key, ErrEmptyEnvironmentVariable)
	}
	return value, nil
}

// getEnvWithDefault retrieves an environment variable or returns a default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// splitList parses a comma-separated environment value, dropping empty entries
func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
