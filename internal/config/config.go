package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	IMAP     IMAPConfig
	Poll     PollConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// IMAPConfig holds the mailbox transport configuration. An empty Host
// disables polling entirely; the service then only serves the read API.
type IMAPConfig struct {
	Host               string
	Port               int
	User               string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	Mailbox            string
}

// PollConfig holds poll scheduling configuration
type PollConfig struct {
	Interval      time.Duration
	SubjectMarker string
}

// LoggingConfig holds structured logging configuration
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "mailtrace"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		IMAP: IMAPConfig{
			Host:               getEnv("IMAP_HOST", ""),
			Port:               getIntEnv("IMAP_PORT", 993),
			User:               getEnv("IMAP_USER", ""),
			Password:           getEnv("IMAP_PASSWORD", ""),
			UseTLS:             getBoolEnv("IMAP_SECURE", true),
			InsecureSkipVerify: getBoolEnv("IMAP_INSECURE_SKIP_VERIFY", false),
			Mailbox:            getEnv("IMAP_MAILBOX", "INBOX"),
		},
		Poll: PollConfig{
			Interval:      getDurationEnv("POLL_INTERVAL_MS", 15*time.Second),
			SubjectMarker: getEnv("TEST_SUBJECT_PREFIX", "[ESP-TEST]"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
	}
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + d.Port +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.DBName +
		" sslmode=" + d.SSLMode
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv returns an integer from environment variable or default
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getBoolEnv returns a boolean from environment variable or default
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

// getDurationEnv returns a duration in milliseconds from environment variable or default
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}
