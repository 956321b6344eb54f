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
	Auth     AuthConfig
	OTP      OTPConfig
	SMTP     SMTPConfig
	Archive  ArchiveConfig
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

// AuthConfig holds session token and brute-force policy configuration
type AuthConfig struct {
	TokenSecret   string
	SessionExpiry time.Duration
	Issuer        string

	// Lockout policy gating the login endpoint
	MaxFailedAttempts int
	LockoutWindow     time.Duration
	// LockoutFailClosed denies logins when the attempt store is unreachable.
	// Default is fail-open: availability wins during an infra outage.
	LockoutFailClosed bool

	// Generic sliding-window rate limit primitive
	RateLimitMax    int
	RateLimitWindow time.Duration

	// Suspicious session thresholds
	MaxSessionsPerUser int
	MaxIPsPerUser      int

	// Retention for revocation entries and attempt audit rows
	RevokedRetention  time.Duration
	AttemptsRetention time.Duration
}

// OTPConfig holds one-time-passcode configuration
type OTPConfig struct {
	TTL time.Duration
}

// SMTPConfig holds outbound mail transport configuration
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// ArchiveConfig holds S3 archival configuration for purged audit rows
type ArchiveConfig struct {
	Enabled         bool
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
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
			DBName:   getEnv("DB_NAME", "newsroom_auth"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Auth: AuthConfig{
			TokenSecret:        getEnv("AUTH_TOKEN_SECRET", ""),
			SessionExpiry:      getDurationEnv("AUTH_SESSION_EXPIRY", 7*24*time.Hour),
			Issuer:             getEnv("AUTH_ISSUER", "newsroom-auth"),
			MaxFailedAttempts:  getIntEnv("AUTH_MAX_FAILED_ATTEMPTS", 5),
			LockoutWindow:      getDurationEnv("AUTH_LOCKOUT_WINDOW", 15*time.Minute),
			LockoutFailClosed:  getBoolEnv("AUTH_LOCKOUT_FAIL_CLOSED", false),
			RateLimitMax:       getIntEnv("AUTH_RATE_LIMIT_MAX", 10),
			RateLimitWindow:    getDurationEnv("AUTH_RATE_LIMIT_WINDOW", 15*time.Minute),
			MaxSessionsPerUser: getIntEnv("AUTH_MAX_SESSIONS_PER_USER", 3),
			MaxIPsPerUser:      getIntEnv("AUTH_MAX_IPS_PER_USER", 2),
			RevokedRetention:   getDurationEnv("AUTH_REVOKED_RETENTION", 30*24*time.Hour),
			AttemptsRetention:  getDurationEnv("AUTH_ATTEMPTS_RETENTION", 90*24*time.Hour),
		},
		OTP: OTPConfig{
			TTL: getDurationEnv("OTP_TTL", 10*time.Minute),
		},
		SMTP: SMTPConfig{
			// No default host: local runs without SMTP configured fall
			// back to the logging NopSender instead of dialing localhost.
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnv("SMTP_PORT", "587"),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "no-reply@newsroom.local"),
		},
		Archive: ArchiveConfig{
			Enabled:         getBoolEnv("ARCHIVE_ENABLED", false),
			Endpoint:        getEnv("ARCHIVE_S3_ENDPOINT", ""),
			Region:          getEnv("ARCHIVE_S3_REGION", "us-east-1"),
			Bucket:          getEnv("ARCHIVE_S3_BUCKET", ""),
			AccessKeyID:     getEnv("ARCHIVE_S3_ACCESS_KEY", ""),
			SecretAccessKey: getEnv("ARCHIVE_S3_SECRET_KEY", ""),
			UseSSL:          getBoolEnv("ARCHIVE_S3_USE_SSL", false),
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

// Addr returns the SMTP server address in host:port form
func (s *SMTPConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv returns integer from environment variable or default
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getBoolEnv returns boolean from environment variable or default
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getDurationEnv returns duration from environment variable or default.
// Accepts Go duration strings ("15m") or a bare number of minutes.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}
