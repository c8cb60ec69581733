package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"tablefix/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server  ServerConfig
	Session SessionConfig
	Modify  ModifyConfig
	Log     LogConfig
	Export  ExportConfig
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port          string
	APIPort       string
	GinMode       string
	MaxUploadSize int64 // bytes
}

// SessionConfig controls how long idle sessions are kept
type SessionConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// ModifyConfig holds table modifier behaviour switches
type ModifyConfig struct {
	StrictConditions bool
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string
	Format string
	SeqURL string
}

// Export providers
const (
	ExportNone  = "none"
	ExportLocal = "local"
	ExportS3    = "s3"
)

// ExportConfig selects where archived exports are stored
type ExportConfig struct {
	Provider    string
	Dir         string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Server:  *loadServerConfig(),
		Session: *loadSessionConfig(),
		Modify: ModifyConfig{
			StrictConditions: getEnvBoolOrDefault("STRICT_CONDITIONS", false),
		},
		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "text"),
			SeqURL: getEnvOrDefault("SEQ_URL", ""),
		},
		Export: *loadExportConfig(),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:          getEnvOrDefault("PORT", "8080"),
		APIPort:       getEnvOrDefault("API_PORT", "8081"),
		GinMode:       getEnvOrDefault("GIN_MODE", "release"),
		MaxUploadSize: int64(getEnvIntOrDefault("MAX_UPLOAD_MB", 50)) * 1024 * 1024,
	}
}

func loadSessionConfig() *SessionConfig {
	return &SessionConfig{
		TTL:           getEnvDurationOrDefault("SESSION_TTL", 30*time.Minute),
		SweepInterval: getEnvDurationOrDefault("SESSION_SWEEP", time.Minute),
	}
}

func loadExportConfig() *ExportConfig {
	return &ExportConfig{
		Provider:    strings.ToLower(getEnvOrDefault("EXPORT_PROVIDER", ExportNone)),
		Dir:         getEnvOrDefault("EXPORT_DIR", "./exports"),
		S3Bucket:    getEnvOrDefault("S3_BUCKET", ""),
		S3Region:    getEnvOrDefault("S3_REGION", ""),
		S3Endpoint:  getEnvOrDefault("S3_ENDPOINT", ""),
		S3AccessKey: getEnvOrDefault("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnvOrDefault("S3_SECRET_KEY", ""),
	}
}

func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return errors.ConfigInvalid("PORT is required")
	}
	if config.Server.MaxUploadSize <= 0 {
		return errors.ConfigInvalid("MAX_UPLOAD_MB must be positive")
	}
	switch config.Server.GinMode {
	case "debug", "release", "test":
	default:
		return errors.ConfigInvalid("GIN_MODE must be one of debug, release, test")
	}
	if config.Session.TTL <= 0 || config.Session.SweepInterval <= 0 {
		return errors.ConfigInvalid("SESSION_TTL and SESSION_SWEEP must be positive durations")
	}
	switch config.Export.Provider {
	case ExportNone:
	case ExportLocal:
		if config.Export.Dir == "" {
			return errors.ConfigInvalid("EXPORT_DIR is required for the local export provider")
		}
	case ExportS3:
		if config.Export.S3Bucket == "" {
			return errors.ConfigInvalid("S3_BUCKET is required for the s3 export provider")
		}
		if (config.Export.S3AccessKey == "") != (config.Export.S3SecretKey == "") {
			return errors.ConfigInvalid("S3_ACCESS_KEY and S3_SECRET_KEY must be set together")
		}
	default:
		return errors.ConfigInvalid("EXPORT_PROVIDER must be one of none, local, s3")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
