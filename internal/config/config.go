// Package config provides configuration management for the application.
// It supports YAML configuration files with environment variable overrides.
package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/finsight/finsight/consts"
	"github.com/finsight/finsight/internal/contextbudget"
	"github.com/finsight/finsight/internal/editor"
	"github.com/finsight/finsight/pkg/logger"
	"github.com/finsight/finsight/pkg/telemetry"
)

// Default configuration values
const (
	defaultGenerator        = "mock"
	defaultOTLPEndpoint     = "localhost:4317"
	defaultPrometheusPort   = 9090
	defaultRetentionDays    = 30
	defaultRetentionCron    = "0 3 * * *"
	defaultLockTTLMinutes   = 10
	defaultStreamMaxMinutes = 10
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig         `yaml:"server"`
	Database  DatabaseConfig       `yaml:"database"`
	Generator GeneratorConfig      `yaml:"generator"`
	Editor    EditorConfig         `yaml:"editor"`
	Context   contextbudget.Config `yaml:"context"`
	Retention RetentionConfig      `yaml:"retention"`
	Logging   logger.Config        `yaml:"logging"`
	Telemetry telemetry.Config     `yaml:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	Debug       bool     `yaml:"debug"`
	CORSOrigins []string `yaml:"cors_origins"` // Allowed CORS origins whitelist
}

// DatabaseConfig holds database configuration
// Note: Database path is hardcoded in the database package to prevent data
// loss from configuration errors
type DatabaseConfig struct {
	// Reserved for future database configuration options
}

// EditorConfig holds streaming edit engine configuration.
// Durations are expressed in seconds.
type EditorConfig struct {
	// LockTTLSeconds is how long an edit lock may be held (default: 600)
	LockTTLSeconds int `yaml:"lock_ttl_seconds"`
	// LockSweepSeconds is how often expired locks are swept (default: 30)
	LockSweepSeconds int `yaml:"lock_sweep_seconds"`
	// MaxStreamSeconds bounds a single streaming edit (default: 600)
	MaxStreamSeconds int `yaml:"max_stream_seconds"`
}

// ToEditorConfig converts to the editor package's configuration
func (c EditorConfig) ToEditorConfig() editor.Config {
	return editor.Config{
		LockTTL:           time.Duration(c.LockTTLSeconds) * time.Second,
		LockSweepInterval: time.Duration(c.LockSweepSeconds) * time.Second,
		MaxStreamDuration: time.Duration(c.MaxStreamSeconds) * time.Second,
	}
}

// GeneratorConfig holds content generation backend configuration
type GeneratorConfig struct {
	// Backend is the registered generator client name (default: mock)
	Backend string `yaml:"backend"`
	// Model is the default model identifier passed to the backend
	Model string `yaml:"model"`
}

// RetentionConfig holds data retention sweep configuration
type RetentionConfig struct {
	// Enabled turns the background retention sweeps on
	Enabled bool `yaml:"enabled"`
	// Schedule is the cron expression for the sweep (default: daily at 03:00)
	Schedule string `yaml:"schedule"`
	// Days is how long soft-deleted reports are kept before their history
	// and snapshots are purged
	Days int `yaml:"days"`
}

// Default returns a default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:  "0.0.0.0",
			Port:  8080,
			Debug: false,
			CORSOrigins: []string{
				"http://localhost:5173",
			},
		},
		Database: DatabaseConfig{},
		Generator: GeneratorConfig{
			Backend: defaultGenerator,
		},
		Editor: EditorConfig{
			LockTTLSeconds:   defaultLockTTLMinutes * 60,
			LockSweepSeconds: 30,
			MaxStreamSeconds: defaultStreamMaxMinutes * 60,
		},
		Context: contextbudget.DefaultConfig(),
		Retention: RetentionConfig{
			Enabled:  true,
			Schedule: defaultRetentionCron,
			Days:     defaultRetentionDays,
		},
		Logging: logger.Config{
			Level:      "info",
			Format:     "text", // Default to human-readable text format instead of JSON
			File:       "",
			MaxSize:    100, // Max 100MB per log file
			MaxAge:     7,   // Retain logs for 7 days
			MaxBackups: 5,   // Keep 5 backup files
			Compress:   false,
		},
		Telemetry: telemetry.Config{
			Enabled:     false,
			ServiceName: consts.ServiceName,
			OTLP: telemetry.OTLPConfig{
				Enabled:  false,
				Endpoint: defaultOTLPEndpoint,
				Insecure: true,
			},
			Prometheus: telemetry.PrometheusConfig{
				Enabled: false,
				Port:    defaultPrometheusPort,
			},
		},
	}
}

// Load loads configuration from a YAML file with environment variable expansion
func Load(path string) (*Config, error) {
	cfg := Default()

	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables in the configuration
	expanded := expandEnvVars(string(data))

	// Parse YAML
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable values.
// Only matches ${VAR_NAME} format (not $VAR_NAME) to avoid mangling literal
// dollar signs in configured values.
func expandEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(content, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := match[2 : len(match)-1]

		// Support default values: ${VAR_NAME:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]

		if value := os.Getenv(varName); value != "" {
			return value
		}

		// Return default value if provided
		if len(parts) > 1 {
			return parts[1]
		}

		return ""
	})
}

// Address returns the server address string
func (c *ServerConfig) Address() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
