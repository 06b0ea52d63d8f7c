package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

const (
	// DefaultPrometheusDir is used when PROMETHEUS_DIR is empty
	DefaultPrometheusDir = "/tmp/janitor_prometheus"

	// ConfigFileEnv names an optional YAML config file
	ConfigFileEnv = "JANITOR_CONFIG"
)

// Config holds every setting the application reads at startup.
// It is immutable once Load returns.
type Config struct {
	CheckInterval int    `yaml:"CHECK_INTERVAL" envconfig:"CHECK_INTERVAL" validate:"required,gt=0"`
	PrometheusDir string `yaml:"PROMETHEUS_DIR" envconfig:"PROMETHEUS_DIR"`
	LogFile       string `yaml:"LOGFILE" envconfig:"LOGFILE"`
	LogLevel      string `yaml:"LOG_LEVEL" envconfig:"LOG_LEVEL" validate:"omitempty,oneof=debug info warning error critical"`

	Debug   bool `yaml:"DEBUG" envconfig:"DEBUG"`
	Testing bool `yaml:"TESTING" envconfig:"TESTING"`

	DatabaseURL           string `yaml:"DATABASE_URL" envconfig:"DATABASE_URL" validate:"required"`
	UploadedDocumentsDest string `yaml:"UPLOADED_DOCUMENTS_DEST" envconfig:"UPLOADED_DOCUMENTS_DEST"`
	UploadsDefaultDest    string `yaml:"UPLOADS_DEFAULT_DEST" envconfig:"UPLOADS_DEFAULT_DEST"`
	MaxContentLength      int64  `yaml:"MAX_CONTENT_LENGTH" envconfig:"MAX_CONTENT_LENGTH" validate:"gt=0"`

	SwaggerDir  string `yaml:"SWAGGER_DIR" envconfig:"SWAGGER_DIR" validate:"required"`
	SwaggerFile string `yaml:"SWAGGER_FILE" envconfig:"SWAGGER_FILE" validate:"required"`

	SchedulerJobStore string `yaml:"SCHEDULER_JOBSTORE" envconfig:"SCHEDULER_JOBSTORE" validate:"oneof=memory sqlite"`
	SentryDSN         string `yaml:"SENTRY_DSN" envconfig:"SENTRY_DSN"`
	OTelTraceExporter string `yaml:"OTEL_TRACE_EXPORTER" envconfig:"OTEL_TRACE_EXPORTER" validate:"oneof=none stdout"`

	Server    ServerConfig    `yaml:"SERVER" envconfig:"SERVER"`
	RateLimit RateLimitConfig `yaml:"RATE_LIMIT" envconfig:"RATE_LIMIT"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"PORT" envconfig:"PORT" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"READ_TIMEOUT" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"WRITE_TIMEOUT" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"IDLE_TIMEOUT" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"SHUTDOWN_TIMEOUT" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"ENABLED" envconfig:"ENABLED"`
	RPS     float64 `yaml:"RPS" envconfig:"RPS" validate:"gte=0"`
	Burst   int     `yaml:"BURST" envconfig:"BURST" validate:"gte=0"`
}

// Default returns the configuration used before any file or environment
// overrides are applied. CHECK_INTERVAL has no default and must be set.
func Default() *Config {
	return &Config{
		LogLevel:          "info",
		DatabaseURL:       "janitor.db",
		MaxContentLength:  16 << 20,
		SwaggerDir:        "api/v1/swagger",
		SwaggerFile:       "main.yaml",
		SchedulerJobStore: "memory",
		OTelTraceExporter: "none",
		Server: ServerConfig{
			Port:            5000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled: false,
			RPS:     100,
			Burst:   50,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	cfg := Default()

	if path := configFilePath(); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile overlays values from a YAML file onto c
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// configFilePath returns the YAML config file to read, or "" when none
func configFilePath() string {
	if path := os.Getenv(ConfigFileEnv); path != "" {
		return path
	}
	for _, location := range []string{"config.yaml", "configs/config.yaml"} {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// Validate checks field constraints and the keys that file logging needs.
func (c *Config) Validate() error {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("yaml")
	})

	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describe(fe))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if c.FileLogging() {
		if c.LogFile == "" {
			return errors.New("LOGFILE is required when DEBUG and TESTING are off")
		}
		if c.LogLevel == "" {
			return errors.New("LOG_LEVEL is required when DEBUG and TESTING are off")
		}
	}

	return nil
}

func describe(fe validator.FieldError) string {
	// Namespace is "Config.SERVER.PORT"; drop the root type name
	key := fe.Namespace()
	if i := strings.IndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	key = strings.ReplaceAll(key, ".", "_")

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", key)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", key, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s=%s (value %v)", key, fe.Tag(), fe.Param(), fe.Value())
	}
}

// MetricsDir returns the multiprocess metrics directory, falling back to
// DefaultPrometheusDir when PROMETHEUS_DIR is empty.
func (c *Config) MetricsDir() string {
	if c.PrometheusDir == "" {
		return DefaultPrometheusDir
	}
	return c.PrometheusDir
}

// FileLogging reports whether the rotating log file is attached
func (c *Config) FileLogging() bool {
	return !c.Debug && !c.Testing
}

// CheckPeriod returns CHECK_INTERVAL as a duration
func (c *Config) CheckPeriod() time.Duration {
	return time.Duration(c.CheckInterval) * time.Second
}
