package verda

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	oaierrors "github.com/go-openapi/errors"
	"github.com/go-openapi/validate"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Environment variables read by [ConfigFromEnv].
const (
	EnvClientID     = "VERDA_CLIENT_ID"
	EnvClientSecret = "VERDA_CLIENT_SECRET"
	EnvBaseURL      = "VERDA_BASE_URL"
	EnvInferenceKey = "VERDA_INFERENCE_KEY"
	EnvTimeout      = "VERDA_TIMEOUT"
	EnvLogLevel     = "VERDA_LOG_LEVEL"
)

// Config holds the settings needed to build a [Client].
//
// A credentials file looks like:
//
//	client_id: abc
//	client_secret: s3cret
//	inference_key: key
//	timeout: 45s
type Config struct {
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	BaseURL      string        `yaml:"base_url"`
	InferenceKey string        `yaml:"inference_key"`
	Timeout      time.Duration `yaml:"timeout"`

	// LogLevel enables logging to stderr at the given logrus level.
	// Empty keeps the client silent.
	LogLevel string `yaml:"log_level"`
}

// ConfigFromEnv reads the configuration from VERDA_* environment variables.
func ConfigFromEnv() *Config {
	return &Config{
		ClientID:     getEnv(EnvClientID, ""),
		ClientSecret: getEnv(EnvClientSecret, ""),
		BaseURL:      getEnv(EnvBaseURL, DefaultBaseURL),
		InferenceKey: getEnv(EnvInferenceKey, ""),
		Timeout:      getEnvDuration(EnvTimeout, defaultTimeout),
		LogLevel:     getEnv(EnvLogLevel, ""),
	}
}

// LoadConfigFile reads a YAML configuration file. Unset fields get the
// same defaults as [ConfigFromEnv].
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &cfg, nil
}

// Validate reports every missing or invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if err := validate.RequiredString("client_id", "config", c.ClientID); err != nil {
		errs = append(errs, err)
	}
	if err := validate.RequiredString("client_secret", "config", c.ClientSecret); err != nil {
		errs = append(errs, err)
	}
	if err := validate.RequiredString("base_url", "config", c.BaseURL); err != nil {
		errs = append(errs, err)
	}
	if err := validate.MinimumInt("timeout", "config", int64(c.Timeout), 0, false); err != nil {
		errs = append(errs, err)
	}
	if c.LogLevel != "" {
		if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
			errs = append(errs, oaierrors.New(oaierrors.InvalidTypeCode, "log_level in config: %v", err))
		}
	}
	if len(errs) > 0 {
		return oaierrors.CompositeValidationError(errs...)
	}
	return nil
}

// Options converts the configuration into client options.
func (c *Config) Options() []Option {
	opts := []Option{WithBaseURL(c.BaseURL), WithTimeout(c.Timeout)}
	if c.InferenceKey != "" {
		opts = append(opts, WithInferenceKey(c.InferenceKey))
	}
	if c.LogLevel != "" {
		if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
			logger := logrus.New()
			logger.SetOutput(os.Stderr)
			logger.SetLevel(level)
			opts = append(opts, WithLogger(logger))
		}
	}
	return opts
}

// NewClientFromConfig validates cfg and creates an authenticated client.
// Options passed explicitly override the configuration.
func NewClientFromConfig(ctx context.Context, cfg *Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewClient(ctx, cfg.ClientID, cfg.ClientSecret, append(cfg.Options(), opts...)...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("45s") and plain seconds ("45").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
