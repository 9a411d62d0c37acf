package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/robfig/cron/v3"
)

// DefaultAPIURL is the Open Brewery DB list endpoint.
const DefaultAPIURL = "https://api.openbrewerydb.org/v1/breweries"

// Config holds all pipeline settings, populated from environment variables
// and overridden by CLI flags.
type Config struct {
	// Stage inputs and outputs. Empty values are rejected by the stage that
	// needs them, not at load time.
	APIURL      string
	RawPath     string
	RawFileName string
	SilverPath  string
	GoldPath    string

	HTTPTimeout     time.Duration
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Scheduler settings, used by the schedule command only.
	Schedule      string
	MaxRetries    int
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration

	PushgatewayURL string

	// Gold publishing is enabled when at least one broker is set.
	KafkaBrokers   []string
	KafkaGoldTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	httpTimeout, err := parsePositiveDuration("HTTP_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	retryDelay, err := parsePositiveDuration("RETRY_DELAY", "5m")
	if err != nil {
		return nil, err
	}
	// Unset, the cap equals the delay and every retry waits RETRY_DELAY.
	retryMaxDelay, err := parsePositiveDuration("RETRY_MAX_DELAY", retryDelay.String())
	if err != nil {
		return nil, err
	}

	maxRetries, err := parseMaxRetries()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		APIURL:          sharedcfg.EnvOrDefault("API_URL", DefaultAPIURL),
		RawPath:         os.Getenv("RAW_PATH"),
		RawFileName:     os.Getenv("RAW_FILE_NAME"),
		SilverPath:      os.Getenv("SILVER_PATH"),
		GoldPath:        os.Getenv("GOLD_PATH"),
		HTTPTimeout:     httpTimeout,
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		Schedule:        sharedcfg.EnvOrDefault("SCHEDULE", "0 23 * * *"),
		MaxRetries:      maxRetries,
		RetryDelay:      retryDelay,
		RetryMaxDelay:   retryMaxDelay,
		PushgatewayURL:  os.Getenv("PUSHGATEWAY_URL"),
		KafkaBrokers:    sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaGoldTopic:  sharedcfg.EnvOrDefault("KAFKA_GOLD_TOPIC", "brewery-gold-locations"),
	}

	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid SCHEDULE %q: %w", cfg.Schedule, err)
	}
	if cfg.RetryMaxDelay < cfg.RetryDelay {
		return nil, errors.New("RETRY_MAX_DELAY must not be shorter than RETRY_DELAY")
	}

	return cfg, nil
}

// PublishEnabled reports whether gold counts are published to Kafka.
func (c *Config) PublishEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// ValidateExtract checks the settings the extract stage needs.
func (c *Config) ValidateExtract() error {
	return errors.Join(
		required(c.APIURL, "API_URL", "url_api"),
		required(c.RawPath, "RAW_PATH", "raw_final_path"),
		required(c.RawFileName, "RAW_FILE_NAME", "raw_file_name"),
	)
}

// ValidateTransform checks the settings the transform stage needs.
func (c *Config) ValidateTransform() error {
	return errors.Join(
		required(c.RawPath, "RAW_PATH", "raw_final_path"),
		required(c.RawFileName, "RAW_FILE_NAME", "raw_file_name"),
		required(c.SilverPath, "SILVER_PATH", "silver_path"),
	)
}

// ValidateAggregate checks the settings the aggregate stage needs.
func (c *Config) ValidateAggregate() error {
	return errors.Join(
		required(c.SilverPath, "SILVER_PATH", "silver_path"),
		required(c.GoldPath, "GOLD_PATH", "gold_path"),
	)
}

// ValidateAll checks the settings for a full run, reporting each missing
// setting once.
func (c *Config) ValidateAll() error {
	return errors.Join(
		required(c.APIURL, "API_URL", "url_api"),
		required(c.RawPath, "RAW_PATH", "raw_final_path"),
		required(c.RawFileName, "RAW_FILE_NAME", "raw_file_name"),
		required(c.SilverPath, "SILVER_PATH", "silver_path"),
		required(c.GoldPath, "GOLD_PATH", "gold_path"),
	)
}

func required(value, env, flag string) error {
	if value == "" {
		return fmt.Errorf("%s is required (set --%s)", env, flag)
	}
	return nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseMaxRetries() (int, error) {
	s := os.Getenv("MAX_RETRIES")
	if s == "" {
		return 2, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 10 {
		return 0, errors.New("invalid MAX_RETRIES: must be 0-10")
	}
	return n, nil
}
