package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration validation constants
const (
	MinPort       = 1     // Minimum valid port number
	MaxPort       = 65535 // Maximum valid port number
	MaxAPITimeout = 300   // API timeout ceiling in seconds

	// Default values
	DefaultHTTPPort           = 8080
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
	DefaultAPITimeout         = 30    // API timeout in seconds
	DefaultPollDelayMS        = 30000 // delay between polls when the service gives no hint
	DefaultEndpoint           = "https://management.azure.com"
	DefaultScope              = "https://management.azure.com/.default"
	DefaultRetryMaxElapsed    = 120 // seconds
	DefaultRetryInitialMS     = 1000
	DefaultRetryMaxIntervalMS = 30000
	DefaultCheckpointBackend  = BackendFile
	DefaultCheckpointDir      = "checkpoints"
	DefaultRedisKey           = "azure-lro:checkpoints"
	DefaultBlobContainer      = "lro-checkpoints"
	DefaultMaxConcurrent      = 8
	DefaultRescanInterval     = 30 // seconds
)

// Checkpoint backends
const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendBlob  = "blob"
)

// TransportConfig configures the ARM HTTP pipeline
type TransportConfig struct {
	Endpoint               string   `yaml:"endpoint"`
	Scopes                 []string `yaml:"scopes"`
	RetryMaxElapsedSeconds int      `yaml:"retry_max_elapsed_seconds"`
	RetryInitialIntervalMS int      `yaml:"retry_initial_interval_ms"`
	RetryMaxIntervalMS     int      `yaml:"retry_max_interval_ms"`
}

// RetryMaxElapsed returns the retry budget of a single request
func (t TransportConfig) RetryMaxElapsed() time.Duration {
	return time.Duration(t.RetryMaxElapsedSeconds) * time.Second
}

// RetryInitialInterval returns the first backoff interval
func (t TransportConfig) RetryInitialInterval() time.Duration {
	return time.Duration(t.RetryInitialIntervalMS) * time.Millisecond
}

// RetryMaxInterval returns the backoff interval ceiling
func (t TransportConfig) RetryMaxInterval() time.Duration {
	return time.Duration(t.RetryMaxIntervalMS) * time.Millisecond
}

// CheckpointConfig selects where resume tokens are persisted
type CheckpointConfig struct {
	Backend        string `yaml:"backend"` // file, redis or blob
	Dir            string `yaml:"dir"`
	RedisURL       string `yaml:"redis_url"`
	RedisKey       string `yaml:"redis_key"`
	BlobAccountURL string `yaml:"blob_account_url"`
	BlobContainer  string `yaml:"blob_container"`
}

// WatcherConfig configures the background watcher
type WatcherConfig struct {
	MaxConcurrent         int `yaml:"max_concurrent"`
	RescanIntervalSeconds int `yaml:"rescan_interval_seconds"`
}

// RescanInterval returns how often the checkpoint store is listed
func (w WatcherConfig) RescanInterval() time.Duration {
	return time.Duration(w.RescanIntervalSeconds) * time.Second
}

// Config represents the application configuration
type Config struct {
	LogLevel           string           `yaml:"log_level"`
	LogFormat          string           `yaml:"log_format"`
	DefaultPollDelayMS int              `yaml:"default_poll_delay_ms"`
	HTTPPort           int              `yaml:"http_port"`
	APITimeout         int              `yaml:"api_timeout"` // per-request timeout in seconds
	Transport          TransportConfig  `yaml:"transport"`
	Checkpoint         CheckpointConfig `yaml:"checkpoint"`
	Watcher            WatcherConfig    `yaml:"watcher"`
}

// DefaultPollDelay returns the engine's fallback inter-poll delay
func (c *Config) DefaultPollDelay() time.Duration {
	return time.Duration(c.DefaultPollDelayMS) * time.Millisecond
}

// APITimeoutDuration returns the per-request timeout
func (c *Config) APITimeoutDuration() time.Duration {
	return time.Duration(c.APITimeout) * time.Second
}

// Load loads configuration from a YAML file and applies environment variable overrides
func Load(path string) (*Config, error) {
	// #nosec G304 -- Config file path is provided by administrator via CLI flag, not user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return finish(&cfg)
}

// Default returns a configuration built from defaults and environment
// variables only, for commands run without a config file
func Default() (*Config, error) {
	return finish(&Config{})
}

func finish(cfg *Config) (*Config, error) {
	applyDefaults(cfg)

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("environment variable error: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyDefaults sets default values for configuration
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = DefaultLogFormat
	}
	if cfg.DefaultPollDelayMS == 0 {
		cfg.DefaultPollDelayMS = DefaultPollDelayMS
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = DefaultHTTPPort
	}
	if cfg.APITimeout == 0 {
		cfg.APITimeout = DefaultAPITimeout
	}

	t := &cfg.Transport
	if t.Endpoint == "" {
		t.Endpoint = DefaultEndpoint
	}
	if len(t.Scopes) == 0 {
		t.Scopes = []string{DefaultScope}
	}
	if t.RetryMaxElapsedSeconds == 0 {
		t.RetryMaxElapsedSeconds = DefaultRetryMaxElapsed
	}
	if t.RetryInitialIntervalMS == 0 {
		t.RetryInitialIntervalMS = DefaultRetryInitialMS
	}
	if t.RetryMaxIntervalMS == 0 {
		t.RetryMaxIntervalMS = DefaultRetryMaxIntervalMS
	}

	cp := &cfg.Checkpoint
	if cp.Backend == "" {
		cp.Backend = DefaultCheckpointBackend
	}
	if cp.Dir == "" {
		cp.Dir = DefaultCheckpointDir
	}
	if cp.RedisKey == "" {
		cp.RedisKey = DefaultRedisKey
	}
	if cp.BlobContainer == "" {
		cp.BlobContainer = DefaultBlobContainer
	}

	if cfg.Watcher.MaxConcurrent == 0 {
		cfg.Watcher.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Watcher.RescanIntervalSeconds == 0 {
		cfg.Watcher.RescanIntervalSeconds = DefaultRescanInterval
	}
}

// applyEnvOverrides applies environment variable overrides to configuration
func applyEnvOverrides(cfg *Config) error {
	if val := os.Getenv("AZURE_LRO_LOG_LEVEL"); val != "" {
		cfg.LogLevel = val
	}

	if val := os.Getenv("AZURE_LRO_DEFAULT_POLL_DELAY_MS"); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid AZURE_LRO_DEFAULT_POLL_DELAY_MS: must be an integer, got %q", val)
		}
		cfg.DefaultPollDelayMS = i
	}

	if val := os.Getenv("AZURE_LRO_HTTP_PORT"); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid AZURE_LRO_HTTP_PORT: must be an integer, got %q", val)
		}
		cfg.HTTPPort = i
	}

	if val := os.Getenv("AZURE_LRO_CHECKPOINT_BACKEND"); val != "" {
		cfg.Checkpoint.Backend = strings.ToLower(val)
	}

	if val := os.Getenv("AZURE_LRO_REDIS_URL"); val != "" {
		cfg.Checkpoint.RedisURL = val
	}

	if val := os.Getenv("AZURE_LRO_MAX_CONCURRENT"); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid AZURE_LRO_MAX_CONCURRENT: must be an integer, got %q", val)
		}
		cfg.Watcher.MaxConcurrent = i
	}

	return nil
}

// validate validates the configuration
func validate(cfg *Config) error {
	if f := strings.ToLower(cfg.LogFormat); f != "json" && f != "text" {
		return fmt.Errorf("log_format must be json or text, got %q", cfg.LogFormat)
	}

	if cfg.DefaultPollDelayMS < 0 {
		return fmt.Errorf("default_poll_delay_ms cannot be negative, got %d", cfg.DefaultPollDelayMS)
	}

	if cfg.HTTPPort < MinPort || cfg.HTTPPort > MaxPort {
		return fmt.Errorf("http_port must be between %d and %d", MinPort, MaxPort)
	}

	if cfg.APITimeout <= 0 {
		return fmt.Errorf("api_timeout must be positive, got %d", cfg.APITimeout)
	}
	if cfg.APITimeout > MaxAPITimeout {
		return fmt.Errorf("api_timeout should not exceed %d seconds (5 minutes), got %d", MaxAPITimeout, cfg.APITimeout)
	}

	u, err := url.Parse(cfg.Transport.Endpoint)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("transport.endpoint must be an absolute https URL, got %q", cfg.Transport.Endpoint)
	}
	if cfg.Transport.RetryMaxElapsedSeconds < 0 || cfg.Transport.RetryInitialIntervalMS < 0 || cfg.Transport.RetryMaxIntervalMS < 0 {
		return fmt.Errorf("transport retry settings cannot be negative")
	}

	switch cfg.Checkpoint.Backend {
	case BackendFile:
	case BackendRedis:
		if cfg.Checkpoint.RedisURL == "" {
			return fmt.Errorf("checkpoint.redis_url is required for the redis backend")
		}
	case BackendBlob:
		if cfg.Checkpoint.BlobAccountURL == "" {
			return fmt.Errorf("checkpoint.blob_account_url is required for the blob backend")
		}
	default:
		return fmt.Errorf("checkpoint.backend must be one of file, redis, blob, got %q", cfg.Checkpoint.Backend)
	}

	if cfg.Watcher.MaxConcurrent < 1 {
		return fmt.Errorf("watcher.max_concurrent must be at least 1, got %d", cfg.Watcher.MaxConcurrent)
	}
	if cfg.Watcher.RescanIntervalSeconds < 1 {
		return fmt.Errorf("watcher.rescan_interval_seconds must be at least 1, got %d", cfg.Watcher.RescanIntervalSeconds)
	}

	return nil
}
