package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Resolver ResolverConfig `yaml:"resolver"`
	Download DownloadConfig `yaml:"download"`
	Worker   WorkerConfig   `yaml:"worker"`
	History  HistoryConfig  `yaml:"history"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT" default:"9848"`
	APIKey       string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"5m"`
}

// StorageConfig holds output directory configuration.
type StorageConfig struct {
	OutputPath     string `yaml:"output_path" envconfig:"STORAGE_PATH" default:"."`
	FilenamePrefix string `yaml:"filename_prefix" envconfig:"STORAGE_FILENAME_PREFIX" default:"tiktok"`
	Overwrite      bool   `yaml:"overwrite" envconfig:"STORAGE_OVERWRITE" default:"false"`
	MinFreeBytes   int64  `yaml:"min_free_bytes" envconfig:"STORAGE_MIN_FREE_BYTES" default:"104857600"` // 100MB
}

// ResolverConfig selects and tunes the third-party resolver.
type ResolverConfig struct {
	Flavor    string        `yaml:"flavor" envconfig:"RESOLVER_FLAVOR" default:"ssstik"`
	Locale    string        `yaml:"locale" envconfig:"RESOLVER_LOCALE"`
	Origin    string        `yaml:"origin" envconfig:"RESOLVER_ORIGIN"`
	Timeout   time.Duration `yaml:"timeout" envconfig:"RESOLVER_TIMEOUT" default:"30s"`
	UserAgent string        `yaml:"user_agent" envconfig:"RESOLVER_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"`
	// TokenPattern overrides the flavor's primary-token regex. It needs one capture group.
	TokenPattern string `yaml:"token_pattern" envconfig:"RESOLVER_TOKEN_PATTERN"`
	// Headers are merged over the flavor's replayed header set.
	Headers map[string]string `yaml:"headers" envconfig:"RESOLVER_HEADERS"`
}

// DownloadConfig holds asset download configuration.
type DownloadConfig struct {
	Timeout       time.Duration `yaml:"timeout" envconfig:"DOWNLOAD_TIMEOUT" default:"10m"`
	HeaderTimeout time.Duration `yaml:"header_timeout" envconfig:"DOWNLOAD_HEADER_TIMEOUT" default:"30s"`
	ReadTimeout   time.Duration `yaml:"read_timeout" envconfig:"DOWNLOAD_READ_TIMEOUT" default:"60s"`
	MinMediaBytes int64         `yaml:"min_media_bytes" envconfig:"DOWNLOAD_MIN_MEDIA_BYTES" default:"10240"`
	Concurrency   int           `yaml:"concurrency" envconfig:"DOWNLOAD_CONCURRENCY" default:"3"`
	RetryDelay    time.Duration `yaml:"retry_delay" envconfig:"DOWNLOAD_RETRY_DELAY" default:"5s"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" envconfig:"DOWNLOAD_MAX_RETRY_DELAY" default:"60s"`
	UserAgent     string        `yaml:"user_agent" envconfig:"DOWNLOAD_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"`
}

// WorkerConfig holds worker pool configuration.
type WorkerConfig struct {
	Count        int           `yaml:"count" envconfig:"WORKER_COUNT" default:"2"`
	PollInterval time.Duration `yaml:"poll_interval" envconfig:"WORKER_POLL_INTERVAL" default:"2s"`
	MaxRetries   int           `yaml:"max_retries" envconfig:"WORKER_MAX_RETRIES" default:"3"`
}

// HistoryConfig controls the SQLite download history.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"HISTORY_ENABLED" default:"true"`
	Path    string `yaml:"path" envconfig:"HISTORY_PATH" default:"tikgrabba.db"`
}

// Load builds configuration from defaults, environment variables and an
// optional YAML file. Values present in the file win over the environment,
// which wins over struct defaults.
// Note the file is applied after envconfig, so an exported variable cannot override a value set in YAML.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks the values every entry point depends on.
func (c *Config) Validate() error {
	if c.Storage.OutputPath == "" {
		return fmt.Errorf("STORAGE_PATH is required")
	}
	if c.Resolver.Flavor == "" {
		return fmt.Errorf("RESOLVER_FLAVOR is required")
	}
	if c.Resolver.Timeout <= 0 {
		return fmt.Errorf("RESOLVER_TIMEOUT must be positive")
	}
	if c.Resolver.TokenPattern != "" {
		re, err := regexp.Compile(c.Resolver.TokenPattern)
		if err != nil {
			return fmt.Errorf("RESOLVER_TOKEN_PATTERN: %w", err)
		}
		if re.NumSubexp() < 1 {
			return fmt.Errorf("RESOLVER_TOKEN_PATTERN needs a capture group")
		}
	}
	if c.Download.MinMediaBytes < 0 {
		return fmt.Errorf("DOWNLOAD_MIN_MEDIA_BYTES cannot be negative")
	}
	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("HISTORY_PATH is required when history is enabled")
	}
	return nil
}

// Validate checks server-only settings.
func (c *ServerConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API_KEY is required")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
