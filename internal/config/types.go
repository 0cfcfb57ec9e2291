package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Detection  DetectionConfig  `yaml:"detection" mapstructure:"detection"`
	Generation GenerationConfig `yaml:"generation" mapstructure:"generation"`
	Storage    StorageConfig    `yaml:"storage" mapstructure:"storage"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
}

// DetectionConfig controls which recognizers run and the optional
// statistical model backend.
type DetectionConfig struct {
	Recognizers []string    `yaml:"recognizers" mapstructure:"recognizers"`
	Model       ModelConfig `yaml:"model" mapstructure:"model"`
}

// ModelConfig configures the optional token-classification model backend.
type ModelConfig struct {
	Enabled   bool              `yaml:"enabled" mapstructure:"enabled"`
	Path      string            `yaml:"path" mapstructure:"path"`
	VocabPath string            `yaml:"vocab_path" mapstructure:"vocab_path"`
	MaxLength int               `yaml:"max_length" mapstructure:"max_length"`
	Tags      []string          `yaml:"tags" mapstructure:"tags"`     // output tag per logit index, e.g. ["O","B-PER","I-PER"]
	Labels    map[string]string `yaml:"labels" mapstructure:"labels"` // tag name -> entity kind, e.g. PER: PERSON
}

// GenerationConfig controls fake value synthesis.
type GenerationConfig struct {
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// StorageConfig selects the mapping store backend.
type StorageConfig struct {
	Backend  string         `yaml:"backend" mapstructure:"backend"` // csv or postgres
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig contains database configuration for the Postgres mapping store.
type PostgresConfig struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// CacheConfig contains the optional Redis detection cache configuration.
type CacheConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// ServerConfig contains HTTP server configuration for the service mode.
type ServerConfig struct {
	Port         int             `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration   `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration   `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration   `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	OutputDir    string          `yaml:"output_dir" mapstructure:"output_dir"`
	RateLimit    RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// RateLimitConfig contains per-client rate limiting configuration.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
		Path     string `yaml:"path" mapstructure:"path"`
		MaxSize  int    `yaml:"max_size" mapstructure:"max_size"`
		MaxAge   int    `yaml:"max_age" mapstructure:"max_age"`
		Compress bool   `yaml:"compress" mapstructure:"compress"`
	} `yaml:"file" mapstructure:"file"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	return &Config{
		Detection: DetectionConfig{
			Recognizers: []string{"all"},
			Model: ModelConfig{
				Enabled:   false,
				MaxLength: 512,
			},
		},
		Generation: GenerationConfig{
			MaxAttempts: 3,
		},
		Storage: StorageConfig{
			Backend: "csv",
			Postgres: PostgresConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: time.Hour,
				ConnMaxIdleTime: 10 * time.Minute,
			},
		},
		Cache: CacheConfig{
			Enabled:        false,
			RedisURL:       "redis://localhost:6379/0",
			MaxConnections: 10,
			MinIdleConns:   2,
			DefaultTTL:     time.Hour,
			KeyPrefix:      "veil",
		},
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			OutputDir:    "output",
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 10,
				Burst:             20,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
