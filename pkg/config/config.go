package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddr    = "[::1]:3000"
	DefaultDBURL         = "postgresql://localhost:5432"
	DefaultTableName     = "entries"
	DefaultMaxValueBytes = 2 << 20
	DefaultLogLevel      = "info"
)

// ErrMissingWriteToken is returned when no write token is configured.
var ErrMissingWriteToken = errors.New("WRITE_TOKEN is required (set via environment or config file)")

type Config struct {
	ListenAddr    string `yaml:"listen_addr"`
	DBURL         string `yaml:"db_url"`
	WriteToken    string `yaml:"write_token"`
	TableName     string `yaml:"table_name"`
	GRPCAddr      string `yaml:"grpc_addr"`
	CacheSize     int    `yaml:"cache_size"`
	MaxValueBytes int64  `yaml:"max_value_bytes"`
	LogLevel      string `yaml:"log_level"`
}

// LoadConfig loads configuration from a YAML file if path is provided,
// then applies environment variable overrides and defaults.
// The write token has no default; its absence is ErrMissingWriteToken.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if cfg.WriteToken == "" {
		return nil, ErrMissingWriteToken
	}
	if cfg.CacheSize < 0 {
		return nil, fmt.Errorf("cache_size must not be negative, got %d", cfg.CacheSize)
	}
	if cfg.MaxValueBytes < 0 {
		return nil, fmt.Errorf("max_value_bytes must not be negative, got %d", cfg.MaxValueBytes)
	}

	return &cfg, nil
}

// applyEnvOverrides allows environment variables to override YAML config values
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("DB_URL"); v != "" {
		cfg.DBURL = v
	}
	if v := os.Getenv("WRITE_TOKEN"); v != "" {
		cfg.WriteToken = v
	}
	if v := os.Getenv("TABLE_NAME"); v != "" {
		cfg.TableName = v
	}
	if v := os.Getenv("GRPC_ADDR"); v != "" {
		cfg.GRPCAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CACHE_SIZE value: %w", err)
		}
		cfg.CacheSize = n
	}
	if v := os.Getenv("MAX_VALUE_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_VALUE_BYTES value: %w", err)
		}
		cfg.MaxValueBytes = n
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.DBURL == "" {
		cfg.DBURL = DefaultDBURL
	}
	if cfg.TableName == "" {
		cfg.TableName = DefaultTableName
	}
	if cfg.MaxValueBytes == 0 {
		cfg.MaxValueBytes = DefaultMaxValueBytes
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
}
