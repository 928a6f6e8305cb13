package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds harassguard configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Rules      RulesConfig      `yaml:"rules"`
	Models     ModelsConfig     `yaml:"models"`
	Store      StoreConfig      `yaml:"store"`
	Uploads    UploadsConfig    `yaml:"uploads"`
	Activation ActivationConfig `yaml:"activation"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Addr               string `yaml:"addr"` // HTTP listen address, e.g. ":8080"
	MaxBodyBytes       int64  `yaml:"max_body_bytes"`
	ReadTimeoutSeconds int    `yaml:"read_timeout_seconds"`
}

// RulesConfig points at an optional override of the embedded rule tables.
type RulesConfig struct {
	TablesPath string `yaml:"tables_path"`
}

type ModelsConfig struct {
	Backend      string           `yaml:"backend"` // onnx | http | none
	Dir          string           `yaml:"dir"`
	SeqLen       int              `yaml:"seq_len"`
	IntraThreads int              `yaml:"intra_threads"`
	HTTP         ModelsHTTPConfig `yaml:"http"`
}

type ModelsHTTPConfig struct {
	BaseURL              string `yaml:"base_url"`
	TimeoutMs            int    `yaml:"timeout_ms"`
	AllowPrivateNetworks bool   `yaml:"allow_private_networks"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver"` // memory | sqlite | postgres
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type UploadsConfig struct {
	MaxBytes          int64    `yaml:"max_bytes"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

type ActivationConfig struct {
	QueueSize         int                    `yaml:"queue_size"`
	Workers           int                    `yaml:"workers"`
	ShutdownTimeoutMs int                    `yaml:"shutdown_timeout_ms"`
	Sinks             []ActivationSinkConfig `yaml:"sinks"`
}

type ActivationSinkConfig struct {
	Type      string            `yaml:"type"` // file_jsonl | webhook
	Path      string            `yaml:"path"`
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
	TimeoutMs int               `yaml:"timeout_ms"`
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"` // grpc | http
}

type LoggingConfig struct {
	ActivationLevel string `yaml:"activation_level"` // metadata | redacted
}

// Load reads configuration from a YAML file.
// If the file doesn't exist, it returns the default config and no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}
	if cfg.Server.ReadTimeoutSeconds <= 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}

	if cfg.Models.Backend == "" {
		cfg.Models.Backend = "none"
	}
	if cfg.Models.Dir == "" {
		cfg.Models.Dir = "./models"
	}
	if cfg.Models.SeqLen <= 0 {
		cfg.Models.SeqLen = 256
	}
	if cfg.Models.HTTP.TimeoutMs <= 0 {
		cfg.Models.HTTP.TimeoutMs = 5000
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = "./data/harassguard.db"
	}

	if cfg.Uploads.MaxBytes <= 0 {
		cfg.Uploads.MaxBytes = 25 << 20
	}

	if cfg.Activation.QueueSize <= 0 {
		cfg.Activation.QueueSize = 1000
	}
	if cfg.Activation.Workers <= 0 {
		cfg.Activation.Workers = 2
	}
	if cfg.Activation.ShutdownTimeoutMs <= 0 {
		cfg.Activation.ShutdownTimeoutMs = 2000
	}

	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}

	if cfg.Logging.ActivationLevel == "" {
		cfg.Logging.ActivationLevel = "metadata"
	}
}

// ReadTimeout is server.read_timeout_seconds as a duration.
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

// Timeout is models.http.timeout_ms as a duration.
func (h ModelsHTTPConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutMs) * time.Millisecond
}

// ShutdownTimeout is activation.shutdown_timeout_ms as a duration.
func (a ActivationConfig) ShutdownTimeout() time.Duration {
	return time.Duration(a.ShutdownTimeoutMs) * time.Millisecond
}

// Timeout is the sink's timeout_ms as a duration.
func (s ActivationSinkConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}
