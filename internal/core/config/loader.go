package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration usable without a config file: sqlite queue,
// in-memory remote store, always online.
func Default() *AppConfig {
	var cfg AppConfig
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Inference.Provider == "" {
		cfg.Inference.Provider = "gemini"
	}
	if cfg.Inference.Timeout == 0 {
		cfg.Inference.Timeout = 15 * time.Second
	}
	if cfg.Inference.MaxAttempts == 0 {
		cfg.Inference.MaxAttempts = 3
	}
	if cfg.Inference.BaseDelay == 0 {
		cfg.Inference.BaseDelay = 1 * time.Second
	}

	if cfg.Queue.Backend == "" {
		cfg.Queue.Backend = "sqlite"
	}
	if cfg.Queue.Path == "" {
		cfg.Queue.Path = "snapcook-queue.db"
	}
	if cfg.Queue.RetryCap == 0 {
		cfg.Queue.RetryCap = 5
	}
	if cfg.Queue.InitialBackoff == 0 {
		cfg.Queue.InitialBackoff = 2 * time.Second
	}
	if cfg.Queue.MaxBackoff == 0 {
		cfg.Queue.MaxBackoff = 5 * time.Minute
	}
	if cfg.Queue.DrainInterval == 0 {
		cfg.Queue.DrainInterval = 30 * time.Second
	}
	if cfg.Queue.LeaseTTL == 0 {
		cfg.Queue.LeaseTTL = 5 * time.Minute
	}

	if cfg.Redis.Namespace == "" {
		cfg.Redis.Namespace = "snapcook"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "pgx"
	}

	if cfg.Connectivity.Interval == 0 {
		cfg.Connectivity.Interval = 10 * time.Second
	}
	if cfg.Connectivity.Timeout == 0 {
		cfg.Connectivity.Timeout = 3 * time.Second
	}
}

func (cfg *AppConfig) validate() error {
	switch cfg.Queue.Backend {
	case "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}
	if cfg.Queue.Backend == "redis" && cfg.Redis.URL == "" {
		return fmt.Errorf("queue backend redis requires redis.url")
	}
	switch cfg.Database.Driver {
	case "pgx", "postgres", "mysql":
	default:
		return fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	switch cfg.Inference.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unknown inference provider %q", cfg.Inference.Provider)
	}
	return nil
}
