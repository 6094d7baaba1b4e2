package config

import (
	"time"

	"github.com/vietddude/snapcook/internal/infra/inference"
	"github.com/vietddude/snapcook/internal/infra/storage/postgres"
	redisstore "github.com/vietddude/snapcook/internal/infra/storage/redis"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	Inference    inference.Config   `yaml:"inference"`
	Queue        QueueConfig        `yaml:"queue"`
	Redis        redisstore.Config  `yaml:"redis"`
	Database     postgres.Config    `yaml:"database"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Pantry       PantryConfig       `yaml:"pantry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// QueueConfig holds sync queue settings.
type QueueConfig struct {
	Backend        string        `yaml:"backend"` // sqlite, redis, memory
	Path           string        `yaml:"path"`    // sqlite file
	RetryCap       int           `yaml:"retry_cap"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	DrainInterval  time.Duration `yaml:"drain_interval"`
	LeaseTTL       time.Duration `yaml:"lease_ttl"` // cross-process drain lock
}

// ConnectivityConfig controls the online probe that gates queue drains.
type ConnectivityConfig struct {
	ProbeURL string        `yaml:"probe_url"` // empty = always online
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// PantryConfig lists ingredients the user already has on hand.
type PantryConfig struct {
	Items []string `yaml:"items"`
}
