package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Environment string           `toml:"environment"`
	Database    DatabaseConfig   `toml:"database"`
	Server      ServerConfig     `toml:"server"`
	StateStore  StateStoreConfig `toml:"statestore"`
	Queue       QueueConfig      `toml:"queue"`
	Sync        SyncConfig       `toml:"sync"`
	DLQ         DLQConfig        `toml:"dlq"`
	Providers   ProvidersConfig  `toml:"providers"`
}

// DatabaseConfig contains SQLite connection settings for the subscription store.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StateStoreConfig contains settings for the key-value state store.
type StateStoreConfig struct {
	Path     string `toml:"path"`
	InMemory bool   `toml:"in_memory"`
}

// QueueConfig contains settings for the sync message queue.
//
// When Enabled is false (local/dev mode) admission falls back to
// processing subscriptions synchronously in-process.
type QueueConfig struct {
	Enabled     bool `toml:"enabled"`
	BatchSize   int  `toml:"batch_size"`
	LingerMs    int  `toml:"linger_ms"`
	MaxReceives int  `toml:"max_receives"`
}

// SyncConfig contains timing settings for sync jobs.
type SyncConfig struct {
	JobTTLSeconds     int     `toml:"job_ttl_seconds"`
	ActiveTTLSeconds  int     `toml:"active_ttl_seconds"`
	CooldownSeconds   int     `toml:"cooldown_seconds"`
	PollRatePerSecond float64 `toml:"poll_rate_per_second"`
}

// DLQConfig contains settings for dead-letter capture.
type DLQConfig struct {
	TTLSeconds int `toml:"ttl_seconds"`
	IndexCap   int `toml:"index_cap"`
}

// ProvidersConfig contains provider API endpoints.
type ProvidersConfig struct {
	YouTubeBaseURL string `toml:"youtube_base_url"`
	SpotifyBaseURL string `toml:"spotify_base_url"`
}

// JobTTL returns the sync job record retention window.
func (c *Config) JobTTL() time.Duration {
	return time.Duration(c.Sync.JobTTLSeconds) * time.Second
}

// ActiveTTL returns the active-job dedup marker lifetime.
func (c *Config) ActiveTTL() time.Duration {
	return time.Duration(c.Sync.ActiveTTLSeconds) * time.Second
}

// Cooldown returns the per-user rate limit window.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Sync.CooldownSeconds) * time.Second
}

// DLQTTL returns the retention window shared by DLQ entries and the DLQ index.
func (c *Config) DLQTTL() time.Duration {
	return time.Duration(c.DLQ.TTLSeconds) * time.Second
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with reference defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
