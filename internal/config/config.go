// Package config provides configuration types and loading for lythra.
package config

import (
	"path/filepath"
	"time"
)

// Config is the root configuration struct.
type Config struct {
	Paths         PathsConfig         `json:"paths"`
	Storage       StorageConfig       `json:"storage"`
	Network       NetworkConfig       `json:"network"`
	Audio         AudioConfig         `json:"audio"`
	Notifications NotificationsConfig `json:"notifications"`
	Telemetry     TelemetryConfig     `json:"telemetry"`
	Server        ServerConfig        `json:"server"`
	Log           LogConfig           `json:"log"`
	Manifests     ManifestsConfig     `json:"manifests"`
}

// PathsConfig groups filesystem locations.
type PathsConfig struct {
	DataDir string `json:"dataDir" envconfig:"DATA_DIR"`
}

// StorageConfig selects the SQLite driver and database file.
type StorageConfig struct {
	// Driver is "sqlite" (pure Go) or "sqlite3" (cgo).
	Driver string `json:"driver" envconfig:"DRIVER"`
	// Path defaults to <dataDir>/lythra.db.
	Path string `json:"path" envconfig:"PATH"`
}

// NetworkConfig configures the module network accessor.
type NetworkConfig struct {
	Timeout             time.Duration `json:"timeout" envconfig:"TIMEOUT"`
	BlockedHosts        []string      `json:"blockedHosts" envconfig:"BLOCKED_HOSTS"`
	BlockedPathPrefixes []string      `json:"blockedPathPrefixes" envconfig:"BLOCKED_PATH_PREFIXES"`
}

// AudioConfig configures the headless audio device.
type AudioConfig struct {
	// ClipDuration is how long a non-looping sound plays before it ends.
	ClipDuration time.Duration `json:"clipDuration" envconfig:"CLIP_DURATION"`
}

// NotificationsConfig selects the notification platform.
type NotificationsConfig struct {
	// Provider is "log" or "slack".
	Provider     string `json:"provider" envconfig:"PROVIDER"`
	SlackToken   string `json:"slackToken" envconfig:"SLACK_TOKEN"`
	SlackChannel string `json:"slackChannel" envconfig:"SLACK_CHANNEL"`
	SlackAPIURL  string `json:"slackApiUrl,omitempty" envconfig:"SLACK_API_URL"`
}

// TelemetryConfig configures the Kafka event relay.
type TelemetryConfig struct {
	Enabled bool   `json:"enabled" envconfig:"ENABLED"`
	Brokers string `json:"brokers" envconfig:"BROKERS"`
	Topic   string `json:"topic" envconfig:"TOPIC"`
	Buffer  int    `json:"buffer" envconfig:"BUFFER"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string `json:"host" envconfig:"HOST"`
	Port int    `json:"port" envconfig:"PORT"`
}

// LogConfig configures the default slog logger.
type LogConfig struct {
	Level  string `json:"level" envconfig:"LEVEL"`
	Format string `json:"format" envconfig:"FORMAT"`
}

// ManifestsConfig points at declarative module definitions.
type ManifestsConfig struct {
	Dir string `json:"dir" envconfig:"DIR"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir: "~/.lythra",
		},
		Storage: StorageConfig{
			Driver: "sqlite",
		},
		Network: NetworkConfig{
			Timeout: 15 * time.Second,
		},
		Audio: AudioConfig{
			ClipDuration: 500 * time.Millisecond,
		},
		Notifications: NotificationsConfig{
			Provider: "log",
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
			Brokers: "localhost:9092",
			Topic:   "lythra.events",
			Buffer:  256,
		},
		Server: ServerConfig{
			Host: "127.0.0.1", // Secure default
			Port: 18800,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Manifests: ManifestsConfig{
			Dir: "~/.lythra/modules",
		},
	}
}

// DatabasePath returns the configured database file.
func (c *Config) DatabasePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	return filepath.Join(c.Paths.DataDir, "lythra.db")
}
