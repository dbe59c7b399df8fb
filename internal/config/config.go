package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultConfigPath is the default location for the config file
	DefaultConfigPath = "/etc/mediaprep/mediaprep.conf"
	// DefaultBackend is the default udisks backend
	DefaultBackend = "cli"
	// DefaultBroker is the default privilege elevation broker
	DefaultBroker = "pkexec"
	// DefaultPollIntervalMS is the default device-readiness poll
	// interval in milliseconds
	DefaultPollIntervalMS = 100
)

// Config holds the program configuration
type Config struct {
	// Backend is the udisks backend to use: "cli" or "dbus"
	Backend string `toml:"backend"`
	// Broker is the privilege elevation broker binary
	Broker string `toml:"broker"`
	// MountSources overrides the mount-table files read, in priority
	// order; empty means the built-in default list
	MountSources []string `toml:"mount_sources"`
	// PollIntervalMS is the device-readiness poll interval in
	// milliseconds
	PollIntervalMS int `toml:"poll_interval_ms"`
	// TempDir overrides where private mount points are created
	TempDir string `toml:"temp_dir"`
}

// Load loads configuration from a TOML file
// Returns an empty config if the file doesn't exist
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// Merge merges CLI flags into the config, with CLI flags taking
// precedence over config file values. Empty CLI values are ignored.
func (c *Config) Merge(backend, broker string) {
	if backend != "" {
		c.Backend = backend
	}
	if broker != "" {
		c.Broker = broker
	}
}

// ApplyDefaults applies default values for any unset fields
func (c *Config) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	if c.Broker == "" {
		c.Broker = DefaultBroker
	}
	if c.PollIntervalMS == 0 {
		c.PollIntervalMS = DefaultPollIntervalMS
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Backend != "cli" && c.Backend != "dbus" {
		return fmt.Errorf("backend must be 'cli' or 'dbus', got %q", c.Backend)
	}

	if c.PollIntervalMS < 0 {
		return fmt.Errorf("poll_interval_ms must be positive, got %d", c.PollIntervalMS)
	}

	return nil
}

// PollInterval returns the readiness poll interval as a duration
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}
