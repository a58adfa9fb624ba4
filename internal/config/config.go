// Package config provides configuration management for murmur, replacing
// the source's hardcoded "data/keys/" and "data/contacts/" path constants
// (spec.md §9, "Global state") with a loadable, overridable options object.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration object passed to every component
// that used to read a global path or constant in the source.
type Config struct {
	// KeyDir holds public.pem / private.pem.
	KeyDir string `yaml:"key_dir" json:"key_dir"`
	// ContactDir holds enc.key / contacts.json.
	ContactDir string `yaml:"contact_dir" json:"contact_dir"`
	// ListenPort is the TCP port the background listener accepts sessions
	// on. Outbound sessions always dial protocol.Port.
	ListenPort int `yaml:"listen_port" json:"listen_port"`
	// ConnectTimeout is the initiator's dial timeout (default 15s). It is
	// validated but not passed on: protocol.Dial uses the fixed
	// protocol.ConnectTimeout.
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	// IdleTimeout (default 30s) is not read by any component: protocol.Dial
	// and protocol.Accept use the fixed protocol.IdleTimeout.
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	// LogLevel is one of DEBUG, INFO, WARN, ERROR.
	LogLevel string `yaml:"log_level" json:"log_level"`
	// MetricsEnabled toggles the Prometheus metrics HTTP endpoint.
	MetricsEnabled bool `yaml:"metrics_enabled" json:"metrics_enabled"`
	// MetricsPort is the port the metrics endpoint listens on when enabled.
	MetricsPort int `yaml:"metrics_port" json:"metrics_port"`
}

const (
	defaultListenPort     = 5300
	defaultConnectTimeout = 15 * time.Second
	defaultIdleTimeout    = 30 * time.Second
	defaultMetricsPort    = 9090
)

// Default returns the configuration the source's hardcoded constants imply:
// data under ./data, port 5300, a 15s connect timeout.
func Default() *Config {
	return &Config{
		KeyDir:         filepath.Join("data", "keys"),
		ContactDir:     filepath.Join("data", "contacts"),
		ListenPort:     defaultListenPort,
		ConnectTimeout: defaultConnectTimeout,
		IdleTimeout:    defaultIdleTimeout,
		LogLevel:       "INFO",
		MetricsEnabled: false,
		MetricsPort:    defaultMetricsPort,
	}
}

// LoadFromFile loads configuration from a YAML file, falling back to
// defaults for any field the file does not set.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// ApplyDataDirOverride honors the MURMUR_DATA_DIR environment variable
// (spec.md §6: "an implementation MAY override data/ via an environment
// variable"), rebasing KeyDir and ContactDir under it while preserving
// their leaf directory names.
func (c *Config) ApplyDataDirOverride() {
	base := os.Getenv("MURMUR_DATA_DIR")
	if base == "" {
		return
	}
	c.KeyDir = filepath.Join(base, filepath.Base(c.KeyDir))
	c.ContactDir = filepath.Join(base, filepath.Base(c.ContactDir))
}

// Validate reports invalid configuration values before they cause
// confusing failures deeper in the stack.
func (c *Config) Validate() error {
	if c.KeyDir == "" {
		return fmt.Errorf("key_dir must not be empty")
	}
	if c.ContactDir == "" {
		return fmt.Errorf("contact_dir must not be empty")
	}
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("listen_port %d out of range", c.ListenPort)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be positive")
	}
	return nil
}
