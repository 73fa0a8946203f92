package claims

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// StoreConfig selects where regions live.
type StoreConfig struct {
	Driver string `yaml:"driver" json:"driver" env:"CLAIMMESH_STORE_DRIVER"`
	Path   string `yaml:"path,omitempty" json:"path,omitempty" env:"CLAIMMESH_STORE_PATH"`
}

// SnapshotConfig controls pre-merge snapshots. An empty Dir disables them.
type SnapshotConfig struct {
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty" env:"CLAIMMESH_SNAPSHOT_DIR"`
}

// MQTTConfig holds MQTT connection settings for report publishing.
type MQTTConfig struct {
	Broker        string `yaml:"broker,omitempty" json:"broker,omitempty" env:"MQTT_BROKER"`
	PublishPrefix string `yaml:"publishPrefix,omitempty" json:"publishPrefix,omitempty" env:"MQTT_PUBLISH_PREFIX"`
	ClientID      string `yaml:"clientId,omitempty" json:"clientId,omitempty" env:"MQTT_CLIENT_ID"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty" env:"MQTT_USERNAME"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty" env:"MQTT_PASSWORD"`
}

// HTTPConfig holds the admin HTTP server settings.
type HTTPConfig struct {
	Port int `yaml:"port,omitempty" json:"port,omitempty" env:"CLAIMMESH_HTTP_PORT"`
}

// Config represents the full configuration file.
type Config struct {
	Store     StoreConfig    `yaml:"store" json:"store"`
	Worlds    []string       `yaml:"worlds" json:"worlds"`
	Snapshots SnapshotConfig `yaml:"snapshots,omitempty" json:"snapshots,omitempty"`
	MQTT      MQTTConfig     `yaml:"mqtt,omitempty" json:"mqtt,omitempty"`
	HTTP      HTTPConfig     `yaml:"http,omitempty" json:"http,omitempty"`
}

// Default ports and prefixes.
const (
	DefaultHTTPPort      = 8080
	DefaultPublishPrefix = "claimmesh"
)

// LoadConfig loads the configuration from a YAML file, applies environment
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	// Set variables override the file; unset ones leave it alone.
	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Store.Driver == "" {
		c.Store.Driver = DriverSQLite
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}
	if c.MQTT.PublishPrefix == "" {
		c.MQTT.PublishPrefix = DefaultPublishPrefix
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", DriverSQLite, DriverMemory, c.Store.Driver)
	}
	if len(c.Worlds) == 0 {
		return fmt.Errorf("at least one world must be defined")
	}
	for i, w := range c.Worlds {
		if w == "" {
			return fmt.Errorf("worlds[%d] is empty", i)
		}
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// OpenHost builds the Host the configuration describes.
func OpenHost(c *Config) (Host, func() error, error) {
	switch c.Store.Driver {
	case DriverMemory:
		return NewMemoryHost(c.Worlds...), func() error { return nil }, nil
	case DriverSQLite:
		h, err := OpenSQLiteHost(c.Store.Path, c.Worlds)
		if err != nil {
			return nil, nil, err
		}
		return h, h.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", c.Store.Driver)
}
