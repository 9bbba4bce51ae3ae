package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingCredentials is returned by Validate when the Rituals account is not configured.
var ErrMissingCredentials = errors.New("rituals email and password are required")

// Config holds all configuration options for the rituals-hass application
type Config struct {
	// MQTT Configuration
	MQTTUrl         string `yaml:"mqtt_url"`         // MQTT URL (supports both WebSocket and standard MQTT)
	DiscoveryPrefix string `yaml:"discovery_prefix"` // Home Assistant discovery prefix
	ClientID        string `yaml:"client_id"`        // MQTT client ID suffix and bridge availability topic

	// Rituals account
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	APIURL   string `yaml:"api_url"` // Rituals cloud base URL

	// Intervals
	UpdateInterval      time.Duration `yaml:"update_interval"`       // Per-diffuser refresh cadence
	MQTTInterval        time.Duration `yaml:"mqtt_interval"`         // Minimum gap between state passes
	ForceUpdateInterval time.Duration `yaml:"force_update_interval"` // Republish all states even if unchanged (0 = disabled)
	APITimeout          time.Duration `yaml:"api_timeout"`

	// Application Configuration
	Verbose bool `yaml:"verbose"` // Enable verbose logging
}

// GetDefaultConfig returns a configuration with sensible defaults
func GetDefaultConfig() *Config {
	return &Config{
		DiscoveryPrefix: "homeassistant",
		ClientID:        "rituals_hass",
		APIURL:          "https://rituals.sense-company.com",
		UpdateInterval:  DefaultUpdateInterval,
		MQTTInterval:    MQTTTransmitInterval,
		APITimeout:      RitualsTimeout,
	}
}

// Load reads a YAML file on top of the defaults. Keys missing from the file
// keep their default value.
func Load(path string) (*Config, error) {
	cfg := GetDefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return cfg, nil
}

// durationKeys are decoded with ParseDuration so the file accepts the same
// forms as flags and environment variables.
var durationKeys = map[string]bool{
	"update_interval":       true,
	"mqtt_interval":         true,
	"force_update_interval": true,
	"api_timeout":           true,
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(value.Content); i += 2 {
			key, val := value.Content[i], value.Content[i+1]
			if !durationKeys[key.Value] || val.Kind != yaml.ScalarNode {
				continue
			}
			d, err := ParseDuration(val.Value)
			if err != nil {
				return fmt.Errorf("line %d: invalid %s %q", val.Line, key.Value, val.Value)
			}
			val.Tag = "!!str"
			val.Value = d.String()
		}
	}

	type plain Config
	return value.Decode((*plain)(c))
}

// ParseDuration accepts Go durations and bare integers as seconds.
func ParseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(v) * time.Second, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Email == "" || c.Password == "" {
		return ErrMissingCredentials
	}

	if c.ClientID == "" {
		return fmt.Errorf("client ID is required")
	}

	// MQTT validation - support both WebSocket and standard MQTT protocols
	if c.MQTTUrl != "" {
		if !strings.HasPrefix(c.MQTTUrl, "ws://") &&
			!strings.HasPrefix(c.MQTTUrl, "wss://") &&
			!strings.HasPrefix(c.MQTTUrl, "mqtt://") &&
			!strings.HasPrefix(c.MQTTUrl, "mqtts://") {
			return fmt.Errorf("MQTT URL must use supported protocol (ws://, wss://, mqtt://, or mqtts://)")
		}
	}

	if c.ForceUpdateInterval < 0 {
		return fmt.Errorf("force update interval must not be negative")
	}

	// Clamp instead of failing; these are tuning knobs.
	if c.UpdateInterval < MinUpdateInterval {
		c.UpdateInterval = MinUpdateInterval
	}
	if c.MQTTInterval <= 0 {
		c.MQTTInterval = MQTTTransmitInterval
	}
	if c.APITimeout <= 0 {
		c.APITimeout = RitualsTimeout
	}

	return nil
}

// HasMQTT returns true if MQTT is configured
func (c *Config) HasMQTT() bool {
	return c.MQTTUrl != ""
}
