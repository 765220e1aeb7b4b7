// Package config loads the volconv configuration file
// (~/.config/volconv/config.yaml).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/volconv/internal/device"
)

// Defaults used when neither the file nor a flag sets a value.
const (
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "pretty"
	DefaultDevice        = "host"
	DefaultServerAddress = "127.0.0.1:8080"
)

// Config is the on-disk configuration. Empty strings and zero counts mean
// "not set".
type Config struct {
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	DefaultDevice string `yaml:"default_device"`
	Workers       int    `yaml:"workers"`
	ServerAddress string `yaml:"server_address"`

	// Devices adds profiles next to the built-in presets. An entry with a
	// preset's name replaces it.
	Devices []device.Capability `yaml:"devices"`
}

// DefaultPath returns the per-user config location, or "" when the
// platform has no config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "volconv", "config.yaml")
}

// Load reads path. A missing file yields a zero Config; a malformed one
// is an error.
func Load(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML and validates every device entry.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Workers < 0 {
		return Config{}, fmt.Errorf("parse config: workers must be non-negative, got %d", cfg.Workers)
	}
	seen := make(map[string]bool, len(cfg.Devices))
	for i, d := range cfg.Devices {
		if d.Name == "" {
			return Config{}, fmt.Errorf("parse config: devices[%d] has no name", i)
		}
		if seen[d.Name] {
			return Config{}, fmt.Errorf("parse config: device %q listed twice", d.Name)
		}
		seen[d.Name] = true
	}
	for i, d := range cfg.Devices {
		if err := d.Validate(); err != nil {
			return Config{}, fmt.Errorf("parse config: devices[%d]: %w", i, err)
		}
	}
	return cfg, nil
}

// WithDefaults fills every unset field.
func (c Config) WithDefaults() Config {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.DefaultDevice == "" {
		c.DefaultDevice = DefaultDevice
	}
	if c.ServerAddress == "" {
		c.ServerAddress = DefaultServerAddress
	}
	return c
}

// Profiles returns the presets merged with the configured devices.
func (c Config) Profiles() map[string]device.Capability {
	out := device.Presets()
	for _, d := range c.Devices {
		out[d.Name] = d
	}
	return out
}

// Device looks up a profile by name; "" selects the default device.
func (c Config) Device(name string) (device.Capability, error) {
	if name == "" {
		name = c.WithDefaults().DefaultDevice
	}
	if d, ok := c.Profiles()[name]; ok {
		return d, nil
	}
	return device.Capability{}, fmt.Errorf("%w: %q (known: %v)", device.ErrUnknownDevice, name, c.DeviceNames())
}

// DeviceNames lists profile names in sorted order.
func (c Config) DeviceNames() []string {
	profiles := c.Profiles()
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
