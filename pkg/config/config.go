// Package config loads the server configuration from YAML or TOML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/azybler/transit_router/pkg/errors"
	"github.com/azybler/transit_router/pkg/routing"
)

// Defaults applied after validation.
const (
	DefaultAddr          = ":8080"
	DefaultReadTimeout   = 10 * time.Second
	DefaultWriteTimeout  = 30 * time.Second
	DefaultMaxConcurrent = 64
	DefaultBusWaitTime   = 6.0
	DefaultBusVelocity   = 40.0
	DefaultSnapshotPath  = "catalog.bin"
	DefaultLogLevel      = "info"
)

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr          string        `yaml:"addr" toml:"addr"`
	ReadTimeout   time.Duration `yaml:"read_timeout" toml:"read_timeout" validate:"gte=0"`
	WriteTimeout  time.Duration `yaml:"write_timeout" toml:"write_timeout" validate:"gte=0"`
	MaxConcurrent int           `yaml:"max_concurrent" toml:"max_concurrent" validate:"gte=0"`
	CORSOrigin    string        `yaml:"cors_origin" toml:"cors_origin"`
}

// RoutingConfig holds routing settings used when a base document has none.
type RoutingConfig struct {
	BusWaitTime float64 `yaml:"bus_wait_time" toml:"bus_wait_time" validate:"gte=0"`
	BusVelocity float64 `yaml:"bus_velocity" toml:"bus_velocity" validate:"gte=0"`
}

// SnapshotConfig locates the catalog snapshot.
type SnapshotConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `yaml:"level" toml:"level" validate:"omitempty,oneof=debug info warn error"`
}

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Routing  RoutingConfig  `yaml:"routing" toml:"routing"`
	Snapshot SnapshotConfig `yaml:"snapshot" toml:"snapshot"`
	Log      LogConfig      `yaml:"log" toml:"log"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads path, choosing the decoder by extension (.yaml, .yml or .toml),
// validates it and fills in defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	default:
		return nil, errors.New(errors.ErrCodeInvalidFormat, "unsupported config extension %q", ext)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "parse %s", path)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "validate %s", path)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.MaxConcurrent == 0 {
		c.Server.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.Server.CORSOrigin == "" {
		c.Server.CORSOrigin = "*"
	}
	if c.Routing.BusWaitTime == 0 && c.Routing.BusVelocity == 0 {
		c.Routing.BusWaitTime = DefaultBusWaitTime
	}
	if c.Routing.BusVelocity == 0 {
		c.Routing.BusVelocity = DefaultBusVelocity
	}
	if c.Snapshot.Path == "" {
		c.Snapshot.Path = DefaultSnapshotPath
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// RoutingSettings converts the routing section.
func (c *Config) RoutingSettings() routing.Settings {
	return routing.Settings{BusWaitTime: c.Routing.BusWaitTime, BusVelocity: c.Routing.BusVelocity}
}
