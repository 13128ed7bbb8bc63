package server

import (
	"fmt"
)

// Config holds HTTP server configuration.
type Config struct {
	Host              string `yaml:"host" mapstructure:"host"`
	Port              int    `yaml:"port" mapstructure:"port"`
	ReadTimeout       int    `yaml:"read_timeout" mapstructure:"read_timeout"`               // seconds
	ReadHeaderTimeout int    `yaml:"read_header_timeout" mapstructure:"read_header_timeout"` // seconds
	WriteTimeout      int    `yaml:"write_timeout" mapstructure:"write_timeout"`             // seconds
	IdleTimeout       int    `yaml:"idle_timeout" mapstructure:"idle_timeout"`               // seconds
	ShutdownTimeout   int    `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`       // seconds
	MaxBodyBytes      int64  `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// ApplyDefaults sets sensible default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8100
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = 5
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 15
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 5
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 1 << 20
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535 (got: %d)", c.Port)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("server.read_timeout must be non-negative (got: %d)", c.ReadTimeout)
	}
	if c.ReadHeaderTimeout < 0 {
		return fmt.Errorf("server.read_header_timeout must be non-negative (got: %d)", c.ReadHeaderTimeout)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("server.write_timeout must be non-negative (got: %d)", c.WriteTimeout)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("server.idle_timeout must be non-negative (got: %d)", c.IdleTimeout)
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("server.max_body_bytes must be non-negative (got: %d)", c.MaxBodyBytes)
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
