// Package config loads the server configuration from defaults, the
// environment and an optional YAML file, in that order of precedence
// (later wins).
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"dqx0.com/go/dirserv/internal/obs"
)

// Config holds the whole application configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig configures the listener and the request pipeline.
type ServerConfig struct {
	Host string `yaml:"host"` // listen host, empty for all interfaces
	Port int    `yaml:"port"` // listen port
	Root string `yaml:"root"` // document root

	Backlog        int           `yaml:"backlog"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"` // 0 disables idle reaping
	MaxLineBytes   int           `yaml:"max_line_bytes"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Prefix string `yaml:"prefix"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			Root:           ".",
			Backlog:        64,
			IdleTimeout:    30 * time.Second,
			MaxLineBytes:   8 << 10,
			MaxHeaderBytes: 64 << 10,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds the configuration with Read and validates it.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Read layers environment variables and the YAML file at path over the
// defaults without validating the result, so callers can apply further
// overrides first. path may be empty.
func Read(path string) (*Config, error) {
	cfg := Default()
	cfg.Server.Host = getEnvOrDefault("DIRSERV_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvAsIntOrDefault("PORT", cfg.Server.Port)
	cfg.Server.Root = getEnvOrDefault("DIRSERV_ROOT", cfg.Server.Root)
	cfg.Log.Level = getEnvOrDefault("DIRSERV_LOG_LEVEL", cfg.Log.Level)

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Server.Port))
	}
	if c.Server.Root == "" {
		errs = append(errs, errors.New("document root is empty"))
	} else if fi, err := os.Stat(c.Server.Root); err != nil {
		errs = append(errs, fmt.Errorf("document root: %w", err))
	} else if !fi.IsDir() {
		errs = append(errs, fmt.Errorf("document root %s is not a directory", c.Server.Root))
	}
	if c.Server.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("negative idle timeout %v", c.Server.IdleTimeout))
	}
	if c.Server.MaxLineBytes < 0 || c.Server.MaxHeaderBytes < 0 || c.Server.Backlog < 0 {
		errs = append(errs, errors.New("limits must not be negative"))
	}
	if _, err := obs.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ServerAddress returns the listen address in host:port form.
func (c *Config) ServerAddress() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
