// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the config file when --config is not
// given.
const EnvironmentVariable = "TERMPLEX_CONFIG"

// maxSocketPath is the longest path a Unix socket can be bound to.
const maxSocketPath = 107

// Config is the complete termplex configuration.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Terminal TerminalConfig  `yaml:"terminal"`
	Sessions []SessionConfig `yaml:"sessions"`
	Attach   AttachConfig    `yaml:"attach"`
	Logging  LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the listeners.
type ServerConfig struct {
	// Listen is the TCP address of the HTTP and WebSocket server.
	// Default: 127.0.0.1:7681
	Listen string `yaml:"listen"`

	// SocketPath is the datagram socket local attaches send to.
	// Default: ${XDG_RUNTIME_DIR:-/tmp}/termplex.sock
	SocketPath string `yaml:"socket_path"`

	// AllowedOrigins lists the browser origins allowed to open a
	// WebSocket. Empty allows same-host origins only.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// TerminalConfig holds the defaults every terminal starts with.
type TerminalConfig struct {
	// Shell runs in terminals started without a command.
	// Default: ${SHELL:-/bin/sh}
	Shell string `yaml:"shell"`

	// Cwd is the working directory. Empty inherits the server's.
	Cwd string `yaml:"cwd"`

	Rows    int `yaml:"rows"`
	Columns int `yaml:"columns"`

	// Env is added to the server's environment.
	Env map[string]string `yaml:"env"`
}

// SessionConfig is a session created when the server starts.
type SessionConfig struct {
	Name string `yaml:"name"`

	// Command replaces the shell when set.
	Command []string `yaml:"command"`

	Cwd string `yaml:"cwd"`
}

// AttachConfig configures the attach command.
type AttachConfig struct {
	// ConnectTimeout bounds the wait for the server's answer.
	// Default: 5s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// PingInterval is how often an attached client checks that the
	// server and session are still there. Default: 30s
	PingInterval time.Duration `yaml:"ping_interval"`
}

// LoggingConfig configures the server's structured logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Default: info
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given. Its
// values are not yet expanded; [Load] and [LoadFile] expand them.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:     "127.0.0.1:7681",
			SocketPath: "${XDG_RUNTIME_DIR:-/tmp}/termplex.sock",
		},
		Terminal: TerminalConfig{
			Shell:   "${SHELL:-/bin/sh}",
			Rows:    24,
			Columns: 80,
		},
		Attach: AttachConfig{
			ConnectTimeout: 5 * time.Second,
			PingInterval:   30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load loads the file named by TERMPLEX_CONFIG, or returns the
// defaults if it is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile loads path over the defaults and expands variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is valid YAML once comments and trailing commas are
		// gone.
		data = jsonc.ToJSON(data)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} in every field
// that names an address, path or program.
func (c *Config) expandVariables() {
	c.Server.Listen = expandVars(c.Server.Listen)
	c.Server.SocketPath = expandVars(c.Server.SocketPath)
	c.Terminal.Shell = expandVars(c.Terminal.Shell)
	c.Terminal.Cwd = expandVars(c.Terminal.Cwd)
	for index := range c.Sessions {
		c.Sessions[index].Cwd = expandVars(c.Sessions[index].Cwd)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// LogLevel returns the configured level, or info if it is invalid.
func (c *Config) LogLevel() slog.Level {
	if level, ok := levels[strings.ToLower(c.Logging.Level)]; ok {
		return level
	}
	return slog.LevelInfo
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	level, ok := levels[strings.ToLower(name)]
	if !ok {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug, info, warn or error)", name)
	}
	return level, nil
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen is required"))
	}
	if c.Server.SocketPath == "" {
		errs = append(errs, errors.New("server.socket_path is required"))
	} else if len(c.Server.SocketPath) > maxSocketPath {
		errs = append(errs, fmt.Errorf("server.socket_path is %d bytes, longer than the %d a Unix socket allows",
			len(c.Server.SocketPath), maxSocketPath))
	}

	if c.Terminal.Shell == "" {
		errs = append(errs, errors.New("terminal.shell is required"))
	}
	if c.Terminal.Rows <= 0 || c.Terminal.Rows > 0xffff {
		errs = append(errs, fmt.Errorf("terminal.rows must be between 1 and 65535, got %d", c.Terminal.Rows))
	}
	if c.Terminal.Columns <= 0 || c.Terminal.Columns > 0xffff {
		errs = append(errs, fmt.Errorf("terminal.columns must be between 1 and 65535, got %d", c.Terminal.Columns))
	}

	var names []string
	for index, session := range c.Sessions {
		switch {
		case session.Name == "":
			errs = append(errs, fmt.Errorf("sessions[%d].name is required", index))
		case strings.ContainsAny(session.Name, "/\x00"):
			errs = append(errs, fmt.Errorf("sessions[%d].name %q contains '/' or NUL", index, session.Name))
		case slices.Contains(names, session.Name):
			errs = append(errs, fmt.Errorf("sessions[%d].name %q is a duplicate", index, session.Name))
		}
		names = append(names, session.Name)
	}

	if c.Attach.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("attach.connect_timeout must be positive"))
	}
	if c.Attach.PingInterval <= 0 {
		errs = append(errs, errors.New("attach.ping_interval must be positive"))
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}

	return errors.Join(errs...)
}
