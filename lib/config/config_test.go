// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadWithoutConfigUsesDefaults(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	t.Setenv("SHELL", "/bin/zsh")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.SocketPath != "/run/user/1000/termplex.sock" {
		t.Errorf("socket_path: got %q, want %q", cfg.Server.SocketPath, "/run/user/1000/termplex.sock")
	}
	if cfg.Terminal.Shell != "/bin/zsh" {
		t.Errorf("shell: got %q, want %q", cfg.Terminal.Shell, "/bin/zsh")
	}
	if cfg.Server.Listen != "127.0.0.1:7681" {
		t.Errorf("listen: got %q", cfg.Server.Listen)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestDefaultFallbacks(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")
	t.Setenv("SHELL", "")

	cfg := Default()
	cfg.expandVariables()
	if cfg.Server.SocketPath != "/tmp/termplex.sock" {
		t.Errorf("socket_path: got %q, want %q", cfg.Server.SocketPath, "/tmp/termplex.sock")
	}
	if cfg.Terminal.Shell != "/bin/sh" {
		t.Errorf("shell: got %q, want %q", cfg.Terminal.Shell, "/bin/sh")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("TERMPLEX_TEST_ROOT", "/srv/work")
	path := writeConfig(t, "termplex.yaml", `
server:
  listen: 0.0.0.0:9000
  socket_path: /run/termplex/main.sock
  allowed_origins: [https://console.example]
terminal:
  shell: /bin/bash
  cwd: ${TERMPLEX_TEST_ROOT}
  rows: 50
  columns: 200
  env:
    EDITOR: vim
sessions:
  - name: main
  - name: logs
    command: [tail, -f, /var/log/syslog]
    cwd: ${TERMPLEX_TEST_ROOT}/logs
attach:
  connect_timeout: 2s
logging:
  level: debug
`)
	t.Setenv(EnvironmentVariable, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != "0.0.0.0:9000" || cfg.Server.SocketPath != "/run/termplex/main.sock" {
		t.Errorf("server: got %+v", cfg.Server)
	}
	if !slices.Equal(cfg.Server.AllowedOrigins, []string{"https://console.example"}) {
		t.Errorf("allowed_origins: got %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Terminal.Cwd != "/srv/work" || cfg.Terminal.Rows != 50 || cfg.Terminal.Env["EDITOR"] != "vim" {
		t.Errorf("terminal: got %+v", cfg.Terminal)
	}
	if len(cfg.Sessions) != 2 || cfg.Sessions[1].Cwd != "/srv/work/logs" ||
		!slices.Equal(cfg.Sessions[1].Command, []string{"tail", "-f", "/var/log/syslog"}) {
		t.Errorf("sessions: got %+v", cfg.Sessions)
	}
	if cfg.Attach.ConnectTimeout != 2*time.Second {
		t.Errorf("connect_timeout: got %v, want 2s", cfg.Attach.ConnectTimeout)
	}
	if cfg.Attach.PingInterval != 30*time.Second {
		t.Errorf("ping_interval default lost: got %v", cfg.Attach.PingInterval)
	}
	if cfg.LogLevel() != slog.LevelDebug {
		t.Errorf("level: got %v, want debug", cfg.LogLevel())
	}
}

func TestLoadJSONC(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "termplex.jsonc", `{
  // Local development server.
  "server": {"listen": "127.0.0.1:0"},
  "terminal": {"rows": 30, "columns": 100,},
  "sessions": [{"name": "dev"}],
}`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:0" || cfg.Terminal.Rows != 30 || cfg.Terminal.Columns != 100 {
		t.Errorf("got %+v", cfg)
	}
	if len(cfg.Sessions) != 1 || cfg.Sessions[0].Name != "dev" {
		t.Errorf("sessions: got %+v", cfg.Sessions)
	}
}

func TestLoadFileErrors(t *testing.T) {
	t.Parallel()
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); !os.IsNotExist(err) {
		t.Errorf("missing file: got %v, want a not-exist error", err)
	}
	path := writeConfig(t, "broken.yaml", "server: [unclosed")
	if _, err := LoadFile(path); err == nil || !strings.Contains(err.Error(), "broken.yaml") {
		t.Errorf("bad YAML: got %v, want an error naming the file", err)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Server.Listen = ""
	cfg.Server.SocketPath = "/" + strings.Repeat("s", 200)
	cfg.Terminal.Rows = 0
	cfg.Sessions = []SessionConfig{{Name: "a"}, {Name: "a"}, {Name: ""}, {Name: "x/y"}}
	cfg.Attach.PingInterval = 0
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted an invalid configuration")
	}
	for _, want := range []string{
		"server.listen is required",
		"server.socket_path is 201 bytes",
		"terminal.rows must be between",
		`sessions[1].name "a" is a duplicate`,
		"sessions[2].name is required",
		`sessions[3].name "x/y"`,
		"attach.ping_interval must be positive",
		`unknown log level "loud"`,
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	if level, err := ParseLevel("WARN"); err != nil || level != slog.LevelWarn {
		t.Errorf("WARN: got %v, %v", level, err)
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("verbose: expected an error")
	}
}
