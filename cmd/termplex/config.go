// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"net"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/termplex/cmd/termplex/cli"
	"github.com/bureau-foundation/termplex/lib/config"
	"github.com/bureau-foundation/termplex/mux"
)

func addConfigFlag(flagSet *pflag.FlagSet, path *string) {
	flagSet.StringVar(path, "config", "", "config file (default $"+config.EnvironmentVariable+")")
}

// loadConfig reads the file named by --config, or by TERMPLEX_CONFIG
// when the flag is empty.
func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, cli.Validation("loading configuration: %w", err)
	}
	return cfg, nil
}

func validateConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return cli.Validation("invalid configuration:\n%w", err)
	}
	return nil
}

// terminalDefaults maps the terminal section onto every session's
// starting parameters.
func terminalDefaults(cfg *config.Config) mux.TerminalParams {
	return mux.TerminalParams{
		Shell:   cfg.Terminal.Shell,
		Cwd:     cfg.Terminal.Cwd,
		Rows:    cfg.Terminal.Rows,
		Columns: cfg.Terminal.Columns,
		Env:     cfg.Terminal.Env,
	}
}

// serverURL turns a listen address into the URL a local client uses.
// Wildcard hosts are reached over loopback. Values that already carry
// a scheme are returned unchanged.
func serverURL(address string) string {
	if strings.Contains(address, "://") {
		return strings.TrimSuffix(address, "/")
	}
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return "http://" + address
	}
	if host == "" || net.ParseIP(host).IsUnspecified() {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}
