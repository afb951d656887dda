// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mux

import (
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/bureau-foundation/termplex/lib/ptyproc"
)

// TerminalParams describes how terminals of a session are started.
type TerminalParams struct {
	// Shell runs when Command is empty.
	Shell string `json:"shell"`

	// Command, when set, runs instead of Shell. Command[0] is the
	// executable.
	Command []string `json:"command,omitempty"`

	Cwd     string            `json:"cwd,omitempty"`
	Rows    int               `json:"rows"`
	Columns int               `json:"columns"`
	Env     map[string]string `json:"env,omitempty"`
}

// Merge returns p with every non-zero field of overrides applied.
// Environment entries are merged key by key.
func (p TerminalParams) Merge(overrides TerminalParams) TerminalParams {
	merged := p
	merged.Command = slices.Clone(p.Command)
	merged.Env = maps.Clone(p.Env)

	if overrides.Shell != "" {
		merged.Shell = overrides.Shell
	}
	if len(overrides.Command) > 0 {
		merged.Command = slices.Clone(overrides.Command)
	}
	if overrides.Cwd != "" {
		merged.Cwd = overrides.Cwd
	}
	if overrides.Rows > 0 {
		merged.Rows = overrides.Rows
	}
	if overrides.Columns > 0 {
		merged.Columns = overrides.Columns
	}
	if len(overrides.Env) > 0 {
		if merged.Env == nil {
			merged.Env = make(map[string]string, len(overrides.Env))
		}
		maps.Copy(merged.Env, overrides.Env)
	}
	return merged
}

// processOptions builds spawn options. The environment is the
// server's, with TERM forced to the value the screen model emulates
// and the session's variables layered on top.
func (p TerminalParams) processOptions() ptyproc.Options {
	executable, args := p.Shell, []string(nil)
	if len(p.Command) > 0 {
		executable, args = p.Command[0], p.Command[1:]
	}

	environment := make(map[string]string)
	for _, entry := range os.Environ() {
		if name, value, ok := strings.Cut(entry, "="); ok {
			environment[name] = value
		}
	}
	environment["TERM"] = ptyproc.DefaultTerm
	maps.Copy(environment, p.Env)

	entries := make([]string, 0, len(environment))
	for _, name := range slices.Sorted(maps.Keys(environment)) {
		entries = append(entries, name+"="+environment[name])
	}

	return ptyproc.Options{
		Executable: executable,
		Args:       args,
		Dir:        p.Cwd,
		Env:        entries,
		Rows:       uint16(p.Rows),
		Columns:    uint16(p.Columns),
	}
}

// Process is a running terminal program. *ptyproc.Process implements
// it.
type Process interface {
	io.ReadWriter

	// Resize changes the PTY window size.
	Resize(columns, rows int) error

	// Wait blocks until the program exits.
	Wait() error

	// Close hangs up the program.
	Close() error
}

// Spawner starts a terminal program.
type Spawner func(ptyproc.Options) (Process, error)

// SpawnPTY is the production Spawner.
func SpawnPTY(options ptyproc.Options) (Process, error) {
	process, err := ptyproc.Start(options)
	if err != nil {
		return nil, err
	}
	return process, nil
}
