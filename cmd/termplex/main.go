// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// termplex keeps terminal sessions running on a server and lets local
// terminals and browsers attach to them.
//
// Usage:
//
//	termplex serve [--config file] [--listen addr] [--socket path]
//	termplex attach <session> [--exclusive]
//	termplex status [--json]
//	termplex version
package main

import (
	"fmt"
	"os"

	"github.com/bureau-foundation/termplex/cmd/termplex/cli"
	"github.com/bureau-foundation/termplex/lib/process"
	"github.com/bureau-foundation/termplex/lib/version"
)

func main() {
	process.Exit(root().Execute(os.Args[1:]))
}

func root() *cli.Command {
	return &cli.Command{
		Name: "termplex",
		Description: `termplex: a terminal multiplexer server.

Sessions run on the server independently of any viewer. Attach from a
local terminal with "termplex attach" or from a browser over WebSocket.
Detach with Ctrl-A d.`,
		Subcommands: []*cli.Command{
			serveCommand(),
			attachCommand(),
			statusCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("termplex %s\n", version.Full())
					return nil
				},
			},
		},
	}
}
