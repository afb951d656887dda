// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/termplex/cmd/termplex/cli"
	"github.com/bureau-foundation/termplex/lib/netutil"
	"github.com/bureau-foundation/termplex/web"
)

type statusFlags struct {
	configPath string
	server     string
	json       bool
}

func statusCommand() *cli.Command {
	var flags statusFlags
	return &cli.Command{
		Name:    "status",
		Summary: "Show the server and its sessions",
		Usage:   "termplex status [flags]",
		Examples: []cli.Example{
			{Command: "termplex status"},
			{Description: "Machine-readable output", Command: "termplex status --json"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			addConfigFlag(flagSet, &flags.configPath)
			flagSet.StringVar(&flags.server, "server", "", "server URL (default from server.listen)")
			flagSet.BoolVar(&flags.json, "json", false, "print the status document as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return cli.Validation("status takes no arguments, got %q", args)
			}
			base := flags.server
			if base == "" {
				cfg, err := loadConfig(flags.configPath)
				if err != nil {
					return err
				}
				base = cfg.Server.Listen
			}
			status, err := fetchStatus(context.Background(), serverURL(base))
			if err != nil {
				return err
			}
			if flags.json {
				return cli.WriteJSON(os.Stdout, status)
			}
			renderStatus(os.Stdout, status, time.Now())
			return nil
		},
	}
}

func fetchStatus(ctx context.Context, base string) (*web.Status, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	var status web.Status
	if err := netutil.GetJSON(ctx, client, base+"/status", &status); err != nil {
		return nil, cli.Transient("cannot reach a termplex server at %s: %w", base, err).
			WithHint("Start one with 'termplex serve'.")
	}
	return &status, nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	faintStyle  = lipgloss.NewStyle().Faint(true)
)

func renderStatus(w io.Writer, status *web.Status, now time.Time) {
	fmt.Fprintf(w, "%s %s\n",
		headerStyle.Render("termplex"),
		faintStyle.Render(fmt.Sprintf("pid %d  port %d  socket %s", status.PID, status.Port, status.SockPath)))

	if len(status.Sessions) == 0 {
		fmt.Fprintln(w, faintStyle.Render("no sessions"))
		return
	}

	rows := [][]string{{"SESSION", "SIZE", "TERMINALS", "CLIENTS", "CREATED"}}
	for _, session := range status.Sessions {
		clients := strconv.Itoa(len(session.Clients))
		for _, client := range session.Clients {
			if client.Exclusive {
				clients += " (exclusive)"
				break
			}
		}
		rows = append(rows, []string{
			session.Name,
			fmt.Sprintf("%dx%d", session.Columns, session.Rows),
			strconv.Itoa(session.Terminals),
			clients,
			age(now.Sub(session.Created)),
		})
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for index, cell := range row {
			widths[index] = max(widths[index], lipgloss.Width(cell)+2)
		}
	}
	for index, row := range rows {
		var line strings.Builder
		for column, cell := range row {
			style := lipgloss.NewStyle().Width(widths[column])
			if index == 0 {
				style = style.Inherit(headerStyle)
			}
			if column == len(row)-1 {
				style = style.UnsetWidth()
			}
			line.WriteString(style.Render(cell))
		}
		fmt.Fprintln(w, line.String())
	}
}

func age(elapsed time.Duration) string {
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm ago", int(elapsed.Minutes()))
	case elapsed < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(elapsed.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(elapsed.Hours()/24))
	}
}
