// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/termplex/cmd/termplex/cli"
	"github.com/bureau-foundation/termplex/lib/config"
	"github.com/bureau-foundation/termplex/mux"
	"github.com/bureau-foundation/termplex/pipe"
	"github.com/bureau-foundation/termplex/web"
)

type serveFlags struct {
	configPath string
	listen     string
	socket     string
	logLevel   string
}

func serveCommand() *cli.Command {
	var flags serveFlags
	return &cli.Command{
		Name:    "serve",
		Summary: "Run the termplex server",
		Description: `Run the session registry, the local attach socket and the HTTP and
WebSocket listener until interrupted. Sessions listed in the
configuration are created at startup.

On SIGINT or SIGTERM every attached client is sent a disconnect
before the listeners close.`,
		Usage: "termplex serve [flags]",
		Examples: []cli.Example{
			{Description: "Serve with the defaults", Command: "termplex serve"},
			{Description: "Accept browsers from other hosts", Command: "termplex serve --listen 0.0.0.0:7681"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("serve", pflag.ContinueOnError)
			addConfigFlag(flagSet, &flags.configPath)
			flagSet.StringVar(&flags.listen, "listen", "", "HTTP and WebSocket listen address (overrides server.listen)")
			flagSet.StringVar(&flags.socket, "socket", "", "local attach socket path (overrides server.socket_path)")
			flagSet.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (overrides logging.level)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return cli.Validation("serve takes no arguments, got %q", args)
			}
			cfg, err := loadConfig(flags.configPath)
			if err != nil {
				return err
			}
			if flags.listen != "" {
				cfg.Server.Listen = flags.listen
			}
			if flags.socket != "" {
				cfg.Server.SocketPath = flags.socket
			}
			if flags.logLevel != "" {
				cfg.Logging.Level = flags.logLevel
			}
			if err := validateConfig(cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return (&server{
				config: cfg,
				logger: cli.NewCommandLogger(cfg.LogLevel()),
			}).run(ctx)
		},
	}
}

// server wires the registry to both transports.
type server struct {
	config *config.Config
	logger *slog.Logger

	// spawn defaults to mux.SpawnPTY.
	spawn mux.Spawner

	// ready, when set, is called with the bound HTTP address once
	// both listeners accept.
	ready func(httpAddress string)
}

// run serves until ctx is cancelled or a listener fails. On the way
// out the registry is closed first, so disconnect frames are queued
// while both transports can still deliver them.
func (s *server) run(ctx context.Context) error {
	registry := mux.NewRegistry(mux.Options{
		Logger:   s.logger,
		Spawn:    s.spawn,
		Defaults: terminalDefaults(s.config),
	})
	for _, session := range s.config.Sessions {
		_, err := registry.Create(session.Name, mux.TerminalParams{
			Command: session.Command,
			Cwd:     session.Cwd,
		})
		if err != nil {
			registry.Close()
			return fmt.Errorf("creating session %q: %w", session.Name, err)
		}
	}

	pipeServer := pipe.NewServer(pipe.ServerConfig{
		SocketPath: s.config.Server.SocketPath,
		Registry:   registry,
		Logger:     s.logger.With("component", "pipe"),
	})
	var httpServer *web.Server
	handler := web.NewHandler(web.HandlerConfig{
		Registry:       registry,
		SocketPath:     s.config.Server.SocketPath,
		Port:           func() int { return httpServer.Port() },
		AllowedOrigins: s.config.Server.AllowedOrigins,
		Logger:         s.logger.With("component", "web"),
	})
	httpServer = web.NewServer(web.ServerConfig{
		Address: s.config.Server.Listen,
		Handler: handler,
		Logger:  s.logger.With("component", "http"),
	})

	serveCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	failures := make(chan error, 2)
	go func() { failures <- pipeServer.Serve(serveCtx) }()
	go func() { failures <- httpServer.Serve(serveCtx) }()

	go func() {
		for _, ready := range []<-chan struct{}{pipeServer.Ready(), httpServer.Ready()} {
			select {
			case <-ready:
			case <-serveCtx.Done():
				return
			}
		}
		s.logger.Info("termplex serving",
			"pid", os.Getpid(),
			"listen", httpServer.Addr().String(),
			"socket", pipeServer.SocketPath(),
			"sessions", len(s.config.Sessions),
		)
		if s.ready != nil {
			s.ready(httpServer.Addr().String())
		}
	}()

	running := 2
	var errs []error
	select {
	case <-ctx.Done():
		s.logger.Info("shutting down")
	case err := <-failures:
		running--
		if err != nil {
			errs = append(errs, err)
		}
	}

	registry.Close()
	cancel()
	for ; running > 0; running-- {
		if err := <-failures; err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
