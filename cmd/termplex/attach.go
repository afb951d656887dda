// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/termplex/cmd/termplex/cli"
	"github.com/bureau-foundation/termplex/lib/ansi"
	"github.com/bureau-foundation/termplex/lib/clock"
	"github.com/bureau-foundation/termplex/lib/netutil"
	"github.com/bureau-foundation/termplex/mux"
	"github.com/bureau-foundation/termplex/pipe"
	"github.com/bureau-foundation/termplex/web"
)

// missedPongLimit is how many pings may go unanswered before the
// server is considered gone.
const missedPongLimit = 2

type attachFlags struct {
	configPath string
	server     string
	socket     string
	exclusive  bool
	timeout    time.Duration
}

func attachCommand() *cli.Command {
	var flags attachFlags
	return &cli.Command{
		Name:    "attach",
		Summary: "Attach this terminal to a session",
		Description: `Attach the current terminal to a running session. The terminal is put
in raw mode and its output descriptor is handed to the server, which
writes session output to it directly.

Detach with Ctrl-A d. Ctrl-A Ctrl-A sends a literal Ctrl-A.`,
		Usage: "termplex attach <session> [flags]",
		Examples: []cli.Example{
			{Description: "Attach to the session named main", Command: "termplex attach main"},
			{Description: "Attach and keep everyone else out", Command: "termplex attach --exclusive main"},
			{Description: "Skip status discovery", Command: "termplex attach --socket /run/user/1000/termplex.sock main"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("attach", pflag.ContinueOnError)
			addConfigFlag(flagSet, &flags.configPath)
			flagSet.StringVar(&flags.server, "server", "", "server URL used to discover the socket (default from server.listen)")
			flagSet.StringVar(&flags.socket, "socket", "", "attach socket path, skipping discovery")
			flagSet.BoolVar(&flags.exclusive, "exclusive", false, "refuse other clients while attached")
			flagSet.DurationVar(&flags.timeout, "timeout", 0, "connect timeout (default attach.connect_timeout)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return cli.Validation("attach takes exactly one session name").
					WithHint("Run 'termplex status' to list sessions.")
			}
			cfg, err := loadConfig(flags.configPath)
			if err != nil {
				return err
			}
			timeout := cfg.Attach.ConnectTimeout
			if flags.timeout > 0 {
				timeout = flags.timeout
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGHUP)
			defer stop()

			socket := flags.socket
			if socket == "" {
				base := flags.server
				if base == "" {
					base = cfg.Server.Listen
				}
				socket, err = discoverSocket(ctx, serverURL(base))
				if err != nil {
					return err
				}
			}

			return attach(ctx, attachRequest{
				socket:       socket,
				session:      args[0],
				exclusive:    flags.exclusive,
				timeout:      timeout,
				pingInterval: cfg.Attach.PingInterval,
				logger:       cli.NewCommandLogger(slog.LevelWarn).With("command", "attach"),
			})
		},
	}
}

// discoverSocket asks a running server where its attach socket is.
func discoverSocket(ctx context.Context, base string) (string, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	var status web.Status
	if err := netutil.GetJSON(ctx, client, base+"/status", &status); err != nil {
		return "", cli.Transient("cannot reach a termplex server at %s: %w", base, err).
			WithHint("Start one with 'termplex serve', or pass --socket.")
	}
	if status.SockPath == "" {
		return "", cli.Internal("server at %s reported no socket path", base)
	}
	return status.SockPath, nil
}

type attachRequest struct {
	socket       string
	session      string
	exclusive    bool
	timeout      time.Duration
	pingInterval time.Duration
	logger       *slog.Logger
}

// attach runs an interactive attach on the process's terminal.
func attach(ctx context.Context, request attachRequest) error {
	stdin, stdout := os.Stdin, os.Stdout
	if !term.IsTerminal(int(stdin.Fd())) || !term.IsTerminal(int(stdout.Fd())) {
		return cli.Validation("attach needs a terminal on stdin and stdout")
	}
	columns, rows, err := term.GetSize(int(stdout.Fd()))
	if err != nil {
		return cli.Internal("reading terminal size: %w", err)
	}

	// Raw mode goes on before the connect so the repaint and first
	// output arrive with output processing already off.
	saved, err := term.MakeRaw(int(stdin.Fd()))
	if err != nil {
		return cli.Internal("entering raw mode: %w", err)
	}

	original := ansi.DisplayState{Cursor: ansi.CursorState{X: 1, Y: 1, Visible: true}}
	conn, err := pipe.Dial(ctx, pipe.DialConfig{
		SocketPath: request.socket,
		Session:    request.session,
		Exclusive:  request.exclusive,
		Rows:       rows,
		Columns:    columns,
		Display:    original,
		Output:     stdout,
		Timeout:    request.timeout,
		Logger:     request.logger,
	})
	if err != nil {
		term.Restore(int(stdin.Fd()), saved)
		return dialError(err, request)
	}
	defer conn.Close()

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)

	session := &attachSession{
		conn:     conn,
		input:    stdin,
		output:   stdout,
		resizes:  winch,
		size:     func() (int, int, error) { return term.GetSize(int(stdout.Fd())) },
		clock:    clock.Real(),
		interval: request.pingInterval,
		original: original,
		logger:   request.logger,
	}
	reason, err := session.run(ctx)
	term.Restore(int(stdin.Fd()), saved)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "\r\n%s\r\n", endMessage(request.session, reason))
	return nil
}

func dialError(err error, request attachRequest) error {
	var remote *pipe.RemoteError
	switch {
	case errors.Is(err, pipe.ErrConnectTimeout):
		return cli.Transient("no answer from the termplex server within %v", request.timeout).
			WithHint("The server may be overloaded. Try again, or raise --timeout.")
	case errors.Is(err, pipe.ErrServerDisconnected):
		return cli.Transient("no termplex server is listening at %s", request.socket).
			WithHint("Start one with 'termplex serve'.")
	case errors.As(err, &remote):
		switch remote.Code {
		case mux.CodeSessionNotFound:
			return cli.NotFound("no session named %q", request.session).
				WithHint("Run 'termplex status' to list sessions.")
		case mux.CodeSessionAlreadyConnected:
			return cli.Conflict("cannot attach to %q: %s", request.session, remote.Message)
		}
		return cli.Internal("attach refused: %w", err)
	}
	return cli.Internal("attaching to %q: %w", request.session, err)
}

func endMessage(session, reason string) string {
	switch reason {
	case mux.ReasonDetached:
		return fmt.Sprintf("[detached from %s]", session)
	case mux.ReasonExited:
		return fmt.Sprintf("[session %s exited]", session)
	default:
		return fmt.Sprintf("[disconnected from %s: %s]", session, reason)
	}
}

// attachSession pumps one attached terminal: input and size changes
// go up, liveness pings go out, and it ends on the server's
// disconnect frame.
type attachSession struct {
	conn    *pipe.Conn
	input   io.Reader
	output  io.Writer
	resizes <-chan os.Signal
	size    func() (columns, rows int, err error)

	clock    clock.Clock
	interval time.Duration

	// original is the display the local terminal had before the
	// attach. Its screen and cursor modes are restored when the
	// session ends; the cursor stays where the session left it.
	original ansi.DisplayState

	logger *slog.Logger
}

// run returns the disconnect reason, or an error when the server
// vanished without one.
func (a *attachSession) run(ctx context.Context) (string, error) {
	inputDone := make(chan error, 1)
	go func() {
		_, err := io.Copy(a.conn, a.input)
		inputDone <- err
	}()

	ticker := a.clock.NewTicker(a.interval)
	defer ticker.Stop()
	missed := 0
	detaching := false
	cancelled := ctx.Done()

	for {
		select {
		case frame, ok := <-a.conn.Frames():
			if !ok {
				return "", a.lost()
			}
			switch frame := frame.(type) {
			case *pipe.DisconnectFrame:
				a.restoreFrom(frame.Display())
				return frame.Reason, nil
			case *pipe.PongFrame:
				missed = 0
			case *pipe.ErrorFrame:
				if frame.Err == mux.CodeSessionNotFound {
					a.restore()
					return mux.ReasonExited, nil
				}
				a.logger.Warn("server rejected a request", "code", frame.Err, "message", frame.Message)
			}

		case <-a.resizes:
			columns, rows, err := a.size()
			if err != nil {
				continue
			}
			if err := a.conn.Resize(rows, columns); err != nil {
				return "", a.lost()
			}

		case <-ticker.C:
			if missed >= missedPongLimit {
				return "", a.lost()
			}
			missed++
			if err := a.conn.Ping(); err != nil {
				return "", a.lost()
			}

		case err := <-inputDone:
			// Input ended; ask to leave and wait for the disconnect.
			inputDone = nil
			if err != nil && !errors.Is(err, pipe.ErrServerDisconnected) {
				a.logger.Warn("reading input failed", "error", err)
			}
			if detaching {
				continue
			}
			detaching = true
			if err := a.conn.Detach(); err != nil {
				return "", a.lost()
			}

		case <-cancelled:
			cancelled = nil
			if !detaching {
				detaching = true
				if err := a.conn.Detach(); err != nil {
					return "", a.lost()
				}
			}
		}
	}
}

// restoreFrom moves the local terminal from the session's final
// display back to the original modes.
func (a *attachSession) restoreFrom(remote ansi.DisplayState) {
	target := remote
	target.AltScreen = a.original.AltScreen
	target.Cursor.Visible = a.original.Cursor.Visible
	target.Cursor.Blinking = a.original.Cursor.Blinking
	io.WriteString(a.output, ansi.DisplayStateToANSI(ansi.Diff(remote, target)))
}

// restore resets the modes without knowing what the session left the
// terminal showing.
func (a *attachSession) restore() {
	delta := a.original.Full()
	delta.Cursor.X, delta.Cursor.Y = nil, nil
	io.WriteString(a.output, ansi.DisplayStateToANSI(delta))
}

func (a *attachSession) lost() error {
	a.restore()
	return cli.Transient("lost connection to the termplex server")
}
