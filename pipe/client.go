// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/termplex/lib/ansi"
	"github.com/bureau-foundation/termplex/lib/clock"
	"github.com/bureau-foundation/termplex/mux"
)

// DefaultConnectTimeout bounds how long Dial waits for the server to
// answer a connect.
const DefaultConnectTimeout = 5 * time.Second

// writeChunkSize is the most input one write frame carries.
const writeChunkSize = 16 * 1024

var (
	// ErrConnectTimeout means the server did not answer the connect
	// in time. The server may be busy or wedged; retrying can help.
	ErrConnectTimeout = errors.New("timed out waiting for the termplex server")

	// ErrServerDisconnected means nothing is listening at the
	// server's socket path, or the server went away mid-session.
	ErrServerDisconnected = errors.New("termplex server is not running")
)

// RemoteError is an error frame from the server.
type RemoteError struct {
	Code    mux.Code
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// DialConfig describes an attach.
type DialConfig struct {
	// SocketPath is the server's datagram socket. Required.
	SocketPath string

	// Session is the session to attach to. Required.
	Session string

	Exclusive bool
	Rows      int
	Columns   int

	// Display is what the local terminal shows now. The server's
	// repaint starts from it.
	Display ansi.DisplayState

	// Output receives terminal output. It is passed to the server and
	// is normally os.Stdout. Required.
	Output *os.File

	// LocalPath is where the client's own socket is bound. Defaults
	// to a unique path in the temporary directory.
	LocalPath string

	// Timeout defaults to DefaultConnectTimeout.
	Timeout time.Duration

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to discarding.
	Logger *slog.Logger
}

// Conn is an attached client.
type Conn struct {
	conn       *net.UnixConn
	serverPath string
	localPath  string
	session    string
	logger     *slog.Logger

	// Rows and Columns are the session size the server reported.
	Rows    int
	Columns int

	frames    chan Frame
	closed    chan struct{}
	closeOnce sync.Once
}

// Dial binds a local socket, sends a connect frame with config.Output
// attached and waits for the answer. An error frame is returned as a
// *RemoteError.
func Dial(ctx context.Context, config DialConfig) (*Conn, error) {
	if config.SocketPath == "" || config.Session == "" || config.Output == nil {
		return nil, errors.New("pipe.Dial: SocketPath, Session and Output are required")
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConnectTimeout
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.LocalPath == "" {
		config.LocalPath = filepath.Join(os.TempDir(),
			fmt.Sprintf("termplex-attach-%d-%s.sock", os.Getpid(), uuid.NewString()[:8]))
	}

	local, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: config.LocalPath, Net: "unixgram"})
	if err != nil {
		return nil, fmt.Errorf("binding attach socket %s: %w", config.LocalPath, err)
	}
	c := &Conn{
		conn:       local,
		serverPath: config.SocketPath,
		localPath:  config.LocalPath,
		session:    config.Session,
		logger:     config.Logger,
		frames:     make(chan Frame, 16),
		closed:     make(chan struct{}),
	}

	cursor := config.Display.Cursor
	connect := &ConnectFrame{
		Name:      config.Session,
		Exclusive: config.Exclusive,
		Rows:      config.Rows,
		Columns:   config.Columns,
		Cursor:    &cursor,
		AltScreen: config.Display.AltScreen,
	}
	data, err := Encode(connect)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("encoding connect: %w", err)
	}
	if err := sendTo(local, config.SocketPath, data, int(config.Output.Fd())); err != nil {
		c.Close()
		return nil, c.classify(err)
	}

	go c.receive()

	timeout := config.Clock.After(config.Timeout)
	select {
	case frame, ok := <-c.frames:
		if !ok {
			c.Close()
			return nil, ErrServerDisconnected
		}
		switch frame := frame.(type) {
		case *ConnectSuccessFrame:
			c.Rows, c.Columns = frame.Rows, frame.Columns
			return c, nil
		case *ErrorFrame:
			c.Close()
			return nil, &RemoteError{Code: frame.Err, Message: frame.Message}
		default:
			c.Close()
			return nil, fmt.Errorf("unexpected %s frame in answer to connect", frame.FrameType())
		}
	case <-timeout:
		c.Close()
		return nil, ErrConnectTimeout
	case <-ctx.Done():
		c.Close()
		return nil, ctx.Err()
	}
}

func (c *Conn) receive() {
	defer close(c.frames)
	receiver := newReceiver(c.conn)
	for {
		received, err := receiver.receive()
		if err != nil {
			return
		}
		closeFDs(received.fds)
		frame, err := DecodeReply(received.data)
		if err != nil {
			c.logger.Warn("malformed reply", "from", received.from, "error", err, "frame", describe(received.data))
			continue
		}
		select {
		case c.frames <- frame:
		case <-c.closed:
			return
		}
	}
}

// Frames delivers replies after the connect: disconnect, pong and
// error frames. It is closed when the connection is closed.
func (c *Conn) Frames() <-chan Frame { return c.frames }

// LocalPath returns the client's socket path, its identity on the
// server.
func (c *Conn) LocalPath() string { return c.localPath }

// Write sends input, split across frames when large.
func (c *Conn) Write(data []byte) (int, error) {
	written := 0
	for len(data) > 0 {
		chunk := data[:min(len(data), writeChunkSize)]
		if err := c.send(&WriteFrame{Name: c.session, Data: chunk}); err != nil {
			return written, err
		}
		written += len(chunk)
		data = data[len(chunk):]
	}
	return written, nil
}

// Resize reports a new local terminal size.
func (c *Conn) Resize(rows, columns int) error {
	return c.send(&ResizeFrame{Name: c.session, Rows: rows, Columns: columns})
}

// Detach asks to be disconnected. The server answers with a
// disconnect frame.
func (c *Conn) Detach() error {
	return c.send(&DetachFrame{Name: c.session})
}

// Ping asks for a pong.
func (c *Conn) Ping() error {
	return c.send(&PingFrame{Name: c.session})
}

func (c *Conn) send(frame Frame) error {
	data, err := Encode(frame)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", frame.FrameType(), err)
	}
	if err := sendTo(c.conn, c.serverPath, data, -1); err != nil {
		return c.classify(err)
	}
	return nil
}

func (c *Conn) classify(err error) error {
	if isPeerGone(err) {
		return fmt.Errorf("%w (%s)", ErrServerDisconnected, c.serverPath)
	}
	return fmt.Errorf("sending to %s: %w", c.serverPath, err)
}

// Close unbinds the local socket and removes its file.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
		os.Remove(c.localPath)
	})
	return err
}
