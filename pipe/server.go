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
	"sync"
	"time"

	"github.com/bureau-foundation/termplex/lib/ansi"
	"github.com/bureau-foundation/termplex/lib/netutil"
	"github.com/bureau-foundation/termplex/lib/outbox"
	"github.com/bureau-foundation/termplex/mux"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	// SocketPath is where the datagram socket is bound. Required.
	SocketPath string

	// Registry resolves sessions. Required.
	Registry *mux.Registry

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// Server serves the attach protocol on a Unix datagram socket.
//
// Frames are handled one at a time in arrival order. Replies are
// queued and sent by a separate goroutine, so handlers that run under
// the registry's dispatch lock (disconnect notifications) never wait
// on a slow client socket.
type Server struct {
	socketPath string
	registry   *mux.Registry
	logger     *slog.Logger

	ready chan struct{}
	conn  *net.UnixConn

	replies *outbox.Outbox[reply]
	sender  sync.WaitGroup
}

type reply struct {
	to   string
	data []byte
}

// NewServer creates a server. Call Serve to start it.
func NewServer(config ServerConfig) *Server {
	if config.SocketPath == "" {
		panic("pipe.NewServer: SocketPath is required")
	}
	if config.Registry == nil {
		panic("pipe.NewServer: Registry is required")
	}
	if config.Logger == nil {
		panic("pipe.NewServer: Logger is required")
	}
	return &Server{
		socketPath: config.SocketPath,
		registry:   config.Registry,
		logger:     config.Logger,
		ready:      make(chan struct{}),
		replies:    outbox.New[reply](),
	}
}

// Ready is closed once the socket is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// SocketPath returns the path clients send to.
func (s *Server) SocketPath() string { return s.socketPath }

// Serve binds the socket and handles frames until ctx is cancelled.
// A stale socket file at the path is removed first, and the file is
// removed again on return.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: s.socketPath, Net: "unixgram"})
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	s.conn = conn
	defer func() {
		conn.Close()
		os.Remove(s.socketPath)
	}()

	// Unblock the read on cancellation but keep the socket open
	// until queued replies are sent.
	go func() {
		<-ctx.Done()
		conn.SetReadDeadline(time.Now())
	}()

	s.sender.Add(1)
	go s.sendReplies()
	close(s.ready)
	s.logger.Info("pipe server listening", "path", s.socketPath)

	receiver := newReceiver(conn)
	for {
		received, err := receiver.receive()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("receiving datagram failed", "error", err)
			continue
		}
		s.handle(received)
	}

	s.replies.Close()
	s.sender.Wait()
	s.logger.Info("pipe server stopped")
	return nil
}

func (s *Server) sendReplies() {
	defer s.sender.Done()
	for {
		select {
		case <-s.replies.Ready():
			s.flush(s.replies.Drain())
		case <-s.replies.Done():
			s.flush(s.replies.Drain())
			return
		}
	}
}

func (s *Server) flush(replies []reply) {
	for _, queued := range replies {
		err := sendTo(s.conn, queued.to, queued.data, -1)
		if err == nil {
			continue
		}
		if netutil.IsExpectedCloseError(err) {
			return
		}
		if isPeerGone(err) {
			// The attach process went away without detaching.
			if detachErr := s.registry.DetachClient(queued.to, mux.ReasonConnectionLost); detachErr == nil {
				s.logger.Info("client socket gone, detached", "client", queued.to)
			}
			continue
		}
		s.logger.Warn("sending reply failed", "client", queued.to, "error", err)
	}
}

func (s *Server) send(to string, frame Frame) {
	data, err := Encode(frame)
	if err != nil {
		s.logger.Error("encoding reply failed", "type", frame.FrameType(), "error", err)
		return
	}
	s.replies.Push(reply{to: to, data: data})
}

func (s *Server) sendError(to string, err error) {
	s.send(to, &ErrorFrame{Err: mux.WireCode(err), Message: err.Error()})
}

// handle processes one datagram. Every failure becomes an error
// reply; nothing a client sends stops the server.
func (s *Server) handle(received datagram) {
	if received.from == "" {
		closeFDs(received.fds)
		s.logger.Warn("dropping datagram from an unbound socket", "bytes", len(received.data))
		return
	}

	frame, err := DecodeRequest(received.data)
	if err != nil {
		closeFDs(received.fds)
		s.logger.Warn("malformed frame", "client", received.from, "error", err, "frame", describe(received.data))
		s.sendError(received.from, err)
		return
	}

	if connect, ok := frame.(*ConnectFrame); ok {
		s.connect(received.from, connect, received.fds)
		return
	}
	closeFDs(received.fds)

	switch frame := frame.(type) {
	case *WriteFrame:
		err = s.withSession(frame.Name, func(session *mux.Session) error {
			return session.WriteFrom(received.from, frame.Data)
		})
	case *ResizeFrame:
		err = s.withSession(frame.Name, func(session *mux.Session) error {
			return session.Resize(frame.Rows, frame.Columns)
		})
	case *DetachFrame:
		err = s.withSession(frame.Name, func(session *mux.Session) error {
			return session.Detach(received.from, mux.ReasonDetached)
		})
	case *PingFrame:
		err = s.withSession(frame.Name, func(*mux.Session) error { return nil })
		if err == nil {
			s.send(received.from, &PongFrame{})
		}
	default:
		err = mux.Protocol("unexpected %s frame", frame.FrameType())
	}
	if err != nil {
		s.logger.Debug("request failed", "client", received.from, "type", frame.FrameType(), "error", err)
		s.sendError(received.from, err)
	}
}

func (s *Server) withSession(name string, fn func(*mux.Session) error) error {
	session, ok := s.registry.Lookup(name)
	if !ok {
		return mux.NotFound(mux.CodeSessionNotFound, "session %q not found", name)
	}
	return fn(session)
}

func (s *Server) connect(from string, frame *ConnectFrame, fds []int) {
	if len(fds) == 0 {
		s.sendError(from, mux.Transport(mux.CodeBadConnectFD, "connect from %s carried no descriptor", from))
		return
	}
	closeFDs(fds[1:])
	stream := os.NewFile(uintptr(fds[0]), "client:"+from)

	logger := s.logger.With("client", from, "session", frame.Name)
	session, ok := s.registry.Lookup(frame.Name)
	if !ok {
		stream.Close()
		s.sendError(from, mux.NotFound(mux.CodeSessionNotFound, "session %q not found", frame.Name))
		return
	}

	resync := ansi.DisplayState{AltScreen: frame.AltScreen}
	if frame.Cursor != nil {
		resync.Cursor = *frame.Cursor
	}
	_, err := session.ConnectClient(mux.ConnectParams{
		Path:      from,
		Exclusive: frame.Exclusive,
		Rows:      frame.Rows,
		Columns:   frame.Columns,
		Stream:    stream,
		Resync:    &resync,
		OnConnect: func(result mux.ConnectResult) {
			s.send(from, &ConnectSuccessFrame{Rows: result.Rows, Columns: result.Columns})
		},
		OnDisconnect: func(event mux.DisconnectEvent) {
			s.send(from, &DisconnectFrame{
				Reason:    event.Reason,
				Cursor:    event.Display.Cursor,
				AltScreen: event.Display.AltScreen,
			})
		},
	})
	if err != nil {
		stream.Close()
		logger.Info("connect refused", "error", err)
		s.sendError(from, err)
		return
	}
	logger.Info("client attached over pipe", "exclusive", frame.Exclusive)
}
