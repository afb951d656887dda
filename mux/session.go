// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mux

import (
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/bureau-foundation/termplex/lib/ansi"
)

// Session is a named group of terminals and the clients viewing the
// active one.
type Session struct {
	name     string
	created  time.Time
	registry *Registry
	logger   *slog.Logger

	params    TerminalParams
	terminals []*Terminal
	clients   map[string]*Client

	// writer is the client whose input is being processed, so that
	// Ctrl-A d detaches the client that typed it.
	writer string

	closed bool
}

// ConnectParams describes an attach request.
type ConnectParams struct {
	// Path is the client's unique key: a socket path for local
	// clients, a generated label for WebSocket clients.
	Path string

	Exclusive bool

	// Rows and Columns are the client's terminal size. The active
	// terminal is resized to match when both are positive and differ.
	Rows    int
	Columns int

	// Stream receives output when set. The client owns it and
	// closes it on disconnect.
	Stream io.WriteCloser

	// OnWrite receives output when Stream is nil. It runs under the
	// dispatch lock.
	OnWrite func(data []byte)

	// Resync, when set, is the display the client currently shows.
	// The client is repainted from it with the active terminal's
	// screen, or greeted with an empty terminal, before any live
	// output reaches it.
	Resync *ansi.DisplayState

	// OnConnect runs under the dispatch lock once the client is
	// attached and before Resync or any event reaches it.
	OnConnect func(ConnectResult)

	// OnResize and OnDisconnect are registered before the client
	// becomes visible, so no event can be missed between connect
	// and registration.
	OnResize     func(rows, columns int)
	OnDisconnect func(DisconnectEvent)
}

// ConnectResult is a successful attach.
type ConnectResult struct {
	Client *Client

	// State is the active terminal's screen, or nil when the session
	// has no terminal and the caller should greet the client with an
	// empty terminal instead.
	State *ScreenState

	// Created is when the session was created.
	Created time.Time

	Rows    int
	Columns int
}

// Name returns the session's registry key.
func (s *Session) Name() string { return s.name }

// Created returns when the session was created.
func (s *Session) Created() time.Time { return s.created }

// Params returns the parameters new terminals start with.
func (s *Session) Params() TerminalParams {
	var params TerminalParams
	s.registry.dispatch.do(func() { params = s.params.Merge(TerminalParams{}) })
	return params
}

// Terminals returns the session's live terminals, active first.
func (s *Session) Terminals() []*Terminal {
	var terminals []*Terminal
	s.registry.dispatch.do(func() { terminals = slices.Clone(s.terminals) })
	return terminals
}

// ActiveTerminal returns the terminal receiving input, or nil.
func (s *Session) ActiveTerminal() *Terminal {
	var terminal *Terminal
	s.registry.dispatch.do(func() { terminal = s.active() })
	return terminal
}

func (s *Session) active() *Terminal {
	if len(s.terminals) == 0 {
		return nil
	}
	return s.terminals[0]
}

// CreateTerminal starts a terminal with overrides merged onto the
// session's parameters. The first terminal becomes active.
func (s *Session) CreateTerminal(overrides TerminalParams) (*Terminal, error) {
	var terminal *Terminal
	var err error
	s.registry.dispatch.do(func() { terminal, err = s.createTerminal(overrides) })
	return terminal, err
}

func (s *Session) createTerminal(overrides TerminalParams) (*Terminal, error) {
	if s.closed {
		return nil, NotFound(CodeSessionNotFound, "session %q is closed", s.name)
	}
	params := s.params.Merge(overrides)
	s.registry.nextTerminalID++
	terminal, err := newTerminal(s.registry.nextTerminalID, params, s.registry.spawn, s.registry.dispatch, s.logger)
	if err != nil {
		return nil, err
	}

	terminal.onOutput = func(data []byte) { s.broadcast(terminal, data) }
	terminal.onExit = func(error) { s.terminalExited(terminal) }
	terminal.onDetach = s.detachWriter
	terminal.screen.OnAlternateScreenChange(func(active bool) {
		terminal.logger.Debug("alternate screen changed", "active", active)
	})

	s.terminals = append(s.terminals, terminal)
	terminal.start()
	s.logger.Info("terminal created", "terminal", terminal.id, "rows", params.Rows, "columns", params.Columns)
	return terminal, nil
}

func (s *Session) broadcast(terminal *Terminal, data []byte) {
	if terminal != s.active() {
		return
	}
	for _, client := range s.clients {
		client.write(data)
	}
}

func (s *Session) terminalExited(terminal *Terminal) {
	if s.closed {
		return
	}
	index := slices.Index(s.terminals, terminal)
	if index < 0 {
		return
	}
	final := terminal.screen.Display()
	terminal.close()
	s.terminals = slices.Delete(s.terminals, index, index+1)

	if len(s.terminals) == 0 {
		s.logger.Info("last terminal exited, closing session")
		s.close(ReasonExited, final)
		s.registry.removeSession(s)
		return
	}
	if index == 0 {
		next := s.active()
		state := next.screenState()
		for _, client := range s.clients {
			client.changeTerminal(final, state)
		}
		s.logger.Info("active terminal changed", "terminal", next.id)
	}
}

// ConnectClient attaches a client. It fails with Conflict
// SESSION_ALREADY_CONNECTED when an exclusive client is attached or
// the request is exclusive and anyone is attached, and with Conflict
// CLIENT_EXISTS when the path is taken.
func (s *Session) ConnectClient(params ConnectParams) (ConnectResult, error) {
	var result ConnectResult
	var err error
	s.registry.dispatch.do(func() { result, err = s.connectClient(params) })
	return result, err
}

func (s *Session) connectClient(params ConnectParams) (ConnectResult, error) {
	if s.closed {
		return ConnectResult{}, NotFound(CodeSessionNotFound, "session %q is closed", s.name)
	}
	for _, attached := range s.clients {
		if attached.exclusive {
			return ConnectResult{}, Conflict(CodeSessionAlreadyConnected,
				"session %q is attached exclusively by %s", s.name, attached.path)
		}
	}
	if params.Exclusive && len(s.clients) > 0 {
		return ConnectResult{}, Conflict(CodeSessionAlreadyConnected,
			"session %q already has %d attached client(s)", s.name, len(s.clients))
	}

	client, err := s.registry.addClient(params)
	if err != nil {
		return ConnectResult{}, err
	}
	client.logger = s.logger.With("client", params.Path)
	client.streamFailed = func() { s.detach(client.path, ReasonStreamClosed) }
	client.onDisconnect = append(client.onDisconnect, func(DisconnectEvent) {
		delete(s.clients, client.path)
		s.registry.releaseClient(client)
	})
	if params.OnDisconnect != nil {
		client.onDisconnect = append(client.onDisconnect, params.OnDisconnect)
	}
	if params.OnResize != nil {
		client.onResize = append(client.onResize, params.OnResize)
	}

	// Resize before the client joins so it is not told about its own
	// size.
	if params.Rows > 0 && params.Columns > 0 &&
		(params.Rows != s.params.Rows || params.Columns != s.params.Columns) {
		if err := s.resize(params.Rows, params.Columns); err != nil {
			s.logger.Warn("resizing for attach failed", "error", err)
		}
	}
	s.clients[client.path] = client
	client.startStream()

	result := ConnectResult{
		Client:  client,
		Created: s.created,
		Rows:    s.params.Rows,
		Columns: s.params.Columns,
	}
	if active := s.active(); active != nil {
		result.State = active.screenState()
	}
	if params.OnConnect != nil {
		params.OnConnect(result)
	}
	if params.Resync != nil {
		if result.State != nil {
			client.changeTerminal(*params.Resync, result.State)
		} else {
			client.write([]byte(greeting))
		}
	}
	s.logger.Info("client connected", "client", client.path, "exclusive", client.exclusive)
	return result, nil
}

// greeting is what a resynced client sees when the session has no
// terminal to repaint from.
const greeting = ansi.ClearScreen + "\x1b[?25h"

// Write sends input to the active terminal. It does nothing when the
// session has no terminal.
func (s *Session) Write(data []byte) {
	s.registry.dispatch.do(func() { s.write(data) })
}

func (s *Session) write(data []byte) {
	if active := s.active(); active != nil {
		active.handleInput(data)
	}
}

// WriteFrom sends input typed by the client at path. Ctrl-A d in data
// detaches that client.
func (s *Session) WriteFrom(path string, data []byte) error {
	var err error
	s.registry.dispatch.do(func() {
		if _, ok := s.clients[path]; !ok {
			err = NotFound(CodeClientNotFound, "client %s is not attached to session %q", path, s.name)
			return
		}
		s.writer = path
		s.write(data)
		s.writer = ""
	})
	return err
}

func (s *Session) detachWriter() {
	if s.writer == "" {
		return
	}
	if err := s.detach(s.writer, ReasonDetached); err != nil {
		s.logger.Debug("detaching writer", "error", err)
	}
}

// Resize resizes the active terminal, records the size for future
// terminals and notifies every client.
func (s *Session) Resize(rows, columns int) error {
	var err error
	s.registry.dispatch.do(func() { err = s.resize(rows, columns) })
	return err
}

func (s *Session) resize(rows, columns int) error {
	if rows <= 0 || columns <= 0 {
		return Protocol("invalid size %dx%d", columns, rows)
	}
	s.params.Rows = rows
	s.params.Columns = columns
	if active := s.active(); active != nil {
		if err := active.resize(columns, rows); err != nil {
			return err
		}
	}
	for _, client := range s.clients {
		client.resize(rows, columns)
	}
	return nil
}

// Detach disconnects the client at path with the active terminal's
// display state.
func (s *Session) Detach(path, reason string) error {
	var err error
	s.registry.dispatch.do(func() { err = s.detach(path, reason) })
	return err
}

func (s *Session) detach(path, reason string) error {
	client, ok := s.clients[path]
	if !ok {
		return NotFound(CodeClientNotFound, "client %s is not attached to session %q", path, s.name)
	}
	client.disconnect(reason, s.display())
	return nil
}

// display returns the active terminal's display state, or a home
// cursor when there is none.
func (s *Session) display() ansi.DisplayState {
	if active := s.active(); active != nil {
		return active.screen.Display()
	}
	return ansi.DisplayState{Cursor: ansi.CursorState{X: 1, Y: 1, Visible: true}}
}

// ClientInfo describes an attached client.
type ClientInfo struct {
	Path      string    `json:"path"`
	Created   time.Time `json:"created"`
	Exclusive bool      `json:"exclusive"`
}

// Clients lists the attached clients.
func (s *Session) Clients() []ClientInfo {
	var infos []ClientInfo
	s.registry.dispatch.do(func() { infos = s.clientInfos() })
	return infos
}

func (s *Session) clientInfos() []ClientInfo {
	infos := make([]ClientInfo, 0, len(s.clients))
	for _, client := range s.clients {
		infos = append(infos, ClientInfo{Path: client.path, Created: client.created, Exclusive: client.exclusive})
	}
	slices.SortFunc(infos, func(a, b ClientInfo) int { return a.Created.Compare(b.Created) })
	return infos
}

// ScreenState renders the active terminal, or returns nil.
func (s *Session) ScreenState() *ScreenState {
	var state *ScreenState
	s.registry.dispatch.do(func() {
		if active := s.active(); active != nil {
			state = active.screenState()
		}
	})
	return state
}

// DisplayState returns the active terminal's display state.
func (s *Session) DisplayState() ansi.DisplayState {
	var state ansi.DisplayState
	s.registry.dispatch.do(func() { state = s.display() })
	return state
}

// close hangs up every terminal and disconnects every client.
func (s *Session) close(reason string, display ansi.DisplayState) {
	if s.closed {
		return
	}
	s.closed = true
	for _, client := range s.clients {
		client.disconnect(reason, display)
	}
	for _, terminal := range s.terminals {
		terminal.close()
	}
	s.terminals = nil
}
