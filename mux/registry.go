// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mux

import (
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/bureau-foundation/termplex/lib/clock"
)

// Options configures a Registry.
type Options struct {
	// Logger is the structured logger. Required.
	Logger *slog.Logger

	// Clock stamps creation times. Defaults to clock.Real().
	Clock clock.Clock

	// Spawn starts terminal programs. Defaults to SpawnPTY.
	Spawn Spawner

	// Defaults are merged under the parameters of every created
	// session.
	Defaults TerminalParams
}

// Registry owns every session by name and every client by path.
type Registry struct {
	dispatch *dispatcher
	logger   *slog.Logger
	clock    clock.Clock
	spawn    Spawner
	defaults TerminalParams

	sessions       map[string]*Session
	clients        map[string]*Client
	nextTerminalID int
	closed         bool
}

// NewRegistry returns an empty registry.
func NewRegistry(options Options) *Registry {
	if options.Logger == nil {
		panic("mux.NewRegistry: Logger is required")
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Spawn == nil {
		options.Spawn = SpawnPTY
	}
	return &Registry{
		dispatch: &dispatcher{},
		logger:   options.Logger,
		clock:    options.Clock,
		spawn:    options.Spawn,
		defaults: options.Defaults,
		sessions: make(map[string]*Session),
		clients:  make(map[string]*Client),
	}
}

// Create makes a session named name and starts its first terminal.
// It fails with Conflict SESSION_EXISTS if the name is taken, and with
// a process error if the terminal cannot be spawned, in which case no
// session is registered.
func (r *Registry) Create(name string, params TerminalParams) (*Session, error) {
	var session *Session
	var err error
	r.dispatch.do(func() { session, err = r.create(name, params) })
	return session, err
}

func (r *Registry) create(name string, params TerminalParams) (*Session, error) {
	if r.closed {
		return nil, Transport(CodeConnectFailed, "registry is closed")
	}
	if name == "" || strings.ContainsAny(name, "/\x00") {
		return nil, Protocol("invalid session name %q", name)
	}
	if _, exists := r.sessions[name]; exists {
		return nil, Conflict(CodeSessionExists, "session %q already exists", name)
	}

	session := &Session{
		name:     name,
		created:  r.clock.Now(),
		registry: r,
		logger:   r.logger.With("session", name),
		params:   r.defaults.Merge(params),
		clients:  make(map[string]*Client),
	}
	if _, err := session.createTerminal(TerminalParams{}); err != nil {
		return nil, err
	}
	r.sessions[name] = session
	session.logger.Info("session created")
	return session, nil
}

// Lookup returns the session named name.
func (r *Registry) Lookup(name string) (*Session, bool) {
	var session *Session
	r.dispatch.do(func() { session = r.sessions[name] })
	return session, session != nil
}

// SessionInfo summarizes a session.
type SessionInfo struct {
	Name      string       `json:"name"`
	Created   time.Time    `json:"created"`
	Terminals int          `json:"terminals"`
	Rows      int          `json:"rows"`
	Columns   int          `json:"columns"`
	Clients   []ClientInfo `json:"clients"`
}

// List summarizes every session, ordered by name.
func (r *Registry) List() []SessionInfo {
	var infos []SessionInfo
	r.dispatch.do(func() {
		for _, session := range r.sessions {
			infos = append(infos, SessionInfo{
				Name:      session.name,
				Created:   session.created,
				Terminals: len(session.terminals),
				Rows:      session.params.Rows,
				Columns:   session.params.Columns,
				Clients:   session.clientInfos(),
			})
		}
	})
	slices.SortFunc(infos, func(a, b SessionInfo) int { return strings.Compare(a.Name, b.Name) })
	return infos
}

// Client returns the attached client at path.
func (r *Registry) Client(path string) (*Client, bool) {
	var client *Client
	r.dispatch.do(func() { client = r.clients[path] })
	return client, client != nil
}

// Remove closes the session named name, disconnecting its clients.
func (r *Registry) Remove(name string) error {
	var err error
	r.dispatch.do(func() {
		session, ok := r.sessions[name]
		if !ok {
			err = NotFound(CodeSessionNotFound, "session %q not found", name)
			return
		}
		session.close(ReasonSessionRemoved, session.display())
		r.removeSession(session)
	})
	return err
}

// Close hangs up every terminal and disconnects every client. Later
// creates fail.
func (r *Registry) Close() {
	r.dispatch.do(func() {
		r.closed = true
		for _, session := range r.sessions {
			session.close(ReasonServerShutdown, session.display())
			r.removeSession(session)
		}
	})
}

// DetachClient disconnects the client at path from whichever session
// it is attached to.
func (r *Registry) DetachClient(path, reason string) error {
	var err error
	r.dispatch.do(func() {
		for _, session := range r.sessions {
			if _, ok := session.clients[path]; ok {
				err = session.detach(path, reason)
				return
			}
		}
		err = NotFound(CodeClientNotFound, "client %s is not attached", path)
	})
	return err
}

func (r *Registry) removeSession(session *Session) {
	if r.sessions[session.name] == session {
		delete(r.sessions, session.name)
		session.logger.Info("session removed")
	}
}

// addClient registers a client under params.Path.
func (r *Registry) addClient(params ConnectParams) (*Client, error) {
	if params.Path == "" {
		return nil, Protocol("client path is required")
	}
	if _, exists := r.clients[params.Path]; exists {
		return nil, Conflict(CodeClientExists, "client %s is already attached", params.Path)
	}
	client := &Client{
		path:      params.Path,
		created:   r.clock.Now(),
		exclusive: params.Exclusive,
		dispatch:  r.dispatch,
		logger:    r.logger.With("client", params.Path),
		stream:    params.Stream,
		onWrite:   params.OnWrite,
	}
	r.clients[params.Path] = client
	return client, nil
}

func (r *Registry) releaseClient(client *Client) {
	if r.clients[client.path] == client {
		delete(r.clients, client.path)
	}
}
