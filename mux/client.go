// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mux

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/termplex/lib/ansi"
	"github.com/bureau-foundation/termplex/lib/netutil"
	"github.com/bureau-foundation/termplex/lib/outbox"
)

// Disconnect reasons.
const (
	ReasonDetached       = "detached"
	ReasonExited         = "exited"
	ReasonStreamClosed   = "stream closed"
	ReasonConnectionLost = "connection lost"
	ReasonSessionRemoved = "session removed"
	ReasonServerShutdown = "server shutdown"
)

// DisconnectEvent tells a client's transport why it was disconnected
// and what its peer's display should be restored from.
type DisconnectEvent struct {
	Reason  string
	Display ansi.DisplayState
}

// Client is one attached viewer. Output reaches it either through an
// owned stream, written by a dedicated goroutine, or through a write
// callback supplied by the transport.
type Client struct {
	path      string
	created   time.Time
	exclusive bool

	dispatch *dispatcher
	logger   *slog.Logger

	stream       io.WriteCloser
	streamOnce   sync.Once
	output       *outbox.Outbox[[]byte]
	onWrite      func(data []byte)
	onResize     []func(rows, columns int)
	onDisconnect []func(DisconnectEvent)

	// streamFailed runs under the dispatch lock when the stream
	// cannot be written.
	streamFailed func()

	disconnected bool
	final        DisconnectEvent
}

// Path returns the client's registry key.
func (c *Client) Path() string { return c.path }

// Created returns when the client attached.
func (c *Client) Created() time.Time { return c.created }

// Exclusive reports whether the client refuses other attaches.
func (c *Client) Exclusive() bool { return c.exclusive }

// startStream launches the stream writer.
func (c *Client) startStream() {
	if c.stream == nil {
		return
	}
	c.output = outbox.New[[]byte]()
	go c.pumpStream()
}

func (c *Client) pumpStream() {
	defer c.closeStream()
	for {
		select {
		case <-c.output.Ready():
			if !c.writeStream(c.output.Drain()) {
				return
			}
		case <-c.output.Done():
			c.writeStream(c.output.Drain())
			return
		}
	}
}

func (c *Client) writeStream(chunks [][]byte) bool {
	for _, chunk := range chunks {
		if _, err := c.stream.Write(chunk); err != nil {
			if !netutil.IsExpectedCloseError(err) {
				c.logger.Info("client stream write failed", "error", err)
			}
			c.dispatch.do(func() {
				if c.streamFailed != nil {
					c.streamFailed()
				}
			})
			return false
		}
	}
	return true
}

func (c *Client) closeStream() {
	c.streamOnce.Do(func() {
		if err := c.stream.Close(); err != nil {
			c.logger.Debug("closing client stream", "error", err)
		}
	})
}

// Write sends terminal output to the client.
func (c *Client) Write(data []byte) {
	c.dispatch.do(func() { c.write(data) })
}

func (c *Client) write(data []byte) {
	if c.disconnected || len(data) == 0 {
		return
	}
	if c.output != nil {
		c.output.Push(data)
		return
	}
	if c.onWrite != nil {
		c.onWrite(data)
	}
}

// ChangeTerminal repaints the client, currently showing old, with
// state: leave the alternate screen if needed, draw the normal buffer
// and its cursor, then the alternate buffer if there is one, then the
// cursor modes.
func (c *Client) ChangeTerminal(old ansi.DisplayState, state *ScreenState) {
	c.dispatch.do(func() { c.changeTerminal(old, state) })
}

func (c *Client) changeTerminal(old ansi.DisplayState, state *ScreenState) {
	if state == nil {
		return
	}
	c.write([]byte(repaint(old, state)))
}

// Resize tells the client the session's size changed.
func (c *Client) Resize(rows, columns int) {
	c.dispatch.do(func() { c.resize(rows, columns) })
}

func (c *Client) resize(rows, columns int) {
	if c.disconnected {
		return
	}
	for _, handler := range c.onResize {
		handler(rows, columns)
	}
}

// OnResize registers a resize handler.
func (c *Client) OnResize(fn func(rows, columns int)) {
	c.dispatch.do(func() { c.onResize = append(c.onResize, fn) })
}

// OnDisconnect registers a disconnect handler. If the client is
// already disconnected the handler runs immediately.
func (c *Client) OnDisconnect(fn func(DisconnectEvent)) {
	c.dispatch.do(func() {
		if c.disconnected {
			fn(c.final)
			return
		}
		c.onDisconnect = append(c.onDisconnect, fn)
	})
}

// Disconnect detaches the client. Unsent output is discarded, the
// stream is closed and disconnect handlers run with the final display
// state.
func (c *Client) Disconnect(reason string, display ansi.DisplayState) {
	c.dispatch.do(func() { c.disconnect(reason, display) })
}

func (c *Client) disconnect(reason string, display ansi.DisplayState) {
	if c.disconnected {
		return
	}
	c.disconnected = true
	c.final = DisconnectEvent{Reason: reason, Display: display}
	if c.output != nil {
		c.output.Discard()
		c.output.Close()
	}
	c.logger.Info("client disconnected", "reason", reason)
	for _, handler := range c.onDisconnect {
		handler(c.final)
	}
	c.onDisconnect = nil
	c.onResize = nil
}
