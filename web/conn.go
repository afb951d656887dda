// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/termplex/lib/clock"
	"github.com/bureau-foundation/termplex/lib/outbox"
	"github.com/bureau-foundation/termplex/mux"
)

const (
	// maxMessageSize is the largest frame a browser may send.
	maxMessageSize = 512 * 1024

	// writeWait bounds one frame write.
	writeWait = 10 * time.Second
)

// connection is one browser WebSocket. The handler goroutine runs the
// read pump; writePump is the only writer to the socket.
type connection struct {
	ws       *websocket.Conn
	label    string
	registry *mux.Registry
	logger   *slog.Logger
	clock    clock.Clock

	pingInterval time.Duration

	// outbound holds frames for writePump. It is finished with the
	// last frame (disconnect or error) of the connection.
	outbound *outbox.Outbox[any]

	// session is set once connect succeeds. Only the read pump
	// touches it.
	session *mux.Session

	// failed is set once an error frame is queued; later frames are
	// ignored while the socket closes.
	failed bool
}

// serve pumps frames until the browser goes away or the connection is
// finished.
func (c *connection) serve() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
	}()
	c.readPump()
	<-done
}

func (c *connection) readPump() {
	defer func() {
		if c.session != nil {
			// Already detached unless the browser vanished.
			c.session.Detach(c.label, mux.ReasonConnectionLost)
		}
		c.outbound.Close()
	}()

	pongWait := 2 * c.pingInterval
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info("websocket read failed", "error", err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		if c.failed {
			continue
		}
		if kind != websocket.TextMessage {
			c.fail(mux.Protocol("binary frames are not supported"))
			continue
		}
		message, err := decodeMessage(data)
		if err != nil {
			c.fail(err)
			continue
		}
		if err := c.handle(message); err != nil {
			c.fail(err)
		}
	}
}

func (c *connection) handle(message any) error {
	if connect, ok := message.(*ConnectMessage); ok {
		return c.connect(connect)
	}
	if c.session == nil {
		return mux.Protocol("not connected")
	}

	switch message := message.(type) {
	case *WriteMessage:
		return c.session.WriteFrom(c.label, []byte(message.Data))
	case *ResizeMessage:
		return c.session.Resize(message.Rows, message.Columns)
	case *DetachMessage:
		return c.session.Detach(c.label, mux.ReasonDetached)
	default:
		return mux.Protocol("unexpected message %T", message)
	}
}

func (c *connection) connect(message *ConnectMessage) error {
	if c.session != nil {
		return mux.Protocol("already connected to session %q", c.session.Name())
	}
	session, ok := c.registry.Lookup(message.Name)
	if !ok {
		return mux.NotFound(mux.CodeSessionNotFound, "session %q not found", message.Name)
	}

	_, err := session.ConnectClient(mux.ConnectParams{
		Path:      c.label,
		Exclusive: message.Exclusive,
		Rows:      message.Rows,
		Columns:   message.Columns,
		OnConnect: func(result mux.ConnectResult) {
			c.outbound.Push(connectSuccess(result))
		},
		OnWrite: func(data []byte) {
			c.outbound.Push(&DataMessage{Type: TypeData, Data: string(data)})
		},
		OnResize: func(rows, columns int) {
			c.outbound.Push(&ResizeMessage{Type: TypeResize, Rows: rows, Columns: columns})
		},
		OnDisconnect: func(event mux.DisconnectEvent) {
			c.outbound.Finish(&DisconnectMessage{
				Type:      TypeDisconnect,
				Reason:    event.Reason,
				Cursor:    event.Display.Cursor,
				AltScreen: event.Display.AltScreen,
			})
		},
	})
	if err != nil {
		return err
	}
	c.session = session
	c.logger = c.logger.With("session", session.Name())
	c.logger.Info("browser attached", "exclusive", message.Exclusive)
	return nil
}

// fail sends an error frame as the connection's last and detaches.
func (c *connection) fail(err error) {
	c.logger.Info("closing websocket after error", "error", err)
	c.failed = true
	c.outbound.Finish(&ErrorMessage{Type: TypeError, Err: mux.WireCode(err), Message: err.Error()})
	if c.session != nil {
		c.session.Detach(c.label, mux.ReasonDetached)
		c.session = nil
	}
}

func (c *connection) writePump() {
	ticker := c.clock.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-c.outbound.Ready():
			if !c.write(c.outbound.Drain()) {
				return
			}
		case <-c.outbound.Done():
			if c.write(c.outbound.Drain()) {
				c.ws.SetWriteDeadline(time.Now().Add(writeWait))
				c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			}
			return
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) write(messages []any) bool {
	for _, message := range messages {
		c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteJSON(message); err != nil {
			c.logger.Debug("websocket write failed", "error", err)
			return false
		}
	}
	return true
}
