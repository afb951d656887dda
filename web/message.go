// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"encoding/json"

	"github.com/bureau-foundation/termplex/lib/ansi"
	"github.com/bureau-foundation/termplex/mux"
)

// Message types.
const (
	TypeConnect        = "connect"
	TypeWrite          = "write"
	TypeResize         = "resize"
	TypeDetach         = "detach"
	TypeConnectSuccess = "connect_success"
	TypeData           = "data"
	TypeDisconnect     = "disconnect"
	TypeError          = "error"
)

// ConnectMessage attaches the connection to a session. Rows and
// Columns, when both set, resize the session to the browser's
// terminal. Cursor and AltScreen are accepted for symmetry with the
// local protocol; a browser is always sent the full screen.
type ConnectMessage struct {
	Type      string            `json:"type"`
	Name      string            `json:"name"`
	Exclusive bool              `json:"exclusive,omitempty"`
	Rows      int               `json:"rows,omitempty"`
	Columns   int               `json:"columns,omitempty"`
	Cursor    *ansi.CursorState `json:"cursor,omitempty"`
	AltScreen bool              `json:"altScreen,omitempty"`
}

// WriteMessage is input typed in the browser.
type WriteMessage struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// ResizeMessage is sent by the browser when its terminal changes size
// and by the server when the session is resized.
type ResizeMessage struct {
	Type    string `json:"type"`
	Rows    int    `json:"rows"`
	Columns int    `json:"columns"`
}

// DetachMessage asks to be disconnected.
type DetachMessage struct {
	Type string `json:"type"`
}

// ConnectSuccessMessage answers connect with the session size and
// screen.
type ConnectSuccessMessage struct {
	Type      string           `json:"type"`
	Rows      int              `json:"rows"`
	Columns   int              `json:"columns"`
	Normal    mux.BufferState  `json:"normal"`
	Alternate *mux.BufferState `json:"alternate,omitempty"`
}

// DataMessage is terminal output.
type DataMessage struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// DisconnectMessage is the last frame of a detached connection.
type DisconnectMessage struct {
	Type      string           `json:"type"`
	Reason    string           `json:"reason"`
	Cursor    ansi.CursorState `json:"cursor"`
	AltScreen bool             `json:"altScreen"`
}

// ErrorMessage is the last frame of a failed connection.
type ErrorMessage struct {
	Type    string   `json:"type"`
	Err     mux.Code `json:"err"`
	Message string   `json:"message,omitempty"`
}

// decodeMessage decodes a browser frame into one of ConnectMessage,
// WriteMessage, ResizeMessage or DetachMessage.
func decodeMessage(data []byte) (any, error) {
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, mux.Protocol("decoding message: %v", err)
	}

	var message any
	switch header.Type {
	case TypeConnect:
		message = &ConnectMessage{}
	case TypeWrite:
		message = &WriteMessage{}
	case TypeResize:
		message = &ResizeMessage{}
	case TypeDetach:
		return &DetachMessage{Type: TypeDetach}, nil
	case "":
		return nil, mux.Protocol("message has no type")
	default:
		return nil, mux.Protocol("unexpected message type %q", header.Type)
	}
	if err := json.Unmarshal(data, message); err != nil {
		return nil, mux.Protocol("decoding %s message: %v", header.Type, err)
	}
	return message, nil
}

func connectSuccess(result mux.ConnectResult) *ConnectSuccessMessage {
	message := &ConnectSuccessMessage{
		Type:    TypeConnectSuccess,
		Rows:    result.Rows,
		Columns: result.Columns,
		Normal: mux.BufferState{
			Cursor: ansi.CursorState{X: 1, Y: 1, Visible: true},
			Buffer: []string{},
		},
	}
	if result.State != nil {
		message.Normal = result.State.Normal
		message.Alternate = result.State.Alternate
	}
	return message
}
