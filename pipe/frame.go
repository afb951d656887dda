// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipe

import (
	"fmt"

	"github.com/bureau-foundation/termplex/lib/ansi"
	"github.com/bureau-foundation/termplex/lib/codec"
	"github.com/bureau-foundation/termplex/mux"
)

// FrameType is the value of a frame's "type" key.
type FrameType string

const (
	TypeConnect FrameType = "connect"
	TypeWrite   FrameType = "write"
	TypeResize  FrameType = "resize"
	TypeDetach  FrameType = "detach"
	TypePing    FrameType = "ping"

	TypeConnectSuccess FrameType = "connect_success"
	TypeError          FrameType = "error"
	TypeDisconnect     FrameType = "disconnect"
	TypePong           FrameType = "pong"
)

// Header is the part every frame shares.
type Header struct {
	Type FrameType `cbor:"type"`
}

func (h *Header) header() *Header { return h }

// Frame is any frame of the protocol.
type Frame interface {
	FrameType() FrameType
	header() *Header
}

// ConnectFrame attaches the sending socket to a session. The output
// descriptor travels as ancillary data. Cursor and AltScreen describe
// what the client's terminal shows now, so the repaint can start from
// it.
type ConnectFrame struct {
	Header
	Name      string            `cbor:"name"`
	Exclusive bool              `cbor:"exclusive,omitempty"`
	Rows      int               `cbor:"rows,omitempty"`
	Columns   int               `cbor:"columns,omitempty"`
	Cursor    *ansi.CursorState `cbor:"cursor,omitempty"`
	AltScreen bool              `cbor:"altScreen,omitempty"`
}

// WriteFrame is input typed by the client.
type WriteFrame struct {
	Header
	Name string `cbor:"name"`
	Data []byte `cbor:"data"`
}

// ResizeFrame reports the client's new terminal size.
type ResizeFrame struct {
	Header
	Name    string `cbor:"name"`
	Rows    int    `cbor:"rows"`
	Columns int    `cbor:"columns"`
}

// DetachFrame disconnects the sending client.
type DetachFrame struct {
	Header
	Name string `cbor:"name"`
}

// PingFrame asks for a pong. It fails with SESSION_NOT_FOUND once the
// session is gone.
type PingFrame struct {
	Header
	Name string `cbor:"name"`
}

// ConnectSuccessFrame acknowledges a connect.
type ConnectSuccessFrame struct {
	Header
	Rows    int `cbor:"rows"`
	Columns int `cbor:"columns"`
}

// ErrorFrame reports a failed request.
type ErrorFrame struct {
	Header
	Err     mux.Code `cbor:"err"`
	Message string   `cbor:"message,omitempty"`
}

// DisconnectFrame tells the client it has been detached and what its
// terminal should be restored from.
type DisconnectFrame struct {
	Header
	Reason    string           `cbor:"reason"`
	Cursor    ansi.CursorState `cbor:"cursor"`
	AltScreen bool             `cbor:"altScreen"`
}

// PongFrame answers a ping.
type PongFrame struct {
	Header
}

func (*ConnectFrame) FrameType() FrameType { return TypeConnect }
func (*WriteFrame) FrameType() FrameType { return TypeWrite }
func (*ResizeFrame) FrameType() FrameType { return TypeResize }
func (*DetachFrame) FrameType() FrameType { return TypeDetach }
func (*PingFrame) FrameType() FrameType { return TypePing }
func (*ConnectSuccessFrame) FrameType() FrameType { return TypeConnectSuccess }
func (*ErrorFrame) FrameType() FrameType { return TypeError }
func (*DisconnectFrame) FrameType() FrameType { return TypeDisconnect }
func (*PongFrame) FrameType() FrameType { return TypePong }

// Display returns the display state the disconnect frame carries.
func (f *DisconnectFrame) Display() ansi.DisplayState {
	return ansi.DisplayState{Cursor: f.Cursor, AltScreen: f.AltScreen}
}

// Encode stamps frame with its type and encodes it.
func Encode(frame Frame) ([]byte, error) {
	frame.header().Type = frame.FrameType()
	return codec.Marshal(frame)
}

// DecodeRequest decodes a client-to-server frame.
func DecodeRequest(data []byte) (Frame, error) {
	frameType, err := decodeType(data)
	if err != nil {
		return nil, err
	}
	var frame Frame
	switch frameType {
	case TypeConnect:
		frame = &ConnectFrame{}
	case TypeWrite:
		frame = &WriteFrame{}
	case TypeResize:
		frame = &ResizeFrame{}
	case TypeDetach:
		frame = &DetachFrame{}
	case TypePing:
		frame = &PingFrame{}
	default:
		return nil, mux.Protocol("unexpected request type %q", frameType)
	}
	return decodeInto(data, frame)
}

// DecodeReply decodes a server-to-client frame.
func DecodeReply(data []byte) (Frame, error) {
	frameType, err := decodeType(data)
	if err != nil {
		return nil, err
	}
	var frame Frame
	switch frameType {
	case TypeConnectSuccess:
		frame = &ConnectSuccessFrame{}
	case TypeError:
		frame = &ErrorFrame{}
	case TypeDisconnect:
		frame = &DisconnectFrame{}
	case TypePong:
		frame = &PongFrame{}
	default:
		return nil, mux.Protocol("unexpected reply type %q", frameType)
	}
	return decodeInto(data, frame)
}

func decodeType(data []byte) (FrameType, error) {
	var header Header
	if err := codec.Unmarshal(data, &header); err != nil {
		return "", mux.Protocol("decoding frame: %v", err)
	}
	if header.Type == "" {
		return "", mux.Protocol("frame has no type")
	}
	return header.Type, nil
}

func decodeInto(data []byte, frame Frame) (Frame, error) {
	if err := codec.Unmarshal(data, frame); err != nil {
		return nil, mux.Protocol("decoding %s frame: %v", frame.FrameType(), err)
	}
	return frame, nil
}

// describe renders a malformed datagram for logs.
func describe(data []byte) string {
	if diagnosis, err := codec.Diagnose(data); err == nil {
		return diagnosis
	}
	return fmt.Sprintf("%d undecodable bytes", len(data))
}
