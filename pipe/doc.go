// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipe implements the local attach protocol: CBOR frames
// exchanged as datagrams on a Unix socket.
//
// An attach client binds its own datagram socket to a unique path and
// sends a connect frame to the server's socket with its output file
// descriptor (normally its stdout) attached as SCM_RIGHTS ancillary
// data. The client's socket path is its identity: every later frame
// from that path acts on the client it attached, and every reply goes
// back to it. Terminal output never travels over the socket; the
// server writes it straight into the passed descriptor, starting with
// a repaint of the session's screen.
//
// Client to server: connect, write, resize, detach, ping.
// Server to client: connect_success, error, disconnect, pong.
//
// Each frame is one CBOR map with a "type" key. Frames are decoded in
// two steps: the type first, then the concrete frame for that type.
// An unknown type, or a frame of the wrong direction, is BAD_MESSAGE.
//
// Descriptor passing needs Linux.
package pipe
