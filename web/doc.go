// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package web serves browser attaches over WebSocket and the HTTP
// status endpoints.
//
// Routes:
//
//	GET /status                  {pid, port, sock_path, sessions}
//	GET /ws                      WebSocket attach
//	GET /sessions/{name}/screen  plain-text capture of the active terminal
//
// A WebSocket connection carries JSON text frames, each an object with
// a "type" key. The browser sends connect first, then write, resize
// and detach. The server answers connect with connect_success carrying
// the full screen state, then streams data frames, resize frames when
// the session is resized, and finally one disconnect or error frame
// before closing the socket.
//
// Every connection is labelled "ws:" followed by a random UUID; the
// label is the client's key in the registry.
package web
