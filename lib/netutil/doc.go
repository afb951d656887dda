// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides I/O helpers shared by the termplex
// transports and the CLI.
//
// IsExpectedCloseError classifies the errors that occur when a PTY,
// socket or WebSocket peer goes away normally, so callers log only
// the surprising ones.
//
// The HTTP helpers bound every response body read at MaxResponseSize.
// They are for the small JSON documents the status endpoint serves,
// not for streaming bodies.
package netutil
