// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ansi encodes terminal state as ANSI escape sequences.
//
// Two encoders live here. [DisplayStateToANSI] turns a partial change
// to a terminal's display state (cursor position, cursor visibility,
// cursor blink, alternate screen) into the escape sequence that
// applies the change to a real terminal. [LineToString] turns one row
// of styled cells into the shortest practical SGR-decorated string,
// used to repaint a screen buffer on a terminal that has never seen
// it.
//
// Both are pure functions with no error cases. Cursor coordinates are
// 1-based, matching the CUP sequence they are emitted as.
package ansi
