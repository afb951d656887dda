// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ansi

import (
	"strconv"
	"strings"
)

// CursorState is the cursor part of a terminal's display state. X and
// Y are 1-based columns and rows.
type CursorState struct {
	X        int  `json:"x"`
	Y        int  `json:"y"`
	Visible  bool `json:"visible"`
	Blinking bool `json:"blinking"`
}

// DisplayState is everything about a terminal's presentation that is
// not cell content.
type DisplayState struct {
	Cursor    CursorState `json:"cursor"`
	AltScreen bool        `json:"altScreen"`
}

// CursorDelta is a partial CursorState. Nil fields are unchanged.
type CursorDelta struct {
	X        *int  `json:"x,omitempty"`
	Y        *int  `json:"y,omitempty"`
	Visible  *bool `json:"visible,omitempty"`
	Blinking *bool `json:"blinking,omitempty"`
}

// DisplayStateDelta is a partial DisplayState. Nil fields are
// unchanged.
type DisplayStateDelta struct {
	Cursor    *CursorDelta `json:"cursor,omitempty"`
	AltScreen *bool        `json:"altScreen,omitempty"`
}

const (
	enterAltScreen = "\x1b[?1049h"
	leaveAltScreen = "\x1b[?1049l"
	showCursor     = "\x1b[?25h"
	hideCursor     = "\x1b[?25l"
	startBlinking  = "\x1b[?12h"
	stopBlinking   = "\x1b[?12l"

	// ClearScreen homes the cursor and erases the whole display.
	ClearScreen = "\x1b[H\x1b[2J"
)

// DisplayStateToANSI returns the escape sequence that applies delta
// to a terminal. Fields are emitted in a fixed order: alternate
// screen, cursor position, cursor visibility, cursor blink. The
// cursor position is emitted only when both X and Y are present. An
// empty delta yields the empty string.
func DisplayStateToANSI(delta DisplayStateDelta) string {
	var builder strings.Builder

	if delta.AltScreen != nil {
		if *delta.AltScreen {
			builder.WriteString(enterAltScreen)
		} else {
			builder.WriteString(leaveAltScreen)
		}
	}

	cursor := delta.Cursor
	if cursor == nil {
		return builder.String()
	}

	if cursor.X != nil && cursor.Y != nil {
		builder.WriteString(CursorPosition(*cursor.X, *cursor.Y))
	}
	if cursor.Visible != nil {
		if *cursor.Visible {
			builder.WriteString(showCursor)
		} else {
			builder.WriteString(hideCursor)
		}
	}
	if cursor.Blinking != nil {
		if *cursor.Blinking {
			builder.WriteString(startBlinking)
		} else {
			builder.WriteString(stopBlinking)
		}
	}

	return builder.String()
}

// CursorPosition returns the CUP sequence moving the cursor to the
// 1-based column x and row y.
func CursorPosition(x, y int) string {
	return "\x1b[" + strconv.Itoa(y) + ";" + strconv.Itoa(x) + "H"
}

// Apply returns state with delta folded in. Position is updated only
// when both coordinates are present, matching what
// DisplayStateToANSI emits for the same delta.
func (state DisplayState) Apply(delta DisplayStateDelta) DisplayState {
	if delta.AltScreen != nil {
		state.AltScreen = *delta.AltScreen
	}
	if cursor := delta.Cursor; cursor != nil {
		if cursor.X != nil && cursor.Y != nil {
			state.Cursor.X = *cursor.X
			state.Cursor.Y = *cursor.Y
		}
		if cursor.Visible != nil {
			state.Cursor.Visible = *cursor.Visible
		}
		if cursor.Blinking != nil {
			state.Cursor.Blinking = *cursor.Blinking
		}
	}
	return state
}

// Full returns the delta that sets every field of state.
func (state DisplayState) Full() DisplayStateDelta {
	return DisplayStateDelta{
		AltScreen: ptr(state.AltScreen),
		Cursor: &CursorDelta{
			X:        ptr(state.Cursor.X),
			Y:        ptr(state.Cursor.Y),
			Visible:  ptr(state.Cursor.Visible),
			Blinking: ptr(state.Cursor.Blinking),
		},
	}
}

// Diff returns the smallest delta that turns from into to. A change
// to either coordinate carries both, since position is only ever
// applied as a pair.
func Diff(from, to DisplayState) DisplayStateDelta {
	var delta DisplayStateDelta
	if from.AltScreen != to.AltScreen {
		delta.AltScreen = ptr(to.AltScreen)
	}

	var cursor CursorDelta
	changed := false
	if from.Cursor.X != to.Cursor.X || from.Cursor.Y != to.Cursor.Y {
		cursor.X = ptr(to.Cursor.X)
		cursor.Y = ptr(to.Cursor.Y)
		changed = true
	}
	if from.Cursor.Visible != to.Cursor.Visible {
		cursor.Visible = ptr(to.Cursor.Visible)
		changed = true
	}
	if from.Cursor.Blinking != to.Cursor.Blinking {
		cursor.Blinking = ptr(to.Cursor.Blinking)
		changed = true
	}
	if changed {
		delta.Cursor = &cursor
	}
	return delta
}

func ptr[T any](value T) *T { return &value }
