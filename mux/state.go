// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mux

import (
	"strings"

	"github.com/bureau-foundation/termplex/lib/ansi"
	"github.com/bureau-foundation/termplex/lib/screen"
)

// BufferState is one screen buffer rendered as ANSI-decorated lines.
type BufferState struct {
	Cursor ansi.CursorState `json:"cursor"`
	Buffer []string         `json:"buffer"`
}

// ScreenState is a terminal's normal buffer and, while the alternate
// screen is active, its alternate buffer.
type ScreenState struct {
	Normal    BufferState  `json:"normal"`
	Alternate *BufferState `json:"alternate,omitempty"`
}

// Display returns the display state a client shows after a repaint
// from s.
func (s *ScreenState) Display() ansi.DisplayState {
	if s.Alternate != nil {
		return ansi.DisplayState{Cursor: s.Alternate.Cursor, AltScreen: true}
	}
	return ansi.DisplayState{Cursor: s.Normal.Cursor}
}

// Text returns the active buffer's lines joined with newlines,
// trailing blank lines dropped.
func (s *ScreenState) Text() string {
	lines := s.Normal.Buffer
	if s.Alternate != nil {
		lines = s.Alternate.Buffer
	}
	end := len(lines)
	for end > 0 && lines[end-1] == "" {
		end--
	}
	return strings.Join(lines[:end], "\n")
}

func newBufferState(snapshot screen.Snapshot) BufferState {
	buffer := make([]string, len(snapshot.Lines))
	for index, line := range snapshot.Lines {
		buffer[index] = ansi.LineToString(line)
	}
	return BufferState{Cursor: snapshot.Cursor, Buffer: buffer}
}

func newScreenState(state screen.State) *ScreenState {
	screenState := &ScreenState{Normal: newBufferState(state.Normal)}
	if state.Alternate != nil {
		alternate := newBufferState(*state.Alternate)
		screenState.Alternate = &alternate
	}
	return screenState
}

// repaint returns the bytes that make a terminal currently showing
// old display state show state.
func repaint(old ansi.DisplayState, state *ScreenState) string {
	var builder strings.Builder
	if old.AltScreen {
		builder.WriteString(ansi.DisplayStateToANSI(ansi.DisplayStateDelta{AltScreen: new(bool)}))
	}
	writeBuffer(&builder, state.Normal)

	if state.Alternate != nil {
		enter := true
		builder.WriteString(ansi.DisplayStateToANSI(ansi.DisplayStateDelta{AltScreen: &enter}))
		writeBuffer(&builder, *state.Alternate)
	}

	cursor := state.Display().Cursor
	builder.WriteString(ansi.DisplayStateToANSI(ansi.DisplayStateDelta{
		Cursor: &ansi.CursorDelta{Visible: &cursor.Visible, Blinking: &cursor.Blinking},
	}))
	return builder.String()
}

func writeBuffer(builder *strings.Builder, buffer BufferState) {
	builder.WriteString(ansi.ClearScreen)
	builder.WriteString(strings.Join(buffer.Buffer, "\r\n"))
	builder.WriteString(ansi.CursorPosition(buffer.Cursor.X, buffer.Cursor.Y))
}
