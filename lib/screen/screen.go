// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package screen models the visible contents of a terminal by feeding
// PTY output through a headless VT emulator.
//
// The emulator only exposes whichever buffer is active. A terminal in
// the alternate screen still has a normal buffer that an attaching
// client must be shown underneath, so the normal buffer is captured at
// the moment the alternate screen is entered and served until it is
// left. Output cannot reach the normal buffer while the alternate
// screen is active, so the capture stays accurate.
package screen

import (
	"io"
	"sync"

	"github.com/hinshun/vt10x"

	"github.com/bureau-foundation/termplex/lib/ansi"
)

// Emulator is the interface the session layer needs from a screen
// model.
type Emulator interface {
	// Feed applies PTY output to the screen.
	Feed(data []byte)

	// Resize changes the screen dimensions.
	Resize(columns, rows int)

	// Snapshot returns the current buffers.
	Snapshot() State

	// Display returns the active buffer's cursor and whether the
	// alternate screen is active.
	Display() ansi.DisplayState

	// OnAlternateScreenChange registers fn to be called after each
	// transition into or out of the alternate screen.
	OnAlternateScreenChange(fn func(active bool))
}

// Snapshot is one buffer's content and cursor.
type Snapshot struct {
	Cursor ansi.CursorState
	Lines  []ansi.Line
}

// State holds the normal buffer and, while the alternate screen is
// active, the alternate buffer.
type State struct {
	Normal    Snapshot
	Alternate *Snapshot
}

// VT is an Emulator backed by vt10x.
type VT struct {
	mu       sync.Mutex
	terminal vt10x.Terminal

	// pending holds a possible private mode sequence split across
	// Feed calls.
	pending []byte

	blinking  bool
	altScreen bool
	normal    *Snapshot

	onAltScreen func(active bool)
}

var _ Emulator = (*VT)(nil)

// New returns an empty screen of the given size.
func New(columns, rows int) *VT {
	return &VT{
		terminal: vt10x.New(vt10x.WithSize(columns, rows), vt10x.WithWriter(io.Discard)),
	}
}

// OnAlternateScreenChange registers the transition callback, replacing
// any earlier one. The callback runs on the goroutine calling Feed.
func (s *VT) OnAlternateScreenChange(fn func(active bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAltScreen = fn
}

// Feed applies PTY output. Sequences that enter the alternate screen
// are located before the emulator sees them so the normal buffer can
// be captured first. Cursor blink mode is tracked here because the
// emulator does not record it.
func (s *VT) Feed(data []byte) {
	s.mu.Lock()
	if len(s.pending) > 0 {
		data = append(s.pending, data...)
		s.pending = nil
	}

	var transitions []bool
	start := 0
	for index := 0; index < len(data); index++ {
		if data[index] != 0x1b {
			continue
		}
		sequence, ok := parsePrivateMode(data[index:])
		if !ok {
			s.pending = append([]byte(nil), data[index:]...)
			data = data[:index]
			break
		}
		if sequence.length == 0 {
			continue
		}

		end := index + sequence.length
		if sequence.blink != nil {
			s.blinking = *sequence.blink
		}
		if sequence.switchesScreen {
			s.write(data[start:index])
			if sequence.set && !s.emulatorAltScreen() {
				normal := s.capture()
				s.normal = &normal
			}
			s.write(data[index:end])
			start = end
			if changed, active := s.syncAltScreen(); changed {
				transitions = append(transitions, active)
			}
		}
		index = end - 1
	}
	s.write(data[start:])
	if changed, active := s.syncAltScreen(); changed {
		transitions = append(transitions, active)
	}

	callback := s.onAltScreen
	s.mu.Unlock()

	if callback != nil {
		for _, active := range transitions {
			callback(active)
		}
	}
}

func (s *VT) write(data []byte) {
	if len(data) > 0 {
		s.terminal.Write(data)
	}
}

func (s *VT) emulatorAltScreen() bool {
	return s.terminal.Mode()&vt10x.ModeAltScreen != 0
}

// syncAltScreen records the emulator's alternate screen mode and
// reports whether it changed.
func (s *VT) syncAltScreen() (changed, active bool) {
	active = s.emulatorAltScreen()
	if active == s.altScreen {
		return false, active
	}
	s.altScreen = active
	if !active {
		s.normal = nil
	} else if s.normal == nil {
		normal := s.capture()
		s.normal = &normal
	}
	return true, active
}

// Resize changes the emulator dimensions. A normal buffer captured
// under the alternate screen keeps its original size.
func (s *VT) Resize(columns, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminal.Resize(columns, rows)
}

// Size returns the current dimensions.
func (s *VT) Size() (columns, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal.Size()
}

// Snapshot returns the normal buffer and, if active, the alternate
// buffer.
func (s *VT) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.capture()
	if s.altScreen && s.normal != nil {
		return State{Normal: *s.normal, Alternate: &active}
	}
	return State{Normal: active}
}

// Display returns the cursor of the active buffer and the alternate
// screen flag.
func (s *VT) Display() ansi.DisplayState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ansi.DisplayState{Cursor: s.cursor(), AltScreen: s.altScreen}
}

// AltScreen reports whether the alternate screen is active.
func (s *VT) AltScreen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.altScreen
}

func (s *VT) cursor() ansi.CursorState {
	cursor := s.terminal.Cursor()
	return ansi.CursorState{
		X:        cursor.X + 1,
		Y:        cursor.Y + 1,
		Visible:  s.terminal.CursorVisible(),
		Blinking: s.blinking,
	}
}

// capture copies the active buffer out of the emulator.
func (s *VT) capture() Snapshot {
	columns, rows := s.terminal.Size()
	lines := make([]ansi.Line, rows)
	for y := range rows {
		line := make(ansi.Line, columns)
		for x := range columns {
			line[x] = convertGlyph(s.terminal.Cell(x, y))
		}
		lines[y] = line
	}
	return Snapshot{Cursor: s.cursor(), Lines: lines}
}
