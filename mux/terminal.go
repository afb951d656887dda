// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mux

import (
	"errors"
	"log/slog"
	"unicode/utf8"

	"github.com/bureau-foundation/termplex/lib/ansi"
	"github.com/bureau-foundation/termplex/lib/netutil"
	"github.com/bureau-foundation/termplex/lib/outbox"
	"github.com/bureau-foundation/termplex/lib/ptyproc"
	"github.com/bureau-foundation/termplex/lib/screen"
)

// attentionByte is Ctrl-A, the prefix of in-band commands.
const attentionByte = 0x01

// readBufferSize is the largest PTY read handed to the screen at once.
const readBufferSize = 32 * 1024

// Terminal is one PTY-backed program and the screen model of its
// output.
type Terminal struct {
	id       int
	process  Process
	screen   screen.Emulator
	dispatch *dispatcher
	logger   *slog.Logger

	// input queues bytes for the PTY so a program that stops reading
	// its input cannot stall the dispatch lock.
	input *outbox.Outbox[[]byte]

	attention bool
	exited    bool

	onDetach func()
	onOutput func(data []byte)
	onExit   func(err error)
}

func newTerminal(id int, params TerminalParams, spawn Spawner, dispatch *dispatcher, logger *slog.Logger) (*Terminal, error) {
	options := params.processOptions()
	if options.Executable == "" {
		return nil, ProcessFailure(errors.New("no shell or command configured"))
	}
	process, err := spawn(options)
	if err != nil {
		return nil, ProcessFailure(err)
	}
	return &Terminal{
		id:       id,
		process:  process,
		screen:   screen.New(params.Columns, params.Rows),
		dispatch: dispatch,
		logger:   logger.With("terminal", id),
		input:    outbox.New[[]byte](),
	}, nil
}

// start begins pumping PTY output and input. Callbacks must be set
// first.
func (t *Terminal) start() {
	go t.readLoop()
	go t.writeLoop()
}

// readLoop feeds PTY output to the screen and the owner in arrival
// order, then reports the exit.
func (t *Terminal) readLoop() {
	buffer := make([]byte, readBufferSize)
	var carry []byte
	for {
		n, err := t.process.Read(buffer)
		if n > 0 {
			data := append(carry, buffer[:n]...)
			split := completeUTF8(data)
			chunk := data[:split:split]
			carry = append([]byte(nil), data[split:]...)
			if len(chunk) > 0 {
				t.dispatch.do(func() { t.output(chunk) })
			}
		}
		if err != nil {
			if !netutil.IsExpectedCloseError(err) {
				t.logger.Debug("terminal read ended", "error", err)
			}
			break
		}
	}
	if len(carry) > 0 {
		t.dispatch.do(func() { t.output(carry) })
	}

	waitErr := t.process.Wait()
	t.dispatch.do(func() { t.exit(waitErr) })
}

// completeUTF8 returns the length of the longest prefix of data that
// does not end inside a multi-byte character.
func completeUTF8(data []byte) int {
	for back := 1; back < utf8.UTFMax && back <= len(data); back++ {
		start := len(data) - back
		if utf8.RuneStart(data[start]) {
			if utf8.FullRune(data[start:]) {
				return len(data)
			}
			return start
		}
	}
	return len(data)
}

func (t *Terminal) writeLoop() {
	for {
		select {
		case <-t.input.Ready():
			if !t.writeInput(t.input.Drain()) {
				return
			}
		case <-t.input.Done():
			t.writeInput(t.input.Drain())
			return
		}
	}
}

func (t *Terminal) writeInput(chunks [][]byte) bool {
	for _, chunk := range chunks {
		if _, err := t.process.Write(chunk); err != nil {
			if !netutil.IsExpectedCloseError(err) {
				t.logger.Warn("writing terminal input failed", "error", err)
			}
			t.input.Close()
			return false
		}
	}
	return true
}

func (t *Terminal) output(chunk []byte) {
	if t.exited {
		return
	}
	t.screen.Feed(chunk)
	if t.onOutput != nil {
		t.onOutput(chunk)
	}
}

func (t *Terminal) exit(err error) {
	if t.exited {
		return
	}
	t.exited = true
	t.input.Close()
	if ptyproc.IsNormalExit(err) {
		t.logger.Info("terminal exited")
	} else {
		t.logger.Info("terminal exited abnormally", "error", err)
	}
	if t.onExit != nil {
		t.onExit(err)
	}
}

// ID returns the terminal's registry-wide identifier.
func (t *Terminal) ID() int { return t.id }

// HandleInput routes client input to the program, interpreting the
// Ctrl-A prefix. Ctrl-A d (or D) flushes the bytes before it, calls
// the detach handler and drops the rest of data. Ctrl-A Ctrl-A sends
// one Ctrl-A. Ctrl-A followed by anything else sends nothing. The
// prefix state carries over between calls.
func (t *Terminal) HandleInput(data []byte) {
	t.dispatch.do(func() { t.handleInput(data) })
}

func (t *Terminal) handleInput(data []byte) {
	pass := make([]byte, 0, len(data))
	for _, b := range data {
		if !t.attention {
			if b == attentionByte {
				t.attention = true
				continue
			}
			pass = append(pass, b)
			continue
		}

		t.attention = false
		switch b {
		case 'd', 'D':
			t.send(pass)
			if t.onDetach != nil {
				t.onDetach()
			}
			return
		case attentionByte:
			pass = append(pass, attentionByte)
		}
	}
	t.send(pass)
}

func (t *Terminal) send(data []byte) {
	if len(data) == 0 || t.exited {
		return
	}
	t.input.Push(data)
}

// OnDetach registers the handler for Ctrl-A d, replacing any other.
func (t *Terminal) OnDetach(fn func()) {
	t.dispatch.do(func() { t.onDetach = fn })
}

// Resize changes the PTY and screen dimensions.
func (t *Terminal) Resize(columns, rows int) error {
	var err error
	t.dispatch.do(func() { err = t.resize(columns, rows) })
	return err
}

func (t *Terminal) resize(columns, rows int) error {
	if t.exited {
		return nil
	}
	if err := t.process.Resize(columns, rows); err != nil {
		return err
	}
	t.screen.Resize(columns, rows)
	return nil
}

// ScreenState renders the terminal's buffers.
func (t *Terminal) ScreenState() *ScreenState {
	var state *ScreenState
	t.dispatch.do(func() { state = t.screenState() })
	return state
}

func (t *Terminal) screenState() *ScreenState {
	return newScreenState(t.screen.Snapshot())
}

// DisplayState returns the active buffer's cursor and alternate screen
// flag.
func (t *Terminal) DisplayState() ansi.DisplayState {
	var state ansi.DisplayState
	t.dispatch.do(func() { state = t.screen.Display() })
	return state
}

func (t *Terminal) close() {
	t.input.Close()
	if err := t.process.Close(); err != nil {
		t.logger.Debug("closing terminal", "error", err)
	}
}
