// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package muxtest provides fake terminal processes for tests of the
// multiplexer and its transports.
package muxtest

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/bureau-foundation/termplex/lib/ptyproc"
	"github.com/bureau-foundation/termplex/mux"
)

// Size is a recorded resize.
type Size struct {
	Columns int
	Rows    int
}

// Process is a fake PTY program. Output is supplied with Emit; input
// the multiplexer writes is recorded.
type Process struct {
	// Options are the spawn options the process was started with.
	Options ptyproc.Options

	output *io.PipeReader
	emit   *io.PipeWriter

	mu    sync.Mutex
	input bytes.Buffer
	sizes []Size

	// inputs receives a signal after every write.
	inputs chan struct{}

	exitOnce sync.Once
	exitErr  error
	exited   chan struct{}
	closed   bool
}

func newProcess(options ptyproc.Options) *Process {
	reader, writer := io.Pipe()
	return &Process{
		Options: options,
		output:  reader,
		emit:    writer,
		inputs:  make(chan struct{}, 1),
		exited:  make(chan struct{}),
	}
}

// Emit writes text as program output. It blocks until the
// multiplexer has read it.
func (p *Process) Emit(text string) error {
	_, err := p.emit.Write([]byte(text))
	return err
}

// Exit makes the program exit with err.
func (p *Process) Exit(err error) {
	p.exitOnce.Do(func() {
		p.exitErr = err
		p.emit.Close()
		close(p.exited)
	})
}

// Exited is closed once the program has exited.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// Input returns everything written to the program so far.
func (p *Process) Input() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.input.String()
}

// Inputs receives after each write to the program.
func (p *Process) Inputs() <-chan struct{} { return p.inputs }

// Sizes returns the recorded resizes.
func (p *Process) Sizes() []Size {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Size(nil), p.sizes...)
}

func (p *Process) Read(buffer []byte) (int, error) {
	return p.output.Read(buffer)
}

func (p *Process) Write(data []byte) (int, error) {
	select {
	case <-p.exited:
		return 0, io.ErrClosedPipe
	default:
	}
	p.mu.Lock()
	p.input.Write(data)
	p.mu.Unlock()
	select {
	case p.inputs <- struct{}{}:
	default:
	}
	return len(data), nil
}

func (p *Process) Resize(columns, rows int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sizes = append(p.sizes, Size{Columns: columns, Rows: rows})
	return nil
}

func (p *Process) Wait() error {
	<-p.exited
	return p.exitErr
}

// Close behaves like a hangup the program obeys.
func (p *Process) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.Exit(nil)
	return nil
}

// Closed reports whether the multiplexer has closed the process.
func (p *Process) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Spawner hands out fake processes and remembers them.
type Spawner struct {
	mu        sync.Mutex
	processes []*Process

	// Fail, when set, makes every spawn fail with it.
	Fail error
}

// Spawn is a mux.Spawner.
func (s *Spawner) Spawn(options ptyproc.Options) (mux.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	if options.Executable == "" {
		return nil, errors.New("muxtest: no executable")
	}
	process := newProcess(options)
	s.processes = append(s.processes, process)
	return process, nil
}

// Processes returns every process spawned so far.
func (s *Spawner) Processes() []*Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Process(nil), s.processes...)
}

// Last returns the most recently spawned process, or nil.
func (s *Spawner) Last() *Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.processes) == 0 {
		return nil
	}
	return s.processes[len(s.processes)-1]
}
