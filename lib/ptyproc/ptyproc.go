// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ptyproc runs a command attached to a new pseudo-terminal.
package ptyproc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

// DefaultTerm is set as TERM when the environment does not name one.
const DefaultTerm = "xterm-256color"

// Options configures Start.
type Options struct {
	// Executable is the program to run, resolved through PATH.
	Executable string

	// Args are the arguments after the program name.
	Args []string

	// Dir is the working directory. Empty means the caller's.
	Dir string

	// Env is the complete environment. Nil means the caller's
	// environment.
	Env []string

	// Rows and Columns are the initial window size.
	Rows    uint16
	Columns uint16
}

// Process is a running command with its PTY master.
type Process struct {
	command *exec.Cmd
	master  *os.File

	done    chan struct{}
	waitErr error

	closeOnce sync.Once
}

// Start launches the command on a new PTY sized to the options.
func Start(options Options) (*Process, error) {
	if options.Executable == "" {
		return nil, errors.New("ptyproc: executable is required")
	}

	command := exec.Command(options.Executable, options.Args...)
	command.Dir = options.Dir
	environment := options.Env
	if environment == nil {
		environment = os.Environ()
	}
	command.Env = withTerm(environment)

	master, err := pty.StartWithSize(command, &pty.Winsize{
		Rows: options.Rows,
		Cols: options.Columns,
	})
	if err != nil {
		return nil, fmt.Errorf("starting %s: %w", options.Executable, err)
	}

	process := &Process{
		command: command,
		master:  master,
		done:    make(chan struct{}),
	}
	go func() {
		process.waitErr = command.Wait()
		close(process.done)
	}()
	return process, nil
}

func withTerm(environment []string) []string {
	for _, entry := range environment {
		if strings.HasPrefix(entry, "TERM=") {
			return environment
		}
	}
	return append(append([]string(nil), environment...), "TERM="+DefaultTerm)
}

// Read reads output from the PTY. Once the command and every process
// holding the PTY slave have exited, Read returns io.EOF.
func (p *Process) Read(buffer []byte) (int, error) {
	n, err := p.master.Read(buffer)
	if err != nil && errors.Is(err, syscall.EIO) {
		// Linux reports a hung-up slave as EIO.
		return n, io.EOF
	}
	return n, err
}

// Write sends input to the command.
func (p *Process) Write(data []byte) (int, error) {
	return p.master.Write(data)
}

// Resize changes the PTY window size. The kernel delivers SIGWINCH to
// the foreground process group.
func (p *Process) Resize(columns, rows int) error {
	if columns <= 0 || rows <= 0 {
		return fmt.Errorf("invalid size %dx%d", columns, rows)
	}
	return pty.Setsize(p.master, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(columns),
	})
}

// Pid returns the command's process ID.
func (p *Process) Pid() int {
	return p.command.Process.Pid
}

// Done is closed when the command has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the command exits and returns its exit error.
func (p *Process) Wait() error {
	<-p.done
	return p.waitErr
}

// Close sends SIGHUP to a command that is still running and closes the
// PTY master. It does not wait for the command to exit.
func (p *Process) Close() error {
	var err error
	p.closeOnce.Do(func() {
		select {
		case <-p.done:
		default:
			p.command.Process.Signal(syscall.SIGHUP)
		}
		err = p.master.Close()
	})
	return err
}

// IsNormalExit reports whether err from Wait represents an expected
// end of the command: a zero exit status, or termination by the
// hangup or terminate signals sent when a session is torn down.
func IsNormalExit(err error) bool {
	if err == nil {
		return true
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	if exitErr.ExitCode() == 0 {
		return true
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if ok && status.Signaled() {
		switch status.Signal() {
		case syscall.SIGHUP, syscall.SIGTERM:
			return true
		}
	}
	return false
}
