// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
)

func TestIsExpectedCloseError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"eof", io.EOF, true},
		{"wrapped eof", fmt.Errorf("reading: %w", io.EOF), true},
		{"closed connection", net.ErrClosed, true},
		{"closed file", &os.PathError{Op: "write", Path: "/dev/ptmx", Err: os.ErrClosed}, true},
		{"closed pipe", io.ErrClosedPipe, true},
		{"broken pipe", &net.OpError{Op: "write", Err: syscall.EPIPE}, true},
		{"reset", syscall.ECONNRESET, true},
		{"pty hangup", &os.PathError{Op: "read", Path: "/dev/ptmx", Err: syscall.EIO}, true},
		{"permission", syscall.EACCES, false},
		{"other", errors.New("boom"), false},
	}
	for _, test := range tests {
		if got := IsExpectedCloseError(test.err); got != test.want {
			t.Errorf("%s: got %v, want %v", test.name, got, test.want)
		}
	}
}
