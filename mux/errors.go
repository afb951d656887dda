// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mux

import (
	"errors"
	"fmt"
)

// Category classifies an Error by how a caller should react.
type Category string

const (
	// CategoryProtocol is a malformed or unexpected request.
	CategoryProtocol Category = "protocol"

	// CategoryConflict is a request colliding with existing state:
	// a duplicate session name or client path, or an attach refused
	// by exclusivity.
	CategoryConflict Category = "conflict"

	// CategoryNotFound is a reference to a session or client that
	// does not exist.
	CategoryNotFound Category = "not_found"

	// CategoryTransport is a socket or descriptor failure.
	CategoryTransport Category = "transport"

	// CategoryProcess is a failure to spawn a terminal's process.
	CategoryProcess Category = "process"
)

// Code identifies an error condition on the wire.
type Code string

const (
	CodeBadMessage              Code = "BAD_MESSAGE"
	CodeSessionNotFound         Code = "SESSION_NOT_FOUND"
	CodeBadConnectPath          Code = "BAD_CONNECT_PATH"
	CodeBadConnectFD            Code = "BAD_CONNECT_FD"
	CodeSessionAlreadyConnected Code = "SESSION_ALREADY_CONNECTED"
	CodeConnectFailed           Code = "CONNECT_FAILED"

	// Codes below never appear on the wire; WireCode maps them onto
	// the codes above.
	CodeSessionExists  Code = "SESSION_EXISTS"
	CodeClientExists   Code = "CLIENT_EXISTS"
	CodeClientNotFound Code = "CLIENT_NOT_FOUND"
	CodeSpawnFailed    Code = "SPAWN_FAILED"
)

// Error is a categorized multiplexer error.
type Error struct {
	Category Category
	Code     Code
	Err      error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

func newError(category Category, code Code, format string, args ...any) *Error {
	return &Error{Category: category, Code: code, Err: fmt.Errorf(format, args...)}
}

// Protocol returns a protocol error with code BAD_MESSAGE.
func Protocol(format string, args ...any) *Error {
	return newError(CategoryProtocol, CodeBadMessage, format, args...)
}

// Conflict returns a conflict error with the given code.
func Conflict(code Code, format string, args ...any) *Error {
	return newError(CategoryConflict, code, format, args...)
}

// NotFound returns a not-found error with the given code.
func NotFound(code Code, format string, args ...any) *Error {
	return newError(CategoryNotFound, code, format, args...)
}

// Transport returns a transport error with the given code.
func Transport(code Code, format string, args ...any) *Error {
	return newError(CategoryTransport, code, format, args...)
}

// ProcessFailure wraps a spawn failure.
func ProcessFailure(err error) *Error {
	return &Error{Category: CategoryProcess, Code: CodeSpawnFailed, Err: fmt.Errorf("spawning terminal: %w", err)}
}

// CodeOf returns the code of the first Error in err's chain, or
// CONNECT_FAILED if there is none.
func CodeOf(err error) Code {
	var muxErr *Error
	if errors.As(err, &muxErr) {
		return muxErr.Code
	}
	return CodeConnectFailed
}

// CategoryOf returns the category of the first Error in err's chain,
// or the empty category.
func CategoryOf(err error) Category {
	var muxErr *Error
	if errors.As(err, &muxErr) {
		return muxErr.Category
	}
	return ""
}

// WireCode maps err onto one of the codes the attach protocols send.
func WireCode(err error) Code {
	switch code := CodeOf(err); code {
	case CodeBadMessage, CodeSessionNotFound, CodeBadConnectPath,
		CodeBadConnectFD, CodeSessionAlreadyConnected:
		return code
	case CodeClientExists:
		return CodeBadConnectPath
	default:
		return CodeConnectFailed
	}
}
