// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the termplex binary's exit path: reporting the
// error a command returned and choosing the exit code. It writes to
// stderr directly because it runs after the structured logger is gone
// or before one exists.
package process
