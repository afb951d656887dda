// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mux

import "sync"

// dispatcher serializes every state change in a registry.
type dispatcher struct {
	mu sync.Mutex
}

func (d *dispatcher) do(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn()
}
