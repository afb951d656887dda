// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package mux is the terminal multiplexer core: sessions of PTY-backed
// terminals and the clients attached to them.
//
// A [Registry] owns every [Session] by name and every [Client] by
// path. A Session owns an ordered list of [Terminal]s, the first of
// which is active: its output is fanned out to the session's clients
// and their input is routed to it. When the active terminal exits the
// next one takes over and clients are repainted from its screen; when
// the last one exits the session's clients are disconnected and the
// session is dropped.
//
// All state changes run under one dispatch lock held by the Registry:
// PTY output, transport frames and client failures are applied one at
// a time, in the order they take the lock. Exported methods acquire
// the lock; callbacks registered on clients and terminals run with it
// held and must not call exported methods. Callbacks must not block;
// output destined for a slow peer is queued in an outbox.
//
// Attach policy is first-attacher-wins: an exclusive client refuses
// every later attach, and an exclusive attach is refused while anyone
// else is attached. There is no forced takeover.
package mux
