// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [SocketDir] returns a short directory under /tmp for Unix domain
// sockets, whose paths are limited to 108 bytes. [RequireReceive],
// [RequireClosed] and [Eventually] bound every wait in a test with a
// wall-clock timeout so a regression fails instead of hanging. They are the only real timeouts in the test suite.
//
// All helpers call t.Fatalf on failure.
package testutil
