// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports how the termplex binary was built.
//
// Four variables are injected with -ldflags -X at build time:
//
//   - [GitCommit] -- short git SHA of the build
//   - [GitDirty] -- "true" if there were uncommitted changes
//   - [BuildTime] -- UTC timestamp of the build
//   - [Version] -- semantic version string, set for releases
//
// Development builds and tests see "unknown" and "0.1.0-dev".
package version
