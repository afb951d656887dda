// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the termplex server and attach configuration.
//
// Configuration comes from a single file named by the --config flag
// (via [LoadFile]) or the TERMPLEX_CONFIG environment variable (via
// [Load]). With neither, [Load] returns [Default]. There is no
// discovery of files in well-known locations.
//
// Files are YAML. A file ending in .json or .jsonc is JSON with
// comments and trailing commas allowed; it is normalized with jsonc
// before decoding.
//
// After loading, ${VAR} and ${VAR:-default} patterns are expanded in
// the listen address, paths and shell. No environment variable
// overrides a value directly.
//
// This package depends on no other termplex packages.
package config
