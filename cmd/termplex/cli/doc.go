// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the termplex
// binary.
//
// A [Command] has a name, a [pflag.FlagSet] factory, optional nested
// subcommands and a Run function. [Command.Execute] routes arguments
// down the tree, parses flags and prints help with examples. Unknown
// commands and flags get a "did you mean" suggestion when a known name
// is within edit distance 3.
//
// Commands report failures as a [ToolError], whose category tells the
// entry point how to present it, or an [ExitError] when they have
// already printed their own output.
package cli
