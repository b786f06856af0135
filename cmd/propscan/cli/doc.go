// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the propscan
// binary: a tree of [Command] values dispatched by name, flags bound
// from tagged parameter structs over spf13/pflag, optional --json
// output, and a logger that writes text to terminals and JSON
// elsewhere.
//
// A command with both Run and Subcommands treats a first argument
// that names no subcommand as a positional argument to Run. The root
// command uses this so "propscan <dir>" scans.
package cli
