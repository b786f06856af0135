// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads propscan configuration.
//
// Configuration comes from a single file named by the PROPSCAN_CONFIG
// environment variable (via [Load]) or by a --config flag (via
// [LoadFile]). Without either, [Default] applies. There is no
// discovery of files in well-known locations.
//
// The format follows the file extension: YAML (.yaml, .yml), TOML
// (.toml), or JSON with comments and trailing commas (.json, .jsonc).
// Unknown keys are errors in every format.
//
// Path fields are expanded after loading: ${HOME}, ${VAR}, and
// ${VAR:-default} patterns are replaced. Command-line flags override
// file values only when they are set explicitly.
//
// [Config.Validate] reports every problem at once.
package config
