// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build metadata for the propscan binary.
//
// [GitCommit], [GitDirty], [BuildTime] and [Version] are injected at
// build time:
//
//	go build -ldflags "-X github.com/bureau-foundation/propscan/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// When they are not injected, [Current] falls back to the vcs.* build
// settings embedded by the go tool. [Info] and [Full] format the result
// for --version output; [Short] is the bare version number used in the
// downloader's User-Agent.
package version
