// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the single CBOR configuration used for everything
// propscan persists as an opaque blob, currently the scan run
// summaries in the ledger. Encoding is deterministic, so the same
// summary always produces the same bytes.
package codec
