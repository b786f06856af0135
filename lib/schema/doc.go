// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema describes the shape of parsed output records. A
// [Schema] is an ordered list of typed field names plus the name of
// the table the records are stored in. Parsers publish the schema they
// produce and the ledger receives it explicitly when it is opened, so
// the store never needs to know which parser produced its rows.
//
// [Record] is the unit that flows from a parser to the store: a map
// from field name to value. Fields absent from a record are stored as
// empty strings.
//
// This package depends on no other propscan packages.
package schema
