// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"time"

	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/propscan/lib/fingerprint"
	"github.com/bureau-foundation/propscan/lib/schema"
)

// ScanRecord is the ledger entry for one distinct file content.
type ScanRecord struct {
	ID int64 `json:"id"`

	// FullPath is where the content was first seen. For extracted
	// files this is a path inside a scratch directory that no longer
	// exists; it is kept for provenance only.
	FullPath string `json:"full_path"`

	SizeBytes int64  `json:"size_bytes"`
	Checksum  uint32 `json:"checksum"`

	// Digest is the BLAKE3 digest when digests were recorded, nil
	// otherwise. It never participates in identity.
	Digest []byte `json:"digest,omitempty"`

	// Processed is true once extraction or parsing succeeded and the
	// transaction that set it committed.
	Processed bool `json:"processed"`

	// ExtractedFrom is the id of the archive record this content was
	// extracted from, nil for files found directly under the root.
	ExtractedFrom *int64 `json:"extracted_from_id,omitempty"`

	FirstSeen time.Time `json:"first_seen"`
}

// Fingerprint returns the record's content identity.
func (r *ScanRecord) Fingerprint() fingerprint.Fingerprint {
	return fingerprint.Fingerprint{Size: r.SizeBytes, Checksum: r.Checksum, Digest: r.Digest}
}

// Row is one output row attributed to the file it was parsed from.
type Row struct {
	SourceID int64
	Values   schema.Record
}

// recordColumns is the column list readRecord expects, in order.
const recordColumns = `id, full_path, size_bytes, checksum, digest, processed, extracted_from_id, first_seen`

func readRecord(stmt *sqlite.Stmt) *ScanRecord {
	record := &ScanRecord{
		ID:        stmt.ColumnInt64(0),
		FullPath:  stmt.ColumnText(1),
		SizeBytes: stmt.ColumnInt64(2),
		Checksum:  uint32(stmt.ColumnInt64(3)),
		Processed: stmt.ColumnInt64(5) != 0,
		FirstSeen: time.UnixMilli(stmt.ColumnInt64(7)).UTC(),
	}
	if length := stmt.ColumnLen(4); stmt.ColumnType(4) != sqlite.TypeNull && length > 0 {
		record.Digest = make([]byte, length)
		stmt.ColumnBytes(4, record.Digest)
	}
	if stmt.ColumnType(6) != sqlite.TypeNull {
		parent := stmt.ColumnInt64(6)
		record.ExtractedFrom = &parent
	}
	return record
}
