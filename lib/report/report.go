// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package report writes ledger contents as CSV: the output rows in
// schema order, and the scan records still waiting to be processed.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/bureau-foundation/propscan/lib/ledger"
	"github.com/bureau-foundation/propscan/lib/schema"
)

// SourceColumn is the header of the optional provenance column.
const SourceColumn = "source_file_id"

// RowSource iterates stored output rows. [*ledger.Store] implements it.
type RowSource interface {
	ForEachRow(ctx context.Context, fn func(ledger.Row) error) error
}

// Options controls the row export.
type Options struct {
	// IncludeSource prepends the id of the scan record each row was
	// parsed from.
	IncludeSource bool
}

// WriteCSV writes a header of the schema's field names followed by one
// line per row from source, and returns the number of rows written.
// Values missing from a row are written as empty strings.
func WriteCSV(ctx context.Context, w io.Writer, s schema.Schema, source RowSource, options Options) (int64, error) {
	writer := csv.NewWriter(w)

	names := s.Names()
	header := names
	if options.IncludeSource {
		header = append([]string{SourceColumn}, names...)
	}
	if err := writer.Write(header); err != nil {
		return 0, fmt.Errorf("report: writing header: %w", err)
	}

	var count int64
	line := make([]string, len(header))
	err := source.ForEachRow(ctx, func(row ledger.Row) error {
		offset := 0
		if options.IncludeSource {
			line[0] = strconv.FormatInt(row.SourceID, 10)
			offset = 1
		}
		for i, name := range names {
			line[offset+i] = row.Values[name]
		}
		count++
		return writer.Write(line)
	})
	if err != nil {
		return count, fmt.Errorf("report: writing rows: %w", err)
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return count, fmt.Errorf("report: flushing: %w", err)
	}
	return count, nil
}

// pendingHeader is the header of [WritePending].
var pendingHeader = []string{"id", "path", "size_bytes", "checksum", "extracted_from_id", "first_seen"}

// WritePending writes scan records as CSV, one line per record.
func WritePending(w io.Writer, records []ledger.ScanRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(pendingHeader); err != nil {
		return fmt.Errorf("report: writing header: %w", err)
	}
	for _, record := range records {
		parent := ""
		if record.ExtractedFrom != nil {
			parent = strconv.FormatInt(*record.ExtractedFrom, 10)
		}
		err := writer.Write([]string{
			strconv.FormatInt(record.ID, 10),
			record.FullPath,
			strconv.FormatInt(record.SizeBytes, 10),
			fmt.Sprintf("%08x", record.Checksum),
			parent,
			record.FirstSeen.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
		if err != nil {
			return fmt.Errorf("report: writing record %d: %w", record.ID, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("report: flushing: %w", err)
	}
	return nil
}
