// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package propertyfile

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/spf13/afero"

	"github.com/bureau-foundation/propscan/lib/schema"
)

// CSV parses comma-separated files whose header row names sale fields.
// Header names match schema fields ignoring case, spaces, underscores,
// and hyphens, so "Purchase Price" and "purchase_price" both map to
// PurchasePrice. Unknown columns are ignored; a header with no known
// column is not a sales CSV.
type CSV struct {
	// Target is the schema columns map onto. Zero means SalesSchema.
	Target schema.Schema
}

var _ Parser = CSV{}

// Schema returns the target schema.
func (c CSV) Schema() schema.Schema {
	if c.Target.Table == "" {
		return SalesSchema()
	}
	return c.Target
}

// Identify reads the header row and maps it onto the schema.
func (c CSV) Identify(fsys afero.Fs, path string) (File, error) {
	file, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := newCSVReader(io.LimitReader(file, maxLineLength))
	header, err := reader.Read()
	if err != nil {
		return nil, &UnrecognizedFormatError{Path: path, Reason: "no CSV header row"}
	}

	columns, known := mapColumns(c.Schema(), header)
	if known == 0 {
		return nil, &UnrecognizedFormatError{Path: path, Reason: "CSV header names no known field"}
	}
	return &csvFile{fsys: fsys, path: path, columns: columns}, nil
}

// mapColumns returns, per header position, the schema field it maps to
// ("" for unknown columns) and the number of known columns.
func mapColumns(target schema.Schema, header []string) ([]string, int) {
	byKey := make(map[string]string, len(target.Fields))
	for _, field := range target.Fields {
		byKey[columnKey(field.Name)] = field.Name
	}

	columns := make([]string, len(header))
	known := 0
	seen := make(map[string]bool)
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		if !utf8.ValidString(name) {
			return nil, 0
		}
		field, ok := byKey[columnKey(name)]
		if !ok || seen[field] {
			continue
		}
		seen[field] = true
		columns[i] = field
		known++
	}
	return columns, known
}

func columnKey(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == ' ', r == '_', r == '-':
			return -1
		default:
			return unicode.ToLower(r)
		}
	}, strings.TrimSpace(name))
}

func newCSVReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true
	return reader
}

type csvFile struct {
	fsys    afero.Fs
	path    string
	columns []string
	records []schema.Record
}

func (f *csvFile) Records() []schema.Record { return f.records }

func (f *csvFile) Parse() error {
	file, err := f.fsys.Open(f.path)
	if err != nil {
		return &ParseError{Path: f.path, Err: err}
	}
	defer file.Close()

	reader := newCSVReader(file)
	if _, err := reader.Read(); err != nil {
		return &ParseError{Path: f.path, Line: 1, Err: err}
	}

	var records []schema.Record
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			parseErr := &ParseError{Path: f.path, Err: err}
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				parseErr.Line = csvErr.Line
			}
			return parseErr
		}
		record := make(schema.Record, len(f.columns))
		for i, value := range row {
			if i < len(f.columns) && f.columns[i] != "" {
				record[f.columns[i]] = strings.TrimSpace(value)
			}
		}
		records = append(records, record)
	}

	f.records = records
	return nil
}
