// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package propertyfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/bureau-foundation/propscan/lib/schema"
)

// maxLineLength bounds a single DAT or CSV line.
const maxLineLength = 1 << 20

// DAT parses NSW Valuer General bulk property sales files.
//
// Each line is a ';'-separated record whose first field is the record
// type: A opens the file, B is a sale, C carries a line of legal
// description for the preceding sale, D describes a party to the sale
// and is ignored, and Z closes the file with record counts. A file
// without its Z trailer, or whose trailer disagrees with the number of
// B records, is rejected as truncated.
type DAT struct{}

var _ Parser = DAT{}

// Schema returns [SalesSchema].
func (DAT) Schema() schema.Schema { return SalesSchema() }

// Identify accepts files whose first non-blank line is an A record.
func (DAT) Identify(fsys afero.Fs, path string) (File, error) {
	file, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(io.LimitReader(file, 64*1024))
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "A;") {
			return &datFile{fsys: fsys, path: path}, nil
		}
		break
	}
	return nil, &UnrecognizedFormatError{Path: path, Reason: "no DAT header record"}
}

type datFile struct {
	fsys    afero.Fs
	path    string
	records []schema.Record
}

func (f *datFile) Records() []schema.Record { return f.records }

func (f *datFile) Parse() error {
	file, err := f.fsys.Open(f.path)
	if err != nil {
		return &ParseError{Path: f.path, Err: err}
	}
	defer file.Close()

	var (
		records []schema.Record
		trailer bool
		number  int
	)
	// bySale finds the sale a C record belongs to when it does not
	// directly follow its B record.
	bySale := make(map[string]schema.Record)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	for scanner.Scan() {
		number++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if trailer {
			return &ParseError{Path: f.path, Line: number, Err: errors.New("content after Z trailer")}
		}

		fields := strings.Split(line, ";")
		switch strings.TrimSpace(fields[0]) {
		case "A", "D":
		case "B":
			if len(fields) < len(saleFields)+1 {
				return &ParseError{Path: f.path, Line: number,
					Err: fmt.Errorf("sale record has %d fields, want %d", len(fields)-1, len(saleFields))}
			}
			record := make(schema.Record, len(saleFields)+1)
			for i, name := range saleFields {
				record[name] = strings.TrimSpace(fields[i+1])
			}
			record[FieldLegalDescription] = ""
			records = append(records, record)
			bySale[saleKey(fields[1], fields[2], fields[3])] = record

		case "C":
			if len(fields) < 6 {
				return &ParseError{Path: f.path, Line: number,
					Err: fmt.Errorf("legal description record has %d fields, want at least 5", len(fields)-1)}
			}
			record, ok := bySale[saleKey(fields[1], fields[2], fields[3])]
			if !ok {
				return &ParseError{Path: f.path, Line: number,
					Err: errors.New("legal description for an unknown sale")}
			}
			text := strings.TrimSpace(strings.TrimSuffix(strings.Join(fields[5:], ";"), ";"))
			if text == "" {
				continue
			}
			if existing := record[FieldLegalDescription]; existing != "" {
				text = existing + " " + text
			}
			record[FieldLegalDescription] = text

		case "Z":
			if len(fields) >= 3 {
				declared, err := strconv.Atoi(strings.TrimSpace(fields[2]))
				if err != nil {
					return &ParseError{Path: f.path, Line: number,
						Err: fmt.Errorf("trailer sale count %q: %w", fields[2], err)}
				}
				if declared != len(records) {
					return &ParseError{Path: f.path, Line: number,
						Err: fmt.Errorf("trailer declares %d sale records, file has %d", declared, len(records))}
				}
			}
			trailer = true

		default:
			return &ParseError{Path: f.path, Line: number,
				Err: fmt.Errorf("unknown record type %q", fields[0])}
		}
	}
	if err := scanner.Err(); err != nil {
		return &ParseError{Path: f.path, Line: number, Err: err}
	}
	if !trailer {
		return &ParseError{Path: f.path, Err: errors.New("missing Z trailer; file is truncated")}
	}

	f.records = records
	return nil
}

func saleKey(district, property, counter string) string {
	return strings.TrimSpace(district) + "\x00" + strings.TrimSpace(property) + "\x00" + strings.TrimSpace(counter)
}
