// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package propertyfile turns leaf files into property sale records.
//
// A [Parser] recognizes files it understands and publishes the
// [schema.Schema] of the records it produces. Identification is
// content based: the parser looks at the head of the file, never at
// its name. [Default] returns a [Registry] that understands the NSW
// Valuer General bulk sales format ([DAT]) and header-keyed CSV
// ([CSV]), both producing [SalesSchema].
package propertyfile

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"

	"github.com/bureau-foundation/propscan/lib/schema"
)

// Parser recognizes leaf files of one format.
type Parser interface {
	// Identify returns a handle for path if the parser understands
	// it, or an error wrapping ErrUnrecognizedFormat if it does not.
	Identify(fsys afero.Fs, path string) (File, error)

	// Schema describes the records the parser produces.
	Schema() schema.Schema
}

// File is a recognized leaf file.
type File interface {
	// Parse reads the whole file. Malformed content is a
	// [*ParseError].
	Parse() error

	// Records returns the records read by Parse.
	Records() []schema.Record
}

// ErrUnrecognizedFormat is wrapped by every [*UnrecognizedFormatError].
var ErrUnrecognizedFormat = errors.New("unrecognized format")

// UnrecognizedFormatError reports a file no parser understands.
type UnrecognizedFormatError struct {
	Path   string
	Reason string
}

func (e *UnrecognizedFormatError) Error() string {
	return fmt.Sprintf("propertyfile: %s: %s: %s", e.Path, ErrUnrecognizedFormat, e.Reason)
}

func (e *UnrecognizedFormatError) Unwrap() error { return ErrUnrecognizedFormat }

// ParseError reports malformed content in a recognized file.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("propertyfile: %s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("propertyfile: %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Registry tries a list of parsers in order. The first parser whose
// Identify succeeds handles the file.
type Registry struct {
	schema  schema.Schema
	parsers []Parser
}

var _ Parser = (*Registry)(nil)

// NewRegistry returns a registry over parsers. Every parser must
// produce records for the same output table.
func NewRegistry(parsers ...Parser) (*Registry, error) {
	if len(parsers) == 0 {
		return nil, errors.New("propertyfile: registry needs at least one parser")
	}
	first := parsers[0].Schema()
	for _, parser := range parsers[1:] {
		if table := parser.Schema().Table; table != first.Table {
			return nil, fmt.Errorf("propertyfile: parsers disagree on output table: %q vs %q", first.Table, table)
		}
	}
	return &Registry{schema: first, parsers: parsers}, nil
}

// Default returns the registry of every built-in parser.
func Default() *Registry {
	registry, err := NewRegistry(DAT{}, CSV{})
	if err != nil {
		panic(err)
	}
	return registry
}

// Schema returns the schema of the first registered parser.
func (r *Registry) Schema() schema.Schema {
	return r.schema
}

// Identify returns the handle from the first parser that recognizes
// path. If none does, the returned error wraps ErrUnrecognizedFormat.
// Errors other than an unrecognized format, such as a read failure,
// stop the search and are returned as is.
func (r *Registry) Identify(fsys afero.Fs, path string) (File, error) {
	var reasons []error
	for _, parser := range r.parsers {
		file, err := parser.Identify(fsys, path)
		if err == nil {
			return file, nil
		}
		if !errors.Is(err, ErrUnrecognizedFormat) {
			return nil, err
		}
		reasons = append(reasons, err)
	}
	return nil, &UnrecognizedFormatError{Path: path, Reason: errors.Join(reasons...).Error()}
}
