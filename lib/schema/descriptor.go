// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"errors"
	"fmt"
	"strings"
)

// FieldType is the storage type of a schema field.
type FieldType string

const (
	// FieldText stores the value verbatim as SQL TEXT. Parsers keep
	// every value as the string they read; typing happens downstream.
	FieldText FieldType = "TEXT"
)

// Field is one named, typed column of a schema.
type Field struct {
	Name string
	Type FieldType
}

// Schema is an ordered set of fields stored in Table.
type Schema struct {
	// Table is the name of the output table.
	Table string

	// Fields lists the columns in storage order.
	Fields []Field
}

// Record is one parsed output row keyed by field name.
type Record map[string]string

// Text returns a schema whose fields are all [FieldText].
func Text(table string, names ...string) Schema {
	fields := make([]Field, len(names))
	for i, name := range names {
		fields[i] = Field{Name: name, Type: FieldText}
	}
	return Schema{Table: table, Fields: fields}
}

// Names returns the field names in schema order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, field := range s.Fields {
		names[i] = field.Name
	}
	return names
}

// Has reports whether the schema declares a field called name.
func (s Schema) Has(name string) bool {
	for _, field := range s.Fields {
		if field.Name == name {
			return true
		}
	}
	return false
}

// Lookup returns the declared field name matching name without regard
// to case, and whether one was found.
func (s Schema) Lookup(name string) (string, bool) {
	for _, field := range s.Fields {
		if strings.EqualFold(field.Name, name) {
			return field.Name, true
		}
	}
	return "", false
}

// Values returns the values of record in schema order. Fields the
// record does not carry come back as empty strings.
func (s Schema) Values(record Record) []string {
	values := make([]string, len(s.Fields))
	for i, field := range s.Fields {
		values[i] = record[field.Name]
	}
	return values
}

// Validate checks that the table and every field name are usable as
// SQL identifiers, that names are unique (case-insensitively, as
// SQLite compares column names), and that every type is known.
func (s Schema) Validate() error {
	var errs []error

	if !IsIdentifier(s.Table) {
		errs = append(errs, fmt.Errorf("table name %q is not a valid identifier", s.Table))
	}
	if len(s.Fields) == 0 {
		errs = append(errs, fmt.Errorf("schema for %q declares no fields", s.Table))
	}

	seen := make(map[string]bool, len(s.Fields))
	for _, field := range s.Fields {
		if !IsIdentifier(field.Name) {
			errs = append(errs, fmt.Errorf("field name %q is not a valid identifier", field.Name))
			continue
		}
		if reserved[strings.ToLower(field.Name)] {
			errs = append(errs, fmt.Errorf("field name %q is reserved", field.Name))
		}
		key := strings.ToLower(field.Name)
		if seen[key] {
			errs = append(errs, fmt.Errorf("duplicate field name %q", field.Name))
		}
		seen[key] = true
		if field.Type != FieldText {
			errs = append(errs, fmt.Errorf("field %q has unsupported type %q", field.Name, field.Type))
		}
	}

	return errors.Join(errs...)
}

// reserved are the column names the store adds to every output table.
var reserved = map[string]bool{
	"id":             true,
	"source_file_id": true,
}

// IsIdentifier reports whether name is a plain ASCII identifier:
// a letter or underscore followed by letters, digits, or underscores.
func IsIdentifier(name string) bool {
	if name == "" || len(name) > 128 {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// QuoteIdentifier returns name quoted for use in SQL. Callers should
// only pass names that passed [IsIdentifier]; quoting is still applied
// so that identifiers colliding with SQL keywords remain valid.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
