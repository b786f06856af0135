// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// FlagsFromParams returns a flag set bound to the tagged fields of
// params, which must be a pointer to a struct. It panics on an invalid
// struct, which is a programming error.
//
//	var params scanParams
//	command := &cli.Command{
//	    Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("scan", &params) },
//	    Run:   func(ctx context.Context, args []string) error { ... },
//	}
func FlagsFromParams(name string, params any) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	if err := BindFlags(params, flagSet); err != nil {
		panic(fmt.Sprintf("cli.FlagsFromParams(%q): %v", name, err))
	}
	return flagSet
}

// BindFlags registers a flag for every field of the struct params
// points to that carries a flag tag:
//
//   - flag:"name" or flag:"name,n" sets the long name and shorthand;
//   - desc:"..." is the help text;
//   - default:"..." is parsed according to the field type.
//
// Supported field types are string, bool, int, int64, float64 and
// time.Duration. Embedded structs are bound recursively.
func BindFlags(params any, flagSet *pflag.FlagSet) error {
	value := reflect.ValueOf(params)
	if value.Kind() != reflect.Pointer || value.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("params must be a pointer to a struct, got %T", params)
	}
	return bindStruct(value.Elem(), flagSet)
}

func bindStruct(structValue reflect.Value, flagSet *pflag.FlagSet) error {
	structType := structValue.Type()
	for i := range structType.NumField() {
		field := structType.Field(i)
		fieldValue := structValue.Field(i)

		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			if err := bindStruct(fieldValue, flagSet); err != nil {
				return fmt.Errorf("embedded %s: %w", field.Name, err)
			}
			continue
		}

		tag := field.Tag.Get("flag")
		if tag == "" {
			continue
		}
		if !field.IsExported() {
			return fmt.Errorf("field %s: flag fields must be exported", field.Name)
		}
		name, shorthand, _ := strings.Cut(tag, ",")
		if err := bindField(fieldValue.Addr().Interface(), flagSet, name, shorthand,
			field.Tag.Get("desc"), field.Tag.Get("default")); err != nil {
			return fmt.Errorf("field %s: %w", field.Name, err)
		}
	}
	return nil
}

func bindField(pointer any, flagSet *pflag.FlagSet, name, shorthand, description, defaultString string) error {
	var err error
	switch target := pointer.(type) {
	case *string:
		flagSet.StringVarP(target, name, shorthand, defaultString, description)
	case *bool:
		var value bool
		if value, err = parseDefault(defaultString, strconv.ParseBool); err == nil {
			flagSet.BoolVarP(target, name, shorthand, value, description)
		}
	case *int:
		var value int
		if value, err = parseDefault(defaultString, strconv.Atoi); err == nil {
			flagSet.IntVarP(target, name, shorthand, value, description)
		}
	case *int64:
		var value int64
		if value, err = parseDefault(defaultString, parseInt64); err == nil {
			flagSet.Int64VarP(target, name, shorthand, value, description)
		}
	case *float64:
		var value float64
		if value, err = parseDefault(defaultString, parseFloat64); err == nil {
			flagSet.Float64VarP(target, name, shorthand, value, description)
		}
	case *time.Duration:
		var value time.Duration
		if value, err = parseDefault(defaultString, time.ParseDuration); err == nil {
			flagSet.DurationVarP(target, name, shorthand, value, description)
		}
	default:
		return fmt.Errorf("unsupported type %T for flag --%s", pointer, name)
	}
	if err != nil {
		return fmt.Errorf("default for --%s: %w", name, err)
	}
	return nil
}

// parseDefault returns the zero value for an empty default.
func parseDefault[T any](s string, parse func(string) (T, error)) (T, error) {
	if s == "" {
		var zero T
		return zero, nil
	}
	return parse(s)
}

func parseInt64(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }

func parseFloat64(s string) (float64, error) { return strconv.ParseFloat(s, 64) }
