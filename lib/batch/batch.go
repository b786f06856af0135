// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package batch accumulates output rows in memory and hands them to a
// transactional sink in bulk. Each flush is one bulk insert followed
// by one commit, so the number of commits during a scan is bounded by
// rows/threshold plus the forced flushes after each archive and at the
// end of the scan.
package batch

import (
	"errors"
	"fmt"
	"log/slog"
)

// DefaultThreshold is the buffered row count that triggers a flush.
const DefaultThreshold = 1_000_000

// Sink is the transactional destination of a buffer. InsertRows and
// Commit are called back to back by every flush.
type Sink[T any] interface {
	InsertRows(rows []T) error
	Commit() error
}

// Config holds buffer parameters.
type Config struct {
	// Threshold is the buffered row count at which Add flushes.
	// Defaults to DefaultThreshold.
	Threshold int

	// Logger receives a debug message per flush. If nil, a no-op
	// logger is used.
	Logger *slog.Logger
}

// Stats are cumulative counters for a buffer.
type Stats struct {
	RowsAdded     int64 `json:"rows_added"`
	RowsCommitted int64 `json:"rows_committed"`
	Commits       int64 `json:"commits"`
}

// Buffer is an in-memory row buffer in front of a [Sink]. A Buffer is
// not safe for concurrent use.
type Buffer[T any] struct {
	sink      Sink[T]
	threshold int
	logger    *slog.Logger

	pending []T
	stats   Stats
}

// New creates a buffer flushing into sink.
func New[T any](sink Sink[T], cfg Config) *Buffer[T] {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Buffer[T]{
		sink:      sink,
		threshold: threshold,
		logger:    logger,
	}
}

// Add appends rows to the buffer and flushes once the buffered count
// reaches the threshold. A flush error is returned; the rows stay
// buffered in that case.
func (b *Buffer[T]) Add(rows ...T) error {
	b.pending = append(b.pending, rows...)
	b.stats.RowsAdded += int64(len(rows))
	if len(b.pending) >= b.threshold {
		return b.Flush()
	}
	return nil
}

// Flush inserts every buffered row and commits. It is a no-op when
// nothing is buffered. On success the buffer is empty; on failure it
// is unchanged and the sink error is returned. The commit happens
// even when the flush was forced with a non-full buffer.
func (b *Buffer[T]) Flush() error {
	if len(b.pending) == 0 {
		return nil
	}
	if err := b.sink.InsertRows(b.pending); err != nil {
		return fmt.Errorf("batch: inserting %d rows: %w", len(b.pending), err)
	}
	if err := b.sink.Commit(); err != nil {
		return fmt.Errorf("batch: committing %d rows: %w", len(b.pending), err)
	}

	count := len(b.pending)
	clear(b.pending)
	b.pending = b.pending[:0]
	b.stats.RowsCommitted += int64(count)
	b.stats.Commits++

	b.logger.Debug("batch committed",
		"rows", count,
		"commits", b.stats.Commits,
		"rows_committed", b.stats.RowsCommitted,
	)
	return nil
}

// Len returns the number of buffered, uncommitted rows.
func (b *Buffer[T]) Len() int {
	return len(b.pending)
}

// Stats returns the cumulative counters.
func (b *Buffer[T]) Stats() Stats {
	return b.stats
}

// Scope creates a buffer, passes it to fn, and flushes it when fn
// returns, whether or not fn failed. Errors from fn and from the final
// flush are joined. The buffer's final counters are returned alongside.
func Scope[T any](sink Sink[T], cfg Config, fn func(*Buffer[T]) error) (Stats, error) {
	buffer := New(sink, cfg)
	err := fn(buffer)
	if flushErr := buffer.Flush(); flushErr != nil {
		err = errors.Join(err, flushErr)
	}
	return buffer.Stats(), err
}
