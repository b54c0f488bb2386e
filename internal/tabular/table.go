// Package tabular turns uploaded CSV and XLSX files into ordered, untyped rows.
package tabular

import (
	"errors"
	"fmt"
)

// Record maps column name to raw cell value.
type Record map[string]string

// Table is a parsed upload. Columns keep the header order, Rows keep input order.
type Table struct {
	Columns  []string
	Rows     []Record
	Warnings []Warning
}

// Warning describes a skipped row. Line is 1-based and counts the header.
type Warning struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// Options describes per-kind row checks.
type Options struct {
	// MinColumns is the smallest acceptable header width. Zero means 1.
	MinColumns int
	// DateColumns must hold a parseable date; rows that do not are skipped.
	DateColumns []string
	// DateColumnPositions are 0-based indexes treated like DateColumns, for
	// files whose header names vary.
	DateColumnPositions []int
	// RequiredColumns must be non-empty; rows that are not are skipped.
	RequiredColumns []string
}

var ErrUnsupportedFormat = errors.New("unsupported_format")

// ParseError rejects a whole file.
type ParseError struct {
	Line   int
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Reason)
	}
	return "parse error: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// Values returns the row's cells in column order.
func (t *Table) Values(r Record) []string {
	out := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		out[i] = r[col]
	}
	return out
}
