package tabular

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"1/2/06",
	time.RFC3339,
}

// DetectFormat picks a decoder from the file extension, falling back to the content type.
func DetectFormat(name, contentType string) (Format, error) {
	switch strings.ToLower(filepath.Ext(strings.TrimSpace(name))) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mediaType {
	case "text/csv", "application/csv", "application/vnd.ms-excel":
		return FormatCSV, nil
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// Parse decodes r according to its detected format and applies opts to every row.
func Parse(name, contentType string, r io.Reader, opts Options) (*Table, error) {
	format, err := DetectFormat(name, contentType)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	var lines []int
	switch format {
	case FormatXLSX:
		rows, lines, err = readXLSX(r)
	default:
		rows, lines, err = readCSV(r)
	}
	if err != nil {
		return nil, err
	}
	return build(rows, lines, format, opts)
}

func build(rows [][]string, lines []int, format Format, opts Options) (*Table, error) {
	if len(rows) == 0 {
		return nil, &ParseError{Reason: "missing header row"}
	}

	header, err := normalizeHeader(rows[0])
	if err != nil {
		return nil, &ParseError{Line: lines[0], Reason: err.Error()}
	}
	minColumns := opts.MinColumns
	if minColumns <= 0 {
		minColumns = 1
	}
	if len(header) < minColumns {
		return nil, &ParseError{
			Line:   lines[0],
			Reason: fmt.Sprintf("header has %d columns, need at least %d", len(header), minColumns),
		}
	}

	opts = resolvePositions(opts, header)
	table := &Table{Columns: header}
	for i := 1; i < len(rows); i++ {
		cells := rows[i]
		if isBlank(cells) {
			continue
		}

		// Spreadsheet readers drop trailing empty cells, so short XLSX rows are padded.
		if format == FormatXLSX && len(cells) < len(header) {
			padded := make([]string, len(header))
			copy(padded, cells)
			cells = padded
		}
		if len(cells) != len(header) {
			table.Warnings = append(table.Warnings, Warning{
				Line:   lines[i],
				Reason: fmt.Sprintf("expected %d columns, got %d", len(header), len(cells)),
			})
			continue
		}

		record := make(Record, len(header))
		for j, col := range header {
			record[col] = strings.TrimSpace(cells[j])
		}
		if reason, ok := checkRecord(record, opts); !ok {
			table.Warnings = append(table.Warnings, Warning{Line: lines[i], Reason: reason})
			continue
		}
		table.Rows = append(table.Rows, record)
	}
	return table, nil
}

func normalizeHeader(raw []string) ([]string, error) {
	header := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for i, cell := range raw {
		if i == 0 {
			cell = strings.TrimPrefix(cell, "\ufeff")
		}
		cell = strings.TrimSpace(cell)
		if !utf8.ValidString(cell) {
			return nil, fmt.Errorf("header column %d is not valid UTF-8", i+1)
		}
		if cell == "" {
			return nil, fmt.Errorf("header column %d is empty", i+1)
		}
		if _, dup := seen[cell]; dup {
			return nil, fmt.Errorf("duplicate header column %q", cell)
		}
		seen[cell] = struct{}{}
		header = append(header, cell)
	}
	return header, nil
}

func resolvePositions(opts Options, header []string) Options {
	if len(opts.DateColumnPositions) == 0 {
		return opts
	}
	dates := append([]string(nil), opts.DateColumns...)
	for _, pos := range opts.DateColumnPositions {
		if pos >= 0 && pos < len(header) {
			dates = append(dates, header[pos])
		}
	}
	opts.DateColumns = dates
	return opts
}

func checkRecord(record Record, opts Options) (string, bool) {
	for _, col := range opts.RequiredColumns {
		if value, ok := record[col]; ok && value == "" {
			return fmt.Sprintf("column %q is empty", col), false
		}
	}
	for _, col := range opts.DateColumns {
		value, ok := record[col]
		if !ok {
			continue
		}
		if _, err := ParseDate(value); err != nil {
			return fmt.Sprintf("column %q has unparsable date %q", col, value), false
		}
	}
	return "", true
}

// ParseDate accepts the date layouts uploads commonly use.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// EncodeCSV writes columns and rows back out as CSV.
func EncodeCSV(columns []string, rows []Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCSV(&buf, columns, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
