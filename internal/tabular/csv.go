package tabular

import (
	"encoding/csv"
	"errors"
	"io"
)

func readCSV(r io.Reader) ([][]string, []int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = false

	var rows [][]string
	var lines []int
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				return nil, nil, &ParseError{Line: csvErr.Line, Reason: csvErr.Err.Error(), Err: err}
			}
			return nil, nil, &ParseError{Reason: err.Error(), Err: err}
		}
		line, _ := reader.FieldPos(0)
		rows = append(rows, record)
		lines = append(lines, line)
	}
	return rows, lines, nil
}

func writeCSV(w io.Writer, columns []string, rows []Record) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(columns); err != nil {
		return err
	}
	values := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			values[i] = row[col]
		}
		if err := writer.Write(values); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
