package tabular

import (
	"io"

	"github.com/xuri/excelize/v2"
)

// readXLSX reads the first worksheet. Line numbers are spreadsheet row numbers.
func readXLSX(r io.Reader) ([][]string, []int, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, &ParseError{Reason: "unreadable workbook", Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, &ParseError{Reason: "workbook has no sheets"}
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, &ParseError{Reason: "unreadable worksheet", Err: err}
	}

	// GetRows keeps empty rows in the middle, so index+1 is the sheet row number.
	// Leading empty rows are skipped to find the header.
	out := make([][]string, 0, len(rows))
	lines := make([]int, 0, len(rows))
	started := false
	for i, row := range rows {
		if !started && isBlank(row) {
			continue
		}
		started = true
		out = append(out, row)
		lines = append(lines, i+1)
	}
	return out, lines, nil
}
