package tabular

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseCSV(t *testing.T) {
	input := "\ufeffProductID, Date ,Quantity\nP1,2024-01-05,10\nP2,2024-01-06,4\n\nP1,2024-01-07,3\n"

	table, err := Parse("demand.csv", "", strings.NewReader(input), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"ProductID", "Date", "Quantity"}, table.Columns)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, "P2", table.Rows[1]["ProductID"])
	assert.Equal(t, []string{"P1", "2024-01-07", "3"}, table.Values(table.Rows[2]))
	assert.Empty(t, table.Warnings)
}

func TestParseCSVSkipsMalformedRows(t *testing.T) {
	input := strings.Join([]string{
		"ProductID,Date,Quantity",
		"P1,2024-01-05,10",
		"P2,2024-01-06",
		"P3,not-a-date,5",
		",2024-01-08,1",
		"P4,2024-01-09,7",
	}, "\n")

	table, err := Parse("demand.csv", "", strings.NewReader(input), Options{
		DateColumns:     []string{"Date"},
		RequiredColumns: []string{"ProductID"},
	})
	require.NoError(t, err)

	require.Len(t, table.Rows, 2)
	assert.Equal(t, "P1", table.Rows[0]["ProductID"])
	assert.Equal(t, "P4", table.Rows[1]["ProductID"])

	require.Len(t, table.Warnings, 3)
	assert.Equal(t, 3, table.Warnings[0].Line)
	assert.Contains(t, table.Warnings[1].Reason, "unparsable date")
	assert.Contains(t, table.Warnings[2].Reason, "is empty")
}

func TestParseRejectsMissingHeader(t *testing.T) {
	_, err := Parse("empty.csv", "", strings.NewReader(""), Options{})

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Contains(t, parseErr.Reason, "missing header")
}

func TestParseRejectsShortHeader(t *testing.T) {
	_, err := Parse("sales.csv", "", strings.NewReader("Month\n2024-01\n"), Options{MinColumns: 2})

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, 1, parseErr.Line)
}

func TestParseRejectsDuplicateHeader(t *testing.T) {
	_, err := Parse("x.csv", "", strings.NewReader("A,A\n1,2\n"), Options{})

	var parseErr *ParseError
	assert.True(t, errors.As(err, &parseErr))
}

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		want        Format
		wantErr     bool
	}{
		{name: "sales.CSV", want: FormatCSV},
		{name: "sales.xlsx", want: FormatXLSX},
		{name: "upload", contentType: "text/csv; charset=utf-8", want: FormatCSV},
		{name: "upload", contentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", want: FormatXLSX},
		{name: "notes.txt", contentType: "text/plain", wantErr: true},
		{name: "", contentType: "", wantErr: true},
	}

	for _, tc := range cases {
		got, err := DetectFormat(tc.name, tc.contentType)
		if tc.wantErr {
			assert.ErrorIs(t, err, ErrUnsupportedFormat, tc.name)
			continue
		}
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, got, tc.name)
	}
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Month", "UnitsSold", "Note"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"2024-01", 100}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"2024-02", 80, "promo"}))
	require.NoError(t, f.SetSheetRow(sheet, "A4", &[]any{"2024-03", 90, "x", "extra"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	table, err := Parse("sales.xlsx", "", buf, Options{MinColumns: 2, DateColumns: []string{"Month"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"Month", "UnitsSold", "Note"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "100", table.Rows[0]["UnitsSold"])
	assert.Equal(t, "", table.Rows[0]["Note"])
	require.Len(t, table.Warnings, 1)
	assert.Equal(t, 4, table.Warnings[0].Line)
}

func TestParseXLSXRejectsGarbage(t *testing.T) {
	_, err := Parse("sales.xlsx", "", strings.NewReader("not a zip"), Options{})

	var parseErr *ParseError
	assert.True(t, errors.As(err, &parseErr))
}

func TestEncodeCSVRoundTrip(t *testing.T) {
	columns := []string{"ProductID", "Note"}
	rows := []Record{
		{"ProductID": "P1", "Note": "has, comma"},
		{"ProductID": "P2", "Note": `has "quotes"`},
	}

	data, err := EncodeCSV(columns, rows)
	require.NoError(t, err)

	table, err := Parse("x.csv", "", strings.NewReader(string(data)), Options{})
	require.NoError(t, err)
	assert.Equal(t, columns, table.Columns)
	assert.Equal(t, rows[0]["Note"], table.Rows[0]["Note"])
	assert.Equal(t, rows[1]["Note"], table.Rows[1]["Note"])
}

func TestParseDateColumnPositions(t *testing.T) {
	input := "Period,UnitsSold\n2024-01,100\nJanuary,50\n2024-02,bad\n"

	table, err := Parse("sales.csv", "", strings.NewReader(input), Options{MinColumns: 2, DateColumnPositions: []int{0}})
	require.NoError(t, err)

	require.Len(t, table.Rows, 2)
	assert.Equal(t, "bad", table.Rows[1]["UnitsSold"])
	require.Len(t, table.Warnings, 1)
	assert.Equal(t, 3, table.Warnings[0].Line)
}
