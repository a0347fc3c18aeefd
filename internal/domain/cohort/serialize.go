package cohort

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// Format is the output file type.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatExcel Format = "excel"
)

const (
	contentTypeCSV  = "text/csv"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ParseFormat accepts "csv" (the default when empty), "excel" and "xlsx".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "excel", "xlsx":
		return FormatExcel, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

func (f Format) Extension() string {
	if f == FormatExcel {
		return "xlsx"
	}
	return "csv"
}

func (f Format) ContentType() string {
	if f == FormatExcel {
		return contentTypeXLSX
	}
	return contentTypeCSV
}

// Filename encodes the effective mode and the export time.
func Filename(mode ExportMode, f Format, at time.Time) string {
	return fmt.Sprintf("raman_export_binary_%s_%s.%s", mode, at.Format("20060102_150405"), f.Extension())
}

// Render serializes rows against header. The header is written even when
// there are no rows.
func Render(f Format, header []string, rows [][]interface{}) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch f {
	case FormatCSV:
		err = writeCSV(&buf, header, rows)
	case FormatExcel:
		err = writeXLSX(&buf, header, rows)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCSV(w io.Writer, header []string, rows [][]interface{}) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = cellString(row[i])
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func cellString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case time.Time:
		return t.Format(dateLayout)
	}
	return fmt.Sprint(v)
}

const (
	sheetName      = "Patient Data"
	headerFill     = "3498db"
	minColumnWidth = 15
	maxColumnWidth = 60
)

func writeXLSX(w io.Writer, header []string, rows [][]interface{}) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close workbook: %w", ErrSpreadsheetWriter, cerr)
		}
	}()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("%w: create sheet: %w", ErrSpreadsheetWriter, err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("%w: drop default sheet: %w", ErrSpreadsheetWriter, err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{headerFill},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("%w: header style: %w", ErrSpreadsheetWriter, err)
	}

	for i, name := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSpreadsheetWriter, err)
		}
		if err := f.SetCellValue(sheetName, cell, name); err != nil {
			return fmt.Errorf("%w: header cell %s: %w", ErrSpreadsheetWriter, cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("%w: header style %s: %w", ErrSpreadsheetWriter, cell, err)
		}
	}

	for i, width := range columnWidths(header, rows) {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSpreadsheetWriter, err)
		}
		if err := f.SetColWidth(sheetName, col, col, width); err != nil {
			return fmt.Errorf("%w: column width: %w", ErrSpreadsheetWriter, err)
		}
	}

	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSpreadsheetWriter, err)
		}
		values := row
		if len(values) > len(header) {
			values = values[:len(header)]
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("%w: row %d: %w", ErrSpreadsheetWriter, r+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("%w: write workbook: %w", ErrSpreadsheetWriter, err)
	}
	return nil
}

// columnWidths sizes every column to its longest value, header included.
func columnWidths(header []string, rows [][]interface{}) []float64 {
	longest := make([]int, len(header))
	for i, name := range header {
		longest[i] = utf8.RuneCountInString(name)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(header); i++ {
			if n := utf8.RuneCountInString(cellString(row[i])); n > longest[i] {
				longest[i] = n
			}
		}
	}
	out := make([]float64, len(header))
	for i, n := range longest {
		out[i] = columnWidth(n)
	}
	return out
}

// columnWidth pads a character count and clamps it to the allowed range.
func columnWidth(chars int) float64 {
	w := float64(chars + 2)
	if w < minColumnWidth {
		return minColumnWidth
	}
	if w > maxColumnWidth {
		return maxColumnWidth
	}
	return w
}
