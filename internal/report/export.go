package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

var ErrUnknownFormat = errors.New("report: unknown export format")

// SheetName is the single worksheet of an XLSX export.
const SheetName = "Dashboard"

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts a format name case-insensitively. An empty string
// selects FormatCSV.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// FileName is dashboard-<mode>-<YYYY-MM-DD>.<ext>, dated in UTC.
func FileName(mode Mode, format Format, now time.Time) string {
	return fmt.Sprintf("dashboard-%s-%s.%s", mode, now.UTC().Format("2006-01-02"), format)
}

// Export writes the dashboard table in the given format.
func Export(w io.Writer, d *Dashboard, format Format) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, d)
	case FormatXLSX:
		return WriteXLSX(w, d)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// WriteCSV writes the header row and one row per date. Values have two
// decimal places; unavailable values are empty cells.
func WriteCSV(w io.Writer, d *Dashboard) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(d.Table.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range d.Table.Rows {
		record := make([]string, 0, len(row.Cells)+1)
		record = append(record, row.Date.String())
		for _, c := range row.Cells {
			if c.Value.Valid {
				record = append(record, c.Value.Decimal.StringFixed(2))
			} else {
				record = append(record, "")
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %s: %w", row.Date, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes the same table as WriteCSV into a one-sheet workbook with
// numeric cells.
func WriteXLSX(w io.Writer, d *Dashboard) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]interface{}, len(d.Table.Columns))
	for i, c := range d.Table.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range d.Table.Rows {
		values := make([]interface{}, 0, len(row.Cells)+1)
		values = append(values, row.Date.String())
		for _, c := range row.Cells {
			if c.Value.Valid {
				values = append(values, c.Value.Decimal.Round(2).InexactFloat64())
			} else {
				values = append(values, "")
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %s: %w", row.Date, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
