package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

// ErrNoRecords is returned when an export is requested with an empty ledger.
// The export is reported and not attempted.
var ErrNoRecords = errors.New("no records to export")

const exportSheet = "Scans"

// Layout selects the two-column shape of the exported table. Both variants
// ship; which one a site wants is a configuration choice.
type Layout string

const (
	// LayoutSerialTimestamp produces Serial Number | Timestamp rows.
	LayoutSerialTimestamp Layout = "serial-timestamp"
	// LayoutCountSerial produces Count | Serial Number rows.
	LayoutCountSerial Layout = "count-serial"
)

// ParseLayout validates a layout name from configuration.
func ParseLayout(s string) (Layout, error) {
	switch Layout(s) {
	case LayoutSerialTimestamp, LayoutCountSerial:
		return Layout(s), nil
	default:
		return "", fmt.Errorf("unknown export layout %q (valid: %s, %s)",
			s, LayoutSerialTimestamp, LayoutCountSerial)
	}
}

// ExportFilename returns the artifact name for an export taken at t.
func ExportFilename(t time.Time) string {
	return fmt.Sprintf("scans-%s.xlsx", t.Format("2006-01-02"))
}

// BuildWorkbook renders a records snapshot into a two-column XLSX workbook:
// a header row followed by one row per record in insertion order. It is a
// pure function of the snapshot; no state is retained.
func BuildWorkbook(records []ScanRecord, layout Layout) (*excelize.File, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	rows := make([][]any, 0, len(records)+1)
	switch layout {
	case LayoutCountSerial:
		rows = append(rows, []any{"Count", "Serial Number"})
		for i, rec := range records {
			rows = append(rows, []any{i + 1, rec.Serial})
		}
	default:
		rows = append(rows, []any{"Serial Number", "Timestamp"})
		for _, rec := range records {
			rows = append(rows, []any{rec.Serial, rec.CapturedAt.Format(time.RFC3339)})
		}
	}

	for i, row := range rows {
		for j, value := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("computing cell name: %w", err)
			}
			if err := f.SetCellValue(exportSheet, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("writing cell %s: %w", cell, err)
			}
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetCellStyle(exportSheet, "A1", "B1", headerStyle)
	}
	_ = f.SetColWidth(exportSheet, "A", "B", 28)

	return f, nil
}
