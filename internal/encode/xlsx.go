package encode

import (
	"fmt"
	"io"
	"strings"

	"github.com/gridport/gridport/internal/grid"
	"github.com/xuri/excelize/v2"
)

// AutoFreeze selects freeze panes from the table's header row count.
const AutoFreeze = -1

// Sheet pairs a worksheet name with its table.
type Sheet struct {
	Name  string
	Table *grid.Table
}

// XLSXOptions controls workbook encoding.
type XLSXOptions struct {
	// FreezeRows/FreezeCols split panes at the given counts. AutoFreeze
	// derives rows from each sheet's HeaderRows and freezes no columns.
	FreezeRows int
	FreezeCols int
	// Progress receives overall progress; nil disables reporting.
	Progress *Reporter
}

// XLSX builds a workbook from one table per sheet. Every cell is written
// as a string, which keeps formula-looking content inert without the CSV
// apostrophe escape.
func XLSX(sheets []Sheet, opts XLSXOptions) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: no sheets to export", grid.ErrInvalidInput)
	}

	f := excelize.NewFile()
	defer f.Close()

	names := make(map[string]bool)
	for i, sheet := range sheets {
		name := sheetName(sheet.Name, i, names)
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else {
			if _, err := f.NewSheet(name); err != nil {
				return nil, fmt.Errorf("add sheet %q: %w", name, err)
			}
		}
		if err := writeSheet(f, name, sheet.Table, opts, opts.Progress.Scaled(i, len(sheets))); err != nil {
			return nil, fmt.Errorf("sheet %q: %w", name, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	if err := opts.Progress.Report(100); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, name string, t *grid.Table, opts XLSXOptions, progress *Reporter) error {
	if err := t.Validate(); err != nil {
		return err
	}

	for r, row := range t.Rows {
		if len(row) > grid.MaxXLSXColumns {
			return fmt.Errorf("%w: row %d has %d cells, sheet limit is %d columns", grid.ErrLimitExceeded, r, len(row), grid.MaxXLSXColumns)
		}
		for c, text := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return fmt.Errorf("cell name (%d,%d): %w", r, c, err)
			}
			if err := f.SetCellStr(name, cell, text); err != nil {
				return fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
		if r%10 == 0 || r == len(t.Rows)-1 {
			if err := progress.Report(rowPct(r, len(t.Rows), 80)); err != nil {
				return err
			}
		}
	}

	for _, m := range t.Merges {
		if m.LastCol >= grid.MaxXLSXColumns {
			return fmt.Errorf("%w: merge range ends at column %d, sheet limit is %d", grid.ErrLimitExceeded, m.LastCol, grid.MaxXLSXColumns)
		}
		topLeft, err := excelize.CoordinatesToCellName(m.FirstCol+1, m.FirstRow+1)
		if err != nil {
			return fmt.Errorf("merge origin: %w", err)
		}
		bottomRight, err := excelize.CoordinatesToCellName(m.LastCol+1, m.LastRow+1)
		if err != nil {
			return fmt.Errorf("merge end: %w", err)
		}
		if err := f.MergeCell(name, topLeft, bottomRight); err != nil {
			return fmt.Errorf("merge %s:%s: %w", topLeft, bottomRight, err)
		}
		// Some viewers blank the anchor when merging; restore the
		// owner's text.
		if m.FirstRow < len(t.Rows) && m.FirstCol < len(t.Rows[m.FirstRow]) {
			if err := f.SetCellStr(name, topLeft, t.Rows[m.FirstRow][m.FirstCol]); err != nil {
				return fmt.Errorf("restore merge anchor %s: %w", topLeft, err)
			}
		}
	}
	if err := progress.Report(90); err != nil {
		return err
	}

	return freezePanes(f, name, t, opts)
}

func freezePanes(f *excelize.File, name string, t *grid.Table, opts XLSXOptions) error {
	panes := panesFor(t, opts)
	if panes == nil {
		return nil
	}
	if err := f.SetPanes(name, panes); err != nil {
		return fmt.Errorf("set panes: %w", err)
	}
	return nil
}

// panesFor resolves the freeze configuration for a sheet, nil when
// nothing freezes.
func panesFor(t *grid.Table, opts XLSXOptions) *excelize.Panes {
	rows, cols := opts.FreezeRows, opts.FreezeCols
	if rows == AutoFreeze {
		rows = t.HeaderRows
	}
	if cols == AutoFreeze {
		cols = 0
	}
	if rows < 0 {
		rows = 0
	}
	if cols < 0 {
		cols = 0
	}
	if rows == 0 && cols == 0 {
		return nil
	}
	topLeft, err := excelize.CoordinatesToCellName(cols+1, rows+1)
	if err != nil {
		return nil
	}
	return &excelize.Panes{
		Freeze:      true,
		XSplit:      cols,
		YSplit:      rows,
		TopLeftCell: topLeft,
		ActivePane:  "bottomRight",
	}
}

// XLSXStream writes a single sheet through the excelize stream writer,
// which keeps memory flat for very tall tables.
func XLSXStream(sheet Sheet, w io.Writer, opts XLSXOptions) error {
	t := sheet.Table
	if err := t.Validate(); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	name := sheetName(sheet.Name, 0, map[string]bool{})
	if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(name)
	if err != nil {
		return fmt.Errorf("stream writer: %w", err)
	}
	// The stream writer serializes the sheet as rows arrive, so panes
	// have to be declared before the first row.
	if panes := panesFor(t, opts); panes != nil {
		if err := sw.SetPanes(panes); err != nil {
			return fmt.Errorf("set panes: %w", err)
		}
	}

	rowBuf := []any{}
	for r, row := range t.Rows {
		if len(row) > grid.MaxXLSXColumns {
			return fmt.Errorf("%w: row %d has %d cells, sheet limit is %d columns", grid.ErrLimitExceeded, r, len(row), grid.MaxXLSXColumns)
		}
		rowBuf = rowBuf[:0]
		for _, text := range row {
			rowBuf = append(rowBuf, text)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return fmt.Errorf("row anchor %d: %w", r, err)
		}
		if err := sw.SetRow(cell, rowBuf); err != nil {
			return fmt.Errorf("stream row %d: %w", r, err)
		}
		if r%10 == 0 || r == len(t.Rows)-1 {
			if err := opts.Progress.Report(rowPct(r, len(t.Rows), 80)); err != nil {
				return err
			}
		}
	}

	for _, m := range t.Merges {
		topLeft, err := excelize.CoordinatesToCellName(m.FirstCol+1, m.FirstRow+1)
		if err != nil {
			return fmt.Errorf("merge origin: %w", err)
		}
		bottomRight, err := excelize.CoordinatesToCellName(m.LastCol+1, m.LastRow+1)
		if err != nil {
			return fmt.Errorf("merge end: %w", err)
		}
		if err := sw.MergeCell(topLeft, bottomRight); err != nil {
			return fmt.Errorf("merge %s:%s: %w", topLeft, bottomRight, err)
		}
	}
	if err := opts.Progress.Report(90); err != nil {
		return err
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush stream: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return opts.Progress.Report(100)
}

// sheetName sanitizes a sheet name to Excel's rules (31 chars, no
// []:*?/\) and deduplicates against names already taken.
func sheetName(name string, index int, taken map[string]bool) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', ':', '*', '?', '/', '\\':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if clean == "" {
		clean = fmt.Sprintf("Sheet%d", index+1)
	}
	if runes := []rune(clean); len(runes) > 31 {
		clean = string(runes[:31])
	}

	candidate := clean
	for n := 2; taken[candidate]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		base := []rune(clean)
		if len(base)+len(suffix) > 31 {
			base = base[:31-len(suffix)]
		}
		candidate = string(base) + suffix
	}
	taken[candidate] = true
	return candidate
}
