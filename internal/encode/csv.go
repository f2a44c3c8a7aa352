package encode

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/gridport/gridport/internal/grid"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVOptions controls CSV encoding.
type CSVOptions struct {
	// BOM prepends a UTF-8 byte order mark so Excel detects the
	// encoding.
	BOM bool
	// Progress receives row progress; nil disables reporting.
	Progress *Reporter
}

// CSV serializes a table. Merge ranges have no CSV representation; the
// covered positions already carry their placeholder text.
func CSV(t *grid.Table, opts CSVOptions) ([]byte, error) {
	var buf bytes.Buffer
	if opts.BOM {
		buf.Write(utf8BOM)
	}

	w := csv.NewWriter(&buf)
	record := []string{}
	for i, row := range t.Rows {
		record = record[:0]
		for _, cell := range row {
			record = append(record, EscapeFormula(cell))
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row %d: %w", i, err)
		}
		if i%10 == 0 || i == len(t.Rows)-1 {
			if err := opts.Progress.Report(rowPct(i, len(t.Rows), 90)); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	if err := opts.Progress.Report(100); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EscapeFormula neutralizes spreadsheet formula injection by prefixing
// an apostrophe when the cell starts with a formula trigger. A cell
// already starting with an apostrophe is inert and passes through.
func EscapeFormula(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@':
		return "'" + s
	}
	return s
}

// rowPct maps row i of n onto [0,ceiling].
func rowPct(i, n, ceiling int) int {
	if n == 0 {
		return ceiling
	}
	return (i + 1) * ceiling / n
}
