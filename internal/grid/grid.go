// Package grid holds the shared table model: rectangular rows of string
// cells plus merge ranges in output coordinates. Both the document walker
// and the dataset builders produce a Table; the encoders consume one.
package grid

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Processing limits, enforced before any allocation-heavy work.
const (
	// MaxNestingDepth bounds column-config and tree recursion.
	MaxNestingDepth = 64
	// MaxHeaderCells bounds total header cells (leaf columns * header depth).
	MaxHeaderCells = 100_000
	// MaxXLSXColumns is the spreadsheet column count ceiling (XFD).
	MaxXLSXColumns = 16_384
)

var (
	ErrTableNotFound = errors.New("table not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrLimitExceeded = errors.New("limit exceeded")
)

// MergeRange is an inclusive cell rectangle, 0-based, in output
// coordinates (after hidden rows and columns are excluded).
type MergeRange struct {
	FirstRow int `json:"first_row"`
	FirstCol int `json:"first_col"`
	LastRow  int `json:"last_row"`
	LastCol  int `json:"last_col"`
}

// Spans reports whether the range covers more than one cell. A 1x1
// rectangle is not a merge and is never recorded.
func (m MergeRange) Spans() bool {
	return m.LastRow > m.FirstRow || m.LastCol > m.FirstCol
}

func (m MergeRange) Validate() error {
	if m.FirstRow < 0 || m.FirstCol < 0 {
		return fmt.Errorf("%w: merge range has negative origin (%d,%d)", ErrInvalidInput, m.FirstRow, m.FirstCol)
	}
	if m.LastRow < m.FirstRow || m.LastCol < m.FirstCol {
		return fmt.Errorf("%w: merge range end (%d,%d) precedes start (%d,%d)", ErrInvalidInput, m.LastRow, m.LastCol, m.FirstRow, m.FirstCol)
	}
	if !m.Spans() {
		return fmt.Errorf("%w: merge range covers a single cell (%d,%d)", ErrInvalidInput, m.FirstRow, m.FirstCol)
	}
	return nil
}

// Table is the format-independent export payload. Rows include the header
// rows; HeaderRows says how many lead the body. Positions covered by a
// merge carry the owner cell's text, so rows are always rectangular from
// the encoders' point of view.
type Table struct {
	Rows       [][]string
	Merges     []MergeRange
	HeaderRows int
}

// Validate checks merge ranges against the row extent.
func (t *Table) Validate() error {
	for _, m := range t.Merges {
		if err := m.Validate(); err != nil {
			return err
		}
		if m.LastRow >= len(t.Rows) {
			return fmt.Errorf("%w: merge range row %d beyond table height %d", ErrInvalidInput, m.LastRow, len(t.Rows))
		}
	}
	return nil
}

// CoerceString renders an arbitrary decoded JSON value as cell text.
// Floats that hold integral values render without a decimal point, which
// is what encoding/json produces for every JSON number.
func CoerceString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			if math.Abs(x) < 1e15 {
				return strconv.FormatInt(int64(x), 10)
			}
			// Integral but past exact-int64 territory: keep full digits
			// rather than scientific notation.
			return strconv.FormatFloat(x, 'f', -1, 64)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return CoerceString(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case json.Number:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}
