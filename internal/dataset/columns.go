// Package dataset turns decoded JSON records into the grid model:
// column configurations expand into multi-row headers with merges,
// object arrays and matrices become body rows, and trees flatten into
// indented record lists.
package dataset

import (
	"encoding/json"
	"fmt"

	"github.com/gridport/gridport/internal/grid"
)

// Column describes one output column. A column with children is a group
// header spanning its leaf descendants; only leaves carry a record key.
type Column struct {
	Title    string   `json:"title"`
	Key      string   `json:"key"`
	Children []Column `json:"children,omitempty"`
}

// ParseColumns decodes and validates a column configuration.
func ParseColumns(raw []byte) ([]Column, error) {
	var cols []Column
	if err := json.Unmarshal(raw, &cols); err != nil {
		return nil, fmt.Errorf("%w: decode columns: %v", grid.ErrInvalidInput, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: columns array is empty", grid.ErrInvalidInput)
	}
	if err := validateColumns(cols, 1); err != nil {
		return nil, err
	}
	return cols, nil
}

// validateColumns checks depth and leaf keys. The depth guard runs
// before descending so a hostile config cannot recurse unboundedly.
func validateColumns(cols []Column, depth int) error {
	if depth > grid.MaxNestingDepth {
		return fmt.Errorf("%w: column nesting deeper than %d", grid.ErrLimitExceeded, grid.MaxNestingDepth)
	}
	for _, c := range cols {
		if len(c.Children) > 0 {
			if err := validateColumns(c.Children, depth+1); err != nil {
				return err
			}
			continue
		}
		if c.Key == "" {
			return fmt.Errorf("%w: leaf column %q has no key", grid.ErrInvalidInput, c.Title)
		}
	}
	return nil
}

// Depth returns the deepest nesting level, which is also the header row
// count.
func Depth(cols []Column) int {
	max := 1
	for _, c := range cols {
		if len(c.Children) == 0 {
			continue
		}
		if d := Depth(c.Children) + 1; d > max {
			max = d
		}
	}
	return max
}

// LeafCount returns the number of leaf columns under c (1 for a leaf).
func LeafCount(c Column) int {
	if len(c.Children) == 0 {
		return 1
	}
	n := 0
	for _, child := range c.Children {
		n += LeafCount(child)
	}
	return n
}

// LeafKeys collects the record keys of all leaves in column order.
func LeafKeys(cols []Column) []string {
	var keys []string
	for _, c := range cols {
		if len(c.Children) == 0 {
			keys = append(keys, c.Key)
			continue
		}
		keys = append(keys, LeafKeys(c.Children)...)
	}
	return keys
}

// BuildHeader expands a column configuration into header rows plus merge
// ranges. A leaf placed above the bottom row merges downward; a group
// merges across its leaf span. Covered positions hold empty strings.
func BuildHeader(cols []Column) ([][]string, []grid.MergeRange, error) {
	depth := Depth(cols)
	width := 0
	for _, c := range cols {
		width += LeafCount(c)
	}
	if width*depth > grid.MaxHeaderCells {
		return nil, nil, fmt.Errorf("%w: header needs %d cells, limit is %d", grid.ErrLimitExceeded, width*depth, grid.MaxHeaderCells)
	}

	rows := make([][]string, depth)
	for i := range rows {
		rows[i] = make([]string, width)
	}
	var merges []grid.MergeRange

	var fill func(cols []Column, row, startCol int)
	fill = func(cols []Column, row, startCol int) {
		col := startCol
		for _, c := range cols {
			span := LeafCount(c)
			rows[row][col] = c.Title
			if len(c.Children) == 0 {
				if depth-1 > row {
					merges = append(merges, grid.MergeRange{
						FirstRow: row, FirstCol: col,
						LastRow: depth - 1, LastCol: col,
					})
				}
			} else {
				if span > 1 {
					merges = append(merges, grid.MergeRange{
						FirstRow: row, FirstCol: col,
						LastRow: row, LastCol: col + span - 1,
					})
				}
				fill(c.Children, row+1, col)
			}
			col += span
		}
	}
	fill(cols, 0, 0)

	return rows, merges, nil
}
