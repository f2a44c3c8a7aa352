package dataset

import (
	"fmt"

	"github.com/gridport/gridport/internal/grid"
)

// Rows converts object records into body rows keyed by the leaf keys.
// A cell value may be a span object {value, colSpan, rowSpan}: spans
// above one produce a merge range offset by headerRows, a span of zero
// marks the position as covered by a neighbor and yields an empty cell.
func Rows(records []map[string]any, keys []string, headerRows int) ([][]string, []grid.MergeRange, error) {
	rows := make([][]string, 0, len(records))
	var merges []grid.MergeRange

	for i, rec := range records {
		cells := make([]string, len(keys))
		for j, key := range keys {
			v, ok := rec[key]
			if !ok {
				continue
			}
			obj, ok := v.(map[string]any)
			if !ok {
				cells[j] = grid.CoerceString(v)
				continue
			}
			inner, hasValue := obj["value"]
			if !hasValue {
				// Plain object without span markers stringifies as-is.
				cells[j] = grid.CoerceString(obj)
				continue
			}

			rowSpan, err := spanField(obj, "rowSpan")
			if err != nil {
				return nil, nil, err
			}
			colSpan, err := spanField(obj, "colSpan")
			if err != nil {
				return nil, nil, err
			}
			if rowSpan == 0 || colSpan == 0 {
				continue // covered by a neighboring cell's span
			}
			cells[j] = grid.CoerceString(inner)
			if rowSpan > 1 || colSpan > 1 {
				merges = append(merges, grid.MergeRange{
					FirstRow: headerRows + i,
					FirstCol: j,
					LastRow:  headerRows + i + rowSpan - 1,
					LastCol:  j + colSpan - 1,
				})
			}
		}
		rows = append(rows, cells)
	}

	return rows, merges, nil
}

func spanField(obj map[string]any, key string) (int, error) {
	v, ok := obj[key]
	if !ok {
		return 1, nil
	}
	f, ok := v.(float64)
	if !ok || f != float64(int(f)) || f < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer, got %v", grid.ErrInvalidInput, key, v)
	}
	return int(f), nil
}

// FromMatrix coerces a decoded 2D JSON array into string rows. Rows may
// be ragged; the encoders handle uneven widths.
func FromMatrix(records []any) ([][]string, error) {
	rows := make([][]string, 0, len(records))
	for i, rec := range records {
		arr, ok := rec.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: row %d is not an array", grid.ErrInvalidInput, i)
		}
		cells := make([]string, len(arr))
		for j, v := range arr {
			cells[j] = grid.CoerceString(v)
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// Objects asserts that every record is a JSON object.
func Objects(records []any) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(records))
	for i, rec := range records {
		obj, ok := rec.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: record %d is not an object", grid.ErrInvalidInput, i)
		}
		out = append(out, obj)
	}
	return out, nil
}
