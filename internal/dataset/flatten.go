package dataset

import (
	"fmt"
	"strings"

	"github.com/gridport/gridport/internal/grid"
)

// FlattenOptions controls tree flattening.
type FlattenOptions struct {
	// ChildrenKey names the child-array field. Defaults to "children".
	ChildrenKey string
	// IndentColumn is the record key whose value gets depth indentation.
	// Empty means no indentation.
	IndentColumn string
	// IndentWidth is the number of spaces per nesting level. Defaults
	// to 4.
	IndentWidth int
}

func (o FlattenOptions) withDefaults() FlattenOptions {
	if o.ChildrenKey == "" {
		o.ChildrenKey = "children"
	}
	if o.IndentWidth <= 0 {
		o.IndentWidth = 4
	}
	return o
}

// Flatten walks tree records pre-order into a flat list. Each node is
// emitted before its children, with the children field stripped and the
// indent column's value prefixed by depth-proportional spaces.
func Flatten(records []any, opts FlattenOptions) ([]map[string]any, error) {
	opts = opts.withDefaults()
	var out []map[string]any
	if err := flatten(records, opts, 0, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func flatten(records []any, opts FlattenOptions, depth int, out *[]map[string]any) error {
	if depth >= grid.MaxNestingDepth {
		return fmt.Errorf("%w: tree nesting deeper than %d", grid.ErrLimitExceeded, grid.MaxNestingDepth)
	}
	for i, rec := range records {
		node, ok := rec.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: tree node %d at depth %d is not an object", grid.ErrInvalidInput, i, depth)
		}

		flat := make(map[string]any, len(node))
		for k, v := range node {
			if k == opts.ChildrenKey {
				continue
			}
			flat[k] = v
		}
		if depth > 0 && opts.IndentColumn != "" {
			indent := strings.Repeat(" ", depth*opts.IndentWidth)
			flat[opts.IndentColumn] = indent + grid.CoerceString(node[opts.IndentColumn])
		}
		*out = append(*out, flat)

		children, ok := node[opts.ChildrenKey]
		if !ok || children == nil {
			continue
		}
		childArr, ok := children.([]any)
		if !ok {
			return fmt.Errorf("%w: field %q of node %d is not an array", grid.ErrInvalidInput, opts.ChildrenKey, i)
		}
		if err := flatten(childArr, opts, depth+1, out); err != nil {
			return err
		}
	}
	return nil
}
