package htmltable

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/gridport/gridport/internal/grid"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// WalkOptions controls table traversal.
type WalkOptions struct {
	// ExcludeHidden skips hidden rows and hidden cells.
	ExcludeHidden bool
	// KeepMerges records merge ranges for row/col spans. Without it the
	// walker still materializes span placeholders, it just doesn't
	// report ranges (the CSV path).
	KeepMerges bool
	// ExternalBody appends rows found under this node after the table's
	// own body rows. It must not be a descendant of the table.
	ExternalBody *html.Node
	// MaxColumns caps the output column index. Zero means unlimited.
	MaxColumns int
}

type sourceRow struct {
	node   *html.Node
	header bool
	footer bool
	hidden bool
}

// Walk converts a <table> element into a grid.Table.
//
// Span handling follows source coordinates: a rowspan on row r seeds
// placeholders for source rows r+1..r+span-1 even when some of those
// rows are hidden, so hiding a row never shifts the fill positions of
// its neighbors. Merge ranges are emitted in output coordinates, with
// the vertical extent shrunk to the visible rows it actually covers.
func Walk(table *html.Node, opts WalkOptions) (*grid.Table, error) {
	if table == nil || table.DataAtom != atom.Table {
		return nil, fmt.Errorf("%w: not a table element", grid.ErrInvalidInput)
	}
	if opts.ExternalBody != nil && isDescendant(opts.ExternalBody, table) {
		return nil, fmt.Errorf("%w: external body must not live inside the table", grid.ErrInvalidInput)
	}

	rows := collectRows(table, opts)

	var (
		out        [][]string
		merges     []grid.MergeRange
		headerRows int
		// fills maps source row -> column -> placeholder text seeded by
		// rowspans from earlier rows.
		fills = make(map[int]map[int]string)
	)

	seed := func(srcRow, col int, text string) {
		row, ok := fills[srcRow]
		if !ok {
			row = make(map[int]string)
			fills[srcRow] = row
		}
		row[col] = text
	}

	for src, sr := range rows {
		if sr.hidden {
			// Placeholders aimed at this row are consumed unseen.
			delete(fills, src)
			continue
		}

		var cells []string
		col := 0

		emitFill := func() bool {
			text, ok := fills[src][col]
			if !ok {
				return false
			}
			delete(fills[src], col)
			cells = append(cells, text)
			col++
			return true
		}

		for cell := firstCell(sr.node); cell != nil; cell = nextCell(cell) {
			if opts.ExcludeHidden && isHidden(cell) {
				continue
			}
			for emitFill() {
			}

			text := textContent(cell)
			rowSpan := spanAttr(cell, "rowspan")
			colSpan := spanAttr(cell, "colspan")

			if opts.MaxColumns > 0 && col+colSpan > opts.MaxColumns {
				return nil, fmt.Errorf("%w: column index %d exceeds %d", grid.ErrLimitExceeded, col+colSpan-1, opts.MaxColumns)
			}

			if opts.KeepMerges && (rowSpan > 1 || colSpan > 1) {
				m := grid.MergeRange{
					FirstRow: len(out),
					FirstCol: col,
					LastRow:  len(out) + visibleBelow(rows, src, rowSpan),
					LastCol:  col + colSpan - 1,
				}
				if m.Spans() {
					merges = append(merges, m)
				}
			}

			cells = append(cells, text)
			for k := 1; k < colSpan; k++ {
				cells = append(cells, "")
			}
			for r := src + 1; r < src+rowSpan && r < len(rows); r++ {
				seed(r, col, text)
				for k := 1; k < colSpan; k++ {
					seed(r, col+k, "")
				}
			}
			col += colSpan
		}

		// Trailing placeholders past the last cell, consumed only while
		// consecutive with the current column. A gap ends the row.
		for _, c := range sortedCols(fills[src]) {
			if c != col {
				break
			}
			cells = append(cells, fills[src][c])
			col++
		}
		delete(fills, src)

		out = append(out, cells)
		if sr.header {
			headerRows++
		}
	}

	return &grid.Table{Rows: out, Merges: merges, HeaderRows: headerRows}, nil
}

// visibleBelow counts visible rows among the rowSpan-1 source rows that
// follow src. The result is the extra vertical extent of a merge in
// output coordinates.
func visibleBelow(rows []sourceRow, src, rowSpan int) int {
	n := 0
	for r := src + 1; r < src+rowSpan && r < len(rows); r++ {
		if !rows[r].hidden {
			n++
		}
	}
	return n
}

// collectRows gathers row elements in export order: thead, then the
// table's body rows (tbody children or direct tr children), then
// external body rows, then tfoot.
func collectRows(table *html.Node, opts WalkOptions) []sourceRow {
	var head, body, foot []sourceRow

	appendRows := func(dst *[]sourceRow, parent *html.Node, header, footer bool) {
		for c := parent.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode || c.DataAtom != atom.Tr {
				continue
			}
			hidden := opts.ExcludeHidden && isHidden(c)
			*dst = append(*dst, sourceRow{node: c, header: header, footer: footer, hidden: hidden})
		}
	}

	for c := table.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.Thead:
			appendRows(&head, c, true, false)
		case atom.Tbody:
			appendRows(&body, c, false, false)
		case atom.Tfoot:
			appendRows(&foot, c, false, true)
		case atom.Tr:
			body = append(body, sourceRow{node: c, hidden: opts.ExcludeHidden && isHidden(c)})
		}
	}

	if opts.ExternalBody != nil {
		collectExternalRows(opts.ExternalBody, opts, &body)
	}

	rows := make([]sourceRow, 0, len(head)+len(body)+len(foot))
	rows = append(rows, head...)
	rows = append(rows, body...)
	rows = append(rows, foot...)
	return rows
}

// collectExternalRows pulls tr elements out of a detached tbody (or any
// container of rows) without descending into nested tables.
func collectExternalRows(n *html.Node, opts WalkOptions, dst *[]sourceRow) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.DataAtom == atom.Table {
			continue
		}
		if c.DataAtom == atom.Tr {
			hidden := opts.ExcludeHidden && isHidden(c)
			*dst = append(*dst, sourceRow{node: c, hidden: hidden})
			continue
		}
		collectExternalRows(c, opts, dst)
	}
}

func firstCell(tr *html.Node) *html.Node {
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if isCell(c) {
			return c
		}
	}
	return nil
}

func nextCell(cell *html.Node) *html.Node {
	for c := cell.NextSibling; c != nil; c = c.NextSibling {
		if isCell(c) {
			return c
		}
	}
	return nil
}

func isCell(n *html.Node) bool {
	return n.Type == html.ElementNode && (n.DataAtom == atom.Td || n.DataAtom == atom.Th)
}

// spanAttr reads a rowspan/colspan attribute. Missing, malformed, and
// non-positive values all mean 1.
func spanAttr(n *html.Node, key string) int {
	v := attrVal(n, key)
	if v == "" {
		return 1
	}
	span, err := strconv.Atoi(v)
	if err != nil || span < 1 {
		return 1
	}
	return span
}

func sortedCols(m map[int]string) []int {
	if len(m) == 0 {
		return nil
	}
	cols := make([]int, 0, len(m))
	for c := range m {
		cols = append(cols, c)
	}
	sort.Ints(cols)
	return cols
}

func isDescendant(n, ancestor *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == ancestor {
			return true
		}
	}
	return false
}
