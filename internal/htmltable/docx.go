package htmltable

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fumiama/go-docx"
	"github.com/gridport/gridport/internal/grid"
)

// FromDocxReader copies the stream to a temp file (go-docx needs a
// ReaderAt plus size) and exports the table at the given index.
func FromDocxReader(r io.Reader, index int) (*grid.Table, error) {
	tmp, err := os.CreateTemp("", "gridport-docx-*.docx")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	defer tmp.Close()

	size, err := io.Copy(tmp, r)
	if err != nil {
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	return FromDocx(tmp, size, index)
}

// FromDocx exports the index-th table of a DOCX body. Word expresses
// merges as gridSpan (horizontal) and vMerge restart/continue chains
// (vertical); both map onto grid.MergeRange the same way HTML spans do.
func FromDocx(r io.ReaderAt, size int64, index int) (*grid.Table, error) {
	doc, err := docx.Parse(r, size)
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	var tables []*docx.Table
	for _, item := range doc.Document.Body.Items {
		if t, ok := item.(*docx.Table); ok {
			tables = append(tables, t)
		}
	}
	if index < 0 || index >= len(tables) {
		return nil, fmt.Errorf("%w: document has %d table(s), index %d requested", grid.ErrTableNotFound, len(tables), index)
	}
	return docxTable(tables[index])
}

type openMerge struct {
	firstRow int
	lastCol  int
	text     string
}

func docxTable(t *docx.Table) (*grid.Table, error) {
	var (
		rows   [][]string
		merges []grid.MergeRange
		// open vertical merges keyed by their first column.
		open = make(map[int]*openMerge)
	)

	closeMerge := func(col, lastRow int) {
		om, ok := open[col]
		if !ok {
			return
		}
		delete(open, col)
		m := grid.MergeRange{FirstRow: om.firstRow, FirstCol: col, LastRow: lastRow, LastCol: om.lastCol}
		if m.Spans() {
			merges = append(merges, m)
		}
	}

	for _, tr := range t.TableRows {
		var cells []string
		col := 0
		for _, tc := range tr.TableCells {
			span := 1
			var vmerge *docx.WvMerge
			if tc.TableCellProperties != nil {
				if gs := tc.TableCellProperties.GridSpan; gs != nil && gs.Val > 1 {
					span = gs.Val
				}
				vmerge = tc.TableCellProperties.VMerge
			}

			switch {
			case vmerge != nil && !strings.EqualFold(vmerge.Val, "restart"):
				// Continuation of the vertical merge opened above;
				// carries the owner's text in its first column.
				text := ""
				if om := open[col]; om != nil {
					text = om.text
				}
				cells = append(cells, text)
				for k := 1; k < span; k++ {
					cells = append(cells, "")
				}
			default:
				closeMerge(col, len(rows)-1)
				text := docxCellText(tc)
				cells = append(cells, text)
				for k := 1; k < span; k++ {
					cells = append(cells, "")
				}
				if vmerge != nil {
					open[col] = &openMerge{firstRow: len(rows), lastCol: col + span - 1, text: text}
				} else if span > 1 {
					merges = append(merges, grid.MergeRange{
						FirstRow: len(rows), FirstCol: col,
						LastRow: len(rows), LastCol: col + span - 1,
					})
				}
			}
			col += span
		}
		rows = append(rows, cells)
	}
	for col := range open {
		closeMerge(col, len(rows)-1)
	}

	return &grid.Table{Rows: rows, Merges: merges}, nil
}

func docxCellText(tc *docx.WTableCell) string {
	var buf strings.Builder
	for _, para := range tc.Paragraphs {
		text := docxParagraphText(para)
		if text == "" {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(text)
	}
	return buf.String()
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
