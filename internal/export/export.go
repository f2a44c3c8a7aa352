// Package export is the orchestration layer: it resolves options,
// dispatches a source (document table or dataset) through the walker
// and builders, and hands the assembled grid to an encoder.
package export

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"

	"github.com/gridport/gridport/internal/dataset"
	"github.com/gridport/gridport/internal/encode"
	"github.com/gridport/gridport/internal/grid"
	"github.com/gridport/gridport/internal/htmltable"
	"golang.org/x/net/html"
)

// Format selects the output encoding. The numeric values are part of
// the wire contract with callers that pass a discriminant.
type Format int

const (
	FormatCSV  Format = 0
	FormatXLSX Format = 1
)

// ParseFormat validates a numeric discriminant.
func ParseFormat(v int) (Format, error) {
	switch Format(v) {
	case FormatCSV, FormatXLSX:
		return Format(v), nil
	default:
		return 0, fmt.Errorf("%w: unknown format discriminant %d", grid.ErrInvalidInput, v)
	}
}

// ParseFormatName maps "csv"/"xlsx" to a Format.
func ParseFormatName(s string) (Format, error) {
	switch s {
	case "csv", "":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	default:
		return 0, fmt.Errorf("%w: unknown format %q", grid.ErrInvalidInput, s)
	}
}

func (f Format) Extension() string {
	if f == FormatXLSX {
		return ".xlsx"
	}
	return ".csv"
}

func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Options drives a single export.
type Options struct {
	// Filename names the download; the format extension is appended
	// when missing. Empty defaults to "export".
	Filename string
	Format   Format

	// Columns is a raw JSON column configuration. Required for object
	// records, ignored for document tables and matrices.
	Columns []byte

	// ChildrenKey/IndentColumn enable tree flattening for Data.
	ChildrenKey  string
	IndentColumn string
	IndentWidth  int

	// BOM prepends a UTF-8 byte order mark to CSV output.
	BOM bool

	// ExcludeHidden drops hidden rows and cells from document tables.
	ExcludeHidden bool

	// FreezeRows/FreezeCols fix panes in XLSX output. encode.AutoFreeze
	// derives rows from the header; zero freezes nothing.
	FreezeRows int
	FreezeCols int

	// Progress receives completion percentages. With StrictProgress a
	// callback error aborts the export; otherwise it is logged and
	// ignored.
	Progress       encode.ProgressFunc
	StrictProgress bool

	Logger *slog.Logger
}

// DefaultOptions returns Options with the auto freeze behavior, which
// pins header rows in XLSX output.
func DefaultOptions() Options {
	return Options{
		FreezeRows: encode.AutoFreeze,
		FreezeCols: encode.AutoFreeze,
	}
}

// Result is a finished export.
type Result struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (o Options) reporter() *encode.Reporter {
	return encode.NewReporter(o.Progress, o.StrictProgress, o.Logger)
}

func (o Options) filename() (string, error) {
	name := o.Filename
	if name == "" {
		name = "export"
	}
	if err := ValidateFilename(name); err != nil {
		return "", err
	}
	return EnsureExtension(name, o.Format), nil
}

// Document exports a table from an HTML document. An empty tableID
// means the first table; otherwise the id names the table or a
// container holding one.
func Document(r io.Reader, tableID string, opts Options) (*Result, error) {
	doc, err := htmltable.Parse(r)
	if err != nil {
		return nil, err
	}
	return fromDoc(doc, tableID, nil, opts)
}

// Markdown exports a pipe table from a Markdown document.
func Markdown(r io.Reader, tableID string, opts Options) (*Result, error) {
	doc, err := htmltable.ParseMarkdown(r)
	if err != nil {
		return nil, err
	}
	return fromDoc(doc, tableID, nil, opts)
}

// Docx exports the index-th table of a DOCX stream.
func Docx(r io.Reader, index int, opts Options) (*Result, error) {
	t, err := htmltable.FromDocxReader(r, index)
	if err != nil {
		return nil, err
	}
	return FromTable(t, opts)
}

// DocumentWithBody exports a document table with extra rows appended
// from a detached body fragment, for callers that keep overflow rows
// outside the table they render.
func DocumentWithBody(doc, externalBody *html.Node, tableID string, opts Options) (*Result, error) {
	return fromDoc(doc, tableID, externalBody, opts)
}

// DocumentWithBodyReader is DocumentWithBody for callers holding raw
// markup: the fragment is parsed in table context so detached tbody or
// tr content survives.
func DocumentWithBodyReader(r, body io.Reader, tableID string, opts Options) (*Result, error) {
	doc, err := htmltable.Parse(r)
	if err != nil {
		return nil, err
	}
	ext, err := htmltable.ParseFragment(body)
	if err != nil {
		return nil, err
	}
	return fromDoc(doc, tableID, ext, opts)
}

func fromDoc(doc *html.Node, tableID string, externalBody *html.Node, opts Options) (*Result, error) {
	table, err := htmltable.Resolve(doc, tableID)
	if err != nil {
		return nil, err
	}
	t, err := htmltable.Walk(table, walkOptions(opts, externalBody))
	if err != nil {
		return nil, err
	}
	return FromTable(t, opts)
}

func walkOptions(opts Options, externalBody *html.Node) htmltable.WalkOptions {
	w := htmltable.WalkOptions{
		ExcludeHidden: opts.ExcludeHidden,
		ExternalBody:  externalBody,
	}
	if opts.Format == FormatXLSX {
		w.KeepMerges = true
		w.MaxColumns = grid.MaxXLSXColumns
	}
	return w
}

// SheetSpec selects one document table for a workbook sheet.
type SheetSpec struct {
	TableID       string
	SheetName     string
	ExcludeHidden bool
}

// Workbook exports several tables of one HTML document as a multi-sheet
// XLSX file.
func Workbook(r io.Reader, specs []SheetSpec, opts Options) (*Result, error) {
	if opts.Format != FormatXLSX {
		return nil, fmt.Errorf("%w: multi-sheet export requires the xlsx format", grid.ErrInvalidInput)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no sheets requested", grid.ErrInvalidInput)
	}
	doc, err := htmltable.Parse(r)
	if err != nil {
		return nil, err
	}

	sheets := make([]encode.Sheet, 0, len(specs))
	for _, spec := range specs {
		table, err := htmltable.Resolve(doc, spec.TableID)
		if err != nil {
			return nil, err
		}
		sheetOpts := opts
		sheetOpts.ExcludeHidden = spec.ExcludeHidden
		t, err := htmltable.Walk(table, walkOptions(sheetOpts, nil))
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, encode.Sheet{Name: spec.SheetName, Table: t})
	}

	name, err := opts.filename()
	if err != nil {
		return nil, err
	}
	data, err := encode.XLSX(sheets, encode.XLSXOptions{
		FreezeRows: opts.FreezeRows,
		FreezeCols: opts.FreezeCols,
		Progress:   opts.reporter(),
	})
	if err != nil {
		return nil, err
	}
	return &Result{Filename: name, ContentType: opts.Format.ContentType(), Data: data}, nil
}

// Data exports decoded JSON records. Three shapes are accepted: a 2D
// array (used as-is), an object array keyed by a column configuration,
// and a tree (object array plus ChildrenKey/IndentColumn) which is
// flattened first.
func Data(records any, opts Options) (*Result, error) {
	t, err := buildDataTable(records, opts)
	if err != nil {
		return nil, err
	}
	return FromTable(t, opts)
}

func buildDataTable(records any, opts Options) (*grid.Table, error) {
	arr, ok := records.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: records must be an array", grid.ErrInvalidInput)
	}

	if opts.ChildrenKey != "" || opts.IndentColumn != "" {
		flat, err := dataset.Flatten(arr, dataset.FlattenOptions{
			ChildrenKey:  opts.ChildrenKey,
			IndentColumn: opts.IndentColumn,
			IndentWidth:  opts.IndentWidth,
		})
		if err != nil {
			return nil, err
		}
		return objectTable(flat, opts)
	}

	if len(opts.Columns) > 0 {
		objs, err := dataset.Objects(arr)
		if err != nil {
			return nil, err
		}
		return objectTable(objs, opts)
	}

	// Without columns only a 2D array is meaningful.
	if len(arr) > 0 {
		if _, isObj := arr[0].(map[string]any); isObj {
			return nil, fmt.Errorf("%w: object records require a column configuration", grid.ErrInvalidInput)
		}
	}
	rows, err := dataset.FromMatrix(arr)
	if err != nil {
		return nil, err
	}
	return &grid.Table{Rows: rows}, nil
}

func objectTable(records []map[string]any, opts Options) (*grid.Table, error) {
	if len(opts.Columns) == 0 {
		return nil, fmt.Errorf("%w: object records require a column configuration", grid.ErrInvalidInput)
	}
	cols, err := dataset.ParseColumns(opts.Columns)
	if err != nil {
		return nil, err
	}
	header, headerMerges, err := dataset.BuildHeader(cols)
	if err != nil {
		return nil, err
	}
	body, bodyMerges, err := dataset.Rows(records, dataset.LeafKeys(cols), len(header))
	if err != nil {
		return nil, err
	}

	t := &grid.Table{
		Rows:       append(header, body...),
		Merges:     append(headerMerges, bodyMerges...),
		HeaderRows: len(header),
	}
	return t, nil
}

// xlsxStreamRows is the row count above which single-sheet XLSX output
// goes through the stream writer instead of the in-memory builder.
const xlsxStreamRows = 4096

// FromTable encodes an assembled grid with the option set. This is the
// shared tail of every export path.
func FromTable(t *grid.Table, opts Options) (*Result, error) {
	name, err := opts.filename()
	if err != nil {
		return nil, err
	}

	var data []byte
	switch opts.Format {
	case FormatCSV:
		data, err = encode.CSV(t, encode.CSVOptions{BOM: opts.BOM, Progress: opts.reporter()})
	case FormatXLSX:
		sheet := encode.Sheet{Name: "Sheet1", Table: t}
		xopts := encode.XLSXOptions{
			FreezeRows: opts.FreezeRows,
			FreezeCols: opts.FreezeCols,
			Progress:   opts.reporter(),
		}
		if len(t.Rows) >= xlsxStreamRows {
			var buf bytes.Buffer
			if err = encode.XLSXStream(sheet, &buf, xopts); err == nil {
				data = buf.Bytes()
			}
		} else {
			data, err = encode.XLSX([]encode.Sheet{sheet}, xopts)
		}
	default:
		return nil, fmt.Errorf("%w: unknown format discriminant %d", grid.ErrInvalidInput, opts.Format)
	}
	if err != nil {
		return nil, err
	}

	return &Result{Filename: name, ContentType: opts.Format.ContentType(), Data: data}, nil
}
