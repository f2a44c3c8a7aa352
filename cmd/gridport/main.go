// Package main provides the gridport CLI: export document tables and
// JSON datasets to CSV or XLSX files.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/gridport/gridport/internal/export"
	"github.com/spf13/cobra"
)

var (
	outputPath    string
	formatName    string
	filename      string
	tableID       string
	source        string
	docxTable     int
	excludeHidden bool
	withBOM       bool
	freezeRows    int
	freezeCols    int

	columnsPath  string
	childrenKey  string
	indentColumn string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gridport",
		Short: "Export tables to CSV or XLSX",
		Long: `gridport turns HTML, Markdown and DOCX tables, or JSON datasets,
into CSV and XLSX files with merged cells and frozen header panes.`,
	}

	tableCmd := &cobra.Command{
		Use:   "table [input file]",
		Short: "Export a table from an HTML, Markdown or DOCX document",
		Args:  cobra.ExactArgs(1),
		RunE:  runTable,
	}
	tableCmd.Flags().StringVar(&tableID, "table-id", "", "Element id of the table or its container (default: first table)")
	tableCmd.Flags().StringVar(&source, "source", "html", "Input kind: html, markdown, docx")
	tableCmd.Flags().IntVar(&docxTable, "docx-table", 0, "Table index for DOCX input")
	tableCmd.Flags().BoolVar(&excludeHidden, "exclude-hidden", false, "Skip hidden rows and cells")

	dataCmd := &cobra.Command{
		Use:   "data [records.json]",
		Short: "Export JSON records (2D array, object array, or tree)",
		Args:  cobra.ExactArgs(1),
		RunE:  runData,
	}
	dataCmd.Flags().StringVar(&columnsPath, "columns", "", "Path to a JSON column configuration")
	dataCmd.Flags().StringVar(&childrenKey, "children-key", "", "Tree child-array field (enables flattening)")
	dataCmd.Flags().StringVar(&indentColumn, "indent-column", "", "Column indented per tree level")

	for _, cmd := range []*cobra.Command{tableCmd, dataCmd} {
		cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (default: export filename in cwd)")
		cmd.Flags().StringVar(&formatName, "format", "csv", "Output format: csv or xlsx")
		cmd.Flags().StringVar(&filename, "filename", "", "Download filename (extension appended)")
		cmd.Flags().BoolVar(&withBOM, "bom", false, "Prepend a UTF-8 BOM to CSV output")
		cmd.Flags().IntVar(&freezeRows, "freeze-rows", -1, "Rows to freeze in XLSX (-1: header rows)")
		cmd.Flags().IntVar(&freezeCols, "freeze-cols", -1, "Columns to freeze in XLSX")
	}

	rootCmd.AddCommand(tableCmd, dataCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func buildOptions() (export.Options, error) {
	opts := export.DefaultOptions()
	format, err := export.ParseFormatName(formatName)
	if err != nil {
		return opts, err
	}
	opts.Format = format
	opts.Filename = filename
	opts.BOM = withBOM
	opts.ExcludeHidden = excludeHidden
	opts.FreezeRows = freezeRows
	opts.FreezeCols = freezeCols
	opts.ChildrenKey = childrenKey
	opts.IndentColumn = indentColumn
	return opts, nil
}

func runTable(cmd *cobra.Command, args []string) error {
	in, err := openInput(args[0])
	if err != nil {
		return err
	}
	defer in.Close()

	opts, err := buildOptions()
	if err != nil {
		return err
	}

	var res *export.Result
	switch source {
	case "html":
		res, err = export.Document(in, tableID, opts)
	case "markdown":
		res, err = export.Markdown(in, tableID, opts)
	case "docx":
		res, err = export.Docx(in, docxTable, opts)
	default:
		return fmt.Errorf("invalid source: %s (must be html, markdown, or docx)", source)
	}
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	return writeOutput(res)
}

func runData(cmd *cobra.Command, args []string) error {
	raw, err := readInput(args[0])
	if err != nil {
		return err
	}

	opts, err := buildOptions()
	if err != nil {
		return err
	}
	if columnsPath != "" {
		cols, err := os.ReadFile(columnsPath)
		if err != nil {
			return fmt.Errorf("read columns: %w", err)
		}
		opts.Columns = cols
	}

	var records any
	if err := json.Unmarshal(raw, &records); err != nil {
		return fmt.Errorf("invalid records JSON: %w", err)
	}

	res, err := export.Data(records, opts)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	return writeOutput(res)
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

func writeOutput(res *export.Result) error {
	path := outputPath
	if path == "" {
		path = res.Filename
	}
	if err := os.WriteFile(path, res.Data, 0644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d bytes)\n", path, len(res.Data))
	return nil
}
