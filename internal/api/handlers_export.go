package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gridport/gridport/internal/export"
	"github.com/gridport/gridport/internal/grid"
	"github.com/gridport/gridport/internal/pipeline"
)

// handleExportTable runs a synchronous document export. The document
// arrives either as the raw request body or as a multipart "file"
// part, optionally with a "body" part holding external overflow rows;
// everything else comes from query/form parameters.
func (s *Server) handleExportTable(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	payload, err := readDocument(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	opts, err := optsFromQuery(r)
	if err != nil {
		jsonError(w, err.Error(), statusFromErr(err))
		return
	}

	fragment, err := readBodyFragment(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var res *export.Result
	switch source := r.FormValue("source"); source {
	case "", "html":
		if len(fragment) > 0 {
			res, err = export.DocumentWithBodyReader(bytes.NewReader(payload), bytes.NewReader(fragment), r.FormValue("table_id"), opts)
		} else {
			res, err = export.Document(bytes.NewReader(payload), r.FormValue("table_id"), opts)
		}
	case "markdown":
		res, err = export.Markdown(bytes.NewReader(payload), r.FormValue("table_id"), opts)
	case "docx":
		index := 0
		if v := r.FormValue("docx_table"); v != "" {
			index, err = strconv.Atoi(v)
			if err != nil {
				jsonError(w, "docx_table must be an integer", http.StatusBadRequest)
				return
			}
		}
		res, err = export.Docx(bytes.NewReader(payload), index, opts)
	default:
		jsonError(w, fmt.Sprintf("unknown source %q", source), http.StatusBadRequest)
		return
	}
	if err != nil {
		jsonError(w, err.Error(), statusFromErr(err))
		return
	}

	writeResult(w, res)
}

// handleExportWorkbook exports several tables of one HTML document as a
// multi-sheet workbook. Sheets are selected by a JSON-encoded "sheets"
// parameter: [{"table_id": "...", "sheet_name": "...", "exclude_hidden": true}].
func (s *Server) handleExportWorkbook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	payload, err := readDocument(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var rawSheets []struct {
		TableID       string `json:"table_id"`
		SheetName     string `json:"sheet_name"`
		ExcludeHidden bool   `json:"exclude_hidden"`
	}
	if v := r.FormValue("sheets"); v != "" {
		if err := json.Unmarshal([]byte(v), &rawSheets); err != nil {
			jsonError(w, "invalid sheets parameter: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	specs := make([]export.SheetSpec, len(rawSheets))
	for i, rs := range rawSheets {
		specs[i] = export.SheetSpec{TableID: rs.TableID, SheetName: rs.SheetName, ExcludeHidden: rs.ExcludeHidden}
	}

	opts, err := optsFromQuery(r)
	if err != nil {
		jsonError(w, err.Error(), statusFromErr(err))
		return
	}
	opts.Format = export.FormatXLSX

	res, err := export.Workbook(bytes.NewReader(payload), specs, opts)
	if err != nil {
		jsonError(w, err.Error(), statusFromErr(err))
		return
	}
	writeResult(w, res)
}

// dataRequest is the body of data export and job submissions.
type dataRequest struct {
	Records json.RawMessage `json:"records"`
	Columns json.RawMessage `json:"columns,omitempty"`

	Filename     string `json:"filename,omitempty"`
	Format       string `json:"format,omitempty"`
	ChildrenKey  string `json:"children_key,omitempty"`
	IndentColumn string `json:"indent_column,omitempty"`
	BOM          bool   `json:"bom,omitempty"`
	FreezeRows   *int   `json:"freeze_rows,omitempty"`
	FreezeCols   *int   `json:"freeze_cols,omitempty"`
}

func (d dataRequest) options() (export.Options, error) {
	opts := export.DefaultOptions()
	format, err := export.ParseFormatName(d.Format)
	if err != nil {
		return opts, err
	}
	opts.Format = format
	opts.Filename = d.Filename
	opts.Columns = []byte(d.Columns)
	opts.ChildrenKey = d.ChildrenKey
	opts.IndentColumn = d.IndentColumn
	opts.BOM = d.BOM
	if d.FreezeRows != nil {
		opts.FreezeRows = *d.FreezeRows
	}
	if d.FreezeCols != nil {
		opts.FreezeCols = *d.FreezeCols
	}
	return opts, nil
}

func (s *Server) handleExportData(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	var req dataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid json body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Records) == 0 {
		jsonError(w, "records is required", http.StatusBadRequest)
		return
	}

	opts, err := req.options()
	if err != nil {
		jsonError(w, err.Error(), statusFromErr(err))
		return
	}
	opts.Logger = s.log

	var records any
	if err := json.Unmarshal(req.Records, &records); err != nil {
		jsonError(w, "invalid records: "+err.Error(), http.StatusBadRequest)
		return
	}

	res, err := export.Data(records, opts)
	if err != nil {
		jsonError(w, err.Error(), statusFromErr(err))
		return
	}
	writeResult(w, res)
}

// readDocument returns the document payload from a multipart "file"
// part or the raw body.
func readDocument(r *http.Request) ([]byte, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "multipart/form-data" {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return nil, fmt.Errorf("invalid multipart form: %w", err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("file part is required: %w", err)
		}
		defer file.Close()
		return io.ReadAll(file)
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("request body is empty")
	}
	return data, nil
}

// readBodyFragment returns the optional external row fragment uploaded
// as a multipart "body" part. Its rows are appended after the table's
// own body rows.
func readBodyFragment(r *http.Request) ([]byte, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	file, _, err := r.FormFile("body")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, fmt.Errorf("body part: %w", err)
	}
	defer file.Close()
	return io.ReadAll(file)
}

// optsFromQuery builds export options from query/form parameters.
func optsFromQuery(r *http.Request) (export.Options, error) {
	opts := export.DefaultOptions()

	format, err := export.ParseFormatName(r.FormValue("format"))
	if err != nil {
		return opts, err
	}
	opts.Format = format
	opts.Filename = r.FormValue("filename")
	opts.ExcludeHidden = boolParam(r, "exclude_hidden")
	opts.BOM = boolParam(r, "bom")

	if v := r.FormValue("freeze_rows"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, fmt.Errorf("%w: freeze_rows must be an integer", grid.ErrInvalidInput)
		}
		opts.FreezeRows = n
	}
	if v := r.FormValue("freeze_cols"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, fmt.Errorf("%w: freeze_cols must be an integer", grid.ErrInvalidInput)
		}
		opts.FreezeCols = n
	}
	return opts, nil
}

func boolParam(r *http.Request, key string) bool {
	switch strings.ToLower(r.FormValue(key)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func writeResult(w http.ResponseWriter, res *export.Result) {
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.Write(res.Data)
}

func statusFromErr(err error) int {
	switch {
	case errors.Is(err, grid.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, grid.ErrTableNotFound):
		return http.StatusNotFound
	case errors.Is(err, grid.ErrLimitExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrQueueFull):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
