package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gridport/gridport/internal/export"
	"github.com/gridport/gridport/internal/grid"
)

// Source identifies what kind of payload a request carries.
type Source string

const (
	SourceHTML     Source = "html"
	SourceMarkdown Source = "markdown"
	SourceDocx     Source = "docx"
	SourceData     Source = "data"
)

// Request describes one export to run off the caller's goroutine.
type Request struct {
	Source  Source
	Payload []byte
	// TableID selects the table for document sources.
	TableID string
	// DocxTable is the table index for DOCX payloads.
	DocxTable int
	Options   export.Options
}

// Worker runs export jobs.
type Worker struct {
	log *slog.Logger
}

func NewWorker(log *slog.Logger) *Worker {
	return &Worker{log: log}
}

// Process runs a single export job to completion.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "source", job.request.Source)

	if ctx.Err() != nil {
		job.Fail("shutdown before start")
		return
	}

	job.SetStatus(StatusExporting)

	req := job.request
	opts := req.Options
	opts.Progress = func(pct int) error {
		job.SetProgress(pct)
		return nil
	}
	opts.StrictProgress = false
	opts.Logger = w.log

	res, err := runExport(req, opts)
	if err != nil {
		log.Error("export failed", "error", err)
		job.Fail(err.Error())
		return
	}

	job.Complete(res)
	log.Info("export complete", "filename", res.Filename, "bytes", len(res.Data))
}

func runExport(req Request, opts export.Options) (*export.Result, error) {
	switch req.Source {
	case SourceHTML:
		return export.Document(bytes.NewReader(req.Payload), req.TableID, opts)
	case SourceMarkdown:
		return export.Markdown(bytes.NewReader(req.Payload), req.TableID, opts)
	case SourceDocx:
		return export.Docx(bytes.NewReader(req.Payload), req.DocxTable, opts)
	case SourceData:
		var records any
		if err := json.Unmarshal(req.Payload, &records); err != nil {
			return nil, fmt.Errorf("%w: decode records: %v", grid.ErrInvalidInput, err)
		}
		return export.Data(records, opts)
	default:
		return nil, fmt.Errorf("%w: unknown source %q", grid.ErrInvalidInput, req.Source)
	}
}
