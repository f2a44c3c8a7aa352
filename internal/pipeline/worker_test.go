package pipeline

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/gridport/gridport/internal/export"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWorker_ProcessDataExport(t *testing.T) {
	job := &Job{
		ID:        "w-1",
		Status:    StatusQueued,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		request: Request{
			Source:  SourceData,
			Payload: []byte(`[["a", 1], ["b", 2]]`),
			Options: export.Options{Filename: "rows"},
		},
	}

	NewWorker(discardLogger()).Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("status = %q (error %q), want completed", snap.Status, snap.Error)
	}
	if snap.Progress != 100 {
		t.Errorf("progress = %d, want 100", snap.Progress)
	}
	res := job.Result()
	if res == nil {
		t.Fatal("expected a result")
	}
	if res.Filename != "rows.csv" {
		t.Errorf("filename = %q, want rows.csv", res.Filename)
	}
	if got := string(res.Data); got != "a,1\nb,2\n" {
		t.Errorf("data = %q", got)
	}
}

func TestWorker_ProcessHTMLExport(t *testing.T) {
	job := &Job{
		ID: "w-2", Status: StatusQueued, CreatedAt: time.Now(), UpdatedAt: time.Now(),
		request: Request{
			Source:  SourceHTML,
			Payload: []byte(`<table id="x"><tr><td>cell</td></tr></table>`),
			TableID: "x",
			Options: export.Options{Filename: "doc"},
		},
	}

	NewWorker(discardLogger()).Process(context.Background(), job)

	if snap := job.Snapshot(); snap.Status != StatusCompleted {
		t.Fatalf("status = %q (error %q), want completed", snap.Status, snap.Error)
	}
	if got := string(job.Result().Data); got != "cell\n" {
		t.Errorf("data = %q", got)
	}
}

func TestWorker_ProcessFailure(t *testing.T) {
	job := &Job{
		ID: "w-3", Status: StatusQueued, CreatedAt: time.Now(), UpdatedAt: time.Now(),
		request: Request{
			Source:  SourceHTML,
			Payload: []byte(`<p>no table</p>`),
			Options: export.Options{},
		},
	}

	NewWorker(discardLogger()).Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", snap.Status)
	}
	if !strings.Contains(snap.Error, "table") {
		t.Errorf("error %q should mention the missing table", snap.Error)
	}
}

func TestWorker_InvalidJSONPayload(t *testing.T) {
	job := &Job{
		ID: "w-4", Status: StatusQueued, CreatedAt: time.Now(), UpdatedAt: time.Now(),
		request: Request{Source: SourceData, Payload: []byte(`{not json`)},
	}

	NewWorker(discardLogger()).Process(context.Background(), job)

	if snap := job.Snapshot(); snap.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", snap.Status)
	}
}
