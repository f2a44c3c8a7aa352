package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gridport/gridport/internal/config"
	"github.com/gridport/gridport/internal/pipeline"
)

func testServer(t *testing.T, apiKey string) *Server {
	t.Helper()
	cfg := config.Config{
		Port:         "0",
		APIKey:       apiKey,
		WorkerCount:  2,
		MaxQueueSize: 8,
		MaxBodyBytes: 1 << 20,
		JobTTL:       time.Minute,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := pipeline.NewOrchestrator(cfg, log)
	ctx, cancel := context.WithCancel(context.Background())
	orch.Start(ctx)
	t.Cleanup(func() {
		cancel()
		orch.Stop()
	})
	return NewServer(orch, log, cfg)
}

func TestHealth(t *testing.T) {
	s := testServer(t, "")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestAuth(t *testing.T) {
	s := testServer(t, "secret")

	req := httptest.NewRequest(http.MethodPost, "/api/export/table?format=csv", strings.NewReader("<table><tr><td>x</td></tr></table>"))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without token: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/export/table?format=csv", strings.NewReader("<table><tr><td>x</td></tr></table>"))
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/export/table?format=csv", strings.NewReader("<table><tr><td>x</td></tr></table>"))
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("good token: status = %d, want 200 (body %q)", rec.Code, rec.Body.String())
	}
}

func TestExportTable_CSV(t *testing.T) {
	s := testServer(t, "")
	body := `<table id="t"><thead><tr><th>A</th></tr></thead><tbody><tr><td>1</td></tr></tbody></table>`

	req := httptest.NewRequest(http.MethodPost, "/api/export/table?table_id=t&filename=demo", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %q)", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "text/csv; charset=utf-8" {
		t.Errorf("content type = %q", got)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "demo.csv") {
		t.Errorf("disposition = %q", got)
	}
	if rec.Body.String() != "A\n1\n" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestExportTable_MultipartWithExternalBody(t *testing.T) {
	s := testServer(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "doc.html")
	if err != nil {
		t.Fatalf("create file part: %v", err)
	}
	part.Write([]byte(`<table id="t"><tr><td>first</td></tr></table>`))
	part, err = mw.CreateFormFile("body", "rows.html")
	if err != nil {
		t.Fatalf("create body part: %v", err)
	}
	part.Write([]byte(`<tbody><tr><td>overflow</td></tr></tbody>`))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/export/table?table_id=t", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %q)", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "first\noverflow\n" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestExportTable_NotFound(t *testing.T) {
	s := testServer(t, "")
	req := httptest.NewRequest(http.MethodPost, "/api/export/table", strings.NewReader("<p>nothing</p>"))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 (body %q)", rec.Code, rec.Body.String())
	}
}

func TestExportTable_UnknownFormat(t *testing.T) {
	s := testServer(t, "")
	req := httptest.NewRequest(http.MethodPost, "/api/export/table?format=pdf", strings.NewReader("<table></table>"))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestExportData(t *testing.T) {
	s := testServer(t, "")
	payload := `{
		"records": [{"name": "Alice", "age": 30}],
		"columns": [{"title": "Name", "key": "name"}, {"title": "Age", "key": "age"}],
		"filename": "people",
		"format": "csv"
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/export/data", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %q)", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "Name,Age\nAlice,30\n" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestExportData_ObjectsWithoutColumns(t *testing.T) {
	s := testServer(t, "")
	req := httptest.NewRequest(http.MethodPost, "/api/export/data", strings.NewReader(`{"records": [{"a": 1}]}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 (body %q)", rec.Code, rec.Body.String())
	}
}

func TestJobLifecycle(t *testing.T) {
	s := testServer(t, "")

	payload := `{
		"source": "html",
		"payload": "<table><tr><td>async</td></tr></table>",
		"filename": "job-out",
		"format": "csv"
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d (body %q)", rec.Code, rec.Body.String())
	}
	var created struct {
		JobID   string `json:"job_id"`
		PollURL string `json:"poll_url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.JobID == "" {
		t.Fatal("missing job_id")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		rec = httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, created.PollURL, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("poll status = %d", rec.Code)
		}
		var snap struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
			t.Fatalf("decode snapshot: %v", err)
		}
		if snap.Status == "completed" {
			break
		}
		if snap.Status == "failed" {
			t.Fatalf("job failed: %s", snap.Error)
		}
		if time.Now().After(deadline) {
			t.Fatalf("job stuck in %q", snap.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/jobs/%s/result", created.JobID), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("result status = %d (body %q)", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "async\n" {
		t.Errorf("result body = %q", rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "job-out.csv") {
		t.Errorf("disposition = %q", got)
	}
}

func TestJobResult_PendingConflict(t *testing.T) {
	s := testServer(t, "")

	// A job that was never submitted.
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/unknown/result", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCreateJob_UnknownSource(t *testing.T) {
	s := testServer(t, "")
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(`{"source": "carrier-pigeon", "payload": "x"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
