package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gridport/gridport/internal/pipeline"
)

// jobRequest submits an export for background processing. Document
// payloads travel as text; DOCX payloads as base64.
type jobRequest struct {
	Source        string `json:"source"`
	Payload       string `json:"payload,omitempty"`
	PayloadBase64 string `json:"payload_base64,omitempty"`
	TableID       string `json:"table_id,omitempty"`
	DocxTable     int    `json:"docx_table,omitempty"`
	ExcludeHidden bool   `json:"exclude_hidden,omitempty"`

	dataRequest
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid json body: "+err.Error(), http.StatusBadRequest)
		return
	}

	opts, err := req.options()
	if err != nil {
		jsonError(w, err.Error(), statusFromErr(err))
		return
	}
	opts.ExcludeHidden = req.ExcludeHidden

	var payload []byte
	source := pipeline.Source(req.Source)
	switch source {
	case pipeline.SourceHTML, pipeline.SourceMarkdown:
		payload = []byte(req.Payload)
	case pipeline.SourceDocx:
		payload, err = base64.StdEncoding.DecodeString(req.PayloadBase64)
		if err != nil {
			jsonError(w, "payload_base64 is not valid base64: "+err.Error(), http.StatusBadRequest)
			return
		}
	case pipeline.SourceData:
		payload = []byte(req.Records)
	default:
		jsonError(w, fmt.Sprintf("unknown source %q", req.Source), http.StatusBadRequest)
		return
	}
	if len(payload) == 0 {
		jsonError(w, "payload is required", http.StatusBadRequest)
		return
	}

	job, err := s.orchestrator.Submit(pipeline.Request{
		Source:    source,
		Payload:   payload,
		TableID:   req.TableID,
		DocxTable: req.DocxTable,
		Options:   opts,
	})
	if err != nil {
		jsonError(w, err.Error(), statusFromErr(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":     job.ID,
		"status":     job.Snapshot().Status,
		"poll_url":   fmt.Sprintf("/api/jobs/%s", job.ID),
		"result_url": fmt.Sprintf("/api/jobs/%s/result", job.ID),
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job.Snapshot())
}

func (s *Server) handleJobResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}

	snap := job.Snapshot()
	switch snap.Status {
	case pipeline.StatusCompleted:
		writeResult(w, job.Result())
	case pipeline.StatusFailed:
		jsonError(w, snap.Error, http.StatusUnprocessableEntity)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(snap)
	}
}
