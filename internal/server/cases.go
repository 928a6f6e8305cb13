package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/straja-ai/harassguard/internal/analysis"
	"github.com/straja-ai/harassguard/internal/casestore"
	"github.com/straja-ai/harassguard/internal/evidence"
	"github.com/straja-ai/harassguard/internal/redact"
)

const (
	uploadField       = "file"
	multipartOverhead = 64 << 10
)

func isUploadPath(path string) bool {
	return strings.HasPrefix(path, "/v1/cases/") && strings.HasSuffix(strings.TrimSuffix(path, "/"), "/uploads")
}

// writeStoreError maps casestore sentinels onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, casestore.ErrNotFound):
		writeError(w, http.StatusNotFound, "case not found", "not_found")
	case errors.Is(err, casestore.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_request")
	default:
		redact.Logf("casestore: %v", err)
		writeError(w, http.StatusInternalServerError, "case store error", "store_error")
	}
}

func (s *Server) handleCreateCase(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.Create(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCase(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type incidentRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSetIncident(w http.ResponseWriter, r *http.Request) {
	var req incidentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.store.SetIncident(r.Context(), chi.URLParam(r, "id"), req.Text)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleUpload hashes the multipart "file" part and records its metadata.
// The content itself is discarded.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.Get(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart/form-data body", "invalid_request")
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "missing multipart field \""+uploadField+"\"", "invalid_request")
			return
		}
		if err != nil {
			writeUploadReadError(w, err)
			return
		}
		if part.FormName() != uploadField {
			_ = part.Close()
			continue
		}

		body := &countingReader{r: io.LimitReader(part, s.cfg.Uploads.MaxBytes+1)}
		rec, err := evidence.NewUploadRecord(part.FileName(), body, time.Now(), s.cfg.Uploads.AllowedExtensions)
		_ = part.Close()
		if err != nil {
			if errors.Is(err, evidence.ErrUnsupportedType) {
				writeError(w, http.StatusUnsupportedMediaType, err.Error(), "unsupported_type")
				return
			}
			writeUploadReadError(w, err)
			return
		}
		if body.n > s.cfg.Uploads.MaxBytes {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds uploads.max_bytes", "request_too_large")
			return
		}

		c, err := s.store.AddUpload(r.Context(), id, rec)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
		return
	}
}

func writeUploadReadError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds uploads.max_bytes", "request_too_large")
		return
	}
	writeError(w, http.StatusBadRequest, "could not read upload", "invalid_request")
}

func (s *Server) handleAnalyzeCase(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "analyzer not configured", "configuration_error")
		return
	}
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	c, err := s.store.Get(ctx, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	res := s.analyzer.Run(ctx, analysis.Request{
		Text:      c.IncidentText,
		Uploads:   c.Uploads,
		RequestID: middleware.GetReqID(ctx),
		CaseID:    c.ID,
	})
	c, err = s.store.SaveAnalysis(ctx, id, res)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleResetCase(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.Reset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
