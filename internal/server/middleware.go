package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/straja-ai/harassguard/internal/redact"
)

// logRequests writes one line per request. Bodies are never logged.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		redact.Logf("http: %s %s status=%d bytes=%d dur=%s req_id=%s",
			r.Method, r.URL.Path, status, ww.BytesWritten(), time.Since(start).Round(time.Microsecond), middleware.GetReqID(r.Context()))
	})
}

// limitBody caps request bodies at server.max_body_bytes. Upload routes use
// the larger uploads.max_bytes limit instead.
func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := s.cfg.Server.MaxBodyBytes
		if isUploadPath(r.URL.Path) {
			limit = s.cfg.Uploads.MaxBytes + multipartOverhead
		}
		if limit > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		next.ServeHTTP(w, r)
	})
}
