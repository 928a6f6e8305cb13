package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/straja-ai/harassguard/internal/analysis"
	"github.com/straja-ai/harassguard/internal/chatparse"
	"github.com/straja-ai/harassguard/internal/classifier"
	"github.com/straja-ai/harassguard/internal/evidence"
	"github.com/straja-ai/harassguard/internal/redact"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func writeError(w http.ResponseWriter, status int, message, typ string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Message: message, Type: typ}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		redact.Logf("http: failed to write response: %v", err)
	}
}

// decodeJSON reads a JSON body and reports the error response itself.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "request_too_large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "request body is empty", "invalid_request")
		default:
			writeError(w, http.StatusBadRequest, "invalid JSON body", "invalid_request")
		}
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		redact.Logf("healthz: store ping failed: %v", err)
		writeError(w, http.StatusServiceUnavailable, "case store unavailable", "store_unavailable")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}

type activationStatus struct {
	Enqueued uint64 `json:"enqueued"`
	Dropped  uint64 `json:"dropped"`
}

type statusResponse struct {
	Rules      any               `json:"rules"`
	Models     any               `json:"models"`
	Store      string            `json:"store"`
	Activation *activationStatus `json:"activation,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "analyzer not configured", "configuration_error")
		return
	}
	st := s.analyzer.Status(r.Context())
	resp := statusResponse{Rules: st.Rules, Models: st.Models, Store: s.cfg.Store.Driver}
	if s.emitter != nil {
		m := s.emitter.MetricsSnapshot()
		resp.Activation = &activationStatus{Enqueued: m.Enqueued(), Dropped: m.Dropped()}
	}
	writeJSON(w, http.StatusOK, resp)
}

type analyzeRequest struct {
	Text    string                  `json:"text"`
	Uploads []evidence.UploadRecord `json:"uploads"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "analyzer not configured", "configuration_error")
		return
	}
	var req analyzeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res := s.analyzer.Run(r.Context(), analysis.Request{
		Text:      req.Text,
		Uploads:   req.Uploads,
		RequestID: middleware.GetReqID(r.Context()),
	})
	writeJSON(w, http.StatusOK, res)
}

type chatParseResponse struct {
	Messages []chatparse.Message `json:"messages"`
	Summary  string              `json:"summary"`
	Signals  []string            `json:"signals"`
}

func (s *Server) handleChatParse(w http.ResponseWriter, r *http.Request) {
	msgs, err := chatparse.Parse(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "chat export too large", "request_too_large")
			return
		}
		writeError(w, http.StatusBadRequest, "could not read chat export", "invalid_request")
		return
	}
	if msgs == nil {
		msgs = []chatparse.Message{}
	}
	writeJSON(w, http.StatusOK, chatParseResponse{
		Messages: msgs,
		Summary:  chatparse.Summary(msgs, chatparse.DefaultSummaryLines),
		Signals:  chatparse.Signals(msgs),
	})
}

func (s *Server) handleModelsReload(w http.ResponseWriter, r *http.Request) {
	if s.models == nil {
		writeError(w, http.StatusConflict, "models are not reloadable in this mode", "configuration_error")
		return
	}
	models := s.models.Reload(r.Context())
	redact.Logf("models reloaded: %s", describeModels(models))
	writeJSON(w, http.StatusOK, map[string]any{"models": models.Status()})
}

func describeModels(m classifier.Models) string {
	parts := make([]string, 0, 2)
	for _, name := range []string{classifier.FamilyBinary, classifier.FamilyMultilabel} {
		st := m.Status()[name]
		if st.Available {
			parts = append(parts, name+"="+st.Source)
		} else {
			parts = append(parts, name+"=missing")
		}
	}
	return strings.Join(parts, " ")
}
