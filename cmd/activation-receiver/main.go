package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/straja-ai/harassguard/internal/activation"
	"github.com/straja-ai/harassguard/internal/redact"
)

func main() {
	addr := flag.String("addr", ":8099", "listen address for activation receiver")
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("/activation", handleActivation)
	mux.HandleFunc("/", handleActivation)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	redact.Logf("activation receiver listening on %s (POST JSON to /activation)...", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		redact.Fatalf("receiver error: %v", err)
	}
}

func handleActivation(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	_ = r.Body.Close()
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var ev activation.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		redact.Logf("received non-event payload: path=%s len=%d err=%v", r.URL.Path, len(body), err)
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}

	redact.Logf("analysis event v%s request_id=%s case_id=%s likely=%t severity=%d path=%s categories=%v readiness=%d",
		ev.Version, ev.RequestID, ev.CaseID,
		ev.Summary.HarassmentLikely, ev.Summary.Severity, ev.Summary.DecisionPath,
		ev.Summary.Categories, ev.Summary.EvidenceReadiness)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintln(w, `{"status":"ok"}`)
}
