// Package mockscorer serves a deterministic stand-in for the remote scoring
// service used by the http models backend.
package mockscorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/straja-ai/harassguard/internal/redact"
)

const (
	defaultPort    = 18090
	defaultDelayMS = 0

	baseScore = 0.02
)

// Cue words per facet. A text containing any cue scores cueScore on that facet.
var facetCues = []struct {
	facet string
	score float64
	words []string
}{
	{"threat", 0.9, []string{"kill", "hurt you", "beat you", "destroy you", "you will regret"}},
	{"obscene", 0.85, []string{"nude", "nudes", "porn", "sex", "boobs"}},
	{"insult", 0.75, []string{"stupid", "idiot", "worthless", "ugly"}},
	{"identity_hate", 0.7, []string{"your caste", "your religion", "your kind"}},
	{"severe_toxic", 0.6, []string{"kill", "whore"}},
	{"toxic", 0.88, []string{"kill", "nude", "stupid", "idiot", "whore", "your kind"}},
}

var facetOrder = []string{"toxic", "severe_toxic", "obscene", "threat", "insult", "identity_hate"}

// Score returns the mock facet scores for text.
func Score(text string) map[string]float64 {
	lower := strings.ToLower(text)
	out := make(map[string]float64, len(facetOrder))
	for _, f := range facetOrder {
		out[f] = baseScore
	}
	for _, cue := range facetCues {
		for _, w := range cue.words {
			if strings.Contains(lower, w) {
				out[cue.facet] = cue.score
				break
			}
		}
	}
	return out
}

// BinaryProbability is the highest facet score.
func BinaryProbability(scores map[string]float64) float64 {
	p := 0.0
	for _, v := range scores {
		if v > p {
			p = v
		}
	}
	return p
}

// Handler returns the scoring routes. delay is applied to predict calls.
func Handler(delay time.Duration) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "binary_loaded": true, "multilabel_loaded": true})
	})
	mux.HandleFunc("POST /v1/predict/binary", func(w http.ResponseWriter, r *http.Request) {
		text, ok := readText(w, r)
		if !ok {
			return
		}
		sleep(delay)
		p := BinaryProbability(Score(text))
		label := 0
		if p >= 0.5 {
			label = 1
		}
		writeJSON(w, http.StatusOK, map[string]any{"label": label, "probability": p})
	})
	mux.HandleFunc("POST /v1/predict/multilabel", func(w http.ResponseWriter, r *http.Request) {
		text, ok := readText(w, r)
		if !ok {
			return
		}
		sleep(delay)
		writeJSON(w, http.StatusOK, map[string]any{"scores": Score(text)})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error": map[string]any{"message": "Not found", "type": "invalid_request_error"},
		})
	})
	return mux
}

// Start listens on addr (default 127.0.0.1:MOCK_SCORER_PORT or 18090).
// MOCK_SCORER_DELAY_MS adds latency to predictions.
// It returns a shutdown function and the base URL.
func Start(addr string) (func(context.Context) error, string, error) {
	if strings.TrimSpace(addr) == "" {
		port := strings.TrimSpace(os.Getenv("MOCK_SCORER_PORT"))
		if port == "" {
			port = strconv.Itoa(defaultPort)
		}
		addr = "127.0.0.1:" + port
	}

	delay := defaultDelayMS
	if val := strings.TrimSpace(os.Getenv("MOCK_SCORER_DELAY_MS")); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed >= 0 {
			delay = parsed
		}
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", fmt.Errorf("listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           Handler(time.Duration(delay) * time.Millisecond),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			redact.Logf("mock scorer error: %v", err)
		}
	}()

	baseURL := "http://" + ln.Addr().String()
	redact.Logf("mock scorer listening on %s (delay_ms=%d)", baseURL, delay)
	return srv.Shutdown, baseURL, nil
}

func readText(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{"message": "invalid JSON body", "type": "invalid_request_error"},
		})
		return "", false
	}
	return req.Text, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}
