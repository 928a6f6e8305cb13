package activation

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/straja-ai/harassguard/internal/classifier"
	"github.com/straja-ai/harassguard/internal/intel"
	"github.com/straja-ai/harassguard/internal/safety"
	"github.com/straja-ai/harassguard/internal/taxonomy"
)

func testParams(level string) BuildParams {
	return BuildParams{
		RequestID:    "req-1",
		CaseID:       "case-1",
		Text:         "My manager touched me, call me on 9876543210",
		LoggingLevel: level,
		Verdict: safety.Verdict{
			Likely:   true,
			Severity: 65,
			Path:     safety.PathRules,
			Signals: []safety.DetectionSignal{
				{Category: string(taxonomy.Workplace), Source: safety.SourceRules, Confidence: 1, Evidence: "manager"},
			},
		},
		Detected:    []taxonomy.Category{taxonomy.SexualHarassment, taxonomy.Workplace},
		LawCount:    8,
		Readiness:   20,
		UploadCount: 1,
		Rules:       intel.Status{Enabled: true, BundleID: "default", BundleVersion: "abc123", Patterns: 90},
		Models: classifier.Models{
			Binary:     classifier.Missing[classifier.BinaryModel]{Reason: "models disabled"},
			Multilabel: classifier.Missing[classifier.MultilabelModel]{Reason: "models disabled"},
		},
		Timings: Timings{Rules: 2 * time.Millisecond, Total: 3 * time.Millisecond},
		Now:     time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
	}
}

func TestBuildEventMetadataLevelOmitsText(t *testing.T) {
	ev := BuildEvent(testParams(LevelMetadata))
	if ev.Preview.Incident != "" {
		t.Fatalf("metadata level must not carry incident text, got %q", ev.Preview.Incident)
	}
	want := Summary{
		HarassmentLikely:  true,
		Severity:          65,
		DecisionPath:      "rules",
		Categories:        []string{string(taxonomy.SexualHarassment), string(taxonomy.Workplace)},
		LawCount:          8,
		EvidenceReadiness: 20,
		UploadCount:       1,
	}
	if diff := cmp.Diff(want, ev.Summary); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
	if ev.Models.Binary.Available || ev.Models.Binary.Reason != "models disabled" {
		t.Fatalf("unexpected binary status %+v", ev.Models.Binary)
	}
	if ev.TimingMs.Rules != 2 || ev.TimingMs.Total != 3 {
		t.Fatalf("unexpected timings %+v", ev.TimingMs)
	}
	if ev.RequestID != "req-1" || ev.CaseID != "case-1" || ev.Version != eventVersion {
		t.Fatalf("unexpected identity fields %+v", ev)
	}
}

func TestBuildEventRedactedPreview(t *testing.T) {
	ev := BuildEvent(testParams(LevelRedacted))
	if !strings.Contains(ev.Preview.Incident, "manager touched me") {
		t.Fatalf("expected preview text, got %q", ev.Preview.Incident)
	}
	if strings.Contains(ev.Preview.Incident, "9876543210") {
		t.Fatalf("phone number leaked into preview: %q", ev.Preview.Incident)
	}
}

func TestBuildEventGeneratesRequestID(t *testing.T) {
	p := testParams(LevelMetadata)
	p.RequestID = ""
	if ev := BuildEvent(p); ev.RequestID == "" {
		t.Fatalf("expected generated request id")
	}
}

func TestFileSinkWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.jsonl")

	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("file sink: %v", err)
	}
	for _, id := range []string{"req-1", "req-2"} {
		if err := sink.Deliver(context.Background(), &Event{Version: eventVersion, RequestID: id}); err != nil {
			t.Fatalf("deliver %s: %v", id, err)
		}
	}
	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("close sink: %v", err)
	}
	if err := sink.Deliver(context.Background(), &Event{}); err == nil {
		t.Fatalf("expected deliver after close to fail")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var decoded Event
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("unmarshal jsonl line: %v", err)
	}
	if decoded.RequestID != "req-1" {
		t.Fatalf("expected request_id req-1, got %s", decoded.RequestID)
	}
}

func TestWebhookSinkRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("X-Test") != "1" || r.Header.Get("X-Harassguard-Event-Version") != eventVersion {
			t.Errorf("missing headers: %v", r.Header)
		}
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("fail"))
	}))

	sink, err := NewWebhookSink(srv.URL, map[string]string{"X-Test": "1"}, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("webhook sink: %v", err)
	}
	err = sink.Deliver(context.Background(), &Event{Version: eventVersion, RequestID: "req-1"})
	if err == nil || !strings.Contains(err.Error(), "status") {
		t.Fatalf("expected status error, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestBuildSinks(t *testing.T) {
	dir := t.TempDir()
	sinks, err := BuildSinks([]SinkSpec{
		{Type: SinkFileJSONL, Path: filepath.Join(dir, "a.jsonl")},
		{Type: "WEBHOOK", URL: "http://127.0.0.1:1/hook"},
	})
	if err != nil {
		t.Fatalf("BuildSinks: %v", err)
	}
	if len(sinks) != 2 {
		t.Fatalf("expected 2 sinks, got %d", len(sinks))
	}
	for _, s := range sinks {
		_ = s.Close(context.Background())
	}

	if _, err := BuildSinks([]SinkSpec{{Type: SinkFileJSONL, Path: filepath.Join(dir, "b.jsonl")}, {Type: "kafka"}}); err == nil {
		t.Fatalf("expected error for unknown sink type")
	}
	if _, err := BuildSinks([]SinkSpec{{Type: SinkWebhook}}); err == nil {
		t.Fatalf("expected error for webhook without url")
	}
}

func TestEmitterDropsWhenQueueFull(t *testing.T) {
	wait := make(chan struct{})
	sink := &blockingSink{wait: wait}
	em := NewEmitter(EmitterConfig{QueueSize: 1, Workers: 1, ShutdownTimeout: time.Second}, []Sink{sink})

	ev := &Event{Version: eventVersion, RequestID: "r1"}
	em.Emit(context.Background(), ev)
	em.Emit(context.Background(), ev)
	em.Emit(context.Background(), ev)

	if em.MetricsSnapshot().Dropped() == 0 {
		t.Fatalf("expected dropped events when queue is full")
	}

	close(wait)
	em.Close(context.Background())

	em.Emit(context.Background(), ev)
	if em.MetricsSnapshot().Dropped() < 2 {
		t.Fatalf("emit after close must count as dropped")
	}
}

func TestEmitterWebhookIntegration(t *testing.T) {
	var (
		mu       sync.Mutex
		received []Event
	)
	srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var ev Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err == nil {
			mu.Lock()
			received = append(received, ev)
			mu.Unlock()
		}
		w.WriteHeader(http.StatusOK)
	}))

	sink, err := NewWebhookSink(srv.URL, nil, time.Second)
	if err != nil {
		t.Fatalf("webhook sink: %v", err)
	}
	em := NewEmitter(EmitterConfig{QueueSize: 8, Workers: 2, ShutdownTimeout: time.Second}, []Sink{sink})
	defer em.Close(context.Background())

	ev := BuildEvent(testParams(LevelMetadata))
	for i := 0; i < 5; i++ {
		em.Emit(context.Background(), ev)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n >= 5 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for webhook events, got %d", n)
		}
		time.Sleep(20 * time.Millisecond)
	}

	metrics := em.MetricsSnapshot()
	if metrics.SinkSuccess(sink.Name()) == 0 {
		t.Fatalf("expected sink success counter to increase")
	}
	if metrics.Dropped() != 0 {
		t.Fatalf("did not expect dropped events, got %d", metrics.Dropped())
	}
	mu.Lock()
	defer mu.Unlock()
	if received[0].Summary.DecisionPath != "rules" {
		t.Fatalf("unexpected decoded event %+v", received[0].Summary)
	}
}

type blockingSink struct {
	wait chan struct{}
}

func (s *blockingSink) Name() string { return "blocking" }

func (s *blockingSink) Deliver(context.Context, *Event) error {
	<-s.wait
	return nil
}

func (s *blockingSink) Close(context.Context) error { return nil }

func newTestServer(t *testing.T, h http.Handler) *httptest.Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping: cannot open listener: %v", err)
	}
	srv := httptest.NewUnstartedServer(h)
	srv.Listener = ln
	srv.Start()
	t.Cleanup(srv.Close)
	return srv
}
