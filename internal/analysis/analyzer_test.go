package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/straja-ai/harassguard/internal/activation"
	"github.com/straja-ai/harassguard/internal/classifier"
	"github.com/straja-ai/harassguard/internal/evidence"
	"github.com/straja-ai/harassguard/internal/intel"
	"github.com/straja-ai/harassguard/internal/mockscorer"
	"github.com/straja-ai/harassguard/internal/safety"
	"github.com/straja-ai/harassguard/internal/taxonomy"
)

type stubBinary struct {
	pred  classifier.BinaryPrediction
	err   error
	calls *int
}

func (s stubBinary) PredictBinary(context.Context, string) (classifier.BinaryPrediction, error) {
	if s.calls != nil {
		*s.calls++
	}
	return s.pred, s.err
}

type stubMultilabel struct {
	scores map[string]float64
	panics bool
}

func (s stubMultilabel) PredictMultilabel(context.Context, string) (map[string]float64, error) {
	if s.panics {
		panic("tensor shape mismatch")
	}
	return s.scores, nil
}

type staticModels classifier.Models

func (m staticModels) Models(context.Context) classifier.Models { return classifier.Models(m) }

func missingModels() staticModels {
	return staticModels{
		Binary:     classifier.Missing[classifier.BinaryModel]{Reason: "no model files"},
		Multilabel: classifier.Missing[classifier.MultilabelModel]{Reason: "no model files"},
	}
}

func newAnalyzer(t *testing.T, models ModelSource, opts Options) *Analyzer {
	t.Helper()
	tables := taxonomy.Default()
	m, err := intel.NewMatcher(tables)
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	return New(tables, m, models, opts)
}

func TestScenarioManagerTouching(t *testing.T) {
	a := newAnalyzer(t, nil, Options{})
	res := a.Analyze(context.Background(), "My manager touched me inappropriately in the office", nil)

	want := []taxonomy.Category{taxonomy.SexualHarassment, taxonomy.Workplace}
	if diff := cmp.Diff(want, res.DetectedTypes); diff != "" {
		t.Fatalf("detected mismatch (-want +got):\n%s", diff)
	}
	if !res.HarassmentLikely || res.DecisionPath != safety.PathRules {
		t.Fatalf("expected rules verdict, got likely=%v path=%s", res.HarassmentLikely, res.DecisionPath)
	}
	if res.CombinedSeverity < 45 {
		t.Fatalf("severity = %d, want >= 45", res.CombinedSeverity)
	}
	if res.BinaryPred != nil || res.BinaryProb != nil || len(res.MLProbs) != 0 {
		t.Fatalf("model fields must be empty without models: %+v", res)
	}

	baseline := taxonomy.Default().BaselineLaws()
	if diff := cmp.Diff(baseline, res.Laws[:len(baseline)]); diff != "" {
		t.Fatalf("baseline laws must lead (-want +got):\n%s", diff)
	}
	seen := map[string]bool{}
	for _, l := range res.Laws {
		if seen[l.SectionID] {
			t.Fatalf("duplicate law section %s", l.SectionID)
		}
		seen[l.SectionID] = true
	}
}

func TestScenarioEmptyText(t *testing.T) {
	calls := 0
	models := staticModels{
		Binary:     classifier.Ready[classifier.BinaryModel]{Model: stubBinary{pred: classifier.BinaryPrediction{Label: 1, Probability: 0.9}, calls: &calls}},
		Multilabel: classifier.Missing[classifier.MultilabelModel]{Reason: "off"},
	}
	a := newAnalyzer(t, models, Options{})

	for _, text := range []string{"", "   \n\t"} {
		res := a.Analyze(context.Background(), text, nil)
		if len(res.DetectedTypes) != 0 || res.HarassmentLikely || res.CombinedSeverity != 0 {
			t.Fatalf("unexpected result for %q: %+v", text, res)
		}
		if diff := cmp.Diff(taxonomy.Default().BaselineLaws(), res.Laws); diff != "" {
			t.Fatalf("expected baseline laws only (-want +got):\n%s", diff)
		}
		if res.EvidenceReadiness != evidence.BaselineWithoutUploads {
			t.Fatalf("readiness = %d", res.EvidenceReadiness)
		}
	}
	if calls != 0 {
		t.Fatalf("models must not be called for blank text, got %d calls", calls)
	}
}

func TestScenarioStalkingRulesOnly(t *testing.T) {
	a := newAnalyzer(t, missingModels(), Options{})
	res := a.Analyze(context.Background(), "he keeps calling me and followed me home", nil)

	if diff := cmp.Diff([]taxonomy.Category{taxonomy.Stalking}, res.DetectedTypes); diff != "" {
		t.Fatalf("detected mismatch (-want +got):\n%s", diff)
	}
	if !res.HarassmentLikely || res.DecisionPath != safety.PathRules {
		t.Fatalf("expected rules verdict, got %+v", res)
	}
	if len(res.MLProbs) != 0 || res.BinaryPred != nil {
		t.Fatalf("model outputs must be empty: %+v", res)
	}
}

func TestScenarioToxicityFallback(t *testing.T) {
	models := staticModels{
		Binary: classifier.Missing[classifier.BinaryModel]{Reason: "off"},
		Multilabel: classifier.Ready[classifier.MultilabelModel]{Model: stubMultilabel{scores: map[string]float64{
			"toxic": 0.85, "severe_toxic": 0.2, "obscene": 0, "threat": 0.1, "insult": 0.6, "identity_hate": 0,
		}}},
	}
	a := newAnalyzer(t, models, Options{})
	res := a.Analyze(context.Background(), "you are worthless and pathetic", nil)

	if len(res.DetectedTypes) != 0 {
		t.Fatalf("expected no rule detections, got %v", res.DetectedTypes)
	}
	if !res.HarassmentLikely || res.DecisionPath != safety.PathToxicityFallback {
		t.Fatalf("expected fallback verdict, got likely=%v path=%s", res.HarassmentLikely, res.DecisionPath)
	}
	// 0.1*15 + 0.85*8 = 8.3
	if res.CombinedSeverity != 8 {
		t.Fatalf("severity = %d, want 8", res.CombinedSeverity)
	}
	if len(res.MLProbs) != 6 || res.MLProbs["toxic"] != 0.85 {
		t.Fatalf("unexpected ml_probs %v", res.MLProbs)
	}
}

func TestScenarioEvidenceReadiness(t *testing.T) {
	a := newAnalyzer(t, nil, Options{})
	res := a.Analyze(context.Background(), "He groped me at the bus stop", []evidence.UploadRecord{{OriginalName: "photo.jpg"}})

	if diff := cmp.Diff([]taxonomy.Category{taxonomy.SexualHarassment}, res.DetectedTypes); diff != "" {
		t.Fatalf("detected mismatch (-want +got):\n%s", diff)
	}
	var screenshot, cctv bool
	for _, item := range res.EvidenceChecklist {
		lower := strings.ToLower(item)
		screenshot = screenshot || strings.Contains(lower, "screenshot")
		cctv = cctv || strings.Contains(lower, "cctv")
	}
	if !screenshot || !cctv {
		t.Fatalf("checklist missing screenshot or cctv items: %v", res.EvidenceChecklist)
	}
	for _, m := range res.MissingEvidence {
		if strings.Contains(strings.ToLower(m), "screenshot") {
			t.Fatalf("screenshot item should be satisfied by photo.jpg")
		}
	}
	if res.EvidenceReadiness <= 0 || res.EvidenceReadiness >= 100 {
		t.Fatalf("readiness = %d, want strictly between 0 and 100", res.EvidenceReadiness)
	}
}

func TestBinaryModelFieldsSetTogether(t *testing.T) {
	models := staticModels{
		Binary:     classifier.Ready[classifier.BinaryModel]{Model: stubBinary{pred: classifier.BinaryPrediction{Label: 1, Probability: 0.72}}},
		Multilabel: classifier.Missing[classifier.MultilabelModel]{Reason: "off"},
	}
	a := newAnalyzer(t, models, Options{})
	res := a.Analyze(context.Background(), "you are worthless and pathetic", nil)

	if res.BinaryPred == nil || res.BinaryProb == nil {
		t.Fatalf("binary fields must be set together: %+v", res)
	}
	if *res.BinaryPred != 1 || *res.BinaryProb != 0.72 {
		t.Fatalf("unexpected binary output %d %v", *res.BinaryPred, *res.BinaryProb)
	}
	if res.DecisionPath != safety.PathBinaryModel || res.CombinedSeverity != 25 {
		t.Fatalf("unexpected verdict path=%s severity=%d", res.DecisionPath, res.CombinedSeverity)
	}
}

func TestInferenceFailuresDegradeToRules(t *testing.T) {
	models := staticModels{
		Binary:     classifier.Ready[classifier.BinaryModel]{Model: stubBinary{err: errors.New("session closed")}},
		Multilabel: classifier.Ready[classifier.MultilabelModel]{Model: stubMultilabel{panics: true}},
	}
	a := newAnalyzer(t, models, Options{})
	res := a.Analyze(context.Background(), "he threatened to kill me", nil)

	if res.BinaryPred != nil || res.BinaryProb != nil || len(res.MLProbs) != 0 {
		t.Fatalf("failed inferences must leave model fields empty: %+v", res)
	}
	if !res.HarassmentLikely || res.DecisionPath != safety.PathRules {
		t.Fatalf("expected rules verdict, got %+v", res)
	}
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	models := staticModels{
		Binary: classifier.Ready[classifier.BinaryModel]{Model: stubBinary{pred: classifier.BinaryPrediction{Label: 0, Probability: 0.31}}},
		Multilabel: classifier.Ready[classifier.MultilabelModel]{Model: stubMultilabel{scores: map[string]float64{
			"toxic": 0.4, "severe_toxic": 0.1, "obscene": 0.2, "threat": 0.3, "insult": 0.5, "identity_hate": 0.05,
		}}},
	}
	a := newAnalyzer(t, models, Options{})
	uploads := []evidence.UploadRecord{{OriginalName: "chat.txt", SizeKB: 1.5, UploadedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}}
	text := "My boss keeps texting me, called me stupid and threatened to leak my private photos"

	first, err := json.Marshal(a.Analyze(context.Background(), text, uploads))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	second, err := json.Marshal(a.Analyze(context.Background(), text, uploads))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("results differ:\n%s\n%s", first, second)
	}

	var decoded Result
	if err := json.Unmarshal(first, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(a.Analyze(context.Background(), text, uploads), decoded); diff != "" {
		t.Fatalf("json round trip lost data (-want +got):\n%s", diff)
	}
}

func TestAddingPhraseIsMonotonic(t *testing.T) {
	a := newAnalyzer(t, nil, Options{})
	texts := []string{
		"my supervisor shouted at me",
		"my supervisor shouted at me and keeps calling",
		"my supervisor shouted at me and keeps calling, he threatened me",
		"my supervisor shouted at me and keeps calling, he threatened me and wants money",
		"my supervisor shouted at me and keeps calling, he threatened me and wants money, you idiot",
	}
	var prev Result
	for i, text := range texts {
		res := a.Analyze(context.Background(), text, nil)
		if i > 0 {
			for _, c := range prev.DetectedTypes {
				if !containsCategory(res.DetectedTypes, c) {
					t.Fatalf("category %s disappeared after %q", c, text)
				}
			}
			if res.CombinedSeverity < prev.CombinedSeverity {
				t.Fatalf("severity decreased from %d to %d after %q", prev.CombinedSeverity, res.CombinedSeverity, text)
			}
			if len(res.DetectedTypes) <= len(prev.DetectedTypes) {
				t.Fatalf("expected a new category after %q", text)
			}
		}
		if res.CombinedSeverity < 0 || res.CombinedSeverity > 100 {
			t.Fatalf("severity out of range: %d", res.CombinedSeverity)
		}
		prev = res
	}
}

func TestRunEmitsActivationEvent(t *testing.T) {
	sink := &captureSink{}
	em := activation.NewEmitter(activation.EmitterConfig{QueueSize: 4, Workers: 1, ShutdownTimeout: time.Second}, []activation.Sink{sink})
	a := newAnalyzer(t, missingModels(), Options{Emitter: em, LoggingLevel: activation.LevelMetadata})

	a.Run(context.Background(), Request{Text: "he keeps calling me", RequestID: "req-9", CaseID: "case-9"})
	em.Close(context.Background())

	events := sink.events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.RequestID != "req-9" || ev.CaseID != "case-9" {
		t.Fatalf("unexpected ids %s %s", ev.RequestID, ev.CaseID)
	}
	if ev.Preview.Incident != "" {
		t.Fatalf("metadata level leaked incident text")
	}
	if ev.Summary.DecisionPath != string(safety.PathRules) || ev.Models.Binary.Available {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestStatus(t *testing.T) {
	a := newAnalyzer(t, missingModels(), Options{})
	st := a.Status(context.Background())
	if !st.Rules.Enabled || st.Rules.Patterns == 0 {
		t.Fatalf("unexpected rules status %+v", st.Rules)
	}
	if st.Models["binary"].Available || st.Models["binary"].Reason != "no model files" {
		t.Fatalf("unexpected model status %+v", st.Models)
	}
}

func containsCategory(list []taxonomy.Category, c taxonomy.Category) bool {
	for _, v := range list {
		if v == c {
			return true
		}
	}
	return false
}

type captureSink struct {
	mu  sync.Mutex
	got []activation.Event
}

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) Deliver(_ context.Context, ev *activation.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, *ev)
	return nil
}

func (s *captureSink) Close(context.Context) error { return nil }

func (s *captureSink) events() []activation.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]activation.Event(nil), s.got...)
}

func TestHTTPBackendAgainstMockScorer(t *testing.T) {
	srv := httptest.NewServer(mockscorer.Handler(0))
	defer srv.Close()

	loader, err := classifier.NewLoader(classifier.LoaderConfig{Backend: classifier.BackendHTTP, HTTPBaseURL: srv.URL, HTTPTimeout: time.Second})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	reg := classifier.NewRegistry(loader)
	defer reg.Close()

	a := newAnalyzer(t, reg, Options{})
	res := a.Analyze(context.Background(), "he said he would kill me if I told anyone", nil)

	if res.BinaryPred == nil || *res.BinaryPred != 1 || res.BinaryProb == nil || *res.BinaryProb != 0.9 {
		t.Fatalf("unexpected binary fields pred=%v prob=%v", res.BinaryPred, res.BinaryProb)
	}
	if res.DecisionPath != safety.PathBinaryModel || !res.HarassmentLikely {
		t.Fatalf("unexpected verdict %+v", res)
	}
	if len(res.MLProbs) != len(classifier.Facets()) {
		t.Fatalf("expected every facet scored, got %v", res.MLProbs)
	}
}
