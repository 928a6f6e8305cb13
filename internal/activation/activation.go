package activation

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/straja-ai/harassguard/internal/classifier"
	"github.com/straja-ai/harassguard/internal/intel"
	"github.com/straja-ai/harassguard/internal/redact"
	"github.com/straja-ai/harassguard/internal/safety"
	"github.com/straja-ai/harassguard/internal/taxonomy"
)

const eventVersion = "1"

// Logging levels for incident text in events.
const (
	LevelMetadata = "metadata"
	LevelRedacted = "redacted"
)

const previewRunes = 200

// Summary is the verdict part of an event.
type Summary struct {
	HarassmentLikely  bool     `json:"harassment_likely"`
	Severity          int      `json:"combined_severity"`
	DecisionPath      string   `json:"decision_path"`
	Categories        []string `json:"categories"`
	LawCount          int      `json:"law_count"`
	EvidenceReadiness int      `json:"evidence_readiness"`
	UploadCount       int      `json:"upload_count"`
}

// RulesInfo identifies the rule tables used.
type RulesInfo struct {
	BundleID      string `json:"bundle_id"`
	BundleVersion string `json:"bundle_version"`
	Patterns      int    `json:"patterns"`
}

// ModelsInfo reports which classifiers took part.
type ModelsInfo struct {
	Rules      RulesInfo               `json:"rules"`
	Binary     classifier.HandleStatus `json:"binary"`
	Multilabel classifier.HandleStatus `json:"multilabel"`
}

// Preview holds the optional redacted incident excerpt.
type Preview struct {
	Incident string `json:"incident,omitempty"`
}

// TimingMs breaks down analysis latency.
type TimingMs struct {
	Rules  float64 `json:"rules"`
	Models float64 `json:"models"`
	Total  float64 `json:"total"`
}

// Event is the activation payload emitted after each analysis.
type Event struct {
	Version   string                   `json:"version"`
	Timestamp time.Time                `json:"timestamp"`
	RequestID string                   `json:"request_id"`
	CaseID    string                   `json:"case_id,omitempty"`
	Summary   Summary                  `json:"summary"`
	Models    ModelsInfo               `json:"models"`
	Signals   []safety.DetectionSignal `json:"signals"`
	Preview   Preview                  `json:"preview"`
	TimingMs  TimingMs                 `json:"timing_ms"`
}

// Timings are the measured durations of one analysis.
type Timings struct {
	Rules  time.Duration
	Models time.Duration
	Total  time.Duration
}

// BuildParams collects what BuildEvent needs.
type BuildParams struct {
	RequestID    string
	CaseID       string
	Text         string
	LoggingLevel string
	Verdict      safety.Verdict
	Detected     []taxonomy.Category
	LawCount     int
	Readiness    int
	UploadCount  int
	Rules        intel.Status
	Models       classifier.Models
	Timings      Timings
	Now          time.Time
}

// BuildEvent assembles an analysis event. Incident text only appears as a
// redacted preview, and only at LevelRedacted.
func BuildEvent(p BuildParams) *Event {
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}

	categories := make([]string, 0, len(p.Detected))
	for _, c := range p.Detected {
		categories = append(categories, string(c))
	}

	signals := make([]safety.DetectionSignal, 0, len(p.Verdict.Signals))
	for _, s := range p.Verdict.Signals {
		s.Evidence = redact.String(s.Evidence)
		signals = append(signals, s)
	}

	ev := &Event{
		Version:   eventVersion,
		Timestamp: now.UTC(),
		RequestID: ensureRequestID(p.RequestID),
		CaseID:    p.CaseID,
		Summary: Summary{
			HarassmentLikely:  p.Verdict.Likely,
			Severity:          p.Verdict.Severity,
			DecisionPath:      string(p.Verdict.Path),
			Categories:        categories,
			LawCount:          p.LawCount,
			EvidenceReadiness: p.Readiness,
			UploadCount:       p.UploadCount,
		},
		Models: ModelsInfo{
			Rules: RulesInfo{
				BundleID:      p.Rules.BundleID,
				BundleVersion: p.Rules.BundleVersion,
				Patterns:      p.Rules.Patterns,
			},
			Binary:     classifier.StatusOf[classifier.BinaryModel](p.Models.Binary),
			Multilabel: classifier.StatusOf[classifier.MultilabelModel](p.Models.Multilabel),
		},
		Signals: signals,
		TimingMs: TimingMs{
			Rules:  durationMillis(p.Timings.Rules),
			Models: durationMillis(p.Timings.Models),
			Total:  durationMillis(p.Timings.Total),
		},
	}
	if normalizeLevel(p.LoggingLevel) == LevelRedacted {
		ev.Preview.Incident = redact.Preview(p.Text, previewRunes)
	}
	return ev
}

// LogEvent prints a redacted JSON representation of the event.
func LogEvent(ev *Event) {
	if ev == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		redact.Logf("activation: failed to marshal event: %v", err)
		return
	}
	redact.Logf("activation: %s", string(data))
}

func normalizeLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case LevelRedacted:
		return LevelRedacted
	default:
		return LevelMetadata
	}
}

func ensureRequestID(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return uuid.NewString()
}

func durationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
