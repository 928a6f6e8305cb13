package analysis

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/straja-ai/harassguard/internal/activation"
	"github.com/straja-ai/harassguard/internal/classifier"
	"github.com/straja-ai/harassguard/internal/evidence"
	"github.com/straja-ai/harassguard/internal/intel"
	"github.com/straja-ai/harassguard/internal/laws"
	"github.com/straja-ai/harassguard/internal/redact"
	"github.com/straja-ai/harassguard/internal/safety"
	"github.com/straja-ai/harassguard/internal/taxonomy"
	"github.com/straja-ai/harassguard/internal/telemetry"
)

const (
	modelBinary     = "binary"
	modelMultilabel = "multilabel"
)

// ModelSource hands out the current classifier handles.
// *classifier.Registry satisfies it.
type ModelSource interface {
	Models(ctx context.Context) classifier.Models
}

// Options carries the optional ambient collaborators.
type Options struct {
	Telemetry    *telemetry.Provider
	Emitter      *activation.Emitter
	LoggingLevel string
}

// Analyzer runs the full pipeline: rules, classifiers, composer, laws and
// evidence readiness. It is safe for concurrent use.
type Analyzer struct {
	tables   *taxonomy.Tables
	detector intel.Detector
	models   ModelSource

	tel          *telemetry.Provider
	emitter      *activation.Emitter
	loggingLevel string
}

// Request is one analysis invocation. RequestID and CaseID only label the
// activation event.
type Request struct {
	Text      string
	Uploads   []evidence.UploadRecord
	RequestID string
	CaseID    string
}

// Status reports what the analyzer is running with.
type Status struct {
	Rules  intel.Status                       `json:"rules"`
	Models map[string]classifier.HandleStatus `json:"models"`
}

// New builds an analyzer. A nil models source runs rules-only.
func New(tables *taxonomy.Tables, detector intel.Detector, models ModelSource, opts Options) *Analyzer {
	tel := opts.Telemetry
	if tel == nil {
		tel = telemetry.Noop()
	}
	return &Analyzer{
		tables:       tables,
		detector:     detector,
		models:       models,
		tel:          tel,
		emitter:      opts.Emitter,
		loggingLevel: opts.LoggingLevel,
	}
}

// Analyze is the entry point: it always returns a well-formed Result.
func (a *Analyzer) Analyze(ctx context.Context, text string, uploads []evidence.UploadRecord) Result {
	return a.Run(ctx, Request{Text: text, Uploads: uploads})
}

// Status describes the rule tables and both model handles.
func (a *Analyzer) Status(ctx context.Context) Status {
	return Status{
		Rules:  a.detector.Status(),
		Models: a.currentModels(ctx).Status(),
	}
}

// Run analyses req and emits the ambient telemetry and activation event.
func (a *Analyzer) Run(ctx context.Context, req Request) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	ctx, span := a.tel.Tracer().Start(ctx, "harassguard.analyze")
	defer span.End()

	rulesStart := time.Now()
	detection := a.detector.Detect(req.Text)
	rulesDur := time.Since(rulesStart)

	var (
		binary     classifier.BinarySignal     = classifier.BinaryUnavailable{Reason: "empty text"}
		multilabel classifier.MultilabelSignal = classifier.MultilabelUnavailable{Reason: "empty text"}
		models     classifier.Models
		modelsDur  time.Duration
	)
	if strings.TrimSpace(req.Text) != "" {
		models = a.currentModels(ctx)
		modelsStart := time.Now()
		binary = a.predictBinary(ctx, models.Binary, req.Text)
		multilabel = a.predictMultilabel(ctx, models.Multilabel, req.Text)
		modelsDur = time.Since(modelsStart)
	}

	verdict := safety.Compose(a.tables, safety.Inputs{
		Detected:   detection.Detected,
		RuleHits:   detection.Hits,
		Binary:     binary,
		Multilabel: multilabel,
	})
	readiness := evidence.Score(a.tables, detection.Detected, req.Uploads)

	res := Result{
		HarassmentLikely:  verdict.Likely,
		CombinedSeverity:  verdict.Severity,
		DetectedTypes:     detection.Detected,
		RuleHits:          detection.Hits,
		MLProbs:           map[string]float64{},
		Laws:              laws.Map(a.tables, detection.Detected),
		EvidenceChecklist: readiness.Checklist,
		MissingEvidence:   readiness.Missing,
		EvidenceReadiness: readiness.Readiness,
		DecisionPath:      verdict.Path,
	}
	if b, ok := binary.(classifier.BinaryAvailable); ok {
		label, prob := b.Label, b.Probability
		res.BinaryPred, res.BinaryProb = &label, &prob
	}
	if m, ok := multilabel.(classifier.MultilabelAvailable); ok {
		for k, v := range m.Scores {
			res.MLProbs[k] = v
		}
	}

	total := time.Since(start)
	a.record(ctx, span, req, res, verdict, models, activation.Timings{Rules: rulesDur, Models: modelsDur, Total: total})
	return res
}

func (a *Analyzer) currentModels(ctx context.Context) classifier.Models {
	if a.models == nil {
		return classifier.Models{
			Binary:     classifier.Missing[classifier.BinaryModel]{Reason: classifier.ErrModelsDisabled.Error()},
			Multilabel: classifier.Missing[classifier.MultilabelModel]{Reason: classifier.ErrModelsDisabled.Error()},
		}
	}
	return a.models.Models(ctx)
}

func (a *Analyzer) predictBinary(ctx context.Context, h classifier.Handle[classifier.BinaryModel], text string) classifier.BinarySignal {
	start := time.Now()
	sig := classifier.PredictBinary(ctx, h, text)
	switch s := sig.(type) {
	case classifier.BinaryAvailable:
		a.tel.RecordInference(ctx, modelBinary, msSince(start))
	case classifier.BinaryUnavailable:
		a.tel.RecordModelUnavailable(ctx, modelBinary)
		if _, ready := h.(classifier.Ready[classifier.BinaryModel]); ready {
			redact.Logf("analysis: binary inference failed: %s", s.Reason)
		}
	}
	return sig
}

func (a *Analyzer) predictMultilabel(ctx context.Context, h classifier.Handle[classifier.MultilabelModel], text string) classifier.MultilabelSignal {
	start := time.Now()
	sig := classifier.PredictMultilabel(ctx, h, text)
	switch s := sig.(type) {
	case classifier.MultilabelAvailable:
		a.tel.RecordInference(ctx, modelMultilabel, msSince(start))
	case classifier.MultilabelUnavailable:
		a.tel.RecordModelUnavailable(ctx, modelMultilabel)
		if _, ready := h.(classifier.Ready[classifier.MultilabelModel]); ready {
			redact.Logf("analysis: multilabel inference failed: %s", s.Reason)
		}
	}
	return sig
}

func (a *Analyzer) record(ctx context.Context, span trace.Span, req Request, res Result, verdict safety.Verdict, models classifier.Models, timings activation.Timings) {
	categories := make([]string, 0, len(res.DetectedTypes))
	for _, c := range res.DetectedTypes {
		categories = append(categories, string(c))
	}

	span.SetAttributes(telemetry.SafeAttributes(map[string]any{
		"harassguard.likely":        res.HarassmentLikely,
		"harassguard.severity":      res.CombinedSeverity,
		"harassguard.decision_path": string(res.DecisionPath),
		"harassguard.categories":    categories,
		"harassguard.readiness":     res.EvidenceReadiness,
		"harassguard.uploads":       len(req.Uploads),
	})...)
	span.SetStatus(codes.Ok, "")

	a.tel.RecordAnalysis(ctx, telemetry.AnalysisMetrics{
		Likely:       res.HarassmentLikely,
		DecisionPath: string(res.DecisionPath),
		DurationMs:   float64(timings.Total) / float64(time.Millisecond),
		Categories:   categories,
	})

	redact.Logf("analysis: likely=%t severity=%d path=%s categories=%d readiness=%d uploads=%d total_ms=%.2f",
		res.HarassmentLikely, res.CombinedSeverity, res.DecisionPath, len(categories), res.EvidenceReadiness, len(req.Uploads),
		float64(timings.Total)/float64(time.Millisecond))

	if a.emitter == nil {
		return
	}
	a.emitter.Emit(ctx, activation.BuildEvent(activation.BuildParams{
		RequestID:    req.RequestID,
		CaseID:       req.CaseID,
		Text:         req.Text,
		LoggingLevel: a.loggingLevel,
		Verdict:      verdict,
		Detected:     res.DetectedTypes,
		LawCount:     len(res.Laws),
		Readiness:    res.EvidenceReadiness,
		UploadCount:  len(req.Uploads),
		Rules:        a.detector.Status(),
		Models:       models,
		Timings:      timings,
	}))
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t)) / float64(time.Millisecond)
}
