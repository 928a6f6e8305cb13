package safety

// Signal sources.
const (
	SourceRules      = "rules"
	SourceBinary     = "ml_binary"
	SourceMultilabel = "ml_multilabel"
)

// DetectionSignal captures a single contribution from the rules or a model.
type DetectionSignal struct {
	Category   string  `json:"category"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence,omitempty"`
}

// DecisionPath names the verdict rule that fired.
type DecisionPath string

const (
	PathBinaryModel      DecisionPath = "binary_model"
	PathRules            DecisionPath = "rules"
	PathToxicityFallback DecisionPath = "toxicity_fallback"
	PathNone             DecisionPath = "none"
)

// Verdict is the composer output.
type Verdict struct {
	Likely   bool              `json:"harassment_likely"`
	Severity int               `json:"combined_severity"`
	Path     DecisionPath      `json:"decision_path"`
	Signals  []DetectionSignal `json:"signals"`
}
