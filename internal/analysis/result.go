package analysis

import (
	"github.com/straja-ai/harassguard/internal/safety"
	"github.com/straja-ai/harassguard/internal/taxonomy"
)

// Result is the immutable outcome of one analysis. It carries no timestamps
// or ids, so identical inputs with identical model state serialise to
// identical bytes.
type Result struct {
	HarassmentLikely  bool                           `json:"harassment_likely"`
	CombinedSeverity  int                            `json:"combined_severity"`
	DetectedTypes     []taxonomy.Category            `json:"detected_types"`
	RuleHits          map[taxonomy.Category][]string `json:"rule_hits"`
	MLProbs           map[string]float64             `json:"ml_probs"`
	Laws              []taxonomy.LawEntry            `json:"laws"`
	BinaryPred        *int                           `json:"binary_pred"`
	BinaryProb        *float64                       `json:"binary_prob"`
	EvidenceChecklist []string                       `json:"evidence_checklist"`
	MissingEvidence   []string                       `json:"missing_evidence"`
	EvidenceReadiness int                            `json:"evidence_readiness"`
	DecisionPath      safety.DecisionPath            `json:"decision_path"`
}
