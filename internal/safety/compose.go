package safety

import (
	"math"

	"github.com/straja-ai/harassguard/internal/classifier"
	"github.com/straja-ai/harassguard/internal/taxonomy"
)

// Severity contributions of the model outputs.
const (
	binaryWeight       = 35.0
	threatWeight       = 15.0
	obsceneWeight      = 12.0
	identityHateWeight = 10.0
	toxicWeight        = 8.0

	fallbackThreat = 0.55
	fallbackToxic  = 0.80

	MaxSeverity = 100
)

// Inputs are the signals the composer fuses.
type Inputs struct {
	Detected   []taxonomy.Category
	RuleHits   map[taxonomy.Category][]string
	Binary     classifier.BinarySignal
	Multilabel classifier.MultilabelSignal
}

// Compose folds the signals into a bounded severity and a verdict.
//
// Verdict precedence, first match wins:
//  1. binary model positive with probability >= 0.50
//  2. any rule-detected category
//  3. toxicity fallback: threat > 0.55 or toxic > 0.80
//  4. otherwise not likely
//
// The fallback only fires when both stronger signals are silent.
func Compose(tables *taxonomy.Tables, in Inputs) Verdict {
	var (
		severity float64
		signals  []DetectionSignal
	)

	for _, c := range in.Detected {
		severity += float64(tables.Weight(c))
		for _, hit := range in.RuleHits[c] {
			signals = append(signals, DetectionSignal{
				Category:   string(c),
				Source:     SourceRules,
				Confidence: 1.0,
				Evidence:   hit,
			})
		}
	}

	binaryAvailable, binaryPositive := false, false
	switch b := in.Binary.(type) {
	case classifier.BinaryAvailable:
		binaryAvailable = true
		severity += b.Probability * binaryWeight
		binaryPositive = b.Label == 1 && b.Probability >= classifier.BinaryThreshold
		signals = append(signals, DetectionSignal{
			Category:   "harassment",
			Source:     SourceBinary,
			Confidence: b.Probability,
		})
	case classifier.BinaryUnavailable, nil:
	}

	var scores map[string]float64
	switch m := in.Multilabel.(type) {
	case classifier.MultilabelAvailable:
		scores = m.Scores
		severity += scores[classifier.FacetThreat]*threatWeight +
			scores[classifier.FacetObscene]*obsceneWeight +
			scores[classifier.FacetIdentityHate]*identityHateWeight +
			scores[classifier.FacetToxic]*toxicWeight
		for _, f := range classifier.Facets() {
			if v, ok := scores[f]; ok {
				signals = append(signals, DetectionSignal{Category: f, Source: SourceMultilabel, Confidence: v})
			}
		}
	case classifier.MultilabelUnavailable, nil:
	}

	v := Verdict{
		Severity: clamp(int(math.Round(severity)), 0, MaxSeverity),
		Path:     PathNone,
		Signals:  signals,
	}
	if v.Signals == nil {
		v.Signals = []DetectionSignal{}
	}

	switch {
	case binaryPositive:
		v.Likely, v.Path = true, PathBinaryModel
	case len(in.Detected) > 0:
		v.Likely, v.Path = true, PathRules
	// The fallback only speaks when the binary model is silent; an
	// available negative stands.
	case binaryAvailable:
	case scores[classifier.FacetThreat] > fallbackThreat || scores[classifier.FacetToxic] > fallbackToxic:
		v.Likely, v.Path = true, PathToxicityFallback
	}
	return v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
