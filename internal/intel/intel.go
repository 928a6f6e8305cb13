package intel

import "github.com/straja-ai/harassguard/internal/taxonomy"

// DetectionResult is the rule matcher output for one text.
// Detected follows table order and never repeats; Hits holds every matching
// pattern per category in pattern order.
type DetectionResult struct {
	Detected []taxonomy.Category            `json:"detected"`
	Hits     map[taxonomy.Category][]string `json:"hits"`
}

// Has reports whether c was detected.
func (r DetectionResult) Has(c taxonomy.Category) bool {
	_, ok := r.Hits[c]
	return ok
}

// Status describes the loaded rule bundle.
type Status struct {
	Enabled       bool   `json:"enabled"`
	BundleID      string `json:"bundle_id"`
	BundleVersion string `json:"bundle_version"`
	Patterns      int    `json:"patterns"`
}

// Detector is the rule-matching interface consumed by the analyzer.
type Detector interface {
	Status() Status
	Detect(text string) DetectionResult
}
