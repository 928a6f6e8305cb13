package classifier

// Facet names of the multilabel toxicity model.
const (
	FacetToxic        = "toxic"
	FacetSevereToxic  = "severe_toxic"
	FacetObscene      = "obscene"
	FacetThreat       = "threat"
	FacetInsult       = "insult"
	FacetIdentityHate = "identity_hate"
)

// BinaryThreshold is the probability at or above which the binary label is 1.
const BinaryThreshold = 0.50

var facets = [...]string{
	FacetToxic,
	FacetSevereToxic,
	FacetObscene,
	FacetThreat,
	FacetInsult,
	FacetIdentityHate,
}

// Facets returns the six facet names in model output order.
func Facets() []string {
	out := make([]string, len(facets))
	copy(out, facets[:])
	return out
}

func isFacet(name string) bool {
	for _, f := range facets {
		if f == name {
			return true
		}
	}
	return false
}

// BinaryPrediction is one harassment / no-harassment prediction.
type BinaryPrediction struct {
	Label       int     `json:"label"`
	Probability float64 `json:"probability"`
}

// BinarySignal is the per-call outcome of the binary model:
// BinaryAvailable or BinaryUnavailable.
type BinarySignal interface {
	isBinarySignal()
}

type BinaryAvailable struct {
	Label       int
	Probability float64
}

type BinaryUnavailable struct {
	Reason string
}

func (BinaryAvailable) isBinarySignal()   {}
func (BinaryUnavailable) isBinarySignal() {}

// MultilabelSignal is the per-call outcome of the multilabel model:
// MultilabelAvailable or MultilabelUnavailable.
type MultilabelSignal interface {
	isMultilabelSignal()
}

type MultilabelAvailable struct {
	Scores map[string]float64
}

type MultilabelUnavailable struct {
	Reason string
}

func (MultilabelAvailable) isMultilabelSignal()   {}
func (MultilabelUnavailable) isMultilabelSignal() {}

// Handle is a model slot in one of two states: Ready or Missing.
// The model type is part of the method set, so a Ready[MultilabelModel]
// does not satisfy Handle[BinaryModel].
type Handle[M any] interface {
	model() (M, bool)
}

// Ready holds a loaded model. Source names where it came from
// (bundle version, remote URL).
type Ready[M any] struct {
	Model  M
	Source string
}

// Missing records why a model could not be loaded.
type Missing[M any] struct {
	Reason string
}

func (r Ready[M]) model() (M, bool) { return r.Model, true }

func (Missing[M]) model() (M, bool) {
	var zero M
	return zero, false
}

// HandleStatus renders a handle for status endpoints and events.
type HandleStatus struct {
	Available bool   `json:"available"`
	Source    string `json:"source,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// StatusOf describes h without exposing the model.
func StatusOf[M any](h Handle[M]) HandleStatus {
	switch v := h.(type) {
	case Ready[M]:
		return HandleStatus{Available: true, Source: v.Source}
	case Missing[M]:
		return HandleStatus{Reason: v.Reason}
	default:
		return HandleStatus{Reason: "not loaded"}
	}
}
