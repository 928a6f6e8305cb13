package classifier

import (
	"context"
	"fmt"
	"math"
)

// BinaryModel predicts whether a text describes harassment.
type BinaryModel interface {
	PredictBinary(ctx context.Context, text string) (BinaryPrediction, error)
}

// MultilabelModel scores a text on the toxicity facets.
type MultilabelModel interface {
	PredictMultilabel(ctx context.Context, text string) (map[string]float64, error)
}

const (
	modelBinary     = "binary"
	modelMultilabel = "multilabel"
)

// CallBinary runs one binary prediction. Panics, errors and out-of-range
// probabilities come back as *InferenceError. The label is always derived
// from the probability.
func CallBinary(ctx context.Context, m BinaryModel, text string) (pred BinaryPrediction, ierr *InferenceError) {
	defer func() {
		if r := recover(); r != nil {
			pred = BinaryPrediction{}
			ierr = &InferenceError{Model: modelBinary, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	out, err := m.PredictBinary(ctx, text)
	if err != nil {
		return BinaryPrediction{}, &InferenceError{Model: modelBinary, Err: err}
	}
	if !validProbability(out.Probability) {
		return BinaryPrediction{}, &InferenceError{Model: modelBinary, Err: fmt.Errorf("probability %v out of range", out.Probability)}
	}
	out.Label = 0
	if out.Probability >= BinaryThreshold {
		out.Label = 1
	}
	return out, nil
}

// CallMultilabel runs one multilabel prediction. Only the six known facets
// are kept; any invalid facet score fails the whole call.
func CallMultilabel(ctx context.Context, m MultilabelModel, text string) (scores map[string]float64, ierr *InferenceError) {
	defer func() {
		if r := recover(); r != nil {
			scores = nil
			ierr = &InferenceError{Model: modelMultilabel, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	raw, err := m.PredictMultilabel(ctx, text)
	if err != nil {
		return nil, &InferenceError{Model: modelMultilabel, Err: err}
	}
	out := make(map[string]float64, len(facets))
	for k, v := range raw {
		if !isFacet(k) {
			continue
		}
		if !validProbability(v) {
			return nil, &InferenceError{Model: modelMultilabel, Err: fmt.Errorf("facet %s score %v out of range", k, v)}
		}
		out[k] = v
	}
	return out, nil
}

func validProbability(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 1
}

// PredictBinary resolves a binary handle into a per-call signal.
func PredictBinary(ctx context.Context, h Handle[BinaryModel], text string) BinarySignal {
	switch v := h.(type) {
	case Ready[BinaryModel]:
		pred, ierr := CallBinary(ctx, v.Model, text)
		if ierr != nil {
			return BinaryUnavailable{Reason: ierr.Error()}
		}
		return BinaryAvailable{Label: pred.Label, Probability: pred.Probability}
	case Missing[BinaryModel]:
		return BinaryUnavailable{Reason: v.Reason}
	default:
		return BinaryUnavailable{Reason: "binary model not loaded"}
	}
}

// PredictMultilabel resolves a multilabel handle into a per-call signal.
func PredictMultilabel(ctx context.Context, h Handle[MultilabelModel], text string) MultilabelSignal {
	switch v := h.(type) {
	case Ready[MultilabelModel]:
		scores, ierr := CallMultilabel(ctx, v.Model, text)
		if ierr != nil {
			return MultilabelUnavailable{Reason: ierr.Error()}
		}
		return MultilabelAvailable{Scores: scores}
	case Missing[MultilabelModel]:
		return MultilabelUnavailable{Reason: v.Reason}
	default:
		return MultilabelUnavailable{Reason: "multilabel model not loaded"}
	}
}
