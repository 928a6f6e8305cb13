package classifier

import (
	"errors"
	"fmt"
)

// ErrModelsDisabled is returned by the loader when models.backend is "none".
var ErrModelsDisabled = errors.New("models disabled")

// InferenceError wraps a failed model call. The model stays loaded; only
// the current call loses its contribution.
type InferenceError struct {
	Model string
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s inference: %v", e.Model, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }
