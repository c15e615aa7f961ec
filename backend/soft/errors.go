package soft

import "errors"

// Soft driver errors. Validation failures wrap gpucore sentinels where one
// fits; the remaining cases use these.
var (
	// ErrValidation is returned for calls a validation layer would reject.
	ErrValidation = errors.New("soft: validation failed")

	// ErrInjected is the default error for faults injected with FailNext.
	ErrInjected = errors.New("soft: injected fault")
)
