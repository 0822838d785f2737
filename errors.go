package termq

import "errors"

// Sentinel errors for commonly checked conditions.
var (
	// ErrInvalidStep indicates a generator yielded an unrecognized step
	// shape. This is a programming error in the generator's callback, not
	// a recoverable runtime condition.
	ErrInvalidStep = errors.New("generator yielded an invalid step")

	// ErrInteractionClosed indicates a closed interaction was resumed.
	// Guards against use-after-close bugs.
	ErrInteractionClosed = errors.New("interaction closed")
)
