package league

import "errors"

// Error kinds returned by the engine. Callers match them with errors.Is; the
// wrapped message carries the detail.
var (
	ErrValidation   = errors.New("validation failed")
	ErrInvalidState = errors.New("invalid state")
	ErrNotFound     = errors.New("not found")
	ErrPrecondition = errors.New("precondition failed")
)
