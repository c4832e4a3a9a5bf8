package schedule

import "errors"

// Error conditions surfaced by the scheduler, the executor and the failover
// controller. Callers match them with errors.Is.
var (
	ErrStoreUnavailable     = errors.New("store unavailable")
	ErrLoginInvalid         = errors.New("login invalid")
	ErrPublishFailed        = errors.New("publish failed")
	ErrInvalidTimeFormat    = errors.New("invalid time format")
	ErrInsufficientTopology = errors.New("insufficient database topology")
	ErrCutoverAborted       = errors.New("database cutover aborted")
	ErrNotFound             = errors.New("item not found")
)
