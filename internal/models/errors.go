package models

import "errors"

// Error taxonomy for the monitoring core. Detector-level numeric edge
// cases (zero variance, too few samples) are NOT errors: they are
// degenerate-but-valid detection results, because monitoring must never
// crash the serving path it observes.
var (
	// ErrValidation marks a malformed input event. The event is rejected
	// and not stored.
	ErrValidation = errors.New("validation failed")

	// ErrOutOfOrder marks an event whose timestamp regressed relative to
	// the last stored event for the same model version. The event is
	// still stored, tagged out-of-order, to avoid silent data loss.
	ErrOutOfOrder = errors.New("out-of-order event")

	// ErrStorageUnavailable is returned when the persistence substrate
	// cannot be reached. Writes fail closed.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
