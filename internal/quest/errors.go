package quest

import "errors"

var (
	// ErrNoPersonas means the rotation catalog is empty. Fatal, operator-level.
	ErrNoPersonas = errors.New("no personas available")

	// ErrAssignmentConflict means an assignment race could not be resolved by
	// reading back the winner's row. Transient; callers retry.
	ErrAssignmentConflict = errors.New("assignment conflict")

	// ErrNoActiveQuest means no assignment exists yet for the requested date.
	ErrNoActiveQuest = errors.New("no active quest for date")

	// ErrModelUnavailable means the text-generation service failed. The
	// transcript is unchanged and the same turn may be retried.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrTurnInFlight means a turn for the same (user, date) session is still
	// outstanding. Turns are strictly sequential per session.
	ErrTurnInFlight = errors.New("turn already in flight")
)
