package taboot

import "errors"

var (
	// ErrIllegalTransition is returned when a job would move backwards along
	// the state machine or out of a terminal state.
	ErrIllegalTransition = errors.New("taboot: illegal job state transition")

	// ErrGraphUnavailable is returned when an operation needs the graph
	// store but none is configured.
	ErrGraphUnavailable = errors.New("taboot: graph store not configured")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("taboot: invalid configuration")
)
