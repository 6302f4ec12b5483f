package extraction

import (
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle position of an extraction job. The happy path is
// PENDING → TIER_A_DONE → TIER_B_DONE → TIER_C_DONE → COMPLETED; FAILED is
// the terminal failure state reachable from any non-terminal state.
type State string

const (
	StatePending   State = "PENDING"
	StateTierADone State = "TIER_A_DONE"
	StateTierBDone State = "TIER_B_DONE"
	StateTierCDone State = "TIER_C_DONE"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

var happyPath = map[State]State{
	StatePending:   StateTierADone,
	StateTierADone: StateTierBDone,
	StateTierBDone: StateTierCDone,
	StateTierCDone: StateCompleted,
}

// Terminal reports whether no further transitions are legal from s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanTransition reports whether moving from s to t is legal. Backwards
// transitions are never legal; FAILED is reachable from any live state.
func (s State) CanTransition(t State) bool {
	if s.Terminal() {
		return false
	}
	if t == StateFailed {
		return true
	}
	return happyPath[s] == t
}

// JobError records the last failure of a job: the message, when it happened
// (UTC), and the retry count at the time of failure.
type JobError struct {
	Message    string    `json:"message"`
	FailedAt   time.Time `json:"failed_at"`
	RetryCount int       `json:"retry_count"`
}

// Job tracks one document through the three extraction tiers. The full record
// is persisted to the cache on every state transition; the cache copy is the
// source of truth across retries.
type Job struct {
	JobID        uuid.UUID  `json:"job_id"`
	DocID        uuid.UUID  `json:"doc_id"`
	State        State      `json:"state"`
	TierATriples int        `json:"tier_a_triples"`
	TierBWindows int        `json:"tier_b_windows"`
	TierCTriples int        `json:"tier_c_triples"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	RetryCount   int        `json:"retry_count"`
	Errors       *JobError  `json:"errors,omitempty"`
}

// NewJob returns a fresh PENDING job for doc with zeroed counters.
func NewJob(doc uuid.UUID) *Job {
	return &Job{
		JobID:     uuid.New(),
		DocID:     doc,
		State:     StatePending,
		StartedAt: time.Now().UTC(),
	}
}

// Terminal reports whether the job reached COMPLETED or FAILED.
func (j *Job) Terminal() bool {
	return j.State.Terminal()
}

// Reset discards partial tier progress so an attempt can restart from
// scratch. Retry count and start time are preserved.
func (j *Job) Reset() {
	j.State = StatePending
	j.TierATriples = 0
	j.TierBWindows = 0
	j.TierCTriples = 0
}
