package session

// State is the one mutable record shared by the clock, monitor, navigator and
// coordinator. Only the session's dispatch goroutine writes it; components are
// handed a pointer and read it fresh on every event.
type State struct {
	RemainingSeconds int  `json:"remaining_seconds"`
	ViolationCount   int  `json:"violation_count"`
	CurrentIndex     int  `json:"current_index"`
	Started          bool `json:"started"`
	// Submitted is the latch. It flips to true before any submission work
	// starts and only drops back on a failed attempt.
	Submitted bool `json:"submitted"`
	// Closed is set once the gateway acknowledged a submission; the session
	// accepts no further input after that.
	Closed bool `json:"closed"`
}

// Phase names the externally visible terminal condition of a session.
type Phase string

const (
	PhaseNotStarted   Phase = "not_started"
	PhaseInProgress   Phase = "in_progress"
	PhaseSubmitting   Phase = "submitting"
	PhaseSubmitted    Phase = "submitted_success"
	PhasePendingRetry Phase = "submitted_pending_retry"
)

// phase derives the phase; retry is true after at least one rolled-back attempt.
func (s State) phase(retry bool) Phase {
	switch {
	case s.Closed:
		return PhaseSubmitted
	case s.Submitted:
		return PhaseSubmitting
	case !s.Started:
		return PhaseNotStarted
	case retry:
		return PhasePendingRetry
	}
	return PhaseInProgress
}
