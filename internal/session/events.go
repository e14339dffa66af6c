package session

import (
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Event is anything delivered to the session's dispatch loop. Inputs from
// the rendering surface, ticks and network completions all arrive this way.
type Event interface {
	event()
}

// ─── Input events ───────────────────────────────────────────────────

// Start begins the countdown and shows the first question.
type Start struct{}

// Tick is one second of the clock's tick source.
type Tick struct{ At time.Time }

// Visibility reports the exam window becoming hidden or visible again.
type Visibility struct{ Hidden bool }

// Next moves to the following question.
type Next struct{}

// Previous moves to the preceding question.
type Previous struct{}

// Jump moves to the question at Index (0-based position).
type Jump struct{ Index int }

// JumpFirstUnanswered moves to the lowest-positioned unanswered question.
type JumpFirstUnanswered struct{}

// Select records Option for the question with QuestionID.
type Select struct {
	QuestionID int
	Option     int
}

// Shortcut is a numeric key press ("1".."4") selecting an option of the
// current question. Ignored unless shortcuts are enabled.
type Shortcut struct{ Digit int }

// ToggleReview flips the review mark of the current question.
type ToggleReview struct{}

// SubmitClicked asks for a manual submission; the user is asked to confirm.
type SubmitClicked struct{}

// ConfirmSubmit answers the confirmation overlay.
type ConfirmSubmit struct{ Confirmed bool }

// CloseWarning dismisses the non-blocking tab warning.
type CloseWarning struct{}

// Autosave requests a best-effort snapshot of the current answers.
type Autosave struct{}

// ─── Internal events ────────────────────────────────────────────────

type graceElapsed struct{ trigger model.Trigger }

type submissionDone struct {
	attempt int
	ack     model.SubmitAck
	err     error
}

type stateQuery struct{ reply chan Snapshot }

func (Start) event()               {}
func (Tick) event()                {}
func (Visibility) event()          {}
func (Next) event()                {}
func (Previous) event()            {}
func (Jump) event()                {}
func (JumpFirstUnanswered) event() {}
func (Select) event()              {}
func (Shortcut) event()            {}
func (ToggleReview) event()        {}
func (SubmitClicked) event()       {}
func (ConfirmSubmit) event()       {}
func (CloseWarning) event()        {}
func (Autosave) event()            {}
func (graceElapsed) event()        {}
func (submissionDone) event()      {}
func (stateQuery) event()          {}
