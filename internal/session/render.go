package session

import (
	"fmt"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Renderer is the rendering surface. The session pushes data into it and
// never reads anything back; user input comes in through Dispatch.
type Renderer interface {
	RenderQuestion(QuestionView)
	RenderPalette(PaletteView)
	RenderTimer(TimerView)
	RenderViolations(ViolationView)
	RenderSubmitControl(SubmitControl)
	ShowOverlay(Overlay)
	HideOverlay(OverlayKind)
	Finalize(Outcome)
}

// QuestionView is the question body at the current position.
type QuestionView struct {
	Position int // 0-based
	Total    int
	Question model.QuestionForStudent
	Selected int // -1 when unanswered
	Marked   bool
	// IsLast selects the "Submit" affordance instead of "Next".
	IsLast bool
}

// CellStatus is the answered/visited dimension of a palette cell.
type CellStatus string

const (
	CellUnvisited CellStatus = "unvisited"
	CellVisited   CellStatus = "visited"
	CellAnswered  CellStatus = "answered"
)

// PaletteCell summarizes one question in the navigation grid.
type PaletteCell struct {
	Position int
	Status   CellStatus
	Marked   bool
	Current  bool
}

// PaletteView is the whole grid plus counters.
type PaletteView struct {
	Cells      []PaletteCell
	Answered   int
	Unanswered int
	Progress   int // percent, rounded
}

// TimerView is the countdown display.
type TimerView struct {
	Text    string // MM:SS
	Seconds int
	Warning bool
}

// ViolationLevel drives the color of the violation counter.
type ViolationLevel string

const (
	ViolationNormal   ViolationLevel = "normal"
	ViolationWarning  ViolationLevel = "warning"
	ViolationCritical ViolationLevel = "critical"
)

// ViolationView is the "n / max" counter.
type ViolationView struct {
	Count     int
	Threshold int
	Level     ViolationLevel
}

// Text renders the counter as shown in the header.
func (v ViolationView) Text() string {
	return fmt.Sprintf("%d / %d", v.Count, v.Threshold)
}

// Submit control labels.
const (
	SubmitLabel     = "Submit Test"
	SubmittingLabel = "Submitting..."
)

// SubmitControl is the state of the submit affordance.
type SubmitControl struct {
	Enabled bool
	Pending bool
	Label   string
}

// OverlayKind identifies a modal.
type OverlayKind string

const (
	OverlayTabWarning    OverlayKind = "tab_warning"
	OverlayTerminated    OverlayKind = "terminated"
	OverlayConfirmSubmit OverlayKind = "confirm_submit"
	OverlaySubmitError   OverlayKind = "submit_error"
)

// SubmitErrorMessage is shown after a failed or rejected submission.
const SubmitErrorMessage = "Error submitting test. Please try again."

// Overlay is a modal presented over the question.
type Overlay struct {
	Kind OverlayKind
	// Blocking overlays swallow all input until hidden by the session.
	Blocking   bool
	Count      int
	Threshold  int
	Unanswered int
	Message    string
}

// Outcome is handed to the renderer once the gateway accepted the submission.
type Outcome struct {
	Trigger   model.Trigger
	Answered  int
	Total     int
	AttemptID string
}

// FormatClock renders seconds as zero-padded MM:SS.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// violationLevel maps a count onto the display color.
func violationLevel(count, threshold int) ViolationLevel {
	switch {
	case count >= threshold:
		return ViolationCritical
	case count >= 2:
		return ViolationWarning
	}
	return ViolationNormal
}
