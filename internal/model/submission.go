package model

import "time"

// Trigger is the reason attached to every submission attempt.
type Trigger string

const (
	TriggerManual       Trigger = "manual"
	TriggerTimeout      Trigger = "timeout"
	TriggerTabViolation Trigger = "tab_violation"
)

// Valid reports whether t is one of the known triggers.
func (t Trigger) Valid() bool {
	switch t {
	case TriggerManual, TriggerTimeout, TriggerTabViolation:
		return true
	}
	return false
}

// SubmitRequest is the payload the exam client posts exactly once per attempt.
// Answers maps question ID to the selected 0-based option index; JSON object
// keys carry the ID as a decimal string.
type SubmitRequest struct {
	Answers        map[int]int `json:"answers" binding:"required"`
	TabSwitches    int         `json:"tab_switches" binding:"min=0"`
	SubmissionType Trigger     `json:"submission_type" binding:"required,trigger"`
	AttemptID      string      `json:"attempt_id,omitempty" binding:"omitempty,uuid"`
}

// SubmitAck is the gateway's acknowledgment. The client only looks at Success.
type SubmitAck struct {
	Success bool `json:"success"`
	Score   int  `json:"score,omitempty"`
	Total   int  `json:"total,omitempty"`
}

// TestResult is one graded submission as persisted by the result worker.
type TestResult struct {
	StudentID      int       `json:"student_id"`
	Username       string    `json:"username"`
	ClassLevel     string    `json:"class_level"`
	Stream         string    `json:"stream"`
	AssignedSet    string    `json:"assigned_set"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	TabSwitches    int       `json:"tab_switches"`
	SubmissionType Trigger   `json:"submission_type"`
	AttemptID      string    `json:"attempt_id,omitempty"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// ScoreSummary is what the results view shows after a successful submission.
type ScoreSummary struct {
	Score              int     `json:"score"`
	Total              int     `json:"total"`
	Percentage         float64 `json:"percentage"`
	ScholarshipPercent int     `json:"scholarship_percent"`
	ScholarshipMessage string  `json:"scholarship_message"`
	TabSwitches        int     `json:"tab_switches"`
	SubmissionType     Trigger `json:"submission_type"`
	AssignedSet        string  `json:"assigned_set"`
}

// Violation is one logged tab switch.
type Violation struct {
	StudentID  int       `json:"student_id"`
	Count      int64     `json:"count"`
	RecordedAt time.Time `json:"recorded_at"`
}

// AnswerSnapshot is the latest autosaved answer map for a student.
type AnswerSnapshot struct {
	StudentID int         `json:"student_id"`
	Answers   map[int]int `json:"answers"`
	SavedAt   time.Time   `json:"saved_at"`
}
