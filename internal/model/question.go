package model

// Question represents a single multiple-choice exam question.
// ID is stable across sets and is the key answers are recorded under;
// position in the paper is only used for display numbering.
type Question struct {
	ID      int      `json:"id" yaml:"id"`
	Prompt  string   `json:"question" yaml:"question"`
	Options []string `json:"options" yaml:"options"`
	Correct int      `json:"correct" yaml:"correct"`
}

// MinOptions and MaxOptions bound the number of choices per question.
const (
	MinOptions = 2
	MaxOptions = 4
)

// QuestionForStudent is a question without the correct answer, sent to students.
type QuestionForStudent struct {
	ID      int      `json:"id"`
	Prompt  string   `json:"question"`
	Options []string `json:"options"`
}

// ForStudent strips the answer key.
func (q Question) ForStudent() QuestionForStudent {
	return QuestionForStudent{ID: q.ID, Prompt: q.Prompt, Options: q.Options}
}

// ValidOption reports whether idx addresses one of the question's options.
func (q QuestionForStudent) ValidOption(idx int) bool {
	return idx >= 0 && idx < len(q.Options)
}
