package model

// Paper is the student-facing payload for one question set (no correct answers).
// It is cached in Redis and served by the gateway; the exam client builds its
// session from it.
type Paper struct {
	ClassLevel      string               `json:"class_level"`
	Stream          string               `json:"stream"`
	Set             string               `json:"set"`
	DurationSeconds int                  `json:"duration_seconds"`
	Questions       []QuestionForStudent `json:"questions"`
}

// durationMinutes maps class levels to exam length.
var durationMinutes = map[string]int{
	"class9":  30,
	"class10": 30,
	"class11": 40,
	"class12": 45,
	"dropper": 45,
}

// DurationFor returns the exam length in seconds for a class level.
// Unknown levels get 60 minutes.
func DurationFor(classLevel string) int {
	if m, ok := durationMinutes[classLevel]; ok {
		return m * 60
	}
	return 60 * 60
}
