package model

// Stream names the subject track a student is enrolled in.
type Stream string

const (
	StreamGeneral Stream = "general"
)

// Student is the identity carried inside a student token. The gateway never
// looks a student up in a table; everything it needs to pick a question set
// travels in the claims.
type Student struct {
	ID          int    `json:"id"`
	Username    string `json:"username"`
	ClassLevel  string `json:"class_level"`
	Stream      string `json:"stream"`
	AssignedSet string `json:"assigned_set"`
}

// EffectiveStream returns the stream used for question lookup. Lower classes
// share a single general paper regardless of the stream on record.
func (s Student) EffectiveStream() string {
	switch s.ClassLevel {
	case "class9", "class10":
		return string(StreamGeneral)
	}
	if s.Stream == "" {
		return string(StreamGeneral)
	}
	return s.Stream
}
