package session

import (
	"math"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// AnswerStore holds the immutable question list plus the answered, visited
// and review-marked state. Keys are only ever added or overwritten.
type AnswerStore struct {
	questions []model.QuestionForStudent
	position  map[int]int // question ID -> position

	answers map[int]int // question ID -> option index
	visited map[int]struct{}
	review  map[int]struct{}
}

func newAnswerStore(questions []model.QuestionForStudent) *AnswerStore {
	pos := make(map[int]int, len(questions))
	for i, q := range questions {
		pos[q.ID] = i
	}
	return &AnswerStore{
		questions: questions,
		position:  pos,
		answers:   make(map[int]int, len(questions)),
		visited:   make(map[int]struct{}, len(questions)),
		review:    make(map[int]struct{}),
	}
}

// Len is the number of questions.
func (s *AnswerStore) Len() int { return len(s.questions) }

// At returns the question at a position.
func (s *AnswerStore) At(pos int) (model.QuestionForStudent, bool) {
	if pos < 0 || pos >= len(s.questions) {
		return model.QuestionForStudent{}, false
	}
	return s.questions[pos], true
}

// Select records or overwrites the answer for questionID. Unknown IDs and
// out-of-range options are ignored and reported as false.
func (s *AnswerStore) Select(questionID, option int) bool {
	pos, ok := s.position[questionID]
	if !ok || !s.questions[pos].ValidOption(option) {
		return false
	}
	s.answers[questionID] = option
	return true
}

// Answer returns the selected option for questionID.
func (s *AnswerStore) Answer(questionID int) (int, bool) {
	opt, ok := s.answers[questionID]
	return opt, ok
}

// Collect returns a copy of every recorded answer. The map is never nil so
// an empty submission still encodes as {}.
func (s *AnswerStore) Collect() map[int]int {
	out := make(map[int]int, len(s.answers))
	for id, opt := range s.answers {
		out[id] = opt
	}
	return out
}

// Answered is the number of answered questions.
func (s *AnswerStore) Answered() int { return len(s.answers) }

// UnansweredCount is total questions minus answered ones.
func (s *AnswerStore) UnansweredCount() int { return len(s.questions) - len(s.answers) }

// Progress is the answered share in whole percent.
func (s *AnswerStore) Progress() int {
	if len(s.questions) == 0 {
		return 0
	}
	return int(math.Round(float64(len(s.answers)) / float64(len(s.questions)) * 100))
}

// MarkVisited adds pos to the visit set.
func (s *AnswerStore) MarkVisited(pos int) {
	s.visited[pos] = struct{}{}
}

// Visited reports whether pos has been displayed.
func (s *AnswerStore) Visited(pos int) bool {
	_, ok := s.visited[pos]
	return ok
}

// ToggleReview flips the review mark on pos and returns the new state.
func (s *AnswerStore) ToggleReview(pos int) bool {
	if _, ok := s.review[pos]; ok {
		delete(s.review, pos)
		return false
	}
	s.review[pos] = struct{}{}
	return true
}

// Marked reports whether pos is flagged for review.
func (s *AnswerStore) Marked(pos int) bool {
	_, ok := s.review[pos]
	return ok
}

// FirstUnanswered returns the lowest position without an answer.
func (s *AnswerStore) FirstUnanswered() (int, bool) {
	for i, q := range s.questions {
		if _, ok := s.answers[q.ID]; !ok {
			return i, true
		}
	}
	return 0, false
}

// status classifies pos for the palette.
func (s *AnswerStore) status(pos int) CellStatus {
	if _, ok := s.answers[s.questions[pos].ID]; ok {
		return CellAnswered
	}
	if s.Visited(pos) {
		return CellVisited
	}
	return CellUnvisited
}
