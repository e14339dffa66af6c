package session

// Navigator moves the current position and keeps the question body and the
// palette in step with the answer store. It never looks at the latch or the
// violation counter.
type Navigator struct {
	state   *State
	answers *AnswerStore
	render  Renderer
}

func newNavigator(state *State, answers *AnswerStore, render Renderer) *Navigator {
	return &Navigator{state: state, answers: answers, render: render}
}

// Next advances one question; a no-op on the last one.
func (n *Navigator) Next() bool {
	if n.state.CurrentIndex >= n.answers.Len()-1 {
		return false
	}
	n.moveTo(n.state.CurrentIndex + 1)
	return true
}

// Previous goes back one question; a no-op on the first one.
func (n *Navigator) Previous() bool {
	if n.state.CurrentIndex <= 0 {
		return false
	}
	n.moveTo(n.state.CurrentIndex - 1)
	return true
}

// Jump moves to any in-range position, including the current one.
func (n *Navigator) Jump(pos int) bool {
	if pos < 0 || pos >= n.answers.Len() {
		return false
	}
	n.moveTo(pos)
	return true
}

// ToggleReview flips the mark on the current question and re-renders only
// the question body.
func (n *Navigator) ToggleReview() {
	n.answers.ToggleReview(n.state.CurrentIndex)
	n.renderQuestion()
}

// Refresh re-renders the current question and the palette without moving.
func (n *Navigator) Refresh() {
	n.renderQuestion()
	n.renderPalette()
}

func (n *Navigator) moveTo(pos int) {
	n.state.CurrentIndex = pos
	n.answers.MarkVisited(pos)
	n.Refresh()
}

func (n *Navigator) renderQuestion() {
	pos := n.state.CurrentIndex
	q, ok := n.answers.At(pos)
	if !ok {
		return
	}
	selected := -1
	if opt, ok := n.answers.Answer(q.ID); ok {
		selected = opt
	}
	n.render.RenderQuestion(QuestionView{
		Position: pos,
		Total:    n.answers.Len(),
		Question: q,
		Selected: selected,
		Marked:   n.answers.Marked(pos),
		IsLast:   pos == n.answers.Len()-1,
	})
}

func (n *Navigator) renderPalette() {
	cells := make([]PaletteCell, n.answers.Len())
	for i := range cells {
		cells[i] = PaletteCell{
			Position: i,
			Status:   n.answers.status(i),
			Marked:   n.answers.Marked(i),
			Current:  i == n.state.CurrentIndex,
		}
	}
	n.render.RenderPalette(PaletteView{
		Cells:      cells,
		Answered:   n.answers.Answered(),
		Unanswered: n.answers.UnansweredCount(),
		Progress:   n.answers.Progress(),
	})
}
