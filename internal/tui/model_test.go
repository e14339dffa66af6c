package tui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/session"
)

type eventLog struct {
	events []session.Event
}

func (l *eventLog) dispatch(ev session.Event) bool {
	l.events = append(l.events, ev)
	return true
}

func newTestModel(shortcuts bool) (Model, *eventLog) {
	log := &eventLog{}
	return New(Options{Dispatch: log.dispatch, Shortcuts: shortcuts}), log
}

func update(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		var ok bool
		m, ok = next.(Model)
		require.True(t, ok)
	}
	return m
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func sampleQuestion(pos, selected int, last bool) questionMsg {
	return questionMsg(session.QuestionView{
		Position: pos,
		Total:    3,
		Question: model.QuestionForStudent{ID: 10 + pos, Prompt: "Pick one", Options: []string{"a", "b", "c"}},
		Selected: selected,
		IsLast:   last,
	})
}

func TestFocusMapsToVisibility(t *testing.T) {
	m, log := newTestModel(true)
	update(t, m, tea.BlurMsg{}, tea.FocusMsg{})

	assert.Equal(t, []session.Event{
		session.Visibility{Hidden: true},
		session.Visibility{Hidden: false},
	}, log.events)
}

func TestKeysDispatchNavigation(t *testing.T) {
	m, log := newTestModel(true)
	m = update(t, m, sampleQuestion(0, -1, false))

	update(t, m, runes("n"), runes("p"), runes("g"), runes("G"), runes("u"), runes("m"), runes("s"))
	assert.Equal(t, []session.Event{
		session.Next{},
		session.Previous{},
		session.Jump{Index: 0},
		session.Jump{Index: 2},
		session.JumpFirstUnanswered{},
		session.ToggleReview{},
		session.SubmitClicked{},
	}, log.events)
}

func TestNextOnLastQuestionAsksToSubmit(t *testing.T) {
	m, log := newTestModel(true)
	m = update(t, m, sampleQuestion(2, -1, true))
	update(t, m, tea.KeyMsg{Type: tea.KeyRight})

	assert.Equal(t, []session.Event{session.SubmitClicked{}}, log.events)
}

func TestCursorAndChoose(t *testing.T) {
	m, log := newTestModel(true)
	m = update(t, m, sampleQuestion(0, -1, false),
		tea.KeyMsg{Type: tea.KeyDown},
		tea.KeyMsg{Type: tea.KeyDown},
		tea.KeyMsg{Type: tea.KeyDown}, // clamped
		tea.KeyMsg{Type: tea.KeyEnter},
	)
	assert.Equal(t, 2, m.cursor)
	assert.Equal(t, []session.Event{session.Select{QuestionID: 10, Option: 2}}, log.events)

	// Moving to a new question resets the cursor, a stored answer wins.
	m = update(t, m, sampleQuestion(1, -1, false))
	assert.Equal(t, 0, m.cursor)
	m = update(t, m, sampleQuestion(2, 1, true))
	assert.Equal(t, 1, m.cursor)
}

func TestDigitShortcuts(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		m, log := newTestModel(true)
		m = update(t, m, sampleQuestion(0, -1, false), runes("3"), runes("9"))
		assert.Equal(t, []session.Event{session.Shortcut{Digit: 3}}, log.events)
		assert.Equal(t, 2, m.cursor)
	})
	t.Run("disabled", func(t *testing.T) {
		m, log := newTestModel(false)
		update(t, m, sampleQuestion(0, -1, false), runes("3"))
		assert.Empty(t, log.events)
	})
}

func TestConfirmOverlayRoutesKeys(t *testing.T) {
	m, log := newTestModel(true)
	m = update(t, m, sampleQuestion(0, -1, false),
		showOverlayMsg(session.Overlay{Kind: session.OverlayConfirmSubmit, Blocking: true, Unanswered: 2, Message: "You have 2 unanswered question(s). Submit anyway?"}),
	)
	assert.Contains(t, m.View(), "2 unanswered")

	update(t, m, runes("n"), runes("y"))
	assert.Equal(t, []session.Event{
		session.ConfirmSubmit{Confirmed: false},
		session.ConfirmSubmit{Confirmed: true},
	}, log.events)
}

func TestTerminatedOverlaySwallowsInput(t *testing.T) {
	m, log := newTestModel(true)
	m = update(t, m, sampleQuestion(0, -1, false),
		showOverlayMsg(session.Overlay{Kind: session.OverlayTerminated, Blocking: true, Count: 4, Threshold: 3}),
	)
	update(t, m, runes("n"), runes("1"), tea.KeyMsg{Type: tea.KeyEnter}, runes("s"))

	assert.Empty(t, log.events)
	assert.Contains(t, m.View(), "Session terminated")
}

func TestTabWarningClose(t *testing.T) {
	m, log := newTestModel(true)
	m = update(t, m, sampleQuestion(0, -1, false),
		showOverlayMsg(session.Overlay{Kind: session.OverlayTabWarning, Count: 1, Threshold: 3}),
	)
	assert.Contains(t, m.View(), "Tab switches: 1 / 3")

	// Non-blocking: navigation still goes through.
	m = update(t, m, runes("n"))
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, []session.Event{session.Next{}, session.CloseWarning{}}, log.events)

	m = update(t, m, hideOverlayMsg(session.OverlayTabWarning))
	assert.NotContains(t, m.View(), "you left the exam window")
}

func TestSubmitErrorDismissedLocally(t *testing.T) {
	m, log := newTestModel(true)
	m = update(t, m, sampleQuestion(0, -1, false),
		showOverlayMsg(session.Overlay{Kind: session.OverlaySubmitError, Message: session.SubmitErrorMessage}),
	)
	assert.Contains(t, m.View(), session.SubmitErrorMessage)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.NotContains(t, m.View(), session.SubmitErrorMessage)
	assert.Empty(t, log.events)
}

func TestQuitNeedsSecondPressMidExam(t *testing.T) {
	m, _ := newTestModel(true)
	ctrlC := tea.KeyMsg{Type: tea.KeyCtrlC}

	next, cmd := m.Update(ctrlC)
	assert.Nil(t, cmd)
	m = next.(Model)
	assert.Contains(t, m.View(), "Press ctrl+c again")

	_, cmd = m.Update(ctrlC)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestFinalizeFetchesScore(t *testing.T) {
	log := &eventLog{}
	m := New(Options{
		Dispatch: log.dispatch,
		FetchScore: func(context.Context) (model.ScoreSummary, error) {
			return model.ScoreSummary{Score: 9, Total: 10, Percentage: 90, ScholarshipPercent: 70, ScholarshipMessage: "Great work"}, nil
		},
	})

	next, cmd := m.Update(finalizeMsg(session.Outcome{Trigger: model.TriggerManual, Answered: 9, Total: 10}))
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Fetching score")

	m = update(t, m, cmd())
	view := m.View()
	assert.Contains(t, view, "Score: 9 / 10")
	assert.Contains(t, view, "Scholarship: 70%")

	_, cmd = m.Update(runes("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestFinalizeScoreError(t *testing.T) {
	m := New(Options{FetchScore: func(context.Context) (model.ScoreSummary, error) {
		return model.ScoreSummary{}, errors.New("not yet")
	}})
	next, cmd := m.Update(finalizeMsg(session.Outcome{Trigger: model.TriggerTimeout}))
	m = update(t, next.(Model), cmd())
	assert.Contains(t, m.View(), "Score is not available yet")
}

func TestHeaderShowsTimerAndViolations(t *testing.T) {
	m, _ := newTestModel(true)
	m = update(t, m,
		timerMsg(session.TimerView{Text: "04:59", Seconds: 299, Warning: true}),
		violationsMsg(session.ViolationView{Count: 2, Threshold: 3, Level: session.ViolationWarning}),
		paletteMsg(session.PaletteView{
			Cells: []session.PaletteCell{
				{Position: 0, Status: session.CellAnswered, Current: true},
				{Position: 1, Status: session.CellVisited, Marked: true},
				{Position: 2, Status: session.CellUnvisited},
			},
			Answered: 1, Unanswered: 2, Progress: 33,
		}),
	)
	view := m.View()
	assert.Contains(t, view, "04:59")
	assert.Contains(t, view, "2 / 3")
	assert.Contains(t, view, "1 answered")
	assert.Contains(t, view, "2*")
}

// ─── Bridge ─────────────────────────────────────────────────────────

type collectSender struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (c *collectSender) Send(msg tea.Msg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *collectSender) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func TestBridgeForwardsInOrder(t *testing.T) {
	sender := &collectSender{}
	b := NewBridge(sender)
	defer b.Close()

	var _ session.Renderer = b

	b.RenderTimer(session.TimerView{Text: "10:00"})
	b.ShowOverlay(session.Overlay{Kind: session.OverlayTabWarning})
	b.HideOverlay(session.OverlayTabWarning)
	b.Finalize(session.Outcome{Total: 3})

	require.Eventually(t, func() bool { return sender.len() == 4 }, waitFor, pollAt)
	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.IsType(t, timerMsg{}, sender.msgs[0])
	assert.IsType(t, showOverlayMsg{}, sender.msgs[1])
	assert.IsType(t, hideOverlayMsg(""), sender.msgs[2])
	assert.IsType(t, finalizeMsg{}, sender.msgs[3])
}

const (
	waitFor = time.Second
	pollAt  = 5 * time.Millisecond
)
