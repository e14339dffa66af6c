package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/model"
)

const (
	waitFor = 2 * time.Second
	pollAt  = 5 * time.Millisecond
)

func threeQuestions() []model.QuestionForStudent {
	return []model.QuestionForStudent{
		{ID: 1, Prompt: "2 + 2 = ?", Options: []string{"3", "4", "5", "6"}},
		{ID: 2, Prompt: "Capital of France?", Options: []string{"Paris", "Rome"}},
		{ID: 3, Prompt: "H2O is?", Options: []string{"Water", "Salt", "Sugar"}},
	}
}

type harness struct {
	s      *Session
	render *recordingRenderer
	submit *fakeSubmitter
	logs   *countingLogger
	runErr chan error
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()

	h := &harness{
		render: &recordingRenderer{},
		submit: &fakeSubmitter{},
		logs:   &countingLogger{},
		runErr: make(chan error, 1),
	}
	opts := Options{
		Questions:       threeQuestions(),
		DurationSeconds: 600,
		Grace:           20 * time.Millisecond,
		Shortcuts:       true,
		Submitter:       h.submit,
		Violations:      h.logs,
		Renderer:        h.render,
		NewTicker:       manualTickers(),
	}
	if mutate != nil {
		mutate(&opts)
	}

	s, err := New(opts)
	require.NoError(t, err)
	h.s = s

	ctx, cancel := context.WithCancel(context.Background())
	go func() { h.runErr <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-s.Done()
	})
	return h
}

func (h *harness) send(t *testing.T, events ...Event) {
	t.Helper()
	for _, ev := range events {
		h.s.Dispatch(ev)
	}
}

func (h *harness) snap(t *testing.T) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	snap, err := h.s.Snapshot(ctx)
	require.NoError(t, err)
	return snap
}

func (h *harness) manualSubmit(t *testing.T) {
	t.Helper()
	h.send(t, SubmitClicked{}, ConfirmSubmit{Confirmed: true})
}

func ticks(n int) []Event {
	out := make([]Event, n)
	for i := range out {
		out[i] = Tick{}
	}
	return out
}

// ─── Construction ───────────────────────────────────────────────────

func TestNewValidatesOptions(t *testing.T) {
	base := func() Options {
		return Options{
			Questions:       threeQuestions(),
			DurationSeconds: 60,
			Submitter:       &fakeSubmitter{},
			Renderer:        &recordingRenderer{},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Options)
		want   error
	}{
		{"no questions", func(o *Options) { o.Questions = nil }, ErrNoQuestions},
		{"duplicate id", func(o *Options) { o.Questions[1].ID = 1 }, ErrDuplicateQuestion},
		{"one option", func(o *Options) { o.Questions[0].Options = []string{"only"} }, ErrInvalidQuestion},
		{"five options", func(o *Options) { o.Questions[0].Options = []string{"a", "b", "c", "d", "e"} }, ErrInvalidQuestion},
		{"zero duration", func(o *Options) { o.DurationSeconds = 0 }, ErrInvalidDuration},
		{"no renderer", func(o *Options) { o.Renderer = nil }, ErrMissingRenderer},
		{"no submitter", func(o *Options) { o.Submitter = nil }, ErrMissingSubmitter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := base()
			tt.mutate(&opts)
			_, err := New(opts)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	s, err := New(base())
	require.NoError(t, err)
	assert.Equal(t, DefaultThreshold, s.opts.Threshold)
	assert.Equal(t, DefaultGrace, s.opts.Grace)
	assert.Equal(t, DefaultSubmitTimeout, s.opts.SubmitTimeout)
	assert.Equal(t, DefaultWarningSeconds, s.opts.WarningSeconds)
}

// ─── Start ──────────────────────────────────────────────────────────

func TestStartShowsFirstQuestion(t *testing.T) {
	h := newHarness(t, nil)

	before := h.snap(t)
	assert.Equal(t, PhaseNotStarted, before.Phase)

	h.send(t, Start{}, Start{})
	snap := h.snap(t)

	assert.True(t, snap.Started)
	assert.Equal(t, PhaseInProgress, snap.Phase)
	assert.Equal(t, 0, snap.CurrentIndex)
	assert.Equal(t, []int{0}, snap.Visited)
	assert.True(t, snap.ClockRunning)

	q := h.render.lastQuestion()
	assert.Equal(t, 1, q.Question.ID)
	assert.Equal(t, -1, q.Selected)
	assert.False(t, q.IsLast)

	ctl := h.render.lastControl()
	assert.True(t, ctl.Enabled)
	assert.Equal(t, SubmitLabel, ctl.Label)

	v := h.render.lastViolation()
	assert.Equal(t, "0 / 3", v.Text())
}

func TestInputIgnoredBeforeStart(t *testing.T) {
	h := newHarness(t, nil)

	h.send(t, Next{}, Select{QuestionID: 1, Option: 1}, Visibility{Hidden: true}, SubmitClicked{}, Tick{})
	snap := h.snap(t)

	assert.Equal(t, 0, snap.CurrentIndex)
	assert.Empty(t, snap.Answers)
	assert.Zero(t, snap.ViolationCount)
	assert.Equal(t, 600, snap.RemainingSeconds)
	assert.Empty(t, h.render.overlays(OverlayConfirmSubmit))
}

// ─── Clock ──────────────────────────────────────────────────────────

func TestTimerFiresTimeoutOnce(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.DurationSeconds = 5 })

	h.send(t, Start{})
	h.send(t, ticks(6)...)

	require.Eventually(t, func() bool { return h.render.finalized() != nil }, waitFor, pollAt)

	reqs := h.submit.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, model.TriggerTimeout, reqs[0].SubmissionType)

	snap := h.snap(t)
	assert.Equal(t, 0, snap.RemainingSeconds)
	assert.True(t, snap.Closed)
	assert.Equal(t, PhaseSubmitted, snap.Phase)
	assert.False(t, snap.ClockRunning)

	// Start display plus five ticks; the sixth is discarded.
	views := h.render.timerViews()
	require.Len(t, views, 6)
	assert.Equal(t, "00:05", views[0].Text)
	assert.Equal(t, "00:00", views[5].Text)
}

func TestTimerWarningIsOneWay(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.DurationSeconds = 303
		o.WarningSeconds = 300
	})

	h.send(t, Start{})
	h.send(t, ticks(4)...)
	h.snap(t)

	views := h.render.timerViews()
	require.Len(t, views, 5)
	assert.False(t, views[0].Warning) // 05:03
	assert.False(t, views[2].Warning) // 05:01
	assert.True(t, views[3].Warning)  // 05:00
	assert.True(t, views[4].Warning)  // 04:59
	assert.Equal(t, "04:59", views[4].Text)
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "00:00", FormatClock(0))
	assert.Equal(t, "00:00", FormatClock(-3))
	assert.Equal(t, "01:05", FormatClock(65))
	assert.Equal(t, "45:00", FormatClock(2700))
	assert.Equal(t, "120:00", FormatClock(7200))
}

// ─── Navigation ─────────────────────────────────────────────────────

func TestNavigationBounds(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, Start{})

	h.send(t, Previous{})
	assert.Equal(t, 0, h.snap(t).CurrentIndex)

	h.send(t, Next{}, Next{}, Next{})
	snap := h.snap(t)
	assert.Equal(t, 2, snap.CurrentIndex)
	assert.True(t, h.render.lastQuestion().IsLast)

	h.send(t, Jump{Index: 1})
	assert.Equal(t, 1, h.snap(t).CurrentIndex)

	h.send(t, Jump{Index: 3}, Jump{Index: -1})
	snap = h.snap(t)
	assert.Equal(t, 1, snap.CurrentIndex)
	assert.Equal(t, []int{0, 1, 2}, snap.Visited)
}

func TestJumpMarksVisited(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, Start{}, Jump{Index: 2})

	snap := h.snap(t)
	assert.Equal(t, []int{0, 2}, snap.Visited)

	cells := h.render.lastPalette().Cells
	require.Len(t, cells, 3)
	assert.Equal(t, CellVisited, cells[0].Status)
	assert.Equal(t, CellUnvisited, cells[1].Status)
	assert.Equal(t, CellVisited, cells[2].Status)
	assert.True(t, cells[2].Current)
}

func TestSelectPreselectsOnReturn(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, Start{}, Select{QuestionID: 1, Option: 3}, Next{}, Previous{})
	h.snap(t)

	q := h.render.lastQuestion()
	assert.Equal(t, 3, q.Selected)

	p := h.render.lastPalette()
	assert.Equal(t, 1, p.Answered)
	assert.Equal(t, 2, p.Unanswered)
	assert.Equal(t, 33, p.Progress)
	assert.Equal(t, CellAnswered, p.Cells[0].Status)
}

func TestSelectIgnoresOutOfRange(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, Start{},
		Select{QuestionID: 2, Option: 2}, // only two options
		Select{QuestionID: 2, Option: -1},
		Select{QuestionID: 99, Option: 0},
	)
	assert.Empty(t, h.snap(t).Answers)
}

func TestToggleReview(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, Start{}, ToggleReview{}, Next{}, ToggleReview{}, ToggleReview{})

	snap := h.snap(t)
	assert.Equal(t, []int{0}, snap.Marked)
	assert.Equal(t, 1, snap.CurrentIndex)

	cells := h.render.lastPalette().Cells
	assert.True(t, cells[0].Marked)
	assert.False(t, cells[1].Marked)
}

func TestJumpFirstUnanswered(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, Start{}, Select{QuestionID: 1, Option: 0}, Jump{Index: 2}, JumpFirstUnanswered{})
	assert.Equal(t, 1, h.snap(t).CurrentIndex)

	h.send(t, Select{QuestionID: 2, Option: 0}, Select{QuestionID: 3, Option: 0}, Jump{Index: 0}, JumpFirstUnanswered{})
	assert.Equal(t, 0, h.snap(t).CurrentIndex)
}

func TestShortcuts(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		h := newHarness(t, nil)
		h.send(t, Start{}, Shortcut{Digit: 2}, Next{}, Shortcut{Digit: 4})
		// Question 2 has only two options.
		assert.Equal(t, map[int]int{1: 1}, h.snap(t).Answers)
	})

	t.Run("disabled", func(t *testing.T) {
		h := newHarness(t, func(o *Options) { o.Shortcuts = false })
		h.send(t, Start{}, Shortcut{Digit: 1})
		assert.Empty(t, h.snap(t).Answers)
	})
}

// ─── Integrity ──────────────────────────────────────────────────────

func hideShow(n int) []Event {
	out := make([]Event, 0, 2*n)
	for i := 0; i < n; i++ {
		out = append(out, Visibility{Hidden: true}, Visibility{Hidden: false})
	}
	return out
}

func TestVisibilityIsEdgeTriggered(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, Start{},
		Visibility{Hidden: true},
		Visibility{Hidden: true},
		Visibility{Hidden: true},
		Visibility{Hidden: false},
		Visibility{Hidden: false},
	)

	assert.Equal(t, 1, h.snap(t).ViolationCount)
	require.Eventually(t, func() bool { return h.logs.n.Load() == 1 }, waitFor, pollAt)
}

func TestFourthViolationTerminates(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Grace = 300 * time.Millisecond })
	h.send(t, Start{})

	for i := 1; i <= 3; i++ {
		h.send(t, hideShow(1)...)
		snap := h.snap(t)
		assert.Equal(t, i, snap.ViolationCount)
		assert.False(t, snap.Submitted)
	}

	warnings := h.render.overlays(OverlayTabWarning)
	require.Len(t, warnings, 3)
	assert.Equal(t, 3, warnings[2].Count)
	assert.False(t, warnings[2].Blocking)
	assert.Equal(t, ViolationCritical, h.render.lastViolation().Level)

	h.send(t, Visibility{Hidden: true})
	snap := h.snap(t)
	assert.Equal(t, 4, snap.ViolationCount)
	assert.True(t, snap.Submitted)
	assert.True(t, snap.Terminating)
	assert.False(t, snap.ClockRunning)
	assert.False(t, snap.MonitorAttached)
	assert.Zero(t, h.submit.calls(), "payload goes out only after the grace delay")

	terminated := h.render.overlays(OverlayTerminated)
	require.Len(t, terminated, 1)
	assert.True(t, terminated[0].Blocking)

	require.Eventually(t, func() bool { return h.render.finalized() != nil }, waitFor, pollAt)
	reqs := h.submit.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, model.TriggerTabViolation, reqs[0].SubmissionType)
	assert.Equal(t, 4, reqs[0].TabSwitches)
	require.Eventually(t, func() bool { return h.logs.n.Load() == 4 }, waitFor, pollAt)
}

func TestTerminationRollbackReopensSession(t *testing.T) {
	h := newHarness(t, nil)
	h.submit.results = []submitResult{{err: errors.New("connection reset")}}

	h.send(t, Start{})
	h.send(t, hideShow(3)...)
	h.send(t, Visibility{Hidden: true})

	require.Eventually(t, func() bool {
		return len(h.render.overlays(OverlaySubmitError)) == 1
	}, waitFor, pollAt)

	snap := h.snap(t)
	assert.Equal(t, PhasePendingRetry, snap.Phase)
	assert.False(t, snap.Submitted)
	assert.False(t, snap.Terminating)
	assert.True(t, snap.MonitorAttached)
	assert.False(t, snap.ClockRunning)

	h.render.mu.Lock()
	assert.Contains(t, h.render.hidden, OverlayTerminated)
	h.render.mu.Unlock()

	// Navigation and selection are usable again.
	h.send(t, Next{}, Select{QuestionID: 2, Option: 1})
	snap = h.snap(t)
	assert.Equal(t, 1, snap.CurrentIndex)
	assert.Equal(t, map[int]int{2: 1}, snap.Answers)

	// The window is still hidden from the 4th switch; the next hide edge
	// is the 5th violation and terminates again.
	h.send(t, Visibility{Hidden: false}, Visibility{Hidden: true})
	snap = h.snap(t)
	assert.Equal(t, 5, snap.ViolationCount)
	assert.True(t, snap.Submitted)
	assert.True(t, snap.Terminating)
	require.Len(t, h.render.overlays(OverlayTerminated), 2)

	require.Eventually(t, func() bool { return h.render.finalized() != nil }, waitFor, pollAt)
	reqs := h.submit.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, model.TriggerTabViolation, reqs[1].SubmissionType)
	assert.Equal(t, 5, reqs[1].TabSwitches)
	assert.Equal(t, map[int]int{2: 1}, reqs[1].Answers)
}

func TestViolationLevels(t *testing.T) {
	assert.Equal(t, ViolationNormal, violationLevel(0, 3))
	assert.Equal(t, ViolationNormal, violationLevel(1, 3))
	assert.Equal(t, ViolationWarning, violationLevel(2, 3))
	assert.Equal(t, ViolationCritical, violationLevel(3, 3))
	assert.Equal(t, ViolationCritical, violationLevel(4, 3))
}

func TestCloseWarning(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, Start{}, Visibility{Hidden: true}, CloseWarning{}, CloseWarning{})
	h.snap(t)

	h.render.mu.Lock()
	defer h.render.mu.Unlock()
	assert.Equal(t, []OverlayKind{OverlayTabWarning}, h.render.hidden)
}

func TestViolationLogFailureIsSwallowed(t *testing.T) {
	h := newHarness(t, nil)
	h.logs.err = errors.New("gateway down")

	h.send(t, Start{}, Visibility{Hidden: true})
	require.Eventually(t, func() bool { return h.logs.n.Load() == 1 }, waitFor, pollAt)

	snap := h.snap(t)
	assert.Equal(t, 1, snap.ViolationCount)
	assert.Equal(t, PhaseInProgress, snap.Phase)
}

// ─── Submission ─────────────────────────────────────────────────────

func TestManualSubmitPayload(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, Start{},
		Select{QuestionID: 1, Option: 1},
		Jump{Index: 2},
		Select{QuestionID: 3, Option: 0},
		SubmitClicked{},
	)
	h.snap(t)

	confirm := h.render.overlays(OverlayConfirmSubmit)
	require.Len(t, confirm, 1)
	assert.Equal(t, 1, confirm[0].Unanswered)
	assert.Contains(t, confirm[0].Message, "1 unanswered")

	h.send(t, ConfirmSubmit{Confirmed: true})
	require.Eventually(t, func() bool { return h.render.finalized() != nil }, waitFor, pollAt)

	reqs := h.submit.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, map[int]int{1: 1, 3: 0}, reqs[0].Answers)
	assert.Equal(t, 0, reqs[0].TabSwitches)
	assert.Equal(t, model.TriggerManual, reqs[0].SubmissionType)
	assert.NotEmpty(t, reqs[0].AttemptID)

	out := h.render.finalized()
	assert.Equal(t, model.TriggerManual, out.Trigger)
	assert.Equal(t, 2, out.Answered)
	assert.Equal(t, 3, out.Total)
	assert.Equal(t, reqs[0].AttemptID, out.AttemptID)

	require.NoError(t, <-h.runErr)
	assert.False(t, h.s.Dispatch(Next{}), "closed session accepts no input")
}

func TestCancelledConfirmDoesNotSubmit(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, Start{}, SubmitClicked{}, ConfirmSubmit{Confirmed: false}, ConfirmSubmit{Confirmed: true})

	snap := h.snap(t)
	assert.False(t, snap.Submitted)
	assert.Zero(t, h.submit.calls())
}

func TestEmptySubmissionSendsEmptyAnswers(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, Start{})
	h.manualSubmit(t)

	require.Eventually(t, func() bool { return h.submit.calls() == 1 }, waitFor, pollAt)
	reqs := h.submit.requests()
	require.NotNil(t, reqs[0].Answers)
	assert.Empty(t, reqs[0].Answers)
}

func TestRollbackOnRejection(t *testing.T) {
	h := newHarness(t, nil)
	h.submit.results = []submitResult{{ack: model.SubmitAck{Success: false}}}

	h.send(t, Start{}, Select{QuestionID: 1, Option: 0})
	h.manualSubmit(t)

	require.Eventually(t, func() bool {
		return len(h.render.overlays(OverlaySubmitError)) == 1
	}, waitFor, pollAt)

	snap := h.snap(t)
	assert.False(t, snap.Submitted)
	assert.Equal(t, PhasePendingRetry, snap.Phase)
	assert.True(t, snap.MonitorAttached)
	assert.False(t, snap.ClockRunning, "time spent submitting is not refunded")

	ctl := h.render.lastControl()
	assert.True(t, ctl.Enabled)
	assert.Equal(t, SubmitLabel, ctl.Label)
	assert.Equal(t, SubmitErrorMessage, h.render.overlays(OverlaySubmitError)[0].Message)

	// Answers changed in between must show up in the retry.
	h.send(t, Select{QuestionID: 1, Option: 2}, Select{QuestionID: 2, Option: 1})
	h.manualSubmit(t)
	require.Eventually(t, func() bool { return h.render.finalized() != nil }, waitFor, pollAt)

	reqs := h.submit.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, map[int]int{1: 0}, reqs[0].Answers)
	assert.Equal(t, map[int]int{1: 2, 2: 1}, reqs[1].Answers)
	assert.NotEqual(t, reqs[0].AttemptID, reqs[1].AttemptID)
}

func TestRollbackOnTransportError(t *testing.T) {
	h := newHarness(t, nil)
	h.submit.results = []submitResult{{err: errors.New("connection refused")}}

	h.send(t, Start{})
	h.manualSubmit(t)

	require.Eventually(t, func() bool {
		return h.snap(t).Phase == PhasePendingRetry
	}, waitFor, pollAt)
	assert.Nil(t, h.render.finalized())
}

func TestSubmitTimeoutRollsBack(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.SubmitTimeout = 30 * time.Millisecond })
	h.submit.gate = make(chan struct{}) // never released

	h.send(t, Start{})
	h.manualSubmit(t)

	require.Eventually(t, func() bool {
		return h.snap(t).Phase == PhasePendingRetry
	}, waitFor, pollAt)
	assert.Equal(t, 1, h.submit.calls())
}

func TestAtMostOnceWhileInFlight(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.DurationSeconds = 2 })
	gate := make(chan struct{})
	h.submit.gate = gate

	h.send(t, Start{})
	h.manualSubmit(t)
	require.Eventually(t, func() bool { return h.submit.calls() == 1 }, waitFor, pollAt)

	h.send(t, ticks(3)...)
	h.send(t, hideShow(5)...)
	h.manualSubmit(t)

	snap := h.snap(t)
	assert.True(t, snap.Submitted)
	assert.Equal(t, PhaseSubmitting, snap.Phase)
	assert.Equal(t, 2, snap.RemainingSeconds, "clock stopped when submission began")
	assert.Zero(t, snap.ViolationCount, "monitor detached while submitting")
	assert.Equal(t, 1, snap.Attempts)

	ctl := h.render.lastControl()
	assert.False(t, ctl.Enabled)
	assert.True(t, ctl.Pending)
	assert.Equal(t, SubmittingLabel, ctl.Label)

	close(gate)
	require.Eventually(t, func() bool { return h.render.finalized() != nil }, waitFor, pollAt)
	assert.Equal(t, 1, h.submit.calls())
}

func TestViolationWinsOverLaterTimeout(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.DurationSeconds = 1
		o.Threshold = 1
		o.Grace = 50 * time.Millisecond
	})

	h.send(t, Start{})
	h.send(t, hideShow(2)...)
	h.send(t, Tick{})
	h.manualSubmit(t)

	require.Eventually(t, func() bool { return h.render.finalized() != nil }, waitFor, pollAt)
	reqs := h.submit.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, model.TriggerTabViolation, reqs[0].SubmissionType)
	assert.Equal(t, 2, reqs[0].TabSwitches)
}

func TestSelectionLockedWhileSubmitting(t *testing.T) {
	h := newHarness(t, nil)
	h.submit.gate = make(chan struct{})
	t.Cleanup(func() { close(h.submit.gate) })

	h.send(t, Start{})
	h.manualSubmit(t)
	h.send(t, Select{QuestionID: 1, Option: 1}, Next{})

	snap := h.snap(t)
	assert.Empty(t, snap.Answers)
	assert.Equal(t, 1, snap.CurrentIndex, "navigation stays available")
}

// ─── Autosave ───────────────────────────────────────────────────────

func TestAutosaveWritesSinks(t *testing.T) {
	sink := &memorySink{}
	h := newHarness(t, func(o *Options) {
		o.Snapshots = []SnapshotSink{sink}
		o.AutosaveInterval = time.Hour
	})

	h.send(t, Autosave{})
	h.snap(t)
	assert.Zero(t, sink.count(), "nothing to save before start")

	h.send(t, Start{}, Select{QuestionID: 2, Option: 1}, Autosave{})
	require.Eventually(t, func() bool { return sink.count() == 1 }, waitFor, pollAt)
	assert.Equal(t, map[int]int{2: 1}, sink.last())
}

func TestSnapshotAfterClose(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, Start{}, Select{QuestionID: 3, Option: 2})
	h.manualSubmit(t)
	<-h.s.Done()

	snap := h.snap(t)
	assert.True(t, snap.Closed)
	assert.Equal(t, map[int]int{3: 2}, snap.Answers)
}
