package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
)

var (
	ErrNoQuestions       = errors.New("session needs at least one question")
	ErrDuplicateQuestion = errors.New("duplicate question id")
	ErrInvalidQuestion   = errors.New("question must have between 2 and 4 options")
	ErrInvalidDuration   = errors.New("duration must be positive")
	ErrMissingRenderer   = errors.New("renderer is required")
	ErrMissingSubmitter  = errors.New("submitter is required")
)

// Defaults applied by New when an option is left zero.
const (
	DefaultThreshold      = 3
	DefaultGrace          = 2000 * time.Millisecond
	DefaultSubmitTimeout  = 30 * time.Second
	DefaultWarningSeconds = 300

	inboxSize         = 64
	sideEffectTimeout = 10 * time.Second
)

// Options configures a Session.
type Options struct {
	Questions       []model.QuestionForStudent
	DurationSeconds int

	// Threshold is the number of tolerated hide transitions; one more
	// terminates the session.
	Threshold      int
	Grace          time.Duration
	SubmitTimeout  time.Duration
	WarningSeconds int
	// AutosaveInterval <= 0 disables periodic snapshots.
	AutosaveInterval time.Duration
	// Shortcuts enables numeric option selection.
	Shortcuts bool

	Submitter  Submitter
	Violations ViolationLogger // optional
	Snapshots  []SnapshotSink  // optional
	Renderer   Renderer

	Log       zerolog.Logger
	NewTicker TickerFunc
}

// Snapshot is a read-only copy of the session taken inside the loop.
type Snapshot struct {
	State
	Phase           Phase
	Answers         map[int]int
	Visited         []int
	Marked          []int
	Attempts        int
	ClockRunning    bool
	MonitorAttached bool
	Terminating     bool
}

// Session is the orchestrator. It owns State and every component, and is the
// only goroutine that touches them: all input goes through Dispatch and is
// applied by Run one event at a time.
type Session struct {
	opts Options
	log  zerolog.Logger

	state   State
	answers *AnswerStore
	nav     *Navigator
	clock   *Clock
	monitor *Monitor
	coord   *Coordinator
	render  Renderer

	inbox chan Event
	done  chan struct{}
	ctx   context.Context

	autosave     Ticker
	stopAutosave chan struct{}

	confirmOpen bool
	warningOpen bool

	final Snapshot
}

// New validates opts and builds an idle session. Call Run to start the loop
// and Dispatch(Start{}) to begin the exam.
func New(opts Options) (*Session, error) {
	if len(opts.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	seen := make(map[int]struct{}, len(opts.Questions))
	for _, q := range opts.Questions {
		if _, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateQuestion, q.ID)
		}
		seen[q.ID] = struct{}{}
		if n := len(q.Options); n < model.MinOptions || n > model.MaxOptions {
			return nil, fmt.Errorf("%w: question %d has %d", ErrInvalidQuestion, q.ID, n)
		}
	}
	if opts.DurationSeconds <= 0 {
		return nil, ErrInvalidDuration
	}
	if opts.Renderer == nil {
		return nil, ErrMissingRenderer
	}
	if opts.Submitter == nil {
		return nil, ErrMissingSubmitter
	}

	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = DefaultSubmitTimeout
	}
	if opts.WarningSeconds <= 0 {
		opts.WarningSeconds = DefaultWarningSeconds
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewStdTicker
	}

	s := &Session{
		opts:   opts,
		log:    opts.Log.With().Str("component", "session").Logger(),
		render: opts.Renderer,
		inbox:  make(chan Event, inboxSize),
		done:   make(chan struct{}),
		ctx:    context.Background(),
	}
	s.state.RemainingSeconds = opts.DurationSeconds

	s.answers = newAnswerStore(opts.Questions)
	s.nav = newNavigator(&s.state, s.answers, s.render)
	s.clock = newClock(&s.state, s.render, opts.WarningSeconds, opts.NewTicker)
	s.monitor = newMonitor(&s.state, s.render, opts.Threshold)
	s.coord = &Coordinator{
		state:   &s.state,
		answers: s.answers,
		clock:   s.clock,
		monitor: s.monitor,
		render:  s.render,
		submit:  opts.Submitter,
		log:     opts.Log.With().Str("component", "submission").Logger(),
		grace:   opts.Grace,
		timeout: opts.SubmitTimeout,
		post:    s.Dispatch,
	}
	return s, nil
}

// Dispatch queues ev for the loop. It returns false once the session has
// stopped.
func (s *Session) Dispatch(ev Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.inbox <- ev:
		return true
	case <-s.done:
		return false
	}
}

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} { return s.done }

// Run applies events until the submission is acknowledged or ctx is
// cancelled. It must be called exactly once.
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx
	s.coord.ctx = ctx
	defer s.teardown()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Str("phase", string(s.phase())).Msg("Session loop cancelled")
			return ctx.Err()
		case ev := <-s.inbox:
			if s.handle(ev) {
				return nil
			}
		}
	}
}

// Snapshot returns a copy of the session state. After Run has returned it
// reports the final state.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	q := stateQuery{reply: make(chan Snapshot, 1)}
	select {
	case s.inbox <- q:
	case <-s.done:
		return s.final, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}

	select {
	case snap := <-q.reply:
		return snap, nil
	case <-s.done:
		return s.final, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (s *Session) teardown() {
	s.clock.Stop()
	s.coord.stop()
	s.stopAutosaveLoop()
	s.final = s.snapshot()
	close(s.done)
}

// handle applies one event. It returns true when the session is finished.
func (s *Session) handle(ev Event) bool {
	switch e := ev.(type) {
	case Start:
		s.onStart()
	case Tick:
		if s.clock.Tick() {
			s.log.Info().Msg("Time is up")
			s.request(model.TriggerTimeout)
		}
	case Visibility:
		s.onVisibility(e.Hidden)
	case Next:
		if s.navigable() {
			s.nav.Next()
		}
	case Previous:
		if s.navigable() {
			s.nav.Previous()
		}
	case Jump:
		if s.navigable() {
			s.nav.Jump(e.Index)
		}
	case JumpFirstUnanswered:
		if s.navigable() {
			if pos, ok := s.answers.FirstUnanswered(); ok {
				s.nav.Jump(pos)
			}
		}
	case ToggleReview:
		if s.navigable() {
			s.nav.ToggleReview()
		}
	case Select:
		s.onSelect(e.QuestionID, e.Option)
	case Shortcut:
		s.onShortcut(e.Digit)
	case SubmitClicked:
		s.onSubmitClicked()
	case ConfirmSubmit:
		s.onConfirm(e.Confirmed)
	case CloseWarning:
		if s.warningOpen {
			s.warningOpen = false
			s.render.HideOverlay(OverlayTabWarning)
		}
	case Autosave:
		s.onAutosave()
	case graceElapsed:
		s.coord.onGrace(e)
	case submissionDone:
		if s.coord.onResult(e) {
			s.finish()
			return true
		}
	case stateQuery:
		e.reply <- s.snapshot()
	}
	return false
}

// ─── Handlers ───────────────────────────────────────────────────────

func (s *Session) onStart() {
	if s.state.Started || s.state.Closed {
		return
	}
	s.state.Started = true
	s.state.CurrentIndex = 0
	s.answers.MarkVisited(0)

	s.nav.Refresh()
	s.monitor.Refresh()
	s.render.RenderSubmitControl(SubmitControl{Enabled: true, Label: SubmitLabel})
	s.clock.Start(s.Dispatch)
	s.startAutosaveLoop()

	s.log.Info().
		Int("questions", s.answers.Len()).
		Int("duration_seconds", s.state.RemainingSeconds).
		Int("threshold", s.opts.Threshold).
		Msg("Session started")
}

func (s *Session) onVisibility(hidden bool) {
	switch s.monitor.Observe(hidden) {
	case VerdictWarn:
		s.logViolation()
		s.warningOpen = true
		s.render.ShowOverlay(Overlay{
			Kind:      OverlayTabWarning,
			Count:     s.state.ViolationCount,
			Threshold: s.opts.Threshold,
		})
	case VerdictTerminate:
		s.logViolation()
		s.request(model.TriggerTabViolation)
	}
}

func (s *Session) onSelect(questionID, option int) {
	if !s.selectable() {
		return
	}
	if s.answers.Select(questionID, option) {
		s.nav.Refresh()
	}
}

// onShortcut maps "1".."4" onto the options of the current question.
func (s *Session) onShortcut(digit int) {
	if !s.opts.Shortcuts || !s.selectable() {
		return
	}
	q, ok := s.answers.At(s.state.CurrentIndex)
	if !ok {
		return
	}
	s.onSelect(q.ID, digit-1)
}

func (s *Session) onSubmitClicked() {
	if !s.state.Started || s.state.Submitted || s.state.Closed || s.confirmOpen {
		return
	}
	unanswered := s.answers.UnansweredCount()
	msg := "Submit your test? You will not be able to change answers afterwards."
	if unanswered > 0 {
		msg = fmt.Sprintf("You have %d unanswered question(s). Submit anyway?", unanswered)
	}
	s.confirmOpen = true
	s.render.ShowOverlay(Overlay{
		Kind:       OverlayConfirmSubmit,
		Blocking:   true,
		Unanswered: unanswered,
		Message:    msg,
	})
}

func (s *Session) onConfirm(confirmed bool) {
	if !s.confirmOpen {
		return
	}
	s.confirmOpen = false
	s.render.HideOverlay(OverlayConfirmSubmit)
	if confirmed {
		s.request(model.TriggerManual)
	}
}

// request hands a trigger to the coordinator, closing any dialog that would
// otherwise sit on top of the submission state.
func (s *Session) request(trigger model.Trigger) {
	if s.state.Submitted || s.state.Closed {
		s.coord.Request(trigger)
		return
	}
	if s.confirmOpen {
		s.confirmOpen = false
		s.render.HideOverlay(OverlayConfirmSubmit)
	}
	if s.warningOpen {
		s.warningOpen = false
		s.render.HideOverlay(OverlayTabWarning)
	}
	s.render.HideOverlay(OverlaySubmitError)
	s.coord.Request(trigger)
}

func (s *Session) finish() {
	s.stopAutosaveLoop()
	s.render.Finalize(Outcome{
		Trigger:   s.lastTrigger(),
		Answered:  s.answers.Answered(),
		Total:     s.answers.Len(),
		AttemptID: s.coord.attemptID,
	})
}

// ─── Side effects ───────────────────────────────────────────────────

// logViolation notifies the logging endpoint without waiting for it.
func (s *Session) logViolation() {
	if s.opts.Violations == nil {
		return
	}
	count := s.state.ViolationCount
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, sideEffectTimeout)
		defer cancel()
		if err := s.opts.Violations.LogViolation(ctx); err != nil {
			s.log.Warn().Err(err).Int("count", count).Msg("Failed to log tab switch")
		}
	}()
}

func (s *Session) onAutosave() {
	if !s.state.Started || s.state.Closed || len(s.opts.Snapshots) == 0 {
		return
	}
	answers := s.answers.Collect()
	for _, sink := range s.opts.Snapshots {
		go func(sink SnapshotSink) {
			ctx, cancel := context.WithTimeout(s.ctx, sideEffectTimeout)
			defer cancel()
			if err := sink.SaveAnswers(ctx, answers); err != nil {
				s.log.Warn().Err(err).Int("answered", len(answers)).Msg("Autosave failed")
			}
		}(sink)
	}
}

func (s *Session) startAutosaveLoop() {
	if s.opts.AutosaveInterval <= 0 || len(s.opts.Snapshots) == 0 {
		return
	}
	t := s.opts.NewTicker(s.opts.AutosaveInterval)
	stop := make(chan struct{})
	s.autosave, s.stopAutosave = t, stop

	go func() {
		for {
			select {
			case <-t.C():
				if !s.Dispatch(Autosave{}) {
					return
				}
			case <-stop:
				return
			}
		}
	}()
}

func (s *Session) stopAutosaveLoop() {
	if s.autosave == nil {
		return
	}
	s.autosave.Stop()
	close(s.stopAutosave)
	s.autosave, s.stopAutosave = nil, nil
}

// ─── Queries ────────────────────────────────────────────────────────

// navigable is false before start, after close and while the terminated
// notice is up.
func (s *Session) navigable() bool {
	return s.state.Started && !s.state.Closed && !s.coord.terminating
}

// selectable additionally locks answers while a submission is in flight.
func (s *Session) selectable() bool {
	return s.navigable() && !s.state.Submitted
}

func (s *Session) phase() Phase {
	return s.state.phase(s.coord.rollbacks > 0)
}

func (s *Session) lastTrigger() model.Trigger {
	return s.coord.lastTrigger
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		State:           s.state,
		Phase:           s.phase(),
		Answers:         s.answers.Collect(),
		Attempts:        s.coord.attempt,
		ClockRunning:    s.clock.Running(),
		MonitorAttached: s.monitor.Attached(),
		Terminating:     s.coord.terminating,
	}
	for pos := range s.answers.visited {
		snap.Visited = append(snap.Visited, pos)
	}
	for pos := range s.answers.review {
		snap.Marked = append(snap.Marked, pos)
	}
	sort.Ints(snap.Visited)
	sort.Ints(snap.Marked)
	return snap
}
