package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/session"
)

const scoreFetchTimeout = 10 * time.Second

type scoreMsg struct {
	summary model.ScoreSummary
	err     error
}

// Options configures the exam screen.
type Options struct {
	// Dispatch delivers input to the session loop.
	Dispatch func(session.Event) bool
	// FetchScore, when set, is called once after a successful submission.
	FetchScore func(ctx context.Context) (model.ScoreSummary, error)
	Shortcuts  bool
	Markdown   bool
	Keys       *KeyMap
}

// Model is the bubbletea program for one exam. It holds only what it was
// last told to draw; every decision is made by the session.
type Model struct {
	keys       KeyMap
	help       help.Model
	dispatch   func(session.Event) bool
	fetchScore func(ctx context.Context) (model.ScoreSummary, error)
	shortcuts  bool
	md         *glamour.TermRenderer

	spinner  spinner.Model
	progress progress.Model
	width    int
	height   int

	question    session.QuestionView
	hasQuestion bool
	cursor      int
	palette     session.PaletteView
	timer       session.TimerView
	violations  session.ViolationView
	control     session.SubmitControl
	overlays    map[session.OverlayKind]session.Overlay

	outcome  *session.Outcome
	score    *model.ScoreSummary
	scoreErr error

	quitArmed bool
	showHelp  bool
}

// New builds the screen model.
func New(opts Options) Model {
	keys := DefaultKeyMap()
	if opts.Keys != nil {
		keys = *opts.Keys
	}
	dispatch := opts.Dispatch
	if dispatch == nil {
		dispatch = func(session.Event) bool { return false }
	}

	m := Model{
		keys:       keys,
		help:       help.New(),
		dispatch:   dispatch,
		fetchScore: opts.FetchScore,
		shortcuts:  opts.Shortcuts,
		spinner:    spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(cursorStyle)),
		progress:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
		overlays:   make(map[session.OverlayKind]session.Overlay),
		control:    session.SubmitControl{Label: session.SubmitLabel},
	}
	if opts.Markdown {
		if r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(76)); err == nil {
			m.md = r
		}
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		if w := msg.Width - 40; w > 10 {
			m.progress.Width = min(w, 40)
		}
		return m, nil

	// Focus reporting stands in for tab visibility.
	case tea.BlurMsg:
		m.dispatch(session.Visibility{Hidden: true})
		return m, nil
	case tea.FocusMsg:
		m.dispatch(session.Visibility{Hidden: false})
		return m, nil

	case questionMsg:
		v := session.QuestionView(msg)
		if !m.hasQuestion || v.Position != m.question.Position {
			m.cursor = 0
		}
		if v.Selected >= 0 {
			m.cursor = v.Selected
		}
		m.question, m.hasQuestion = v, true
		return m, nil
	case paletteMsg:
		m.palette = session.PaletteView(msg)
		return m, nil
	case timerMsg:
		m.timer = session.TimerView(msg)
		return m, nil
	case violationsMsg:
		m.violations = session.ViolationView(msg)
		return m, nil
	case controlMsg:
		wasPending := m.control.Pending
		m.control = session.SubmitControl(msg)
		if m.control.Pending && !wasPending {
			return m, m.spinner.Tick
		}
		return m, nil
	case showOverlayMsg:
		o := session.Overlay(msg)
		m.overlays[o.Kind] = o
		return m, nil
	case hideOverlayMsg:
		delete(m.overlays, session.OverlayKind(msg))
		return m, nil
	case finalizeMsg:
		out := session.Outcome(msg)
		m.outcome = &out
		m.overlays = make(map[session.OverlayKind]session.Overlay)
		m.control.Pending = false
		return m, m.loadScore()
	case scoreMsg:
		if msg.err != nil {
			m.scoreErr = msg.err
		} else {
			m.score = &msg.summary
		}
		return m, nil

	case spinner.TickMsg:
		if !m.control.Pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) loadScore() tea.Cmd {
	if m.fetchScore == nil {
		return nil
	}
	fetch := m.fetchScore
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), scoreFetchTimeout)
		defer cancel()
		summary, err := fetch(ctx)
		return scoreMsg{summary: summary, err: err}
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		// Leaving mid-exam takes a second press.
		if m.outcome != nil || m.quitArmed {
			return m, tea.Quit
		}
		m.quitArmed = true
		return m, nil
	}
	m.quitArmed = false

	if m.outcome != nil {
		switch msg.String() {
		case "q", "enter", "esc":
			return m, tea.Quit
		}
		return m, nil
	}

	if _, ok := m.overlays[session.OverlayTerminated]; ok {
		return m, nil
	}
	if _, ok := m.overlays[session.OverlayConfirmSubmit]; ok {
		switch {
		case key.Matches(msg, m.keys.Confirm):
			m.dispatch(session.ConfirmSubmit{Confirmed: true})
		case key.Matches(msg, m.keys.Cancel):
			m.dispatch(session.ConfirmSubmit{Confirmed: false})
		}
		return m, nil
	}
	if _, ok := m.overlays[session.OverlaySubmitError]; ok {
		if dismisses(msg) {
			delete(m.overlays, session.OverlaySubmitError)
			return m, nil
		}
	}
	if _, ok := m.overlays[session.OverlayTabWarning]; ok {
		if dismisses(msg) {
			m.dispatch(session.CloseWarning{})
			return m, nil
		}
	}

	switch {
	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
	case key.Matches(msg, m.keys.Next):
		if m.question.IsLast {
			m.dispatch(session.SubmitClicked{})
		} else {
			m.dispatch(session.Next{})
		}
	case key.Matches(msg, m.keys.Previous):
		m.dispatch(session.Previous{})
	case key.Matches(msg, m.keys.First):
		m.dispatch(session.Jump{Index: 0})
	case key.Matches(msg, m.keys.Last):
		m.dispatch(session.Jump{Index: m.question.Total - 1})
	case key.Matches(msg, m.keys.FirstUnanswered):
		m.dispatch(session.JumpFirstUnanswered{})
	case key.Matches(msg, m.keys.Review):
		m.dispatch(session.ToggleReview{})
	case key.Matches(msg, m.keys.OptionUp):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.OptionDown):
		if m.cursor < len(m.question.Question.Options)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Choose):
		if m.hasQuestion {
			m.dispatch(session.Select{QuestionID: m.question.Question.ID, Option: m.cursor})
		}
	case key.Matches(msg, m.keys.Submit):
		m.dispatch(session.SubmitClicked{})
	default:
		if d, ok := digit(msg); ok && m.shortcuts {
			if d-1 < len(m.question.Question.Options) {
				m.cursor = d - 1
			}
			m.dispatch(session.Shortcut{Digit: d})
		}
	}
	return m, nil
}

// dismisses reports whether msg closes a non-blocking overlay.
func dismisses(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "esc", "enter":
		return true
	}
	return false
}

func digit(msg tea.KeyMsg) (int, bool) {
	if msg.Type != tea.KeyRunes || len(msg.Runes) != 1 {
		return 0, false
	}
	r := msg.Runes[0]
	if r < '1' || r > '4' {
		return 0, false
	}
	return int(r - '0'), true
}
