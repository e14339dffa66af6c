package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stemsi/exstem-proctor/internal/client"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stemsi/exstem-proctor/internal/snapshot"
	"github.com/stemsi/exstem-proctor/internal/tui"
)

var ErrNoTerminal = errors.New("proctor take needs an interactive terminal")

func newTakeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "take",
		Short: "Start the exam assigned to your token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTake(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&cfg.ExamTransport, "transport", cfg.ExamTransport, "submission transport: http or ws")
	cmd.Flags().IntVar(&cfg.MaxTabSwitches, "max-tab-switches", cfg.MaxTabSwitches, "tolerated focus losses before the exam is terminated")
	cmd.Flags().BoolVar(&cfg.Shortcuts, "shortcuts", cfg.Shortcuts, "select options with the 1-4 keys")
	cmd.Flags().BoolVar(&cfg.RenderMarkdown, "markdown", cfg.RenderMarkdown, "render question prompts as markdown")
	return cmd
}

func runTake(ctx context.Context, cfg *config.Config) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return ErrNoTerminal
	}
	if cfg.ExamToken == "" {
		return errors.New("no token: set EXAM_TOKEN or pass --token")
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM)
	defer stop()

	logFile, err := logger.OpenFile(cfg.ClientLogFile)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	log := logger.Setup(cfg.LogLevel, "json", logFile)

	sessionID := uuid.NewString()
	log = log.With().Str("session_id", sessionID).Logger()

	httpT := client.NewHTTPTransport(cfg.ExamBaseURL, cfg.ExamToken, nil, log)

	paperCtx, cancelPaper := context.WithTimeout(ctx, cfg.SubmitTimeout)
	paper, err := httpT.Paper(paperCtx)
	cancelPaper()
	if err != nil {
		return fmt.Errorf("load paper: %w", err)
	}
	log.Info().
		Str("class_level", paper.ClassLevel).
		Str("stream", paper.Stream).
		Str("set", paper.Set).
		Int("questions", len(paper.Questions)).
		Msg("Paper loaded")

	var (
		submitter  session.Submitter       = httpT
		violations session.ViolationLogger = httpT
		sinks      []session.SnapshotSink
	)

	store, err := snapshot.Open(ctx, cfg.SnapshotPath, sessionID, log)
	if err != nil {
		log.Warn().Err(err).Msg("Local snapshots disabled")
	} else {
		defer store.Close()
		sinks = append(sinks, store)
	}

	if cfg.ExamTransport == "ws" {
		wsT, err := client.DialWS(ctx, cfg.ExamBaseURL, cfg.ExamToken, log)
		if err != nil {
			return fmt.Errorf("connect stream: %w", err)
		}
		defer wsT.Close()
		submitter, violations = wsT, wsT
		sinks = append(sinks, wsT)
	}

	var sess *session.Session
	screen := tui.New(tui.Options{
		Dispatch:   func(ev session.Event) bool { return sess.Dispatch(ev) },
		FetchScore: httpT.Score,
		Shortcuts:  cfg.Shortcuts,
		Markdown:   cfg.RenderMarkdown,
	})
	program := tea.NewProgram(screen,
		tea.WithAltScreen(),
		tea.WithReportFocus(),
		tea.WithContext(ctx),
	)
	bridge := tui.NewBridge(program)
	defer bridge.Close()

	sess, err = session.New(session.Options{
		Questions:        paper.Questions,
		DurationSeconds:  paper.DurationSeconds,
		Threshold:        cfg.MaxTabSwitches,
		Grace:            cfg.TerminationGrace,
		SubmitTimeout:    cfg.SubmitTimeout,
		WarningSeconds:   cfg.TimerWarning,
		AutosaveInterval: cfg.AutosaveInterval,
		Shortcuts:        cfg.Shortcuts,
		Submitter:        submitter,
		Violations:       violations,
		Snapshots:        sinks,
		Renderer:         bridge,
		Log:              log,
	})
	if err != nil {
		return fmt.Errorf("build session: %w", err)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	go func() {
		if err := sess.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Session loop stopped")
		}
	}()
	sess.Dispatch(session.Start{})

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run screen: %w", err)
	}

	cancelRun()
	<-sess.Done()
	return report(ctx, sess, log)
}

// report prints the final state once the screen is gone.
func report(ctx context.Context, sess *session.Session, log zerolog.Logger) error {
	snap, err := sess.Snapshot(ctx)
	if err != nil {
		return err
	}
	log.Info().Str("phase", string(snap.Phase)).Int("answered", len(snap.Answers)).Msg("Client exiting")

	switch snap.Phase {
	case session.PhaseSubmitted:
		fmt.Printf("Submitted %d answer(s).\n", len(snap.Answers))
		return nil
	case session.PhaseNotStarted:
		return nil
	}
	fmt.Printf("Left the exam without a confirmed submission (%s). Your answers are kept in the local snapshot store.\n", snap.Phase)
	return nil
}
