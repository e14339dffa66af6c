package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/stemsi/exstem-proctor/internal/session"
)

const paletteColumns = 10

// View implements tea.Model.
func (m Model) View() string {
	if m.outcome != nil {
		return m.finalView()
	}

	sections := []string{m.headerView()}
	if o, ok := m.blockingOverlay(); ok {
		sections = append(sections, m.overlayView(o))
	} else {
		for _, kind := range []session.OverlayKind{session.OverlaySubmitError, session.OverlayTabWarning} {
			if o, ok := m.overlays[kind]; ok {
				sections = append(sections, m.overlayView(o))
			}
		}
		sections = append(sections, m.questionView(), m.paletteView())
	}
	sections = append(sections, m.footerView())

	body := lipgloss.JoinVertical(lipgloss.Left, sections...)
	if m.width > 0 {
		return lipgloss.NewStyle().MaxWidth(m.width).Render(body)
	}
	return body
}

func (m Model) blockingOverlay() (session.Overlay, bool) {
	for _, kind := range []session.OverlayKind{session.OverlayTerminated, session.OverlayConfirmSubmit} {
		if o, ok := m.overlays[kind]; ok {
			return o, true
		}
	}
	return session.Overlay{}, false
}

// ─── Sections ───────────────────────────────────────────────────────

func (m Model) headerView() string {
	timer := timerStyle
	if m.timer.Warning {
		timer = timerWarningStyle
	}
	vstyle, ok := violationStyles[string(m.violations.Level)]
	if !ok {
		vstyle = violationStyles["normal"]
	}

	left := titleStyle.Render("EXSTEM") + "  " + timer.Render("⏱ "+m.timerText())
	right := mutedStyle.Render("Tab switches ") + vstyle.Render(m.violations.Text())
	progressLine := m.progress.ViewAs(float64(m.palette.Progress)/100) +
		mutedStyle.Render(fmt.Sprintf("  %d answered · %d left", m.palette.Answered, m.palette.Unanswered))

	return lipgloss.JoinVertical(lipgloss.Left, left+"    "+right, progressLine, "")
}

func (m Model) timerText() string {
	if m.timer.Text == "" {
		return "--:--"
	}
	return m.timer.Text
}

func (m Model) questionView() string {
	if !m.hasQuestion {
		return mutedStyle.Render("Waiting for the exam to start...")
	}
	q := m.question

	heading := mutedStyle.Render(fmt.Sprintf("Question %d of %d", q.Position+1, q.Total))
	if q.Marked {
		heading += "  " + reviewStyle.Render("★ marked for review")
	}

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(m.renderPrompt(q.Question.Prompt))
	b.WriteString("\n")

	for i, opt := range q.Question.Options {
		pointer := "  "
		if i == m.cursor {
			pointer = cursorStyle.Render("▸ ")
		}
		mark := "( )"
		line := fmt.Sprintf("%s %d. %s", mark, i+1, opt)
		if i == q.Selected {
			line = selectedStyle.Render(fmt.Sprintf("(•) %d. %s", i+1, opt))
		}
		b.WriteString(optionStyle.Render(pointer + line))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderPrompt(prompt string) string {
	if m.md != nil {
		if out, err := m.md.Render(prompt); err == nil {
			return strings.TrimSpace(out)
		}
	}
	return promptStyle.Render(prompt)
}

func (m Model) paletteView() string {
	if len(m.palette.Cells) == 0 {
		return ""
	}

	var rows []string
	var row []string
	for _, c := range m.palette.Cells {
		label := fmt.Sprintf("%d", c.Position+1)
		if c.Marked {
			label += "*"
		}
		style := cellUnvisited
		switch c.Status {
		case session.CellAnswered:
			style = cellAnswered
		case session.CellVisited:
			style = cellVisited
		}
		cell := style.Render(label)
		if c.Current {
			cell = cellCurrent.Render(cell)
		}
		row = append(row, cell)
		if len(row) == paletteColumns {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...) + "\n"
}

func (m Model) footerView() string {
	var submit string
	if m.control.Pending {
		submit = submitPendingStyle.Render(m.spinner.View() + " " + m.control.Label)
	} else {
		label := m.control.Label
		if label == "" {
			label = session.SubmitLabel
		}
		submit = submitStyle.Render(label + " [s]")
	}

	lines := []string{submit}
	if m.quitArmed {
		lines = append(lines, errorStyle.Render("Press ctrl+c again to leave. Your answers will not be submitted."))
	}
	m.help.ShowAll = m.showHelp
	lines = append(lines, m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) overlayView(o session.Overlay) string {
	switch o.Kind {
	case session.OverlayTabWarning:
		return overlayWarningStyle.Render(fmt.Sprintf(
			"Warning: you left the exam window.\n\nTab switches: %d / %d\nThe test is submitted automatically after %d switches.\n\n[enter] close",
			o.Count, o.Threshold, o.Threshold))
	case session.OverlayTerminated:
		return overlayCriticalStyle.Render(fmt.Sprintf(
			"Session terminated.\n\nYou switched away %d times (limit %d).\nYour answers are being submitted.",
			o.Count, o.Threshold))
	case session.OverlayConfirmSubmit:
		return overlayStyle.Render(o.Message + "\n\n[y] submit   [esc] keep working")
	case session.OverlaySubmitError:
		return overlayCriticalStyle.Render(errorStyle.Render(o.Message) + "\n\n[enter] close")
	}
	return ""
}

func (m Model) finalView() string {
	o := m.outcome
	var b strings.Builder
	b.WriteString(titleStyle.Render("Test submitted"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("Answered %d of %d questions (%s).\n", o.Answered, o.Total, o.Trigger))

	switch {
	case m.score != nil:
		s := m.score
		b.WriteString(fmt.Sprintf("Score: %d / %d (%.1f%%)\n", s.Score, s.Total, s.Percentage))
		b.WriteString(selectedStyle.Render(fmt.Sprintf("Scholarship: %d%%", s.ScholarshipPercent)))
		b.WriteString("\n" + mutedStyle.Render(s.ScholarshipMessage) + "\n")
	case m.scoreErr != nil:
		b.WriteString(mutedStyle.Render("Score is not available yet.") + "\n")
	case m.fetchScore != nil:
		b.WriteString(mutedStyle.Render("Fetching score...") + "\n")
	}
	b.WriteString("\n" + mutedStyle.Render("Press q to exit."))
	return b.String()
}
