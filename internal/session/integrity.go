package session

// Verdict is the monitor's reaction to one visibility event.
type Verdict int

const (
	VerdictNone Verdict = iota
	VerdictWarn
	VerdictTerminate
)

// Monitor counts hide transitions. It is edge-triggered: repeated hidden
// reports without a visible report in between count once.
type Monitor struct {
	state     *State
	render    Renderer
	threshold int

	attached bool
	hidden   bool
}

func newMonitor(state *State, render Renderer, threshold int) *Monitor {
	return &Monitor{state: state, render: render, threshold: threshold, attached: true}
}

// Observe records a visibility change and returns what the session must do.
func (m *Monitor) Observe(hidden bool) Verdict {
	wasHidden := m.hidden
	m.hidden = hidden
	if !hidden || wasHidden {
		return VerdictNone
	}
	if !m.attached || !m.state.Started || m.state.Submitted || m.state.Closed {
		return VerdictNone
	}

	m.state.ViolationCount++
	m.Refresh()

	if m.state.ViolationCount > m.threshold {
		return VerdictTerminate
	}
	return VerdictWarn
}

// Detach stops counting. Visibility edges are still tracked so a window that
// was hidden while detached is not counted again on reattach.
func (m *Monitor) Detach() { m.attached = false }

// Attach resumes counting after a rolled-back submission.
func (m *Monitor) Attach() { m.attached = true }

// Attached reports whether hide transitions are being counted.
func (m *Monitor) Attached() bool { return m.attached }

// Threshold is the number of tolerated violations.
func (m *Monitor) Threshold() int { return m.threshold }

// View is the current counter display.
func (m *Monitor) View() ViolationView {
	return ViolationView{
		Count:     m.state.ViolationCount,
		Threshold: m.threshold,
		Level:     violationLevel(m.state.ViolationCount, m.threshold),
	}
}

// Refresh pushes the counter to the renderer.
func (m *Monitor) Refresh() {
	m.render.RenderViolations(m.View())
}
