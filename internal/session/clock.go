package session

import "time"

// Clock turns a tick source into a decreasing remaining time and reports
// expiry once.
type Clock struct {
	state     *State
	render    Renderer
	warnAt    int
	newTicker TickerFunc

	running bool
	warning bool
	stop    func()
}

func newClock(state *State, render Renderer, warnAt int, newTicker TickerFunc) *Clock {
	if newTicker == nil {
		newTicker = NewStdTicker
	}
	return &Clock{state: state, render: render, warnAt: warnAt, newTicker: newTicker}
}

// Start begins the one-second tick. Ticks are posted back into the loop as
// Tick events; the clock only changes state when the loop calls Tick.
func (c *Clock) Start(post func(Event) bool) {
	if c.running {
		return
	}
	c.running = true
	c.display()

	t := c.newTicker(time.Second)
	done := make(chan struct{})
	c.stop = func() {
		t.Stop()
		close(done)
	}

	go func() {
		for {
			select {
			case at := <-t.C():
				if !post(Tick{At: at}) {
					return
				}
			case <-done:
				return
			}
		}
	}()
}

// Stop cancels the tick. Safe to call when already stopped.
func (c *Clock) Stop() {
	if !c.running {
		return
	}
	c.running = false
	c.stop()
	c.stop = nil
}

// Running reports whether ticks are still being applied.
func (c *Clock) Running() bool { return c.running }

// Tick applies one tick and returns true on the tick that reaches zero.
// Ticks arriving after Stop are discarded.
func (c *Clock) Tick() bool {
	if !c.running {
		return false
	}

	c.state.RemainingSeconds--
	if c.state.RemainingSeconds <= 0 {
		c.state.RemainingSeconds = 0
		c.display()
		c.Stop()
		return true
	}

	c.display()
	return false
}

func (c *Clock) display() {
	rs := c.state.RemainingSeconds
	// One-way: once warned the flag stays even if time were to go up.
	if rs <= c.warnAt && rs > 0 {
		c.warning = true
	}
	c.render.RenderTimer(TimerView{
		Text:    FormatClock(rs),
		Seconds: rs,
		Warning: c.warning,
	})
}
