package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrSubmissionRejected is reported when the endpoint answered with
// success=false.
var ErrSubmissionRejected = errors.New("submission rejected")

// Coordinator is the only code that flips the latch. Every trigger goes
// through Request; the first one handled wins and the rest are no-ops until
// a failed attempt rolls the latch back.
type Coordinator struct {
	state   *State
	answers *AnswerStore
	clock   *Clock
	monitor *Monitor
	render  Renderer
	submit  Submitter
	log     zerolog.Logger

	grace   time.Duration
	timeout time.Duration

	ctx  context.Context
	post func(Event) bool

	attempt     int    // bumped per dispatched payload
	attemptID   string // audit id of the in-flight attempt
	lastTrigger model.Trigger
	inFlight    bool
	terminating bool // terminated notice up, payload not yet dispatched
	graceTimer  *time.Timer
	rollbacks   int
}

// Request starts a submission sequence for trigger. It returns false when
// the latch was already held.
func (c *Coordinator) Request(trigger model.Trigger) bool {
	if c.state.Submitted || c.state.Closed {
		c.log.Debug().Str("trigger", string(trigger)).Msg("Submission already in progress, ignoring trigger")
		return false
	}
	c.state.Submitted = true
	c.clock.Stop()
	c.monitor.Detach()

	c.render.RenderSubmitControl(SubmitControl{Enabled: false, Pending: true, Label: SubmittingLabel})

	if trigger == model.TriggerTabViolation {
		c.terminating = true
		c.render.ShowOverlay(Overlay{
			Kind:      OverlayTerminated,
			Blocking:  true,
			Count:     c.state.ViolationCount,
			Threshold: c.monitor.Threshold(),
		})
		c.log.Warn().Int("violations", c.state.ViolationCount).Dur("grace", c.grace).Msg("Session terminated, submitting after grace")
		c.graceTimer = time.AfterFunc(c.grace, func() {
			c.post(graceElapsed{trigger: trigger})
		})
		return true
	}

	c.dispatch(trigger)
	return true
}

// onGrace fires once the terminated notice has been on screen long enough.
func (c *Coordinator) onGrace(ev graceElapsed) {
	if !c.terminating {
		return
	}
	c.terminating = false
	c.graceTimer = nil
	c.dispatch(ev.trigger)
}

func (c *Coordinator) dispatch(trigger model.Trigger) {
	c.attempt++
	c.attemptID = uuid.NewString()
	c.lastTrigger = trigger
	c.inFlight = true

	req := model.SubmitRequest{
		Answers:        c.answers.Collect(),
		TabSwitches:    c.state.ViolationCount,
		SubmissionType: trigger,
		AttemptID:      c.attemptID,
	}
	attempt := c.attempt

	c.log.Info().
		Str("trigger", string(trigger)).
		Str("attempt_id", req.AttemptID).
		Int("answered", len(req.Answers)).
		Int("tab_switches", req.TabSwitches).
		Msg("Dispatching submission")

	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
		defer cancel()

		ack, err := c.submit.Submit(ctx, req)
		if err == nil && !ack.Success {
			err = ErrSubmissionRejected
		}
		if err != nil {
			err = fmt.Errorf("submit attempt %d: %w", attempt, err)
		}
		c.post(submissionDone{attempt: attempt, ack: ack, err: err})
	}()
}

// onResult applies a submission outcome. It returns true once the session
// is closed.
func (c *Coordinator) onResult(ev submissionDone) bool {
	if !c.inFlight || ev.attempt != c.attempt {
		c.log.Debug().Int("attempt", ev.attempt).Msg("Ignoring stale submission result")
		return false
	}
	c.inFlight = false

	if ev.err == nil {
		c.state.Closed = true
		c.log.Info().Str("attempt_id", c.attemptID).Int("score", ev.ack.Score).Int("total", ev.ack.Total).Msg("Submission accepted")
		return true
	}

	c.log.Error().Err(ev.err).Str("attempt_id", c.attemptID).Msg("Submission failed, rolling back")
	c.rollbacks++
	c.state.Submitted = false
	c.monitor.Attach()
	c.render.HideOverlay(OverlayTerminated)
	c.render.RenderSubmitControl(SubmitControl{Enabled: true, Label: SubmitLabel})
	c.render.ShowOverlay(Overlay{Kind: OverlaySubmitError, Message: SubmitErrorMessage})
	return false
}

// stop cancels a pending grace timer; used when the session is torn down.
func (c *Coordinator) stop() {
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}
}
