package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// ─── Renderer ───────────────────────────────────────────────────────

type recordingRenderer struct {
	mu         sync.Mutex
	question   QuestionView
	palette    PaletteView
	timers     []TimerView
	violations []ViolationView
	control    SubmitControl
	shown      []Overlay
	hidden     []OverlayKind
	outcome    *Outcome
}

func (r *recordingRenderer) RenderQuestion(v QuestionView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.question = v
}

func (r *recordingRenderer) RenderPalette(v PaletteView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.palette = v
}

func (r *recordingRenderer) RenderTimer(v TimerView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timers = append(r.timers, v)
}

func (r *recordingRenderer) RenderViolations(v ViolationView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.violations = append(r.violations, v)
}

func (r *recordingRenderer) RenderSubmitControl(v SubmitControl) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.control = v
}

func (r *recordingRenderer) ShowOverlay(o Overlay) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown = append(r.shown, o)
}

func (r *recordingRenderer) HideOverlay(k OverlayKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hidden = append(r.hidden, k)
}

func (r *recordingRenderer) Finalize(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcome = &o
}

func (r *recordingRenderer) lastQuestion() QuestionView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.question
}

func (r *recordingRenderer) lastPalette() PaletteView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.palette
}

func (r *recordingRenderer) lastControl() SubmitControl {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.control
}

func (r *recordingRenderer) timerViews() []TimerView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TimerView(nil), r.timers...)
}

func (r *recordingRenderer) lastViolation() ViolationView {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.violations) == 0 {
		return ViolationView{}
	}
	return r.violations[len(r.violations)-1]
}

func (r *recordingRenderer) overlays(kind OverlayKind) []Overlay {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Overlay
	for _, o := range r.shown {
		if o.Kind == kind {
			out = append(out, o)
		}
	}
	return out
}

func (r *recordingRenderer) finalized() *Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome
}

// ─── Submitter ──────────────────────────────────────────────────────

type submitResult struct {
	ack model.SubmitAck
	err error
}

// fakeSubmitter records payloads and answers from a script. With a gate set
// every call blocks until the gate is closed or the context expires.
type fakeSubmitter struct {
	mu      sync.Mutex
	reqs    []model.SubmitRequest
	results []submitResult
	gate    chan struct{}
}

func (f *fakeSubmitter) Submit(ctx context.Context, req model.SubmitRequest) (model.SubmitAck, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	gate := f.gate
	var res submitResult
	if len(f.results) > 0 {
		res, f.results = f.results[0], f.results[1:]
	} else {
		res = submitResult{ack: model.SubmitAck{Success: true}}
	}
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.SubmitAck{}, ctx.Err()
		}
	}
	return res.ack, res.err
}

func (f *fakeSubmitter) requests() []model.SubmitRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.SubmitRequest(nil), f.reqs...)
}

func (f *fakeSubmitter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

// ─── Collaborators ──────────────────────────────────────────────────

type countingLogger struct {
	n   atomic.Int32
	err error
}

func (c *countingLogger) LogViolation(context.Context) error {
	c.n.Add(1)
	return c.err
}

type memorySink struct {
	mu    sync.Mutex
	saved []map[int]int
}

func (m *memorySink) SaveAnswers(_ context.Context, answers map[int]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, answers)
	return nil
}

func (m *memorySink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

func (m *memorySink) last() map[int]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		return nil
	}
	return m.saved[len(m.saved)-1]
}

// manualTicker never fires on its own; tests push Tick events directly so
// they stay ordered with every other event.
type manualTicker struct {
	c       chan time.Time
	stopped atomic.Bool
}

func (m *manualTicker) C() <-chan time.Time { return m.c }
func (m *manualTicker) Stop()               { m.stopped.Store(true) }

func manualTickers() TickerFunc {
	return func(time.Duration) Ticker {
		return &manualTicker{c: make(chan time.Time)}
	}
}
