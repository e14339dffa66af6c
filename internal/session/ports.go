package session

import (
	"context"
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Submitter delivers the final payload to the submission endpoint.
// A nil error with ack.Success == false is a rejection and is handled the
// same way as a transport failure.
type Submitter interface {
	Submit(ctx context.Context, req model.SubmitRequest) (model.SubmitAck, error)
}

// ViolationLogger notifies the violation-logging endpoint. Calls are
// fire-and-forget; errors are only logged.
type ViolationLogger interface {
	LogViolation(ctx context.Context) error
}

// SnapshotSink receives periodic best-effort copies of the answers. The
// session never reads them back.
type SnapshotSink interface {
	SaveAnswers(ctx context.Context, answers map[int]int) error
}

// Ticker is a periodic tick source. The clock turns its ticks into Tick
// events.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc builds a Ticker with the given period.
type TickerFunc func(d time.Duration) Ticker

type stdTicker struct{ t *time.Ticker }

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

// NewStdTicker is the wall-clock tick source.
func NewStdTicker(d time.Duration) Ticker {
	return stdTicker{t: time.NewTicker(d)}
}
