// Package dispatch runs plugin handlers one at a time.
//
// The Dispatcher owns the single system-wide lock: the conversation loop and
// the relay worker both dispatch through it, so handlers never overlap.
// Handler failures, panics and overruns stop at the Dispatcher and are turned
// into a Report plus a spoken failure notice.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"voiceassistant/internal/clock"
	"voiceassistant/pkg/plugin"
	"voiceassistant/pkg/speech"

	"go.uber.org/zap"
)

// ErrBudgetExceeded is reported when a handler runs longer than the budget.
var ErrBudgetExceeded = errors.New("plugin exceeded execution budget")

// ErrPluginPanic wraps a panic recovered from a handler.
var ErrPluginPanic = errors.New("plugin panicked")

// Status is the outcome of one dispatch.
type Status int

const (
	StatusOK Status = iota
	StatusFailed
	StatusTimedOut
	StatusCancelled
)

// String returns a lowercase name for logs.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	case StatusTimedOut:
		return "timed_out"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Report describes one handler execution.
type Report struct {
	Slug     string
	Status   Status
	Err      error
	Started  time.Time
	Duration time.Duration
}

// Stats are cumulative dispatch counters.
type Stats struct {
	Dispatched int64 `json:"dispatched"`
	Succeeded  int64 `json:"succeeded"`
	Failed     int64 `json:"failed"`
	TimedOut   int64 `json:"timed_out"`
	Cancelled  int64 `json:"cancelled"`
	Unmatched  int64 `json:"unmatched"`
}

// Config controls handler execution.
type Config struct {
	// Budget bounds a single handler. Zero or negative disables it.
	Budget time.Duration

	// FailureText is spoken after a handler fails. Empty disables the notice.
	FailureText string
}

// Dispatcher executes plugin handlers under a single lock.
type Dispatcher struct {
	mu     sync.Mutex
	busy   atomic.Bool
	config Config
	clock  clock.Clock
	logger *zap.Logger

	dispatched atomic.Int64
	succeeded  atomic.Int64
	failed     atomic.Int64
	timedOut   atomic.Int64
	cancelled  atomic.Int64
	unmatched  atomic.Int64
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(config Config, clk clock.Clock, logger *zap.Logger) *Dispatcher {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		config: config,
		clock:  clk,
		logger: logger.Named("dispatch"),
	}
}

// Dispatch runs p's handler for the session's utterance and waits for it to
// finish, fail, exceed the budget or be cancelled. It never returns the
// handler's failure to the caller; the Report carries it instead.
//
// On budget expiry the handler's context is cancelled and the lock is
// released even if the handler has not returned yet.
func (d *Dispatcher) Dispatch(ctx context.Context, p plugin.Plugin, sess *plugin.Session) Report {
	d.mu.Lock()
	d.busy.Store(true)

	started := d.clock.Now()
	runCtx, cancel := context.WithCancel(ctx)

	var budget <-chan time.Time
	if d.config.Budget > 0 {
		budget = d.clock.After(d.config.Budget)
	}

	done := make(chan error, 1)
	go func() {
		done <- d.invoke(runCtx, p, sess)
	}()

	report := Report{Slug: p.Slug(), Started: started}
	select {
	case err := <-done:
		report.Err = err
		switch {
		case err == nil:
			report.Status = StatusOK
		case ctx.Err() != nil:
			report.Status = StatusCancelled
		default:
			report.Status = StatusFailed
		}
	case <-budget:
		report.Status = StatusTimedOut
		report.Err = fmt.Errorf("%w (%s)", ErrBudgetExceeded, d.config.Budget)
	case <-ctx.Done():
		report.Status = StatusCancelled
		report.Err = ctx.Err()
	}

	cancel()
	report.Duration = d.clock.Since(started)
	d.busy.Store(false)
	d.mu.Unlock()

	d.record(report, sess)

	if report.Status == StatusFailed || report.Status == StatusTimedOut {
		d.notifyFailure(ctx, sess)
	}
	return report
}

// invoke calls the handler inside a panic boundary.
func (d *Dispatcher) invoke(ctx context.Context, p plugin.Plugin, sess *plugin.Session) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("Plugin panicked",
				zap.String("slug", p.Slug()),
				zap.Any("panic", rec),
				zap.Stack("stack"))
			err = fmt.Errorf("%w: %v", ErrPluginPanic, rec)
		}
	}()
	return p.Handle(ctx, sess.Text, sess)
}

func (d *Dispatcher) record(report Report, sess *plugin.Session) {
	d.dispatched.Add(1)

	fields := []zap.Field{
		zap.String("slug", report.Slug),
		zap.String("text", sess.Text),
		zap.String("utterance_id", sess.UtteranceID),
		zap.String("source", string(sess.Source)),
		zap.Duration("duration", report.Duration),
	}

	switch report.Status {
	case StatusOK:
		d.succeeded.Add(1)
		d.logger.Debug("Plugin handled utterance", fields...)
	case StatusFailed:
		d.failed.Add(1)
		d.logger.Error("Plugin failed", append(fields, zap.Error(report.Err))...)
	case StatusTimedOut:
		d.timedOut.Add(1)
		d.logger.Error("Plugin exceeded budget, releasing dispatch lock",
			append(fields, zap.Duration("budget", d.config.Budget))...)
	case StatusCancelled:
		d.cancelled.Add(1)
		d.logger.Info("Dispatch cancelled", fields...)
	}
}

func (d *Dispatcher) notifyFailure(ctx context.Context, sess *plugin.Session) {
	if d.config.FailureText == "" || sess.Speaker == nil || ctx.Err() != nil {
		return
	}
	if err := sess.SayCached(ctx, d.config.FailureText); err != nil {
		d.logger.Warn("Failed to speak failure notice", zap.Error(err))
	}
}

// Busy reports whether a handler currently holds the dispatch lock.
func (d *Dispatcher) Busy() bool {
	return d.busy.Load()
}

// Stats returns a snapshot of the dispatch counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Dispatched: d.dispatched.Load(),
		Succeeded:  d.succeeded.Load(),
		Failed:     d.failed.Load(),
		TimedOut:   d.timedOut.Load(),
		Cancelled:  d.cancelled.Load(),
		Unmatched:  d.unmatched.Load(),
	}
}

// speakerOrNop guards against sessions built without a speaker.
func speakerOrNop(s speech.Speaker) speech.Speaker {
	if s != nil {
		return s
	}
	return speech.SpeakerFunc(func(context.Context, string, speech.SpeakOptions) error { return nil })
}
