// Package conversation runs the listen, recognize, dispatch cycle against the
// speech backend.
package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"voiceassistant/internal/clock"
	"voiceassistant/internal/dispatch"
	"voiceassistant/pkg/plugin"
	"voiceassistant/pkg/speech"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is a conversation loop state.
type State int

const (
	StateIdle State = iota
	StatePassiveListen
	StateActiveListen
	StateDispatching
	StateShutdown
)

// String returns the state name used in logs and the status API.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePassiveListen:
		return "passive_listen"
	case StateActiveListen:
		return "active_listen"
	case StateDispatching:
		return "dispatching"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// DefaultErrorBackoff is the pause after a backend failure.
const DefaultErrorBackoff = time.Second

// Config controls the loop.
type Config struct {
	// CommandDeadline bounds one active listen after a wake event. It must
	// cover both the recording window and the recognition that follows it.
	CommandDeadline time.Duration

	// WakeAck is spoken when the wake phrase is heard. Empty disables it.
	WakeAck string

	// ErrorBackoff is the pause after a backend failure.
	ErrorBackoff time.Duration
}

// Router is the part of dispatch.Router the loop needs.
type Router interface {
	Route(ctx context.Context, utt plugin.Utterance, speaker speech.Speaker) dispatch.RouteResult
}

// Option configures a Loop.
type Option func(*Loop)

// WithStateObserver registers fn to be called on every state change.
// fn runs on the loop goroutine and must not block.
func WithStateObserver(fn func(from, to State)) Option {
	return func(l *Loop) {
		l.observers = append(l.observers, fn)
	}
}

// WithClock replaces the clock used for back-off and timestamps.
func WithClock(c clock.Clock) Option {
	return func(l *Loop) {
		l.clock = c
	}
}

// Loop is the conversation state machine. Run it from one goroutine.
type Loop struct {
	recognizer speech.Recognizer
	speaker    speech.Speaker
	router     Router
	config     Config
	clock      clock.Clock
	logger     *zap.Logger
	observers  []func(from, to State)

	mu    sync.RWMutex
	state State
	turns int64
}

// New creates a Loop. Recognition comes from recognizer, responses go to
// speaker (normally the speech-output sink).
func New(recognizer speech.Recognizer, speaker speech.Speaker, router Router, config Config, logger *zap.Logger, opts ...Option) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ErrorBackoff <= 0 {
		config.ErrorBackoff = DefaultErrorBackoff
	}
	l := &Loop{
		recognizer: recognizer,
		speaker:    speaker,
		router:     router,
		config:     config,
		clock:      clock.NewRealClock(),
		logger:     logger.Named("conversation"),
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// State returns the current state.
func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Turns returns how many utterances the loop has dispatched.
func (l *Loop) Turns() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.turns
}

func (l *Loop) transition(to State) {
	l.mu.Lock()
	from := l.state
	l.state = to
	l.mu.Unlock()

	if from == to {
		return
	}
	l.logger.Debug("State change", zap.Stringer("from", from), zap.Stringer("to", to))
	for _, fn := range l.observers {
		fn(from, to)
	}
}

// Run listens until ctx is cancelled or the input source closes. Neither is
// an error. Recognition and plugin failures are logged and the loop carries
// on.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("Conversation loop started")
	defer func() {
		l.transition(StateShutdown)
		l.logger.Info("Conversation loop stopped")
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		l.transition(StatePassiveListen)

		event, err := l.recognizer.ListenPassive(ctx)
		if err != nil {
			if l.stopping(ctx, err) {
				return nil
			}
			l.backendFailure(ctx, "passive", err)
			continue
		}
		if event == nil {
			continue
		}

		l.logger.Debug("Wake phrase heard",
			zap.String("phrase", event.Phrase),
			zap.String("remainder", event.Remainder))

		text := strings.TrimSpace(event.Remainder)
		if text == "" {
			text, err = l.listenActive(ctx)
			if err != nil {
				if l.stopping(ctx, err) {
					return nil
				}
				l.backendFailure(ctx, "active", err)
				continue
			}
		}

		if text == "" {
			l.logger.Debug("Nothing heard after wake phrase")
			continue
		}

		l.transition(StateDispatching)
		l.dispatch(ctx, text)
	}
}

// listenActive acknowledges the wake phrase and captures one command within
// the command deadline. Running out of time yields empty text.
func (l *Loop) listenActive(ctx context.Context) (string, error) {
	l.transition(StateActiveListen)

	if l.config.WakeAck != "" {
		if err := l.speaker.Speak(ctx, l.config.WakeAck, speech.SpeakOptions{Cache: true}); err != nil && ctx.Err() == nil {
			l.logger.Warn("Failed to speak wake acknowledgement", zap.Error(err))
		}
	}

	listenCtx := ctx
	if l.config.CommandDeadline > 0 {
		var cancel context.CancelFunc
		listenCtx, cancel = context.WithTimeout(ctx, l.config.CommandDeadline)
		defer cancel()
	}

	text, err := l.recognizer.ListenActive(listenCtx)
	if err != nil {
		if ctx.Err() == nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, speech.ErrRecognitionTimeout)) {
			l.logger.Debug("Active listening timed out")
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (l *Loop) dispatch(ctx context.Context, text string) {
	utt := plugin.Utterance{
		ID:         uuid.NewString(),
		Text:       text,
		Source:     plugin.SourceMicrophone,
		ReceivedAt: l.clock.Now(),
	}
	l.logger.Info("Heard command", zap.String("text", text), zap.String("utterance_id", utt.ID))

	result := l.router.Route(ctx, utt, l.speaker)

	l.mu.Lock()
	l.turns++
	l.mu.Unlock()

	if result.Report != nil && result.Report.Status != dispatch.StatusOK {
		l.logger.Debug("Dispatch did not succeed",
			zap.String("slug", result.Report.Slug),
			zap.Stringer("status", result.Report.Status))
	}
}

// stopping reports whether err means the loop should shut down.
func (l *Loop) stopping(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	if errors.Is(err, speech.ErrInputClosed) {
		l.logger.Info("Speech input closed")
		return true
	}
	return false
}

func (l *Loop) backendFailure(ctx context.Context, phase string, err error) {
	l.logger.Error("Speech backend failure",
		zap.String("phase", phase),
		zap.Error(err),
		zap.Duration("backoff", l.config.ErrorBackoff))

	select {
	case <-ctx.Done():
	case <-l.clock.After(l.config.ErrorBackoff):
	}
}
