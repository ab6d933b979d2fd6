package dispatch

import (
	"context"
	"strings"
	"sync"

	"voiceassistant/internal/matcher"
	"voiceassistant/pkg/plugin"
	"voiceassistant/pkg/speech"

	"go.uber.org/zap"
)

// RouteResult is what happened to one utterance.
type RouteResult struct {
	Match matcher.Result

	// Report is nil when nothing was dispatched.
	Report *Report
}

// Router takes recognized text from any source through matching and
// dispatch. It is shared by the conversation loop and the relay worker.
type Router struct {
	matcher      *matcher.Matcher
	dispatcher   *Dispatcher
	fallbackText string
	logger       *zap.Logger

	mu        sync.RWMutex
	messenger plugin.Messenger
}

// NewRouter creates a Router. fallbackText is spoken when no plugin claims
// an utterance; empty disables it.
func NewRouter(m *matcher.Matcher, d *Dispatcher, fallbackText string, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		matcher:      m,
		dispatcher:   d,
		fallbackText: fallbackText,
		logger:       logger.Named("router"),
	}
}

// SetMessenger attaches the relay handed to plugins through the session.
// Pass nil to detach it.
func (r *Router) SetMessenger(m plugin.Messenger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messenger = m
}

func (r *Router) currentMessenger() plugin.Messenger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.messenger
}

// Route matches utt and dispatches it to the selected plugin. Responses go
// to speaker. Empty text is dropped before matching and never takes the
// dispatch lock.
func (r *Router) Route(ctx context.Context, utt plugin.Utterance, speaker speech.Speaker) RouteResult {
	if strings.TrimSpace(utt.Text) == "" {
		return RouteResult{Match: matcher.Result{Outcome: matcher.OutcomeNone}}
	}

	speaker = speakerOrNop(speaker)
	result := r.matcher.Match(utt.Text)

	if !result.Found() {
		r.dispatcher.unmatched.Add(1)
		r.logger.Info("No plugin matched utterance",
			zap.String("text", utt.Text),
			zap.String("utterance_id", utt.ID),
			zap.String("source", string(utt.Source)))
		if r.fallbackText != "" {
			if err := speaker.Speak(ctx, r.fallbackText, speech.SpeakOptions{Cache: true}); err != nil {
				r.logger.Warn("Failed to speak fallback response", zap.Error(err))
			}
		}
		return RouteResult{Match: result}
	}

	sess := plugin.NewSession(utt, speaker, r.currentMessenger(), r.logger)
	report := r.dispatcher.Dispatch(ctx, result.Selected, sess)
	return RouteResult{Match: result, Report: &report}
}
