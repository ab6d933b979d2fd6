// Package testutil provides testing utilities for assistant plugins and the
// dispatch engine: in-memory plugins, a recording speaker, a scripted speech
// backend and a mock relay server.
package testutil

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"voiceassistant/pkg/plugin"
	"voiceassistant/pkg/speech"
)

// FakePlugin is a configurable plugin.Plugin.
// It claims any text containing Trigger unless Predicate is set.
type FakePlugin struct {
	Name       string
	Trigger    string
	Predicate  func(text string) bool
	HandleFunc func(ctx context.Context, text string, sess *plugin.Session) error

	predicateCalls atomic.Int64
	stopped        atomic.Bool

	mu      sync.Mutex
	handled []string
}

// NewFakePlugin creates a plugin that claims text containing trigger.
func NewFakePlugin(slug, trigger string) *FakePlugin {
	return &FakePlugin{Name: slug, Trigger: trigger}
}

// Slug implements plugin.Plugin.
func (f *FakePlugin) Slug() string { return f.Name }

// IsValid implements plugin.Plugin.
func (f *FakePlugin) IsValid(text string) bool {
	f.predicateCalls.Add(1)
	if f.Predicate != nil {
		return f.Predicate(text)
	}
	return f.Trigger != "" && strings.Contains(text, f.Trigger)
}

// Handle implements plugin.Plugin.
func (f *FakePlugin) Handle(ctx context.Context, text string, sess *plugin.Session) error {
	f.mu.Lock()
	f.handled = append(f.handled, text)
	f.mu.Unlock()

	if f.HandleFunc != nil {
		return f.HandleFunc(ctx, text, sess)
	}
	return nil
}

// Stop implements plugin.Stopper.
func (f *FakePlugin) Stop() { f.stopped.Store(true) }

// Stopped reports whether Stop was called.
func (f *FakePlugin) Stopped() bool { return f.stopped.Load() }

// PredicateCalls returns how many times IsValid was called.
func (f *FakePlugin) PredicateCalls() int64 { return f.predicateCalls.Load() }

// Handled returns the texts passed to Handle, in order.
func (f *FakePlugin) Handled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.handled...)
}

// Spoken is one call recorded by RecordingSpeaker.
type Spoken struct {
	Text   string
	Cached bool
	At     time.Time
}

// RecordingSpeaker is a speech.Speaker that remembers what it was asked to
// say. Err, when set, is returned from every call after recording it.
type RecordingSpeaker struct {
	Err error

	mu     sync.Mutex
	spoken []Spoken
	notify chan struct{}
}

// NewRecordingSpeaker creates an empty RecordingSpeaker.
func NewRecordingSpeaker() *RecordingSpeaker {
	return &RecordingSpeaker{notify: make(chan struct{}, 128)}
}

// Speak implements speech.Speaker.
func (r *RecordingSpeaker) Speak(ctx context.Context, text string, opts speech.SpeakOptions) error {
	r.mu.Lock()
	r.spoken = append(r.spoken, Spoken{Text: text, Cached: opts.Cache, At: time.Now()})
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
	return r.Err
}

// Spoken returns every recorded call in order.
func (r *RecordingSpeaker) Spoken() []Spoken {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Spoken(nil), r.spoken...)
}

// Texts returns the recorded texts in order.
func (r *RecordingSpeaker) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	texts := make([]string, len(r.spoken))
	for i, s := range r.spoken {
		texts[i] = s.Text
	}
	return texts
}

// WaitFor blocks until at least n calls were recorded or the timeout passes.
func (r *RecordingSpeaker) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		r.mu.Lock()
		count := len(r.spoken)
		r.mu.Unlock()
		if count >= n {
			return true
		}
		select {
		case <-r.notify:
		case <-deadline:
			return false
		}
	}
}

// PassiveStep is one scripted result of ListenPassive.
type PassiveStep struct {
	Event *speech.WakeEvent
	Err   error
}

// ActiveStep is one scripted result of ListenActive. A Block step waits for
// the context to end and returns its error, simulating a user who says
// nothing.
type ActiveStep struct {
	Text  string
	Err   error
	Block bool
}

// ScriptedBackend is a speech.Backend that replays scripted recognition
// results and records speech. Once a script runs out the backend reports
// speech.ErrInputClosed.
type ScriptedBackend struct {
	*RecordingSpeaker

	mu      sync.Mutex
	passive []PassiveStep
	active  []ActiveStep
	closed  bool
}

// NewScriptedBackend creates a backend that replays the given steps.
func NewScriptedBackend(passive []PassiveStep, active []ActiveStep) *ScriptedBackend {
	return &ScriptedBackend{
		RecordingSpeaker: NewRecordingSpeaker(),
		passive:          passive,
		active:           active,
	}
}

// Wake is shorthand for a passive step that hears the wake phrase.
func Wake(remainder string) PassiveStep {
	return PassiveStep{Event: &speech.WakeEvent{Phrase: "assistant", Remainder: remainder}}
}

// ListenPassive implements speech.Recognizer.
func (b *ScriptedBackend) ListenPassive(ctx context.Context) (*speech.WakeEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.passive) == 0 {
		return nil, speech.ErrInputClosed
	}
	step := b.passive[0]
	b.passive = b.passive[1:]
	return step.Event, step.Err
}

// ListenActive implements speech.Recognizer.
func (b *ScriptedBackend) ListenActive(ctx context.Context) (string, error) {
	b.mu.Lock()
	if len(b.active) == 0 {
		b.mu.Unlock()
		return "", speech.ErrInputClosed
	}
	step := b.active[0]
	b.active = b.active[1:]
	b.mu.Unlock()

	if step.Block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return step.Text, step.Err
}

// Close implements speech.Backend.
func (b *ScriptedBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Closed reports whether Close was called.
func (b *ScriptedBackend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
