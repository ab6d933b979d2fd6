// Package speech provides the public interface definitions for the speech
// backend. These interfaces can be imported by external packages (including
// private plugin implementations).
//
// The implementations live in internal/speech (the output sink, the local
// text backend and the microphone backend) and satisfy these interfaces.
package speech

import (
	"context"
	"errors"
)

// ErrInputClosed is returned by a Recognizer whose input source has ended,
// e.g. standard input reaching EOF in text mode. The conversation loop treats
// it as a shutdown request rather than a backend failure.
var ErrInputClosed = errors.New("speech input closed")

// ErrRecognitionTimeout is returned when no speech was captured within the
// listening budget. Callers treat it as an empty transcript.
var ErrRecognitionTimeout = errors.New("speech recognition timed out")

// SpeakOptions controls how a single utterance is rendered.
type SpeakOptions struct {
	// Cache keeps the rendered audio so the same text is not synthesized
	// again. Use it for fixed phrases (greetings, notices).
	Cache bool
}

// WakeEvent is produced by passive listening when a wake phrase was heard.
type WakeEvent struct {
	// Phrase is the wake phrase that matched.
	Phrase string

	// Remainder is any command spoken in the same breath as the wake
	// phrase. Empty when the user only said the wake phrase.
	Remainder string
}

// Speaker renders text as speech. Implementations may block until the text
// has been spoken.
type Speaker interface {
	Speak(ctx context.Context, text string, opts SpeakOptions) error
}

// Recognizer turns captured audio into text.
type Recognizer interface {
	// ListenPassive waits for a wake phrase. A nil event with a nil error
	// means nothing relevant was heard (silence or unrelated speech).
	ListenPassive(ctx context.Context) (*WakeEvent, error)

	// ListenActive captures a command after a wake event. The returned text
	// may be empty. Implementations must honour ctx cancellation so that the
	// caller can bound the capture.
	ListenActive(ctx context.Context) (string, error)
}

// Backend is the full speech backend adapter: recognition plus synthesis.
type Backend interface {
	Recognizer
	Speaker

	// Close releases audio devices and engine resources.
	Close() error
}

// SpeakerFunc adapts a function to the Speaker interface.
type SpeakerFunc func(ctx context.Context, text string, opts SpeakOptions) error

// Speak calls f.
func (f SpeakerFunc) Speak(ctx context.Context, text string, opts SpeakOptions) error {
	return f(ctx, text, opts)
}
