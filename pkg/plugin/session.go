package plugin

import (
	"context"
	"time"

	"voiceassistant/pkg/speech"

	"go.uber.org/zap"
)

// Source tags where an utterance came from.
type Source string

const (
	// SourceMicrophone marks utterances recognized by the conversation loop.
	SourceMicrophone Source = "microphone"

	// SourceRelay marks utterances delivered by the background relay.
	SourceRelay Source = "relay"
)

// Utterance is one unit of recognized text submitted for dispatch.
type Utterance struct {
	ID         string
	Text       string
	Source     Source
	Sender     string // relay peer; empty for the microphone
	ReceivedAt time.Time
}

// Session is the per-utterance context handed to Plugin.Handle.
// It is only valid for the duration of the call.
type Session struct {
	// Speaker is where responses go: the speech-output sink for microphone
	// utterances, the relay (optionally echoed to the sink) for relay ones.
	Speaker speech.Speaker

	// Messenger is the background relay, or nil when none is running.
	Messenger Messenger

	Text        string
	Source      Source
	UtteranceID string
	Timestamp   time.Time

	Logger *zap.Logger
}

// NewSession builds the session for an utterance.
func NewSession(utt Utterance, speaker speech.Speaker, messenger Messenger, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		Speaker:     speaker,
		Messenger:   messenger,
		Text:        utt.Text,
		Source:      utt.Source,
		UtteranceID: utt.ID,
		Timestamp:   utt.ReceivedAt,
		Logger:      logger.With(zap.String("utterance_id", utt.ID)),
	}
}

// Say speaks text without caching the rendered audio.
func (s *Session) Say(ctx context.Context, text string) error {
	return s.Speaker.Speak(ctx, text, speech.SpeakOptions{})
}

// SayCached speaks a fixed phrase and keeps its rendered audio.
func (s *Session) SayCached(ctx context.Context, text string) error {
	return s.Speaker.Speak(ctx, text, speech.SpeakOptions{Cache: true})
}
