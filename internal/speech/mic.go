package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	pkgspeech "voiceassistant/pkg/speech"

	"go.uber.org/zap"
)

// Transcriber captures audio for at most max and returns the transcript.
// It returns pkgspeech.ErrRecognitionTimeout when nothing was said.
type Transcriber interface {
	Transcribe(ctx context.Context, max time.Duration) (string, error)
}

// Synthesizer renders text to WAV audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	Voice() string
}

// Player plays WAV audio and blocks until it finishes.
type Player interface {
	Play(ctx context.Context, wav []byte) error
}

// MicConfig configures the microphone backend.
type MicConfig struct {
	WakeWords     []string
	PassiveWindow time.Duration
	ActiveTimeout time.Duration
}

// MicBackend is the microphone speech backend. Passive listening records
// short windows and looks for a wake word; active listening records one
// command. Speech is synthesized, optionally cached, and played.
type MicBackend struct {
	config  MicConfig
	passive Transcriber
	active  Transcriber
	tts     Synthesizer
	player  Player
	cache   *AudioCache
	logger  *zap.Logger
}

// NewMicBackend assembles a microphone backend. passive and active may be
// the same engine. cache may be nil.
func NewMicBackend(config MicConfig, passive, active Transcriber, tts Synthesizer, player Player, cache *AudioCache, logger *zap.Logger) (*MicBackend, error) {
	if passive == nil || active == nil {
		return nil, errors.New("mic backend: transcriber is required")
	}
	if tts == nil || player == nil {
		return nil, errors.New("mic backend: synthesizer and player are required")
	}
	if len(config.WakeWords) == 0 {
		return nil, errors.New("mic backend: at least one wake word is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MicBackend{
		config:  config,
		passive: passive,
		active:  active,
		tts:     tts,
		player:  player,
		cache:   cache,
		logger:  logger.Named("mic"),
	}, nil
}

// ListenPassive records one passive window and reports a wake event when a
// wake word was heard. Silence and unrelated speech yield a nil event.
func (b *MicBackend) ListenPassive(ctx context.Context) (*pkgspeech.WakeEvent, error) {
	raw, err := b.passive.Transcribe(ctx, b.config.PassiveWindow)
	if err != nil {
		if errors.Is(err, pkgspeech.ErrRecognitionTimeout) {
			return nil, nil
		}
		return nil, fmt.Errorf("passive recognition: %w", err)
	}

	text := CleanTranscription(raw)
	if text == "" {
		return nil, nil
	}

	match, ok := FindWakeWord(text, b.config.WakeWords)
	if !ok {
		b.logger.Debug("Ignoring speech without wake word", zap.String("text", text))
		return nil, nil
	}

	b.logger.Info("Wake word detected",
		zap.String("phrase", match.Phrase),
		zap.String("remainder", match.Remainder))
	return &pkgspeech.WakeEvent{Phrase: match.Phrase, Remainder: match.Remainder}, nil
}

// ListenActive records one command. The caller bounds it through ctx; the
// recording itself is also capped at the active timeout.
func (b *MicBackend) ListenActive(ctx context.Context) (string, error) {
	raw, err := b.active.Transcribe(ctx, b.config.ActiveTimeout)
	if err != nil {
		return "", err
	}
	return StripWakeWords(CleanTranscription(raw), b.config.WakeWords), nil
}

// Speak synthesizes and plays text. With opts.Cache the rendered audio is
// looked up in and stored to the audio cache.
func (b *MicBackend) Speak(ctx context.Context, text string, opts pkgspeech.SpeakOptions) error {
	var wav []byte
	if opts.Cache && b.cache != nil {
		if cached, ok := b.cache.Get(text); ok {
			wav = cached
		}
	}

	if wav == nil {
		synthesized, err := b.tts.Synthesize(ctx, text)
		if err != nil {
			return fmt.Errorf("synthesize: %w", err)
		}
		wav = synthesized
		if opts.Cache && b.cache != nil {
			b.cache.Put(text, wav)
		}
	}

	if err := b.player.Play(ctx, wav); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	return nil
}

// Close releases the engines that hold resources.
func (b *MicBackend) Close() error {
	var errs []error
	seen := make(map[any]bool)
	for _, c := range []any{b.passive, b.active, b.tts, b.player} {
		closer, ok := c.(io.Closer)
		if !ok || seen[c] {
			continue
		}
		seen[c] = true
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
