package stt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"voiceassistant/internal/config"
	"voiceassistant/pkg/speech"

	audiotranscriber "github.com/sklyt/whisper/pkg"
	"go.uber.org/zap"
)

// WhisperCLISlug selects the engine that records a fixed window and runs the
// whisper-cli binary over it.
const WhisperCLISlug = "whisper-cli"

// DefaultTranscribeWait bounds how long the CLI may take after recording
// stops.
const DefaultTranscribeWait = 30 * time.Second

// chunkSession is one record-then-transcribe cycle.
type chunkSession struct {
	start func() error
	stop  func()
}

// sessionFactory starts a new cycle that reports its transcript to done.
type sessionFactory func(done func(string)) (chunkSession, error)

// WhisperCLI records fixed-length chunks and hands them to whisper-cli.
type WhisperCLI struct {
	newSession sessionFactory
	wait       time.Duration
	logger     *zap.Logger
}

// NewWhisperCLI creates the engine. The binary and model must exist.
func NewWhisperCLI(binary, modelPath, tempDir string, logger *zap.Logger) (*WhisperCLI, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if binary == "" {
		return nil, errors.New("whisper-cli binary is empty")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("whisper model: %w", err)
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	verbose := logger.Core().Enabled(zap.DebugLevel)
	factory := func(done func(string)) (chunkSession, error) {
		t, err := audiotranscriber.NewTranscriber(binary, modelPath, tempDir, "wav", done, verbose)
		if err != nil {
			return chunkSession{}, err
		}
		return chunkSession{
			start: t.Start,
			stop:  func() { t.Stop() },
		}, nil
	}
	return newWhisperCLI(factory, DefaultTranscribeWait, logger), nil
}

func newWhisperCLI(factory sessionFactory, wait time.Duration, logger *zap.Logger) *WhisperCLI {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WhisperCLI{newSession: factory, wait: wait, logger: logger.Named("whisper_cli")}
}

func newWhisperCLIFromProfile(profile *config.Profile, logger *zap.Logger) (Engine, error) {
	return NewWhisperCLI(profile.Whisper.CLIPath, profile.Whisper.ModelPath, profile.TempDir, logger)
}

// Transcribe records for the whole of max, then waits for the transcript.
func (w *WhisperCLI) Transcribe(ctx context.Context, max time.Duration) (string, error) {
	results := make(chan string, 1)
	var once sync.Once
	done := func(text string) {
		once.Do(func() { results <- text })
	}

	session, err := w.newSession(done)
	if err != nil {
		return "", fmt.Errorf("create transcriber: %w", err)
	}
	if err := session.start(); err != nil {
		return "", fmt.Errorf("start recording: %w", err)
	}

	timer := time.NewTimer(max)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		session.stop()
		return "", ctx.Err()
	}
	session.stop()

	wait := time.NewTimer(w.wait)
	defer wait.Stop()

	select {
	case text := <-results:
		text = strings.TrimSpace(text)
		if text == "" {
			return "", speech.ErrRecognitionTimeout
		}
		w.logger.Debug("Transcribed", zap.String("text", text))
		return text, nil
	case <-wait.C:
		return "", fmt.Errorf("whisper-cli produced no transcript within %s", w.wait)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close is a no-op; each cycle cleans up after itself.
func (w *WhisperCLI) Close() error {
	return nil
}
