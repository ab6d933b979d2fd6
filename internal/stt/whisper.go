package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"voiceassistant/internal/audio"
	"voiceassistant/internal/config"
	"voiceassistant/pkg/speech"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"go.uber.org/zap"
)

// WhisperSlug selects the in-process whisper.cpp engine.
const WhisperSlug = "whisper"

// Recorder captures one utterance of 16kHz mono audio.
type Recorder interface {
	Record(ctx context.Context, max time.Duration) ([]float32, error)
}

// PCMTranscriber turns 16kHz mono samples into text.
type PCMTranscriber interface {
	TranscribePCM(ctx context.Context, samples []float32) (string, error)
}

// Whisper records from the microphone and transcribes in-process with the
// whisper.cpp bindings.
type Whisper struct {
	recorder    Recorder
	transcriber PCMTranscriber
	captureDir  string
	logger      *zap.Logger
	closers     []io.Closer
}

// NewWhisper creates the engine from its parts. captureDir, when set,
// receives a WAV file of every capture.
func NewWhisper(recorder Recorder, transcriber PCMTranscriber, captureDir string, logger *zap.Logger) *Whisper {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Whisper{
		recorder:    recorder,
		transcriber: transcriber,
		captureDir:  captureDir,
		logger:      logger.Named("whisper"),
	}
	for _, part := range []any{recorder, transcriber} {
		if c, ok := part.(io.Closer); ok {
			w.closers = append(w.closers, c)
		}
	}
	return w
}

func newWhisperFromProfile(profile *config.Profile, logger *zap.Logger) (Engine, error) {
	model, err := LoadModel(profile.Whisper.ModelPath, profile.Whisper.Language)
	if err != nil {
		return nil, err
	}
	return NewWhisper(audio.NewRecorder(logger), model, profile.Whisper.CaptureDir, logger), nil
}

// Transcribe records one utterance and returns its text.
func (w *Whisper) Transcribe(ctx context.Context, max time.Duration) (string, error) {
	samples, err := w.recorder.Record(ctx, max)
	if err != nil {
		if errors.Is(err, audio.ErrNoSpeech) {
			return "", speech.ErrRecognitionTimeout
		}
		return "", err
	}

	if w.captureDir != "" {
		w.saveCapture(samples)
	}

	start := time.Now()
	text, err := w.transcriber.TranscribePCM(ctx, samples)
	if err != nil {
		return "", err
	}
	w.logger.Debug("Transcribed",
		zap.String("text", text),
		zap.Duration("took", time.Since(start)))
	return text, nil
}

func (w *Whisper) saveCapture(samples []float32) {
	if err := os.MkdirAll(w.captureDir, 0o755); err != nil {
		w.logger.Warn("Cannot create capture dir", zap.Error(err))
		return
	}
	path := filepath.Join(w.captureDir, fmt.Sprintf("capture-%d.wav", time.Now().UnixNano()))
	f, err := os.Create(path)
	if err != nil {
		w.logger.Warn("Cannot save capture", zap.Error(err))
		return
	}
	defer f.Close()
	if err := audio.EncodeWAV(f, samples, audio.RecognizerSampleRate); err != nil {
		w.logger.Warn("Cannot save capture", zap.Error(err))
		return
	}
	w.logger.Debug("Saved capture", zap.String("path", path))
}

// Close releases the recorder and model.
func (w *Whisper) Close() error {
	var errs []error
	for _, c := range w.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Model wraps a loaded whisper.cpp model.
type Model struct {
	model    whisper.Model
	language string

	mu sync.Mutex
}

// LoadModel loads a GGML model file.
func LoadModel(path, language string) (*Model, error) {
	if path == "" {
		return nil, errors.New("whisper model path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("whisper model: %w", err)
	}
	m, err := whisper.New(path)
	if err != nil {
		return nil, fmt.Errorf("load whisper model: %w", err)
	}
	if language == "" {
		language = "auto"
	}
	return &Model{model: m, language: language}, nil
}

// TranscribePCM runs the model over samples.
func (m *Model) TranscribePCM(ctx context.Context, samples []float32) (string, error) {
	if len(samples) == 0 {
		return "", speech.ErrRecognitionTimeout
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	wctx, err := m.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("new whisper context: %w", err)
	}
	if err := wctx.SetLanguage(m.language); err != nil {
		return "", fmt.Errorf("set language %q: %w", m.language, err)
	}
	wctx.SetThreads(uint(runtime.NumCPU()))

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper process: %w", err)
	}

	var parts []string
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		segment, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper segment: %w", err)
		}
		parts = append(parts, strings.TrimSpace(segment.Text))
	}
	return strings.Join(parts, " "), nil
}

// Close frees the model.
func (m *Model) Close() error {
	return m.model.Close()
}
