package stt

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"voiceassistant/internal/audio"
	"voiceassistant/internal/config"
	"voiceassistant/pkg/speech"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_UnknownEngine(t *testing.T) {
	_, err := New("sphinx", config.Default(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown stt engine "sphinx"`)
	assert.Contains(t, err.Error(), WhisperSlug)
}

func TestNew_MissingModel(t *testing.T) {
	profile := config.Default()
	profile.Whisper.ModelPath = filepath.Join(t.TempDir(), "missing.bin")

	for _, slug := range Slugs() {
		t.Run(slug, func(t *testing.T) {
			_, err := New(slug, profile, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "stt engine "+slug)
		})
	}
}

func TestSlugs(t *testing.T) {
	assert.Equal(t, []string{WhisperSlug, WhisperCLISlug}, Slugs())
}

type fakeRecorder struct {
	samples []float32
	err     error
	closed  bool
}

func (f *fakeRecorder) Record(ctx context.Context, max time.Duration) ([]float32, error) {
	return f.samples, f.err
}

func (f *fakeRecorder) Close() error {
	f.closed = true
	return nil
}

type fakePCM struct {
	text string
	got  []float32
}

func (f *fakePCM) TranscribePCM(ctx context.Context, samples []float32) (string, error) {
	f.got = samples
	return f.text, nil
}

func TestWhisper_Transcribe(t *testing.T) {
	rec := &fakeRecorder{samples: []float32{0.1, 0.2}}
	pcm := &fakePCM{text: "what time is it"}
	w := NewWhisper(rec, pcm, "", nil)

	text, err := w.Transcribe(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "what time is it", text)
	assert.Equal(t, rec.samples, pcm.got)

	require.NoError(t, w.Close())
	assert.True(t, rec.closed)
}

func TestWhisper_NoSpeechIsRecognitionTimeout(t *testing.T) {
	w := NewWhisper(&fakeRecorder{err: audio.ErrNoSpeech}, &fakePCM{}, "", nil)

	_, err := w.Transcribe(context.Background(), time.Second)
	assert.ErrorIs(t, err, speech.ErrRecognitionTimeout)
}

func TestWhisper_RecorderError(t *testing.T) {
	boom := errors.New("device gone")
	w := NewWhisper(&fakeRecorder{err: boom}, &fakePCM{}, "", nil)

	_, err := w.Transcribe(context.Background(), time.Second)
	assert.ErrorIs(t, err, boom)
}

func TestWhisper_SavesCapture(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "captures")
	w := NewWhisper(&fakeRecorder{samples: make([]float32, 1600)}, &fakePCM{text: "hi"}, dir, nil)

	_, err := w.Transcribe(context.Background(), time.Second)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".wav", filepath.Ext(entries[0].Name()))
}

func scriptedSession(text string, startErr error) (sessionFactory, *int) {
	stops := 0
	return func(done func(string)) (chunkSession, error) {
		return chunkSession{
			start: func() error { return startErr },
			stop: func() {
				stops++
				done(text)
			},
		}, nil
	}, &stops
}

func TestWhisperCLI_Transcribe(t *testing.T) {
	factory, stops := scriptedSession("  turn it up  ", nil)
	w := newWhisperCLI(factory, time.Second, nil)

	text, err := w.Transcribe(context.Background(), 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "turn it up", text)
	assert.Equal(t, 1, *stops)
}

func TestWhisperCLI_EmptyIsRecognitionTimeout(t *testing.T) {
	factory, _ := scriptedSession("", nil)
	w := newWhisperCLI(factory, time.Second, nil)

	_, err := w.Transcribe(context.Background(), 5*time.Millisecond)
	assert.ErrorIs(t, err, speech.ErrRecognitionTimeout)
}

func TestWhisperCLI_StartError(t *testing.T) {
	factory, _ := scriptedSession("", errors.New("no input device"))
	w := newWhisperCLI(factory, time.Second, nil)

	_, err := w.Transcribe(context.Background(), 5*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start recording")
}

func TestWhisperCLI_Cancelled(t *testing.T) {
	factory, stops := scriptedSession("ignored", nil)
	w := newWhisperCLI(factory, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.Transcribe(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, *stops)
}

func TestWhisperCLI_NoTranscript(t *testing.T) {
	factory := func(done func(string)) (chunkSession, error) {
		return chunkSession{start: func() error { return nil }, stop: func() {}}, nil
	}
	w := newWhisperCLI(factory, 10*time.Millisecond, nil)

	_, err := w.Transcribe(context.Background(), time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no transcript")
}
