package audio

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(n int, amplitude float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amplitude * math.Sin(float64(i)/8))
	}
	return out
}

func encodeToBytes(t *testing.T, samples []float32, rate int) []byte {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "clip.wav"))
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, EncodeWAV(f, samples, rate))
	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	return data
}

func TestWAVRoundTrip(t *testing.T) {
	samples := sine(1600, 0.5)
	data := encodeToBytes(t, samples, 16000)

	pcm, err := DecodeWAV(data, 16000)
	require.NoError(t, err)
	require.Len(t, pcm, len(samples)*2)

	for i := 0; i < len(samples); i += 100 {
		got := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / math.MaxInt16
		assert.InDelta(t, samples[i], got, 0.001)
	}
}

func TestDecodeWAV_Resamples(t *testing.T) {
	data := encodeToBytes(t, sine(1600, 0.5), 16000)

	pcm, err := DecodeWAV(data, 32000)
	require.NoError(t, err)
	assert.Len(t, pcm, 3200*2)
}

func TestDecodeWAV_Invalid(t *testing.T) {
	_, err := DecodeWAV([]byte("definitely not audio"), 16000)
	assert.Error(t, err)
}

func TestRMS(t *testing.T) {
	assert.Zero(t, RMS(nil))
	assert.InDelta(t, 0.5, RMS([]float32{0.5, -0.5, 0.5, -0.5}), 1e-9)
}

func TestDownmix(t *testing.T) {
	assert.Equal(t, []float32{0.5, 0}, downmix([]float32{1, 0, 0.5, -0.5}, 2))
	assert.Equal(t, []float32{1, 2}, downmix([]float32{1, 2}, 1))
}

func TestSpeechDetector(t *testing.T) {
	t.Run("silence until max", func(t *testing.T) {
		d := newSpeechDetector(100 * time.Millisecond) // 5 frames
		for i := 0; i < 4; i++ {
			keep, done := d.feed(0)
			assert.False(t, keep)
			assert.False(t, done)
		}
		_, done := d.feed(0)
		assert.True(t, done)
		assert.False(t, d.heardSpeech())
	})

	t.Run("speech then trailing silence", func(t *testing.T) {
		d := newSpeechDetector(10 * time.Second)
		keep, done := d.feed(0.2)
		assert.True(t, keep)
		assert.False(t, done)

		// 600ms of silence is 30 frames
		for i := 0; i < 29; i++ {
			keep, done = d.feed(0)
			assert.True(t, keep, "trailing silence is kept")
			assert.False(t, done)
		}
		_, done = d.feed(0)
		assert.True(t, done)
		assert.True(t, d.heardSpeech())
	})

	t.Run("speech resets silence", func(t *testing.T) {
		d := newSpeechDetector(10 * time.Second)
		d.feed(0.2)
		for i := 0; i < 20; i++ {
			d.feed(0)
		}
		d.feed(0.2)
		for i := 0; i < 29; i++ {
			_, done := d.feed(0)
			assert.False(t, done)
		}
	})
}
