package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"
)

// ErrNoSpeech is returned when a recording window ended without speech.
var ErrNoSpeech = errors.New("no speech detected")

const (
	frameSize        = 320 // 20ms at 16kHz
	frameDuration    = 20 * time.Millisecond
	silenceThreshold = 0.015
	trailingSilence  = 600 * time.Millisecond
)

// Recorder captures mono 16kHz audio from the default input device.
type Recorder struct {
	logger *zap.Logger

	mu          sync.Mutex
	initialized bool
	closed      bool
}

// NewRecorder creates a recorder. PortAudio is initialized on first use.
func NewRecorder(logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{logger: logger.Named("recorder")}
}

// ensureInit must be called with r.mu held.
func (r *Recorder) ensureInit() error {
	if r.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	r.initialized = true
	r.logger.Debug("PortAudio initialized")
	return nil
}

// Record captures one utterance: it waits for speech for up to max, then
// records until trailing silence or until max has elapsed in total.
func (r *Recorder) Record(ctx context.Context, max time.Duration) ([]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errors.New("recorder closed")
	}
	if err := r.ensureInit(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}

	buf := make([]float32, frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, RecognizerSampleRate, len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("start input stream: %w", err)
	}
	defer stream.Stop()

	detector := newSpeechDetector(max)
	out := make([]float32, 0, RecognizerSampleRate*3)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := stream.Read(); err != nil {
			return nil, fmt.Errorf("read input stream: %w", err)
		}

		keep, done := detector.feed(RMS(buf))
		if keep {
			out = append(out, buf...)
		}
		if done {
			break
		}
	}

	if !detector.heardSpeech() {
		return nil, ErrNoSpeech
	}
	r.logger.Debug("Captured utterance", zap.Duration("length", time.Duration(len(out)/frameSize)*frameDuration))
	return out, nil
}

// Close terminates PortAudio.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if !r.initialized {
		return nil
	}
	r.initialized = false
	return portaudio.Terminate()
}

// speechDetector decides, frame by frame, which frames belong to an
// utterance and when the utterance is over.
type speechDetector struct {
	maxFrames     int
	silenceFrames int

	frames   int
	speaking bool
	silent   int
}

func newSpeechDetector(max time.Duration) *speechDetector {
	maxFrames := int(max / frameDuration)
	if maxFrames < 1 {
		maxFrames = 1
	}
	return &speechDetector{
		maxFrames:     maxFrames,
		silenceFrames: int(trailingSilence / frameDuration),
	}
}

// feed takes the level of the next frame. keep reports whether the frame is
// part of the utterance; done reports that recording should stop.
func (d *speechDetector) feed(rms float64) (keep, done bool) {
	d.frames++

	if rms > silenceThreshold {
		d.speaking = true
		d.silent = 0
		keep = true
	} else if d.speaking {
		d.silent++
		keep = true
		if d.silent >= d.silenceFrames {
			return keep, true
		}
	}

	return keep, d.frames >= d.maxFrames
}

func (d *speechDetector) heardSpeech() bool {
	return d.speaking
}
