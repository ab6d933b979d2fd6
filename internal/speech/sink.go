// Package speech implements the speech side of the assistant: the
// serialized output sink, the local text backend and the microphone
// backend.
package speech

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	pkgspeech "voiceassistant/pkg/speech"

	"go.uber.org/zap"
)

// ErrSinkClosed is returned by Speak once the sink has stopped.
var ErrSinkClosed = errors.New("speech sink closed")

// DefaultQueueSize is used when NewSink is given a non-positive size.
const DefaultQueueSize = 32

type speakRequest struct {
	ctx      context.Context
	text     string
	opts     pkgspeech.SpeakOptions
	queuedAt time.Time
	done     chan error
}

// Sink serializes all speech output through a single worker: requests are
// spoken one at a time in submission order, whichever goroutine submits
// them. Speak blocks until the text has been rendered.
type Sink struct {
	out    pkgspeech.Speaker
	queue  chan speakRequest
	logger *zap.Logger

	speaking atomic.Bool
	spoken   atomic.Int64
	failed   atomic.Int64

	startOnce sync.Once
	stopOnce  sync.Once
	stopped   chan struct{}
	wg        sync.WaitGroup
}

// NewSink creates a sink rendering through out, which is only ever called
// from the sink's worker.
func NewSink(out pkgspeech.Speaker, queueSize int, logger *zap.Logger) *Sink {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		out:     out,
		queue:   make(chan speakRequest, queueSize),
		logger:  logger.Named("sink"),
		stopped: make(chan struct{}),
	}
}

// Start launches the worker. It stops when ctx is cancelled or Stop is
// called.
func (s *Sink) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.run(ctx)
		s.logger.Debug("Speech sink started", zap.Int("queue_size", cap(s.queue)))
	})
}

// Stop shuts the worker down. Pending requests fail with ErrSinkClosed.
func (s *Sink) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
	})
	s.wg.Wait()
}

// Speak queues text and waits for it to be spoken. Blank text is ignored.
func (s *Sink) Speak(ctx context.Context, text string, opts pkgspeech.SpeakOptions) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	req := speakRequest{
		ctx:      ctx,
		text:     text,
		opts:     opts,
		queuedAt: time.Now(),
		done:     make(chan error, 1),
	}

	select {
	case <-s.stopped:
		return ErrSinkClosed
	default:
	}

	select {
	case s.queue <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrSinkClosed
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrSinkClosed
	}
}

// Speaking reports whether the worker is rendering right now.
func (s *Sink) Speaking() bool {
	return s.speaking.Load()
}

// QueueLen returns the number of requests waiting.
func (s *Sink) QueueLen() int {
	return len(s.queue)
}

// Spoken returns how many requests were rendered successfully.
func (s *Sink) Spoken() int64 {
	return s.spoken.Load()
}

func (s *Sink) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			s.stopOnce.Do(func() { close(s.stopped) })
			s.drain()
			s.logger.Debug("Speech sink stopped")
			return
		case <-s.stopped:
			s.drain()
			s.logger.Debug("Speech sink stopped")
			return
		case req := <-s.queue:
			s.render(req)
		}
	}
}

func (s *Sink) render(req speakRequest) {
	if err := req.ctx.Err(); err != nil {
		req.done <- err
		return
	}

	s.speaking.Store(true)
	defer s.speaking.Store(false)

	s.logger.Debug("Speaking",
		zap.String("text", truncate(req.text, 60)),
		zap.Bool("cached", req.opts.Cache),
		zap.Duration("waited", time.Since(req.queuedAt).Round(time.Millisecond)))

	err := s.out.Speak(req.ctx, req.text, req.opts)
	if err != nil {
		s.failed.Add(1)
		s.logger.Warn("Speech output failed", zap.Error(err))
	} else {
		s.spoken.Add(1)
	}
	req.done <- err
}

func (s *Sink) drain() {
	for {
		select {
		case req := <-s.queue:
			req.done <- ErrSinkClosed
		default:
			return
		}
	}
}

// truncate shortens a string for logging.
func truncate(s string, maxRunes int) string {
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes-3]) + "..."
}
