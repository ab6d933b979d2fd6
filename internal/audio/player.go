package audio

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"
)

// Player plays WAV audio through the default output device via oto.
// Only one Player may exist per process.
type Player struct {
	ctx        *oto.Context
	sampleRate int
	logger     *zap.Logger

	mu     sync.Mutex
	active *oto.Player
}

// NewPlayer opens the output device at the given sample rate.
func NewPlayer(sampleRate int, logger *zap.Logger) (*Player, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("open audio output: %w", err)
	}
	<-ready

	logger = logger.Named("player")
	logger.Debug("Audio output ready", zap.Int("sample_rate", sampleRate))
	return &Player{ctx: otoCtx, sampleRate: sampleRate, logger: logger}, nil
}

// Play decodes wav and blocks until playback finishes or ctx is cancelled.
func (p *Player) Play(ctx context.Context, wav []byte) error {
	pcm, err := DecodeWAV(wav, p.sampleRate)
	if err != nil {
		return err
	}

	player := p.ctx.NewPlayer(bytes.NewReader(pcm))
	defer player.Close()

	p.mu.Lock()
	p.active = player
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.active = nil
		p.mu.Unlock()
	}()

	player.Play()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Stop interrupts the current playback, if any.
func (p *Player) Stop() {
	p.mu.Lock()
	active := p.active
	p.mu.Unlock()

	if active != nil {
		active.Pause()
	}
}

// Close stops playback and suspends the output device.
func (p *Player) Close() error {
	p.Stop()
	return p.ctx.Suspend()
}
