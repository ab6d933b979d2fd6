package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"voiceassistant/internal/command"
	"voiceassistant/internal/config"

	"go.uber.org/zap"
)

// EspeakSlug selects the espeak-ng engine.
const EspeakSlug = "espeak"

// Espeak synthesizes speech with the espeak-ng program.
type Espeak struct {
	binary string
	voice  string
	speed  int
	runner command.Runner
	logger *zap.Logger
}

// NewEspeak creates the engine. speed is in words per minute; zero keeps
// the program default.
func NewEspeak(binary, voice string, speed int, runner command.Runner, logger *zap.Logger) (*Espeak, error) {
	if binary == "" {
		return nil, errors.New("espeak binary is empty")
	}
	if speed < 0 {
		return nil, fmt.Errorf("espeak speed cannot be negative, got %d", speed)
	}
	if runner == nil {
		runner = command.OS{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Espeak{
		binary: binary,
		voice:  voice,
		speed:  speed,
		runner: runner,
		logger: logger.Named("espeak"),
	}, nil
}

func newEspeakFromProfile(profile *config.Profile, runner command.Runner, logger *zap.Logger) (Engine, error) {
	if _, err := command.Available(profile.Espeak.Binary); err != nil {
		return nil, fmt.Errorf("espeak binary %q: %w", profile.Espeak.Binary, err)
	}
	return NewEspeak(profile.Espeak.Binary, profile.Espeak.Voice, profile.Espeak.Speed, runner, logger)
}

// Voice returns "espeak:<voice>:<speed>".
func (e *Espeak) Voice() string {
	return "espeak:" + e.voice + ":" + strconv.Itoa(e.speed)
}

func (e *Espeak) args(text string) []string {
	args := []string{"--stdout"}
	if e.voice != "" {
		args = append(args, "-v", e.voice)
	}
	if e.speed > 0 {
		args = append(args, "-s", strconv.Itoa(e.speed))
	}
	// "--" keeps text starting with a dash from being read as a flag
	return append(args, "--", text)
}

// Synthesize runs espeak-ng and returns the WAV it writes to stdout.
func (e *Espeak) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("nothing to synthesize")
	}

	out, err := e.runner.Run(ctx, e.binary, e.args(text)...)
	if err != nil {
		return nil, fmt.Errorf("espeak: %w", err)
	}
	if !bytes.HasPrefix(out, []byte("RIFF")) {
		return nil, fmt.Errorf("espeak produced %d bytes of non-WAV output", len(out))
	}
	e.logger.Debug("Synthesized", zap.Int("chars", len(text)), zap.Int("bytes", len(out)))
	return out, nil
}
