// Package tts provides the text-to-speech engines, selected by slug from the
// profile.
package tts

import (
	"context"
	"fmt"
	"sort"

	"voiceassistant/internal/command"
	"voiceassistant/internal/config"

	"go.uber.org/zap"
)

// Engine renders text to WAV audio.
type Engine interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)

	// Voice identifies the rendering settings; cached audio is keyed by it.
	Voice() string
}

// Factory builds an engine from the profile.
type Factory func(profile *config.Profile, runner command.Runner, logger *zap.Logger) (Engine, error)

var engines = map[string]Factory{
	EspeakSlug: newEspeakFromProfile,
}

// New builds the engine registered under slug. A nil runner runs programs
// through the operating system.
func New(slug string, profile *config.Profile, runner command.Runner, logger *zap.Logger) (Engine, error) {
	factory, ok := engines[slug]
	if !ok {
		return nil, fmt.Errorf("unknown tts engine %q (available: %v)", slug, Slugs())
	}
	if runner == nil {
		runner = command.OS{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	engine, err := factory(profile, runner, logger.Named("tts"))
	if err != nil {
		return nil, fmt.Errorf("tts engine %s: %w", slug, err)
	}
	return engine, nil
}

// Slugs lists the available engines.
func Slugs() []string {
	slugs := make([]string, 0, len(engines))
	for slug := range engines {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}
