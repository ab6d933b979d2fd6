// Package stt provides the speech-to-text engines, selected by slug from
// the profile.
package stt

import (
	"context"
	"fmt"
	"sort"
	"time"

	"voiceassistant/internal/config"

	"go.uber.org/zap"
)

// Engine captures one utterance from the microphone and transcribes it.
// It returns speech.ErrRecognitionTimeout when nothing was said.
type Engine interface {
	Transcribe(ctx context.Context, max time.Duration) (string, error)
	Close() error
}

// Factory builds an engine from the profile.
type Factory func(profile *config.Profile, logger *zap.Logger) (Engine, error)

var engines = map[string]Factory{
	WhisperSlug:    newWhisperFromProfile,
	WhisperCLISlug: newWhisperCLIFromProfile,
}

// New builds the engine registered under slug.
func New(slug string, profile *config.Profile, logger *zap.Logger) (Engine, error) {
	factory, ok := engines[slug]
	if !ok {
		return nil, fmt.Errorf("unknown stt engine %q (available: %v)", slug, Slugs())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	engine, err := factory(profile, logger.Named("stt"))
	if err != nil {
		return nil, fmt.Errorf("stt engine %s: %w", slug, err)
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
