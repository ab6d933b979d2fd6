package plugin

import (
	"time"

	"voiceassistant/internal/clock"
	"voiceassistant/internal/config"

	"go.uber.org/zap"
)

// Context provides dependencies to plugins during construction.
// It wraps the services a plugin may need in a single struct for cleaner
// factory signatures. Plugins must not keep per-utterance state in it.
type Context struct {
	// Profile is the configuration read at startup. Plugins read their own
	// section (e.g. Profile.Todo) from it.
	Profile *config.Profile

	// Logger is a structured logger for the plugin to use.
	// Plugins should use logger.Named("slug") for namespacing.
	Logger *zap.Logger

	// Clock is the time source. Tests substitute a MockClock.
	Clock clock.Clock

	// Timezone is the configured timezone for time-of-day answers.
	Timezone *time.Location
}

// NewContext creates a new plugin context with all required dependencies.
func NewContext(profile *config.Profile, logger *zap.Logger, clk clock.Clock, timezone *time.Location) *Context {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if timezone == nil {
		timezone = time.Local
	}
	return &Context{
		Profile:  profile,
		Logger:   logger,
		Clock:    clk,
		Timezone: timezone,
	}
}
