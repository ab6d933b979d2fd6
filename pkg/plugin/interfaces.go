// Package plugin provides the plugin system interfaces and registry for the
// voice assistant. Plugins register themselves with the global registry from
// init() functions, which gives compile-time plugin selection: a plugin is
// available when its package is imported by the binary.
package plugin

import "context"

// Plugin is the core interface that all plugins must implement.
// A plugin claims utterances through IsValid and acts on them in Handle.
type Plugin interface {
	// Slug returns the unique identifier for this plugin.
	// It must be stable across runs and is used for logging and configuration.
	Slug() string

	// IsValid reports whether this plugin claims the utterance.
	// - Must be pure and free of side effects
	// - May be called any number of times, in any order
	IsValid(text string) bool

	// Handle acts on a claimed utterance.
	// - May block on external I/O (processes, network)
	// - Should honour ctx cancellation where it can
	// - Speaks through sess.Speaker; returns an error on failure
	Handle(ctx context.Context, text string, sess *Session) error
}

// Stopper is an optional interface for plugins that hold resources which
// must be released when the process shuts down.
type Stopper interface {
	Stop()
}

// Messenger is the handle a plugin gets on the background relay, when one is
// running. Post pushes a message to the relay's peers.
type Messenger interface {
	Post(ctx context.Context, text string) error
}

// Factory is a function that creates a new plugin instance given a context.
// Factories are registered with the global registry and called once during
// application startup.
type Factory func(ctx *Context) (Plugin, error)
