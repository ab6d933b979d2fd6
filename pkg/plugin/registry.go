package plugin

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// DefaultOrder is used when a plugin registers without an explicit order.
const DefaultOrder = 50

// ErrDuplicateSlug is returned by Register and Load when two plugins claim
// the same slug.
var ErrDuplicateSlug = errors.New("duplicate plugin slug")

// PluginInfo contains metadata about a registered plugin.
type PluginInfo struct {
	// Slug is the unique identifier for the plugin.
	Slug string

	// Description is a human-readable description of the plugin.
	Description string

	// Order places the plugin in the match order. Lower values are
	// matched first and win ties between plugins claiming the same
	// utterance. Equal orders fall back to the slug, lexicographically.
	// Default is 50.
	Order int

	// Factory creates the plugin instance.
	Factory Factory
}

// Registry manages plugin registration and instantiation.
// It is written to during init() and read once by Load.
type Registry struct {
	mu         sync.RWMutex
	plugins    map[string]PluginInfo
	duplicates []string
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]PluginInfo),
	}
}

// Register adds a plugin to the registry.
// A second registration under an existing slug is rejected and remembered,
// so that the following Load aborts startup.
func (r *Registry) Register(info PluginInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info.Slug == "" {
		return fmt.Errorf("plugin slug cannot be empty")
	}

	if info.Factory == nil {
		return fmt.Errorf("plugin %s: factory cannot be nil", info.Slug)
	}

	if info.Order == 0 {
		info.Order = DefaultOrder
	}

	if _, exists := r.plugins[info.Slug]; exists {
		r.duplicates = append(r.duplicates, info.Slug)
		return fmt.Errorf("plugin %s: %w", info.Slug, ErrDuplicateSlug)
	}

	r.plugins[info.Slug] = info
	return nil
}

// Get returns the plugin info for a given slug, or nil if not found.
func (r *Registry) Get(slug string) *PluginInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.plugins[slug]
	if !ok {
		return nil
	}
	return &info
}

// List returns all registered plugins in match order.
func (r *Registry) List() []PluginInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]PluginInfo, 0, len(r.plugins))
	for _, info := range r.plugins {
		result = append(result, info)
	}

	// Sort by order (lower first), then by slug so the result does not
	// depend on map iteration or init() order.
	sort.Slice(result, func(i, j int) bool {
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].Slug < result[j].Slug
	})

	return result
}

// Slugs returns the slugs of all registered plugins in match order.
func (r *Registry) Slugs() []string {
	infos := r.List()
	result := make([]string, len(infos))
	for i, info := range infos {
		result[i] = info.Slug
	}
	return result
}

// Load instantiates every enabled plugin in match order.
//
// A plugin whose factory fails or panics is logged and left out; the rest
// still load. Duplicate slugs, either registered twice or reported by two
// constructed plugins, abort the load.
func (r *Registry) Load(ctx *Context) ([]Plugin, error) {
	r.mu.RLock()
	duplicates := append([]string(nil), r.duplicates...)
	r.mu.RUnlock()

	if len(duplicates) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrDuplicateSlug, duplicates)
	}

	logger := zap.NewNop()
	if ctx != nil && ctx.Logger != nil {
		logger = ctx.Logger.Named("registry")
	}

	infos := r.List()
	result := make([]Plugin, 0, len(infos))
	seen := make(map[string]string, len(infos))

	for _, info := range infos {
		if ctx != nil && ctx.Profile != nil && !ctx.Profile.PluginEnabled(info.Slug) {
			logger.Info("Plugin disabled by configuration", zap.String("slug", info.Slug))
			continue
		}

		p, err := construct(info, ctx)
		if err != nil {
			logger.Error("Plugin failed to load, skipping",
				zap.String("slug", info.Slug),
				zap.Error(err))
			continue
		}

		slug := p.Slug()
		if other, ok := seen[slug]; ok {
			stopAll(result)
			return nil, fmt.Errorf("%w: %q reported by both %s and %s", ErrDuplicateSlug, slug, other, info.Slug)
		}
		seen[slug] = info.Slug

		result = append(result, p)
		logger.Info("Plugin loaded",
			zap.String("slug", slug),
			zap.Int("order", info.Order),
			zap.String("description", info.Description))
	}

	return result, nil
}

// construct calls the factory inside a failure boundary.
func construct(info PluginInfo, ctx *Context) (p Plugin, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			p = nil
			err = fmt.Errorf("factory panicked: %v", rec)
		}
	}()

	p, err = info.Factory(ctx)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("factory returned no plugin")
	}
	return p, nil
}

// StopAll stops every plugin implementing Stopper, in reverse load order.
func StopAll(plugins []Plugin) {
	stopAll(plugins)
}

func stopAll(plugins []Plugin) {
	for i := len(plugins) - 1; i >= 0; i-- {
		if s, ok := plugins[i].(Stopper); ok {
			s.Stop()
		}
	}
}

// Clear removes all registered plugins. Useful for testing.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.plugins = make(map[string]PluginInfo)
	r.duplicates = nil
}

// Global registry instance
var globalRegistry = NewRegistry()

// Register adds a plugin to the global registry.
// This is typically called from init() functions in plugin packages.
func Register(info PluginInfo) error {
	return globalRegistry.Register(info)
}

// Get returns plugin info from the global registry.
func Get(slug string) *PluginInfo {
	return globalRegistry.Get(slug)
}

// List returns all plugins from the global registry.
func List() []PluginInfo {
	return globalRegistry.List()
}

// Load creates all plugins from the global registry.
func Load(ctx *Context) ([]Plugin, error) {
	return globalRegistry.Load(ctx)
}

// Slugs returns all plugin slugs from the global registry.
func Slugs() []string {
	return globalRegistry.Slugs()
}

// ClearGlobal clears the global registry. Useful for testing.
func ClearGlobal() {
	globalRegistry.Clear()
}
