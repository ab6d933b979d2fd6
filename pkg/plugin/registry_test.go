package plugin

import (
	"context"
	"errors"
	"testing"

	"voiceassistant/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockPlugin implements the Plugin interface for testing
type mockPlugin struct {
	slug    string
	stopped bool
}

func (m *mockPlugin) Slug() string             { return m.slug }
func (m *mockPlugin) IsValid(text string) bool { return text == m.slug }
func (m *mockPlugin) Stop()                    { m.stopped = true }

func (m *mockPlugin) Handle(ctx context.Context, text string, sess *Session) error {
	return nil
}

func factoryFor(slug string) Factory {
	return func(ctx *Context) (Plugin, error) { return &mockPlugin{slug: slug}, nil }
}

func TestRegistry_Register(t *testing.T) {
	tests := []struct {
		name        string
		info        PluginInfo
		wantErr     bool
		errContains string
	}{
		{
			name: "valid registration",
			info: PluginInfo{
				Slug:        "test-plugin",
				Description: "A test plugin",
				Factory:     factoryFor("test-plugin"),
			},
			wantErr: false,
		},
		{
			name: "empty slug",
			info: PluginInfo{
				Slug:    "",
				Factory: factoryFor(""),
			},
			wantErr:     true,
			errContains: "slug cannot be empty",
		},
		{
			name: "nil factory",
			info: PluginInfo{
				Slug:    "test-plugin",
				Factory: nil,
			},
			wantErr:     true,
			errContains: "factory cannot be nil",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewRegistry()
			err := registry.Register(tt.info)

			if tt.wantErr {
				assert.Error(t, err)
				if tt.errContains != "" {
					assert.Contains(t, err.Error(), tt.errContains)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegistry_DuplicateSlugFailsLoad(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.Register(PluginInfo{
		Slug:        "todo",
		Description: "First",
		Factory:     factoryFor("todo"),
	}))

	err := registry.Register(PluginInfo{
		Slug:        "todo",
		Description: "Second",
		Factory:     factoryFor("todo"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateSlug))

	// The first registration is kept for inspection
	info := registry.Get("todo")
	require.NotNil(t, info)
	assert.Equal(t, "First", info.Description)

	// but startup must not proceed
	plugins, err := registry.Load(nil)
	assert.True(t, errors.Is(err, ErrDuplicateSlug))
	assert.Nil(t, plugins)
}

func TestRegistry_DuplicateReportedSlugFailsLoad(t *testing.T) {
	registry := NewRegistry()

	first := &mockPlugin{slug: "same"}
	registry.Register(PluginInfo{
		Slug:    "a",
		Order:   10,
		Factory: func(ctx *Context) (Plugin, error) { return first, nil },
	})
	registry.Register(PluginInfo{
		Slug:    "b",
		Order:   20,
		Factory: factoryFor("same"),
	})

	plugins, err := registry.Load(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateSlug))
	assert.Nil(t, plugins)
	assert.True(t, first.stopped, "already constructed plugins should be stopped")
}

func TestRegistry_List(t *testing.T) {
	registry := NewRegistry()

	// Register plugins with different orders
	registry.Register(PluginInfo{Slug: "echo", Order: 90, Factory: factoryFor("echo")})
	registry.Register(PluginInfo{Slug: "todo", Order: 10, Factory: factoryFor("todo")})
	registry.Register(PluginInfo{Slug: "sun", Order: 50, Factory: factoryFor("sun")})
	registry.Register(PluginInfo{Slug: "clock", Order: 50, Factory: factoryFor("clock")})

	// List should be ordered by Order, then by slug
	list := registry.List()
	require.Len(t, list, 4)

	assert.Equal(t, "todo", list[0].Slug)  // Order 10
	assert.Equal(t, "clock", list[1].Slug) // Order 50, "c" < "s"
	assert.Equal(t, "sun", list[2].Slug)   // Order 50, "s"
	assert.Equal(t, "echo", list[3].Slug)  // Order 90
}

func TestRegistry_Load(t *testing.T) {
	registry := NewRegistry()

	created := make([]string, 0)

	registry.Register(PluginInfo{
		Slug:  "second",
		Order: 20,
		Factory: func(ctx *Context) (Plugin, error) {
			created = append(created, "second")
			return &mockPlugin{slug: "second"}, nil
		},
	})
	registry.Register(PluginInfo{
		Slug:  "first",
		Order: 10,
		Factory: func(ctx *Context) (Plugin, error) {
			created = append(created, "first")
			return &mockPlugin{slug: "first"}, nil
		},
	})

	plugins, err := registry.Load(nil)
	require.NoError(t, err)
	require.Len(t, plugins, 2)

	// Verify creation order
	assert.Equal(t, []string{"first", "second"}, created)
	assert.Equal(t, "first", plugins[0].Slug())
	assert.Equal(t, "second", plugins[1].Slug())
}

func TestRegistry_Load_SkipsBrokenPlugins(t *testing.T) {
	tests := []struct {
		name    string
		factory Factory
	}{
		{
			name:    "factory error",
			factory: func(ctx *Context) (Plugin, error) { return nil, errors.New("missing binary") },
		},
		{
			name:    "factory panic",
			factory: func(ctx *Context) (Plugin, error) { panic("boom") },
		},
		{
			name:    "nil plugin",
			factory: func(ctx *Context) (Plugin, error) { return nil, nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewRegistry()
			registry.Register(PluginInfo{Slug: "good", Order: 10, Factory: factoryFor("good")})
			registry.Register(PluginInfo{Slug: "broken", Order: 20, Factory: tt.factory})

			ctx := NewContext(config.Default(), zap.NewNop(), nil, nil)
			plugins, err := registry.Load(ctx)
			require.NoError(t, err)
			require.Len(t, plugins, 1)
			assert.Equal(t, "good", plugins[0].Slug())
		})
	}
}

func TestRegistry_Load_SkipsDisabled(t *testing.T) {
	registry := NewRegistry()
	registry.Register(PluginInfo{Slug: "todo", Factory: factoryFor("todo")})
	registry.Register(PluginInfo{Slug: "echo", Factory: factoryFor("echo")})

	profile := config.Default()
	profile.Plugins.Disabled = []string{"echo"}

	plugins, err := registry.Load(NewContext(profile, zap.NewNop(), nil, nil))
	require.NoError(t, err)
	require.Len(t, plugins, 1)
	assert.Equal(t, "todo", plugins[0].Slug())
}

func TestRegistry_Load_Empty(t *testing.T) {
	plugins, err := NewRegistry().Load(nil)
	require.NoError(t, err)
	assert.Empty(t, plugins)
}

func TestStopAll(t *testing.T) {
	a := &mockPlugin{slug: "a"}
	b := &mockPlugin{slug: "b"}

	StopAll([]Plugin{a, b})

	assert.True(t, a.stopped)
	assert.True(t, b.stopped)
}

func TestRegistry_Get_NotFound(t *testing.T) {
	registry := NewRegistry()
	info := registry.Get("nonexistent")
	assert.Nil(t, info)
}

func TestRegistry_Clear(t *testing.T) {
	registry := NewRegistry()

	registry.Register(PluginInfo{Slug: "test", Factory: factoryFor("test")})
	registry.Register(PluginInfo{Slug: "test", Factory: factoryFor("test")})

	assert.Len(t, registry.Slugs(), 1)

	registry.Clear()

	assert.Len(t, registry.Slugs(), 0)
	assert.Nil(t, registry.Get("test"))

	// Clearing also forgets recorded duplicates
	_, err := registry.Load(nil)
	assert.NoError(t, err)
}

func TestRegistry_DefaultOrder(t *testing.T) {
	registry := NewRegistry()

	// Register without specifying Order
	err := registry.Register(PluginInfo{Slug: "test", Factory: factoryFor("test")})
	require.NoError(t, err)

	info := registry.Get("test")
	require.NotNil(t, info)
	assert.Equal(t, 50, info.Order, "default order should be 50")
}

func TestGlobalRegistry(t *testing.T) {
	// Clear global registry for clean test
	ClearGlobal()
	defer ClearGlobal()

	err := Register(PluginInfo{
		Slug:        "global-test",
		Description: "Testing global registry",
		Factory:     factoryFor("global"),
	})
	require.NoError(t, err)

	// Test Get
	info := Get("global-test")
	require.NotNil(t, info)
	assert.Equal(t, "Testing global registry", info.Description)

	// Test List
	list := List()
	assert.Len(t, list, 1)

	// Test Slugs
	assert.Contains(t, Slugs(), "global-test")

	// Test Load
	plugins, err := Load(nil)
	require.NoError(t, err)
	require.Len(t, plugins, 1)
	assert.Equal(t, "global", plugins[0].Slug())
}
