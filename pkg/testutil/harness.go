package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"voiceassistant/internal/clock"
	"voiceassistant/internal/config"
	"voiceassistant/pkg/plugin"

	"go.uber.org/zap"
)

// RecordingMessenger is a plugin.Messenger that remembers posts. Err, when
// set, is returned instead of recording.
type RecordingMessenger struct {
	Err error

	mu    sync.Mutex
	posts []string
}

// Post implements plugin.Messenger.
func (m *RecordingMessenger) Post(ctx context.Context, text string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = append(m.posts, text)
	return nil
}

// Posts returns the posted texts in order.
func (m *RecordingMessenger) Posts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.posts...)
}

// PluginEnv provides a complete environment for plugin tests: a default
// profile, a mock clock, a recording speaker and a recording messenger.
//
// Example usage:
//
//	env := testutil.NewPluginEnv(time.Date(2024, 6, 21, 9, 30, 0, 0, time.UTC))
//	p, err := env.Build(createPlugin)
//	require.NoError(t, err)
//	require.NoError(t, env.Handle(p, "what time is it"))
//	assert.Equal(t, []string{"It is 9:30 AM."}, env.Speaker.Texts())
type PluginEnv struct {
	Profile   *config.Profile
	Clock     *clock.MockClock
	Speaker   *RecordingSpeaker
	Messenger *RecordingMessenger
	Logger    *zap.Logger

	// Timeout bounds Handle. Zero means one second.
	Timeout time.Duration

	// NoMessenger hands plugins a nil Messenger, as when no relay runs.
	NoMessenger bool
}

// NewPluginEnv creates an environment whose clock starts at now. The
// profile timezone follows now's location.
func NewPluginEnv(now time.Time) *PluginEnv {
	logger, _ := zap.NewDevelopment()
	profile := config.Default()
	profile.Location.Timezone = now.Location().String()
	return &PluginEnv{
		Profile:   profile,
		Clock:     clock.NewMockClock(now),
		Speaker:   NewRecordingSpeaker(),
		Messenger: &RecordingMessenger{},
		Logger:    logger,
	}
}

// Context returns the plugin construction context.
func (e *PluginEnv) Context() *plugin.Context {
	return plugin.NewContext(e.Profile, e.Logger, e.Clock, e.Clock.Now().Location())
}

// Build constructs a plugin with factory.
func (e *PluginEnv) Build(factory plugin.Factory) (plugin.Plugin, error) {
	if factory == nil {
		return nil, errors.New("factory cannot be nil")
	}
	return factory(e.Context())
}

// Session builds the session Handle receives for text.
func (e *PluginEnv) Session(text string) *plugin.Session {
	utt := plugin.Utterance{
		ID:         "test-utterance",
		Text:       text,
		Source:     plugin.SourceMicrophone,
		ReceivedAt: e.Clock.Now(),
	}
	var messenger plugin.Messenger
	if !e.NoMessenger {
		messenger = e.Messenger
	}
	return plugin.NewSession(utt, e.Speaker, messenger, e.Logger)
}

// Handle checks that p claims text and runs its handler.
func (e *PluginEnv) Handle(p plugin.Plugin, text string) error {
	if !p.IsValid(text) {
		return errors.New("plugin " + p.Slug() + " does not claim " + text)
	}
	timeout := e.Timeout
	if timeout == 0 {
		timeout = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return p.Handle(ctx, text, e.Session(text))
}
