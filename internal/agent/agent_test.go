package agent

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"voiceassistant/internal/clock"
	"voiceassistant/internal/command"
	"voiceassistant/internal/config"
	_ "voiceassistant/internal/plugins/clock"
	_ "voiceassistant/internal/plugins/echo"
	"voiceassistant/internal/stt"
	"voiceassistant/internal/tts"
	"voiceassistant/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testProfile() *config.Profile {
	profile := config.Default()
	profile.Location.Timezone = "UTC"
	profile.Speech.CacheDir = ""
	return profile
}

func TestAgent_LocalConversation(t *testing.T) {
	var out bytes.Buffer
	a, err := New(testProfile(), Options{
		Local: true,
		In:    strings.NewReader("repeat after me hello there\nsing me a song\n"),
		Out:   &out,
	}, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Run(context.Background()))

	text := out.String()
	greeting := strings.Index(text, "Hi there, Assistant is listening.")
	echoed := strings.Index(text, "hello there")
	fallback := strings.Index(text, "Sorry, I didn't understand that.")
	require.True(t, greeting >= 0 && echoed >= 0 && fallback >= 0, text)
	assert.Less(t, greeting, echoed)
	assert.Less(t, echoed, fallback)

	status := a.Status()
	assert.Equal(t, "shutdown", status.State)
	assert.EqualValues(t, 2, status.Turns)
	assert.EqualValues(t, 1, status.Dispatch.Succeeded)
	assert.EqualValues(t, 1, status.Dispatch.Unmatched)
	assert.Nil(t, status.Relay)
}

func TestAgent_ScriptedBackend(t *testing.T) {
	backend := testutil.NewScriptedBackend(
		[]testutil.PassiveStep{
			testutil.Wake("跟我说 你好"),
			testutil.Wake(""),
		},
		[]testutil.ActiveStep{{Text: "what time is it"}},
	)
	clk := clock.NewMockClock(time.Date(2024, 6, 21, 15, 4, 0, 0, time.UTC))

	a, err := New(testProfile(), Options{Backend: backend, Clock: clk}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, []string{
		"Hi there, Assistant is listening.",
		"你好",
		"Yes?",
		"It is 3:04 PM.",
	}, backend.Texts())

	spoken := backend.Spoken()
	assert.True(t, spoken[0].Cached, "greeting is cached")
	assert.False(t, spoken[1].Cached)

	require.NoError(t, a.Close())
	assert.True(t, backend.Closed())
	require.NoError(t, a.Close())
}

func TestAgent_PluginOrder(t *testing.T) {
	profile := testProfile()
	profile.Plugins.Disabled = []string{"clock"}

	a, err := New(profile, Options{Backend: testutil.NewScriptedBackend(nil, nil)}, nil)
	require.NoError(t, err)
	defer a.Close()

	slugs := a.PluginSlugs()
	assert.Contains(t, slugs, "echo")
	assert.NotContains(t, slugs, "clock")
	assert.Equal(t, slugs, a.Status().Plugins)
}

func TestAgent_RelayRoundTrip(t *testing.T) {
	server := testutil.NewMockRelayServer("secret")
	defer server.Close()

	profile := testProfile()
	profile.Speech.Greeting = ""
	profile.Relay.Enabled = true
	profile.Relay.URL = server.URL()
	profile.Relay.Token = "secret"

	in, inWriter := io.Pipe()
	defer inWriter.Close()

	var out bytes.Buffer
	a, err := New(profile, Options{Local: true, In: in, Out: &out}, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.True(t, server.WaitForConnections(1, 2*time.Second))
	require.NoError(t, server.SendMessage("m-1", "alice", "repeat after me over the relay"))

	replies := server.WaitForFrames("reply", 1, 2*time.Second)
	require.Len(t, replies, 1)
	assert.Equal(t, "m-1", replies[0].ID)
	assert.Equal(t, "over the relay", replies[0].Text)

	status := a.Status()
	require.NotNil(t, status.Relay)
	assert.True(t, status.Relay.Connected)
	assert.EqualValues(t, 1, status.Relay.Received)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop")
	}
}

func TestNew_StartupFailures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *config.Profile)
		wantErr string
	}{
		{
			name:    "unknown stt engine",
			mutate:  func(p *config.Profile) { p.STTEngine = "sphinx" },
			wantErr: `unknown stt engine "sphinx"`,
		},
		{
			name:    "bad timezone",
			mutate:  func(p *config.Profile) { p.Location.Timezone = "Mars/Olympus" },
			wantErr: "invalid timezone",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := testProfile()
			tt.mutate(profile)

			a, err := New(profile, Options{}, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Nil(t, a)
		})
	}
}

func TestNew_RelayWithoutURL(t *testing.T) {
	backend := testutil.NewScriptedBackend(nil, nil)
	profile := testProfile()
	profile.Relay.Enabled = true

	_, err := New(profile, Options{Backend: backend}, nil)
	require.Error(t, err)
	assert.True(t, backend.Closed(), "backend released after failed startup")
}

type closeCounter struct {
	closed int
}

func (c *closeCounter) Transcribe(ctx context.Context, max time.Duration) (string, error) {
	return "", nil
}

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func TestNew_PanicReleasesAcquiredResources(t *testing.T) {
	engine := &closeCounter{}
	origSTT, origTTS := newSTT, newTTS
	t.Cleanup(func() { newSTT, newTTS = origSTT, origTTS })

	newSTT = func(slug string, profile *config.Profile, logger *zap.Logger) (stt.Engine, error) {
		return engine, nil
	}
	newTTS = func(slug string, profile *config.Profile, runner command.Runner, logger *zap.Logger) (tts.Engine, error) {
		panic("voice data corrupt")
	}

	assert.PanicsWithValue(t, "voice data corrupt", func() {
		_, _ = New(testProfile(), Options{}, zap.NewNop())
	})
	assert.Equal(t, 1, engine.closed, "stt engine released before the panic propagates")
}
