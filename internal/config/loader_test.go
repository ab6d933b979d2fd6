package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeProfile(t *testing.T, content string) string {
	tmpDir := t.TempDir()
	err := os.WriteFile(filepath.Join(tmpDir, ProfileFile), []byte(content), 0644)
	require.NoError(t, err)
	return tmpDir
}

func newTestLoader(dir string, env map[string]string) *Loader {
	loader := NewLoader(dir, zap.NewNop())
	loader.getenv = func(key string) string { return env[key] }
	return loader
}

func TestLoader_MissingProfileUsesDefaults(t *testing.T) {
	loader := newTestLoader(t.TempDir(), nil)

	profile, err := loader.Load()
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.RobotName, profile.RobotName)
	assert.Equal(t, def.STTEngine, profile.STTEngine)
	assert.Equal(t, def.STTEngine, profile.PassiveEngine())
	assert.Equal(t, 8*time.Second, profile.Listen.ActiveTimeout)
	assert.Equal(t, 15*time.Second, profile.Listen.RecognitionGrace)
	assert.Equal(t, 23*time.Second, profile.Listen.CommandDeadline(), "recording window plus recognition grace")
	assert.Equal(t, 30*time.Second, profile.Dispatch.Budget)
	assert.False(t, profile.Relay.Enabled)
}

func TestLoader_ParsesProfile(t *testing.T) {
	dir := writeProfile(t, `robot_name: 叮当
first_name: 主人
stt_engine: whisper-cli
stt_passive_engine: whisper
tts_engine: espeak
wake_words: ["叮当", "dingdang"]
listen:
  passive_window: 2s
  active_timeout: 5s
dispatch:
  budget: 10s
  fallback_text: 我没有听懂
relay:
  enabled: true
  url: ws://relay.local/ws
  queue_size: 4
  echo_speech: true
location:
  latitude: 31.23
  longitude: 121.47
  timezone: Asia/Shanghai
plugins:
  disabled: [echo]
`)

	profile, err := newTestLoader(dir, nil).Load()
	require.NoError(t, err)

	assert.Equal(t, "叮当", profile.RobotName)
	assert.Equal(t, "whisper-cli", profile.STTEngine)
	assert.Equal(t, "whisper", profile.PassiveEngine())
	assert.Equal(t, []string{"叮当", "dingdang"}, profile.WakeWords)
	assert.Equal(t, 2*time.Second, profile.Listen.PassiveWindow)
	assert.Equal(t, 5*time.Second, profile.Listen.ActiveTimeout)
	assert.Equal(t, 10*time.Second, profile.Dispatch.Budget)
	assert.Equal(t, "我没有听懂", profile.Dispatch.FallbackText)
	assert.Equal(t, Default().Dispatch.FailureText, profile.Dispatch.FailureText, "unset keys keep defaults")
	assert.True(t, profile.Relay.Enabled)
	assert.True(t, profile.Relay.EchoSpeech)
	assert.Equal(t, 4, profile.Relay.QueueSize)
	assert.False(t, profile.PluginEnabled("echo"))
	assert.True(t, profile.PluginEnabled("todo"))

	loc, err := profile.TimeLocation()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Shanghai", loc.String())
}

func TestLoader_EnvOverrides(t *testing.T) {
	dir := writeProfile(t, `relay:
  enabled: true
  url: ws://from-file/ws
  token: file-token
`)

	profile, err := newTestLoader(dir, map[string]string{
		EnvRelayURL:     "ws://from-env/ws",
		EnvRelayToken:   "env-token",
		EnvWhisperModel: "/models/ggml-small.bin",
	}).Load()
	require.NoError(t, err)

	assert.Equal(t, "ws://from-env/ws", profile.Relay.URL)
	assert.Equal(t, "env-token", profile.Relay.Token)
	assert.Equal(t, "/models/ggml-small.bin", profile.Whisper.ModelPath)
}

func TestLoader_InvalidProfile(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		errContains string
	}{
		{
			name:        "malformed yaml",
			content:     "robot_name: [unterminated",
			errContains: "failed to parse profile",
		},
		{
			name:        "zero active timeout",
			content:     "listen:\n  active_timeout: 0s\n",
			errContains: "active_timeout",
		},
		{
			name:        "negative recognition grace",
			content:     "listen:\n  recognition_grace: -1s\n",
			errContains: "recognition_grace",
		},
		{
			name:        "relay without url",
			content:     "relay:\n  enabled: true\n",
			errContains: "relay.url",
		},
		{
			name:        "unknown timezone",
			content:     "location:\n  timezone: Mars/Olympus\n",
			errContains: "invalid timezone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestLoader(writeProfile(t, tt.content), nil).Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestProfile_GreetingText(t *testing.T) {
	profile := Default()
	profile.RobotName = "叮当"
	profile.FirstName = "Alex"
	assert.Equal(t, "Hi Alex, 叮当 is listening.", profile.GreetingText())

	profile.Speech.Greeting = ""
	assert.Empty(t, profile.GreetingText())
}
