package diagnose

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"voiceassistant/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(checks []Check) []string {
	out := make([]string, len(checks))
	for i, c := range checks {
		out[i] = c.Name
	}
	return out
}

func TestChecks_FollowProfile(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		profile := config.Default()
		got := names(Checks(profile, false))
		assert.Equal(t, []string{
			"whisper model",
			"espeak binary",
			"taskwarrior binary",
			"temp dir writable",
			"network reachable",
		}, got)
	})

	t.Run("whisper-cli without todo or network", func(t *testing.T) {
		profile := config.Default()
		profile.STTEngine = "whisper-cli"
		profile.Plugins.Disabled = []string{"todo"}
		profile.Speech.CacheDir = t.TempDir()

		got := names(Checks(profile, true))
		assert.Equal(t, []string{
			"whisper model",
			"whisper-cli binary",
			"espeak binary",
			"temp dir writable",
			"speech cache writable",
		}, got)
	})
}

func TestRun_CollectsFailures(t *testing.T) {
	checks := []Check{
		{Name: "ok", Run: func(ctx context.Context) error { return nil }},
		{Name: "broken", Run: func(ctx context.Context) error { return errors.New("missing") }},
		{Name: "panics", Run: func(ctx context.Context) error { panic("boom") }},
	}

	results := Run(context.Background(), checks, nil)
	require.Len(t, results, 3)
	assert.True(t, results[0].Passed())

	failed := Failed(results)
	require.Len(t, failed, 2)
	assert.Equal(t, "broken", failed[0].Name)
	assert.Contains(t, failed[1].Err.Error(), "panicked")

	var buf bytes.Buffer
	Report(&buf, results)
	assert.Contains(t, buf.String(), "3 checks, 2 failed")
	assert.Contains(t, buf.String(), "missing")
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "model.bin")
	require.NoError(t, os.WriteFile(file, []byte("ggml"), 0o644))

	assert.NoError(t, FileExists(file))
	assert.Error(t, FileExists(dir))
	assert.Error(t, FileExists(filepath.Join(dir, "missing.bin")))
	assert.Error(t, FileExists(""))
}

func TestWritable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "temp")
	require.NoError(t, Writable(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.Error(t, Writable(""))
}

func TestCheckNetwork(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
	}))
	defer ok.Close()

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()

	assert.NoError(t, CheckNetwork(context.Background(), ok.Client(), ok.URL))
	assert.Error(t, CheckNetwork(context.Background(), down.Client(), down.URL))
	assert.Error(t, CheckNetwork(context.Background(), http.DefaultClient, "http://127.0.0.1:1"))
}
