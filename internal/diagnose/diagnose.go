// Package diagnose checks that the configured engines, binaries and
// directories are usable before the assistant starts.
package diagnose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"voiceassistant/internal/command"
	"voiceassistant/internal/config"
	"voiceassistant/internal/stt"
	"voiceassistant/internal/tts"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

// NetworkTimeout bounds the reachability check.
const NetworkTimeout = 5 * time.Second

var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	nameStyle = lipgloss.NewStyle().Width(28)
)

// Check is one named diagnostic.
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

// Result is the outcome of one check.
type Result struct {
	Name string
	Err  error
}

// Passed reports whether the check succeeded.
func (r Result) Passed() bool { return r.Err == nil }

// Checks returns the diagnostics relevant to profile. The network check is
// included unless skipNetwork is set.
func Checks(profile *config.Profile, skipNetwork bool) []Check {
	var checks []Check

	engines := map[string]bool{profile.STTEngine: true, profile.PassiveEngine(): true}
	if engines[stt.WhisperSlug] || engines[stt.WhisperCLISlug] {
		checks = append(checks, Check{
			Name: "whisper model",
			Run:  func(ctx context.Context) error { return FileExists(profile.Whisper.ModelPath) },
		})
	}
	if engines[stt.WhisperCLISlug] {
		checks = append(checks, executable("whisper-cli binary", profile.Whisper.CLIPath))
	}
	if profile.TTSEngine == tts.EspeakSlug {
		checks = append(checks, executable("espeak binary", profile.Espeak.Binary))
	}
	if profile.PluginEnabled("todo") {
		checks = append(checks, executable("taskwarrior binary", profile.Todo.Binary))
	}

	checks = append(checks, Check{
		Name: "temp dir writable",
		Run:  func(ctx context.Context) error { return Writable(profile.TempDir) },
	})
	if profile.Speech.CacheDir != "" {
		checks = append(checks, Check{
			Name: "speech cache writable",
			Run:  func(ctx context.Context) error { return Writable(profile.Speech.CacheDir) },
		})
	}
	if !skipNetwork && profile.NetworkCheckURL != "" {
		checks = append(checks, Check{
			Name: "network reachable",
			Run: func(ctx context.Context) error {
				return CheckNetwork(ctx, http.DefaultClient, profile.NetworkCheckURL)
			},
		})
	}
	return checks
}

func executable(name, binary string) Check {
	return Check{
		Name: name,
		Run: func(ctx context.Context) error {
			if binary == "" {
				return errors.New("not configured")
			}
			_, err := command.Available(binary)
			return err
		},
	}
}

// Run executes every check and logs each failure.
func Run(ctx context.Context, checks []Check, logger *zap.Logger) []Result {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("diagnose")

	results := make([]Result, 0, len(checks))
	for _, check := range checks {
		err := runCheck(ctx, check)
		if err != nil {
			logger.Warn("Check failed", zap.String("check", check.Name), zap.Error(err))
		} else {
			logger.Debug("Check passed", zap.String("check", check.Name))
		}
		results = append(results, Result{Name: check.Name, Err: err})
	}
	return results
}

func runCheck(ctx context.Context, check Check) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("check panicked: %v", rec)
		}
	}()
	return check.Run(ctx)
}

// Failed returns the failed results.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed() {
			failed = append(failed, r)
		}
	}
	return failed
}

// Report writes one line per result.
func Report(w io.Writer, results []Result) {
	for _, r := range results {
		if r.Passed() {
			fmt.Fprintf(w, "%s %s\n", passStyle.Render("PASS"), nameStyle.Render(r.Name))
			continue
		}
		fmt.Fprintf(w, "%s %s %v\n", failStyle.Render("FAIL"), nameStyle.Render(r.Name), r.Err)
	}
	failed := len(Failed(results))
	fmt.Fprintf(w, "%d checks, %d failed\n", len(results), failed)
}

// FileExists fails unless path names a regular file.
func FileExists(path string) error {
	if path == "" {
		return errors.New("not configured")
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}

// Writable fails unless a file can be created in dir. dir is created when
// missing.
func Writable(dir string) error {
	if dir == "" {
		return errors.New("not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".diagnose-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(filepath.Clean(name))
}

// CheckNetwork fails unless url answers an HTTP HEAD request with a status
// below 500.
func CheckNetwork(ctx context.Context, client *http.Client, url string) error {
	ctx, cancel := context.WithTimeout(ctx, NetworkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%s answered %s", url, resp.Status)
	}
	return nil
}
