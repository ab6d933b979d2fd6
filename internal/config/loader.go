package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ProfileFile is the name of the profile inside the configuration directory.
const ProfileFile = "profile.yaml"

// Environment variables that override the profile.
const (
	EnvRelayURL     = "RELAY_URL"
	EnvRelayToken   = "RELAY_TOKEN"
	EnvWhisperModel = "WHISPER_MODEL"
	EnvTempDir      = "ASSISTANT_TEMP_DIR"
)

// ListenConfig bounds microphone capture. ActiveTimeout is the recording
// window for a command; RecognitionGrace is the extra time transcription
// may take once recording stops.
type ListenConfig struct {
	PassiveWindow    time.Duration `yaml:"passive_window"`
	ActiveTimeout    time.Duration `yaml:"active_timeout"`
	RecognitionGrace time.Duration `yaml:"recognition_grace"`
}

// CommandDeadline bounds a whole active listen: recording plus recognition.
func (c ListenConfig) CommandDeadline() time.Duration {
	return c.ActiveTimeout + c.RecognitionGrace
}

// DispatchConfig controls plugin execution.
type DispatchConfig struct {
	Budget       time.Duration `yaml:"budget"`
	FallbackText string        `yaml:"fallback_text"`
	FailureText  string        `yaml:"failure_text"`
}

// SpeechConfig controls the speech-output sink.
type SpeechConfig struct {
	QueueSize int    `yaml:"queue_size"`
	CacheDir  string `yaml:"cache_dir"`
	Greeting  string `yaml:"greeting"`
	WakeAck   string `yaml:"wake_ack"`
}

// WhisperConfig configures both whisper STT engines.
type WhisperConfig struct {
	ModelPath  string `yaml:"model_path"`
	CLIPath    string `yaml:"cli_path"`
	Language   string `yaml:"language"`
	CaptureDir string `yaml:"capture_dir"`
}

// EspeakConfig configures the espeak TTS engine.
type EspeakConfig struct {
	Binary string `yaml:"binary"`
	Voice  string `yaml:"voice"`
	Speed  int    `yaml:"speed"`
}

// AudioConfig configures playback.
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
}

// RelayConfig configures the background relay channel.
type RelayConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	Token      string `yaml:"token"`
	Proxy      string `yaml:"proxy"`
	QueueSize  int    `yaml:"queue_size"`
	EchoSpeech bool   `yaml:"echo_speech"`
}

// LocationConfig places the device for time and sun answers.
type LocationConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Timezone  string  `yaml:"timezone"`
}

// TodoConfig configures the reminder plugin.
type TodoConfig struct {
	Binary string `yaml:"binary"`
}

// StatusConfig configures the status HTTP server. Port 0 disables it.
type StatusConfig struct {
	Port int `yaml:"port"`
}

// PluginsConfig selects which plugins load.
type PluginsConfig struct {
	Disabled []string `yaml:"disabled"`
}

// Profile represents the profile.yaml structure
type Profile struct {
	RobotName        string   `yaml:"robot_name"`
	FirstName        string   `yaml:"first_name"`
	STTEngine        string   `yaml:"stt_engine"`
	STTPassiveEngine string   `yaml:"stt_passive_engine"`
	TTSEngine        string   `yaml:"tts_engine"`
	WakeWords        []string `yaml:"wake_words"`
	TempDir          string   `yaml:"temp_dir"`
	NetworkCheckURL  string   `yaml:"network_check_url"`

	Listen   ListenConfig   `yaml:"listen"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Speech   SpeechConfig   `yaml:"speech"`
	Whisper  WhisperConfig  `yaml:"whisper"`
	Espeak   EspeakConfig   `yaml:"espeak"`
	Audio    AudioConfig    `yaml:"audio"`
	Relay    RelayConfig    `yaml:"relay"`
	Location LocationConfig `yaml:"location"`
	Todo     TodoConfig     `yaml:"todo"`
	Status   StatusConfig   `yaml:"status"`
	Plugins  PluginsConfig  `yaml:"plugins"`
}

// Default returns the profile used when no profile.yaml exists. Values in
// profile.yaml are laid over these.
func Default() *Profile {
	return &Profile{
		RobotName:       "Assistant",
		FirstName:       "there",
		STTEngine:       "whisper",
		TTSEngine:       "espeak",
		WakeWords:       []string{"hey assistant", "assistant"},
		TempDir:         filepath.Join(os.TempDir(), "voiceassistant"),
		NetworkCheckURL: "https://www.google.com",
		Listen: ListenConfig{
			PassiveWindow:    3 * time.Second,
			ActiveTimeout:    8 * time.Second,
			RecognitionGrace: 15 * time.Second,
		},
		Dispatch: DispatchConfig{
			Budget:       30 * time.Second,
			FallbackText: "Sorry, I didn't understand that.",
			FailureText:  "Sorry, something went wrong.",
		},
		Speech: SpeechConfig{
			QueueSize: 32,
			Greeting:  "Hi {first_name}, {robot_name} is listening.",
			WakeAck:   "Yes?",
		},
		Whisper: WhisperConfig{
			ModelPath: "models/ggml-base.bin",
			CLIPath:   "whisper-cli",
			Language:  "auto",
		},
		Espeak: EspeakConfig{
			Binary: "espeak-ng",
			Voice:  "en",
			Speed:  160,
		},
		Audio: AudioConfig{
			SampleRate: 22050,
		},
		Relay: RelayConfig{
			QueueSize: 16,
		},
		Location: LocationConfig{
			Latitude:  39.9042,
			Longitude: 116.4074,
		},
		Todo: TodoConfig{
			Binary: "task",
		},
	}
}

// PassiveEngine returns the passive STT engine slug, defaulting to the
// active engine.
func (p *Profile) PassiveEngine() string {
	if p.STTPassiveEngine != "" {
		return p.STTPassiveEngine
	}
	return p.STTEngine
}

// PluginEnabled reports whether the plugin is not listed as disabled.
func (p *Profile) PluginEnabled(slug string) bool {
	for _, disabled := range p.Plugins.Disabled {
		if disabled == slug {
			return false
		}
	}
	return true
}

// TimeLocation resolves the configured timezone. Empty means local time.
func (p *Profile) TimeLocation() (*time.Location, error) {
	if p.Location.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(p.Location.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", p.Location.Timezone, err)
	}
	return loc, nil
}

// GreetingText expands {robot_name} and {first_name} in the greeting.
func (p *Profile) GreetingText() string {
	return strings.NewReplacer(
		"{robot_name}", p.RobotName,
		"{first_name}", p.FirstName,
	).Replace(p.Speech.Greeting)
}

// ApplyEnv overrides secrets and endpoints from the environment.
func (p *Profile) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvRelayURL); v != "" {
		p.Relay.URL = v
	}
	if v := getenv(EnvRelayToken); v != "" {
		p.Relay.Token = v
	}
	if v := getenv(EnvWhisperModel); v != "" {
		p.Whisper.ModelPath = v
	}
	if v := getenv(EnvTempDir); v != "" {
		p.TempDir = v
	}
}

// Validate checks the profile for values the engine cannot run with.
func (p *Profile) Validate() error {
	if p.RobotName == "" {
		return fmt.Errorf("robot_name cannot be empty")
	}
	if p.Listen.ActiveTimeout <= 0 {
		return fmt.Errorf("listen.active_timeout must be positive, got %s", p.Listen.ActiveTimeout)
	}
	if p.Listen.RecognitionGrace < 0 {
		return fmt.Errorf("listen.recognition_grace must not be negative, got %s", p.Listen.RecognitionGrace)
	}
	if p.Listen.PassiveWindow <= 0 {
		return fmt.Errorf("listen.passive_window must be positive, got %s", p.Listen.PassiveWindow)
	}
	if p.Dispatch.Budget < 0 {
		return fmt.Errorf("dispatch.budget cannot be negative, got %s", p.Dispatch.Budget)
	}
	if p.Speech.QueueSize <= 0 {
		return fmt.Errorf("speech.queue_size must be positive, got %d", p.Speech.QueueSize)
	}
	if p.Relay.Enabled {
		if p.Relay.URL == "" {
			return fmt.Errorf("relay.url is required when the relay is enabled")
		}
		if p.Relay.QueueSize <= 0 {
			return fmt.Errorf("relay.queue_size must be positive, got %d", p.Relay.QueueSize)
		}
	}
	if _, err := p.TimeLocation(); err != nil {
		return err
	}
	return nil
}

// Loader reads the profile from a configuration directory
type Loader struct {
	configDir string
	logger    *zap.Logger
	getenv    func(string) string
}

// NewLoader creates a new configuration loader
func NewLoader(configDir string, logger *zap.Logger) *Loader {
	return &Loader{
		configDir: configDir,
		logger:    logger,
		getenv:    os.Getenv,
	}
}

// Path returns the location of the profile file.
func (l *Loader) Path() string {
	return filepath.Join(l.configDir, ProfileFile)
}

// Load reads profile.yaml over the defaults, applies environment overrides
// and validates the result. A missing file is not an error.
func (l *Loader) Load() (*Profile, error) {
	path := l.Path()
	l.logger.Debug("Loading profile", zap.String("path", path))

	profile := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		l.logger.Warn("No profile found, using defaults", zap.String("path", path))
	case err != nil:
		return nil, fmt.Errorf("failed to read profile: %w", err)
	default:
		if err := yaml.Unmarshal(data, profile); err != nil {
			return nil, fmt.Errorf("failed to parse profile: %w", err)
		}
	}

	profile.ApplyEnv(l.getenv)

	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}

	l.logger.Info("Profile loaded",
		zap.String("robot_name", profile.RobotName),
		zap.String("stt_engine", profile.STTEngine),
		zap.String("stt_passive_engine", profile.PassiveEngine()),
		zap.String("tts_engine", profile.TTSEngine),
		zap.Bool("relay", profile.Relay.Enabled))
	return profile, nil
}
