// Package agent assembles the assistant from a profile: speech backend,
// plugins, dispatch, the conversation loop, and the optional relay and
// status server.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"voiceassistant/internal/api"
	"voiceassistant/internal/audio"
	"voiceassistant/internal/clock"
	"voiceassistant/internal/command"
	"voiceassistant/internal/config"
	"voiceassistant/internal/conversation"
	"voiceassistant/internal/dispatch"
	"voiceassistant/internal/hardware"
	"voiceassistant/internal/matcher"
	"voiceassistant/internal/relay"
	ispeech "voiceassistant/internal/speech"
	"voiceassistant/internal/stt"
	"voiceassistant/internal/tts"
	"voiceassistant/pkg/plugin"
	"voiceassistant/pkg/speech"

	"go.uber.org/zap"
)

// Options select the backend and test seams.
type Options struct {
	// Local uses the text backend on In and Out instead of the microphone.
	Local bool
	In    io.Reader
	Out   io.Writer

	// Backend replaces the configured backend entirely.
	Backend speech.Backend

	Clock clock.Clock
}

// Engine constructors, replaced in tests.
var (
	newSTT = stt.New
	newTTS = tts.New
)

// Agent is one assembled assistant.
type Agent struct {
	profile   *config.Profile
	logger    *zap.Logger
	clock     clock.Clock
	resources *hardware.Resources

	backend    speech.Backend
	sink       *ispeech.Sink
	plugins    []plugin.Plugin
	dispatcher *dispatch.Dispatcher
	router     *dispatch.Router
	loop       *conversation.Loop
	relay      *relay.Channel
	server     *api.Server

	startedAt time.Time
}

// New builds the agent. On error or panic every resource acquired so far
// has been released; a panic is then re-raised.
func New(profile *config.Profile, opts Options, logger *zap.Logger) (a *Agent, err error) {
	if profile == nil {
		return nil, errors.New("agent: profile is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.NewRealClock()
	}

	a = &Agent{
		profile:   profile,
		logger:    logger,
		clock:     clk,
		resources: hardware.NewResources(logger),
		startedAt: clk.Now(),
	}
	defer func() {
		if r := recover(); r != nil {
			if releaseErr := a.resources.Release(); releaseErr != nil {
				logger.Warn("Release after startup panic", zap.Error(releaseErr))
			}
			panic(r)
		}
		if err != nil {
			if releaseErr := a.resources.Release(); releaseErr != nil {
				logger.Warn("Release after failed startup", zap.Error(releaseErr))
			}
			a = nil
		}
	}()

	timezone, err := profile.TimeLocation()
	if err != nil {
		return nil, err
	}

	a.backend, err = a.buildBackend(opts)
	if err != nil {
		return nil, err
	}

	a.plugins, err = plugin.Load(plugin.NewContext(profile, logger, clk, timezone))
	if err != nil {
		return nil, fmt.Errorf("load plugins: %w", err)
	}
	a.resources.Add("plugins", func() error {
		plugin.StopAll(a.plugins)
		return nil
	})

	a.sink = ispeech.NewSink(a.backend, profile.Speech.QueueSize, logger)
	a.dispatcher = dispatch.NewDispatcher(dispatch.Config{
		Budget:      profile.Dispatch.Budget,
		FailureText: profile.Dispatch.FailureText,
	}, clk, logger)
	a.router = dispatch.NewRouter(matcher.New(a.plugins, logger), a.dispatcher, profile.Dispatch.FallbackText, logger)
	a.loop = conversation.New(a.backend, a.sink, a.router, conversation.Config{
		CommandDeadline: profile.Listen.CommandDeadline(),
		WakeAck:         profile.Speech.WakeAck,
	}, logger, conversation.WithClock(clk))

	if profile.Relay.Enabled {
		a.relay, err = relay.NewChannel(relay.Config{
			URL:        profile.Relay.URL,
			Token:      profile.Relay.Token,
			Proxy:      profile.Relay.Proxy,
			QueueSize:  profile.Relay.QueueSize,
			EchoSpeech: profile.Relay.EchoSpeech,
		}, a.router, a.sink, logger)
		if err != nil {
			return nil, fmt.Errorf("relay: %w", err)
		}
		a.router.SetMessenger(a.relay)
	}

	if profile.Status.Port > 0 {
		a.server = api.NewServer(api.StatusFunc(a.Status), logger, profile.Status.Port)
	}

	logger.Info("Assistant assembled",
		zap.String("robot_name", profile.RobotName),
		zap.Strings("plugins", a.PluginSlugs()),
		zap.Bool("relay", a.relay != nil),
		zap.Bool("status_server", a.server != nil))
	return a, nil
}

func (a *Agent) buildBackend(opts Options) (speech.Backend, error) {
	switch {
	case opts.Backend != nil:
		a.resources.AddCloser("speech backend", opts.Backend)
		return opts.Backend, nil
	case opts.Local:
		in, out := opts.In, opts.Out
		if in == nil {
			in = os.Stdin
		}
		if out == nil {
			out = os.Stdout
		}
		backend := ispeech.NewLocalBackend(a.profile.RobotName, in, out, a.logger)
		a.resources.AddCloser("local backend", backend)
		return backend, nil
	default:
		return a.buildMicBackend()
	}
}

// buildMicBackend registers each engine with the resource registry as it
// is created, so a failure part-way still releases what was opened.
func (a *Agent) buildMicBackend() (speech.Backend, error) {
	p := a.profile

	active, err := newSTT(p.STTEngine, p, a.logger)
	if err != nil {
		return nil, err
	}
	a.resources.AddCloser("stt "+p.STTEngine, active)

	passive := active
	if slug := p.PassiveEngine(); slug != p.STTEngine {
		passive, err = newSTT(slug, p, a.logger)
		if err != nil {
			return nil, err
		}
		a.resources.AddCloser("stt "+slug, passive)
	}

	synth, err := newTTS(p.TTSEngine, p, command.OS{}, a.logger)
	if err != nil {
		return nil, err
	}

	player, err := audio.NewPlayer(p.Audio.SampleRate, a.logger)
	if err != nil {
		return nil, err
	}
	a.resources.AddCloser("audio player", player)

	cache := ispeech.NewAudioCache(synth.Voice(), p.Speech.CacheDir, a.logger)

	return ispeech.NewMicBackend(ispeech.MicConfig{
		WakeWords:     p.WakeWords,
		PassiveWindow: p.Listen.PassiveWindow,
		ActiveTimeout: p.Listen.ActiveTimeout,
	}, passive, active, synth, player, cache, a.logger)
}

// Run greets, then runs the conversation loop until ctx is cancelled or
// the input closes. The relay and status server run alongside it.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.sink.Start(ctx)
	defer a.sink.Stop()

	if a.relay != nil {
		if err := a.relay.Start(ctx); err != nil {
			return fmt.Errorf("start relay: %w", err)
		}
		defer a.relay.Stop()
	}

	if a.server != nil {
		if err := a.server.Start(); err != nil {
			return fmt.Errorf("start status server: %w", err)
		}
		defer func() {
			if err := a.server.Stop(); err != nil {
				a.logger.Warn("Status server shutdown", zap.Error(err))
			}
		}()
	}

	if greeting := a.profile.GreetingText(); greeting != "" {
		if err := a.sink.Speak(ctx, greeting, speech.SpeakOptions{Cache: true}); err != nil && ctx.Err() == nil {
			a.logger.Warn("Greeting failed", zap.Error(err))
		}
	}

	return a.loop.Run(ctx)
}

// Close stops the plugins and releases every hardware resource. It is safe
// to call more than once.
func (a *Agent) Close() error {
	return a.resources.Release()
}

// PluginSlugs lists the loaded plugins in match order.
func (a *Agent) PluginSlugs() []string {
	slugs := make([]string, len(a.plugins))
	for i, p := range a.plugins {
		slugs[i] = p.Slug()
	}
	return slugs
}

// Router returns the shared router.
func (a *Agent) Router() *dispatch.Router {
	return a.router
}

// Status reports the live state for the status server.
func (a *Agent) Status() api.StatusResponse {
	resp := api.StatusResponse{
		Robot:    a.profile.RobotName,
		State:    a.loop.State().String(),
		Turns:    a.loop.Turns(),
		Busy:     a.dispatcher.Busy(),
		Plugins:  a.PluginSlugs(),
		Dispatch: a.dispatcher.Stats(),
		Speech: api.SpeechStatus{
			Speaking: a.sink.Speaking(),
			Queued:   a.sink.QueueLen(),
			Spoken:   a.sink.Spoken(),
		},
		StartedAt: a.startedAt,
		Uptime:    a.clock.Since(a.startedAt).Round(time.Second).String(),
	}
	if a.relay != nil {
		stats := a.relay.Stats()
		resp.Relay = &stats
	}
	return resp
}
