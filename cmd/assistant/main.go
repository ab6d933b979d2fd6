package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"voiceassistant/internal/agent"
	"voiceassistant/internal/config"
	"voiceassistant/internal/diagnose"

	// Built-in plugins register themselves from init()
	_ "voiceassistant/internal/plugins/broadcast"
	_ "voiceassistant/internal/plugins/clock"
	_ "voiceassistant/internal/plugins/echo"
	_ "voiceassistant/internal/plugins/sun"
	_ "voiceassistant/internal/plugins/todo"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const logFile = "assistant.log"

type options struct {
	local          bool
	noNetworkCheck bool
	diagnose       bool
	debug          bool
	info           bool
	verbose        bool
	configDir      string
	envFile        string
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) (code int) {
	opts, err := parseFlags(args)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	envErr := godotenv.Load(opts.envFile)

	profile, err := config.NewLoader(opts.configDir, zap.NewNop()).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	logger, err := newLogger(opts, profile.TempDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	if envErr != nil {
		logger.Debug("No env file loaded, using environment variables", zap.String("path", opts.envFile))
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Unhandled failure",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", r)
			code = 1
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.diagnose {
		results := diagnose.Run(ctx, diagnose.Checks(profile, opts.noNetworkCheck), logger)
		diagnose.Report(os.Stdout, results)
		if len(diagnose.Failed(results)) > 0 {
			return 1
		}
		return 0
	}

	if !opts.noNetworkCheck {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := diagnose.CheckNetwork(checkCtx, &http.Client{}, profile.NetworkCheckURL)
		cancel()
		if err != nil {
			logger.Warn("Network check failed, online plugins may not work", zap.Error(err))
		}
	}

	logger.Info("Starting voice assistant",
		zap.String("robot_name", profile.RobotName),
		zap.Bool("local", opts.local),
		zap.String("config_dir", opts.configDir))

	a, err := agent.New(profile, agent.Options{Local: opts.local}, logger)
	if err != nil {
		logger.Error("Startup failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Startup failed: %v\n", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("Failed to release resources", zap.Error(err))
		}
	}()

	err = a.Run(ctx)
	switch {
	case err != nil:
		logger.Error("Assistant stopped with error", zap.Error(err))
		return 1
	case ctx.Err() != nil:
		logger.Info("Interrupted, shutting down")
		fmt.Println("Goodbye.")
	default:
		logger.Info("Input closed, shutting down")
	}
	return 0
}

func parseFlags(args []string) (options, error) {
	var opts options
	flags := pflag.NewFlagSet("assistant", pflag.ContinueOnError)
	flags.BoolVar(&opts.local, "local", false, "use text input and output instead of the microphone")
	flags.BoolVar(&opts.noNetworkCheck, "no-network-check", false, "skip the network reachability check")
	flags.BoolVar(&opts.diagnose, "diagnose", false, "check the configured engines and exit")
	flags.BoolVar(&opts.debug, "debug", false, "log at debug level")
	flags.BoolVar(&opts.info, "info", false, "log at info level")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log to the console instead of the log file")
	flags.StringVar(&opts.configDir, "config", defaultConfigDir(), "configuration directory holding "+config.ProfileFile)
	flags.StringVar(&opts.envFile, "env", ".env", "env file with secrets")

	err := flags.Parse(args)
	return opts, err
}

func defaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "voiceassistant")
}

// newLogger logs to the console with --verbose and to <tempDir>/assistant.log
// otherwise.
func newLogger(opts options, tempDir string) (*zap.Logger, error) {
	level := zapcore.WarnLevel
	switch {
	case opts.debug:
		level = zapcore.DebugLevel
	case opts.info || opts.verbose:
		level = zapcore.InfoLevel
	}

	if opts.verbose {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(level)
		return cfg.Build()
	}

	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{filepath.Join(tempDir, logFile)}
	return cfg.Build()
}
