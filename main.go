// Package main provides an audio scope service that captures a mono PCM
// stream, measures its power, tracks decaying peaks, estimates its
// spectrum and serves the latest readings over HTTP and WebSocket.
//
// Usage:
//
//	zwfm-scope [--config path/to/config.json]
//	zwfm-scope devices
//	zwfm-scope analyze recording.wav
//	zwfm-scope version
//
// If --config is not specified, the scope looks for config.json in the same
// directory as the binary.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/oszuidwest/zwfm-scope/internal/analyzer"
	"github.com/oszuidwest/zwfm-scope/internal/config"
	"github.com/oszuidwest/zwfm-scope/internal/eventlog"
	"github.com/oszuidwest/zwfm-scope/internal/notify"
	"github.com/oszuidwest/zwfm-scope/internal/state"
	"github.com/oszuidwest/zwfm-scope/internal/types"
	"github.com/oszuidwest/zwfm-scope/internal/util"
)

// Build information, set via -ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// httpShutdownTimeout bounds graceful HTTP shutdown.
const httpShutdownTimeout = 30 * time.Second

// rootOptions holds flags shared by all commands.
type rootOptions struct {
	configPath string
	logLevel   string
	noCapture  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. The root command runs the service.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "zwfm-scope",
		Short:        "Audio level, peak and spectrum scope",
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setLogLevel(opts.logLevel)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	addPersistentFlags(root.PersistentFlags(), opts)
	root.Flags().BoolVar(&opts.noCapture, "no-capture", false, "serve without starting capture")

	root.AddCommand(newDevicesCmd(), newAnalyzeCmd(), newVersionCmd())
	return root
}

func addPersistentFlags(fs *pflag.FlagSet, opts *rootOptions) {
	fs.StringVar(&opts.configPath, "config", "", "path to config file (default: config.json next to binary)")
	fs.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

// setLogLevel applies a level name to the default slog logger.
func setLogLevel(name string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return fmt.Errorf("invalid log level %q", name)
	}
	slog.SetLogLoggerLevel(level)
	return nil
}

// resolveConfigPath returns path, or config.json next to the binary.
func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	execPath, err := os.Executable()
	if err != nil {
		return "", util.WrapError("get executable path", err)
	}
	return filepath.Join(filepath.Dir(execPath), "config.json"), nil
}

// runServe runs the scope service until a shutdown signal arrives.
func runServe(parent context.Context, opts *rootOptions) error {
	configPath, err := resolveConfigPath(opts.configPath)
	if err != nil {
		return err
	}
	slog.Info("using config file", "path", configPath)

	cfg := config.New(configPath)
	if err := cfg.Load(); err != nil {
		return util.WrapError("load config", err)
	}
	snap := cfg.Snapshot()

	eventLogPath := snap.EventLogPath
	if eventLogPath == "" {
		eventLogPath = eventlog.DefaultLogPath(snap.WebPort)
	}
	events, err := eventlog.NewLogger(eventLogPath)
	if err != nil {
		slog.Warn("event log disabled", "path", eventLogPath, "error", err)
		events = nil
	} else {
		defer util.SafeCloseFunc(events, "event log")()
	}

	if snap.Backend == types.BackendCapture {
		if ffmpegPath := util.ResolveFFmpegPath(snap.FFmpegPath); ffmpegPath != "" {
			slog.Info("FFmpeg found", "path", ffmpegPath)
		} else {
			slog.Debug("FFmpeg not found, using platform capture tool", "configured_path", snap.FFmpegPath)
		}
	}

	notifier := notify.NewNotifier(cfg)
	a := analyzer.New(&configOpener{cfg: cfg}, state.NewPublished(), analyzer.Options{
		BlockSize:  snap.BlockSize,
		SampleRate: snap.SampleRate,
		Observer:   notifier,
		Events:     events,
	})

	ctx, stop := signal.NotifyContext(parent, util.ShutdownSignals()...)
	defer stop()

	go a.RunPruner(ctx, snap.PruneInterval)

	version := NewVersionChecker()
	go version.Run(ctx)

	srv := NewServer(cfg, a, notifier, version, eventLogPath)

	if !opts.noCapture {
		slog.Info("starting capture")
		if err := a.Start(); err != nil {
			// The service stays up so capture can be started once the device appears.
			slog.Error("failed to start capture", "error", err)
		}
	}

	httpServer := srv.Start()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if err := a.Stop(); err != nil {
		slog.Error("error stopping capture", "error", err)
	}
	notifier.Wait()

	slog.Info("shutdown complete")
	return nil
}
