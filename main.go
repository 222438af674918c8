// Package main implements a desktop recorder that captures the screen and
// audio through FFmpeg and exposes a WebSocket command surface for a UI shell.
//
// Usage:
//
//	recorder [-config path/to/config.json]
//
// If -config is not specified, the recorder looks for config.json in the same
// directory as the binary.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"time"

	"github.com/oszuidwest/zwfm-recorder/internal/capability"
	"github.com/oszuidwest/zwfm-recorder/internal/config"
	"github.com/oszuidwest/zwfm-recorder/internal/devices"
	"github.com/oszuidwest/zwfm-recorder/internal/events"
	"github.com/oszuidwest/zwfm-recorder/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-recorder/internal/notify"
	"github.com/oszuidwest/zwfm-recorder/internal/recorder"
	"github.com/oszuidwest/zwfm-recorder/internal/safety"
	"github.com/oszuidwest/zwfm-recorder/internal/store"
	"github.com/oszuidwest/zwfm-recorder/internal/supervisor"
	"github.com/oszuidwest/zwfm-recorder/internal/types"
	"github.com/oszuidwest/zwfm-recorder/internal/util"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	st := store.New(filepath.Join(filepath.Dir(*configPath), "store.json"))
	if err := st.Load(); err != nil {
		slog.Error("failed to load session store", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.New()
	locator := ffmpeg.NewLocator(cfg.FFmpegPath)
	detector := capability.NewDetector(locator.Path, capability.Candidates(runtime.GOOS), nil)
	catalog := devices.NewCatalog(locator.Path, nil)
	sup := supervisor.New()

	rec := recorder.New(cfg, st, bus, sup, detector, catalog, locator.Path)
	sup.SetExitHandler(rec.HandleProcessExit)

	monitor := safety.NewMonitor(rec, bus, func() safety.Limits {
		snap := cfg.Snapshot()
		return safety.Limits{
			OutputDir:          snap.OutputDir,
			MinDiskSpaceMB:     snap.MinDiskSpaceMB,
			MaxDurationMinutes: snap.MaxDurationMinutes,
		}
	}, safety.Telemetry{})
	rec.SetSafetyGate(monitor)
	go monitor.Run(ctx)

	notifier := notify.New(cfg)
	if err := notifier.Attach(ctx, bus); err != nil {
		slog.Error("failed to attach notifier", "error", err)
		os.Exit(1)
	}

	retention := recorder.NewRetention(func() recorder.RetentionPolicy {
		snap := cfg.Snapshot()
		return recorder.RetentionPolicy{
			OutputDir:     snap.OutputDir,
			RetentionDays: snap.RetentionDays,
		}
	})
	go retention.Run(ctx)

	// The encoder sweep and device scan need the capture binary; when it
	// is missing at startup a background watcher defers them until the
	// binary appears.
	locator.OnResolved(func(string) { sweepCapabilities(ctx, detector, catalog) })
	if _, err := locator.Resolve(); err != nil {
		slog.Warn("ffmpeg not found, recording disabled until it appears", "error", err)
		go locator.WatchUntilFound(ctx)
	} else {
		slog.Info("using ffmpeg", "path", locator.Path())
		go sweepCapabilities(ctx, detector, catalog)
	}

	srv := NewServer(cfg, st, rec, catalog, detector, bus)
	httpServer := srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	// An active recording is finalized before the process exits.
	rec.ForceStop(types.StopShutdown, "recorder shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	cancel()
	bus.Wait()

	slog.Info("shutdown complete")
}

// sweepCapabilities verifies the encoder candidates and rescans audio
// devices. Runs on startup and again whenever the binary reappears.
func sweepCapabilities(ctx context.Context, detector *capability.Detector, catalog *devices.Catalog) {
	if _, err := detector.Refresh(ctx); err != nil {
		slog.Warn("encoder verification finished with failures", "error", err)
	}
	catalog.Refresh(ctx)
}
