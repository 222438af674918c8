package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/oszuidwest/zwfm-recorder/internal/capability"
	"github.com/oszuidwest/zwfm-recorder/internal/config"
	"github.com/oszuidwest/zwfm-recorder/internal/devices"
	"github.com/oszuidwest/zwfm-recorder/internal/events"
	"github.com/oszuidwest/zwfm-recorder/internal/notify"
	"github.com/oszuidwest/zwfm-recorder/internal/recorder"
	"github.com/oszuidwest/zwfm-recorder/internal/server"
	"github.com/oszuidwest/zwfm-recorder/internal/store"
	"github.com/oszuidwest/zwfm-recorder/internal/sysinfo"
	"github.com/oszuidwest/zwfm-recorder/internal/util"
)

// statusPushInterval is how often a full status frame goes out even when
// nothing changed; bus events push one immediately in between.
const statusPushInterval = 3 * time.Second

// Server is the HTTP server carrying the WebSocket command surface for the UI shell.
type Server struct {
	config   *config.Config
	store    *store.Store
	recorder *recorder.Recorder
	devices  *devices.Catalog
	encoders *capability.Detector
	bus      *events.Bus
	commands *server.CommandHandler
	version  *VersionChecker
}

// NewServer returns a new Server wired to the recording engine.
func NewServer(
	cfg *config.Config,
	st *store.Store,
	rec *recorder.Recorder,
	catalog *devices.Catalog,
	detector *capability.Detector,
	bus *events.Bus,
) *Server {
	testTriggers := map[string]func() error{
		"webhook": func() error { return notify.SendTestWebhook(cfg.Snapshot().WebhookURL) },
		"log":     func() error { return notify.WriteTestLog(cfg.Snapshot().LogPath) },
		"email":   func() error { return notify.SendTestEmail(notify.EmailConfigFromSnapshot(cfg.Snapshot())) },
	}
	commands := server.NewCommandHandler(cfg, rec, st, catalog, detector, testTriggers)

	return &Server{
		config:   cfg,
		store:    st,
		recorder: rec,
		devices:  catalog,
		encoders: detector,
		bus:      bus,
		commands: commands,
		version:  NewVersionChecker(),
	}
}

// handleWebSocket streams recorder status and progress to the client and
// dispatches its commands.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	client, err := server.Upgrade(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}
	defer util.SafeCloseFunc(client, "WebSocket connection")()

	ctx := r.Context()

	// Channel to signal status update needed
	statusUpdate := make(chan bool, 1)
	done := make(chan bool)

	triggerStatusUpdate := func() {
		select {
		case statusUpdate <- true:
		default:
		}
	}

	// Session transitions and safety edges push a fresh frame without
	// waiting out the ticker.
	var errs *multierror.Error
	errs = multierror.Append(errs,
		events.Subscribe(ctx, s.bus, func(events.SessionStarted) { triggerStatusUpdate() }),
		events.Subscribe(ctx, s.bus, func(events.SessionStopped) { triggerStatusUpdate() }),
		events.Subscribe(ctx, s.bus, func(events.SessionError) { triggerStatusUpdate() }),
		events.Subscribe(ctx, s.bus, func(events.ProfileChanged) { triggerStatusUpdate() }),
		events.Subscribe(ctx, s.bus, func(events.SafetyWarning) { triggerStatusUpdate() }),
		events.Subscribe(ctx, s.bus, func(events.AutoStopTriggered) { triggerStatusUpdate() }),
	)
	progressCh, progressErr := events.SubscribeChan[events.ProgressTick](ctx, s.bus)
	errs = multierror.Append(errs, progressErr)
	if err := errs.ErrorOrNil(); err != nil {
		slog.Error("failed to subscribe WebSocket client to events", "error", err)
		return
	}

	// Goroutine to read and process commands from client
	go func() {
		for {
			cmd, err := client.ReadCommand()
			if err != nil {
				close(done)
				return
			}
			s.commands.Handle(ctx, cmd, client, triggerStatusUpdate)
		}
	}()

	statusTicker := time.NewTicker(statusPushInterval)
	defer statusTicker.Stop()

	// Helper to send status
	sendStatus := func() error {
		snap := s.config.Snapshot()
		return client.WriteJSON(map[string]any{
			"type":           "status",
			"recorder":       s.recorder.Status(),
			"active_profile": snap.ActiveProfileID,
			"profiles":       s.store.Profiles(),
			"sessions":       s.store.Sessions(),
			"devices":        s.devices.List(ctx),
			"encoders":       s.encoders.Results(),
			"encoders_swept": s.encoders.HasSwept(),
			"settings":       settingsView(snap),
			"system":         sysinfo.Describe(snap.OutputDir),
			"version":        s.version.GetInfo(),
		})
	}

	// Send initial status
	if err := sendStatus(); err != nil {
		return
	}

	for {
		select {
		case <-done:
			return
		case <-statusUpdate:
			if err := sendStatus(); err != nil {
				return
			}
		case tick := <-progressCh:
			if err := client.WriteJSON(map[string]any{
				"type":       "progress",
				"session_id": tick.SessionID,
				"progress":   tick.Progress,
			}); err != nil {
				return
			}
		case <-statusTicker.C:
			if err := sendStatus(); err != nil {
				return
			}
		}
	}
}

// settingsView shapes the configuration snapshot for the UI, leaving
// credentials out.
func settingsView(snap config.Snapshot) map[string]any {
	return map[string]any{
		"ffmpeg_path":          snap.FFmpegPath,
		"output_dir":           snap.OutputDir,
		"container":            snap.Container,
		"segment_seconds":      snap.SegmentSeconds,
		"retention_days":       snap.RetentionDays,
		"display":              snap.Display,
		"screen_index":         snap.ScreenIndex,
		"secondary_display":    snap.SecondaryDisplay,
		"primary_width":        snap.PrimaryWidth,
		"window_title":         snap.WindowTitle,
		"region_size":          snap.RegionSize,
		"region_x":             snap.RegionX,
		"region_y":             snap.RegionY,
		"system_audio":         snap.SystemAudio,
		"microphone":           snap.Microphone,
		"mix_audio":            snap.MixAudio,
		"min_disk_space_mb":    snap.MinDiskSpaceMB,
		"max_duration_minutes": snap.MaxDurationMinutes,
		"webhook_url":          snap.WebhookURL,
		"log_path":             snap.LogPath,
		"email_smtp_host":      snap.EmailSMTPHost,
		"email_smtp_port":      snap.EmailSMTPPort,
		"email_from_name":      snap.EmailFromName,
		"email_username":       snap.EmailUsername,
		"email_recipients":     snap.EmailRecipients,
		"platform":             runtime.GOOS,
	}
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return server.BasicAuth(func() (string, string) {
			return s.config.WebUser(), s.config.WebPassword()
		}, next)
	}

	// WebSocket for all real-time communication (protected by basic auth)
	mux.HandleFunc("/ws", auth(s.handleWebSocket))

	// Liveness probe, unauthenticated
	mux.HandleFunc("/healthz", s.handleHealth)

	return mux
}

// handleHealth reports liveness for supervisors and monitoring probes.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte("ok\n")); err != nil {
		slog.Error("failed to write health response", "error", err)
	}
}

// Start begins listening and serving HTTP requests on the configured port.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.config.WebPort())
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.SetupRoutes(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
