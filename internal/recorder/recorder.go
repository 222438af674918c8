// Package recorder implements the recording state machine. It is the
// single source of truth for whether a recording is in progress and
// mediates between configuration, the capability and device catalogs,
// the capture supervisor, and the safety monitor.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oszuidwest/zwfm-recorder/internal/capability"
	"github.com/oszuidwest/zwfm-recorder/internal/config"
	"github.com/oszuidwest/zwfm-recorder/internal/events"
	"github.com/oszuidwest/zwfm-recorder/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-recorder/internal/store"
	"github.com/oszuidwest/zwfm-recorder/internal/types"
	"github.com/oszuidwest/zwfm-recorder/internal/util"
)

// ProcessSupervisor owns the capture process on behalf of the recorder.
type ProcessSupervisor interface {
	Start(binary string, args []string) error
	Stop() error
	Running() bool
	Progress() types.Progress
	Logs() []string
}

// SafetyGate approves recording starts and follows state changes.
type SafetyGate interface {
	CanStartRecording() (warning string, err error)
	Status() types.SafetyStatus
	Wake()
}

// EncoderSource supplies the latest encoder verification results.
type EncoderSource interface {
	Results() []types.EncoderTestResult
}

// DeviceResolver maps a requested audio device to a usable one.
type DeviceResolver interface {
	Resolve(ctx context.Context, requested string, direction types.DeviceDirection) (id, warning string)
}

// Recorder is the recording state machine. All transitions go through it
// and it owns the current session record exclusively.
type Recorder struct {
	cfg      *config.Config
	store    *store.Store
	bus      *events.Bus
	sup      ProcessSupervisor
	encoders EncoderSource
	devices  DeviceResolver
	binary   func() string // Capture binary path, empty while unresolved

	mu           sync.RWMutex
	state        types.RecorderState
	session      *types.RecordingSession
	startedAt    time.Time
	safety       SafetyGate
	stopProgress context.CancelFunc
}

// New creates an idle recorder.
func New(cfg *config.Config, st *store.Store, bus *events.Bus, sup ProcessSupervisor,
	encoders EncoderSource, devices DeviceResolver, binary func() string) *Recorder {
	return &Recorder{
		cfg:      cfg,
		store:    st,
		bus:      bus,
		sup:      sup,
		encoders: encoders,
		devices:  devices,
		binary:   binary,
		state:    types.StateIdle,
	}
}

// SetSafetyGate installs the safety monitor. The monitor is built around
// the recorder, so it cannot be a constructor argument.
func (r *Recorder) SetSafetyGate(gate SafetyGate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.safety = gate
}

func (r *Recorder) gate() SafetyGate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.safety
}

// State returns the current recorder state.
func (r *Recorder) State() types.RecorderState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// IsRecording reports whether a session is in progress.
func (r *Recorder) IsRecording() bool {
	return r.State() == types.StateRecording
}

// Elapsed returns how long the current session has been running, zero
// when idle.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state != types.StateRecording {
		return 0
	}
	return time.Since(r.startedAt)
}

// Session returns a copy of the current session, or nil when idle.
func (r *Recorder) Session() *types.RecordingSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.session == nil {
		return nil
	}
	session := *r.session
	return &session
}

// Start begins a new recording session with the active profile and the
// configured capture settings. An empty outputPath records into a
// timestamped file in the configured output directory; a non-empty one
// is used verbatim. Exactly one session can run at a time; a second
// start fails without disturbing the first.
func (r *Recorder) Start(ctx context.Context, outputPath string) (*types.RecordingSession, error) {
	r.mu.Lock()
	if r.state != types.StateIdle {
		r.mu.Unlock()
		return nil, errors.New("a recording is already in progress")
	}
	// Claim the state before the slow launch work so concurrent starts
	// fail fast. Rolled back if the launch fails.
	r.state = types.StateRecording
	r.mu.Unlock()

	session, warnings, err := r.launch(ctx, outputPath)
	if err != nil {
		r.mu.Lock()
		r.state = types.StateIdle
		r.session = nil
		r.mu.Unlock()
		slog.Error("failed to start recording", "error", err)
		return nil, err
	}

	r.mu.Lock()
	r.session = session
	r.startedAt = session.StartedAt
	r.mu.Unlock()

	if gate := r.gate(); gate != nil {
		gate.Wake()
	}
	r.startProgressLoop(session.ID)
	r.bus.Publish(events.SessionStarted{Session: *session, Warnings: warnings})

	slog.Info("recording started",
		"session_id", session.ID,
		"profile", session.ProfileID,
		"encoder", session.VideoEncoder,
		"output", session.OutputPath)
	for _, warning := range warnings {
		slog.Warn("recording degraded", "session_id", session.ID, "warning", warning)
	}
	return session, nil
}

// launch resolves the full recording configuration and starts the capture
// process. Warnings carry non-fatal degradations such as substituted
// encoders or disabled audio devices.
func (r *Recorder) launch(ctx context.Context, outputPath string) (*types.RecordingSession, []string, error) {
	binary := r.binary()
	if binary == "" {
		return nil, nil, errors.New("ffmpeg not found, configure recording.ffmpeg_path or install it on PATH")
	}
	var warnings []string
	if gate := r.gate(); gate != nil {
		warning, err := gate.CanStartRecording()
		if err != nil {
			return nil, nil, err
		}
		if warning != "" {
			warnings = append(warnings, warning)
		}
	}

	snap := r.cfg.Snapshot()

	profile := r.store.Profile(snap.ActiveProfileID)
	if profile == nil {
		profile = r.store.Profile(config.DefaultProfileID)
		warnings = append(warnings, fmt.Sprintf("profile %q no longer exists, using %q", snap.ActiveProfileID, config.DefaultProfileID))
	}

	encoder, substitution, err := capability.ResolveEncoder("", profile.VideoEncoders, r.encoders.Results())
	if err != nil {
		return nil, nil, err
	}
	if substitution != nil {
		warnings = append(warnings, substitution.String())
	}

	systemAudio, warning := r.devices.Resolve(ctx, snap.SystemAudio, types.DeviceOutput)
	if warning != "" {
		warnings = append(warnings, warning)
	}
	microphone, warning := r.devices.Resolve(ctx, snap.Microphone, types.DeviceInput)
	if warning != "" {
		warnings = append(warnings, warning)
	}

	now := time.Now()
	if outputPath == "" {
		outputPath, err = AllocateOutputPath(snap.OutputDir, snap.Container, snap.SegmentSeconds, now)
		if err != nil {
			return nil, nil, err
		}
	} else if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, nil, util.WrapError("create recording directory", err)
	}

	rc := types.RecordingConfig{
		Platform:         runtime.GOOS,
		SourceType:       sourceFromSnapshot(snap),
		Display:          snap.Display,
		ScreenIndex:      snap.ScreenIndex,
		WindowTitle:      snap.WindowTitle,
		PrimaryWidth:     snap.PrimaryWidth,
		CaptureX:         snap.RegionX,
		CaptureY:         snap.RegionY,
		CaptureSize:      snap.RegionSize,
		Resolution:       profile.Resolution,
		FPS:              profile.FPS,
		VideoEncoder:     encoder,
		VideoBitrateKbps: profile.VideoBitrateKbps,
		SystemAudio:      systemAudio,
		Microphone:       microphone,
		MixAudio:         snap.MixAudio,
		AudioCodec:       profile.AudioCodec,
		AudioBitrateKbps: profile.AudioBitrateKbps,
		Container:        snap.Container,
		SegmentSeconds:   snap.SegmentSeconds,
		OutputPath:       outputPath,
	}

	if err := r.sup.Start(binary, ffmpeg.Build(rc)); err != nil {
		return nil, nil, err
	}

	var audioDevices []string
	for _, device := range []string{systemAudio, microphone} {
		if device != "" {
			audioDevices = append(audioDevices, device)
		}
	}

	session := &types.RecordingSession{
		ID:           uuid.NewString(),
		ProfileID:    profile.ID,
		ProfileName:  profile.Name,
		OutputPath:   outputPath,
		VideoEncoder: encoder,
		AudioDevices: audioDevices,
		Status:       types.SessionRecording,
		StartedAt:    now.UTC(),
	}
	r.persist(*session)
	return session, warnings, nil
}

// Stop ends the active session at the user's request and returns the
// finalized record.
func (r *Recorder) Stop() (*types.RecordingSession, error) {
	return r.stop(types.StopUser, "")
}

// ForceStop ends the active session without a caller to report errors to.
// The safety monitor and the shutdown path use it. No-op when idle.
func (r *Recorder) ForceStop(reason types.StopReason, message string) {
	if _, err := r.stop(reason, message); err != nil && !errors.Is(err, errNotRecording) {
		slog.Warn("force stop failed", "reason", reason, "error", err)
	}
}

var errNotRecording = errors.New("no recording in progress")

// stop flips the recorder to idle, tears the process down, and finalizes
// the session. The state changes before the teardown starts so a wedged
// process can never leave a phantom recording behind.
func (r *Recorder) stop(reason types.StopReason, message string) (*types.RecordingSession, error) {
	r.mu.Lock()
	if r.state != types.StateRecording || r.session == nil {
		r.mu.Unlock()
		return nil, errNotRecording
	}
	session := *r.session
	started := r.startedAt
	cancelProgress := r.stopProgress
	r.state = types.StateIdle
	r.session = nil
	r.stopProgress = nil
	r.mu.Unlock()

	if cancelProgress != nil {
		cancelProgress()
	}
	if gate := r.gate(); gate != nil {
		gate.Wake()
	}

	// Take the last throughput reading before the process goes away.
	progress := r.sup.Progress()
	if err := r.sup.Stop(); err != nil {
		slog.Warn("capture teardown reported an error", "session_id", session.ID, "error", err)
	}

	finalizeSession(&session, types.SessionStopped, reason, started, progress)
	r.persist(session)
	r.bus.Publish(events.SessionStopped{Session: session})

	slog.Info("recording stopped",
		"session_id", session.ID,
		"reason", reason,
		"message", message,
		"duration_seconds", int(session.DurationSeconds),
		"size_bytes", session.SizeBytes)
	return &session, nil
}

// HandleProcessExit reacts to the capture process dying on its own. The
// session is finalized as an error. Wired to the supervisor's exit
// handler at startup.
func (r *Recorder) HandleProcessExit(exitErr error, detail string) {
	r.mu.Lock()
	if r.state != types.StateRecording || r.session == nil {
		r.mu.Unlock()
		return
	}
	session := *r.session
	started := r.startedAt
	cancelProgress := r.stopProgress
	r.state = types.StateIdle
	r.session = nil
	r.stopProgress = nil
	r.mu.Unlock()

	if cancelProgress != nil {
		cancelProgress()
	}
	if gate := r.gate(); gate != nil {
		gate.Wake()
	}

	if detail == "" && exitErr != nil {
		detail = exitErr.Error()
	}
	if detail == "" {
		detail = "capture process exited unexpectedly"
	}

	finalizeSession(&session, types.SessionError, types.StopProcessExit, started, r.sup.Progress())
	session.LastError = detail
	r.persist(session)

	slog.Error("recording failed", "session_id", session.ID, "error", detail)
	r.bus.Publish(events.SessionError{Session: session, Error: detail})
	r.bus.Publish(events.SessionStopped{Session: session})
}

// SetActiveProfile switches the profile used by the next recording. An
// in-progress recording keeps the profile it started with; switching
// mid-recording requires a stop and a new start.
func (r *Recorder) SetActiveProfile(id string) error {
	if r.store.Profile(id) == nil {
		return fmt.Errorf("profile not found: %s", id)
	}
	if err := r.cfg.SetActiveProfileID(id); err != nil {
		return err
	}
	r.bus.Publish(events.ProfileChanged{ProfileID: id})
	slog.Info("active profile changed", "profile_id", id)
	return nil
}

// Status assembles the operational picture for the control surface.
func (r *Recorder) Status() types.RecorderStatus {
	r.mu.RLock()
	state := r.state
	var session *types.RecordingSession
	if r.session != nil {
		copied := *r.session
		session = &copied
	}
	gate := r.safety
	r.mu.RUnlock()

	status := types.RecorderStatus{
		State:      state,
		Session:    session,
		BinaryPath: r.binary(),
	}
	status.BinaryFound = status.BinaryPath != ""
	if state == types.StateRecording {
		progress := r.sup.Progress()
		status.Progress = &progress
		status.Logs = r.sup.Logs()
	}
	if gate != nil {
		status.Safety = gate.Status()
	}
	return status
}

// startProgressLoop publishes throughput statistics until the session
// ends.
func (r *Recorder) startProgressLoop(sessionID string) {
	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.stopProgress = cancel
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(types.ProgressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.bus.Publish(events.ProgressTick{SessionID: sessionID, Progress: r.sup.Progress()})
			}
		}
	}()
}

func (r *Recorder) persist(session types.RecordingSession) {
	if err := r.store.PutSession(session); err != nil {
		slog.Warn("failed to persist session", "session_id", session.ID, "error", err)
	}
}

// finalizeSession stamps the end of a session. The on-disk size wins over
// the progress reading when the file is still there.
func finalizeSession(session *types.RecordingSession, status types.SessionStatus,
	reason types.StopReason, started time.Time, progress types.Progress) {
	now := time.Now().UTC()
	session.Status = status
	session.StopReason = reason
	session.EndedAt = now
	session.DurationSeconds = now.Sub(started.UTC()).Seconds()
	if size := OutputSize(session.OutputPath); size > 0 {
		session.SizeBytes = size
	} else {
		session.SizeBytes = progress.SizeBytes
	}
}

// sourceFromSnapshot derives the capture source from the configured
// screen selection. One mode applies at a time; the secondary display
// wins over a window title, which wins over a region.
func sourceFromSnapshot(snap config.Snapshot) types.SourceType {
	switch {
	case snap.SecondaryDisplay:
		return types.SourceSecondary
	case snap.WindowTitle != "":
		return types.SourceWindow
	case snap.RegionSize != "":
		return types.SourceRegion
	default:
		return types.SourceDesktop
	}
}
