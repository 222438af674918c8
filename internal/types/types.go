// Package types provides shared type definitions used across the recorder.
package types

import (
	"fmt"
	"time"
)

// RecorderState represents the current state of the recording engine.
type RecorderState string

const (
	// StateIdle indicates no recording session is in progress.
	StateIdle RecorderState = "idle"
	// StateRecording indicates an active recording session.
	StateRecording RecorderState = "recording"
)

// SessionStatus represents the lifecycle state of one session record.
type SessionStatus string

const (
	// SessionRecording indicates the session is still being captured.
	SessionRecording SessionStatus = "recording"
	// SessionStopped indicates the session ended normally.
	SessionStopped SessionStatus = "stopped"
	// SessionError indicates the session ended because of a failure.
	SessionError SessionStatus = "error"
)

// StopReason identifies why a recording session ended.
type StopReason string

const (
	// StopUser indicates the session was stopped by an explicit request.
	StopUser StopReason = "user"
	// StopDiskFull indicates free disk space fell below the configured minimum.
	StopDiskFull StopReason = "disk_full"
	// StopDurationLimit indicates the session reached its maximum duration.
	StopDurationLimit StopReason = "duration_limit"
	// StopSystemStress indicates sustained memory and CPU pressure forced a stop.
	StopSystemStress StopReason = "system_stress"
	// StopProcessExit indicates the capture process exited on its own.
	StopProcessExit StopReason = "process_exit"
	// StopShutdown indicates the recorder was shutting down.
	StopShutdown StopReason = "shutdown"
)

// Retry settings for locating the capture binary.
const (
	InitialRetryDelay = 3 * time.Second
	MaxRetryDelay     = 60 * time.Second
)

// Process management settings.
const (
	LaunchConfirmDelay = 300 * time.Millisecond // Process must outlive this before launch counts as confirmed
	StopGracePeriod    = 3 * time.Second        // Time allowed for file finalization before SIGKILL
	PollInterval       = 50 * time.Millisecond  // Interval for polling process state
)

// Safety sweep cadences.
const (
	IdleCheckInterval      = 30 * time.Second
	RecordingCheckInterval = 5 * time.Second
)

// ProgressInterval is how often progress updates are published while recording.
const ProgressInterval = 1 * time.Second

// EncoderTestTimeout bounds a single encoder verification run.
const EncoderTestTimeout = 10 * time.Second

// MaxSessionHistory is the number of completed sessions retained in the store.
const MaxSessionHistory = 100

// QualityProfile defines the encoding parameters applied to a recording.
type QualityProfile struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Subtitle         string   `json:"subtitle,omitzero"`
	Description      string   `json:"description,omitzero"`
	Resolution       string   `json:"resolution"` // "WIDTHxHEIGHT"
	FPS              int      `json:"fps"`
	VideoBitrateKbps int      `json:"video_bitrate_kbps"`
	AudioBitrateKbps int      `json:"audio_bitrate_kbps"`
	AudioCodec       string   `json:"audio_codec,omitzero"` // Defaults to aac
	VideoEncoders    []string `json:"video_encoders"`       // Preference order, first working encoder wins
	Reserved         bool     `json:"reserved,omitzero"`
	CreatedAt        int64    `json:"created_at,omitzero"`
}

// Dimensions parses the profile resolution into width and height.
func (p *QualityProfile) Dimensions() (width, height int, ok bool) {
	n, err := fmt.Sscanf(p.Resolution, "%dx%d", &width, &height)
	if err != nil || n != 2 || width <= 0 || height <= 0 {
		return 0, 0, false
	}
	return width, height, true
}

// RecordingSession describes one recording from start to finish.
type RecordingSession struct {
	ID              string        `json:"id"`
	ProfileID       string        `json:"profile_id"`
	ProfileName     string        `json:"profile_name,omitzero"`
	OutputPath      string        `json:"output_path"`
	VideoEncoder    string        `json:"video_encoder,omitzero"`
	AudioDevices    []string      `json:"audio_devices,omitzero"`
	Status          SessionStatus `json:"status"`
	StartedAt       time.Time     `json:"started_at"`
	EndedAt         time.Time     `json:"ended_at,omitzero"`
	DurationSeconds float64       `json:"duration_seconds,omitzero"`
	SizeBytes       int64         `json:"size_bytes,omitzero"`
	StopReason      StopReason    `json:"stop_reason,omitzero"`
	LastError       string        `json:"last_error,omitzero"`
}

// EncoderCandidate describes a video encoder this build knows how to verify.
type EncoderCandidate struct {
	Name          string   `json:"name"`  // FFmpeg encoder name, e.g. "h264_nvenc"
	Codec         string   `json:"codec"` // "h264" or "hevc"
	Hardware      bool     `json:"hardware"`
	Vendor        string   `json:"vendor,omitzero"`
	InitArgs      []string `json:"init_args,omitzero"`  // Device setup flags placed before the test input
	ExtraArgs     []string `json:"extra_args,omitzero"` // Filter flags placed between input and encoder
	MaxResolution string   `json:"max_resolution,omitzero"`
	Presets       []string `json:"presets,omitzero"`
}

// EncoderTestResult is the outcome of one encoder verification run.
type EncoderTestResult struct {
	Encoder         string    `json:"encoder"`
	Codec           string    `json:"codec"`
	Hardware        bool      `json:"hardware"`
	Available       bool      `json:"available"`
	Score           int       `json:"score"`
	DurationSeconds float64   `json:"duration_seconds"`
	Speed           float64   `json:"speed,omitzero"` // Encoding speed multiplier from the test run
	MaxResolution   string    `json:"max_resolution,omitzero"`
	Presets         []string  `json:"presets,omitzero"`
	Error           string    `json:"error,omitzero"`
	TestedAt        time.Time `json:"tested_at"`
}

// DeviceDirection distinguishes capture devices by what they record.
type DeviceDirection string

const (
	// DeviceInput is a physical input such as a microphone.
	DeviceInput DeviceDirection = "input"
	// DeviceOutput is a playback endpoint whose loopback captures system audio.
	DeviceOutput DeviceDirection = "output"
)

// AudioDevice identifies an audio capture device on this machine.
type AudioDevice struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Direction DeviceDirection `json:"direction"`
	Default   bool            `json:"default,omitzero"`
	Available bool            `json:"available"`
}

// SourceType selects what the video grab records.
type SourceType string

const (
	// SourceDesktop captures the primary screen.
	SourceDesktop SourceType = "desktop"
	// SourceRegion captures a fixed rectangle of the screen.
	SourceRegion SourceType = "region"
	// SourceWindow captures a single window by title.
	SourceWindow SourceType = "window"
	// SourceSecondary captures the secondary display.
	SourceSecondary SourceType = "secondary"
)

// RecordingConfig is the fully resolved input for building a capture
// command. It is assembled per session and never persisted.
type RecordingConfig struct {
	Platform         string     // GOOS value, drives grab device selection
	SourceType       SourceType // Unrecognized values degrade to desktop capture
	Display          string     // X11 display, e.g. ":0.0"
	ScreenIndex      int        // Capture device index on darwin
	WindowTitle      string     // Window capture target
	PrimaryWidth     int        // Offset basis for secondary display capture
	CaptureX         int        // Region origin
	CaptureY         int
	CaptureSize      string // "WxH" region size
	Resolution       string // Output scale target, empty keeps native size
	FPS              int
	VideoEncoder     string
	VideoBitrateKbps int
	SystemAudio      string // Loopback device identifier, empty disables
	Microphone       string // Microphone device identifier, empty disables
	MixAudio         bool   // Mix both audio inputs into a single track
	AudioCodec       string // Defaults to aac
	AudioBitrateKbps int
	Container        string // "mkv" or "mp4", decides the output extension
	SegmentSeconds   int    // 0 records a single file
	OutputPath       string
}

// Progress contains the latest parsed statistics from the capture process.
type Progress struct {
	Frame          int64   `json:"frame"`
	FPS            float64 `json:"fps"`
	SizeBytes      int64   `json:"size_bytes"`
	OutTimeSeconds float64 `json:"out_time_seconds"`
	BitrateKbps    float64 `json:"bitrate_kbps,omitzero"`
	Speed          float64 `json:"speed,omitzero"`
}

// SafetyStatus is the result of the most recent safety sweep.
type SafetyStatus struct {
	DiskFreeBytes   uint64    `json:"disk_free_bytes"`
	DiskWarning     bool      `json:"disk_warning,omitzero"`
	DiskCritical    bool      `json:"disk_critical,omitzero"`
	ElapsedSeconds  float64   `json:"elapsed_seconds,omitzero"`
	DurationWarning bool      `json:"duration_warning,omitzero"`
	MemoryPercent   float64   `json:"memory_percent"`
	CPUPercent      float64   `json:"cpu_percent"`
	SystemStress    bool      `json:"system_stress,omitzero"`
	LastError       string    `json:"last_error,omitzero"`
	CheckedAt       time.Time `json:"checked_at"`
}

// RecorderStatus contains a summary of the recorder's current operational state.
type RecorderStatus struct {
	State       RecorderState     `json:"state"`
	Session     *RecordingSession `json:"session,omitzero"`
	Progress    *Progress         `json:"progress,omitzero"`
	Logs        []string          `json:"logs,omitzero"`
	Safety      SafetyStatus      `json:"safety"`
	BinaryPath  string            `json:"binary_path,omitzero"`
	BinaryFound bool              `json:"binary_found"`
}

// SystemInfo describes the host for the control surface.
type SystemInfo struct {
	Platform          string  `json:"platform"`
	PlatformVersion   string  `json:"platform_version,omitzero"`
	Arch              string  `json:"arch"`
	CPUCount          int     `json:"cpu_count"`
	CPUPercent        float64 `json:"cpu_percent"`
	MemoryTotalBytes  uint64  `json:"memory_total_bytes"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	DiskTotalBytes    uint64  `json:"disk_total_bytes"`
	DiskFreeBytes     uint64  `json:"disk_free_bytes"`
	UptimeSeconds     uint64  `json:"uptime_seconds,omitzero"`
}

// VersionInfo describes the running build and the latest published release.
type VersionInfo struct {
	Current     string `json:"current"`
	Latest      string `json:"latest,omitzero"`
	UpdateAvail bool   `json:"update_avail,omitzero"`
	Commit      string `json:"commit,omitzero"`
	BuildTime   string `json:"build_time,omitzero"`
}

// EventLogEntry is one line in the JSONL recording event log.
type EventLogEntry struct {
	Timestamp       string  `json:"timestamp"`
	Event           string  `json:"event"`
	SessionID       string  `json:"session_id,omitzero"`
	Profile         string  `json:"profile,omitzero"`
	Output          string  `json:"output,omitzero"`
	Reason          string  `json:"reason,omitzero"`
	Message         string  `json:"message,omitzero"`
	DurationSeconds float64 `json:"duration_seconds,omitzero"`
	SizeBytes       int64   `json:"size_bytes,omitzero"`
}

// WSTestResult reports the outcome of a notification or device test to one client.
type WSTestResult struct {
	Type     string `json:"type"` // Always "test_result"
	TestType string `json:"test_type"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// WSEventLogResult carries recent event log entries to one client.
type WSEventLogResult struct {
	Type    string          `json:"type"` // Always "event_log_result"
	Success bool            `json:"success"`
	Path    string          `json:"path,omitempty"`
	Entries []EventLogEntry `json:"entries,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// WSCommandResult acknowledges a state-changing command from one client.
type WSCommandResult struct {
	Type    string `json:"type"` // Always "command_result"
	Command string `json:"command"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
