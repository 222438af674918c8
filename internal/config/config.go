// Package config provides application configuration management.
package config

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/oszuidwest/zwfm-recorder/internal/util"
)

// Configuration defaults.
const (
	DefaultWebPort            = 8080
	DefaultWebUsername        = "admin"
	DefaultWebPassword        = "recorder"
	DefaultProfileID          = "medium"
	DefaultContainer          = "mkv"
	DefaultMinDiskSpaceMB     = 500
	DefaultMaxDurationMinutes = 0 // Unlimited
	DefaultEmailSMTPPort      = 587
	DefaultEmailFromName      = "ZuidWest Recorder"
)

// WebConfig contains control server configuration.
type WebConfig struct {
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// RecordingConfig contains recording output configuration.
type RecordingConfig struct {
	FFmpegPath      string `json:"ffmpeg_path,omitempty"` // Empty searches PATH
	OutputDir       string `json:"output_dir"`
	ActiveProfileID string `json:"active_profile_id"`
	Container       string `json:"container,omitempty"`       // "mkv" or "mp4"
	SegmentSeconds  int    `json:"segment_seconds,omitempty"` // 0 records a single file
	RetentionDays   int    `json:"retention_days,omitempty"`  // 0 keeps recordings forever
}

// CaptureConfig contains screen selection configuration.
type CaptureConfig struct {
	Display          string `json:"display,omitempty"` // X11 display, e.g. ":0.0"
	ScreenIndex      int    `json:"screen_index,omitempty"`
	SecondaryDisplay bool   `json:"secondary_display,omitempty"`
	PrimaryWidth     int    `json:"primary_width,omitempty"` // Offset basis for secondary display capture
	WindowTitle      string `json:"window_title,omitempty"`  // Window capture target
	RegionSize       string `json:"region_size,omitempty"`   // "WxH", empty captures the full screen
	RegionX          int    `json:"region_x,omitempty"`
	RegionY          int    `json:"region_y,omitempty"`
}

// AudioConfig contains audio capture configuration.
type AudioConfig struct {
	SystemAudio string `json:"system_audio,omitempty"` // Loopback device, empty disables
	Microphone  string `json:"microphone,omitempty"`   // Input device, empty disables
	MixAudio    bool   `json:"mix_audio,omitempty"`
}

// SafetyConfig contains recording guard thresholds.
type SafetyConfig struct {
	MinDiskSpaceMB     int64 `json:"min_disk_space_mb,omitempty"`
	MaxDurationMinutes int   `json:"max_duration_minutes,omitempty"` // 0 disables the limit
}

// EmailConfig contains email notification configuration.
type EmailConfig struct {
	Host       string `json:"host,omitempty"`
	Port       int    `json:"port,omitempty"`
	FromName   string `json:"from_name,omitempty"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	Recipients string `json:"recipients,omitempty"`
}

// NotificationsConfig contains all notification configuration.
type NotificationsConfig struct {
	WebhookURL string      `json:"webhook_url,omitempty"`
	LogPath    string      `json:"log_path,omitempty"`
	Email      EmailConfig `json:"email,omitempty"`
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	Web           WebConfig           `json:"web"`
	Recording     RecordingConfig     `json:"recording"`
	Capture       CaptureConfig       `json:"capture,omitempty"`
	Audio         AudioConfig         `json:"audio,omitempty"`
	Safety        SafetyConfig        `json:"safety,omitempty"`
	Notifications NotificationsConfig `json:"notifications,omitempty"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		Web: WebConfig{
			Port:     DefaultWebPort,
			Username: DefaultWebUsername,
			Password: DefaultWebPassword,
		},
		Recording: RecordingConfig{
			OutputDir:       defaultOutputDir(),
			ActiveProfileID: DefaultProfileID,
		},
		Safety: SafetyConfig{
			MinDiskSpaceMB: DefaultMinDiskSpaceMB,
		},
		filePath: filePath,
	}
}

// defaultOutputDir returns the default recording directory for this user.
func defaultOutputDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "recordings"
	}
	return filepath.Join(home, "Videos", "recordings")
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	if c.Web.Port == 0 {
		c.Web.Port = DefaultWebPort
	}
	if c.Web.Username == "" {
		c.Web.Username = DefaultWebUsername
	}
	if c.Web.Password == "" {
		c.Web.Password = DefaultWebPassword
	}
	if c.Recording.OutputDir == "" {
		c.Recording.OutputDir = defaultOutputDir()
	}
	if c.Recording.ActiveProfileID == "" {
		c.Recording.ActiveProfileID = DefaultProfileID
	}
	if c.Safety.MinDiskSpaceMB == 0 {
		c.Safety.MinDiskSpaceMB = DefaultMinDiskSpaceMB
	}
}

// Save writes the configuration to file.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// Reset restores every setting to its default value and saves.
func (c *Config) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fresh := New(c.filePath)
	c.Web = fresh.Web
	c.Recording = fresh.Recording
	c.Capture = fresh.Capture
	c.Audio = fresh.Audio
	c.Safety = fresh.Safety
	c.Notifications = fresh.Notifications
	return c.saveLocked()
}

// WebPort returns the control server port.
func (c *Config) WebPort() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Web.Port
}

// WebUser returns the control server username.
func (c *Config) WebUser() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Web.Username
}

// WebPassword returns the control server password.
func (c *Config) WebPassword() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Web.Password
}

// FFmpegPath returns the configured FFmpeg binary path.
func (c *Config) FFmpegPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Recording.FFmpegPath
}

// SetFFmpegPath updates the FFmpeg binary path and saves.
func (c *Config) SetFFmpegPath(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Recording.FFmpegPath = path
	return c.saveLocked()
}

// OutputDir returns the recording output directory.
func (c *Config) OutputDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Recording.OutputDir
}

// SetOutputDir updates the recording output directory and saves.
func (c *Config) SetOutputDir(dir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Recording.OutputDir = dir
	return c.saveLocked()
}

// ActiveProfileID returns the active quality profile ID.
func (c *Config) ActiveProfileID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cmp.Or(c.Recording.ActiveProfileID, DefaultProfileID)
}

// SetActiveProfileID updates the active quality profile and saves.
func (c *Config) SetActiveProfileID(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Recording.ActiveProfileID = id
	return c.saveLocked()
}

// Container returns the output container format.
func (c *Config) Container() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cmp.Or(c.Recording.Container, DefaultContainer)
}

// SetContainer updates the output container format and saves.
func (c *Config) SetContainer(container string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Recording.Container = container
	return c.saveLocked()
}

// SegmentSeconds returns the segment length, 0 for a single file.
func (c *Config) SegmentSeconds() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Recording.SegmentSeconds
}

// SetSegmentSeconds updates the segment length and saves.
func (c *Config) SetSegmentSeconds(seconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Recording.SegmentSeconds = seconds
	return c.saveLocked()
}

// RetentionDays returns how long recordings are kept, 0 for forever.
func (c *Config) RetentionDays() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Recording.RetentionDays
}

// SetRetentionDays updates the recording retention and saves.
func (c *Config) SetRetentionDays(days int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Recording.RetentionDays = days
	return c.saveLocked()
}

// SetCapture updates the screen selection and saves.
func (c *Config) SetCapture(capture CaptureConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Capture = capture
	return c.saveLocked()
}

// SetAudioDevices updates the audio capture devices and saves.
func (c *Config) SetAudioDevices(systemAudio, microphone string, mix bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Audio.SystemAudio = systemAudio
	c.Audio.Microphone = microphone
	c.Audio.MixAudio = mix
	return c.saveLocked()
}

// SetSafetyLimits updates the recording guard thresholds and saves.
func (c *Config) SetSafetyLimits(minDiskSpaceMB int64, maxDurationMinutes int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Safety.MinDiskSpaceMB = minDiskSpaceMB
	c.Safety.MaxDurationMinutes = maxDurationMinutes
	return c.saveLocked()
}

// MinDiskSpaceMB returns the minimum free disk space before recording stops.
func (c *Config) MinDiskSpaceMB() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cmp.Or(c.Safety.MinDiskSpaceMB, DefaultMinDiskSpaceMB)
}

// MaxDurationMinutes returns the recording duration limit, 0 for unlimited.
func (c *Config) MaxDurationMinutes() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Safety.MaxDurationMinutes
}

// SetWebhookURL updates the webhook URL and saves.
func (c *Config) SetWebhookURL(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.WebhookURL = url
	return c.saveLocked()
}

// SetLogPath updates the notification log file path and saves.
func (c *Config) SetLogPath(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.LogPath = path
	return c.saveLocked()
}

// SetEmailConfig updates all email configuration fields and saves.
func (c *Config) SetEmailConfig(host string, port int, fromName, username, password, recipients string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Email.Host = host
	c.Notifications.Email.Port = port
	c.Notifications.Email.FromName = fromName
	c.Notifications.Email.Username = username
	c.Notifications.Email.Password = password
	c.Notifications.Email.Recipients = recipients
	return c.saveLocked()
}

// Snapshot contains a point-in-time copy of all configuration values.
// Use this instead of multiple individual getters to reduce mutex contention.
type Snapshot struct {
	// Web
	WebPort     int
	WebUser     string
	WebPassword string

	// Recording
	FFmpegPath      string
	OutputDir       string
	ActiveProfileID string
	Container       string
	SegmentSeconds  int
	RetentionDays   int

	// Capture
	Display          string
	ScreenIndex      int
	SecondaryDisplay bool
	PrimaryWidth     int
	WindowTitle      string
	RegionSize       string
	RegionX          int
	RegionY          int

	// Audio
	SystemAudio string
	Microphone  string
	MixAudio    bool

	// Safety
	MinDiskSpaceMB     int64
	MaxDurationMinutes int

	// Notifications
	WebhookURL string
	LogPath    string

	// Email
	EmailSMTPHost   string
	EmailSMTPPort   int
	EmailFromName   string
	EmailUsername   string
	EmailPassword   string
	EmailRecipients string
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		// Web
		WebPort:     c.Web.Port,
		WebUser:     c.Web.Username,
		WebPassword: c.Web.Password,

		// Recording
		FFmpegPath:      c.Recording.FFmpegPath,
		OutputDir:       c.Recording.OutputDir,
		ActiveProfileID: cmp.Or(c.Recording.ActiveProfileID, DefaultProfileID),
		Container:       cmp.Or(c.Recording.Container, DefaultContainer),
		SegmentSeconds:  c.Recording.SegmentSeconds,
		RetentionDays:   c.Recording.RetentionDays,

		// Capture
		Display:          c.Capture.Display,
		ScreenIndex:      c.Capture.ScreenIndex,
		SecondaryDisplay: c.Capture.SecondaryDisplay,
		PrimaryWidth:     c.Capture.PrimaryWidth,
		WindowTitle:      c.Capture.WindowTitle,
		RegionSize:       c.Capture.RegionSize,
		RegionX:          c.Capture.RegionX,
		RegionY:          c.Capture.RegionY,

		// Audio
		SystemAudio: c.Audio.SystemAudio,
		Microphone:  c.Audio.Microphone,
		MixAudio:    c.Audio.MixAudio,

		// Safety (with defaults)
		MinDiskSpaceMB:     cmp.Or(c.Safety.MinDiskSpaceMB, DefaultMinDiskSpaceMB),
		MaxDurationMinutes: c.Safety.MaxDurationMinutes,

		// Notifications
		WebhookURL: c.Notifications.WebhookURL,
		LogPath:    c.Notifications.LogPath,

		// Email (with defaults)
		EmailSMTPHost:   c.Notifications.Email.Host,
		EmailSMTPPort:   cmp.Or(c.Notifications.Email.Port, DefaultEmailSMTPPort),
		EmailFromName:   cmp.Or(c.Notifications.Email.FromName, DefaultEmailFromName),
		EmailUsername:   c.Notifications.Email.Username,
		EmailPassword:   c.Notifications.Email.Password,
		EmailRecipients: c.Notifications.Email.Recipients,
	}
}

// HasWebhook returns true if a webhook URL is configured.
func (s Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// HasEmail returns true if email notifications are configured.
func (s Snapshot) HasEmail() bool {
	return s.EmailSMTPHost != "" && s.EmailRecipients != ""
}

// HasLogPath returns true if a notification log path is configured.
func (s Snapshot) HasLogPath() bool {
	return s.LogPath != ""
}
