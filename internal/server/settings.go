package server

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/oszuidwest/zwfm-recorder/internal/config"
	"github.com/oszuidwest/zwfm-recorder/internal/util"
)

// wsSettings is the partial-update payload for update_settings. Pointer
// fields distinguish "not provided" from zero values, so a client can
// change one setting without resending the rest.
type wsSettings struct {
	FFmpegPath     *string `json:"ffmpeg_path"`
	OutputDir      *string `json:"output_dir"`
	Container      *string `json:"container"`
	SegmentSeconds *int    `json:"segment_seconds"`
	RetentionDays  *int    `json:"retention_days"`

	Display          *string `json:"display"`
	ScreenIndex      *int    `json:"screen_index"`
	SecondaryDisplay *bool   `json:"secondary_display"`
	PrimaryWidth     *int    `json:"primary_width"`
	WindowTitle      *string `json:"window_title"`
	RegionSize       *string `json:"region_size"`
	RegionX          *int    `json:"region_x"`
	RegionY          *int    `json:"region_y"`

	SystemAudio *string `json:"system_audio"`
	Microphone  *string `json:"microphone"`
	MixAudio    *bool   `json:"mix_audio"`

	MinDiskSpaceMB     *int64 `json:"min_disk_space_mb"`
	MaxDurationMinutes *int   `json:"max_duration_minutes"`

	WebhookURL      *string `json:"webhook_url"`
	LogPath         *string `json:"log_path"`
	EmailSMTPHost   *string `json:"email_smtp_host"`
	EmailSMTPPort   *int    `json:"email_smtp_port"`
	EmailFromName   *string `json:"email_from_name"`
	EmailUsername   *string `json:"email_username"`
	EmailPassword   *string `json:"email_password"`
	EmailRecipients *string `json:"email_recipients"`
}

// updateStringSetting updates a string setting.
func updateStringSetting(value *string, name string, setter func(string) error) {
	if value == nil {
		return
	}
	slog.Info("update_settings: changing setting", "setting", name)
	if err := setter(*value); err != nil {
		slog.Error("update_settings: failed to save", "error", err)
	}
}

// updateIntSetting validates and updates an integer setting.
func updateIntSetting(value *int, minVal, maxVal int, name string, setter func(int) error) {
	if value == nil {
		return
	}
	v := *value
	if err := util.ValidateRange(name, v, minVal, maxVal); err != nil {
		slog.Warn("update_settings: validation failed", "setting", name, "error", err.Message)
		return
	}
	slog.Info("update_settings: changing setting", "setting", name, "value", v)
	if err := setter(v); err != nil {
		slog.Error("update_settings: failed to save", "error", err)
	}
}

func (h *CommandHandler) handleUpdateSettings(cmd WSCommand) {
	var settings wsSettings
	if err := json.Unmarshal(cmd.Data, &settings); err != nil {
		slog.Warn("update_settings: invalid JSON data", "error", err)
		return
	}

	h.applyRecordingSettings(&settings)
	h.applyCaptureSettings(&settings)
	h.applyAudioSettings(&settings)
	h.applySafetySettings(&settings)
	h.applyNotificationSettings(&settings)
}

func (h *CommandHandler) applyRecordingSettings(s *wsSettings) {
	updateStringSetting(s.FFmpegPath, "ffmpeg path", h.cfg.SetFFmpegPath)
	updateStringSetting(s.OutputDir, "output directory", h.cfg.SetOutputDir)
	updateIntSetting(s.SegmentSeconds, 0, 86400, "segment seconds", h.cfg.SetSegmentSeconds)
	updateIntSetting(s.RetentionDays, 0, 3650, "retention days", h.cfg.SetRetentionDays)

	if s.Container != nil {
		container := strings.ToLower(*s.Container)
		if container != "mkv" && container != "mp4" {
			slog.Warn("update_settings: validation failed", "setting", "container",
				"error", "container must be mkv or mp4")
			return
		}
		slog.Info("update_settings: changing setting", "setting", "container", "value", container)
		if err := h.cfg.SetContainer(container); err != nil {
			slog.Error("update_settings: failed to save", "error", err)
		}
	}
}

func (h *CommandHandler) applyCaptureSettings(s *wsSettings) {
	if s.Display == nil && s.ScreenIndex == nil && s.SecondaryDisplay == nil &&
		s.PrimaryWidth == nil && s.WindowTitle == nil && s.RegionSize == nil &&
		s.RegionX == nil && s.RegionY == nil {
		return
	}

	// Get current values for fields not being updated
	snap := h.cfg.Snapshot()
	capture := config.CaptureConfig{
		Display:          snap.Display,
		ScreenIndex:      snap.ScreenIndex,
		SecondaryDisplay: snap.SecondaryDisplay,
		PrimaryWidth:     snap.PrimaryWidth,
		WindowTitle:      snap.WindowTitle,
		RegionSize:       snap.RegionSize,
		RegionX:          snap.RegionX,
		RegionY:          snap.RegionY,
	}
	if s.Display != nil {
		capture.Display = *s.Display
	}
	if s.ScreenIndex != nil {
		capture.ScreenIndex = max(0, *s.ScreenIndex)
	}
	if s.SecondaryDisplay != nil {
		capture.SecondaryDisplay = *s.SecondaryDisplay
	}
	if s.PrimaryWidth != nil {
		capture.PrimaryWidth = max(0, *s.PrimaryWidth)
	}
	if s.WindowTitle != nil {
		capture.WindowTitle = *s.WindowTitle
	}
	if s.RegionSize != nil {
		if *s.RegionSize != "" {
			if err := util.ValidateResolution("region_size", *s.RegionSize); err != nil {
				slog.Warn("update_settings: validation failed", "setting", "region_size", "error", err.Message)
				return
			}
		}
		capture.RegionSize = *s.RegionSize
	}
	if s.RegionX != nil {
		capture.RegionX = max(0, *s.RegionX)
	}
	if s.RegionY != nil {
		capture.RegionY = max(0, *s.RegionY)
	}

	slog.Info("update_settings: updating capture configuration")
	if err := h.cfg.SetCapture(capture); err != nil {
		slog.Error("update_settings: failed to save capture config", "error", err)
	}
}

func (h *CommandHandler) applyAudioSettings(s *wsSettings) {
	if s.SystemAudio == nil && s.Microphone == nil && s.MixAudio == nil {
		return
	}

	snap := h.cfg.Snapshot()
	system, microphone, mix := snap.SystemAudio, snap.Microphone, snap.MixAudio
	if s.SystemAudio != nil {
		system = *s.SystemAudio
	}
	if s.Microphone != nil {
		microphone = *s.Microphone
	}
	if s.MixAudio != nil {
		mix = *s.MixAudio
	}

	slog.Info("update_settings: updating audio devices",
		"system_audio", system != "", "microphone", microphone != "", "mix", mix)
	if err := h.cfg.SetAudioDevices(system, microphone, mix); err != nil {
		slog.Error("update_settings: failed to save audio config", "error", err)
	}
}

func (h *CommandHandler) applySafetySettings(s *wsSettings) {
	if s.MinDiskSpaceMB == nil && s.MaxDurationMinutes == nil {
		return
	}

	snap := h.cfg.Snapshot()
	minDisk, maxDuration := snap.MinDiskSpaceMB, snap.MaxDurationMinutes
	if s.MinDiskSpaceMB != nil {
		if *s.MinDiskSpaceMB < 0 {
			slog.Warn("update_settings: validation failed", "setting", "min_disk_space_mb",
				"error", "must not be negative")
			return
		}
		minDisk = *s.MinDiskSpaceMB
	}
	if s.MaxDurationMinutes != nil {
		// 0 disables the limit; cap at one week
		if err := util.ValidateRange("max_duration_minutes", *s.MaxDurationMinutes, 0, 10080); err != nil {
			slog.Warn("update_settings: validation failed", "setting", "max_duration_minutes", "error", err.Message)
			return
		}
		maxDuration = *s.MaxDurationMinutes
	}

	slog.Info("update_settings: updating safety limits",
		"min_disk_space_mb", minDisk, "max_duration_minutes", maxDuration)
	if err := h.cfg.SetSafetyLimits(minDisk, maxDuration); err != nil {
		slog.Error("update_settings: failed to save safety limits", "error", err)
	}
}

func (h *CommandHandler) applyNotificationSettings(s *wsSettings) {
	updateStringSetting(s.WebhookURL, "webhook URL", h.cfg.SetWebhookURL)
	updateStringSetting(s.LogPath, "log path", h.cfg.SetLogPath)

	if s.EmailSMTPHost != nil || s.EmailSMTPPort != nil ||
		s.EmailFromName != nil || s.EmailUsername != nil ||
		s.EmailPassword != nil || s.EmailRecipients != nil {
		// Get current values for fields not being updated
		snap := h.cfg.Snapshot()
		host := snap.EmailSMTPHost
		port := snap.EmailSMTPPort
		fromName := snap.EmailFromName
		username := snap.EmailUsername
		password := snap.EmailPassword
		recipients := snap.EmailRecipients
		if s.EmailSMTPHost != nil {
			host = *s.EmailSMTPHost
		}
		if s.EmailSMTPPort != nil {
			port = max(1, min(*s.EmailSMTPPort, 65535))
		}
		if s.EmailFromName != nil {
			fromName = *s.EmailFromName
		}
		if s.EmailUsername != nil {
			username = *s.EmailUsername
		}
		if s.EmailPassword != nil {
			password = *s.EmailPassword
		}
		if s.EmailRecipients != nil {
			recipients = *s.EmailRecipients
		}

		slog.Info("update_settings: updating email configuration")
		if err := h.cfg.SetEmailConfig(host, port, fromName, username, password, recipients); err != nil {
			slog.Error("update_settings: failed to save email config", "error", err)
		}
	}
}
