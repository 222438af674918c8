package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	cfg := New(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, cfg.Load())
	return cfg
}

func TestConfigDefaults(t *testing.T) {
	cfg := newTestConfig(t)

	require.Equal(t, DefaultWebPort, cfg.WebPort())
	require.Equal(t, DefaultWebUsername, cfg.WebUser())
	require.Equal(t, DefaultWebPassword, cfg.WebPassword())
	require.Equal(t, DefaultProfileID, cfg.ActiveProfileID())
	require.Equal(t, DefaultContainer, cfg.Container())
	require.Equal(t, int64(DefaultMinDiskSpaceMB), cfg.MinDiskSpaceMB())
	require.Equal(t, 0, cfg.MaxDurationMinutes())
	require.Equal(t, 0, cfg.SegmentSeconds())
	require.Equal(t, 0, cfg.RetentionDays())
	require.NotEmpty(t, cfg.OutputDir())
}

func TestConfigLoadCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := New(path)
	require.NoError(t, cfg.Load())

	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestConfigSettersPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := New(path)
	require.NoError(t, cfg.Load())

	require.NoError(t, cfg.SetContainer("mp4"))
	require.NoError(t, cfg.SetSegmentSeconds(1800))
	require.NoError(t, cfg.SetRetentionDays(30))
	require.NoError(t, cfg.SetActiveProfileID("high"))
	require.NoError(t, cfg.SetAudioDevices("monitor", "mic", true))
	require.NoError(t, cfg.SetSafetyLimits(1000, 120))
	require.NoError(t, cfg.SetCapture(CaptureConfig{
		SecondaryDisplay: true,
		PrimaryWidth:     2560,
	}))

	// A fresh instance reading the same file sees every change.
	reloaded := New(path)
	require.NoError(t, reloaded.Load())
	snap := reloaded.Snapshot()
	require.Equal(t, "mp4", snap.Container)
	require.Equal(t, 1800, snap.SegmentSeconds)
	require.Equal(t, 30, snap.RetentionDays)
	require.Equal(t, "high", snap.ActiveProfileID)
	require.Equal(t, "monitor", snap.SystemAudio)
	require.Equal(t, "mic", snap.Microphone)
	require.True(t, snap.MixAudio)
	require.Equal(t, int64(1000), snap.MinDiskSpaceMB)
	require.Equal(t, 120, snap.MaxDurationMinutes)
	require.True(t, snap.SecondaryDisplay)
	require.Equal(t, 2560, snap.PrimaryWidth)
}

func TestConfigSnapshotAppliesDefaults(t *testing.T) {
	cfg := New(filepath.Join(t.TempDir(), "config.json"))
	cfg.Recording.ActiveProfileID = ""
	cfg.Recording.Container = ""
	cfg.Safety.MinDiskSpaceMB = 0

	snap := cfg.Snapshot()
	require.Equal(t, DefaultProfileID, snap.ActiveProfileID)
	require.Equal(t, DefaultContainer, snap.Container)
	require.Equal(t, int64(DefaultMinDiskSpaceMB), snap.MinDiskSpaceMB)
	require.Equal(t, DefaultEmailSMTPPort, snap.EmailSMTPPort)
	require.Equal(t, DefaultEmailFromName, snap.EmailFromName)
}

func TestConfigReset(t *testing.T) {
	cfg := newTestConfig(t)
	require.NoError(t, cfg.SetContainer("mp4"))
	require.NoError(t, cfg.SetSafetyLimits(9999, 60))
	require.NoError(t, cfg.SetWebhookURL("https://hooks.example.com/rec"))

	require.NoError(t, cfg.Reset())

	require.Equal(t, DefaultContainer, cfg.Container())
	require.Equal(t, int64(DefaultMinDiskSpaceMB), cfg.MinDiskSpaceMB())
	require.Equal(t, 0, cfg.MaxDurationMinutes())
	require.False(t, cfg.Snapshot().HasWebhook())
}

func TestSnapshotNotificationFlags(t *testing.T) {
	snap := Snapshot{}
	require.False(t, snap.HasWebhook())
	require.False(t, snap.HasEmail())
	require.False(t, snap.HasLogPath())

	snap.WebhookURL = "https://hooks.example.com/rec"
	snap.LogPath = "/var/log/recorder.jsonl"
	require.True(t, snap.HasWebhook())
	require.True(t, snap.HasLogPath())

	// Email needs both a host and recipients before it counts as configured.
	snap.EmailSMTPHost = "smtp.example.com"
	require.False(t, snap.HasEmail())
	snap.EmailRecipients = "ops@example.com"
	require.True(t, snap.HasEmail())
}
