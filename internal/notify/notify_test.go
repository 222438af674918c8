package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-recorder/internal/config"
	"github.com/oszuidwest/zwfm-recorder/internal/events"
	"github.com/oszuidwest/zwfm-recorder/internal/types"
)

func readLogEntries(t *testing.T, path string) []types.EventLogEntry {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entries []types.EventLogEntry
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var entry types.EventLogEntry
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestAppendLogEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")

	require.NoError(t, appendLogEntry(path, types.EventLogEntry{
		Timestamp: "2026-01-02T10:30:00Z",
		Event:     "recording_started",
		SessionID: "sess-1",
	}))
	require.NoError(t, appendLogEntry(path, types.EventLogEntry{
		Timestamp:       "2026-01-02T11:30:00Z",
		Event:           "recording_stopped",
		SessionID:       "sess-1",
		Reason:          "user",
		DurationSeconds: 3600,
		SizeBytes:       1 << 20,
	}))

	entries := readLogEntries(t, path)
	require.Len(t, entries, 2)
	require.Equal(t, "recording_started", entries[0].Event)
	require.Equal(t, "sess-1", entries[0].SessionID)
	require.Equal(t, "user", entries[1].Reason)
	require.Equal(t, float64(3600), entries[1].DurationSeconds)
}

func TestAppendLogEntrySkipsWithoutPath(t *testing.T) {
	require.NoError(t, appendLogEntry("", types.EventLogEntry{Event: "recording_started"}))
}

func TestWriteTestLog(t *testing.T) {
	require.Error(t, WriteTestLog(""))

	path := filepath.Join(t.TempDir(), "events.log")
	require.NoError(t, WriteTestLog(path))

	entries := readLogEntries(t, path)
	require.Len(t, entries, 1)
	require.Equal(t, "test", entries[0].Event)
	require.NotEmpty(t, entries[0].Timestamp)
}

// webhookCapture records the last webhook request a test server received.
type webhookCapture struct {
	hits        atomic.Int32
	contentType string
	payload     map[string]any
}

func newWebhookServer(t *testing.T, status int) (*httptest.Server, *webhookCapture) {
	t.Helper()
	capture := &webhookCapture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capture.hits.Add(1)
		capture.contentType = r.Header.Get("Content-Type")
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&capture.payload))
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, capture
}

func TestSendSessionWebhook(t *testing.T) {
	srv, capture := newWebhookServer(t, http.StatusOK)

	session := types.RecordingSession{
		ID:              "sess-1",
		ProfileID:       "medium",
		OutputPath:      "/recordings/2026-01-02/10-30-00.mkv",
		StopReason:      types.StopDiskFull,
		DurationSeconds: 120.5,
		SizeBytes:       4096,
		LastError:       "disk full",
	}
	require.NoError(t, SendSessionWebhook(srv.URL, "recording_stopped", session))

	require.Equal(t, "application/json", capture.contentType)
	require.Equal(t, "recording_stopped", capture.payload["event"])
	require.Equal(t, "sess-1", capture.payload["session_id"])
	require.Equal(t, "medium", capture.payload["profile"])
	require.Equal(t, string(types.StopDiskFull), capture.payload["stop_reason"])
	require.Equal(t, 120.5, capture.payload["duration_seconds"])
	require.Equal(t, "disk full", capture.payload["error"])
	require.NotEmpty(t, capture.payload["timestamp"])
}

func TestSendSessionWebhookOmitsEmptyFields(t *testing.T) {
	srv, capture := newWebhookServer(t, http.StatusOK)

	session := types.RecordingSession{ID: "sess-2", ProfileID: "high"}
	require.NoError(t, SendSessionWebhook(srv.URL, "recording_started", session))

	require.NotContains(t, capture.payload, "stop_reason")
	require.NotContains(t, capture.payload, "duration_seconds")
	require.NotContains(t, capture.payload, "size_bytes")
	require.NotContains(t, capture.payload, "error")
}

func TestSendWebhookSkipsWithoutURL(t *testing.T) {
	require.NoError(t, SendSessionWebhook("", "recording_started", types.RecordingSession{}))
}

func TestSendWebhookReportsHTTPError(t *testing.T) {
	srv, _ := newWebhookServer(t, http.StatusInternalServerError)

	err := SendSessionWebhook(srv.URL, "recording_started", types.RecordingSession{ID: "x"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 500")
}

func TestSendSafetyWebhook(t *testing.T) {
	srv, capture := newWebhookServer(t, http.StatusOK)

	require.NoError(t, SendSafetyWebhook(srv.URL, "safety_warning", "disk", "disk space is getting low"))
	require.Equal(t, "safety_warning", capture.payload["event"])
	require.Equal(t, "disk", capture.payload["kind"])
	require.Equal(t, "disk space is getting low", capture.payload["message"])
}

func TestSendTestWebhook(t *testing.T) {
	require.Error(t, SendTestWebhook(""))

	srv, capture := newWebhookServer(t, http.StatusOK)
	require.NoError(t, SendTestWebhook(srv.URL))
	require.Equal(t, "test", capture.payload["event"])
}

func TestEmailSkipsWhenUnconfigured(t *testing.T) {
	cfg := &EmailConfig{}
	require.NoError(t, SendFailureAlert(cfg, types.RecordingSession{ID: "x"}, "boom"))
	require.NoError(t, SendAutoStopAlert(cfg, types.StopDiskFull, "disk full"))
}

func TestSendTestEmailValidation(t *testing.T) {
	err := SendTestEmail(&EmailConfig{})
	require.EqualError(t, err, "SMTP host not configured")

	err = SendTestEmail(&EmailConfig{Host: "smtp.example.com"})
	require.EqualError(t, err, "email username not configured")

	err = SendTestEmail(&EmailConfig{Host: "smtp.example.com", Username: "studio@example.com"})
	require.EqualError(t, err, "email recipients not configured")
}

func TestSendEmailRejectsBlankRecipients(t *testing.T) {
	// Recipients that trim to nothing pass the configured check but
	// cannot be delivered to.
	cfg := &EmailConfig{Host: "smtp.example.com", Username: "studio@example.com", Recipients: " , "}
	err := SendFailureAlert(cfg, types.RecordingSession{ID: "x"}, "boom")
	require.EqualError(t, err, "no valid recipients")
}

func TestNotifierFansOutSessionEvents(t *testing.T) {
	srv, capture := newWebhookServer(t, http.StatusOK)
	logPath := filepath.Join(t.TempDir(), "events.log")

	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, cfg.Load())
	require.NoError(t, cfg.SetLogPath(logPath))
	require.NoError(t, cfg.SetWebhookURL(srv.URL))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.New()
	require.NoError(t, New(cfg).Attach(ctx, bus))

	session := types.RecordingSession{ID: "sess-1", ProfileID: "medium", OutputPath: "/recordings/out.mkv"}
	bus.Publish(events.SessionStarted{Session: session})
	bus.Wait()

	bus.Publish(events.SessionStopped{Session: session})
	bus.Wait()

	require.Equal(t, int32(2), capture.hits.Load())

	entries := readLogEntries(t, logPath)
	require.Len(t, entries, 2)
	require.Equal(t, "recording_started", entries[0].Event)
	require.Equal(t, "recording_stopped", entries[1].Event)
	require.Equal(t, "sess-1", entries[0].SessionID)
}

func TestNotifierSafetyWarningGoesToLogOnly(t *testing.T) {
	// No webhook configured: the warning lands in the log and nothing
	// else is attempted.
	logPath := filepath.Join(t.TempDir(), "events.log")
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, cfg.Load())
	require.NoError(t, cfg.SetLogPath(logPath))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.New()
	require.NoError(t, New(cfg).Attach(ctx, bus))

	bus.Publish(events.SafetyWarning{Kind: "disk", Message: "disk space is getting low: 800 MB free"})
	bus.Wait()

	entries := readLogEntries(t, logPath)
	require.Len(t, entries, 1)
	require.Equal(t, "safety_warning", entries[0].Event)
	require.Equal(t, "disk", entries[0].Reason)
	require.Contains(t, entries[0].Message, "getting low")
}
