package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-recorder/internal/types"
	"github.com/oszuidwest/zwfm-recorder/internal/util"
)

// SendSessionWebhook posts a session lifecycle event.
func SendSessionWebhook(webhookURL, event string, session types.RecordingSession) error {
	payload := map[string]any{
		"event":      event,
		"session_id": session.ID,
		"profile":    session.ProfileID,
		"output":     session.OutputPath,
		"timestamp":  util.RFC3339Now(),
	}
	if session.StopReason != "" {
		payload["stop_reason"] = session.StopReason
	}
	if session.DurationSeconds > 0 {
		payload["duration_seconds"] = session.DurationSeconds
	}
	if session.SizeBytes > 0 {
		payload["size_bytes"] = session.SizeBytes
	}
	if session.LastError != "" {
		payload["error"] = session.LastError
	}
	return sendWebhook(webhookURL, payload)
}

// SendSafetyWebhook posts a safety warning or auto-stop event.
func SendSafetyWebhook(webhookURL, event, kind, message string) error {
	return sendWebhook(webhookURL, map[string]any{
		"event":     event,
		"kind":      kind,
		"message":   message,
		"timestamp": util.RFC3339Now(),
	})
}

// SendTestWebhook sends a test POST request to verify webhook configuration.
func SendTestWebhook(webhookURL string) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	return sendWebhook(webhookURL, map[string]any{
		"event":     "test",
		"message":   "This is a test notification from ZuidWest Recorder",
		"timestamp": util.RFC3339Now(),
	})
}

// sendWebhook sends a POST request with JSON payload to the webhook URL.
func sendWebhook(webhookURL string, payload map[string]any) error {
	if !util.IsConfigured(webhookURL) {
		return nil // Silently skip if not configured
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return util.WrapError("send webhook request", err)
	}
	defer util.SafeCloseFunc(resp.Body, "webhook response body")()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
