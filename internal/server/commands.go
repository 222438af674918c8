package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/oszuidwest/zwfm-recorder/internal/config"
	"github.com/oszuidwest/zwfm-recorder/internal/types"
)

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// RecordingEngine is the part of the recording engine the command surface drives.
type RecordingEngine interface {
	Start(ctx context.Context, outputPath string) (*types.RecordingSession, error)
	Stop() (*types.RecordingSession, error)
	SetActiveProfile(id string) error
}

// ProfileStore holds the quality profiles the command surface manages.
type ProfileStore interface {
	SaveProfile(profile types.QualityProfile) error
	DeleteProfile(id string) error
}

// DeviceCatalog enumerates and exercises audio capture devices.
type DeviceCatalog interface {
	Refresh(ctx context.Context) []types.AudioDevice
	Test(ctx context.Context, id string) error
}

// EncoderDetector re-runs the encoder verification sweep.
type EncoderDetector interface {
	Refresh(ctx context.Context) ([]types.EncoderTestResult, error)
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	cfg          *config.Config
	engine       RecordingEngine
	profiles     ProfileStore
	devices      DeviceCatalog
	encoders     EncoderDetector
	testTriggers map[string]func() error
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(
	cfg *config.Config,
	engine RecordingEngine,
	profiles ProfileStore,
	devices DeviceCatalog,
	encoders EncoderDetector,
	testTriggers map[string]func() error,
) *CommandHandler {
	return &CommandHandler{
		cfg:          cfg,
		engine:       engine,
		profiles:     profiles,
		devices:      devices,
		encoders:     encoders,
		testTriggers: testTriggers,
	}
}

// Handle processes a WebSocket command and performs the requested action.
// A status frame follows every command, so read-only commands such as
// "status" need no handler of their own.
func (h *CommandHandler) Handle(ctx context.Context, cmd WSCommand, client *Client, triggerStatusUpdate func()) {
	switch cmd.Type {
	case "status":
		// Answered by the status frame below.
	case "start_recording":
		h.handleStart(ctx, cmd, client)
	case "stop_recording":
		h.handleStop(client)
	case "set_profile":
		h.handleSetProfile(cmd, client)
	case "save_profile":
		h.handleSaveProfile(cmd, client)
	case "delete_profile":
		h.handleDeleteProfile(cmd, client)
	case "refresh_devices":
		h.handleRefreshDevices(triggerStatusUpdate)
	case "test_device":
		h.handleTestDevice(cmd, client)
	case "refresh_encoders":
		h.handleRefreshEncoders(client, triggerStatusUpdate)
	case "update_settings":
		h.handleUpdateSettings(cmd)
	case "reset_config":
		h.handleResetConfig(client)
	case "test_webhook", "test_log", "test_email":
		h.handleTest(client, cmd.Type)
	case "view_event_log":
		h.handleViewEventLog(client)
	default:
		slog.Warn("unknown WebSocket command type", "type", cmd.Type)
	}

	triggerStatusUpdate()
}

// reply acknowledges a state-changing command on the client's connection.
func reply(client *Client, command string, err error) {
	result := types.WSCommandResult{
		Type:    "command_result",
		Command: command,
		Success: err == nil,
	}
	if err != nil {
		result.Error = err.Error()
	}
	if wsErr := client.WriteJSON(result); wsErr != nil {
		slog.Error("failed to send command result", "command", command, "error", wsErr)
	}
}

func (h *CommandHandler) handleStart(ctx context.Context, cmd WSCommand, client *Client) {
	// The client may pin the output file; the default is a timestamped
	// path in the configured output directory.
	var data struct {
		OutputPath string `json:"output_path"`
	}
	if len(cmd.Data) > 0 {
		if err := json.Unmarshal(cmd.Data, &data); err != nil {
			slog.Warn("start_recording: malformed data", "error", err)
			reply(client, "start_recording", fmt.Errorf("invalid start_recording data"))
			return
		}
	}
	if _, err := h.engine.Start(ctx, data.OutputPath); err != nil {
		slog.Warn("start_recording: refused", "error", err)
		reply(client, "start_recording", err)
		return
	}
	reply(client, "start_recording", nil)
}

func (h *CommandHandler) handleStop(client *Client) {
	if _, err := h.engine.Stop(); err != nil {
		slog.Warn("stop_recording: refused", "error", err)
		reply(client, "stop_recording", err)
		return
	}
	reply(client, "stop_recording", nil)
}

func (h *CommandHandler) handleSetProfile(cmd WSCommand, client *Client) {
	if cmd.ID == "" {
		slog.Warn("set_profile: no profile ID provided")
		reply(client, "set_profile", fmt.Errorf("no profile ID provided"))
		return
	}
	if err := h.engine.SetActiveProfile(cmd.ID); err != nil {
		slog.Warn("set_profile: rejected", "profile_id", cmd.ID, "error", err)
		reply(client, "set_profile", err)
		return
	}
	reply(client, "set_profile", nil)
}

func (h *CommandHandler) handleSaveProfile(cmd WSCommand, client *Client) {
	var profile types.QualityProfile
	if err := json.Unmarshal(cmd.Data, &profile); err != nil {
		slog.Warn("save_profile: invalid JSON data", "error", err)
		reply(client, "save_profile", fmt.Errorf("invalid profile data"))
		return
	}
	if err := h.profiles.SaveProfile(profile); err != nil {
		slog.Warn("save_profile: rejected", "profile_id", profile.ID, "error", err)
		reply(client, "save_profile", err)
		return
	}
	slog.Info("save_profile: saved", "profile_id", profile.ID)
	reply(client, "save_profile", nil)
}

func (h *CommandHandler) handleDeleteProfile(cmd WSCommand, client *Client) {
	if cmd.ID == "" {
		slog.Warn("delete_profile: no profile ID provided")
		reply(client, "delete_profile", fmt.Errorf("no profile ID provided"))
		return
	}
	if err := h.profiles.DeleteProfile(cmd.ID); err != nil {
		slog.Warn("delete_profile: rejected", "profile_id", cmd.ID, "error", err)
		reply(client, "delete_profile", err)
		return
	}
	slog.Info("delete_profile: deleted", "profile_id", cmd.ID)
	reply(client, "delete_profile", nil)
}

func (h *CommandHandler) handleRefreshDevices(triggerStatusUpdate func()) {
	// The rescan outlives the requesting client; results ride the next
	// status frame.
	go func() {
		found := h.devices.Refresh(context.Background())
		slog.Info("refresh_devices: rescan complete", "devices", len(found))
		triggerStatusUpdate()
	}()
}

func (h *CommandHandler) handleTestDevice(cmd WSCommand, client *Client) {
	if cmd.ID == "" {
		slog.Warn("test_device: no device ID provided")
		return
	}

	go func() {
		result := types.WSTestResult{
			Type:     "test_result",
			TestType: "device",
			Success:  true,
		}

		if err := h.devices.Test(context.Background(), cmd.ID); err != nil {
			slog.Error("test failed", "command", "test_device", "device", cmd.ID, "error", err)
			result.Success = false
			result.Error = err.Error()
		} else {
			slog.Info("test succeeded", "command", "test_device", "device", cmd.ID)
		}

		if wsErr := client.WriteJSON(result); wsErr != nil {
			slog.Error("failed to send test response", "command", "test_device", "error", wsErr)
		}
	}()
}

func (h *CommandHandler) handleRefreshEncoders(client *Client, triggerStatusUpdate func()) {
	go func() {
		results, err := h.encoders.Refresh(context.Background())
		if err != nil && len(results) == 0 {
			slog.Error("refresh_encoders: sweep failed", "error", err)
			reply(client, "refresh_encoders", err)
			return
		}
		if err != nil {
			slog.Warn("refresh_encoders: sweep finished with failures", "error", err)
		}
		available := 0
		for _, r := range results {
			if r.Available {
				available++
			}
		}
		slog.Info("refresh_encoders: sweep complete", "tested", len(results), "available", available)
		reply(client, "refresh_encoders", nil)
		triggerStatusUpdate()
	}()
}

func (h *CommandHandler) handleResetConfig(client *Client) {
	slog.Info("reset_config: restoring default configuration")
	err := h.cfg.Reset()
	if err != nil {
		slog.Error("reset_config: failed", "error", err)
	}
	reply(client, "reset_config", err)
}

// handleTest executes a notification test and sends the result to the client.
// testCmd should be in format "test_<type>" (e.g., "test_email", "test_webhook").
func (h *CommandHandler) handleTest(client *Client, testCmd string) {
	testType := strings.TrimPrefix(testCmd, "test_")
	trigger, ok := h.testTriggers[testType]
	if !ok {
		slog.Warn("unknown test type", "command", testCmd)
		return
	}

	go func() {
		result := types.WSTestResult{
			Type:     "test_result",
			TestType: testType,
			Success:  true,
		}

		if err := trigger(); err != nil {
			slog.Error("test failed", "command", testCmd, "error", err)
			result.Success = false
			result.Error = err.Error()
		} else {
			slog.Info("test succeeded", "command", testCmd)
		}

		if wsErr := client.WriteJSON(result); wsErr != nil {
			slog.Error("failed to send test response", "command", testCmd, "error", wsErr)
		}
	}()
}

// handleViewEventLog reads and returns the notification event log contents.
func (h *CommandHandler) handleViewEventLog(client *Client) {
	go func() {
		result := types.WSEventLogResult{
			Type:    "event_log_result",
			Success: true,
		}

		logPath := h.cfg.Snapshot().LogPath
		if logPath == "" {
			result.Success = false
			result.Error = "Log file path not configured"
			if wsErr := client.WriteJSON(result); wsErr != nil {
				slog.Error("failed to send event log response", "error", wsErr)
			}
			return
		}

		entries, err := readEventLog(logPath, 100)
		if err != nil {
			result.Success = false
			result.Error = err.Error()
		} else {
			result.Entries = entries
			result.Path = logPath
		}

		if wsErr := client.WriteJSON(result); wsErr != nil {
			slog.Error("failed to send event log response", "error", wsErr)
		}
	}()
}

// readEventLog reads the last N entries from the event log file.
func readEventLog(logPath string, maxEntries int) ([]types.EventLogEntry, error) {
	data, err := os.ReadFile(logPath)
	if os.IsNotExist(err) {
		return []types.EventLogEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) == 0 || (len(lines) == 1 && lines[0] == "") {
		return []types.EventLogEntry{}, nil
	}

	start := max(0, len(lines)-maxEntries)
	lines = lines[start:]

	entries := make([]types.EventLogEntry, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		var entry types.EventLogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue // Skip malformed entries
		}
		entries = append(entries, entry)
	}

	// Reverse to show newest first
	slices.Reverse(entries)

	return entries, nil
}
