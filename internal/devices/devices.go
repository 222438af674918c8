// Package devices enumerates and validates audio capture devices.
package devices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-recorder/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-recorder/internal/types"
	"github.com/oszuidwest/zwfm-recorder/internal/util"
)

// deviceTestTimeout bounds a throwaway capture run against one device.
const deviceTestTimeout = 5 * time.Second

// Runner executes an external command and returns its combined output.
// Tests inject a stub here.
type Runner func(ctx context.Context, command []string) ([]byte, error)

func execRunner(ctx context.Context, command []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	return cmd.CombinedOutput()
}

// Catalog caches the audio devices visible to the capture toolchain.
// It is safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	devices []types.AudioDevice
	listed  bool
	binary  func() string // Resolves the capture binary path, empty if unresolved
	run     Runner
}

// NewCatalog creates a device catalog. The binary func is consulted at
// enumeration time so a late-appearing binary is picked up automatically.
func NewCatalog(binary func() string, runner Runner) *Catalog {
	if runner == nil {
		runner = execRunner
	}
	return &Catalog{binary: binary, run: runner}
}

// List returns the cached device catalog, enumerating on first use.
func (c *Catalog) List(ctx context.Context) []types.AudioDevice {
	c.mu.RLock()
	if c.listed {
		defer c.mu.RUnlock()
		return slices.Clone(c.devices)
	}
	c.mu.RUnlock()
	return c.Refresh(ctx)
}

// Refresh re-enumerates devices and replaces the cache.
func (c *Catalog) Refresh(ctx context.Context) []types.AudioDevice {
	devices := listPlatformDevices(ctx, c.binary(), c.run)

	c.mu.Lock()
	c.devices = devices
	c.listed = true
	c.mu.Unlock()

	slog.Info("audio devices enumerated", "count", len(devices))
	return slices.Clone(devices)
}

// Validate reports whether the device is currently usable. A device
// missing from the cache triggers one re-enumeration before giving up.
func (c *Catalog) Validate(ctx context.Context, id string) bool {
	if id == "" {
		return false
	}
	for _, d := range c.List(ctx) {
		if d.ID == id {
			return d.Available
		}
	}
	for _, d := range c.Refresh(ctx) {
		if d.ID == id {
			return d.Available
		}
	}
	return false
}

// Test runs a one-second throwaway capture from the device and reports
// whether the capture binary could open it.
func (c *Catalog) Test(ctx context.Context, id string) error {
	binary := c.binary()
	if binary == "" {
		return errors.New("capture binary not found")
	}

	args := []string{binary, "-hide_banner", "-loglevel", "error", "-nostdin"}
	args = append(args, ffmpeg.AudioInputArgs(runtime.GOOS, id)...)
	args = append(args, "-t", "1", "-f", "null", "-")

	ctx, cancel := context.WithTimeout(ctx, deviceTestTimeout)
	defer cancel()

	output, err := c.run(ctx, args)
	if err != nil {
		if last := ffmpeg.ExtractLastError(string(output)); last != "" {
			return fmt.Errorf("device test failed: %s", last)
		}
		return util.WrapError("test device", err)
	}
	return nil
}

// DeviceListConfig defines how to enumerate audio devices on a platform.
type DeviceListConfig struct {
	// Command and args to list devices.
	Command []string

	// AudioStartMarker indicates the start of the audio devices section.
	AudioStartMarker string

	// AudioStopMarker indicates the end of the audio devices section (optional).
	AudioStopMarker string

	// DevicePattern is the regex to extract device info.
	DevicePattern *regexp.Regexp

	// ParseDevice converts regex matches to a device entry.
	ParseDevice func(matches []string) *types.AudioDevice

	// FallbackDevices are returned if detection fails.
	FallbackDevices []types.AudioDevice
}

// parseDeviceList is a shared helper for parsing device list output.
// Device listing modes often exit non-zero while still printing the list,
// so output is preferred over the exit code.
func parseDeviceList(ctx context.Context, run Runner, cfg DeviceListConfig) []types.AudioDevice {
	if len(cfg.Command) == 0 {
		return cfg.FallbackDevices
	}

	output, err := run(ctx, cfg.Command)
	if err != nil && len(output) == 0 {
		slog.Error("failed to list audio devices", "error", err)
		return cfg.FallbackDevices
	}

	var devices []types.AudioDevice
	lines := strings.Split(string(output), "\n")
	inAudioSection := cfg.AudioStartMarker == "" // If no marker, always in section

	for _, line := range lines {
		if cfg.AudioStartMarker != "" && strings.Contains(line, cfg.AudioStartMarker) {
			inAudioSection = true
			continue
		}
		if cfg.AudioStopMarker != "" && strings.Contains(line, cfg.AudioStopMarker) {
			inAudioSection = false
			continue
		}

		if !inAudioSection {
			continue
		}

		// Skip alternative name lines (Windows DirectShow).
		if strings.Contains(line, "Alternative name") {
			continue
		}

		if cfg.DevicePattern == nil {
			continue
		}

		matches := cfg.DevicePattern.FindStringSubmatch(line)
		if len(matches) > 0 && cfg.ParseDevice != nil {
			if dev := cfg.ParseDevice(matches); dev != nil {
				devices = append(devices, *dev)
			}
		}
	}

	if len(devices) == 0 {
		return cfg.FallbackDevices
	}

	return devices
}

// loopbackNames marks devices that carry system playback audio.
var loopbackNames = []string{"monitor", "blackhole", "soundflower", "loopback", "stereo mix", "what u hear"}

func isLoopbackName(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range loopbackNames {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Resolve returns a usable device for the requested ID, walking the
// fallback chain when the exact device is gone: the flagged default of
// the same direction first, then any available device of that direction.
// An empty ID means the capture was never requested and resolves to
// nothing without a warning. When the chain is exhausted the capture is
// disabled and the warning says so; audio is never a hard failure.
func (c *Catalog) Resolve(ctx context.Context, requested string, direction types.DeviceDirection) (id, warning string) {
	if requested == "" {
		return "", ""
	}
	if c.Validate(ctx, requested) {
		return requested, ""
	}

	devices := c.List(ctx)
	if fallback := pickFallback(devices, direction); fallback != "" {
		return fallback, fmt.Sprintf("audio device %q unavailable, using %q instead", requested, fallback)
	}
	return "", fmt.Sprintf("audio device %q unavailable and no %s device found, recording without it", requested, direction)
}

// pickFallback prefers the flagged default of the direction, then the
// first available device of the direction.
func pickFallback(devices []types.AudioDevice, direction types.DeviceDirection) string {
	for _, d := range devices {
		if d.Direction == direction && d.Default && d.Available {
			return d.ID
		}
	}
	for _, d := range devices {
		if d.Direction == direction && d.Available {
			return d.ID
		}
	}
	return ""
}
