//go:build linux

package devices

import (
	"context"
	"regexp"
	"strings"

	"github.com/oszuidwest/zwfm-recorder/internal/types"
)

// listPlatformDevices enumerates PulseAudio sources. FFmpeg's pulse input
// has no listing mode, so pactl is asked instead. Monitor sources carry
// the playback signal and are classified as system-audio loopbacks.
func listPlatformDevices(ctx context.Context, _ string, run Runner) []types.AudioDevice {
	return parseDeviceList(ctx, run, DeviceListConfig{
		Command:       []string{"pactl", "list", "short", "sources"},
		DevicePattern: regexp.MustCompile(`^\d+\s+(\S+)`),
		ParseDevice: func(matches []string) *types.AudioDevice {
			if len(matches) < 2 {
				return nil
			}
			name := matches[1]
			direction := types.DeviceInput
			if strings.HasSuffix(name, ".monitor") || isLoopbackName(name) {
				direction = types.DeviceOutput
			}
			return &types.AudioDevice{
				ID:        name,
				Name:      humanizePulseName(name),
				Direction: direction,
				Available: true,
			}
		},
		FallbackDevices: []types.AudioDevice{
			{ID: "default", Name: "Default source", Direction: types.DeviceInput, Default: true, Available: true},
		},
	})
}

// humanizePulseName shortens PulseAudio's dotted source names for display.
func humanizePulseName(name string) string {
	trimmed := strings.TrimSuffix(name, ".monitor")
	parts := strings.Split(trimmed, ".")
	last := parts[len(parts)-1]
	last = strings.ReplaceAll(strings.ReplaceAll(last, "_", " "), "-", " ")
	if strings.HasSuffix(name, ".monitor") {
		return last + " (monitor)"
	}
	return last
}
