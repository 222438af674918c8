//go:build darwin

package devices

import (
	"context"
	"regexp"
	"strings"

	"github.com/oszuidwest/zwfm-recorder/internal/types"
)

// listPlatformDevices enumerates avfoundation audio devices. macOS has no
// native loopback, so virtual drivers (BlackHole, Soundflower, Loopback)
// are recognized by name and classified as system-audio devices.
func listPlatformDevices(ctx context.Context, binary string, run Runner) []types.AudioDevice {
	if binary == "" {
		return nil
	}
	return parseDeviceList(ctx, run, DeviceListConfig{
		Command:          []string{binary, "-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", ""},
		AudioStartMarker: "AVFoundation audio devices:",
		AudioStopMarker:  "AVFoundation video devices:",
		DevicePattern:    regexp.MustCompile(`\[AVFoundation[^\]]*\]\s*\[(\d+)\]\s*(.+)`),
		ParseDevice: func(matches []string) *types.AudioDevice {
			if len(matches) < 3 {
				return nil
			}
			name := strings.TrimSpace(matches[2])
			direction := types.DeviceInput
			if isLoopbackName(name) {
				direction = types.DeviceOutput
			}
			return &types.AudioDevice{
				ID:        matches[1],
				Name:      name,
				Direction: direction,
				Default:   matches[1] == "0",
				Available: true,
			}
		},
	})
}
