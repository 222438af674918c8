//go:build windows

package devices

import (
	"context"
	"regexp"
	"strings"

	"github.com/oszuidwest/zwfm-recorder/internal/types"
)

// listPlatformDevices enumerates DirectShow audio devices. "Stereo Mix"
// style endpoints expose the playback signal and are classified as
// system-audio loopbacks.
func listPlatformDevices(ctx context.Context, binary string, run Runner) []types.AudioDevice {
	if binary == "" {
		return nil
	}
	return parseDeviceList(ctx, run, DeviceListConfig{
		Command:          []string{binary, "-hide_banner", "-f", "dshow", "-list_devices", "true", "-i", "dummy"},
		AudioStartMarker: "DirectShow audio devices",
		AudioStopMarker:  "DirectShow video devices",
		DevicePattern:    regexp.MustCompile(`\[dshow[^\]]*\]\s*"([^"]+)"`),
		ParseDevice: func(matches []string) *types.AudioDevice {
			if len(matches) < 2 {
				return nil
			}
			name := strings.TrimSpace(matches[1])
			direction := types.DeviceInput
			if isLoopbackName(name) {
				direction = types.DeviceOutput
			}
			return &types.AudioDevice{
				ID:        name,
				Name:      name,
				Direction: direction,
				Available: true,
			}
		},
	})
}
