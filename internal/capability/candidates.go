// Package capability verifies which video encoders actually work on this
// machine and picks fallbacks when the preferred one does not.
package capability

import (
	"slices"

	"github.com/oszuidwest/zwfm-recorder/internal/types"
)

// Vendor names used for scoring and display.
const (
	VendorNvidia = "nvidia"
	VendorIntel  = "intel"
	VendorAMD    = "amd"
	VendorApple  = "apple"
)

// vaapiInitArgs sets up the default render node for VAAPI probes.
var vaapiInitArgs = []string{"-init_hw_device", "vaapi=va:/dev/dri/renderD128", "-filter_hw_device", "va"}

// vaapiFilterArgs uploads the synthetic test frames to the GPU.
var vaapiFilterArgs = []string{"-vf", "format=nv12,hwupload"}

// candidateTable lists every encoder this build knows how to verify,
// with the platforms the acceleration path exists on.
var candidateTable = []struct {
	candidate types.EncoderCandidate
	platforms []string
}{
	{
		candidate: types.EncoderCandidate{
			Name: "h264_nvenc", Codec: "h264", Hardware: true, Vendor: VendorNvidia,
			MaxResolution: "4096x4096", Presets: []string{"p1", "p4", "p7"},
		},
		platforms: []string{"linux", "windows"},
	},
	{
		candidate: types.EncoderCandidate{
			Name: "hevc_nvenc", Codec: "hevc", Hardware: true, Vendor: VendorNvidia,
			MaxResolution: "8192x8192", Presets: []string{"p1", "p4", "p7"},
		},
		platforms: []string{"linux", "windows"},
	},
	{
		candidate: types.EncoderCandidate{
			Name: "h264_qsv", Codec: "h264", Hardware: true, Vendor: VendorIntel,
			MaxResolution: "4096x4096", Presets: []string{"veryfast", "medium", "veryslow"},
		},
		platforms: []string{"linux", "windows"},
	},
	{
		candidate: types.EncoderCandidate{
			Name: "hevc_qsv", Codec: "hevc", Hardware: true, Vendor: VendorIntel,
			MaxResolution: "8192x8192", Presets: []string{"veryfast", "medium", "veryslow"},
		},
		platforms: []string{"linux", "windows"},
	},
	{
		candidate: types.EncoderCandidate{
			Name: "h264_amf", Codec: "h264", Hardware: true, Vendor: VendorAMD,
			MaxResolution: "4096x2160", Presets: []string{"speed", "balanced", "quality"},
		},
		platforms: []string{"windows"},
	},
	{
		candidate: types.EncoderCandidate{
			Name: "hevc_amf", Codec: "hevc", Hardware: true, Vendor: VendorAMD,
			MaxResolution: "7680x4320", Presets: []string{"speed", "balanced", "quality"},
		},
		platforms: []string{"windows"},
	},
	{
		candidate: types.EncoderCandidate{
			Name: "h264_videotoolbox", Codec: "h264", Hardware: true, Vendor: VendorApple,
			MaxResolution: "4096x2304",
		},
		platforms: []string{"darwin"},
	},
	{
		candidate: types.EncoderCandidate{
			Name: "hevc_videotoolbox", Codec: "hevc", Hardware: true, Vendor: VendorApple,
			MaxResolution: "8192x4352",
		},
		platforms: []string{"darwin"},
	},
	{
		candidate: types.EncoderCandidate{
			Name: "h264_vaapi", Codec: "h264", Hardware: true, Vendor: VendorIntel,
			InitArgs: vaapiInitArgs, ExtraArgs: vaapiFilterArgs,
			MaxResolution: "4096x4096",
		},
		platforms: []string{"linux"},
	},
	{
		candidate: types.EncoderCandidate{
			Name: "hevc_vaapi", Codec: "hevc", Hardware: true, Vendor: VendorIntel,
			InitArgs: vaapiInitArgs, ExtraArgs: vaapiFilterArgs,
			MaxResolution: "8192x8192",
		},
		platforms: []string{"linux"},
	},
	{
		candidate: types.EncoderCandidate{
			Name: "libx264", Codec: "h264", Hardware: false,
			MaxResolution: "8192x8192", Presets: []string{"ultrafast", "veryfast", "medium", "slow"},
		},
	},
	{
		candidate: types.EncoderCandidate{
			Name: "libx265", Codec: "hevc", Hardware: false,
			MaxResolution: "8192x8192", Presets: []string{"ultrafast", "veryfast", "medium", "slow"},
		},
	},
}

// Candidates returns the encoder candidates worth probing on the given
// platform. Software encoders are included everywhere.
func Candidates(goos string) []types.EncoderCandidate {
	var out []types.EncoderCandidate
	for _, entry := range candidateTable {
		if len(entry.platforms) == 0 || slices.Contains(entry.platforms, goos) {
			out = append(out, entry.candidate)
		}
	}
	return out
}
