// Package ffmpeg provides FFmpeg argument construction and output parsing
// for screen capture.
package ffmpeg

import (
	"fmt"
	"strings"

	"github.com/oszuidwest/zwfm-recorder/internal/types"
)

// MaxStderrSize limits the stderr buffer to prevent memory exhaustion.
const MaxStderrSize = 64 * 1024 // 64KB

// DefaultAudioCodec is used when a profile does not name one.
const DefaultAudioCodec = "aac"

// Build constructs the complete FFmpeg argument list for a recording.
// It is a pure function of its input and always returns a usable command
// line: clauses for absent audio devices are omitted and unusable source
// descriptions degrade to a plain desktop capture.
func Build(cfg types.RecordingConfig) []string {
	args := []string{"-hide_banner", "-loglevel", "warning", "-y"}

	args = append(args, videoInputArgs(cfg)...)

	audioInputs := 0
	if cfg.SystemAudio != "" {
		args = append(args, AudioInputArgs(cfg.Platform, cfg.SystemAudio)...)
		audioInputs++
	}
	if cfg.Microphone != "" {
		args = append(args, AudioInputArgs(cfg.Platform, cfg.Microphone)...)
		audioInputs++
	}

	args = append(args, videoEncodeArgs(cfg)...)
	args = append(args, audioMapArgs(cfg.MixAudio, audioInputs)...)
	if audioInputs > 0 {
		codec := cfg.AudioCodec
		if codec == "" {
			codec = DefaultAudioCodec
		}
		args = append(args, "-c:a", codec, "-b:a", fmt.Sprintf("%dk", cfg.AudioBitrateKbps))
	}
	args = append(args, containerArgs(cfg)...)
	args = append(args, "-progress", "pipe:2")
	args = append(args, cfg.OutputPath)
	return args
}

// normalizeSource reduces the requested source to one this platform can
// express. Anything unusable becomes a desktop capture.
func normalizeSource(cfg types.RecordingConfig) types.SourceType {
	switch cfg.SourceType {
	case types.SourceRegion:
		if cfg.CaptureSize == "" {
			return types.SourceDesktop
		}
		return types.SourceRegion
	case types.SourceWindow:
		// Only gdigrab can address a window by title.
		if cfg.Platform != "windows" || cfg.WindowTitle == "" {
			return types.SourceDesktop
		}
		return types.SourceWindow
	case types.SourceSecondary:
		return types.SourceSecondary
	default:
		return types.SourceDesktop
	}
}

// videoInputArgs returns the platform grab clause. Exactly one video input
// is always produced.
func videoInputArgs(cfg types.RecordingConfig) []string {
	fps := fmt.Sprintf("%d", cfg.FPS)
	source := normalizeSource(cfg)

	// The secondary display is addressed as a desktop capture offset by
	// the primary display's width. This assumes a left-to-right layout.
	offsetX, offsetY := 0, 0
	switch source {
	case types.SourceRegion:
		offsetX, offsetY = cfg.CaptureX, cfg.CaptureY
	case types.SourceSecondary:
		offsetX = cfg.PrimaryWidth
	}

	switch cfg.Platform {
	case "darwin":
		// avfoundation addresses devices as "video:audio", so the screen
		// index is paired with "none" and audio comes in as separate
		// inputs. Displays are separate devices, which also covers the
		// secondary display case. It cannot crop at capture either; a
		// region request grabs the full display and crops in the filter
		// chain.
		screen := cfg.ScreenIndex
		if source == types.SourceSecondary {
			screen++
		}
		return []string{
			"-f", "avfoundation",
			"-framerate", fps,
			"-pix_fmt", "uyvy422",
			"-i", fmt.Sprintf("%d:none", screen),
		}
	case "windows":
		args := []string{"-f", "gdigrab", "-framerate", fps}
		if source == types.SourceWindow {
			return append(args, "-i", "title="+cfg.WindowTitle)
		}
		if offsetX != 0 || offsetY != 0 {
			args = append(args, "-offset_x", fmt.Sprintf("%d", offsetX), "-offset_y", fmt.Sprintf("%d", offsetY))
		}
		if cfg.CaptureSize != "" {
			args = append(args, "-video_size", cfg.CaptureSize)
		}
		return append(args, "-i", "desktop")
	default:
		// X11 grab. The capture offset is encoded in the input name.
		display := cfg.Display
		if display == "" {
			display = ":0.0"
		}
		args := []string{"-f", "x11grab", "-framerate", fps}
		if cfg.CaptureSize != "" {
			args = append(args, "-video_size", cfg.CaptureSize)
		}
		input := display
		if offsetX != 0 || offsetY != 0 {
			input = fmt.Sprintf("%s+%d,%d", display, offsetX, offsetY)
		}
		return append(args, "-i", input)
	}
}

// AudioInputArgs returns one audio input clause for the given device. The
// device catalog reuses it for throwaway capture tests.
func AudioInputArgs(platform, device string) []string {
	switch platform {
	case "darwin":
		return []string{"-f", "avfoundation", "-i", ":" + device}
	case "windows":
		return []string{"-f", "dshow", "-i", "audio=" + device}
	default:
		return []string{"-f", "pulse", "-i", device}
	}
}

// videoEncodeArgs returns the encoder settings. GOP is fixed at two
// seconds and the rate control window follows the target bitrate.
func videoEncodeArgs(cfg types.RecordingConfig) []string {
	args := []string{
		"-c:v", cfg.VideoEncoder,
		"-r", fmt.Sprintf("%d", cfg.FPS),
		"-g", fmt.Sprintf("%d", cfg.FPS*2),
		"-b:v", fmt.Sprintf("%dk", cfg.VideoBitrateKbps),
		"-maxrate", fmt.Sprintf("%dk", cfg.VideoBitrateKbps*2),
		"-bufsize", fmt.Sprintf("%dk", cfg.VideoBitrateKbps*3),
		"-pix_fmt", "yuv420p",
	}

	// Crop runs before scale so the region is taken in source pixels.
	var filters []string
	if cfg.Platform == "darwin" && normalizeSource(cfg) == types.SourceRegion {
		filters = append(filters, fmt.Sprintf("crop=%s:%d:%d",
			strings.Replace(cfg.CaptureSize, "x", ":", 1), cfg.CaptureX, cfg.CaptureY))
	}
	if cfg.Resolution != "" {
		filters = append(filters, "scale="+strings.Replace(cfg.Resolution, "x", ":", 1))
	}
	if len(filters) > 0 {
		args = append(args, "-vf", strings.Join(filters, ","))
	}
	return args
}

// audioMapArgs wires the audio inputs into the output. The video grab is
// always input 0 and audio inputs follow in order.
func audioMapArgs(mix bool, audioInputs int) []string {
	switch audioInputs {
	case 0:
		return []string{"-an"}
	case 1:
		return []string{"-map", "0:v", "-map", "1:a"}
	default:
		if mix {
			return []string{
				"-filter_complex", "[1:a][2:a]amix=inputs=2:duration=longest:dropout_transition=0[aout]",
				"-map", "0:v", "-map", "[aout]",
			}
		}
		return []string{"-map", "0:v", "-map", "1:a", "-map", "2:a"}
	}
}

// containerArgs selects the muxer. Segmented recordings use the segment
// muxer with per-file timestamp resets; single files let FFmpeg infer the
// container from the output extension.
func containerArgs(cfg types.RecordingConfig) []string {
	if cfg.SegmentSeconds <= 0 {
		return nil
	}
	args := []string{
		"-f", "segment",
		"-segment_time", fmt.Sprintf("%d", cfg.SegmentSeconds),
		"-reset_timestamps", "1",
	}
	if cfg.Container == "mp4" {
		args = append(args, "-segment_format", "mp4")
	}
	return args
}
