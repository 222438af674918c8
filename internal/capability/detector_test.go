package capability

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-recorder/internal/types"
)

func TestCandidates(t *testing.T) {
	names := func(goos string) []string {
		var out []string
		for _, c := range Candidates(goos) {
			out = append(out, c.Name)
		}
		return out
	}

	linux := names("linux")
	require.Contains(t, linux, "h264_nvenc")
	require.Contains(t, linux, "h264_vaapi")
	require.NotContains(t, linux, "h264_videotoolbox")
	require.NotContains(t, linux, "h264_amf")

	darwin := names("darwin")
	require.Contains(t, darwin, "h264_videotoolbox")
	require.NotContains(t, darwin, "h264_nvenc")

	// Software encoders are probed everywhere.
	for _, goos := range []string{"linux", "darwin", "windows"} {
		require.Contains(t, names(goos), "libx264")
		require.Contains(t, names(goos), "libx265")
	}
}

func TestScore(t *testing.T) {
	hw := types.EncoderCandidate{Name: "h264_nvenc", Hardware: true, Vendor: VendorNvidia}
	sw := types.EncoderCandidate{Name: "libx264"}

	require.Greater(t, Score(hw, time.Second, 2.0), Score(sw, time.Second, 2.0))

	// The speed bonus is capped, the vendor nudge is fixed.
	require.Equal(t, 165, Score(hw, time.Second, 40.0))
	require.Equal(t, 60, Score(sw, time.Second, 2.0))

	// With no speed report the wall-clock probe time decides.
	require.Equal(t, 75, Score(sw, time.Second, 0))
	require.Equal(t, 60, Score(sw, 4*time.Second, 0))
	require.Equal(t, 50, Score(sw, 10*time.Second, 0))
}

func TestSortResults(t *testing.T) {
	results := []types.EncoderTestResult{
		{Encoder: "libx264", Available: true, Score: 60},
		{Encoder: "h264_nvenc", Available: false},
		{Encoder: "hevc_nvenc", Available: true, Score: 165},
		{Encoder: "h264_vaapi", Available: true, Score: 60},
	}
	SortResults(results)

	require.Equal(t, "hevc_nvenc", results[0].Encoder)
	// Equal scores fall back to the name for a stable order.
	require.Equal(t, "h264_vaapi", results[1].Encoder)
	require.Equal(t, "libx264", results[2].Encoder)
	require.False(t, results[3].Available)
}

func TestSmokeTestArgs(t *testing.T) {
	candidate := types.EncoderCandidate{
		Name:      "h264_vaapi",
		InitArgs:  []string{"-init_hw_device", "vaapi=va:/dev/dri/renderD128"},
		ExtraArgs: []string{"-vf", "format=nv12,hwupload"},
	}
	args := SmokeTestArgs(candidate)
	joined := strings.Join(args, " ")

	require.Equal(t, "-hide_banner", args[0])
	require.Contains(t, joined, "-init_hw_device vaapi=va:/dev/dri/renderD128")
	require.Contains(t, joined, "-f lavfi -i testsrc=duration=1:size=1280x720:rate=30")
	require.Contains(t, joined, "-vf format=nv12,hwupload")
	require.Contains(t, joined, "-frames:v 30 -c:v h264_vaapi -f null -")
}

func TestDetectorRefresh(t *testing.T) {
	candidates := []types.EncoderCandidate{
		{Name: "h264_nvenc", Codec: "h264", Hardware: true, Vendor: VendorNvidia},
		{Name: "libx264", Codec: "h264"},
	}
	run := func(ctx context.Context, binary string, args []string) ([]byte, error) {
		for i, arg := range args {
			if arg == "-c:v" && args[i+1] == "h264_nvenc" {
				return []byte("Cannot load libnvidia-encode.so.1\n"), errors.New("exit status 1")
			}
		}
		return []byte("frame=30 fps=30 speed=3.2x\n"), nil
	}
	d := NewDetector(func() string { return "/usr/bin/ffmpeg" }, candidates, run)

	require.False(t, d.HasSwept())
	require.Empty(t, d.Results())

	results, err := d.Refresh(context.Background())
	// The aggregate error is advisory, the sweep itself succeeded.
	require.Error(t, err)
	require.Contains(t, err.Error(), "h264_nvenc")
	require.Len(t, results, 2)

	require.Equal(t, "libx264", results[0].Encoder)
	require.True(t, results[0].Available)
	require.Equal(t, 3.2, results[0].Speed)
	require.Positive(t, results[0].Score)

	require.Equal(t, "h264_nvenc", results[1].Encoder)
	require.False(t, results[1].Available)
	require.Equal(t, "Cannot load libnvidia-encode.so.1", results[1].Error)

	require.True(t, d.HasSwept())
}

func TestDetectorRefreshReplacesResults(t *testing.T) {
	healthy := true
	run := func(ctx context.Context, binary string, args []string) ([]byte, error) {
		if healthy {
			return []byte("speed=2x\n"), nil
		}
		return []byte("Unknown encoder 'libx264'\n"), errors.New("exit status 1")
	}
	d := NewDetector(func() string { return "ffmpeg" },
		[]types.EncoderCandidate{{Name: "libx264", Codec: "h264"}}, run)

	_, err := d.Refresh(context.Background())
	require.NoError(t, err)
	require.True(t, d.Results()[0].Available)

	healthy = false
	_, err = d.Refresh(context.Background())
	require.Error(t, err)
	require.Len(t, d.Results(), 1)
	require.False(t, d.Results()[0].Available)
}

func TestDetectorRefreshWithoutBinary(t *testing.T) {
	d := NewDetector(func() string { return "" }, nil, nil)
	_, err := d.Refresh(context.Background())
	require.Error(t, err)
	require.False(t, d.HasSwept())
}
