package capability

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-recorder/internal/types"
)

func verified(name string, score int) types.EncoderTestResult {
	return types.EncoderTestResult{Encoder: name, Available: true, Score: score}
}

func unverified(name, reason string) types.EncoderTestResult {
	return types.EncoderTestResult{Encoder: name, Error: reason}
}

func TestResolveEncoderFirstPreferenceWins(t *testing.T) {
	results := []types.EncoderTestResult{verified("h264_nvenc", 165), verified("libx264", 60)}
	SortResults(results)

	encoder, sub, err := ResolveEncoder("", []string{"h264_nvenc", "libx264"}, results)
	require.NoError(t, err)
	require.Nil(t, sub)
	require.Equal(t, "h264_nvenc", encoder)
}

func TestResolveEncoderPreferredOverridesProfile(t *testing.T) {
	results := []types.EncoderTestResult{verified("hevc_nvenc", 150), verified("libx264", 60)}
	SortResults(results)

	encoder, sub, err := ResolveEncoder("hevc_nvenc", []string{"libx264"}, results)
	require.NoError(t, err)
	require.Nil(t, sub)
	require.Equal(t, "hevc_nvenc", encoder)
}

func TestResolveEncoderSubstitutes(t *testing.T) {
	results := []types.EncoderTestResult{
		unverified("h264_nvenc", "driver not loaded"),
		verified("libx264", 60),
	}
	SortResults(results)

	encoder, sub, err := ResolveEncoder("", []string{"h264_nvenc", "libx264"}, results)
	require.NoError(t, err)
	require.Equal(t, "libx264", encoder)
	require.NotNil(t, sub)
	require.Equal(t, "h264_nvenc", sub.Requested)
	require.Equal(t, "libx264", sub.Chosen)
	require.Equal(t, "driver not loaded", sub.Reason)
	require.Contains(t, sub.String(), `video encoder "h264_nvenc" unavailable`)
}

func TestResolveEncoderFallsBackToBestOverall(t *testing.T) {
	// Nothing in the preference list verified, but another encoder did.
	results := []types.EncoderTestResult{
		unverified("h264_nvenc", "no device"),
		verified("h264_videotoolbox", 140),
	}
	SortResults(results)

	encoder, sub, err := ResolveEncoder("", []string{"h264_nvenc"}, results)
	require.NoError(t, err)
	require.Equal(t, "h264_videotoolbox", encoder)
	require.NotNil(t, sub)
	require.Equal(t, "h264_nvenc", sub.Requested)
}

func TestResolveEncoderExhausted(t *testing.T) {
	results := []types.EncoderTestResult{
		unverified("h264_nvenc", "no device"),
		unverified("libx264", "not built in"),
	}
	SortResults(results)

	_, _, err := ResolveEncoder("", []string{"h264_nvenc", "libx264"}, results)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no working video encoder")
}

func TestResolveEncoderBeforeFirstSweep(t *testing.T) {
	// With no sweep results yet a software encoder is picked blind
	// instead of refusing to record.
	encoder, sub, err := ResolveEncoder("", []string{"h264_nvenc", "h264_vaapi", "libx264"}, nil)
	require.NoError(t, err)
	require.Equal(t, "libx264", encoder)
	require.NotNil(t, sub)
	require.Equal(t, "encoder verification has not run yet", sub.Reason)

	encoder, sub, err = ResolveEncoder("", []string{"libx264"}, nil)
	require.NoError(t, err)
	require.Equal(t, "libx264", encoder)
	require.Nil(t, sub)

	// A profile with only hardware encoders still resolves to the
	// stock software fallback.
	encoder, _, err = ResolveEncoder("", []string{"h264_nvenc", "h264_qsv"}, nil)
	require.NoError(t, err)
	require.Equal(t, "libx264", encoder)
}
