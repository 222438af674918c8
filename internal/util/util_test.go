package util

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	b := NewBackoff(3*time.Second, 60*time.Second)
	require.Equal(t, 3*time.Second, b.Next())
	require.Equal(t, 6*time.Second, b.Next())
	require.Equal(t, 12*time.Second, b.Next())
	require.Equal(t, 24*time.Second, b.Next())
	require.Equal(t, 48*time.Second, b.Next())
	// Capped at the maximum from here on.
	require.Equal(t, 60*time.Second, b.Next())
	require.Equal(t, 60*time.Second, b.Current())

	b.Reset(3 * time.Second)
	require.Equal(t, 3*time.Second, b.Current())
}

func TestBoundedBuffer(t *testing.T) {
	b := NewBoundedBuffer(8)
	_, err := b.Write([]byte("abcd"))
	require.NoError(t, err)
	require.Equal(t, "abcd", b.String())

	// Oldest bytes are discarded once the cap is exceeded.
	_, err = b.Write([]byte("efghij"))
	require.NoError(t, err)
	require.Equal(t, "cdefghij", b.String())

	// A write larger than the cap keeps only its tail.
	n, err := b.Write([]byte("0123456789abcdef"))
	require.NoError(t, err)
	require.Equal(t, 16, n)
	require.Equal(t, "89abcdef", b.String())

	b.Reset()
	require.Equal(t, "", b.String())
}

func TestWrapError(t *testing.T) {
	base := errors.New("boom")
	err := WrapError("open capture stdin", base)
	require.EqualError(t, err, "failed to open capture stdin: boom")
	require.ErrorIs(t, err, base)
	require.NoError(t, WrapError("anything", nil))
}

func TestValidators(t *testing.T) {
	require.Nil(t, ValidateResolution("resolution", "1920x1080"))
	require.NotNil(t, ValidateResolution("resolution", "1920x"))
	require.NotNil(t, ValidateResolution("resolution", "wide"))

	require.Nil(t, ValidateRequired("name", "x"))
	verr := ValidateRequired("name", "")
	require.NotNil(t, verr)
	require.Equal(t, "name", verr.Field)
	require.EqualError(t, verr, "name is required")

	require.Nil(t, ValidateRange("fps", 30, 1, 120))
	require.NotNil(t, ValidateRange("fps", 0, 1, 120))
	require.NotNil(t, ValidateRange("fps", 121, 1, 120))

	require.Nil(t, ValidatePort("port", 8080))
	require.NotNil(t, ValidatePort("port", 0))
	require.NotNil(t, ValidatePort("port", 70000))

	require.Nil(t, ValidateRangeFloat("speed", 1.5, 0.5, 2.0))
	require.NotNil(t, ValidateRangeFloat("speed", 2.5, 0.5, 2.0))

	require.Nil(t, ValidateMaxLength("title", "ok", 5))
	require.NotNil(t, ValidateMaxLength("title", "too long", 5))

	require.True(t, IsConfigured("a", "b"))
	require.False(t, IsConfigured("a", ""))
	require.True(t, IsConfigured())
}

func TestFormatHumanTime(t *testing.T) {
	ts := "2026-01-02T15:04:05Z"
	formatted := FormatHumanTime(ts)
	require.Len(t, formatted, len("2006-01-02 15:04"))

	// Unparseable input passes through untouched.
	require.Equal(t, "yesterday-ish", FormatHumanTime("yesterday-ish"))
}

func TestSafeCloseNil(t *testing.T) {
	require.NotPanics(t, func() { SafeClose(nil, "nothing") })
	require.NotPanics(t, SafeCloseFunc(nil, "nothing"))
}
