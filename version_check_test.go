package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeVersion(t *testing.T) {
	require.Equal(t, "1.2.3", normalizeVersion("v1.2.3"))
	require.Equal(t, "1.2.3", normalizeVersion(" 1.2.3 "))
	require.Equal(t, "dev", normalizeVersion("dev"))
}

func TestCanonicalVersion(t *testing.T) {
	require.Equal(t, "v1.2.3", canonicalVersion("1.2.3"))
	require.Equal(t, "v1.2.3", canonicalVersion("v1.2.3"))
	require.Equal(t, "v2.0.0-rc.1", canonicalVersion(" 2.0.0-rc.1 "))
}

func TestIsNewerVersion(t *testing.T) {
	require.True(t, isNewerVersion("1.3.0", "1.2.9"))
	require.True(t, isNewerVersion("v2.0.0", "1.9.9"))
	require.False(t, isNewerVersion("1.2.3", "1.2.3"))
	require.False(t, isNewerVersion("1.2.3", "1.3.0"))
	// Pre-releases sort before their release.
	require.True(t, isNewerVersion("1.0.0", "1.0.0-rc.1"))
	require.False(t, isNewerVersion("1.0.0-rc.1", "1.0.0"))
}

func TestVersionCheckerGetInfo(t *testing.T) {
	// Constructed directly so no background check runs.
	vc := &VersionChecker{latest: "99.0.0"}

	info := vc.GetInfo()
	require.Equal(t, "dev", info.Current)
	require.Equal(t, "99.0.0", info.Latest)
	require.Equal(t, Commit, info.Commit)
	// Dev builds never flag an update.
	require.False(t, info.UpdateAvail)
}
