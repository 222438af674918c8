package recorder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFileAt(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestRetentionSweep(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	oldDay := now.AddDate(0, 0, -10).Format("2006-01-02")
	freshDay := now.Format("2006-01-02")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, oldDay), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, freshDay), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "not-a-date"), 0o755))

	writeFileAt(t, filepath.Join(dir, oldDay, "09-00-00.mkv"), now.AddDate(0, 0, -10))
	writeFileAt(t, filepath.Join(dir, freshDay, "09-00-00.mkv"), now)
	writeFileAt(t, filepath.Join(dir, "not-a-date", "keep.mkv"), now.AddDate(0, 0, -30))

	r := NewRetention(func() RetentionPolicy {
		return RetentionPolicy{OutputDir: dir, RetentionDays: 7}
	})
	r.Sweep()

	// The directory past retention is gone wholesale.
	_, err := os.Stat(filepath.Join(dir, oldDay))
	require.True(t, os.IsNotExist(err))

	// Fresh recordings and non-dated directories are untouched.
	_, err = os.Stat(filepath.Join(dir, freshDay, "09-00-00.mkv"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "not-a-date", "keep.mkv"))
	require.NoError(t, err)
}

func TestRetentionSweepRemovesStaleFilesWithinRetention(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	// A directory inside retention can still hold files whose mtime
	// predates the cutoff, for example recordings copied in from
	// elsewhere.
	day := now.AddDate(0, 0, -2).Format("2006-01-02")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, day), 0o755))
	writeFileAt(t, filepath.Join(dir, day, "old.mkv"), now.AddDate(0, 0, -30))
	writeFileAt(t, filepath.Join(dir, day, "fresh.mkv"), now)

	r := NewRetention(func() RetentionPolicy {
		return RetentionPolicy{OutputDir: dir, RetentionDays: 7}
	})
	r.Sweep()

	_, err := os.Stat(filepath.Join(dir, day, "old.mkv"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, day, "fresh.mkv"))
	require.NoError(t, err)
}

func TestRetentionSweepRemovesEmptiedDirs(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	day := now.AddDate(0, 0, -2).Format("2006-01-02")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, day), 0o755))
	writeFileAt(t, filepath.Join(dir, day, "old.mkv"), now.AddDate(0, 0, -30))

	NewRetention(func() RetentionPolicy {
		return RetentionPolicy{OutputDir: dir, RetentionDays: 7}
	}).Sweep()

	_, err := os.Stat(filepath.Join(dir, day))
	require.True(t, os.IsNotExist(err))
}

func TestRetentionDisabled(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	oldDay := now.AddDate(0, 0, -100).Format("2006-01-02")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, oldDay), 0o755))
	writeFileAt(t, filepath.Join(dir, oldDay, "keep.mkv"), now.AddDate(0, 0, -100))

	NewRetention(func() RetentionPolicy {
		return RetentionPolicy{OutputDir: dir, RetentionDays: 0}
	}).Sweep()

	_, err := os.Stat(filepath.Join(dir, oldDay, "keep.mkv"))
	require.NoError(t, err)

	// A missing output directory is not an error either.
	NewRetention(func() RetentionPolicy {
		return RetentionPolicy{OutputDir: filepath.Join(dir, "nowhere"), RetentionDays: 7}
	}).Sweep()
}
