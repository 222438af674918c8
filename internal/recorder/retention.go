package recorder

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// RetentionInterval is how often the retention sweep runs.
const RetentionInterval = 1 * time.Hour

// RetentionPolicy supplies the sweep parameters, read fresh every run so
// config changes apply without a restart.
type RetentionPolicy struct {
	OutputDir     string
	RetentionDays int // 0 keeps recordings forever
}

// Retention deletes recordings past their retention from the dated
// output directories. An active recording always lives in today's
// directory, so it can never fall inside the cutoff.
type Retention struct {
	policy func() RetentionPolicy
}

// NewRetention creates a retention sweeper.
func NewRetention(policy func() RetentionPolicy) *Retention {
	return &Retention{policy: policy}
}

// Run sweeps immediately and then hourly until ctx ends.
func (c *Retention) Run(ctx context.Context) {
	c.Sweep()

	ticker := time.NewTicker(RetentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Sweep performs one retention pass over the output directory.
func (c *Retention) Sweep() {
	policy := c.policy()
	if policy.OutputDir == "" || policy.RetentionDays <= 0 {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -policy.RetentionDays)
	slog.Debug("running recording retention sweep",
		"path", policy.OutputDir, "retention_days", policy.RetentionDays,
		"cutoff", cutoff.Format("2006-01-02"))

	if _, err := os.Stat(policy.OutputDir); os.IsNotExist(err) {
		return
	}

	entries, err := os.ReadDir(policy.OutputDir)
	if err != nil {
		slog.Error("failed to read output directory", "path", policy.OutputDir, "error", err)
		return
	}

	var deletedFiles, deletedDirs int

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		// Recordings live in dated directories (2006-01-02); anything
		// else in the output directory is left alone.
		dirDate, err := time.Parse("2006-01-02", entry.Name())
		if err != nil {
			continue
		}

		dirPath := filepath.Join(policy.OutputDir, entry.Name())

		// If the entire directory is older than retention, remove it
		if dirDate.Before(cutoff) {
			if files, err := os.ReadDir(dirPath); err == nil {
				deletedFiles += len(files)
			}

			if err := os.RemoveAll(dirPath); err != nil {
				slog.Error("failed to remove old recording directory", "path", dirPath, "error", err)
			} else {
				deletedDirs++
				slog.Debug("removed old recording directory", "path", dirPath)
			}
			continue
		}

		// For directories within retention, check individual files
		// (handles files that are older than their directory date)
		deletedFiles += removeFilesBefore(dirPath, cutoff)

		if removeIfEmpty(dirPath) {
			deletedDirs++
		}
	}

	if deletedFiles > 0 || deletedDirs > 0 {
		slog.Info("recording retention sweep completed",
			"deleted_files", deletedFiles, "deleted_dirs", deletedDirs)
	}
}

// removeFilesBefore removes files modified before cutoff from the directory.
func removeFilesBefore(dirPath string, cutoff time.Time) int {
	files, err := os.ReadDir(dirPath)
	if err != nil {
		return 0
	}

	deleted := 0
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		info, err := file.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		filePath := filepath.Join(dirPath, file.Name())
		if err := os.Remove(filePath); err != nil {
			slog.Error("failed to remove old recording file", "path", filePath, "error", err)
		} else {
			deleted++
			slog.Debug("removed old recording file", "path", filePath)
		}
	}
	return deleted
}

// removeIfEmpty removes the directory if it no longer holds anything.
func removeIfEmpty(dirPath string) bool {
	files, err := os.ReadDir(dirPath)
	if err != nil || len(files) > 0 {
		return false
	}

	if err := os.Remove(dirPath); err != nil {
		slog.Warn("failed to remove empty directory", "path", dirPath, "error", err)
		return false
	}
	return true
}
