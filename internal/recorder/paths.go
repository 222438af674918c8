package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oszuidwest/zwfm-recorder/internal/util"
)

// AllocateOutputPath reserves a path for a new recording. Recordings are
// grouped in one directory per day and named by start time. If the name
// is already taken, a numeric suffix is tried. Segmented recordings get a
// printf pattern for the segment muxer instead of a plain path.
func AllocateOutputPath(dir, container string, segmentSeconds int, now time.Time) (string, error) {
	ext := container
	if ext == "" {
		ext = "mkv"
	}
	dateDir := filepath.Join(dir, now.Format("2006-01-02"))
	if err := os.MkdirAll(dateDir, 0o755); err != nil {
		return "", util.WrapError("create recording directory", err)
	}

	base := now.Format("15-04-05")
	for i := 0; i < 100; i++ {
		stem := base
		if i > 0 {
			stem = fmt.Sprintf("%s_%d", base, i)
		}
		if segmentSeconds > 0 {
			if !pathExists(filepath.Join(dateDir, fmt.Sprintf("%s_000.%s", stem, ext))) {
				return filepath.Join(dateDir, fmt.Sprintf("%s_%%03d.%s", stem, ext)), nil
			}
			continue
		}
		path := filepath.Join(dateDir, stem+"."+ext)
		if !pathExists(path) {
			return path, nil
		}
	}

	// Names carry second resolution, a hundred collisions means the clock
	// is broken. Fall back to a unix timestamp.
	stem := fmt.Sprintf("%s_%d", base, now.Unix())
	if segmentSeconds > 0 {
		return filepath.Join(dateDir, fmt.Sprintf("%s_%%03d.%s", stem, ext)), nil
	}
	return filepath.Join(dateDir, stem+"."+ext), nil
}

// OutputSize returns the bytes written so far for the given output path,
// summing all files when the path is a segment pattern.
func OutputSize(outputPath string) int64 {
	if strings.Contains(outputPath, "%03d") {
		matches, err := filepath.Glob(strings.Replace(outputPath, "%03d", "*", 1))
		if err != nil {
			return 0
		}
		var total int64
		for _, match := range matches {
			if info, err := os.Stat(match); err == nil {
				total += info.Size()
			}
		}
		return total
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return 0
	}
	return info.Size()
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
