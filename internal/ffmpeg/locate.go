package ffmpeg

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-recorder/internal/types"
	"github.com/oszuidwest/zwfm-recorder/internal/util"
)

// Locate resolves the FFmpeg binary. An explicitly configured path wins
// when it points at an existing file, otherwise PATH is searched.
func Locate(configured string) (string, error) {
	if configured != "" {
		if info, err := os.Stat(configured); err == nil && !info.IsDir() {
			return configured, nil
		}
	}
	return exec.LookPath("ffmpeg")
}

// Locator caches the resolved FFmpeg path and keeps retrying in the
// background when the binary is missing at startup. A missing binary is
// a warning, not a fatal condition: recording simply cannot start until
// it appears.
type Locator struct {
	mu         sync.RWMutex
	path       string
	configured func() string
	onResolved func(string)
}

// NewLocator creates a locator. The configured func is consulted on every
// resolution attempt so config changes are picked up without a restart.
func NewLocator(configured func() string) *Locator {
	return &Locator{configured: configured}
}

// Path returns the last successfully resolved binary path, empty when the
// binary has not been found yet.
func (l *Locator) Path() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.path
}

// Found reports whether the binary has been resolved.
func (l *Locator) Found() bool {
	return l.Path() != ""
}

// Resolve attempts to locate the binary now and caches the result.
func (l *Locator) Resolve() (string, error) {
	path, err := Locate(l.configured())
	if err != nil {
		return "", util.WrapError("locate ffmpeg", err)
	}

	l.mu.Lock()
	l.path = path
	l.mu.Unlock()
	return path, nil
}

// OnResolved registers a callback invoked once when a background retry
// finds the binary. Used to kick off the deferred capability sweep.
func (l *Locator) OnResolved(fn func(path string)) {
	l.mu.Lock()
	l.onResolved = fn
	l.mu.Unlock()
}

// WatchUntilFound retries resolution with exponential backoff until the
// binary appears or ctx ends. Call this only after an initial Resolve
// failed.
func (l *Locator) WatchUntilFound(ctx context.Context) {
	backoff := util.NewBackoff(types.InitialRetryDelay, types.MaxRetryDelay)
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff.Next()):
		}

		path, err := l.Resolve()
		if err != nil {
			continue
		}

		slog.Info("ffmpeg binary found", "path", path)
		l.mu.RLock()
		fn := l.onResolved
		l.mu.RUnlock()
		if fn != nil {
			fn(path)
		}
		return
	}
}
