package util

import (
	"fmt"
	"log/slog"
)

// NotifyResultf runs a notification send and logs the outcome.
// Errors are logged internally, so no error is returned.
func NotifyResultf(fn func() error, kind string, enabled bool, format string, args ...any) {
	if err := fn(); err != nil {
		slog.Warn("notification failed", "kind", kind, "error", err)
	} else if enabled {
		slog.Info("notification sent", "kind", kind, "detail", fmt.Sprintf(format, args...))
	}
}
