//go:build !windows
// +build !windows

package merge

import (
	"log/slog"
	"os"
	"time"
)

// setFileTimes sets targetPath's modification time, since no portable Go API sets a file's
// creation time outside Windows. Matches the Rust original's filetime_creation::set_file_mtime
// fallback on non-Windows targets.
func setFileTimes(targetPath string, t time.Time) error {
	slog.Debug("updating modification time", "target", targetPath, "time", t)
	return os.Chtimes(targetPath, t, t)
}
