//go:build windows
// +build windows

package merge

import (
	"log/slog"
	"time"

	"golang.org/x/sys/windows"
)

// setFileTimes sets targetPath's creation time directly, matching the Rust original's
// filetime_creation::set_file_ctime call on Windows.
func setFileTimes(targetPath string, t time.Time) error {
	slog.Debug("updating creation time", "target", targetPath, "time", t)

	path, err := windows.UTF16PtrFromString(targetPath)
	if err != nil {
		return err
	}
	handle, err := windows.CreateFile(path,
		windows.FILE_WRITE_ATTRIBUTES, windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil, windows.OPEN_EXISTING, windows.FILE_FLAG_BACKUP_SEMANTICS, 0)
	if err != nil {
		return err
	}
	defer windows.CloseHandle(handle)

	ft := windows.NsecToFiletime(t.UnixNano())
	return windows.SetFileTime(handle, &ft, nil, nil)
}
