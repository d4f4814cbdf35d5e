package merge

import (
	"log/slog"
	"time"

	"github.com/djherbis/times"
)

// fileCreationTime returns path's OS birth time if the filesystem exposes one, and nil
// otherwise. A nil result is the spec's "optional wall-clock instant": it silently disables gap
// computation for the file it belongs to rather than failing the merge.
func fileCreationTime(path string) (*time.Time, error) {
	t, err := times.Stat(path)
	if err != nil {
		return nil, err
	}
	if !t.HasBirthTime() {
		return nil, nil
	}
	bt := t.BirthTime()
	return &bt, nil
}

// PropagateFileTimes copies sourcePath's creation time onto targetPath, following the same
// platform split as the Rust original: on systems that expose a settable file creation time
// (Windows), the target's creation time is set directly; everywhere else, the target's
// modification time is set instead, since Go's portable os.Chtimes has no creation-time
// parameter. Failure here is never fatal to a merge; callers should log and continue.
func PropagateFileTimes(sourcePath, targetPath string) error {
	src, err := times.Stat(sourcePath)
	if err != nil {
		return err
	}
	if !src.HasBirthTime() {
		slog.Warn("source file has no birth time, leaving target times untouched", "source", sourcePath)
		return nil
	}
	return setFileTimes(targetPath, src.BirthTime())
}
