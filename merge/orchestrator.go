package merge

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// Input is one opened source file: a seekable byte stream and its total size, needed up front so
// the orchestrator can compute write-phase progress relative to total input size.
type Input struct {
	R    io.ReadSeeker
	Size int64
}

// Progress is called with a value in [0.0, 1.0] as a merge proceeds. A nil Progress is a no-op.
type Progress func(fraction float64)

// MergePaths opens inputs in the given order, merges them into outputPath, and reports progress
// through progress (which may be nil). The output file is created fresh; on error it is left in
// place, partially written, for the caller to inspect or remove.
func MergePaths(inputs []string, outputPath string, progress Progress) error {
	if len(inputs) == 0 {
		return ErrNoInputs
	}

	var files []Input
	var creationTimes []*time.Time
	var closers []*os.File
	defer func() {
		for _, f := range closers {
			f.Close()
		}
	}()

	for _, path := range inputs {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("merge: open %s: %w", path, err)
		}
		closers = append(closers, f)

		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("merge: stat %s: %w", path, err)
		}

		files = append(files, Input{R: newBufReadSeeker(f), Size: info.Size()})

		ct, err := fileCreationTime(path)
		if err != nil {
			slog.Warn("failed to read file creation time", "path", path, "error", err)
			ct = nil
		}
		creationTimes = append(creationTimes, ct)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("merge: create %s: %w", outputPath, err)
	}
	defer out.Close()

	bw := newBufWriteSeeker(out)
	if err := MergeStreams(files, bw, creationTimes, progress); err != nil {
		return err
	}
	return bw.Flush()
}

// MergeStreams merges files into output using the default (no-op) vendor-trailer hook.
func MergeStreams(files []Input, output io.WriteSeeker, creationTimes []*time.Time, progress Progress) error {
	return MergeStreamsWithTrailer(files, output, creationTimes, progress, NopTrailerMerger{})
}

// MergeStreamsWithTrailer is MergeStreams with an explicit vendor-trailer hook, for callers that
// need the probe/merge contract spec.md §6 describes instead of the default no-op.
func MergeStreamsWithTrailer(files []Input, output io.WriteSeeker, creationTimes []*time.Time, progress Progress, trailer TrailerMerger) error {
	if len(files) == 0 {
		return ErrNoInputs
	}
	if trailer == nil {
		trailer = NopTrailerMerger{}
	}

	trailerLen, hasTrailer, err := probeTrailer(files[0].R, files[0].Size, trailer)
	if err != nil {
		return fmt.Errorf("merge: probe trailer: %w", err)
	}
	if hasTrailer {
		slog.Debug("vendor trailer detected", "length", trailerLen)
	}

	var totalInput int64
	for _, f := range files {
		totalInput += f.Size
	}

	reporter := newProgressReporter(progress, totalInput)

	desc, err := buildDescriptor(files, creationTimes, func(i, n int) {
		reporter.reportStructural(i, n)
	})
	if err != nil {
		return fmt.Errorf("merge: build descriptor: %w", err)
	}

	computeGapsAndEditLists(desc)

	pw := &progressWriteSeeker{WriteSeeker: output, reporter: reporter}
	if _, err := files[0].R.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("merge: seek template: %w", err)
	}
	if _, err := rewriteFromDesc(files[0].R, files, pw, desc, 0, 0); err != nil {
		return fmt.Errorf("merge: rewrite: %w", err)
	}

	if err := patchChunkOffsets(pw, desc); err != nil {
		return fmt.Errorf("merge: patch chunk offsets: %w", err)
	}

	if hasTrailer {
		if _, err := pw.Seek(0, io.SeekEnd); err != nil {
			return fmt.Errorf("merge: vendor trailer: %w", err)
		}
		inputs := make([]TrailerInput, len(files))
		for i, f := range files {
			inputs[i].R = f.R
		}
		inputs[0].TrailerLen = trailerLen
		inputs[0].HasTrailer = true
		if err := trailer.Merge(inputs, pw); err != nil {
			return fmt.Errorf("merge: vendor trailer: %w", err)
		}
	}

	reporter.done()
	return nil
}

// progressReporter turns raw byte counts into the spec's two-band progress fraction: [0.0, 0.1]
// linear per file during the structural pass, [0.1, 1.0] proportional to output bytes written
// during the rewrite pass, throttled to at most one callback every 100ms, with a final 1.0 call.
type progressReporter struct {
	cb         Progress
	total      int64
	written    int64
	lastReport time.Time
	reported   bool
}

func newProgressReporter(cb Progress, total int64) *progressReporter {
	return &progressReporter{cb: cb, total: total}
}

func (r *progressReporter) reportStructural(i, n int) {
	if r.cb == nil || n == 0 {
		return
	}
	r.cb(0.1 * float64(i+1) / float64(n))
}

func (r *progressReporter) addWritten(n int) {
	r.written += int64(n)
	if r.cb == nil {
		return
	}
	now := time.Now()
	if r.reported && now.Sub(r.lastReport) < 100*time.Millisecond {
		return
	}
	r.lastReport = now
	r.reported = true

	frac := 1.0
	if r.total > 0 {
		frac = 0.1 + 0.9*float64(r.written)/float64(r.total)
	}
	if frac > 0.999 {
		frac = 0.999
	}
	r.cb(frac)
}

func (r *progressReporter) done() {
	if r.cb != nil {
		r.cb(1.0)
	}
}

// progressWriteSeeker wraps an io.WriteSeeker, feeding every write through the reporter so the
// rewriter's and chunk-offset patcher's writes drive progress without either needing to know
// about it.
type progressWriteSeeker struct {
	io.WriteSeeker
	reporter *progressReporter
}

func (p *progressWriteSeeker) Write(b []byte) (int, error) {
	n, err := p.WriteSeeker.Write(b)
	p.reporter.addWritten(n)
	return n, err
}
