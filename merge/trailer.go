package merge

import "io"

// TrailerInput pairs one opened input with the trailer region Detect found in it, if any.
type TrailerInput struct {
	R          io.ReadSeeker
	Path       string
	TrailerLen uint32
	HasTrailer bool
}

// TrailerMerger is invoked after the main output is written and chunk offsets are patched, if a
// recognized trailer magic was found at end-of-file on the first input during the orchestrator's
// probe. Implementations append vendor-specific metadata (e.g. a GPS/telemetry trailer) to the
// output; the default NopTrailerMerger does nothing and never reports a trailer.
type TrailerMerger interface {
	// Detect inspects the last 40 bytes of the first input and, if it recognizes a trailer
	// magic, returns the trailer byte length and true. The length reaches Merge through
	// TrailerInput.TrailerLen; the structural pass and the rewriter do not use it to stop before
	// the trailer. A false result means the file carries no trailer this implementation knows about.
	Detect(last40 [40]byte) (trailerLen uint32, ok bool)
	// Merge is called once, after the merged output has been written and its chunk offsets
	// patched, with output positioned at its end. inputs holds every input's reader in order;
	// only the first input carries a detected trailer region.
	Merge(inputs []TrailerInput, output io.WriteSeeker) error
}

// NopTrailerMerger is the default TrailerMerger: it recognizes no trailer format and merges
// nothing. Specifying any particular vendor trailer format is out of scope for this package.
type NopTrailerMerger struct{}

// Detect always reports no trailer.
func (NopTrailerMerger) Detect([40]byte) (uint32, bool) { return 0, false }

// Merge does nothing.
func (NopTrailerMerger) Merge([]TrailerInput, io.WriteSeeker) error { return nil }

// probeTrailer reads the last 40 bytes of r (if it has at least 40 bytes) and asks tm to
// recognize them. r's position is restored before returning.
func probeTrailer(r io.ReadSeeker, size int64, tm TrailerMerger) (uint32, bool, error) {
	if size < 40 {
		return 0, false, nil
	}
	prev, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, false, err
	}
	var last40 [40]byte
	if _, err := r.Seek(size-40, io.SeekStart); err != nil {
		return 0, false, err
	}
	if _, err := io.ReadFull(r, last40[:]); err != nil {
		return 0, false, err
	}
	if _, err := r.Seek(prev, io.SeekStart); err != nil {
		return 0, false, err
	}
	trailerLen, ok := tm.Detect(last40)
	return trailerLen, ok, nil
}
