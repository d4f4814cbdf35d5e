package merge

import "errors"

// Sentinel errors callers can match with errors.Is.
var (
	// ErrNoTracks is returned when no input file contributed a moov/trak to the descriptor.
	ErrNoTracks = errors.New("merge: no tracks found in input files")
	// ErrZeroTimescale is returned when a movie or media header carries a zero timescale,
	// which would make duration/timeline arithmetic divide by zero.
	ErrZeroTimescale = errors.New("merge: zero timescale in mvhd or mdhd")
	// ErrTruncatedBox is returned when an input file has no readable top-level mdat box, as
	// happens when the file is cut off before it.
	ErrTruncatedBox = errors.New("merge: truncated box")
	// ErrNoInputs is returned when zero input files are given to merge.
	ErrNoInputs = errors.New("merge: no input files given")
)
