// Package merge concatenates the media payload of same-codec ISOBMFF/MP4 files into a single
// output file and rebuilds only the container index structures (moov tree) needed to describe
// the result, without re-encoding any sample data.
package merge

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/tetsuo/mp4merge/bmff"
)

// EditListEntry is one entry of a track's rebuilt edit list. MediaTime of -1 marks a gap
// (an empty edit with no corresponding media), matching the ISOBMFF convention.
type EditListEntry struct {
	SegmentDuration uint64 // in movie (mvhd) timescale
	MediaTime       int64  // in media (mdhd) timescale, or -1 for a gap
	MediaRateInt    int16
	MediaRateFrac   int16
}

// TrackDesc accumulates everything known about one track across all input files.
type TrackDesc struct {
	TkhdDuration        uint64 // movie timescale, summed across files; media timescale once gaps are inserted
	ElstSegmentDuration uint64 // movie timescale, summed across files (or gap-expanded)
	MdhdTimescale       uint32
	MdhdDuration        uint64 // media timescale, summed across files

	Stts []bmff.SttsEntry
	Stsz []uint32 // only populated when StszSampleSize == 0 (variable sample sizes)
	Stco []uint64 // chunk offsets, relative to the start of the merged payload region
	Stss []uint32
	Sdtp []byte
	Stsc []bmff.StscEntry

	SampleOffset   uint32 // cumulative sample count before the file currently being read
	ChunkOffset    uint32 // cumulative chunk count before the file currently being read
	StszSampleSize uint32
	StszCount      uint32

	Co64FinalPosition int64 // output-file byte offset of this track's co64 entry array, set during rewrite

	Skip bool // true for tracks (e.g. tmcd) that must never be merged across files
	HandlerType [4]byte

	ElstEntries []EditListEntry
}

// mdatRegion locates one input file's mdat payload, before any rewriting.
type mdatRegion struct {
	fileIndex  int // index into the files slice this region was read from
	offset     int64
	byteLength int64
}

// Descriptor is the result of the structural pass over all input files: merged sample-table
// arrays per track, summed durations, and the mdat regions to concatenate.
type Descriptor struct {
	mdatRegions          []mdatRegion
	mvhdTimescalePerFile []uint32
	MoovMvhdTimescale    uint32
	MoovMvhdDuration     uint64
	Tracks               []*TrackDesc
	mdatOffset           uint64 // cumulative merged-payload bytes before the file being read
	MdatFinalPosition    uint64 // output-file byte offset of the merged mdat's body start

	FileCreationTimes  []*time.Time
	FileDurations      []float64   // legacy fallback, duration of each file from its first track
	TrackFileDurations [][]float64 // [track][file], duration in seconds
}

func (d *Descriptor) ensureTrack(track int) *TrackDesc {
	for len(d.Tracks) <= track {
		d.Tracks = append(d.Tracks, &TrackDesc{})
	}
	for len(d.TrackFileDurations) <= track {
		d.TrackFileDurations = append(d.TrackFileDurations, make([]float64, len(d.FileDurations)))
	}
	return d.Tracks[track]
}

// buildDescriptor runs the structural pass over every input file: it locates each file's mdat
// region, walks its moov tree, and accumulates merged per-track sample tables and durations.
// onFile, if non-nil, is called after each file is scanned with its index and the total count,
// so the orchestrator can report the [0.0, 0.1] structural-pass progress band.
func buildDescriptor(files []Input, creationTimes []*time.Time, onFile func(i, n int)) (*Descriptor, error) {
	d := &Descriptor{
		FileCreationTimes:  creationTimes,
		FileDurations:      make([]float64, len(files)),
		TrackFileDurations: make([][]float64, 0),
	}

	for i, f := range files {
		if _, err := f.R.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("merge: seek file %d: %w", i, err)
		}

		region, moov, err := scanTopLevel(f.R, i)
		if err != nil {
			return nil, fmt.Errorf("merge: scan file %d: %w", i, err)
		}
		if region == nil {
			return nil, fmt.Errorf("merge: file %d has no mdat: %w", i, ErrTruncatedBox)
		}
		d.mdatRegions = append(d.mdatRegions, *region)

		d.mvhdTimescalePerFile = append(d.mvhdTimescalePerFile, 0)
		var firstMdhdBefore uint64
		if len(d.Tracks) > 0 {
			firstMdhdBefore = d.Tracks[0].MdhdDuration
		}
		if moov != nil {
			r := bmff.NewReader(moov)
			readDesc(&r, d, 0, i)
		}

		if d.MoovMvhdTimescale > 0 {
			timescale := d.MoovMvhdTimescale
			if i < len(d.mvhdTimescalePerFile) && d.mvhdTimescalePerFile[i] > 0 {
				timescale = d.mvhdTimescalePerFile[i]
			}
			if timescale > 0 && len(d.Tracks) > 0 {
				first := d.Tracks[0]
				if first.MdhdTimescale > 0 && first.MdhdDuration > firstMdhdBefore {
					d.FileDurations[i] = float64(first.MdhdDuration-firstMdhdBefore) / float64(first.MdhdTimescale)
					slog.Debug("file duration", "file", i, "seconds", d.FileDurations[i])
				}
			}
		}

		d.mdatOffset += uint64(region.byteLength)
		for _, t := range d.Tracks {
			t.SampleOffset = t.StszCount
			t.ChunkOffset = uint32(len(t.Stco))
		}

		if onFile != nil {
			onFile(i, len(files))
		}
	}

	if len(d.Tracks) == 0 {
		return nil, ErrNoTracks
	}
	if d.MoovMvhdTimescale == 0 {
		return nil, ErrZeroTimescale
	}
	for _, tr := range d.Tracks {
		if !tr.Skip && tr.MdhdTimescale == 0 {
			return nil, ErrZeroTimescale
		}
	}
	return d, nil
}

// scanTopLevel finds a file's mdat region and loads its moov body into memory, using
// bmff.FindMdatAndMoov so only moov (and never mdat's payload) is buffered.
func scanTopLevel(rs io.ReadSeeker, fileIndex int) (*mdatRegion, []byte, error) {
	span, hasMdat, moov, err := bmff.FindMdatAndMoov(rs)
	if err != nil {
		return nil, nil, err
	}
	if !hasMdat {
		return nil, moov, nil
	}
	region := &mdatRegion{
		fileIndex:  fileIndex,
		offset:     span.Offset,
		byteLength: span.ByteLength,
	}
	return region, moov, nil
}

// readDesc recursively walks a moov subtree, assigning each "trak" container the next track
// index and folding its fields into the running Descriptor. It returns the next free track
// index, mirroring the structural pass's sibling-to-sibling track counter.
func readDesc(r *bmff.Reader, d *Descriptor, track, fileIndex int) int {
	tlTrack := track
	for r.Next() {
		t := r.Type()

		if r.IsContainer() {
			r.Enter()
			if t == bmff.TypeStsd {
				r.Skip(4) // entry_count precedes stsd's sample entries
			}
			readDesc(r, d, tlTrack, fileIndex)
			r.Exit()
			if t == bmff.TypeTrak {
				tlTrack++
			}
			continue
		}

		switch t {
		case bmff.TypeMvhd:
			readMvhd(r, d, fileIndex)
		case bmff.TypeTkhd:
			readTkhd(r, d, tlTrack, fileIndex)
		case bmff.TypeMdhd:
			readMdhd(r, d, tlTrack, fileIndex)
		case bmff.TypeHdlr:
			readHdlr(r, d, tlTrack)
		case bmff.TypeTmcd:
			d.ensureTrack(tlTrack).Skip = true
		case bmff.TypeElst:
			readElst(r, d, tlTrack, fileIndex)
		case bmff.TypeStts:
			readStts(r, d, tlTrack, fileIndex)
		case bmff.TypeStsz:
			readStsz(r, d, tlTrack, fileIndex)
		case bmff.TypeStss:
			readStss(r, d, tlTrack, fileIndex)
		case bmff.TypeStco:
			readStco(r, d, tlTrack, fileIndex)
		case bmff.TypeCo64:
			readCo64(r, d, tlTrack, fileIndex)
		case bmff.TypeSdtp:
			readSdtp(r, d, tlTrack, fileIndex)
		case bmff.TypeStsc:
			readStsc(r, d, tlTrack, fileIndex)
		}
	}
	return tlTrack
}

func readMvhd(r *bmff.Reader, d *Descriptor, fileIndex int) {
	timescale, duration, _ := r.ReadMvhd()
	if d.MoovMvhdTimescale == 0 {
		d.MoovMvhdTimescale = timescale
	}
	if fileIndex < len(d.mvhdTimescalePerFile) {
		d.mvhdTimescalePerFile[fileIndex] = timescale
	}
	d.MoovMvhdDuration += scaleDurationCeil(duration, timescale, d.MoovMvhdTimescale)
}

func readTkhd(r *bmff.Reader, d *Descriptor, tlTrack, fileIndex int) {
	_, duration, _, _ := r.ReadTkhd()
	track := d.ensureTrack(tlTrack)
	var fileTimescale uint32
	if fileIndex < len(d.mvhdTimescalePerFile) {
		fileTimescale = d.mvhdTimescalePerFile[fileIndex]
	}
	track.TkhdDuration += scaleDurationCeil(duration, fileTimescale, d.MoovMvhdTimescale)
}

func readMdhd(r *bmff.Reader, d *Descriptor, tlTrack, fileIndex int) {
	timescale, duration, _ := r.ReadMdhd()
	track := d.ensureTrack(tlTrack)
	if track.MdhdTimescale == 0 {
		track.MdhdTimescale = timescale
	}
	track.MdhdDuration += scaleDurationCeil(duration, timescale, track.MdhdTimescale)

	if fileIndex < len(d.TrackFileDurations[tlTrack]) && timescale > 0 {
		seconds := float64(duration) / float64(timescale)
		d.TrackFileDurations[tlTrack][fileIndex] = seconds
		slog.Debug("track file duration", "track", tlTrack, "file", fileIndex, "seconds", seconds)
	}
}

func readHdlr(r *bmff.Reader, d *Descriptor, tlTrack int) {
	track := d.ensureTrack(tlTrack)
	track.HandlerType = r.ReadHdlr()
}

func readElst(r *bmff.Reader, d *Descriptor, tlTrack, fileIndex int) {
	track := d.ensureTrack(tlTrack)
	if track.Skip && fileIndex > 0 {
		return
	}
	it := bmff.NewElstIter(r.Data(), r.Version())
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		if e.MediaTime != -1 {
			track.ElstSegmentDuration += e.SegmentDuration
		}
	}
}

func readStts(r *bmff.Reader, d *Descriptor, tlTrack, fileIndex int) {
	track := d.ensureTrack(tlTrack)
	if track.Skip && fileIndex > 0 {
		return
	}
	it := bmff.NewSttsIter(r.Data())
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		track.Stts = append(track.Stts, e)
	}
}

func readStsz(r *bmff.Reader, d *Descriptor, tlTrack, fileIndex int) {
	track := d.ensureTrack(tlTrack)
	if track.Skip && fileIndex > 0 {
		return
	}
	it := bmff.NewStszIter(r.Data())
	track.StszSampleSize = sampleSizeOf(r.Data())
	if track.StszSampleSize == 0 {
		for {
			size, ok := it.Next()
			if !ok {
				break
			}
			track.Stsz = append(track.Stsz, size)
		}
	}
	track.StszCount += it.Count()
}

// sampleSizeOf reads the fixed sample_size field (the first uint32) directly out of stsz data,
// since StszIter doesn't expose it before iteration begins.
func sampleSizeOf(data []byte) uint32 {
	if len(data) < 4 {
		return 0
	}
	return uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
}

func readStss(r *bmff.Reader, d *Descriptor, tlTrack, fileIndex int) {
	track := d.ensureTrack(tlTrack)
	if track.Skip && fileIndex > 0 {
		return
	}
	it := bmff.NewUint32Iter(r.Data())
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		track.Stss = append(track.Stss, v+track.SampleOffset)
	}
}

func (d *Descriptor) currentMdatOffset(fileIndex int) int64 {
	var currentFileMdatPosition int64
	for _, m := range d.mdatRegions {
		if m.fileIndex == fileIndex {
			currentFileMdatPosition = m.offset
			break
		}
	}
	return int64(d.mdatOffset) - currentFileMdatPosition
}

func readStco(r *bmff.Reader, d *Descriptor, tlTrack, fileIndex int) {
	track := d.ensureTrack(tlTrack)
	if track.Skip && fileIndex > 0 {
		return
	}
	mdatOffset := d.currentMdatOffset(fileIndex)
	it := bmff.NewUint32Iter(r.Data())
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		track.Stco = append(track.Stco, uint64(int64(v)+mdatOffset))
	}
}

func readCo64(r *bmff.Reader, d *Descriptor, tlTrack, fileIndex int) {
	track := d.ensureTrack(tlTrack)
	if track.Skip && fileIndex > 0 {
		return
	}
	mdatOffset := d.currentMdatOffset(fileIndex)
	it := bmff.NewCo64Iter(r.Data())
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		track.Stco = append(track.Stco, uint64(int64(v)+mdatOffset))
	}
}

func readSdtp(r *bmff.Reader, d *Descriptor, tlTrack, fileIndex int) {
	track := d.ensureTrack(tlTrack)
	if track.Skip && fileIndex > 0 {
		return
	}
	track.Sdtp = append(track.Sdtp, r.ReadSdtp()...)
}

func readStsc(r *bmff.Reader, d *Descriptor, tlTrack, fileIndex int) {
	track := d.ensureTrack(tlTrack)
	if track.Skip && fileIndex > 0 {
		return
	}
	it := bmff.NewStscIter(r.Data())
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		e.FirstChunk += track.ChunkOffset
		track.Stsc = append(track.Stsc, e)
	}
}

// scaleDurationCeil converts a duration from one timescale to another, rounding up, matching
// the ceil((duration/from) * to) conversion used throughout the structural pass so that summed
// durations across files never silently lose a partial tick.
func scaleDurationCeil(duration uint64, from, to uint32) uint64 {
	if from == 0 {
		return 0
	}
	return uint64(math.Ceil((float64(duration) / float64(from)) * float64(to)))
}
