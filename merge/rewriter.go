package merge

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/tetsuo/mp4merge/bmff"
)

var be = binary.BigEndian

// rewriteFromDesc streams a single-pass rewrite of template's box tree into out. Only the
// boxes listed in the external box-type policy are rewritten (mvhd/tkhd/mdhd duration patched
// in place, sample tables replaced with the merged arrays, mdat replaced by the concatenation
// of every file's mdat payload); everything else is copied byte-for-byte from template, which
// is always files[0] — the moov tree's shape (ftyp, stsd, hdlr, codec config) is taken from the
// first file and never rebuilt, only its index structures are.
func rewriteFromDesc(template io.ReadSeeker, files []Input, out io.WriteSeeker, d *Descriptor, track int, maxRead uint64) (uint64, error) {
	var totalRead, totalNew uint64
	tlTrack := track

	for {
		if maxRead != 0 && totalRead >= maxRead {
			break
		}
		boxStart, err := template.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, err
		}
		t, size, headerSize, err := bmff.ReadBoxHeader(template)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("rewrite: read box header: %w", err)
		}
		if size == 0 || (t == bmff.BoxType{}) {
			break
		}

		totalRead += size
		newSize := size

		switch {
		case bmff.IsContainerBox(t):
			if _, err := template.Seek(boxStart, io.SeekStart); err != nil {
				return 0, err
			}
			outPos, err := out.Seek(0, io.SeekCurrent)
			if err != nil {
				return 0, err
			}
			if _, err := io.CopyN(out, template, int64(headerSize)); err != nil {
				return 0, err
			}
			childNew, err := rewriteFromDesc(template, files, out, d, tlTrack, size-uint64(headerSize))
			if err != nil {
				return 0, err
			}
			newSize = childNew + uint64(headerSize)
			if t == bmff.TypeTrak {
				tlTrack++
			}
			if newSize != size {
				slog.Debug("patching container size", "from", size, "to", newSize)
				if err := patchUint32(out, outPos, uint32(newSize)); err != nil {
					return 0, err
				}
			}

		case t == bmff.TypeMdat:
			newSize, err = rewriteMdat(template, files, out, d, boxStart, size, headerSize)
			if err != nil {
				return 0, err
			}

		case t == bmff.TypeMvhd || t == bmff.TypeTkhd || t == bmff.TypeMdhd:
			newSize, err = rewriteDurationBox(template, out, d, tlTrack, t, boxStart, size, headerSize)
			if err != nil {
				return 0, err
			}

		case isRebuiltSampleTable(t):
			if _, err := template.Seek(boxStart+int64(size), io.SeekStart); err != nil {
				return 0, err
			}
			newSize, err = rewriteSampleTable(out, d, tlTrack, t)
			if err != nil {
				return 0, err
			}

		default:
			if _, err := template.Seek(boxStart, io.SeekStart); err != nil {
				return 0, err
			}
			if _, err := io.CopyN(out, template, int64(size)); err != nil {
				return 0, err
			}
		}

		totalNew += newSize
	}

	return totalNew, nil
}

func isRebuiltSampleTable(t bmff.BoxType) bool {
	switch t {
	case bmff.TypeElst, bmff.TypeStts, bmff.TypeStsz, bmff.TypeStss,
		bmff.TypeStco, bmff.TypeCo64, bmff.TypeSdtp, bmff.TypeStsc:
		return true
	}
	return false
}

// rewriteMdat writes a single 64-bit-sized mdat box whose body is the concatenation of every
// input file's original mdat payload, in file order.
func rewriteMdat(template io.ReadSeeker, files []Input, out io.WriteSeeker, d *Descriptor, boxStart int64, size uint64, headerSize int) (uint64, error) {
	slog.Debug("merging mdats", "offset", boxStart, "size", size)

	if err := writeUint32(out, 1); err != nil {
		return 0, err
	}
	if _, err := out.Write(bmff.TypeMdat[:]); err != nil {
		return 0, err
	}
	sizePos, err := out.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	if err := writeUint64(out, 0); err != nil {
		return 0, err
	}
	newSize := uint64(16)

	mdatFinal, err := out.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	d.MdatFinalPosition = uint64(mdatFinal)

	for _, region := range d.mdatRegions {
		f := files[region.fileIndex].R
		prevPos, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, err
		}
		if _, err := f.Seek(region.offset, io.SeekStart); err != nil {
			return 0, err
		}
		if _, err := io.CopyN(out, f, region.byteLength); err != nil {
			return 0, err
		}
		if _, err := f.Seek(prevPos, io.SeekStart); err != nil {
			return 0, err
		}
		newSize += uint64(region.byteLength)
	}

	if err := patchUint64(out, sizePos, newSize); err != nil {
		return 0, err
	}

	if _, err := template.Seek(boxStart+int64(size), io.SeekStart); err != nil {
		return 0, err
	}
	return newSize, nil
}

// rewriteDurationBox copies an mvhd/tkhd/mdhd box byte-for-byte, then patches only its duration
// field with the value the structural pass computed, matching the external box-type policy's
// "copy body + patch duration in place" rule.
func rewriteDurationBox(template io.ReadSeeker, out io.WriteSeeker, d *Descriptor, tlTrack int, t bmff.BoxType, boxStart int64, size uint64, headerSize int) (uint64, error) {
	if _, err := template.Seek(boxStart+int64(headerSize), io.SeekStart); err != nil {
		return 0, err
	}
	var vf [4]byte
	if _, err := io.ReadFull(template, vf[:]); err != nil {
		return 0, err
	}
	version := vf[0]

	slog.Debug("writing with patched duration", "type", t.String(), "offset", boxStart, "size", size)

	if _, err := template.Seek(boxStart, io.SeekStart); err != nil {
		return 0, err
	}
	outPos, err := out.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	if _, err := io.CopyN(out, template, int64(size)); err != nil {
		return 0, err
	}
	fieldBase := outPos + int64(headerSize) + 4

	switch t {
	case bmff.TypeMvhd:
		if version == 1 {
			if err := patchUint64(out, fieldBase+8+8+4, d.MoovMvhdDuration); err != nil {
				return 0, err
			}
		} else if err := patchUint32(out, fieldBase+4+4+4, uint32(d.MoovMvhdDuration)); err != nil {
			return 0, err
		}
	case bmff.TypeTkhd:
		if tlTrack < len(d.Tracks) {
			tr := d.Tracks[tlTrack]
			if version == 1 {
				if err := patchUint64(out, fieldBase+8+8+4+4, tr.TkhdDuration); err != nil {
					return 0, err
				}
			} else if err := patchUint32(out, fieldBase+4+4+4+4, uint32(tr.TkhdDuration)); err != nil {
				return 0, err
			}
		}
	case bmff.TypeMdhd:
		if tlTrack < len(d.Tracks) {
			tr := d.Tracks[tlTrack]
			if version == 1 {
				if err := patchUint64(out, fieldBase+8+8+4, tr.MdhdDuration); err != nil {
					return 0, err
				}
			} else if err := patchUint32(out, fieldBase+4+4+4, uint32(tr.MdhdDuration)); err != nil {
				return 0, err
			}
		}
	}

	return size, nil
}

// rewriteSampleTable replaces elst/stts/stsz/stss/stco/co64/sdtp/stsc with the merged arrays
// accumulated during the structural pass. Unlike rewriteMdat (whose payload is too large to
// ever buffer), a sample table is always small enough to build in memory, so it's assembled
// through a bmff.Writer — backpatching its own size internally via EndBox — and copied to out
// in one piece. stco is always rewritten as co64 (the merged payload routinely exceeds 4GB, so
// a narrow 32-bit chunk-offset table is never safe to re-emit).
func rewriteSampleTable(out io.WriteSeeker, d *Descriptor, tlTrack int, t bmff.BoxType) (uint64, error) {
	slog.Debug("writing rebuilt sample table", "type", t.String())

	var tr *TrackDesc
	if tlTrack < len(d.Tracks) {
		tr = d.Tracks[tlTrack]
	} else {
		tr = &TrackDesc{}
	}

	outPos, err := out.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}

	w := bmff.NewWriter(make([]byte, 0, sampleTableBufSize(t, tr)))
	switch t {
	case bmff.TypeElst:
		w.WriteElst(elstEntriesOrFallback(tr))
	case bmff.TypeStts:
		w.WriteStts(coalesceStts(tr.Stts))
	case bmff.TypeStsz:
		w.WriteStsz(tr.StszSampleSize, tr.StszCount, tr.Stsz)
	case bmff.TypeStss:
		w.WriteStss(tr.Stss)
	case bmff.TypeStco, bmff.TypeCo64:
		// Written as the merged-payload-relative offset only; patchChunkOffsets adds
		// MdatFinalPosition afterwards, once mdat's true output position is known. mdat can
		// precede or follow moov in the source file, so the bias can never be safely folded
		// in at this point without risking it being applied twice.
		offsets := make([]uint64, len(tr.Stco))
		copy(offsets, tr.Stco)
		w.WriteCo64(offsets)
		tr.Co64FinalPosition = outPos + 16 // size(4)+type(4)+version/flags(4)+count(4)
	case bmff.TypeSdtp:
		w.WriteSdtp(tr.Sdtp)
	case bmff.TypeStsc:
		w.WriteStsc(tr.Stsc)
	}

	data := w.Bytes()
	if _, err := out.Write(data); err != nil {
		return 0, err
	}
	return uint64(len(data)), nil
}

// sampleTableBufSize returns an exact capacity for the rebuilt box, so the bmff.Writer backing
// it — which never grows its buffer — never needs to.
func sampleTableBufSize(t bmff.BoxType, tr *TrackDesc) int {
	const boxHeader = 12 // size(4)+type(4)+version/flags(4)
	switch t {
	case bmff.TypeElst:
		n := len(tr.ElstEntries)
		if n == 0 {
			n = 1 // the single fallback edit
		}
		return boxHeader + 4 + n*20
	case bmff.TypeStts:
		return boxHeader + 4 + len(tr.Stts)*8
	case bmff.TypeStsz:
		return boxHeader + 8 + len(tr.Stsz)*4
	case bmff.TypeStss:
		return boxHeader + 4 + len(tr.Stss)*4
	case bmff.TypeStco, bmff.TypeCo64:
		return boxHeader + 4 + len(tr.Stco)*8
	case bmff.TypeSdtp:
		return boxHeader + len(tr.Sdtp)
	case bmff.TypeStsc:
		return boxHeader + 4 + len(tr.Stsc)*12
	}
	return boxHeader
}

// elstEntriesOrFallback returns the track's gap-bearing edit list when the timeline engine
// produced one, otherwise a single default edit whose duration is the larger of the track's
// summed elst duration and its summed mdhd duration.
func elstEntriesOrFallback(tr *TrackDesc) []bmff.ElstEntry {
	if len(tr.ElstEntries) > 0 {
		entries := make([]bmff.ElstEntry, len(tr.ElstEntries))
		for i, e := range tr.ElstEntries {
			entries[i] = bmff.ElstEntry{
				SegmentDuration: e.SegmentDuration,
				MediaTime:       e.MediaTime,
				MediaRateInt:    e.MediaRateInt,
				MediaRateFrac:   e.MediaRateFrac,
			}
		}
		return entries
	}

	duration := tr.ElstSegmentDuration
	if duration == 0 || tr.MdhdDuration > duration {
		duration = tr.MdhdDuration
	}
	return []bmff.ElstEntry{{SegmentDuration: duration, MediaTime: 0, MediaRateInt: 1, MediaRateFrac: 0}}
}

// coalesceStts merges consecutive runs sharing the same sample delta into one entry, the same
// run-length compaction the structural pass's raw concatenation would otherwise have skipped.
func coalesceStts(entries []bmff.SttsEntry) []bmff.SttsEntry {
	coalesced := make([]bmff.SttsEntry, 0, len(entries))
	var haveDelta bool
	var prevDelta uint32
	for _, e := range entries {
		if haveDelta && prevDelta == e.Duration {
			coalesced[len(coalesced)-1].Count += e.Count
			continue
		}
		prevDelta = e.Duration
		haveDelta = true
		coalesced = append(coalesced, e)
	}
	return coalesced
}

func patchBytes(w io.WriteSeeker, position int64, b []byte) error {
	cur, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := w.Seek(position, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	_, err = w.Seek(cur, io.SeekStart)
	return err
}

func patchUint32(w io.WriteSeeker, position int64, v uint32) error {
	var b [4]byte
	be.PutUint32(b[:], v)
	return patchBytes(w, position, b[:])
}

func patchUint64(w io.WriteSeeker, position int64, v uint64) error {
	var b [8]byte
	be.PutUint64(b[:], v)
	return patchBytes(w, position, b[:])
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	be.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	be.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// patchChunkOffsets runs the final post-patch pass over every track's co64 entries: during the
// main rewrite, mdat is encountered after many tracks' sample tables have already been written
// when moov precedes mdat in the file (the common case), so MdatFinalPosition is not yet known
// at that point. Each co64 entry was written biased only by the merged-payload-relative offset;
// this pass adds the true final mdat body position on top, as a byte-level post-patch.
func patchChunkOffsets(out io.WriteSeeker, d *Descriptor) error {
	for _, tr := range d.Tracks {
		if len(tr.Stco) == 0 {
			continue
		}
		if _, err := out.Seek(tr.Co64FinalPosition, io.SeekStart); err != nil {
			return err
		}
		for _, v := range tr.Stco {
			if err := writeUint64(out, v+d.MdatFinalPosition); err != nil {
				return err
			}
		}
	}
	return nil
}
