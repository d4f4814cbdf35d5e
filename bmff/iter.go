package bmff

import (
	"encoding/binary"
	"math"
)

var be = binary.BigEndian

const uint32Max = math.MaxUint32

// entryCursor walks a fixed-stride run of entries that follows a box's leading uint32 count
// field, the layout every sample-table iterator in this file shares (stsz's per-sample sizes,
// co64's offsets, stts/stsc/elst's multi-field records, stss's sync-sample numbers). Each
// exported iterator below wraps one with its own stride and field decoding, so callers get
// typed Next() results instead of every iterator re-deriving the same bounds check.
type entryCursor struct {
	buf    []byte
	start  int // byte offset, within buf, where the first entry begins
	stride int
	count  uint32
	index  uint32
}

func newEntryCursor(data []byte, countOffset, start, stride int) entryCursor {
	if len(data) < countOffset+4 {
		return entryCursor{}
	}
	return entryCursor{
		buf:    data,
		start:  start,
		stride: stride,
		count:  be.Uint32(data[countOffset : countOffset+4]),
	}
}

// next returns the raw bytes of the next entry, or nil, false once count is exhausted or the
// buffer runs short (a truncated box is treated as having fewer entries, not as an error: callers
// scanning untrusted input should see a short read play out as an early stop).
func (c *entryCursor) next() ([]byte, bool) {
	if c.index >= c.count {
		return nil, false
	}
	off := c.start + int(c.index)*c.stride
	if off+c.stride > len(c.buf) {
		return nil, false
	}
	c.index++
	return c.buf[off : off+c.stride], true
}

// StszIter iterates over sample sizes in an stsz box. When sampleSize is nonzero every sample
// shares that fixed size and no per-sample array follows the header at all.
type StszIter struct {
	sampleSize uint32
	cursor     entryCursor
}

// NewStszIter creates an iterator from stsz box data.
func NewStszIter(data []byte) StszIter {
	if len(data) < 8 {
		return StszIter{}
	}
	return StszIter{
		sampleSize: be.Uint32(data[0:4]),
		cursor:     newEntryCursor(data, 4, 8, 4),
	}
}

// Count returns the total number of samples.
func (it *StszIter) Count() uint32 { return it.cursor.count }

// Next returns the next sample size. Returns (0, false) when done.
func (it *StszIter) Next() (uint32, bool) {
	if it.sampleSize != 0 {
		if it.cursor.index >= it.cursor.count {
			return 0, false
		}
		it.cursor.index++
		return it.sampleSize, true
	}
	b, ok := it.cursor.next()
	if !ok {
		return 0, false
	}
	return be.Uint32(b), true
}

// Co64Iter iterates over uint64 chunk offsets in a co64 box.
type Co64Iter struct {
	cursor entryCursor
}

// NewCo64Iter creates an iterator from co64 box data.
func NewCo64Iter(data []byte) Co64Iter {
	return Co64Iter{cursor: newEntryCursor(data, 0, 4, 8)}
}

// Count returns the total number of entries.
func (it *Co64Iter) Count() uint32 { return it.cursor.count }

// Next returns the next chunk offset. Returns (0, false) when done.
func (it *Co64Iter) Next() (uint64, bool) {
	b, ok := it.cursor.next()
	if !ok {
		return 0, false
	}
	return be.Uint64(b), true
}

// SttsEntry is a time-to-sample entry.
type SttsEntry struct {
	Count    uint32
	Duration uint32
}

// SttsIter iterates over stts entries.
type SttsIter struct {
	cursor entryCursor
}

// NewSttsIter creates an iterator from stts box data.
func NewSttsIter(data []byte) SttsIter {
	return SttsIter{cursor: newEntryCursor(data, 0, 4, 8)}
}

// Count returns the total number of entries.
func (it *SttsIter) Count() uint32 { return it.cursor.count }

// Next returns the next entry. Returns false when done.
func (it *SttsIter) Next() (SttsEntry, bool) {
	b, ok := it.cursor.next()
	if !ok {
		return SttsEntry{}, false
	}
	return SttsEntry{Count: be.Uint32(b), Duration: be.Uint32(b[4:])}, true
}

// StscEntry is a sample-to-chunk entry.
type StscEntry struct {
	FirstChunk          uint32
	SamplesPerChunk     uint32
	SampleDescriptionId uint32
}

// StscIter iterates over stsc entries.
type StscIter struct {
	cursor entryCursor
}

// NewStscIter creates an iterator from stsc box data.
func NewStscIter(data []byte) StscIter {
	return StscIter{cursor: newEntryCursor(data, 0, 4, 12)}
}

// Count returns the total number of entries.
func (it *StscIter) Count() uint32 { return it.cursor.count }

// Next returns the next entry. Returns false when done.
func (it *StscIter) Next() (StscEntry, bool) {
	b, ok := it.cursor.next()
	if !ok {
		return StscEntry{}, false
	}
	return StscEntry{
		FirstChunk:          be.Uint32(b),
		SamplesPerChunk:     be.Uint32(b[4:]),
		SampleDescriptionId: be.Uint32(b[8:]),
	}, true
}

// ElstEntry is an edit list entry.
type ElstEntry struct {
	SegmentDuration uint64
	MediaTime       int64
	MediaRateInt    int16
	MediaRateFrac   int16
}

// ElstIter iterates over elst entries. Version 1 carries 64-bit segment_duration/media_time;
// version 0 carries 32-bit fields, so the two versions use different strides over the same cursor.
type ElstIter struct {
	cursor  entryCursor
	version uint8
}

// NewElstIter creates an iterator from elst box data with the given version.
func NewElstIter(data []byte, version uint8) ElstIter {
	stride := 12
	if version == 1 {
		stride = 20
	}
	return ElstIter{cursor: newEntryCursor(data, 0, 4, stride), version: version}
}

// Count returns the total number of entries.
func (it *ElstIter) Count() uint32 { return it.cursor.count }

// Next returns the next entry. Returns false when done.
func (it *ElstIter) Next() (ElstEntry, bool) {
	b, ok := it.cursor.next()
	if !ok {
		return ElstEntry{}, false
	}
	if it.version == 1 {
		return ElstEntry{
			SegmentDuration: be.Uint64(b),
			MediaTime:       int64(be.Uint64(b[8:])),
			MediaRateInt:    int16(be.Uint16(b[16:])),
			MediaRateFrac:   int16(be.Uint16(b[18:])),
		}, true
	}
	return ElstEntry{
		SegmentDuration: uint64(be.Uint32(b)),
		MediaTime:       int64(int32(be.Uint32(b[4:]))),
		MediaRateInt:    int16(be.Uint16(b[8:])),
		MediaRateFrac:   int16(be.Uint16(b[10:])),
	}, true
}

// Uint32Iter iterates over uint32 entries (stco, stss).
type Uint32Iter struct {
	cursor entryCursor
}

// NewUint32Iter creates an iterator from box data containing a count + uint32 entries.
func NewUint32Iter(data []byte) Uint32Iter {
	return Uint32Iter{cursor: newEntryCursor(data, 0, 4, 4)}
}

// Count returns the total number of entries.
func (it *Uint32Iter) Count() uint32 { return it.cursor.count }

// Next returns the next entry. Returns (0, false) when done.
func (it *Uint32Iter) Next() (uint32, bool) {
	b, ok := it.cursor.next()
	if !ok {
		return 0, false
	}
	return be.Uint32(b), true
}
