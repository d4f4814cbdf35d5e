package bmff

// writerFrame tracks the start offset of a box for size backpatching.
type writerFrame struct {
	offset int
}

// Writer encodes ISOBMFF boxes into a byte buffer.
type Writer struct {
	buf   []byte
	pos   int
	stack [maxDepth]writerFrame
	depth int
}

// NewWriter creates a Writer that writes into buf.
func NewWriter(buf []byte) Writer {
	return Writer{buf: buf[:cap(buf)]}
}

// Bytes returns the written data.
func (w *Writer) Bytes() []byte {
	return w.buf[:w.pos]
}

// Len returns the number of bytes written.
func (w *Writer) Len() int { return w.pos }

// Write appends raw bytes. Implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	copy(w.buf[w.pos:], p)
	w.pos += len(p)
	return len(p), nil
}

// putUint8 appends a single byte.
func (w *Writer) putUint8(v byte) {
	w.buf[w.pos] = v
	w.pos++
}

// putUint16 appends a big-endian uint16.
func (w *Writer) putUint16(v uint16) {
	be.PutUint16(w.buf[w.pos:], v)
	w.pos += 2
}

// putUint32 appends a big-endian uint32.
func (w *Writer) putUint32(v uint32) {
	be.PutUint32(w.buf[w.pos:], v)
	w.pos += 4
}

// putUint64 appends a big-endian uint64.
func (w *Writer) putUint64(v uint64) {
	be.PutUint64(w.buf[w.pos:], v)
	w.pos += 8
}

// putZeros appends n zero bytes.
func (w *Writer) putZeros(n int) {
	clear(w.buf[w.pos : w.pos+n])
	w.pos += n
}

// putBytes appends raw bytes.
func (w *Writer) putBytes(p []byte) {
	copy(w.buf[w.pos:], p)
	w.pos += len(p)
}

// Reset resets the writer position to 0.
func (w *Writer) Reset() {
	w.pos = 0
	w.depth = 0
}

// StartBox begins a new box. Write content, then call EndBox.
func (w *Writer) StartBox(t BoxType) {
	w.stack[w.depth] = writerFrame{offset: w.pos}
	w.depth++
	w.putUint32(0) // placeholder size
	w.putBytes(t[:])
}

// StartFullBox begins a new full box with version and flags.
func (w *Writer) StartFullBox(t BoxType, version uint8, flags uint32) {
	w.StartBox(t)
	vf := (uint32(version) << 24) | (flags & 0x00ffffff)
	w.putUint32(vf)
}

// EndBox finishes the current box by backpatching its size.
func (w *Writer) EndBox() {
	w.depth--
	f := w.stack[w.depth]
	size := uint32(w.pos - f.offset)
	be.PutUint32(w.buf[f.offset:], size)
}

// durationVersion picks version 1 (64-bit duration fields) when duration overflows 32 bits,
// the rule mvhd/tkhd/mdhd all follow identically.
func durationVersion(duration uint64) uint8 {
	if duration > uint32Max {
		return 1
	}
	return 0
}

// putTimePair writes the zeroed creation_time/modification_time fields that open every box
// sharing mvhd/tkhd/mdhd's layout, sized to match the box's own duration field width.
func (w *Writer) putTimePair(version uint8) {
	if version == 1 {
		w.putUint64(0)
		w.putUint64(0)
		return
	}
	w.putUint32(0)
	w.putUint32(0)
}

// putDuration writes duration at the field width the version calls for.
func (w *Writer) putDuration(version uint8, duration uint64) {
	if version == 1 {
		w.putUint64(duration)
		return
	}
	w.putUint32(uint32(duration))
}

// putIdentityMatrix writes the 3x3 16.16 fixed-point identity transform mvhd and tkhd both embed.
func (w *Writer) putIdentityMatrix() {
	w.putUint32(0x00010000)
	w.putZeros(12)
	w.putUint32(0x00010000)
	w.putZeros(12)
	w.putUint32(0x40000000)
}

// WriteFtyp writes a complete ftyp box.
func (w *Writer) WriteFtyp(brand [4]byte, brandVersion uint32, compat [][4]byte) {
	w.StartBox(TypeFtyp)
	w.putBytes(brand[:])
	w.putUint32(brandVersion)
	for _, c := range compat {
		w.putBytes(c[:])
	}
	w.EndBox()
}

// WriteMvhd writes a complete mvhd box.
func (w *Writer) WriteMvhd(timescale uint32, duration uint64, nextTrackId uint32) {
	version := durationVersion(duration)
	w.StartFullBox(TypeMvhd, version, 0)
	w.putTimePair(version)
	w.putUint32(timescale)
	w.putDuration(version, duration)
	w.putUint32(0x00010000) // rate 1.0
	w.putUint16(0x0100)     // volume 1.0
	w.putZeros(10)          // reserved
	w.putIdentityMatrix()
	w.putZeros(24) // predefined
	w.putUint32(nextTrackId)
	w.EndBox()
}

// WriteTkhd writes a complete tkhd box.
func (w *Writer) WriteTkhd(flags uint32, trackId uint32, duration uint64, width, height uint32) {
	version := durationVersion(duration)
	w.StartFullBox(TypeTkhd, version, flags)
	w.putTimePair(version)
	w.putUint32(trackId)
	w.putUint32(0) // reserved
	w.putDuration(version, duration)
	w.putZeros(8)  // reserved
	w.putUint16(0) // layer
	w.putUint16(0) // alternate group
	w.putUint16(0) // volume
	w.putUint16(0) // reserved
	w.putIdentityMatrix()
	w.putUint32(width)
	w.putUint32(height)
	w.EndBox()
}

// WriteMdhd writes a complete mdhd box.
func (w *Writer) WriteMdhd(timescale uint32, duration uint64, language uint16) {
	version := durationVersion(duration)
	w.StartFullBox(TypeMdhd, version, 0)
	w.putTimePair(version)
	w.putUint32(timescale)
	w.putDuration(version, duration)
	w.putUint16(language)
	w.putUint16(0) // quality
	w.EndBox()
}

// WriteHdlr writes a complete hdlr box.
func (w *Writer) WriteHdlr(handlerType [4]byte, name string) {
	w.StartFullBox(TypeHdlr, 0, 0)
	w.putUint32(0) // predefined
	w.putBytes(handlerType[:])
	w.putZeros(12) // reserved
	w.putBytes([]byte(name))
	w.putUint8(0) // null terminator
	w.EndBox()
}

// WriteVmhd writes a complete vmhd box.
func (w *Writer) WriteVmhd() {
	w.StartFullBox(TypeVmhd, 0, 1)
	w.putUint16(0) // graphicsmode
	w.putZeros(6)  // opcolor
	w.EndBox()
}

// WriteSmhd writes a complete smhd box.
func (w *Writer) WriteSmhd() {
	w.StartFullBox(TypeSmhd, 0, 0)
	w.putUint16(0) // balance
	w.putUint16(0) // reserved
	w.EndBox()
}

// WriteDref writes a dref box with a single self-referencing url entry.
func (w *Writer) WriteDref() {
	w.StartFullBox(TypeDref, 0, 0)
	w.putUint32(1) // entry count
	// url entry: self-contained
	w.StartFullBox(BoxType{'u', 'r', 'l', ' '}, 0, 1)
	w.EndBox()
	w.EndBox()
}

// WriteStsz writes a complete stsz box. sampleCount is the total sample count regardless of
// mode; sizes is consulted only when sampleSize is 0 (variable per-sample sizes) — a fixed
// sampleSize box has no per-sample array following its header at all, so sizes may be nil then.
func (w *Writer) WriteStsz(sampleSize, sampleCount uint32, sizes []uint32) {
	w.StartFullBox(TypeStsz, 0, 0)
	w.putUint32(sampleSize)
	w.putUint32(sampleCount)
	if sampleSize == 0 {
		for _, s := range sizes {
			w.putUint32(s)
		}
	}
	w.EndBox()
}

// WriteStco writes a complete stco box.
func (w *Writer) WriteStco(entries []uint32) {
	w.StartFullBox(TypeStco, 0, 0)
	w.putUint32(uint32(len(entries)))
	for _, e := range entries {
		w.putUint32(e)
	}
	w.EndBox()
}

// WriteCo64 writes a complete co64 box.
func (w *Writer) WriteCo64(entries []uint64) {
	w.StartFullBox(TypeCo64, 0, 0)
	w.putUint32(uint32(len(entries)))
	for _, e := range entries {
		w.putUint64(e)
	}
	w.EndBox()
}

// WriteStss writes a complete stss box.
func (w *Writer) WriteStss(entries []uint32) {
	w.StartFullBox(TypeStss, 0, 0)
	w.putUint32(uint32(len(entries)))
	for _, e := range entries {
		w.putUint32(e)
	}
	w.EndBox()
}

// WriteStts writes a complete stts box.
func (w *Writer) WriteStts(entries []SttsEntry) {
	w.StartFullBox(TypeStts, 0, 0)
	w.putUint32(uint32(len(entries)))
	for _, e := range entries {
		w.putUint32(e.Count)
		w.putUint32(e.Duration)
	}
	w.EndBox()
}

// WriteStsc writes a complete stsc box.
func (w *Writer) WriteStsc(entries []StscEntry) {
	w.StartFullBox(TypeStsc, 0, 0)
	w.putUint32(uint32(len(entries)))
	for _, e := range entries {
		w.putUint32(e.FirstChunk)
		w.putUint32(e.SamplesPerChunk)
		w.putUint32(e.SampleDescriptionId)
	}
	w.EndBox()
}

// WriteElst writes a complete elst box. Entries are always written as version 1
// (64-bit segment_duration/media_time): gap-bearing merges routinely need
// segment_duration beyond 32 bits once several source files are concatenated, and
// a mixed v0/v1 choice per box would make the rewriter's output non-uniform for no
// benefit, so every elst this package emits is version 1.
func (w *Writer) WriteElst(entries []ElstEntry) {
	w.StartFullBox(TypeElst, 1, 0)
	w.putUint32(uint32(len(entries)))
	for _, e := range entries {
		w.putUint64(e.SegmentDuration)
		w.putUint64(uint64(e.MediaTime))
		w.putUint16(uint16(e.MediaRateInt))
		w.putUint16(uint16(e.MediaRateFrac))
	}
	w.EndBox()
}

// WriteSdtp writes a complete sdtp box, one flags byte per sample.
func (w *Writer) WriteSdtp(entries []byte) {
	w.StartFullBox(TypeSdtp, 0, 0)
	w.putBytes(entries)
	w.EndBox()
}
