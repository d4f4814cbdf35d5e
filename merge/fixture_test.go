package merge

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/tetsuo/mp4merge/bmff"
)

// memFile is a growable, in-memory io.ReadWriteSeeker standing in for an *os.File in tests,
// since neither bytes.Buffer nor bytes.Reader alone support the seek-then-write pattern the
// rewriter and chunk-offset patcher need for in-place size and offset backpatching.
type memFile struct {
	buf []byte
	pos int64
}

func (m *memFile) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.pos:])
	m.pos += int64(n)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = m.pos + offset
	case io.SeekEnd:
		newPos = int64(len(m.buf)) + offset
	}
	m.pos = newPos
	return newPos, nil
}

// buildMoovSingleTrack writes a one-track moov box: mvhd/tkhd/mdhd/hdlr all sharing the same
// timescale (so the fixture never exercises timescale-conversion rounding), and a minimal stbl
// describing a single sample located at mdatBodyOffset within the eventual standalone file.
func buildMoovSingleTrack(timescale uint32, duration uint32, payloadSize uint32, mdatBodyOffset uint32) []byte {
	w := bmff.NewWriter(make([]byte, 0, 4096))
	w.StartBox(bmff.TypeMoov)
	w.WriteMvhd(timescale, uint64(duration), 2)
	w.StartBox(bmff.TypeTrak)
	w.WriteTkhd(0x7, 1, uint64(duration), 0, 0)
	w.StartBox(bmff.TypeEdts)
	w.WriteElst([]bmff.ElstEntry{{SegmentDuration: uint64(duration), MediaTime: 0, MediaRateInt: 1, MediaRateFrac: 0}})
	w.EndBox() // edts
	w.StartBox(bmff.TypeMdia)
	w.WriteMdhd(timescale, uint64(duration), 0x55c4)
	w.WriteHdlr([4]byte{'v', 'i', 'd', 'e'}, "VideoHandler")
	w.StartBox(bmff.TypeMinf)
	w.WriteVmhd()
	w.StartBox(bmff.TypeDinf)
	w.WriteDref()
	w.EndBox() // dinf
	w.StartBox(bmff.TypeStbl)
	w.StartFullBox(bmff.TypeStsd, 0, 0)
	w.Write([]byte{0, 0, 0, 0}) // zero sample entries; rewriter only ever copies stsd verbatim
	w.EndBox()                  // stsd
	w.WriteStts([]bmff.SttsEntry{{Count: 1, Duration: duration}})
	w.WriteStsc([]bmff.StscEntry{{FirstChunk: 1, SamplesPerChunk: 1, SampleDescriptionId: 1}})
	w.WriteStsz(0, 1, []uint32{payloadSize})
	w.WriteStco([]uint32{mdatBodyOffset})
	w.EndBox() // stbl
	w.EndBox() // minf
	w.EndBox() // mdia
	w.EndBox() // trak
	w.EndBox() // moov
	return w.Bytes()
}

func buildFtyp() []byte {
	w := bmff.NewWriter(make([]byte, 0, 64))
	w.WriteFtyp([4]byte{'i', 's', 'o', 'm'}, 0x200, [][4]byte{{'i', 's', 'o', 'm'}, {'m', 'p', '4', '2'}})
	return w.Bytes()
}

// findBox searches data depth-first for the first box of type target, descending into any
// container box along the way. It returns the box's data (excluding header), or nil if absent.
func findBox(data []byte, target bmff.BoxType) []byte {
	r := bmff.NewReader(data)
	return findBoxRec(&r, target)
}

func findBoxRec(r *bmff.Reader, target bmff.BoxType) []byte {
	for r.Next() {
		if r.Type() == target {
			return r.Data()
		}
		if bmff.IsContainerBox(r.Type()) {
			r.Enter()
			d := findBoxRec(r, target)
			r.Exit()
			if d != nil {
				return d
			}
		}
	}
	return nil
}

// buildSingleTrackFile assembles a standalone ftyp+moov+mdat file with one video track holding
// a single sample, the way a real single-keyframe-per-file action-camera clip would look.
func buildSingleTrackFile(t *testing.T, timescale, duration uint32, payload []byte) []byte {
	t.Helper()

	ftyp := buildFtyp()
	moov := buildMoovSingleTrack(timescale, duration, uint32(len(payload)), 0)
	mdatBodyOffset := uint32(len(ftyp) + len(moov) + 8)
	moov = buildMoovSingleTrack(timescale, duration, uint32(len(payload)), mdatBodyOffset)

	file := make([]byte, 0, len(ftyp)+len(moov)+8+len(payload))
	file = append(file, ftyp...)
	file = append(file, moov...)
	var mdatHeader [8]byte
	binary.BigEndian.PutUint32(mdatHeader[:4], uint32(8+len(payload)))
	copy(mdatHeader[4:8], bmff.TypeMdat[:])
	file = append(file, mdatHeader[:]...)
	file = append(file, payload...)
	return file
}
