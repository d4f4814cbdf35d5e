package merge

import (
	"io"
	"testing"

	"github.com/tetsuo/mp4merge/bmff"
)

func TestMergeStreams_TwoFiles(t *testing.T) {
	const timescale = 48000
	const duration = 48000 // one second, single sample per file

	payload1 := []byte("FILE1-PAYLOAD-DATA-HERE")
	payload2 := []byte("FILE2-SECOND-PAYLOAD-DATA")

	file1 := buildSingleTrackFile(t, timescale, duration, payload1)
	file2 := buildSingleTrackFile(t, timescale, duration, payload2)

	inputs := []Input{
		{R: &memFile{buf: file1}, Size: int64(len(file1))},
		{R: &memFile{buf: file2}, Size: int64(len(file2))},
	}

	out := &memFile{}
	var lastProgress float64
	progress := func(f float64) { lastProgress = f }

	if err := MergeStreams(inputs, out, nil, progress); err != nil {
		t.Fatalf("MergeStreams: %v", err)
	}
	if lastProgress != 1.0 {
		t.Fatalf("final progress = %v, want 1.0", lastProgress)
	}

	if _, err := out.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}

	sc := bmff.NewScanner(out)
	var mdat *bmff.ScanEntry
	var moov []byte
	var sawFtyp bool
	for sc.Next() {
		e := sc.Entry()
		switch e.Type {
		case bmff.TypeFtyp:
			sawFtyp = true
		case bmff.TypeMoov:
			buf := make([]byte, e.DataSize())
			if err := sc.ReadBody(buf); err != nil {
				t.Fatal(err)
			}
			moov = buf
		case bmff.TypeMdat:
			if mdat != nil {
				t.Fatal("expected exactly one top-level mdat box, found a second")
			}
			ce := e
			mdat = &ce
		}
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scanner error: %v", err)
	}
	if !sawFtyp {
		t.Fatal("expected an ftyp box in the merged output")
	}
	if mdat == nil {
		t.Fatal("expected a merged mdat box")
	}
	if moov == nil {
		t.Fatal("expected a moov box")
	}

	wantMdatSize := int64(len(payload1) + len(payload2))
	if mdat.DataSize() != wantMdatSize {
		t.Fatalf("mdat data size = %d, want %d", mdat.DataSize(), wantMdatSize)
	}
	mdatDataOffset := mdat.Offset + int64(mdat.HeaderSize)

	co64Data := findBox(moov, bmff.TypeCo64)
	if co64Data == nil {
		t.Fatal("expected stco to have been rewritten as co64")
	}
	it := bmff.NewCo64Iter(co64Data)
	var offsets []uint64
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		offsets = append(offsets, v)
	}
	if len(offsets) != 2 {
		t.Fatalf("co64 entry count = %d, want 2", len(offsets))
	}
	if offsets[0] != uint64(mdatDataOffset) {
		t.Errorf("first chunk offset = %d, want %d (mdat data start)", offsets[0], mdatDataOffset)
	}
	if offsets[1] != uint64(mdatDataOffset)+uint64(len(payload1)) {
		t.Errorf("second chunk offset = %d, want %d", offsets[1], uint64(mdatDataOffset)+uint64(len(payload1)))
	}

	stszData := findBox(moov, bmff.TypeStsz)
	if stszData == nil {
		t.Fatal("expected a stsz box")
	}
	sit := bmff.NewStszIter(stszData)
	if sit.Count() != 2 {
		t.Fatalf("stsz count = %d, want 2", sit.Count())
	}
	s0, _ := sit.Next()
	s1, _ := sit.Next()
	if s0 != uint32(len(payload1)) || s1 != uint32(len(payload2)) {
		t.Errorf("stsz sizes = (%d, %d), want (%d, %d)", s0, s1, len(payload1), len(payload2))
	}

	sttsData := findBox(moov, bmff.TypeStts)
	if sttsData == nil {
		t.Fatal("expected a stts box")
	}
	tit := bmff.NewSttsIter(sttsData)
	if tit.Count() != 1 {
		t.Fatalf("stts entry count = %d, want 1 (equal deltas should coalesce)", tit.Count())
	}
	e, _ := tit.Next()
	if e.Count != 2 || e.Duration != duration {
		t.Errorf("stts entry = %+v, want {Count:2 Duration:%d}", e, duration)
	}

	elstData := findBox(moov, bmff.TypeElst)
	if elstData == nil {
		t.Fatal("expected an elst box (the fallback single-edit case)")
	}
	r := bmff.NewReader(moov)
	version := findElstVersion(&r)
	if version != 1 {
		t.Fatalf("elst version = %d, want 1 (always rewritten as version 1)", version)
	}
	eit := bmff.NewElstIter(elstData, version)
	if eit.Count() != 1 {
		t.Fatalf("elst entry count = %d, want 1 (no creation times, so fallback to a single edit)", eit.Count())
	}
	ee, _ := eit.Next()
	if ee.SegmentDuration != 2*duration {
		t.Errorf("fallback elst segment_duration = %d, want %d (summed mdhd duration)", ee.SegmentDuration, 2*duration)
	}
}

// findElstVersion walks data looking for an elst box and returns its version field.
func findElstVersion(r *bmff.Reader) uint8 {
	for r.Next() {
		if r.Type() == bmff.TypeElst {
			return r.Version()
		}
		if bmff.IsContainerBox(r.Type()) {
			r.Enter()
			if v := findElstVersion(r); v != 0 {
				r.Exit()
				return v
			}
			r.Exit()
		}
	}
	return 0
}
