package merge

import (
	"testing"
	"time"
)

// These scenarios mirror spec.md §8's end-to-end scenarios 2, 3, and 6, and the numeric
// expectations exercised by the Rust original's own gap/edit-list unit tests.

func mustTime(seconds int64) *time.Time {
	t := time.Unix(seconds, 0)
	return &t
}

func TestComputeGapsAndEditLists_TwoFilesWithGap(t *testing.T) {
	d := newTestDescriptor(t,
		[]float64{2, 3},       // file durations, seconds
		[]int64{0, 5},         // creation times, seconds
		1000,                  // movie timescale
		[]uint32{48000},       // per-track media timescale
		[][]float64{{2, 3}},   // per-track per-file durations
	)

	computeGapsAndEditLists(d)

	track := d.Tracks[0]
	if got := len(track.ElstEntries); got != 3 {
		t.Fatalf("expected 3 edit-list entries (media, gap, media), got %d", got)
	}

	if track.ElstEntries[0].SegmentDuration != 2000 || track.ElstEntries[0].MediaTime != 0 {
		t.Fatalf("entry 0 = %+v, want {2000, 0}", track.ElstEntries[0])
	}
	if track.ElstEntries[1].SegmentDuration != 3000 || track.ElstEntries[1].MediaTime != -1 {
		t.Fatalf("entry 1 (gap) = %+v, want {3000, -1}", track.ElstEntries[1])
	}
	if track.ElstEntries[2].SegmentDuration != 3000 || track.ElstEntries[2].MediaTime != 96000 {
		t.Fatalf("entry 2 = %+v, want {3000, 96000}", track.ElstEntries[2])
	}

	if track.ElstSegmentDuration != 8000 {
		t.Fatalf("ElstSegmentDuration = %d, want 8000", track.ElstSegmentDuration)
	}
	if track.TkhdDuration != 384000 {
		t.Fatalf("TkhdDuration = %d, want 384000", track.TkhdDuration)
	}
	if d.MoovMvhdDuration != 8000 {
		t.Fatalf("MoovMvhdDuration = %d, want 8000", d.MoovMvhdDuration)
	}
}

func TestComputeGapsAndEditLists_GapBelowThreshold(t *testing.T) {
	d := newTestDescriptor(t,
		[]float64{1, 1},
		[]int64{0, 1}, // one second apart, one second file duration => net gap 0
		1000,
		[]uint32{48000},
		[][]float64{{1, 1}},
	)

	computeGapsAndEditLists(d)

	track := d.Tracks[0]
	if len(track.ElstEntries) != 0 {
		t.Fatalf("expected no synthesized edit list below the gap threshold, got %+v", track.ElstEntries)
	}
}

func TestComputeGapsAndEditLists_NoCreationTimes(t *testing.T) {
	d := newTestDescriptor(t,
		[]float64{2, 3},
		nil,
		1000,
		[]uint32{48000},
		[][]float64{{2, 3}},
	)

	computeGapsAndEditLists(d)

	track := d.Tracks[0]
	if len(track.ElstEntries) != 0 {
		t.Fatalf("expected Descriptor left unchanged with no creation times, got %+v", track.ElstEntries)
	}
}

func TestComputeGapsAndEditLists_DifferentDurationsPerTrack(t *testing.T) {
	d := newTestDescriptor(t,
		[]float64{2, 3}, // legacy fallback (video track's durations)
		[]int64{0, 6},   // 6s apart
		1000,
		[]uint32{48000, 1000}, // video media ts, metadata media ts
		[][]float64{
			{2, 3},     // video per-file durations
			{1.5, 2.5}, // metadata per-file durations
		},
	)

	computeGapsAndEditLists(d)

	video := d.Tracks[0]
	if video.ElstEntries[0].SegmentDuration != 2000 {
		t.Fatalf("video entry 0 duration = %d, want 2000", video.ElstEntries[0].SegmentDuration)
	}
	if video.ElstEntries[2].SegmentDuration != 3000 {
		t.Fatalf("video entry 2 duration = %d, want 3000", video.ElstEntries[2].SegmentDuration)
	}

	meta := d.Tracks[1]
	if meta.ElstEntries[0].SegmentDuration != 1500 {
		t.Fatalf("metadata entry 0 duration = %d, want 1500", meta.ElstEntries[0].SegmentDuration)
	}
	if meta.ElstEntries[2].SegmentDuration != 2500 {
		t.Fatalf("metadata entry 2 duration = %d, want 2500", meta.ElstEntries[2].SegmentDuration)
	}
	if meta.ElstEntries[2].MediaTime != 1500 {
		t.Fatalf("metadata entry 2 media_time = %d, want 1500 (its own 1000 timescale)", meta.ElstEntries[2].MediaTime)
	}
}

func TestComputeGapDuration_NegativeOrMissing(t *testing.T) {
	d := &Descriptor{
		FileCreationTimes: []*time.Time{nil, mustTime(5)},
		FileDurations:     []float64{2, 3},
	}
	if got := computeGapDuration(d, 0, 1); got != 0 {
		t.Fatalf("gap with a nil creation time = %v, want 0", got)
	}

	d2 := &Descriptor{
		FileCreationTimes: []*time.Time{mustTime(5), mustTime(0)},
		FileDurations:     []float64{2, 3},
	}
	if got := computeGapDuration(d2, 0, 1); got != 0 {
		t.Fatalf("gap going backwards in time = %v, want 0", got)
	}
}

// newTestDescriptor builds a Descriptor with the given per-file durations/creation times and a
// track per media timescale in mediaTimescales, skipping any Stco/structural-pass bookkeeping
// irrelevant to the timeline engine.
func newTestDescriptor(t *testing.T, fileDurations []float64, creationSeconds []int64, movieTimescale uint32, mediaTimescales []uint32, perTrackFileDurations [][]float64) *Descriptor {
	t.Helper()

	var creationTimes []*time.Time
	if creationSeconds != nil {
		creationTimes = make([]*time.Time, len(creationSeconds))
		for i, s := range creationSeconds {
			creationTimes[i] = mustTime(s)
		}
	} else {
		creationTimes = make([]*time.Time, len(fileDurations))
	}

	d := &Descriptor{
		MoovMvhdTimescale:  movieTimescale,
		FileCreationTimes:  creationTimes,
		FileDurations:      fileDurations,
		TrackFileDurations: perTrackFileDurations,
	}
	for _, ts := range mediaTimescales {
		d.Tracks = append(d.Tracks, &TrackDesc{MdhdTimescale: ts})
	}
	return d
}
