package merge

import (
	"log/slog"
	"math"
)

// minGapSeconds is the smallest net gap between two files' wall-clock creation times that is
// worth representing as an edit-list pause; smaller gaps are almost certainly clock jitter or
// rounding in the source recorder rather than a real pause in capture.
const minGapSeconds = 1.0

// computeGapsAndEditLists derives, for every non-skip track, an edit list that alternates gap
// and media entries at every file boundary where a wall-clock gap was detected. If no file in
// the set carries a usable creation time, or no gap exceeds the threshold, tracks are left with
// empty ElstEntries and the rewriter falls back to a single default edit covering the whole
// track (see elstEntriesOrFallback).
func computeGapsAndEditLists(d *Descriptor) {
	slog.Debug("computing gaps and edit lists", "files", len(d.FileCreationTimes))

	hasTimestamps := false
	for _, t := range d.FileCreationTimes {
		if t != nil {
			hasTimestamps = true
			break
		}
	}
	if !hasTimestamps {
		slog.Debug("no timestamps available, skipping gap computation")
		return
	}

	gaps := make([]float64, 0, len(d.FileCreationTimes)-1)
	for i := 1; i < len(d.FileCreationTimes); i++ {
		gaps = append(gaps, computeGapDuration(d, i-1, i))
	}

	hasGaps := false
	for _, g := range gaps {
		if g > 0 {
			hasGaps = true
			break
		}
	}
	if !hasGaps {
		slog.Debug("no gaps detected, using default edit list behavior")
		return
	}

	for trackIndex, track := range d.Tracks {
		slog.Debug("processing track", "track", trackIndex, "handler", string(track.HandlerType[:]), "skip", track.Skip)
		if track.Skip {
			continue
		}

		track.ElstEntries = track.ElstEntries[:0]
		var cumulativeMediaTime int64

		for fileIndex := range d.FileCreationTimes {
			if fileIndex > 0 {
				gap := gaps[fileIndex-1]
				if gap > 0 {
					gapTimescale := uint64(math.Round(gap * float64(d.MoovMvhdTimescale)))
					track.ElstEntries = append(track.ElstEntries, EditListEntry{
						SegmentDuration: gapTimescale,
						MediaTime:       -1,
						MediaRateInt:    1,
						MediaRateFrac:   0,
					})
					slog.Debug("added gap", "seconds", gap, "before_file", fileIndex, "after_file", fileIndex-1)
				}
			}

			fileDuration := fallbackFileDuration(d, trackIndex, fileIndex)
			if fileDuration > 0 {
				durationTimescale := uint64(math.Round(fileDuration * float64(d.MoovMvhdTimescale)))
				track.ElstEntries = append(track.ElstEntries, EditListEntry{
					SegmentDuration: durationTimescale,
					MediaTime:       cumulativeMediaTime,
					MediaRateInt:    1,
					MediaRateFrac:   0,
				})
				if track.MdhdTimescale > 0 {
					cumulativeMediaTime += int64(math.Round(fileDuration * float64(track.MdhdTimescale)))
				}
			}
		}

		track.ElstSegmentDuration = 0
		for _, e := range track.ElstEntries {
			track.ElstSegmentDuration += e.SegmentDuration
		}

		if d.MoovMvhdTimescale > 0 && track.MdhdTimescale > 0 {
			totalSeconds := float64(track.ElstSegmentDuration) / float64(d.MoovMvhdTimescale)
			track.TkhdDuration = uint64(math.Round(totalSeconds * float64(track.MdhdTimescale)))
		} else {
			track.TkhdDuration = track.ElstSegmentDuration
		}
	}

	if len(d.Tracks) > 0 {
		first := d.Tracks[0]
		if !first.Skip && len(first.ElstEntries) > 0 {
			d.MoovMvhdDuration = first.ElstSegmentDuration
		}
	}
}

// fallbackFileDuration returns the per-track, per-file duration in seconds, falling back to
// the whole-file duration (from the file's first track) when a track has no recorded duration
// for this file index.
func fallbackFileDuration(d *Descriptor, trackIndex, fileIndex int) float64 {
	if trackIndex < len(d.TrackFileDurations) && fileIndex < len(d.TrackFileDurations[trackIndex]) {
		if v := d.TrackFileDurations[trackIndex][fileIndex]; v != 0 {
			return v
		}
	}
	if fileIndex < len(d.FileDurations) {
		return d.FileDurations[fileIndex]
	}
	return 0
}

// computeGapDuration estimates the wall-clock pause between the end of prevFileIndex's
// recording and the start of currentFileIndex's, using each file's OS creation time minus the
// previous file's own media duration. Gaps at or below minGapSeconds are treated as noise.
func computeGapDuration(d *Descriptor, prevFileIndex, currentFileIndex int) float64 {
	prevTime := d.FileCreationTimes[prevFileIndex]
	currentTime := d.FileCreationTimes[currentFileIndex]
	if prevTime == nil || currentTime == nil {
		return 0
	}
	gap := currentTime.Sub(*prevTime)
	if gap < 0 {
		return 0
	}
	gapSeconds := gap.Seconds()
	prevDuration := d.FileDurations[prevFileIndex]

	slog.Debug("file ended after creation", "file", prevFileIndex, "seconds", prevDuration)
	slog.Debug("file created after previous", "file", currentFileIndex, "seconds", gapSeconds, "previous", prevFileIndex)

	netGap := gapSeconds - prevDuration
	slog.Debug("net gap", "seconds", netGap)

	if netGap > minGapSeconds {
		return netGap
	}
	return 0
}
