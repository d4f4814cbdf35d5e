package bmff

import "io"

// ReadBoxHeader reads one box header (type, total size, and header size) from r.
// A size of 1 signals a 64-bit extended size, consuming an extra 8 bytes. A size of 0 means
// "this box extends to the end of its container" and is returned as-is: only the caller knows
// where that container ends, so resolving it is the caller's job.
func ReadBoxHeader(r io.Reader) (t BoxType, size uint64, headerSize int, err error) {
	var hdr [16]byte
	if _, err = io.ReadFull(r, hdr[:8]); err != nil {
		return
	}
	size = uint64(be.Uint32(hdr[:4]))
	copy(t[:], hdr[4:8])
	headerSize = 8
	if size == 1 {
		if _, err = io.ReadFull(r, hdr[8:16]); err != nil {
			return
		}
		size = be.Uint64(hdr[8:16])
		headerSize = 16
	}
	return
}
