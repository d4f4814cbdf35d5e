package bmff

import "io"

// ScanEntry represents a top-level box discovered by the Scanner.
type ScanEntry struct {
	Type       BoxType
	Size       int64 // total box size including header
	Offset     int64 // byte offset from start of stream
	HeaderSize int   // header size (8 or 16 bytes)
}

// DataSize returns the size of the box data (excluding the header).
func (e ScanEntry) DataSize() int64 {
	return e.Size - int64(e.HeaderSize)
}

// Scanner reads top-level box headers from an io.ReadSeeker without loading box contents into
// memory, delegating header parsing to ReadBoxHeader and handling only what ReadBoxHeader can't:
// resolving a size-0 ("extends to end of stream") box against the stream's actual length.
type Scanner struct {
	rs    io.ReadSeeker
	entry ScanEntry
	err   error
	pos   int64 // current position in stream
}

// NewScanner creates a Scanner that reads box headers from rs.
func NewScanner(rs io.ReadSeeker) Scanner {
	return Scanner{rs: rs}
}

// Next advances to the next top-level box. Returns false when there
// are no more boxes or an error occurs. Check Err() after the loop.
func (s *Scanner) Next() bool {
	boxStart := s.pos
	t, size, headerSize, err := ReadBoxHeader(s.rs)
	if err != nil {
		if err != io.EOF && err != io.ErrUnexpectedEOF {
			s.err = err
		}
		return false
	}

	if size == 0 {
		cur, err := s.rs.Seek(0, io.SeekCurrent)
		if err != nil {
			s.err = err
			return false
		}
		end, err := s.rs.Seek(0, io.SeekEnd)
		if err != nil {
			s.err = err
			return false
		}
		size = uint64(end - boxStart)
		if _, err := s.rs.Seek(cur, io.SeekStart); err != nil {
			s.err = err
			return false
		}
	}

	s.entry = ScanEntry{
		Type:       t,
		Size:       int64(size),
		Offset:     boxStart,
		HeaderSize: headerSize,
	}

	dataSize := int64(size) - int64(headerSize)
	if dataSize > 0 {
		if _, err := s.rs.Seek(dataSize, io.SeekCurrent); err != nil {
			s.err = err
			return false
		}
	}
	s.pos = boxStart + int64(size)

	return true
}

// Entry returns the current box entry. Only valid after Next returns true.
func (s *Scanner) Entry() ScanEntry {
	return s.entry
}

// Err returns the first non-EOF error encountered by the Scanner.
func (s *Scanner) Err() error {
	return s.err
}

// ReadBody reads the current box's data (excluding header) into buf.
// buf must be exactly DataSize() bytes. The scanner seeks to the data
// position, reads, then seeks back so that subsequent Next calls work correctly.
func (s *Scanner) ReadBody(buf []byte) error {
	dataOffset := s.entry.Offset + int64(s.entry.HeaderSize)

	// Save current position (which is past this box)
	saved := s.pos

	if _, err := s.rs.Seek(dataOffset, io.SeekStart); err != nil {
		return err
	}
	if _, err := io.ReadFull(s.rs, buf); err != nil {
		return err
	}

	// Restore position
	if _, err := s.rs.Seek(saved, io.SeekStart); err != nil {
		return err
	}
	return nil
}

// MdatSpan locates one top-level mdat box's payload region within a stream: byte offset and
// length of its data, excluding the header.
type MdatSpan struct {
	Offset     int64
	ByteLength int64
}

// FindMdatAndMoov scans rs for its first top-level mdat and moov boxes, stopping as soon as both
// have been found rather than exposing a fully general top-level iterator to every caller: the
// only thing a merge ever needs from a source file's top level is exactly these two boxes (see
// merge.scanTopLevel, the sole caller). Any ftyp/free/udta/etc. boxes encountered along the way
// are skipped without being read into memory.
func FindMdatAndMoov(rs io.ReadSeeker) (mdat MdatSpan, hasMdat bool, moov []byte, err error) {
	sc := NewScanner(rs)
	for sc.Next() {
		e := sc.Entry()
		switch e.Type {
		case TypeMdat:
			if !hasMdat {
				mdat = MdatSpan{Offset: e.Offset + int64(e.HeaderSize), ByteLength: e.DataSize()}
				hasMdat = true
			}
		case TypeMoov:
			if moov == nil {
				moov = make([]byte, e.DataSize())
				if err = sc.ReadBody(moov); err != nil {
					return MdatSpan{}, false, nil, err
				}
			}
		}
		if hasMdat && moov != nil {
			break
		}
	}
	if err = sc.Err(); err != nil {
		return MdatSpan{}, false, nil, err
	}
	return mdat, hasMdat, moov, nil
}
