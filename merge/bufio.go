package merge

import (
	"bufio"
	"io"
	"os"
)

const (
	readBufferSize  = 16 * 1024
	writeBufferSize = 64 * 1024
)

// bufReadSeeker wraps an *os.File with a read buffer sized to match the original's
// BufReader::with_capacity(16*1024). Seeking discards the buffer and repositions the
// underlying file, translating SeekCurrent against the buffer's unread bytes so the
// logical position seen by callers never drifts from what they last Read.
type bufReadSeeker struct {
	f  *os.File
	br *bufio.Reader
}

func newBufReadSeeker(f *os.File) *bufReadSeeker {
	return &bufReadSeeker{f: f, br: bufio.NewReaderSize(f, readBufferSize)}
}

func (b *bufReadSeeker) Read(p []byte) (int, error) {
	return b.br.Read(p)
}

func (b *bufReadSeeker) Seek(offset int64, whence int) (int64, error) {
	if whence == io.SeekCurrent {
		cur, err := b.f.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, err
		}
		offset = cur - int64(b.br.Buffered()) + offset
		whence = io.SeekStart
	}
	pos, err := b.f.Seek(offset, whence)
	if err != nil {
		return 0, err
	}
	b.br.Reset(b.f)
	return pos, nil
}

// bufWriteSeeker wraps an *os.File with a write buffer sized to match the original's
// BufWriter::with_capacity(64*1024). Seek flushes any buffered bytes before delegating,
// mirroring how Rust's std::io::BufWriter implements Seek for an inner Write+Seek type.
type bufWriteSeeker struct {
	f  *os.File
	bw *bufio.Writer
}

func newBufWriteSeeker(f *os.File) *bufWriteSeeker {
	return &bufWriteSeeker{f: f, bw: bufio.NewWriterSize(f, writeBufferSize)}
}

func (b *bufWriteSeeker) Write(p []byte) (int, error) {
	return b.bw.Write(p)
}

func (b *bufWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	if err := b.bw.Flush(); err != nil {
		return 0, err
	}
	return b.f.Seek(offset, whence)
}

func (b *bufWriteSeeker) Flush() error {
	return b.bw.Flush()
}
