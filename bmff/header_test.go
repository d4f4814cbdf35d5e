package bmff_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/tetsuo/mp4merge/bmff"
)

func TestReadBoxHeader_Normal(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(16))
	buf.WriteString("free")
	buf.Write(make([]byte, 8))

	ty, size, headerSize, err := bmff.ReadBoxHeader(&buf)
	if err != nil {
		t.Fatalf("ReadBoxHeader: %v", err)
	}
	if ty != bmff.TypeFree {
		t.Errorf("type = %s, want free", ty)
	}
	if size != 16 {
		t.Errorf("size = %d, want 16", size)
	}
	if headerSize != 8 {
		t.Errorf("headerSize = %d, want 8", headerSize)
	}
}

func TestReadBoxHeader_ExtendedSize(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(1)) // extended-size sentinel
	buf.WriteString("mdat")
	binary.Write(&buf, binary.BigEndian, uint64(1<<33))

	ty, size, headerSize, err := bmff.ReadBoxHeader(&buf)
	if err != nil {
		t.Fatalf("ReadBoxHeader: %v", err)
	}
	if ty != bmff.TypeMdat {
		t.Errorf("type = %s, want mdat", ty)
	}
	if size != 1<<33 {
		t.Errorf("size = %d, want %d", size, uint64(1)<<33)
	}
	if headerSize != 16 {
		t.Errorf("headerSize = %d, want 16", headerSize)
	}
}

func TestReadBoxHeader_Truncated(t *testing.T) {
	buf := bytes.NewReader([]byte{0, 0, 0, 8, 'f'})
	if _, _, _, err := bmff.ReadBoxHeader(buf); err == nil {
		t.Fatal("expected an error reading a truncated header")
	} else if err != io.ErrUnexpectedEOF {
		t.Errorf("error = %v, want io.ErrUnexpectedEOF", err)
	}
}
