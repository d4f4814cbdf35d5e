package bmff_test

import (
	"testing"

	"github.com/tetsuo/mp4merge/bmff"
)

func TestBoxTypeString(t *testing.T) {
	if got := bmff.TypeMoov.String(); got != "moov" {
		t.Fatalf("TypeMoov.String() = %q, want %q", got, "moov")
	}
}

func TestIsFullBox(t *testing.T) {
	full := []bmff.BoxType{bmff.TypeMvhd, bmff.TypeTkhd, bmff.TypeMdhd, bmff.TypeStsz, bmff.TypeCo64, bmff.TypeElst}
	for _, ty := range full {
		if !bmff.IsFullBox(ty) {
			t.Errorf("IsFullBox(%s) = false, want true", ty)
		}
	}

	notFull := []bmff.BoxType{bmff.TypeMoov, bmff.TypeTrak, bmff.TypeMdat, bmff.TypeFtyp, bmff.TypeFree}
	for _, ty := range notFull {
		if bmff.IsFullBox(ty) {
			t.Errorf("IsFullBox(%s) = true, want false", ty)
		}
	}
}

func TestIsContainerBox(t *testing.T) {
	containers := []bmff.BoxType{bmff.TypeMoov, bmff.TypeTrak, bmff.TypeEdts, bmff.TypeMdia, bmff.TypeMinf, bmff.TypeStbl}
	for _, ty := range containers {
		if !bmff.IsContainerBox(ty) {
			t.Errorf("IsContainerBox(%s) = false, want true", ty)
		}
		if !bmff.IsContainerBoxForRead(ty) {
			t.Errorf("IsContainerBoxForRead(%s) = false, want true", ty)
		}
	}

	// stsd is only a container on read, since its children (codec sample entries)
	// are always copied verbatim rather than rebuilt on write.
	if bmff.IsContainerBox(bmff.TypeStsd) {
		t.Error("IsContainerBox(stsd) = true, want false")
	}
	if !bmff.IsContainerBoxForRead(bmff.TypeStsd) {
		t.Error("IsContainerBoxForRead(stsd) = false, want true")
	}

	leaves := []bmff.BoxType{bmff.TypeMvhd, bmff.TypeStts, bmff.TypeStco, bmff.TypeMdat, bmff.TypeFree}
	for _, ty := range leaves {
		if bmff.IsContainerBox(ty) {
			t.Errorf("IsContainerBox(%s) = true, want false", ty)
		}
		if bmff.IsContainerBoxForRead(ty) {
			t.Errorf("IsContainerBoxForRead(%s) = true, want false", ty)
		}
	}
}
