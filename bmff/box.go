// Package bmff implements encoding and decoding of ISO Base Media File Format (ISOBMFF) boxes.
package bmff

// BoxType is a 4-byte box type identifier.
type BoxType [4]byte

func (t BoxType) String() string {
	return string(t[:])
}

// Known box types.
var (
	TypeFtyp = BoxType{'f', 't', 'y', 'p'}
	TypeStyp = BoxType{'s', 't', 'y', 'p'} // Segment type box (used in fragmented MP4)
	TypeMoov = BoxType{'m', 'o', 'o', 'v'}
	TypeMvhd = BoxType{'m', 'v', 'h', 'd'}
	TypeTrak = BoxType{'t', 'r', 'a', 'k'}
	TypeTkhd = BoxType{'t', 'k', 'h', 'd'}
	TypeTref = BoxType{'t', 'r', 'e', 'f'}
	TypeTrgr = BoxType{'t', 'r', 'g', 'r'}
	TypeEdts = BoxType{'e', 'd', 't', 's'}
	TypeElst = BoxType{'e', 'l', 's', 't'}
	TypeMdia = BoxType{'m', 'd', 'i', 'a'}
	TypeMdhd = BoxType{'m', 'd', 'h', 'd'}
	TypeHdlr = BoxType{'h', 'd', 'l', 'r'}
	TypeElng = BoxType{'e', 'l', 'n', 'g'}
	TypeMinf = BoxType{'m', 'i', 'n', 'f'}
	TypeTmcd = BoxType{'t', 'm', 'c', 'd'} // Timecode sample entry (handler "tmcd")
	TypeVmhd = BoxType{'v', 'm', 'h', 'd'}
	TypeSmhd = BoxType{'s', 'm', 'h', 'd'}
	TypeHmhd = BoxType{'h', 'm', 'h', 'd'}
	TypeSthd = BoxType{'s', 't', 'h', 'd'}
	TypeNmhd = BoxType{'n', 'm', 'h', 'd'}
	TypeDinf = BoxType{'d', 'i', 'n', 'f'}
	TypeDref = BoxType{'d', 'r', 'e', 'f'}
	TypeStbl = BoxType{'s', 't', 'b', 'l'}
	TypeStsd = BoxType{'s', 't', 's', 'd'}
	TypeStts = BoxType{'s', 't', 't', 's'}
	TypeCtts = BoxType{'c', 't', 't', 's'}
	TypeCslg = BoxType{'c', 's', 'l', 'g'}
	TypeStsc = BoxType{'s', 't', 's', 'c'}
	TypeStsz = BoxType{'s', 't', 's', 'z'}
	TypeStz2 = BoxType{'s', 't', 'z', '2'}
	TypeStco = BoxType{'s', 't', 'c', 'o'}
	TypeCo64 = BoxType{'c', 'o', '6', '4'}
	TypeStss = BoxType{'s', 't', 's', 's'}
	TypeStsh = BoxType{'s', 't', 's', 'h'}
	TypePadb = BoxType{'p', 'a', 'd', 'b'}
	TypeStdp = BoxType{'s', 't', 'd', 'p'}
	TypeSdtp = BoxType{'s', 'd', 't', 'p'}
	TypeSbgp = BoxType{'s', 'b', 'g', 'p'}
	TypeSgpd = BoxType{'s', 'g', 'p', 'd'}
	TypeSubs = BoxType{'s', 'u', 'b', 's'}
	TypeSaiz = BoxType{'s', 'a', 'i', 'z'}
	TypeSaio = BoxType{'s', 'a', 'i', 'o'}
	// Fragment movie boxes
	TypeMvex = BoxType{'m', 'v', 'e', 'x'}
	TypeMehd = BoxType{'m', 'e', 'h', 'd'}
	TypeTrex = BoxType{'t', 'r', 'e', 'x'}
	TypeLeva = BoxType{'l', 'e', 'v', 'a'}
	TypeMoof = BoxType{'m', 'o', 'o', 'f'}
	TypeMfhd = BoxType{'m', 'f', 'h', 'd'}
	TypeTraf = BoxType{'t', 'r', 'a', 'f'}
	TypeTfhd = BoxType{'t', 'f', 'h', 'd'}
	TypeTfdt = BoxType{'t', 'f', 'd', 't'}
	TypeTrun = BoxType{'t', 'r', 'u', 'n'}
	TypeSidx = BoxType{'s', 'i', 'd', 'x'} // Segment index box
	TypeEmsg = BoxType{'e', 'm', 's', 'g'} // Event message box
	// Metadata boxes
	TypeMeta = BoxType{'m', 'e', 't', 'a'}
	TypeUdta = BoxType{'u', 'd', 't', 'a'}
	// Data boxes
	TypeMdat = BoxType{'m', 'd', 'a', 't'}
	TypeFree = BoxType{'f', 'r', 'e', 'e'}
	TypeSkip = BoxType{'s', 'k', 'i', 'p'}
	// Sample entry boxes
	TypeAvc1 = BoxType{'a', 'v', 'c', '1'}
	TypeAvcC = BoxType{'a', 'v', 'c', 'C'}
	TypeBtrt = BoxType{'b', 't', 'r', 't'} // MPEG-4 Bit rate box
	TypePasp = BoxType{'p', 'a', 's', 'p'} // Pixel aspect ratio box
	TypeMp4a = BoxType{'m', 'p', '4', 'a'}
	TypeEsds = BoxType{'e', 's', 'd', 's'}
)

// fullBoxTypes holds every box type this package knows to carry a version/flags header.
var fullBoxTypes = map[BoxType]bool{
	TypeMvhd: true, TypeTkhd: true, TypeMdhd: true, TypeHdlr: true,
	TypeVmhd: true, TypeSmhd: true, TypeDref: true, TypeStsd: true,
	TypeStts: true, TypeCtts: true, TypeStsc: true, TypeStsz: true,
	TypeStco: true, TypeCo64: true, TypeStss: true, TypeElst: true,
	TypeMeta: true, TypeEsds: true, TypeMehd: true, TypeTrex: true,
	TypeMfhd: true, TypeTfhd: true, TypeTfdt: true, TypeTrun: true,
	TypeSbgp: true, TypeSgpd: true, TypeSaiz: true, TypeSaio: true,
	TypeCslg: true, TypeSdtp: true, TypeSidx: true, TypeEmsg: true,
}

// IsFullBox returns true if the box type has version and flags fields.
func IsFullBox(t BoxType) bool {
	return fullBoxTypes[t]
}

// containerBoxTypes holds every box type this package recurses into on both read and write.
// stsd is deliberately excluded here: on write it is always copied verbatim, and only the read
// policy (IsContainerBoxForRead) recurses into its sample entries.
var containerBoxTypes = map[BoxType]bool{
	TypeMoov: true, TypeTrak: true, TypeEdts: true, TypeMdia: true,
	TypeMinf: true, TypeDinf: true, TypeStbl: true, TypeUdta: true,
	TypeMeta: true, TypeMvex: true, TypeMoof: true, TypeTraf: true,
	TypeTref: true, TypeTrgr: true,
}

// IsContainerBox returns true if the box type is a container that holds child boxes,
// on both read and write.
func IsContainerBox(t BoxType) bool {
	return containerBoxTypes[t]
}

// IsContainerBoxForRead returns true for everything IsContainerBox does, plus stsd.
// stsd's own header (version/flags/entry_count) must be read to reach entries like
// the "tmcd" handler sniff, so the structural pass recurses into it; on write it is
// never rebuilt, only copied verbatim byte-for-byte.
func IsContainerBoxForRead(t BoxType) bool {
	return t == TypeStsd || containerBoxTypes[t]
}
