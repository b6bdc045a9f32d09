package stub

import (
	"testing"
)

// buildSliderMacho lays out a 64-bit little-endian Mach-O shaped like a
// runtime stub: an empty placeholder segment with one section sits at file
// offset 0x1000, directly before 0x100 bytes of link-edit data (0xaa
// markers) that every offset-bearing load command points into.
func buildSliderMacho() []byte {
	buf := make([]byte, 0x1100)
	writeAt(buf, 0, le, []uint32{
		machMagic64, 0x01000007, 3, 2, 7, 464, 0, 0,
	})
	writeAt(buf, 32, le, &machSegment64{
		Cmd: lcSegment64, CmdSize: 72, SegName: segname16("__TEXT"),
		VMAddr: 0x100000000, VMSize: 0x1000, FileOff: 0, FileSize: 0x1000,
		MaxProt: 5, InitProt: 5,
	})
	writeAt(buf, 104, le, &machSegment64{
		Cmd: lcSegment64, CmdSize: 152, SegName: segname16("__FROZEN"),
		VMAddr: 0x100001000, VMSize: 0, FileOff: 0x1000, FileSize: 0,
		MaxProt: 3, InitProt: 3, NSects: 1,
	})
	writeAt(buf, 176, le,
		segname16("__frozen"), segname16("__FROZEN"),
		uint64(0x100001000), uint64(0), // addr, size
		uint32(0x1000), uint32(0), // offset, align
		uint32(0), uint32(0), uint32(0), // reloff, nreloc, flags
		uint32(0), uint32(0), uint32(0))
	writeAt(buf, 256, le, &machSegment64{
		Cmd: lcSegment64, CmdSize: 72, SegName: segname16("__LINKEDIT"),
		VMAddr: 0x100002000, VMSize: 0x100, FileOff: 0x1000, FileSize: 0x100,
		MaxProt: 1, InitProt: 1,
	})
	writeAt(buf, 328, le, &machSymtab{
		Cmd: lcSymtab, CmdSize: 24,
		SymOff: 0x1000, NSyms: 2, StrOff: 0x1040, StrSize: 0x20,
	})
	writeAt(buf, 352, le, []uint32{
		lcDyldInfo | lcReqDyld, 48,
		0x1000, 8, // rebase
		0x1008, 8, // bind
		0, 0, // weak bind
		0x1010, 8, // lazy bind
		0x1018, 8, // export
	})
	dysymtab := make([]uint32, 20)
	dysymtab[0] = lcDysymtab
	dysymtab[1] = 80
	dysymtab[14] = 0x1060 // indirectsymoff
	dysymtab[15] = 4
	dysymtab[16] = 0x1070 // extreloff, stays put
	dysymtab[17] = 2
	writeAt(buf, 400, le, dysymtab)
	writeAt(buf, 480, le, []uint32{lcFunctionStarts, 16, 0x1080, 8})
	for i := 0x1000; i < 0x1100; i++ {
		buf[i] = 0xaa
	}
	return buf
}

func TestHasSegment(t *testing.T) {
	img, err := Open(buildSliderMacho())
	if err != nil {
		t.Fatal(err)
	}
	if !img.HasSegment("__FROZEN") {
		t.Error("placeholder segment not found")
	}
	if img.HasSegment("__NOPE") {
		t.Error("found a segment that does not exist")
	}
	pe, _ := Open(buildPE("blobinfo", 64, 0x8664))
	if pe.HasSegment("__FROZEN") {
		t.Error("HasSegment matched a non-Mach-O image")
	}
}

func TestSlideForInsert(t *testing.T) {
	img, err := Open(buildSliderMacho())
	if err != nil {
		t.Fatal(err)
	}
	insertOff, err := img.SlideForInsert("__FROZEN", 0x200)
	if err != nil {
		t.Fatal(err)
	}
	if insertOff != 0x1000 {
		t.Fatalf("insert offset: %#x", insertOff)
	}
	data := img.Data
	if len(data) != 0x1300 {
		t.Fatalf("grown size: %#x", len(data))
	}
	for i := 0x1000; i < 0x1200; i++ {
		if data[i] != 0 {
			t.Fatalf("inserted gap not zeroed at %#x", i)
		}
	}
	for i := 0x1200; i < 0x1300; i++ {
		if data[i] != 0xaa {
			t.Fatalf("link-edit data not moved intact at %#x", i)
		}
	}

	// __TEXT is untouched.
	if le.Uint64(data[32+24:]) != 0x100000000 || le.Uint64(data[32+40:]) != 0 {
		t.Error("__TEXT moved")
	}
	// The placeholder grows in place.
	if got := le.Uint64(data[104+32:]); got != 0x200 {
		t.Errorf("placeholder vmsize: %#x", got)
	}
	if got := le.Uint64(data[104+40:]); got != 0x1000 {
		t.Errorf("placeholder fileoff: %#x", got)
	}
	if got := le.Uint64(data[104+48:]); got != 0x200 {
		t.Errorf("placeholder filesize: %#x", got)
	}
	if got := le.Uint64(data[176+40:]); got != 0x200 {
		t.Errorf("placeholder section size: %#x", got)
	}
	// __LINKEDIT slides in both address space and the file.
	if got := le.Uint64(data[256+24:]); got != 0x100002200 {
		t.Errorf("linkedit vmaddr: %#x", got)
	}
	if got := le.Uint64(data[256+40:]); got != 0x1200 {
		t.Errorf("linkedit fileoff: %#x", got)
	}
	if got := le.Uint64(data[256+32:]); got != 0x100 {
		t.Errorf("linkedit vmsize: %#x", got)
	}
	// Symbol table offsets slide, counts do not.
	if got := le.Uint32(data[328+8:]); got != 0x1200 {
		t.Errorf("symoff: %#x", got)
	}
	if got := le.Uint32(data[328+12:]); got != 2 {
		t.Errorf("nsyms: %#x", got)
	}
	if got := le.Uint32(data[328+16:]); got != 0x1240 {
		t.Errorf("stroff: %#x", got)
	}
	// dyld info: everything but weak bind slides.
	for _, c := range []struct {
		off  int
		want uint32
	}{
		{352 + 8, 0x1200},  // rebase
		{352 + 16, 0x1208}, // bind
		{352 + 24, 0},      // weak bind
		{352 + 32, 0x1210}, // lazy bind
		{352 + 40, 0x1218}, // export
	} {
		if got := le.Uint32(data[c.off:]); got != c.want {
			t.Errorf("dyld info offset at %d: %#x != %#x", c.off, got, c.want)
		}
	}
	// dysymtab: only the indirect symbol table moves.
	if got := le.Uint32(data[400+56:]); got != 0x1260 {
		t.Errorf("indirectsymoff: %#x", got)
	}
	if got := le.Uint32(data[400+64:]); got != 0x1070 {
		t.Errorf("extreloff: %#x", got)
	}
	if got := le.Uint32(data[480+8:]); got != 0x1280 {
		t.Errorf("function starts dataoff: %#x", got)
	}
	if img.Slices[0].Size != 0x1300 {
		t.Errorf("slice size: %#x", img.Slices[0].Size)
	}
}

func TestSlideMissingSegment(t *testing.T) {
	img, err := Open(buildMacho64("blobinfo"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := img.SlideForInsert("__FROZEN", 0x200); err == nil {
		t.Fatal("expected an error without the placeholder segment")
	}
}

func TestSlideRejectsFat(t *testing.T) {
	fat := buildFat([]uint32{0x01000007}, [][]byte{buildSliderMacho()})
	img, err := Open(fat)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := img.SlideForInsert("__FROZEN", 0x200); err == nil {
		t.Fatal("expected an error for a universal binary")
	}
}

func TestSlideRejects32(t *testing.T) {
	img, err := Open(buildMacho32("blobinfo"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := img.SlideForInsert("__TEXT", 0x200); err == nil {
		t.Fatal("expected an error for a 32-bit image")
	}
}
