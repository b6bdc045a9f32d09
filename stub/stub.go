// Package stub detects the container format of a stub executable and
// patches locator headers over its exported symbols. Images are edited in
// place; nothing here understands the blob contents.
package stub

import (
	"encoding/binary"
	"os"
	"sort"

	"github.com/pkg/errors"
)

var UnknownMagic = errors.New("Could not identify file magic.")

var le = binary.LittleEndian

type Format int

const (
	PE Format = iota + 1
	ELF
	MachO
	FatMachO
)

func (f Format) String() string {
	switch f {
	case PE:
		return "pe"
	case ELF:
		return "elf"
	case MachO:
		return "mach-o"
	case FatMachO:
		return "mach-o universal"
	}
	return "unknown"
}

// Slice is one architecture of the image. Single-arch formats carry exactly
// one slice spanning the whole file; universal Mach-O carries one per fat
// arch entry. Machine holds the format's own machine id (COFF machine,
// e_machine, or cputype).
type Slice struct {
	Format  Format
	Bits    int
	Offset  uint64
	Size    uint64
	Machine uint32
}

func (s *Slice) arm64() bool {
	switch s.Format {
	case ELF:
		return s.Machine == 183 // EM_AARCH64
	case MachO:
		return s.Machine == cpuTypeArm64
	case PE:
		return s.Machine == 0xaa64
	}
	return false
}

// Image is a stub binary held fully in memory so symbols can be patched in
// place before the result is written out once.
type Image struct {
	Data   []byte
	Format Format
	Slices []Slice
}

// Open classifies stub bytes by magic. The returned Image aliases data.
func Open(data []byte) (*Image, error) {
	if MatchElf(data) {
		return parseElf(data)
	} else if MatchFat(data) {
		return parseFat(data)
	} else if MatchMachO(data) {
		return parseMachO(data)
	} else if MatchPE(data) {
		return parsePE(data)
	}
	return nil, errors.WithStack(UnknownMagic)
}

// Bitnesses returns the pointer widths present in the image, widest first.
func (img *Image) Bitnesses() []int {
	var bits []int
	for i := range img.Slices {
		b := img.Slices[i].Bits
		seen := false
		for _, x := range bits {
			if x == b {
				seen = true
				break
			}
		}
		if !seen {
			bits = append(bits, b)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(bits)))
	return bits
}

// DefaultBlobAlign picks the blob alignment for this stub. PE stubs read
// the blob instead of mapping it, arm64 pages are 16K, everything else maps
// at the host page size.
func (img *Image) DefaultBlobAlign() uint64 {
	if img.Format == PE {
		return 32
	}
	for i := range img.Slices {
		if img.Slices[i].arm64() {
			return 16384
		}
	}
	return uint64(os.Getpagesize())
}

// symbolOffsets locates every file offset backing the named symbol in the
// slices of the given pointer width.
func (img *Image) symbolOffsets(name string, bits int) ([]uint64, error) {
	var offs []uint64
	for i := range img.Slices {
		s := &img.Slices[i]
		if s.Bits != bits {
			continue
		}
		switch s.Format {
		case ELF:
			elfOffs, err := elfSymbolOffsets(img.Data, name)
			if err != nil {
				return nil, err
			}
			offs = append(offs, elfOffs...)
		case PE:
			off, ok, err := peExportOffset(img.Data, name)
			if err != nil {
				return nil, err
			}
			if ok {
				offs = append(offs, off)
			}
		case MachO:
			if s.Offset+s.Size > uint64(len(img.Data)) {
				return nil, errors.New("Slice runs past the end of the file.")
			}
			off, ok, err := machoSymbolOffset(img.Data[s.Offset:s.Offset+s.Size], name)
			if err != nil {
				return nil, err
			}
			if ok {
				offs = append(offs, s.Offset+off)
			}
		}
	}
	return offs, nil
}

// PatchSymbol overwrites the named symbol with value in every slice of the
// given pointer width. It reports whether anything was patched; a missing
// symbol is not an error so the caller can fall back to the legacy trailing
// pointer.
func (img *Image) PatchSymbol(name string, value []byte, bits int) (bool, error) {
	offs, err := img.symbolOffsets(name, bits)
	if err != nil {
		return false, err
	}
	for _, off := range offs {
		if off+uint64(len(value)) > uint64(len(img.Data)) {
			return false, errors.Errorf("Symbol %s at %#x runs past the end of the file.", name, off)
		}
		copy(img.Data[off:], value)
	}
	return len(offs) > 0, nil
}

// FindSymbol reports the first file offset backing the named symbol for one
// pointer width without modifying the image.
func (img *Image) FindSymbol(name string, bits int) (uint64, bool, error) {
	offs, err := img.symbolOffsets(name, bits)
	if err != nil || len(offs) == 0 {
		return 0, false, err
	}
	return offs[0], true, nil
}
