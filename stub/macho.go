package stub

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	machMagic32 = 0xfeedface
	machMagic64 = 0xfeedfacf
	fatMagic32  = 0xcafebabe
	fatMagic64  = 0xcafebabf

	cpuArchABI64 = 0x01000000
	cpuTypeArm64 = 12 | cpuArchABI64

	lcReqDyld        = 0x80000000
	lcSegment        = 0x1
	lcSymtab         = 0x2
	lcDysymtab       = 0xb
	lcSegment64      = 0x19
	lcDyldInfo       = 0x22
	lcFunctionStarts = 0x26
	lcDataInCode     = 0x29
)

var machoMagics = [][]byte{
	{0xfe, 0xed, 0xfa, 0xce},
	{0xce, 0xfa, 0xed, 0xfe},
	{0xfe, 0xed, 0xfa, 0xcf},
	{0xcf, 0xfa, 0xed, 0xfe},
}

var fatMagics = [][]byte{
	{0xca, 0xfe, 0xba, 0xbe},
	{0xbe, 0xba, 0xfe, 0xca},
	{0xca, 0xfe, 0xba, 0xbf},
	{0xbf, 0xba, 0xfe, 0xca},
}

func MatchMachO(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	for _, check := range machoMagics {
		if bytes.Equal(data[:4], check) {
			return true
		}
	}
	return false
}

func MatchFat(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	for _, check := range fatMagics {
		if bytes.Equal(data[:4], check) {
			return true
		}
	}
	return false
}

// machoInfo reads the byte order and pointer width off a single-arch magic.
func machoInfo(data []byte) (binary.ByteOrder, int, error) {
	if len(data) < 8 {
		return nil, 0, errors.New("Truncated Mach-O header.")
	}
	for _, bo := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		switch bo.Uint32(data) {
		case machMagic32:
			return bo, 32, nil
		case machMagic64:
			return bo, 64, nil
		}
	}
	return nil, 0, errors.WithStack(UnknownMagic)
}

func parseMachO(data []byte) (*Image, error) {
	bo, bits, err := machoInfo(data)
	if err != nil {
		return nil, err
	}
	return &Image{
		Data:   data,
		Format: MachO,
		Slices: []Slice{{
			Format:  MachO,
			Bits:    bits,
			Size:    uint64(len(data)),
			Machine: bo.Uint32(data[4:]),
		}},
	}, nil
}

// parseFat reads the arch table of a universal binary. The table fields are
// big-endian no matter which byte order the magic arrived in, and the
// 64-bit variant widens every field to eight bytes.
func parseFat(data []byte) (*Image, error) {
	if len(data) < 8 {
		return nil, errors.New("Truncated fat header.")
	}
	var entrySize uint64
	switch {
	case binary.BigEndian.Uint32(data) == fatMagic32 || le.Uint32(data) == fatMagic32:
		entrySize = 20
	case binary.BigEndian.Uint32(data) == fatMagic64 || le.Uint32(data) == fatMagic64:
		entrySize = 40
	default:
		return nil, errors.WithStack(UnknownMagic)
	}
	narch := uint64(binary.BigEndian.Uint32(data[4:]))
	img := &Image{Data: data, Format: FatMachO}
	off := uint64(8)
	for i := uint64(0); i < narch; i++ {
		if off+entrySize > uint64(len(data)) {
			return nil, errors.New("Fat arch table is truncated.")
		}
		var cputype, sliceOff, sliceSize uint64
		if entrySize == 40 {
			cputype = binary.BigEndian.Uint64(data[off:])
			sliceOff = binary.BigEndian.Uint64(data[off+16:])
			sliceSize = binary.BigEndian.Uint64(data[off+24:])
		} else {
			cputype = uint64(binary.BigEndian.Uint32(data[off:]))
			sliceOff = uint64(binary.BigEndian.Uint32(data[off+8:]))
			sliceSize = uint64(binary.BigEndian.Uint32(data[off+12:]))
		}
		if sliceOff+sliceSize > uint64(len(data)) {
			return nil, errors.New("Fat slice runs past the end of the file.")
		}
		bits := 32
		if cputype&cpuArchABI64 != 0 {
			bits = 64
		}
		img.Slices = append(img.Slices, Slice{
			Format:  MachO,
			Bits:    bits,
			Offset:  sliceOff,
			Size:    sliceSize,
			Machine: uint32(cputype),
		})
		off += entrySize
	}
	if len(img.Slices) == 0 {
		return nil, errors.New("Fat binary has no arch entries.")
	}
	return img, nil
}

func segName(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// machoSymbolOffset scans the symbol table for "_"+name and maps its address
// to a file offset through the enclosing segment. Offsets are relative to
// data, which must span exactly one arch slice. Debugging stabs and entries
// whose address no segment maps are skipped.
func machoSymbolOffset(data []byte, name string) (uint64, bool, error) {
	bo, bits, err := machoInfo(data)
	if err != nil {
		return 0, false, err
	}
	cmdOff := uint64(28)
	nlistSize := uint64(12)
	if bits == 64 {
		cmdOff += 4
		nlistSize = 16
	}
	ncmds := bo.Uint32(data[16:])

	type segment struct {
		vmaddr, vmsize, fileoff uint64
	}
	var segments []segment
	var symoff, nsyms, stroff, strsize uint64
	haveSymtab := false

	for i := uint32(0); i < ncmds; i++ {
		if cmdOff+8 > uint64(len(data)) {
			return 0, false, errors.New("Load commands run past the end of the file.")
		}
		cmd := bo.Uint32(data[cmdOff:]) &^ lcReqDyld
		cmdSize := uint64(bo.Uint32(data[cmdOff+4:]))
		if cmdSize < 8 || cmdOff+cmdSize > uint64(len(data)) {
			return 0, false, errors.New("Load command size is invalid.")
		}
		switch cmd {
		case lcSegment:
			if cmdSize < 56 {
				return 0, false, errors.New("Segment command is too short.")
			}
			segments = append(segments, segment{
				vmaddr:  uint64(bo.Uint32(data[cmdOff+24:])),
				vmsize:  uint64(bo.Uint32(data[cmdOff+28:])),
				fileoff: uint64(bo.Uint32(data[cmdOff+32:])),
			})
		case lcSegment64:
			if cmdSize < 72 {
				return 0, false, errors.New("Segment command is too short.")
			}
			segments = append(segments, segment{
				vmaddr:  bo.Uint64(data[cmdOff+24:]),
				vmsize:  bo.Uint64(data[cmdOff+32:]),
				fileoff: bo.Uint64(data[cmdOff+40:]),
			})
		case lcSymtab:
			if cmdSize < 24 {
				return 0, false, errors.New("Symtab command is too short.")
			}
			symoff = uint64(bo.Uint32(data[cmdOff+8:]))
			nsyms = uint64(bo.Uint32(data[cmdOff+12:]))
			stroff = uint64(bo.Uint32(data[cmdOff+16:]))
			strsize = uint64(bo.Uint32(data[cmdOff+20:]))
			haveSymtab = true
		}
		cmdOff += cmdSize
	}
	if !haveSymtab {
		return 0, false, nil
	}
	if symoff+nsyms*nlistSize > uint64(len(data)) || stroff+strsize > uint64(len(data)) {
		return 0, false, errors.New("Symbol table runs past the end of the file.")
	}
	want := "_" + name
	for i := uint64(0); i < nsyms; i++ {
		n := symoff + i*nlistSize
		if data[n+4]&0xe0 != 0 {
			continue
		}
		strx := uint64(bo.Uint32(data[n:]))
		if strx >= strsize {
			return 0, false, errors.New("Symbol name is outside the string table.")
		}
		sname := data[stroff+strx : stroff+strsize]
		end := bytes.IndexByte(sname, 0)
		if end < 0 {
			return 0, false, errors.New("Unterminated symbol name.")
		}
		if string(sname[:end]) != want {
			continue
		}
		var value uint64
		if bits == 64 {
			value = bo.Uint64(data[n+8:])
		} else {
			value = uint64(bo.Uint32(data[n+8:]))
		}
		for _, seg := range segments {
			if value >= seg.vmaddr && value < seg.vmaddr+seg.vmsize {
				return seg.fileoff + (value - seg.vmaddr), true, nil
			}
		}
		// No segment maps this address; the name may repeat at a mappable
		// one later in the table.
	}
	return 0, false, nil
}
