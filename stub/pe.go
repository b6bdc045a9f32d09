package stub

import (
	"bytes"
	"debug/pe"

	"github.com/pkg/errors"
)

func MatchPE(data []byte) bool {
	return bytes.HasPrefix(data, []byte("MZ"))
}

func parsePE(data []byte) (*Image, error) {
	if len(data) < 0x40 {
		return nil, errors.New("Truncated DOS header.")
	}
	peOff := uint64(le.Uint32(data[0x3c:]))
	if peOff+26 > uint64(len(data)) {
		return nil, errors.New("Truncated PE header.")
	}
	if !bytes.Equal(data[peOff:peOff+4], []byte("PE\x00\x00")) {
		return nil, errors.New("Invalid PE signature.")
	}
	machine := le.Uint16(data[peOff+4:])
	var bits int
	switch optMagic := le.Uint16(data[peOff+24:]); optMagic {
	case 0x10b:
		bits = 32
	case 0x20b:
		bits = 64
	default:
		return nil, errors.Errorf("Unknown PE optional header magic %#x.", optMagic)
	}
	return &Image{
		Data:   data,
		Format: PE,
		Slices: []Slice{{
			Format:  PE,
			Bits:    bits,
			Size:    uint64(len(data)),
			Machine: uint32(machine),
		}},
	}, nil
}

// peExportOffset walks the export directory for the named symbol and maps
// its RVA to a file offset. debug/pe stops at the section table, so the
// directory itself is read by hand.
func peExportOffset(data []byte, name string) (uint64, bool, error) {
	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return 0, false, errors.Wrap(err, "failed to parse PE")
	}
	var dir pe.DataDirectory
	switch hdr := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		if hdr.NumberOfRvaAndSizes > 0 {
			dir = hdr.DataDirectory[0]
		}
	case *pe.OptionalHeader64:
		if hdr.NumberOfRvaAndSizes > 0 {
			dir = hdr.DataDirectory[0]
		}
	default:
		return 0, false, errors.New("PE optional header is missing.")
	}
	if dir.VirtualAddress == 0 || dir.Size == 0 {
		return 0, false, nil
	}
	rvaToOff := func(rva uint32) (uint64, bool) {
		for _, sect := range f.Sections {
			if rva >= sect.VirtualAddress && rva-sect.VirtualAddress < sect.VirtualSize {
				return uint64(sect.Offset) + uint64(rva-sect.VirtualAddress), true
			}
		}
		return 0, false
	}
	dirOff, ok := rvaToOff(dir.VirtualAddress)
	if !ok || dirOff+40 > uint64(len(data)) {
		return 0, false, errors.New("Export directory is outside every section.")
	}
	numFuncs := le.Uint32(data[dirOff+20:])
	numNames := le.Uint32(data[dirOff+24:])
	funcsOff, ok1 := rvaToOff(le.Uint32(data[dirOff+28:]))
	namesOff, ok2 := rvaToOff(le.Uint32(data[dirOff+32:]))
	ordsOff, ok3 := rvaToOff(le.Uint32(data[dirOff+36:]))
	if !ok1 || !ok2 || !ok3 {
		return 0, false, errors.New("Export tables are outside every section.")
	}
	for i := uint64(0); i < uint64(numNames); i++ {
		if namesOff+i*4+4 > uint64(len(data)) {
			return 0, false, errors.New("Export name table is truncated.")
		}
		nameOff, ok := rvaToOff(le.Uint32(data[namesOff+i*4:]))
		if !ok {
			continue
		}
		end := bytes.IndexByte(data[nameOff:], 0)
		if end < 0 || string(data[nameOff:nameOff+uint64(end)]) != name {
			continue
		}
		if ordsOff+i*2+2 > uint64(len(data)) {
			return 0, false, errors.New("Export ordinal table is truncated.")
		}
		ordinal := uint64(le.Uint16(data[ordsOff+i*2:]))
		if ordinal >= uint64(numFuncs) || funcsOff+ordinal*4+4 > uint64(len(data)) {
			return 0, false, errors.Errorf("Export %s has ordinal %d outside the function table.", name, ordinal)
		}
		off, ok := rvaToOff(le.Uint32(data[funcsOff+ordinal*4:]))
		if !ok {
			return 0, false, errors.Errorf("Export %s points outside every section.", name)
		}
		return off, true, nil
	}
	return 0, false, nil
}
