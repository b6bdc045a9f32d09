package stub

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	"github.com/pkg/errors"
)

func MatchElf(data []byte) bool {
	return bytes.HasPrefix(data, []byte("\x7fELF"))
}

func parseElf(data []byte) (*Image, error) {
	if len(data) < 20 {
		return nil, errors.New("Truncated ELF header.")
	}
	var bits int
	switch data[4] {
	case 1:
		bits = 32
	case 2:
		bits = 64
	default:
		return nil, errors.Errorf("Unknown ELF class %d.", data[4])
	}
	var bo binary.ByteOrder = binary.LittleEndian
	if data[5] == 2 {
		bo = binary.BigEndian
	}
	return &Image{
		Data:   data,
		Format: ELF,
		Slices: []Slice{{
			Format:  ELF,
			Bits:    bits,
			Size:    uint64(len(data)),
			Machine: uint32(bo.Uint16(data[18:])),
		}},
	}, nil
}

// elfSymbolOffsets maps the named dynamic symbol to file offsets through
// its defined section. The same name can appear more than once (symbol
// versioning); every hit is returned.
func elfSymbolOffsets(data []byte, name string) ([]uint64, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse ELF")
	}
	syms, err := f.DynamicSymbols()
	if err == elf.ErrNoSymbols {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to read dynamic symbols")
	}
	var offs []uint64
	for _, sym := range syms {
		if sym.Name != name || sym.Section == elf.SHN_UNDEF {
			continue
		}
		if sym.Section >= elf.SHN_LORESERVE {
			return nil, errors.Errorf("Symbol %s has reserved section index %#x.", name, uint16(sym.Section))
		}
		if int(sym.Section) >= len(f.Sections) {
			return nil, errors.Errorf("Symbol %s section %d is out of range.", name, sym.Section)
		}
		sect := f.Sections[sym.Section]
		offs = append(offs, sect.Offset+sym.Value-sect.Addr)
	}
	return offs, nil
}
