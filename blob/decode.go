package blob

import (
	"bytes"

	"github.com/pkg/errors"
)

// DecodedModule is one row recovered from a frozen module table.
type DecodedModule struct {
	Name    string
	Payload []byte // aliases the blob data; nil for forbidden rows
	Package bool
	Forbid  bool
}

// Kind names the row for listings.
func (m *DecodedModule) Kind() string {
	switch {
	case m.Forbid:
		return "forbidden"
	case m.Package:
		return "package"
	}
	return "module"
}

// Decode walks the module table at tableOff until the all-zero sentinel row,
// resolving names and payloads. All offsets are relative to data, which must
// span the whole blob.
func Decode(data []byte, bits int, tableOff uint64) ([]DecodedModule, error) {
	rowSize := RowSize(bits)
	var mods []DecodedModule
	for off := tableOff; ; off += rowSize {
		if off+rowSize > uint64(len(data)) {
			return nil, errors.New("Module table runs past the end of the blob.")
		}
		row := data[off : off+rowSize]
		var nameOff, payloadOff uint64
		var signed int32
		if bits == 64 {
			nameOff = order.Uint64(row[0:])
			payloadOff = order.Uint64(row[8:])
			signed = int32(order.Uint32(row[16:]))
		} else {
			nameOff = uint64(order.Uint32(row[0:]))
			payloadOff = uint64(order.Uint32(row[4:]))
			signed = int32(order.Uint32(row[8:]))
		}
		if nameOff == 0 && payloadOff == 0 && signed == 0 {
			return mods, nil
		}
		name, err := cstring(data, nameOff)
		if err != nil {
			return nil, err
		}
		mod := DecodedModule{Name: name}
		if signed == 0 {
			mod.Forbid = true
		} else {
			size := uint64(signed)
			if signed < 0 {
				mod.Package = true
				size = uint64(-signed)
			}
			if payloadOff+size > uint64(len(data)) {
				return nil, errors.Errorf("Module %q payload runs past the end of the blob.", name)
			}
			mod.Payload = data[payloadOff : payloadOff+size]
		}
		mods = append(mods, mod)
	}
}

func cstring(data []byte, off uint64) (string, error) {
	if off >= uint64(len(data)) {
		return "", errors.Errorf("String offset %#x is out of range.", off)
	}
	end := bytes.IndexByte(data[off:], 0)
	if end < 0 {
		return "", errors.New("Unterminated string in pool.")
	}
	return string(data[off : off+uint64(end)]), nil
}
