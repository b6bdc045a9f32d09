package permafrost

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/lowtemp/permafrost/blob"
	"github.com/lowtemp/permafrost/models"
	"github.com/lowtemp/permafrost/stub"
)

// Arch is the decoded module table for one pointer width of a frozen binary.
type Arch struct {
	Bits     int
	TableOff uint64
	Header   *blob.Header // nil for legacy outputs
	Modules  []blob.DecodedModule
}

// Info is everything Inspect recovers from a frozen output binary.
type Info struct {
	Format stub.Format
	Legacy bool // located through the trailing pointer, not the symbol
	Arches []Arch
}

// Inspect decodes the frozen payload of an output binary. The locator header
// is read back through the patched symbol; outputs frozen without the symbol
// are located through the legacy trailing pointer instead.
func Inspect(data []byte, symbol string) (*Info, error) {
	if symbol == "" {
		symbol = models.DefaultSymbol
	}
	img, err := stub.Open(data)
	if err != nil {
		return nil, err
	}
	info := &Info{Format: img.Format}
	for _, bits := range img.Bitnesses() {
		off, found, err := img.FindSymbol(symbol, bits)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		header, err := blob.DecodeHeader(data[off:], bits)
		if err != nil {
			return nil, err
		}
		if len(header.Pointers) == 0 {
			return nil, errors.New("Locator header carries no module table pointer.")
		}
		if header.BlobOffset+header.BlobSize > uint64(len(data)) {
			return nil, errors.New("Blob range runs past the end of the file.")
		}
		body := data[header.BlobOffset : header.BlobOffset+header.BlobSize]
		modules, err := blob.Decode(body, bits, header.Pointers[0])
		if err != nil {
			return nil, err
		}
		info.Arches = append(info.Arches, Arch{
			Bits:     bits,
			TableOff: header.Pointers[0],
			Header:   header,
			Modules:  modules,
		})
	}
	if len(info.Arches) > 0 {
		return info, nil
	}

	// Legacy output: the last 8 bytes point at the blob, tables start at its
	// first byte, one per width, widest first.
	if len(data) < 8 {
		return nil, errors.New("No locator symbol and no room for a trailing pointer.")
	}
	blobOff := binary.LittleEndian.Uint64(data[len(data)-8:])
	if blobOff >= uint64(len(data)-8) {
		return nil, errors.New("Trailing pointer is out of range.")
	}
	body := data[blobOff : len(data)-8]
	info.Legacy = true
	var off uint64
	for _, bits := range img.Bitnesses() {
		modules, err := blob.Decode(body, bits, off)
		if err != nil {
			return nil, err
		}
		info.Arches = append(info.Arches, Arch{Bits: bits, TableOff: off, Modules: modules})
		off += blob.RowSize(bits) * uint64(len(modules)+1)
	}
	return info, nil
}
