package stub

import (
	"math"

	"github.com/pkg/errors"
)

type cmdField struct {
	size int
	raw  bool
}

func uniform(n int) []cmdField {
	fields := make([]cmdField, n)
	for i := range fields {
		fields[i] = cmdField{size: 4}
	}
	return fields
}

// LC_SEGMENT_64 field order: cmd, cmdsize, segname, vmaddr, vmsize, fileoff,
// filesize, maxprot, initprot, nsects, flags. The 16-byte name counts as one
// field so slide indices line up with the format's numbering.
var segment64Fields = []cmdField{
	{size: 4}, {size: 4}, {size: 16, raw: true},
	{size: 8}, {size: 8}, {size: 8}, {size: 8},
	{size: 4}, {size: 4}, {size: 4}, {size: 4},
}

// Field widths of every load command the slider rewrites, in on-disk order.
var slideLayouts = map[string][]cmdField{
	"placeholder":        segment64Fields,
	"__LINKEDIT":         segment64Fields,
	"LC_DYLD_INFO":       uniform(12),
	"LC_SYMTAB":          uniform(6),
	"LC_DYSYMTAB":        uniform(20),
	"LC_FUNCTION_STARTS": uniform(4),
	"LC_DATA_IN_CODE":    uniform(4),
}

// Which fields move when bytes are inserted ahead of the linkedit data. The
// placeholder segment grows in place (vmsize, filesize); __LINKEDIT shifts
// whole (vmaddr, fileoff); the rest are linkedit file offsets.
var slideIndices = map[string][]int{
	"placeholder":        {4, 6},
	"__LINKEDIT":         {3, 5},
	"LC_DYLD_INFO":       {2, 4, 8, 10},
	"LC_SYMTAB":          {2, 4},
	"LC_DYSYMTAB":        {14},
	"LC_FUNCTION_STARTS": {2},
	"LC_DATA_IN_CODE":    {2},
}

type slideCmd struct {
	off  uint64
	vals []uint64
	raws [][]byte
}

func decodeFields(data []byte, off uint64, fields []cmdField) (*slideCmd, error) {
	c := &slideCmd{
		off:  off,
		vals: make([]uint64, len(fields)),
		raws: make([][]byte, len(fields)),
	}
	p := off
	for i, f := range fields {
		if p+uint64(f.size) > uint64(len(data)) {
			return nil, errors.New("Load command runs past the end of the file.")
		}
		switch {
		case f.raw:
			c.raws[i] = append([]byte(nil), data[p:p+uint64(f.size)]...)
		case f.size == 8:
			c.vals[i] = le.Uint64(data[p:])
		default:
			c.vals[i] = uint64(le.Uint32(data[p:]))
		}
		p += uint64(f.size)
	}
	return c, nil
}

func (c *slideCmd) encode(data []byte, fields []cmdField) error {
	p := c.off
	for i, f := range fields {
		switch {
		case f.raw:
			copy(data[p:], c.raws[i])
		case f.size == 8:
			le.PutUint64(data[p:], c.vals[i])
		default:
			if c.vals[i] > math.MaxUint32 {
				return errors.Errorf("Slid offset %#x does not fit in a 32-bit field.", c.vals[i])
			}
			le.PutUint32(data[p:], uint32(c.vals[i]))
		}
		p += uint64(f.size)
	}
	return nil
}

// HasSegment reports whether a single-arch Mach-O image carries the named
// segment. Universal and non-Mach-O images never host one.
func (img *Image) HasSegment(name string) bool {
	if img.Format != MachO {
		return false
	}
	bo, bits, err := machoInfo(img.Data)
	if err != nil {
		return false
	}
	data := img.Data
	cmdOff := uint64(28)
	if bits == 64 {
		cmdOff += 4
	}
	ncmds := bo.Uint32(data[16:])
	for i := uint32(0); i < ncmds; i++ {
		if cmdOff+8 > uint64(len(data)) {
			return false
		}
		cmd := bo.Uint32(data[cmdOff:]) &^ lcReqDyld
		cmdSize := uint64(bo.Uint32(data[cmdOff+4:]))
		if cmdSize < 8 || cmdOff+cmdSize > uint64(len(data)) {
			return false
		}
		if (cmd == lcSegment || cmd == lcSegment64) && cmdSize >= 24 &&
			segName(data[cmdOff+8:cmdOff+24]) == name {
			return true
		}
		cmdOff += cmdSize
	}
	return false
}

// SlideForInsert grows the named placeholder segment to hold blobSize bytes:
// zeros are inserted at the segment's file offset, then every load command
// tracking a linkedit-side file offset is rewritten at its old position.
// Only a single-arch little-endian 64-bit image can host the blob in place.
// Returns the insertion offset.
func (img *Image) SlideForInsert(segname string, blobSize uint64) (uint64, error) {
	if img.Format == FatMachO {
		return 0, errors.New("Cannot grow a segment inside a universal binary.")
	}
	if img.Format != MachO {
		return 0, errors.Errorf("Cannot grow a segment inside a %s stub.", img.Format)
	}
	bo, bits, err := machoInfo(img.Data)
	if err != nil {
		return 0, err
	}
	if bits != 64 || bo != le {
		return 0, errors.New("Segment growth needs a little-endian 64-bit image.")
	}
	data := img.Data
	ncmds := bo.Uint32(data[16:])
	cmds := make(map[string]*slideCmd)
	cmdOff := uint64(32)
	for i := uint32(0); i < ncmds; i++ {
		if cmdOff+8 > uint64(len(data)) {
			return 0, errors.New("Load commands run past the end of the file.")
		}
		cmd := bo.Uint32(data[cmdOff:]) &^ lcReqDyld
		cmdSize := uint64(bo.Uint32(data[cmdOff+4:]))
		if cmdSize < 8 || cmdOff+cmdSize > uint64(len(data)) {
			return 0, errors.New("Load command size is invalid.")
		}
		var key string
		switch cmd {
		case lcSegment64:
			switch segName(data[cmdOff+8 : cmdOff+24]) {
			case segname:
				key = "placeholder"
			case "__LINKEDIT":
				key = "__LINKEDIT"
			}
		case lcDyldInfo:
			key = "LC_DYLD_INFO"
		case lcSymtab:
			key = "LC_SYMTAB"
		case lcDysymtab:
			key = "LC_DYSYMTAB"
		case lcFunctionStarts:
			key = "LC_FUNCTION_STARTS"
		case lcDataInCode:
			key = "LC_DATA_IN_CODE"
		}
		if key != "" {
			c, err := decodeFields(data, cmdOff, slideLayouts[key])
			if err != nil {
				return 0, err
			}
			cmds[key] = c
		}
		cmdOff += cmdSize
	}
	seg, ok := cmds["placeholder"]
	if !ok {
		return 0, errors.Errorf("Stub has no %s segment.", segname)
	}
	insertOff := seg.vals[5]
	if insertOff > uint64(len(data)) {
		return 0, errors.Errorf("Segment %s file offset %#x is outside the file.", segname, insertOff)
	}
	var sectOff uint64
	if seg.vals[9] > 0 {
		if seg.vals[1] < 72+80 {
			return 0, errors.Errorf("Segment %s has no room for its section header.", segname)
		}
		sectOff = seg.off + 72
		if sectOff+80 > uint64(len(data)) {
			return 0, errors.New("Section header runs past the end of the file.")
		}
	}
	for key, c := range cmds {
		for _, idx := range slideIndices[key] {
			c.vals[idx] += blobSize
		}
	}

	grown := make([]byte, 0, uint64(len(data))+blobSize)
	grown = append(grown, data[:insertOff]...)
	grown = append(grown, make([]byte, blobSize)...)
	grown = append(grown, data[insertOff:]...)

	for key, c := range cmds {
		if err := c.encode(grown, slideLayouts[key]); err != nil {
			return 0, err
		}
	}
	if sectOff > 0 {
		// section_64 size field sits after the two names and addr.
		le.PutUint64(grown[sectOff+40:], blobSize)
	}
	img.Data = grown
	img.Slices[0].Size = uint64(len(grown))
	return insertOff, nil
}
