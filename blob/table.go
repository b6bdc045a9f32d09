package blob

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/lowtemp/permafrost/models"
)

var order = binary.LittleEndian

var OffsetOverflow = errors.New("Offset does not fit in a 32-bit table field.")

// Entry is one module table row before relocation. Offsets are pool-relative
// until the table emit adds the pool's position in the blob. A zero
// SignedSize marks a forbidden module: its payload offset stays zero and the
// loader refuses the import.
type Entry struct {
	NameOffset    uint64
	PayloadOffset uint64
	SignedSize    int32
}

// RowSize returns the encoded row size for a pointer width. The 64-bit row
// carries four trailing pad bytes so rows stay 8-byte aligned.
func RowSize(bits int) uint64 {
	if bits == 64 {
		return 24
	}
	return 12
}

// Pack writes the row into p, which must hold RowSize(bits) bytes. The
// caller checks 32-bit range before relocating; Pack truncates blindly.
func (e *Entry) Pack(p []byte, bits int) {
	if bits == 64 {
		order.PutUint64(p[0:], e.NameOffset)
		order.PutUint64(p[8:], e.PayloadOffset)
		order.PutUint32(p[16:], uint32(e.SignedSize))
		p[20], p[21], p[22], p[23] = 0, 0, 0, 0
	} else {
		order.PutUint32(p[0:], uint32(e.NameOffset))
		order.PutUint32(p[4:], uint32(e.PayloadOffset))
		order.PutUint32(p[8:], uint32(e.SignedSize))
	}
}

// BuildEntries appends each record's payload to the pool and produces the
// shared table rows. Names must already be interned (the pool is seeded
// with every name and field value up front, longest first).
func BuildEntries(records []models.Record, pool *Pool) ([]Entry, error) {
	entries := make([]Entry, len(records))
	for i := range records {
		r := &records[i]
		nameOff, ok := pool.Lookup(r.Name)
		if !ok {
			return nil, errors.Errorf("Module name %q was not interned.", r.Name)
		}
		ent := Entry{NameOffset: nameOff}
		if r.Stored() {
			if len(r.Payload) > math.MaxInt32 {
				return nil, errors.Errorf("Module %q payload of %d bytes overflows the size field.", r.Name, len(r.Payload))
			}
			pool.Align(4)
			ent.PayloadOffset = pool.AddPayload(r.Payload)
			ent.SignedSize = int32(len(r.Payload))
			if r.Package {
				ent.SignedSize = -ent.SignedSize
			}
		}
		entries[i] = ent
	}
	return entries, nil
}

// AppendTable emits the rows for one pointer width, relocating pool-relative
// offsets by poolOffset, and closes the table with an all-zero sentinel row.
// The payload offset of a forbidden row stays zero.
func AppendTable(out []byte, entries []Entry, bits int, poolOffset uint64) ([]byte, error) {
	rowSize := RowSize(bits)
	row := make([]byte, rowSize)
	for i := range entries {
		ent := entries[i]
		ent.NameOffset += poolOffset
		if ent.SignedSize != 0 {
			ent.PayloadOffset += poolOffset
		}
		if bits == 32 && (ent.NameOffset > math.MaxUint32 || ent.PayloadOffset > math.MaxUint32) {
			return nil, errors.WithStack(OffsetOverflow)
		}
		ent.Pack(row, bits)
		out = append(out, row...)
	}
	out = append(out, make([]byte, rowSize)...)
	return out, nil
}
