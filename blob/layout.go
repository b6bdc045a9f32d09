package blob

import (
	"github.com/pkg/errors"

	"github.com/lowtemp/permafrost/models"
)

// Layout fixes where every blob component lands before any bytes move: one
// module table per pointer width (widest first), then the shared pool, then
// zero padding out to the chosen alignment.
type Layout struct {
	Bits       []int
	TableOff   []uint64 // blob-relative, parallel to Bits
	PoolOffset uint64
	BlobSize   uint64
	Align      uint64
}

// NewLayout computes the blob layout. bits must be ordered widest first and
// the pool must already hold every string and payload.
func NewLayout(bits []int, nrecords int, pool *Pool, align uint64) *Layout {
	l := &Layout{Bits: bits, Align: align}
	var off uint64
	for _, b := range bits {
		l.TableOff = append(l.TableOff, off)
		off += RowSize(b) * uint64(nrecords+1)
	}
	l.PoolOffset = off
	size := off + pool.Len()
	if align > 1 && size%align != 0 {
		size += align - size%align
	}
	l.BlobSize = size
	return l
}

// Emit renders the whole blob. The result is exactly BlobSize bytes.
func (l *Layout) Emit(entries []Entry, pool *Pool) ([]byte, error) {
	out := make([]byte, 0, l.BlobSize)
	var err error
	for _, b := range l.Bits {
		out, err = AppendTable(out, entries, b, l.PoolOffset)
		if err != nil {
			return nil, err
		}
	}
	out = append(out, pool.Bytes()...)
	out = append(out, make([]byte, l.BlobSize-uint64(len(out)))...)
	return out, nil
}

// FieldPointers resolves the loader field slots to blob-relative pointers in
// schema order. Absent fields stay zero; a present empty value still points
// at its NUL.
func (l *Layout) FieldPointers(pool *Pool, fields map[string]string) ([]uint64, error) {
	ptrs := make([]uint64, len(models.FieldNames))
	for i, name := range models.FieldNames {
		value, ok := fields[name]
		if !ok {
			continue
		}
		off, ok := pool.Lookup(value)
		if !ok {
			return nil, errors.Errorf("Field %s value was not interned.", name)
		}
		ptrs[i] = l.PoolOffset + off
	}
	return ptrs, nil
}

// Header builds the locator header for the width at index i. The module
// table pointer comes first, then the field slots.
func (l *Layout) Header(i int, blobOffset uint64, flags uint16, fieldPtrs []uint64) *Header {
	ptrs := make([]uint64, 0, len(fieldPtrs)+1)
	ptrs = append(ptrs, l.TableOff[i])
	ptrs = append(ptrs, fieldPtrs...)
	return &Header{
		BlobOffset: blobOffset,
		BlobSize:   l.BlobSize,
		Version:    HeaderVersion,
		Flags:      flags,
		Pointers:   ptrs,
	}
}
