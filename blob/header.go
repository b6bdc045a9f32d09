package blob

import (
	"math"

	"github.com/pkg/errors"
)

const HeaderVersion = 1

// headFixed is the width-independent part of the header: two u64, four u16
// and eight reserved bytes.
const headFixed = 32

// Header is the locator record patched over the stub's symbol. One header is
// encoded per pointer width present in the stub. Pointers[0] is the module
// table offset for that width; the rest are the loader field slots in schema
// order. All pointers are blob-relative with 0 meaning unset.
type Header struct {
	BlobOffset uint64
	BlobSize   uint64
	Version    uint16
	Flags      uint16
	Pointers   []uint64
}

// HeaderSize returns the encoded size for a pointer width and counted
// pointer total. One reserved trailing pointer pads the struct and is not
// counted.
func HeaderSize(bits int, npointers int) uint64 {
	return headFixed + uint64(npointers+1)*uint64(bits)/8
}

// Pack encodes the header. The reserved trailing pointer is emitted as zero.
func (h *Header) Pack(bits int) ([]byte, error) {
	buf := make([]byte, HeaderSize(bits, len(h.Pointers)))
	order.PutUint64(buf[0:], h.BlobOffset)
	order.PutUint64(buf[8:], h.BlobSize)
	order.PutUint16(buf[16:], h.Version)
	order.PutUint16(buf[18:], uint16(len(h.Pointers)))
	order.PutUint16(buf[20:], 0)
	order.PutUint16(buf[22:], h.Flags)
	off := headFixed
	for _, ptr := range h.Pointers {
		if bits == 64 {
			order.PutUint64(buf[off:], ptr)
			off += 8
		} else {
			if ptr > math.MaxUint32 {
				return nil, errors.Wrapf(OffsetOverflow, "header pointer %#x", ptr)
			}
			order.PutUint32(buf[off:], uint32(ptr))
			off += 4
		}
	}
	return buf, nil
}

// DecodeHeader reads a header back from patched stub bytes. data may extend
// past the header.
func DecodeHeader(data []byte, bits int) (*Header, error) {
	if len(data) < headFixed {
		return nil, errors.New("Truncated locator header.")
	}
	h := &Header{
		BlobOffset: order.Uint64(data[0:]),
		BlobSize:   order.Uint64(data[8:]),
		Version:    order.Uint16(data[16:]),
		Flags:      order.Uint16(data[22:]),
	}
	if h.Version != HeaderVersion {
		return nil, errors.Errorf("Unsupported locator header version %d.", h.Version)
	}
	n := int(order.Uint16(data[18:]))
	if uint64(len(data)) < HeaderSize(bits, n) {
		return nil, errors.New("Truncated locator header.")
	}
	h.Pointers = make([]uint64, n)
	off := headFixed
	for i := range h.Pointers {
		if bits == 64 {
			h.Pointers[i] = order.Uint64(data[off:])
			off += 8
		} else {
			h.Pointers[i] = uint64(order.Uint32(data[off:]))
			off += 4
		}
	}
	return h, nil
}
