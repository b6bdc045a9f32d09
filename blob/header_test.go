package blob

import (
	"bytes"
	"reflect"
	"testing"
)

func testPointers() []uint64 {
	ptrs := make([]uint64, 12)
	ptrs[0] = 36
	ptrs[1] = 0x40
	ptrs[11] = 0x99
	return ptrs
}

func TestHeaderSizes(t *testing.T) {
	if got := HeaderSize(32, 12); got != 84 {
		t.Errorf("32-bit header size: %d", got)
	}
	if got := HeaderSize(64, 12); got != 136 {
		t.Errorf("64-bit header size: %d", got)
	}
}

func TestHeaderPackFixedBytes(t *testing.T) {
	h := &Header{
		BlobOffset: 0x1122334455667788,
		BlobSize:   0x1000,
		Version:    HeaderVersion,
		Flags:      0x5,
		Pointers:   testPointers(),
	}
	buf, err := h.Pack(64)
	if err != nil {
		t.Fatal(err)
	}
	if len(buf) != 136 {
		t.Fatalf("packed size: %d", len(buf))
	}
	if order.Uint64(buf[0:]) != h.BlobOffset {
		t.Error("blob offset")
	}
	if order.Uint64(buf[8:]) != h.BlobSize {
		t.Error("blob size")
	}
	if order.Uint16(buf[16:]) != 1 {
		t.Error("version")
	}
	if order.Uint16(buf[18:]) != 12 {
		t.Error("pointer count")
	}
	if order.Uint16(buf[20:]) != 0 {
		t.Error("reserved halfword")
	}
	if order.Uint16(buf[22:]) != 5 {
		t.Error("flags")
	}
	if !bytes.Equal(buf[24:32], make([]byte, 8)) {
		t.Error("reserved block is not zero")
	}
	// Trailing reserved pointer stays zero.
	if !bytes.Equal(buf[128:136], make([]byte, 8)) {
		t.Error("reserved pointer is not zero")
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := &Header{
		BlobOffset: 0x4000,
		BlobSize:   0x2000,
		Version:    HeaderVersion,
		Flags:      3,
		Pointers:   testPointers(),
	}
	for _, bits := range []int{32, 64} {
		buf, err := h.Pack(bits)
		if err != nil {
			t.Fatal(err)
		}
		got, err := DecodeHeader(buf, bits)
		if err != nil {
			t.Fatal(err)
		}
		if got.BlobOffset != h.BlobOffset || got.BlobSize != h.BlobSize ||
			got.Flags != h.Flags || got.Version != h.Version {
			t.Errorf("%d-bit header mismatch: %+v", bits, got)
		}
		if !reflect.DeepEqual(got.Pointers, h.Pointers) {
			t.Errorf("%d-bit pointers: %v", bits, got.Pointers)
		}
	}
}

func TestHeaderPointerOverflow(t *testing.T) {
	h := &Header{Version: HeaderVersion, Pointers: []uint64{1 << 32}}
	if _, err := h.Pack(32); err == nil {
		t.Fatal("expected overflow for a 32-bit pointer")
	}
	if _, err := h.Pack(64); err != nil {
		t.Fatalf("64-bit pack: %v", err)
	}
}

func TestDecodeHeaderTruncated(t *testing.T) {
	if _, err := DecodeHeader(make([]byte, 16), 32); err == nil {
		t.Fatal("expected an error for a short header")
	}
	h := &Header{Version: HeaderVersion, Pointers: testPointers()}
	buf, _ := h.Pack(32)
	if _, err := DecodeHeader(buf[:40], 32); err == nil {
		t.Fatal("expected an error for truncated pointers")
	}
}

func TestDecodeHeaderVersion(t *testing.T) {
	h := &Header{Version: 9, Pointers: testPointers()}
	buf, _ := h.Pack(64)
	if _, err := DecodeHeader(buf, 64); err == nil {
		t.Fatal("expected an error for an unknown version")
	}
}
