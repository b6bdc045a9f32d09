package blob

import (
	"bytes"
	"sort"
)

// Pool accumulates the string table and module payloads that follow the
// module tables in the blob. All offsets are relative to the pool start.
type Pool struct {
	buf     []byte
	offsets map[string]uint64
}

func NewPool() *Pool {
	return &Pool{offsets: make(map[string]uint64)}
}

// Add interns s as a NUL-terminated string and returns its offset. Present
// strings longest first: a string equal to the suffix of one already stored
// shares that storage instead of growing the pool. Adding the same string
// again returns the same offset.
func (p *Pool) Add(s string) uint64 {
	if off, ok := p.offsets[s]; ok {
		return off
	}
	needle := append([]byte(s), 0)
	var off uint64
	if i := bytes.Index(p.buf, needle); i >= 0 {
		off = uint64(i)
	} else {
		off = uint64(len(p.buf))
		p.buf = append(p.buf, needle...)
	}
	p.offsets[s] = off
	return off
}

// Lookup reports the offset of an already interned string without growing
// the pool.
func (p *Pool) Lookup(s string) (uint64, bool) {
	off, ok := p.offsets[s]
	return off, ok
}

// Align pads the pool with zero bytes to an n-byte boundary.
func (p *Pool) Align(n uint64) {
	if n < 2 {
		return
	}
	for uint64(len(p.buf))%n != 0 {
		p.buf = append(p.buf, 0)
	}
}

// AddPayload appends raw payload bytes and returns their offset. Payloads
// are not deduplicated.
func (p *Pool) AddPayload(data []byte) uint64 {
	off := uint64(len(p.buf))
	p.buf = append(p.buf, data...)
	return off
}

func (p *Pool) Len() uint64 {
	return uint64(len(p.buf))
}

func (p *Pool) Bytes() []byte {
	return p.buf
}

// PoolOrder drops duplicates and orders strings for interning: longest
// first so shorter strings can fold into the suffix of longer ones, with
// ties keeping their input order.
func PoolOrder(strs []string) []string {
	seen := make(map[string]bool, len(strs))
	uniq := make([]string, 0, len(strs))
	for _, s := range strs {
		if !seen[s] {
			seen[s] = true
			uniq = append(uniq, s)
		}
	}
	sort.SliceStable(uniq, func(i, j int) bool {
		return len(uniq[i]) > len(uniq[j])
	})
	return uniq
}
