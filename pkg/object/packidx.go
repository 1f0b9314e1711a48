package object

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"slices"
	"strings"
)

const (
	idxVersion     = 2
	idxLargeOffset = uint32(1 << 31)
)

var idxSignature = []byte{0xff, 't', 'O', 'c'}

// PackEntry locates one object inside a pack.
type PackEntry struct {
	Hash   Hash
	Offset uint64
	CRC32  uint32
}

// PackIndex is a parsed version 2 .idx file.
type PackIndex struct {
	fanout       [256]uint32
	entries      []PackEntry
	PackChecksum Hash
}

// Len reports how many objects the pack holds.
func (idx *PackIndex) Len() int { return len(idx.entries) }

// Entries returns a copy of the entries in hash order.
func (idx *PackIndex) Entries() []PackEntry { return slices.Clone(idx.entries) }

// Find looks h up within its first-byte fanout bucket.
func (idx *PackIndex) Find(h Hash) (PackEntry, bool) {
	if len(h) != 2*HashSize || h.IsZero() {
		return PackEntry{}, false
	}
	first := h.Bytes()[0]
	var lo uint32
	if first > 0 {
		lo = idx.fanout[first-1]
	}
	hi := idx.fanout[first]
	if hi <= lo {
		return PackEntry{}, false
	}
	bucket := idx.entries[lo:hi]
	i, ok := slices.BinarySearchFunc(bucket, h, func(e PackEntry, target Hash) int {
		return strings.Compare(string(e.Hash), string(target))
	})
	if !ok {
		return PackEntry{}, false
	}
	return bucket[i], true
}

// idxCursor consumes an index body front to back.
type idxCursor struct {
	buf []byte
	pos int
}

func (c *idxCursor) take(n int) ([]byte, error) {
	if n < 0 || c.pos+n > len(c.buf) {
		return nil, fmt.Errorf("%w: pack index truncated at byte %d", ErrCorrupt, c.pos)
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *idxCursor) uint32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ParsePackIndex decodes an idx v2 file and checks its trailing SHA-1. The
// layout is signature, version, a 256-slot fanout, then per-object names,
// CRCs and 31-bit offsets, a 64-bit table for offsets with the high bit set,
// the pack checksum and the index checksum.
func ParsePackIndex(data []byte) (*PackIndex, error) {
	if len(data) < 8+256*4+2*HashSize {
		return nil, fmt.Errorf("%w: pack index is %d bytes", ErrCorrupt, len(data))
	}
	body, trailer := data[:len(data)-HashSize], data[len(data)-HashSize:]
	if sum := sha1.Sum(body); !bytes.Equal(trailer, sum[:]) {
		return nil, fmt.Errorf("%w: pack index checksum mismatch", ErrCorrupt)
	}

	c := &idxCursor{buf: body}
	sig, _ := c.take(4)
	if !bytes.Equal(sig, idxSignature) {
		return nil, fmt.Errorf("%w: bad pack index signature %q", ErrCorrupt, sig)
	}
	if v, _ := c.uint32(); v != idxVersion {
		return nil, fmt.Errorf("%w: pack index version %d", ErrCorrupt, v)
	}

	idx := &PackIndex{}
	for i := range idx.fanout {
		idx.fanout[i], _ = c.uint32()
		if i > 0 && idx.fanout[i] < idx.fanout[i-1] {
			return nil, fmt.Errorf("%w: pack index fanout decreases at %d", ErrCorrupt, i)
		}
	}
	n := int(idx.fanout[255])

	names, err := c.take(n * HashSize)
	if err != nil {
		return nil, err
	}
	crcs, err := c.take(n * 4)
	if err != nil {
		return nil, err
	}
	small, err := c.take(n * 4)
	if err != nil {
		return nil, err
	}

	idx.entries = make([]PackEntry, n)
	large := 0
	for i := range idx.entries {
		e := &idx.entries[i]
		e.Hash, _ = HashFromBytes(names[i*HashSize : (i+1)*HashSize])
		if i > 0 && idx.entries[i-1].Hash >= e.Hash {
			return nil, fmt.Errorf("%w: pack index names out of order at %d", ErrCorrupt, i)
		}
		e.CRC32 = binary.BigEndian.Uint32(crcs[i*4:])
		e.Offset = uint64(binary.BigEndian.Uint32(small[i*4:]))
		if uint32(e.Offset)&idxLargeOffset != 0 {
			large = max(large, int(uint32(e.Offset)&^idxLargeOffset)+1)
		}
	}

	table, err := c.take(large * 8)
	if err != nil {
		return nil, err
	}
	for i := range idx.entries {
		e := &idx.entries[i]
		if slot := uint32(e.Offset); slot&idxLargeOffset != 0 {
			e.Offset = binary.BigEndian.Uint64(table[int(slot&^idxLargeOffset)*8:])
		}
	}

	packSum, err := c.take(HashSize)
	if err != nil {
		return nil, err
	}
	if extra := len(body) - c.pos; extra != 0 {
		return nil, fmt.Errorf("%w: pack index has %d trailing bytes", ErrCorrupt, extra)
	}
	idx.PackChecksum, _ = HashFromBytes(packSum)
	return idx, nil
}
