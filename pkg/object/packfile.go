package object

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Pack stream layout: a 12-byte header ("PACK", version, object count),
// the entries, then the SHA-1 of everything before the trailer.
const (
	packVersion    = 2
	packHeaderLen  = 12
	packTrailerLen = HashSize
)

var packSignature = []byte("PACK")

// packKind is the 3-bit type stored in an entry header.
type packKind uint8

const (
	kindCommit   packKind = 1
	kindTree     packKind = 2
	kindBlob     packKind = 3
	kindTag      packKind = 4
	kindOfsDelta packKind = 6
	kindRefDelta packKind = 7
)

var kindTypes = map[packKind]ObjectType{
	kindCommit: TypeCommit,
	kindTree:   TypeTree,
	kindBlob:   TypeBlob,
	kindTag:    TypeTag,
}

// parsePackHeader returns the object count recorded in a pack header.
func parsePackHeader(b []byte) (uint32, error) {
	switch {
	case len(b) < packHeaderLen:
		return 0, fmt.Errorf("%w: pack header is %d bytes", ErrCorrupt, len(b))
	case !bytes.HasPrefix(b, packSignature):
		return 0, fmt.Errorf("%w: bad pack signature %q", ErrCorrupt, b[:4])
	}
	if v := binary.BigEndian.Uint32(b[4:8]); v != packVersion {
		return 0, fmt.Errorf("%w: pack version %d", ErrCorrupt, v)
	}
	return binary.BigEndian.Uint32(b[8:12]), nil
}

// readEntryHeader decodes an entry's kind and inflated size. The first byte
// holds the kind and four size bits; each continuation byte adds seven more.
func readEntryHeader(r io.ByteReader) (packKind, uint64, error) {
	var (
		kind packKind
		size uint64
	)
	for i := 0; ; i++ {
		c, err := r.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("entry header: %w", err)
		}
		if i == 0 {
			kind = packKind(c >> 4 & 0x7)
			size = uint64(c & 0x0f)
		} else {
			shift := 4 + 7*uint(i-1)
			if shift > 57 {
				return 0, 0, fmt.Errorf("entry header: size overflows")
			}
			size |= uint64(c&0x7f) << shift
		}
		if c&0x80 == 0 {
			return kind, size, nil
		}
	}
}

// readBaseDistance decodes how far back an OFS_DELTA base starts. Every
// continuation byte bumps the accumulated value by one before shifting.
func readBaseDistance(r io.ByteReader) (uint64, error) {
	var dist uint64
	for i := 0; ; i++ {
		c, err := r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("base distance: %w", err)
		}
		if i > 0 {
			if dist >= math.MaxUint64>>7 {
				return 0, fmt.Errorf("base distance overflows")
			}
			dist++
		}
		dist = dist<<7 | uint64(c&0x7f)
		if c&0x80 == 0 {
			return dist, nil
		}
	}
}

// patchDelta rebuilds an object from its base and a delta body. The body
// opens with the base and result sizes as varints, then runs opcodes: a set
// high bit copies a base range, any other nonzero value inserts that many
// literal bytes.
func patchDelta(base, delta []byte) ([]byte, error) {
	want, n := binary.Uvarint(delta)
	if n <= 0 {
		return nil, fmt.Errorf("delta: bad base size")
	}
	if want != uint64(len(base)) {
		return nil, fmt.Errorf("delta: base is %d bytes, delta expects %d", len(base), want)
	}
	delta = delta[n:]
	size, n := binary.Uvarint(delta)
	if n <= 0 {
		return nil, fmt.Errorf("delta: bad result size")
	}
	delta = delta[n:]

	out := make([]byte, 0, size)
	for len(delta) > 0 {
		op := delta[0]
		delta = delta[1:]
		if op == 0 {
			return nil, fmt.Errorf("delta: reserved opcode 0")
		}
		if op&0x80 == 0 {
			if int(op) > len(delta) {
				return nil, fmt.Errorf("delta: insert of %d runs past end", op)
			}
			out = append(out, delta[:op]...)
			delta = delta[op:]
			continue
		}

		// Bits 0-3 select offset bytes, bits 4-6 select length bytes.
		var off, length uint64
		for bit := range 7 {
			if op&(1<<bit) == 0 {
				continue
			}
			if len(delta) == 0 {
				return nil, fmt.Errorf("delta: copy operand truncated")
			}
			v := uint64(delta[0])
			delta = delta[1:]
			if bit < 4 {
				off |= v << (8 * bit)
			} else {
				length |= v << (8 * (bit - 4))
			}
		}
		if length == 0 {
			length = 0x10000
		}
		if off+length > uint64(len(base)) {
			return nil, fmt.Errorf("delta: copy %d+%d beyond base of %d", off, length, len(base))
		}
		out = append(out, base[off:off+length]...)
	}

	if uint64(len(out)) != size {
		return nil, fmt.Errorf("delta: produced %d bytes, header says %d", len(out), size)
	}
	return out, nil
}
