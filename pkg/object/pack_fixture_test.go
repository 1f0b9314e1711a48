package object

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"hash/crc32"
	"slices"
	"sort"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/klauspost/compress/zlib"
)

// packBuilder assembles pack and idx v2 bytes in memory so tests can
// exercise the read path without shelling out to git.
type packBuilder struct {
	t       *testing.T
	buf     bytes.Buffer
	entries []PackEntry
}

func newPackBuilder(t *testing.T, numObjects uint32) *packBuilder {
	t.Helper()
	b := &packBuilder{t: t}
	b.buf.Write(encodePackHeader(numObjects))
	return b
}

func (b *packBuilder) offset() uint64 {
	return uint64(b.buf.Len())
}

func (b *packBuilder) appendEntry(h Hash, raw []byte) uint64 {
	off := b.offset()
	b.buf.Write(raw)
	b.entries = append(b.entries, PackEntry{Hash: h, Offset: off, CRC32: crc32.ChecksumIEEE(raw)})
	return off
}

// addObject writes an undeltified object and returns its offset.
func (b *packBuilder) addObject(objType ObjectType, data []byte) uint64 {
	var raw bytes.Buffer
	raw.Write(encodePackEntryHeader(objectTypeToPackType(objType), uint64(len(data))))
	raw.Write(compressForTest(b.t, data))
	return b.appendEntry(HashObject(objType, data), raw.Bytes())
}

// addOfsDelta writes target as a delta against the entry at baseOffset.
func (b *packBuilder) addOfsDelta(baseOffset uint64, objType ObjectType, delta, target []byte) uint64 {
	var raw bytes.Buffer
	raw.Write(encodePackEntryHeader(kindOfsDelta, uint64(len(delta))))
	raw.Write(encodeOfsDeltaDistance(b.offset() - baseOffset))
	raw.Write(compressForTest(b.t, delta))
	return b.appendEntry(HashObject(objType, target), raw.Bytes())
}

// addRefDelta writes target as a delta against the object named base.
func (b *packBuilder) addRefDelta(base Hash, objType ObjectType, delta, target []byte) uint64 {
	var raw bytes.Buffer
	raw.Write(encodePackEntryHeader(kindRefDelta, uint64(len(delta))))
	raw.Write(base.Bytes())
	raw.Write(compressForTest(b.t, delta))
	return b.appendEntry(HashObject(objType, target), raw.Bytes())
}

// finish returns the pack with its SHA-1 trailer and a matching idx.
func (b *packBuilder) finish() (pack, idx []byte) {
	sum := sha1.Sum(b.buf.Bytes())
	pack = append(append([]byte(nil), b.buf.Bytes()...), sum[:]...)
	return pack, writePackIndexForTest(b.entries, sum[:])
}

// install writes the pack and idx under objects/pack on fs.
func (b *packBuilder) install(fs billy.Filesystem) string {
	b.t.Helper()
	pack, idx := b.finish()
	name := "objects/pack/pack-" + HashBytes(pack).Hex()
	if err := util.WriteFile(fs, name+".pack", pack, 0o644); err != nil {
		b.t.Fatalf("write pack: %v", err)
	}
	if err := util.WriteFile(fs, name+".idx", idx, 0o644); err != nil {
		b.t.Fatalf("write idx: %v", err)
	}
	return name
}

func writePackIndexForTest(entries []PackEntry, packChecksum []byte) []byte {
	sorted := append([]PackEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Hash < sorted[j].Hash })

	var buf bytes.Buffer
	buf.Write(idxSignature)
	_ = binary.Write(&buf, binary.BigEndian, uint32(idxVersion))

	var counts [256]uint32
	for _, e := range sorted {
		counts[e.Hash.Bytes()[0]]++
	}
	var total uint32
	for i := 0; i < 256; i++ {
		total += counts[i]
		_ = binary.Write(&buf, binary.BigEndian, total)
	}
	for _, e := range sorted {
		buf.Write(e.Hash.Bytes())
	}
	for _, e := range sorted {
		_ = binary.Write(&buf, binary.BigEndian, e.CRC32)
	}
	var large []uint64
	for _, e := range sorted {
		if e.Offset < uint64(idxLargeOffset) {
			_ = binary.Write(&buf, binary.BigEndian, uint32(e.Offset))
			continue
		}
		_ = binary.Write(&buf, binary.BigEndian, idxLargeOffset|uint32(len(large)))
		large = append(large, e.Offset)
	}
	for _, off := range large {
		_ = binary.Write(&buf, binary.BigEndian, off)
	}
	buf.Write(packChecksum)
	sum := sha1.Sum(buf.Bytes())
	buf.Write(sum[:])
	return buf.Bytes()
}

func compressForTest(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("compress: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("compress close: %v", err)
	}
	return buf.Bytes()
}

func objectTypeToPackType(t ObjectType) packKind {
	for k, ot := range kindTypes {
		if ot == t {
			return k
		}
	}
	return kindBlob
}

func encodePackHeader(count uint32) []byte {
	b := binary.BigEndian.AppendUint32([]byte("PACK"), packVersion)
	return binary.BigEndian.AppendUint32(b, count)
}

func encodePackEntryHeader(kind packKind, size uint64) []byte {
	first := byte(kind&0x7)<<4 | byte(size&0x0f)
	rest := size >> 4
	if rest == 0 {
		return []byte{first}
	}
	out := []byte{first | 0x80}
	for ; rest >= 0x80; rest >>= 7 {
		out = append(out, byte(rest&0x7f)|0x80)
	}
	return append(out, byte(rest))
}

// encodeOfsDeltaDistance writes the most significant group first, taking one
// off each higher group to mirror readBaseDistance.
func encodeOfsDeltaDistance(distance uint64) []byte {
	groups := []byte{byte(distance & 0x7f)}
	for distance >>= 7; distance > 0; distance >>= 7 {
		distance--
		groups = append(groups, byte(distance&0x7f)|0x80)
	}
	slices.Reverse(groups)
	return groups
}

// insertOnlyDelta encodes target as literal inserts.
func insertOnlyDelta(base, target []byte) []byte {
	var out bytes.Buffer
	out.Write(binary.AppendUvarint(nil, uint64(len(base))))
	out.Write(binary.AppendUvarint(nil, uint64(len(target))))
	for pos := 0; pos < len(target); {
		chunk := min(len(target)-pos, 127)
		out.WriteByte(byte(chunk))
		out.Write(target[pos : pos+chunk])
		pos += chunk
	}
	return out.Bytes()
}

// copyThenInsertDelta copies base[off:off+n] and appends tail.
func copyThenInsertDelta(base []byte, off, n int, tail []byte) []byte {
	var out bytes.Buffer
	out.Write(binary.AppendUvarint(nil, uint64(len(base))))
	out.Write(binary.AppendUvarint(nil, uint64(n + len(tail))))
	out.Write([]byte{0x80 | 0x01 | 0x10, byte(off), byte(n)})
	out.WriteByte(byte(len(tail)))
	out.Write(tail)
	return out.Bytes()
}
