package object

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"fmt"
	"io"

	"github.com/go-git/go-billy/v5"
	"github.com/klauspost/compress/zlib"
)

// maxDeltaChain bounds delta resolution so a corrupt pack whose bases form
// a cycle cannot recurse forever.
const maxDeltaChain = 4096

// packFile pairs a parsed idx with its pack on the store's filesystem.
// Objects are read by seeking to the offset the index records, so a lookup
// never inflates more than the entry and its delta bases.
type packFile struct {
	fs       billy.Filesystem
	packPath string
	idx      *PackIndex
}

// baseLookup resolves a REF_DELTA base that lives outside the pack.
type baseLookup func(Hash) (ObjectType, []byte, error)

func (p *packFile) read(h Hash, external baseLookup) (ObjectType, []byte, error) {
	entry, ok := p.idx.Find(h)
	if !ok {
		return "", nil, ErrNotFound
	}
	f, err := p.fs.Open(p.packPath)
	if err != nil {
		return "", nil, fmt.Errorf("open pack %s: %w", p.packPath, err)
	}
	defer f.Close()
	return p.readAt(f, entry.Offset, external, 0)
}

func (p *packFile) readAt(f io.ReaderAt, offset uint64, external baseLookup, depth int) (ObjectType, []byte, error) {
	if depth > maxDeltaChain {
		return "", nil, fmt.Errorf("%w: delta chain deeper than %d at offset %d", ErrCorrupt, maxDeltaChain, offset)
	}
	br := bufio.NewReader(io.NewSectionReader(f, int64(offset), 1<<62))
	kind, size, err := readEntryHeader(br)
	if err != nil {
		return "", nil, fmt.Errorf("%w: offset %d: %v", ErrCorrupt, offset, err)
	}

	switch kind {
	case kindOfsDelta:
		dist, err := readBaseDistance(br)
		if err != nil {
			return "", nil, fmt.Errorf("%w: offset %d: %v", ErrCorrupt, offset, err)
		}
		if dist == 0 || dist > offset {
			return "", nil, fmt.Errorf("%w: offset %d: bad delta base distance %d", ErrCorrupt, offset, dist)
		}
		baseType, base, err := p.readAt(f, offset-dist, external, depth+1)
		if err != nil {
			return "", nil, err
		}
		return p.patch(br, size, baseType, base, offset)

	case kindRefDelta:
		raw := make([]byte, HashSize)
		if _, err := io.ReadFull(br, raw); err != nil {
			return "", nil, fmt.Errorf("%w: offset %d: ref-delta base: %v", ErrCorrupt, offset, err)
		}
		baseHash, _ := HashFromBytes(raw)
		var (
			baseType ObjectType
			base     []byte
		)
		if e, ok := p.idx.Find(baseHash); ok {
			baseType, base, err = p.readAt(f, e.Offset, external, depth+1)
		} else {
			baseType, base, err = external(baseHash)
		}
		if err != nil {
			return "", nil, fmt.Errorf("ref-delta base %s: %w", baseHash, err)
		}
		return p.patch(br, size, baseType, base, offset)
	}

	objType, ok := kindTypes[kind]
	if !ok {
		return "", nil, fmt.Errorf("%w: offset %d: unsupported packed object type %d", ErrCorrupt, offset, kind)
	}
	data, err := inflateExact(br, size)
	if err != nil {
		return "", nil, fmt.Errorf("%w: offset %d: %v", ErrCorrupt, offset, err)
	}
	return objType, data, nil
}

func (p *packFile) patch(r io.Reader, size uint64, baseType ObjectType, base []byte, offset uint64) (ObjectType, []byte, error) {
	delta, err := inflateExact(r, size)
	if err != nil {
		return "", nil, fmt.Errorf("%w: offset %d: %v", ErrCorrupt, offset, err)
	}
	out, err := patchDelta(base, delta)
	if err != nil {
		return "", nil, fmt.Errorf("%w: offset %d: %v", ErrCorrupt, offset, err)
	}
	return baseType, out, nil
}

func inflateExact(r io.Reader, size uint64) ([]byte, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("zlib reader: %w", err)
	}
	defer zr.Close()
	out := make([]byte, size)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("inflate %d bytes: %w", size, err)
	}
	return out, nil
}

// checksum recomputes the pack's SHA-1 trailer and compares it with both
// the trailer stored in the pack and the one recorded by the index.
func (p *packFile) checksum() error {
	f, err := p.fs.Open(p.packPath)
	if err != nil {
		return fmt.Errorf("open pack %s: %w", p.packPath, err)
	}
	defer f.Close()

	info, err := p.fs.Stat(p.packPath)
	if err != nil {
		return fmt.Errorf("stat pack %s: %w", p.packPath, err)
	}
	size := info.Size()
	if size < packHeaderLen+packTrailerLen {
		return fmt.Errorf("%w: pack %s too short", ErrCorrupt, p.packPath)
	}

	header := make([]byte, packHeaderLen)
	if _, err := f.ReadAt(header, 0); err != nil {
		return fmt.Errorf("read pack header: %w", err)
	}
	count, err := parsePackHeader(header)
	if err != nil {
		return fmt.Errorf("pack %s: %w", p.packPath, err)
	}
	if int(count) != p.idx.Len() {
		return fmt.Errorf("%w: pack %s holds %d objects, index lists %d", ErrCorrupt, p.packPath, count, p.idx.Len())
	}

	h := sha1.New()
	if _, err := io.Copy(h, io.NewSectionReader(f, 0, size-packTrailerLen)); err != nil {
		return fmt.Errorf("hash pack %s: %w", p.packPath, err)
	}
	trailer := make([]byte, packTrailerLen)
	if _, err := f.ReadAt(trailer, size-packTrailerLen); err != nil {
		return fmt.Errorf("read pack trailer: %w", err)
	}
	if !bytes.Equal(h.Sum(nil), trailer) {
		return fmt.Errorf("%w: pack %s checksum mismatch", ErrCorrupt, p.packPath)
	}
	if !bytes.Equal(trailer, p.idx.PackChecksum.Bytes()) {
		return fmt.Errorf("%w: pack %s does not match its index", ErrCorrupt, p.packPath)
	}
	return nil
}
