package index

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"time"

	"github.com/go-git/go-billy/v5/util"
	"github.com/odvcencio/weft/pkg/object"
)

var indexSignature = [4]byte{'D', 'I', 'R', 'C'}

const (
	entryFixedSize = 62

	flagAssumeValid = 0x8000
	flagExtended    = 0x4000
	flagStageMask   = 0x3000
	flagStageShift  = 12
	flagNameMask    = 0x0fff

	extFlagSkipWorktree = 0x4000
	extFlagIntentToAdd  = 0x2000
)

// ErrCorrupt reports a malformed index file.
var ErrCorrupt = errors.New("corrupt index")

// Read reloads the entries from the backing file. A missing file leaves
// the index empty.
func (ix *Index) Read() error {
	if ix.fs == nil {
		return fmt.Errorf("read index: %w", ErrNoBackingFile)
	}
	data, err := util.ReadFile(ix.fs, ix.name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			ix.entries = nil
			return nil
		}
		return fmt.Errorf("read index: %w", err)
	}
	version, entries, err := Decode(data)
	if err != nil {
		return fmt.Errorf("read index: %w", err)
	}
	ix.version = version
	ix.entries = entries
	return nil
}

// Write persists the entries atomically: the encoded index goes to a temp
// file in the same directory which is then renamed over the target.
func (ix *Index) Write() error {
	if ix.fs == nil {
		return fmt.Errorf("write index: %w", ErrNoBackingFile)
	}
	data := Encode(ix.entries)

	dir := path.Dir(ix.name)
	if err := ix.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write index: mkdir: %w", err)
	}
	tmp, err := ix.fs.TempFile(dir, "index-tmp-")
	if err != nil {
		return fmt.Errorf("write index: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		ix.fs.Remove(tmpName)
		return fmt.Errorf("write index: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		ix.fs.Remove(tmpName)
		return fmt.Errorf("write index: close temp: %w", err)
	}
	if err := ix.fs.Rename(tmpName, ix.name); err != nil {
		ix.fs.Remove(tmpName)
		return fmt.Errorf("write index: rename: %w", err)
	}
	ix.logger.Debug("index written", "entries", len(ix.entries))
	return nil
}

// Encode renders entries in DIRC format. Version 3 is used only when an
// entry carries extended flags.
func Encode(entries []Entry) []byte {
	version := uint32(2)
	for i := range entries {
		if entries[i].extended() {
			version = 3
			break
		}
	}

	var buf bytes.Buffer
	buf.Write(indexSignature[:])
	binary.Write(&buf, binary.BigEndian, version)
	binary.Write(&buf, binary.BigEndian, uint32(len(entries)))

	for i := range entries {
		e := &entries[i]
		start := buf.Len()
		putTime(&buf, e.CTime)
		putTime(&buf, e.ModTime)
		for _, v := range []uint32{e.Dev, e.Ino, modeBits(e.Mode), e.UID, e.GID, e.Size} {
			binary.Write(&buf, binary.BigEndian, v)
		}
		buf.Write(e.Hash.Bytes())

		flags := uint16(e.Stage) << flagStageShift & flagStageMask
		if len(e.Path) < flagNameMask {
			flags |= uint16(len(e.Path))
		} else {
			flags |= flagNameMask
		}
		if e.AssumeValid {
			flags |= flagAssumeValid
		}
		if e.extended() {
			flags |= flagExtended
		}
		binary.Write(&buf, binary.BigEndian, flags)
		if e.extended() {
			var ext uint16
			if e.SkipWorktree {
				ext |= extFlagSkipWorktree
			}
			if e.IntentToAdd {
				ext |= extFlagIntentToAdd
			}
			binary.Write(&buf, binary.BigEndian, ext)
		}
		buf.WriteString(e.Path)

		// 1-8 NULs so the entry length is a multiple of eight.
		n := buf.Len() - start
		buf.Write(make([]byte, (n+8)&^7-n))
	}

	sum := sha1.Sum(buf.Bytes())
	buf.Write(sum[:])
	return buf.Bytes()
}

// Decode parses a DIRC file of version 2 or 3. The trailing checksum is
// verified and extensions are skipped.
func Decode(data []byte) (uint32, []Entry, error) {
	if len(data) < 12+sha1.Size {
		return 0, nil, fmt.Errorf("%w: truncated", ErrCorrupt)
	}
	body, trailer := data[:len(data)-sha1.Size], data[len(data)-sha1.Size:]
	if sum := sha1.Sum(body); !bytes.Equal(sum[:], trailer) {
		return 0, nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	if !bytes.Equal(body[:4], indexSignature[:]) {
		return 0, nil, fmt.Errorf("%w: bad signature %q", ErrCorrupt, body[:4])
	}
	version := binary.BigEndian.Uint32(body[4:8])
	if version != 2 && version != 3 {
		return 0, nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, version)
	}
	count := binary.BigEndian.Uint32(body[8:12])

	entries := make([]Entry, 0, count)
	pos := 12
	for n := uint32(0); n < count; n++ {
		if pos+entryFixedSize > len(body) {
			return 0, nil, fmt.Errorf("%w: entry %d truncated", ErrCorrupt, n)
		}
		start := pos
		raw := body[pos:]
		u32 := func(off int) uint32 { return binary.BigEndian.Uint32(raw[off:]) }
		hash, err := object.HashFromBytes(raw[40:60])
		if err != nil {
			return 0, nil, fmt.Errorf("%w: entry %d: %v", ErrCorrupt, n, err)
		}
		e := Entry{
			CTime:   time.Unix(int64(u32(0)), int64(u32(4))),
			ModTime: time.Unix(int64(u32(8)), int64(u32(12))),
			Dev:     u32(16),
			Ino:     u32(20),
			Mode:    strconv.FormatUint(uint64(u32(24)), 8),
			UID:     u32(28),
			GID:     u32(32),
			Size:    u32(36),
			Hash:    hash,
		}
		flags := binary.BigEndian.Uint16(raw[60:62])
		e.Stage = Stage(flags & flagStageMask >> flagStageShift)
		e.AssumeValid = flags&flagAssumeValid != 0
		pos += entryFixedSize
		if flags&flagExtended != 0 {
			if version < 3 || pos+2 > len(body) {
				return 0, nil, fmt.Errorf("%w: entry %d: unexpected extended flags", ErrCorrupt, n)
			}
			ext := binary.BigEndian.Uint16(body[pos:])
			e.SkipWorktree = ext&extFlagSkipWorktree != 0
			e.IntentToAdd = ext&extFlagIntentToAdd != 0
			pos += 2
		}
		end := bytes.IndexByte(body[pos:], 0)
		if end < 0 {
			return 0, nil, fmt.Errorf("%w: entry %d: unterminated path", ErrCorrupt, n)
		}
		e.Path = string(body[pos : pos+end])
		pos += end
		length := pos - start
		pos = start + (length+8)&^7
		if pos > len(body) {
			return 0, nil, fmt.Errorf("%w: entry %d: padding truncated", ErrCorrupt, n)
		}
		if k := len(entries); k > 0 && compareKey(e.Path, e.Stage, &entries[k-1]) <= 0 {
			return 0, nil, fmt.Errorf("%w: entries out of order at %q", ErrCorrupt, e.Path)
		}
		entries = append(entries, e)
	}

	for pos < len(body) {
		if pos+8 > len(body) {
			return 0, nil, fmt.Errorf("%w: extension header truncated", ErrCorrupt)
		}
		size := int(binary.BigEndian.Uint32(body[pos+4:]))
		pos += 8 + size
		if pos > len(body) {
			return 0, nil, fmt.Errorf("%w: extension %q truncated", ErrCorrupt, body[pos-8-size:pos-4-size])
		}
	}
	return version, entries, nil
}

func putTime(buf *bytes.Buffer, t time.Time) {
	var sec, nsec uint32
	if !t.IsZero() {
		sec, nsec = uint32(t.Unix()), uint32(t.Nanosecond())
	}
	binary.Write(buf, binary.BigEndian, sec)
	binary.Write(buf, binary.BigEndian, nsec)
}

func modeBits(mode string) uint32 {
	v, err := strconv.ParseUint(object.NormalizeMode(mode), 8, 32)
	if err != nil {
		return 0o100644
	}
	return uint32(v)
}
