package object

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

// HashSize is the length in bytes of a raw object id.
const HashSize = sha1.Size

// ZeroHash is the "no object" sentinel: unborn refs, the empty side of a
// diff, and the old/new side of reflog entries for creation and deletion.
const ZeroHash Hash = ""

var zeroHex = strings.Repeat("0", HashSize*2)

// HashBytes computes the raw SHA-1 of data.
func HashBytes(data []byte) Hash {
	sum := sha1.Sum(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// HashObject computes the SHA-1 of the envelope "type len\0content", the
// same id git assigns to the object.
func HashObject(objType ObjectType, data []byte) Hash {
	h := sha1.New()
	h.Write(objectHeader(objType, len(data)))
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

func objectHeader(objType ObjectType, n int) []byte {
	return []byte(fmt.Sprintf("%s %d\x00", objType, n))
}

// ParseHash validates a 40-character hex id. The all-zero id parses to
// ZeroHash.
func ParseHash(s string) (Hash, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != HashSize*2 {
		return ZeroHash, fmt.Errorf("parse hash %q: want %d hex chars", s, HashSize*2)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return ZeroHash, fmt.Errorf("parse hash %q: %w", s, err)
	}
	if s == zeroHex {
		return ZeroHash, nil
	}
	return Hash(s), nil
}

// HashFromBytes converts a raw 20-byte id.
func HashFromBytes(raw []byte) (Hash, error) {
	if len(raw) != HashSize {
		return ZeroHash, fmt.Errorf("raw hash length %d, want %d", len(raw), HashSize)
	}
	return Hash(hex.EncodeToString(raw)), nil
}

// IsZero reports whether h names no object.
func (h Hash) IsZero() bool {
	return h == ZeroHash || string(h) == zeroHex
}

// Hex renders h as 40 hex characters; ZeroHash renders as all zeros.
func (h Hash) Hex() string {
	if h.IsZero() {
		return zeroHex
	}
	return string(h)
}

// Bytes returns the raw 20-byte form. ZeroHash yields 20 zero bytes.
func (h Hash) Bytes() []byte {
	raw, err := hex.DecodeString(h.Hex())
	if err != nil || len(raw) != HashSize {
		return make([]byte, HashSize)
	}
	return raw
}

// Short returns the first 7 hex characters.
func (h Hash) Short() string {
	s := h.Hex()
	if len(s) < 7 {
		return s
	}
	return s[:7]
}

func (h Hash) String() string {
	return h.Hex()
}
