package object

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"strconv"
	"sync"

	"github.com/go-git/go-billy/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zlib"
)

var (
	// ErrNotFound is returned when no loose or packed object has the id.
	ErrNotFound = errors.New("object not found")
	// ErrHashMismatch is returned when stored bytes do not hash to their id.
	ErrHashMismatch = errors.New("object hash mismatch")
	// ErrCorrupt is returned for objects, packs or indexes that cannot be
	// decoded.
	ErrCorrupt = errors.New("corrupt object data")
	// ErrTypeMismatch is returned by the typed readers.
	ErrTypeMismatch = errors.New("object type mismatch")
)

// DefaultCacheSize is the number of decoded objects a Store keeps in memory.
const DefaultCacheSize = 1024

type cachedObject struct {
	typ  ObjectType
	data []byte
}

// Store is a content-addressed object store laid out the way git lays out
// its object database: loose zlib-deflated objects under objects/ab/cdef...
// plus read-only pack files under objects/pack. The store is append-only.
type Store struct {
	fs     billy.Filesystem
	cache  *lru.Cache[Hash, cachedObject]
	logger *slog.Logger

	packMu sync.Mutex
	packs  []*packFile
	loaded bool
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithCacheSize sets the decoded-object cache capacity. Zero disables it.
func WithCacheSize(n int) StoreOption {
	return func(s *Store) {
		if n <= 0 {
			s.cache = nil
			return
		}
		s.cache, _ = lru.New[Hash, cachedObject](n)
	}
}

// WithStoreLogger sets the logger used for debug output.
func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates a Store on fs, which is rooted at the repository
// directory (the one holding objects/). Directories are created lazily on
// first write.
func NewStore(fsys billy.Filesystem, opts ...StoreOption) *Store {
	s := &Store{
		fs:     fsys,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	s.cache, _ = lru.New[Hash, cachedObject](DefaultCacheSize)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// objectPath returns the loose-object path for a given hash.
func objectPath(h Hash) string {
	hex := h.Hex()
	return path.Join("objects", hex[:2], hex[2:])
}

// Has reports whether the store contains an object with the given hash.
func (s *Store) Has(h Hash) bool {
	if h.IsZero() {
		return false
	}
	if s.cache != nil && s.cache.Contains(h) {
		return true
	}
	if _, err := s.fs.Stat(objectPath(h)); err == nil {
		return true
	}
	packs, err := s.packFiles()
	if err != nil {
		return false
	}
	for _, p := range packs {
		if _, ok := p.idx.Find(h); ok {
			return true
		}
	}
	return false
}

// Write stores an object and returns its content hash. The loose file holds
// the zlib-deflated envelope "type len\0content". Writing an object that
// already exists is a no-op. New objects are written to a temp file and
// renamed into place.
func (s *Store) Write(objType ObjectType, data []byte) (Hash, error) {
	h := HashObject(objType, data)
	if s.Has(h) {
		return h, nil
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(objectHeader(objType, len(data))); err != nil {
		return ZeroHash, fmt.Errorf("object write compress: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return ZeroHash, fmt.Errorf("object write compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return ZeroHash, fmt.Errorf("object write compress: %w", err)
	}

	dest := objectPath(h)
	dir := path.Dir(dest)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return ZeroHash, fmt.Errorf("object write mkdir: %w", err)
	}
	tmp, err := s.fs.TempFile(dir, ".tmp-obj-")
	if err != nil {
		return ZeroHash, fmt.Errorf("object write tmpfile: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return ZeroHash, fmt.Errorf("object write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return ZeroHash, fmt.Errorf("object write close: %w", err)
	}
	if err := s.fs.Rename(tmpName, dest); err != nil {
		s.fs.Remove(tmpName)
		return ZeroHash, fmt.Errorf("object write rename: %w", err)
	}

	s.logger.Debug("object written", "hash", h, "type", objType, "size", len(data))
	return h, nil
}

// Read retrieves an object by hash, returning its type and raw content.
// Loose objects take precedence over packs. The content is re-hashed and
// must match h.
func (s *Store) Read(h Hash) (ObjectType, []byte, error) {
	if h.IsZero() {
		return "", nil, fmt.Errorf("object read %s: %w", h, ErrNotFound)
	}
	if s.cache != nil {
		if c, ok := s.cache.Get(h); ok {
			return c.typ, bytes.Clone(c.data), nil
		}
	}

	objType, data, err := s.readLoose(h)
	if errors.Is(err, ErrNotFound) {
		objType, data, err = s.readFromPacks(h)
	}
	if err != nil {
		return "", nil, fmt.Errorf("object read %s: %w", h, err)
	}
	if computed := HashObject(objType, data); computed != h {
		return "", nil, fmt.Errorf("object read %s: %w (computed %s)", h, ErrHashMismatch, computed)
	}

	if s.cache != nil {
		s.cache.Add(h, cachedObject{typ: objType, data: bytes.Clone(data)})
	}
	return objType, data, nil
}

func (s *Store) readLoose(h Hash) (ObjectType, []byte, error) {
	f, err := s.fs.Open(objectPath(h))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, ErrNotFound
		}
		return "", nil, err
	}
	defer f.Close()

	zr, err := zlib.NewReader(f)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return "", nil, fmt.Errorf("%w: inflate: %v", ErrCorrupt, err)
	}
	return parseObjectEnvelope(raw)
}

// parseObjectEnvelope splits "type len\0content" and checks the length.
func parseObjectEnvelope(raw []byte) (ObjectType, []byte, error) {
	nul := bytes.IndexByte(raw, 0)
	if nul < 0 {
		return "", nil, fmt.Errorf("%w: invalid format (no NUL)", ErrCorrupt)
	}
	typeName, lenText, ok := bytes.Cut(raw[:nul], []byte(" "))
	if !ok {
		return "", nil, fmt.Errorf("%w: invalid header %q", ErrCorrupt, raw[:nul])
	}
	objType, ok := ParseObjectType(string(typeName))
	if !ok {
		return "", nil, fmt.Errorf("%w: unknown type %q", ErrCorrupt, typeName)
	}
	length, err := strconv.Atoi(string(lenText))
	if err != nil {
		return "", nil, fmt.Errorf("%w: invalid length %q", ErrCorrupt, lenText)
	}
	content := raw[nul+1:]
	if len(content) != length {
		return "", nil, fmt.Errorf("%w: length mismatch (header=%d, actual=%d)", ErrCorrupt, length, len(content))
	}
	return objType, content, nil
}

// ---------------------------------------------------------------------------
// Typed convenience methods
// ---------------------------------------------------------------------------

func (s *Store) readTyped(h Hash, want ObjectType) ([]byte, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != want {
		return nil, fmt.Errorf("object %s: %w: got %q, want %q", h, ErrTypeMismatch, objType, want)
	}
	return data, nil
}

// WriteBlob serializes and stores a Blob.
func (s *Store) WriteBlob(b *Blob) (Hash, error) {
	return s.Write(TypeBlob, MarshalBlob(b))
}

// ReadBlob reads and deserializes a Blob.
func (s *Store) ReadBlob(h Hash) (*Blob, error) {
	data, err := s.readTyped(h, TypeBlob)
	if err != nil {
		return nil, err
	}
	return UnmarshalBlob(data)
}

// WriteTree serializes and stores a TreeObj.
func (s *Store) WriteTree(tr *TreeObj) (Hash, error) {
	data, err := MarshalTree(tr)
	if err != nil {
		return ZeroHash, err
	}
	return s.Write(TypeTree, data)
}

// ReadTree reads and deserializes a TreeObj. ZeroHash reads as the empty
// tree.
func (s *Store) ReadTree(h Hash) (*TreeObj, error) {
	if h.IsZero() {
		return &TreeObj{}, nil
	}
	data, err := s.readTyped(h, TypeTree)
	if err != nil {
		return nil, err
	}
	return UnmarshalTree(data)
}

// WriteCommit serializes and stores a CommitObj.
func (s *Store) WriteCommit(c *CommitObj) (Hash, error) {
	return s.Write(TypeCommit, MarshalCommit(c))
}

// ReadCommit reads and deserializes a CommitObj.
func (s *Store) ReadCommit(h Hash) (*CommitObj, error) {
	data, err := s.readTyped(h, TypeCommit)
	if err != nil {
		return nil, err
	}
	return UnmarshalCommit(data)
}

// WriteTag serializes and stores an annotated tag.
func (s *Store) WriteTag(t *TagObj) (Hash, error) {
	return s.Write(TypeTag, MarshalTag(t))
}

// ReadTag reads and deserializes an annotated tag.
func (s *Store) ReadTag(h Hash) (*TagObj, error) {
	data, err := s.readTyped(h, TypeTag)
	if err != nil {
		return nil, err
	}
	return UnmarshalTag(data)
}

// Peel follows annotated tags until it reaches a non-tag object.
func (s *Store) Peel(h Hash) (Hash, ObjectType, error) {
	for i := 0; i < 64; i++ {
		objType, data, err := s.Read(h)
		if err != nil {
			return ZeroHash, "", err
		}
		if objType != TypeTag {
			return h, objType, nil
		}
		tag, err := UnmarshalTag(data)
		if err != nil {
			return ZeroHash, "", err
		}
		h = tag.TargetHash
	}
	return ZeroHash, "", fmt.Errorf("peel %s: tag chain too deep", h)
}
