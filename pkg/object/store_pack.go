package object

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/go-git/go-billy/v5/util"
)

// VerifySummary counts what Store.Verify checked.
type VerifySummary struct {
	LooseObjects int
	PackFiles    int
	PackObjects  int
}

const packDir = "objects/pack"

// packFiles parses every objects/pack/*.idx on first use and caches the
// result until ReloadPacks.
func (s *Store) packFiles() ([]*packFile, error) {
	s.packMu.Lock()
	defer s.packMu.Unlock()
	if s.loaded {
		return s.packs, nil
	}

	matches, err := util.Glob(s.fs, path.Join(packDir, "*.idx"))
	if err != nil {
		return nil, fmt.Errorf("list packs: %w", err)
	}
	slices.Sort(matches)

	var packs []*packFile
	for _, idxPath := range matches {
		raw, err := util.ReadFile(s.fs, idxPath)
		if err != nil {
			return nil, fmt.Errorf("pack index %s: %w", path.Base(idxPath), err)
		}
		idx, err := ParsePackIndex(raw)
		if err != nil {
			return nil, fmt.Errorf("pack index %s: %w", path.Base(idxPath), err)
		}
		packs = append(packs, &packFile{
			fs:       s.fs,
			packPath: strings.TrimSuffix(idxPath, ".idx") + ".pack",
			idx:      idx,
		})
		s.logger.Debug("pack index loaded", "index", idxPath, "objects", idx.Len())
	}
	s.packs, s.loaded = packs, true
	return packs, nil
}

// ReloadPacks drops the cached pack list so newly added packs are seen.
func (s *Store) ReloadPacks() {
	s.packMu.Lock()
	defer s.packMu.Unlock()
	s.packs, s.loaded = nil, false
}

func (s *Store) readFromPacks(h Hash) (ObjectType, []byte, error) {
	packs, err := s.packFiles()
	if err != nil {
		return "", nil, err
	}
	for _, p := range packs {
		if _, ok := p.idx.Find(h); ok {
			return p.read(h, s.Read)
		}
	}
	return "", nil, ErrNotFound
}

// Verify rehashes every loose object, checks each pack's trailer against
// its contents and index, and rehashes every packed object.
func (s *Store) Verify() (*VerifySummary, error) {
	var sum VerifySummary

	loose, err := s.looseIDs()
	if err != nil {
		return nil, err
	}
	for _, h := range loose {
		if err := s.rehash(h, s.readLoose); err != nil {
			return nil, fmt.Errorf("verify loose: %w", err)
		}
		sum.LooseObjects++
	}

	packs, err := s.packFiles()
	if err != nil {
		return nil, err
	}
	for _, p := range packs {
		name := path.Base(p.packPath)
		if err := p.checksum(); err != nil {
			return nil, fmt.Errorf("verify pack %s: %w", name, err)
		}
		read := func(h Hash) (ObjectType, []byte, error) { return p.read(h, s.Read) }
		for _, e := range p.idx.Entries() {
			if err := s.rehash(e.Hash, read); err != nil {
				return nil, fmt.Errorf("verify pack %s: %w", name, err)
			}
			sum.PackObjects++
		}
		sum.PackFiles++
	}
	return &sum, nil
}

func (s *Store) rehash(h Hash, read func(Hash) (ObjectType, []byte, error)) error {
	objType, data, err := read(h)
	if err != nil {
		return fmt.Errorf("%s: %w", h, err)
	}
	if got := HashObject(objType, data); got != h {
		return fmt.Errorf("%s: %w (content hashes to %s)", h, ErrHashMismatch, got)
	}
	return nil
}

// looseIDs lists objects/xx/yyyy... files whose names spell a lowercase id.
func (s *Store) looseIDs() ([]Hash, error) {
	dirs, err := s.fs.ReadDir("objects")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	var ids []Hash
	for _, d := range dirs {
		if !d.IsDir() || len(d.Name()) != 2 {
			continue
		}
		files, err := s.fs.ReadDir(path.Join("objects", d.Name()))
		if err != nil {
			return nil, fmt.Errorf("list objects/%s: %w", d.Name(), err)
		}
		for _, f := range files {
			name := d.Name() + f.Name()
			if h, err := ParseHash(name); err == nil && !f.IsDir() && string(h) == name {
				ids = append(ids, h)
			}
		}
	}
	slices.Sort(ids)
	return ids, nil
}
