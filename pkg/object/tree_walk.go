package object

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// TreeFile is a non-tree entry of a flattened tree with its full
// slash-separated path.
type TreeFile struct {
	Path string
	Mode string
	Hash Hash
}

// FlattenTree walks a tree recursively and returns every blob, symlink and
// gitlink entry in tree order. ZeroHash flattens to nothing.
func (s *Store) FlattenTree(h Hash) ([]TreeFile, error) {
	var out []TreeFile
	err := s.WalkTree(h, func(p string, e TreeEntry) error {
		if !e.IsDir() {
			out = append(out, TreeFile{Path: p, Mode: NormalizeMode(e.Mode), Hash: e.Hash})
		}
		return nil
	})
	return out, err
}

// WalkTree calls fn for every entry below h, parents before children.
// Returning ErrSkipTree from fn for a directory skips its contents.
func (s *Store) WalkTree(h Hash, fn func(path string, e TreeEntry) error) error {
	return s.walkTree(h, "", fn)
}

// ErrSkipTree tells WalkTree not to descend into the current directory.
var ErrSkipTree = errors.New("skip tree")

func (s *Store) walkTree(h Hash, prefix string, fn func(string, TreeEntry) error) error {
	tr, err := s.ReadTree(h)
	if err != nil {
		return fmt.Errorf("walk tree %s: %w", prefix, err)
	}
	for _, e := range tr.Entries {
		full := e.Name
		if prefix != "" {
			full = path.Join(prefix, e.Name)
		}
		if err := fn(full, e); err != nil {
			if errors.Is(err, ErrSkipTree) && e.IsDir() {
				continue
			}
			return err
		}
		if e.IsDir() {
			if err := s.walkTree(e.Hash, full, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// TreeEntryByPath finds the entry at the slash-separated relPath below the
// tree h. Directories are returned as well as files.
func (s *Store) TreeEntryByPath(h Hash, relPath string) (TreeEntry, error) {
	relPath = strings.Trim(relPath, "/")
	if relPath == "" {
		return TreeEntry{}, fmt.Errorf("tree entry: empty path: %w", ErrNotFound)
	}
	current := h
	parts := strings.Split(relPath, "/")
	for i, part := range parts {
		tr, err := s.ReadTree(current)
		if err != nil {
			return TreeEntry{}, fmt.Errorf("tree entry %q: %w", relPath, err)
		}
		entry, ok := tr.Find(part)
		if !ok {
			return TreeEntry{}, fmt.Errorf("tree entry %q: %w", relPath, ErrNotFound)
		}
		if i == len(parts)-1 {
			return entry, nil
		}
		if !entry.IsDir() {
			return TreeEntry{}, fmt.Errorf("tree entry %q: %s is not a directory: %w", relPath, part, ErrNotFound)
		}
		current = entry.Hash
	}
	return TreeEntry{}, fmt.Errorf("tree entry %q: %w", relPath, ErrNotFound)
}
