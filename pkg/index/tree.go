package index

import (
	"fmt"
	"strings"

	"github.com/odvcencio/weft/pkg/object"
)

// WriteTree converts the flat stage-0 entries into nested tree objects,
// writing each to the store, and returns the root tree hash. It fails with
// ErrUnmerged while conflicts remain.
func (ix *Index) WriteTree() (object.Hash, error) {
	if ix.HasConflicts() {
		return object.ZeroHash, fmt.Errorf("write tree: %w", ErrUnmerged)
	}
	var files []Entry
	for _, e := range ix.entries {
		if !e.IntentToAdd {
			files = append(files, e)
		}
	}
	h, err := ix.buildTreeDir(files, "")
	if err != nil {
		return object.ZeroHash, fmt.Errorf("write tree: %w", err)
	}
	return h, nil
}

// buildTreeDir writes the tree for the entries below prefix. entries are
// sorted by path, so every subdirectory's entries are contiguous.
func (ix *Index) buildTreeDir(entries []Entry, prefix string) (object.Hash, error) {
	var tree object.TreeObj
	for i := 0; i < len(entries); {
		rel := strings.TrimPrefix(entries[i].Path, prefix)
		slash := strings.IndexByte(rel, '/')
		if slash < 0 {
			e := entries[i]
			tree.Entries = append(tree.Entries, object.TreeEntry{Name: rel, Mode: e.Mode, Hash: e.Hash})
			i++
			continue
		}

		name := rel[:slash]
		childPrefix := prefix + name + "/"
		j := i
		for j < len(entries) && strings.HasPrefix(entries[j].Path, childPrefix) {
			j++
		}
		sub, err := ix.buildTreeDir(entries[i:j], childPrefix)
		if err != nil {
			return object.ZeroHash, err
		}
		tree.Entries = append(tree.Entries, object.TreeEntry{Name: name, Mode: object.TreeModeDir, Hash: sub})
		i = j
	}

	h, err := ix.store.WriteTree(&tree)
	if err != nil {
		return object.ZeroHash, fmt.Errorf("write tree (prefix=%q): %w", prefix, err)
	}
	return h, nil
}

// ReadTree replaces the contents of the index with the files of tree h.
// Entries keep no stat data, so the next comparison against the worktree
// hashes their content.
func (ix *Index) ReadTree(h object.Hash) error {
	files, err := ix.store.FlattenTree(h)
	if err != nil {
		return fmt.Errorf("read tree %s: %w", h, err)
	}
	entries := make([]Entry, 0, len(files))
	for _, f := range files {
		entries = append(entries, Entry{Path: f.Path, Mode: f.Mode, Hash: f.Hash})
	}
	ix.entries = entries
	return nil
}
