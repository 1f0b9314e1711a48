package repo

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/odvcencio/weft/pkg/diff"
	"github.com/odvcencio/weft/pkg/diff3"
	"github.com/odvcencio/weft/pkg/index"
	"github.com/odvcencio/weft/pkg/object"
)

// Add stages the worktree files matched by pathspecs and writes the index.
func (r *Repo) Add(pathspecs []string, cb index.MatchedPathCallback) error {
	return r.updateIndex("add", func(ix *index.Index) error { return ix.AddAll(pathspecs, cb) })
}

// Remove unstages the tracked paths matched by pathspecs and writes the
// index. The worktree is untouched.
func (r *Repo) Remove(pathspecs []string, cb index.MatchedPathCallback) error {
	return r.updateIndex("rm", func(ix *index.Index) error { return ix.RemoveAll(pathspecs, cb) })
}

// Update restages tracked paths matched by pathspecs from the worktree,
// dropping the ones deleted there, and writes the index.
func (r *Repo) Update(pathspecs []string, cb index.MatchedPathCallback) error {
	return r.updateIndex("update", func(ix *index.Index) error { return ix.UpdateAll(pathspecs, cb) })
}

func (r *Repo) updateIndex(op string, fn func(*index.Index) error) error {
	if r.worktree == nil {
		return fmt.Errorf("%s: %w", op, ErrBare)
	}
	ix, err := r.Index()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := fn(ix); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := ix.Write(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

type lineKey struct {
	lineno  int
	content string
}

// StageLines stages only the selected lines of the unstaged change to
// path, or, when staged is set, unstages the selected lines of its staged
// change. Additions are matched by new line number and deletions by old
// line number, both with their content, against the patch the same
// direction would produce. Context lines in selected are ignored.
func (r *Repo) StageLines(path string, selected []diff.Line, staged bool) error {
	if r.worktree == nil {
		return fmt.Errorf("stage lines: %w", ErrBare)
	}
	ix, err := r.Index()
	if err != nil {
		return fmt.Errorf("stage lines: %w", err)
	}
	if _, err := ix.Conflict(path); err == nil {
		return fmt.Errorf("stage lines %s: %w", path, ErrConflicted)
	}

	adds := make(map[lineKey]bool)
	dels := make(map[lineKey]bool)
	for _, l := range selected {
		switch l.Origin {
		case diff.LineAddition:
			adds[lineKey{l.NewLineno, l.Content}] = true
		case diff.LineDeletion:
			dels[lineKey{l.OldLineno, l.Content}] = true
		}
	}

	cur, err := ix.Get(path, index.StageNormal)
	tracked := err == nil
	if err != nil && !errors.Is(err, index.ErrNotFound) {
		return fmt.Errorf("stage lines: %w", err)
	}
	var indexData []byte
	if tracked {
		b, err := r.Store.ReadBlob(cur.Hash)
		if err != nil {
			return fmt.Errorf("stage lines: %w", err)
		}
		indexData = b.Data
	}

	var result []byte
	mode := cur.Mode
	if staged {
		if !tracked {
			return fmt.Errorf("stage lines %s: not staged: %w", path, ErrNotFound)
		}
		headData, err := r.headBlob(path)
		if err != nil {
			return fmt.Errorf("stage lines: %w", err)
		}
		result = unapplyLines(headData, indexData, adds, dels)
	} else {
		info, err := r.worktree.Lstat(path)
		if err != nil {
			return fmt.Errorf("stage lines: %w", err)
		}
		wtData, err := index.ReadWorktreeFile(r.worktree, path, info)
		if err != nil {
			return fmt.Errorf("stage lines: %w", err)
		}
		if !tracked {
			mode = index.ModeFromFileInfo(info)
		}
		result = applyLines(indexData, wtData, adds, dels)
		if bytes.Equal(result, wtData) {
			if err := ix.AddByPath(path); err != nil {
				return fmt.Errorf("stage lines: %w", err)
			}
			return r.writeIndex("stage lines", ix)
		}
	}

	h, err := r.Store.WriteBlob(&object.Blob{Data: result})
	if err != nil {
		return fmt.Errorf("stage lines: %w", err)
	}
	// Stat data is cleared so the next status rehashes the worktree file.
	if err := ix.Add(index.Entry{Path: path, Hash: h, Mode: mode, Size: uint32(len(result))}); err != nil {
		return fmt.Errorf("stage lines: %w", err)
	}
	r.logger.Debug("staged lines", "path", path, "selected", len(selected), "unstage", staged, "blob", h.Short())
	return r.writeIndex("stage lines", ix)
}

func (r *Repo) writeIndex(op string, ix *index.Index) error {
	if err := ix.Write(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// headBlob returns the content of path in HEAD's tree, or nil if absent.
func (r *Repo) headBlob(path string) ([]byte, error) {
	tree, err := r.HeadTree()
	if err != nil || tree.IsZero() {
		return nil, err
	}
	e, err := r.Store.TreeEntryByPath(tree, path)
	if errors.Is(err, object.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b, err := r.Store.ReadBlob(e.Hash)
	if err != nil {
		return nil, err
	}
	return b.Data, nil
}

// applyLines walks the old to new diff and keeps old's text except for the
// selected insertions, which are added, and the selected deletions, which
// are dropped.
func applyLines(old, new []byte, adds, dels map[lineKey]bool) []byte {
	var b strings.Builder
	for _, l := range diff3.LineDiff(old, new) {
		switch l.Type {
		case diff3.Equal:
			b.WriteString(l.Content)
		case diff3.Delete:
			if !dels[lineKey{l.OldLine, l.Content}] {
				b.WriteString(l.Content)
			}
		case diff3.Insert:
			if adds[lineKey{l.NewLine, l.Content}] {
				b.WriteString(l.Content)
			}
		}
	}
	return []byte(b.String())
}

// unapplyLines walks the old to new diff and keeps new's text except that
// selected insertions are dropped and selected deletions restored.
func unapplyLines(old, new []byte, adds, dels map[lineKey]bool) []byte {
	var b strings.Builder
	for _, l := range diff3.LineDiff(old, new) {
		switch l.Type {
		case diff3.Equal:
			b.WriteString(l.Content)
		case diff3.Delete:
			if dels[lineKey{l.OldLine, l.Content}] {
				b.WriteString(l.Content)
			}
		case diff3.Insert:
			if !adds[lineKey{l.NewLine, l.Content}] {
				b.WriteString(l.Content)
			}
		}
	}
	return []byte(b.String())
}
