package index

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"

	"github.com/go-git/go-billy/v5"
	"github.com/odvcencio/weft/pkg/ignore"
)

// MatchedPathCallback is consulted for every path a bulk operation is about
// to touch, in sorted order. Returning false skips the path; returning an
// error aborts the operation with that error.
type MatchedPathCallback func(path, matchedPattern string) (bool, error)

// WalkFunc receives worktree paths from WalkWorktree. Ignored directories
// are reported once with info.IsDir() and not descended into.
type WalkFunc func(p string, info os.FileInfo, ignored bool) error

// WalkWorktree visits every file below the root of wt in sorted order,
// skipping .git. ign may be nil.
func WalkWorktree(wt billy.Filesystem, ign *ignore.Checker, fn WalkFunc) error {
	return walkDir(wt, ign, "", fn)
}

func walkDir(wt billy.Filesystem, ign *ignore.Checker, dir string, fn WalkFunc) error {
	infos, err := wt.ReadDir(dir)
	if err != nil {
		if dir != "" && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("walk worktree %q: %w", dir, err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
	for _, info := range infos {
		p := info.Name()
		if dir != "" {
			p = path.Join(dir, info.Name())
		}
		if p == ".git" {
			continue
		}
		isDir := info.IsDir()
		ignored := ign != nil && ign.IsIgnored(p, isDir)
		if isDir {
			if ignored {
				if err := fn(p, info, true); err != nil {
					return err
				}
				continue
			}
			if err := walkDir(wt, ign, p, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(p, info, ignored); err != nil {
			return err
		}
	}
	return nil
}

func proceed(cb MatchedPathCallback, p, matched string) (bool, error) {
	if cb == nil {
		return true, nil
	}
	return cb(p, matched)
}

// trackedPaths returns every path present at any stage, in order.
func (ix *Index) trackedPaths() []string {
	var out []string
	for i := range ix.entries {
		if n := len(out); n == 0 || out[n-1] != ix.entries[i].Path {
			out = append(out, ix.entries[i].Path)
		}
	}
	return out
}

// AddAll stages every worktree file matched by pathspecs. Untracked ignored
// files are left alone, tracked files gone from the worktree are removed
// from the index. Unchanged files whose stat data still matches are not
// re-hashed.
func (ix *Index) AddAll(pathspecs []string, cb MatchedPathCallback) error {
	if ix.worktree == nil {
		return fmt.Errorf("add all: %w", ErrNoWorktree)
	}
	ps := NewPathspec(pathspecs)

	present := make(map[string]os.FileInfo)
	err := WalkWorktree(ix.worktree, nil, func(p string, info os.FileInfo, _ bool) error {
		present[p] = info
		return nil
	})
	if err != nil {
		return fmt.Errorf("add all: %w", err)
	}

	candidates := make(map[string]struct{}, len(present))
	for p := range present {
		candidates[p] = struct{}{}
	}
	for _, p := range ix.trackedPaths() {
		candidates[p] = struct{}{}
	}
	paths := make([]string, 0, len(candidates))
	for p := range candidates {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		matched, ok := ps.Match(p)
		if !ok {
			continue
		}
		info, exists := present[p]
		lo, hi := ix.pathRange(p)
		tracked := lo < hi
		if !tracked && ix.ignore != nil && ix.ignore.IsIgnored(p, false) {
			continue
		}
		if exists && tracked && hi-lo == 1 && ix.entries[lo].Stage == StageNormal && StatMatches(&ix.entries[lo], info) {
			continue
		}

		ok, err := proceed(cb, p, matched)
		if err != nil {
			return fmt.Errorf("add all: %w", err)
		}
		if !ok {
			continue
		}
		if !exists {
			if err := ix.RemoveByPath(p); err != nil {
				return fmt.Errorf("add all: %w", err)
			}
			continue
		}
		if err := ix.AddByPath(p); err != nil {
			return fmt.Errorf("add all: %w", err)
		}
	}
	return nil
}

// RemoveAll removes every tracked path matched by pathspecs.
func (ix *Index) RemoveAll(pathspecs []string, cb MatchedPathCallback) error {
	ps := NewPathspec(pathspecs)
	for _, p := range ix.trackedPaths() {
		matched, ok := ps.Match(p)
		if !ok {
			continue
		}
		ok, err := proceed(cb, p, matched)
		if err != nil {
			return fmt.Errorf("remove all: %w", err)
		}
		if !ok {
			continue
		}
		if err := ix.RemoveByPath(p); err != nil {
			return fmt.Errorf("remove all: %w", err)
		}
	}
	return nil
}

// UpdateAll refreshes tracked paths matched by pathspecs from the worktree:
// changed files are re-staged and deleted files removed. Untracked files
// are never added.
func (ix *Index) UpdateAll(pathspecs []string, cb MatchedPathCallback) error {
	if ix.worktree == nil {
		return fmt.Errorf("update all: %w", ErrNoWorktree)
	}
	ps := NewPathspec(pathspecs)
	for _, p := range ix.trackedPaths() {
		matched, ok := ps.Match(p)
		if !ok {
			continue
		}
		info, err := ix.worktree.Lstat(p)
		exists := err == nil && !info.IsDir()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("update all: stat %q: %w", p, err)
		}
		if exists {
			if e, gerr := ix.Get(p, StageNormal); gerr == nil && StatMatches(&e, info) {
				continue
			}
		}

		ok, err = proceed(cb, p, matched)
		if err != nil {
			return fmt.Errorf("update all: %w", err)
		}
		if !ok {
			continue
		}
		if !exists {
			if err := ix.RemoveByPath(p); err != nil {
				return fmt.Errorf("update all: %w", err)
			}
			continue
		}
		if err := ix.AddByPath(p); err != nil {
			return fmt.Errorf("update all: %w", err)
		}
	}
	return nil
}
