package repo

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5/util"
	"github.com/odvcencio/weft/pkg/index"
	"github.com/odvcencio/weft/pkg/object"
)

// CheckoutOptions controls how a checkout treats local changes.
type CheckoutOptions struct {
	// Force overwrites modified tracked files and untracked files in the
	// way, and resets the index to the target tree.
	Force bool
}

// Checkout switches the working tree to target. A branch name attaches
// HEAD to refs/heads/<target>; any other revision detaches HEAD at the
// commit it names. Without Force, local changes to paths that differ
// between HEAD and target abort the checkout with ErrDirtyWorktree.
func (r *Repo) Checkout(target string, opts CheckoutOptions) error {
	if r.worktree == nil {
		return fmt.Errorf("checkout: %w", ErrBare)
	}
	branchRef := ""
	spec := target
	if _, err := r.Resolve("refs/heads/" + target); err == nil {
		branchRef = "refs/heads/" + target
		spec = branchRef
	} else if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("checkout: %w", err)
	}
	h, c, err := r.resolveCommit(spec)
	if err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	from, err := r.HeadTree()
	if err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	if err := r.checkoutTree(from, c.TreeHash, opts.Force); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	if branchRef != "" {
		err = r.SetHead(branchRef)
	} else {
		err = r.SetHeadDetached(h)
	}
	if err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	return nil
}

// CheckoutTree makes the index and working tree match treeish, a tree or
// a commit, without moving HEAD.
func (r *Repo) CheckoutTree(treeish object.Hash, opts CheckoutOptions) error {
	if r.worktree == nil {
		return fmt.Errorf("checkout tree: %w", ErrBare)
	}
	tree, err := r.peelToTree(treeish)
	if err != nil {
		return fmt.Errorf("checkout tree: %w", err)
	}
	from, err := r.HeadTree()
	if err != nil {
		return fmt.Errorf("checkout tree: %w", err)
	}
	if err := r.checkoutTree(from, tree, opts.Force); err != nil {
		return fmt.Errorf("checkout tree: %w", err)
	}
	return nil
}

func (r *Repo) peelToTree(h object.Hash) (object.Hash, error) {
	peeled, typ, err := r.Store.Peel(h)
	if err != nil {
		return object.ZeroHash, err
	}
	switch typ {
	case object.TypeTree:
		return peeled, nil
	case object.TypeCommit:
		c, err := r.Store.ReadCommit(peeled)
		if err != nil {
			return object.ZeroHash, err
		}
		return c.TreeHash, nil
	}
	return object.ZeroHash, fmt.Errorf("%s is a %s: %w", h.Hex(), typ, ErrInvalid)
}

func flattenMap(store *object.Store, tree object.Hash) (map[string]object.TreeFile, error) {
	files, err := store.FlattenTree(tree)
	if err != nil {
		return nil, err
	}
	m := make(map[string]object.TreeFile, len(files))
	for _, f := range files {
		m[f.Path] = f
	}
	return m, nil
}

// checkoutTree moves the index and worktree from tree from to tree to.
// Without force, staged and unstaged changes to unaffected paths are
// carried over.
func (r *Repo) checkoutTree(from, to object.Hash, force bool) error {
	fromFiles, err := flattenMap(r.Store, from)
	if err != nil {
		return err
	}
	toFiles, err := flattenMap(r.Store, to)
	if err != nil {
		return err
	}
	ix, err := r.Index()
	if err != nil {
		return err
	}
	oldEntries := ix.Entries()
	inIndex := make(map[string]bool, len(oldEntries))
	for _, e := range oldEntries {
		inIndex[e.Path] = true
	}

	changed := make(map[string]bool)
	for p, f := range fromFiles {
		if t, ok := toFiles[p]; !ok || t != f {
			changed[p] = true
		}
	}
	for p := range toFiles {
		if _, ok := fromFiles[p]; !ok {
			changed[p] = true
		}
	}

	if !force {
		dirty, err := r.dirtyPaths(from)
		if err != nil {
			return err
		}
		for _, p := range sortedKeys(changed) {
			if dirty[p] {
				return fmt.Errorf("%q has local changes: %w", p, ErrDirtyWorktree)
			}
			if _, tracked := fromFiles[p]; !tracked && !inIndex[p] {
				if _, err := r.worktree.Lstat(p); err == nil {
					return fmt.Errorf("untracked %q would be overwritten: %w", p, ErrDirtyWorktree)
				}
			}
		}
	}

	removals := make(map[string]bool)
	for p := range fromFiles {
		if _, ok := toFiles[p]; !ok {
			removals[p] = true
		}
	}
	if force {
		for p := range inIndex {
			if _, ok := toFiles[p]; !ok {
				removals[p] = true
			}
		}
	}
	for _, p := range sortedKeys(removals) {
		if err := r.removeWorktreeFile(p); err != nil {
			return err
		}
	}
	for _, p := range sortedKeys(toFiles) {
		if !force && !changed[p] {
			if _, err := r.worktree.Lstat(p); err == nil || inIndex[p] {
				continue
			}
		}
		f := toFiles[p]
		if err := r.checkoutBlob(p, f.Mode, f.Hash); err != nil {
			return err
		}
	}

	ix.Clear()
	for _, p := range sortedKeys(toFiles) {
		if !force && !changed[p] {
			continue
		}
		f := toFiles[p]
		if err := ix.Add(r.statEntry(p, f.Mode, f.Hash)); err != nil {
			return err
		}
	}
	if !force {
		// Paths the checkout left alone keep their staged state.
		for _, e := range oldEntries {
			if changed[e.Path] || removals[e.Path] {
				continue
			}
			if err := ix.Add(e); err != nil {
				return err
			}
		}
	}
	if err := ix.Write(); err != nil {
		return err
	}
	r.logger.Debug("checked out tree", "from", from.Short(), "to", to.Short(), "changed", len(changed), "force", force)
	return nil
}

// statEntry builds an index entry for a freshly written worktree file.
func (r *Repo) statEntry(p, mode string, h object.Hash) index.Entry {
	info, err := r.worktree.Lstat(p)
	if err != nil {
		return index.Entry{Path: p, Mode: mode, Hash: h}
	}
	e := index.EntryFromFileInfo(p, h, info)
	e.Mode = mode
	return e
}

func (r *Repo) checkoutBlob(p, mode string, h object.Hash) error {
	if object.NormalizeMode(mode) == object.TreeModeGitlink {
		return r.worktree.MkdirAll(p, 0o755)
	}
	blob, err := r.Store.ReadBlob(h)
	if err != nil {
		return fmt.Errorf("checkout %q: %w", p, err)
	}
	return r.writeWorktreeFile(p, mode, blob.Data)
}

// writeWorktreeFile replaces whatever is at p, including a directory or a
// file standing where a parent directory must go.
func (r *Repo) writeWorktreeFile(p, mode string, data []byte) error {
	wt := r.worktree
	parts := strings.Split(p, "/")
	for i := 1; i < len(parts); i++ {
		parent := strings.Join(parts[:i], "/")
		if info, err := wt.Lstat(parent); err == nil && !info.IsDir() {
			if err := wt.Remove(parent); err != nil {
				return fmt.Errorf("write %q: %w", p, err)
			}
		}
	}
	if dir := path.Dir(p); dir != "." {
		if err := wt.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("write %q: mkdir: %w", p, err)
		}
	}
	if info, err := wt.Lstat(p); err == nil {
		if info.IsDir() {
			err = util.RemoveAll(wt, p)
		} else {
			err = wt.Remove(p)
		}
		if err != nil {
			return fmt.Errorf("write %q: %w", p, err)
		}
	}

	if object.NormalizeMode(mode) == object.TreeModeSymlink {
		if err := wt.Symlink(string(data), p); err != nil {
			return fmt.Errorf("write %q: symlink: %w", p, err)
		}
		return nil
	}
	f, err := wt.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, index.FilePerm(mode))
	if err != nil {
		return fmt.Errorf("write %q: %w", p, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %q: %w", p, err)
	}
	return f.Close()
}

func (r *Repo) removeWorktreeFile(p string) error {
	if err := r.worktree.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %q: %w", p, err)
	}
	r.removeEmptyParents(path.Dir(p))
	return nil
}

// removeEmptyParents removes empty directories up to, but not including,
// the worktree root.
func (r *Repo) removeEmptyParents(dir string) {
	for dir != "." && dir != "/" && dir != "" {
		infos, err := r.worktree.ReadDir(dir)
		if err != nil || len(infos) > 0 {
			return
		}
		if err := r.worktree.Remove(dir); err != nil {
			return
		}
		dir = path.Dir(dir)
	}
}

// ResetMode selects how much of the repository Reset rewrites.
type ResetMode int

const (
	// ResetSoft moves the branch only.
	ResetSoft ResetMode = iota + 1
	// ResetMixed also resets the index.
	ResetMixed
	// ResetHard also resets the working tree, discarding local changes.
	ResetHard
)

func (m ResetMode) String() string {
	switch m {
	case ResetSoft:
		return "soft"
	case ResetMixed:
		return "mixed"
	case ResetHard:
		return "hard"
	}
	return fmt.Sprintf("ResetMode(%d)", int(m))
}

// Reset points the current branch, or a detached HEAD, at target. Mixed
// and hard resets also clear any in-progress merge, cherry-pick, revert or
// rebase state. The previous HEAD is saved in ORIG_HEAD.
func (r *Repo) Reset(target object.Hash, mode ResetMode) error {
	peeled, typ, err := r.Store.Peel(target)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if typ != object.TypeCommit {
		return fmt.Errorf("reset: %s is a %s: %w", target.Hex(), typ, ErrInvalid)
	}
	c, err := r.Store.ReadCommit(peeled)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if mode == ResetHard && r.worktree == nil {
		return fmt.Errorf("reset --hard: %w", ErrBare)
	}

	switch mode {
	case ResetSoft:
	case ResetMixed:
		ix, err := r.Index()
		if err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		if err := ix.ReadTree(c.TreeHash); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		if err := ix.Write(); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	case ResetHard:
		from, err := r.HeadTree()
		if err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		if err := r.checkoutTree(from, c.TreeHash, true); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	default:
		return fmt.Errorf("reset: mode %d: %w", int(mode), ErrInvalid)
	}

	if old, err := r.HeadHash(); err == nil {
		if err := r.writeGitFile("ORIG_HEAD", []byte(old.Hex()+"\n")); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	if err := r.UpdateTerminal("HEAD", peeled, nil, "reset: moving to "+target.Hex()); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if mode != ResetSoft {
		if err := r.StateCleanup(); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	r.logger.Debug("reset", "mode", mode, "target", peeled.Short())
	return nil
}

// ResetPaths unstages paths by restoring their index entries to HEAD. A
// path missing from HEAD is removed from the index. No paths means every
// path. The working tree is not touched.
func (r *Repo) ResetPaths(paths []string) error {
	ix, err := r.Index()
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	tree, err := r.HeadTree()
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	head, err := flattenMap(r.Store, tree)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	targets, err := resetTargets(paths, ix, head)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	for _, p := range targets {
		if f, ok := head[p]; ok {
			// No stat data, so the next status hashes the worktree file.
			if err := ix.Add(index.Entry{Path: p, Mode: f.Mode, Hash: f.Hash}); err != nil {
				return fmt.Errorf("reset: %w", err)
			}
			continue
		}
		if err := ix.RemoveByPath(p); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	if err := ix.Write(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

func resetTargets(paths []string, ix *index.Index, head map[string]object.TreeFile) ([]string, error) {
	all := make(map[string]bool, ix.Len()+len(head))
	for _, e := range ix.Entries() {
		all[e.Path] = true
	}
	for p := range head {
		all[p] = true
	}
	if len(paths) == 0 {
		return sortedKeys(all), nil
	}

	targets := make(map[string]bool)
	for _, raw := range paths {
		rel := path.Clean(strings.TrimSpace(raw))
		if rel == "." || rel == "" {
			for p := range all {
				targets[p] = true
			}
			continue
		}
		matched := all[rel]
		if matched {
			targets[rel] = true
		}
		prefix := rel + "/"
		for p := range all {
			if strings.HasPrefix(p, prefix) {
				targets[p] = true
				matched = true
			}
		}
		if !matched {
			return nil, fmt.Errorf("path %q did not match index or HEAD entries: %w", raw, ErrNotFound)
		}
	}
	return sortedKeys(targets), nil
}
