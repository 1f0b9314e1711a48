package repo

import (
	"fmt"
	"sort"

	"github.com/odvcencio/weft/pkg/diff"
	"github.com/odvcencio/weft/pkg/object"
)

// StatusEntry records the status of a single path.
type StatusEntry struct {
	Path        string      // repo-relative path
	RenamedFrom string      // set when IndexStatus or WorkStatus is diff.Renamed
	IndexStatus diff.Status // HEAD vs index
	WorkStatus  diff.Status // index vs working tree
}

// IsClean reports whether the path matches in HEAD, index and worktree.
func (e StatusEntry) IsClean() bool {
	return e.IndexStatus == diff.Unmodified && e.WorkStatus == diff.Unmodified
}

// StatusOptions narrows what Status reports.
type StatusOptions struct {
	Pathspec         []string
	IncludeUntracked bool
	IncludeIgnored   bool
	// Renames pairs deleted and added paths in both comparisons.
	Renames bool
}

// Status computes the status of every changed path, untracked files
// included, with rename detection following diff.renames.
func (r *Repo) Status() ([]StatusEntry, error) {
	return r.StatusWithOptions(StatusOptions{IncludeUntracked: true, Renames: r.config.DiffRenames()})
}

// StatusWithOptions combines the HEAD-to-index and index-to-worktree diffs
// into one entry per path, sorted by path.
func (r *Repo) StatusWithOptions(opts StatusOptions) ([]StatusEntry, error) {
	if r.worktree == nil {
		return nil, fmt.Errorf("status: %w", ErrBare)
	}
	ix, err := r.Index()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	headTree, err := r.HeadTree()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	staged, err := diff.TreeToIndex(r.Store, headTree, ix, diff.Options{Pathspec: opts.Pathspec})
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	unstaged, err := diff.IndexToWorkdir(r.Store, ix, r.worktree, diff.Options{
		Pathspec:         opts.Pathspec,
		IncludeUntracked: opts.IncludeUntracked,
		IncludeIgnored:   opts.IncludeIgnored,
		IgnoreFileMode:   !r.config.FileMode(),
		Ignore:           r.ignoreChecker(),
	})
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	if opts.Renames {
		if err := staged.FindSimilar(diff.FindOptions{Renames: true}); err != nil {
			return nil, fmt.Errorf("status: %w", err)
		}
		if err := unstaged.FindSimilar(diff.FindOptions{Renames: true}); err != nil {
			return nil, fmt.Errorf("status: %w", err)
		}
	}

	byPath := make(map[string]*StatusEntry)
	entry := func(p string) *StatusEntry {
		e, ok := byPath[p]
		if !ok {
			e = &StatusEntry{Path: p}
			byPath[p] = e
		}
		return e
	}
	for _, d := range staged.Deltas() {
		e := entry(d.Path())
		e.IndexStatus = d.Status
		if d.Status == diff.Renamed {
			e.RenamedFrom = d.OldFile.Path
		}
	}
	for _, d := range unstaged.Deltas() {
		e := entry(d.Path())
		e.WorkStatus = d.Status
		if d.Status == diff.Renamed {
			e.RenamedFrom = d.OldFile.Path
		}
	}

	out := make([]StatusEntry, 0, len(byPath))
	for _, e := range byPath {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// HeadTree returns the tree of HEAD's commit, or ZeroHash on an unborn
// branch.
func (r *Repo) HeadTree() (object.Hash, error) {
	if r.IsHeadUnborn() {
		return object.ZeroHash, nil
	}
	h, err := r.HeadHash()
	if err != nil {
		return object.ZeroHash, err
	}
	c, err := r.Store.ReadCommit(h)
	if err != nil {
		return object.ZeroHash, fmt.Errorf("read HEAD commit: %w", err)
	}
	return c.TreeHash, nil
}

// dirtyPaths returns the tracked paths whose index or worktree content
// differs from tree. Untracked files are not included.
func (r *Repo) dirtyPaths(tree object.Hash) (map[string]bool, error) {
	ix, err := r.Index()
	if err != nil {
		return nil, err
	}
	dirty := make(map[string]bool)
	staged, err := diff.TreeToIndex(r.Store, tree, ix, diff.Options{})
	if err != nil {
		return nil, err
	}
	for _, d := range staged.Deltas() {
		dirty[d.OldFile.Path] = true
		dirty[d.NewFile.Path] = true
	}
	unstaged, err := diff.IndexToWorkdir(r.Store, ix, r.worktree, diff.Options{IgnoreFileMode: !r.config.FileMode()})
	if err != nil {
		return nil, err
	}
	for _, d := range unstaged.Deltas() {
		dirty[d.Path()] = true
	}
	delete(dirty, "")
	return dirty, nil
}

// ensureClean fails with ErrDirtyWorktree when any tracked path differs
// from HEAD.
func (r *Repo) ensureClean() error {
	tree, err := r.HeadTree()
	if err != nil {
		return err
	}
	dirty, err := r.dirtyPaths(tree)
	if err != nil {
		return err
	}
	if paths := sortedKeys(dirty); len(paths) > 0 {
		return fmt.Errorf("%q has uncommitted changes: %w", paths[0], ErrDirtyWorktree)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
