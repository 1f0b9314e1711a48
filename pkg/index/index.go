// Package index implements git's staging index: a sorted list of entries
// keyed by (path, stage) persisted in the binary DIRC format.
package index

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/odvcencio/weft/pkg/ignore"
	"github.com/odvcencio/weft/pkg/object"
)

// Stage identifies which side of a conflict an entry holds.
type Stage int

const (
	StageNormal   Stage = 0
	StageAncestor Stage = 1
	StageOurs     Stage = 2
	StageTheirs   Stage = 3
)

var (
	// ErrNotFound is returned when no entry matches a path and stage.
	ErrNotFound = fmt.Errorf("index entry: %w", object.ErrNotFound)
	// ErrNoBackingFile is returned by Write and Read on an in-memory index.
	ErrNoBackingFile = errors.New("index has no backing file")
	// ErrUnmerged is returned by WriteTree while conflict stages remain.
	ErrUnmerged = errors.New("index contains unmerged entries")
	// ErrInvalidPath rejects paths that cannot appear in a tree.
	ErrInvalidPath = errors.New("invalid index path")
	// ErrNoWorktree is returned by operations that need a working tree.
	ErrNoWorktree = errors.New("index has no working tree")
)

// Entry is one staged file.
type Entry struct {
	Path    string
	Hash    object.Hash
	Mode    string
	Stage   Stage
	Size    uint32
	ModTime time.Time
	CTime   time.Time
	Dev     uint32
	Ino     uint32
	UID     uint32
	GID     uint32

	AssumeValid  bool
	SkipWorktree bool
	IntentToAdd  bool
}

func (e *Entry) extended() bool { return e.SkipWorktree || e.IntentToAdd }

// Conflict groups the stage 1-3 entries of one path. Missing sides are nil.
type Conflict struct {
	Path     string
	Ancestor *Entry
	Ours     *Entry
	Theirs   *Entry
}

// ObjectStore is the subset of object.Store the index needs.
type ObjectStore interface {
	WriteBlob(*object.Blob) (object.Hash, error)
	WriteTree(*object.TreeObj) (object.Hash, error)
	FlattenTree(object.Hash) ([]object.TreeFile, error)
}

// Index holds entries sorted by path, then stage. A path carries either one
// stage-0 entry or up to three conflict entries, never both.
type Index struct {
	store    ObjectStore
	fs       billy.Filesystem // holds the index file; nil when in memory
	name     string
	worktree billy.Filesystem
	ignore   *ignore.Checker
	logger   *slog.Logger

	entries []Entry
	version uint32
}

// Option configures an Index.
type Option func(*Index)

// WithWorktree attaches the working tree used by AddByPath and the bulk
// operations.
func WithWorktree(wt billy.Filesystem) Option {
	return func(ix *Index) { ix.worktree = wt }
}

// WithIgnore replaces the ignore checker consulted by AddAll. By default a
// checker reading .gitignore files from the worktree is used.
func WithIgnore(c *ignore.Checker) Option {
	return func(ix *Index) { ix.ignore = c }
}

// WithLogger sets the logger for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(ix *Index) {
		if l != nil {
			ix.logger = l
		}
	}
}

// New returns an empty in-memory index. Write on it fails with
// ErrNoBackingFile.
func New(store ObjectStore, opts ...Option) *Index {
	ix := &Index{
		store:   store,
		version: 2,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.ignore == nil && ix.worktree != nil {
		ix.ignore = ignore.New(ix.worktree)
	}
	return ix
}

// Open loads the index file name on fs. A missing file yields an empty
// index that Write will create.
func Open(fs billy.Filesystem, name string, store ObjectStore, opts ...Option) (*Index, error) {
	ix := New(store, opts...)
	ix.fs = fs
	ix.name = name
	if err := ix.Read(); err != nil {
		return nil, err
	}
	return ix, nil
}

// InMemory reports whether the index has no backing file.
func (ix *Index) InMemory() bool { return ix.fs == nil }

// Worktree returns the attached working tree, or nil.
func (ix *Index) Worktree() billy.Filesystem { return ix.worktree }

// Len returns the number of entries across all stages.
func (ix *Index) Len() int { return len(ix.entries) }

// Entries returns a copy of all entries in (path, stage) order.
func (ix *Index) Entries() []Entry {
	out := make([]Entry, len(ix.entries))
	copy(out, ix.entries)
	return out
}

// Clear removes every entry.
func (ix *Index) Clear() { ix.entries = nil }

func compareKey(path string, stage Stage, e *Entry) int {
	if c := strings.Compare(path, e.Path); c != 0 {
		return c
	}
	return int(stage) - int(e.Stage)
}

// search returns the position of (path, stage) and whether it is present.
func (ix *Index) search(path string, stage Stage) (int, bool) {
	i := sort.Search(len(ix.entries), func(i int) bool {
		return compareKey(path, stage, &ix.entries[i]) <= 0
	})
	return i, i < len(ix.entries) && compareKey(path, stage, &ix.entries[i]) == 0
}

// pathRange returns [lo, hi) covering every stage of path.
func (ix *Index) pathRange(path string) (int, int) {
	lo, _ := ix.search(path, StageNormal)
	hi := lo
	for hi < len(ix.entries) && ix.entries[hi].Path == path {
		hi++
	}
	return lo, hi
}

// Get returns the entry for path at stage.
func (ix *Index) Get(path string, stage Stage) (Entry, error) {
	i, ok := ix.search(path, stage)
	if !ok {
		return Entry{}, fmt.Errorf("get %q stage %d: %w", path, stage, ErrNotFound)
	}
	return ix.entries[i], nil
}

// Add inserts or replaces e. A stage-0 entry clears the conflict stages of
// its path, a conflict entry clears the stage-0 entry. A stage-0 file also
// replaces stage-0 entries it collides with as a directory, and the
// reverse.
func (ix *Index) Add(e Entry) error {
	if err := ValidatePath(e.Path); err != nil {
		return fmt.Errorf("add %q: %w", e.Path, err)
	}
	if e.Stage < StageNormal || e.Stage > StageTheirs {
		return fmt.Errorf("add %q: invalid stage %d", e.Path, e.Stage)
	}
	if e.Hash.IsZero() {
		return fmt.Errorf("add %q: missing object id", e.Path)
	}
	e.Mode = object.NormalizeMode(e.Mode)

	if e.Stage == StageNormal {
		ix.removeWhere(func(x *Entry) bool {
			if x.Path == e.Path {
				return x.Stage != StageNormal
			}
			if x.Stage != StageNormal {
				return false
			}
			return strings.HasPrefix(x.Path, e.Path+"/") || strings.HasPrefix(e.Path, x.Path+"/")
		})
	} else if i, ok := ix.search(e.Path, StageNormal); ok {
		ix.entries = append(ix.entries[:i], ix.entries[i+1:]...)
	}

	i, ok := ix.search(e.Path, e.Stage)
	if ok {
		ix.entries[i] = e
		return nil
	}
	ix.entries = append(ix.entries, Entry{})
	copy(ix.entries[i+1:], ix.entries[i:])
	ix.entries[i] = e
	return nil
}

func (ix *Index) removeWhere(drop func(*Entry) bool) int {
	kept := ix.entries[:0]
	n := 0
	for i := range ix.entries {
		if drop(&ix.entries[i]) {
			n++
			continue
		}
		kept = append(kept, ix.entries[i])
	}
	ix.entries = kept
	return n
}

// Remove deletes the entry for path at stage.
func (ix *Index) Remove(path string, stage Stage) error {
	i, ok := ix.search(path, stage)
	if !ok {
		return fmt.Errorf("remove %q stage %d: %w", path, stage, ErrNotFound)
	}
	ix.entries = append(ix.entries[:i], ix.entries[i+1:]...)
	return nil
}

// RemoveByPath deletes every stage of path. Removing an absent path is not
// an error.
func (ix *Index) RemoveByPath(path string) error {
	if err := ValidatePath(path); err != nil {
		return fmt.Errorf("remove %q: %w", path, err)
	}
	lo, hi := ix.pathRange(path)
	ix.entries = append(ix.entries[:lo], ix.entries[hi:]...)
	return nil
}

// RemoveDirectory deletes every entry below dir at stage.
func (ix *Index) RemoveDirectory(dir string, stage Stage) int {
	prefix := strings.Trim(dir, "/") + "/"
	return ix.removeWhere(func(e *Entry) bool {
		return e.Stage == stage && strings.HasPrefix(e.Path, prefix)
	})
}

// HasConflicts reports whether any entry sits at a conflict stage.
func (ix *Index) HasConflicts() bool {
	for i := range ix.entries {
		if ix.entries[i].Stage != StageNormal {
			return true
		}
	}
	return false
}

// Conflicts returns the conflicted paths in path order.
func (ix *Index) Conflicts() []Conflict {
	var out []Conflict
	for i := 0; i < len(ix.entries); {
		if ix.entries[i].Stage == StageNormal {
			i++
			continue
		}
		c, next := ix.conflictAt(i)
		out = append(out, c)
		i = next
	}
	return out
}

func (ix *Index) conflictAt(i int) (Conflict, int) {
	c := Conflict{Path: ix.entries[i].Path}
	for ; i < len(ix.entries) && ix.entries[i].Path == c.Path; i++ {
		e := ix.entries[i]
		switch e.Stage {
		case StageAncestor:
			c.Ancestor = &e
		case StageOurs:
			c.Ours = &e
		case StageTheirs:
			c.Theirs = &e
		}
	}
	return c, i
}

// Conflict returns the conflict entries recorded for path.
func (ix *Index) Conflict(path string) (Conflict, error) {
	lo, hi := ix.pathRange(path)
	if lo == hi || ix.entries[lo].Stage == StageNormal {
		return Conflict{}, fmt.Errorf("conflict %q: %w", path, ErrNotFound)
	}
	c, _ := ix.conflictAt(lo)
	return c, nil
}

// AddConflict records a conflict for one path. At least one side must be
// given and all given sides must name the same path. Stages are assigned
// from the argument position.
func (ix *Index) AddConflict(ancestor, ours, theirs *Entry) error {
	var path string
	for _, e := range []*Entry{ancestor, ours, theirs} {
		if e == nil {
			continue
		}
		if path == "" {
			path = e.Path
		} else if e.Path != path {
			return fmt.Errorf("add conflict: mismatched paths %q and %q: %w", path, e.Path, ErrInvalidPath)
		}
	}
	if path == "" {
		return fmt.Errorf("add conflict: no entries: %w", ErrInvalidPath)
	}
	if err := ValidatePath(path); err != nil {
		return fmt.Errorf("add conflict %q: %w", path, err)
	}

	lo, hi := ix.pathRange(path)
	ix.entries = append(ix.entries[:lo], ix.entries[hi:]...)
	for stage, e := range map[Stage]*Entry{StageAncestor: ancestor, StageOurs: ours, StageTheirs: theirs} {
		if e == nil {
			continue
		}
		entry := *e
		entry.Stage = stage
		if err := ix.Add(entry); err != nil {
			return fmt.Errorf("add conflict: %w", err)
		}
	}
	return nil
}

// RemoveConflict drops the conflict stages of path.
func (ix *Index) RemoveConflict(path string) error {
	n := ix.removeWhere(func(e *Entry) bool { return e.Path == path && e.Stage != StageNormal })
	if n == 0 {
		return fmt.Errorf("remove conflict %q: %w", path, ErrNotFound)
	}
	return nil
}

// CleanupConflicts drops every conflict stage in the index.
func (ix *Index) CleanupConflicts() {
	ix.removeWhere(func(e *Entry) bool { return e.Stage != StageNormal })
}

// ValidatePath rejects paths that cannot be written into a tree: empty,
// absolute, containing empty, "." or ".." components, NUL bytes, or
// pointing into .git.
func ValidatePath(p string) error {
	if p == "" || strings.HasPrefix(p, "/") || strings.HasSuffix(p, "/") || strings.ContainsRune(p, 0) {
		return fmt.Errorf("%q: %w", p, ErrInvalidPath)
	}
	for i, part := range strings.Split(p, "/") {
		switch part {
		case "", ".", "..":
			return fmt.Errorf("%q: %w", p, ErrInvalidPath)
		}
		if i == 0 && strings.EqualFold(part, ".git") {
			return fmt.Errorf("%q: %w", p, ErrInvalidPath)
		}
	}
	return nil
}
