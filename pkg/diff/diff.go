// Package diff compares trees, the index and the working tree, producing
// deltas whose line-level patches are computed on demand.
package diff

import (
	"fmt"
	"iter"
	"os"
	"sort"

	"github.com/go-git/go-billy/v5"
	"github.com/odvcencio/weft/pkg/ignore"
	"github.com/odvcencio/weft/pkg/index"
	"github.com/odvcencio/weft/pkg/object"
)

// Status classifies what happened to a file between the two sides.
type Status int

const (
	Unmodified Status = iota
	Added
	Deleted
	Modified
	Renamed
	Copied
	Ignored
	Untracked
	TypeChange
	Unreadable
	Conflicted
)

var statusNames = [...]string{
	Unmodified: "unmodified",
	Added:      "added",
	Deleted:    "deleted",
	Modified:   "modified",
	Renamed:    "renamed",
	Copied:     "copied",
	Ignored:    "ignored",
	Untracked:  "untracked",
	TypeChange: "typechange",
	Unreadable: "unreadable",
	Conflicted: "conflicted",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Char returns the one-letter code git prints for the status.
func (s Status) Char() byte {
	return " ADMRC!?TXU"[s]
}

// DiffFile describes one side of a delta. A missing side has a zero Hash
// and an empty Mode.
type DiffFile struct {
	Path string
	Hash object.Hash
	Mode string
	Size int64

	fromWorkdir bool
}

// Exists reports whether the side names a file.
func (f DiffFile) Exists() bool { return f.Mode != "" }

// Delta is one changed (or, on request, unchanged) path.
type Delta struct {
	Status     Status
	OldFile    DiffFile
	NewFile    DiffFile
	Similarity int // 0-100, set for renames and copies
	Binary     bool
}

// Path returns the path the delta is sorted by: the new path when present.
func (d Delta) Path() string {
	if d.NewFile.Path != "" {
		return d.NewFile.Path
	}
	return d.OldFile.Path
}

// Options controls which deltas are produced and how patches are shaped.
type Options struct {
	Pathspec          []string
	IncludeUnmodified bool
	IncludeUntracked  bool
	IncludeIgnored    bool
	// ContextLines around each change; 0 selects the default of 3 and a
	// negative value selects none.
	ContextLines int
	// InterhunkLines merges hunks separated by at most this many lines.
	InterhunkLines int
	Reverse        bool
	// IgnoreFileMode skips executable-bit changes in the working tree.
	IgnoreFileMode bool
	// Ignore overrides the ignore rules used for the working tree.
	Ignore *ignore.Checker
}

func (o Options) contextLines() int {
	switch {
	case o.ContextLines == 0:
		return 3
	case o.ContextLines < 0:
		return 0
	}
	return o.ContextLines
}

// ObjectReader is the subset of object.Store the differ reads from.
type ObjectReader interface {
	ReadBlob(object.Hash) (*object.Blob, error)
	ReadTree(object.Hash) (*object.TreeObj, error)
	FlattenTree(object.Hash) ([]object.TreeFile, error)
}

// Diff is an ordered list of deltas. Patches are built lazily per delta
// and cached.
type Diff struct {
	deltas   []Delta
	store    ObjectReader
	worktree billy.Filesystem
	opts     Options
	patches  map[int]*Patch
}

func newDiff(store ObjectReader, wt billy.Filesystem, opts Options, deltas []Delta) *Diff {
	d := &Diff{store: store, worktree: wt, opts: opts, deltas: deltas}
	if opts.Reverse {
		for i := range d.deltas {
			d.deltas[i] = reverseDelta(d.deltas[i])
		}
	}
	d.sort()
	return d
}

func reverseDelta(d Delta) Delta {
	d.OldFile, d.NewFile = d.NewFile, d.OldFile
	switch d.Status {
	case Added:
		d.Status = Deleted
	case Deleted:
		d.Status = Added
	}
	return d
}

func (d *Diff) sort() {
	sort.SliceStable(d.deltas, func(i, j int) bool { return d.deltas[i].Path() < d.deltas[j].Path() })
	d.patches = nil
}

// Len returns the number of deltas.
func (d *Diff) Len() int { return len(d.deltas) }

// Delta returns the i-th delta.
func (d *Diff) Delta(i int) Delta { return d.deltas[i] }

// Deltas returns a copy of all deltas.
func (d *Diff) Deltas() []Delta {
	out := make([]Delta, len(d.deltas))
	copy(out, d.deltas)
	return out
}

// Patch computes, or returns the cached, patch for the i-th delta.
func (d *Diff) Patch(i int) (*Patch, error) {
	if i < 0 || i >= len(d.deltas) {
		return nil, fmt.Errorf("patch %d: index out of range [0,%d)", i, len(d.deltas))
	}
	if p, ok := d.patches[i]; ok {
		return p, nil
	}
	p, err := d.buildPatch(d.deltas[i])
	if err != nil {
		return nil, fmt.Errorf("patch %s: %w", d.deltas[i].Path(), err)
	}
	if d.patches == nil {
		d.patches = make(map[int]*Patch)
	}
	d.patches[i] = p
	d.deltas[i].Binary = p.Delta.Binary
	return p, nil
}

// Patches yields the patch of every delta in order. Stopping the range
// stops patch computation.
func (d *Diff) Patches() iter.Seq2[*Patch, error] {
	return func(yield func(*Patch, error) bool) {
		for i := range d.deltas {
			p, err := d.Patch(i)
			if !yield(p, err) || err != nil {
				return
			}
		}
	}
}

// Stats summarizes a diff.
type Stats struct {
	FilesChanged int
	Insertions   int
	Deletions    int
}

// Stats computes every patch and totals the line changes.
func (d *Diff) Stats() (Stats, error) {
	var st Stats
	for p, err := range d.Patches() {
		if err != nil {
			return Stats{}, err
		}
		if p.Delta.Status == Unmodified {
			continue
		}
		st.FilesChanged++
		_, add, del := p.LineStats()
		st.Insertions += add
		st.Deletions += del
	}
	return st, nil
}

// content loads the bytes behind one side of a delta.
func (d *Diff) content(f DiffFile) ([]byte, error) {
	if !f.Exists() {
		return nil, nil
	}
	if f.fromWorkdir {
		if d.worktree == nil {
			return nil, fmt.Errorf("read %s: no working tree", f.Path)
		}
		info, err := d.worktree.Lstat(f.Path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Path, err)
		}
		if info.IsDir() {
			return nil, nil
		}
		return index.ReadWorktreeFile(d.worktree, f.Path, info)
	}
	if f.Hash.IsZero() || object.ModeType(f.Mode) != object.TypeBlob {
		return nil, nil
	}
	blob, err := d.store.ReadBlob(f.Hash)
	if err != nil {
		return nil, err
	}
	return blob.Data, nil
}

func sideFromTree(f object.TreeFile) DiffFile {
	return DiffFile{Path: f.Path, Hash: f.Hash, Mode: f.Mode}
}

func sideFromEntry(e *index.Entry) DiffFile {
	return DiffFile{Path: e.Path, Hash: e.Hash, Mode: object.NormalizeMode(e.Mode), Size: int64(e.Size)}
}

// typeChanged reports whether two modes name different kinds of object:
// regular file, symlink or gitlink.
func typeChanged(a, b string) bool {
	kind := func(m string) string {
		switch object.NormalizeMode(m) {
		case object.TreeModeSymlink, object.TreeModeGitlink:
			return object.NormalizeMode(m)
		}
		return "file"
	}
	return kind(a) != kind(b)
}

func compareSides(oldF, newF DiffFile) Status {
	switch {
	case typeChanged(oldF.Mode, newF.Mode):
		return TypeChange
	case oldF.Hash != newF.Hash || object.NormalizeMode(oldF.Mode) != object.NormalizeMode(newF.Mode):
		return Modified
	}
	return Unmodified
}

// TreeToTree compares two trees. ZeroHash on either side is the empty tree.
// Identical subtrees are skipped unless unmodified files were requested.
func TreeToTree(store ObjectReader, oldTree, newTree object.Hash, opts Options) (*Diff, error) {
	ps := index.NewPathspec(opts.Pathspec)
	var deltas []Delta
	emit := func(dl Delta) {
		if _, ok := ps.Match(dl.Path()); ok {
			deltas = append(deltas, dl)
		}
	}
	if err := diffTrees(store, oldTree, newTree, "", opts.IncludeUnmodified, emit); err != nil {
		return nil, fmt.Errorf("diff trees: %w", err)
	}
	return newDiff(store, nil, opts, deltas), nil
}

func treeKey(e object.TreeEntry) string {
	if e.IsDir() {
		return e.Name + "/"
	}
	return e.Name
}

func diffTrees(store ObjectReader, oldH, newH object.Hash, prefix string, unmodified bool, emit func(Delta)) error {
	if oldH == newH && !unmodified {
		return nil
	}
	oldT, err := store.ReadTree(oldH)
	if err != nil {
		return err
	}
	newT, err := store.ReadTree(newH)
	if err != nil {
		return err
	}

	oldE, newE := sortedByKey(oldT.Entries), sortedByKey(newT.Entries)
	i, j := 0, 0
	for i < len(oldE) || j < len(newE) {
		var cmp int
		switch {
		case i == len(oldE):
			cmp = 1
		case j == len(newE):
			cmp = -1
		default:
			ko, kn := treeKey(oldE[i]), treeKey(newE[j])
			switch {
			case ko < kn:
				cmp = -1
			case ko > kn:
				cmp = 1
			}
		}

		switch cmp {
		case -1:
			if err := emitSide(store, oldE[i], prefix, Deleted, emit); err != nil {
				return err
			}
			i++
		case 1:
			if err := emitSide(store, newE[j], prefix, Added, emit); err != nil {
				return err
			}
			j++
		default:
			o, n := oldE[i], newE[j]
			p := prefix + o.Name
			if o.IsDir() {
				if err := diffTrees(store, o.Hash, n.Hash, p+"/", unmodified, emit); err != nil {
					return err
				}
			} else {
				oldF := DiffFile{Path: p, Hash: o.Hash, Mode: object.NormalizeMode(o.Mode)}
				newF := DiffFile{Path: p, Hash: n.Hash, Mode: object.NormalizeMode(n.Mode)}
				if st := compareSides(oldF, newF); st != Unmodified || unmodified {
					emit(Delta{Status: st, OldFile: oldF, NewFile: newF})
				}
			}
			i++
			j++
		}
	}
	return nil
}

func sortedByKey(entries []object.TreeEntry) []object.TreeEntry {
	out := append([]object.TreeEntry(nil), entries...)
	sort.Slice(out, func(a, b int) bool { return treeKey(out[a]) < treeKey(out[b]) })
	return out
}

// emitSide reports a one-sided entry, expanding directories into their
// files.
func emitSide(store ObjectReader, e object.TreeEntry, prefix string, st Status, emit func(Delta)) error {
	p := prefix + e.Name
	if !e.IsDir() {
		f := DiffFile{Path: p, Hash: e.Hash, Mode: object.NormalizeMode(e.Mode)}
		if st == Added {
			emit(Delta{Status: st, OldFile: DiffFile{Path: p}, NewFile: f})
		} else {
			emit(Delta{Status: st, OldFile: f, NewFile: DiffFile{Path: p}})
		}
		return nil
	}
	files, err := store.FlattenTree(e.Hash)
	if err != nil {
		return err
	}
	for _, tf := range files {
		tf.Path = p + "/" + tf.Path
		f := sideFromTree(tf)
		if st == Added {
			emit(Delta{Status: st, OldFile: DiffFile{Path: f.Path}, NewFile: f})
		} else {
			emit(Delta{Status: st, OldFile: f, NewFile: DiffFile{Path: f.Path}})
		}
	}
	return nil
}

// TreeToIndex compares a tree with the index. Paths with conflict stages
// produce one Conflicted delta each.
func TreeToIndex(store ObjectReader, tree object.Hash, ix *index.Index, opts Options) (*Diff, error) {
	files, err := store.FlattenTree(tree)
	if err != nil {
		return nil, fmt.Errorf("diff tree to index: %w", err)
	}
	ps := index.NewPathspec(opts.Pathspec)
	entries := ix.Entries()

	var deltas []Delta
	emit := func(dl Delta) {
		if _, ok := ps.Match(dl.Path()); ok {
			deltas = append(deltas, dl)
		}
	}

	i, j := 0, 0
	for i < len(files) || j < len(entries) {
		switch {
		case j == len(entries) || (i < len(files) && files[i].Path < entries[j].Path):
			f := sideFromTree(files[i])
			emit(Delta{Status: Deleted, OldFile: f, NewFile: DiffFile{Path: f.Path}})
			i++
		case i == len(files) || entries[j].Path < files[i].Path:
			j = emitIndexPath(entries, j, DiffFile{Path: entries[j].Path}, emit)
		default:
			j = emitIndexPath(entries, j, sideFromTree(files[i]), emit)
			i++
		}
	}
	filtered := deltas[:0]
	for _, dl := range deltas {
		if dl.Status != Unmodified || opts.IncludeUnmodified {
			filtered = append(filtered, dl)
		}
	}
	return newDiff(store, ix.Worktree(), opts, filtered), nil
}

// emitIndexPath consumes every stage of entries[j].Path and returns the
// next position.
func emitIndexPath(entries []index.Entry, j int, oldF DiffFile, emit func(Delta)) int {
	p := entries[j].Path
	end := j
	for end < len(entries) && entries[end].Path == p {
		end++
	}
	if entries[j].Stage != index.StageNormal {
		newF := DiffFile{Path: p}
		// Show ours when present, then theirs, then the ancestor.
		for _, want := range []index.Stage{index.StageOurs, index.StageTheirs, index.StageAncestor} {
			for k := j; k < end; k++ {
				if entries[k].Stage == want && !newF.Exists() {
					newF = sideFromEntry(&entries[k])
				}
			}
		}
		emit(Delta{Status: Conflicted, OldFile: oldF, NewFile: newF})
		return end
	}
	newF := sideFromEntry(&entries[j])
	if !oldF.Exists() {
		emit(Delta{Status: Added, OldFile: DiffFile{Path: p}, NewFile: newF})
		return end
	}
	emit(Delta{Status: compareSides(oldF, newF), OldFile: oldF, NewFile: newF})
	return end
}

// IndexToWorkdir compares stage-0 index entries with the working tree.
// Unchanged stat data short-circuits content hashing.
func IndexToWorkdir(store ObjectReader, ix *index.Index, wt billy.Filesystem, opts Options) (*Diff, error) {
	if wt == nil {
		return nil, fmt.Errorf("diff index to workdir: %w", index.ErrNoWorktree)
	}
	ign := opts.Ignore
	if ign == nil {
		ign = ignore.New(wt)
	}
	ps := index.NewPathspec(opts.Pathspec)

	type seen struct {
		info    os.FileInfo
		ignored bool
	}
	present := make(map[string]seen)
	var order []string
	err := index.WalkWorktree(wt, ign, func(p string, info os.FileInfo, ignored bool) error {
		present[p] = seen{info: info, ignored: ignored}
		order = append(order, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("diff index to workdir: %w", err)
	}

	var deltas []Delta
	emit := func(dl Delta) {
		if _, ok := ps.Match(dl.Path()); ok {
			deltas = append(deltas, dl)
		}
	}

	entries := ix.Entries()
	tracked := make(map[string]bool, len(entries))
	for j := 0; j < len(entries); j++ {
		e := &entries[j]
		tracked[e.Path] = true
		if e.Stage != index.StageNormal {
			if j > 0 && entries[j-1].Path == e.Path {
				continue
			}
			newF := DiffFile{Path: e.Path, fromWorkdir: true}
			if s, ok := present[e.Path]; ok && !s.info.IsDir() {
				newF.Mode = index.ModeFromFileInfo(s.info)
				newF.Size = s.info.Size()
			}
			emit(Delta{Status: Conflicted, OldFile: sideFromEntry(e), NewFile: newF})
			continue
		}
		if _, ok := ps.Match(e.Path); !ok {
			continue
		}

		oldF := sideFromEntry(e)
		info, err := wt.Lstat(e.Path)
		if err != nil || info.IsDir() {
			if err != nil && !os.IsNotExist(err) {
				emit(Delta{Status: Unreadable, OldFile: oldF, NewFile: DiffFile{Path: e.Path, Mode: oldF.Mode, fromWorkdir: true}})
				continue
			}
			emit(Delta{Status: Deleted, OldFile: oldF, NewFile: DiffFile{Path: e.Path}})
			continue
		}

		newF := DiffFile{Path: e.Path, Mode: index.ModeFromFileInfo(info), Size: info.Size(), fromWorkdir: true}
		if opts.IgnoreFileMode && !typeChanged(oldF.Mode, newF.Mode) {
			newF.Mode = oldF.Mode
		}
		if typeChanged(oldF.Mode, newF.Mode) {
			emit(Delta{Status: TypeChange, OldFile: oldF, NewFile: newF})
			continue
		}
		if index.StatMatches(e, info) && newF.Mode == oldF.Mode {
			newF.Hash = oldF.Hash
			if opts.IncludeUnmodified {
				emit(Delta{Status: Unmodified, OldFile: oldF, NewFile: newF})
			}
			continue
		}
		data, err := index.ReadWorktreeFile(wt, e.Path, info)
		if err != nil {
			emit(Delta{Status: Unreadable, OldFile: oldF, NewFile: newF})
			continue
		}
		newF.Hash = object.HashObject(object.TypeBlob, data)
		if st := compareSides(oldF, newF); st != Unmodified || opts.IncludeUnmodified {
			emit(Delta{Status: st, OldFile: oldF, NewFile: newF})
		}
	}

	if opts.IncludeUntracked || opts.IncludeIgnored {
		for _, p := range order {
			s := present[p]
			if tracked[p] {
				continue
			}
			switch {
			case s.ignored && opts.IncludeIgnored:
				name := p
				if s.info.IsDir() {
					name += "/"
				}
				emit(Delta{Status: Ignored, OldFile: DiffFile{Path: name}, NewFile: DiffFile{Path: name, Mode: index.ModeFromFileInfo(s.info), Size: s.info.Size(), fromWorkdir: true}})
			case !s.ignored && opts.IncludeUntracked:
				emit(Delta{Status: Untracked, OldFile: DiffFile{Path: p}, NewFile: DiffFile{Path: p, Mode: index.ModeFromFileInfo(s.info), Size: s.info.Size(), fromWorkdir: true}})
			}
		}
	}
	return newDiff(store, wt, opts, deltas), nil
}

// Buffers diffs two in-memory contents as if they were the named files.
func Buffers(oldData []byte, oldPath string, newData []byte, newPath string, opts Options) *Patch {
	if opts.Reverse {
		oldData, newData = newData, oldData
		oldPath, newPath = newPath, oldPath
	}
	dl := Delta{
		Status:  Modified,
		OldFile: DiffFile{Path: oldPath, Mode: object.TreeModeFile, Hash: object.HashObject(object.TypeBlob, oldData), Size: int64(len(oldData))},
		NewFile: DiffFile{Path: newPath, Mode: object.TreeModeFile, Hash: object.HashObject(object.TypeBlob, newData), Size: int64(len(newData))},
	}
	switch {
	case oldData == nil && newData != nil:
		dl.Status, dl.OldFile = Added, DiffFile{Path: oldPath}
	case newData == nil && oldData != nil:
		dl.Status, dl.NewFile = Deleted, DiffFile{Path: newPath}
	case dl.OldFile.Hash == dl.NewFile.Hash:
		dl.Status = Unmodified
	}
	return makePatch(dl, oldData, newData, opts)
}
