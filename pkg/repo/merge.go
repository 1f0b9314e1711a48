package repo

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/odvcencio/weft/pkg/diff"
	"github.com/odvcencio/weft/pkg/diff3"
	"github.com/odvcencio/weft/pkg/index"
	"github.com/odvcencio/weft/pkg/object"
)

// MergeOptions controls tree merges and the operations built on them.
type MergeOptions struct {
	// FindRenames follows a file renamed on one side when the other side
	// edited it under its old name. Defaults to merge.renames for the
	// repository-level operations.
	FindRenames     bool
	RenameThreshold int

	Favor diff3.Favor
	Style diff3.Style

	OursLabel   string
	TheirsLabel string
	BaseLabel   string

	// FailOnConflict aborts with ErrConflicted at the first conflict
	// instead of recording it in the index.
	FailOnConflict bool

	NoFastForward   bool
	FastForwardOnly bool

	// Signature is used for commits the operation creates. Nil means the
	// configured identity.
	Signature *object.Signature
	Signer    CommitSigner
}

func (o MergeOptions) lineOptions() diff3.Options {
	return diff3.Options{
		OursLabel:   o.OursLabel,
		TheirsLabel: o.TheirsLabel,
		BaseLabel:   o.BaseLabel,
		Favor:       o.Favor,
		Style:       o.Style,
	}
}

// DefaultMergeOptions returns options with rename detection following the
// repository configuration.
func (r *Repo) DefaultMergeOptions() MergeOptions {
	return MergeOptions{FindRenames: r.config.MergeRenames()}
}

// treeMerge is the outcome of a three-way tree merge.
type treeMerge struct {
	index *index.Index
	// markers holds the conflict-marked content of paths whose line merge
	// failed; it is what a checkout writes for them.
	markers   map[string][]byte
	conflicts []string
}

// MergeTrees merges ours and theirs against ancestor into a new in-memory
// index. Conflicts are recorded as stage 1/2/3 entries; the caller decides
// whether to commit, write or discard the result.
func (r *Repo) MergeTrees(ancestor, ours, theirs object.Hash, opts MergeOptions) (*index.Index, error) {
	tm, err := r.mergeTrees(ancestor, ours, theirs, opts)
	if err != nil {
		return nil, fmt.Errorf("merge trees: %w", err)
	}
	return tm.index, nil
}

// MergeCommits merges the trees of two commits using their merge base as
// ancestor, or the empty tree when the histories are unrelated.
func (r *Repo) MergeCommits(ours, theirs object.Hash, opts MergeOptions) (*index.Index, error) {
	tm, err := r.mergeCommits(ours, theirs, opts)
	if err != nil {
		return nil, fmt.Errorf("merge commits: %w", err)
	}
	return tm.index, nil
}

func (r *Repo) mergeCommits(ours, theirs object.Hash, opts MergeOptions) (*treeMerge, error) {
	oc, err := r.Store.ReadCommit(ours)
	if err != nil {
		return nil, err
	}
	tc, err := r.Store.ReadCommit(theirs)
	if err != nil {
		return nil, err
	}
	baseTree := object.ZeroHash
	base, err := r.MergeBase(ours, theirs)
	switch {
	case err == nil:
		bc, err := r.Store.ReadCommit(base)
		if err != nil {
			return nil, err
		}
		baseTree = bc.TreeHash
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	return r.mergeTrees(baseTree, oc.TreeHash, tc.TreeHash, opts)
}

func sameFile(a, b *object.TreeFile) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Hash == b.Hash && a.Mode == b.Mode
}

func isRegularMode(mode string) bool {
	m := object.NormalizeMode(mode)
	return m == object.TreeModeFile || m == object.TreeModeExecutable
}

func (r *Repo) mergeTrees(ancestor, ours, theirs object.Hash, opts MergeOptions) (*treeMerge, error) {
	base, err := flattenMap(r.Store, ancestor)
	if err != nil {
		return nil, fmt.Errorf("flatten ancestor: %w", err)
	}
	our, err := flattenMap(r.Store, ours)
	if err != nil {
		return nil, fmt.Errorf("flatten ours: %w", err)
	}
	their, err := flattenMap(r.Store, theirs)
	if err != nil {
		return nil, fmt.Errorf("flatten theirs: %w", err)
	}
	if opts.FindRenames {
		if err := r.followRenames(ancestor, ours, theirs, base, our, their, opts.RenameThreshold); err != nil {
			return nil, err
		}
	}

	paths := make(map[string]bool, len(base)+len(our)+len(their))
	for _, m := range []map[string]object.TreeFile{base, our, their} {
		for p := range m {
			paths[p] = true
		}
	}

	resolved := make(map[string]object.TreeFile)
	conflicted := make(map[string]conflictSides)
	tm := &treeMerge{index: index.New(r.Store), markers: make(map[string][]byte)}
	lineOpts := opts.lineOptions()

	for _, p := range sortedKeys(paths) {
		b, o, t := lookupFile(base, p), lookupFile(our, p), lookupFile(their, p)
		res, markers, ok, err := r.mergeFile(p, b, o, t, lineOpts)
		if err != nil {
			return nil, err
		}
		if !ok {
			if opts.FailOnConflict {
				return nil, fmt.Errorf("%q: %w", p, ErrConflicted)
			}
			conflicted[p] = conflictSides{b, o, t}
			if markers != nil {
				tm.markers[p] = markers
			}
			continue
		}
		if res != nil {
			resolved[p] = *res
		}
	}

	// A file on one side where the other side has a directory cannot be
	// written into one tree.
	for _, p := range sortedKeys(resolved) {
		if !hasPathBelow(resolved, conflicted, p) {
			continue
		}
		if opts.FailOnConflict {
			return nil, fmt.Errorf("%q: file/directory collision: %w", p, ErrConflicted)
		}
		f := resolved[p]
		delete(resolved, p)
		cs := conflictSides{b: lookupFile(base, p), o: lookupFile(our, p), t: lookupFile(their, p)}
		if cs.o == nil && cs.t == nil {
			cs.o = &f
		}
		conflicted[p] = cs
	}

	for _, p := range sortedKeys(resolved) {
		f := resolved[p]
		if err := tm.index.Add(index.Entry{Path: p, Mode: f.Mode, Hash: f.Hash}); err != nil {
			return nil, err
		}
	}
	for _, p := range sortedKeys(conflicted) {
		cs := conflicted[p]
		if err := tm.index.AddConflict(conflictEntry(p, cs.b), conflictEntry(p, cs.o), conflictEntry(p, cs.t)); err != nil {
			return nil, err
		}
		tm.conflicts = append(tm.conflicts, p)
	}
	r.logger.Debug("merged trees", "ancestor", ancestor.Short(), "ours", ours.Short(), "theirs", theirs.Short(),
		"paths", len(paths), "conflicts", len(tm.conflicts))
	return tm, nil
}

// conflictSides holds the ancestor, ours and theirs versions of a
// conflicted path; absent sides are nil.
type conflictSides struct{ b, o, t *object.TreeFile }

func lookupFile(m map[string]object.TreeFile, p string) *object.TreeFile {
	if f, ok := m[p]; ok {
		return &f
	}
	return nil
}

func conflictEntry(p string, f *object.TreeFile) *index.Entry {
	if f == nil {
		return nil
	}
	return &index.Entry{Path: p, Mode: f.Mode, Hash: f.Hash}
}

func hasPathBelow(resolved map[string]object.TreeFile, conflicted map[string]conflictSides, p string) bool {
	prefix := p + "/"
	for q := range resolved {
		if strings.HasPrefix(q, prefix) {
			return true
		}
	}
	for q := range conflicted {
		if strings.HasPrefix(q, prefix) {
			return true
		}
	}
	return false
}

// mergeFile resolves one path. A nil result with ok set means the path is
// deleted. When ok is false, markers holds the line merge output if one
// was attempted.
func (r *Repo) mergeFile(p string, b, o, t *object.TreeFile, lineOpts diff3.Options) (res *object.TreeFile, markers []byte, ok bool, err error) {
	switch {
	case sameFile(o, t):
		return o, nil, true, nil
	case sameFile(b, o):
		return t, nil, true, nil
	case sameFile(b, t):
		return o, nil, true, nil
	case o == nil || t == nil:
		// Deleted on one side, modified on the other.
		return nil, nil, false, nil
	}

	mode, modeOK := mergeModes(b, o, t)
	if !modeOK {
		return nil, nil, false, nil
	}
	switch {
	case o.Hash == t.Hash:
		return &object.TreeFile{Path: p, Mode: mode, Hash: o.Hash}, nil, true, nil
	case b != nil && b.Hash == o.Hash:
		return &object.TreeFile{Path: p, Mode: mode, Hash: t.Hash}, nil, true, nil
	case b != nil && b.Hash == t.Hash:
		return &object.TreeFile{Path: p, Mode: mode, Hash: o.Hash}, nil, true, nil
	}
	if !isRegularMode(o.Mode) || !isRegularMode(t.Mode) || (b != nil && !isRegularMode(b.Mode)) {
		return nil, nil, false, nil
	}

	var baseData []byte
	if b != nil {
		blob, err := r.Store.ReadBlob(b.Hash)
		if err != nil {
			return nil, nil, false, err
		}
		baseData = blob.Data
	}
	ourBlob, err := r.Store.ReadBlob(o.Hash)
	if err != nil {
		return nil, nil, false, err
	}
	theirBlob, err := r.Store.ReadBlob(t.Hash)
	if err != nil {
		return nil, nil, false, err
	}
	result := diff3.MergeWithOptions(baseData, ourBlob.Data, theirBlob.Data, lineOpts)
	if result.HasConflicts {
		r.logger.Debug("content conflict", "path", p, "hunks", result.Conflicts)
		return nil, result.Merged, false, nil
	}
	h, err := r.Store.WriteBlob(&object.Blob{Data: result.Merged})
	if err != nil {
		return nil, nil, false, err
	}
	return &object.TreeFile{Path: p, Mode: mode, Hash: h}, nil, true, nil
}

// mergeModes merges the modes of a path present on both sides.
func mergeModes(b, o, t *object.TreeFile) (string, bool) {
	switch {
	case o.Mode == t.Mode:
		return o.Mode, true
	case b != nil && b.Mode == o.Mode:
		return t.Mode, true
	case b != nil && b.Mode == t.Mode:
		return o.Mode, true
	}
	return "", false
}

// followRenames moves entries so that a file renamed on one side and
// edited in place on the other lines up under the new name. A path
// renamed on both sides to the same name is aligned too; renames to
// different names are left as a delete plus two adds.
func (r *Repo) followRenames(ancestor, ours, theirs object.Hash, base, our, their map[string]object.TreeFile, threshold int) error {
	ourRenames, err := r.detectRenames(ancestor, ours, threshold)
	if err != nil {
		return err
	}
	theirRenames, err := r.detectRenames(ancestor, theirs, threshold)
	if err != nil {
		return err
	}
	move := func(m map[string]object.TreeFile, from, to string) {
		if f, ok := m[from]; ok {
			f.Path = to
			m[to] = f
			delete(m, from)
		}
	}
	follow := func(renames, otherRenames map[string]string, other map[string]object.TreeFile, side string) {
		for _, from := range sortedKeys(renames) {
			to := renames[from]
			if _, ok := base[from]; !ok {
				continue
			}
			if otherTo, ok := otherRenames[from]; ok {
				if otherTo == to {
					move(base, from, to)
				}
				continue
			}
			if _, ok := other[from]; !ok {
				continue
			}
			if _, clash := other[to]; clash {
				continue
			}
			move(other, from, to)
			move(base, from, to)
			r.logger.Debug("followed rename", "side", side, "from", from, "to", to)
		}
	}
	follow(ourRenames, theirRenames, their, "ours")
	follow(theirRenames, ourRenames, our, "theirs")
	return nil
}

func (r *Repo) detectRenames(from, to object.Hash, threshold int) (map[string]string, error) {
	d, err := diff.TreeToTree(r.Store, from, to, diff.Options{})
	if err != nil {
		return nil, fmt.Errorf("rename detection: %w", err)
	}
	if err := d.FindSimilar(diff.FindOptions{Renames: true, RenameThreshold: threshold}); err != nil {
		return nil, fmt.Errorf("rename detection: %w", err)
	}
	out := make(map[string]string)
	for _, dl := range d.Deltas() {
		if dl.Status == diff.Renamed {
			out[dl.OldFile.Path] = dl.NewFile.Path
		}
	}
	return out, nil
}

// MergeAnalysis describes how HEAD relates to a commit being merged.
type MergeAnalysis int

const (
	MergeAnalysisNone MergeAnalysis = 0
	// MergeAnalysisNormal means a real merge is needed.
	MergeAnalysisNormal MergeAnalysis = 1 << iota
	// MergeAnalysisUpToDate means the commit is already in HEAD's history.
	MergeAnalysisUpToDate
	// MergeAnalysisFastForward means HEAD can simply move to the commit.
	MergeAnalysisFastForward
	// MergeAnalysisUnborn means HEAD has no commit yet.
	MergeAnalysisUnborn
)

// Has reports whether every flag in f is set.
func (a MergeAnalysis) Has(f MergeAnalysis) bool { return a&f == f }

// MergeAnalysis reports whether merging their into HEAD is up to date, a
// fast-forward or a real merge.
func (r *Repo) MergeAnalysis(their object.Hash) (MergeAnalysis, error) {
	if r.IsHeadUnborn() {
		return MergeAnalysisFastForward | MergeAnalysisUnborn, nil
	}
	head, err := r.HeadHash()
	if err != nil {
		return MergeAnalysisNone, fmt.Errorf("merge analysis: %w", err)
	}
	if head == their {
		return MergeAnalysisUpToDate, nil
	}
	base, err := r.MergeBase(head, their)
	if errors.Is(err, ErrNotFound) {
		return MergeAnalysisNormal, nil
	}
	if err != nil {
		return MergeAnalysisNone, fmt.Errorf("merge analysis: %w", err)
	}
	switch base {
	case their:
		return MergeAnalysisUpToDate, nil
	case head:
		return MergeAnalysisFastForward | MergeAnalysisNormal, nil
	}
	return MergeAnalysisNormal, nil
}

// MergeResult reports what MergeBranches did.
type MergeResult struct {
	// Commit is the new tip of the target branch.
	Commit      object.Hash
	UpToDate    bool
	FastForward bool
	// Index is the merged index; it holds conflict entries when Conflicts
	// is non-empty.
	Index     *index.Index
	Conflicts []string
}

// MergeBranches merges from into the branch to. A branch already
// containing from is left alone, one that is behind fast-forwards unless
// NoFastForward is set, and otherwise a merge commit with parents [to,
// from] is created. Conflicts are not an error: the result lists them and,
// when to is checked out, the conflicted index, marked-up files and
// MERGE_HEAD are left for the user to resolve.
func (r *Repo) MergeBranches(to, from string, opts MergeOptions) (*MergeResult, error) {
	toRef := to
	if !strings.HasPrefix(toRef, "refs/") {
		toRef = "refs/heads/" + to
	}
	toName := ShortRefName(toRef)
	toRes, err := r.Resolve(toRef)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	toHash := toRes.Hash

	fromHash, fromFull, err := r.resolveMergeSource(from)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	current, err := r.CurrentBranch()
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	checkedOut := current == toName && r.worktree != nil
	if checkedOut {
		if err := r.requireStateNone("merge"); err != nil {
			return nil, err
		}
	}

	base, err := r.MergeBase(toHash, fromHash)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("merge: %w", err)
	}
	if base == fromHash {
		r.logger.Debug("merge up to date", "to", toName, "from", from)
		return &MergeResult{Commit: toHash, UpToDate: true}, nil
	}
	if base == toHash && !opts.NoFastForward {
		if err := r.fastForward(toRef, toHash, fromHash, checkedOut, fmt.Sprintf("Fast forward branch %s to branch %s", toName, from)); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		return &MergeResult{Commit: fromHash, FastForward: true}, nil
	}
	if opts.FastForwardOnly {
		return nil, fmt.Errorf("merge: %s cannot be fast-forwarded to %s: %w", toName, from, ErrInvalid)
	}
	if checkedOut {
		if err := r.ensureClean(); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
	}

	if opts.OursLabel == "" {
		opts.OursLabel = toName
	}
	if opts.TheirsLabel == "" {
		opts.TheirsLabel = from
	}
	tm, err := r.mergeCommits(toHash, fromHash, opts)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	msg := mergeMessage(toName, fromFull)
	toCommit, err := r.Store.ReadCommit(toHash)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	if len(tm.conflicts) > 0 {
		res := &MergeResult{Commit: toHash, Index: tm.index, Conflicts: tm.conflicts}
		if !checkedOut {
			return res, nil
		}
		if err := r.applyMergeResult(tm, toCommit.TreeHash); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		mode := ""
		if opts.NoFastForward {
			mode = "no-ff"
		}
		if err := r.writeMergeState(fromHash, msg, mode, tm.conflicts); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		r.logger.Debug("merge stopped on conflicts", "to", toName, "from", from, "conflicts", len(tm.conflicts))
		return res, nil
	}

	tree, err := tm.index.WriteTree()
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	sig := r.signatureOr(opts.Signature)
	h, err := r.createCommit(toRef, &object.CommitObj{
		TreeHash:  tree,
		Parents:   []object.Hash{toHash, fromHash},
		Author:    sig,
		Committer: sig,
		Message:   msg,
	}, opts.Signer, "")
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	if checkedOut {
		if err := r.applyMergeResult(tm, toCommit.TreeHash); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
	}
	return &MergeResult{Commit: h, Index: tm.index}, nil
}

// resolveMergeSource resolves the branch, tag or commit being merged and
// returns the reference name used to describe it.
func (r *Repo) resolveMergeSource(from string) (object.Hash, string, error) {
	if _, full, err := r.dwimRef(from); err == nil {
		h, _, err := r.resolveCommit(full)
		return h, full, err
	}
	h, _, err := r.resolveCommit(from)
	return h, from, err
}

func mergeMessage(to, fromFull string) string {
	kind, name := "branch", fromFull
	switch {
	case strings.HasPrefix(fromFull, "refs/tags/"):
		kind, name = "tag", strings.TrimPrefix(fromFull, "refs/tags/")
	case strings.HasPrefix(fromFull, "refs/remotes/"):
		kind, name = "remote-tracking branch", strings.TrimPrefix(fromFull, "refs/remotes/")
	case strings.HasPrefix(fromFull, "refs/heads/"):
		name = strings.TrimPrefix(fromFull, "refs/heads/")
	default:
		if _, err := object.ParseHash(fromFull); err == nil {
			kind = "commit"
		}
	}
	msg := fmt.Sprintf("Merge %s '%s'", kind, name)
	if to != DefaultBranch {
		msg += " into " + to
	}
	return msg + "\n"
}

// fastForward moves ref from old to new, updating the worktree first when
// the branch is checked out.
func (r *Repo) fastForward(ref string, old, new object.Hash, checkedOut bool, message string) error {
	if checkedOut {
		oc, err := r.Store.ReadCommit(old)
		if err != nil {
			return err
		}
		nc, err := r.Store.ReadCommit(new)
		if err != nil {
			return err
		}
		if err := r.checkoutTree(oc.TreeHash, nc.TreeHash, false); err != nil {
			return err
		}
	}
	if err := r.updateTerminal(ref, new, &old, nil, message); err != nil {
		return err
	}
	r.logger.Debug("fast-forward", "ref", ref, "old", old.Short(), "new", new.Short())
	return nil
}

func (r *Repo) writeMergeState(their object.Hash, msg, mode string, conflicts []string) error {
	if err := r.writeGitFile("MERGE_HEAD", []byte(their.Hex()+"\n")); err != nil {
		return err
	}
	if err := r.writeGitFile("MERGE_MSG", []byte(conflictMessage(msg, conflicts))); err != nil {
		return err
	}
	return r.writeGitFile("MERGE_MODE", []byte(mode))
}

func conflictMessage(msg string, conflicts []string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(msg, "\n"))
	b.WriteString("\n")
	if len(conflicts) > 0 {
		b.WriteString("\n# Conflicts:\n")
		for _, p := range conflicts {
			b.WriteString("#\t" + p + "\n")
		}
	}
	return b.String()
}

// checkMergeApplicable fails with ErrDirtyWorktree when writing tm over a
// worktree checked out at oldTree would clobber local changes.
func (r *Repo) checkMergeApplicable(tm *treeMerge, oldTree object.Hash) error {
	oldFiles, err := flattenMap(r.Store, oldTree)
	if err != nil {
		return err
	}
	dirty, err := r.dirtyPaths(oldTree)
	if err != nil {
		return err
	}
	touched := mergeTouched(tm, oldFiles)
	for _, p := range sortedKeys(touched) {
		if dirty[p] {
			return fmt.Errorf("%q has local changes: %w", p, ErrDirtyWorktree)
		}
		if _, tracked := oldFiles[p]; !tracked {
			if _, err := r.worktree.Lstat(p); err == nil {
				return fmt.Errorf("untracked %q would be overwritten: %w", p, ErrDirtyWorktree)
			}
		}
	}
	return nil
}

// mergeTouched lists the paths whose worktree content changes when tm
// replaces oldFiles.
func mergeTouched(tm *treeMerge, oldFiles map[string]object.TreeFile) map[string]bool {
	touched := make(map[string]bool)
	inResult := make(map[string]bool)
	for _, e := range tm.index.Entries() {
		inResult[e.Path] = true
		if e.Stage != index.StageNormal {
			touched[e.Path] = true
			continue
		}
		old, ok := oldFiles[e.Path]
		if !ok || old.Hash != e.Hash || old.Mode != e.Mode {
			touched[e.Path] = true
		}
	}
	for p := range oldFiles {
		if !inResult[p] {
			touched[p] = true
		}
	}
	return touched
}

// applyMergeResult writes tm into the repository index and the worktree,
// which is assumed to hold oldTree. Conflicted paths get their marked-up
// content, or the surviving side when no line merge was possible.
func (r *Repo) applyMergeResult(tm *treeMerge, oldTree object.Hash) error {
	oldFiles, err := flattenMap(r.Store, oldTree)
	if err != nil {
		return err
	}
	touched := mergeTouched(tm, oldFiles)
	entries := tm.index.Entries()
	inResult := make(map[string]bool, len(entries))
	for _, e := range entries {
		inResult[e.Path] = true
	}
	for _, p := range sortedKeys(oldFiles) {
		if !inResult[p] {
			if err := r.removeWorktreeFile(p); err != nil {
				return err
			}
		}
	}

	ix, err := r.Index()
	if err != nil {
		return err
	}
	ix.Clear()
	for _, c := range tm.index.Conflicts() {
		side := c.Ours
		if side == nil {
			side = c.Theirs
		}
		switch {
		case tm.markers[c.Path] != nil:
			mode := object.TreeModeFile
			if side != nil {
				mode = side.Mode
			}
			if err := r.writeWorktreeFile(c.Path, mode, tm.markers[c.Path]); err != nil {
				return err
			}
		case side != nil && !hasEntryBelow(entries, c.Path):
			if err := r.checkoutBlob(c.Path, side.Mode, side.Hash); err != nil {
				return err
			}
		}
	}
	for _, e := range entries {
		if e.Stage != index.StageNormal {
			if err := ix.Add(e); err != nil {
				return err
			}
			continue
		}
		if touched[e.Path] {
			if err := r.checkoutBlob(e.Path, e.Mode, e.Hash); err != nil {
				return err
			}
		}
		if err := ix.Add(r.statEntry(e.Path, e.Mode, e.Hash)); err != nil {
			return err
		}
	}
	if err := ix.Write(); err != nil {
		return err
	}
	return nil
}

// hasEntryBelow reports whether some entry of the sorted entries lives
// below directory p.
func hasEntryBelow(entries []index.Entry, p string) bool {
	prefix := p + "/"
	i := sort.Search(len(entries), func(i int) bool { return entries[i].Path >= prefix })
	return i < len(entries) && strings.HasPrefix(entries[i].Path, prefix)
}
