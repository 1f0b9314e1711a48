package repo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-git/go-billy/v5/util"
	"github.com/odvcencio/weft/pkg/index"
	"github.com/odvcencio/weft/pkg/object"
)

// RebaseOperationType is what a rebase does with one commit. Only picks
// are produced.
type RebaseOperationType int

const (
	RebasePick RebaseOperationType = iota
)

func (t RebaseOperationType) String() string {
	if t == RebasePick {
		return "pick"
	}
	return fmt.Sprintf("RebaseOperationType(%d)", int(t))
}

// RebaseOperation is one commit to replay.
type RebaseOperation struct {
	Type RebaseOperationType
	ID   object.Hash
}

// RebaseState is the position of a Rebase in its life cycle.
type RebaseState int

const (
	// RebaseNotStarted: initialized, Next not yet called.
	RebaseNotStarted RebaseState = iota
	// RebaseInProgress: an operation has been applied cleanly.
	RebaseInProgress
	// RebaseConflicted: the current operation left conflicts in the index.
	RebaseConflicted
	// RebaseCompleted: every operation was applied; Finish may be called.
	RebaseCompleted
)

var rebaseStateNames = [...]string{"not-started", "in-progress", "conflicted", "completed"}

func (s RebaseState) String() string {
	if s >= 0 && int(s) < len(rebaseStateNames) {
		return rebaseStateNames[s]
	}
	return fmt.Sprintf("RebaseState(%d)", int(s))
}

// RebaseStep is what Next applied.
type RebaseStep struct {
	Operation RebaseOperation
	// Index is the merge result; it has conflicts when Conflicts is
	// non-empty.
	Index     *index.Index
	Conflicts []string
}

// RebaseOptions controls a rebase.
type RebaseOptions struct {
	Quiet bool
	Merge MergeOptions
	// Committer signs the rewritten commits; nil means the configured
	// identity.
	Committer *object.Signature
	Signer    CommitSigner
}

// Rebase replays commits onto a new base one at a time. Its progress is
// persisted in rebase-merge/ so another process can RebaseOpen it.
type Rebase struct {
	r    *Repo
	opts RebaseOptions

	headName string // branch being rebased, or "detached HEAD"
	origHead object.Hash
	onto     object.Hash
	ontoName string

	operations []RebaseOperation
	current    int // index into operations, -1 before the first Next
	committed  bool
	state      RebaseState
}

const detachedHeadName = "detached HEAD"

// RebaseInit starts rebasing branch onto onto. The replayed operations are
// the non-merge commits reachable from branch but not from upstream,
// oldest first. Empty branch means HEAD; empty onto means upstream. HEAD
// is detached at onto until Finish or Abort.
func (r *Repo) RebaseInit(branch, upstream, onto string, opts RebaseOptions) (*Rebase, error) {
	if r.worktree == nil {
		return nil, fmt.Errorf("rebase: %w", ErrBare)
	}
	if err := r.requireStateNone("rebase"); err != nil {
		return nil, err
	}
	if err := r.ensureClean(); err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}

	headName, branchHash, err := r.rebaseBranch(branch)
	if err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}
	upstreamHash, _, err := r.resolveCommit(upstream)
	if err != nil {
		return nil, fmt.Errorf("rebase: upstream: %w", err)
	}
	ontoName := onto
	ontoHash := upstreamHash
	if onto == "" {
		ontoName = upstream
	} else if ontoHash, _, err = r.resolveCommit(onto); err != nil {
		return nil, fmt.Errorf("rebase: onto: %w", err)
	}

	w := r.Walk()
	if err := w.Push(branchHash); err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}
	if err := w.Hide(upstreamHash); err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}
	w.Sorting(SortTopological | SortReverse)
	var ops []RebaseOperation
	for e, err := range w.Seq() {
		if err != nil {
			return nil, fmt.Errorf("rebase: %w", err)
		}
		if len(e.Commit.Parents) > 1 {
			continue
		}
		ops = append(ops, RebaseOperation{Type: RebasePick, ID: e.Hash})
	}

	rb := &Rebase{
		r:          r,
		opts:       opts,
		headName:   headName,
		origHead:   branchHash,
		onto:       ontoHash,
		ontoName:   ontoName,
		operations: ops,
		current:    -1,
		state:      RebaseNotStarted,
	}
	if err := rb.saveSetup(); err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}
	if err := r.writeGitFile("ORIG_HEAD", []byte(branchHash.Hex()+"\n")); err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}

	from, err := r.HeadTree()
	if err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}
	oc, err := r.Store.ReadCommit(ontoHash)
	if err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}
	if err := r.checkoutTree(from, oc.TreeHash, true); err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}
	if err := r.setHeadDetached(ontoHash, "rebase: checkout "+ontoName); err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}
	r.logger.Debug("rebase started", "branch", headName, "onto", ontoHash.Short(), "operations", len(ops))
	return rb, nil
}

// rebaseBranch resolves the branch to rebase and the name recorded for it.
func (r *Repo) rebaseBranch(branch string) (string, object.Hash, error) {
	if branch == "" {
		head, err := r.Head()
		if err != nil {
			return "", object.ZeroHash, err
		}
		h, err := r.HeadHash()
		if err != nil {
			return "", object.ZeroHash, err
		}
		if head.IsSymbolic() {
			return head.Target, h, nil
		}
		return detachedHeadName, h, nil
	}
	_, full, err := r.dwimRef(branch)
	if err != nil {
		h, _, cerr := r.resolveCommit(branch)
		if cerr != nil {
			return "", object.ZeroHash, err
		}
		return detachedHeadName, h, nil
	}
	h, _, err := r.resolveCommit(full)
	if err != nil {
		return "", object.ZeroHash, err
	}
	if !strings.HasPrefix(full, "refs/heads/") {
		return detachedHeadName, h, nil
	}
	return full, h, nil
}

func rebaseFile(name string) string { return rebaseMergeDir + "/" + name }

func (rb *Rebase) write(name, content string) error {
	return rb.r.writeGitFile(rebaseFile(name), []byte(content))
}

func (rb *Rebase) saveSetup() error {
	files := map[string]string{
		"head-name": rb.headName + "\n",
		"onto":      rb.onto.Hex() + "\n",
		"onto_name": rb.ontoName + "\n",
		"orig-head": rb.origHead.Hex() + "\n",
		"end":       strconv.Itoa(len(rb.operations)) + "\n",
	}
	if rb.opts.Quiet {
		files["quiet"] = "\n"
	}
	for i, op := range rb.operations {
		files["cmt."+strconv.Itoa(i+1)] = op.ID.Hex() + "\n"
	}
	for _, name := range sortedKeys(files) {
		if err := rb.write(name, files[name]); err != nil {
			return err
		}
	}
	return nil
}

// RebaseOpen resumes the rebase recorded in rebase-merge/.
func (r *Repo) RebaseOpen(opts RebaseOptions) (*Rebase, error) {
	if r.State() != StateRebaseMerge {
		return nil, fmt.Errorf("rebase open: no rebase in progress: %w", ErrNotFound)
	}
	read := func(name string) (string, error) {
		data, err := r.readGitFile(rebaseFile(name))
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}
	readHash := func(name string) (object.Hash, error) {
		s, err := read(name)
		if err != nil {
			return object.ZeroHash, err
		}
		return object.ParseHash(s)
	}

	rb := &Rebase{r: r, opts: opts, current: -1}
	var err error
	if rb.headName, err = read("head-name"); err != nil {
		return nil, fmt.Errorf("rebase open: %w", err)
	}
	if rb.onto, err = readHash("onto"); err != nil {
		return nil, fmt.Errorf("rebase open: %w", err)
	}
	if rb.origHead, err = readHash("orig-head"); err != nil {
		return nil, fmt.Errorf("rebase open: %w", err)
	}
	if rb.ontoName, err = read("onto_name"); err != nil {
		rb.ontoName = rb.onto.Hex()
	}
	endStr, err := read("end")
	if err != nil {
		return nil, fmt.Errorf("rebase open: %w", err)
	}
	end, err := strconv.Atoi(endStr)
	if err != nil {
		return nil, fmt.Errorf("rebase open: end: %w", object.ErrCorrupt)
	}
	for i := 1; i <= end; i++ {
		h, err := readHash("cmt." + strconv.Itoa(i))
		if err != nil {
			return nil, fmt.Errorf("rebase open: %w", err)
		}
		rb.operations = append(rb.operations, RebaseOperation{Type: RebasePick, ID: h})
	}
	rb.opts.Quiet = r.hasGitFile(rebaseFile("quiet"))

	rb.state = RebaseNotStarted
	if s, err := read("msgnum"); err == nil {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > end {
			return nil, fmt.Errorf("rebase open: msgnum %q: %w", s, object.ErrCorrupt)
		}
		rb.current = n - 1
		rb.committed = r.hasGitFile(rebaseFile("current"))
		rb.state = RebaseInProgress
		ix, err := r.Index()
		if err != nil {
			return nil, fmt.Errorf("rebase open: %w", err)
		}
		if ix.HasConflicts() {
			rb.state = RebaseConflicted
		}
	}
	return rb, nil
}

// State returns where the rebase is in its life cycle.
func (rb *Rebase) State() RebaseState { return rb.state }

// OperationCount returns the number of operations.
func (rb *Rebase) OperationCount() int { return len(rb.operations) }

// Operation returns operation i.
func (rb *Rebase) Operation(i int) RebaseOperation { return rb.operations[i] }

// CurrentOperation returns the index of the operation last applied, or -1.
func (rb *Rebase) CurrentOperation() int { return rb.current }

// Onto returns the commit the operations are replayed on.
func (rb *Rebase) Onto() object.Hash { return rb.onto }

// OrigHead returns the branch tip before the rebase.
func (rb *Rebase) OrigHead() object.Hash { return rb.origHead }

// Next applies the next operation to the index and worktree. Conflicts
// are reported in the returned step, not as an error. When no operations
// remain it returns ErrIterationOver and the rebase is Completed.
func (rb *Rebase) Next() (*RebaseStep, error) {
	r := rb.r
	switch rb.state {
	case RebaseCompleted:
		return nil, ErrIterationOver
	case RebaseConflicted:
		return nil, fmt.Errorf("rebase next: %w", ErrConflicted)
	}
	if ix, err := r.Index(); err != nil {
		return nil, fmt.Errorf("rebase next: %w", err)
	} else if ix.HasConflicts() {
		return nil, fmt.Errorf("rebase next: %w", ErrConflicted)
	}

	next := rb.current + 1
	if next >= len(rb.operations) {
		rb.state = RebaseCompleted
		return nil, ErrIterationOver
	}
	rb.current = next
	rb.committed = false
	op := rb.operations[next]
	if err := rb.write("msgnum", strconv.Itoa(next+1)+"\n"); err != nil {
		return nil, fmt.Errorf("rebase next: %w", err)
	}
	if err := r.removeGitFile(rebaseFile("current")); err != nil {
		return nil, fmt.Errorf("rebase next: %w", err)
	}

	c, parentTree, pickTree, err := r.pickTrees(op.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("rebase next: %w", err)
	}
	headTree, err := r.HeadTree()
	if err != nil {
		return nil, fmt.Errorf("rebase next: %w", err)
	}
	mopts := rb.opts.Merge
	if mopts.OursLabel == "" {
		mopts.OursLabel = "HEAD"
	}
	if mopts.TheirsLabel == "" {
		mopts.TheirsLabel = op.ID.Short() + " (" + c.Summary() + ")"
	}
	tm, err := r.mergeTrees(parentTree, headTree, pickTree, mopts)
	if err != nil {
		return nil, fmt.Errorf("rebase next: %w", err)
	}
	if err := r.checkMergeApplicable(tm, headTree); err != nil {
		return nil, fmt.Errorf("rebase next: %w", err)
	}
	if err := r.applyMergeResult(tm, headTree); err != nil {
		return nil, fmt.Errorf("rebase next: %w", err)
	}

	step := &RebaseStep{Operation: op, Index: tm.index, Conflicts: tm.conflicts}
	rb.state = RebaseInProgress
	if len(tm.conflicts) > 0 {
		rb.state = RebaseConflicted
	}
	r.logger.Debug("rebase step", "n", next+1, "of", len(rb.operations), "commit", op.ID.Short(), "conflicts", len(tm.conflicts))
	return step, nil
}

// Commit records the index as the rewritten version of the current
// operation on top of HEAD. Nil author and empty message keep the
// original ones. It fails with ErrConflicted while conflicts remain and
// with ErrApplied when the index matches HEAD.
func (rb *Rebase) Commit(author, committer *object.Signature, message string) (object.Hash, error) {
	r := rb.r
	if rb.current < 0 || rb.state == RebaseCompleted {
		return object.ZeroHash, fmt.Errorf("rebase commit: no current operation: %w", ErrInvalidState)
	}
	ix, err := r.Index()
	if err != nil {
		return object.ZeroHash, fmt.Errorf("rebase commit: %w", err)
	}
	if ix.HasConflicts() {
		return object.ZeroHash, fmt.Errorf("rebase commit: %w", ErrConflicted)
	}
	rb.state = RebaseInProgress

	tree, err := ix.WriteTree()
	if err != nil {
		return object.ZeroHash, fmt.Errorf("rebase commit: %w", err)
	}
	head, err := r.HeadHash()
	if err != nil {
		return object.ZeroHash, fmt.Errorf("rebase commit: %w", err)
	}
	hc, err := r.Store.ReadCommit(head)
	if err != nil {
		return object.ZeroHash, fmt.Errorf("rebase commit: %w", err)
	}
	if hc.TreeHash == tree {
		rb.committed = true
		return object.ZeroHash, fmt.Errorf("rebase commit: %w", ErrApplied)
	}

	op := rb.operations[rb.current]
	orig, err := r.Store.ReadCommit(op.ID)
	if err != nil {
		return object.ZeroHash, fmt.Errorf("rebase commit: %w", err)
	}
	a := orig.Author
	if author != nil {
		a = *author
	}
	if message == "" {
		message = orig.Message
	}
	if committer == nil {
		committer = rb.opts.Committer
	}
	c := &object.CommitObj{
		TreeHash:  tree,
		Parents:   []object.Hash{head},
		Author:    a,
		Committer: r.signatureOr(committer),
		Encoding:  orig.Encoding,
		Message:   message,
	}
	h, err := r.createCommit("HEAD", c, rb.opts.Signer, "rebase: "+c.Summary())
	if err != nil {
		return object.ZeroHash, fmt.Errorf("rebase commit: %w", err)
	}
	if err := rb.appendRewritten(op.ID, h); err != nil {
		return h, fmt.Errorf("rebase commit: %w", err)
	}
	rb.committed = true
	if err := rb.write("current", h.Hex()+"\n"); err != nil {
		return h, fmt.Errorf("rebase commit: %w", err)
	}
	return h, nil
}

func (rb *Rebase) appendRewritten(old, new object.Hash) error {
	data, err := rb.r.readGitFile(rebaseFile("rewritten"))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	data = append(data, []byte(old.Hex()+" "+new.Hex()+"\n")...)
	return rb.write("rewritten", string(data))
}

// Rewritten returns the old to new commit pairs recorded so far.
func (rb *Rebase) Rewritten() ([][2]object.Hash, error) {
	data, err := rb.r.readGitFile(rebaseFile("rewritten"))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out [][2]object.Hash
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		oldHex, newHex, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		o, err1 := object.ParseHash(oldHex)
		n, err2 := object.ParseHash(newHex)
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("rewritten: %w", object.ErrCorrupt)
		}
		out = append(out, [2]object.Hash{o, n})
	}
	return out, nil
}

// done reports whether every operation has been applied and committed.
func (rb *Rebase) done() bool {
	switch rb.state {
	case RebaseCompleted:
		return true
	case RebaseConflicted:
		return false
	}
	return rb.current == len(rb.operations)-1 && (rb.committed || rb.current < 0)
}

// Finish moves the rebased branch to HEAD in a single reference update,
// reattaches HEAD to it and removes the rebase metadata. It is valid once
// the last operation has been committed or Next has returned
// ErrIterationOver.
func (rb *Rebase) Finish(sig *object.Signature) error {
	r := rb.r
	if !rb.done() {
		return fmt.Errorf("rebase finish: rebase is %s: %w", rb.state, ErrInvalidState)
	}
	head, err := r.HeadHash()
	if err != nil {
		return fmt.Errorf("rebase finish: %w", err)
	}
	if rb.headName != detachedHeadName {
		msg := fmt.Sprintf("rebase finished: %s onto %s", rb.headName, rb.onto.Hex())
		if err := r.updateTerminal(rb.headName, head, nil, sig, msg); err != nil {
			return fmt.Errorf("rebase finish: %w", err)
		}
		if _, err := r.CreateSymbolicReference("HEAD", rb.headName, true, "rebase finished: returning to "+rb.headName); err != nil {
			return fmt.Errorf("rebase finish: %w", err)
		}
	}
	if err := util.RemoveAll(r.dotgit, rebaseMergeDir); err != nil {
		return fmt.Errorf("rebase finish: %w", err)
	}
	rb.state = RebaseCompleted
	r.logger.Debug("rebase finished", "branch", rb.headName, "head", head.Short())
	return nil
}

// Abort puts the branch, HEAD, index and worktree back to where they were
// before RebaseInit and removes the rebase metadata.
func (rb *Rebase) Abort() error {
	r := rb.r
	ix, err := r.Index()
	if err != nil {
		return fmt.Errorf("rebase abort: %w", err)
	}
	from, err := r.HeadTree()
	if err != nil {
		return fmt.Errorf("rebase abort: %w", err)
	}
	if ix.HasConflicts() {
		// The conflicted worktree is discarded wholesale below.
		from = object.ZeroHash
	}
	oc, err := r.Store.ReadCommit(rb.origHead)
	if err != nil {
		return fmt.Errorf("rebase abort: %w", err)
	}

	if rb.headName != detachedHeadName {
		if _, err := r.CreateReference(rb.headName, rb.origHead, true, "rebase: aborting"); err != nil {
			return fmt.Errorf("rebase abort: %w", err)
		}
		if _, err := r.CreateSymbolicReference("HEAD", rb.headName, true, "rebase: aborting"); err != nil {
			return fmt.Errorf("rebase abort: %w", err)
		}
	} else if err := r.setHeadDetached(rb.origHead, "rebase: aborting"); err != nil {
		return fmt.Errorf("rebase abort: %w", err)
	}
	if err := r.checkoutTree(from, oc.TreeHash, true); err != nil {
		return fmt.Errorf("rebase abort: %w", err)
	}
	if err := util.RemoveAll(r.dotgit, rebaseMergeDir); err != nil {
		return fmt.Errorf("rebase abort: %w", err)
	}
	r.logger.Debug("rebase aborted", "branch", rb.headName, "orig", rb.origHead.Short())
	return nil
}

// RebaseResult reports what RebaseBranches did.
type RebaseResult struct {
	Commit      object.Hash
	UpToDate    bool
	FastForward bool
	// Conflict is the step that stopped the rebase. The rebase stays in
	// progress; resolve, then continue with RebaseOpen.
	Conflict *RebaseStep
	Skipped  []object.Hash
}

// RebaseBranches rebases branch onto upstream (or onto) in one go. A
// branch behind upstream is fast-forwarded and one already on top is left
// alone. Commits whose change is already present are skipped. It stops at
// the first conflicting step and returns it in the result.
func (r *Repo) RebaseBranches(branch, upstream, onto string, opts RebaseOptions) (*RebaseResult, error) {
	headName, branchHash, err := r.rebaseBranch(branch)
	if err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}
	upstreamHash, _, err := r.resolveCommit(upstream)
	if err != nil {
		return nil, fmt.Errorf("rebase: upstream: %w", err)
	}
	if onto == "" {
		base, err := r.MergeBase(branchHash, upstreamHash)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("rebase: %w", err)
		}
		switch base {
		case upstreamHash:
			return &RebaseResult{Commit: branchHash, UpToDate: true}, nil
		case branchHash:
			if headName == detachedHeadName {
				break
			}
			current, err := r.CurrentBranch()
			if err != nil {
				return nil, fmt.Errorf("rebase: %w", err)
			}
			checkedOut := r.worktree != nil && "refs/heads/"+current == headName
			msg := fmt.Sprintf("rebase finished: %s onto %s", headName, upstreamHash.Hex())
			if err := r.fastForward(headName, branchHash, upstreamHash, checkedOut, msg); err != nil {
				return nil, fmt.Errorf("rebase: %w", err)
			}
			return &RebaseResult{Commit: upstreamHash, FastForward: true}, nil
		}
	}

	rb, err := r.RebaseInit(branch, upstream, onto, opts)
	if err != nil {
		return nil, err
	}
	res := &RebaseResult{}
	for {
		step, err := rb.Next()
		if errors.Is(err, ErrIterationOver) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(step.Conflicts) > 0 {
			res.Conflict = step
			return res, nil
		}
		if _, err := rb.Commit(nil, nil, ""); errors.Is(err, ErrApplied) {
			res.Skipped = append(res.Skipped, step.Operation.ID)
		} else if err != nil {
			return nil, err
		}
	}
	if err := rb.Finish(opts.Committer); err != nil {
		return nil, err
	}
	if res.Commit, err = r.HeadHash(); err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}
	return res, nil
}
