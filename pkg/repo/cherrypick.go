package repo

import (
	"fmt"

	"github.com/odvcencio/weft/pkg/index"
	"github.com/odvcencio/weft/pkg/object"
)

// CherryPickOptions controls CherryPick and Revert.
type CherryPickOptions struct {
	// Mainline selects, 1-based, the parent a merge commit is compared
	// against. It must be 0 for non-merge commits.
	Mainline int
	Merge    MergeOptions
}

// PickResult reports the outcome of CherryPick or Revert.
type PickResult struct {
	// Commit is the new commit, or ZeroHash when the operation stopped on
	// conflicts.
	Commit    object.Hash
	Index     *index.Index
	Conflicts []string
}

// mainlineParent picks the parent c is diffed against.
func mainlineParent(c *object.CommitObj, mainline int) (object.Hash, error) {
	switch n := len(c.Parents); {
	case n > 1 && mainline == 0:
		return object.ZeroHash, fmt.Errorf("commit is a merge but no mainline was given: %w", ErrInvalid)
	case n > 1 && (mainline < 0 || mainline > n):
		return object.ZeroHash, fmt.Errorf("mainline %d out of range for %d parents: %w", mainline, n, ErrInvalid)
	case n > 1:
		return c.Parents[mainline-1], nil
	case mainline != 0:
		return object.ZeroHash, fmt.Errorf("mainline given for a non-merge commit: %w", ErrInvalid)
	case n == 1:
		return c.Parents[0], nil
	}
	return object.ZeroHash, nil
}

// pickTrees returns the picked commit, the tree of its mainline parent
// (ZeroHash for a root commit) and its own tree.
func (r *Repo) pickTrees(pick object.Hash, mainline int) (*object.CommitObj, object.Hash, object.Hash, error) {
	c, err := r.Store.ReadCommit(pick)
	if err != nil {
		return nil, object.ZeroHash, object.ZeroHash, err
	}
	parent, err := mainlineParent(c, mainline)
	if err != nil {
		return nil, object.ZeroHash, object.ZeroHash, err
	}
	parentTree := object.ZeroHash
	if !parent.IsZero() {
		pc, err := r.Store.ReadCommit(parent)
		if err != nil {
			return nil, object.ZeroHash, object.ZeroHash, err
		}
		parentTree = pc.TreeHash
	}
	return c, parentTree, c.TreeHash, nil
}

// CherryPickCommit applies the change pick introduced on top of ours and
// returns the merged index. Nothing in the repository changes.
func (r *Repo) CherryPickCommit(pick, ours object.Hash, mainline int, opts MergeOptions) (*index.Index, error) {
	_, parentTree, pickTree, err := r.pickTrees(pick, mainline)
	if err != nil {
		return nil, fmt.Errorf("cherry-pick: %w", err)
	}
	oc, err := r.Store.ReadCommit(ours)
	if err != nil {
		return nil, fmt.Errorf("cherry-pick: %w", err)
	}
	tm, err := r.mergeTrees(parentTree, oc.TreeHash, pickTree, opts)
	if err != nil {
		return nil, fmt.Errorf("cherry-pick: %w", err)
	}
	return tm.index, nil
}

// RevertCommit undoes the change revert introduced on top of ours and
// returns the merged index. Nothing in the repository changes.
func (r *Repo) RevertCommit(revert, ours object.Hash, mainline int, opts MergeOptions) (*index.Index, error) {
	_, parentTree, revertTree, err := r.pickTrees(revert, mainline)
	if err != nil {
		return nil, fmt.Errorf("revert: %w", err)
	}
	oc, err := r.Store.ReadCommit(ours)
	if err != nil {
		return nil, fmt.Errorf("revert: %w", err)
	}
	tm, err := r.mergeTrees(revertTree, oc.TreeHash, parentTree, opts)
	if err != nil {
		return nil, fmt.Errorf("revert: %w", err)
	}
	return tm.index, nil
}

// CherryPick applies commit h on top of HEAD. A clean result is committed
// with the original author and message; conflicts are left in the index
// and worktree with CHERRY_PICK_HEAD and MERGE_MSG recording the state.
func (r *Repo) CherryPick(h object.Hash, opts CherryPickOptions) (*PickResult, error) {
	return r.pick("cherry-pick", h, opts, false)
}

// Revert commits the inverse of commit h on top of HEAD, or leaves
// REVERT_HEAD and the conflicts for resolution.
func (r *Repo) Revert(h object.Hash, opts CherryPickOptions) (*PickResult, error) {
	return r.pick("revert", h, opts, true)
}

func (r *Repo) pick(op string, h object.Hash, opts CherryPickOptions, revert bool) (*PickResult, error) {
	if r.worktree == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrBare)
	}
	if err := r.requireStateNone(op); err != nil {
		return nil, err
	}
	head, err := r.HeadHash()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	hc, err := r.Store.ReadCommit(head)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c, parentTree, pickTree, err := r.pickTrees(h, opts.Mainline)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	mopts := opts.Merge
	if mopts.OursLabel == "" {
		mopts.OursLabel = "HEAD"
	}
	if mopts.TheirsLabel == "" {
		mopts.TheirsLabel = h.Short() + " (" + c.Summary() + ")"
		if revert {
			mopts.TheirsLabel = "parent of " + mopts.TheirsLabel
		}
	}
	base, theirs := parentTree, pickTree
	if revert {
		base, theirs = pickTree, parentTree
	}
	tm, err := r.mergeTrees(base, hc.TreeHash, theirs, mopts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := r.checkMergeApplicable(tm, hc.TreeHash); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	author := c.Author
	msg := c.Message
	stateFile := "CHERRY_PICK_HEAD"
	if revert {
		author = r.signatureOr(mopts.Signature)
		msg = fmt.Sprintf("Revert \"%s\"\n\nThis reverts commit %s.\n", c.Summary(), h.Hex())
		stateFile = "REVERT_HEAD"
	}

	if len(tm.conflicts) > 0 {
		if err := r.applyMergeResult(tm, hc.TreeHash); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := r.writeGitFile(stateFile, []byte(h.Hex()+"\n")); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := r.writeGitFile("MERGE_MSG", []byte(conflictMessage(msg, tm.conflicts))); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		r.logger.Debug(op+" stopped on conflicts", "commit", h.Short(), "conflicts", len(tm.conflicts))
		return &PickResult{Index: tm.index, Conflicts: tm.conflicts}, nil
	}

	tree, err := tm.index.WriteTree()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	newHash, err := r.createCommit("HEAD", &object.CommitObj{
		TreeHash:  tree,
		Parents:   []object.Hash{head},
		Author:    author,
		Committer: r.signatureOr(mopts.Signature),
		Message:   msg,
	}, mopts.Signer, op+": "+summaryOf(msg))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := r.applyMergeResult(tm, hc.TreeHash); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &PickResult{Commit: newHash, Index: tm.index}, nil
}

func summaryOf(msg string) string {
	return (&object.CommitObj{Message: msg}).Summary()
}
