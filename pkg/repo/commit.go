package repo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/odvcencio/weft/pkg/object"
)

// CommitSigner signs canonical commit payload bytes and returns an encoded
// signature string to be persisted in CommitObj.Signature. Returning
// ErrPassthrough leaves the commit unsigned.
type CommitSigner func(payload []byte) (string, error)

// CreateCommit writes a commit and, when updateRef is set, moves that
// reference to it. The reference must currently hold parents[0], or not
// exist for a root commit, otherwise ErrRefCASMismatch is returned.
func (r *Repo) CreateCommit(updateRef string, author, committer object.Signature, message string, tree object.Hash, parents []object.Hash) (object.Hash, error) {
	return r.CreateCommitWithSigner(updateRef, author, committer, message, tree, parents, nil)
}

// CreateCommitWithSigner is CreateCommit with the commit signed by signer.
func (r *Repo) CreateCommitWithSigner(updateRef string, author, committer object.Signature, message string, tree object.Hash, parents []object.Hash, signer CommitSigner) (object.Hash, error) {
	c := &object.CommitObj{
		TreeHash:  tree,
		Parents:   parents,
		Author:    author,
		Committer: committer,
		Message:   message,
	}
	return r.createCommit(updateRef, c, signer, "")
}

// createCommit validates, signs and writes c, then updates updateRef with
// reflogMsg, or the default commit message when reflogMsg is empty.
func (r *Repo) createCommit(updateRef string, c *object.CommitObj, signer CommitSigner, reflogMsg string) (object.Hash, error) {
	if typ, _, err := r.Store.Read(c.TreeHash); err != nil {
		return object.ZeroHash, fmt.Errorf("commit: tree %s: %w", c.TreeHash.Hex(), err)
	} else if typ != object.TypeTree {
		return object.ZeroHash, fmt.Errorf("commit: %s is a %s: %w", c.TreeHash.Hex(), typ, ErrInvalid)
	}
	for _, p := range c.Parents {
		if _, err := r.Store.ReadCommit(p); err != nil {
			return object.ZeroHash, fmt.Errorf("commit: parent %s: %w", p.Hex(), err)
		}
	}

	if signer != nil {
		sig, err := signer(object.CommitSigningPayload(c))
		switch {
		case errors.Is(err, ErrPassthrough):
		case err != nil:
			return object.ZeroHash, fmt.Errorf("commit: sign: %w", err)
		default:
			c.Signature = sig
		}
	}

	h, err := r.Store.WriteCommit(c)
	if err != nil {
		return object.ZeroHash, fmt.Errorf("commit: write: %w", err)
	}
	r.logger.Debug("wrote commit", "hash", h.Short(), "parents", len(c.Parents), "signed", c.Signature != "")
	if updateRef == "" {
		return h, nil
	}

	expect := object.ZeroHash
	if len(c.Parents) > 0 {
		expect = c.Parents[0]
	}
	if reflogMsg == "" {
		reflogMsg = commitReflogMessage(c)
	}
	committer := c.Committer
	if err := r.updateTerminal(updateRef, h, &expect, &committer, reflogMsg); err != nil {
		return h, fmt.Errorf("commit: %w", err)
	}
	return h, nil
}

func commitReflogMessage(c *object.CommitObj) string {
	kind := "commit"
	switch {
	case len(c.Parents) == 0:
		kind = "commit (initial)"
	case len(c.Parents) > 1:
		kind = "commit (merge)"
	}
	return kind + ": " + c.Summary()
}

// CreateCommitOnHead commits the repository index on top of HEAD. An
// in-progress merge contributes MERGE_HEAD as further parents, and the
// merge state is cleared afterwards. Nil signatures default to the
// configured identity.
func (r *Repo) CreateCommitOnHead(message string, author, committer *object.Signature) (object.Hash, error) {
	return r.CreateCommitOnHeadWithSigner(message, author, committer, nil)
}

// CreateCommitOnHeadWithSigner is CreateCommitOnHead with a signer.
func (r *Repo) CreateCommitOnHeadWithSigner(message string, author, committer *object.Signature, signer CommitSigner) (object.Hash, error) {
	ix, err := r.Index()
	if err != nil {
		return object.ZeroHash, fmt.Errorf("commit: %w", err)
	}
	if ix.HasConflicts() {
		return object.ZeroHash, fmt.Errorf("commit: %w", ErrConflicted)
	}
	tree, err := ix.WriteTree()
	if err != nil {
		return object.ZeroHash, fmt.Errorf("commit: %w", err)
	}

	var parents []object.Hash
	if !r.IsHeadUnborn() {
		head, err := r.HeadHash()
		if err != nil {
			return object.ZeroHash, fmt.Errorf("commit: %w", err)
		}
		parents = append(parents, head)
	}
	merged, err := r.mergeHeads()
	if err != nil {
		return object.ZeroHash, fmt.Errorf("commit: %w", err)
	}
	parents = append(parents, merged...)

	a, err := r.signatureArg(author)
	if err != nil {
		return object.ZeroHash, fmt.Errorf("commit: %w", err)
	}
	c := a
	if committer != nil {
		c = *committer
	}
	h, err := r.createCommit("HEAD", &object.CommitObj{
		TreeHash:  tree,
		Parents:   parents,
		Author:    a,
		Committer: c,
		Message:   message,
	}, signer, "")
	if err != nil {
		return h, err
	}
	if err := r.StateCleanup(); err != nil {
		return h, fmt.Errorf("commit: %w", err)
	}
	return h, nil
}

// Commit commits the index on HEAD as the configured user.
func (r *Repo) Commit(message string) (object.Hash, error) {
	return r.CreateCommitOnHead(message, nil, nil)
}

// signatureArg returns *sig, or the configured identity when sig is nil.
func (r *Repo) signatureArg(sig *object.Signature) (object.Signature, error) {
	if sig != nil {
		return *sig, nil
	}
	return r.DefaultSignature()
}

// mergeHeads reads MERGE_HEAD, one commit id per line.
func (r *Repo) mergeHeads() ([]object.Hash, error) {
	data, err := r.readGitFile("MERGE_HEAD")
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []object.Hash
	for _, line := range strings.Fields(string(data)) {
		h, err := object.ParseHash(line)
		if err != nil {
			return nil, fmt.Errorf("MERGE_HEAD: %w", err)
		}
		out = append(out, h)
	}
	return out, nil
}
