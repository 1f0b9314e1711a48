package repo

import (
	"fmt"
	"strings"

	"github.com/odvcencio/weft/pkg/object"
)

// Branch is a local branch and the commit it points at.
type Branch struct {
	Name   string // short name
	Hash   object.Hash
	IsHead bool
}

func branchRef(name string) string { return "refs/heads/" + name }

// CreateBranch creates refs/heads/<name> at target. Without force an
// existing branch is an ErrExists error; the checked-out branch can never
// be overwritten.
func (r *Repo) CreateBranch(name string, target object.Hash, force bool) (*Branch, error) {
	refName := branchRef(name)
	if err := ValidateRefName(refName); err != nil {
		return nil, fmt.Errorf("create branch: %w", err)
	}
	peeled, typ, err := r.Store.Peel(target)
	if err != nil {
		return nil, fmt.Errorf("create branch %q: %w", name, err)
	}
	if typ != object.TypeCommit {
		return nil, fmt.Errorf("create branch %q: %s is a %s: %w", name, target.Hex(), typ, ErrInvalid)
	}
	current, err := r.CurrentBranch()
	if err != nil {
		return nil, fmt.Errorf("create branch: %w", err)
	}
	if force && current == name && r.worktree != nil {
		return nil, fmt.Errorf("create branch: cannot force update the current branch %q: %w", name, ErrInvalidState)
	}
	msg := "branch: Created from " + peeled.Hex()
	if _, err := r.CreateReference(refName, peeled, force, msg); err != nil {
		return nil, fmt.Errorf("create branch: %w", err)
	}
	return &Branch{Name: name, Hash: peeled, IsHead: current == name}, nil
}

// DeleteBranch removes a branch and its reflog. The current branch cannot
// be deleted.
func (r *Repo) DeleteBranch(name string) error {
	current, err := r.CurrentBranch()
	if err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}
	if current == name {
		return fmt.Errorf("delete branch: cannot delete current branch %q: %w", name, ErrInvalidState)
	}
	if err := r.DeleteReference(branchRef(name)); err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}
	return nil
}

// RenameBranch moves a branch to a new name, carrying HEAD along when it
// pointed at the old one.
func (r *Repo) RenameBranch(oldName, newName string, force bool) (*Branch, error) {
	ref, err := r.Resolve(branchRef(oldName))
	if err != nil {
		return nil, fmt.Errorf("rename branch: %w", err)
	}
	if err := ValidateRefName(branchRef(newName)); err != nil {
		return nil, fmt.Errorf("rename branch: %w", err)
	}
	msg := fmt.Sprintf("Branch: renamed %s to %s", branchRef(oldName), branchRef(newName))
	if _, err := r.CreateReference(branchRef(newName), ref.Hash, force, msg); err != nil {
		return nil, fmt.Errorf("rename branch: %w", err)
	}
	current, err := r.CurrentBranch()
	if err != nil {
		return nil, fmt.Errorf("rename branch: %w", err)
	}
	if current == oldName {
		if _, err := r.CreateSymbolicReference("HEAD", branchRef(newName), true, ""); err != nil {
			return nil, fmt.Errorf("rename branch: %w", err)
		}
	}
	if err := r.DeleteReference(branchRef(oldName)); err != nil {
		return nil, fmt.Errorf("rename branch: %w", err)
	}
	return &Branch{Name: newName, Hash: ref.Hash, IsHead: current == oldName}, nil
}

// Branches lists local branches sorted by name.
func (r *Repo) Branches() ([]Branch, error) {
	refs, err := r.References("refs/heads/")
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	current, err := r.CurrentBranch()
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	out := make([]Branch, 0, len(refs))
	for _, ref := range refs {
		if ref.IsSymbolic() {
			continue
		}
		name := strings.TrimPrefix(ref.Name, "refs/heads/")
		out = append(out, Branch{Name: name, Hash: ref.Hash, IsHead: name == current})
	}
	return out, nil
}
