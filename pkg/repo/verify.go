package repo

import (
	"fmt"
	"slices"

	"github.com/odvcencio/weft/pkg/object"
)

// VerifyReport is the outcome of Verify.
type VerifyReport struct {
	Objects   *object.VerifySummary
	Roots     int
	Reachable int
	// Missing lists objects referenced from a root but absent from the
	// store.
	Missing []object.Hash
}

// OK reports whether nothing reachable is missing.
func (v *VerifyReport) OK() bool { return len(v.Missing) == 0 }

// Verify rehashes every stored object and then checks that everything
// reachable from HEAD and the references is present.
func (r *Repo) Verify() (*VerifyReport, error) {
	summary, err := r.Store.Verify()
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	roots, err := r.reachabilityRoots()
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	reachable, missing, err := r.Store.ReachableSet(roots)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	if len(missing) > 0 {
		r.logger.Debug("verify found missing objects", "count", len(missing))
	}
	return &VerifyReport{Objects: summary, Roots: len(roots), Reachable: len(reachable), Missing: missing}, nil
}

// reachabilityRoots collects the distinct ids HEAD and the references
// point at, sorted.
func (r *Repo) reachabilityRoots() ([]object.Hash, error) {
	refs, err := r.References("refs/")
	if err != nil {
		return nil, err
	}
	set := make(map[object.Hash]struct{}, len(refs)+1)
	for _, ref := range refs {
		if ref.IsSymbolic() {
			continue
		}
		set[ref.Hash] = struct{}{}
	}
	if h, err := r.HeadHash(); err == nil {
		set[h] = struct{}{}
	}
	roots := make([]object.Hash, 0, len(set))
	for h := range set {
		if !h.IsZero() {
			roots = append(roots, h)
		}
	}
	slices.Sort(roots)
	return roots, nil
}
