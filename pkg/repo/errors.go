package repo

import (
	"errors"
	"fmt"

	"github.com/odvcencio/weft/pkg/object"
)

var (
	// ErrNotFound is the object store's not-found sentinel, shared so callers
	// test one value for missing objects, refs, reflog entries and index
	// entries.
	ErrNotFound = object.ErrNotFound
	// ErrIterationOver ends an iteration such as Rebase.Next.
	ErrIterationOver = errors.New("iteration over")
	// ErrConflicted is returned when an operation needs a conflict-free index.
	ErrConflicted = errors.New("index has unresolved conflicts")
	// ErrInvalidState is returned when the repository state does not allow
	// the operation, for example starting a merge during a rebase.
	ErrInvalidState = errors.New("invalid repository state")
	// ErrPassthrough lets a callback decline, e.g. a signer that skips
	// signing.
	ErrPassthrough = errors.New("passthrough")
	// ErrApplied is returned by Rebase.Commit when the change is already
	// present in the new base.
	ErrApplied = errors.New("change already applied")
	// ErrInvalid rejects malformed arguments.
	ErrInvalid = errors.New("invalid argument")
	// ErrExists is returned when creating something that already exists.
	ErrExists = errors.New("already exists")
	// ErrBare is returned by operations that need a working tree.
	ErrBare = errors.New("repository is bare")
	// ErrDirtyWorktree is returned when uncommitted changes would be lost.
	ErrDirtyWorktree = errors.New("working tree has uncommitted changes")

	// ErrRefCASMismatch is returned when a reference no longer holds the
	// value the caller expected.
	ErrRefCASMismatch = errors.New("ref compare-and-swap mismatch")
	// ErrRefUpdatedButReflogAppendFailed matches RefUpdateReflogError.
	ErrRefUpdatedButReflogAppendFailed = errors.New("ref updated but reflog append failed")
)

// RefUpdateReflogError reports that a reference was moved but its reflog
// entry could not be written. The reference change stays committed.
type RefUpdateReflogError struct {
	Ref     string
	OldHash object.Hash
	NewHash object.Hash
	Err     error
}

func (e *RefUpdateReflogError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("update ref %q: %s (old=%s new=%s): %v",
		e.Ref, ErrRefUpdatedButReflogAppendFailed, e.OldHash.Hex(), e.NewHash.Hex(), e.Err)
}

func (e *RefUpdateReflogError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *RefUpdateReflogError) Is(target error) bool {
	return target == ErrRefUpdatedButReflogAppendFailed
}
