package repo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-billy/v5/util"
)

// RepositoryState names the multi-step operation, if any, that is in
// progress. It is derived from files in the metadata directory.
type RepositoryState int

const (
	StateNone RepositoryState = iota
	StateMerge
	StateRevert
	StateRevertSequence
	StateCherryPick
	StateCherryPickSequence
	StateBisect
	StateRebase
	StateRebaseInteractive
	StateRebaseMerge
	StateApplyMailbox
	StateApplyMailboxOrRebase
)

var stateNames = [...]string{
	StateNone:                 "none",
	StateMerge:                "merge",
	StateRevert:               "revert",
	StateRevertSequence:       "revert-sequence",
	StateCherryPick:           "cherry-pick",
	StateCherryPickSequence:   "cherry-pick-sequence",
	StateBisect:               "bisect",
	StateRebase:               "rebase",
	StateRebaseInteractive:    "rebase-interactive",
	StateRebaseMerge:          "rebase-merge",
	StateApplyMailbox:         "apply-mailbox",
	StateApplyMailboxOrRebase: "apply-mailbox-or-rebase",
}

func (s RepositoryState) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("RepositoryState(%d)", int(s))
}

const (
	rebaseMergeDir = "rebase-merge"
	rebaseApplyDir = "rebase-apply"
	sequencerDir   = "sequencer"
)

// State inspects the metadata directory. Rebases take precedence over
// merges, which take precedence over reverts, cherry-picks and bisects.
func (r *Repo) State() RepositoryState {
	has := r.hasGitFile
	switch {
	case has(rebaseMergeDir + "/interactive"):
		return StateRebaseInteractive
	case has(rebaseMergeDir):
		return StateRebaseMerge
	case has(rebaseApplyDir + "/rebasing"):
		return StateRebase
	case has(rebaseApplyDir + "/applying"):
		return StateApplyMailbox
	case has(rebaseApplyDir):
		return StateApplyMailboxOrRebase
	case has("MERGE_HEAD"):
		return StateMerge
	case has("REVERT_HEAD"):
		if has(sequencerDir + "/todo") {
			return StateRevertSequence
		}
		return StateRevert
	case has("CHERRY_PICK_HEAD"):
		if has(sequencerDir + "/todo") {
			return StateCherryPickSequence
		}
		return StateCherryPick
	case has("BISECT_LOG"):
		return StateBisect
	}
	return StateNone
}

// requireStateNone fails with ErrInvalidState while another operation is
// in progress.
func (r *Repo) requireStateNone(op string) error {
	if s := r.State(); s != StateNone {
		return fmt.Errorf("%s: %s in progress: %w", op, s, ErrInvalidState)
	}
	return nil
}

// StateCleanup removes the files that record an in-progress operation.
func (r *Repo) StateCleanup() error {
	for _, name := range []string{"MERGE_HEAD", "MERGE_MSG", "MERGE_MODE", "REVERT_HEAD", "CHERRY_PICK_HEAD", "BISECT_LOG"} {
		if err := r.removeGitFile(name); err != nil {
			return fmt.Errorf("state cleanup: %w", err)
		}
	}
	for _, dir := range []string{rebaseMergeDir, rebaseApplyDir, sequencerDir} {
		if err := util.RemoveAll(r.dotgit, dir); err != nil {
			return fmt.Errorf("state cleanup: %s: %w", dir, err)
		}
	}
	return nil
}

// MergeMessage returns the commit message a conflicted merge, cherry-pick
// or revert prepared, without its "#" comment lines. It is empty when no
// such operation is in progress.
func (r *Repo) MergeMessage() (string, error) {
	data, err := r.readGitFile("MERGE_MSG")
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for line := range strings.Lines(string(data)) {
		if !strings.HasPrefix(line, "#") {
			b.WriteString(line)
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n", nil
}
