package repo

import (
	"errors"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/odvcencio/weft/pkg/object"
)

// rebaseRepo builds master: base <- m1 and topic: base <- t1 <- t2 <- t3
// touching separate files, and leaves topic checked out.
func rebaseRepo(t *testing.T) (r *Repo, wt billy.Filesystem, m1 object.Hash, topic []object.Hash) {
	t.Helper()
	repo, fs := newTestRepo(t)
	base := commitFiles(t, repo, fs, "base", map[string]string{"f": "base\n"})
	mustBranch(t, repo, "topic", base)
	m1 = commitFiles(t, repo, fs, "m1", map[string]string{"m": "m1\n"})
	mustCheckout(t, repo, "topic")
	for _, name := range []string{"t1", "t2", "t3"} {
		topic = append(topic, commitFiles(t, repo, fs, name, map[string]string{name: name + "\n"}))
	}
	return repo, fs, m1, topic
}

func TestRebaseReplaysCommitsInOrder(t *testing.T) {
	r, _, m1, topic := rebaseRepo(t)

	rb, err := r.RebaseInit("topic", "master", "", RebaseOptions{})
	if err != nil {
		t.Fatalf("RebaseInit: %v", err)
	}
	if rb.OperationCount() != 3 {
		t.Fatalf("OperationCount = %d, want 3", rb.OperationCount())
	}
	for i, h := range topic {
		if op := rb.Operation(i); op.ID != h || op.Type != RebasePick {
			t.Fatalf("operation %d = %+v, want pick %s", i, op, h.Short())
		}
	}
	if !r.IsHeadDetached() || mustHead(t, r) != m1 {
		t.Fatal("HEAD is not detached at onto")
	}
	if got := r.State(); got != StateRebaseMerge {
		t.Fatalf("State = %s, want rebase-merge", got)
	}

	for i := range topic {
		step, err := rb.Next()
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if len(step.Conflicts) != 0 {
			t.Fatalf("Next %d conflicts: %v", i, step.Conflicts)
		}
		if rb.CurrentOperation() != i {
			t.Fatalf("CurrentOperation = %d, want %d", rb.CurrentOperation(), i)
		}
		if _, err := rb.Commit(nil, nil, ""); err != nil {
			t.Fatalf("Commit %d: %v", i, err)
		}
	}
	if _, err := rb.Next(); !errors.Is(err, ErrIterationOver) {
		t.Fatalf("Next past end: err = %v, want ErrIterationOver", err)
	}
	if rb.State() != RebaseCompleted {
		t.Fatalf("state = %s, want completed", rb.State())
	}
	if err := rb.Finish(nil); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if branch, err := r.CurrentBranch(); err != nil || branch != "topic" {
		t.Fatalf("CurrentBranch = %q, %v", branch, err)
	}
	if got := r.State(); got != StateNone {
		t.Fatalf("State after finish = %s", got)
	}
	tip := mustHead(t, r)
	entries, err := r.Log(tip, 0)
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	var msgs []string
	for _, e := range entries {
		msgs = append(msgs, e.Commit.Summary())
	}
	want := []string{"t3", "t2", "t1", "m1", "base"}
	if len(msgs) != len(want) {
		t.Fatalf("history = %v, want %v", msgs, want)
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Fatalf("history = %v, want %v", msgs, want)
		}
	}
	if entries[3].Hash != m1 {
		t.Fatal("rebased commits are not on top of master")
	}

	reflog, err := r.ReflogEntries("refs/heads/topic")
	if err != nil {
		t.Fatalf("ReflogEntries: %v", err)
	}
	if wantMsg := "rebase finished: refs/heads/topic onto " + m1.Hex(); reflog[0].Message != wantMsg {
		t.Fatalf("topic reflog = %q, want %q", reflog[0].Message, wantMsg)
	}
	if reflog[0].Old != topic[2] || reflog[0].New != tip {
		t.Fatalf("topic reflog entry = %+v", reflog[0])
	}
}

func TestRebaseFinishAfterLastCommit(t *testing.T) {
	r, _, _, topic := rebaseRepo(t)
	rb, err := r.RebaseInit("", "master", "", RebaseOptions{})
	if err != nil {
		t.Fatalf("RebaseInit: %v", err)
	}
	for range topic {
		if err := rb.Finish(nil); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("Finish early: err = %v, want ErrInvalidState", err)
		}
		if _, err := rb.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
		if _, err := rb.Commit(nil, nil, ""); err != nil {
			t.Fatalf("Commit: %v", err)
		}
	}
	if err := rb.Finish(nil); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	rewritten, err := rb.Rewritten()
	if err != nil {
		t.Fatalf("Rewritten: %v", err)
	}
	// The metadata is gone after Finish.
	if len(rewritten) != 0 {
		t.Fatalf("Rewritten after finish = %v", rewritten)
	}
}

func TestRebaseConflictResolveAndContinue(t *testing.T) {
	r, wt := newTestRepo(t)
	base := commitFiles(t, r, wt, "base", map[string]string{"f": "base\n"})
	mustBranch(t, r, "topic", base)
	commitFiles(t, r, wt, "master edit", map[string]string{"f": "master\n"})
	mustCheckout(t, r, "topic")
	commitFiles(t, r, wt, "topic edit", map[string]string{"f": "topic\n"})

	rb, err := r.RebaseInit("topic", "master", "", RebaseOptions{})
	if err != nil {
		t.Fatalf("RebaseInit: %v", err)
	}
	step, err := rb.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(step.Conflicts) != 1 || step.Conflicts[0] != "f" {
		t.Fatalf("conflicts = %v, want [f]", step.Conflicts)
	}
	if rb.State() != RebaseConflicted {
		t.Fatalf("state = %s, want conflicted", rb.State())
	}
	if _, err := rb.Commit(nil, nil, ""); !errors.Is(err, ErrConflicted) {
		t.Fatalf("Commit with conflicts: err = %v, want ErrConflicted", err)
	}
	if _, err := rb.Next(); !errors.Is(err, ErrConflicted) {
		t.Fatalf("Next with conflicts: err = %v, want ErrConflicted", err)
	}

	// Another process picks the rebase up.
	resumed, err := r.RebaseOpen(RebaseOptions{})
	if err != nil {
		t.Fatalf("RebaseOpen: %v", err)
	}
	if resumed.State() != RebaseConflicted || resumed.CurrentOperation() != 0 {
		t.Fatalf("resumed state = %s at %d", resumed.State(), resumed.CurrentOperation())
	}

	writeFile(t, wt, "f", "merged\n")
	if err := r.Add([]string{"f"}, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	h, err := resumed.Commit(nil, nil, "")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if got := mustCommit(t, r, h).Message; got != "topic edit\n" && got != "topic edit" {
		t.Fatalf("message = %q", got)
	}
	if _, err := resumed.Next(); !errors.Is(err, ErrIterationOver) {
		t.Fatalf("Next: err = %v, want ErrIterationOver", err)
	}
	if err := resumed.Finish(nil); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if got := treeFiles(t, r, mustHead(t, r))["f"]; got != "merged\n" {
		t.Fatalf("f = %q", got)
	}
}

func TestRebaseAbortRestoresBranch(t *testing.T) {
	r, wt := newTestRepo(t)
	base := commitFiles(t, r, wt, "base", map[string]string{"f": "base\n"})
	mustBranch(t, r, "topic", base)
	commitFiles(t, r, wt, "master edit", map[string]string{"f": "master\n"})
	mustCheckout(t, r, "topic")
	orig := commitFiles(t, r, wt, "topic edit", map[string]string{"f": "topic\n"})

	rb, err := r.RebaseInit("topic", "master", "", RebaseOptions{})
	if err != nil {
		t.Fatalf("RebaseInit: %v", err)
	}
	if _, err := rb.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if err := rb.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if branch, err := r.CurrentBranch(); err != nil || branch != "topic" {
		t.Fatalf("CurrentBranch = %q, %v", branch, err)
	}
	if got := mustHead(t, r); got != orig {
		t.Fatalf("HEAD = %s, want %s", got.Short(), orig.Short())
	}
	if got := readFile(t, wt, "f"); got != "topic\n" {
		t.Fatalf("f = %q, want topic", got)
	}
	ix, err := r.Index()
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if ix.HasConflicts() {
		t.Fatal("index still has conflicts")
	}
	if got := r.State(); got != StateNone {
		t.Fatalf("State = %s", got)
	}
}

func TestRebaseSkipsAppliedChange(t *testing.T) {
	r, wt := newTestRepo(t)
	base := commitFiles(t, r, wt, "base", map[string]string{"f": "base\n"})
	mustBranch(t, r, "topic", base)
	commitFiles(t, r, wt, "same on master", map[string]string{"g": "same\n"})
	mustCheckout(t, r, "topic")
	dup := commitFiles(t, r, wt, "same on topic", map[string]string{"g": "same\n"})
	commitFiles(t, r, wt, "unique", map[string]string{"u": "u\n"})

	res, err := r.RebaseBranches("topic", "master", "", RebaseOptions{})
	if err != nil {
		t.Fatalf("RebaseBranches: %v", err)
	}
	if res.Conflict != nil {
		t.Fatalf("unexpected conflict: %v", res.Conflict.Conflicts)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != dup {
		t.Fatalf("Skipped = %v, want [%s]", res.Skipped, dup.Short())
	}
	c := mustCommit(t, r, res.Commit)
	if c.Summary() != "unique" {
		t.Fatalf("tip = %q, want unique", c.Summary())
	}
	if res.Commit != mustHead(t, r) {
		t.Fatal("result commit is not HEAD")
	}
}

func TestRebaseBranchesFastForwardAndUpToDate(t *testing.T) {
	r, wt := newTestRepo(t)
	base := commitFiles(t, r, wt, "base", map[string]string{"f": "1\n"})
	mustBranch(t, r, "topic", base)
	ahead := commitFiles(t, r, wt, "ahead", map[string]string{"f": "2\n"})
	mustCheckout(t, r, "topic")

	res, err := r.RebaseBranches("topic", "master", "", RebaseOptions{})
	if err != nil {
		t.Fatalf("RebaseBranches: %v", err)
	}
	if !res.FastForward || res.Commit != ahead {
		t.Fatalf("result = %+v, want fast-forward to %s", res, ahead.Short())
	}
	if got := readFile(t, wt, "f"); got != "2\n" {
		t.Fatalf("f = %q after fast-forward", got)
	}

	res, err = r.RebaseBranches("topic", "master", "", RebaseOptions{})
	if err != nil {
		t.Fatalf("RebaseBranches again: %v", err)
	}
	if !res.UpToDate {
		t.Fatalf("result = %+v, want up to date", res)
	}
}

func TestRebaseRequiresCleanTree(t *testing.T) {
	r, wt, _, _ := rebaseRepo(t)
	writeFile(t, wt, "t1", "dirty\n")
	if _, err := r.RebaseInit("topic", "master", "", RebaseOptions{}); !errors.Is(err, ErrDirtyWorktree) {
		t.Fatalf("RebaseInit on dirty tree: err = %v, want ErrDirtyWorktree", err)
	}
	if got := r.State(); got != StateNone {
		t.Fatalf("State = %s", got)
	}
}

func TestRebaseOpenWithoutRebase(t *testing.T) {
	r, _ := newTestRepo(t)
	if _, err := r.RebaseOpen(RebaseOptions{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("RebaseOpen: err = %v, want ErrNotFound", err)
	}
}
