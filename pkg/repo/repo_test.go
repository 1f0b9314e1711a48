package repo

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/odvcencio/weft/pkg/object"
)

func TestInitAndOpen(t *testing.T) {
	wt := memfs.New()
	r, err := Init(wt, WithDefaultBranch("main"))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !r.IsHeadUnborn() {
		t.Fatal("fresh repository should have an unborn HEAD")
	}
	head, err := r.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head.Target != "refs/heads/main" {
		t.Fatalf("HEAD -> %s, want refs/heads/main", head.Target)
	}
	if _, err := Init(wt); !errors.Is(err, ErrExists) {
		t.Fatalf("second Init: err = %v, want ErrExists", err)
	}
	if _, err := Open(wt); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := Open(memfs.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Open(empty): err = %v, want ErrNotFound", err)
	}

	bare, err := InitBare(memfs.New())
	if err != nil {
		t.Fatalf("InitBare: %v", err)
	}
	if !bare.IsBare() || !bare.Config().Bare() {
		t.Fatal("InitBare produced a non-bare repository")
	}
	if _, err := bare.Status(); !errors.Is(err, ErrBare) {
		t.Fatalf("Status on bare: err = %v, want ErrBare", err)
	}
}

func TestStatePriority(t *testing.T) {
	r, _ := newTestRepo(t)
	if got := r.State(); got != StateNone {
		t.Fatalf("State = %s, want none", got)
	}
	steps := []struct {
		file string
		want RepositoryState
	}{
		{"BISECT_LOG", StateBisect},
		{"CHERRY_PICK_HEAD", StateCherryPick},
		{"sequencer/todo", StateCherryPickSequence},
		{"REVERT_HEAD", StateRevertSequence},
		{"MERGE_HEAD", StateMerge},
		{"rebase-apply/applying", StateApplyMailbox},
		{"rebase-merge/head-name", StateRebaseMerge},
		{"rebase-merge/interactive", StateRebaseInteractive},
	}
	for _, s := range steps {
		if err := r.writeGitFile(s.file, []byte("x\n")); err != nil {
			t.Fatalf("write %s: %v", s.file, err)
		}
		if got := r.State(); got != s.want {
			t.Fatalf("after %s: State = %s, want %s", s.file, got, s.want)
		}
	}
	if err := r.StateCleanup(); err != nil {
		t.Fatalf("StateCleanup: %v", err)
	}
	if got := r.State(); got != StateNone {
		t.Fatalf("State after cleanup = %s", got)
	}
	if got := RepositoryState(99).String(); got != "RepositoryState(99)" {
		t.Fatalf("String = %q", got)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	r, _ := newTestRepo(t)
	cfg := r.Config()
	cfg.Set("merge", "renames", "false")
	cfg.Set(`remote "origin"`, "url", "https://example.com/x.git")
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened, err := Open(r.Worktree())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	c := reopened.Config()
	if c.MergeRenames() {
		t.Fatal("merge.renames = false was not honored")
	}
	if got := c.Get(`remote "origin"`, "url"); got != "https://example.com/x.git" {
		t.Fatalf("remote url = %q", got)
	}
	if got := c.UserName(); got != "Test Author" {
		t.Fatalf("user.name = %q", got)
	}
	if !c.FileMode() {
		t.Fatal("core.filemode should default to true")
	}
	c.Unset("user", "name")
	if c.UserName() != "" {
		t.Fatal("Unset left user.name")
	}
}

func TestReflogDropAndDelete(t *testing.T) {
	r, wt := newTestRepo(t)
	c1 := commitFiles(t, r, wt, "one", map[string]string{"f": "1\n"})
	commitFiles(t, r, wt, "two", map[string]string{"f": "2\n"})
	c3 := commitFiles(t, r, wt, "three", map[string]string{"f": "3\n"})

	if err := r.DropReflogEntry("refs/heads/master", 1, true); err != nil {
		t.Fatalf("DropReflogEntry: %v", err)
	}
	entries, err := r.ReflogEntries("refs/heads/master")
	if err != nil {
		t.Fatalf("ReflogEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].New != c3 || entries[0].Old != c1 {
		t.Fatalf("newest entry = %+v, want old patched to %s", entries[0], c1.Short())
	}
	if err := r.DropReflogEntry("refs/heads/master", 5, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("drop out of range: err = %v, want ErrNotFound", err)
	}

	n := 0
	for _, err := range r.Reflog("HEAD") {
		if err != nil {
			t.Fatalf("Reflog: %v", err)
		}
		n++
		break
	}
	if n != 1 {
		t.Fatal("Reflog did not yield")
	}

	if err := r.DeleteReflog("refs/heads/master"); err != nil {
		t.Fatalf("DeleteReflog: %v", err)
	}
	if entries, err := r.ReflogEntries("refs/heads/master"); err != nil || len(entries) != 0 {
		t.Fatalf("after delete: %d entries, %v", len(entries), err)
	}
	if err := r.DeleteReflog("refs/heads/master"); err != nil {
		t.Fatalf("DeleteReflog twice: %v", err)
	}
}

func TestReflogDisabled(t *testing.T) {
	r, wt := newTestRepo(t)
	r.Config().Set("core", "logAllRefUpdates", "false")
	commitFiles(t, r, wt, "one", map[string]string{"f": "1\n"})
	if entries, _ := r.ReflogEntries("refs/heads/master"); len(entries) != 0 {
		t.Fatalf("reflog written with logAllRefUpdates=false: %+v", entries)
	}
}

func TestVerifyReportsMissingObjects(t *testing.T) {
	r, wt := newTestRepo(t)
	commitFiles(t, r, wt, "one", map[string]string{"f": "1\n"})

	rep, err := r.Verify()
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !rep.OK() || rep.Roots != 1 || rep.Reachable != 3 {
		t.Fatalf("report = %+v, want 1 root and commit/tree/blob reachable", rep)
	}

	missing, _ := object.ParseHash(strings.Repeat("ef", object.HashSize))
	broken := writeCommit(t, r, missing, "broken\n", 1_700_000_100)
	if _, err := r.CreateReference("refs/heads/broken", broken, false, ""); err != nil {
		t.Fatalf("CreateReference: %v", err)
	}
	rep, err = r.Verify()
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if rep.OK() || len(rep.Missing) != 1 || rep.Missing[0] != missing {
		t.Fatalf("Missing = %v, want [%s]", rep.Missing, missing.Short())
	}
}
