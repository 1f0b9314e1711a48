package repo

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/odvcencio/weft/pkg/object"
)

func TestValidateRefName(t *testing.T) {
	for _, name := range []string{"HEAD", "MERGE_HEAD", "refs/heads/main", "refs/tags/v1.0", "refs/heads/feature/x"} {
		if err := ValidateRefName(name); err != nil {
			t.Fatalf("ValidateRefName(%q): %v", name, err)
		}
	}
	for _, name := range []string{"", "head", "refs/heads/a..b", "refs/heads/x.lock", "refs/heads/", "refs/heads/a b", "refs/heads/.hidden", "refs/heads/a@{1}"} {
		if err := ValidateRefName(name); !errors.Is(err, ErrInvalid) {
			t.Fatalf("ValidateRefName(%q): err = %v, want ErrInvalid", name, err)
		}
	}
}

func TestResolveFollowsSymbolicChain(t *testing.T) {
	r, wt := newTestRepo(t)
	c1 := commitFiles(t, r, wt, "one", map[string]string{"a": "1\n"})

	if _, err := r.CreateSymbolicReference("refs/heads/alias", "refs/heads/master", false, ""); err != nil {
		t.Fatalf("CreateSymbolicReference: %v", err)
	}
	ref, err := r.Resolve("refs/heads/alias")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ref.Name != "refs/heads/master" || ref.Hash != c1 {
		t.Fatalf("Resolve = %s, want refs/heads/master at %s", ref, c1.Short())
	}
}

func TestResolveDepthLimitFallsBackToLastRef(t *testing.T) {
	r, _ := newTestRepo(t)
	// refs/heads/s0 -> s1 -> ... -> s11, deeper than the resolution limit.
	for i := 0; i <= 11; i++ {
		name := fmt.Sprintf("refs/heads/s%d", i)
		target := fmt.Sprintf("refs/heads/s%d", i+1)
		if _, err := r.CreateSymbolicReference(name, target, false, ""); err != nil {
			t.Fatalf("CreateSymbolicReference(%s): %v", name, err)
		}
	}
	ref, err := r.Resolve("refs/heads/s0")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve: err = %v, want ErrNotFound", err)
	}
	if ref == nil || !ref.IsSymbolic() {
		t.Fatalf("Resolve returned %v, want the last symbolic reference reached", ref)
	}
	if ref.Name != fmt.Sprintf("refs/heads/s%d", maxSymbolicDepth) {
		t.Fatalf("last reference = %s", ref.Name)
	}
}

func TestUpdateTerminalMovesBranchBehindHead(t *testing.T) {
	r, wt := newTestRepo(t)
	c1 := commitFiles(t, r, wt, "one", map[string]string{"a": "1\n"})
	c2 := commitFiles(t, r, wt, "two", map[string]string{"a": "2\n"})

	if err := r.UpdateTerminal("HEAD", c1, nil, "move back"); err != nil {
		t.Fatalf("UpdateTerminal: %v", err)
	}
	head, err := r.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if !head.IsSymbolic() || head.Target != "refs/heads/master" {
		t.Fatalf("HEAD = %s, want symbolic to master", head)
	}
	if got := mustHead(t, r); got != c1 {
		t.Fatalf("HEAD resolves to %s, want %s", got.Short(), c1.Short())
	}

	for _, name := range []string{"HEAD", "refs/heads/master"} {
		entries, err := r.ReflogEntries(name)
		if err != nil {
			t.Fatalf("ReflogEntries(%s): %v", name, err)
		}
		if len(entries) == 0 {
			t.Fatalf("%s reflog is empty", name)
		}
		e := entries[0]
		if e.Old != c2 || e.New != c1 || e.Message != "move back" {
			t.Fatalf("%s newest reflog = %+v", name, e)
		}
	}
}

func TestUpdateTerminalCreatesUnbornBranch(t *testing.T) {
	r, _ := newTestRepo(t)
	c := writeCommit(t, r, emptyTree(t, r), "root\n", 1_700_000_000)
	if err := r.UpdateTerminal("HEAD", c, nil, "init"); err != nil {
		t.Fatalf("UpdateTerminal: %v", err)
	}
	ref, err := r.Lookup("refs/heads/master")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if ref.Hash != c {
		t.Fatalf("master = %s, want %s", ref.Hash.Short(), c.Short())
	}
}

func TestCreateReferenceRequiresForce(t *testing.T) {
	r, wt := newTestRepo(t)
	c1 := commitFiles(t, r, wt, "one", map[string]string{"a": "1\n"})
	c2 := commitFiles(t, r, wt, "two", map[string]string{"a": "2\n"})

	if _, err := r.CreateReference("refs/heads/topic", c1, false, "create"); err != nil {
		t.Fatalf("CreateReference: %v", err)
	}
	if _, err := r.CreateReference("refs/heads/topic", c2, false, "again"); !errors.Is(err, ErrExists) {
		t.Fatalf("CreateReference without force: err = %v, want ErrExists", err)
	}
	if _, err := r.CreateReference("refs/heads/topic", c2, true, "force"); err != nil {
		t.Fatalf("CreateReference with force: %v", err)
	}
	missing, _ := object.ParseHash(strings.Repeat("ab", object.HashSize))
	if _, err := r.CreateReference("refs/heads/bad", missing, false, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("CreateReference(missing object): err = %v, want ErrNotFound", err)
	}
}

func TestCommitCASSingleWinner(t *testing.T) {
	r, err := PlainInit(t.TempDir(), false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	tree := emptyTree(t, r)
	base := writeCommit(t, r, tree, "base\n", 1_700_000_000)
	if err := r.UpdateTerminal("HEAD", base, nil, "base"); err != nil {
		t.Fatalf("UpdateTerminal: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	sig := object.Signature{Name: "W", Email: "w@example.com"}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.CreateCommit("refs/heads/master", sig, sig, fmt.Sprintf("worker %d\n", i), tree, []object.Hash{base})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrRefCASMismatch):
		default:
			t.Fatalf("CreateCommit: unexpected error %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("successful commits = %d, want 1", wins)
	}
}

func TestPackRefsKeepsResolution(t *testing.T) {
	r, wt := newTestRepo(t)
	c1 := commitFiles(t, r, wt, "one", map[string]string{"a": "1\n"})
	mustBranch(t, r, "topic", c1)

	if err := r.PackRefs(); err != nil {
		t.Fatalf("PackRefs: %v", err)
	}
	if r.hasGitFile("refs/heads/topic") {
		t.Fatal("loose ref survived PackRefs")
	}
	ref, err := r.Resolve("refs/heads/topic")
	if err != nil || ref.Hash != c1 {
		t.Fatalf("Resolve after pack = %v, %v", ref, err)
	}
	if err := r.DeleteReference("refs/heads/topic"); err != nil {
		t.Fatalf("DeleteReference: %v", err)
	}
	if _, err := r.Resolve("refs/heads/topic"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve after delete: err = %v, want ErrNotFound", err)
	}
	if err := r.DeleteReference("refs/heads/topic"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second DeleteReference: err = %v, want ErrNotFound", err)
	}
}

func TestReferencesListsSorted(t *testing.T) {
	r, wt := newTestRepo(t)
	c1 := commitFiles(t, r, wt, "one", map[string]string{"a": "1\n"})
	mustBranch(t, r, "zeta", c1)
	mustBranch(t, r, "alpha", c1)
	if _, err := r.CreateTag("v1", c1, false); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}

	refs, err := r.References("refs/heads/")
	if err != nil {
		t.Fatalf("References: %v", err)
	}
	var names []string
	for _, ref := range refs {
		names = append(names, ref.Name)
	}
	want := "refs/heads/alpha refs/heads/master refs/heads/zeta"
	if got := strings.Join(names, " "); got != want {
		t.Fatalf("References = %q, want %q", got, want)
	}
}

func TestResolveRevisionSuffixes(t *testing.T) {
	r, wt := newTestRepo(t)
	c1 := commitFiles(t, r, wt, "one", map[string]string{"a": "1\n"})
	c2 := commitFiles(t, r, wt, "two", map[string]string{"a": "2\n"})
	c3 := commitFiles(t, r, wt, "three", map[string]string{"a": "3\n"})

	for spec, want := range map[string]object.Hash{
		"HEAD":     c3,
		"master":   c3,
		"HEAD^":    c2,
		"HEAD~2":   c1,
		"master^0": c3,
		c2.Hex():   c2,
	} {
		got, err := r.ResolveRevision(spec)
		if err != nil {
			t.Fatalf("ResolveRevision(%q): %v", spec, err)
		}
		if got != want {
			t.Fatalf("ResolveRevision(%q) = %s, want %s", spec, got.Short(), want.Short())
		}
	}
	if _, err := r.ResolveRevision("HEAD~5"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ResolveRevision(HEAD~5): err = %v, want ErrNotFound", err)
	}
}
