package repo

import (
	"errors"
	"testing"

	"github.com/odvcencio/weft/pkg/object"
)

func TestBranchLifecycle(t *testing.T) {
	r, wt := newTestRepo(t)
	c1 := commitFiles(t, r, wt, "one", map[string]string{"f": "1\n"})
	c2 := commitFiles(t, r, wt, "two", map[string]string{"f": "2\n"})

	b, err := r.CreateBranch("feature", c1, false)
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if b.Hash != c1 || b.IsHead {
		t.Fatalf("branch = %+v", b)
	}
	entries, err := r.ReflogEntries("refs/heads/feature")
	if err != nil {
		t.Fatalf("ReflogEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].Message != "branch: Created from "+c1.Hex() {
		t.Fatalf("feature reflog = %+v", entries)
	}
	if _, err := r.CreateBranch("feature", c2, false); !errors.Is(err, ErrExists) {
		t.Fatalf("CreateBranch again: err = %v, want ErrExists", err)
	}
	if _, err := r.CreateBranch("master", c1, true); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("force current branch: err = %v, want ErrInvalidState", err)
	}
	if _, err := r.CreateBranch("bad..name", c1, false); !errors.Is(err, ErrInvalid) {
		t.Fatalf("bad name: err = %v, want ErrInvalid", err)
	}

	if _, err := r.RenameBranch("feature", "renamed", false); err != nil {
		t.Fatalf("RenameBranch: %v", err)
	}
	branches, err := r.Branches()
	if err != nil {
		t.Fatalf("Branches: %v", err)
	}
	if len(branches) != 2 || branches[0].Name != "master" || !branches[0].IsHead || branches[1].Name != "renamed" {
		t.Fatalf("Branches = %+v", branches)
	}

	if err := r.DeleteBranch("master"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("DeleteBranch(current): err = %v, want ErrInvalidState", err)
	}
	if err := r.DeleteBranch("renamed"); err != nil {
		t.Fatalf("DeleteBranch: %v", err)
	}
	if err := r.DeleteBranch("renamed"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("DeleteBranch twice: err = %v, want ErrNotFound", err)
	}
}

func TestRenameCurrentBranchMovesHead(t *testing.T) {
	r, wt := newTestRepo(t)
	c1 := commitFiles(t, r, wt, "one", map[string]string{"f": "1\n"})
	b, err := r.RenameBranch("master", "main", false)
	if err != nil {
		t.Fatalf("RenameBranch: %v", err)
	}
	if !b.IsHead {
		t.Fatal("renamed branch should be HEAD")
	}
	if cur, _ := r.CurrentBranch(); cur != "main" {
		t.Fatalf("CurrentBranch = %q, want main", cur)
	}
	if mustHead(t, r) != c1 {
		t.Fatal("HEAD moved")
	}
}

func TestTags(t *testing.T) {
	r, wt := newTestRepo(t)
	c1 := commitFiles(t, r, wt, "one", map[string]string{"f": "1\n"})

	if _, err := r.CreateTag("light", c1, false); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	tagger := object.Signature{Name: "Tagger", Email: "tag@example.com"}
	at, err := r.CreateAnnotatedTag("v1.0", c1, &tagger, "release\n", false)
	if err != nil {
		t.Fatalf("CreateAnnotatedTag: %v", err)
	}
	if !at.Annotated || at.Object == c1 || at.Target != c1 {
		t.Fatalf("annotated tag = %+v", at)
	}
	if _, err := r.CreateAnnotatedTag("v1.0", c1, &tagger, "again\n", false); !errors.Is(err, ErrExists) {
		t.Fatalf("duplicate tag: err = %v, want ErrExists", err)
	}
	if _, err := r.CreateAnnotatedTag("empty", c1, &tagger, "  \n", false); !errors.Is(err, ErrInvalid) {
		t.Fatalf("empty message: err = %v, want ErrInvalid", err)
	}

	tags, err := r.Tags()
	if err != nil {
		t.Fatalf("Tags: %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("Tags = %+v", tags)
	}
	byName := map[string]Tag{}
	for _, tg := range tags {
		byName[tg.Name] = tg
	}
	if tg := byName["light"]; tg.Annotated || tg.Target != c1 {
		t.Fatalf("light = %+v", tg)
	}
	if tg := byName["v1.0"]; !tg.Annotated || tg.Target != c1 {
		t.Fatalf("v1.0 = %+v", tg)
	}

	if got, err := r.ResolveRevision("v1.0"); err != nil || got != at.Object {
		t.Fatalf("ResolveRevision(v1.0) = %s, %v; want the tag object", got.Short(), err)
	}
	if got, err := r.ResolveRevision("v1.0^0"); err != nil || got != c1 {
		t.Fatalf("ResolveRevision(v1.0^0) = %s, %v", got.Short(), err)
	}

	if err := r.DeleteTag("light"); err != nil {
		t.Fatalf("DeleteTag: %v", err)
	}
	if err := r.DeleteTag("light"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("DeleteTag twice: err = %v, want ErrNotFound", err)
	}
}
