package repo

import (
	"sort"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/odvcencio/weft/pkg/object"
)

// testClock ticks one second per call so commit times are strictly
// increasing and reproducible.
func testClock() func() time.Time {
	t := time.Unix(1_700_000_000, 0).UTC()
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newTestRepo(t *testing.T) (*Repo, billy.Filesystem) {
	t.Helper()
	wt := memfs.New()
	r, err := Init(wt, WithClock(testClock()))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	r.Config().Set("user", "name", "Test Author")
	r.Config().Set("user", "email", "test@example.com")
	if err := r.Config().Save(); err != nil {
		t.Fatalf("Save config: %v", err)
	}
	return r, wt
}

func writeFile(t *testing.T, wt billy.Filesystem, p, content string) {
	t.Helper()
	if err := util.WriteFile(wt, p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
}

func readFile(t *testing.T, wt billy.Filesystem, p string) string {
	t.Helper()
	data, err := util.ReadFile(wt, p)
	if err != nil {
		t.Fatalf("read %s: %v", p, err)
	}
	return string(data)
}

func fileExists(wt billy.Filesystem, p string) bool {
	_, err := wt.Lstat(p)
	return err == nil
}

// commitFiles writes files (an empty content deletes the path), stages
// everything and commits on HEAD.
func commitFiles(t *testing.T, r *Repo, wt billy.Filesystem, msg string, files map[string]string) object.Hash {
	t.Helper()
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if files[p] == "" {
			if err := wt.Remove(p); err != nil {
				t.Fatalf("remove %s: %v", p, err)
			}
			continue
		}
		writeFile(t, wt, p, files[p])
	}
	if err := r.Update(nil, nil); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := r.Add(paths, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	h, err := r.Commit(msg)
	if err != nil {
		t.Fatalf("Commit(%q): %v", msg, err)
	}
	return h
}

func mustBranch(t *testing.T, r *Repo, name string, target object.Hash) {
	t.Helper()
	if _, err := r.CreateBranch(name, target, false); err != nil {
		t.Fatalf("CreateBranch(%s): %v", name, err)
	}
}

func mustCheckout(t *testing.T, r *Repo, target string) {
	t.Helper()
	if err := r.Checkout(target, CheckoutOptions{}); err != nil {
		t.Fatalf("Checkout(%s): %v", target, err)
	}
}

func mustHead(t *testing.T, r *Repo) object.Hash {
	t.Helper()
	h, err := r.HeadHash()
	if err != nil {
		t.Fatalf("HeadHash: %v", err)
	}
	return h
}

func mustCommit(t *testing.T, r *Repo, h object.Hash) *object.CommitObj {
	t.Helper()
	c, err := r.Store.ReadCommit(h)
	if err != nil {
		t.Fatalf("ReadCommit(%s): %v", h.Short(), err)
	}
	return c
}

// treeFiles returns path -> content of a commit's tree.
func treeFiles(t *testing.T, r *Repo, commit object.Hash) map[string]string {
	t.Helper()
	files, err := r.Store.FlattenTree(mustCommit(t, r, commit).TreeHash)
	if err != nil {
		t.Fatalf("FlattenTree: %v", err)
	}
	out := make(map[string]string, len(files))
	for _, f := range files {
		b, err := r.Store.ReadBlob(f.Hash)
		if err != nil {
			t.Fatalf("ReadBlob(%s): %v", f.Path, err)
		}
		out[f.Path] = string(b.Data)
	}
	return out
}

// writeCommit stores a commit directly, bypassing refs.
func writeCommit(t *testing.T, r *Repo, tree object.Hash, msg string, when int64, parents ...object.Hash) object.Hash {
	t.Helper()
	sig := object.Signature{Name: "T", Email: "t@example.com", When: time.Unix(when, 0).UTC()}
	h, err := r.Store.WriteCommit(&object.CommitObj{
		TreeHash:  tree,
		Parents:   parents,
		Author:    sig,
		Committer: sig,
		Message:   msg,
	})
	if err != nil {
		t.Fatalf("WriteCommit(%q): %v", msg, err)
	}
	return h
}

func emptyTree(t *testing.T, r *Repo) object.Hash {
	t.Helper()
	h, err := r.Store.WriteTree(&object.TreeObj{})
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	return h
}
