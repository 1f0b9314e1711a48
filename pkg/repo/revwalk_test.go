package repo

import (
	"strings"
	"testing"

	"github.com/odvcencio/weft/pkg/object"
)

func walkSummaries(t *testing.T, w *Walker) string {
	t.Helper()
	var out []string
	for e, err := range w.Seq() {
		if err != nil {
			t.Fatalf("Seq: %v", err)
		}
		out = append(out, strings.TrimSpace(e.Commit.Message))
	}
	return strings.Join(out, " ")
}

// skewedHistory builds root <- a <- merge and root <- b <- merge where b
// has an older committer time than root.
func skewedHistory(t *testing.T, r *Repo) (root, a, b, merge object.Hash) {
	t.Helper()
	tree := emptyTree(t, r)
	root = writeCommit(t, r, tree, "root\n", 200)
	a = writeCommit(t, r, tree, "a\n", 300, root)
	b = writeCommit(t, r, tree, "b\n", 100, root)
	merge = writeCommit(t, r, tree, "merge\n", 400, a, b)
	return root, a, b, merge
}

func TestWalkTimeOrder(t *testing.T) {
	r, _ := newTestRepo(t)
	_, _, _, merge := skewedHistory(t, r)

	w := r.Walk()
	if err := w.Push(merge); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if got, want := walkSummaries(t, w), "merge a root b"; got != want {
		t.Fatalf("time order = %q, want %q", got, want)
	}
}

func TestWalkTopologicalAndReverse(t *testing.T) {
	r, _ := newTestRepo(t)
	_, _, _, merge := skewedHistory(t, r)

	w := r.Walk()
	if err := w.Push(merge); err != nil {
		t.Fatalf("Push: %v", err)
	}
	w.Sorting(SortTopological)
	if got, want := walkSummaries(t, w), "merge a b root"; got != want {
		t.Fatalf("topological order = %q, want %q", got, want)
	}
	w.Sorting(SortTopological | SortReverse)
	if got, want := walkSummaries(t, w), "root b a merge"; got != want {
		t.Fatalf("reverse topological order = %q, want %q", got, want)
	}
}

func TestWalkHideAndFirstParent(t *testing.T) {
	r, _ := newTestRepo(t)
	_, a, _, merge := skewedHistory(t, r)

	w := r.Walk()
	if err := w.Push(merge); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := w.Hide(a); err != nil {
		t.Fatalf("Hide: %v", err)
	}
	if got, want := walkSummaries(t, w), "merge b"; got != want {
		t.Fatalf("hidden walk = %q, want %q", got, want)
	}

	w.Reset()
	if err := w.Push(merge); err != nil {
		t.Fatalf("Push: %v", err)
	}
	w.SimplifyFirstParent()
	if got, want := walkSummaries(t, w), "merge a root"; got != want {
		t.Fatalf("first-parent walk = %q, want %q", got, want)
	}
}

func TestWalkSeqStopsEarly(t *testing.T) {
	r, _ := newTestRepo(t)
	_, _, _, merge := skewedHistory(t, r)

	w := r.Walk()
	if err := w.Push(merge); err != nil {
		t.Fatalf("Push: %v", err)
	}
	n := 0
	for _, err := range w.Seq() {
		if err != nil {
			t.Fatalf("Seq: %v", err)
		}
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("visited %d commits, want 2", n)
	}

	got, err := w.CommitsWhile(func(e WalkEntry) bool { return len(e.Commit.Parents) > 0 })
	if err != nil {
		t.Fatalf("CommitsWhile: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("CommitsWhile returned %d entries, want 2 (stops at root)", len(got))
	}
}

func TestLogLimit(t *testing.T) {
	r, wt := newTestRepo(t)
	var last object.Hash
	for _, c := range []string{"1", "2", "3", "4"} {
		last = commitFiles(t, r, wt, "c"+c, map[string]string{"f": c + "\n"})
	}
	all, err := r.Log(last, 0)
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("Log(0) = %d entries, want 4", len(all))
	}
	two, err := r.Log(last, 2)
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(two) != 2 || two[0].Hash != last {
		t.Fatalf("Log(2) = %d entries starting at %s", len(two), two[0].Hash.Short())
	}
}
