package repo

import (
	"errors"
	"strings"
	"testing"

	"github.com/odvcencio/weft/pkg/object"
)

// buildDiamond writes root <- left, root <- right and returns all three.
func buildDiamond(t *testing.T, r *Repo) (root, left, right object.Hash) {
	t.Helper()
	tree := emptyTree(t, r)
	root = writeCommit(t, r, tree, "root\n", 100)
	left = writeCommit(t, r, tree, "left\n", 200, root)
	right = writeCommit(t, r, tree, "right\n", 300, root)
	return root, left, right
}

func TestMergeBaseDiamond(t *testing.T) {
	r, _ := newTestRepo(t)
	root, left, right := buildDiamond(t, r)

	for _, pair := range [][2]object.Hash{{left, right}, {right, left}} {
		got, err := r.MergeBase(pair[0], pair[1])
		if err != nil {
			t.Fatalf("MergeBase: %v", err)
		}
		if got != root {
			t.Fatalf("MergeBase = %s, want root %s", got.Short(), root.Short())
		}
	}
}

func TestMergeBaseSelfAndAncestor(t *testing.T) {
	r, _ := newTestRepo(t)
	root, left, _ := buildDiamond(t, r)

	if got, err := r.MergeBase(left, left); err != nil || got != left {
		t.Fatalf("MergeBase(a, a) = %s, %v", got.Short(), err)
	}
	if got, err := r.MergeBase(root, left); err != nil || got != root {
		t.Fatalf("MergeBase(root, left) = %s, %v", got.Short(), err)
	}
	if got, err := r.MergeBase(left, root); err != nil || got != root {
		t.Fatalf("MergeBase(left, root) = %s, %v", got.Short(), err)
	}
}

func TestMergeBasePrefersNearestCommonAncestor(t *testing.T) {
	r, _ := newTestRepo(t)
	tree := emptyTree(t, r)
	c0 := writeCommit(t, r, tree, "c0\n", 100)
	c1 := writeCommit(t, r, tree, "c1\n", 110, c0)
	c2 := writeCommit(t, r, tree, "c2\n", 120, c1)
	a := writeCommit(t, r, tree, "a\n", 130, c2)
	b1 := writeCommit(t, r, tree, "b1\n", 140, c2)
	b2 := writeCommit(t, r, tree, "b2\n", 150, b1)
	// A merge of a side branch off c0 must not pull the answer back to c0.
	side := writeCommit(t, r, tree, "side\n", 105, c0)
	b3 := writeCommit(t, r, tree, "b3\n", 160, b2, side)

	got, err := r.MergeBase(a, b3)
	if err != nil {
		t.Fatalf("MergeBase: %v", err)
	}
	if got != c2 {
		t.Fatalf("MergeBase = %s, want c2 %s", got.Short(), c2.Short())
	}
}

func TestMergeBaseDisjointHistories(t *testing.T) {
	r, _ := newTestRepo(t)
	tree := emptyTree(t, r)
	a := writeCommit(t, r, tree, "a\n", 100)
	b := writeCommit(t, r, tree, "b\n", 200)

	if _, err := r.MergeBase(a, b); !errors.Is(err, ErrNotFound) {
		t.Fatalf("MergeBase: err = %v, want ErrNotFound", err)
	}
	// Answered from the cache the second time.
	if _, err := r.MergeBase(b, a); !errors.Is(err, ErrNotFound) {
		t.Fatalf("MergeBase (cached): err = %v, want ErrNotFound", err)
	}
}

func TestMergeBaseRejectsZero(t *testing.T) {
	r, _ := newTestRepo(t)
	_, left, _ := buildDiamond(t, r)
	if _, err := r.MergeBase(left, object.ZeroHash); !errors.Is(err, ErrInvalid) {
		t.Fatalf("MergeBase(zero): err = %v, want ErrInvalid", err)
	}
}

func TestMergeBaseDetectsCycle(t *testing.T) {
	r, _ := newTestRepo(t)
	_, left, right := buildDiamond(t, r)

	// A hash-verified store cannot hold a cycle, so it is injected into the
	// parent cache the traversal reads from.
	g := r.graphState()
	g.mu.Lock()
	g.parentLists[left] = []object.Hash{right}
	g.parentLists[right] = []object.Hash{left}
	g.mu.Unlock()

	_, err := r.MergeBase(left, right)
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("MergeBase on cyclic graph: err = %v, want cycle error", err)
	}
}

func TestMergeBaseStepLimit(t *testing.T) {
	r, _ := newTestRepo(t)
	tree := emptyTree(t, r)
	root := writeCommit(t, r, tree, "root\n", 100)
	a, b := root, root
	for i := 0; i < 20; i++ {
		a = writeCommit(t, r, tree, "a\n"+strings.Repeat("x", i), int64(200+i), a)
		b = writeCommit(t, r, tree, "b\n"+strings.Repeat("y", i), int64(300+i), b)
	}

	prev := mergeBaseStepLimit
	mergeBaseStepLimit = 5
	t.Cleanup(func() { mergeBaseStepLimit = prev })

	if _, err := r.MergeBase(a, b); err == nil || !strings.Contains(err.Error(), "exceeded") {
		t.Fatalf("MergeBase with low step limit: err = %v, want traversal limit error", err)
	}
}

func TestIsDescendantOfAndAheadBehind(t *testing.T) {
	r, _ := newTestRepo(t)
	root, left, right := buildDiamond(t, r)
	tree := emptyTree(t, r)
	left2 := writeCommit(t, r, tree, "left2\n", 400, left)

	ok, err := r.IsDescendantOf(left2, root)
	if err != nil || !ok {
		t.Fatalf("IsDescendantOf(left2, root) = %v, %v", ok, err)
	}
	if ok, _ := r.IsDescendantOf(root, root); ok {
		t.Fatal("a commit must not be its own descendant")
	}
	if ok, _ := r.IsDescendantOf(right, left); ok {
		t.Fatal("right is not a descendant of left")
	}

	ahead, behind, err := r.AheadBehind(left2, right)
	if err != nil {
		t.Fatalf("AheadBehind: %v", err)
	}
	if ahead != 2 || behind != 1 {
		t.Fatalf("AheadBehind = %d, %d; want 2, 1", ahead, behind)
	}
}
