package index

import (
	"crypto/sha1"
	"errors"
	"reflect"
	"testing"

	"github.com/odvcencio/weft/pkg/object"
)

func appendChecksum(body []byte) []byte {
	sum := sha1.Sum(body)
	return append(body, sum[:]...)
}

func TestPathspecMatch(t *testing.T) {
	tests := []struct {
		specs   []string
		path    string
		want    bool
		matched string
	}{
		{nil, "any/file.go", true, "*"},
		{[]string{"src"}, "src/a.go", true, "src"},
		{[]string{"src/"}, "src/deep/a.go", true, "src/"},
		{[]string{"src"}, "srcx/a.go", false, ""},
		{[]string{"*.go"}, "pkg/x/y.go", true, "*.go"},
		{[]string{"*.go"}, "README.md", false, ""},
		{[]string{"doc?/*"}, "docs/a.md", true, "doc?/*"},
		{[]string{"."}, "top.txt", true, "."},
		{[]string{"*", ":!vendor"}, "vendor/x.go", false, ""},
		{[]string{"*", ":!vendor"}, "main.go", true, "*"},
		{[]string{":^*.log"}, "a.log", false, ""},
		{[]string{":^*.log"}, "a.txt", true, "*"},
		{[]string{"[ab].txt"}, "b.txt", true, "[ab].txt"},
	}
	for _, tt := range tests {
		matched, ok := NewPathspec(tt.specs).Match(tt.path)
		if ok != tt.want || matched != tt.matched {
			t.Errorf("Match(%v, %q) = (%q, %v), want (%q, %v)", tt.specs, tt.path, matched, ok, tt.matched, tt.want)
		}
	}
}

func TestAddAllVisitsSortedAndHonoursIgnore(t *testing.T) {
	ix, wt, _ := newTestIndex(t)
	writeFile(t, wt, ".gitignore", "*.log\n")
	writeFile(t, wt, "b.txt", "b")
	writeFile(t, wt, "a.txt", "a")
	writeFile(t, wt, "dir/c.txt", "c")
	writeFile(t, wt, "debug.log", "noise")

	var seen []string
	err := ix.AddAll(nil, func(p, matched string) (bool, error) {
		if matched != "*" {
			t.Errorf("matched = %q for %s", matched, p)
		}
		seen = append(seen, p)
		return true, nil
	})
	if err != nil {
		t.Fatalf("AddAll: %v", err)
	}
	want := []string{".gitignore", "a.txt", "b.txt", "dir/c.txt"}
	if !reflect.DeepEqual(seen, want) {
		t.Fatalf("visited %v, want %v", seen, want)
	}
	if !reflect.DeepEqual(paths(ix), want) {
		t.Fatalf("index = %v, want %v", paths(ix), want)
	}
}

func TestAddAllCallbackSkipAndAbort(t *testing.T) {
	ix, wt, _ := newTestIndex(t)
	writeFile(t, wt, "keep.txt", "k")
	writeFile(t, wt, "skip.txt", "s")
	err := ix.AddAll([]string{"*.txt"}, func(p, _ string) (bool, error) {
		return p != "skip.txt", nil
	})
	if err != nil {
		t.Fatalf("AddAll: %v", err)
	}
	if got := paths(ix); !reflect.DeepEqual(got, []string{"keep.txt"}) {
		t.Fatalf("index = %v", got)
	}

	stop := errors.New("stop")
	writeFile(t, wt, "more.txt", "m")
	err = ix.AddAll(nil, func(string, string) (bool, error) { return false, stop })
	if !errors.Is(err, stop) {
		t.Fatalf("AddAll err = %v, want stop", err)
	}
}

func TestAddAllRemovesDeletedTrackedFiles(t *testing.T) {
	ix, wt, _ := newTestIndex(t)
	writeFile(t, wt, "gone.txt", "g")
	writeFile(t, wt, "stay.txt", "s")
	if err := ix.AddAll(nil, nil); err != nil {
		t.Fatalf("AddAll: %v", err)
	}
	if err := wt.Remove("gone.txt"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := ix.AddAll(nil, nil); err != nil {
		t.Fatalf("AddAll: %v", err)
	}
	if got := paths(ix); !reflect.DeepEqual(got, []string{"stay.txt"}) {
		t.Fatalf("index = %v", got)
	}
}

func TestAddAllKeepsTrackedIgnoredFiles(t *testing.T) {
	ix, wt, _ := newTestIndex(t)
	writeFile(t, wt, "tracked.log", "v1")
	if err := ix.AddByPath("tracked.log"); err != nil {
		t.Fatalf("AddByPath: %v", err)
	}
	writeFile(t, wt, ".gitignore", "*.log\n")
	writeFile(t, wt, "tracked.log", "v2 longer")
	if err := ix.AddAll([]string{"*.log"}, nil); err != nil {
		t.Fatalf("AddAll: %v", err)
	}
	e, err := ix.Get("tracked.log", StageNormal)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.Hash != object.HashObject(object.TypeBlob, []byte("v2 longer")) {
		t.Fatal("tracked ignored file should be re-staged")
	}
}

func TestUpdateAllTouchesOnlyTrackedPaths(t *testing.T) {
	ix, wt, _ := newTestIndex(t)
	writeFile(t, wt, "a.txt", "a1")
	writeFile(t, wt, "b.txt", "b1")
	for _, p := range []string{"a.txt", "b.txt"} {
		if err := ix.AddByPath(p); err != nil {
			t.Fatalf("AddByPath: %v", err)
		}
	}
	writeFile(t, wt, "a.txt", "a2 changed")
	writeFile(t, wt, "new.txt", "n")
	if err := wt.Remove("b.txt"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	var seen []string
	err := ix.UpdateAll(nil, func(p, _ string) (bool, error) {
		seen = append(seen, p)
		return true, nil
	})
	if err != nil {
		t.Fatalf("UpdateAll: %v", err)
	}
	if !reflect.DeepEqual(seen, []string{"a.txt", "b.txt"}) {
		t.Fatalf("visited %v", seen)
	}
	if got := paths(ix); !reflect.DeepEqual(got, []string{"a.txt"}) {
		t.Fatalf("index = %v", got)
	}
	a, _ := ix.Get("a.txt", StageNormal)
	if a.Hash != object.HashObject(object.TypeBlob, []byte("a2 changed")) {
		t.Fatal("a.txt was not refreshed")
	}
}

func TestRemoveAll(t *testing.T) {
	ix, _, store := newTestIndex(t)
	for _, p := range []string{"docs/a.md", "docs/b.md", "src/main.go"} {
		if err := ix.Add(blobEntry(t, store, p, p, StageNormal)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	var seen []string
	err := ix.RemoveAll([]string{"docs"}, func(p, matched string) (bool, error) {
		if matched != "docs" {
			t.Errorf("matched = %q", matched)
		}
		seen = append(seen, p)
		return p != "docs/b.md", nil
	})
	if err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if !reflect.DeepEqual(seen, []string{"docs/a.md", "docs/b.md"}) {
		t.Fatalf("visited %v", seen)
	}
	if got := paths(ix); !reflect.DeepEqual(got, []string{"docs/b.md", "src/main.go"}) {
		t.Fatalf("index = %v", got)
	}
}
