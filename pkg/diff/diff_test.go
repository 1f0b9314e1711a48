package diff

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/odvcencio/weft/pkg/index"
	"github.com/odvcencio/weft/pkg/object"
)

type file struct {
	content string
	mode    string
}

func buildTree(t *testing.T, store *object.Store, files map[string]file) object.Hash {
	t.Helper()
	ix := index.New(store)
	for p, f := range files {
		h, err := store.WriteBlob(&object.Blob{Data: []byte(f.content)})
		if err != nil {
			t.Fatalf("WriteBlob: %v", err)
		}
		mode := f.mode
		if mode == "" {
			mode = object.TreeModeFile
		}
		if err := ix.Add(index.Entry{Path: p, Hash: h, Mode: mode}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	h, err := ix.WriteTree()
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	return h
}

func summary(d *Diff) string {
	var parts []string
	for _, dl := range d.Deltas() {
		s := fmt.Sprintf("%c %s", dl.Status.Char(), dl.Path())
		if dl.Status == Renamed || dl.Status == Copied {
			s = fmt.Sprintf("%c %s->%s %d", dl.Status.Char(), dl.OldFile.Path, dl.NewFile.Path, dl.Similarity)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "; ")
}

func TestTreeToTreeStatuses(t *testing.T) {
	store := object.NewStore(memfs.New())
	oldTree := buildTree(t, store, map[string]file{
		"a.txt":    {content: "a\n"},
		"b.txt":    {content: "b\n"},
		"dir/c":    {content: "c\n"},
		"run.sh":   {content: "echo\n"},
		"link":     {content: "a.txt"},
		"same.txt": {content: "same\n"},
	})
	newTree := buildTree(t, store, map[string]file{
		"a.txt":    {content: "A\n"},
		"dir/c":    {content: "c\n"},
		"dir/d":    {content: "d\n"},
		"run.sh":   {content: "echo\n", mode: object.TreeModeExecutable},
		"link":     {content: "a.txt", mode: object.TreeModeSymlink},
		"same.txt": {content: "same\n"},
	})

	d, err := TreeToTree(store, oldTree, newTree, Options{})
	if err != nil {
		t.Fatalf("TreeToTree: %v", err)
	}
	want := "M a.txt; D b.txt; A dir/d; T link; M run.sh"
	if got := summary(d); got != want {
		t.Fatalf("deltas = %q, want %q", got, want)
	}

	d, err = TreeToTree(store, oldTree, newTree, Options{IncludeUnmodified: true})
	if err != nil {
		t.Fatalf("TreeToTree: %v", err)
	}
	want = "M a.txt; D b.txt;   dir/c; A dir/d; T link; M run.sh;   same.txt"
	if got := summary(d); got != want {
		t.Fatalf("deltas = %q, want %q", got, want)
	}
}

func TestTreeToTreeEmptySidesAndReverse(t *testing.T) {
	store := object.NewStore(memfs.New())
	tree := buildTree(t, store, map[string]file{"x/y.txt": {content: "y\n"}, "z.txt": {content: "z\n"}})

	d, err := TreeToTree(store, object.ZeroHash, tree, Options{})
	if err != nil {
		t.Fatalf("TreeToTree: %v", err)
	}
	if got := summary(d); got != "A x/y.txt; A z.txt" {
		t.Fatalf("deltas = %q", got)
	}

	d, err = TreeToTree(store, object.ZeroHash, tree, Options{Reverse: true})
	if err != nil {
		t.Fatalf("TreeToTree: %v", err)
	}
	if got := summary(d); got != "D x/y.txt; D z.txt" {
		t.Fatalf("reversed deltas = %q", got)
	}
	if d.Delta(0).OldFile.Hash.IsZero() || d.Delta(0).NewFile.Exists() {
		t.Fatalf("reversed sides not swapped: %+v", d.Delta(0))
	}

	same, err := TreeToTree(store, tree, tree, Options{})
	if err != nil {
		t.Fatalf("TreeToTree: %v", err)
	}
	if same.Len() != 0 {
		t.Fatalf("identical trees produced %d deltas", same.Len())
	}
}

func TestTreeToTreeFileBecomesDirectory(t *testing.T) {
	store := object.NewStore(memfs.New())
	oldTree := buildTree(t, store, map[string]file{"a": {content: "file\n"}})
	newTree := buildTree(t, store, map[string]file{"a/b": {content: "nested\n"}})
	d, err := TreeToTree(store, oldTree, newTree, Options{})
	if err != nil {
		t.Fatalf("TreeToTree: %v", err)
	}
	if got := summary(d); got != "D a; A a/b" {
		t.Fatalf("deltas = %q", got)
	}
}

func TestTreeToTreePathspec(t *testing.T) {
	store := object.NewStore(memfs.New())
	newTree := buildTree(t, store, map[string]file{"src/a.go": {content: "a"}, "docs/b.md": {content: "b"}})
	d, err := TreeToTree(store, object.ZeroHash, newTree, Options{Pathspec: []string{"src"}})
	if err != nil {
		t.Fatalf("TreeToTree: %v", err)
	}
	if got := summary(d); got != "A src/a.go" {
		t.Fatalf("deltas = %q", got)
	}
}

func TestPatchHunkHeaders(t *testing.T) {
	tests := []struct {
		name     string
		old, new string
		headers  []string
	}{
		{
			name:    "middle change",
			old:     "1\n2\n3\n4\n5\n6\n7\n8\n9\n10\n",
			new:     "1\n2\n3\n4\nfive\n6\n7\n8\n9\n10\n",
			headers: []string{"@@ -2,7 +2,7 @@"},
		},
		{
			name:    "function context",
			old:     "func main() {\n\ta\n\tb\n\tc\n\td\n\te\n}\n",
			new:     "func main() {\n\ta\n\tb\n\tc\n\td\n\tE\n}\n",
			headers: []string{"@@ -3,5 +3,5 @@ func main() {"},
		},
		{
			name:    "new file",
			old:     "",
			new:     "x\ny\n",
			headers: []string{"@@ -0,0 +1,2 @@"},
		},
		{
			name:    "single line",
			old:     "hello\n",
			new:     "hello world\n",
			headers: []string{"@@ -1,1 +1,1 @@"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var oldData []byte
			if tt.old != "" {
				oldData = []byte(tt.old)
			}
			p := Buffers(oldData, "f", []byte(tt.new), "f", Options{})
			if len(p.Hunks) != len(tt.headers) {
				t.Fatalf("hunks = %d, want %d", len(p.Hunks), len(tt.headers))
			}
			for i, h := range p.Hunks {
				if h.Header != tt.headers[i] {
					t.Errorf("hunk %d header = %q, want %q", i, h.Header, tt.headers[i])
				}
			}
		})
	}
}

func TestPatchHunkSplittingAndInterhunk(t *testing.T) {
	var oldB, newB strings.Builder
	for i := 1; i <= 20; i++ {
		fmt.Fprintf(&oldB, "line %d\n", i)
		if i == 2 || i == 18 {
			fmt.Fprintf(&newB, "changed %d\n", i)
			continue
		}
		fmt.Fprintf(&newB, "line %d\n", i)
	}
	oldData, newData := []byte(oldB.String()), []byte(newB.String())

	p := Buffers(oldData, "f", newData, "f", Options{})
	if len(p.Hunks) != 2 {
		t.Fatalf("hunks = %d, want 2", len(p.Hunks))
	}
	if p.Hunks[0].OldStart != 1 || p.Hunks[0].OldLines != 5 {
		t.Fatalf("first hunk = %+v", p.Hunks[0])
	}
	if p.Hunks[1].OldStart != 15 || p.Hunks[1].OldLines != 6 {
		t.Fatalf("second hunk = -%d,%d", p.Hunks[1].OldStart, p.Hunks[1].OldLines)
	}

	p = Buffers(oldData, "f", newData, "f", Options{InterhunkLines: 10})
	if len(p.Hunks) != 1 {
		t.Fatalf("interhunk merge: hunks = %d, want 1", len(p.Hunks))
	}

	p = Buffers(oldData, "f", newData, "f", Options{ContextLines: -1})
	if len(p.Hunks) != 2 || p.Hunks[0].OldLines != 1 || p.Hunks[0].OldStart != 2 {
		t.Fatalf("zero context hunks = %+v", p.Hunks)
	}
}

func TestPatchLineNumbers(t *testing.T) {
	p := Buffers([]byte("a\nb\nc\n"), "f", []byte("a\nB\nc\nd\n"), "f", Options{})
	if len(p.Hunks) != 1 {
		t.Fatalf("hunks = %d", len(p.Hunks))
	}
	want := []Line{
		{LineContext, "a\n", 1, 1},
		{LineDeletion, "b\n", 2, 0},
		{LineAddition, "B\n", 0, 2},
		{LineContext, "c\n", 3, 3},
		{LineAddition, "d\n", 0, 4},
	}
	got := p.Hunks[0].Lines
	if len(got) != len(want) {
		t.Fatalf("lines = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if c, a, d := p.LineStats(); c != 2 || a != 2 || d != 1 {
		t.Fatalf("LineStats = %d %d %d", c, a, d)
	}
}

func TestPatchBinary(t *testing.T) {
	p := Buffers([]byte("text\n"), "f", []byte("bin\x00ary"), "f", Options{})
	if !p.IsBinary() || len(p.Hunks) != 0 {
		t.Fatalf("binary patch = %+v", p)
	}
	if !strings.Contains(p.String(), "Binary files a/f and b/f differ") {
		t.Fatalf("binary render = %q", p.String())
	}
}

func TestPatchStringUnified(t *testing.T) {
	store := object.NewStore(memfs.New())
	oldTree := buildTree(t, store, map[string]file{"hello.txt": {content: "hello\n"}})
	newTree := buildTree(t, store, map[string]file{"hello.txt": {content: "hello world\n"}, "new.txt": {content: "n"}})
	d, err := TreeToTree(store, oldTree, newTree, Options{})
	if err != nil {
		t.Fatalf("TreeToTree: %v", err)
	}
	p, err := d.Patch(0)
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	newHash := object.HashObject(object.TypeBlob, []byte("hello world\n"))
	want := "diff --git a/hello.txt b/hello.txt\n" +
		"index ce01362.." + newHash.Short() + " 100644\n" +
		"--- a/hello.txt\n" +
		"+++ b/hello.txt\n" +
		"@@ -1,1 +1,1 @@\n" +
		"-hello\n" +
		"+hello world\n"
	if got := p.String(); got != want {
		t.Fatalf("patch =\n%s\nwant\n%s", got, want)
	}

	p, err = d.Patch(1)
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	added := p.String()
	for _, frag := range []string{"new file mode 100644\n", "--- /dev/null\n", "+++ b/new.txt\n", "+n\n\\ No newline at end of file\n"} {
		if !strings.Contains(added, frag) {
			t.Errorf("added patch missing %q:\n%s", frag, added)
		}
	}
}

func TestPatchIsCachedAndLazy(t *testing.T) {
	store := object.NewStore(memfs.New())
	newTree := buildTree(t, store, map[string]file{"a": {content: "1\n"}, "b": {content: "2\n"}, "c": {content: "3\n"}})
	d, err := TreeToTree(store, object.ZeroHash, newTree, Options{})
	if err != nil {
		t.Fatalf("TreeToTree: %v", err)
	}
	p1, err := d.Patch(1)
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	p2, _ := d.Patch(1)
	if p1 != p2 {
		t.Fatal("patch was recomputed")
	}

	n := 0
	for p, err := range d.Patches() {
		if err != nil {
			t.Fatalf("Patches: %v", err)
		}
		n++
		if p.Delta.NewFile.Path == "b" {
			break
		}
	}
	if n != 2 {
		t.Fatalf("iterated %d patches before stopping, want 2", n)
	}
	if _, err := d.Patch(5); err == nil {
		t.Fatal("expected out of range error")
	}
}

func TestDiffStatsAndFormat(t *testing.T) {
	store := object.NewStore(memfs.New())
	oldTree := buildTree(t, store, map[string]file{"a": {content: "1\n2\n3\n"}, "gone": {content: "x\ny\n"}})
	newTree := buildTree(t, store, map[string]file{"a": {content: "1\ntwo\n3\nfour\n"}})
	d, err := TreeToTree(store, oldTree, newTree, Options{})
	if err != nil {
		t.Fatalf("TreeToTree: %v", err)
	}
	st, err := d.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st != (Stats{FilesChanged: 2, Insertions: 2, Deletions: 3}) {
		t.Fatalf("Stats = %+v", st)
	}
	var buf bytes.Buffer
	if err := d.Format(&buf); err != nil {
		t.Fatalf("Format: %v", err)
	}
	if strings.Count(buf.String(), "diff --git") != 2 || !strings.Contains(buf.String(), "deleted file mode 100644") {
		t.Fatalf("Format output:\n%s", buf.String())
	}
	buf.Reset()
	d.FormatNameStatus(&buf)
	if buf.String() != "M\ta\nD\tgone\n" {
		t.Fatalf("name-status = %q", buf.String())
	}
}

const longFile = "alpha\nbravo\ncharlie\ndelta\necho\nfoxtrot\ngolf\nhotel\nindia\njuliet\n"

func TestFindSimilarExactRename(t *testing.T) {
	store := object.NewStore(memfs.New())
	oldTree := buildTree(t, store, map[string]file{"old.txt": {content: longFile}, "keep": {content: "k"}})
	newTree := buildTree(t, store, map[string]file{"new.txt": {content: longFile}, "keep": {content: "k"}})
	d, err := TreeToTree(store, oldTree, newTree, Options{})
	if err != nil {
		t.Fatalf("TreeToTree: %v", err)
	}
	if err := d.FindSimilar(FindOptions{}); err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if got := summary(d); got != "R old.txt->new.txt 100" {
		t.Fatalf("deltas = %q", got)
	}
	p, err := d.Patch(0)
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if !strings.Contains(p.String(), "rename from old.txt\nrename to new.txt\n") || len(p.Hunks) != 0 {
		t.Fatalf("rename patch = %q", p.String())
	}
}

func TestFindSimilarInexactRenameAndThreshold(t *testing.T) {
	store := object.NewStore(memfs.New())
	edited := strings.Replace(longFile, "echo\n", "ECHO\n", 1)
	oldTree := buildTree(t, store, map[string]file{"before.txt": {content: longFile}, "unrelated": {content: "one\ntwo\n"}})
	newTree := buildTree(t, store, map[string]file{"after.txt": {content: edited}, "other": {content: "three\nfour\n"}})

	d, err := TreeToTree(store, oldTree, newTree, Options{})
	if err != nil {
		t.Fatalf("TreeToTree: %v", err)
	}
	if err := d.FindSimilar(FindOptions{}); err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	got := summary(d)
	if !strings.HasPrefix(got, "R before.txt->after.txt ") || !strings.Contains(got, "A other") || !strings.Contains(got, "D unrelated") {
		t.Fatalf("deltas = %q", got)
	}
	if sim := d.Delta(0).Similarity; sim < 80 || sim >= 100 {
		t.Fatalf("similarity = %d", sim)
	}

	d, _ = TreeToTree(store, oldTree, newTree, Options{})
	if err := d.FindSimilar(FindOptions{RenameThreshold: 99}); err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if strings.Contains(summary(d), "R ") {
		t.Fatalf("threshold 99 should reject the rename: %q", summary(d))
	}

	d, _ = TreeToTree(store, oldTree, newTree, Options{})
	if err := d.FindSimilar(FindOptions{ExactOnly: true}); err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if strings.Contains(summary(d), "R ") {
		t.Fatalf("exact-only should not pair edited files: %q", summary(d))
	}
}

func TestFindSimilarCopies(t *testing.T) {
	store := object.NewStore(memfs.New())
	oldTree := buildTree(t, store, map[string]file{"src.txt": {content: longFile}})
	newTree := buildTree(t, store, map[string]file{"src.txt": {content: longFile}, "copy.txt": {content: longFile}})

	d, err := TreeToTree(store, oldTree, newTree, Options{IncludeUnmodified: true})
	if err != nil {
		t.Fatalf("TreeToTree: %v", err)
	}
	if err := d.FindSimilar(FindOptions{Copies: true, CopiesFromUnmodified: true}); err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if got := summary(d); got != "C src.txt->copy.txt 100;   src.txt" {
		t.Fatalf("deltas = %q", got)
	}
}

func TestTreeToIndex(t *testing.T) {
	store := object.NewStore(memfs.New())
	tree := buildTree(t, store, map[string]file{"a": {content: "a\n"}, "b": {content: "b\n"}, "c": {content: "c\n"}})
	ix := index.New(store)
	if err := ix.ReadTree(tree); err != nil {
		t.Fatalf("ReadTree: %v", err)
	}
	newA, _ := store.WriteBlob(&object.Blob{Data: []byte("A\n")})
	if err := ix.Add(index.Entry{Path: "a", Hash: newA, Mode: object.TreeModeFile}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := ix.RemoveByPath("b"); err != nil {
		t.Fatalf("RemoveByPath: %v", err)
	}
	if err := ix.Add(index.Entry{Path: "d", Hash: newA, Mode: object.TreeModeFile}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	ours := index.Entry{Path: "c", Hash: newA, Mode: object.TreeModeFile}
	if err := ix.AddConflict(nil, &ours, nil); err != nil {
		t.Fatalf("AddConflict: %v", err)
	}

	d, err := TreeToIndex(store, tree, ix, Options{})
	if err != nil {
		t.Fatalf("TreeToIndex: %v", err)
	}
	if got := summary(d); got != "M a; D b; U c; A d" {
		t.Fatalf("deltas = %q", got)
	}
}

func TestIndexToWorkdir(t *testing.T) {
	store := object.NewStore(memfs.New())
	wt := memfs.New()
	ix := index.New(store, index.WithWorktree(wt))
	files := map[string]string{"clean.txt": "clean\n", "edit.txt": "v1\n", "gone.txt": "bye\n", "becomes-link": "target\n"}
	for p, c := range files {
		if err := util.WriteFile(wt, p, []byte(c), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if err := ix.AddByPath(p); err != nil {
			t.Fatalf("AddByPath: %v", err)
		}
	}
	if err := util.WriteFile(wt, "edit.txt", []byte("v2 changed\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := wt.Remove("gone.txt"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := wt.Remove("becomes-link"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := wt.Symlink("clean.txt", "becomes-link"); err != nil {
		t.Fatalf("Symlink: %v", err)
	}
	for p, c := range map[string]string{".gitignore": "*.tmp\nbuild/\n", "new.txt": "new\n", "scratch.tmp": "x", "build/out.bin": "o"} {
		if err := util.WriteFile(wt, p, []byte(c), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	d, err := IndexToWorkdir(store, ix, wt, Options{})
	if err != nil {
		t.Fatalf("IndexToWorkdir: %v", err)
	}
	if got := summary(d); got != "T becomes-link; M edit.txt; D gone.txt" {
		t.Fatalf("deltas = %q", got)
	}

	d, err = IndexToWorkdir(store, ix, wt, Options{IncludeUntracked: true, IncludeIgnored: true})
	if err != nil {
		t.Fatalf("IndexToWorkdir: %v", err)
	}
	want := "? .gitignore; T becomes-link; ! build/; M edit.txt; D gone.txt; ? new.txt; ! scratch.tmp"
	if got := summary(d); got != want {
		t.Fatalf("deltas = %q, want %q", got, want)
	}

	for i := 0; i < d.Len(); i++ {
		if d.Delta(i).Path() != "edit.txt" {
			continue
		}
		p, err := d.Patch(i)
		if err != nil {
			t.Fatalf("Patch: %v", err)
		}
		if !strings.Contains(p.String(), "-v1\n+v2 changed\n") {
			t.Fatalf("workdir patch = %q", p.String())
		}
	}
}
