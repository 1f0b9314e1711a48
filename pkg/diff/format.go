package diff

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/odvcencio/weft/pkg/diff3"
	"github.com/odvcencio/weft/pkg/object"
)

// binarySniffLen is how many leading bytes are checked for NUL.
const binarySniffLen = 8000

// LineOrigin marks a patch line as context, addition or deletion.
type LineOrigin byte

const (
	LineContext  LineOrigin = ' '
	LineAddition LineOrigin = '+'
	LineDeletion LineOrigin = '-'
)

// Line is one line of a hunk. Content keeps its terminator; line numbers
// are 1-based and 0 on the side the line is absent from.
type Line struct {
	Origin    LineOrigin
	Content   string
	OldLineno int
	NewLineno int
}

// Hunk is a contiguous region of changes with surrounding context.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Header   string
	Lines    []Line
}

// Patch holds the hunks of one delta.
type Patch struct {
	Delta Delta
	Hunks []Hunk
}

// IsBinary reports whether either side was detected as binary.
func (p *Patch) IsBinary() bool { return p.Delta.Binary }

// LineStats counts context, added and deleted lines.
func (p *Patch) LineStats() (context, additions, deletions int) {
	for _, h := range p.Hunks {
		for _, l := range h.Lines {
			switch l.Origin {
			case LineContext:
				context++
			case LineAddition:
				additions++
			case LineDeletion:
				deletions++
			}
		}
	}
	return context, additions, deletions
}

// IsBinary reports whether data looks binary: a NUL byte within the first
// 8000 bytes.
func IsBinary(data []byte) bool {
	if len(data) > binarySniffLen {
		data = data[:binarySniffLen]
	}
	return bytes.IndexByte(data, 0) >= 0
}

func (d *Diff) buildPatch(dl Delta) (*Patch, error) {
	switch dl.Status {
	case Unmodified, Ignored, Conflicted, Unreadable:
		return &Patch{Delta: dl}, nil
	}
	oldData, err := d.content(dl.OldFile)
	if err != nil {
		return nil, err
	}
	newData, err := d.content(dl.NewFile)
	if err != nil {
		return nil, err
	}
	if dl.OldFile.Exists() {
		dl.OldFile.Size = int64(len(oldData))
	}
	if dl.NewFile.Exists() {
		dl.NewFile.Size = int64(len(newData))
	}
	return makePatch(dl, oldData, newData, d.opts), nil
}

func makePatch(dl Delta, oldData, newData []byte, opts Options) *Patch {
	p := &Patch{Delta: dl}
	if IsBinary(oldData) || IsBinary(newData) {
		p.Delta.Binary = true
		return p
	}
	if bytes.Equal(oldData, newData) {
		return p
	}
	p.Hunks = buildHunks(diff3.LineDiff(oldData, newData), diff3.SplitLines(oldData), opts.contextLines(), opts.InterhunkLines)
	return p
}

// buildHunks groups a line diff into hunks. Changes closer than
// 2*context+interhunk unchanged lines share a hunk.
func buildHunks(lines []diff3.DiffLine, oldLines []string, context, interhunk int) []Hunk {
	var changes []int
	for i, l := range lines {
		if l.Type != diff3.Equal {
			changes = append(changes, i)
		}
	}
	if len(changes) == 0 {
		return nil
	}

	var hunks []Hunk
	for k := 0; k < len(changes); {
		first := changes[k]
		last := first
		for k++; k < len(changes) && changes[k]-last-1 <= 2*context+interhunk; k++ {
			last = changes[k]
		}
		start := max(first-context, 0)
		end := min(last+context+1, len(lines))
		hunks = append(hunks, makeHunk(lines, start, end, oldLines))
	}
	return hunks
}

func makeHunk(lines []diff3.DiffLine, start, end int, oldLines []string) Hunk {
	// Lines consumed on each side before the hunk.
	oldBefore, newBefore := 0, 0
	for _, l := range lines[:start] {
		if l.Type != diff3.Insert {
			oldBefore++
		}
		if l.Type != diff3.Delete {
			newBefore++
		}
	}

	h := Hunk{}
	for _, l := range lines[start:end] {
		line := Line{Content: l.Content, OldLineno: l.OldLine, NewLineno: l.NewLine}
		switch l.Type {
		case diff3.Equal:
			line.Origin = LineContext
			h.OldLines++
			h.NewLines++
		case diff3.Delete:
			line.Origin = LineDeletion
			h.OldLines++
		case diff3.Insert:
			line.Origin = LineAddition
			h.NewLines++
		}
		h.Lines = append(h.Lines, line)
	}
	h.OldStart = oldBefore
	if h.OldLines > 0 {
		h.OldStart++
	}
	h.NewStart = newBefore
	if h.NewLines > 0 {
		h.NewStart++
	}
	h.Header = fmt.Sprintf("@@ -%d,%d +%d,%d @@", h.OldStart, h.OldLines, h.NewStart, h.NewLines)
	if ctx := functionContext(oldLines, oldBefore); ctx != "" {
		h.Header += " " + ctx
	}
	return h
}

// functionContext finds the nearest old-side line before position before
// that starts with a letter, '_' or '$'.
func functionContext(oldLines []string, before int) string {
	for i := min(before, len(oldLines)) - 1; i >= 0; i-- {
		l := oldLines[i]
		if l == "" {
			continue
		}
		c := l[0]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == '$' {
			l = strings.TrimRight(l, " \t\r\n")
			if len(l) > 80 {
				l = l[:80]
			}
			return l
		}
	}
	return ""
}

// String renders the patch in unified "diff --git" format.
func (p *Patch) String() string {
	var b strings.Builder
	p.writeTo(&b)
	return b.String()
}

func (p *Patch) writeTo(w io.Writer) {
	dl := p.Delta
	oldPath, newPath := dl.OldFile.Path, dl.NewFile.Path
	if oldPath == "" {
		oldPath = newPath
	}
	if newPath == "" {
		newPath = oldPath
	}
	fmt.Fprintf(w, "diff --git a/%s b/%s\n", oldPath, newPath)

	oldMode, newMode := dl.OldFile.Mode, dl.NewFile.Mode
	switch {
	case !dl.OldFile.Exists():
		fmt.Fprintf(w, "new file mode %s\n", modeOctal(newMode))
	case !dl.NewFile.Exists():
		fmt.Fprintf(w, "deleted file mode %s\n", modeOctal(oldMode))
	case oldMode != newMode:
		fmt.Fprintf(w, "old mode %s\nnew mode %s\n", modeOctal(oldMode), modeOctal(newMode))
	}
	switch dl.Status {
	case Renamed:
		fmt.Fprintf(w, "similarity index %d%%\nrename from %s\nrename to %s\n", dl.Similarity, oldPath, newPath)
	case Copied:
		fmt.Fprintf(w, "similarity index %d%%\ncopy from %s\ncopy to %s\n", dl.Similarity, oldPath, newPath)
	}

	if len(p.Hunks) == 0 && !dl.Binary {
		return
	}
	index := fmt.Sprintf("index %s..%s", shortOrZero(dl.OldFile), shortOrZero(dl.NewFile))
	if dl.OldFile.Exists() && dl.NewFile.Exists() && oldMode == newMode {
		index += " " + modeOctal(oldMode)
	}
	fmt.Fprintln(w, index)

	from, to := "a/"+oldPath, "b/"+newPath
	if !dl.OldFile.Exists() {
		from = "/dev/null"
	}
	if !dl.NewFile.Exists() {
		to = "/dev/null"
	}
	if dl.Binary {
		fmt.Fprintf(w, "Binary files %s and %s differ\n", from, to)
		return
	}
	fmt.Fprintf(w, "--- %s\n+++ %s\n", from, to)
	for _, h := range p.Hunks {
		fmt.Fprintln(w, h.Header)
		for _, l := range h.Lines {
			fmt.Fprintf(w, "%c%s", l.Origin, l.Content)
			if !strings.HasSuffix(l.Content, "\n") {
				fmt.Fprint(w, "\n\\ No newline at end of file\n")
			}
		}
	}
}

func shortOrZero(f DiffFile) string {
	if !f.Exists() || f.Hash.IsZero() {
		return "0000000"
	}
	return f.Hash.Short()
}

// modeOctal renders a tree mode with the leading zero git shows in
// patches for directories.
func modeOctal(mode string) string {
	if mode == object.TreeModeDir {
		return "040000"
	}
	return mode
}

// Format writes every patch to w.
func (d *Diff) Format(w io.Writer) error {
	for p, err := range d.Patches() {
		if err != nil {
			return err
		}
		if p.Delta.Status == Unmodified {
			continue
		}
		p.writeTo(w)
	}
	return nil
}

// FormatNameStatus writes one "<status>\t<path>" line per delta, with
// both paths for renames and copies.
func (d *Diff) FormatNameStatus(w io.Writer) {
	for _, dl := range d.deltas {
		switch dl.Status {
		case Renamed, Copied:
			fmt.Fprintf(w, "%c%03d\t%s\t%s\n", dl.Status.Char(), dl.Similarity, dl.OldFile.Path, dl.NewFile.Path)
		default:
			fmt.Fprintf(w, "%c\t%s\n", dl.Status.Char(), dl.Path())
		}
	}
}
