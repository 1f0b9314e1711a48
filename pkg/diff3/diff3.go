// Package diff3 implements line diffs and three-way line merges.
package diff3

import (
	"bytes"
	"strings"
)

// HunkType classifies a hunk in a three-way merge result.
type HunkType int

const (
	HunkClean    HunkType = iota // Hunk was merged cleanly.
	HunkConflict                 // Hunk has a conflict that requires manual resolution.
)

// Hunk is one region of the base that at least one side changed.
type Hunk struct {
	Type                       HunkType
	BaseStart                  int // 0-based first base line of the region
	Base, Ours, Theirs, Merged []byte
}

// Result holds the outcome of a three-way merge.
type Result struct {
	Merged       []byte // Full merged content (with conflict markers if conflicts exist).
	HasConflicts bool   // True if any hunk is a conflict.
	Conflicts    int
	Hunks        []Hunk // Changed regions in document order.
}

// Favor decides how overlapping changes are resolved.
type Favor int

const (
	FavorNone   Favor = iota // write conflict markers
	FavorOurs                // take our side of each conflict
	FavorTheirs              // take their side of each conflict
	FavorUnion               // take both sides, ours first
)

// Style selects the conflict marker layout.
type Style int

const (
	StyleMerge Style = iota // ours and theirs only
	StyleDiff3              // also include the base between ||||||| and =======
)

// Options configures Merge.
type Options struct {
	OursLabel   string
	TheirsLabel string
	BaseLabel   string
	Favor       Favor
	Style       Style
}

func (o Options) withDefaults() Options {
	if o.OursLabel == "" {
		o.OursLabel = "ours"
	}
	if o.TheirsLabel == "" {
		o.TheirsLabel = "theirs"
	}
	if o.BaseLabel == "" {
		o.BaseLabel = "base"
	}
	return o
}

// DiffLine is a single line in the output of LineDiff. Line numbers are
// 1-based; a line absent from one side carries 0 for that side.
type DiffLine struct {
	Type    DiffType
	Content string
	OldLine int
	NewLine int
}

// LineDiff computes a line-level diff between byte slices a and b. Lines
// keep their terminators so a missing final newline is visible.
func LineDiff(a, b []byte) []DiffLine {
	ops := MyersDiff(SplitLines(a), SplitLines(b))

	result := make([]DiffLine, len(ops))
	oldNo, newNo := 0, 0
	for i, op := range ops {
		dl := DiffLine{Type: op.Type, Content: op.Line}
		switch op.Type {
		case Equal:
			oldNo++
			newNo++
			dl.OldLine, dl.NewLine = oldNo, newNo
		case Delete:
			oldNo++
			dl.OldLine = oldNo
		case Insert:
			newNo++
			dl.NewLine = newNo
		}
		result[i] = dl
	}
	return result
}

// SplitLines splits data after each '\n'. Every element keeps its
// terminator except possibly the last.
func SplitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	s := string(data)
	lines := make([]string, 0, strings.Count(s, "\n")+1)
	for len(s) > 0 {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			lines = append(lines, s)
			break
		}
		lines = append(lines, s[:i+1])
		s = s[i+1:]
	}
	return lines
}

// Merge performs a three-way merge of base, ours, and theirs with conflict
// markers labelled "ours" and "theirs".
func Merge(base, ours, theirs []byte) Result {
	return MergeWithOptions(base, ours, theirs, Options{})
}

// edit replaces base[start:end) with lines.
type edit struct {
	start, end int
	lines      []string
}

// editsAgainst turns diff(base, side) into the list of changed regions.
func editsAgainst(base, side []string) []edit {
	ops := MyersDiff(base, side)
	var edits []edit
	pos := 0
	for i := 0; i < len(ops); {
		if ops[i].Type == Equal {
			pos++
			i++
			continue
		}
		e := edit{start: pos}
		for i < len(ops) && ops[i].Type != Equal {
			if ops[i].Type == Delete {
				pos++
			} else {
				e.lines = append(e.lines, ops[i].Line)
			}
			i++
		}
		e.end = pos
		edits = append(edits, e)
	}
	return edits
}

// MergeWithOptions performs a three-way merge.
//
// Both sides are diffed against the base. Regions where only one side
// changed take that side. Changes that overlap or touch are grouped into
// one region; if both sides produced the same text it is taken once,
// otherwise the region is a conflict resolved according to opts.Favor.
func MergeWithOptions(base, ours, theirs []byte, opts Options) Result {
	opts = opts.withDefaults()
	baseLines := SplitLines(base)
	oursEdits := editsAgainst(baseLines, SplitLines(ours))
	theirsEdits := editsAgainst(baseLines, SplitLines(theirs))

	var (
		out    bytes.Buffer
		result Result
		pos    int
		i, j   int
	)
	for i < len(oursEdits) || j < len(theirsEdits) {
		start := len(baseLines)
		if i < len(oursEdits) {
			start = oursEdits[i].start
		}
		if j < len(theirsEdits) && theirsEdits[j].start < start {
			start = theirsEdits[j].start
		}
		end := start
		i0, j0 := i, j
		for grew := true; grew; {
			grew = false
			for i < len(oursEdits) && oursEdits[i].start <= end {
				end = max(end, oursEdits[i].end)
				i++
				grew = true
			}
			for j < len(theirsEdits) && theirsEdits[j].start <= end {
				end = max(end, theirsEdits[j].end)
				j++
				grew = true
			}
		}

		writeLines(&out, baseLines[pos:start])
		pos = end

		baseRegion := baseLines[start:end]
		oursRegion := applyEdits(baseLines, start, end, oursEdits[i0:i])
		theirsRegion := applyEdits(baseLines, start, end, theirsEdits[j0:j])
		hunk := Hunk{
			BaseStart: start,
			Base:      joinLines(baseRegion),
			Ours:      joinLines(oursRegion),
			Theirs:    joinLines(theirsRegion),
		}

		switch {
		case i0 == i:
			hunk.Merged = hunk.Theirs
		case j0 == j, linesEqual(oursRegion, theirsRegion):
			hunk.Merged = hunk.Ours
		default:
			hunk.Merged = resolveConflict(oursRegion, theirsRegion, baseRegion, opts)
			if opts.Favor == FavorNone {
				hunk.Type = HunkConflict
				result.Conflicts++
			}
		}
		out.Write(hunk.Merged)
		result.Hunks = append(result.Hunks, hunk)
	}
	writeLines(&out, baseLines[pos:])

	result.Merged = out.Bytes()
	result.HasConflicts = result.Conflicts > 0
	return result
}

// applyEdits reconstructs one side's text for base[start:end).
func applyEdits(base []string, start, end int, edits []edit) []string {
	var out []string
	cursor := start
	for _, e := range edits {
		out = append(out, base[cursor:e.start]...)
		out = append(out, e.lines...)
		cursor = e.end
	}
	return append(out, base[cursor:end]...)
}

func resolveConflict(ours, theirs, base []string, opts Options) []byte {
	switch opts.Favor {
	case FavorOurs:
		return joinLines(ours)
	case FavorTheirs:
		return joinLines(theirs)
	case FavorUnion:
		var buf bytes.Buffer
		writeLines(&buf, ours)
		ensureNewline(&buf)
		writeLines(&buf, theirs)
		return buf.Bytes()
	}

	// Lines both sides agree on at the edges stay outside the markers.
	head := 0
	for head < len(ours) && head < len(theirs) && ours[head] == theirs[head] {
		head++
	}
	tail := 0
	for tail < len(ours)-head && tail < len(theirs)-head &&
		ours[len(ours)-1-tail] == theirs[len(theirs)-1-tail] {
		tail++
	}

	var buf bytes.Buffer
	writeLines(&buf, ours[:head])
	buf.WriteString("<<<<<<< " + opts.OursLabel + "\n")
	writeLines(&buf, ours[head:len(ours)-tail])
	ensureNewline(&buf)
	if opts.Style == StyleDiff3 {
		buf.WriteString("||||||| " + opts.BaseLabel + "\n")
		writeLines(&buf, base)
		ensureNewline(&buf)
	}
	buf.WriteString("=======\n")
	writeLines(&buf, theirs[head:len(theirs)-tail])
	ensureNewline(&buf)
	buf.WriteString(">>>>>>> " + opts.TheirsLabel + "\n")
	writeLines(&buf, ours[len(ours)-tail:])
	return buf.Bytes()
}

func ensureNewline(buf *bytes.Buffer) {
	if buf.Len() > 0 && buf.Bytes()[buf.Len()-1] != '\n' {
		buf.WriteByte('\n')
	}
}

func writeLines(buf *bytes.Buffer, lines []string) {
	for _, l := range lines {
		buf.WriteString(l)
	}
}

func joinLines(lines []string) []byte {
	if len(lines) == 0 {
		return nil
	}
	var buf bytes.Buffer
	writeLines(&buf, lines)
	return buf.Bytes()
}

func linesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
