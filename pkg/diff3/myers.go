package diff3

import "slices"

// DiffType classifies a line in an edit script.
type DiffType int

const (
	Equal DiffType = iota
	Insert
	Delete
)

// DiffOp is one line of an edit script.
type DiffOp struct {
	Type DiffType
	Line string
}

// MyersDiff returns a shortest line edit script turning a into b. Within
// each changed run all deletions come before all insertions.
func MyersDiff(a, b []string) []DiffOp {
	head := 0
	for head < len(a) && head < len(b) && a[head] == b[head] {
		head++
	}
	tail := 0
	for tail < len(a)-head && tail < len(b)-head && a[len(a)-1-tail] == b[len(b)-1-tail] {
		tail++
	}

	var s script
	s.run(Equal, a[:head])
	s.middle(a[head:len(a)-tail], b[head:len(b)-tail])
	s.run(Equal, a[len(a)-tail:])
	return s.ops
}

type script struct {
	ops []DiffOp
}

func (s *script) run(t DiffType, lines []string) {
	for _, l := range lines {
		s.ops = append(s.ops, DiffOp{Type: t, Line: l})
	}
}

func (s *script) middle(a, b []string) {
	switch {
	case len(a) == 0:
		s.run(Insert, b)
		return
	case len(b) == 0:
		s.run(Delete, a)
		return
	}

	fr := frontiers(a, b)
	steps := make([]DiffOp, 0, len(a)+len(b))
	x, y := len(a), len(b)
	for d := len(fr) - 1; d > 0; d-- {
		prev := fr[d-1]
		at := func(k int) int { return prev[k+d-1] }
		k := x - y
		down := k == -d || (k != d && at(k-1) < at(k+1))
		pk := k - 1
		if down {
			pk = k + 1
		}
		px := at(pk)
		for x > px && y > px-pk {
			x, y = x-1, y-1
			steps = append(steps, DiffOp{Type: Equal, Line: a[x]})
		}
		if down {
			y--
			steps = append(steps, DiffOp{Type: Insert, Line: b[y]})
		} else {
			x--
			steps = append(steps, DiffOp{Type: Delete, Line: a[x]})
		}
	}
	for x > 0 {
		x--
		steps = append(steps, DiffOp{Type: Equal, Line: a[x]})
	}
	slices.Reverse(steps)

	var dels, ins []DiffOp
	flush := func() {
		s.ops = append(append(s.ops, dels...), ins...)
		dels, ins = dels[:0], ins[:0]
	}
	for _, op := range steps {
		switch op.Type {
		case Delete:
			dels = append(dels, op)
		case Insert:
			ins = append(ins, op)
		default:
			flush()
			s.ops = append(s.ops, op)
		}
	}
	flush()
}

// frontiers runs the greedy forward pass until (len(a), len(b)) is reached.
// frontiers(a, b)[d][k+d] is the furthest x on diagonal k after d edits.
func frontiers(a, b []string) [][]int {
	n, m := len(a), len(b)
	off := n + m + 1
	v := make([]int, 2*off+1)
	var out [][]int
	for d := 0; ; d++ {
		done := false
		for k := -d; k <= d && !done; k += 2 {
			var x int
			if k == -d || (k != d && v[off+k-1] < v[off+k+1]) {
				x = v[off+k+1]
			} else {
				x = v[off+k-1] + 1
			}
			for x < n && x-k < m && a[x] == b[x-k] {
				x++
			}
			v[off+k] = x
			done = x >= n && x-k >= m
		}
		out = append(out, slices.Clone(v[off-d:off+d+1]))
		if done {
			return out
		}
	}
}
