package repo

import (
	"container/heap"
	"fmt"

	"github.com/odvcencio/weft/pkg/object"
)

const maxMergeBaseSteps = 1_000_000

// mergeBaseStepLimit may be lowered by tests; values outside
// (0, maxMergeBaseSteps] fall back to the hard bound.
var mergeBaseStepLimit = maxMergeBaseSteps

func traversalLimit() int {
	if mergeBaseStepLimit <= 0 || mergeBaseStepLimit > maxMergeBaseSteps {
		return maxMergeBaseSteps
	}
	return mergeBaseStepLimit
}

func stepLimitError(limit int) error {
	return fmt.Errorf("merge base: traversal exceeded %d steps", limit)
}

// MergeBase returns the best common ancestor of a and b: the common
// ancestor with the highest generation number, ties broken by the smaller
// hash. It is commutative and MergeBase(a, a) is a. Histories with no
// common ancestor yield ErrNotFound.
func (r *Repo) MergeBase(a, b object.Hash) (object.Hash, error) {
	if a.IsZero() || b.IsZero() {
		return object.ZeroHash, fmt.Errorf("merge base: %w", ErrInvalid)
	}
	if a == b {
		return a, nil
	}
	g := r.graphState()
	if ans, ok := g.loadBase(a, b); ok {
		if !ans.found {
			return object.ZeroHash, fmt.Errorf("merge base of %s and %s: %w", a.Short(), b.Short(), ErrNotFound)
		}
		return ans.base, nil
	}

	base, found, err := r.findMergeBase(g, a, b)
	if err != nil {
		return object.ZeroHash, err
	}
	g.storeBase(a, b, base, found)
	r.logger.Debug("merge base", "a", a.Short(), "b", b.Short(), "base", base.Short(), "found", found)
	if !found {
		return object.ZeroHash, fmt.Errorf("merge base of %s and %s: %w", a.Short(), b.Short(), ErrNotFound)
	}
	return base, nil
}

func (r *Repo) findMergeBase(g *commitGraph, a, b object.Hash) (object.Hash, bool, error) {
	genA, err := g.generation(a)
	if err != nil {
		return object.ZeroHash, false, fmt.Errorf("merge base: %w", err)
	}
	genB, err := g.generation(b)
	if err != nil {
		return object.ZeroHash, false, fmt.Errorf("merge base: %w", err)
	}

	// Linear histories: the lower side may already contain the other.
	lo, hi, genLo, genHi := a, b, genA, genB
	if genA > genB {
		lo, hi, genLo, genHi = b, a, genB, genA
	}
	if ok, err := isAncestor(g, lo, hi, genLo, genHi); err != nil {
		return object.ZeroHash, false, err
	} else if ok {
		return lo, true, nil
	}
	return walkBothSides(g, a, b, genA, genB)
}

// isAncestor walks back from descendant, skipping commits whose
// generation is already below the ancestor's.
func isAncestor(g *commitGraph, ancestor, descendant object.Hash, genAnc, genDesc uint64) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	if genAnc >= genDesc {
		return false, nil
	}
	limit := traversalLimit()
	seen := map[object.Hash]bool{descendant: true}
	queue := []object.Hash{descendant}
	for steps := 0; len(queue) > 0; steps++ {
		if steps >= limit {
			return false, stepLimitError(limit)
		}
		cur := queue[0]
		queue = queue[1:]
		if cur == ancestor {
			return true, nil
		}
		ps, err := g.parents(cur)
		if err != nil {
			return false, fmt.Errorf("merge base: %w", err)
		}
		for _, p := range ps {
			if seen[p] {
				continue
			}
			seen[p] = true
			pg, err := g.generation(p)
			if err != nil {
				return false, fmt.Errorf("merge base: %w", err)
			}
			if pg < genAnc {
				continue
			}
			queue = append(queue, p)
		}
	}
	return false, nil
}

// walkBothSides expands the two histories in generation order, always
// from the side whose frontier is higher. A commit reached from both sides
// is a candidate; once both frontiers drop below the best candidate no
// better one can appear.
func walkBothSides(g *commitGraph, a, b object.Hash, genA, genB uint64) (object.Hash, bool, error) {
	limit := traversalLimit()
	var sides [2]struct {
		queue genHeap
		seen  map[object.Hash]bool
	}
	sides[0].seen = map[object.Hash]bool{a: true}
	sides[1].seen = map[object.Hash]bool{b: true}
	heap.Push(&sides[0].queue, genItem{hash: a, generation: genA})
	heap.Push(&sides[1].queue, genItem{hash: b, generation: genB})

	var best object.Hash
	var bestGen uint64
	consider := func(h object.Hash, gen uint64) {
		if best.IsZero() || gen > bestGen || (gen == bestGen && h < best) {
			best, bestGen = h, gen
		}
	}

	for steps := 0; sides[0].queue.Len() > 0 || sides[1].queue.Len() > 0; steps++ {
		topA, okA := sides[0].queue.peek()
		topB, okB := sides[1].queue.peek()
		if !best.IsZero() && (!okA || topA.generation < bestGen) && (!okB || topB.generation < bestGen) {
			break
		}
		if steps >= limit {
			return object.ZeroHash, false, stepLimitError(limit)
		}

		side := 0
		switch {
		case !okA:
			side = 1
		case okB && (topB.generation > topA.generation || (topB.generation == topA.generation && topB.hash < topA.hash)):
			side = 1
		}
		self, other := &sides[side], &sides[1-side]
		item := heap.Pop(&self.queue).(genItem)
		if !best.IsZero() && item.generation < bestGen {
			continue
		}
		if other.seen[item.hash] {
			consider(item.hash, item.generation)
		}

		ps, err := g.parents(item.hash)
		if err != nil {
			return object.ZeroHash, false, fmt.Errorf("merge base: %w", err)
		}
		for _, p := range ps {
			if self.seen[p] {
				continue
			}
			pg, err := g.generation(p)
			if err != nil {
				return object.ZeroHash, false, fmt.Errorf("merge base: %w", err)
			}
			if !best.IsZero() && pg < bestGen {
				continue
			}
			self.seen[p] = true
			heap.Push(&self.queue, genItem{hash: p, generation: pg})
			if other.seen[p] {
				consider(p, pg)
			}
		}
	}
	return best, !best.IsZero(), nil
}

// IsDescendantOf reports whether ancestor is reachable from commit. A
// commit is not its own descendant.
func (r *Repo) IsDescendantOf(commit, ancestor object.Hash) (bool, error) {
	if commit == ancestor {
		return false, nil
	}
	g := r.graphState()
	genC, err := g.generation(commit)
	if err != nil {
		return false, fmt.Errorf("descendant of: %w", err)
	}
	genA, err := g.generation(ancestor)
	if err != nil {
		return false, fmt.Errorf("descendant of: %w", err)
	}
	return isAncestor(g, ancestor, commit, genA, genC)
}

// AheadBehind counts the commits reachable from local but not upstream
// (ahead) and the reverse (behind).
func (r *Repo) AheadBehind(local, upstream object.Hash) (ahead, behind int, err error) {
	g := r.graphState()
	fromLocal, err := ancestry(g, local)
	if err != nil {
		return 0, 0, fmt.Errorf("ahead behind: %w", err)
	}
	fromUpstream, err := ancestry(g, upstream)
	if err != nil {
		return 0, 0, fmt.Errorf("ahead behind: %w", err)
	}
	for h := range fromLocal {
		if !fromUpstream[h] {
			ahead++
		}
	}
	for h := range fromUpstream {
		if !fromLocal[h] {
			behind++
		}
	}
	return ahead, behind, nil
}

// ancestry returns tip and every commit reachable from it.
func ancestry(g *commitGraph, tip object.Hash) (map[object.Hash]bool, error) {
	out := make(map[object.Hash]bool)
	if tip.IsZero() {
		return out, nil
	}
	out[tip] = true
	stack := []object.Hash{tip}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		ps, err := g.parents(cur)
		if err != nil {
			return nil, err
		}
		for _, p := range ps {
			if !out[p] {
				out[p] = true
				stack = append(stack, p)
			}
		}
	}
	return out, nil
}
