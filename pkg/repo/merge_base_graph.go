package repo

import (
	"fmt"
	"sync"

	"github.com/odvcencio/weft/pkg/object"
)

// commitGraph memoizes what merge-base queries need from commits: parent
// lists, generation numbers and answered pairs. The store is append-only,
// so nothing it caches goes stale.
type commitGraph struct {
	store *object.Store

	mu          sync.RWMutex
	parentLists map[object.Hash][]object.Hash
	generations map[object.Hash]uint64
	bases       map[basePair]baseAnswer
}

type basePair struct{ left, right object.Hash }

type baseAnswer struct {
	base  object.Hash
	found bool
}

func newCommitGraph(store *object.Store) *commitGraph {
	return &commitGraph{
		store:       store,
		parentLists: make(map[object.Hash][]object.Hash),
		generations: make(map[object.Hash]uint64),
		bases:       make(map[basePair]baseAnswer),
	}
}

// pairKey orders the pair so MergeBase(a, b) and MergeBase(b, a) share an
// answer.
func pairKey(a, b object.Hash) basePair {
	if a <= b {
		return basePair{left: a, right: b}
	}
	return basePair{left: b, right: a}
}

func (g *commitGraph) loadBase(a, b object.Hash) (baseAnswer, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ans, ok := g.bases[pairKey(a, b)]
	return ans, ok
}

func (g *commitGraph) storeBase(a, b, base object.Hash, found bool) {
	g.mu.Lock()
	g.bases[pairKey(a, b)] = baseAnswer{base: base, found: found}
	g.mu.Unlock()
}

func (g *commitGraph) parents(h object.Hash) ([]object.Hash, error) {
	g.mu.RLock()
	ps, ok := g.parentLists[h]
	g.mu.RUnlock()
	if ok {
		return ps, nil
	}
	c, err := g.store.ReadCommit(h)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", h.Short(), err)
	}
	ps = make([]object.Hash, 0, len(c.Parents))
	for _, p := range c.Parents {
		if !p.IsZero() {
			ps = append(ps, p)
		}
	}
	g.mu.Lock()
	g.parentLists[h] = ps
	g.mu.Unlock()
	return ps, nil
}

func (g *commitGraph) loadGeneration(h object.Hash) (uint64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	gen, ok := g.generations[h]
	return gen, ok
}

type genFrame struct {
	hash    object.Hash
	parents []object.Hash
	next    int
}

// generation returns 1 + the largest parent generation; root commits are 1.
// The walk is iterative so deep histories do not grow the goroutine stack.
// A commit reachable from itself is reported as an error.
func (g *commitGraph) generation(h object.Hash) (uint64, error) {
	if gen, ok := g.loadGeneration(h); ok {
		return gen, nil
	}
	ps, err := g.parents(h)
	if err != nil {
		return 0, err
	}
	visiting := map[object.Hash]bool{h: true}
	stack := []genFrame{{hash: h, parents: ps}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(top.parents) {
			p := top.parents[top.next]
			top.next++
			if _, ok := g.loadGeneration(p); ok {
				continue
			}
			if visiting[p] {
				return 0, fmt.Errorf("commit graph cycle detected at %s", p.Hex())
			}
			pps, err := g.parents(p)
			if err != nil {
				return 0, err
			}
			visiting[p] = true
			stack = append(stack, genFrame{hash: p, parents: pps})
			continue
		}
		var gen uint64
		for _, p := range top.parents {
			if pg, _ := g.loadGeneration(p); pg > gen {
				gen = pg
			}
		}
		g.mu.Lock()
		g.generations[top.hash] = gen + 1
		g.mu.Unlock()
		delete(visiting, top.hash)
		stack = stack[:len(stack)-1]
	}
	gen, _ := g.loadGeneration(h)
	return gen, nil
}

type genItem struct {
	hash       object.Hash
	generation uint64
}

// genHeap pops the highest generation first, ties broken by the smaller
// hash so walks are deterministic.
type genHeap []genItem

func (h genHeap) Len() int { return len(h) }

func (h genHeap) Less(i, j int) bool {
	if h[i].generation == h[j].generation {
		return h[i].hash < h[j].hash
	}
	return h[i].generation > h[j].generation
}

func (h genHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *genHeap) Push(x any) { *h = append(*h, x.(genItem)) }

func (h *genHeap) Pop() any {
	old := *h
	item := old[len(old)-1]
	*h = old[:len(old)-1]
	return item
}

func (h genHeap) peek() (genItem, bool) {
	if len(h) == 0 {
		return genItem{}, false
	}
	return h[0], true
}
