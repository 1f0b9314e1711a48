package repo

import (
	"container/heap"
	"fmt"
	"iter"
	"slices"

	"github.com/odvcencio/weft/pkg/object"
)

// SortMode orders the commits a Walker yields. Modes combine as flags.
type SortMode int

const (
	// SortNone yields commits newest first by committer time as they are
	// discovered.
	SortNone SortMode = 0
	// SortTime is SortNone stated explicitly.
	SortTime SortMode = 1 << iota
	// SortTopological never yields a parent before all of its children.
	SortTopological
	// SortReverse yields the final order back to front.
	SortReverse
)

// WalkEntry is one commit produced by a Walker.
type WalkEntry struct {
	Hash   object.Hash
	Commit *object.CommitObj
}

// Walker enumerates the commits reachable from pushed tips and not from
// hidden ones.
type Walker struct {
	r           *Repo
	push        []object.Hash
	hide        []object.Hash
	sort        SortMode
	firstParent bool
}

// Walk returns an empty walker.
func (r *Repo) Walk() *Walker {
	return &Walker{r: r}
}

func (w *Walker) peelCommit(h object.Hash) (object.Hash, error) {
	peeled, typ, err := w.r.Store.Peel(h)
	if err != nil {
		return object.ZeroHash, err
	}
	if typ != object.TypeCommit {
		return object.ZeroHash, fmt.Errorf("%s is a %s: %w", h.Hex(), typ, ErrInvalid)
	}
	return peeled, nil
}

// Push adds a tip to walk from. Tags are peeled.
func (w *Walker) Push(h object.Hash) error {
	c, err := w.peelCommit(h)
	if err != nil {
		return fmt.Errorf("revwalk push: %w", err)
	}
	w.push = append(w.push, c)
	return nil
}

// PushRef pushes the commit a reference resolves to.
func (w *Walker) PushRef(name string) error {
	ref, err := w.r.Resolve(name)
	if err != nil {
		return fmt.Errorf("revwalk push: %w", err)
	}
	return w.Push(ref.Hash)
}

// PushHead pushes HEAD.
func (w *Walker) PushHead() error { return w.PushRef("HEAD") }

// Hide excludes h and its ancestors.
func (w *Walker) Hide(h object.Hash) error {
	c, err := w.peelCommit(h)
	if err != nil {
		return fmt.Errorf("revwalk hide: %w", err)
	}
	w.hide = append(w.hide, c)
	return nil
}

// HideRef hides the commit a reference resolves to.
func (w *Walker) HideRef(name string) error {
	ref, err := w.r.Resolve(name)
	if err != nil {
		return fmt.Errorf("revwalk hide: %w", err)
	}
	return w.Hide(ref.Hash)
}

// Sorting sets the output order.
func (w *Walker) Sorting(mode SortMode) { w.sort = mode }

// SimplifyFirstParent follows only the first parent of merge commits.
func (w *Walker) SimplifyFirstParent() { w.firstParent = true }

// Reset clears tips, hidden commits and options.
func (w *Walker) Reset() {
	w.push, w.hide, w.sort, w.firstParent = nil, nil, SortNone, false
}

func (w *Walker) parentsOf(c *object.CommitObj) []object.Hash {
	if w.firstParent && len(c.Parents) > 1 {
		return c.Parents[:1]
	}
	return c.Parents
}

func (w *Walker) hidden() (map[object.Hash]bool, error) {
	g := w.r.graphState()
	out := make(map[object.Hash]bool)
	for _, h := range w.hide {
		if out[h] {
			continue
		}
		set, err := ancestry(g, h)
		if err != nil {
			return nil, err
		}
		for k := range set {
			out[k] = true
		}
	}
	return out, nil
}

// Seq yields the walk lazily. Time order streams as the graph is
// explored; topological and reverse orders read the whole range first.
func (w *Walker) Seq() iter.Seq2[WalkEntry, error] {
	return func(yield func(WalkEntry, error) bool) {
		hidden, err := w.hidden()
		if err != nil {
			yield(WalkEntry{}, fmt.Errorf("revwalk: %w", err))
			return
		}
		if w.sort&(SortTopological|SortReverse) == 0 {
			for e, err := range w.timeOrder(hidden) {
				if !yield(e, err) || err != nil {
					return
				}
			}
			return
		}

		var all []WalkEntry
		for e, err := range w.timeOrder(hidden) {
			if err != nil {
				yield(WalkEntry{}, err)
				return
			}
			all = append(all, e)
		}
		if w.sort&SortTopological != 0 {
			all = w.topoOrder(all)
		}
		if w.sort&SortReverse != 0 {
			slices.Reverse(all)
		}
		for _, e := range all {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (w *Walker) timeOrder(hidden map[object.Hash]bool) iter.Seq2[WalkEntry, error] {
	return func(yield func(WalkEntry, error) bool) {
		seen := make(map[object.Hash]bool)
		var q commitQueue
		enqueue := func(h object.Hash) error {
			if seen[h] || hidden[h] {
				return nil
			}
			seen[h] = true
			c, err := w.r.Store.ReadCommit(h)
			if err != nil {
				return fmt.Errorf("revwalk: %w", err)
			}
			heap.Push(&q, WalkEntry{Hash: h, Commit: c})
			return nil
		}
		for _, h := range w.push {
			if err := enqueue(h); err != nil {
				yield(WalkEntry{}, err)
				return
			}
		}
		for q.Len() > 0 {
			e := heap.Pop(&q).(WalkEntry)
			if !yield(e, nil) {
				return
			}
			for _, p := range w.parentsOf(e.Commit) {
				if err := enqueue(p); err != nil {
					yield(WalkEntry{}, err)
					return
				}
			}
		}
	}
}

// topoOrder reorders time-ordered entries so children precede parents,
// preferring newer commits among those ready.
func (w *Walker) topoOrder(entries []WalkEntry) []WalkEntry {
	inRange := make(map[object.Hash]bool, len(entries))
	for _, e := range entries {
		inRange[e.Hash] = true
	}
	children := make(map[object.Hash]int, len(entries))
	for _, e := range entries {
		for _, p := range w.parentsOf(e.Commit) {
			if inRange[p] {
				children[p]++
			}
		}
	}
	byHash := make(map[object.Hash]WalkEntry, len(entries))
	var ready commitQueue
	for _, e := range entries {
		byHash[e.Hash] = e
		if children[e.Hash] == 0 {
			heap.Push(&ready, e)
		}
	}
	out := make([]WalkEntry, 0, len(entries))
	for ready.Len() > 0 {
		e := heap.Pop(&ready).(WalkEntry)
		out = append(out, e)
		for _, p := range w.parentsOf(e.Commit) {
			if !inRange[p] {
				continue
			}
			children[p]--
			if children[p] == 0 {
				heap.Push(&ready, byHash[p])
			}
		}
	}
	return out
}

// CommitsWhile collects walk entries until pred returns false or the walk
// ends. The entry pred rejects is not included.
func (w *Walker) CommitsWhile(pred func(WalkEntry) bool) ([]WalkEntry, error) {
	var out []WalkEntry
	for e, err := range w.Seq() {
		if err != nil {
			return nil, err
		}
		if !pred(e) {
			break
		}
		out = append(out, e)
	}
	return out, nil
}

// Log returns up to limit commits reachable from start, newest first. A
// limit of 0 or less means no limit.
func (r *Repo) Log(start object.Hash, limit int) ([]WalkEntry, error) {
	w := r.Walk()
	if err := w.Push(start); err != nil {
		return nil, fmt.Errorf("log: %w", err)
	}
	return w.CommitsWhile(func(WalkEntry) bool {
		if limit <= 0 {
			return true
		}
		limit--
		return limit >= 0
	})
}

// commitQueue is a max-heap by committer time, ties broken by hash.
type commitQueue []WalkEntry

func (q commitQueue) Len() int { return len(q) }
func (q commitQueue) Less(i, j int) bool {
	ti, tj := q[i].Commit.Committer.When, q[j].Commit.Committer.When
	if !ti.Equal(tj) {
		return ti.After(tj)
	}
	return q[i].Hash < q[j].Hash
}
func (q commitQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *commitQueue) Push(x any)   { *q = append(*q, x.(WalkEntry)) }
func (q *commitQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}
