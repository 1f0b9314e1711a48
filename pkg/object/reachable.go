package object

import (
	"fmt"
	"maps"
	"slices"
)

// Links returns the ids an object points at: a tag's target, a commit's
// tree and parents, and a tree's entries. Gitlinks name commits of another
// repository and are left out. Blobs link to nothing.
func Links(objType ObjectType, data []byte) ([]Hash, error) {
	switch objType {
	case TypeBlob:
		return nil, nil
	case TypeTag:
		tag, err := UnmarshalTag(data)
		if err != nil {
			return nil, err
		}
		return []Hash{tag.TargetHash}, nil
	case TypeCommit:
		c, err := UnmarshalCommit(data)
		if err != nil {
			return nil, err
		}
		return append([]Hash{c.TreeHash}, c.Parents...), nil
	case TypeTree:
		tr, err := UnmarshalTree(data)
		if err != nil {
			return nil, err
		}
		var out []Hash
		for _, e := range tr.Entries {
			if NormalizeMode(e.Mode) != TreeModeGitlink {
				out = append(out, e.Hash)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("links: unknown object type %q: %w", objType, ErrCorrupt)
}

// ReachableSet walks Links breadth-first from roots and returns every
// object found. Ids referenced from a present object but absent from the
// store come back sorted in missing; absent roots are skipped silently.
func (s *Store) ReachableSet(roots []Hash) (reachable map[Hash]struct{}, missing []Hash, err error) {
	isRoot := make(map[Hash]bool, len(roots))
	queue := make([]Hash, 0, len(roots))
	for _, h := range roots {
		if !h.IsZero() && !isRoot[h] {
			isRoot[h] = true
			queue = append(queue, h)
		}
	}

	reachable = make(map[Hash]struct{}, len(queue))
	absent := make(map[Hash]struct{})
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if _, done := reachable[h]; done {
			continue
		}
		if !s.Has(h) {
			if !isRoot[h] {
				absent[h] = struct{}{}
			}
			continue
		}
		reachable[h] = struct{}{}

		objType, data, err := s.Read(h)
		if err != nil {
			return nil, nil, fmt.Errorf("reachable: %s: %w", h.Short(), err)
		}
		links, err := Links(objType, data)
		if err != nil {
			return nil, nil, fmt.Errorf("reachable: %s %s: %w", objType, h.Short(), err)
		}
		for _, l := range links {
			if !l.IsZero() {
				queue = append(queue, l)
			}
		}
	}
	return reachable, slices.Sorted(maps.Keys(absent)), nil
}
