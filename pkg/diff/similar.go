package diff

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/odvcencio/weft/pkg/diff3"
)

// FindOptions controls rename and copy detection.
type FindOptions struct {
	Renames bool
	Copies  bool
	// CopiesFromUnmodified also considers unmodified files as copy
	// sources; the diff must include unmodified deltas.
	CopiesFromUnmodified bool
	// ExactOnly skips the content-similarity pass.
	ExactOnly       bool
	RenameThreshold int // default 50
	CopyThreshold   int // default 50
	RenameLimit     int // default 1000
}

func (o FindOptions) withDefaults() FindOptions {
	if !o.Renames && !o.Copies {
		o.Renames = true
	}
	if o.RenameThreshold <= 0 {
		o.RenameThreshold = 50
	}
	if o.CopyThreshold <= 0 {
		o.CopyThreshold = 50
	}
	if o.RenameLimit <= 0 {
		o.RenameLimit = 1000
	}
	return o
}

type similarPair struct {
	score    int
	target   int
	source   int
	isRename bool
}

// FindSimilar rewrites added/deleted pairs into renames and, with Copies,
// added files into copies of modified or unmodified files. Exact content
// matches are paired first, then the remaining candidates are scored
// against each other.
func (d *Diff) FindSimilar(opts FindOptions) error {
	opts = opts.withDefaults()

	var targets, deleted, copySources []int
	for i, dl := range d.deltas {
		switch dl.Status {
		case Added:
			targets = append(targets, i)
		case Deleted:
			deleted = append(deleted, i)
		case Modified:
			copySources = append(copySources, i)
		case Unmodified:
			if opts.CopiesFromUnmodified {
				copySources = append(copySources, i)
			}
		}
	}
	if len(targets) == 0 {
		return nil
	}

	matched := make(map[int]similarPair) // target -> chosen source
	usedDeleted := make(map[int]bool)

	// Exact renames, then exact copies.
	if opts.Renames {
		byHash := make(map[string][]int)
		for _, s := range deleted {
			byHash[string(d.deltas[s].OldFile.Hash)] = append(byHash[string(d.deltas[s].OldFile.Hash)], s)
		}
		for _, t := range targets {
			for _, s := range byHash[string(d.deltas[t].NewFile.Hash)] {
				if !usedDeleted[s] {
					usedDeleted[s] = true
					matched[t] = similarPair{score: 100, target: t, source: s, isRename: true}
					break
				}
			}
		}
	}
	if opts.Copies {
		for _, t := range targets {
			if _, ok := matched[t]; ok {
				continue
			}
			for _, s := range copySources {
				if d.deltas[s].OldFile.Hash == d.deltas[t].NewFile.Hash {
					matched[t] = similarPair{score: 100, target: t, source: s}
					break
				}
			}
		}
	}

	if !opts.ExactOnly {
		if err := d.findInexact(opts, targets, deleted, copySources, matched, usedDeleted); err != nil {
			return fmt.Errorf("find similar: %w", err)
		}
	}

	if len(matched) == 0 {
		return nil
	}
	drop := make(map[int]bool)
	for t, m := range matched {
		src := d.deltas[m.source]
		dl := d.deltas[t]
		dl.OldFile = src.OldFile
		dl.Similarity = m.score
		if m.isRename {
			dl.Status = Renamed
			drop[m.source] = true
		} else {
			dl.Status = Copied
		}
		d.deltas[t] = dl
	}
	kept := d.deltas[:0]
	for i, dl := range d.deltas {
		if !drop[i] {
			kept = append(kept, dl)
		}
	}
	d.deltas = kept
	d.sort()
	return nil
}

func (d *Diff) findInexact(opts FindOptions, targets, deleted, copySources []int, matched map[int]similarPair, usedDeleted map[int]bool) error {
	var openTargets []int
	for _, t := range targets {
		if _, ok := matched[t]; !ok {
			openTargets = append(openTargets, t)
		}
	}
	var sources []int
	if opts.Renames {
		for _, s := range deleted {
			if !usedDeleted[s] {
				sources = append(sources, s)
			}
		}
	}
	if opts.Copies {
		sources = append(sources, copySources...)
	}
	if len(openTargets) == 0 || len(sources) == 0 {
		return nil
	}
	if len(openTargets) > opts.RenameLimit || len(sources) > opts.RenameLimit {
		return nil
	}

	sigs := make(map[int]*signature)
	sig := func(i int, old bool) (*signature, error) {
		key := i
		if old {
			key = -i - 1
		}
		if s, ok := sigs[key]; ok {
			return s, nil
		}
		f := d.deltas[i].NewFile
		if old {
			f = d.deltas[i].OldFile
		}
		data, err := d.content(f)
		if err != nil {
			return nil, err
		}
		s := newSignature(data)
		sigs[key] = s
		return s, nil
	}

	var pairs []similarPair
	for _, t := range openTargets {
		ts, err := sig(t, false)
		if err != nil {
			return err
		}
		for _, s := range sources {
			ss, err := sig(s, true)
			if err != nil {
				return err
			}
			isRename := d.deltas[s].Status == Deleted
			threshold := opts.CopyThreshold
			if isRename {
				threshold = opts.RenameThreshold
			}
			if score := ss.similarity(ts); score >= threshold {
				pairs = append(pairs, similarPair{score: score, target: t, source: s, isRename: isRename})
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].score != pairs[j].score {
			return pairs[i].score > pairs[j].score
		}
		if pairs[i].isRename != pairs[j].isRename {
			return pairs[i].isRename
		}
		return false
	})
	for _, p := range pairs {
		if _, ok := matched[p.target]; ok {
			continue
		}
		if p.isRename {
			if usedDeleted[p.source] {
				continue
			}
			usedDeleted[p.source] = true
		}
		matched[p.target] = p
	}
	return nil
}

// signature summarizes content as byte counts per line hash.
type signature struct {
	size   int
	binary bool
	chunks map[uint64]int
}

func newSignature(data []byte) *signature {
	s := &signature{size: len(data), binary: IsBinary(data), chunks: make(map[uint64]int)}
	if s.binary {
		return s
	}
	for _, line := range diff3.SplitLines(data) {
		h := fnv.New64a()
		h.Write([]byte(line))
		s.chunks[h.Sum64()] += len(line)
	}
	return s
}

// similarity scores 0-100 as the bytes the two contents share over the
// larger size.
func (s *signature) similarity(o *signature) int {
	if s.binary || o.binary || s.size == 0 || o.size == 0 {
		return 0
	}
	larger := max(s.size, o.size)
	common := 0
	for h, n := range s.chunks {
		if m, ok := o.chunks[h]; ok {
			common += min(n, m)
		}
	}
	return common * 100 / larger
}
