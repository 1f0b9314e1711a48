package repo

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"os"
	"path"
	"strings"

	"github.com/odvcencio/weft/pkg/object"
)

// ReflogEntry is one line of a reference's log.
type ReflogEntry struct {
	Old       object.Hash
	New       object.Hash
	Committer object.Signature
	Message   string
}

func reflogPath(name string) string { return path.Join("logs", name) }

func formatReflogEntry(e ReflogEntry) string {
	msg := strings.ReplaceAll(strings.TrimRight(e.Message, "\n"), "\n", " ")
	return fmt.Sprintf("%s %s %s\t%s\n", e.Old.Hex(), e.New.Hex(), e.Committer, msg)
}

func parseReflogLine(line string) (ReflogEntry, error) {
	head, msg, _ := strings.Cut(line, "\t")
	const hexLen = object.HashSize * 2
	if len(head) < 2*hexLen+2 || head[hexLen] != ' ' || head[2*hexLen+1] != ' ' {
		return ReflogEntry{}, fmt.Errorf("reflog line %q: %w", line, object.ErrCorrupt)
	}
	oldHash, err := object.ParseHash(head[:hexLen])
	if err != nil {
		return ReflogEntry{}, fmt.Errorf("reflog line: %w", err)
	}
	newHash, err := object.ParseHash(head[hexLen+1 : 2*hexLen+1])
	if err != nil {
		return ReflogEntry{}, fmt.Errorf("reflog line: %w", err)
	}
	who, err := object.ParseSignature(head[2*hexLen+2:])
	if err != nil {
		return ReflogEntry{}, fmt.Errorf("reflog line: %w", err)
	}
	return ReflogEntry{Old: oldHash, New: newHash, Committer: who, Message: msg}, nil
}

// shouldCreateReflog applies core.logAllRefUpdates to a reference that has
// no log yet.
func (r *Repo) shouldCreateReflog(name string) bool {
	switch r.config.LogAllRefUpdates() {
	case "always":
		return true
	case "true":
		return name == "HEAD" ||
			strings.HasPrefix(name, "refs/heads/") ||
			strings.HasPrefix(name, "refs/remotes/") ||
			strings.HasPrefix(name, "refs/notes/")
	}
	return false
}

// appendReflog adds one entry to the log of name. Existing logs are always
// appended; missing ones are created according to core.logAllRefUpdates.
func (r *Repo) appendReflog(name string, old, new object.Hash, who object.Signature, message string) error {
	p := reflogPath(name)
	if !r.hasGitFile(p) && !r.shouldCreateReflog(name) {
		return nil
	}
	if err := r.dotgit.MkdirAll(path.Dir(p), 0o755); err != nil {
		return fmt.Errorf("reflog %s: mkdir: %w", name, err)
	}
	f, err := r.dotgit.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reflog %s: open: %w", name, err)
	}
	line := formatReflogEntry(ReflogEntry{Old: old, New: new, Committer: who, Message: message})
	if _, err := f.Write([]byte(line)); err != nil {
		f.Close()
		return fmt.Errorf("reflog %s: write: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("reflog %s: close: %w", name, err)
	}
	return nil
}

func (r *Repo) readReflogLines(name string) ([]string, error) {
	data, err := r.readGitFile(reflogPath(name))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, l := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

// Reflog yields the entries of name's log newest first. A reference
// without a log yields nothing. Entries are parsed as they are pulled.
func (r *Repo) Reflog(name string) iter.Seq2[ReflogEntry, error] {
	return func(yield func(ReflogEntry, error) bool) {
		lines, err := r.readReflogLines(name)
		if err != nil {
			yield(ReflogEntry{}, fmt.Errorf("reflog %s: %w", name, err))
			return
		}
		for i := len(lines) - 1; i >= 0; i-- {
			e, err := parseReflogLine(lines[i])
			if !yield(e, err) || err != nil {
				return
			}
		}
	}
}

// ReflogEntries collects the whole log of name, newest first.
func (r *Repo) ReflogEntries(name string) ([]ReflogEntry, error) {
	var out []ReflogEntry
	for e, err := range r.Reflog(name) {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// DropReflogEntry removes entry i (0 is the newest). With rewritePrevious
// the next newer entry's old value is patched so the chain has no hole.
func (r *Repo) DropReflogEntry(name string, i int, rewritePrevious bool) error {
	entries, err := r.ReflogEntries(name)
	if err != nil {
		return fmt.Errorf("drop reflog entry: %w", err)
	}
	if i < 0 || i >= len(entries) {
		return fmt.Errorf("drop reflog entry %s@{%d}: %w", name, i, ErrNotFound)
	}
	entries = append(entries[:i], entries[i+1:]...)
	if rewritePrevious && i > 0 && len(entries) > 0 {
		newer := &entries[i-1]
		if i == len(entries) {
			newer.Old = object.ZeroHash
		} else {
			newer.Old = entries[i].New
		}
	}

	var buf bytes.Buffer
	for j := len(entries) - 1; j >= 0; j-- {
		buf.WriteString(formatReflogEntry(entries[j]))
	}
	if err := r.writeGitFile(reflogPath(name), buf.Bytes()); err != nil {
		return fmt.Errorf("drop reflog entry: %w", err)
	}
	return nil
}

// DeleteReflog removes the log of name. A missing log is not an error.
func (r *Repo) DeleteReflog(name string) error {
	if err := r.removeGitFile(reflogPath(name)); err != nil {
		return fmt.Errorf("delete reflog: %w", err)
	}
	return nil
}
