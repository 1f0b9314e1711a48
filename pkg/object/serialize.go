package object

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Blob
// ---------------------------------------------------------------------------

// MarshalBlob serializes a Blob to raw bytes (identity).
func MarshalBlob(b *Blob) []byte {
	out := make([]byte, len(b.Data))
	copy(out, b.Data)
	return out
}

// UnmarshalBlob deserializes raw bytes into a Blob.
func UnmarshalBlob(data []byte) (*Blob, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return &Blob{Data: out}, nil
}

// ---------------------------------------------------------------------------
// TreeObj
// ---------------------------------------------------------------------------

// MarshalTree serializes a TreeObj in git's binary tree format:
//
//	<mode> <name>\x00<20 raw bytes>
//
// repeated for each entry. Entries are sorted the way git sorts them, with
// subtrees compared as if their name ended in "/", so the encoding does not
// depend on insertion order.
func MarshalTree(tr *TreeObj) ([]byte, error) {
	sorted := make([]TreeEntry, len(tr.Entries))
	copy(sorted, tr.Entries)
	SortTreeEntries(sorted)

	var buf bytes.Buffer
	for i, e := range sorted {
		if err := validateEntryName(e.Name); err != nil {
			return nil, fmt.Errorf("marshal tree: %w", err)
		}
		if i > 0 && sorted[i-1].Name == e.Name {
			return nil, fmt.Errorf("marshal tree: duplicate entry %q", e.Name)
		}
		if e.Hash.IsZero() {
			return nil, fmt.Errorf("marshal tree: entry %q has no object", e.Name)
		}
		buf.WriteString(NormalizeMode(e.Mode))
		buf.WriteByte(' ')
		buf.WriteString(e.Name)
		buf.WriteByte(0)
		buf.Write(e.Hash.Bytes())
	}
	return buf.Bytes(), nil
}

// SortTreeEntries orders entries canonically in place.
func SortTreeEntries(entries []TreeEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return treeSortKey(entries[i]) < treeSortKey(entries[j])
	})
}

func treeSortKey(e TreeEntry) string {
	if e.IsDir() {
		return e.Name + "/"
	}
	return e.Name
}

func validateEntryName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("empty entry name")
	case name == "." || name == "..":
		return fmt.Errorf("invalid entry name %q", name)
	case strings.ContainsAny(name, "/\x00"):
		return fmt.Errorf("invalid entry name %q", name)
	}
	return nil
}

// UnmarshalTree parses git's binary tree format.
func UnmarshalTree(data []byte) (*TreeObj, error) {
	tr := &TreeObj{}
	for len(data) > 0 {
		sp := bytes.IndexByte(data, ' ')
		if sp <= 0 {
			return nil, fmt.Errorf("unmarshal tree: %w: missing mode", ErrCorrupt)
		}
		mode := string(data[:sp])
		data = data[sp+1:]

		nul := bytes.IndexByte(data, 0)
		if nul < 0 {
			return nil, fmt.Errorf("unmarshal tree: %w: unterminated name", ErrCorrupt)
		}
		name := string(data[:nul])
		data = data[nul+1:]

		if len(data) < HashSize {
			return nil, fmt.Errorf("unmarshal tree: %w: truncated id for %q", ErrCorrupt, name)
		}
		h, _ := HashFromBytes(data[:HashSize])
		data = data[HashSize:]

		tr.Entries = append(tr.Entries, TreeEntry{
			Name: name,
			Mode: NormalizeMode(mode),
			Hash: h,
		})
	}
	return tr, nil
}

// ---------------------------------------------------------------------------
// CommitObj
// ---------------------------------------------------------------------------

// MarshalCommit serializes a CommitObj in git's commit format:
//
//	tree H
//	parent H     (zero or more)
//	author SIG
//	committer SIG
//	encoding E   (optional)
//	<extra>      (preserved unknown headers)
//	gpgsig S     (optional, continuation lines indented one space)
//
//	message
func MarshalCommit(c *CommitObj) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.TreeHash.Hex())
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p.Hex())
	}
	fmt.Fprintf(&buf, "author %s\n", c.Author)
	fmt.Fprintf(&buf, "committer %s\n", c.Committer)
	if c.Encoding != "" {
		fmt.Fprintf(&buf, "encoding %s\n", c.Encoding)
	}
	for _, h := range c.ExtraHeaders {
		writeHeader(&buf, h.Key, h.Value)
	}
	if strings.TrimSpace(c.Signature) != "" {
		writeHeader(&buf, "gpgsig", c.Signature)
	}
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	value = strings.TrimSuffix(value, "\n")
	buf.WriteString(key)
	buf.WriteByte(' ')
	buf.WriteString(strings.ReplaceAll(value, "\n", "\n "))
	buf.WriteByte('\n')
}

type header struct {
	key   string
	value string
}

// splitHeaders separates the header block from the message and folds
// continuation lines into their header.
func splitHeaders(data []byte) ([]header, string, error) {
	var block, message string
	if idx := bytes.Index(data, []byte("\n\n")); idx >= 0 {
		block = string(data[:idx])
		message = string(data[idx+2:])
	} else if bytes.HasSuffix(data, []byte("\n")) {
		block = string(data[:len(data)-1])
	} else {
		return nil, "", fmt.Errorf("%w: missing header/message separator", ErrCorrupt)
	}

	var headers []header
	for _, line := range strings.Split(block, "\n") {
		if strings.HasPrefix(line, " ") {
			if len(headers) == 0 {
				return nil, "", fmt.Errorf("%w: continuation line without header", ErrCorrupt)
			}
			headers[len(headers)-1].value += "\n" + line[1:]
			continue
		}
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, "", fmt.Errorf("%w: malformed header line %q", ErrCorrupt, line)
		}
		headers = append(headers, header{key: key, value: val})
	}
	return headers, message, nil
}

// UnmarshalCommit parses a CommitObj from git's commit format.
func UnmarshalCommit(data []byte) (*CommitObj, error) {
	headers, message, err := splitHeaders(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal commit: %w", err)
	}

	c := &CommitObj{Message: message}
	for _, h := range headers {
		switch h.key {
		case "tree":
			if c.TreeHash, err = ParseHash(h.value); err != nil {
				return nil, fmt.Errorf("unmarshal commit: %w", err)
			}
		case "parent":
			p, err := ParseHash(h.value)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: %w", err)
			}
			c.Parents = append(c.Parents, p)
		case "author":
			if c.Author, err = ParseSignature(h.value); err != nil {
				return nil, fmt.Errorf("unmarshal commit: %w", err)
			}
		case "committer":
			if c.Committer, err = ParseSignature(h.value); err != nil {
				return nil, fmt.Errorf("unmarshal commit: %w", err)
			}
		case "encoding":
			c.Encoding = h.value
		case "gpgsig":
			c.Signature = h.value
		default:
			c.ExtraHeaders = append(c.ExtraHeaders, ExtraHeader{Key: h.key, Value: h.value})
		}
	}
	if c.TreeHash.IsZero() {
		return nil, fmt.Errorf("unmarshal commit: %w: missing tree", ErrCorrupt)
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// TagObj
// ---------------------------------------------------------------------------

// MarshalTag serializes an annotated tag:
//
//	object H
//	type T
//	tag NAME
//	tagger SIG   (optional)
//
//	message
func MarshalTag(t *TagObj) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "object %s\n", t.TargetHash.Hex())
	fmt.Fprintf(&buf, "type %s\n", t.TargetType)
	fmt.Fprintf(&buf, "tag %s\n", t.Name)
	if t.Tagger != nil {
		fmt.Fprintf(&buf, "tagger %s\n", *t.Tagger)
	}
	buf.WriteByte('\n')
	buf.WriteString(t.Message)
	return buf.Bytes()
}

// UnmarshalTag parses an annotated tag.
func UnmarshalTag(data []byte) (*TagObj, error) {
	headers, message, err := splitHeaders(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal tag: %w", err)
	}
	t := &TagObj{Message: message}
	for _, h := range headers {
		switch h.key {
		case "object":
			if t.TargetHash, err = ParseHash(h.value); err != nil {
				return nil, fmt.Errorf("unmarshal tag: %w", err)
			}
		case "type":
			typ, ok := ParseObjectType(h.value)
			if !ok {
				return nil, fmt.Errorf("unmarshal tag: %w: unknown type %q", ErrCorrupt, h.value)
			}
			t.TargetType = typ
		case "tag":
			t.Name = h.value
		case "tagger":
			sig, err := ParseSignature(h.value)
			if err != nil {
				return nil, fmt.Errorf("unmarshal tag: %w", err)
			}
			t.Tagger = &sig
		}
	}
	if t.TargetHash.IsZero() {
		return nil, fmt.Errorf("unmarshal tag: %w: missing object", ErrCorrupt)
	}
	return t, nil
}
