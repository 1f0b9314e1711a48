package object

import (
	"strings"
	"time"
)

// Hash is a 40-character lowercase hex-encoded SHA-1 object id.
type Hash string

// ObjectType identifies the kind of object stored.
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"
	TypeTree   ObjectType = "tree"
	TypeCommit ObjectType = "commit"
	TypeTag    ObjectType = "tag"
)

// ParseObjectType maps a type name back to its ObjectType.
func ParseObjectType(s string) (ObjectType, bool) {
	switch ObjectType(s) {
	case TypeBlob, TypeTree, TypeCommit, TypeTag:
		return ObjectType(s), true
	}
	return "", false
}

const (
	// Tree mode constants, spelled the way git writes them into trees.
	TreeModeDir        = "40000"
	TreeModeFile       = "100644"
	TreeModeExecutable = "100755"
	TreeModeSymlink    = "120000"
	TreeModeGitlink    = "160000"
)

// NormalizeMode maps the variants git tolerates on read ("040000",
// "100664") onto the canonical spellings.
func NormalizeMode(mode string) string {
	switch mode {
	case "040000", TreeModeDir:
		return TreeModeDir
	case TreeModeExecutable:
		return TreeModeExecutable
	case TreeModeSymlink:
		return TreeModeSymlink
	case TreeModeGitlink:
		return TreeModeGitlink
	case "", TreeModeFile, "100664", "100640":
		return TreeModeFile
	}
	return mode
}

// ModeType reports which object type an entry with the given mode names.
func ModeType(mode string) ObjectType {
	switch NormalizeMode(mode) {
	case TreeModeDir:
		return TypeTree
	case TreeModeGitlink:
		return TypeCommit
	}
	return TypeBlob
}

// Blob holds raw file data.
type Blob struct {
	Data []byte
}

// TreeEntry is one entry in a tree object.
type TreeEntry struct {
	Name string
	Mode string
	Hash Hash
}

// IsDir reports whether the entry is a subtree.
func (e TreeEntry) IsDir() bool {
	return NormalizeMode(e.Mode) == TreeModeDir
}

// TreeObj holds tree entries in git's canonical order.
type TreeObj struct {
	Entries []TreeEntry
}

// Find returns the entry with the given name.
func (t *TreeObj) Find(name string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}

// Signature identifies who made a change and when. When carries the
// original timezone offset.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// ExtraHeader is a commit header weft does not interpret but preserves.
type ExtraHeader struct {
	Key   string
	Value string
}

// CommitObj represents a commit pointing to a tree with metadata.
type CommitObj struct {
	TreeHash     Hash
	Parents      []Hash
	Author       Signature
	Committer    Signature
	Encoding     string
	Signature    string // gpgsig payload, without continuation indentation
	ExtraHeaders []ExtraHeader
	Message      string
}

// Summary returns the first paragraph of the message joined onto one line.
func (c *CommitObj) Summary() string {
	msg := strings.TrimLeft(c.Message, "\n")
	if i := strings.Index(msg, "\n\n"); i >= 0 {
		msg = msg[:i]
	}
	return strings.TrimSpace(strings.Join(strings.Fields(msg), " "))
}

// TagObj is an annotated tag.
type TagObj struct {
	TargetHash Hash
	TargetType ObjectType
	Name       string
	Tagger     *Signature
	Message    string
}
