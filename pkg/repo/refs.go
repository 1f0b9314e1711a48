package repo

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/odvcencio/weft/pkg/object"
)

// ReferenceType distinguishes direct references from symbolic ones.
type ReferenceType int

const (
	HashReference ReferenceType = iota + 1
	SymbolicReference
)

// Reference is a named pointer to an object or, when symbolic, to another
// reference.
type Reference struct {
	Name   string
	Type   ReferenceType
	Hash   object.Hash // HashReference only
	Target string      // SymbolicReference only
}

// IsSymbolic reports whether the reference names another reference.
func (ref *Reference) IsSymbolic() bool { return ref.Type == SymbolicReference }

// IsBranch reports whether the reference lives under refs/heads/.
func (ref *Reference) IsBranch() bool { return strings.HasPrefix(ref.Name, "refs/heads/") }

// IsTag reports whether the reference lives under refs/tags/.
func (ref *Reference) IsTag() bool { return strings.HasPrefix(ref.Name, "refs/tags/") }

// IsRemote reports whether the reference lives under refs/remotes/.
func (ref *Reference) IsRemote() bool { return strings.HasPrefix(ref.Name, "refs/remotes/") }

// Shorthand returns ShortRefName(ref.Name).
func (ref *Reference) Shorthand() string { return ShortRefName(ref.Name) }

// ShortRefName strips the refs/heads/, refs/tags/, refs/remotes/ or refs/
// prefix from name.
func ShortRefName(name string) string {
	for _, p := range []string{"refs/heads/", "refs/tags/", "refs/remotes/", "refs/"} {
		if strings.HasPrefix(name, p) {
			return strings.TrimPrefix(name, p)
		}
	}
	return name
}

func (ref *Reference) String() string {
	if ref.IsSymbolic() {
		return "ref: " + ref.Target
	}
	return ref.Hash.Hex()
}

const (
	// maxSymbolicDepth bounds how many symbolic hops Resolve follows.
	maxSymbolicDepth = 10
	packedRefsFile   = "packed-refs"

	refLockRetryDelay = 5 * time.Millisecond
	refLockWaitLimit  = 2 * time.Second
)

// ValidateRefName checks name against git's reference naming rules. Names
// are either under refs/ or all-caps pseudo refs like HEAD and MERGE_HEAD.
func ValidateRefName(name string) error {
	bad := func(why string) error {
		return fmt.Errorf("ref name %q: %s: %w", name, why, ErrInvalid)
	}
	if name == "" {
		return bad("empty")
	}
	if !strings.HasPrefix(name, "refs/") {
		for _, c := range name {
			if (c < 'A' || c > 'Z') && c != '_' {
				return bad("must start with refs/ or be an upper-case pseudo ref")
			}
		}
		return nil
	}
	if strings.HasSuffix(name, "/") || strings.HasSuffix(name, ".") {
		return bad("bad ending")
	}
	if strings.Contains(name, "..") || strings.Contains(name, "@{") || strings.Contains(name, "//") {
		return bad("forbidden sequence")
	}
	for _, c := range name {
		if c < 0x20 || c == 0x7f || strings.ContainsRune(" ~^:?*[\\", c) {
			return bad("forbidden character")
		}
	}
	for _, part := range strings.Split(name, "/") {
		if strings.HasPrefix(part, ".") || strings.HasSuffix(part, ".lock") {
			return bad("bad component")
		}
	}
	return nil
}

func parseRefContent(name string, data []byte) (*Reference, error) {
	content := strings.TrimSpace(string(data))
	if target, ok := strings.CutPrefix(content, "ref:"); ok {
		return &Reference{Name: name, Type: SymbolicReference, Target: strings.TrimSpace(target)}, nil
	}
	h, err := object.ParseHash(content)
	if err != nil {
		return nil, fmt.Errorf("ref %s: %w", name, err)
	}
	return &Reference{Name: name, Type: HashReference, Hash: h}, nil
}

// Lookup reads one reference without following it, from its loose file
// first and packed-refs second.
func (r *Repo) Lookup(name string) (*Reference, error) {
	if err := ValidateRefName(name); err != nil {
		return nil, fmt.Errorf("lookup: %w", err)
	}
	ref, err := r.readLooseRef(name)
	if err == nil {
		return ref, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("lookup %s: %w", name, err)
	}
	packed, err := r.packedRefs()
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", name, err)
	}
	if h, ok := packed[name]; ok {
		return &Reference{Name: name, Type: HashReference, Hash: h}, nil
	}
	return nil, fmt.Errorf("reference %s: %w", name, ErrNotFound)
}

func (r *Repo) readLooseRef(name string) (*Reference, error) {
	data, err := r.readGitFile(name)
	if err != nil {
		return nil, err
	}
	return parseRefContent(name, data)
}

// packedRefs parses packed-refs. Peeled lines are skipped.
func (r *Repo) packedRefs() (map[string]object.Hash, error) {
	data, err := r.readGitFile(packedRefsFile)
	if errors.Is(err, ErrNotFound) {
		return map[string]object.Hash{}, nil
	}
	if err != nil {
		return nil, err
	}
	refs := make(map[string]object.Hash)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == '#' || line[0] == '^' {
			continue
		}
		hex, name, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("packed-refs: malformed line %q: %w", line, object.ErrCorrupt)
		}
		h, err := object.ParseHash(hex)
		if err != nil {
			return nil, fmt.Errorf("packed-refs: %w", err)
		}
		refs[name] = h
	}
	return refs, sc.Err()
}

// Resolve follows symbolic references to a direct one. When the chain is
// longer than maxSymbolicDepth or ends at a missing reference, the last
// reference reached is returned together with an error wrapping
// ErrNotFound.
func (r *Repo) Resolve(name string) (*Reference, error) {
	ref, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	for depth := 0; ref.IsSymbolic(); depth++ {
		if depth >= maxSymbolicDepth {
			return ref, fmt.Errorf("resolve %s: symbolic chain deeper than %d: %w", name, maxSymbolicDepth, ErrNotFound)
		}
		next, err := r.Lookup(ref.Target)
		if err != nil {
			return ref, fmt.Errorf("resolve %s: %w", name, err)
		}
		ref = next
	}
	return ref, nil
}

// terminalOf returns the direct reference name's chain ends at, which may
// not exist yet, and its current value.
func (r *Repo) terminalOf(name string) (string, object.Hash, error) {
	cur := name
	for depth := 0; ; depth++ {
		ref, err := r.Lookup(cur)
		if errors.Is(err, ErrNotFound) {
			return cur, object.ZeroHash, nil
		}
		if err != nil {
			return "", object.ZeroHash, err
		}
		if !ref.IsSymbolic() {
			return cur, ref.Hash, nil
		}
		if depth >= maxSymbolicDepth {
			return "", object.ZeroHash, fmt.Errorf("symbolic chain from %s deeper than %d: %w", name, maxSymbolicDepth, ErrNotFound)
		}
		cur = ref.Target
	}
}

func acquireRefLock(fs billy.Filesystem, lockPath string) (billy.File, error) {
	deadline := time.Now().Add(refLockWaitLimit)
	for {
		f, err := fs.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if errors.Is(err, os.ErrExist) {
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("timeout waiting for lock %q", lockPath)
			}
			time.Sleep(refLockRetryDelay)
			continue
		}
		return nil, err
	}
}

// writeRef replaces the loose file of name with content while holding
// name.lock. check sees the current value (nil when absent) under the lock
// and can veto the write.
func (r *Repo) writeRef(name, content string, check func(old *Reference) error) (*Reference, error) {
	if err := ValidateRefName(name); err != nil {
		return nil, err
	}
	if dir := path.Dir(name); dir != "." {
		if err := r.dotgit.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir: %w", err)
		}
	}
	lockPath := name + ".lock"
	lock, err := acquireRefLock(r.dotgit, lockPath)
	if err != nil {
		return nil, fmt.Errorf("lock: %w", err)
	}
	committed := false
	defer func() {
		if lock != nil {
			_ = lock.Close()
		}
		if !committed {
			_ = r.dotgit.Remove(lockPath)
		}
	}()

	old, err := r.Lookup(name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		old = nil
	}
	if check != nil {
		if err := check(old); err != nil {
			return nil, err
		}
	}

	if _, err := lock.Write([]byte(content)); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	if s, ok := lock.(interface{ Sync() error }); ok {
		if err := s.Sync(); err != nil {
			return nil, fmt.Errorf("sync: %w", err)
		}
	}
	err = lock.Close()
	lock = nil
	if err != nil {
		return nil, fmt.Errorf("close: %w", err)
	}
	if err := r.dotgit.Rename(lockPath, name); err != nil {
		return nil, fmt.Errorf("rename: %w", err)
	}
	committed = true
	return old, nil
}

func refHash(ref *Reference) object.Hash {
	if ref == nil || ref.IsSymbolic() {
		return object.ZeroHash
	}
	return ref.Hash
}

// UpdateTerminal points the direct reference at the end of name's symbolic
// chain at h, creating it when the chain ends at an unborn branch. One
// reflog entry is appended to the terminal reference and, when it differs,
// one to name. The reference write and the reflog append are separate
// steps: a failed append returns *RefUpdateReflogError with the reference
// already moved.
func (r *Repo) UpdateTerminal(name string, h object.Hash, sig *object.Signature, message string) error {
	return r.updateTerminal(name, h, nil, sig, message)
}

// updateTerminal is UpdateTerminal with an optional compare-and-swap on the
// terminal's current value; a ZeroHash expectation means it must not
// exist.
func (r *Repo) updateTerminal(name string, h object.Hash, expect *object.Hash, sig *object.Signature, message string) error {
	terminal, _, err := r.terminalOf(name)
	if err != nil {
		return fmt.Errorf("update ref %s: %w", name, err)
	}
	old, err := r.writeRef(terminal, h.Hex()+"\n", func(old *Reference) error {
		if expect != nil && refHash(old) != *expect {
			return fmt.Errorf("%w (expected %s, found %s)", ErrRefCASMismatch, expect.Hex(), refHash(old).Hex())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update ref %s: %w", terminal, err)
	}
	oldHash := refHash(old)
	r.logger.Debug("updated ref", "ref", terminal, "old", oldHash.Short(), "new", h.Short())

	who := r.signatureOr(sig)
	if err := r.appendReflog(terminal, oldHash, h, who, message); err != nil {
		return &RefUpdateReflogError{Ref: terminal, OldHash: oldHash, NewHash: h, Err: err}
	}
	if name != terminal {
		if err := r.appendReflog(name, oldHash, h, who, message); err != nil {
			return &RefUpdateReflogError{Ref: name, OldHash: oldHash, NewHash: h, Err: err}
		}
	}
	return nil
}

// CreateReference writes a direct reference. Without force an existing
// reference is an ErrExists error.
func (r *Repo) CreateReference(name string, h object.Hash, force bool, message string) (*Reference, error) {
	if !r.Store.Has(h) {
		return nil, fmt.Errorf("create reference %s: target %s: %w", name, h.Hex(), ErrNotFound)
	}
	old, err := r.writeRef(name, h.Hex()+"\n", func(old *Reference) error {
		if old != nil && !force {
			return fmt.Errorf("reference %s: %w", name, ErrExists)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create reference %s: %w", name, err)
	}
	if err := r.appendReflog(name, refHash(old), h, r.signatureOr(nil), message); err != nil {
		return nil, &RefUpdateReflogError{Ref: name, OldHash: refHash(old), NewHash: h, Err: err}
	}
	return &Reference{Name: name, Type: HashReference, Hash: h}, nil
}

// CreateSymbolicReference writes a reference naming target. The reflog of
// name records the change of its resolved value when message is set.
func (r *Repo) CreateSymbolicReference(name, target string, force bool, message string) (*Reference, error) {
	if err := ValidateRefName(target); err != nil {
		return nil, fmt.Errorf("create symbolic reference %s: %w", name, err)
	}
	oldHash := object.ZeroHash
	if ref, err := r.Resolve(name); err == nil {
		oldHash = ref.Hash
	}
	_, err := r.writeRef(name, "ref: "+target+"\n", func(old *Reference) error {
		if old != nil && !force {
			return fmt.Errorf("reference %s: %w", name, ErrExists)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create symbolic reference %s: %w", name, err)
	}
	if message != "" {
		newHash := object.ZeroHash
		if ref, err := r.Resolve(target); err == nil {
			newHash = ref.Hash
		}
		if err := r.appendReflog(name, oldHash, newHash, r.signatureOr(nil), message); err != nil {
			return nil, &RefUpdateReflogError{Ref: name, OldHash: oldHash, NewHash: newHash, Err: err}
		}
	}
	return &Reference{Name: name, Type: SymbolicReference, Target: target}, nil
}

// DeleteReference removes a reference from the loose files and
// packed-refs, along with its reflog.
func (r *Repo) DeleteReference(name string) error {
	if err := ValidateRefName(name); err != nil {
		return fmt.Errorf("delete reference: %w", err)
	}
	lockPath := name + ".lock"
	lock, err := acquireRefLock(r.dotgit, lockPath)
	if err != nil {
		return fmt.Errorf("delete reference %s: lock: %w", name, err)
	}
	lock.Close()
	defer r.dotgit.Remove(lockPath)

	found := false
	if r.hasGitFile(name) {
		if err := r.dotgit.Remove(name); err != nil {
			return fmt.Errorf("delete reference %s: %w", name, err)
		}
		found = true
	}
	removed, err := r.rewritePackedRefs(func(refs map[string]object.Hash) bool {
		if _, ok := refs[name]; !ok {
			return false
		}
		delete(refs, name)
		return true
	})
	if err != nil {
		return fmt.Errorf("delete reference %s: %w", name, err)
	}
	if !found && !removed {
		return fmt.Errorf("delete reference %s: %w", name, ErrNotFound)
	}
	if err := r.DeleteReflog(name); err != nil {
		return fmt.Errorf("delete reference %s: %w", name, err)
	}
	r.logger.Debug("deleted ref", "ref", name)
	return nil
}

// rewritePackedRefs applies edit under packed-refs.lock and writes the
// file back when edit reports a change.
func (r *Repo) rewritePackedRefs(edit func(map[string]object.Hash) bool) (bool, error) {
	lockPath := packedRefsFile + ".lock"
	lock, err := acquireRefLock(r.dotgit, lockPath)
	if err != nil {
		return false, fmt.Errorf("packed-refs: lock: %w", err)
	}
	committed := false
	defer func() {
		lock.Close()
		if !committed {
			_ = r.dotgit.Remove(lockPath)
		}
	}()

	refs, err := r.packedRefs()
	if err != nil {
		return false, err
	}
	if !edit(refs) {
		return false, nil
	}
	if _, err := lock.Write(encodePackedRefs(refs)); err != nil {
		return false, fmt.Errorf("packed-refs: write: %w", err)
	}
	if err := lock.Close(); err != nil {
		return false, fmt.Errorf("packed-refs: close: %w", err)
	}
	if err := r.dotgit.Rename(lockPath, packedRefsFile); err != nil {
		return false, fmt.Errorf("packed-refs: rename: %w", err)
	}
	committed = true
	return true, nil
}

func encodePackedRefs(refs map[string]object.Hash) []byte {
	names := make([]string, 0, len(refs))
	for n := range refs {
		names = append(names, n)
	}
	sort.Strings(names)
	var buf bytes.Buffer
	buf.WriteString("# pack-refs with: sorted \n")
	for _, n := range names {
		fmt.Fprintf(&buf, "%s %s\n", refs[n].Hex(), n)
	}
	return buf.Bytes()
}

// PackRefs moves every loose direct reference under refs/ into
// packed-refs.
func (r *Repo) PackRefs() error {
	loose, err := r.looseRefNames("refs")
	if err != nil {
		return fmt.Errorf("pack refs: %w", err)
	}
	var packed []string
	_, err = r.rewritePackedRefs(func(refs map[string]object.Hash) bool {
		for _, name := range loose {
			ref, err := r.readLooseRef(name)
			if err != nil || ref.IsSymbolic() {
				continue
			}
			refs[name] = ref.Hash
			packed = append(packed, name)
		}
		return len(packed) > 0
	})
	if err != nil {
		return fmt.Errorf("pack refs: %w", err)
	}
	for _, name := range packed {
		if err := r.removeGitFile(name); err != nil {
			return fmt.Errorf("pack refs: %w", err)
		}
	}
	return nil
}

func (r *Repo) looseRefNames(dir string) ([]string, error) {
	infos, err := r.dotgit.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, info := range infos {
		full := path.Join(dir, info.Name())
		if info.IsDir() {
			sub, err := r.looseRefNames(full)
			if err != nil {
				return nil, err
			}
			names = append(names, sub...)
			continue
		}
		if strings.HasSuffix(full, ".lock") || strings.Contains(info.Name(), ".tmp-") {
			continue
		}
		names = append(names, full)
	}
	return names, nil
}

// References lists loose and packed references whose names start with
// prefix, sorted by name. Loose files shadow packed entries.
func (r *Repo) References(prefix string) ([]*Reference, error) {
	loose, err := r.looseRefNames("refs")
	if err != nil {
		return nil, fmt.Errorf("references: %w", err)
	}
	byName := make(map[string]*Reference)
	packed, err := r.packedRefs()
	if err != nil {
		return nil, fmt.Errorf("references: %w", err)
	}
	for name, h := range packed {
		byName[name] = &Reference{Name: name, Type: HashReference, Hash: h}
	}
	for _, name := range loose {
		ref, err := r.readLooseRef(name)
		if err != nil {
			return nil, fmt.Errorf("references: %w", err)
		}
		byName[name] = ref
	}
	out := make([]*Reference, 0, len(byName))
	for name, ref := range byName {
		if strings.HasPrefix(name, prefix) {
			out = append(out, ref)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Head returns HEAD without following it.
func (r *Repo) Head() (*Reference, error) {
	return r.Lookup("HEAD")
}

// HeadHash resolves HEAD to a commit. An unborn branch yields ErrNotFound.
func (r *Repo) HeadHash() (object.Hash, error) {
	ref, err := r.Resolve("HEAD")
	if err != nil {
		return object.ZeroHash, fmt.Errorf("resolve HEAD: %w", err)
	}
	return ref.Hash, nil
}

// IsHeadDetached reports whether HEAD holds a hash instead of a branch.
func (r *Repo) IsHeadDetached() bool {
	ref, err := r.Head()
	return err == nil && !ref.IsSymbolic()
}

// IsHeadUnborn reports whether HEAD names a branch that does not exist.
func (r *Repo) IsHeadUnborn() bool {
	_, err := r.Resolve("HEAD")
	return errors.Is(err, ErrNotFound)
}

// CurrentBranch returns the short name of the branch HEAD points at, or ""
// when HEAD is detached.
func (r *Repo) CurrentBranch() (string, error) {
	ref, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("current branch: %w", err)
	}
	if !ref.IsSymbolic() || !strings.HasPrefix(ref.Target, "refs/heads/") {
		return "", nil
	}
	return strings.TrimPrefix(ref.Target, "refs/heads/"), nil
}

func (r *Repo) headDescription() string {
	ref, err := r.Head()
	if err != nil {
		return "HEAD"
	}
	if ref.IsSymbolic() {
		return ShortRefName(ref.Target)
	}
	return ref.Hash.Hex()
}

// SetHead makes HEAD point at refname, which may be an unborn branch.
func (r *Repo) SetHead(refname string) error {
	from := r.headDescription()
	msg := fmt.Sprintf("checkout: moving from %s to %s", from, ShortRefName(refname))
	if _, err := r.CreateSymbolicReference("HEAD", refname, true, msg); err != nil {
		return fmt.Errorf("set head: %w", err)
	}
	return nil
}

// SetHeadDetached points HEAD directly at commit h.
func (r *Repo) SetHeadDetached(h object.Hash) error {
	return r.setHeadDetached(h, fmt.Sprintf("checkout: moving from %s to %s", r.headDescription(), h.Hex()))
}

func (r *Repo) setHeadDetached(h object.Hash, message string) error {
	peeled, typ, err := r.Store.Peel(h)
	if err != nil {
		return fmt.Errorf("set head detached: %w", err)
	}
	if typ != object.TypeCommit {
		return fmt.Errorf("set head detached: %s is a %s: %w", h.Hex(), typ, ErrInvalid)
	}
	old, err := r.writeRef("HEAD", peeled.Hex()+"\n", nil)
	if err != nil {
		return fmt.Errorf("set head detached: %w", err)
	}
	oldHash := refHash(old)
	if old != nil && old.IsSymbolic() {
		if ref, err := r.Resolve(old.Target); err == nil {
			oldHash = ref.Hash
		}
	}
	if err := r.appendReflog("HEAD", oldHash, peeled, r.signatureOr(nil), message); err != nil {
		return &RefUpdateReflogError{Ref: "HEAD", OldHash: oldHash, NewHash: peeled, Err: err}
	}
	return nil
}

// dwimRef expands a short name the way revision parsing does and returns
// the first reference that resolves.
func (r *Repo) dwimRef(name string) (*Reference, string, error) {
	for _, full := range []string{name, "refs/" + name, "refs/tags/" + name, "refs/heads/" + name, "refs/remotes/" + name, "refs/remotes/" + name + "/HEAD"} {
		if ValidateRefName(full) != nil {
			continue
		}
		ref, err := r.Resolve(full)
		if err == nil {
			return ref, full, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("revision %q: %w", name, ErrNotFound)
}

// ResolveRevision turns a revision into an object id: a full hex id, a
// reference name or short name, optionally followed by ^, ^N and ~N
// suffixes that walk to parents.
func (r *Repo) ResolveRevision(spec string) (object.Hash, error) {
	base, suffix := spec, ""
	if i := strings.IndexAny(spec, "^~"); i >= 0 {
		base, suffix = spec[:i], spec[i:]
	}
	if base == "" {
		return object.ZeroHash, fmt.Errorf("revision %q: %w", spec, ErrInvalid)
	}

	var h object.Hash
	if parsed, err := object.ParseHash(base); err == nil {
		if !r.Store.Has(parsed) {
			return object.ZeroHash, fmt.Errorf("revision %q: %w", spec, ErrNotFound)
		}
		h = parsed
	} else {
		ref, _, err := r.dwimRef(base)
		if err != nil {
			return object.ZeroHash, err
		}
		h = ref.Hash
	}

	for suffix != "" {
		op := suffix[0]
		suffix = suffix[1:]
		n := 1
		digits := 0
		for digits < len(suffix) && suffix[digits] >= '0' && suffix[digits] <= '9' {
			digits++
		}
		if digits > 0 {
			n, _ = strconv.Atoi(suffix[:digits])
			suffix = suffix[digits:]
		}
		commitHash, typ, err := r.Store.Peel(h)
		if err != nil {
			return object.ZeroHash, fmt.Errorf("revision %q: %w", spec, err)
		}
		if typ != object.TypeCommit {
			return object.ZeroHash, fmt.Errorf("revision %q: %s is not a commit: %w", spec, h.Hex(), ErrInvalid)
		}
		h = commitHash
		if op == '^' {
			if n == 0 {
				continue
			}
			c, err := r.Store.ReadCommit(h)
			if err != nil {
				return object.ZeroHash, fmt.Errorf("revision %q: %w", spec, err)
			}
			if n > len(c.Parents) {
				return object.ZeroHash, fmt.Errorf("revision %q: commit has no parent %d: %w", spec, n, ErrNotFound)
			}
			h = c.Parents[n-1]
			continue
		}
		for ; n > 0; n-- {
			c, err := r.Store.ReadCommit(h)
			if err != nil {
				return object.ZeroHash, fmt.Errorf("revision %q: %w", spec, err)
			}
			if len(c.Parents) == 0 {
				return object.ZeroHash, fmt.Errorf("revision %q: history too short: %w", spec, ErrNotFound)
			}
			h = c.Parents[0]
		}
	}
	return h, nil
}

// resolveCommit resolves a revision and peels it to a commit.
func (r *Repo) resolveCommit(spec string) (object.Hash, *object.CommitObj, error) {
	h, err := r.ResolveRevision(spec)
	if err != nil {
		return object.ZeroHash, nil, err
	}
	peeled, typ, err := r.Store.Peel(h)
	if err != nil {
		return object.ZeroHash, nil, err
	}
	if typ != object.TypeCommit {
		return object.ZeroHash, nil, fmt.Errorf("revision %q is a %s: %w", spec, typ, ErrInvalid)
	}
	c, err := r.Store.ReadCommit(peeled)
	if err != nil {
		return object.ZeroHash, nil, err
	}
	return peeled, c, nil
}
