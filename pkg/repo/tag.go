package repo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/odvcencio/weft/pkg/object"
)

// Tag is a tag reference. Object is the tag object for annotated tags and
// the target itself for lightweight ones.
type Tag struct {
	Name      string
	Object    object.Hash
	Target    object.Hash
	Annotated bool
}

func tagRef(name string) string { return "refs/tags/" + name }

// CreateTag creates a lightweight tag at target.
func (r *Repo) CreateTag(name string, target object.Hash, force bool) (*Tag, error) {
	if err := ValidateRefName(tagRef(name)); err != nil {
		return nil, fmt.Errorf("create tag: %w", err)
	}
	if !r.Store.Has(target) {
		return nil, fmt.Errorf("create tag %q: target %s: %w", name, target.Hex(), ErrNotFound)
	}
	if _, err := r.CreateReference(tagRef(name), target, force, "tag: "+name); err != nil {
		return nil, fmt.Errorf("create tag: %w", err)
	}
	return &Tag{Name: name, Object: target, Target: target}, nil
}

// CreateAnnotatedTag writes a tag object for target and points
// refs/tags/<name> at it. A nil tagger means the configured identity.
func (r *Repo) CreateAnnotatedTag(name string, target object.Hash, tagger *object.Signature, message string, force bool) (*Tag, error) {
	if err := ValidateRefName(tagRef(name)); err != nil {
		return nil, fmt.Errorf("create annotated tag: %w", err)
	}
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("create annotated tag %q: message is required: %w", name, ErrInvalid)
	}
	typ, _, err := r.Store.Read(target)
	if err != nil {
		return nil, fmt.Errorf("create annotated tag %q: target %s: %w", name, target.Hex(), err)
	}
	if !force {
		if _, err := r.Lookup(tagRef(name)); err == nil {
			return nil, fmt.Errorf("create annotated tag: tag %q: %w", name, ErrExists)
		}
	}
	sig, err := r.signatureArg(tagger)
	if err != nil {
		return nil, fmt.Errorf("create annotated tag: %w", err)
	}
	if !strings.HasSuffix(message, "\n") {
		message += "\n"
	}
	h, err := r.Store.WriteTag(&object.TagObj{
		TargetHash: target,
		TargetType: typ,
		Name:       name,
		Tagger:     &sig,
		Message:    message,
	})
	if err != nil {
		return nil, fmt.Errorf("create annotated tag: write tag object: %w", err)
	}
	if _, err := r.CreateReference(tagRef(name), h, true, "tag: "+name); err != nil {
		return nil, fmt.Errorf("create annotated tag: %w", err)
	}
	return &Tag{Name: name, Object: h, Target: target, Annotated: true}, nil
}

// DeleteTag removes refs/tags/<name>. The tag object, if any, stays in the
// store.
func (r *Repo) DeleteTag(name string) error {
	if err := r.DeleteReference(tagRef(name)); err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	return nil
}

// Tags lists tags sorted by name with annotated tags peeled one level.
func (r *Repo) Tags() ([]Tag, error) {
	refs, err := r.References("refs/tags/")
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	out := make([]Tag, 0, len(refs))
	for _, ref := range refs {
		if ref.IsSymbolic() {
			continue
		}
		t := Tag{Name: strings.TrimPrefix(ref.Name, "refs/tags/"), Object: ref.Hash, Target: ref.Hash}
		tag, err := r.Store.ReadTag(ref.Hash)
		switch {
		case err == nil:
			t.Target, t.Annotated = tag.TargetHash, true
		case !errors.Is(err, object.ErrTypeMismatch):
			return nil, fmt.Errorf("list tags: %s: %w", t.Name, err)
		}
		out = append(out, t)
	}
	return out, nil
}
