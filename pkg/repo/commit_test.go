package repo

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/odvcencio/weft/pkg/object"
)

func TestCommitReflogMessages(t *testing.T) {
	r, wt := newTestRepo(t)
	c1 := commitFiles(t, r, wt, "first\n\nbody", map[string]string{"f": "1\n"})
	c2 := commitFiles(t, r, wt, "second", map[string]string{"f": "2\n"})

	entries, err := r.ReflogEntries("refs/heads/master")
	if err != nil {
		t.Fatalf("ReflogEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("reflog has %d entries, want 2", len(entries))
	}
	if e := entries[1]; e.Message != "commit (initial): first" || !e.Old.IsZero() || e.New != c1 {
		t.Fatalf("initial entry = %+v", e)
	}
	if e := entries[0]; e.Message != "commit: second" || e.Old != c1 || e.New != c2 {
		t.Fatalf("second entry = %+v", e)
	}
	if entries[0].Committer.Name != "Test Author" {
		t.Fatalf("reflog committer = %+v", entries[0].Committer)
	}
}

func TestCreateCommitIsReproducible(t *testing.T) {
	r1, _ := newTestRepo(t)
	r2, _ := newTestRepo(t)
	sig := object.Signature{Name: "A", Email: "a@example.com", When: time.Unix(1_600_000_000, 0).UTC()}
	var ids [2]object.Hash
	for i, r := range []*Repo{r1, r2} {
		h, err := r.CreateCommit("", sig, sig, "same\n", emptyTree(t, r), nil)
		if err != nil {
			t.Fatalf("CreateCommit: %v", err)
		}
		ids[i] = h
	}
	if ids[0] != ids[1] {
		t.Fatalf("identical commits hashed differently: %s vs %s", ids[0].Short(), ids[1].Short())
	}
	if !r1.IsHeadUnborn() {
		t.Fatal("CreateCommit without updateRef moved HEAD")
	}
}

func TestCreateCommitRejectsBadInputs(t *testing.T) {
	r, wt := newTestRepo(t)
	c1 := commitFiles(t, r, wt, "one", map[string]string{"f": "1\n"})
	sig := object.Signature{Name: "A", Email: "a@example.com"}
	blob, err := r.Store.WriteBlob(&object.Blob{Data: []byte("x")})
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	if _, err := r.CreateCommit("", sig, sig, "m", blob, nil); !errors.Is(err, ErrInvalid) {
		t.Fatalf("blob as tree: err = %v, want ErrInvalid", err)
	}
	missing, _ := object.ParseHash(strings.Repeat("cd", object.HashSize))
	if _, err := r.CreateCommit("", sig, sig, "m", emptyTree(t, r), []object.Hash{missing}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing parent: err = %v, want ErrNotFound", err)
	}
	// parents[0] must match the current value of the reference.
	if _, err := r.CreateCommit("HEAD", sig, sig, "m", emptyTree(t, r), nil); !errors.Is(err, ErrRefCASMismatch) {
		t.Fatalf("stale parent: err = %v, want ErrRefCASMismatch", err)
	}
	if got := mustHead(t, r); got != c1 {
		t.Fatal("HEAD moved on CAS failure")
	}
}

func TestCommitSigner(t *testing.T) {
	r, wt := newTestRepo(t)
	commitFiles(t, r, wt, "one", map[string]string{"f": "1\n"})
	writeFile(t, wt, "f", "2\n")
	if err := r.Add([]string{"f"}, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}

	var payload []byte
	signer := func(p []byte) (string, error) {
		payload = p
		return "-----BEGIN SSH SIGNATURE-----\nabc\n-----END SSH SIGNATURE-----", nil
	}
	h, err := r.CreateCommitOnHeadWithSigner("signed\n", nil, nil, signer)
	if err != nil {
		t.Fatalf("CreateCommitOnHeadWithSigner: %v", err)
	}
	c := mustCommit(t, r, h)
	if !strings.Contains(c.Signature, "SSH SIGNATURE") {
		t.Fatalf("signature = %q", c.Signature)
	}
	if !bytes.Equal(payload, object.CommitSigningPayload(c)) {
		t.Fatal("signer saw a different payload than the stored commit's")
	}

	writeFile(t, wt, "f", "3\n")
	if err := r.Add([]string{"f"}, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	skip := func([]byte) (string, error) { return "", ErrPassthrough }
	h, err = r.CreateCommitOnHeadWithSigner("unsigned\n", nil, nil, skip)
	if err != nil {
		t.Fatalf("CreateCommitOnHeadWithSigner(passthrough): %v", err)
	}
	if c := mustCommit(t, r, h); c.Signature != "" {
		t.Fatalf("passthrough signer left signature %q", c.Signature)
	}

	fail := func([]byte) (string, error) { return "", errors.New("agent down") }
	if _, err := r.CreateCommitOnHeadWithSigner("x\n", nil, nil, fail); err == nil {
		t.Fatal("failing signer did not fail the commit")
	}
}

func TestCommitNeedsIdentity(t *testing.T) {
	r, wt := newTestRepo(t)
	r.Config().Unset("user", "email")
	writeFile(t, wt, "f", "1\n")
	if err := r.Add([]string{"f"}, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Commit("m"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Commit without identity: err = %v, want ErrNotFound", err)
	}
}
