package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/weft/pkg/repo"
	"golang.org/x/crypto/ssh"
)

// Signatures are stored in the commit's gpgsig header as
// "sshsig-v1:<format>:<public key>:<signature>", both base64.
const commitSignaturePrefix = "sshsig-v1"

var defaultSigningKeys = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

// newSSHCommitSigner loads a private key and returns a signer over commit
// payloads, plus the path it loaded from.
func newSSHCommitSigner(keyPath string) (repo.CommitSigner, string, error) {
	resolved, err := resolveSigningKeyPath(keyPath)
	if err != nil {
		return nil, "", err
	}
	raw, err := os.ReadFile(resolved)
	if err != nil {
		return nil, "", fmt.Errorf("read signing key %q: %w", resolved, err)
	}
	key, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return nil, "", fmt.Errorf("parse signing key %q: %w", resolved, err)
	}
	pubB64 := base64.StdEncoding.EncodeToString(key.PublicKey().Marshal())

	sign := func(payload []byte) (string, error) {
		sig, err := key.Sign(rand.Reader, payload)
		if err != nil {
			return "", fmt.Errorf("ssh sign: %w", err)
		}
		return fmt.Sprintf("%s:%s:%s:%s", commitSignaturePrefix, sig.Format, pubB64,
			base64.StdEncoding.EncodeToString(sig.Blob)), nil
	}
	return sign, resolved, nil
}

// verifySSHSignature checks a signature produced by newSSHCommitSigner
// against payload.
func verifySSHSignature(signature string, payload []byte) (ssh.PublicKey, error) {
	parts := strings.SplitN(strings.TrimSpace(signature), ":", 4)
	if len(parts) != 4 || parts[0] != commitSignaturePrefix {
		return nil, fmt.Errorf("verify signature: not an %s signature", commitSignaturePrefix)
	}
	pubRaw, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("verify signature: public key: %w", err)
	}
	pub, err := ssh.ParsePublicKey(pubRaw)
	if err != nil {
		return nil, fmt.Errorf("verify signature: public key: %w", err)
	}
	blob, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return nil, fmt.Errorf("verify signature: blob: %w", err)
	}
	if err := pub.Verify(payload, &ssh.Signature{Format: parts[1], Blob: blob}); err != nil {
		return nil, fmt.Errorf("verify signature: %w", err)
	}
	return pub, nil
}

func resolveSigningKeyPath(path string) (string, error) {
	if path = strings.TrimSpace(path); path != "" {
		return expandUserPath(path)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	for _, name := range defaultSigningKeys {
		candidate := filepath.Join(home, ".ssh", name)
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no default SSH private key in ~/.ssh (%s)", strings.Join(defaultSigningKeys, ", "))
}

func expandUserPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	return filepath.Abs(path)
}
