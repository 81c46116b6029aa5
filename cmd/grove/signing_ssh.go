package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/grove/pkg/object"
	"github.com/odvcencio/grove/pkg/repo"
	"golang.org/x/crypto/ssh"
)

const commitSignaturePrefix = "sshsig-v1"

// newSSHCommitSigner loads an SSH private key and returns a signer that
// produces "sshsig-v1:<format>:<pubkey-b64>:<sig-b64>" signature strings.
// The public key rides along in the signature so verification needs no
// out-of-band key lookup.
func newSSHCommitSigner(keyPath string) (repo.CommitSigner, string, error) {
	resolvedPath, err := resolveSigningKeyPath(keyPath)
	if err != nil {
		return nil, "", err
	}

	raw, err := os.ReadFile(resolvedPath)
	if err != nil {
		return nil, "", fmt.Errorf("read signing key %q: %w", resolvedPath, err)
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return nil, "", fmt.Errorf("parse signing key %q: %w", resolvedPath, err)
	}

	pubB64 := base64.StdEncoding.EncodeToString(signer.PublicKey().Marshal())

	commitSigner := func(payload []byte) (string, error) {
		sig, err := signer.Sign(rand.Reader, payload)
		if err != nil {
			return "", err
		}
		sigB64 := base64.StdEncoding.EncodeToString(sig.Blob)
		return fmt.Sprintf("%s:%s:%s:%s", commitSignaturePrefix, sig.Format, pubB64, sigB64), nil
	}
	return commitSigner, resolvedPath, nil
}

// verifyCommitSignature checks a commit's embedded signature against the
// public key it carries and returns that key's type on success.
func verifyCommitSignature(c *object.CommitObj) (string, error) {
	parts := strings.SplitN(c.Signature, ":", 4)
	if len(parts) != 4 || parts[0] != commitSignaturePrefix {
		return "", fmt.Errorf("unrecognized signature scheme")
	}
	pubRaw, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("decode public key: %w", err)
	}
	sigRaw, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return "", fmt.Errorf("decode signature: %w", err)
	}
	pub, err := ssh.ParsePublicKey(pubRaw)
	if err != nil {
		return "", fmt.Errorf("parse public key: %w", err)
	}
	sig := &ssh.Signature{Format: parts[1], Blob: sigRaw}
	if err := pub.Verify(object.CommitSigningPayload(c), sig); err != nil {
		return "", err
	}
	return pub.Type(), nil
}

func resolveSigningKeyPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path != "" {
		return expandUserPath(path)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	candidates := []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_ecdsa"),
		filepath.Join(home, ".ssh", "id_rsa"),
	}
	for _, candidate := range candidates {
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no default SSH private key found in ~/.ssh (id_ed25519, id_ecdsa, id_rsa)")
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
