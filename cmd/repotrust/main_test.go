package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/repo-trust/repo-trust/core/identity"
	"github.com/repo-trust/repo-trust/core/manifest"
	"github.com/repo-trust/repo-trust/core/sign"
)

func TestDispatch(t *testing.T) {
	cases := []struct {
		args []string
		want int
	}{
		{[]string{"repotrust"}, exitInvalidInput},
		{[]string{"repotrust", "no-such-command"}, exitInvalidInput},
		{[]string{"repotrust", "version"}, exitOK},
		{[]string{"repotrust", "help"}, exitOK},
		{[]string{"repotrust", "keys"}, exitInvalidInput},
	}
	for _, testCase := range cases {
		if got := run(testCase.args); got != testCase.want {
			t.Fatalf("run(%v) = %d, want %d", testCase.args, got, testCase.want)
		}
	}
}

func TestKeysInitThenVerifyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	keysDir := filepath.Join(dir, "keys")

	if got := run([]string{"repotrust", "keys", "init", "--out-dir", keysDir, "--json"}); got != exitOK {
		t.Fatalf("keys init exit %d", got)
	}
	// A second init without --force must refuse to overwrite.
	if got := run([]string{"repotrust", "keys", "init", "--out-dir", keysDir}); got != exitInvalidInput {
		t.Fatalf("keys init overwrite exit %d", got)
	}

	privateRaw, err := os.ReadFile(filepath.Join(keysDir, "repo-trust.key"))
	if err != nil {
		t.Fatalf("read private key: %v", err)
	}
	publicRaw, err := os.ReadFile(filepath.Join(keysDir, "repo-trust.pub"))
	if err != nil {
		t.Fatalf("read public key: %v", err)
	}
	priv, err := sign.ParsePrivateKeyBase64(string(privateRaw))
	if err != nil {
		t.Fatalf("parse private key: %v", err)
	}

	repo, err := identity.Parse("octo/widgets", "https://github.com")
	if err != nil {
		t.Fatalf("parse identity: %v", err)
	}
	built := manifest.Manifest{
		Version:    manifest.Version,
		Repository: repo,
		Release: manifest.Release{
			Tag:         "v1.0.0",
			Commit:      "abc123",
			PublishedAt: "2026-08-25T10:00:00Z",
			ReleaseID:   42,
		},
		Artifacts:   []manifest.Artifact{},
		GeneratedAt: "2026-08-25T12:00:00Z",
		Generator:   manifest.Generator{Name: manifest.GeneratorName, Version: "2.0.0"},
	}
	canonicalBytes, err := built.CanonicalBytes()
	if err != nil {
		t.Fatalf("canonical bytes: %v", err)
	}
	signature, err := sign.SignCanonical(priv, canonicalBytes)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	armored, err := sign.Armor(signature)
	if err != nil {
		t.Fatalf("armor: %v", err)
	}

	manifestPath := filepath.Join(dir, manifest.Filename)
	signaturePath := filepath.Join(dir, manifest.SignatureFilename)
	allowedPath := filepath.Join(dir, "allowed_signers")
	if err := os.WriteFile(manifestPath, canonicalBytes, 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if err := os.WriteFile(signaturePath, armored, 0o600); err != nil {
		t.Fatalf("write signature: %v", err)
	}
	if err := os.WriteFile(allowedPath, publicAllowedLine(publicRaw), 0o600); err != nil {
		t.Fatalf("write allowed signers: %v", err)
	}

	verifyArgs := []string{
		"repotrust", "verify",
		"--manifest", manifestPath,
		"--signature", signaturePath,
		"--allowed-signers", allowedPath,
		"--repository", "octo/widgets",
	}
	if got := run(verifyArgs); got != exitOK {
		t.Fatalf("verify exit %d", got)
	}

	// The same manifest must fail under a different repository identity.
	mismatchArgs := []string{
		"repotrust", "verify",
		"--manifest", manifestPath,
		"--signature", signaturePath,
		"--allowed-signers", allowedPath,
		"--repository", "someone/else",
	}
	if got := run(mismatchArgs); got != exitVerifyFailed {
		t.Fatalf("identity mismatch exit %d", got)
	}
}

func publicAllowedLine(publicKeyFile []byte) []byte {
	return []byte("# release signing keys\nrelease-ci " + string(publicKeyFile))
}

func TestKeysInitWritesParsableKeys(t *testing.T) {
	dir := t.TempDir()
	if got := run([]string{"repotrust", "keys", "init", "--out-dir", dir, "--prefix", "ci", "--json"}); got != exitOK {
		t.Fatalf("keys init exit %d", got)
	}
	publicRaw, err := os.ReadFile(filepath.Join(dir, "ci.pub"))
	if err != nil {
		t.Fatalf("read public key: %v", err)
	}
	if _, err := sign.ParsePublicKeyBase64(string(publicRaw)); err != nil {
		t.Fatalf("generated public key must parse: %v", err)
	}
}
