package sign

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	coreerrors "github.com/repo-trust/repo-trust/core/errors"
)

func writeKeyFile(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content+"\n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	return path
}

func TestLoadSigningKeyFromPath(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	path := writeKeyFile(t, "signing.key", base64.StdEncoding.EncodeToString(kp.Private))
	loaded, err := LoadSigningKey(KeySource{Path: path}, KeySource{})
	if err != nil {
		t.Fatalf("load signing key: %v", err)
	}
	if !loaded.Public.Equal(kp.Public) {
		t.Fatalf("derived public key does not match")
	}
}

func TestLoadSigningKeyFromEnv(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	t.Setenv("REPO_TRUST_TEST_KEY", base64.StdEncoding.EncodeToString(kp.Private))
	loaded, err := LoadSigningKey(KeySource{Env: "REPO_TRUST_TEST_KEY"}, KeySource{})
	if err != nil {
		t.Fatalf("load signing key: %v", err)
	}
	if !loaded.Public.Equal(kp.Public) {
		t.Fatalf("derived public key does not match")
	}
}

func TestLoadSigningKeyMissingSource(t *testing.T) {
	_, err := LoadSigningKey(KeySource{}, KeySource{})
	if err == nil {
		t.Fatalf("expected error for missing key source")
	}
	if coreerrors.CategoryOf(err) != coreerrors.CategoryConfiguration {
		t.Fatalf("expected configuration category, got %s", coreerrors.CategoryOf(err))
	}
}

func TestLoadSigningKeyAmbiguousSource(t *testing.T) {
	_, err := LoadSigningKey(KeySource{Path: "/tmp/key", Env: "KEY"}, KeySource{})
	if err == nil {
		t.Fatalf("expected error for ambiguous key source")
	}
}

func TestLoadSigningKeyPublicMismatch(t *testing.T) {
	kp1, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	kp2, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	privPath := writeKeyFile(t, "signing.key", base64.StdEncoding.EncodeToString(kp1.Private))
	pubPath := writeKeyFile(t, "other.pub", base64.StdEncoding.EncodeToString(kp2.Public))
	if _, err := LoadSigningKey(KeySource{Path: privPath}, KeySource{Path: pubPath}); err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestLoadVerifyKey(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	path := writeKeyFile(t, "verify.pub", base64.StdEncoding.EncodeToString(kp.Public))
	pub, err := LoadVerifyKey(KeySource{Path: path})
	if err != nil {
		t.Fatalf("load verify key: %v", err)
	}
	if !pub.Equal(kp.Public) {
		t.Fatalf("loaded public key does not match")
	}
	if _, err := LoadVerifyKey(KeySource{}); err == nil {
		t.Fatalf("expected error for empty verify key source")
	}
}

func TestLoadSigningKeyUnsetEnv(t *testing.T) {
	if _, err := LoadSigningKey(KeySource{Env: "REPO_TRUST_UNSET_KEY_ENV"}, KeySource{}); err == nil {
		t.Fatalf("expected error for unset env")
	}
}
