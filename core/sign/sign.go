// Package sign produces and checks detached ed25519 signatures over
// canonical manifest bytes. Every signature is scoped to a fixed
// namespace so a distribution-trust signature can never be replayed as
// some other use of the same key.
package sign

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	coreerrors "github.com/repo-trust/repo-trust/core/errors"
)

const AlgEd25519 = "ed25519"

// Namespace is mixed into every signed digest. Changing it invalidates
// all previously issued signatures.
const Namespace = "repo-trust-distribution"

type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// Signature is the detached signature record stored next to a manifest.
type Signature struct {
	Alg       string `json:"alg"`
	Namespace string `json:"namespace"`
	KeyID     string `json:"key_id"`
	Sig       string `json:"sig"`
}

func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, coreerrors.Wrap(
			fmt.Errorf("generate keypair: %w", err),
			coreerrors.CategorySigning,
			"keygen_failed",
			"the system entropy source failed",
			false,
		)
	}
	return KeyPair{Public: pub, Private: priv}, nil
}

func KeyID(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:])
}

// namespacedDigest binds the signing namespace to the payload before
// hashing. The zero byte separates the two regions unambiguously.
func namespacedDigest(canonicalBytes []byte) []byte {
	hasher := sha256.New()
	hasher.Write([]byte(Namespace))
	hasher.Write([]byte{0})
	hasher.Write(canonicalBytes)
	return hasher.Sum(nil)
}

// SignCanonical signs the exact canonical manifest bytes. Callers must
// pass the bytes produced at build time, never a re-serialized copy.
func SignCanonical(priv ed25519.PrivateKey, canonicalBytes []byte) (Signature, error) {
	if l := len(priv); l != ed25519.PrivateKeySize {
		return Signature{}, coreerrors.Wrap(
			fmt.Errorf("invalid private key length: %d", l),
			coreerrors.CategorySigning,
			"private_key_malformed",
			"the signing key must be a raw ed25519 private key",
			false,
		)
	}
	raw := ed25519.Sign(priv, namespacedDigest(canonicalBytes))
	return Signature{
		Alg:       AlgEd25519,
		Namespace: Namespace,
		KeyID:     KeyID(priv.Public().(ed25519.PublicKey)),
		Sig:       base64.StdEncoding.EncodeToString(raw),
	}, nil
}

// VerifyCanonical checks a detached signature against canonical
// manifest bytes under one candidate public key.
func VerifyCanonical(pub ed25519.PublicKey, sig Signature, canonicalBytes []byte) (bool, error) {
	if sig.Alg != AlgEd25519 {
		return false, fmt.Errorf("unsupported alg: %s", sig.Alg)
	}
	if sig.Namespace != Namespace {
		return false, fmt.Errorf("signature namespace %q is not %q", sig.Namespace, Namespace)
	}
	if sig.KeyID != "" && sig.KeyID != KeyID(pub) {
		return false, fmt.Errorf("key id mismatch")
	}
	rawSig, err := base64.StdEncoding.DecodeString(sig.Sig)
	if err != nil {
		return false, fmt.Errorf("decode sig: %w", err)
	}
	if len(rawSig) != ed25519.SignatureSize {
		return false, fmt.Errorf("invalid signature length: %d", len(rawSig))
	}
	return ed25519.Verify(pub, namespacedDigest(canonicalBytes), rawSig), nil
}
