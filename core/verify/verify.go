// Package verify is the decision gate between signing and publishing.
// It checks the detached signature cryptographically, then
// independently re-checks that the manifest belongs to the repository
// context performing verification. Both checks must pass; a valid
// signature over someone else's manifest is still a failure.
package verify

import (
	"fmt"

	"github.com/repo-trust/repo-trust/core/canonical"
	coreerrors "github.com/repo-trust/repo-trust/core/errors"
	"github.com/repo-trust/repo-trust/core/identity"
	"github.com/repo-trust/repo-trust/core/manifest"
	"github.com/repo-trust/repo-trust/core/sign"
)

// Result reports a successful verification.
type Result struct {
	Manifest       manifest.Manifest
	SignerIdentity string
}

// Manifest verifies raw manifest bytes and an armored detached
// signature against the allowed signers and the verifying repository's
// identity. The signature is checked over the canonical form of the
// exact bytes supplied, never over a re-serialized copy.
func Manifest(manifestRaw, armoredSig []byte, signers sign.AllowedSigners, verifier identity.Repository) (Result, error) {
	parsed, err := manifest.Parse(manifestRaw)
	if err != nil {
		return Result{}, err
	}
	if parsed.Version != manifest.Version {
		return Result{}, coreerrors.Wrap(
			fmt.Errorf("unsupported manifest version %q", parsed.Version),
			coreerrors.CategoryVerification,
			"manifest_version_unsupported",
			"this verifier understands manifest version "+manifest.Version,
			false,
		)
	}

	signature, err := sign.ParseArmor(armoredSig)
	if err != nil {
		return Result{}, err
	}
	canonicalBytes, err := canonical.Transform(manifestRaw)
	if err != nil {
		return Result{}, coreerrors.Wrap(
			fmt.Errorf("canonicalize manifest: %w", err),
			coreerrors.CategoryVerification,
			"manifest_malformed",
			"the manifest file is corrupt or not JSON",
			false,
		)
	}
	signerIdentity, err := signers.Verify(signature, canonicalBytes)
	if err != nil {
		return Result{}, err
	}

	// Identity binding runs after the cryptographic check on purpose:
	// a mismatch here means a validly signed manifest is being replayed
	// under a different repository identity.
	if !parsed.Repository.Equal(verifier) {
		return Result{}, coreerrors.Wrap(
			fmt.Errorf("manifest belongs to %s (%s), verifying context is %s (%s)",
				parsed.Repository.FullName, parsed.Repository.URL, verifier.FullName, verifier.URL),
			coreerrors.CategoryIdentityMismatch,
			"repository_identity_mismatch",
			"this manifest was generated for a different repository; it may be a fork or rename replay",
			false,
		)
	}

	return Result{Manifest: parsed, SignerIdentity: signerIdentity}, nil
}
