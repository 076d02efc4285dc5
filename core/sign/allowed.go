package sign

import (
	"bufio"
	"bytes"
	"crypto/ed25519"
	"fmt"
	"os"
	"strings"

	coreerrors "github.com/repo-trust/repo-trust/core/errors"
)

// AllowedSigner maps a logical signer identity to its trusted public
// key. The set is read once per run and never mutated.
type AllowedSigner struct {
	Identity string
	Key      ed25519.PublicKey
}

type AllowedSigners []AllowedSigner

// ParseAllowedSigners reads the one-entry-per-line allowed signers
// format: `identity base64-ed25519-public-key`. Blank lines and lines
// starting with '#' are ignored.
func ParseAllowedSigners(raw []byte) (AllowedSigners, error) {
	var signers AllowedSigners
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, coreerrors.Wrap(
				fmt.Errorf("allowed signers line %d: expected `identity key`, got %d fields", lineNumber, len(fields)),
				coreerrors.CategoryConfiguration,
				"allowed_signers_malformed",
				"each line must be exactly `identity base64-public-key`",
				false,
			)
		}
		key, err := ParsePublicKeyBase64(fields[1])
		if err != nil {
			return nil, coreerrors.Wrap(
				fmt.Errorf("allowed signers line %d: %w", lineNumber, err),
				coreerrors.CategoryConfiguration,
				"allowed_signers_malformed",
				"each key must be a base64-encoded raw ed25519 public key",
				false,
			)
		}
		signers = append(signers, AllowedSigner{Identity: fields[0], Key: key})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan allowed signers: %w", err)
	}
	if len(signers) == 0 {
		return nil, coreerrors.Wrap(
			fmt.Errorf("allowed signers file contains no entries"),
			coreerrors.CategoryConfiguration,
			"allowed_signers_empty",
			"add at least one `identity base64-public-key` line",
			false,
		)
	}
	return signers, nil
}

func LoadAllowedSigners(path string) (AllowedSigners, error) {
	// #nosec G304 -- allowed signers path is explicit run configuration.
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, coreerrors.Wrap(
			fmt.Errorf("read allowed signers: %w", err),
			coreerrors.CategoryConfiguration,
			"allowed_signers_unreadable",
			"check the configured allowed_signers_path",
			false,
		)
	}
	return ParseAllowedSigners(raw)
}

// Verify checks a detached signature against every trusted key whose
// key id matches, returning the identity that produced it. A signature
// from a key outside the set fails verification.
func (signers AllowedSigners) Verify(sig Signature, canonicalBytes []byte) (string, error) {
	matched := false
	for _, signer := range signers {
		if sig.KeyID != "" && sig.KeyID != KeyID(signer.Key) {
			continue
		}
		matched = true
		ok, err := VerifyCanonical(signer.Key, sig, canonicalBytes)
		if err != nil {
			return "", coreerrors.Wrap(
				fmt.Errorf("verify against %s: %w", signer.Identity, err),
				coreerrors.CategoryVerification,
				"signature_invalid",
				"the signature record is malformed or signed for another purpose",
				false,
			)
		}
		if ok {
			return signer.Identity, nil
		}
	}
	if !matched {
		return "", coreerrors.Wrap(
			fmt.Errorf("signer %s is not in the allowed list", sig.KeyID),
			coreerrors.CategoryVerification,
			"signer_unknown",
			"the signing key's public half is missing from the allowed signers file",
			false,
		)
	}
	return "", coreerrors.Wrap(
		fmt.Errorf("signature does not match manifest content"),
		coreerrors.CategoryVerification,
		"signature_invalid",
		"the manifest may have been altered after signing",
		false,
	)
}
