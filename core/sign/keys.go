package sign

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	coreerrors "github.com/repo-trust/repo-trust/core/errors"
)

// KeySource names where key material comes from: a local file or a
// named environment variable, never both. Keys loaded through a source
// live only for the current process.
type KeySource struct {
	Path string
	Env  string
}

func (s KeySource) empty() bool {
	return s.Path == "" && s.Env == ""
}

// LoadSigningKey resolves the run's ephemeral signing key. The public
// half is derived from the private key; when an explicit public source
// is also configured the two must agree.
func LoadSigningKey(private, public KeySource) (KeyPair, error) {
	if private.empty() {
		return KeyPair{}, coreerrors.Wrap(
			fmt.Errorf("no signing key configured"),
			coreerrors.CategoryConfiguration,
			"signing_key_missing",
			"set signing_key path or env in the run configuration",
			false,
		)
	}
	priv, err := loadPrivateKey(private)
	if err != nil {
		return KeyPair{}, err
	}
	pub := priv.Public().(ed25519.PublicKey)
	if !public.empty() {
		loaded, err := loadPublicKey(public)
		if err != nil {
			return KeyPair{}, err
		}
		if !loaded.Equal(pub) {
			return KeyPair{}, coreerrors.Wrap(
				fmt.Errorf("public key does not match private key"),
				coreerrors.CategoryConfiguration,
				"key_pair_mismatch",
				"the configured public key belongs to a different private key",
				false,
			)
		}
		pub = loaded
	}
	return KeyPair{Public: pub, Private: priv}, nil
}

// LoadVerifyKey resolves a public key for standalone verification.
func LoadVerifyKey(public KeySource) (ed25519.PublicKey, error) {
	if public.empty() {
		return nil, coreerrors.Wrap(
			fmt.Errorf("no public key configured"),
			coreerrors.CategoryConfiguration,
			"public_key_missing",
			"set public_key path or env, or use an allowed signers file",
			false,
		)
	}
	return loadPublicKey(public)
}

func loadPrivateKey(source KeySource) (ed25519.PrivateKey, error) {
	encoded, err := readKeySource(source, "private")
	if err != nil {
		return nil, err
	}
	return ParsePrivateKeyBase64(encoded)
}

func loadPublicKey(source KeySource) (ed25519.PublicKey, error) {
	encoded, err := readKeySource(source, "public")
	if err != nil {
		return nil, err
	}
	return ParsePublicKeyBase64(encoded)
}

func readKeySource(source KeySource, kind string) (string, error) {
	if source.Path != "" && source.Env != "" {
		return "", coreerrors.Wrap(
			fmt.Errorf("%s key source: set either path or env", kind),
			coreerrors.CategoryConfiguration,
			"key_source_ambiguous",
			"a key source must name exactly one of path or env",
			false,
		)
	}
	if source.Path != "" {
		// #nosec G304 -- key path is explicit run configuration.
		raw, err := os.ReadFile(source.Path)
		if err != nil {
			return "", coreerrors.Wrap(
				fmt.Errorf("read %s key: %w", kind, err),
				coreerrors.CategoryConfiguration,
				"key_file_unreadable",
				"check the configured key path",
				false,
			)
		}
		return strings.TrimSpace(string(raw)), nil
	}
	value, ok := os.LookupEnv(source.Env)
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		return "", coreerrors.Wrap(
			fmt.Errorf("%s key env not set: %s", kind, source.Env),
			coreerrors.CategoryConfiguration,
			"key_env_unset",
			"export the configured environment variable before the run",
			false,
		)
	}
	return value, nil
}

func ParsePrivateKeyBase64(encoded string) (ed25519.PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, coreerrors.Wrap(
			fmt.Errorf("decode private key: %w", err),
			coreerrors.CategorySigning,
			"private_key_malformed",
			"private keys are base64-encoded raw ed25519 keys",
			false,
		)
	}
	if l := len(raw); l != ed25519.PrivateKeySize {
		return nil, coreerrors.Wrap(
			fmt.Errorf("invalid private key length: %d", l),
			coreerrors.CategorySigning,
			"private_key_malformed",
			"private keys are base64-encoded raw ed25519 keys",
			false,
		)
	}
	return ed25519.PrivateKey(raw), nil
}

func ParsePublicKeyBase64(encoded string) (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, coreerrors.Wrap(
			fmt.Errorf("decode public key: %w", err),
			coreerrors.CategorySigning,
			"public_key_malformed",
			"public keys are base64-encoded raw ed25519 keys",
			false,
		)
	}
	if l := len(raw); l != ed25519.PublicKeySize {
		return nil, coreerrors.Wrap(
			fmt.Errorf("invalid public key length: %d", l),
			coreerrors.CategorySigning,
			"public_key_malformed",
			"public keys are base64-encoded raw ed25519 keys",
			false,
		)
	}
	return ed25519.PublicKey(raw), nil
}
