// Package manifest builds and serializes the canonical, signable
// description of a release's artifacts and repository identity.
package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/opencontainers/go-digest"

	"github.com/repo-trust/repo-trust/core/canonical"
	coreerrors "github.com/repo-trust/repo-trust/core/errors"
	"github.com/repo-trust/repo-trust/core/identity"
)

const (
	Version       = "1.0"
	GeneratorName = "repo-trust"

	// Filename and SignatureFilename are the fixed asset names uploaded
	// back onto the release. Assets carrying the manifest prefix are
	// excluded from the artifact list so a re-run never hashes its own
	// previous output.
	Filename          = "repo-trust-manifest.json"
	SignatureFilename = "repo-trust-manifest.json.sig"
	OwnAssetPrefix    = "repo-trust-manifest"
)

type Release struct {
	Tag         string `json:"tag"`
	Commit      string `json:"commit"`
	PublishedAt string `json:"published_at"`
	ReleaseID   int64  `json:"release_id"`
}

type Artifact struct {
	Filename    string        `json:"filename"`
	Digest      digest.Digest `json:"digest"`
	SizeBytes   int64         `json:"size_bytes"`
	DownloadURL string        `json:"download_url"`
}

type Generator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Manifest is created once per release and never mutated after
// signing. GeneratedAt is fixed at build time; it sits inside the
// signed region and is never regenerated.
type Manifest struct {
	Version     string              `json:"version"`
	Repository  identity.Repository `json:"repository"`
	Release     Release             `json:"release"`
	Artifacts   []Artifact          `json:"artifacts"`
	GeneratedAt string              `json:"generated_at"`
	Generator   Generator           `json:"generator"`
}

// CanonicalBytes returns the RFC 8785 canonical serialization that
// signatures are computed over.
func (m Manifest) CanonicalBytes() ([]byte, error) {
	encoded, err := json.Marshal(m)
	if err != nil {
		return nil, coreerrors.Wrap(
			fmt.Errorf("encode manifest: %w", err),
			coreerrors.CategoryInternalFailure,
			"manifest_encode_failed",
			"",
			false,
		)
	}
	canonicalBytes, err := canonical.Transform(encoded)
	if err != nil {
		return nil, coreerrors.Wrap(
			fmt.Errorf("canonicalize manifest: %w", err),
			coreerrors.CategoryInternalFailure,
			"manifest_canonicalize_failed",
			"",
			false,
		)
	}
	return canonicalBytes, nil
}

// Parse validates untrusted manifest bytes against the manifest schema
// and decodes them.
func Parse(raw []byte) (Manifest, error) {
	if !json.Valid(raw) {
		return Manifest{}, coreerrors.Wrap(
			fmt.Errorf("manifest is not valid JSON"),
			coreerrors.CategoryVerification,
			"manifest_malformed",
			"the manifest file is corrupt or not JSON",
			false,
		)
	}
	if err := ValidateBytes(raw); err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, coreerrors.Wrap(
			fmt.Errorf("decode manifest: %w", err),
			coreerrors.CategoryVerification,
			"manifest_malformed",
			"the manifest is not valid JSON for this version",
			false,
		)
	}
	return m, nil
}
