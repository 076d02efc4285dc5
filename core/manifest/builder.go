package manifest

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"

	coreerrors "github.com/repo-trust/repo-trust/core/errors"
	"github.com/repo-trust/repo-trust/core/identity"
)

// AssetDescriptor is one downloadable artifact as listed by the host.
// Size is the declared content length; a negative value means the host
// did not declare one.
type AssetDescriptor struct {
	ID          int64
	Name        string
	Size        int64
	APIURL      string
	DownloadURL string
}

// ReleaseInfo is the release metadata the builder consumes.
type ReleaseInfo struct {
	ID          int64
	Tag         string
	Name        string
	PublishedAt string
	HTMLURL     string
	Assets      []AssetDescriptor
}

// AssetSource lists a release's assets and streams their bytes. It is
// a capability interface so the host client stays swappable.
type AssetSource interface {
	ReleaseByTag(ctx context.Context, tag string) (ReleaseInfo, error)
	OpenAsset(ctx context.Context, asset AssetDescriptor) (io.ReadCloser, error)
}

type Builder struct {
	Source           AssetSource
	Repository       identity.Repository
	GeneratorVersion string

	// Now is overridable for tests; nil means time.Now.
	Now func() time.Time
}

// Build assembles the manifest for one release. Every asset is streamed
// through a sha256 digester; an observed byte count that disagrees with
// the declared content length is an integrity failure. A release with
// zero artifacts still produces a valid manifest.
func (b Builder) Build(ctx context.Context, tag, commit string) (Manifest, error) {
	release, err := b.Source.ReleaseByTag(ctx, tag)
	if err != nil {
		return Manifest{}, err
	}

	artifacts := make([]Artifact, 0, len(release.Assets))
	for _, asset := range release.Assets {
		if strings.HasPrefix(asset.Name, OwnAssetPrefix) {
			continue
		}
		artifact, err := b.digestAsset(ctx, asset)
		if err != nil {
			return Manifest{}, err
		}
		artifacts = append(artifacts, artifact)
	}
	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].Filename < artifacts[j].Filename
	})

	now := b.Now
	if now == nil {
		now = time.Now
	}
	built := Manifest{
		Version:    Version,
		Repository: b.Repository,
		Release: Release{
			Tag:         release.Tag,
			Commit:      commit,
			PublishedAt: release.PublishedAt,
			ReleaseID:   release.ID,
		},
		Artifacts:   artifacts,
		GeneratedAt: now().UTC().Format(time.RFC3339),
		Generator: Generator{
			Name:    GeneratorName,
			Version: b.GeneratorVersion,
		},
	}

	canonicalBytes, err := built.CanonicalBytes()
	if err != nil {
		return Manifest{}, err
	}
	if err := ValidateBytes(canonicalBytes); err != nil {
		return Manifest{}, err
	}
	return built, nil
}

func (b Builder) digestAsset(ctx context.Context, asset AssetDescriptor) (Artifact, error) {
	reader, err := b.Source.OpenAsset(ctx, asset)
	if err != nil {
		return Artifact{}, err
	}
	defer func() {
		_ = reader.Close()
	}()

	digester := digest.SHA256.Digester()
	observed, err := io.Copy(digester.Hash(), reader)
	if err != nil {
		return Artifact{}, coreerrors.Wrap(
			fmt.Errorf("stream asset %s: %w", asset.Name, err),
			coreerrors.CategoryNetworkTransient,
			"asset_stream_failed",
			"the asset download was interrupted",
			true,
		)
	}
	if asset.Size >= 0 && observed != asset.Size {
		return Artifact{}, coreerrors.Wrap(
			fmt.Errorf("asset %s: declared %d bytes, observed %d", asset.Name, asset.Size, observed),
			coreerrors.CategoryIntegrity,
			"asset_size_mismatch",
			"never sign over a truncated or padded download",
			false,
		)
	}
	return Artifact{
		Filename:    asset.Name,
		Digest:      digester.Digest(),
		SizeBytes:   observed,
		DownloadURL: asset.DownloadURL,
	}, nil
}
