// Package pipeline runs the full trust flow for one release: build the
// manifest, sign it, verify the result against the allowed signers,
// attach it to the release, and publish the badge and verification
// page. Stages run in that order and the pipeline stops at the first
// failure, so a release can end up unsigned or unpublished but never
// published with artifacts that failed verification.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/repo-trust/repo-trust/core/badge"
	coreerrors "github.com/repo-trust/repo-trust/core/errors"
	"github.com/repo-trust/repo-trust/core/identity"
	"github.com/repo-trust/repo-trust/core/manifest"
	"github.com/repo-trust/repo-trust/core/pages"
	"github.com/repo-trust/repo-trust/core/runlog"
	"github.com/repo-trust/repo-trust/core/sign"
	"github.com/repo-trust/repo-trust/core/verify"
)

// Stage names recorded in the event log.
const (
	StageBuild   = "build_manifest"
	StageSign    = "sign_manifest"
	StageVerify  = "self_verify"
	StageUpload  = "upload"
	StageRender  = "render"
	StagePublish = "publish"
)

// Uploader attaches generated artifacts to a release.
type Uploader interface {
	UploadReleaseAsset(ctx context.Context, releaseID int64, name, contentType string, content []byte) error
}

type Pipeline struct {
	Repository identity.Repository
	Source     manifest.AssetSource
	Uploader   Uploader
	Store      pages.RefStore
	Keys       sign.KeyPair
	Signers    sign.AllowedSigners

	GeneratorVersion string
	APIBaseURL       string
	DefaultBranch    string
	PagesBranch      string

	Log *runlog.Logger
	// Now is overridable for tests; nil means time.Now.
	Now func() time.Time
}

// Result collects everything a run produced.
type Result struct {
	Manifest       manifest.Manifest
	ManifestBytes  []byte
	SignatureBytes []byte
	SignerIdentity string
	Uploaded       bool
	Published      pages.PublishResult
}

// Run executes the whole flow for one release tag.
func (p Pipeline) Run(ctx context.Context, tag, commit string) (Result, error) {
	result, err := p.Sign(ctx, tag, commit)
	if err != nil {
		return Result{}, err
	}
	if err := p.Upload(ctx, result); err != nil {
		return Result{}, err
	}
	if err := p.Publish(ctx, tag, result); err != nil {
		return Result{}, err
	}
	return *result, nil
}

// Sign builds the manifest, signs it, and verifies the signed result
// against the allowed signers before anything leaves the process. A run
// whose own key is not an allowed signer fails here, not after upload.
func (p Pipeline) Sign(ctx context.Context, tag, commit string) (*Result, error) {
	var result Result

	err := p.stage(StageBuild, tag, func() error {
		builder := manifest.Builder{
			Source:           p.Source,
			Repository:       p.Repository,
			GeneratorVersion: p.GeneratorVersion,
			Now:              p.Now,
		}
		built, err := builder.Build(ctx, tag, commit)
		if err != nil {
			return err
		}
		result.Manifest = built
		result.ManifestBytes, err = built.CanonicalBytes()
		return err
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(StageSign, tag, func() error {
		signature, err := sign.SignCanonical(p.Keys.Private, result.ManifestBytes)
		if err != nil {
			return err
		}
		result.SignatureBytes, err = sign.Armor(signature)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(StageVerify, tag, func() error {
		verified, err := verify.Manifest(result.ManifestBytes, result.SignatureBytes, p.Signers, p.Repository)
		if err != nil {
			return err
		}
		result.SignerIdentity = verified.SignerIdentity
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Upload attaches the manifest and its detached signature to the
// release the manifest was built from.
func (p Pipeline) Upload(ctx context.Context, result *Result) error {
	return p.stage(StageUpload, result.Manifest.Release.Tag, func() error {
		releaseID := result.Manifest.Release.ReleaseID
		if err := p.Uploader.UploadReleaseAsset(ctx, releaseID, manifest.Filename, "application/json", result.ManifestBytes); err != nil {
			return err
		}
		if err := p.Uploader.UploadReleaseAsset(ctx, releaseID, manifest.SignatureFilename, "text/plain", result.SignatureBytes); err != nil {
			return err
		}
		result.Uploaded = true
		return nil
	})
}

// Publish renders the badge, verification page, and release data, and
// merges them onto the pages branch.
func (p Pipeline) Publish(ctx context.Context, tag string, result *Result) error {
	var files map[string][]byte
	err := p.stage(StageRender, tag, func() error {
		release, err := p.Source.ReleaseByTag(ctx, tag)
		if err != nil {
			return err
		}
		releaseData, err := pages.RenderReleaseData(release)
		if err != nil {
			return err
		}
		page, err := pages.RenderVerificationPage(p.Repository, p.APIBaseURL, p.DefaultBranch)
		if err != nil {
			return err
		}
		badgeSVG := badge.Render(p.Repository, badge.StateVerified)
		files = pages.Site(badgeSVG, page, releaseData)
		return nil
	})
	if err != nil {
		return err
	}

	return p.stage(StagePublish, tag, func() error {
		publisher := pages.Publisher{Store: p.Store, Branch: p.PagesBranch}
		published, err := publisher.Publish(ctx, files)
		if err != nil {
			return err
		}
		result.Published = published
		return nil
	})
}

// stage runs one step, stamps its error with run context, and records
// the outcome in the event log.
func (p Pipeline) stage(name, tag string, step func() error) error {
	now := p.Now
	if now == nil {
		now = time.Now
	}
	started := now()
	err := step()
	if err != nil {
		err = coreerrors.WithContext(err, coreerrors.Context{
			Repository: p.Repository.FullName,
			ReleaseTag: tag,
			Stage:      name,
		})
		err = fmt.Errorf("%s: %w", name, err)
	}
	if p.Log != nil {
		p.Log.StageDone(name, now().Sub(started), err)
	}
	return err
}
