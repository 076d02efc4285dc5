package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	coreerrors "github.com/repo-trust/repo-trust/core/errors"
	"github.com/repo-trust/repo-trust/core/manifest"
	"github.com/repo-trust/repo-trust/core/pipeline"
	"github.com/repo-trust/repo-trust/core/sign"
)

type manifestOutput struct {
	errorEnvelope
	ManifestPath  string `json:"manifest_path,omitempty"`
	SignaturePath string `json:"signature_path,omitempty"`
	KeyID         string `json:"key_id,omitempty"`
	Signer        string `json:"signer,omitempty"`
	Artifacts     int    `json:"artifacts,omitempty"`
}

// runManifest builds the manifest from the release's assets, signs it,
// verifies the signed result, and writes both files locally.
func runManifest(arguments []string) int {
	flagSet := flag.NewFlagSet("manifest", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var flags configFlags
	var outDir string
	var jsonOutput bool
	flags.register(flagSet)
	flagSet.StringVar(&outDir, "out-dir", "repo-trust-out", "directory for the manifest and signature files")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")

	if err := flagSet.Parse(arguments); err != nil {
		if err == flag.ErrHelp {
			return exitOK
		}
		return writeFailure(jsonOutput, coreerrors.Wrap(err, coreerrors.CategoryConfiguration, "flag_parse_failed", "", false))
	}

	cfg, err := flags.resolve()
	if err != nil {
		return writeFailure(jsonOutput, err)
	}
	for _, check := range []func() error{cfg.CheckRelease, cfg.CheckAuthToken, cfg.CheckSigningKey, cfg.CheckAllowedSigners} {
		if err := check(); err != nil {
			return writeFailure(jsonOutput, err)
		}
	}
	repo, err := cfg.Identity()
	if err != nil {
		return writeFailure(jsonOutput, err)
	}
	keys, err := sign.LoadSigningKey(cfg.SigningKeySource(), cfg.PublicKeySource())
	if err != nil {
		return writeFailure(jsonOutput, err)
	}
	signers, err := sign.LoadAllowedSigners(cfg.AllowedSignersPath)
	if err != nil {
		return writeFailure(jsonOutput, err)
	}

	p := pipeline.Pipeline{
		Repository:       repo,
		Source:           hostClient(cfg, repo),
		Keys:             keys,
		Signers:          signers,
		GeneratorVersion: version,
		Log:              stageLogger(cfg, cfg.ReleaseRef),
	}
	result, err := p.Sign(context.Background(), cfg.ReleaseRef, cfg.ReleaseCommit)
	if err != nil {
		return writeFailure(jsonOutput, err)
	}

	manifestPath := filepath.Join(outDir, manifest.Filename)
	signaturePath := filepath.Join(outDir, manifest.SignatureFilename)
	if err := writeArtifact(manifestPath, result.ManifestBytes); err != nil {
		return writeFailure(jsonOutput, err)
	}
	if err := writeArtifact(signaturePath, result.SignatureBytes); err != nil {
		return writeFailure(jsonOutput, err)
	}

	output := manifestOutput{
		errorEnvelope: envelopeOK(),
		ManifestPath:  manifestPath,
		SignaturePath: signaturePath,
		KeyID:         sign.KeyID(keys.Public),
		Signer:        result.SignerIdentity,
		Artifacts:     len(result.Manifest.Artifacts),
	}
	if jsonOutput {
		return writeJSONOutput(output, exitOK)
	}
	fmt.Printf("wrote %s and %s (%d artifacts, signer %s)\n", manifestPath, signaturePath, output.Artifacts, output.Signer)
	return exitOK
}

func writeArtifact(path string, content []byte) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return coreerrors.Wrap(err, coreerrors.CategoryIOFailure, "out_dir_create_failed", "", false)
		}
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return coreerrors.Wrap(err, coreerrors.CategoryIOFailure, "artifact_write_failed", "", false)
	}
	return nil
}

