package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	coreerrors "github.com/repo-trust/repo-trust/core/errors"
	"github.com/repo-trust/repo-trust/core/manifest"
)

type uploadOutput struct {
	errorEnvelope
	ReleaseID int64    `json:"release_id,omitempty"`
	Uploaded  []string `json:"uploaded,omitempty"`
}

// runUpload attaches a previously built manifest and signature pair to
// the configured release.
func runUpload(arguments []string) int {
	flagSet := flag.NewFlagSet("upload", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var flags configFlags
	var manifestPath string
	var signaturePath string
	var jsonOutput bool
	flags.register(flagSet)
	flagSet.StringVar(&manifestPath, "manifest", "", "path to the manifest file")
	flagSet.StringVar(&signaturePath, "signature", "", "path to the detached signature file")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")

	if err := flagSet.Parse(arguments); err != nil {
		if err == flag.ErrHelp {
			return exitOK
		}
		return writeFailure(jsonOutput, coreerrors.Wrap(err, coreerrors.CategoryConfiguration, "flag_parse_failed", "", false))
	}
	if manifestPath == "" || signaturePath == "" {
		return writeFailure(jsonOutput, coreerrors.Wrap(
			fmt.Errorf("--manifest and --signature are required"),
			coreerrors.CategoryConfiguration,
			"upload_inputs_missing",
			"",
			false,
		))
	}

	cfg, err := flags.resolve()
	if err != nil {
		return writeFailure(jsonOutput, err)
	}
	for _, check := range []func() error{cfg.CheckRelease, cfg.CheckAuthToken} {
		if err := check(); err != nil {
			return writeFailure(jsonOutput, err)
		}
	}
	repo, err := cfg.Identity()
	if err != nil {
		return writeFailure(jsonOutput, err)
	}

	// #nosec G304 -- manifest path is explicit local user input.
	manifestRaw, err := os.ReadFile(manifestPath)
	if err != nil {
		return writeFailure(jsonOutput, coreerrors.Wrap(err, coreerrors.CategoryIOFailure, "manifest_read_failed", "check the manifest path", false))
	}
	// #nosec G304 -- signature path is explicit local user input.
	signatureRaw, err := os.ReadFile(signaturePath)
	if err != nil {
		return writeFailure(jsonOutput, coreerrors.Wrap(err, coreerrors.CategoryIOFailure, "signature_read_failed", "check the signature path", false))
	}

	ctx := context.Background()
	client := hostClient(cfg, repo)
	release, err := client.ReleaseByTag(ctx, cfg.ReleaseRef)
	if err != nil {
		return writeFailure(jsonOutput, err)
	}
	if err := client.UploadReleaseAsset(ctx, release.ID, manifest.Filename, "application/json", manifestRaw); err != nil {
		return writeFailure(jsonOutput, err)
	}
	if err := client.UploadReleaseAsset(ctx, release.ID, manifest.SignatureFilename, "text/plain", signatureRaw); err != nil {
		return writeFailure(jsonOutput, err)
	}

	output := uploadOutput{
		errorEnvelope: envelopeOK(),
		ReleaseID:     release.ID,
		Uploaded:      []string{manifest.Filename, manifest.SignatureFilename},
	}
	if jsonOutput {
		return writeJSONOutput(output, exitOK)
	}
	fmt.Printf("uploaded %s and %s to release %s\n", manifest.Filename, manifest.SignatureFilename, cfg.ReleaseRef)
	return exitOK
}
