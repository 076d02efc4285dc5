package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	coreerrors "github.com/repo-trust/repo-trust/core/errors"
	"github.com/repo-trust/repo-trust/core/pipeline"
	"github.com/repo-trust/repo-trust/core/verify"
)

type publishOutput struct {
	errorEnvelope
	CommitSHA     string `json:"commit_sha,omitempty"`
	Branch        string `json:"branch,omitempty"`
	CreatedBranch bool   `json:"created_branch,omitempty"`
	Attempts      int    `json:"attempts,omitempty"`
}

// runPublish verifies a local manifest and signature pair, then renders
// and publishes the badge, verification page, and release data. The
// verification is not optional: a VERIFIED badge is only ever published
// for a manifest that passed it in this process.
func runPublish(arguments []string) int {
	flagSet := flag.NewFlagSet("publish", flag.ContinueOnError)
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
			"publish_inputs_missing",
			"",
			false,
		))
	}

	cfg, err := flags.resolve()
	if err != nil {
		return writeFailure(jsonOutput, err)
	}
	if err := cfg.CheckAuthToken(); err != nil {
		return writeFailure(jsonOutput, err)
	}
	repo, err := cfg.Identity()
	if err != nil {
		return writeFailure(jsonOutput, err)
	}
	signers, err := trustedSigners(cfg)
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
	verified, err := verify.Manifest(manifestRaw, signatureRaw, signers, repo)
	if err != nil {
		return writeFailure(jsonOutput, err)
	}

	tag := verified.Manifest.Release.Tag
	client := hostClient(cfg, repo)
	p := pipeline.Pipeline{
		Repository:       repo,
		Source:           client,
		Store:            client,
		GeneratorVersion: version,
		APIBaseURL:       cfg.APIBaseURL,
		DefaultBranch:    cfg.DefaultBranch,
		PagesBranch:      cfg.PagesBranch,
		Log:              stageLogger(cfg, tag),
	}
	var result pipeline.Result
	if err := p.Publish(context.Background(), tag, &result); err != nil {
		return writeFailure(jsonOutput, err)
	}

	output := publishOutput{
		errorEnvelope: envelopeOK(),
		CommitSHA:     result.Published.CommitSHA,
		Branch:        cfg.PagesBranch,
		CreatedBranch: result.Published.CreatedBranch,
		Attempts:      result.Published.Attempts,
	}
	if jsonOutput {
		return writeJSONOutput(output, exitOK)
	}
	fmt.Printf("published to %s at %s\n", cfg.PagesBranch, result.Published.CommitSHA)
	return exitOK
}
