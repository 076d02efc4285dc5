package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	coreerrors "github.com/repo-trust/repo-trust/core/errors"
	"github.com/repo-trust/repo-trust/core/pipeline"
	"github.com/repo-trust/repo-trust/core/sign"
)

type runAllOutput struct {
	errorEnvelope
	Signer        string `json:"signer,omitempty"`
	Artifacts     int    `json:"artifacts,omitempty"`
	Uploaded      bool   `json:"uploaded,omitempty"`
	PagesCommit   string `json:"pages_commit,omitempty"`
	CreatedBranch bool   `json:"created_branch,omitempty"`
}

// runAll executes the full pipeline: build and sign the manifest,
// verify it, attach it to the release, and publish the badge and page.
func runAll(arguments []string) int {
	flagSet := flag.NewFlagSet("run", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var flags configFlags
	var jsonOutput bool
	flags.register(flagSet)
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

	client := hostClient(cfg, repo)
	p := pipeline.Pipeline{
		Repository:       repo,
		Source:           client,
		Uploader:         client,
		Store:            client,
		Keys:             keys,
		Signers:          signers,
		GeneratorVersion: version,
		APIBaseURL:       cfg.APIBaseURL,
		DefaultBranch:    cfg.DefaultBranch,
		PagesBranch:      cfg.PagesBranch,
		Log:              stageLogger(cfg, cfg.ReleaseRef),
	}
	result, err := p.Run(context.Background(), cfg.ReleaseRef, cfg.ReleaseCommit)
	if err != nil {
		return writeFailure(jsonOutput, err)
	}

	output := runAllOutput{
		errorEnvelope: envelopeOK(),
		Signer:        result.SignerIdentity,
		Artifacts:     len(result.Manifest.Artifacts),
		Uploaded:      result.Uploaded,
		PagesCommit:   result.Published.CommitSHA,
		CreatedBranch: result.Published.CreatedBranch,
	}
	if jsonOutput {
		return writeJSONOutput(output, exitOK)
	}
	fmt.Printf("release %s: signed by %s, %d artifacts, published at %s\n",
		cfg.ReleaseRef, output.Signer, output.Artifacts, output.PagesCommit)
	return exitOK
}
