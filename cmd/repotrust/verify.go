package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/repo-trust/repo-trust/core/config"
	coreerrors "github.com/repo-trust/repo-trust/core/errors"
	"github.com/repo-trust/repo-trust/core/sign"
	"github.com/repo-trust/repo-trust/core/verify"
)

type verifyOutput struct {
	errorEnvelope
	Signer     string `json:"signer,omitempty"`
	Repository string `json:"repository,omitempty"`
	Tag        string `json:"tag,omitempty"`
	Commit     string `json:"commit,omitempty"`
	Artifacts  int    `json:"artifacts,omitempty"`
}

// runVerify checks a local manifest and detached signature against the
// trusted signers and the configured repository identity.
func runVerify(arguments []string) int {
	flagSet := flag.NewFlagSet("verify", flag.ContinueOnError)
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
			"verify_inputs_missing",
			"",
			false,
		))
	}

	cfg, err := flags.resolve()
	if err != nil {
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

	result, err := verify.Manifest(manifestRaw, signatureRaw, signers, repo)
	if err != nil {
		return writeFailure(jsonOutput, err)
	}

	output := verifyOutput{
		errorEnvelope: envelopeOK(),
		Signer:        result.SignerIdentity,
		Repository:    result.Manifest.Repository.FullName,
		Tag:           result.Manifest.Release.Tag,
		Commit:        result.Manifest.Release.Commit,
		Artifacts:     len(result.Manifest.Artifacts),
	}
	if jsonOutput {
		return writeJSONOutput(output, exitOK)
	}
	fmt.Printf("verified: %s %s signed by %s (%d artifacts)\n", output.Repository, output.Tag, output.Signer, output.Artifacts)
	return exitOK
}

// trustedSigners resolves the verification trust anchor: the allowed
// signers file when configured, otherwise a single explicit public key.
func trustedSigners(cfg config.Config) (sign.AllowedSigners, error) {
	if cfg.AllowedSignersPath != "" {
		return sign.LoadAllowedSigners(cfg.AllowedSignersPath)
	}
	pub, err := sign.LoadVerifyKey(cfg.PublicKeySource())
	if err != nil {
		return nil, err
	}
	return sign.AllowedSigners{{Identity: sign.KeyID(pub), Key: pub}}, nil
}
