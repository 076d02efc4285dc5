package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/repo-trust/repo-trust/core/ancestry"
	coreerrors "github.com/repo-trust/repo-trust/core/errors"
	"github.com/repo-trust/repo-trust/core/retry"
)

type ancestryOutput struct {
	errorEnvelope
	Status string `json:"status,omitempty"`
	Commit string `json:"commit,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// runAncestry runs the server-side ancestry decision for one referrer
// URL, the same decision the published verification page makes in the
// visitor's browser.
func runAncestry(arguments []string) int {
	flagSet := flag.NewFlagSet("ancestry", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var flags configFlags
	var referrer string
	var jsonOutput bool
	flags.register(flagSet)
	flagSet.StringVar(&referrer, "referrer", "", "referrer URL to check")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")

	if err := flagSet.Parse(arguments); err != nil {
		if err == flag.ErrHelp {
			return exitOK
		}
		return writeFailure(jsonOutput, coreerrors.Wrap(err, coreerrors.CategoryConfiguration, "flag_parse_failed", "", false))
	}
	if referrer == "" {
		return writeFailure(jsonOutput, coreerrors.Wrap(
			fmt.Errorf("--referrer is required"),
			coreerrors.CategoryConfiguration,
			"referrer_missing",
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

	checker := ancestry.Checker{
		Client:        hostClient(cfg, repo),
		DefaultBranch: cfg.DefaultBranch,
		Retry:         retry.Policy{},
	}
	result := checker.Check(context.Background(), referrer)

	output := ancestryOutput{
		errorEnvelope: envelopeOK(),
		Status:        string(result.Status),
		Commit:        result.Commit,
		Detail:        result.Detail,
	}
	exitCode := exitOK
	switch result.Status {
	case ancestry.StatusWarning:
		exitCode = exitVerifyFailed
	case ancestry.StatusUnknown:
		exitCode = exitTransientFailure
	}
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	fmt.Printf("%s: %s\n", output.Status, output.Detail)
	return exitCode
}
