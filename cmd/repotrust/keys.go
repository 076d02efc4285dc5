package main

import (
	"encoding/base64"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	coreerrors "github.com/repo-trust/repo-trust/core/errors"
	"github.com/repo-trust/repo-trust/core/sign"
)

type keysInitOutput struct {
	errorEnvelope
	KeyID             string `json:"key_id,omitempty"`
	PublicKeyPath     string `json:"public_key_path,omitempty"`
	PrivateKeyPath    string `json:"private_key_path,omitempty"`
	AllowedSignerLine string `json:"allowed_signer_line,omitempty"`
}

func runKeys(arguments []string) int {
	if len(arguments) == 0 {
		fmt.Println("usage: repotrust keys init [flags]")
		return exitInvalidInput
	}
	switch arguments[0] {
	case "init":
		return runKeysInit(arguments[1:])
	default:
		fmt.Println("usage: repotrust keys init [flags]")
		return exitInvalidInput
	}
}

// runKeysInit generates an ed25519 pair and writes base64 key files.
// The printed allowed-signer line is ready to paste into the allowed
// signers file.
func runKeysInit(arguments []string) int {
	flagSet := flag.NewFlagSet("keys-init", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var outDir string
	var prefix string
	var identityName string
	var force bool
	var jsonOutput bool
	flagSet.StringVar(&outDir, "out-dir", filepath.Join(".repo-trust", "keys"), "directory for generated key files")
	flagSet.StringVar(&prefix, "prefix", "repo-trust", "key file prefix")
	flagSet.StringVar(&identityName, "identity", "release-ci", "signer identity for the allowed-signer line")
	flagSet.BoolVar(&force, "force", false, "overwrite existing key files")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")

	if err := flagSet.Parse(arguments); err != nil {
		if err == flag.ErrHelp {
			return exitOK
		}
		return writeFailure(jsonOutput, coreerrors.Wrap(err, coreerrors.CategoryConfiguration, "flag_parse_failed", "", false))
	}

	keys, err := sign.GenerateKeyPair()
	if err != nil {
		return writeFailure(jsonOutput, err)
	}
	privatePath := filepath.Join(outDir, prefix+".key")
	publicPath := filepath.Join(outDir, prefix+".pub")
	for _, path := range []string{privatePath, publicPath} {
		if _, err := os.Stat(path); err == nil && !force {
			return writeFailure(jsonOutput, coreerrors.Wrap(
				fmt.Errorf("key file %s already exists", path),
				coreerrors.CategoryConfiguration,
				"key_file_exists",
				"pass --force to overwrite existing key files",
				false,
			))
		}
	}
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return writeFailure(jsonOutput, coreerrors.Wrap(err, coreerrors.CategoryIOFailure, "key_dir_create_failed", "", false))
	}
	encodedPrivate := base64.StdEncoding.EncodeToString(keys.Private)
	encodedPublic := base64.StdEncoding.EncodeToString(keys.Public)
	if err := os.WriteFile(privatePath, []byte(encodedPrivate+"\n"), 0o600); err != nil {
		return writeFailure(jsonOutput, coreerrors.Wrap(err, coreerrors.CategoryIOFailure, "key_write_failed", "", false))
	}
	if err := os.WriteFile(publicPath, []byte(encodedPublic+"\n"), 0o600); err != nil {
		return writeFailure(jsonOutput, coreerrors.Wrap(err, coreerrors.CategoryIOFailure, "key_write_failed", "", false))
	}

	output := keysInitOutput{
		errorEnvelope:     envelopeOK(),
		KeyID:             sign.KeyID(keys.Public),
		PublicKeyPath:     publicPath,
		PrivateKeyPath:    privatePath,
		AllowedSignerLine: identityName + " " + encodedPublic,
	}
	if jsonOutput {
		return writeJSONOutput(output, exitOK)
	}
	fmt.Printf("wrote %s and %s\nkey id: %s\nallowed signers entry:\n%s\n", privatePath, publicPath, output.KeyID, output.AllowedSignerLine)
	return exitOK
}
