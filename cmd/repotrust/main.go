// Command repotrust builds, signs, verifies, and publishes distribution
// trust artifacts for a repository's releases.
package main

import (
	"fmt"
	"os"
)

// version is stamped at release time via ldflags; default stays dev for local builds.
var version = "0.0.0-dev"

func main() {
	os.Exit(run(os.Args))
}

func run(arguments []string) int {
	if len(arguments) < 2 {
		printUsage()
		return exitInvalidInput
	}
	switch arguments[1] {
	case "manifest":
		return runManifest(arguments[2:])
	case "verify":
		return runVerify(arguments[2:])
	case "upload":
		return runUpload(arguments[2:])
	case "publish":
		return runPublish(arguments[2:])
	case "ancestry":
		return runAncestry(arguments[2:])
	case "keys":
		return runKeys(arguments[2:])
	case "run":
		return runAll(arguments[2:])
	case "version", "--version", "-v":
		fmt.Println("repotrust", version)
		return exitOK
	case "help", "--help", "-h":
		printUsage()
		return exitOK
	default:
		printUsage()
		return exitInvalidInput
	}
}

func printUsage() {
	fmt.Println(`usage: repotrust <command> [flags]

commands:
  manifest   build and sign the release manifest, verify the result
  verify     verify a manifest and detached signature
  upload     attach a manifest and signature to the release
  publish    render and publish the badge and verification page
  ancestry   decide whether a referrer commit is official history
  keys       manage ed25519 signing keys (keys init)
  run        full pipeline: manifest, upload, publish
  version    print the CLI version

run 'repotrust <command> --help' for command flags`)
}
