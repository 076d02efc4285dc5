package main

import (
	"flag"
	"os"
	"strings"

	"github.com/repo-trust/repo-trust/core/config"
	"github.com/repo-trust/repo-trust/core/githost"
	"github.com/repo-trust/repo-trust/core/identity"
	"github.com/repo-trust/repo-trust/core/retry"
	"github.com/repo-trust/repo-trust/core/runlog"
)

// configFlags is the flag surface shared by every command that needs
// run configuration. Flags override the environment, which overrides
// the config file.
type configFlags struct {
	configPath string

	repository    string
	apiBaseURL    string
	serverBaseURL string
	releaseTag    string
	releaseCommit string
	authToken     string

	signingKeyPath     string
	signingKeyEnv      string
	publicKeyPath      string
	publicKeyEnv       string
	allowedSignersPath string

	pagesBranch   string
	defaultBranch string
	eventLogPath  string
}

func (f *configFlags) register(flagSet *flag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", config.DefaultPath, "path to the YAML config file")
	flagSet.StringVar(&f.repository, "repository", "", "repository as owner/name")
	flagSet.StringVar(&f.apiBaseURL, "api-url", "", "host API base URL")
	flagSet.StringVar(&f.serverBaseURL, "server-url", "", "host server base URL")
	flagSet.StringVar(&f.releaseTag, "tag", "", "release tag")
	flagSet.StringVar(&f.releaseCommit, "commit", "", "release commit SHA")
	flagSet.StringVar(&f.authToken, "token", "", "host API token")
	flagSet.StringVar(&f.signingKeyPath, "signing-key", "", "path to base64 ed25519 private key")
	flagSet.StringVar(&f.signingKeyEnv, "signing-key-env", "", "env var containing base64 private key")
	flagSet.StringVar(&f.publicKeyPath, "public-key", "", "path to base64 ed25519 public key")
	flagSet.StringVar(&f.publicKeyEnv, "public-key-env", "", "env var containing base64 public key")
	flagSet.StringVar(&f.allowedSignersPath, "allowed-signers", "", "path to the allowed signers file")
	flagSet.StringVar(&f.pagesBranch, "pages-branch", "", "branch the badge and page are published to")
	flagSet.StringVar(&f.defaultBranch, "default-branch", "", "repository default branch")
	flagSet.StringVar(&f.eventLogPath, "event-log", "", "path to the JSON-lines event log")
}

func (f *configFlags) overlay() config.Config {
	return config.Config{
		Repository:         f.repository,
		APIBaseURL:         f.apiBaseURL,
		ServerBaseURL:      f.serverBaseURL,
		ReleaseRef:         f.releaseTag,
		ReleaseCommit:      f.releaseCommit,
		AuthToken:          f.authToken,
		SigningKeyPath:     f.signingKeyPath,
		SigningKeyEnv:      f.signingKeyEnv,
		PublicKeyPath:      f.publicKeyPath,
		PublicKeyEnv:       f.publicKeyEnv,
		AllowedSignersPath: f.allowedSignersPath,
		PagesBranch:        f.pagesBranch,
		DefaultBranch:      f.defaultBranch,
		EventLogPath:       f.eventLogPath,
	}
}

// resolve layers the config file, the environment, and the flags, in
// ascending precedence. A missing config file is only an error when the
// path was given explicitly.
func (f *configFlags) resolve() (config.Config, error) {
	allowMissing := strings.TrimSpace(f.configPath) == config.DefaultPath
	fileConfig, err := config.Load(f.configPath, allowMissing)
	if err != nil {
		return config.Config{}, err
	}
	envConfig := config.FromEnvironment(os.LookupEnv)
	return config.Merge(config.Merge(fileConfig, envConfig), f.overlay()).WithDefaults(), nil
}

func hostClient(cfg config.Config, repo identity.Repository) *githost.Client {
	return githost.New(repo, cfg.APIBaseURL, cfg.AuthToken, retry.Policy{})
}

func stageLogger(cfg config.Config, tag string) *runlog.Logger {
	return &runlog.Logger{
		Path:       cfg.EventLogPath,
		Repository: cfg.Repository,
		Release:    tag,
	}
}
