// Package config assembles the run configuration from an optional YAML
// file, explicitly named environment variables, and command-line flags,
// in that precedence order (flags win). Components never read the
// environment themselves; everything they need arrives through this
// structure.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	coreerrors "github.com/repo-trust/repo-trust/core/errors"
	"github.com/repo-trust/repo-trust/core/identity"
	"github.com/repo-trust/repo-trust/core/sign"
)

const DefaultPath = ".repo-trust/config.yaml"

// Environment names recognized by FromEnvironment. The CI host's own
// variables cover repository and release coordinates; REPO_TRUST_*
// variables cover everything specific to this tool.
const (
	EnvRepository    = "GITHUB_REPOSITORY"
	EnvAPIBaseURL    = "GITHUB_API_URL"
	EnvServerBaseURL = "GITHUB_SERVER_URL"
	EnvAuthToken     = "GITHUB_TOKEN"
	EnvReleaseRef    = "GITHUB_REF_NAME"
	EnvReleaseCommit = "GITHUB_SHA"

	EnvSigningKey     = "REPO_TRUST_SIGNING_KEY"
	EnvSigningKeyPath = "REPO_TRUST_SIGNING_KEY_PATH"
	EnvPublicKey      = "REPO_TRUST_PUBLIC_KEY"
	EnvPublicKeyPath  = "REPO_TRUST_PUBLIC_KEY_PATH"
	EnvAllowedSigners = "REPO_TRUST_ALLOWED_SIGNERS"
	EnvPagesBranch    = "REPO_TRUST_PAGES_BRANCH"
	EnvDefaultBranch  = "REPO_TRUST_DEFAULT_BRANCH"
	EnvEventLogPath   = "REPO_TRUST_EVENT_LOG"
)

type Config struct {
	Repository    string `yaml:"repository"`
	APIBaseURL    string `yaml:"api_base_url"`
	ServerBaseURL string `yaml:"server_base_url"`
	ReleaseRef    string `yaml:"release_ref"`
	ReleaseCommit string `yaml:"release_commit"`
	AuthToken     string `yaml:"-"`

	SigningKeyPath     string `yaml:"signing_key_path"` // #nosec G117 -- config key name documents expected secret input.
	SigningKeyEnv      string `yaml:"signing_key_env"`
	PublicKeyPath      string `yaml:"public_key_path"`
	PublicKeyEnv       string `yaml:"public_key_env"`
	AllowedSignersPath string `yaml:"allowed_signers_path"`

	PagesBranch   string `yaml:"pages_branch"`
	DefaultBranch string `yaml:"default_branch"`
	EventLogPath  string `yaml:"event_log_path"`
}

// Load reads the YAML config file. A missing file is not an error when
// allowMissing is set; tokens are never read from the file.
func Load(path string, allowMissing bool) (Config, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return Config{}, coreerrors.Wrap(
			fmt.Errorf("config path is required"),
			coreerrors.CategoryConfiguration,
			"config_path_missing",
			"",
			false,
		)
	}

	// #nosec G304 -- config path is explicit local user input.
	content, err := os.ReadFile(trimmedPath)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return Config{}, nil
		}
		return Config{}, coreerrors.Wrap(
			fmt.Errorf("read config %s: %w", trimmedPath, err),
			coreerrors.CategoryConfiguration,
			"config_read_failed",
			"",
			false,
		)
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return Config{}, nil
	}

	var configuration Config
	if err := yaml.Unmarshal(content, &configuration); err != nil {
		return Config{}, coreerrors.Wrap(
			fmt.Errorf("parse config %s: %w", trimmedPath, err),
			coreerrors.CategoryConfiguration,
			"config_parse_failed",
			"the config file must be valid YAML",
			false,
		)
	}
	configuration.normalize()
	return configuration, nil
}

// FromEnvironment builds a Config from the recognized variable names.
// The lookup is injected so callers control exactly which environment
// is consulted; nothing else in the module reads ambient state.
func FromEnvironment(lookup func(string) (string, bool)) Config {
	value := func(name string) string {
		raw, ok := lookup(name)
		if !ok {
			return ""
		}
		return strings.TrimSpace(raw)
	}
	configuration := Config{
		Repository:         value(EnvRepository),
		APIBaseURL:         value(EnvAPIBaseURL),
		ServerBaseURL:      value(EnvServerBaseURL),
		ReleaseRef:         value(EnvReleaseRef),
		ReleaseCommit:      value(EnvReleaseCommit),
		AuthToken:          value(EnvAuthToken),
		SigningKeyPath:     value(EnvSigningKeyPath),
		PublicKeyPath:      value(EnvPublicKeyPath),
		AllowedSignersPath: value(EnvAllowedSigners),
		PagesBranch:        value(EnvPagesBranch),
		DefaultBranch:      value(EnvDefaultBranch),
		EventLogPath:       value(EnvEventLogPath),
	}
	// Key material carried directly in the environment binds the
	// corresponding env-source name; the material itself is read later
	// by the key loader, never stored here.
	if _, ok := lookup(EnvSigningKey); ok {
		configuration.SigningKeyEnv = EnvSigningKey
	}
	if _, ok := lookup(EnvPublicKey); ok {
		configuration.PublicKeyEnv = EnvPublicKey
	}
	return configuration
}

// Merge overlays non-empty fields of overlay onto base.
func Merge(base, overlay Config) Config {
	merged := base
	overlayString := func(target *string, value string) {
		if strings.TrimSpace(value) != "" {
			*target = strings.TrimSpace(value)
		}
	}
	overlayString(&merged.Repository, overlay.Repository)
	overlayString(&merged.APIBaseURL, overlay.APIBaseURL)
	overlayString(&merged.ServerBaseURL, overlay.ServerBaseURL)
	overlayString(&merged.ReleaseRef, overlay.ReleaseRef)
	overlayString(&merged.ReleaseCommit, overlay.ReleaseCommit)
	overlayString(&merged.AuthToken, overlay.AuthToken)
	overlayString(&merged.SigningKeyPath, overlay.SigningKeyPath)
	overlayString(&merged.SigningKeyEnv, overlay.SigningKeyEnv)
	overlayString(&merged.PublicKeyPath, overlay.PublicKeyPath)
	overlayString(&merged.PublicKeyEnv, overlay.PublicKeyEnv)
	overlayString(&merged.AllowedSignersPath, overlay.AllowedSignersPath)
	overlayString(&merged.PagesBranch, overlay.PagesBranch)
	overlayString(&merged.DefaultBranch, overlay.DefaultBranch)
	overlayString(&merged.EventLogPath, overlay.EventLogPath)
	return merged
}

// WithDefaults fills the public-host defaults for anything still unset.
func (c Config) WithDefaults() Config {
	filled := c
	if filled.APIBaseURL == "" {
		filled.APIBaseURL = "https://api.github.com"
	}
	if filled.ServerBaseURL == "" {
		filled.ServerBaseURL = "https://github.com"
	}
	if filled.PagesBranch == "" {
		filled.PagesBranch = "gh-pages"
	}
	if filled.DefaultBranch == "" {
		filled.DefaultBranch = "main"
	}
	return filled
}

// Identity parses the configured repository coordinates.
func (c Config) Identity() (identity.Repository, error) {
	if c.Repository == "" {
		return identity.Repository{}, missing("repository", EnvRepository)
	}
	return identity.Parse(c.Repository, c.ServerBaseURL)
}

// SigningKeySource is the explicit key parameter handed to the signer.
func (c Config) SigningKeySource() sign.KeySource {
	return sign.KeySource{Path: c.SigningKeyPath, Env: c.SigningKeyEnv}
}

func (c Config) PublicKeySource() sign.KeySource {
	return sign.KeySource{Path: c.PublicKeyPath, Env: c.PublicKeyEnv}
}

// CheckRelease verifies the release coordinates needed to build or
// upload a manifest are present.
func (c Config) CheckRelease() error {
	if c.ReleaseRef == "" {
		return missing("release ref", EnvReleaseRef)
	}
	if c.ReleaseCommit == "" {
		return missing("release commit", EnvReleaseCommit)
	}
	return nil
}

func (c Config) CheckAuthToken() error {
	if c.AuthToken == "" {
		return missing("auth token", EnvAuthToken)
	}
	return nil
}

func (c Config) CheckSigningKey() error {
	if c.SigningKeyPath == "" && c.SigningKeyEnv == "" {
		return missing("signing key", EnvSigningKey)
	}
	return nil
}

func (c Config) CheckAllowedSigners() error {
	if c.AllowedSignersPath == "" {
		return missing("allowed signers file", EnvAllowedSigners)
	}
	return nil
}

func missing(what, envName string) error {
	return coreerrors.Wrap(
		fmt.Errorf("%s is not configured", what),
		coreerrors.CategoryConfiguration,
		"config_incomplete",
		fmt.Sprintf("set %s or the matching config file field", envName),
		false,
	)
}

func (c *Config) normalize() {
	c.Repository = strings.TrimSpace(c.Repository)
	c.APIBaseURL = strings.TrimSpace(c.APIBaseURL)
	c.ServerBaseURL = strings.TrimSpace(c.ServerBaseURL)
	c.ReleaseRef = strings.TrimSpace(c.ReleaseRef)
	c.ReleaseCommit = strings.TrimSpace(c.ReleaseCommit)
	c.SigningKeyPath = strings.TrimSpace(c.SigningKeyPath)
	c.SigningKeyEnv = strings.TrimSpace(c.SigningKeyEnv)
	c.PublicKeyPath = strings.TrimSpace(c.PublicKeyPath)
	c.PublicKeyEnv = strings.TrimSpace(c.PublicKeyEnv)
	c.AllowedSignersPath = strings.TrimSpace(c.AllowedSignersPath)
	c.PagesBranch = strings.TrimSpace(c.PagesBranch)
	c.DefaultBranch = strings.TrimSpace(c.DefaultBranch)
	c.EventLogPath = strings.TrimSpace(c.EventLogPath)
}
