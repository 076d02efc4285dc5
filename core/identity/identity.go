// Package identity models the repository a trust run speaks for. The
// same value populates manifests at build time and re-validates them at
// verification time, so parsing is strict: a malformed identity fails
// the run before anything is signed.
package identity

import (
	"fmt"
	"strings"

	coreerrors "github.com/repo-trust/repo-trust/core/errors"
)

// Repository identifies the repository that owns the trust anchor.
// Immutable for the lifetime of a run.
type Repository struct {
	Owner    string `json:"owner"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	URL      string `json:"url"`
}

// Parse builds a Repository from an "owner/name" pair and the host's
// server base URL (for example "https://github.com").
func Parse(fullName, serverBaseURL string) (Repository, error) {
	trimmedName := strings.TrimSpace(fullName)
	if trimmedName == "" {
		return Repository{}, coreerrors.Wrap(
			fmt.Errorf("repository is required"),
			coreerrors.CategoryConfiguration,
			"repository_missing",
			"set the repository as owner/name",
			false,
		)
	}
	parts := strings.Split(trimmedName, "/")
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return Repository{}, coreerrors.Wrap(
			fmt.Errorf("invalid repository %q", trimmedName),
			coreerrors.CategoryConfiguration,
			"repository_malformed",
			"repository must be exactly owner/name",
			false,
		)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(serverBaseURL), "/")
	if baseURL == "" {
		return Repository{}, coreerrors.Wrap(
			fmt.Errorf("server base url is required"),
			coreerrors.CategoryConfiguration,
			"server_url_missing",
			"set the host server base url, e.g. https://github.com",
			false,
		)
	}
	owner := strings.TrimSpace(parts[0])
	name := strings.TrimSpace(parts[1])
	return Repository{
		Owner:    owner,
		Name:     name,
		FullName: owner + "/" + name,
		URL:      baseURL + "/" + owner + "/" + name,
	}, nil
}

// Equal reports whether two identities refer to the same repository on
// the same host. Both the full name and the canonical URL must match;
// comparing the URL as well blocks replays across hosts that reuse an
// owner/name pair.
func (r Repository) Equal(other Repository) bool {
	return r.FullName == other.FullName && r.URL == other.URL
}

func (r Repository) String() string {
	return r.FullName
}
