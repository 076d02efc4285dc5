package pages

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	coreerrors "github.com/repo-trust/repo-trust/core/errors"
	"github.com/repo-trust/repo-trust/core/identity"
	"github.com/repo-trust/repo-trust/core/manifest"
)

// Fixed relative paths inside the managed subtree.
const (
	BadgePath       = "distribution.svg"
	PagePath        = "index.html"
	ReleaseDataPath = "release-data.json"
)

// Site assembles the complete artifact set for one publish run.
func Site(badgeSVG string, page string, releaseData []byte) map[string][]byte {
	return map[string][]byte{
		BadgePath:       []byte(badgeSVG),
		PagePath:        []byte(page),
		ReleaseDataPath: releaseData,
	}
}

type releaseDataAsset struct {
	Name          string `json:"name"`
	Size          int64  `json:"size"`
	SizeDisplay   string `json:"size_display"`
	DownloadURL   string `json:"download_url"`
	DownloadCount int64  `json:"download_count"`
}

type releaseData struct {
	Tag         string             `json:"tag"`
	Name        string             `json:"name"`
	PublishedAt string             `json:"published_at"`
	HTMLURL     string             `json:"html_url"`
	Assets      []releaseDataAsset `json:"assets"`
}

// RenderReleaseData serializes display metadata for the verification
// page. Our own manifest assets are excluded from the listing.
func RenderReleaseData(release manifest.ReleaseInfo) ([]byte, error) {
	data := releaseData{
		Tag:         release.Tag,
		Name:        release.Name,
		PublishedAt: release.PublishedAt,
		HTMLURL:     release.HTMLURL,
		Assets:      []releaseDataAsset{},
	}
	if data.Name == "" {
		data.Name = release.Tag
	}
	for _, asset := range release.Assets {
		if strings.HasPrefix(asset.Name, "repo-trust-") {
			continue
		}
		size := asset.Size
		if size < 0 {
			size = 0
		}
		data.Assets = append(data.Assets, releaseDataAsset{
			Name:        asset.Name,
			Size:        size,
			SizeDisplay: FormatSize(size),
			DownloadURL: asset.DownloadURL,
		})
	}
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, coreerrors.Wrap(
			fmt.Errorf("encode release data: %w", err),
			coreerrors.CategoryInternalFailure,
			"release_data_encode_failed",
			"",
			false,
		)
	}
	return encoded, nil
}

// FormatSize renders a byte count for display.
func FormatSize(sizeBytes int64) string {
	switch {
	case sizeBytes < 1024:
		return fmt.Sprintf("%d B", sizeBytes)
	case sizeBytes < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(sizeBytes)/1024)
	case sizeBytes < 1024*1024*1024:
		return fmt.Sprintf("%.1f MB", float64(sizeBytes)/(1024*1024))
	default:
		return fmt.Sprintf("%.1f GB", float64(sizeBytes)/(1024*1024*1024))
	}
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Repo Trust - {{.FullName}}</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 800px; margin: 0 auto; padding: 2rem; background: #f6f8fa; color: #24292f; }
.header { text-align: center; padding: 2rem; background: white; border-radius: 8px; box-shadow: 0 1px 3px rgba(0,0,0,0.1); margin-bottom: 2rem; }
.status { display: inline-block; padding: 0.5rem 1rem; border-radius: 4px; font-weight: bold; color: white; background: #6e7681; }
.status.verified { background: #2ea44f; }
.status.warning { background: #d73a49; }
.info { background: white; padding: 1.5rem; border-radius: 8px; box-shadow: 0 1px 3px rgba(0,0,0,0.1); }
a { color: #0969da; }
</style>
</head>
<body>
<div class="header">
  <h1>Repo Trust</h1>
  <p>Distribution verification for <a href="{{.RepoURL}}">{{.FullName}}</a></p>
  <div id="ancestry-status" class="status">CHECKING&#8230;</div>
  <div><img src="distribution.svg" alt="Repo Trust badge for {{.FullName}}"></div>
  <div id="release-info"></div>
</div>
<div class="info">
  <h2>What does this mean?</h2>
  <p>Each release of <strong>{{.FullName}}</strong> carries a signed
  <code>repo-trust-manifest.json</code> binding its artifacts to this
  repository's identity. This page also checks whether the commit you
  arrived from belongs to the official history of
  <code>{{.DefaultBranch}}</code>.</p>
</div>
<script>
(function () {
  var api = "{{.APIBaseURL}}";
  var repo = "{{.FullName}}";
  var branch = "{{.DefaultBranch}}";
  var el = document.getElementById("ancestry-status");
  function show(cls, text) { el.className = "status " + cls; el.textContent = text; }
  var match = /\/(?:commit|commits|tree|blob)\/([0-9a-f]{7,40})(?:[\/?#]|$)/.exec((document.referrer || "").toLowerCase());
  if (!match) {
    show("", "CHECK THE REPOSITORY ADDRESS MANUALLY");
    return;
  }
  var commit = match[1];
  fetch(api + "/repos/" + repo + "/compare/" + commit + "..." + branch)
    .then(function (response) {
      if (response.status === 404) { return { status: "unknown" }; }
      if (!response.ok) { throw new Error("host returned " + response.status); }
      return response.json();
    })
    .then(function (comparison) {
      if (comparison.status === "identical" || comparison.status === "ahead") {
        show("verified", "VERIFIED: commit " + commit.slice(0, 12) + " is official history");
      } else {
        show("warning", "WARNING: commit " + commit.slice(0, 12) + " is not in the official history");
      }
    })
    .catch(function () {
      show("", "UNKNOWN: could not reach the host");
    });
  fetch("release-data.json")
    .then(function (response) { return response.json(); })
    .then(function (release) {
      if (release.tag) {
        document.getElementById("release-info").textContent =
          "Latest release: " + release.name + " (" + release.assets.length + " assets)";
      }
    })
    .catch(function () {});
})();
</script>
</body>
</html>
`))

type pageData struct {
	FullName      string
	RepoURL       string
	APIBaseURL    string
	DefaultBranch string
}

// RenderVerificationPage renders the static verification page. The
// ancestry check runs client-side in the visitor's browser against the
// host API, unauthenticated, keyed off the Referer.
func RenderVerificationPage(repo identity.Repository, apiBaseURL, defaultBranch string) (string, error) {
	if defaultBranch == "" {
		defaultBranch = "main"
	}
	var out strings.Builder
	err := pageTemplate.Execute(&out, pageData{
		FullName:      repo.FullName,
		RepoURL:       repo.URL,
		APIBaseURL:    strings.TrimRight(apiBaseURL, "/"),
		DefaultBranch: defaultBranch,
	})
	if err != nil {
		return "", coreerrors.Wrap(
			fmt.Errorf("render verification page: %w", err),
			coreerrors.CategoryInternalFailure,
			"page_render_failed",
			"",
			false,
		)
	}
	return out.String(), nil
}
