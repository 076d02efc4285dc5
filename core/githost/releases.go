package githost

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	coreerrors "github.com/repo-trust/repo-trust/core/errors"
	"github.com/repo-trust/repo-trust/core/manifest"
)

var _ manifest.AssetSource = (*Client)(nil)

type releaseResponse struct {
	ID          int64           `json:"id"`
	TagName     string          `json:"tag_name"`
	Name        string          `json:"name"`
	PublishedAt string          `json:"published_at"`
	HTMLURL     string          `json:"html_url"`
	UploadURL   string          `json:"upload_url"`
	Assets      []assetResponse `json:"assets"`
}

type assetResponse struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	Size               int64  `json:"size"`
	URL                string `json:"url"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

func (r releaseResponse) toReleaseInfo() manifest.ReleaseInfo {
	info := manifest.ReleaseInfo{
		ID:          r.ID,
		Tag:         r.TagName,
		Name:        r.Name,
		PublishedAt: r.PublishedAt,
		HTMLURL:     r.HTMLURL,
		Assets:      make([]manifest.AssetDescriptor, 0, len(r.Assets)),
	}
	for _, asset := range r.Assets {
		info.Assets = append(info.Assets, manifest.AssetDescriptor{
			ID:          asset.ID,
			Name:        asset.Name,
			Size:        asset.Size,
			APIURL:      asset.URL,
			DownloadURL: asset.BrowserDownloadURL,
		})
	}
	return info
}

// ReleaseByTag looks up one release by its tag name.
func (c *Client) ReleaseByTag(ctx context.Context, tag string) (manifest.ReleaseInfo, error) {
	var release releaseResponse
	status, err := c.doJSON(ctx, http.MethodGet, c.repoURL("releases/tags/"+url.PathEscape(tag)), nil, &release, http.StatusOK)
	if err != nil {
		if status == http.StatusNotFound {
			return manifest.ReleaseInfo{}, coreerrors.Wrap(
				fmt.Errorf("release %s not found in %s", tag, c.Repository.FullName),
				coreerrors.CategoryConfiguration,
				"release_not_found",
				"check the release tag and that the token can read releases",
				false,
			)
		}
		return manifest.ReleaseInfo{}, err
	}
	return release.toReleaseInfo(), nil
}

// OpenAsset streams one release asset's bytes through the API endpoint,
// which redirects to the storage backend. The caller owns the reader.
func (c *Client) OpenAsset(ctx context.Context, asset manifest.AssetDescriptor) (io.ReadCloser, error) {
	request, err := c.newRequest(ctx, http.MethodGet, asset.APIURL, acceptOctet, nil)
	if err != nil {
		return nil, err
	}
	response, err := c.streamClient().Do(request)
	if err != nil {
		return nil, coreerrors.Wrap(
			fmt.Errorf("download asset %s: %w", asset.Name, err),
			coreerrors.CategoryNetworkTransient,
			"asset_download_failed",
			"the asset download could not start",
			true,
		)
	}
	if response.StatusCode != http.StatusOK {
		defer func() {
			_ = response.Body.Close()
		}()
		return nil, classifyResponse(http.MethodGet, asset.APIURL, response)
	}
	return response.Body, nil
}

// UploadReleaseAsset attaches content to a release under the given
// name, replacing any existing asset with that name so reruns converge
// instead of failing on a duplicate.
func (c *Client) UploadReleaseAsset(ctx context.Context, releaseID int64, name, contentType string, content []byte) error {
	var release releaseResponse
	releaseURL := c.repoURL("releases/" + strconv.FormatInt(releaseID, 10))
	if _, err := c.doJSON(ctx, http.MethodGet, releaseURL, nil, &release, http.StatusOK); err != nil {
		return err
	}

	for _, asset := range release.Assets {
		if asset.Name != name {
			continue
		}
		assetURL := c.repoURL("releases/assets/" + strconv.FormatInt(asset.ID, 10))
		if _, err := c.doJSON(ctx, http.MethodDelete, assetURL, nil, nil, http.StatusNoContent); err != nil {
			return err
		}
	}

	uploadURL, err := uploadEndpoint(release.UploadURL, name)
	if err != nil {
		return err
	}
	return c.Retry.Do(ctx, func(ctx context.Context) error {
		request, err := c.newRequest(ctx, http.MethodPost, uploadURL, acceptJSON, bytes.NewReader(content))
		if err != nil {
			return err
		}
		request.Header.Set("Content-Type", contentType)
		request.ContentLength = int64(len(content))
		response, err := c.streamClient().Do(request)
		if err != nil {
			return coreerrors.Wrap(
				fmt.Errorf("upload asset %s: %w", name, err),
				coreerrors.CategoryNetworkTransient,
				"asset_upload_failed",
				"the asset upload could not complete",
				true,
			)
		}
		defer func() {
			_ = response.Body.Close()
		}()
		if response.StatusCode != http.StatusCreated {
			return classifyResponse(http.MethodPost, uploadURL, response)
		}
		return nil
	})
}

// uploadEndpoint resolves the release's upload URL template, which ends
// in a "{?name,label}" expansion marker, into a concrete URL.
func uploadEndpoint(template, name string) (string, error) {
	base, _, found := strings.Cut(template, "{")
	if !found || base == "" {
		return "", coreerrors.Wrap(
			fmt.Errorf("release upload URL %q is not a template", template),
			coreerrors.CategoryInternalFailure,
			"upload_url_invalid",
			"",
			false,
		)
	}
	return base + "?name=" + url.QueryEscape(name), nil
}
